package commands

import (
	"context"
	"database/sql"
	"time"

	"github.com/spf13/cobra"

	"github.com/halcyondata/askdb/access"
	"github.com/halcyondata/askdb/ai/reasoner"
	"github.com/halcyondata/askdb/cache"
	"github.com/halcyondata/askdb/config"
	"github.com/halcyondata/askdb/db"
	"github.com/halcyondata/askdb/errors"
	"github.com/halcyondata/askdb/executor"
	"github.com/halcyondata/askdb/fallback"
	"github.com/halcyondata/askdb/gen"
	"github.com/halcyondata/askdb/graph"
	"github.com/halcyondata/askdb/identity"
	"github.com/halcyondata/askdb/logger"
	"github.com/halcyondata/askdb/notify"
	"github.com/halcyondata/askdb/router"
	"github.com/halcyondata/askdb/sqlguard"
)

// loadConfig honors the --config flag, falling back to the usual search.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// app holds the wired request pipeline for one CLI invocation.
type app struct {
	cfg    *config.Config
	engine *graph.Engine
	conn   *sql.DB
	cache  *cache.Service
}

func (a *app) Close() {
	if a.conn != nil {
		a.conn.Close()
	}
	if a.cache != nil {
		a.cache.Close()
	}
}

// buildApp wires every pipeline component from configuration. The database
// handle is opened read-only; the executor never needs write access.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	cacheOpts := []cache.Option{cache.WithLogger(logger.Named("cache"))}
	if cfg.Redis.Enabled {
		store, err := cache.NewRedisStore(ctx, cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Logger:   logger.Named("redis"),
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to connect to redis")
		}
		cacheOpts = append(cacheOpts, cache.WithSharedStore(store))
	}
	cacheSvc := cache.NewService(
		cfg.Cache.MaxLocalEntries,
		time.Duration(cfg.Cache.DefaultTTLSeconds)*time.Second,
		cacheOpts...,
	)

	conn, err := db.OpenReadOnly(cfg.Database.Path, logger.Named("db"))
	if err != nil {
		cacheSvc.Close()
		return nil, errors.Wrapf(err, "failed to open database %s", cfg.Database.Path)
	}

	reasonerClient := reasoner.NewClient(reasoner.Config{
		APIKey:            cfg.Reasoner.APIKey,
		BaseURL:           cfg.Reasoner.BaseURL,
		Model:             cfg.Reasoner.Model,
		Temperature:       &cfg.Reasoner.Temperature,
		MaxTokens:         &cfg.Reasoner.MaxTokens,
		Timeout:           time.Duration(cfg.Reasoner.TimeoutSeconds) * time.Second,
		RequestsPerMinute: cfg.Reasoner.RequestsPerMinute,
		Logger:            logger.Named("reasoner"),
	})

	roleClient := identity.NewClient(identity.Config{
		BaseURL:    cfg.Identity.BaseURL,
		Token:      cfg.Identity.Token,
		Timeout:    time.Duration(cfg.Identity.TimeoutSeconds) * time.Second,
		MaxRetries: cfg.Identity.MaxRetries,
		RetryDelay: time.Duration(cfg.Identity.RetryDelayMS) * time.Millisecond,
		Logger:     logger.Named("identity"),
	})

	checker := access.NewChecker(access.Config{
		Matrix:  cfg.Access.Matrix,
		Roles:   roleClient,
		Cache:   cacheSvc,
		RoleTTL: time.Duration(cfg.Cache.RoleTTLSeconds) * time.Second,
		Logger:  logger.Named("access"),
	})

	schema := gen.NewSchemaProvider(conn, 5*time.Minute, logger.Named("schema"))

	exec := executor.New(conn, cacheSvc, executor.Config{
		MaxRows:          cfg.Executor.MaxRows,
		MaxRetries:       cfg.Executor.MaxRetries,
		StatementTimeout: time.Duration(cfg.Executor.StatementTimeoutSecs) * time.Second,
		AllowCaching:     cfg.Executor.AllowCaching,
		ResultTTL:        time.Duration(cfg.Cache.ResultTTLSeconds) * time.Second,
		RetryBackoff:     time.Duration(cfg.Executor.RetryBackoffBaseMS) * time.Millisecond,
		Logger:           logger.Named("executor"),
	})

	rules, err := notify.LoadRules(cfg.Fallback.AlertRulesPath)
	if err != nil {
		conn.Close()
		cacheSvc.Close()
		return nil, err
	}
	ticketer := notify.NewTicketer(notify.TicketerConfig{
		BaseURL: cfg.Notify.TicketURL,
		User:    cfg.Notify.TicketUser,
		Token:   cfg.Notify.TicketToken,
		Project: cfg.Notify.TicketProject,
		Logger:  logger.Named("notify"),
	})
	chat := notify.NewChat(notify.ChatConfig{
		WebhookURL: cfg.Notify.ChatWebhookURL,
		Logger:     logger.Named("notify"),
	})

	engine, err := graph.NewEngine(graph.Pipeline{
		Router: router.New(router.Config{
			Reasoner: reasonerClient,
			Cache:    cacheSvc,
			Logger:   logger.Named("router"),
		}),
		Schema:    schema,
		Generator: gen.NewGenerator(reasonerClient, schema, logger.Named("generator")),
		Validator: newValidator(cfg),
		Access:    checker,
		Executor:  exec,
		Interpreter: gen.NewInterpreter(
			reasonerClient, logger.Named("interpreter")),
		Fallback: fallback.NewHandler(reasonerClient, ticketer, chat, fallback.Config{
			RecurrenceThreshold: cfg.Fallback.RecurrenceThreshold,
			MaxTrackedErrors:    cfg.Fallback.MaxTrackedErrors,
			Rules:               rules,
			Logger:              logger.Named("fallback"),
		}),
		Responder:       graph.NewReasonerResponder(reasonerClient, logger.Named("responder")),
		MaxFallbackRuns: cfg.Fallback.MaxReentries,
		Logger:          logger.Named("graph"),
	})
	if err != nil {
		conn.Close()
		cacheSvc.Close()
		return nil, err
	}

	return &app{cfg: cfg, engine: engine, conn: conn, cache: cacheSvc}, nil
}

func newValidator(cfg *config.Config) *sqlguard.Validator {
	limits := sqlguard.DefaultLimits()
	if cfg.Validator.MaxJoins > 0 {
		limits.MaxJoins = cfg.Validator.MaxJoins
	}
	if cfg.Validator.MaxConditions > 0 {
		limits.MaxConditions = cfg.Validator.MaxConditions
	}
	if cfg.Validator.MaxSubqueries > 0 {
		limits.MaxSubqueries = cfg.Validator.MaxSubqueries
	}
	return sqlguard.NewValidator(limits, logger.Named("sqlguard"))
}
