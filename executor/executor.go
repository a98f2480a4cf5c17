package executor

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/halcyondata/askdb/cache"
	"github.com/halcyondata/askdb/db"
	"github.com/halcyondata/askdb/errors"
	"github.com/halcyondata/askdb/internal/retry"
	"github.com/halcyondata/askdb/sqlguard"
)

// Result is the outcome of one executed query.
type Result struct {
	Columns   []string        `json:"columns"`
	Rows      [][]interface{} `json:"rows"`
	RowCount  int             `json:"row_count"`
	Truncated bool            `json:"truncated"`
	ElapsedMS int64           `json:"elapsed_ms"`
	CacheHit  bool            `json:"cache_hit"`
	Warnings  []string        `json:"warnings,omitempty"`
}

// Config holds executor limits.
type Config struct {
	MaxRows          int
	MaxRetries       int
	StatementTimeout time.Duration
	AllowCaching     bool
	ResultTTL        time.Duration
	RetryBackoff     time.Duration
	Logger           *zap.SugaredLogger
}

// Executor runs validated SELECT statements against the database, with a
// result cache in front and bounded retry behind.
type Executor struct {
	db     *sql.DB
	cache  *cache.Service
	cfg    Config
	logger *zap.SugaredLogger
}

// New creates an executor. cache may be nil to disable result caching.
func New(db *sql.DB, cacheSvc *cache.Service, cfg Config) *Executor {
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 10000
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 3
	}
	if cfg.StatementTimeout <= 0 {
		cfg.StatementTimeout = 30 * time.Second
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = time.Hour
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 2 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Executor{db: db, cache: cacheSvc, cfg: cfg, logger: logger}
}

// Run executes sql and returns its result. The statement is re-checked for
// SELECT shape even though callers validate first, so the executor is safe
// on its own. Cached results are returned without touching the database.
func (e *Executor) Run(ctx context.Context, sqlText string) (*Result, error) {
	normalized := sqlguard.Normalize(sqlText)
	if !strings.HasPrefix(normalized, "select") {
		return nil, errors.Wrap(errors.ErrValidationFailed, "refusing to execute non-SELECT statement")
	}

	cacheKey := sqlguard.Fingerprint(sqlText)

	if e.cacheEnabled() {
		if raw, ok := e.cache.Get(ctx, cacheKey); ok {
			var result Result
			if err := json.Unmarshal(raw, &result); err == nil {
				result.CacheHit = true
				e.logger.Debugw("Query served from cache", "cache_key", cacheKey[:12])
				return &result, nil
			}
			e.logger.Warnw("Dropping corrupt cached result", "cache_key", cacheKey[:12])
			e.cache.Delete(ctx, cacheKey)
		}
	}

	start := time.Now()

	policy := retry.Policy{
		MaxAttempts: e.cfg.MaxRetries,
		Backoff:     retry.Linear(e.cfg.RetryBackoff),
		Retryable:   isTransient,
	}

	var result *Result
	err := policy.Do(ctx, func(ctx context.Context) error {
		queryCtx, cancel := context.WithTimeout(ctx, e.cfg.StatementTimeout)
		defer cancel()

		var runErr error
		result, runErr = e.query(queryCtx, sqlText)
		return runErr
	})
	if err != nil {
		e.logger.Errorw("Query failed", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, err
	}

	result.ElapsedMS = time.Since(start).Milliseconds()

	if e.cacheEnabled() {
		if raw, err := json.Marshal(result); err == nil {
			e.cache.Set(ctx, cacheKey, raw, e.cfg.ResultTTL)
		}
	}

	e.logger.Infow("Query executed",
		"row_count", result.RowCount,
		"truncated", result.Truncated,
		"elapsed_ms", result.ElapsedMS,
	)
	return result, nil
}

func (e *Executor) cacheEnabled() bool {
	return e.cache != nil && e.cfg.AllowCaching
}

func (e *Executor) query(ctx context.Context, sqlText string) (*Result, error) {
	rows, err := e.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read result columns")
	}

	result := &Result{Columns: columns, Rows: [][]interface{}{}}

	for rows.Next() {
		if result.RowCount >= e.cfg.MaxRows {
			result.Truncated = true
			result.Warnings = append(result.Warnings,
				"result truncated: row limit reached")
			break
		}

		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}

		// Byte slices do not survive JSON round-trips as-is.
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}

		result.Rows = append(result.Rows, values)
		result.RowCount++
	}

	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}

	return result, nil
}

// classify maps driver errors onto the error taxonomy the fallback layer
// keys off.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(errors.ErrTimeout, "query timed out")
	}
	if db.IsDatabaseClosed(err) {
		return errors.Wrap(db.ErrDatabaseClosed, err.Error())
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"):
		return errors.Wrap(errors.ErrTimeout, err.Error())
	case strings.Contains(msg, "connection"),
		strings.Contains(msg, "database is locked"):
		return errors.Wrap(errors.ErrServiceUnavailable, err.Error())
	}
	return err
}

// isTransient reports whether an execution failure is worth retrying.
// Each attempt runs under its own statement deadline, so timeouts retry
// like connection failures. A closed database never recovers mid-request.
func isTransient(err error) bool {
	if db.IsDatabaseClosed(err) {
		return false
	}
	if errors.Is(err, errors.ErrTimeout) || errors.Is(err, errors.ErrServiceUnavailable) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection") || strings.Contains(msg, "database is locked")
}

// Invalidate drops all cached query results. Used after the underlying data
// changes out of band.
func (e *Executor) Invalidate(ctx context.Context) {
	if e.cache != nil {
		e.cache.DeleteByPattern(ctx, "sql:*")
	}
}
