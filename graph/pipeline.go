package graph

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/halcyondata/askdb/access"
	"github.com/halcyondata/askdb/errors"
	"github.com/halcyondata/askdb/executor"
	"github.com/halcyondata/askdb/fallback"
	"github.com/halcyondata/askdb/gen"
	"github.com/halcyondata/askdb/router"
	"github.com/halcyondata/askdb/sqlguard"
)

// Node names. These appear in State.Trace and in logs.
const (
	nodeRouter    = "router"
	nodeSchema    = "schema_context"
	nodeGenerate  = "sql_generator"
	nodeValidate  = "sql_validator"
	nodeAccess    = "access_check"
	nodeExecute   = "db_executor"
	nodeInterpret = "data_interpreter"
	nodeRespond   = "responder"
	nodeFallback  = "fallback_handler"
	nodeFormat    = "response_formatter"
)

// maxFallbackRuns caps how often one request may re-enter the fallback
// handler. Past the cap the handler stops choosing strategies and the user
// gets a plain failure notice.
const maxFallbackRuns = 2

const exhaustedMessage = "I could not complete your request after several attempts. Please try rephrasing your question."

// Responder answers routes that do not touch the database: small talk,
// documentation, explanations and general questions.
type Responder interface {
	Respond(ctx context.Context, route router.Route, query string) (string, error)
}

// Pipeline holds the components the graph orchestrates. Build wires them
// into the request graph.
type Pipeline struct {
	Router      *router.Router
	Schema      *gen.SchemaProvider
	Generator   *gen.Generator
	Validator   *sqlguard.Validator
	Access      *access.Checker
	Executor    *executor.Executor
	Interpreter *gen.Interpreter
	Fallback    *fallback.Handler
	Responder   Responder
	Logger      *zap.SugaredLogger

	// MaxFallbackRuns overrides the default fallback re-entry cap.
	MaxFallbackRuns int

	logger *zap.SugaredLogger
}

func (p *Pipeline) validate() error {
	switch {
	case p.Router == nil:
		return errors.New("pipeline needs a router")
	case p.Generator == nil:
		return errors.New("pipeline needs a generator")
	case p.Validator == nil:
		return errors.New("pipeline needs a validator")
	case p.Access == nil:
		return errors.New("pipeline needs an access checker")
	case p.Executor == nil:
		return errors.New("pipeline needs an executor")
	case p.Fallback == nil:
		return errors.New("pipeline needs a fallback handler")
	}
	return nil
}

// build assembles the graph: router entry, the analytics pipeline, the
// responder path for everything else, and fallback edges. Every guarded
// edge checks for a recorded error before its own condition.
func (p *Pipeline) build() (*Graph, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	p.logger = p.Logger
	if p.logger == nil {
		p.logger = zap.NewNop().Sugar()
	}
	if p.Responder == nil {
		p.Responder = NewReasonerResponder(nil, p.logger)
	}
	if p.MaxFallbackRuns < 1 {
		p.MaxFallbackRuns = maxFallbackRuns
	}

	g := New()
	nodes := []struct {
		name string
		fn   Node
	}{
		{nodeRouter, p.routeQuery},
		{nodeSchema, p.loadSchema},
		{nodeGenerate, p.generateSQL},
		{nodeValidate, p.validateSQL},
		{nodeAccess, p.checkAccess},
		{nodeExecute, p.executeSQL},
		{nodeInterpret, p.interpretResult},
		{nodeRespond, p.respond},
		{nodeFallback, p.recoverFailure},
		{nodeFormat, p.formatResponse},
	}
	for _, n := range nodes {
		if err := g.AddNode(n.name, n.fn); err != nil {
			return nil, err
		}
	}
	if err := g.SetEntry(nodeRouter); err != nil {
		return nil, err
	}

	edges := []struct {
		from string
		sel  Selector
	}{
		{nodeRouter, guard(func(s *State) string {
			if s.Route == router.RouteAnalytics {
				return nodeSchema
			}
			return nodeRespond
		})},
		{nodeSchema, guard(to(nodeGenerate))},
		{nodeGenerate, guard(to(nodeValidate))},
		{nodeValidate, guard(to(nodeAccess))},
		{nodeAccess, guard(to(nodeExecute))},
		{nodeExecute, guard(to(nodeInterpret))},
		{nodeInterpret, guard(to(nodeFormat))},
		{nodeRespond, guard(to(nodeFormat))},
		{nodeFallback, p.afterFallback},
		{nodeFormat, to(End)},
	}
	for _, e := range edges {
		if err := g.AddConditionalEdge(e.from, e.sel); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// guard redirects to the fallback handler whenever the state carries an
// error, before the stage-specific condition runs.
func guard(sel Selector) Selector {
	return func(s *State) string {
		if s.Err != nil {
			return nodeFallback
		}
		return sel(s)
	}
}

func to(name string) Selector {
	return func(*State) string { return name }
}

func (p *Pipeline) routeQuery(ctx context.Context, s *State) {
	d := p.Router.Route(ctx, s.Query)
	s.Routing = &d
	s.Route = d.Route
	p.logger.Infow("Routed query",
		"request_id", s.RequestID,
		"route", d.Route,
		"method", d.Method,
	)
}

func (p *Pipeline) loadSchema(ctx context.Context, s *State) {
	if p.Schema == nil {
		return
	}
	text, err := p.Schema.Context(ctx)
	if err != nil {
		s.fail(nodeSchema, err.Error())
		return
	}
	s.SchemaContext = text
}

func (p *Pipeline) generateSQL(ctx context.Context, s *State) {
	out, err := p.Generator.Generate(ctx, s.Query, s.SimplifyHint)
	if err != nil {
		s.fail(nodeGenerate, err.Error())
		return
	}
	s.SQL = out.SQL
	s.Explanation = out.Explanation
	p.logger.Debugw("Generated SQL", "request_id", s.RequestID, "sql", out.SQL)
}

func (p *Pipeline) validateSQL(ctx context.Context, s *State) {
	report := p.Validator.Validate(s.SQL)
	s.Validation = &report
	if !report.Valid {
		s.fail(nodeValidate, "validation failed: "+strings.Join(report.Errors, "; "))
	}
}

func (p *Pipeline) checkAccess(ctx context.Context, s *State) {
	decision, err := p.Access.Check(ctx, s.UserID, s.SQL)
	if err != nil {
		s.fail(nodeAccess, err.Error())
		return
	}
	s.Access = &decision
	if !decision.Allowed {
		s.fail(nodeAccess, "access denied: "+decision.Reason)
	}
}

func (p *Pipeline) executeSQL(ctx context.Context, s *State) {
	result, err := p.Executor.Run(ctx, s.SQL)
	if err != nil {
		s.fail(nodeExecute, err.Error())
		return
	}
	s.Result = result
	p.logger.Infow("Query executed",
		"request_id", s.RequestID,
		"rows", result.RowCount,
		"cache_hit", result.CacheHit,
	)
}

func (p *Pipeline) interpretResult(ctx context.Context, s *State) {
	if p.Interpreter == nil || s.Result == nil {
		return
	}
	s.Summary = p.Interpreter.Summarize(ctx, s.Query, s.Result)
}

func (p *Pipeline) respond(ctx context.Context, s *State) {
	content, err := p.Responder.Respond(ctx, s.Route, s.Query)
	if err != nil {
		s.fail(nodeRespond, err.Error())
		return
	}
	s.Summary = content
}

// recoverFailure consults the fallback handler for a recovery decision and
// prepares the state for whatever comes next. Past the re-entry cap it
// stops trying and notifies the user.
func (p *Pipeline) recoverFailure(ctx context.Context, s *State) {
	if s.Err == nil {
		return
	}

	s.FallbackRuns++
	if s.FallbackRuns > p.MaxFallbackRuns {
		p.logger.Errorw("Fallback budget exhausted",
			"request_id", s.RequestID,
			"component", s.Err.Component,
			"message", s.Err.Message,
		)
		s.Recovery = &fallback.Decision{
			Action:      fallback.ActionNotify,
			UserMessage: exhaustedMessage,
		}
		s.Err = nil
		return
	}

	failed := *s.Err
	decision := p.Fallback.Handle(ctx, fallback.Failure{
		Component: failed.Component,
		Message:   failed.Message,
		UserQuery: s.Query,
	})
	s.Recovery = &decision
	s.Err = nil

	switch decision.Action {
	case fallback.ActionRetry, fallback.ActionRetryAfterDelay:
		if decision.Delay > 0 {
			wait(ctx, decision.Delay)
		}
		s.SimplifyHint = "A previous attempt failed with: " + failed.Message + ". Produce a simpler query."
		s.clearAnalytics()
	case fallback.ActionSimplify:
		s.clearAnalytics()
		s.Route = router.RouteGeneral
	}
}

// afterFallback routes by the recovery decision: retries re-enter the
// pipeline, simplification downgrades to the responder, everything else
// goes straight to the formatter.
func (p *Pipeline) afterFallback(s *State) string {
	if s.Err != nil || s.Recovery == nil {
		return nodeFormat
	}
	switch s.Recovery.Action {
	case fallback.ActionRetry, fallback.ActionRetryAfterDelay:
		if s.Route == router.RouteAnalytics {
			return nodeSchema
		}
		return nodeRespond
	case fallback.ActionSimplify:
		return nodeRespond
	}
	return nodeFormat
}

func (p *Pipeline) formatResponse(ctx context.Context, s *State) {
	switch {
	case s.Recovery != nil && (s.Recovery.Action == fallback.ActionEscalate || s.Recovery.Action == fallback.ActionNotify):
		resp := gen.FormatError(s.RequestID, s.Recovery.UserMessage, s.Recovery.TicketID)
		s.Response = &resp
	case s.Err != nil:
		resp := gen.FormatError(s.RequestID, "", "")
		s.Response = &resp
	case s.Result != nil:
		resp := gen.FormatResult(s.RequestID, s.Summary, s.Result)
		s.Response = &resp
	default:
		s.Response = &gen.Response{
			RequestID: s.RequestID,
			Type:      gen.ResponseText,
			Content:   s.Summary,
		}
	}
}

func wait(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
