package graph

import (
	"context"

	"go.uber.org/zap"

	"github.com/halcyondata/askdb/gen"
)

// systemFailureMessage is the fixed apology returned when traversal itself
// breaks. No recovery strategy runs at that point.
const systemFailureMessage = "A system error occurred while processing your request. Please try again later."

// Engine runs requests through the built graph. One engine serves many
// concurrent requests; each request gets its own State.
type Engine struct {
	graph  *Graph
	logger *zap.SugaredLogger
}

// NewEngine wires the pipeline components into a request graph.
func NewEngine(p Pipeline) (*Engine, error) {
	g, err := p.build()
	if err != nil {
		return nil, err
	}
	return &Engine{graph: g, logger: p.logger}, nil
}

// Process answers one user question. It always returns a response: pipeline
// failures are turned into user-facing messages by the fallback path, and a
// panic anywhere in the traversal yields a fixed apology.
func (e *Engine) Process(ctx context.Context, userID, query string) (resp gen.Response) {
	s := NewState(userID, query)

	defer func() {
		if r := recover(); r != nil {
			e.logger.Errorw("Request processing panicked",
				"request_id", s.RequestID,
				"panic", r,
			)
			resp = gen.Response{
				RequestID: s.RequestID,
				Type:      gen.ResponseError,
				Content:   systemFailureMessage,
			}
		}
	}()

	e.logger.Infow("Processing request",
		"request_id", s.RequestID,
		"user_id", userID,
	)

	if err := e.graph.Run(ctx, s); err != nil {
		e.logger.Errorw("Graph traversal failed",
			"request_id", s.RequestID,
			"error", err,
			"trace", s.Trace,
		)
		return gen.Response{
			RequestID: s.RequestID,
			Type:      gen.ResponseError,
			Content:   systemFailureMessage,
		}
	}

	if s.Response == nil {
		return gen.Response{
			RequestID: s.RequestID,
			Type:      gen.ResponseError,
			Content:   systemFailureMessage,
		}
	}

	e.logger.Infow("Request complete",
		"request_id", s.RequestID,
		"type", s.Response.Type,
		"cache_hit", s.Response.CacheHit,
	)
	return *s.Response
}
