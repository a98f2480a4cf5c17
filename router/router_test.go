package router

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyondata/askdb/ai/reasoner"
	"github.com/halcyondata/askdb/cache"
	"github.com/halcyondata/askdb/errors"
)

type stubReasoner struct {
	content    string
	err        error
	configured bool
	calls      int
}

func (s *stubReasoner) Chat(ctx context.Context, req reasoner.ChatRequest) (*reasoner.ChatResponse, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &reasoner.ChatResponse{Content: s.content}, nil
}

func (s *stubReasoner) IsConfigured() bool { return s.configured }

func TestRouteRules(t *testing.T) {
	r := New(Config{})
	ctx := context.Background()

	cases := []struct {
		query string
		want  Route
	}{
		{"show me the sales report for May", RouteAnalytics},
		{"top 10 customers by revenue", RouteAnalytics},
		{"how many orders did we get last week", RouteAnalytics},
		{"where is the API documentation", RouteDocumentation},
		{"explain the difference between ROI and ROAS", RouteExplanation},
		{"hello there", RouteSmallTalk},
		{"how's it going", RouteSmallTalk},
		{"what can you do", RouteHelp},
	}
	for _, tc := range cases {
		decision := r.Route(ctx, tc.query)
		assert.Equal(t, tc.want, decision.Route, tc.query)
		assert.Equal(t, "rule", decision.Method, tc.query)
	}
}

func TestRouteEmptyQuery(t *testing.T) {
	r := New(Config{})
	decision := r.Route(context.Background(), "   ")
	assert.Equal(t, RouteGeneral, decision.Route)
}

func TestRouteModelClassification(t *testing.T) {
	ctx := context.Background()

	t.Run("valid model answer", func(t *testing.T) {
		stub := &stubReasoner{content: `{"route":"documentation","confidence":0.9}`, configured: true}
		r := New(Config{Reasoner: stub})

		decision := r.Route(ctx, "something the fast path cannot place")
		assert.Equal(t, RouteDocumentation, decision.Route)
		assert.Equal(t, 0.9, decision.Confidence)
		assert.Equal(t, "model", decision.Method)
	})

	t.Run("unknown route collapses to general", func(t *testing.T) {
		stub := &stubReasoner{content: `{"route":"quantum_pipeline","confidence":0.99}`, configured: true}
		r := New(Config{Reasoner: stub})

		decision := r.Route(ctx, "something the fast path cannot place")
		assert.Equal(t, RouteGeneral, decision.Route)
		assert.Equal(t, "fallback", decision.Method)
	})

	t.Run("model failure falls back", func(t *testing.T) {
		stub := &stubReasoner{err: errors.New("model down"), configured: true}
		r := New(Config{Reasoner: stub})

		decision := r.Route(ctx, "something the fast path cannot place")
		assert.Equal(t, RouteGeneral, decision.Route)
		assert.Equal(t, "fallback", decision.Method)
	})

	t.Run("no reasoner falls back", func(t *testing.T) {
		r := New(Config{})
		decision := r.Route(ctx, "something the fast path cannot place")
		assert.Equal(t, RouteGeneral, decision.Route)
	})
}

func TestRouteClassificationCached(t *testing.T) {
	ctx := context.Background()
	stub := &stubReasoner{content: `{"route":"explanation","confidence":0.8}`, configured: true}
	r := New(Config{Reasoner: stub, Cache: cache.NewService(16, time.Minute)})

	query := "something only the model can place"

	first := r.Route(ctx, query)
	assert.Equal(t, "model", first.Method)

	second := r.Route(ctx, query)
	assert.Equal(t, RouteExplanation, second.Route)
	assert.Equal(t, "cache", second.Method)
	assert.Equal(t, 1, stub.calls, "model consulted once per query text")
}

func TestAddRule(t *testing.T) {
	r := New(Config{})
	ctx := context.Background()

	require.NoError(t, r.AddRule(`\bquarterly review\b`, RouteAnalytics))
	decision := r.Route(ctx, "prepare the quarterly review")
	assert.Equal(t, RouteAnalytics, decision.Route)
	assert.Equal(t, "rule", decision.Method)

	assert.Error(t, r.AddRule(`[unclosed`, RouteAnalytics))
	assert.Error(t, r.AddRule(`ok`, Route("nonsense")))
}

func TestUpdateFallbackPriority(t *testing.T) {
	r := New(Config{})

	require.NoError(t, r.UpdateFallbackPriority([]Route{RouteExplanation, RouteGeneral}))
	assert.Equal(t, RouteExplanation, r.Fallback())

	decision := r.Route(context.Background(), "something the fast path cannot place")
	assert.Equal(t, RouteExplanation, decision.Route)

	assert.Error(t, r.UpdateFallbackPriority(nil))
	assert.Error(t, r.UpdateFallbackPriority([]Route{Route("bogus")}))
}
