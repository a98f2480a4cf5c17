package router

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/halcyondata/askdb/ai/reasoner"
	"github.com/halcyondata/askdb/cache"
	"github.com/halcyondata/askdb/errors"
)

// Route names the pipeline a query is dispatched to. The set is closed:
// model output that names anything else collapses to RouteGeneral.
type Route string

const (
	RouteAnalytics     Route = "analytics"
	RouteDocumentation Route = "documentation"
	RouteExplanation   Route = "explanation"
	RouteSmallTalk     Route = "small_talk"
	RouteHelp          Route = "help"
	RouteGeneral       Route = "general"
)

var validRoutes = map[Route]struct{}{
	RouteAnalytics:     {},
	RouteDocumentation: {},
	RouteExplanation:   {},
	RouteSmallTalk:     {},
	RouteHelp:          {},
	RouteGeneral:       {},
}

// Decision is a routing outcome.
type Decision struct {
	Route      Route   `json:"route"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"` // rule, model, cache, fallback
}

// Rule maps a pattern to a route during fast classification. Patterns are
// matched case-insensitively against the raw query.
type Rule struct {
	Pattern *regexp.Regexp
	Route   Route
}

// Chatter is the reasoner surface the router needs.
type Chatter interface {
	Chat(ctx context.Context, req reasoner.ChatRequest) (*reasoner.ChatResponse, error)
	IsConfigured() bool
}

// Router classifies user queries. Cheap keyword rules run first; only
// queries no rule covers are put to the reasoner, and those answers are
// cached per query text.
type Router struct {
	mu               sync.RWMutex
	rules            []Rule
	fallbackPriority []Route
	reasoner         Chatter
	cache            *cache.Service
	cacheTTL         time.Duration
	logger           *zap.SugaredLogger
}

// Config holds router construction parameters.
type Config struct {
	Reasoner Chatter
	Cache    *cache.Service
	CacheTTL time.Duration
	Logger   *zap.SugaredLogger
}

// New creates a router with the default rule set.
func New(cfg Config) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &Router{
		rules:            defaultRules(),
		fallbackPriority: []Route{RouteGeneral},
		reasoner:         cfg.Reasoner,
		cache:            cfg.Cache,
		cacheTTL:         cfg.CacheTTL,
		logger:           logger,
	}
}

func defaultRules() []Rule {
	return []Rule{
		{regexp.MustCompile(`(?i)\b(help|commands|what can you do)\b`), RouteHelp},
		{regexp.MustCompile(`(?i)\b(hi|hello|hey|good (morning|afternoon|evening))\b`), RouteSmallTalk},
		{regexp.MustCompile(`(?i)\bhow('s| is| are) (it going|you|things|life)\b`), RouteSmallTalk},
		{regexp.MustCompile(`(?i)\b(report|trend|chart|graph|compare|top \d+|total|average|sum|count|revenue|sales)\b`), RouteAnalytics},
		{regexp.MustCompile(`(?i)\b(show|list|how many|which)\b.*\b(customers?|orders?|products?|users?|tables?|rows?)\b`), RouteAnalytics},
		{regexp.MustCompile(`(?i)\b(documentation|docs|instructions?|tutorial|example code|api|integration)\b`), RouteDocumentation},
		{regexp.MustCompile(`(?i)\b(explain|what is|what's the difference|how does .* work)\b`), RouteExplanation},
	}
}

// Route classifies a query. Rules win outright; otherwise a cached model
// answer is used when present, and the reasoner is consulted as a last step.
func (r *Router) Route(ctx context.Context, query string) Decision {
	query = strings.TrimSpace(query)
	if query == "" {
		return Decision{Route: RouteGeneral, Confidence: 1, Method: "rule"}
	}

	if decision, ok := r.matchRules(query); ok {
		return decision
	}

	cacheKey := "route:" + strings.ToLower(query)
	if r.cache != nil {
		if raw, ok := r.cache.Get(ctx, cacheKey); ok {
			var decision Decision
			if err := json.Unmarshal(raw, &decision); err == nil {
				decision.Method = "cache"
				return decision
			}
		}
	}

	decision := r.classifyWithModel(ctx, query)

	if r.cache != nil && decision.Method == "model" {
		if raw, err := json.Marshal(decision); err == nil {
			r.cache.Set(ctx, cacheKey, raw, r.cacheTTL)
		}
	}
	return decision
}

func (r *Router) matchRules(query string) (Decision, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rule := range r.rules {
		if rule.Pattern.MatchString(query) {
			return Decision{Route: rule.Route, Confidence: 0.95, Method: "rule"}, true
		}
	}
	return Decision{}, false
}

func (r *Router) classifyWithModel(ctx context.Context, query string) Decision {
	fallbackDecision := Decision{Route: r.Fallback(), Confidence: 0.5, Method: "fallback"}

	if r.reasoner == nil || !r.reasoner.IsConfigured() {
		return fallbackDecision
	}

	resp, err := r.reasoner.Chat(ctx, reasoner.ChatRequest{
		SystemPrompt: "You classify user questions for a data assistant. " +
			"Respond with a JSON object {\"route\": \"...\", \"confidence\": 0.0-1.0} " +
			"where route is exactly one of: analytics, documentation, explanation, small_talk, help, general.",
		UserPrompt: fmt.Sprintf("Classify this question: %q", query),
		JSONMode:   true,
	})
	if err != nil {
		r.logger.Warnw("Model classification failed", "error", err)
		return fallbackDecision
	}

	var parsed struct {
		Route      string  `json:"route"`
		Confidence float64 `json:"confidence"`
	}
	if err := reasoner.DecodeJSON(resp.Content, &parsed); err != nil {
		r.logger.Warnw("Unparseable classification", "content", resp.Content)
		return fallbackDecision
	}

	route := Route(parsed.Route)
	if _, ok := validRoutes[route]; !ok {
		r.logger.Warnw("Model suggested unknown route", "route", parsed.Route)
		return Decision{Route: RouteGeneral, Confidence: 0.5, Method: "fallback"}
	}

	confidence := parsed.Confidence
	if confidence <= 0 || confidence > 1 {
		confidence = 0.5
	}
	return Decision{Route: route, Confidence: confidence, Method: "model"}
}

// AddRule registers an extra fast-classification rule ahead of the model.
// Later additions are consulted after the built-in rules.
func (r *Router) AddRule(pattern string, route Route) error {
	if _, ok := validRoutes[route]; !ok {
		return errors.Newf("unknown route %q", route)
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return errors.Wrap(err, "invalid rule pattern")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, Rule{Pattern: re, Route: route})
	return nil
}

// UpdateFallbackPriority replaces the ordered list of routes used when
// classification cannot decide. Unknown routes are rejected.
func (r *Router) UpdateFallbackPriority(routes []Route) error {
	if len(routes) == 0 {
		return errors.New("fallback priority cannot be empty")
	}
	for _, route := range routes {
		if _, ok := validRoutes[route]; !ok {
			return errors.Newf("unknown route %q", route)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbackPriority = append([]Route(nil), routes...)
	return nil
}

// Fallback returns the highest-priority fallback route.
func (r *Router) Fallback() Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fallbackPriority[0]
}
