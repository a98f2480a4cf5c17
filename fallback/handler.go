package fallback

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/halcyondata/askdb/ai/reasoner"
	"github.com/halcyondata/askdb/notify"
)

// Action is a recovery strategy. The set is closed: anything a model
// suggests outside it collapses to ActionNotify.
type Action string

const (
	ActionRetry           Action = "retry"
	ActionRetryAfterDelay Action = "retry_after_delay"
	ActionSimplify        Action = "simplify_query"
	ActionEscalate        Action = "escalate"
	ActionNotify          Action = "notify_user"
)

var validActions = map[Action]struct{}{
	ActionRetry:           {},
	ActionRetryAfterDelay: {},
	ActionSimplify:        {},
	ActionEscalate:        {},
	ActionNotify:          {},
}

// Failure describes an error surfaced by a pipeline component.
type Failure struct {
	Component string
	Message   string
	UserQuery string
}

// Decision is the recovery plan for one failure.
type Decision struct {
	Action      Action
	Kind        Kind
	Recurring   bool
	TicketID    string
	Delay       time.Duration
	UserMessage string
}

// Chatter is the reasoner surface the handler needs. Satisfied by
// *reasoner.Client.
type Chatter interface {
	Chat(ctx context.Context, req reasoner.ChatRequest) (*reasoner.ChatResponse, error)
	IsConfigured() bool
}

// Config holds handler tuning.
type Config struct {
	// RecurrenceThreshold is how many failures of one (kind, component)
	// pair force an escalation regardless of kind.
	RecurrenceThreshold int
	// MaxTrackedErrors bounds the recurrence key space.
	MaxTrackedErrors int
	Rules            []notify.AlertRule
	Logger           *zap.SugaredLogger
}

// Handler turns pipeline failures into recovery decisions. Common kinds map
// deterministically; ambiguous ones are put to the reasoner, whose answer
// is only trusted if it names a known action.
type Handler struct {
	tracker   *recurrenceTracker
	reasoner  Chatter
	ticketer  *notify.Ticketer
	chat      *notify.Chat
	rules     []notify.AlertRule
	threshold int
	logger    *zap.SugaredLogger
}

// NewHandler creates a fallback handler. reasonerClient may be nil; ambiguous
// kinds then go straight to ActionNotify.
func NewHandler(reasonerClient Chatter, ticketer *notify.Ticketer, chat *notify.Chat, cfg Config) *Handler {
	if cfg.RecurrenceThreshold < 1 {
		cfg.RecurrenceThreshold = 3
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{
		tracker:   newRecurrenceTracker(cfg.MaxTrackedErrors),
		reasoner:  reasonerClient,
		ticketer:  ticketer,
		chat:      chat,
		rules:     cfg.Rules,
		threshold: cfg.RecurrenceThreshold,
		logger:    logger,
	}
}

// Handle decides how to recover from a failure.
func (h *Handler) Handle(ctx context.Context, failure Failure) Decision {
	kind := Classify(failure.Message)
	count := h.tracker.Record(kind, failure.Component)

	h.logger.Warnw("Handling pipeline failure",
		"component", failure.Component,
		"kind", kind,
		"occurrence", count,
	)

	threshold := h.threshold
	rule := notify.RuleFor(h.rules, string(kind))
	if rule != nil && rule.Threshold > 0 {
		threshold = rule.Threshold
	}

	if count >= threshold {
		return h.escalate(ctx, kind, failure, true, rule)
	}

	switch kind {
	case KindTimeout:
		return Decision{Action: ActionRetry, Kind: kind}
	case KindNetworkError:
		return Decision{
			Action:      ActionRetryAfterDelay,
			Kind:        kind,
			Delay:       10 * time.Second,
			UserMessage: "The system is temporarily overloaded. Please wait a moment.",
		}
	case KindAccessDenied:
		return h.escalate(ctx, kind, failure, false, rule)
	case KindDataNotFound:
		return Decision{
			Action:      ActionSimplify,
			Kind:        kind,
			UserMessage: "No data matched; trying a simpler version of your question.",
		}
	}

	return h.consultReasoner(ctx, kind, failure)
}

// Reset clears the recurrence counters.
func (h *Handler) Reset() {
	h.tracker.Reset()
}

func (h *Handler) escalate(ctx context.Context, kind Kind, failure Failure, recurring bool, rule *notify.AlertRule) Decision {
	incident := notify.Incident{
		Component: failure.Component,
		Kind:      string(kind),
		Message:   failure.Message,
		UserQuery: failure.UserQuery,
		Recurring: recurring,
	}
	if rule != nil && rule.Priority != "" {
		incident.Priority = rule.Priority
	}

	ticketID := h.ticketer.OpenIncident(ctx, incident)

	if rule == nil || !rule.Silent {
		h.chat.NotifyIncident(ctx, incident, ticketID)
	}

	intro := "A complex error occurred."
	if recurring {
		intro = "A recurring error was detected. Our team is working on it."
	}

	return Decision{
		Action:    ActionEscalate,
		Kind:      kind,
		Recurring: recurring,
		TicketID:  ticketID,
		UserMessage: fmt.Sprintf(
			"%s Our team has been notified. Ticket: #%s. We apologize for the inconvenience.",
			intro, ticketID,
		),
	}
}

// consultReasoner asks the model to pick a recovery action for kinds that
// have no deterministic rule. The answer must be one of the known actions;
// anything else, or any reasoner failure, falls back to notifying the user.
func (h *Handler) consultReasoner(ctx context.Context, kind Kind, failure Failure) Decision {
	fallbackDecision := Decision{
		Action:      ActionNotify,
		Kind:        kind,
		UserMessage: "Something went wrong while processing your request. Please try rephrasing your question.",
	}

	if h.reasoner == nil || !h.reasoner.IsConfigured() {
		return fallbackDecision
	}

	resp, err := h.reasoner.Chat(ctx, reasoner.ChatRequest{
		SystemPrompt: "You select a recovery strategy for a failed data query pipeline. " +
			"Respond with a JSON object {\"action\": \"...\"} where action is exactly one of: " +
			"retry, retry_after_delay, simplify_query, escalate, notify_user.",
		UserPrompt: fmt.Sprintf(
			"Error kind: %s\nComponent: %s\nMessage: %s\nUser query: %s",
			kind, failure.Component, failure.Message, failure.UserQuery,
		),
		JSONMode: true,
	})
	if err != nil {
		h.logger.Warnw("Reasoner strategy selection failed", "error", err)
		return fallbackDecision
	}

	var parsed struct {
		Action string `json:"action"`
	}
	if err := reasoner.DecodeJSON(resp.Content, &parsed); err != nil {
		h.logger.Warnw("Unparseable strategy from reasoner", "content", resp.Content)
		return fallbackDecision
	}

	action := Action(parsed.Action)
	if _, ok := validActions[action]; !ok {
		h.logger.Warnw("Reasoner suggested unknown action", "action", parsed.Action)
		return fallbackDecision
	}

	decision := Decision{Action: action, Kind: kind}
	switch action {
	case ActionRetryAfterDelay:
		decision.Delay = 10 * time.Second
	case ActionEscalate:
		return h.escalate(ctx, kind, failure, false, notify.RuleFor(h.rules, string(kind)))
	case ActionNotify:
		decision.UserMessage = fallbackDecision.UserMessage
	case ActionSimplify:
		decision.UserMessage = "Trying a simpler version of your question."
	}
	return decision
}
