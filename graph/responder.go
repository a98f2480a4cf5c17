package graph

import (
	"context"

	"go.uber.org/zap"

	"github.com/halcyondata/askdb/ai/reasoner"
	"github.com/halcyondata/askdb/gen"
	"github.com/halcyondata/askdb/router"
)

// ReasonerResponder answers non-analytics routes with the language model,
// falling back to canned replies when no model is configured.
type ReasonerResponder struct {
	reasoner gen.Chatter
	logger   *zap.SugaredLogger
}

func NewReasonerResponder(client gen.Chatter, logger *zap.SugaredLogger) *ReasonerResponder {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &ReasonerResponder{reasoner: client, logger: logger}
}

var responderPrompts = map[router.Route]string{
	router.RouteSmallTalk: "You are a friendly data assistant. Reply briefly and warmly to the user's conversational message. Do not offer data you do not have.",
	router.RouteHelp: "You are a data assistant. Explain briefly what you can do: answer questions about the connected database in plain language. " +
		"Suggest one or two example questions.",
	router.RouteDocumentation: "You are a data assistant answering a question about how the system or its data works. " +
		"Answer from general knowledge, be concise, and say so when you are unsure.",
	router.RouteExplanation: "You are a data assistant. Explain the concept the user asks about in plain language, concisely.",
}

const generalPrompt = "You are a helpful data assistant. Answer the user's question concisely. " +
	"If the question needs data you cannot access, say what you would need."

func (r *ReasonerResponder) Respond(ctx context.Context, route router.Route, query string) (string, error) {
	if r.reasoner == nil || !r.reasoner.IsConfigured() {
		return cannedReply(route), nil
	}

	prompt, ok := responderPrompts[route]
	if !ok {
		prompt = generalPrompt
	}
	resp, err := r.reasoner.Chat(ctx, reasoner.ChatRequest{
		SystemPrompt: prompt,
		UserPrompt:   query,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func cannedReply(route router.Route) string {
	switch route {
	case router.RouteSmallTalk:
		return "Hello! Ask me a question about your data and I will do my best to answer."
	case router.RouteHelp, router.RouteDocumentation:
		return "I answer questions about the connected database in plain language. " +
			"Try something like: \"show total sales for last month\"."
	}
	return "I can help with questions about your data. What would you like to know?"
}
