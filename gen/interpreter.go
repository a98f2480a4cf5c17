package gen

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/halcyondata/askdb/ai/reasoner"
	"github.com/halcyondata/askdb/executor"
)

// Interpreter turns raw query results into a short narrative answer.
type Interpreter struct {
	reasoner Chatter
	logger   *zap.SugaredLogger
}

// NewInterpreter creates an interpreter.
func NewInterpreter(reasonerClient Chatter, logger *zap.SugaredLogger) *Interpreter {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Interpreter{reasoner: reasonerClient, logger: logger}
}

// maxSampleRows bounds how much result data goes into the prompt.
const maxSampleRows = 20

// Summarize describes the result in terms of the user's question. Empty
// results get a fixed answer without a model call; if the model is missing
// or fails, a plain row-count summary is returned instead of an error.
func (i *Interpreter) Summarize(ctx context.Context, question string, result *executor.Result) string {
	if result.RowCount == 0 {
		return "No data matched your question. Try widening the filters or rephrasing it."
	}

	plain := fmt.Sprintf("The query returned %d rows with columns: %s.",
		result.RowCount, strings.Join(result.Columns, ", "))

	if i.reasoner == nil || !i.reasoner.IsConfigured() {
		return plain
	}

	resp, err := i.reasoner.Chat(ctx, reasonerRequest(question, result))
	if err != nil {
		i.logger.Warnw("Result interpretation failed", "error", err)
		return plain
	}

	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return plain
	}
	return summary
}

func reasonerRequest(question string, result *executor.Result) (req reasoner.ChatRequest) {
	var b strings.Builder
	b.WriteString(strings.Join(result.Columns, " | "))
	b.WriteString("\n")

	sample := result.Rows
	if len(sample) > maxSampleRows {
		sample = sample[:maxSampleRows]
	}
	for _, row := range sample {
		parts := make([]string, len(row))
		for j, v := range row {
			parts[j] = fmt.Sprintf("%v", v)
		}
		b.WriteString(strings.Join(parts, " | "))
		b.WriteString("\n")
	}

	req.SystemPrompt = "You summarize query results for business users. " +
		"Answer the user's question from the data in at most three sentences. " +
		"Mention concrete numbers. Do not mention SQL."
	req.UserPrompt = fmt.Sprintf(
		"Question: %s\nTotal rows: %d (showing up to %d)\nData:\n%s",
		question, result.RowCount, maxSampleRows, b.String(),
	)
	return req
}
