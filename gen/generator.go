package gen

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/halcyondata/askdb/ai/reasoner"
	"github.com/halcyondata/askdb/errors"
)

// Chatter is the reasoner surface the generation layer needs.
type Chatter interface {
	Chat(ctx context.Context, req reasoner.ChatRequest) (*reasoner.ChatResponse, error)
	IsConfigured() bool
}

// Generated is the output of SQL generation.
type Generated struct {
	SQL         string `json:"sql"`
	Explanation string `json:"explanation"`
}

// Generator turns natural-language questions into SQL against a known
// schema.
type Generator struct {
	reasoner Chatter
	schema   *SchemaProvider
	logger   *zap.SugaredLogger
}

// NewGenerator creates a generator.
func NewGenerator(reasonerClient Chatter, schema *SchemaProvider, logger *zap.SugaredLogger) *Generator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Generator{reasoner: reasonerClient, schema: schema, logger: logger}
}

const generatorSystemPrompt = `You are a senior SQL developer writing SQLite queries for an analytics system.
Rules:
- Only SELECT statements. Never write data.
- Use only tables and columns from the provided schema.
- No WITH clauses; the statement must start with SELECT.
- Prefer simple queries: at most 5 joins, 10 conditions, 2 subqueries.
Respond with a JSON object {"sql": "...", "explanation": "..."}.`

// Generate produces SQL for the question. A simplify hint, when present,
// asks the model for a less ambitious statement after an earlier attempt
// failed.
func (g *Generator) Generate(ctx context.Context, question, simplifyHint string) (*Generated, error) {
	if g.reasoner == nil || !g.reasoner.IsConfigured() {
		return nil, errors.New("SQL generation requires a configured reasoner")
	}

	schemaContext, err := g.schema.Context(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build schema context")
	}

	userPrompt := fmt.Sprintf("Schema:\n%s\nQuestion: %s", schemaContext, question)
	if simplifyHint != "" {
		userPrompt += "\n\nThe previous attempt failed: " + simplifyHint +
			"\nWrite a simpler query that still answers the core question."
	}

	resp, err := g.reasoner.Chat(ctx, reasoner.ChatRequest{
		SystemPrompt: generatorSystemPrompt,
		UserPrompt:   userPrompt,
		JSONMode:     true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "SQL generation failed")
	}

	var generated Generated
	if err := reasoner.DecodeJSON(resp.Content, &generated); err != nil {
		return nil, errors.Wrap(err, "model returned unusable SQL payload")
	}

	generated.SQL = strings.TrimSpace(generated.SQL)
	if generated.SQL == "" {
		return nil, errors.New("model returned empty SQL")
	}

	g.logger.Debugw("SQL generated",
		"question", question,
		"simplified", simplifyHint != "",
		"sql_length", len(generated.SQL),
	)
	return &generated, nil
}
