package gen

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyondata/askdb/ai/reasoner"
	"github.com/halcyondata/askdb/db"
	"github.com/halcyondata/askdb/errors"
	"github.com/halcyondata/askdb/executor"
)

type stubReasoner struct {
	content    string
	err        error
	configured bool
	lastPrompt string
}

func (s *stubReasoner) Chat(ctx context.Context, req reasoner.ChatRequest) (*reasoner.ChatResponse, error) {
	s.lastPrompt = req.UserPrompt
	if s.err != nil {
		return nil, s.err
	}
	return &reasoner.ChatResponse{Content: s.content}, nil
}

func (s *stubReasoner) IsConfigured() bool { return s.configured }

func newSchemaDB(t *testing.T) *SchemaProvider {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "schema.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	_, err = conn.Exec(`
		CREATE TABLE sales (id INTEGER PRIMARY KEY, amount REAL, region TEXT);
		CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT);
	`)
	require.NoError(t, err)

	return NewSchemaProvider(conn, time.Minute, nil)
}

func TestSchemaProviderContext(t *testing.T) {
	provider := newSchemaDB(t)

	context1, err := provider.Context(context.Background())
	require.NoError(t, err)

	assert.Contains(t, context1, "TABLE sales (")
	assert.Contains(t, context1, "amount REAL")
	assert.Contains(t, context1, "TABLE customers (")
	assert.True(t, strings.Index(context1, "customers") < strings.Index(context1, "sales"),
		"tables are listed in name order")
}

func TestSchemaProviderCaches(t *testing.T) {
	provider := newSchemaDB(t)
	ctx := context.Background()

	first, err := provider.Tables(ctx)
	require.NoError(t, err)
	require.Len(t, first, 2)

	// The cached copy is returned until invalidated, so the slice is
	// identical across calls.
	second, err := provider.Tables(ctx)
	require.NoError(t, err)
	assert.Same(t, &first[0], &second[0])

	provider.Invalidate()
	third, err := provider.Tables(ctx)
	require.NoError(t, err)
	assert.Len(t, third, 2)
}

func TestGenerate(t *testing.T) {
	ctx := context.Background()

	t.Run("returns generated SQL", func(t *testing.T) {
		stub := &stubReasoner{
			content:    `{"sql":"SELECT region, SUM(amount) FROM sales GROUP BY region","explanation":"totals by region"}`,
			configured: true,
		}
		g := NewGenerator(stub, newSchemaDB(t), nil)

		generated, err := g.Generate(ctx, "sales by region", "")
		require.NoError(t, err)
		assert.Contains(t, generated.SQL, "SUM(amount)")
		assert.Equal(t, "totals by region", generated.Explanation)
		assert.Contains(t, stub.lastPrompt, "TABLE sales", "schema context included in prompt")
	})

	t.Run("simplify hint lands in the prompt", func(t *testing.T) {
		stub := &stubReasoner{content: `{"sql":"SELECT 1","explanation":""}`, configured: true}
		g := NewGenerator(stub, newSchemaDB(t), nil)

		_, err := g.Generate(ctx, "sales by region", "too many joins (6 > 5)")
		require.NoError(t, err)
		assert.Contains(t, stub.lastPrompt, "too many joins")
		assert.Contains(t, stub.lastPrompt, "simpler query")
	})

	t.Run("empty SQL is an error", func(t *testing.T) {
		stub := &stubReasoner{content: `{"sql":"","explanation":"nothing"}`, configured: true}
		g := NewGenerator(stub, newSchemaDB(t), nil)

		_, err := g.Generate(ctx, "sales by region", "")
		assert.Error(t, err)
	})

	t.Run("unparseable payload is an error", func(t *testing.T) {
		stub := &stubReasoner{content: "here is your query: SELECT 1", configured: true}
		g := NewGenerator(stub, newSchemaDB(t), nil)

		_, err := g.Generate(ctx, "sales by region", "")
		assert.Error(t, err)
	})

	t.Run("unconfigured reasoner is an error", func(t *testing.T) {
		g := NewGenerator(&stubReasoner{}, newSchemaDB(t), nil)
		_, err := g.Generate(ctx, "sales by region", "")
		assert.Error(t, err)
	})
}

func TestSummarize(t *testing.T) {
	ctx := context.Background()
	result := &executor.Result{
		Columns:  []string{"region", "total"},
		Rows:     [][]interface{}{{"eu", 100.0}, {"us", 250.0}},
		RowCount: 2,
	}

	t.Run("empty result gets fixed answer without model call", func(t *testing.T) {
		stub := &stubReasoner{configured: true, content: "should not be used"}
		i := NewInterpreter(stub, nil)

		summary := i.Summarize(ctx, "sales by region", &executor.Result{Columns: []string{"region"}})
		assert.Contains(t, summary, "No data matched")
		assert.Empty(t, stub.lastPrompt)
	})

	t.Run("model summary is returned", func(t *testing.T) {
		stub := &stubReasoner{configured: true, content: "US leads with 250 in sales."}
		i := NewInterpreter(stub, nil)

		summary := i.Summarize(ctx, "sales by region", result)
		assert.Equal(t, "US leads with 250 in sales.", summary)
		assert.Contains(t, stub.lastPrompt, "eu | 100")
	})

	t.Run("model failure degrades to plain summary", func(t *testing.T) {
		stub := &stubReasoner{configured: true, err: errors.New("model down")}
		i := NewInterpreter(stub, nil)

		summary := i.Summarize(ctx, "sales by region", result)
		assert.Contains(t, summary, "2 rows")
		assert.Contains(t, summary, "region, total")
	})
}

func TestFormatResult(t *testing.T) {
	result := &executor.Result{
		Columns:  []string{"region", "total"},
		Rows:     [][]interface{}{{"eu", 100.0}, {"us", 250.0}},
		RowCount: 2,
		CacheHit: true,
	}

	resp := FormatResult("req-1", "US leads.", result)
	assert.Equal(t, ResponseTable, resp.Type)
	assert.True(t, resp.CacheHit)
	assert.Contains(t, resp.Content, "| region | total |")
	assert.Contains(t, resp.Content, "| eu | 100 |")
	assert.Equal(t, "US leads.", resp.Summary)
}

func TestFormatResultEmptyAndOversized(t *testing.T) {
	empty := &executor.Result{Columns: []string{"a"}}
	resp := FormatResult("req-1", "No data matched.", empty)
	assert.Equal(t, ResponseText, resp.Type)
	assert.Equal(t, "No data matched.", resp.Content)

	big := &executor.Result{
		Columns:  []string{"a", "b", "c", "d"},
		RowCount: 1000,
	}
	resp = FormatResult("req-1", "Lots of rows.", big)
	assert.Equal(t, ResponseText, resp.Type)
	assert.Contains(t, resp.Content, "too large")
}

func TestFormatResultTruncationNote(t *testing.T) {
	truncated := &executor.Result{
		Columns:   []string{"id"},
		Rows:      [][]interface{}{{1}, {2}},
		RowCount:  2,
		Truncated: true,
	}
	resp := FormatResult("req-1", "partial", truncated)
	assert.Contains(t, resp.Content, "truncated")
}

func TestFormatError(t *testing.T) {
	resp := FormatError("req-1", "", "OPS-7")
	assert.Equal(t, ResponseError, resp.Type)
	assert.Equal(t, "OPS-7", resp.IncidentID)
	assert.NotEmpty(t, resp.Content)

	resp = FormatError("req-1", "Access denied for this data.", "")
	assert.Equal(t, "Access denied for this data.", resp.Content)
	assert.NotContains(t, resp.Content, "SELECT", "no SQL leaks into error responses")
}

func TestNewRequestID(t *testing.T) {
	a := NewRequestID()
	b := NewRequestID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36)
}
