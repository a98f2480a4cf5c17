package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenIncident(t *testing.T) {
	t.Run("creates ticket", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/rest/api/2/issue", r.URL.Path)
			user, token, ok := r.BasicAuth()
			require.True(t, ok)
			assert.Equal(t, "bot", user)
			assert.Equal(t, "secret", token)

			var payload issuePayload
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, "OPS", payload.Fields.Project["key"])
			assert.Contains(t, payload.Fields.Summary, "db_executor")

			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"key":"OPS-123"}`))
		}))
		defer server.Close()

		ticketer := NewTicketer(TicketerConfig{
			BaseURL: server.URL,
			User:    "bot",
			Token:   "secret",
			Project: "OPS",
		})
		ticketer.SetHTTPClient(http.DefaultClient)

		id := ticketer.OpenIncident(context.Background(), Incident{
			Component: "db_executor",
			Kind:      "timeout",
			Message:   "query timed out",
		})
		assert.Equal(t, "OPS-123", id)
	})

	t.Run("tracker failure yields synthetic id", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "tracker down", http.StatusBadGateway)
		}))
		defer server.Close()

		ticketer := NewTicketer(TicketerConfig{BaseURL: server.URL, Project: "OPS"})
		ticketer.SetHTTPClient(http.DefaultClient)

		id := ticketer.OpenIncident(context.Background(), Incident{Component: "db_executor", Kind: "timeout"})
		assert.True(t, strings.HasPrefix(id, "FAILED-"), "got %s", id)
	})

	t.Run("unconfigured tracker yields synthetic id", func(t *testing.T) {
		ticketer := NewTicketer(TicketerConfig{})
		id := ticketer.OpenIncident(context.Background(), Incident{Component: "router"})
		assert.True(t, strings.HasPrefix(id, "FAILED-"))
	})
}

func TestNotifyIncident(t *testing.T) {
	t.Run("posts incident blocks", func(t *testing.T) {
		received := make(chan chatPayload, 1)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var payload chatPayload
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			received <- payload
		}))
		defer server.Close()

		chat := NewChat(ChatConfig{WebhookURL: server.URL})
		chat.SetHTTPClient(http.DefaultClient)

		chat.NotifyIncident(context.Background(), Incident{
			Component: "db_executor",
			Kind:      "network_error",
			Message:   "connection refused",
			Recurring: true,
		}, "OPS-9")

		payload := <-received
		require.Len(t, payload.Blocks, 2)
		assert.Contains(t, payload.Blocks[0].Text.Text, "RECURRING")
		assert.Contains(t, payload.Blocks[1].Fields[1].Text, "OPS-9")
	})

	t.Run("webhook failure does not panic or block", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusInternalServerError)
		}))
		defer server.Close()

		chat := NewChat(ChatConfig{WebhookURL: server.URL})
		chat.SetHTTPClient(http.DefaultClient)
		chat.NotifyIncident(context.Background(), Incident{Component: "router"}, "OPS-1")
	})

	t.Run("unconfigured webhook is a no-op", func(t *testing.T) {
		chat := NewChat(ChatConfig{})
		chat.NotifyIncident(context.Background(), Incident{}, "OPS-1")
	})
}

func TestLoadRules(t *testing.T) {
	t.Run("parses rules file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "alerts.yaml")
		content := `
rules:
  - id: timeouts
    kind: timeout
    threshold: 5
    priority: Medium
  - id: everything-else
    kind: "*"
    threshold: 3
    priority: High
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		rules, err := LoadRules(path)
		require.NoError(t, err)
		require.Len(t, rules, 2)
		assert.Equal(t, "timeout", rules[0].Kind)
		assert.Equal(t, 5, rules[0].Threshold)

		rule := RuleFor(rules, "timeout")
		require.NotNil(t, rule)
		assert.Equal(t, "timeouts", rule.ID)

		rule = RuleFor(rules, "network_error")
		require.NotNil(t, rule)
		assert.Equal(t, "everything-else", rule.ID)
	})

	t.Run("missing file yields no rules", func(t *testing.T) {
		rules, err := LoadRules("/nonexistent/alerts.yaml")
		require.NoError(t, err)
		assert.Nil(t, rules)
	})

	t.Run("empty path yields no rules", func(t *testing.T) {
		rules, err := LoadRules("")
		require.NoError(t, err)
		assert.Nil(t, rules)
	})

	t.Run("rule without kind is rejected", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("rules:\n  - id: x\n    threshold: 1\n"), 0o644))

		_, err := LoadRules(path)
		assert.Error(t, err)
	})
}
