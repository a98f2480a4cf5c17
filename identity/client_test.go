package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyondata/askdb/errors"
)

func newTestClient(serverURL string, maxRetries int) *Client {
	c := NewClient(Config{
		BaseURL:    serverURL,
		Token:      "svc-token",
		MaxRetries: maxRetries,
		RetryDelay: time.Millisecond,
	})
	c.SetHTTPClient(http.DefaultClient)
	return c
}

func TestRolesFor(t *testing.T) {
	t.Run("returns roles", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/users/alice/roles", r.URL.Path)
			assert.Equal(t, "Bearer svc-token", r.Header.Get("Authorization"))
			w.Write([]byte(`{"roles":["analyst","viewer"]}`))
		}))
		defer server.Close()

		client := newTestClient(server.URL, 1)
		roles, err := client.RolesFor(context.Background(), "alice")
		require.NoError(t, err)
		assert.Equal(t, []string{"analyst", "viewer"}, roles)
	})

	t.Run("unknown user is not found", func(t *testing.T) {
		calls := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			http.Error(w, "no such user", http.StatusNotFound)
		}))
		defer server.Close()

		client := newTestClient(server.URL, 3)
		_, err := client.RolesFor(context.Background(), "ghost")
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrNotFound))
		assert.Equal(t, 1, calls, "definitive answers are not retried")
	})

	t.Run("rejected token is unauthorized", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad token", http.StatusUnauthorized)
		}))
		defer server.Close()

		client := newTestClient(server.URL, 3)
		_, err := client.RolesFor(context.Background(), "alice")
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrUnauthorized))
	})

	t.Run("retries transient failures", func(t *testing.T) {
		calls := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			if calls < 3 {
				http.Error(w, "overloaded", http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte(`{"roles":["admin"]}`))
		}))
		defer server.Close()

		client := newTestClient(server.URL, 3)
		roles, err := client.RolesFor(context.Background(), "alice")
		require.NoError(t, err)
		assert.Equal(t, []string{"admin"}, roles)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client := newTestClient(server.URL, 2)
		_, err := client.RolesFor(context.Background(), "alice")
		require.Error(t, err)
		assert.Equal(t, 2, calls)
	})
}
