package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/halcyondata/askdb/errors"
	"github.com/halcyondata/askdb/internal/httpclient"
	"github.com/halcyondata/askdb/internal/retry"
)

// Client talks to the identity service that maps user ids to roles.
type Client struct {
	baseURL    string
	token      string
	httpClient *httpclient.SaferClient
	policy     retry.Policy
	logger     *zap.SugaredLogger
}

// Config holds identity service connection settings.
type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.SugaredLogger
}

type rolesResponse struct {
	Roles []string `json:"roles"`
}

// NewClient creates an identity client with bounded retry on transient
// failures.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		httpClient: httpclient.New(cfg.Timeout),
		policy: retry.Policy{
			MaxAttempts: cfg.MaxRetries,
			Backoff:     retry.Fixed(cfg.RetryDelay),
			Retryable: func(err error) bool {
				// 404 and 401 are definitive answers; everything else
				// (network failures, 5xx) is worth another attempt.
				return !errors.Is(err, errors.ErrNotFound) && !errors.Is(err, errors.ErrUnauthorized)
			},
		},
		logger: logger,
	}
}

// RolesFor returns the roles held by userID. Unknown users yield
// errors.ErrNotFound; a rejected service token yields errors.ErrUnauthorized.
func (c *Client) RolesFor(ctx context.Context, userID string) ([]string, error) {
	var roles []string

	err := c.policy.Do(ctx, func(ctx context.Context) error {
		fetched, err := c.fetchRoles(ctx, userID)
		if err != nil {
			c.logger.Warnw("Role lookup failed", "user_id", userID, "error", err)
			return err
		}
		roles = fetched
		return nil
	})
	if err != nil {
		return nil, err
	}
	return roles, nil
}

// SetHTTPClient allows overriding the HTTP client for testing.
// Only use this in tests; production code keeps the default SSRF-safer client.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = httpclient.WrapClient(client)
}

func (c *Client) fetchRoles(ctx context.Context, userID string) ([]string, error) {
	url := fmt.Sprintf("%s/users/%s/roles", c.baseURL, userID)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create roles request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "identity service request failed")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, errors.Wrapf(errors.ErrNotFound, "user %s", userID)
	case http.StatusUnauthorized:
		return nil, errors.Wrap(errors.ErrUnauthorized, "identity service rejected token")
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Newf("identity service returned status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read roles response")
	}

	var parsed rolesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errors.Wrap(err, "failed to decode roles response")
	}
	return parsed.Roles, nil
}
