package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/halcyondata/askdb/errors"
	"github.com/halcyondata/askdb/internal/httpclient"
)

// Chat posts incident notifications to a team chat webhook. Notifications
// are best-effort; a failed post is logged and swallowed.
type Chat struct {
	webhookURL string
	httpClient *httpclient.SaferClient
	logger     *zap.SugaredLogger
}

// ChatConfig holds webhook settings.
type ChatConfig struct {
	WebhookURL string
	Timeout    time.Duration
	Logger     *zap.SugaredLogger
}

// NewChat creates a chat notifier. An empty WebhookURL disables it.
func NewChat(cfg ChatConfig) *Chat {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Chat{
		webhookURL: cfg.WebhookURL,
		httpClient: httpclient.New(cfg.Timeout),
		logger:     logger,
	}
}

type chatField struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type chatBlock struct {
	Type   string      `json:"type"`
	Text   *chatField  `json:"text,omitempty"`
	Fields []chatField `json:"fields,omitempty"`
}

type chatPayload struct {
	Text   string      `json:"text"`
	Blocks []chatBlock `json:"blocks"`
}

// NotifyIncident posts an incident summary with its ticket id. Errors are
// logged, never returned: chat outages must not affect request handling.
func (c *Chat) NotifyIncident(ctx context.Context, incident Incident, ticketID string) {
	if c.webhookURL == "" {
		return
	}

	headline := fmt.Sprintf("%s encountered an error", incident.Component)
	if incident.Recurring {
		headline = fmt.Sprintf("RECURRING error in %s", incident.Component)
	}

	payload := chatPayload{
		Text: ":fire: *Critical System Error* :fire:",
		Blocks: []chatBlock{
			{Type: "section", Text: &chatField{Type: "mrkdwn", Text: "*" + headline + "*"}},
			{Type: "section", Fields: []chatField{
				{Type: "mrkdwn", Text: "*Kind:*\n" + incident.Kind},
				{Type: "mrkdwn", Text: "*Ticket:*\n" + ticketID},
				{Type: "mrkdwn", Text: "*Message:*\n" + incident.Message},
			}},
		},
	}

	if err := c.post(ctx, payload); err != nil {
		c.logger.Errorw("Chat notification failed", "error", err, "ticket", ticketID)
	}
}

func (c *Chat) post(ctx context.Context, payload chatPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal chat payload")
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to create chat request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "chat webhook request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return errors.Newf("chat webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// SetHTTPClient allows overriding the HTTP client for testing.
func (c *Chat) SetHTTPClient(client *http.Client) {
	c.httpClient = httpclient.WrapClient(client)
}
