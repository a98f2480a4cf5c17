package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/halcyondata/askdb/errors"
	"github.com/halcyondata/askdb/internal/httpclient"
)

// Incident describes a failure that needs human attention.
type Incident struct {
	Component string
	Kind      string
	Message   string
	UserQuery string
	Priority  string
	Recurring bool
}

// Ticketer opens incidents in an external issue tracker. Tracker outages
// must never take the pipeline down, so a failed create still yields a
// synthetic incident id the user can quote to support.
type Ticketer struct {
	baseURL    string
	user       string
	token      string
	project    string
	httpClient *httpclient.SaferClient
	logger     *zap.SugaredLogger
	now        func() time.Time
}

// TicketerConfig holds issue tracker connection settings.
type TicketerConfig struct {
	BaseURL string
	User    string
	Token   string
	Project string
	Timeout time.Duration
	Logger  *zap.SugaredLogger
}

// NewTicketer creates a ticketer. An empty BaseURL disables ticket creation;
// OpenIncident then returns synthetic ids immediately.
func NewTicketer(cfg TicketerConfig) *Ticketer {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Ticketer{
		baseURL:    cfg.BaseURL,
		user:       cfg.User,
		token:      cfg.Token,
		project:    cfg.Project,
		httpClient: httpclient.New(cfg.Timeout),
		logger:     logger,
		now:        time.Now,
	}
}

type issueFields struct {
	Project   map[string]string `json:"project"`
	Summary   string            `json:"summary"`
	Desc      string            `json:"description"`
	IssueType map[string]string `json:"issuetype"`
	Priority  map[string]string `json:"priority"`
	Labels    []string          `json:"labels"`
}

type issuePayload struct {
	Fields issueFields `json:"fields"`
}

type issueCreated struct {
	Key string `json:"key"`
}

// OpenIncident files a ticket for the incident and returns its id. On any
// failure a synthetic "FAILED-<timestamp>" id is returned instead of an
// error so callers can still surface something to the user.
func (t *Ticketer) OpenIncident(ctx context.Context, incident Incident) string {
	if t.baseURL == "" {
		return t.syntheticID()
	}

	priority := incident.Priority
	if priority == "" {
		priority = "High"
	}
	summary := fmt.Sprintf("[askdb] %s error: %s", incident.Component, incident.Kind)
	if incident.Recurring {
		summary = "[askdb] RECURRING " + summary[len("[askdb] "):]
	}

	payload := issuePayload{Fields: issueFields{
		Project:   map[string]string{"key": t.project},
		Summary:   summary,
		Desc:      t.describe(incident),
		IssueType: map[string]string{"name": "Bug"},
		Priority:  map[string]string{"name": priority},
		Labels:    []string{"askdb", "fallback"},
	}}

	key, err := t.create(ctx, payload)
	if err != nil {
		t.logger.Errorw("Ticket creation failed", "error", err, "component", incident.Component)
		return t.syntheticID()
	}

	t.logger.Infow("Incident ticket opened", "ticket", key, "component", incident.Component, "kind", incident.Kind)
	return key
}

func (t *Ticketer) create(ctx context.Context, payload issuePayload) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal issue payload")
	}

	req, err := http.NewRequestWithContext(ctx, "POST", t.baseURL+"/rest/api/2/issue", bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "failed to create issue request")
	}
	req.SetBasicAuth(t.user, t.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "issue tracker request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", errors.Newf("issue tracker returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var created issueCreated
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", errors.Wrap(err, "failed to decode issue response")
	}
	if created.Key == "" {
		return "", errors.New("issue tracker returned empty key")
	}
	return created.Key, nil
}

func (t *Ticketer) describe(incident Incident) string {
	return fmt.Sprintf(
		"Component: %s\nError kind: %s\nMessage: %s\n\nUser query:\n%s\n",
		incident.Component, incident.Kind, incident.Message, incident.UserQuery,
	)
}

func (t *Ticketer) syntheticID() string {
	return fmt.Sprintf("FAILED-%d", t.now().Unix())
}

// SetHTTPClient allows overriding the HTTP client for testing.
func (t *Ticketer) SetHTTPClient(client *http.Client) {
	t.httpClient = httpclient.WrapClient(client)
}
