package graph

import (
	"github.com/halcyondata/askdb/access"
	"github.com/halcyondata/askdb/executor"
	"github.com/halcyondata/askdb/fallback"
	"github.com/halcyondata/askdb/gen"
	"github.com/halcyondata/askdb/router"
	"github.com/halcyondata/askdb/sqlguard"
)

// ErrorRecord captures a failure raised by a node. Its presence redirects
// traversal to the fallback handler; the handler clears it once a recovery
// decision is made.
type ErrorRecord struct {
	Component string
	Message   string
}

// State is the full record of one request moving through the graph. Each
// request owns its State; nodes mutate it in place and traversal is strictly
// sequential, so no locking is needed.
type State struct {
	RequestID string
	UserID    string
	Query     string

	Route   router.Route
	Routing *router.Decision

	SchemaContext string
	SQL           string
	Explanation   string
	Validation    *sqlguard.Report
	Access        *access.Decision
	Result        *executor.Result
	Summary       string

	Err          *ErrorRecord
	Recovery     *fallback.Decision
	FallbackRuns int
	SimplifyHint string

	Response *gen.Response
	Trace    []string
}

// NewState starts a request record with a fresh id.
func NewState(userID, query string) *State {
	return &State{
		RequestID: gen.NewRequestID(),
		UserID:    userID,
		Query:     query,
	}
}

func (s *State) fail(component, message string) {
	s.Err = &ErrorRecord{Component: component, Message: message}
}

// clearAnalytics drops generation artifacts so a retry starts clean.
func (s *State) clearAnalytics() {
	s.SQL = ""
	s.Explanation = ""
	s.Summary = ""
	s.Validation = nil
	s.Access = nil
	s.Result = nil
}
