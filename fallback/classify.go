package fallback

import "strings"

// Kind categorizes a pipeline failure.
type Kind string

const (
	KindSQLError     Kind = "sql_error"
	KindTimeout      Kind = "timeout"
	KindNetworkError Kind = "network_error"
	KindAccessDenied Kind = "access_denied"
	KindDataNotFound Kind = "data_not_found"
	KindValidation   Kind = "validation_error"
	KindUnknown      Kind = "unknown_error"
)

// Classify maps an error message onto a Kind by keyword. First match wins;
// the ordering here is deliberate (an "sql timeout" is an SQL error first).
func Classify(message string) Kind {
	msg := strings.ToLower(message)

	switch {
	case strings.Contains(msg, "sql") || strings.Contains(msg, "syntax"):
		return KindSQLError
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out"):
		return KindTimeout
	case strings.Contains(msg, "connection") || strings.Contains(msg, "network"):
		return KindNetworkError
	case strings.Contains(msg, "auth") || strings.Contains(msg, "access") || strings.Contains(msg, "permission"):
		return KindAccessDenied
	case strings.Contains(msg, "not found") || strings.Contains(msg, "no data"):
		return KindDataNotFound
	case strings.Contains(msg, "validation") || strings.Contains(msg, "invalid"):
		return KindValidation
	default:
		return KindUnknown
	}
}
