package gen

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/halcyondata/askdb/executor"
)

// ResponseType tells the caller how to render Content.
type ResponseType string

const (
	ResponseText  ResponseType = "text"
	ResponseTable ResponseType = "table"
	ResponseError ResponseType = "error"
)

// Response is the final answer returned to the user. Security-related
// failures never include the generated SQL; Content carries only what the
// user may see.
type Response struct {
	RequestID  string       `json:"request_id"`
	Type       ResponseType `json:"type"`
	Content    string       `json:"content"`
	Summary    string       `json:"summary,omitempty"`
	IncidentID string       `json:"incident_id,omitempty"`
	CacheHit   bool         `json:"cache_hit"`
	Warnings   []string     `json:"warnings,omitempty"`
}

// maxTableCells is the largest result rendered as a table; bigger results
// fall back to the summary text with a note.
const maxTableCells = 2000

// NewRequestID mints an id that ties a response to its log lines.
func NewRequestID() string {
	return uuid.NewString()
}

// FormatResult renders a query result for the user.
func FormatResult(requestID, summary string, result *executor.Result) Response {
	resp := Response{
		RequestID: requestID,
		Summary:   summary,
		CacheHit:  result.CacheHit,
		Warnings:  result.Warnings,
	}

	if result.RowCount == 0 {
		resp.Type = ResponseText
		resp.Content = summary
		return resp
	}

	if result.RowCount*len(result.Columns) > maxTableCells {
		resp.Type = ResponseText
		resp.Content = summary + "\n\nThe full result is too large to display; narrow the question to see the rows."
		return resp
	}

	resp.Type = ResponseTable
	resp.Content = markdownTable(result)
	return resp
}

// FormatError renders a failure. incidentID may be empty when no ticket was
// opened.
func FormatError(requestID, userMessage, incidentID string) Response {
	if userMessage == "" {
		userMessage = "A critical error occurred. Our team has been notified. Please try again later."
	}
	return Response{
		RequestID:  requestID,
		Type:       ResponseError,
		Content:    userMessage,
		IncidentID: incidentID,
	}
}

func markdownTable(result *executor.Result) string {
	var b strings.Builder

	b.WriteString("| ")
	b.WriteString(strings.Join(result.Columns, " | "))
	b.WriteString(" |\n|")
	for range result.Columns {
		b.WriteString(" --- |")
	}
	b.WriteString("\n")

	for _, row := range result.Rows {
		parts := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				parts[i] = ""
				continue
			}
			parts[i] = strings.ReplaceAll(fmt.Sprintf("%v", v), "|", `\|`)
		}
		b.WriteString("| ")
		b.WriteString(strings.Join(parts, " | "))
		b.WriteString(" |\n")
	}

	if result.Truncated {
		b.WriteString(fmt.Sprintf("\n_%d rows shown; the result was truncated._\n", result.RowCount))
	}
	return b.String()
}
