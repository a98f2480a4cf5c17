package sqlguard

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// forbiddenKeywords are statement verbs that must never appear anywhere in a
// query, matched as whole words against the normalized text.
var forbiddenKeywords = []string{
	"insert", "update", "delete", "drop", "truncate",
	"alter", "create", "grant", "revoke", "exec",
	"execute", "shutdown", "backup", "restore",
}

// dangerousPatterns are injection and exfiltration shapes checked over the
// normalized text.
var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`;\s*--`),
	regexp.MustCompile(`union\s+all`),
	regexp.MustCompile(`xp_cmdshell`),
	regexp.MustCompile(`waitfor\s+delay`),
	regexp.MustCompile(`\bdbcc\b`),
	regexp.MustCompile(`\.\./\.\./`),
	regexp.MustCompile(`\bsleep\s*\(`),
	regexp.MustCompile(`\bpg_sleep\s*\(`),
	regexp.MustCompile(`\bbenchmark\s*\(`),
}

var forbiddenKeywordRes = func() []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(forbiddenKeywords))
	for i, kw := range forbiddenKeywords {
		res[i] = regexp.MustCompile(`\b` + regexp.QuoteMeta(kw) + `\b`)
	}
	return res
}()

var (
	joinRe      = regexp.MustCompile(`\bjoin\b`)
	boolOpRe    = regexp.MustCompile(`\b(?:and|or)\b`)
	subqueryRe  = regexp.MustCompile(`\(\s*select\b`)
	functionRe  = regexp.MustCompile(`\b[a-z_][a-z0-9_]*\s*\(`)
	whereHaving = regexp.MustCompile(`\b(?:where|having)\b`)
)

// Limits are the complexity ceilings a statement may not exceed.
type Limits struct {
	MaxJoins      int
	MaxConditions int
	MaxSubqueries int
}

// DefaultLimits mirror the defaults in config/defaults.go.
func DefaultLimits() Limits {
	return Limits{MaxJoins: 5, MaxConditions: 10, MaxSubqueries: 2}
}

// Checks records the outcome of each validation check. Every check always
// runs; a failing check never prevents the later ones from reporting.
type Checks struct {
	NonEmpty          bool `json:"non_empty"`
	ForbiddenKeywords bool `json:"forbidden_keywords"`
	OnlySelect        bool `json:"only_select"`
	SingleStatement   bool `json:"single_statement"`
	DangerousPatterns bool `json:"dangerous_patterns"`
	Complexity        bool `json:"complexity"`
}

// Complexity holds the measured shape of a statement.
type Complexity struct {
	Joins      int `json:"joins"`
	Conditions int `json:"conditions"`
	Subqueries int `json:"subqueries"`
	Functions  int `json:"functions"`
}

// Report is the full validation outcome for one statement.
type Report struct {
	Valid             bool       `json:"is_valid"`
	HardFailure       bool       `json:"hard_failure"`
	Checks            Checks     `json:"checks"`
	ForbiddenKeywords []string   `json:"forbidden_keywords_found,omitempty"`
	DangerousMatches  []string   `json:"dangerous_patterns_found,omitempty"`
	Complexity        Complexity `json:"complexity"`
	Errors            []string   `json:"errors,omitempty"`
}

// Validator checks statements against the read-only safety policy.
type Validator struct {
	limits Limits
	logger *zap.SugaredLogger
}

// NewValidator creates a validator with the given complexity ceilings.
func NewValidator(limits Limits, logger *zap.SugaredLogger) *Validator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Validator{limits: limits, logger: logger}
}

// Validate runs every check against the statement and returns the combined
// report. Security and statement-shape failures are hard failures; exceeding
// a complexity ceiling is a soft failure that callers may route to query
// simplification instead of rejection.
func (v *Validator) Validate(sql string) Report {
	report := Report{}

	normalized := Normalize(sql)

	report.Checks.NonEmpty = normalized != ""
	if !report.Checks.NonEmpty {
		report.Errors = append(report.Errors, "empty SQL statement")
		report.HardFailure = true
	}

	for i, re := range forbiddenKeywordRes {
		if re.MatchString(normalized) {
			report.ForbiddenKeywords = append(report.ForbiddenKeywords, forbiddenKeywords[i])
		}
	}
	report.Checks.ForbiddenKeywords = len(report.ForbiddenKeywords) == 0
	if !report.Checks.ForbiddenKeywords {
		report.Errors = append(report.Errors,
			fmt.Sprintf("forbidden keywords found: %s", strings.Join(report.ForbiddenKeywords, ", ")))
		report.HardFailure = true
	}

	report.Checks.OnlySelect = strings.HasPrefix(normalized, "select")
	if report.Checks.NonEmpty && !report.Checks.OnlySelect {
		report.Errors = append(report.Errors, "only SELECT statements are allowed")
		report.HardFailure = true
	}

	report.Checks.SingleStatement = isSingleStatement(normalized)
	if report.Checks.NonEmpty && !report.Checks.SingleStatement {
		report.Errors = append(report.Errors, "multiple statements are not allowed")
		report.HardFailure = true
	}

	for _, re := range dangerousPatterns {
		if re.MatchString(normalized) {
			report.DangerousMatches = append(report.DangerousMatches, re.String())
		}
	}
	report.Checks.DangerousPatterns = len(report.DangerousMatches) == 0
	if !report.Checks.DangerousPatterns {
		report.Errors = append(report.Errors, "dangerous constructs found")
		report.HardFailure = true
	}

	report.Complexity = measureComplexity(normalized)
	report.Checks.Complexity = true
	if report.Complexity.Joins > v.limits.MaxJoins {
		report.Errors = append(report.Errors,
			fmt.Sprintf("too many joins (%d > %d)", report.Complexity.Joins, v.limits.MaxJoins))
		report.Checks.Complexity = false
	}
	if report.Complexity.Conditions > v.limits.MaxConditions {
		report.Errors = append(report.Errors,
			fmt.Sprintf("too many conditions (%d > %d)", report.Complexity.Conditions, v.limits.MaxConditions))
		report.Checks.Complexity = false
	}
	if report.Complexity.Subqueries > v.limits.MaxSubqueries {
		report.Errors = append(report.Errors,
			fmt.Sprintf("too many subqueries (%d > %d)", report.Complexity.Subqueries, v.limits.MaxSubqueries))
		report.Checks.Complexity = false
	}

	report.Valid = len(report.Errors) == 0

	if !report.Valid {
		v.logger.Debugw("SQL validation failed",
			"hard_failure", report.HardFailure,
			"errors", report.Errors,
		)
	}

	return report
}

// isSingleStatement rejects statements containing a semicolon that is
// followed by anything other than trailing whitespace.
func isSingleStatement(normalized string) bool {
	idx := strings.Index(normalized, ";")
	if idx < 0 {
		return true
	}
	return strings.TrimSpace(normalized[idx+1:]) == ""
}

func measureComplexity(normalized string) Complexity {
	c := Complexity{
		Joins:      len(joinRe.FindAllString(normalized, -1)),
		Subqueries: len(subqueryRe.FindAllString(normalized, -1)),
	}

	if whereHaving.MatchString(normalized) {
		c.Conditions = len(boolOpRe.FindAllString(normalized, -1)) + 1
	}

	// Function calls, excluding subquery parens counted above.
	for _, m := range functionRe.FindAllString(normalized, -1) {
		if strings.HasPrefix(strings.TrimSpace(m), "select") {
			continue
		}
		c.Functions++
	}

	return c
}
