package sqlguard

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	lineCommentRe  = regexp.MustCompile(`(?m)--.*?$`)
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
	whitespaceRe   = regexp.MustCompile(`\s+`)
	stringLitRe    = regexp.MustCompile(`'(?:[^']|'')*'`)
	numberLitRe    = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)
)

// Normalize lowercases a statement, strips comments, and collapses runs of
// whitespace. All validation checks run against the normalized form so that
// casing and comment tricks cannot hide anything from them.
func Normalize(sql string) string {
	normalized := strings.ToLower(sql)
	normalized = lineCommentRe.ReplaceAllString(normalized, "")
	normalized = blockCommentRe.ReplaceAllString(normalized, "")
	normalized = whitespaceRe.ReplaceAllString(normalized, " ")
	return strings.TrimSpace(normalized)
}

// Fingerprint derives a stable cache key for a statement: normalized text
// with string and numeric literals replaced by placeholders, hashed so that
// equivalent statements share a result cache slot.
func Fingerprint(sql string) string {
	normalized := Normalize(sql)
	normalized = stringLitRe.ReplaceAllString(normalized, "?")
	normalized = numberLitRe.ReplaceAllString(normalized, "?")

	sum := sha256.Sum256([]byte(normalized))
	return "sql:" + hex.EncodeToString(sum[:])
}
