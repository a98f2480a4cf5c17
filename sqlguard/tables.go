package sqlguard

import (
	"regexp"
	"sort"
	"strings"
)

var (
	// The clause capture excludes parens so a derived table's inner FROM is
	// matched on its own instead of being swallowed by the outer clause.
	fromClauseRe = regexp.MustCompile(`\bfrom\s+([^()]*?)(?:\bwhere\b|\bgroup\s+by\b|\border\s+by\b|\bhaving\b|\blimit\b|\bunion\b|\)|;|$)`)
	joinTableRe  = regexp.MustCompile(`\bjoin\s+([a-z_][a-z0-9_.]*)`)
	identifierRe = regexp.MustCompile(`^[a-z_][a-z0-9_.]*$`)
)

// ExtractTables returns the distinct, case-folded table names a statement
// reads from, drawn from its FROM and JOIN clauses. Aliases are dropped;
// derived tables (subqueries in FROM) contribute their inner tables through
// their own FROM clauses. An unparseable statement yields an empty list,
// which access control treats as a denial.
func ExtractTables(sql string) []string {
	normalized := Normalize(sql)
	seen := make(map[string]struct{})

	for _, match := range fromClauseRe.FindAllStringSubmatch(normalized, -1) {
		clause := match[1]
		// JOINs are picked up separately; cut the clause at the first join
		// keyword so its table is not parsed as part of the FROM list.
		if idx := strings.Index(clause, " join "); idx >= 0 {
			clause = clause[:idx]
		}
		for _, part := range strings.Split(clause, ",") {
			name := tableName(part)
			if name != "" {
				seen[name] = struct{}{}
			}
		}
	}

	for _, match := range joinTableRe.FindAllStringSubmatch(normalized, -1) {
		if name := tableName(match[1]); name != "" {
			seen[name] = struct{}{}
		}
	}

	tables := make([]string, 0, len(seen))
	for name := range seen {
		tables = append(tables, name)
	}
	sort.Strings(tables)
	return tables
}

// tableName extracts the real table name from one FROM-list element,
// stripping an optional alias ("sales s" or "sales as s") and any schema
// qualifier ("db.sales"), so matrix entries match qualified references.
func tableName(part string) string {
	fields := strings.Fields(strings.TrimSpace(part))
	if len(fields) == 0 {
		return ""
	}
	name := fields[0]
	if !identifierRe.MatchString(name) {
		return ""
	}
	// Modifier keywords that can trail a join keyword ("left join x").
	switch name {
	case "select", "left", "right", "inner", "outer", "cross", "full", "natural", "lateral":
		return ""
	}
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}
	return name
}
