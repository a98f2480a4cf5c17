package sqlguard

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestValidator() *Validator {
	return NewValidator(DefaultLimits(), nil)
}

func TestValidateAcceptsSimpleSelect(t *testing.T) {
	report := newTestValidator().Validate("SELECT id, amount FROM sales WHERE amount > 100")

	assert.True(t, report.Valid)
	assert.False(t, report.HardFailure)
	assert.True(t, report.Checks.NonEmpty)
	assert.True(t, report.Checks.ForbiddenKeywords)
	assert.True(t, report.Checks.OnlySelect)
	assert.True(t, report.Checks.SingleStatement)
	assert.True(t, report.Checks.DangerousPatterns)
	assert.True(t, report.Checks.Complexity)
	assert.Empty(t, report.Errors)
}

func TestValidateEmptyStatement(t *testing.T) {
	report := newTestValidator().Validate("   \n\t ")

	assert.False(t, report.Valid)
	assert.True(t, report.HardFailure)
	assert.False(t, report.Checks.NonEmpty)
}

func TestValidateForbiddenKeywords(t *testing.T) {
	v := newTestValidator()

	cases := []struct {
		sql     string
		keyword string
	}{
		{"DELETE FROM sales", "delete"},
		{"SELECT * FROM sales; DROP TABLE sales", "drop"},
		{"SELECT * FROM users WHERE name = x; EXEC sp_evil", "exec"},
		{"UPDATE sales SET amount = 0", "update"},
		{"TRUNCATE TABLE audit_log", "truncate"},
	}
	for _, tc := range cases {
		report := v.Validate(tc.sql)
		assert.False(t, report.Valid, tc.sql)
		assert.True(t, report.HardFailure, tc.sql)
		assert.Contains(t, report.ForbiddenKeywords, tc.keyword, tc.sql)
	}
}

func TestValidateForbiddenKeywordsWholeWordOnly(t *testing.T) {
	// Substrings of forbidden verbs inside identifiers must not trip the check.
	report := newTestValidator().Validate("SELECT created_at, updated_at FROM deliveries")
	assert.True(t, report.Checks.ForbiddenKeywords, "identifiers containing keyword substrings are fine")
}

func TestValidateCaseAndCommentsCannotHide(t *testing.T) {
	v := newTestValidator()

	report := v.Validate("SeLeCt * FROM sales; DrOp TABLE sales")
	assert.Contains(t, report.ForbiddenKeywords, "drop")

	report = v.Validate("SELECT * FROM sales WHERE id = 1; -- comment\nDROP TABLE sales")
	assert.False(t, report.Valid)
	assert.True(t, report.HardFailure)
}

func TestValidateOnlySelect(t *testing.T) {
	v := newTestValidator()

	report := v.Validate("WITH t AS (SELECT 1) SELECT * FROM t")
	assert.False(t, report.Checks.OnlySelect, "statements must start with SELECT")
	assert.True(t, report.HardFailure)

	report = v.Validate("PRAGMA table_info(sales)")
	assert.False(t, report.Checks.OnlySelect)
}

func TestValidateSingleStatement(t *testing.T) {
	v := newTestValidator()

	report := v.Validate("SELECT 1; SELECT 2")
	assert.False(t, report.Checks.SingleStatement)
	assert.True(t, report.HardFailure)

	// A trailing semicolon is harmless.
	report = v.Validate("SELECT 1;")
	assert.True(t, report.Checks.SingleStatement)
}

func TestValidateDangerousPatterns(t *testing.T) {
	v := newTestValidator()

	cases := []string{
		"SELECT * FROM sales WHERE id = 1; -- AND secret",
		"SELECT name FROM users UNION ALL SELECT password FROM admins",
		"SELECT * FROM xp_cmdshell",
		"SELECT 1 WAITFOR DELAY '0:0:5'",
		"SELECT sleep(10)",
		"SELECT pg_sleep(10)",
		"SELECT benchmark(1000000, md5('x'))",
	}
	for _, sql := range cases {
		report := v.Validate(sql)
		assert.False(t, report.Checks.DangerousPatterns, sql)
		assert.True(t, report.HardFailure, sql)
	}
}

func TestValidateAllChecksRunOnFailure(t *testing.T) {
	// A statement failing an early check must still be measured by the rest.
	report := newTestValidator().Validate("DELETE FROM sales WHERE id = 1 AND region = 'eu'")

	assert.False(t, report.Valid)
	assert.Contains(t, report.ForbiddenKeywords, "delete")
	assert.False(t, report.Checks.OnlySelect)
	assert.Equal(t, 2, report.Complexity.Conditions, "complexity is still measured")
}

func TestValidateComplexityCeilings(t *testing.T) {
	v := NewValidator(Limits{MaxJoins: 2, MaxConditions: 3, MaxSubqueries: 1}, nil)

	t.Run("join ceiling", func(t *testing.T) {
		atLimit := "SELECT * FROM a JOIN b ON a.id = b.id JOIN c ON b.id = c.id"
		report := v.Validate(atLimit)
		assert.True(t, report.Valid, "exactly at the ceiling passes")

		overLimit := atLimit + " JOIN d ON c.id = d.id"
		report = v.Validate(overLimit)
		assert.False(t, report.Valid)
		assert.False(t, report.HardFailure, "complexity overruns are soft failures")
		assert.False(t, report.Checks.Complexity)
		assert.Equal(t, 3, report.Complexity.Joins)
	})

	t.Run("condition ceiling", func(t *testing.T) {
		report := v.Validate("SELECT * FROM a WHERE x = 1 AND y = 2 AND z = 3 AND w = 4")
		assert.False(t, report.Valid)
		assert.False(t, report.HardFailure)
		assert.Equal(t, 4, report.Complexity.Conditions)
	})

	t.Run("subquery ceiling", func(t *testing.T) {
		report := v.Validate("SELECT * FROM a WHERE x IN (SELECT id FROM b WHERE y IN (SELECT id FROM c))")
		assert.False(t, report.Valid)
		assert.False(t, report.HardFailure)
		assert.Equal(t, 2, report.Complexity.Subqueries)
	})
}

func TestNormalize(t *testing.T) {
	normalized := Normalize("SELECT  *\n  FROM   Sales -- trailing\n/* block\ncomment */ WHERE id = 1")
	assert.Equal(t, "select * from sales where id = 1", normalized)
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("SELECT * FROM sales WHERE id = 42")
	b := Fingerprint("select *   from sales\nwhere id = 99")
	c := Fingerprint("SELECT * FROM customers WHERE id = 42")

	require.True(t, strings.HasPrefix(a, "sql:"))
	assert.Equal(t, a, b, "literal values and formatting must not change the key")
	assert.NotEqual(t, a, c, "different statements get different keys")

	d := Fingerprint("SELECT * FROM sales WHERE region = 'eu'")
	e := Fingerprint("SELECT * FROM sales WHERE region = 'us'")
	assert.Equal(t, d, e, "string literals are stripped")
}

func TestExtractTables(t *testing.T) {
	cases := []struct {
		sql  string
		want []string
	}{
		{"SELECT * FROM sales", []string{"sales"}},
		{"SELECT * FROM Sales s JOIN Customers c ON s.cid = c.id", []string{"customers", "sales"}},
		{"SELECT * FROM sales, customers WHERE sales.cid = customers.id", []string{"customers", "sales"}},
		{"SELECT * FROM orders o LEFT JOIN products p ON o.pid = p.id WHERE o.total > 10", []string{"orders", "products"}},
		{"SELECT * FROM report_2024 AS r", []string{"report_2024"}},
		{"SELECT x FROM (SELECT x FROM inner_table) t", []string{"inner_table"}},
		{"SELECT * FROM main.sales", []string{"sales"}},
		{"SELECT * FROM main.sales s JOIN main.customers c ON s.cid = c.id", []string{"customers", "sales"}},
		{"SELECT 1", nil},
	}
	for _, tc := range cases {
		got := ExtractTables(tc.sql)
		if tc.want == nil {
			assert.Empty(t, got, tc.sql)
		} else {
			assert.Equal(t, tc.want, got, tc.sql)
		}
	}
}
