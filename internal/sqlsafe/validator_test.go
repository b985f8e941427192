package sqlsafe

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/WebDbChat/internal/engine"
	apperrors "github.com/JonMunkholm/WebDbChat/internal/errors"
)

func assertRejected(t *testing.T, v *Validator, sql, reason string) {
	t.Helper()
	_, err := v.Validate(sql)
	require.Error(t, err, "sql %q", sql)
	assert.True(t, apperrors.IsKind(err, apperrors.KindUnsafeStatement), "sql %q", sql)
	assert.Equal(t, reason, apperrors.ReasonOf(err), "sql %q", sql)
}

func TestValidateAcceptsSelects(t *testing.T) {
	v := NewValidator(engine.Postgres)
	for _, sql := range []string{
		"SELECT name FROM users;",
		"SELECT name FROM users",
		"select u.name, count(o.id) from users u join orders o on o.user_id = u.id group by u.name having count(o.id) > 2;",
		"SELECT * FROM orders WHERE status = 'deleted_by_user';",
		"SELECT updated_at, created_at FROM audit;",
		"SELECT COUNT(*) FROM t WHERE id IN (SELECT t_id FROM x);",
		"SELECT CAST(price AS DECIMAL(10, 2)) FROM items;",
		"SELECT EXTRACT(YEAR FROM created_at) FROM orders;",
		"SELECT DATE_TRUNC('month', created_at), SUM(total) FROM orders GROUP BY 1;",
		"WITH recent AS (SELECT id FROM orders WHERE created_at > '2024-01-01') SELECT COUNT(*) FROM recent;",
		"(SELECT 1) UNION (SELECT 2);",
		"SELECT \"Name\" FROM \"Users\";",
		"SELECT * FROM t WHERE EXISTS (SELECT 1 FROM u WHERE u.id = t.id);",
		"SELECT * FROM a JOIN b USING (id) LIMIT 10 OFFSET 5;",
	} {
		stmt, err := v.Validate(sql)
		require.NoError(t, err, "sql %q", sql)
		assert.Equal(t, sql, stmt.String())
		assert.Equal(t, engine.Postgres, stmt.Engine())
	}
}

func TestValidateBlockedKeywordsAnyCase(t *testing.T) {
	v := NewValidator(engine.Postgres)
	for _, kw := range blockedKeywords {
		for _, variant := range []string{strings.ToUpper(kw), strings.ToLower(kw), strings.ToUpper(kw[:1]) + strings.ToLower(kw[1:])} {
			sql := "SELECT a FROM t WHERE note = '" + variant + "';"
			assertRejected(t, v, sql, ReasonBlockedKeyword)
		}
	}
}

func TestValidateBlocklistIsWholeWord(t *testing.T) {
	v := NewValidator(engine.MySQL)
	_, err := v.Validate("SELECT dropped_count, last_updated, creator, settings FROM stats;")
	assert.NoError(t, err)
}

func TestValidateRejections(t *testing.T) {
	v := NewValidator(engine.Postgres)

	tests := []struct {
		name   string
		sql    string
		reason string
	}{
		{"stacked drop", "SELECT * FROM users; DROP TABLE users;", ReasonMultipleStatements},
		{"stacked select", "SELECT 1; SELECT 2", ReasonMultipleStatements},
		{"double terminator", "SELECT 1;;", ReasonMultipleStatements},
		{"drop", "DROP TABLE users;", ReasonNotSelect},
		{"delete", "DELETE FROM users;", ReasonNotSelect},
		{"with delete", "WITH x AS (SELECT 1) DELETE FROM users;", ReasonNotSelect},
		{"line comment", "SELECT 1 -- hi", ReasonComment},
		{"block comment", "SELECT /* x */ 1;", ReasonComment},
		{"select into", "SELECT * INTO backup FROM users;", ReasonBlockedKeyword},
		{"for update", "SELECT * FROM users FOR UPDATE;", ReasonBlockedKeyword},
		{"role", "SELECT pg_has_role('admin', 'member') AS role;", ReasonBlockedKeyword},
		{"sleep", "SELECT pg_sleep(10);", ReasonFunctionNotAllowed},
		{"qualified function", "SELECT pg_catalog.count(*) FROM t;", ReasonFunctionNotAllowed},
		{"read file", "SELECT pg_read_file('/etc/passwd');", ReasonFunctionNotAllowed},
		{"unterminated", "SELECT 'abc FROM t;", ReasonParse},
		{"empty", ";", ReasonEmpty},
		{"blank", "   ", ReasonEmpty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertRejected(t, v, tt.sql, tt.reason)
		})
	}
}

func TestValidateEngineSpecificFunctions(t *testing.T) {
	_, err := NewValidator(engine.MySQL).Validate("SELECT DATE_FORMAT(created_at, '%Y-%m') FROM orders;")
	assert.NoError(t, err)
	_, err = NewValidator(engine.SQLite).Validate("SELECT strftime('%Y', created_at) FROM orders;")
	assert.NoError(t, err)

	assertRejected(t, NewValidator(engine.Postgres), "SELECT DATE_FORMAT(created_at, '%Y') FROM orders;", ReasonFunctionNotAllowed)
	assertRejected(t, NewValidator(engine.MySQL), "SELECT SLEEP(5);", ReasonFunctionNotAllowed)
	assertRejected(t, NewValidator(engine.MySQL), "SELECT BENCHMARK(1000000, MD5('a'));", ReasonFunctionNotAllowed)
}

func TestValidateMySQLHashComment(t *testing.T) {
	assertRejected(t, NewValidator(engine.MySQL), "SELECT 1 # trailing", ReasonComment)
}

func TestValidateReportsKeyword(t *testing.T) {
	_, err := NewValidator(engine.Postgres).Validate("SELECT * FROM t WHERE x = 'truncate';")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRUNCATE")
}

func TestAllowedFunctionsSorted(t *testing.T) {
	fns := NewValidator(engine.SQLite).AllowedFunctions()
	assert.True(t, sortedStrings(fns))
	assert.Contains(t, fns, "JULIANDAY")
	assert.NotContains(t, fns, "DATE_TRUNC")
}

func sortedStrings(s []string) bool {
	for i := 1; i < len(s); i++ {
		if s[i-1] > s[i] {
			return false
		}
	}
	return true
}

func TestCleanThenValidate(t *testing.T) {
	var c Cleaner
	v := NewValidator(engine.SQLite)

	sql, err := c.Clean("```sql\nSEL name FR students WH grade > 90\n```")
	require.NoError(t, err)
	stmt, err := v.Validate(sql)
	require.NoError(t, err)
	assert.Equal(t, "SELECT name FROM students WHERE grade > 90;", stmt.String())
}

func TestValidatePostgresEscapeStrings(t *testing.T) {
	v := NewValidator(engine.Postgres)

	sql, err := Cleaner{}.Clean("```sql\nSELECT E'\\'' AS a, E'''$$E' AS b, pg_terminate_backend(pg_backend_pid()) AS c, $b$$b$ AS d;\n```")
	require.NoError(t, err)
	assertRejected(t, v, sql, ReasonFunctionNotAllowed)
	assertRejected(t, v, `SELECT 1,E'\''E'''$$E'pg_sleep(1)$b$$b$;`, ReasonFunctionNotAllowed)

	for _, sql := range []string{
		`SELECT E'it\'s' AS s FROM t;`,
		`SELECT e'a\\b' FROM t;`,
		`SELECT name FROM t WHERE code = E'\x41';`,
	} {
		_, err := v.Validate(sql)
		assert.NoError(t, err, "sql %q", sql)
	}
}

func TestValidatePostgresDollarQuoting(t *testing.T) {
	v := NewValidator(engine.Postgres)

	for _, sql := range []string{
		"SELECT $$pg_sleep(1)$$ AS s;",
		"SELECT $tag$ it's $$ quoted $tag$ AS s;",
		"SELECT name FROM t WHERE id = $1;",
	} {
		_, err := v.Validate(sql)
		assert.NoError(t, err, "sql %q", sql)
	}

	assertRejected(t, v, "SELECT $a$ open;", ReasonParse)
	assertRejected(t, v, "SELECT $a$x$a$, pg_sleep(1);", ReasonFunctionNotAllowed)
}

func TestValidateDialectQuoting(t *testing.T) {
	// Standard Postgres strings do not treat backslash as an escape.
	assertRejected(t, NewValidator(engine.Postgres), `SELECT 'it\'s' FROM t;`, ReasonParse)

	mysql := NewValidator(engine.MySQL)
	for _, sql := range []string{
		`SELECT 'it\'s' FROM t;`,
		`SELECT "sleep(1)" FROM t;`,
		"SELECT `count` FROM t;",
	} {
		_, err := mysql.Validate(sql)
		assert.NoError(t, err, "sql %q", sql)
	}
	assertRejected(t, mysql, `SELECT 'a\\', SLEEP(1) FROM t;`, ReasonFunctionNotAllowed)

	_, err := NewValidator(engine.SQLite).Validate("SELECT [order] FROM t;")
	assert.NoError(t, err)
	assertRejected(t, NewValidator(engine.Postgres), `SELECT "pg_sleep"(1);`, ReasonFunctionNotAllowed)
}
