package sqlsafe

import (
	"regexp"
	"sort"
	"strings"

	"github.com/JonMunkholm/WebDbChat/internal/engine"
	apperrors "github.com/JonMunkholm/WebDbChat/internal/errors"
)

// Rejection reasons carried on UnsafeStatement errors.
const (
	ReasonParse              = "parse_error"
	ReasonEmpty              = "empty_statement"
	ReasonMultipleStatements = "multiple_statements"
	ReasonComment            = "comment"
	ReasonNotSelect          = "not_select"
	ReasonBlockedKeyword     = "blocked_keyword"
	ReasonFunctionNotAllowed = "function_not_allowed"
)

var blockedKeywords = []string{
	"DROP", "DELETE", "TRUNCATE", "UPDATE", "INSERT", "ALTER", "CREATE",
	"RENAME", "REPLACE", "MERGE", "GRANT", "REVOKE", "PROCEDURE", "FUNCTION",
	"TRIGGER", "INTO", "OUTFILE", "DUMPFILE", "LOAD_FILE", "LOAD", "COPY",
	"CALL", "EXEC", "EXECUTE", "ATTACH", "DETACH", "PRAGMA", "VACUUM",
	"HANDLER", "LOCK", "UNLOCK", "SHUTDOWN", "KILL", "SET", "ROLE",
}

var blockedPattern = regexp.MustCompile(`\b(` + strings.Join(blockedKeywords, "|") + `)\b`)

var commonFunctions = []string{
	"COUNT", "SUM", "AVG", "MIN", "MAX", "ROUND", "FLOOR", "CEIL", "CEILING",
	"ABS", "CONCAT", "SUBSTRING", "SUBSTR", "TRIM", "LTRIM", "RTRIM", "UPPER",
	"LOWER", "LENGTH", "CHAR_LENGTH", "COALESCE", "NULLIF", "CAST", "DATE",
	"YEAR", "MONTH", "DAY", "HOUR", "MINUTE", "SECOND", "EXTRACT", "LEFT",
	"RIGHT",
}

var engineFunctions = map[engine.Kind][]string{
	engine.Postgres: {"DATE_TRUNC", "TO_CHAR"},
	engine.MySQL:    {"DATE_FORMAT", "IFNULL", "CURDATE"},
	engine.SQLite:   {"STRFTIME", "IFNULL", "DATETIME", "JULIANDAY"},
}

// Words that may be followed by "(" without being a function call.
var nonCallWords = map[string]bool{
	"IN": true, "EXISTS": true, "AS": true, "FROM": true, "JOIN": true,
	"ON": true, "USING": true, "WHERE": true, "AND": true, "OR": true,
	"NOT": true, "SELECT": true, "UNION": true, "ALL": true, "ANY": true,
	"SOME": true, "OVER": true, "VALUES": true, "WITH": true, "HAVING": true,
	"BY": true, "THEN": true, "ELSE": true, "WHEN": true, "CASE": true,
	"LATERAL": true, "DISTINCT": true, "INTERSECT": true, "EXCEPT": true,
	"LIKE": true, "IS": true, "BETWEEN": true, "FILTER": true,
	"LIMIT": true, "OFFSET": true,
}

// Type names that take a length or precision, as in CAST(x AS DECIMAL(10, 2)).
var typeWords = map[string]bool{
	"DECIMAL": true, "NUMERIC": true, "VARCHAR": true, "CHAR": true,
	"CHARACTER": true, "VARYING": true, "NCHAR": true, "NVARCHAR": true,
	"FLOAT": true, "DOUBLE": true, "PRECISION": true, "TIMESTAMP": true,
	"TIME": true, "INTERVAL": true, "BIT": true, "BINARY": true,
	"VARBINARY": true, "DATETIME": true, "SIGNED": true, "UNSIGNED": true,
	"INT": true, "INTEGER": true, "TEXT": true,
}

// Statement is a SQL string that passed validation. Only Validate creates one.
type Statement struct {
	text string
	kind engine.Kind
}

func (s Statement) String() string { return s.text }

// Engine is the dialect the statement was validated against.
func (s Statement) Engine() engine.Kind { return s.kind }

// Validator performs the static safety checks for one dialect.
type Validator struct {
	kind      engine.Kind
	functions map[string]bool
}

func NewValidator(kind engine.Kind) *Validator {
	fns := make(map[string]bool, len(commonFunctions)+4)
	for _, f := range commonFunctions {
		fns[f] = true
	}
	for _, f := range engineFunctions[kind] {
		fns[f] = true
	}
	return &Validator{kind: kind, functions: fns}
}

// AllowedFunctions lists the callable functions in sorted order.
func (v *Validator) AllowedFunctions() []string {
	out := make([]string, 0, len(v.functions))
	for f := range v.functions {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Validate accepts sql only if it is one read-only SELECT without comments,
// blocked keywords or calls outside the allowlist.
func (v *Validator) Validate(sql string) (Statement, error) {
	toks, err := tokenize(sql, v.kind)
	if err != nil {
		return Statement{}, apperrors.Unsafe(ReasonParse, "the statement could not be parsed")
	}
	sig := significant(toks)
	if len(sig) == 0 || (len(sig) == 1 && sig[0].is(tokPunct, ";")) {
		return Statement{}, apperrors.Unsafe(ReasonEmpty, "the statement is empty")
	}

	trimmed := strings.TrimRight(strings.TrimSpace(sql), ";")
	if strings.Contains(trimmed, ";") || strings.Count(sql, ";") > 1 {
		return Statement{}, apperrors.Unsafe(ReasonMultipleStatements, "multiple statements are not allowed")
	}

	if strings.Contains(sql, "--") || strings.Contains(sql, "/*") ||
		(v.kind == engine.MySQL && strings.Contains(sql, "#")) || len(sig) != len(toks) {
		return Statement{}, apperrors.Unsafe(ReasonComment, "comments are not allowed")
	}

	if statementType(sig) != "SELECT" {
		return Statement{}, apperrors.Unsafe(ReasonNotSelect, "only SELECT statements are allowed")
	}

	if kw := blockedPattern.FindString(strings.ToUpper(sql)); kw != "" {
		return Statement{}, apperrors.Unsafe(ReasonBlockedKeyword, "keyword "+kw+" is not allowed")
	}

	for _, name := range functionCalls(sig) {
		if !v.functions[name] {
			return Statement{}, apperrors.Unsafe(ReasonFunctionNotAllowed, "function "+name+" is not allowed")
		}
	}

	return Statement{text: sql, kind: v.kind}, nil
}

// statementType returns the leading DML keyword, looking through parentheses
// and resolving WITH to the statement its CTEs feed.
func statementType(toks []token) string {
	i := 0
	for i < len(toks) && toks[i].is(tokPunct, "(") {
		i++
	}
	if i >= len(toks) || toks[i].kind != tokWord {
		return ""
	}
	first := toks[i].upper()
	if first != "WITH" {
		return first
	}

	depth := 0
	for j := i + 1; j < len(toks); j++ {
		t := toks[j]
		switch {
		case t.is(tokPunct, "("):
			depth++
		case t.is(tokPunct, ")"):
			depth--
		case depth == 0 && t.kind == tokWord:
			switch w := t.upper(); w {
			case "SELECT", "INSERT", "UPDATE", "DELETE", "MERGE", "VALUES", "TABLE":
				return w
			}
		}
	}
	return ""
}

// functionCalls returns the upper-cased name of every identifier directly
// followed by "(". Qualified names keep their qualifier (PG_CATALOG.PG_SLEEP),
// so they never match the allowlist.
func functionCalls(toks []token) []string {
	var names []string
	for i := 0; i+1 < len(toks); i++ {
		t := toks[i]
		if !toks[i+1].is(tokPunct, "(") {
			continue
		}
		var name string
		switch t.kind {
		case tokWord:
			name = t.upper()
		case tokQuotedIdent:
			name = strings.ToUpper(unquoteIdent(t.text))
		default:
			continue
		}
		if nonCallWords[name] {
			continue
		}
		if typeWords[name] && i > 0 && (toks[i-1].is(tokWord, "AS") || typeWords[toks[i-1].upper()]) {
			continue
		}
		if i >= 2 && toks[i-1].is(tokPunct, ".") {
			name = qualifierOf(toks, i-2) + "." + name
		}
		names = append(names, name)
	}
	return names
}

func qualifierOf(toks []token, i int) string {
	t := toks[i]
	if t.kind == tokQuotedIdent {
		return strings.ToUpper(unquoteIdent(t.text))
	}
	return t.upper()
}

func unquoteIdent(s string) string {
	if len(s) >= 2 {
		return s[1 : len(s)-1]
	}
	return s
}
