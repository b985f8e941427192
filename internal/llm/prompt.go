package llm

import (
	"fmt"
	"strings"
)

// BuildPrompt constructs the generation prompt: role, schema, rules and the
// user's question verbatim. dialect may be empty; functions, when given, is
// the complete list of callable functions.
func BuildPrompt(dialect, schemaText, question string, functions []string) string {
	target := "a SQL database"
	if dialect != "" {
		target = "a " + dialect + " database"
	}
	rules := baseRules
	if len(functions) > 0 {
		rules += "\n9. Call only these functions: " + strings.Join(functions, ", ")
	}

	return fmt.Sprintf(`You are an expert SQL developer. Convert the following natural language question into a SQL query for %s based on the given database schema.

%s
RULES:
%s

If the question CANNOT be answered with the available tables and columns, respond with exactly:
MISSING: <what tables, columns, or data would be needed>

Question: %s

SQL:`, target, strings.TrimRight(schemaText, "\n")+"\n", rules, question)
}

const baseRules = `1. Generate ONLY a single SELECT query (no INSERT, UPDATE, DELETE, DROP, or any other modifying statement)
2. Use meaningful table aliases and always qualify column names with them (e.g. 'm.member_id')
3. Use explicit JOIN ... ON conditions based on the relationships shown in the schema
4. Include every table in the FROM or JOIN clauses before referencing it
5. Handle NULL values appropriately; use WHERE for filtering, GROUP BY for aggregations, HAVING for filtering aggregates, ORDER BY for sorting when relevant
6. Do not include comments and do not write more than one statement
7. Do not guess table or column names that are not in the schema above
8. Return ONLY the SQL query, without explanation or markdown`
