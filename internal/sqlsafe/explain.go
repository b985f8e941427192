package sqlsafe

import (
	"strconv"
	"strings"
)

var aggregateCalls = []string{"count(", "sum(", "avg(", "max(", "min("}

// Explain describes in plain words what a validated statement does. It is a
// keyword heuristic for the success message, not an analysis.
func Explain(stmt Statement) string {
	q := strings.ToLower(stmt.text)
	var parts []string

	if strings.Contains(q, "distinct") {
		parts = append(parts, "retrieving unique records")
	}
	if n := countWord(q, "join"); n > 0 {
		parts = append(parts, "combining data from "+strconv.Itoa(n+1)+" tables")
	}
	if countWord(q, "where") > 0 {
		parts = append(parts, "filtering results based on specified conditions")
	}
	if strings.Contains(q, "group by") {
		parts = append(parts, "grouping results")
		if countWord(q, "having") > 0 {
			parts = append(parts, "applying filters to grouped data")
		}
	}
	if strings.Contains(q, "order by") {
		if countWord(q, "desc") > 0 {
			parts = append(parts, "sorting results in descending order")
		} else {
			parts = append(parts, "sorting results in ascending order")
		}
	}
	for _, fn := range aggregateCalls {
		if strings.Contains(q, fn) {
			parts = append(parts, "calculating aggregate values")
			break
		}
	}

	if len(parts) == 0 {
		return "This query is retrieving records."
	}
	return "This query is " + strings.Join(parts, " and ") + "."
}

func countWord(s, word string) int {
	n := 0
	for _, f := range strings.FieldsFunc(s, func(r rune) bool {
		return !(r == '_' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'))
	}) {
		if f == word {
			n++
		}
	}
	return n
}
