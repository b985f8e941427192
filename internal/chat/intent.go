package chat

import (
	"regexp"
	"strings"

	"github.com/JonMunkholm/WebDbChat/internal/schema"
)

// IntentKind says how a question is answered.
type IntentKind string

const (
	IntentData          IntentKind = "data"
	IntentListTables    IntentKind = "list_tables"
	IntentDescribeTable IntentKind = "describe_table"
)

// Intent is the outcome of classifying one question.
type Intent struct {
	Kind  IntentKind
	Table string // set for IntentDescribeTable, as spelled in the snapshot
}

// Matched against the whole normalized question.
var listTablesPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(?:show|list)(?: me)?(?: all)?(?: of)?(?: the)?(?: available)? tables(?: in (?:the|this|my) (?:database|db))?$`),
	regexp.MustCompile(`^(?:what|which)(?: are)?(?: the)? tables(?: are there| exist| are available| do (?:we|i|you) have| (?:are )?in (?:the|this|my) (?:database|db)| does (?:the|this|my) (?:database|db) have)?$`),
}

const tableRef = `['"` + "`" + `]?(\w+)['"` + "`" + `]?`

// Matched anywhere in the normalized question; the capture is the table name.
var describePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\btell me about (?:the )?(?:table )?` + tableRef),
	regexp.MustCompile(`\bdescribe (?:the )?(?:table )?` + tableRef),
	regexp.MustCompile(`\bwhat (?:columns|fields) (?:are )?in (?:the )?(?:table )?` + tableRef),
	regexp.MustCompile(`\bwhat (?:columns|fields) does (?:the )?(?:table )?` + tableRef + ` have\b`),
	regexp.MustCompile(`\bshow (?:me )?(?:the )?structure of (?:the )?(?:table )?` + tableRef),
	regexp.MustCompile(`\bexplain (?:the )?(?:table )?` + tableRef),
}

// Classify decides whether a question can be answered from the schema alone.
// Describe phrasings only count when they name a table the snapshot has, so
// "explain the sales trend" still goes to generation.
func Classify(question string, snap schema.Snapshot) Intent {
	q := normalizeQuestion(question)

	for _, p := range listTablesPatterns {
		if p.MatchString(q) {
			return Intent{Kind: IntentListTables}
		}
	}

	for _, p := range describePatterns {
		m := p.FindStringSubmatch(q)
		if m == nil {
			continue
		}
		if t, ok := snap.Table(m[1]); ok {
			return Intent{Kind: IntentDescribeTable, Table: t.Name}
		}
	}

	return Intent{Kind: IntentData}
}

func normalizeQuestion(s string) string {
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	return strings.TrimRight(s, "?.! ")
}
