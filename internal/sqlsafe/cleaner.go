package sqlsafe

import (
	"regexp"
	"strings"

	apperrors "github.com/JonMunkholm/WebDbChat/internal/errors"
)

var (
	fencePattern      = regexp.MustCompile("```(?:(?i:sql|postgres(?:ql)?|mysql|sqlite|pgsql)\\b)?\\s*|\\s*```")
	enumMarkerPattern = regexp.MustCompile(`^\s*\d+[.)]\s*`)
	leadingSelect     = regexp.MustCompile(`(?i)^(SELECT|WITH)\b`)
)

type abbreviation struct {
	pattern *regexp.Regexp
	full    string
}

// Order matters only in that no expansion produces another abbreviation.
var abbreviations = []abbreviation{
	{regexp.MustCompile(`(?i)\bSEL\b`), "SELECT"},
	{regexp.MustCompile(`(?i)\bFR\b`), "FROM"},
	{regexp.MustCompile(`(?i)\bWH\b`), "WHERE"},
	{regexp.MustCompile(`(?i)\bGR\b`), "GROUP BY"},
	{regexp.MustCompile(`(?i)\bORD\b`), "ORDER BY"},
	{regexp.MustCompile(`(?i)\bHAV\b`), "HAVING"},
	{regexp.MustCompile(`(?i)\bJOI\b`), "JOIN"},
	{regexp.MustCompile(`(?i)\bLJ\b`), "LEFT JOIN"},
	{regexp.MustCompile(`(?i)\bRJ\b`), "RIGHT JOIN"},
	{regexp.MustCompile(`(?i)\bIJ\b`), "INNER JOIN"},
	{regexp.MustCompile(`(?i)\bDIST\b`), "DISTINCT"},
}

// Cleaner normalizes raw generated text into a single-line statement. It
// never decides safety; that is the Validator's job.
type Cleaner struct {
	// Strict disables prepending SELECT to text that does not start with one.
	Strict bool
}

// Clean strips fences, enumeration markers and line comments, expands keyword
// abbreviations, and collapses whitespace outside literals. The result ends
// with exactly one trailing semicolon. Cleaning a cleaned SELECT is a no-op.
func (c Cleaner) Clean(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", apperrors.New(apperrors.KindEmptyGeneration, "The model returned an empty response")
	}

	text := fencePattern.ReplaceAllString(raw, "")
	text = enumMarkerPattern.ReplaceAllString(text, "")
	text = stripLineComments(text)
	text = mapOutsideLiterals(text, expandAbbreviations)
	text = strings.TrimSpace(mapOutsideLiterals(text, collapseSpace))

	if text == "" || text == ";" {
		return "", apperrors.New(apperrors.KindEmptyGeneration, "The model returned no SQL")
	}
	if !c.Strict && !leadingSelect.MatchString(text) {
		text = "SELECT " + text
	}
	if !strings.HasSuffix(text, ";") {
		text += ";"
	}
	return text, nil
}

func expandAbbreviations(s string) string {
	for _, a := range abbreviations {
		s = a.pattern.ReplaceAllString(s, a.full)
	}
	return s
}

func collapseSpace(s string) string {
	fields := strings.Fields(s)
	out := strings.Join(fields, " ")
	if out == "" {
		if s == "" {
			return ""
		}
		return " "
	}
	if isSpace(s[0]) {
		out = " " + out
	}
	if isSpace(s[len(s)-1]) {
		out += " "
	}
	return out
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

// stripLineComments removes "--" comments that start outside a quoted run,
// keeping the newline that ends them.
func stripLineComments(s string) string {
	var sb strings.Builder
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			sb.WriteByte(c)
			if c == quote {
				quote = 0
			}
			continue
		}
		switch {
		case c == '\'' || c == '"' || c == '`':
			quote = c
			sb.WriteByte(c)
		case c == '-' && i+1 < len(s) && s[i+1] == '-':
			for i < len(s) && s[i] != '\n' {
				i++
			}
			if i < len(s) {
				sb.WriteByte('\n')
			}
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// mapOutsideLiterals applies f to every run of text outside quotes and leaves
// quoted runs untouched. An unterminated quote extends to the end of input.
func mapOutsideLiterals(s string, f func(string) string) string {
	var sb strings.Builder
	segStart := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\'' && c != '"' && c != '`' {
			continue
		}
		sb.WriteString(f(s[segStart:i]))
		end := strings.IndexByte(s[i+1:], c)
		if end < 0 {
			sb.WriteString(s[i:])
			return sb.String()
		}
		sb.WriteString(s[i : i+1+end+1])
		i += end + 1
		segStart = i + 1
	}
	sb.WriteString(f(s[segStart:]))
	return sb.String()
}
