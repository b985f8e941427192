package schema

import (
	"regexp"
	"strings"
)

const formatHeader = "Database Schema:\n\n"

var tableHeaderPattern = regexp.MustCompile(`(?m)^Table: \S+$`)

// Format renders the snapshot in the line-oriented form used both as LLM
// context and as the source for describe-table answers. Output is
// byte-identical for the same snapshot.
func Format(s Snapshot) string {
	var sb strings.Builder
	sb.WriteString(formatHeader)

	for _, name := range s.TableNames() {
		sb.WriteString(tableToText(s.Tables[name]))
		sb.WriteString("\n")
	}

	if len(s.Relationships) > 0 {
		sb.WriteString("Relationships:\n")
		for _, rel := range s.Relationships {
			sb.WriteString("  - ")
			sb.WriteString(relationshipToText(rel))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func tableToText(t Table) string {
	var sb strings.Builder
	sb.WriteString("Table: " + t.Name + "\n")
	for _, col := range t.Columns {
		sb.WriteString("  - " + col.Name + " (" + col.Type + ")")
		if col.IsPrimaryKey {
			sb.WriteString(" PRIMARY KEY")
		}
		if !col.Nullable {
			sb.WriteString(" NOT NULL")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func relationshipToText(rel Relationship) string {
	return rel.ChildTable + "." + rel.ChildColumn + " -> " + rel.ParentTable + "." + rel.ParentColumn
}

// Valid reports whether the formatted snapshot contains at least one table block.
func Valid(s Snapshot) bool {
	if len(s.Tables) == 0 {
		return false
	}
	return ValidText(Format(s))
}

// ValidText applies the validity predicate to already formatted schema text.
func ValidText(text string) bool {
	return strings.HasPrefix(text, formatHeader) && tableHeaderPattern.MatchString(text)
}

// DescribeTable extracts the block for one table from formatted schema text,
// followed by the relationships that involve it. It reports false when the
// table has no block.
func DescribeTable(text, name string) (string, bool) {
	lines := strings.Split(text, "\n")

	var block []string
	inBlock := false
	for _, line := range lines {
		if strings.HasPrefix(line, "Table: ") {
			if inBlock {
				break
			}
			inBlock = strings.EqualFold(strings.TrimPrefix(line, "Table: "), name)
			if inBlock {
				block = append(block, line)
			}
			continue
		}
		if inBlock {
			if strings.TrimSpace(line) == "" || line == "Relationships:" {
				break
			}
			block = append(block, line)
		}
	}
	if len(block) == 0 {
		return "", false
	}

	var rels []string
	afterRelHeader := false
	for _, line := range lines {
		if line == "Relationships:" {
			afterRelHeader = true
			continue
		}
		if !afterRelHeader || !strings.HasPrefix(line, "  - ") {
			continue
		}
		edge := strings.TrimPrefix(line, "  - ")
		child, parent, ok := strings.Cut(edge, " -> ")
		if !ok {
			continue
		}
		if tableOf(child, name) || tableOf(parent, name) {
			rels = append(rels, "  - "+child+" references "+parent)
		}
	}

	out := strings.Join(block, "\n")
	if len(rels) > 0 {
		out += "\n\nRelationships:\n" + strings.Join(rels, "\n")
	}
	return out, true
}

func tableOf(qualified, table string) bool {
	t, _, ok := strings.Cut(qualified, ".")
	return ok && strings.EqualFold(t, table)
}
