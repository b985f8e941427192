// Package schema provides database schema introspection, canonical formatting
// and caching for LLM context.
package schema

import (
	"sort"
	"strings"
	"time"
)

// Column represents a table column at introspection time.
type Column struct {
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	Nullable     bool    `json:"nullable"`
	IsPrimaryKey bool    `json:"isPrimaryKey"`
	IsForeignKey bool    `json:"isForeignKey"`
	Default      *string `json:"default,omitempty"`
}

// Table represents a database table and its columns in catalog order.
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`

	// RowEstimate is the planner's row count where the engine keeps one.
	RowEstimate int64 `json:"rowEstimate,omitempty"`
}

// Relationship is a directed foreign-key edge from a child column to a parent column.
type Relationship struct {
	ChildTable   string `json:"childTable"`
	ChildColumn  string `json:"childColumn"`
	ParentTable  string `json:"parentTable"`
	ParentColumn string `json:"parentColumn"`
}

// Snapshot is an immutable view of a database schema. Replace it, never edit it.
type Snapshot struct {
	Tables        map[string]Table `json:"tables"`
	Relationships []Relationship   `json:"relationships"`
	FetchedAt     time.Time        `json:"fetchedAt"`
}

// NewSnapshot builds a snapshot and marks foreign-key columns from the edges.
func NewSnapshot(tables []Table, relationships []Relationship, fetchedAt time.Time) Snapshot {
	fkCols := make(map[string]bool, len(relationships))
	for _, rel := range relationships {
		fkCols[rel.ChildTable+"."+rel.ChildColumn] = true
	}

	byName := make(map[string]Table, len(tables))
	for _, t := range tables {
		cols := make([]Column, len(t.Columns))
		copy(cols, t.Columns)
		for i := range cols {
			if fkCols[t.Name+"."+cols[i].Name] {
				cols[i].IsForeignKey = true
			}
		}
		byName[t.Name] = Table{Name: t.Name, Columns: cols, RowEstimate: t.RowEstimate}
	}

	rels := make([]Relationship, len(relationships))
	copy(rels, relationships)

	return Snapshot{Tables: byName, Relationships: rels, FetchedAt: fetchedAt}
}

// TableNames returns table names in sorted order.
func (s Snapshot) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for name := range s.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Table looks up a table by name, case-insensitively.
func (s Snapshot) Table(name string) (Table, bool) {
	if t, ok := s.Tables[name]; ok {
		return t, true
	}
	for _, n := range s.TableNames() {
		if strings.EqualFold(n, name) {
			return s.Tables[n], true
		}
	}
	return Table{}, false
}

// TableCount returns the number of tables in the snapshot.
func (s Snapshot) TableCount() int {
	return len(s.Tables)
}
