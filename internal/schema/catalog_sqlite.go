package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// sqliteCatalog reads sqlite_master and the table pragmas.
type sqliteCatalog struct{}

func quoteSQLiteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (sqliteCatalog) tableNames(ctx context.Context, db *sql.DB) ([]string, error) {
	return queryStrings(ctx, db,
		"SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
}

func (c sqliteCatalog) loadTables(ctx context.Context, db *sql.DB, _ string) ([]Table, error) {
	names, err := c.tableNames(ctx, db)
	if err != nil {
		return nil, err
	}

	tables := make([]Table, 0, len(names))
	for _, name := range names {
		cols, err := sqliteColumns(ctx, db, name)
		if err != nil {
			return nil, fmt.Errorf("columns for %s: %w", name, err)
		}
		tables = append(tables, Table{Name: name, Columns: cols})
	}
	return tables, nil
}

func sqliteColumns(ctx context.Context, db *sql.DB, table string) ([]Column, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteSQLiteIdent(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var cid, notnull, pk int
		var col Column
		var dflt sql.NullString
		if err := rows.Scan(&cid, &col.Name, &col.Type, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		col.Type = strings.ToLower(col.Type)
		col.IsPrimaryKey = pk > 0
		col.Nullable = notnull == 0 && !col.IsPrimaryKey
		if dflt.Valid {
			col.Default = &dflt.String
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

func (c sqliteCatalog) loadRelationships(ctx context.Context, db *sql.DB, _ string) ([]Relationship, error) {
	names, err := c.tableNames(ctx, db)
	if err != nil {
		return nil, err
	}

	var rels []Relationship
	for _, name := range names {
		tableRels, err := sqliteForeignKeys(ctx, db, name)
		if err != nil {
			return nil, fmt.Errorf("foreign keys for %s: %w", name, err)
		}
		rels = append(rels, tableRels...)
	}
	return rels, nil
}

func sqliteForeignKeys(ctx context.Context, db *sql.DB, table string) ([]Relationship, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%s)", quoteSQLiteIdent(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rels []Relationship
	for rows.Next() {
		var id, seq int
		var refTable, from, onUpdate, onDelete, match string
		var to sql.NullString
		if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return nil, err
		}
		rels = append(rels, Relationship{
			ChildTable:   table,
			ChildColumn:  from,
			ParentTable:  refTable,
			ParentColumn: to.String,
		})
	}
	return rels, rows.Err()
}
