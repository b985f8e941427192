package schema

import (
	"context"
	"database/sql"
	"strings"
)

// mysqlCatalog reads INFORMATION_SCHEMA scoped to one database.
type mysqlCatalog struct{}

func (mysqlCatalog) loadTables(ctx context.Context, db *sql.DB, database string) ([]Table, error) {
	names, err := queryStrings(ctx, db,
		`SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
		 WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE'
		 ORDER BY TABLE_NAME`,
		database,
	)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT TABLE_NAME, COLUMN_NAME, DATA_TYPE, IS_NULLABLE, COLUMN_KEY, COLUMN_DEFAULT
		 FROM INFORMATION_SCHEMA.COLUMNS
		 WHERE TABLE_SCHEMA = ?
		 ORDER BY TABLE_NAME, ORDINAL_POSITION`,
		database,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := make(map[string][]Column)
	for rows.Next() {
		var tableName, nullable, key string
		var col Column
		var dflt sql.NullString
		if err := rows.Scan(&tableName, &col.Name, &col.Type, &nullable, &key, &dflt); err != nil {
			return nil, err
		}
		col.Type = strings.ToLower(col.Type)
		col.Nullable = nullable == "YES"
		col.IsPrimaryKey = key == "PRI"
		if dflt.Valid {
			col.Default = &dflt.String
		}
		columns[tableName] = append(columns[tableName], col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tables := make([]Table, 0, len(names))
	for _, name := range names {
		tables = append(tables, Table{Name: name, Columns: columns[name]})
	}
	return tables, nil
}

func (mysqlCatalog) loadRelationships(ctx context.Context, db *sql.DB, database string) ([]Relationship, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT TABLE_NAME, COLUMN_NAME, REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME
		 FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		 WHERE TABLE_SCHEMA = ?
		   AND REFERENCED_TABLE_NAME IS NOT NULL
		 ORDER BY TABLE_NAME, CONSTRAINT_NAME, ORDINAL_POSITION`,
		database,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRelationships(rows)
}
