package schema

import (
	"context"
	"database/sql"
)

// postgresCatalog reads the information_schema of the public schema.
type postgresCatalog struct{}

func (postgresCatalog) loadTables(ctx context.Context, db *sql.DB, _ string) ([]Table, error) {
	names, err := queryStrings(ctx, db, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public'
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name`)
	if err != nil {
		return nil, err
	}

	columns, err := postgresColumns(ctx, db)
	if err != nil {
		return nil, err
	}

	primaryKeys, err := postgresPrimaryKeys(ctx, db)
	if err != nil {
		return nil, err
	}

	// Estimates are informational; a catalog without pg_class access still works.
	estimates, err := postgresRowEstimates(ctx, db)
	if err != nil {
		estimates = map[string]int64{}
	}

	tables := make([]Table, 0, len(names))
	for _, name := range names {
		cols := columns[name]
		pk := primaryKeys[name]
		for i := range cols {
			cols[i].IsPrimaryKey = pk[cols[i].Name]
		}
		tables = append(tables, Table{Name: name, Columns: cols, RowEstimate: estimates[name]})
	}
	return tables, nil
}

func postgresRowEstimates(ctx context.Context, db *sql.DB) (map[string]int64, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT relname, GREATEST(reltuples, 0)::bigint
		FROM pg_class
		WHERE relnamespace = 'public'::regnamespace
		  AND relkind = 'r'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	estimates := make(map[string]int64)
	for rows.Next() {
		var name string
		var n int64
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		estimates[name] = n
	}
	return estimates, rows.Err()
}

func postgresColumns(ctx context.Context, db *sql.DB) (map[string][]Column, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT table_name, column_name, data_type, is_nullable = 'YES' AS nullable, column_default
		FROM information_schema.columns
		WHERE table_schema = 'public'
		ORDER BY table_name, ordinal_position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := make(map[string][]Column)
	for rows.Next() {
		var tableName string
		var col Column
		var dflt sql.NullString
		if err := rows.Scan(&tableName, &col.Name, &col.Type, &col.Nullable, &dflt); err != nil {
			return nil, err
		}
		if dflt.Valid {
			col.Default = &dflt.String
		}
		columns[tableName] = append(columns[tableName], col)
	}
	return columns, rows.Err()
}

func postgresPrimaryKeys(ctx context.Context, db *sql.DB) (map[string]map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT tc.table_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema = 'public'
		ORDER BY tc.table_name, kcu.ordinal_position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pks := make(map[string]map[string]bool)
	for rows.Next() {
		var tableName, colName string
		if err := rows.Scan(&tableName, &colName); err != nil {
			return nil, err
		}
		if pks[tableName] == nil {
			pks[tableName] = make(map[string]bool)
		}
		pks[tableName][colName] = true
	}
	return pks, rows.Err()
}

func (postgresCatalog) loadRelationships(ctx context.Context, db *sql.DB, _ string) ([]Relationship, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT tc.table_name, kcu.column_name, ccu.table_name, ccu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_name = ccu.constraint_name
			AND tc.table_schema = ccu.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema = 'public'
		ORDER BY tc.table_name, kcu.column_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRelationships(rows)
}

func scanRelationships(rows *sql.Rows) ([]Relationship, error) {
	var rels []Relationship
	for rows.Next() {
		var rel Relationship
		if err := rows.Scan(&rel.ChildTable, &rel.ChildColumn, &rel.ParentTable, &rel.ParentColumn); err != nil {
			return nil, err
		}
		rels = append(rels, rel)
	}
	return rels, rows.Err()
}

func queryStrings(ctx context.Context, db *sql.DB, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
