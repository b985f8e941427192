package schema

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/JonMunkholm/WebDbChat/internal/engine"
	apperrors "github.com/JonMunkholm/WebDbChat/internal/errors"
)

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func openerFor(db *sql.DB) engine.Opener {
	return func(context.Context, engine.Config) (*sql.DB, error) { return db, nil }
}

func TestIntrospectPostgres(t *testing.T) {
	db, mock := newSQLMock(t)

	mock.ExpectQuery(`FROM information_schema.tables`).
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("orders").AddRow("users"))
	mock.ExpectQuery(`FROM information_schema.columns`).
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "data_type", "nullable", "column_default"}).
			AddRow("orders", "id", "integer", false, "nextval('orders_id_seq'::regclass)").
			AddRow("orders", "user_id", "integer", false, nil).
			AddRow("users", "id", "integer", false, nil).
			AddRow("users", "email", "text", true, nil))
	mock.ExpectQuery(`constraint_type = 'PRIMARY KEY'`).
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name"}).
			AddRow("orders", "id").
			AddRow("users", "id"))
	mock.ExpectQuery(`FROM pg_class`).
		WillReturnRows(sqlmock.NewRows([]string{"relname", "reltuples"}).
			AddRow("orders", int64(1200)).
			AddRow("users", int64(40)))
	mock.ExpectQuery(`constraint_type = 'FOREIGN KEY'`).
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "table_name", "column_name"}).
			AddRow("orders", "user_id", "users", "id"))
	mock.ExpectClose()

	in := NewIntrospector(openerFor(db), time.Second, nil)
	snap, err := in.Introspect(context.Background(), engine.Config{Kind: engine.Postgres, Database: "shop"})
	require.NoError(t, err)
	assertSQLMock(t, mock)

	orders, ok := snap.Table("orders")
	require.True(t, ok)
	assert.Equal(t, int64(1200), orders.RowEstimate)
	require.Len(t, orders.Columns, 2)
	assert.True(t, orders.Columns[0].IsPrimaryKey)
	require.NotNil(t, orders.Columns[0].Default)
	assert.Equal(t, "nextval('orders_id_seq'::regclass)", *orders.Columns[0].Default)
	assert.True(t, orders.Columns[1].IsForeignKey)
	assert.False(t, orders.Columns[1].IsPrimaryKey)

	users, _ := snap.Table("users")
	assert.Equal(t, int64(40), users.RowEstimate)
	assert.True(t, users.Columns[1].Nullable)
	assert.Equal(t, []Relationship{{ChildTable: "orders", ChildColumn: "user_id", ParentTable: "users", ParentColumn: "id"}}, snap.Relationships)
}

func TestIntrospectMySQL(t *testing.T) {
	db, mock := newSQLMock(t)

	mock.ExpectQuery(`FROM INFORMATION_SCHEMA.TABLES`).
		WithArgs("shop").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}).AddRow("customers"))
	mock.ExpectQuery(`FROM INFORMATION_SCHEMA.COLUMNS`).
		WithArgs("shop").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME", "COLUMN_NAME", "DATA_TYPE", "IS_NULLABLE", "COLUMN_KEY", "COLUMN_DEFAULT"}).
			AddRow("customers", "id", "INT", "NO", "PRI", nil).
			AddRow("customers", "referrer_id", "INT", "YES", "MUL", nil))
	mock.ExpectQuery(`FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE`).
		WithArgs("shop").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME", "COLUMN_NAME", "REFERENCED_TABLE_NAME", "REFERENCED_COLUMN_NAME"}).
			AddRow("customers", "referrer_id", "customers", "id"))
	mock.ExpectClose()

	in := NewIntrospector(openerFor(db), time.Second, nil)
	snap, err := in.Introspect(context.Background(), engine.Config{Kind: engine.MySQL, Database: "shop"})
	require.NoError(t, err)
	assertSQLMock(t, mock)

	customers, ok := snap.Table("customers")
	require.True(t, ok)
	assert.Equal(t, Column{Name: "id", Type: "int", IsPrimaryKey: true}, customers.Columns[0])
	assert.Equal(t, Column{Name: "referrer_id", Type: "int", Nullable: true, IsForeignKey: true}, customers.Columns[1])
	assert.Contains(t, Format(snap), "  - customers.referrer_id -> customers.id")
}

func TestIntrospectCatalogFailureIsEngineExecution(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectQuery(`FROM information_schema.tables`).WillReturnError(errors.New("permission denied for schema public"))
	mock.ExpectClose()

	in := NewIntrospector(openerFor(db), time.Second, nil)
	_, err := in.Introspect(context.Background(), engine.Config{Kind: engine.Postgres})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindEngineExecution))
	assertSQLMock(t, mock)
}

func TestIntrospectOpenFailureIsConnectivity(t *testing.T) {
	open := func(context.Context, engine.Config) (*sql.DB, error) {
		return nil, errors.New("dial tcp 10.0.0.1:5432: connect: connection refused")
	}
	in := NewIntrospector(open, time.Second, nil)
	_, err := in.Introspect(context.Background(), engine.Config{Kind: engine.Postgres})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConnectivity))
}

func TestIntrospectUnsupportedEngine(t *testing.T) {
	called := false
	open := func(context.Context, engine.Config) (*sql.DB, error) {
		called = true
		return nil, nil
	}
	in := NewIntrospector(open, time.Second, nil)
	_, err := in.Introspect(context.Background(), engine.Config{Kind: "oracle"})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindUnsupportedEngine))
	assert.False(t, called)
}

func createSQLiteFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "school.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	for _, stmt := range []string{
		`CREATE TABLE students (id INTEGER PRIMARY KEY, name TEXT NOT NULL, nickname TEXT)`,
		`CREATE TABLE courses (id INTEGER PRIMARY KEY, title TEXT)`,
		`CREATE TABLE enrollments (
			id INTEGER PRIMARY KEY,
			student_id INTEGER NOT NULL REFERENCES students(id),
			course_id INTEGER NOT NULL REFERENCES courses(id)
		)`,
		`INSERT INTO students (id, name) VALUES (1, 'Ada'), (2, 'Linus')`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return path
}

func TestIntrospectSQLiteFile(t *testing.T) {
	path := createSQLiteFixture(t)

	in := NewIntrospector(nil, 5*time.Second, nil)
	snap, err := in.Introspect(context.Background(), engine.Config{Kind: engine.SQLite, Database: path})
	require.NoError(t, err)

	assert.Equal(t, []string{"courses", "enrollments", "students"}, snap.TableNames())

	students, _ := snap.Table("students")
	assert.Equal(t, Column{Name: "id", Type: "integer", IsPrimaryKey: true}, students.Columns[0])
	assert.Equal(t, Column{Name: "name", Type: "text"}, students.Columns[1])
	assert.True(t, students.Columns[2].Nullable)

	assert.ElementsMatch(t, []Relationship{
		{ChildTable: "enrollments", ChildColumn: "student_id", ParentTable: "students", ParentColumn: "id"},
		{ChildTable: "enrollments", ChildColumn: "course_id", ParentTable: "courses", ParentColumn: "id"},
	}, snap.Relationships)
	assert.True(t, Valid(snap))
}

func TestIntrospectPostgresWithoutRowEstimates(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectQuery(`FROM information_schema.tables`).
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("users"))
	mock.ExpectQuery(`FROM information_schema.columns`).
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "data_type", "nullable", "column_default"}).
			AddRow("users", "id", "integer", false, nil))
	mock.ExpectQuery(`constraint_type = 'PRIMARY KEY'`).
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name"}).AddRow("users", "id"))
	mock.ExpectQuery(`FROM pg_class`).WillReturnError(errors.New("permission denied for table pg_class"))
	mock.ExpectQuery(`constraint_type = 'FOREIGN KEY'`).
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "table_name", "column_name"}))
	mock.ExpectClose()

	in := NewIntrospector(openerFor(db), time.Second, nil)
	snap, err := in.Introspect(context.Background(), engine.Config{Kind: engine.Postgres, Database: "shop"})
	require.NoError(t, err)
	assertSQLMock(t, mock)

	users, ok := snap.Table("users")
	require.True(t, ok)
	assert.Zero(t, users.RowEstimate)
	assert.NotContains(t, Format(snap), "rows")
}
