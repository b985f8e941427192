package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	apperrors "github.com/JonMunkholm/WebDbChat/internal/errors"
)

// SessionStatements returns the statements that put a connection into a
// read-only session with a server-side execution timeout.
func SessionStatements(kind Kind, timeout time.Duration) ([]string, error) {
	ms := timeout.Milliseconds()
	if ms <= 0 {
		ms = 30_000
	}
	switch kind {
	case Postgres:
		return []string{
			"SET SESSION CHARACTERISTICS AS TRANSACTION READ ONLY",
			fmt.Sprintf("SET statement_timeout = %d", ms),
		}, nil
	case MySQL:
		secs := (ms + 999) / 1000
		return []string{
			"SET SESSION TRANSACTION READ ONLY",
			fmt.Sprintf("SET SESSION MAX_EXECUTION_TIME = %d", ms),
			fmt.Sprintf("SET SESSION wait_timeout = %d", secs),
		}, nil
	case SQLite:
		// SQLite has no server-side timeout; the context deadline interrupts it.
		return []string{"PRAGMA query_only = ON"}, nil
	default:
		return nil, apperrors.Newf(apperrors.KindUnsupportedEngine, "Database type %q is not supported", kind)
	}
}

// GuardSession applies SessionStatements to conn.
func GuardSession(ctx context.Context, conn *sql.Conn, kind Kind, timeout time.Duration) error {
	stmts, err := SessionStatements(kind, timeout)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply session guard %q: %w", stmt, err)
		}
	}
	return nil
}

// IsTimeout reports whether err is an engine-side statement timeout or a
// context deadline.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "57014" { // query_canceled
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 3024 { // ER_QUERY_TIMEOUT
		return true
	}
	return false
}
