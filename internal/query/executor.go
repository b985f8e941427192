package query

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JonMunkholm/WebDbChat/internal/engine"
	apperrors "github.com/JonMunkholm/WebDbChat/internal/errors"
	"github.com/JonMunkholm/WebDbChat/internal/logging"
	"github.com/JonMunkholm/WebDbChat/internal/metrics"
	"github.com/JonMunkholm/WebDbChat/internal/sqlsafe"
)

const (
	DefaultMaxRows = 1000
	DefaultTimeout = 30 * time.Second
)

// Limits bounds one execution.
type Limits struct {
	MaxRows int
	Timeout time.Duration
}

func (l Limits) withDefaults() Limits {
	if l.MaxRows <= 0 {
		l.MaxRows = DefaultMaxRows
	}
	if l.Timeout <= 0 {
		l.Timeout = DefaultTimeout
	}
	return l
}

// Executor runs validated statements on a dedicated connection per call.
type Executor struct {
	open   engine.Opener
	logger *zap.Logger
}

// NewExecutor creates an executor. A nil opener uses engine.Open.
func NewExecutor(open engine.Opener, logger *zap.Logger) *Executor {
	if open == nil {
		open = engine.Open
	}
	return &Executor{open: open, logger: logging.OrNop(logger)}
}

// Execute runs stmt against cfg in a read-only session and returns at most
// limits.MaxRows sanitized rows.
func (e *Executor) Execute(ctx context.Context, cfg engine.Config, stmt sqlsafe.Statement, limits Limits) (Result, error) {
	if stmt.String() == "" {
		return Result{}, apperrors.New(apperrors.KindInternal, "statement was not validated")
	}
	if stmt.Engine() != cfg.Kind {
		return Result{}, apperrors.Newf(apperrors.KindInternal,
			"statement validated for %s cannot run on %s", stmt.Engine(), cfg.Kind)
	}
	limits = limits.withDefaults()

	ctx, cancel := context.WithTimeout(ctx, limits.Timeout)
	defer cancel()

	start := time.Now()
	db, err := e.open(ctx, cfg)
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindInternal {
			err = apperrors.Wrap(err, apperrors.KindConnectivity, "connect to database")
		}
		return Result{}, err
	}
	defer func() { _ = db.Close() }()

	conn, err := db.Conn(ctx)
	if err != nil {
		return Result{}, apperrors.Wrap(err, apperrors.KindConnectivity, "acquire connection")
	}
	defer func() { _ = conn.Close() }()

	if err := engine.GuardSession(ctx, conn, cfg.Kind, limits.Timeout); err != nil {
		return Result{}, e.mapError(ctx, err, "apply session guard")
	}

	rows, err := conn.QueryContext(ctx, stripTrailingSemicolons(stmt.String()))
	if err != nil {
		return Result{}, e.mapError(ctx, err, "run query")
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, e.mapError(ctx, err, "read columns")
	}
	kinds := columnKinds(rows, len(columns))

	out := make([][]Value, 0)
	truncated := false
	for rows.Next() {
		if len(out) == limits.MaxRows {
			truncated = true
			break
		}
		values, err := scanRow(rows, len(columns))
		if err != nil {
			return Result{}, e.mapError(ctx, err, "scan row")
		}
		row := make([]Value, len(values))
		for i, v := range values {
			row[i] = SanitizeColumn(v, kinds[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return Result{}, e.mapError(ctx, err, "read rows")
	}

	res := NewResult(columns, out)
	res.Truncated = truncated
	res.DurationMs = time.Since(start).Milliseconds()
	metrics.ObserveExecution(string(cfg.Kind), res.RowCount, truncated)
	return res, nil
}

func (e *Executor) mapError(ctx context.Context, err error, op string) error {
	if engine.IsTimeout(err) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.Wrap(err, apperrors.KindExecutionTimeout, op+": timed out")
	}
	e.logger.Warn("query execution failed", zap.String("op", op), zap.Error(err))
	return apperrors.Wrap(err, apperrors.KindEngineExecution, op)
}

func columnKinds(rows *sql.Rows, n int) []ColumnKind {
	kinds := make([]ColumnKind, n)
	types, err := rows.ColumnTypes()
	if err != nil || len(types) != n {
		return kinds
	}
	for i, ct := range types {
		kinds[i] = ColumnKindOf(ct.DatabaseTypeName())
	}
	return kinds
}

func scanRow(rows *sql.Rows, numCols int) ([]any, error) {
	values := make([]any, numCols)
	ptrs := make([]any, numCols)
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	return values, nil
}

func stripTrailingSemicolons(s string) string {
	s = strings.TrimSpace(s)
	for strings.HasSuffix(s, ";") {
		s = strings.TrimSpace(strings.TrimSuffix(s, ";"))
	}
	return s
}
