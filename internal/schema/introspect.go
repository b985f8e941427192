package schema

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/JonMunkholm/WebDbChat/internal/engine"
	apperrors "github.com/JonMunkholm/WebDbChat/internal/errors"
	"github.com/JonMunkholm/WebDbChat/internal/logging"
	"github.com/JonMunkholm/WebDbChat/internal/metrics"
)

const defaultIntrospectTimeout = 30 * time.Second

// catalog reads tables and relationships from one engine's metadata catalog.
type catalog interface {
	loadTables(ctx context.Context, db *sql.DB, database string) ([]Table, error)
	loadRelationships(ctx context.Context, db *sql.DB, database string) ([]Relationship, error)
}

func catalogFor(kind engine.Kind) (catalog, error) {
	switch kind {
	case engine.Postgres:
		return postgresCatalog{}, nil
	case engine.MySQL:
		return mysqlCatalog{}, nil
	case engine.SQLite:
		return sqliteCatalog{}, nil
	default:
		return nil, apperrors.Newf(apperrors.KindUnsupportedEngine, "Database type %q is not supported", kind)
	}
}

// Introspector queries a target database's catalog and builds a Snapshot.
type Introspector struct {
	open    engine.Opener
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewIntrospector creates an introspector. A nil opener uses engine.Open.
func NewIntrospector(open engine.Opener, timeout time.Duration, logger *zap.Logger) *Introspector {
	if open == nil {
		open = engine.Open
	}
	if timeout <= 0 {
		timeout = defaultIntrospectTimeout
	}
	return &Introspector{open: open, timeout: timeout, logger: logging.OrNop(logger), now: time.Now}
}

// Introspect fetches a fresh snapshot for cfg.
func (i *Introspector) Introspect(ctx context.Context, cfg engine.Config) (Snapshot, error) {
	cat, err := catalogFor(cfg.Kind)
	if err != nil {
		return Snapshot{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	start := time.Now()
	db, err := i.open(ctx, cfg)
	if err != nil {
		metrics.ObserveIntrospection(string(cfg.Kind), "connectivity")
		if apperrors.KindOf(err) == apperrors.KindInternal {
			err = apperrors.Wrap(err, apperrors.KindConnectivity, "connect to database")
		}
		return Snapshot{}, err
	}
	defer func() { _ = db.Close() }()

	tables, err := cat.loadTables(ctx, db, cfg.Database)
	if err != nil {
		metrics.ObserveIntrospection(string(cfg.Kind), "error")
		return Snapshot{}, apperrors.Wrap(err, apperrors.KindEngineExecution, "load tables")
	}
	rels, err := cat.loadRelationships(ctx, db, cfg.Database)
	if err != nil {
		metrics.ObserveIntrospection(string(cfg.Kind), "error")
		return Snapshot{}, apperrors.Wrap(err, apperrors.KindEngineExecution, "load relationships")
	}

	snap := NewSnapshot(tables, rels, i.now())
	metrics.ObserveIntrospection(string(cfg.Kind), "ok")
	i.logger.Info("schema introspected",
		zap.String("engine", string(cfg.Kind)),
		zap.Int("tables", len(tables)),
		zap.Int("relationships", len(rels)),
		zap.Duration("duration", time.Since(start)))
	return snap, nil
}
