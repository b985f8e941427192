package schema

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JonMunkholm/WebDbChat/internal/engine"
	apperrors "github.com/JonMunkholm/WebDbChat/internal/errors"
	"github.com/JonMunkholm/WebDbChat/internal/logging"
)

// Store holds one snapshot per connection key.
type Store interface {
	Get(key string) (Snapshot, bool)
	Replace(key string, s Snapshot)
}

// MemoryStore is an in-process Store safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[string]Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string]Snapshot)}
}

func (m *MemoryStore) Get(key string) (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.snaps[key]
	return s, ok
}

func (m *MemoryStore) Replace(key string, s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[key] = s
}

// Source produces a fresh snapshot for a connection.
type Source interface {
	Introspect(ctx context.Context, cfg engine.Config) (Snapshot, error)
}

// Resolver returns a usable snapshot for a connection, introspecting on a
// miss, on an invalid cached entry, or once the TTL has passed.
type Resolver struct {
	source Source
	store  Store
	ttl    time.Duration // zero disables expiry
	logger *zap.Logger
	group  singleflight.Group
	now    func() time.Time
}

func NewResolver(source Source, store Store, ttl time.Duration, logger *zap.Logger) *Resolver {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Resolver{
		source: source,
		store:  store,
		ttl:    ttl,
		logger: logging.OrNop(logger),
		now:    time.Now,
	}
}

// Resolve returns the cached snapshot for key when it is still usable, and
// otherwise fetches and caches a fresh one.
func (r *Resolver) Resolve(ctx context.Context, key string, cfg engine.Config) (Snapshot, error) {
	if s, ok := r.store.Get(key); ok {
		if Valid(s) && !r.expired(s) {
			return s, nil
		}
		r.logger.Info("cached schema unusable, refetching",
			zap.String("connection", key),
			zap.Bool("valid", Valid(s)))
	}
	return r.fetch(ctx, key, cfg)
}

// Refresh introspects unconditionally and replaces the cached snapshot.
func (r *Resolver) Refresh(ctx context.Context, key string, cfg engine.Config) (Snapshot, error) {
	return r.fetch(ctx, key, cfg)
}

func (r *Resolver) expired(s Snapshot) bool {
	return r.ttl > 0 && r.now().Sub(s.FetchedAt) > r.ttl
}

// fetch shares one introspection among concurrent callers for key. The shared
// call is detached from any single caller's cancellation and is bounded by the
// source's own timeout; each caller still stops waiting when its ctx ends.
func (r *Resolver) fetch(ctx context.Context, key string, cfg engine.Config) (Snapshot, error) {
	flightCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (any, error) {
		s, err := r.source.Introspect(flightCtx, cfg)
		if err != nil {
			return Snapshot{}, err
		}
		if !Valid(s) {
			return Snapshot{}, apperrors.New(apperrors.KindSchemaUnavailable,
				"Could not retrieve a usable database schema")
		}
		r.store.Replace(key, s)
		return s, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			r.logger.Warn("schema fetch failed", zap.String("connection", key), zap.Error(res.Err))
			return Snapshot{}, res.Err
		}
		return res.Val.(Snapshot), nil
	case <-ctx.Done():
		return Snapshot{}, apperrors.Wrap(ctx.Err(), apperrors.KindSchemaUnavailable,
			"Schema retrieval was canceled")
	}
}
