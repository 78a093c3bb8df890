package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"dbai/internal/domain"
)

// ─────────────────────────────────────────────────────────────
// Schema Cache
// ─────────────────────────────────────────────────────────────

// SchemaCache holds one snapshot per connection. Snapshots are immutable and
// replaced whole; a snapshot is only served while its session generation is
// current.
type SchemaCache struct {
	sessions *SessionRegistry
	logger   *slog.Logger

	mu    sync.Mutex
	snaps map[string]*domain.SchemaSnapshot
}

// NewSchemaCache creates a cache that drops entries whenever a session
// leaves connected.
func NewSchemaCache(sessions *SessionRegistry, logger *slog.Logger) *SchemaCache {
	c := &SchemaCache{
		sessions: sessions,
		logger:   logger.With("component", "schema"),
		snaps:    make(map[string]*domain.SchemaSnapshot),
	}
	sessions.OnLeaveConnected(c.Invalidate)
	return c
}

// Get returns the schema of id, fetching it when missing, stale or forced.
func (c *SchemaCache) Get(ctx context.Context, id string, forceRefresh bool) (*domain.SchemaSnapshot, error) {
	gen, connected := c.sessions.generation(id)
	if !connected {
		_, err := c.sessions.active(id, "schema")
		return nil, err
	}
	if !forceRefresh {
		c.mu.Lock()
		snap := c.snaps[id]
		c.mu.Unlock()
		if snap != nil && snap.Generation == gen {
			return snap, nil
		}
	}

	release, err := c.sessions.guard.Acquire(id, "schema")
	if err != nil {
		return nil, err
	}
	defer release()

	sess, err := c.sessions.active(id, "schema")
	if err != nil {
		return nil, err
	}
	fctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(sess.Ctx, cancel)
	defer stop()

	cols, err := sess.Conn.ListCollections(fctx)
	if err != nil {
		if sess.Ctx.Err() != nil {
			return nil, domain.E(domain.KindStaleSchema, "schema", id, errors.New("session ended while fetching schema"))
		}
		err = kinded(err, "schema", id, domain.KindQueryTimeout, domain.KindQuerySyntaxError)
		if errors.Is(err, domain.ErrConnectionLost) {
			c.sessions.markLost(id, sess.Generation, err)
		}
		return nil, err
	}
	if cols == nil {
		cols = []domain.CollectionInfo{}
	}
	snap := &domain.SchemaSnapshot{
		ConnectionID: id,
		Database:     sess.Config.Database,
		Collections:  cols,
		CapturedAt:   time.Now().UTC(),
		Generation:   sess.Generation,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if g, ok := c.sessions.generation(id); !ok || g != sess.Generation {
		delete(c.snaps, id)
		return nil, domain.E(domain.KindStaleSchema, "schema", id, errors.New("session changed while fetching schema"))
	}
	c.snaps[id] = snap
	c.logger.Debug("schema cached", "id", id, "collections", len(cols), "generation", snap.Generation)
	return snap, nil
}

// Invalidate drops the cached snapshot of id.
func (c *SchemaCache) Invalidate(id string) {
	c.mu.Lock()
	_, had := c.snaps[id]
	delete(c.snaps, id)
	c.mu.Unlock()
	if had {
		c.logger.Debug("schema invalidated", "id", id)
	}
}
