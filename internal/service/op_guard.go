package service

import (
	"context"
	"sync"

	"dbai/internal/domain"
)

// ExportedOpGuard is an exported alias so _test packages can test the guard.
type ExportedOpGuard = opGuard

// ─────────────────────────────────────────────────────────────
// opGuard: one outstanding operation per connection id
// ─────────────────────────────────────────────────────────────

// opGuard ensures only one connect/test/execute/schema operation runs per
// connection id at a time. A second caller is rejected, not queued.
type opGuard struct {
	mu      sync.Mutex
	running map[string]string // id -> op holding it
	wg      sync.WaitGroup
}

// TryLock attempts to mark id as busy. Returns false if it already is.
func (g *opGuard) TryLock(id string) bool {
	return g.tryLock(id, "operation")
}

func (g *opGuard) tryLock(id, op string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running == nil {
		g.running = make(map[string]string)
	}
	if _, ok := g.running[id]; ok {
		return false
	}
	g.running[id] = op
	g.wg.Add(1)
	return true
}

// Unlock marks id as free. Must be called after TryLock returns true.
func (g *opGuard) Unlock(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.running, id)
	g.wg.Done()
}

// Acquire locks id for op or fails with OperationInProgress naming the
// operation already running. The returned func releases the lock.
func (g *opGuard) Acquire(id, op string) (func(), error) {
	if !g.tryLock(id, op) {
		g.mu.Lock()
		holder := g.running[id]
		g.mu.Unlock()
		if holder == "" {
			holder = "operation"
		}
		err := domain.Errorf(domain.KindOperationInProgress, "%s already running", holder)
		err.Op, err.ID = op, id
		return nil, err
	}
	return func() { g.Unlock(id) }, nil
}

// Busy reports whether an operation is outstanding on id.
func (g *opGuard) Busy(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.running[id]
	return ok
}

// WaitAll blocks until all running operations complete or ctx is cancelled.
func (g *opGuard) WaitAll(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
