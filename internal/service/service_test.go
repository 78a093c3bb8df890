package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"dbai/internal/domain"
	"dbai/internal/service"
)

// ─────────────────────────────────────────────────────────────
// opGuard tests
// ─────────────────────────────────────────────────────────────

func TestOpGuard_TryLock(t *testing.T) {
	var g service.ExportedOpGuard

	if !g.TryLock("conn-1") {
		t.Fatal("expected first TryLock to succeed")
	}
	if g.TryLock("conn-1") {
		t.Fatal("expected second TryLock for same id to fail")
	}
	if !g.TryLock("conn-2") {
		t.Fatal("expected TryLock for different id to succeed")
	}
	g.Unlock("conn-1")
	g.Unlock("conn-2")

	if !g.TryLock("conn-1") {
		t.Fatal("expected TryLock to succeed after unlock")
	}
	g.Unlock("conn-1")
}

func TestOpGuard_WaitAll(t *testing.T) {
	var g service.ExportedOpGuard

	if !g.TryLock("conn-a") {
		t.Fatal("expected lock to succeed")
	}

	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		g.WaitAll(ctx)
		close(done)
	}()

	go func() {
		time.Sleep(20 * time.Millisecond)
		g.Unlock("conn-a")
	}()

	select {
	case <-done:
		// success
	case <-time.After(1 * time.Second):
		t.Fatal("WaitAll timed out")
	}
}

func TestOpGuard_AcquireNamesHolder(t *testing.T) {
	var g service.ExportedOpGuard

	release, err := g.Acquire("conn-1", "execute")
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	_, err = g.Acquire("conn-1", "schema")
	if !errors.Is(err, domain.ErrOperationInProgress) {
		t.Fatalf("expected OperationInProgress, got %v", err)
	}
	var de *domain.Error
	if !errors.As(err, &de) || de.Op != "schema" || de.ID != "conn-1" {
		t.Fatalf("expected op/id on error, got %#v", err)
	}
	if !g.Busy("conn-1") {
		t.Fatal("expected conn-1 busy")
	}
	release()
	if g.Busy("conn-1") {
		t.Fatal("expected conn-1 free after release")
	}
}

// ─────────────────────────────────────────────────────────────
// MockEmitter tests
// ─────────────────────────────────────────────────────────────

func TestMockEmitter_RecordsEvents(t *testing.T) {
	m := &service.MockEmitter{}
	ctx := context.Background()

	m.Emit(ctx, "test:event", map[string]string{"foo": "bar"})
	m.Emit(ctx, "test:event2", nil)

	if len(m.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(m.Events))
	}
	if m.Events[0].Event != "test:event" {
		t.Errorf("expected 'test:event', got %q", m.Events[0].Event)
	}
}

func TestMockEmitter_LastEvent(t *testing.T) {
	m := &service.MockEmitter{}
	ctx := context.Background()

	m.Emit(ctx, "a", "first")
	m.Emit(ctx, "b", "second")

	if m.Events[len(m.Events)-1].Event != "b" {
		t.Errorf("expected last event 'b', got %q", m.Events[len(m.Events)-1].Event)
	}
}
