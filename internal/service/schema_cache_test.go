package service_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"dbai/internal/dbclient"
	"dbai/internal/domain"
	"dbai/internal/service"
)

func TestSchemaCache_ServesCachedSnapshot(t *testing.T) {
	stub := newStub(domain.DatabaseDriverMongoDB)
	f := newFixture(t, []dbclient.Adapter{stub})
	ctx := context.Background()
	id := f.saveMongo(t, "mongo")
	f.connect(t, id)

	first, err := f.svc.GetSchema(ctx, id, false)
	if err != nil {
		t.Fatalf("get schema: %v", err)
	}
	second, err := f.svc.GetSchema(ctx, id, false)
	if err != nil {
		t.Fatalf("get schema again: %v", err)
	}
	if first != second {
		t.Fatal("expected the identical cached snapshot")
	}
	if n := stub.lists.Load(); n != 1 {
		t.Fatalf("expected one adapter fetch, got %d", n)
	}
	if first.Database != "app" || first.Generation != 1 {
		t.Errorf("unexpected snapshot header: %+v", first)
	}
	if _, ok := first.Collection("users"); !ok {
		t.Error("expected users collection")
	}

	forced, err := f.svc.GetSchema(ctx, id, true)
	if err != nil {
		t.Fatalf("force refresh: %v", err)
	}
	if forced == first {
		t.Fatal("force refresh must build a new snapshot")
	}
	if n := stub.lists.Load(); n != 2 {
		t.Fatalf("expected two adapter fetches, got %d", n)
	}
}

func TestSchemaCache_DroppedOnDisconnect(t *testing.T) {
	stub := newStub(domain.DatabaseDriverMongoDB)
	f := newFixture(t, []dbclient.Adapter{stub})
	ctx := context.Background()
	id := f.saveMongo(t, "mongo")
	f.connect(t, id)

	if _, err := f.svc.GetSchema(ctx, id, false); err != nil {
		t.Fatalf("get schema: %v", err)
	}
	if _, err := f.svc.Disconnect(ctx, id); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	_, err := f.svc.GetSchema(ctx, id, false)
	wantKind(t, err, domain.KindSessionNotConnected)

	f.connect(t, id)
	snap, err := f.svc.GetSchema(ctx, id, false)
	if err != nil {
		t.Fatalf("get schema after reconnect: %v", err)
	}
	if snap.Generation != 2 {
		t.Errorf("expected generation 2, got %d", snap.Generation)
	}
	if n := stub.lists.Load(); n != 2 {
		t.Fatalf("expected refetch after reconnect, got %d fetches", n)
	}
}

func TestSchemaCache_EmptyCollections(t *testing.T) {
	stub := newStub(domain.DatabaseDriverMongoDB)
	stub.collections = nil
	f := newFixture(t, []dbclient.Adapter{stub})
	id := f.saveMongo(t, "mongo")
	f.connect(t, id)

	snap, err := f.svc.GetSchema(context.Background(), id, false)
	if err != nil {
		t.Fatalf("get schema: %v", err)
	}
	if snap.Collections == nil || len(snap.Collections) != 0 {
		t.Fatalf("expected empty non-nil collections, got %#v", snap.Collections)
	}
}

func TestSchemaCache_DisconnectDuringFetch(t *testing.T) {
	stub := newStub(domain.DatabaseDriverMongoDB)
	started := make(chan struct{})
	stub.listFn = func(ctx context.Context) ([]domain.CollectionInfo, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	f := newFixture(t, []dbclient.Adapter{stub})
	ctx := context.Background()
	id := f.saveMongo(t, "mongo")
	f.connect(t, id)

	errc := make(chan error, 1)
	go func() {
		_, err := f.svc.GetSchema(ctx, id, false)
		errc <- err
	}()
	<-started
	if _, err := f.svc.Disconnect(ctx, id); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	select {
	case err := <-errc:
		wantKind(t, err, domain.KindStaleSchema)
	case <-time.After(2 * time.Second):
		t.Fatal("schema fetch did not finish after disconnect")
	}
}

func TestSchemaCache_FetchErrorNotCached(t *testing.T) {
	stub := newStub(domain.DatabaseDriverMongoDB)
	calls := 0
	stub.listFn = func(context.Context) ([]domain.CollectionInfo, error) {
		calls++
		if calls == 1 {
			return nil, domain.Errorf(domain.KindPermissionDenied, "not authorized")
		}
		return []domain.CollectionInfo{{Name: "orders"}}, nil
	}
	f := newFixture(t, []dbclient.Adapter{stub})
	ctx := context.Background()
	id := f.saveMongo(t, "mongo")
	f.connect(t, id)

	_, err := f.svc.GetSchema(ctx, id, false)
	wantKind(t, err, domain.KindPermissionDenied)
	if got := f.state(id); got != domain.SessionConnected {
		t.Fatalf("permission errors keep the session, got %s", got)
	}

	snap, err := f.svc.GetSchema(ctx, id, false)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if len(snap.Collections) != 1 || snap.Collections[0].Name != "orders" {
		t.Fatalf("unexpected collections %+v", snap.Collections)
	}
}

// ─────────────────────────────────────────────────────────────
// File watcher
// ─────────────────────────────────────────────────────────────

func TestFileWatcher_RemovedFileMarksSessionLost(t *testing.T) {
	stub := newStub(domain.DatabaseDriverSQLite)
	f := newFixture(t, []dbclient.Adapter{stub})
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "shop.db")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write db file: %v", err)
	}
	v, err := f.svc.SaveConnection(ctx, service.ConnectionInput{Name: "shop", Driver: "sqlite", Database: path})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	f.connect(t, v.ID)

	if err := os.Remove(path); err != nil {
		t.Fatalf("remove db file: %v", err)
	}
	eventually(t, func() bool { return f.state(v.ID) == domain.SessionErrored }, "session errored after file removal")

	st := f.svc.Sessions().Status(v.ID)
	if st.ErrorKind != domain.KindConnectionLost {
		t.Errorf("expected ConnectionLost, got %q", st.ErrorKind)
	}
}

func TestFileWatcher_WriteInvalidatesSchema(t *testing.T) {
	stub := newStub(domain.DatabaseDriverSQLite)
	f := newFixture(t, []dbclient.Adapter{stub})
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "shop.db")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write db file: %v", err)
	}
	v, err := f.svc.SaveConnection(ctx, service.ConnectionInput{Name: "shop", Driver: "sqlite", Database: path})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	f.connect(t, v.ID)
	first, err := f.svc.GetSchema(ctx, v.ID, false)
	if err != nil {
		t.Fatalf("get schema: %v", err)
	}

	if err := os.WriteFile(path+"-wal", []byte("change"), 0o644); err != nil {
		t.Fatalf("write wal: %v", err)
	}
	eventually(t, func() bool {
		snap, err := f.svc.GetSchema(ctx, v.ID, false)
		return err == nil && snap != first
	}, "schema refetched after file change")

	if got := f.state(v.ID); got != domain.SessionConnected {
		t.Fatalf("writes must not end the session, got %s", got)
	}
}

func TestFileWatcher_OnlyWatchesConnectedGeneration(t *testing.T) {
	stub := newStub(domain.DatabaseDriverSQLite)
	f := newFixture(t, []dbclient.Adapter{stub})
	ctx := context.Background()
	reg := f.svc.Sessions()
	logger := slog.New(slog.DiscardHandler)
	fw, err := service.NewFileWatcher(reg, service.NewSchemaCache(reg, logger), logger)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	t.Cleanup(func() { fw.Close() })

	path := filepath.Join(t.TempDir(), "shop.db")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write db file: %v", err)
	}
	v, err := f.svc.SaveConnection(ctx, service.ConnectionInput{Name: "shop", Driver: "sqlite", Database: path})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	cfg := &domain.ConnectionConfig{ID: v.ID, Kind: domain.KindEmbeddedFile, Driver: domain.DatabaseDriverSQLite, Database: path}

	f.connect(t, v.ID)
	first := reg.Status(v.ID).Generation

	// the session drops before the watch is registered
	reg.MarkLost(v.ID, errors.New("backend gone"))
	if err := fw.Watch(cfg, first); err != nil {
		t.Fatalf("watch: %v", err)
	}
	if n := fw.Watched(); n != 0 {
		t.Fatalf("lost session still watched: %d files", n)
	}

	f.connect(t, v.ID)
	second := reg.Status(v.ID).Generation
	if second == first {
		t.Fatalf("reconnect kept generation %d", first)
	}
	if err := fw.Watch(cfg, second); err != nil {
		t.Fatalf("watch: %v", err)
	}
	if err := fw.Watch(cfg, first); err != nil {
		t.Fatalf("watch stale: %v", err)
	}
	if n := fw.Watched(); n != 1 {
		t.Fatalf("expected 1 watched file, got %d", n)
	}

	if _, err := f.svc.Disconnect(ctx, v.ID); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if n := fw.Watched(); n != 0 {
		t.Fatalf("disconnected session still watched: %d files", n)
	}
}
