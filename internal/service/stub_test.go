package service_test

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dbai/internal/config"
	"dbai/internal/dbclient"
	"dbai/internal/domain"
	"dbai/internal/secret"
	"dbai/internal/service"
	"dbai/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// Stub adapter: canned data, call counters
// ─────────────────────────────────────────────────────────────

type stubAdapter struct {
	driver domain.DatabaseDriver

	// set before use
	connectFn   func(ctx context.Context) error
	executeFn   func(ctx context.Context, q dbclient.Query) (*dbclient.RawResult, error)
	listFn      func(ctx context.Context) ([]domain.CollectionInfo, error)
	pingErr     error
	docs        []dbclient.Document
	collections []domain.CollectionInfo

	connects atomic.Int32
	closes   atomic.Int32
	executes atomic.Int32
	lists    atomic.Int32

	mu          sync.Mutex
	lastSecret  string
	lastQueries []dbclient.Query
}

func newStub(driver domain.DatabaseDriver) *stubAdapter {
	return &stubAdapter{
		driver: driver,
		docs: []dbclient.Document{
			{{Key: "_id", Value: "u1"}, {Key: "name", Value: "Ada"}, {Key: "status", Value: "active"}},
			{{Key: "_id", Value: "u2"}, {Key: "name", Value: "Grace"}, {Key: "status", Value: "active"}},
			{{Key: "_id", Value: "u3"}, {Key: "email", Value: "lin@example.com"}, {Key: "status", Value: "active"}},
		},
		collections: []domain.CollectionInfo{
			{Name: "users", Fields: []domain.FieldInfo{{Name: "_id", Type: "objectId"}, {Name: "name", Type: "string"}}},
		},
	}
}

func (a *stubAdapter) Driver() domain.DatabaseDriver { return a.driver }

func (a *stubAdapter) Connect(ctx context.Context, _ *domain.ConnectionConfig, secretValue string) (dbclient.Conn, error) {
	a.connects.Add(1)
	a.mu.Lock()
	a.lastSecret = secretValue
	a.mu.Unlock()
	if a.connectFn != nil {
		if err := a.connectFn(ctx); err != nil {
			return nil, err
		}
	}
	return &stubConn{a: a}, nil
}

func (a *stubAdapter) secret() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastSecret
}

func (a *stubAdapter) queries() []dbclient.Query {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]dbclient.Query(nil), a.lastQueries...)
}

type stubConn struct {
	a *stubAdapter
}

func (c *stubConn) Execute(ctx context.Context, q dbclient.Query) (*dbclient.RawResult, error) {
	c.a.executes.Add(1)
	c.a.mu.Lock()
	c.a.lastQueries = append(c.a.lastQueries, q)
	c.a.mu.Unlock()
	if c.a.executeFn != nil {
		return c.a.executeFn(ctx, q)
	}
	docs := c.a.docs
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return &dbclient.RawResult{Shape: dbclient.ShapeDocuments, Documents: docs}, nil
}

func (c *stubConn) ListCollections(ctx context.Context) ([]domain.CollectionInfo, error) {
	c.a.lists.Add(1)
	if c.a.listFn != nil {
		return c.a.listFn(ctx)
	}
	return c.a.collections, nil
}

func (c *stubConn) Ping(context.Context) error { return c.a.pingErr }

func (c *stubConn) Close(context.Context) error {
	c.a.closes.Add(1)
	return nil
}

// ─────────────────────────────────────────────────────────────
// Service fixture
// ─────────────────────────────────────────────────────────────

type fixture struct {
	svc     *service.DatabaseService
	emitter *service.MockEmitter
	secrets *secret.MemoryStore
	cfg     *config.Config
}

func newFixture(t *testing.T, adapters []dbclient.Adapter, tweak ...func(*config.Config)) *fixture {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.New(filepath.Join(dir, "app.db"), dir)
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.Default()
	cfg.DataDir = dir
	cfg.Connect.Timeout = 2 * time.Second
	cfg.Query.DefaultTimeout = 2 * time.Second
	cfg.Health.Enabled = false
	for _, fn := range tweak {
		fn(cfg)
	}

	f := &fixture{emitter: &service.MockEmitter{}, secrets: secret.NewMemoryStore(), cfg: cfg}
	f.svc, err = service.NewDatabaseService(service.Deps{
		Config:       cfg,
		Connections:  storage.NewDBConnectionStore(db),
		History:      storage.NewQueryHistoryStore(db),
		SavedQueries: storage.NewSavedQueryStore(db),
		Secrets:      f.secrets,
		Adapters:     dbclient.NewRegistry(adapters...),
		Emitter:      f.emitter,
		Logger:       slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		f.svc.Close(ctx)
	})
	return f
}

func (f *fixture) saveMongo(t *testing.T, name string) string {
	t.Helper()
	v, err := f.svc.SaveConnection(context.Background(), service.ConnectionInput{
		Name: name, Driver: "mongodb", Host: "localhost", Database: "app",
		Username: "admin", Password: "s3cret",
	})
	if err != nil {
		t.Fatalf("save connection: %v", err)
	}
	return v.ID
}

func (f *fixture) connect(t *testing.T, id string) {
	t.Helper()
	if _, err := f.svc.Connect(context.Background(), id); err != nil {
		t.Fatalf("connect: %v", err)
	}
}

func (f *fixture) state(id string) domain.SessionState {
	return f.svc.Sessions().Status(id).State
}

func wantKind(t *testing.T, err error, kind domain.ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := domain.KindOf(err); got != kind {
		t.Fatalf("error kind = %q, want %q (err: %v)", got, kind, err)
	}
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}
