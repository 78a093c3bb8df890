package storage_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"dbai/internal/domain"
	"dbai/internal/storage"
)

func openTestDB(t *testing.T) *storage.DB {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.New(filepath.Join(dir, "dbai.db"), dir)
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// ─────────────────────────────────────────────────────────────
// Migrations
// ─────────────────────────────────────────────────────────────

func TestNew_MigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dbai.db")
	db, err := storage.New(path, dir)
	if err != nil {
		t.Fatal(err)
	}
	db.Close()

	db, err = storage.New(path, dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	db.Close()
}

// ─────────────────────────────────────────────────────────────
// DBConnectionStore
// ─────────────────────────────────────────────────────────────

func TestDBConnectionStore_CRUD(t *testing.T) {
	s := storage.NewDBConnectionStore(openTestDB(t))

	c := &domain.ConnectionConfig{
		ID: "c1", Name: "Local PG", Kind: domain.KindRelational, Driver: domain.DatabaseDriverPostgres,
		Host: "localhost", Port: 5432, Database: "app", Username: "app",
		SecretRef: "dbai:conn:c1", TLS: true, Options: map[string]string{"sslmode": "require"},
	}
	if err := s.UpsertConnection(c); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	created := c.CreatedAt

	got, err := s.GetConnection("c1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "Local PG" || got.Port != 5432 || !got.TLS || got.Options["sslmode"] != "require" {
		t.Errorf("unexpected round trip: %+v", got)
	}
	if got.SecretRef != "dbai:conn:c1" {
		t.Errorf("secret ref = %q", got.SecretRef)
	}

	time.Sleep(5 * time.Millisecond)
	c.Name = "Renamed"
	if err := s.UpsertConnection(c); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got, _ = s.GetConnection("c1")
	if got.Name != "Renamed" {
		t.Errorf("name after replace = %q", got.Name)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt changed on replace: %v -> %v", created, got.CreatedAt)
	}

	list, err := s.ListConnections()
	if err != nil || len(list) != 1 {
		t.Fatalf("List = %v, %v", list, err)
	}

	if err := s.DeleteConnection("c1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.GetConnection("c1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get after delete err = %v", err)
	}
	if err := s.DeleteConnection("c1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}

func TestDBConnectionStore_ListOrderedByName(t *testing.T) {
	s := storage.NewDBConnectionStore(openTestDB(t))
	for _, n := range []string{"zeta", "alpha", "mid"} {
		c := &domain.ConnectionConfig{ID: n, Name: n, Kind: domain.KindEmbeddedFile, Driver: domain.DatabaseDriverSQLite, Database: "/tmp/" + n}
		if err := s.UpsertConnection(c); err != nil {
			t.Fatal(err)
		}
	}
	list, _ := s.ListConnections()
	if len(list) != 3 || list[0].Name != "alpha" || list[2].Name != "zeta" {
		t.Errorf("order = %v", list)
	}
	if list[0].Options != nil {
		t.Errorf("nil options should stay nil, got %v", list[0].Options)
	}
}

// ─────────────────────────────────────────────────────────────
// QueryHistoryStore
// ─────────────────────────────────────────────────────────────

func TestQueryHistoryStore(t *testing.T) {
	s := storage.NewQueryHistoryStore(openTestDB(t))
	base := time.Now().Add(-time.Hour)
	for i, q := range []string{"SELECT 1", "SELECT 2", "SELECT 3"} {
		e := &domain.QueryHistoryEntry{
			ID: q, ConnectionID: "c1", Query: q, ExecutedAt: base.Add(time.Duration(i) * time.Minute),
			RecordCount: i, DurationMs: 10,
		}
		if i == 2 {
			e.ConnectionID = "c2"
			e.ErrorKind = domain.KindQuerySyntaxError
			e.Error = "syntax error"
		}
		if err := s.AppendHistory(e); err != nil {
			t.Fatal(err)
		}
	}

	recent, err := s.RecentHistory(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].Query != "SELECT 3" {
		t.Fatalf("recent = %+v", recent)
	}
	if recent[0].ErrorKind != domain.KindQuerySyntaxError {
		t.Errorf("error kind = %q", recent[0].ErrorKind)
	}

	if err := s.DeleteHistoryByConnection("c1"); err != nil {
		t.Fatal(err)
	}
	recent, _ = s.RecentHistory(10)
	if len(recent) != 1 {
		t.Errorf("after delete got %d entries", len(recent))
	}
}

// ─────────────────────────────────────────────────────────────
// SavedQueryStore + SettingsStore
// ─────────────────────────────────────────────────────────────

func TestSavedQueryStore(t *testing.T) {
	s := storage.NewSavedQueryStore(openTestDB(t))
	q := &domain.SavedQuery{ID: "q1", Name: "active users", ConnectionID: "c1", Query: "SELECT * FROM users"}
	if err := s.UpsertSavedQuery(q); err != nil {
		t.Fatal(err)
	}
	q.Query = "SELECT id FROM users"
	if err := s.UpsertSavedQuery(q); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetSavedQuery("q1")
	if err != nil || got.Query != "SELECT id FROM users" {
		t.Fatalf("Get = %+v, %v", got, err)
	}
	list, _ := s.ListSavedQueries()
	if len(list) != 1 {
		t.Fatalf("list len = %d", len(list))
	}
	if err := s.DeleteSavedQuery("q1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetSavedQuery("q1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestSettingsStore(t *testing.T) {
	s := storage.NewSettingsStore(openTestDB(t))
	if _, ok, err := s.Get("theme"); ok || err != nil {
		t.Fatalf("unset key: ok=%v err=%v", ok, err)
	}
	if err := s.Set("theme", "dark"); err != nil {
		t.Fatal(err)
	}
	if err := s.Set("theme", "light"); err != nil {
		t.Fatal(err)
	}
	v, ok, err := s.Get("theme")
	if err != nil || !ok || v != "light" {
		t.Errorf("Get = %q %v %v", v, ok, err)
	}
}
