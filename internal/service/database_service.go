package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dbai/internal/config"
	"dbai/internal/dbclient"
	"dbai/internal/domain"
	"dbai/internal/secret"

	"github.com/google/uuid"
)

// ─────────────────────────────────────────────────────────────
// Database Service: the surface the shell, CLI and MCP server use
// ─────────────────────────────────────────────────────────────

// ConnectionInput is the service-layer DTO for creating/updating connections.
// Defined here to avoid circular imports with the app package.
type ConnectionInput struct {
	ID       string            `json:"id,omitempty"`
	Name     string            `json:"name"`
	Driver   string            `json:"driver"`
	Host     string            `json:"host"`
	Port     int               `json:"port"`
	Database string            `json:"database"`
	Username string            `json:"username"`
	Password string            `json:"password"`
	TLS      bool              `json:"tls"`
	Options  map[string]string `json:"options,omitempty"`
}

func (in ConnectionInput) config() *domain.ConnectionConfig {
	return &domain.ConnectionConfig{
		ID:       in.ID,
		Name:     in.Name,
		Driver:   domain.DatabaseDriver(strings.ToLower(strings.TrimSpace(in.Driver))),
		Host:     in.Host,
		Port:     in.Port,
		Database: in.Database,
		Username: in.Username,
		TLS:      in.TLS,
		Options:  in.Options,
	}
}

// Deps are the collaborators of a DatabaseService.
type Deps struct {
	Config       *config.Config
	Connections  domain.ConnectionStore
	History      domain.QueryHistoryStore
	SavedQueries domain.SavedQueryStore
	Secrets      secret.SecretStore
	Adapters     *dbclient.Registry
	Emitter      EventEmitter
	Logger       *slog.Logger
}

// DatabaseService wires the credential store, session registry, executor,
// schema cache, health checks and file watcher together.
type DatabaseService struct {
	cfg     *config.Config
	creds   *CredentialStore
	reg     *SessionRegistry
	exec    *QueryExecutor
	schema  *SchemaCache
	health  *HealthChecker
	watcher *FileWatcher
	history domain.QueryHistoryStore
	saved   domain.SavedQueryStore
	logger  *slog.Logger
}

// NewDatabaseService creates a DatabaseService. Call Start to begin health
// checks and Close on shutdown.
func NewDatabaseService(d Deps) (*DatabaseService, error) {
	if d.Config == nil {
		d.Config = config.Default()
	}
	if d.Logger == nil {
		d.Logger = slog.New(slog.DiscardHandler)
	}
	if d.Adapters == nil {
		d.Adapters = dbclient.DefaultRegistry(d.Logger)
	}
	if d.Secrets == nil {
		d.Secrets = secret.NewMemoryStore()
	}
	if d.Connections == nil {
		return nil, errors.New("database service: connection store is required")
	}

	creds := NewCredentialStore(d.Connections, d.Secrets, d.Logger)
	reg := NewSessionRegistry(creds, d.Adapters, d.Emitter, d.Logger, d.Config.Connect.Timeout)
	schema := NewSchemaCache(reg, d.Logger)
	s := &DatabaseService{
		cfg:     d.Config,
		creds:   creds,
		reg:     reg,
		exec:    NewQueryExecutor(reg, d.History, d.Logger, d.Config.Query.DefaultTimeout, d.Config.Query.DefaultMaxRows),
		schema:  schema,
		health:  NewHealthChecker(reg, d.Config.Health.Interval, d.Config.Connect.Timeout, d.Logger),
		history: d.History,
		saved:   d.SavedQueries,
		logger:  d.Logger.With("component", "database"),
	}
	w, err := NewFileWatcher(reg, schema, d.Logger)
	if err != nil {
		s.logger.Warn("file watcher unavailable", "error", err)
	} else {
		s.watcher = w
	}
	return s, nil
}

// Start begins background health checks when enabled.
func (s *DatabaseService) Start() error {
	if !s.cfg.Health.Enabled {
		return nil
	}
	return s.health.Start()
}

// Close stops background work and disconnects every session.
func (s *DatabaseService) Close(ctx context.Context) error {
	s.health.Stop(ctx)
	err := s.reg.CloseAll(ctx)
	if s.watcher != nil {
		if werr := s.watcher.Close(); werr != nil {
			s.logger.Warn("close watcher", "error", werr)
		}
	}
	return err
}

// Sessions exposes the registry for status queries.
func (s *DatabaseService) Sessions() *SessionRegistry { return s.reg }

// Health exposes the health checker.
func (s *DatabaseService) Health() *HealthChecker { return s.health }

// ── Connection CRUD ────────────────────────────────────────

func (s *DatabaseService) ListConnections(ctx context.Context) ([]ConnectionView, error) {
	return s.creds.List(ctx)
}

func (s *DatabaseService) GetConnection(ctx context.Context, id string) (ConnectionView, error) {
	c, err := s.creds.Get(ctx, id)
	if err != nil {
		return ConnectionView{}, err
	}
	return viewOf(c), nil
}

// SaveConnection creates or replaces a connection. An empty password keeps
// the stored secret.
func (s *DatabaseService) SaveConnection(ctx context.Context, in ConnectionInput) (ConnectionView, error) {
	c, err := s.creds.Put(ctx, in.config(), in.Password)
	if err != nil {
		return ConnectionView{}, err
	}
	return viewOf(c), nil
}

// DeleteConnection removes a connection, its secret and its history.
func (s *DatabaseService) DeleteConnection(ctx context.Context, id string) error {
	if err := s.creds.Delete(ctx, id); err != nil {
		return err
	}
	s.exec.Forget(id)
	s.schema.Invalidate(id)
	if s.history != nil {
		if err := s.history.DeleteHistoryByConnection(id); err != nil {
			s.logger.Warn("delete history failed", "id", id, "error", err)
		}
	}
	return nil
}

// ── Sessions ───────────────────────────────────────────────

func (s *DatabaseService) Connect(ctx context.Context, id string) (domain.SessionStatus, error) {
	st, err := s.reg.Connect(ctx, id)
	if err != nil {
		return st, err
	}
	if s.watcher != nil {
		if a, aerr := s.reg.active(id, "watch"); aerr == nil {
			if werr := s.watcher.Watch(a.Config, st.Generation); werr != nil {
				s.logger.Warn("watch database file failed", "id", id, "error", werr)
			}
		}
	}
	return st, nil
}

func (s *DatabaseService) Disconnect(ctx context.Context, id string) (domain.SessionStatus, error) {
	return s.reg.Disconnect(ctx, id)
}

func (s *DatabaseService) TestConnection(ctx context.Context, id string) error {
	return s.reg.TestConnection(ctx, id)
}

// TestConnectionInput checks a config before it is saved.
func (s *DatabaseService) TestConnectionInput(ctx context.Context, in ConnectionInput) error {
	return s.reg.TestConfig(ctx, in.config(), in.Password)
}

// ConnectionStatuses returns one status per saved connection.
func (s *DatabaseService) ConnectionStatuses(ctx context.Context) ([]domain.SessionStatus, error) {
	views, err := s.creds.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.SessionStatus, len(views))
	for i, v := range views {
		out[i] = s.reg.Status(v.ID)
	}
	return out, nil
}

// ── Queries ────────────────────────────────────────────────

func (s *DatabaseService) ExecuteQuery(ctx context.Context, req domain.QueryRequest) (*domain.QueryResult, error) {
	return s.exec.Execute(ctx, req)
}

func (s *DatabaseService) GetSchema(ctx context.Context, id string, forceRefresh bool) (*domain.SchemaSnapshot, error) {
	return s.schema.Get(ctx, id, forceRefresh)
}

// RecentQueries returns the newest history entries. limit <= 0 uses the
// configured default.
func (s *DatabaseService) RecentQueries(limit int) ([]domain.QueryHistoryEntry, error) {
	if s.history == nil {
		return []domain.QueryHistoryEntry{}, nil
	}
	if limit <= 0 {
		limit = s.cfg.Query.HistoryLimit
	}
	return s.history.RecentHistory(limit)
}

// ── Saved queries ──────────────────────────────────────────

func (s *DatabaseService) SaveQuery(name, connectionID, text string) (*domain.SavedQuery, error) {
	if s.saved == nil {
		return nil, errors.New("saved queries unavailable")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.Errorf(domain.KindInvalidConfig, "query name is required")
	}
	if strings.TrimSpace(text) == "" {
		return nil, domain.Errorf(domain.KindInvalidConfig, "query text is required")
	}
	now := time.Now().UTC()
	q := &domain.SavedQuery{
		ID:           uuid.NewString(),
		Name:         name,
		ConnectionID: connectionID,
		Query:        text,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.saved.UpsertSavedQuery(q); err != nil {
		return nil, fmt.Errorf("save query: %w", err)
	}
	return q, nil
}

func (s *DatabaseService) ListSavedQueries() ([]domain.SavedQuery, error) {
	if s.saved == nil {
		return []domain.SavedQuery{}, nil
	}
	return s.saved.ListSavedQueries()
}

func (s *DatabaseService) DeleteSavedQuery(id string) error {
	if s.saved == nil {
		return errors.New("saved queries unavailable")
	}
	return s.saved.DeleteSavedQuery(id)
}

// ── Export ─────────────────────────────────────────────────

// ExportLastResult writes the last successful result of connection id to
// path. The format comes from format, or from the file extension when empty.
func (s *DatabaseService) ExportLastResult(id, path string, format ExportFormat) error {
	res, ok := s.exec.LastResult(id)
	if !ok {
		return domain.E(domain.KindNotFound, "export", id, errors.New("no result to export"))
	}
	if format == "" {
		format = ExportFormat(strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."))
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	if err := WriteResult(f, res, format); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close export file: %w", err)
	}
	s.logger.Info("exported result", "id", id, "path", path, "records", len(res.Records))
	return nil
}
