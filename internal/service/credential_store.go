package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dbai/internal/domain"
	"dbai/internal/secret"

	"github.com/google/uuid"
)

// ─────────────────────────────────────────────────────────────
// Credential Store: connection configs + secret references
// ─────────────────────────────────────────────────────────────

// ConnectionView is the display form of a config: no secret, no secret ref.
type ConnectionView struct {
	ID        string                `json:"id"`
	Name      string                `json:"name"`
	Kind      domain.BackendKind    `json:"kind"`
	Driver    domain.DatabaseDriver `json:"driver"`
	Host      string                `json:"host"`
	Port      int                   `json:"port"`
	Database  string                `json:"database"`
	Username  string                `json:"username"`
	TLS       bool                  `json:"tls"`
	Options   map[string]string     `json:"options,omitempty"`
	HasSecret bool                  `json:"hasSecret"`
	CreatedAt time.Time             `json:"createdAt"`
	UpdatedAt time.Time             `json:"updatedAt"`
}

func viewOf(c *domain.ConnectionConfig) ConnectionView {
	cp := c.Clone()
	return ConnectionView{
		ID: cp.ID, Name: cp.Name, Kind: cp.Kind, Driver: cp.Driver,
		Host: cp.Host, Port: cp.Port, Database: cp.Database, Username: cp.Username,
		TLS: cp.TLS, Options: cp.Options, HasSecret: cp.SecretRef != "",
		CreatedAt: cp.CreatedAt, UpdatedAt: cp.UpdatedAt,
	}
}

// CredentialStore validates and persists connection configs. Secrets go to
// the SecretStore under a per-connection key; the config only keeps the key.
type CredentialStore struct {
	store   domain.ConnectionStore
	secrets secret.SecretStore
	logger  *slog.Logger

	// inUse reports whether a live session holds id. Set by the registry.
	inUse func(id string) bool
}

// NewCredentialStore creates a CredentialStore.
func NewCredentialStore(store domain.ConnectionStore, secrets secret.SecretStore, logger *slog.Logger) *CredentialStore {
	return &CredentialStore{
		store:   store,
		secrets: secrets,
		logger:  logger.With("component", "credentials"),
		inUse:   func(string) bool { return false },
	}
}

func secretKey(id string) string { return "dbai:conn:" + id }

// Put validates cfg and stores it, replacing any config with the same id.
// A non-empty secret replaces the stored one; an empty secret keeps it.
func (s *CredentialStore) Put(ctx context.Context, cfg *domain.ConnectionConfig, secretValue string) (*domain.ConnectionConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := cfg.Normalized()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	} else if s.inUse(c.ID) {
		return nil, domain.E(domain.KindInUse, "put connection", c.ID, errors.New("disconnect before editing"))
	}

	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt, c.SecretRef = now, now, ""
	if prev, err := s.store.GetConnection(c.ID); err == nil {
		c.CreatedAt = prev.CreatedAt
		c.SecretRef = prev.SecretRef
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("load connection %s: %w", c.ID, err)
	}
	if secretValue != "" {
		if err := s.secrets.Set(secretKey(c.ID), []byte(secretValue)); err != nil {
			return nil, fmt.Errorf("store secret: %w", err)
		}
		c.SecretRef = secretKey(c.ID)
	}

	if err := s.store.UpsertConnection(c); err != nil {
		return nil, fmt.Errorf("save connection: %w", err)
	}
	s.logger.Info("connection saved", "id", c.ID, "driver", c.Driver, "address", c.Address())
	return c.Clone(), nil
}

// Get returns a copy of the config or NotFound.
func (s *CredentialStore) Get(ctx context.Context, id string) (*domain.ConnectionConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := s.store.GetConnection(id)
	if err != nil {
		return nil, domain.WithContext(err, "get connection", id)
	}
	return c.Clone(), nil
}

// List returns redacted views of every config.
func (s *CredentialStore) List(ctx context.Context) ([]ConnectionView, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	all, err := s.store.ListConnections()
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	out := make([]ConnectionView, len(all))
	for i := range all {
		out[i] = viewOf(&all[i])
	}
	return out, nil
}

// Delete removes the config and its secret. A live session blocks it.
func (s *CredentialStore) Delete(ctx context.Context, id string) error {
	c, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if s.inUse(id) {
		return domain.E(domain.KindInUse, "delete connection", id, errors.New("connection has a live session"))
	}
	if c.SecretRef != "" {
		if err := s.secrets.Delete(c.SecretRef); err != nil {
			s.logger.Warn("delete secret failed", "id", id, "error", err)
		}
	}
	if err := s.store.DeleteConnection(id); err != nil {
		return domain.WithContext(err, "delete connection", id)
	}
	s.logger.Info("connection deleted", "id", id)
	return nil
}

// Resolve returns the config and its cleartext secret. Only the session
// registry calls this.
func (s *CredentialStore) Resolve(ctx context.Context, id string) (*domain.ConnectionConfig, string, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if c.SecretRef == "" {
		return c, "", nil
	}
	b, err := s.secrets.Get(c.SecretRef)
	if errors.Is(err, secret.ErrNotFound) {
		s.logger.Warn("secret missing, connecting without one", "id", id)
		return c, "", nil
	}
	if err != nil {
		return nil, "", domain.E(domain.KindInvalidConfig, "resolve secret", id, err)
	}
	return c, string(b), nil
}
