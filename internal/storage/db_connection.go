package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dbai/internal/domain"
)

// DBConnectionStore manages connection configs in SQLite.
type DBConnectionStore struct {
	db *DB
}

var _ domain.ConnectionStore = (*DBConnectionStore)(nil)

// NewDBConnectionStore creates a new DBConnectionStore.
func NewDBConnectionStore(db *DB) *DBConnectionStore {
	return &DBConnectionStore{db: db}
}

const connectionColumns = `id, name, kind, driver, host, port, database_name, username, secret_ref, tls, options_json, created_at, updated_at`

// UpsertConnection inserts c or replaces the record with the same ID.
// CreatedAt is preserved on replace.
func (s *DBConnectionStore) UpsertConnection(c *domain.ConnectionConfig) error {
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	opts, err := json.Marshal(c.Options)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}

	_, err = s.db.Conn().Exec(
		`INSERT INTO db_connections (`+connectionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name=excluded.name, kind=excluded.kind, driver=excluded.driver, host=excluded.host,
		   port=excluded.port, database_name=excluded.database_name, username=excluded.username,
		   secret_ref=excluded.secret_ref, tls=excluded.tls, options_json=excluded.options_json,
		   updated_at=excluded.updated_at`,
		c.ID, c.Name, c.Kind, c.Driver, c.Host, c.Port, c.Database, c.Username, c.SecretRef,
		boolToInt(c.TLS), string(opts), c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (s *DBConnectionStore) GetConnection(id string) (*domain.ConnectionConfig, error) {
	row := s.db.Conn().QueryRow(`SELECT `+connectionColumns+` FROM db_connections WHERE id = ?`, id)
	c, err := scanConnection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.E(domain.KindNotFound, "get connection", id, fmt.Errorf("database connection not found: %s", id))
	}
	return c, err
}

func (s *DBConnectionStore) ListConnections() ([]domain.ConnectionConfig, error) {
	rows, err := s.db.Conn().Query(`SELECT ` + connectionColumns + ` FROM db_connections ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conns []domain.ConnectionConfig
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, *c)
	}
	return conns, rows.Err()
}

func (s *DBConnectionStore) DeleteConnection(id string) error {
	res, err := s.db.Conn().Exec(`DELETE FROM db_connections WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.E(domain.KindNotFound, "delete connection", id, fmt.Errorf("database connection not found: %s", id))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(r rowScanner) (*domain.ConnectionConfig, error) {
	c := &domain.ConnectionConfig{}
	var tls int
	var opts string
	if err := r.Scan(&c.ID, &c.Name, &c.Kind, &c.Driver, &c.Host, &c.Port, &c.Database,
		&c.Username, &c.SecretRef, &tls, &opts, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.TLS = tls == 1
	if opts != "" && opts != "null" {
		if err := json.Unmarshal([]byte(opts), &c.Options); err != nil {
			return nil, fmt.Errorf("decode options for %s: %w", c.ID, err)
		}
	}
	return c, nil
}
