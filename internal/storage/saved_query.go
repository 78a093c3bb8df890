package storage

import (
	"database/sql"
	"fmt"
	"time"

	"dbai/internal/domain"
)

// SavedQueryStore manages named queries in SQLite.
type SavedQueryStore struct {
	db *DB
}

var _ domain.SavedQueryStore = (*SavedQueryStore)(nil)

func NewSavedQueryStore(db *DB) *SavedQueryStore {
	return &SavedQueryStore{db: db}
}

func (s *SavedQueryStore) UpsertSavedQuery(q *domain.SavedQuery) error {
	now := time.Now()
	if q.CreatedAt.IsZero() {
		q.CreatedAt = now
	}
	q.UpdatedAt = now
	_, err := s.db.Conn().Exec(
		`INSERT INTO saved_queries (id, name, connection_id, query, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name=excluded.name, connection_id=excluded.connection_id, query=excluded.query,
		   updated_at=excluded.updated_at`,
		q.ID, q.Name, q.ConnectionID, q.Query, q.CreatedAt, q.UpdatedAt,
	)
	return err
}

func (s *SavedQueryStore) ListSavedQueries() ([]domain.SavedQuery, error) {
	rows, err := s.db.Conn().Query(
		`SELECT id, name, connection_id, query, created_at, updated_at FROM saved_queries ORDER BY name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SavedQuery
	for rows.Next() {
		var q domain.SavedQuery
		if err := rows.Scan(&q.ID, &q.Name, &q.ConnectionID, &q.Query, &q.CreatedAt, &q.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan saved query: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *SavedQueryStore) GetSavedQuery(id string) (*domain.SavedQuery, error) {
	q := &domain.SavedQuery{}
	err := s.db.Conn().QueryRow(
		`SELECT id, name, connection_id, query, created_at, updated_at FROM saved_queries WHERE id = ?`, id,
	).Scan(&q.ID, &q.Name, &q.ConnectionID, &q.Query, &q.CreatedAt, &q.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.E(domain.KindNotFound, "get saved query", id, fmt.Errorf("saved query not found: %s", id))
	}
	return q, err
}

func (s *SavedQueryStore) DeleteSavedQuery(id string) error {
	_, err := s.db.Conn().Exec(`DELETE FROM saved_queries WHERE id = ?`, id)
	return err
}
