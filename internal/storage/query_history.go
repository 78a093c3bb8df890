package storage

import (
	"fmt"
	"time"

	"dbai/internal/domain"
)

// QueryHistoryStore records executed queries in SQLite.
type QueryHistoryStore struct {
	db *DB
}

var _ domain.QueryHistoryStore = (*QueryHistoryStore)(nil)

func NewQueryHistoryStore(db *DB) *QueryHistoryStore {
	return &QueryHistoryStore{db: db}
}

// AppendHistory inserts one entry.
func (s *QueryHistoryStore) AppendHistory(e *domain.QueryHistoryEntry) error {
	if e.ExecutedAt.IsZero() {
		e.ExecutedAt = time.Now()
	}
	_, err := s.db.Conn().Exec(
		`INSERT INTO query_history (id, connection_id, query, executed_at, duration_ms, record_count, truncated, error_kind, error, affected_rows)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ConnectionID, e.Query, e.ExecutedAt, e.DurationMs, e.RecordCount,
		boolToInt(e.Truncated), string(e.ErrorKind), e.Error, e.AffectedRows,
	)
	return err
}

// RecentHistory returns up to limit entries, newest first.
func (s *QueryHistoryStore) RecentHistory(limit int) ([]domain.QueryHistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Conn().Query(
		`SELECT id, connection_id, query, executed_at, duration_ms, record_count, truncated, error_kind, error, affected_rows
		 FROM query_history ORDER BY executed_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.QueryHistoryEntry
	for rows.Next() {
		var e domain.QueryHistoryEntry
		var truncated int
		var kind string
		if err := rows.Scan(&e.ID, &e.ConnectionID, &e.Query, &e.ExecutedAt, &e.DurationMs,
			&e.RecordCount, &truncated, &kind, &e.Error, &e.AffectedRows); err != nil {
			return nil, fmt.Errorf("scan query history: %w", err)
		}
		e.Truncated = truncated == 1
		e.ErrorKind = domain.ErrorKind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteHistoryByConnection removes every entry for a connection.
func (s *QueryHistoryStore) DeleteHistoryByConnection(connectionID string) error {
	_, err := s.db.Conn().Exec(`DELETE FROM query_history WHERE connection_id = ?`, connectionID)
	return err
}
