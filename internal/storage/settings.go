package storage

import (
	"database/sql"
	"errors"
)

// SettingsStore is a key/value view over app_settings.
type SettingsStore struct {
	db *DB
}

func NewSettingsStore(db *DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// Get returns the value for key and whether it was set.
func (s *SettingsStore) Get(key string) (string, bool, error) {
	var v string
	err := s.db.Conn().QueryRow(`SELECT value FROM app_settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *SettingsStore) Set(key, value string) error {
	_, err := s.db.Conn().Exec(
		`INSERT INTO app_settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}
