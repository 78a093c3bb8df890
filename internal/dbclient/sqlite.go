package dbclient

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"dbai/internal/domain"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// NewSQLiteAdapter returns the embedded-file adapter for SQLite (modernc).
func NewSQLiteAdapter(logger *slog.Logger) Adapter {
	return &sqlAdapter{
		driver: domain.DatabaseDriverSQLite,
		dialect: sqlDialect{
			driverName: "sqlite",
			classify:   classifySQLite,
		},
		dsn:    buildSQLiteDSN,
		logger: logger.With("component", "sqlite"),
	}
}

// buildSQLiteDSN refuses to create missing files unless the "create" option
// is "true". The journal mode of the user's file is left untouched.
func buildSQLiteDSN(cfg *domain.ConnectionConfig, _ string) (string, error) {
	if err := checkEmbeddedFile(cfg); err != nil {
		return "", err
	}
	return cfg.Database + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", nil
}

// checkEmbeddedFile fails with a wrapped os.ErrNotExist for missing files.
func checkEmbeddedFile(cfg *domain.ConnectionConfig) error {
	if cfg.Database == ":memory:" || cfg.Options["create"] == "true" {
		return nil
	}
	info, err := os.Stat(cfg.Database)
	if err != nil {
		return fmt.Errorf("database file %s: %w", cfg.Database, err)
	}
	if info.IsDir() {
		return fmt.Errorf("database file %s is a directory", cfg.Database)
	}
	return nil
}

func classifySQLite(p phase, err error) (domain.ErrorKind, bool) {
	var sqErr *sqlite.Error
	if !errors.As(err, &sqErr) {
		return "", false
	}
	switch sqErr.Code() & 0xff {
	case sqlite3.SQLITE_AUTH:
		if p == phaseConnect {
			return domain.KindAuthRejected, true
		}
		return domain.KindPermissionDenied, true
	case sqlite3.SQLITE_PERM, sqlite3.SQLITE_READONLY:
		return domain.KindPermissionDenied, true
	case sqlite3.SQLITE_INTERRUPT, sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		if p == phaseConnect {
			return domain.KindTimedOut, true
		}
		return domain.KindQueryTimeout, true
	case sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_IOERR:
		if p == phaseConnect {
			return domain.KindNetworkUnreachable, true
		}
		return domain.KindConnectionLost, true
	case sqlite3.SQLITE_NOTADB, sqlite3.SQLITE_CORRUPT:
		return domain.KindProtocolMismatch, true
	}
	return "", false
}
