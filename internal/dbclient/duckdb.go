package dbclient

import (
	"errors"
	"log/slog"

	"dbai/internal/domain"

	"github.com/marcboeker/go-duckdb"
)

// NewDuckDBAdapter returns the embedded-file adapter for DuckDB.
func NewDuckDBAdapter(logger *slog.Logger) Adapter {
	return &sqlAdapter{
		driver: domain.DatabaseDriverDuckDB,
		dialect: sqlDialect{
			driverName:   "duckdb",
			schemaExpr:   "current_schema()",
			classify:     classifyDuckDB,
			dollarQuotes: true,
		},
		dsn:    buildDuckDBDSN,
		logger: logger.With("component", "duckdb"),
	}
}

// buildDuckDBDSN opens the file read-only when the "access_mode" option says so.
func buildDuckDBDSN(cfg *domain.ConnectionConfig, _ string) (string, error) {
	if err := checkEmbeddedFile(cfg); err != nil {
		return "", err
	}
	dsn := cfg.Database
	if dsn == ":memory:" {
		dsn = ""
	}
	if mode := cfg.Options["access_mode"]; mode != "" {
		dsn += "?access_mode=" + mode
	}
	return dsn, nil
}

func classifyDuckDB(p phase, err error) (domain.ErrorKind, bool) {
	var dErr *duckdb.Error
	if !errors.As(err, &dErr) {
		return "", false
	}
	switch dErr.Type {
	case duckdb.ErrorTypePermission:
		return domain.KindPermissionDenied, true
	case duckdb.ErrorTypeInterrupt:
		return domain.KindQueryTimeout, true
	case duckdb.ErrorTypeIO, duckdb.ErrorTypeConnection, duckdb.ErrorTypeNetwork:
		if p == phaseConnect {
			return domain.KindNetworkUnreachable, true
		}
		return domain.KindConnectionLost, true
	case duckdb.ErrorTypeParser, duckdb.ErrorTypeSyntax, duckdb.ErrorTypeCatalog, duckdb.ErrorTypeBinder:
		if p != phaseConnect {
			return domain.KindQuerySyntaxError, true
		}
	}
	return "", false
}
