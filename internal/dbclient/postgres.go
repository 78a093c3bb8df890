package dbclient

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"dbai/internal/domain"

	"github.com/lib/pq"
)

// NewPostgresAdapter returns the relational adapter for PostgreSQL (lib/pq).
func NewPostgresAdapter(logger *slog.Logger) Adapter {
	return &sqlAdapter{
		driver: domain.DatabaseDriverPostgres,
		dialect: sqlDialect{
			driverName:   "postgres",
			schemaExpr:   "current_schema()",
			classify:     classifyPostgres,
			dollarQuotes: true,
		},
		dsn:    buildPostgresDSN,
		logger: logger.With("component", "postgres"),
	}
}

// buildPostgresDSN constructs a keyword/value connection string.
// Options are passed through as extra keywords.
func buildPostgresDSN(cfg *domain.ConnectionConfig, password string) (string, error) {
	port := cfg.Port
	if port == 0 {
		port = domain.DatabaseDriverPostgres.DefaultPort()
	}
	sslMode := cfg.Options["sslmode"]
	if sslMode == "" {
		sslMode = "disable"
		if cfg.TLS {
			sslMode = "require"
		}
	}

	kv := [][2]string{
		{"host", cfg.Host},
		{"port", fmt.Sprint(port)},
		{"user", cfg.Username},
		{"password", password},
		{"dbname", cfg.Database},
		{"sslmode", sslMode},
	}
	extra := make([]string, 0, len(cfg.Options))
	for k := range cfg.Options {
		if k != "sslmode" {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		kv = append(kv, [2]string{k, cfg.Options[k]})
	}

	parts := make([]string, 0, len(kv))
	for _, p := range kv {
		if p[1] == "" {
			continue
		}
		parts = append(parts, p[0]+"="+quotePGValue(p[1]))
	}
	return strings.Join(parts, " "), nil
}

func quotePGValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

func classifyPostgres(p phase, err error) (domain.ErrorKind, bool) {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return "", false
	}
	switch {
	case pqErr.Code == "42501":
		return domain.KindPermissionDenied, true
	case pqErr.Code.Class() == "28":
		if p == phaseConnect {
			return domain.KindAuthRejected, true
		}
		return domain.KindPermissionDenied, true
	case pqErr.Code == "57014":
		return domain.KindQueryTimeout, true
	case pqErr.Code.Class() == "08", pqErr.Code == "57P01", pqErr.Code == "57P02", pqErr.Code == "57P03":
		if p == phaseConnect {
			return domain.KindNetworkUnreachable, true
		}
		return domain.KindConnectionLost, true
	case p != phaseConnect && (pqErr.Code.Class() == "42" || pqErr.Code.Class() == "22"):
		return domain.KindQuerySyntaxError, true
	}
	return "", false
}
