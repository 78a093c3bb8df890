package dbclient

import (
	"errors"
	"fmt"
	"log/slog"

	"dbai/internal/domain"

	"github.com/go-sql-driver/mysql"
)

// NewMySQLAdapter returns the relational adapter for MySQL and MariaDB.
func NewMySQLAdapter(logger *slog.Logger) Adapter {
	return &sqlAdapter{
		driver: domain.DatabaseDriverMySQL,
		dialect: sqlDialect{
			driverName: "mysql",
			schemaExpr: "DATABASE()",
			classify:   classifyMySQL,
		},
		dsn:    buildMySQLDSN,
		logger: logger.With("component", "mysql"),
	}
}

// buildMySQLDSN constructs a go-sql-driver DSN. Options become DSN params.
func buildMySQLDSN(cfg *domain.ConnectionConfig, password string) (string, error) {
	port := cfg.Port
	if port == 0 {
		port = domain.DatabaseDriverMySQL.DefaultPort()
	}
	mc := mysql.NewConfig()
	mc.User = cfg.Username
	mc.Passwd = password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", cfg.Host, port)
	mc.DBName = cfg.Database
	mc.ParseTime = true
	mc.Params = map[string]string{"charset": "utf8mb4"}
	if cfg.TLS {
		mc.TLSConfig = "true"
	}
	for k, v := range cfg.Options {
		mc.Params[k] = v
	}
	return mc.FormatDSN(), nil
}

func classifyMySQL(p phase, err error) (domain.ErrorKind, bool) {
	if errors.Is(err, mysql.ErrInvalidConn) {
		if p == phaseConnect {
			return domain.KindNetworkUnreachable, true
		}
		return domain.KindConnectionLost, true
	}
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return "", false
	}
	switch myErr.Number {
	case 1045, 1698: // access denied (password)
		return domain.KindAuthRejected, true
	case 1044: // access denied to database
		if p == phaseConnect {
			return domain.KindAuthRejected, true
		}
		return domain.KindPermissionDenied, true
	case 1142, 1143, 1227, 1370:
		return domain.KindPermissionDenied, true
	case 3024, 1969: // max_execution_time / max_statement_time
		return domain.KindQueryTimeout, true
	case 1053, 1927: // server shutdown, connection killed
		return domain.KindConnectionLost, true
	case 1064, 1054, 1146, 1149:
		if p != phaseConnect {
			return domain.KindQuerySyntaxError, true
		}
	}
	return "", false
}
