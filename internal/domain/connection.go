package domain

import (
	"fmt"
	"maps"
	"strings"
	"time"
)

// BackendKind is the family a database engine belongs to.
type BackendKind string

const (
	KindDocument     BackendKind = "document"
	KindRelational   BackendKind = "relational"
	KindKeyValue     BackendKind = "key-value"
	KindEmbeddedFile BackendKind = "embedded-file"
)

// DatabaseDriver represents the type of database engine.
type DatabaseDriver string

const (
	DatabaseDriverMongoDB  DatabaseDriver = "mongodb"
	DatabaseDriverPostgres DatabaseDriver = "postgres"
	DatabaseDriverMySQL    DatabaseDriver = "mysql"
	DatabaseDriverRedis    DatabaseDriver = "redis"
	DatabaseDriverSQLite   DatabaseDriver = "sqlite"
	DatabaseDriverDuckDB   DatabaseDriver = "duckdb"
)

type driverInfo struct {
	kind BackendKind
	port int
}

var drivers = map[DatabaseDriver]driverInfo{
	DatabaseDriverMongoDB:  {KindDocument, 27017},
	DatabaseDriverPostgres: {KindRelational, 5432},
	DatabaseDriverMySQL:    {KindRelational, 3306},
	DatabaseDriverRedis:    {KindKeyValue, 6379},
	DatabaseDriverSQLite:   {KindEmbeddedFile, 0},
	DatabaseDriverDuckDB:   {KindEmbeddedFile, 0},
}

// Drivers returns every supported driver.
func Drivers() []DatabaseDriver {
	return []DatabaseDriver{
		DatabaseDriverMongoDB, DatabaseDriverPostgres, DatabaseDriverMySQL,
		DatabaseDriverRedis, DatabaseDriverSQLite, DatabaseDriverDuckDB,
	}
}

// Kind reports the backend family of d, or "" for unknown drivers.
func (d DatabaseDriver) Kind() BackendKind { return drivers[d].kind }

// DefaultPort is 0 for embedded drivers.
func (d DatabaseDriver) DefaultPort() int { return drivers[d].port }

// Valid reports whether d is a known driver.
func (d DatabaseDriver) Valid() bool {
	_, ok := drivers[d]
	return ok
}

// IsNetwork reports whether k talks to a server over the network.
func (k BackendKind) IsNetwork() bool { return k != KindEmbeddedFile }

// ConnectionConfig holds everything needed to open a session.
// The secret itself lives in the SecretStore; SecretRef is its key there.
// Configs are treated as immutable values: edits replace the record.
type ConnectionConfig struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Kind      BackendKind       `json:"kind"`
	Driver    DatabaseDriver    `json:"driver"`
	Host      string            `json:"host"`
	Port      int               `json:"port"`
	Database  string            `json:"database"` // db name, or file path for embedded-file
	Username  string            `json:"username"`
	SecretRef string            `json:"secretRef,omitempty"`
	TLS       bool              `json:"tls"`
	Options   map[string]string `json:"options,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// Clone returns a deep copy.
func (c *ConnectionConfig) Clone() *ConnectionConfig {
	cp := *c
	cp.Options = maps.Clone(c.Options)
	return &cp
}

// Normalized fills derivable fields: kind from driver, default port for
// network drivers. The receiver is not modified.
func (c *ConnectionConfig) Normalized() *ConnectionConfig {
	n := c.Clone()
	n.Name = strings.TrimSpace(n.Name)
	n.Host = strings.TrimSpace(n.Host)
	n.Database = strings.TrimSpace(n.Database)
	if n.Kind == "" {
		n.Kind = n.Driver.Kind()
	}
	if n.Port == 0 && n.Kind.IsNetwork() {
		n.Port = n.Driver.DefaultPort()
	}
	return n
}

// Validate checks required fields. It returns an InvalidConfig error naming
// the first offending field.
func (c *ConnectionConfig) Validate() error {
	invalid := func(format string, args ...any) error {
		return E(KindInvalidConfig, "validate", c.ID, fmt.Errorf(format, args...))
	}
	if !c.Driver.Valid() {
		return invalid("unsupported driver %q", c.Driver)
	}
	if c.Kind != c.Driver.Kind() {
		return invalid("driver %s is %s, not %s", c.Driver, c.Driver.Kind(), c.Kind)
	}
	if c.Name == "" {
		return invalid("name is required")
	}
	if c.Kind.IsNetwork() {
		if c.Host == "" {
			return invalid("host is required for %s", c.Driver)
		}
		if c.Port < 1 || c.Port > 65535 {
			return invalid("port %d out of range 1-65535", c.Port)
		}
	} else if c.Database == "" {
		return invalid("database file path is required for %s", c.Driver)
	}
	return nil
}

// Address is host:port for network backends and the file path otherwise.
func (c *ConnectionConfig) Address() string {
	if !c.Kind.IsNetwork() {
		return c.Database
	}
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ConnectionStore persists connection configs.
type ConnectionStore interface {
	UpsertConnection(c *ConnectionConfig) error
	GetConnection(id string) (*ConnectionConfig, error)
	ListConnections() ([]ConnectionConfig, error)
	DeleteConnection(id string) error
}
