package dbclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"dbai/internal/domain"
)

// Query is what the executor hands to a Conn.
type Query struct {
	Text   string
	Object map[string]any
	// Limit caps the rows/documents read from the backend. 0 means no cap.
	// The executor asks for one more than the user cap so truncation shows.
	Limit int
}

// Shape identifies which RawResult fields carry data.
type Shape int

const (
	ShapeRows Shape = iota
	ShapeDocuments
	ShapePairs
)

// Column describes one column of a row-shaped result.
type Column struct {
	Name string
	Type string // backend type name, may be empty
}

// Field is one key of an ordered document.
type Field struct {
	Key   string
	Value any
}

// Document is an ordered document. Values are plain Go values: string,
// int64, float64, bool, time.Time, nil, Document or []any.
type Document []Field

// Get returns the value for key.
func (d Document) Get(key string) (any, bool) {
	for _, f := range d {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// MarshalJSON keeps key order.
func (d Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Pair is one key/value entry of a key-value result.
type Pair struct {
	Key   string
	Value any
}

// RawResult is the backend-shaped output of Conn.Execute.
type RawResult struct {
	Shape        Shape
	Columns      []Column
	Rows         [][]any
	Documents    []Document
	Pairs        []Pair
	IsWrite      bool
	AffectedRows int64
}

// Adapter opens sessions for one driver.
type Adapter interface {
	Driver() domain.DatabaseDriver

	// Connect opens the transport and authenticates. Errors are classified as
	// NetworkUnreachable, AuthRejected, TimedOut or ProtocolMismatch.
	Connect(ctx context.Context, cfg *domain.ConnectionConfig, secret string) (Conn, error)
}

// Conn is a live backend handle owned by exactly one session.
type Conn interface {
	// Execute runs q. Errors are classified as QuerySyntaxError, QueryTimeout,
	// ConnectionLost or PermissionDenied.
	Execute(ctx context.Context, q Query) (*RawResult, error)

	// ListCollections returns tables/collections/key groups with field hints.
	ListCollections(ctx context.Context) ([]domain.CollectionInfo, error)

	// Close releases the handle. Safe to call more than once.
	Close(ctx context.Context) error
}

// Pinger is implemented by conns that support a cheap liveness check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ─────────────────────────────────────────────────────────────
// Registry
// ─────────────────────────────────────────────────────────────

// Registry maps drivers to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[domain.DatabaseDriver]Adapter
}

// NewRegistry returns a registry holding the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[domain.DatabaseDriver]Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// DefaultRegistry returns a registry with every built-in adapter.
func DefaultRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return NewRegistry(
		NewMongoAdapter(logger),
		NewPostgresAdapter(logger),
		NewMySQLAdapter(logger),
		NewSQLiteAdapter(logger),
		NewDuckDBAdapter(logger),
		NewRedisAdapter(logger),
	)
}

// Register adds or replaces the adapter for a.Driver().
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Driver()] = a
}

// Get returns the adapter for driver or an InvalidConfig error.
func (r *Registry) Get(driver domain.DatabaseDriver) (Adapter, error) {
	r.mu.RLock()
	a, ok := r.adapters[driver]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.E(domain.KindInvalidConfig, "adapter", "", &UnknownAdapterError{Driver: driver, Available: r.Drivers()})
	}
	return a, nil
}

// Drivers lists registered drivers, sorted.
func (r *Registry) Drivers() []domain.DatabaseDriver {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.DatabaseDriver, 0, len(r.adapters))
	for d := range r.adapters {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// UnknownAdapterError is returned when no adapter serves a driver.
type UnknownAdapterError struct {
	Driver    domain.DatabaseDriver
	Available []domain.DatabaseDriver
}

func (e *UnknownAdapterError) Error() string {
	return fmt.Sprintf("no adapter for driver %q (available: %v)", e.Driver, e.Available)
}
