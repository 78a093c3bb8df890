package domain

import "time"

// SessionState is the lifecycle position of a session.
type SessionState string

const (
	SessionDisconnected  SessionState = "disconnected"
	SessionConnecting    SessionState = "connecting"
	SessionConnected     SessionState = "connected"
	SessionDisconnecting SessionState = "disconnecting"
	SessionErrored       SessionState = "errored"
)

// Live reports whether a session in this state holds (or is acquiring) a handle.
func (s SessionState) Live() bool {
	return s == SessionConnecting || s == SessionConnected || s == SessionDisconnecting
}

// SessionStatus is a point-in-time view of a session for display.
type SessionStatus struct {
	ConnectionID string       `json:"connectionId"`
	State        SessionState `json:"state"`
	ConnectedAt  time.Time    `json:"connectedAt,omitzero"`
	Error        string       `json:"error,omitempty"`
	ErrorKind    ErrorKind    `json:"errorKind,omitempty"`
	Generation   uint64       `json:"generation"`
}

// QueryRequest is one query submission. Either Text or Object is set.
type QueryRequest struct {
	ConnectionID string         `json:"connectionId"`
	Text         string         `json:"text,omitempty"`
	Object       map[string]any `json:"object,omitempty"`
	Timeout      time.Duration  `json:"timeout,omitempty"`
	MaxRows      int            `json:"maxRows,omitempty"`
}

// FieldInfo describes a column or document field.
type FieldInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// CollectionInfo describes a table, collection or key group.
type CollectionInfo struct {
	Name   string      `json:"name"`
	Fields []FieldInfo `json:"fields"`
}

// SchemaSnapshot is the cached metadata of one session's database.
// Snapshots are never mutated after construction.
type SchemaSnapshot struct {
	ConnectionID string           `json:"connectionId"`
	Database     string           `json:"database"`
	Collections  []CollectionInfo `json:"collections"`
	CapturedAt   time.Time        `json:"capturedAt"`
	Generation   uint64           `json:"generation"`
}

// Collection looks up a collection by name.
func (s *SchemaSnapshot) Collection(name string) (*CollectionInfo, bool) {
	for i := range s.Collections {
		if s.Collections[i].Name == name {
			return &s.Collections[i], true
		}
	}
	return nil, false
}

// QueryHistoryEntry records one execution for the recent-activity panel.
type QueryHistoryEntry struct {
	ID           string    `json:"id"`
	ConnectionID string    `json:"connectionId"`
	Query        string    `json:"query"`
	ExecutedAt   time.Time `json:"executedAt"`
	DurationMs   int64     `json:"durationMs"`
	RecordCount  int       `json:"recordCount"`
	Truncated    bool      `json:"truncated"`
	AffectedRows int64     `json:"affectedRows,omitempty"`
	ErrorKind    ErrorKind `json:"errorKind,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// QueryHistoryStore persists executed queries.
type QueryHistoryStore interface {
	AppendHistory(e *QueryHistoryEntry) error
	RecentHistory(limit int) ([]QueryHistoryEntry, error)
	DeleteHistoryByConnection(connectionID string) error
}

// SavedQuery is a named query the user kept from the editor.
type SavedQuery struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ConnectionID string    `json:"connectionId"`
	Query        string    `json:"query"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// SavedQueryStore persists saved queries.
type SavedQueryStore interface {
	UpsertSavedQuery(q *SavedQuery) error
	ListSavedQueries() ([]SavedQuery, error)
	DeleteSavedQuery(id string) error
}
