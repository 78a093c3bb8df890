package app

import (
	"time"

	"dbai/internal/domain"
	"dbai/internal/service"
)

// ============================================================
// Connections
// ============================================================

func (a *App) ListConnections() ([]service.ConnectionView, error) {
	db, err := a.db()
	if err != nil {
		return nil, err
	}
	return db.ListConnections(a.ctx)
}

// SaveConnection creates a connection, or replaces it when input.id is set.
// An empty password keeps the stored one.
func (a *App) SaveConnection(input service.ConnectionInput) (*service.ConnectionView, error) {
	db, err := a.db()
	if err != nil {
		return nil, err
	}
	v, err := db.SaveConnection(a.ctx, input)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (a *App) DeleteConnection(id string) error {
	db, err := a.db()
	if err != nil {
		return err
	}
	return db.DeleteConnection(a.ctx, id)
}

// ============================================================
// Sessions
// ============================================================

func (a *App) Connect(id string) (domain.SessionStatus, error) {
	db, err := a.db()
	if err != nil {
		return domain.SessionStatus{}, err
	}
	return db.Connect(a.ctx, id)
}

func (a *App) Disconnect(id string) (domain.SessionStatus, error) {
	db, err := a.db()
	if err != nil {
		return domain.SessionStatus{}, err
	}
	return db.Disconnect(a.ctx, id)
}

// TestConnection checks a saved connection without opening a session.
func (a *App) TestConnection(id string) error {
	db, err := a.db()
	if err != nil {
		return err
	}
	return db.TestConnection(a.ctx, id)
}

// TestConnectionInput checks the connection form before it is saved.
func (a *App) TestConnectionInput(input service.ConnectionInput) error {
	db, err := a.db()
	if err != nil {
		return err
	}
	return db.TestConnectionInput(a.ctx, input)
}

func (a *App) ConnectionStatuses() ([]domain.SessionStatus, error) {
	db, err := a.db()
	if err != nil {
		return nil, err
	}
	return db.ConnectionStatuses(a.ctx)
}

// ============================================================
// Queries
// ============================================================

func (a *App) ExecuteQuery(input QueryInput) (*QueryResultView, error) {
	db, err := a.db()
	if err != nil {
		return nil, err
	}
	res, err := db.ExecuteQuery(a.ctx, domain.QueryRequest{
		ConnectionID: input.ConnectionID,
		Text:         input.Query,
		Object:       input.Object,
		Timeout:      time.Duration(input.TimeoutMs) * time.Millisecond,
		MaxRows:      input.MaxRows,
	})
	if err != nil {
		return nil, err
	}
	return newQueryResultView(input.Query, res), nil
}

func (a *App) GetSchema(connectionID string, forceRefresh bool) (*domain.SchemaSnapshot, error) {
	db, err := a.db()
	if err != nil {
		return nil, err
	}
	return db.GetSchema(a.ctx, connectionID, forceRefresh)
}

func (a *App) RecentQueries(limit int) ([]domain.QueryHistoryEntry, error) {
	db, err := a.db()
	if err != nil {
		return nil, err
	}
	return db.RecentQueries(limit)
}

// ============================================================
// Saved queries
// ============================================================

func (a *App) SaveQuery(name, connectionID, query string) (*domain.SavedQuery, error) {
	db, err := a.db()
	if err != nil {
		return nil, err
	}
	return db.SaveQuery(name, connectionID, query)
}

func (a *App) ListSavedQueries() ([]domain.SavedQuery, error) {
	db, err := a.db()
	if err != nil {
		return nil, err
	}
	return db.ListSavedQueries()
}

func (a *App) DeleteSavedQuery(id string) error {
	db, err := a.db()
	if err != nil {
		return err
	}
	return db.DeleteSavedQuery(id)
}

// ============================================================
// Export
// ============================================================

// ExportLastResult asks for a destination and writes the connection's last
// result there. Returns the chosen path, or "" if the dialog was cancelled.
func (a *App) ExportLastResult(connectionID string) (string, error) {
	db, err := a.db()
	if err != nil {
		return "", err
	}
	path, err := a.pickExportFile()
	if err != nil || path == "" {
		return "", err
	}
	if err := db.ExportLastResult(connectionID, path, ""); err != nil {
		return "", err
	}
	return path, nil
}
