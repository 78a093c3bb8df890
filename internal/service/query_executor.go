package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"dbai/internal/dbclient"
	"dbai/internal/domain"

	"github.com/google/uuid"
)

// ─────────────────────────────────────────────────────────────
// Query Executor
// ─────────────────────────────────────────────────────────────

// QueryExecutor runs queries on connected sessions. It never reconnects and
// never retries.
type QueryExecutor struct {
	sessions       *SessionRegistry
	history        domain.QueryHistoryStore
	logger         *slog.Logger
	defaultTimeout time.Duration
	defaultMaxRows int

	mu   sync.Mutex
	last map[string]*domain.QueryResult
}

// NewQueryExecutor creates a QueryExecutor. history may be nil.
func NewQueryExecutor(
	sessions *SessionRegistry,
	history domain.QueryHistoryStore,
	logger *slog.Logger,
	defaultTimeout time.Duration,
	defaultMaxRows int,
) *QueryExecutor {
	return &QueryExecutor{
		sessions:       sessions,
		history:        history,
		logger:         logger.With("component", "executor"),
		defaultTimeout: defaultTimeout,
		defaultMaxRows: defaultMaxRows,
		last:           make(map[string]*domain.QueryResult),
	}
}

type execOutcome struct {
	raw *dbclient.RawResult
	err error
}

// Execute runs req and returns the normalized result. A zero Timeout or
// MaxRows uses the configured default; a negative MaxRows disables the cap.
func (e *QueryExecutor) Execute(ctx context.Context, req domain.QueryRequest) (*domain.QueryResult, error) {
	start := time.Now()
	res, err := e.execute(ctx, req)
	e.record(req, res, err, start)
	return res, err
}

func (e *QueryExecutor) execute(ctx context.Context, req domain.QueryRequest) (*domain.QueryResult, error) {
	id := req.ConnectionID
	release, err := e.sessions.guard.Acquire(id, "execute")
	if err != nil {
		return nil, err
	}
	defer release()

	sess, err := e.sessions.active(id, "execute")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Text) == "" && req.Object == nil {
		return nil, domain.E(domain.KindQuerySyntaxError, "execute", id, errors.New("empty query"))
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	maxRows := req.MaxRows
	if maxRows == 0 {
		maxRows = e.defaultMaxRows
	}
	q := dbclient.Query{Text: req.Text, Object: req.Object}
	if maxRows > 0 {
		q.Limit = maxRows + 1
	}

	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(sess.Ctx, cancel)
	defer stop()

	started := time.Now()
	done := make(chan execOutcome, 1)
	go func() {
		raw, err := sess.Conn.Execute(qctx, q)
		done <- execOutcome{raw: raw, err: err}
	}()

	var out execOutcome
	select {
	case out = <-done:
	case <-qctx.Done():
		// the adapter sees the cancelled context at its next I/O wait
		out.err = qctx.Err()
	}
	elapsed := time.Since(started)

	if out.err != nil {
		err := e.executeError(ctx, qctx, sess, out.err)
		e.logger.Info("query failed", "id", id, "kind", domain.KindOf(err), "elapsed", elapsed)
		return nil, err
	}

	res := dbclient.Normalize(out.raw, maxRows)
	res.Duration = elapsed
	e.mu.Lock()
	e.last[id] = res
	e.mu.Unlock()

	e.logger.Debug("query ok", "id", id, "records", len(res.Records), "truncated", res.Truncated, "elapsed", elapsed)
	return res, nil
}

// executeError decides which kind a failed execute reports. Session
// cancellation wins over everything else, then the deadline.
func (e *QueryExecutor) executeError(parent, qctx context.Context, sess *activeSession, cause error) error {
	id := sess.ID
	switch {
	case sess.Ctx.Err() != nil:
		return domain.E(domain.KindConnectionLost, "execute", id, errors.New("session disconnected during query"))
	case errors.Is(qctx.Err(), context.DeadlineExceeded):
		return domain.E(domain.KindQueryTimeout, "execute", id, cause)
	case parent.Err() != nil:
		return domain.E(domain.KindQueryTimeout, "execute", id, parent.Err())
	}
	err := kinded(cause, "execute", id, domain.KindQueryTimeout, domain.KindQuerySyntaxError)
	if errors.Is(err, domain.ErrConnectionLost) {
		e.sessions.markLost(id, sess.Generation, err)
	}
	return err
}

func (e *QueryExecutor) record(req domain.QueryRequest, res *domain.QueryResult, err error, start time.Time) {
	if e.history == nil {
		return
	}
	entry := &domain.QueryHistoryEntry{
		ID:           uuid.NewString(),
		ConnectionID: req.ConnectionID,
		Query:        requestText(req),
		ExecutedAt:   start.UTC(),
		DurationMs:   time.Since(start).Milliseconds(),
	}
	if res != nil {
		entry.RecordCount = len(res.Records)
		entry.Truncated = res.Truncated
		entry.AffectedRows = res.AffectedRows
	}
	if err != nil {
		entry.ErrorKind = domain.KindOf(err)
		entry.Error = err.Error()
	}
	if herr := e.history.AppendHistory(entry); herr != nil {
		e.logger.Warn("append history failed", "error", herr)
	}
}

func requestText(req domain.QueryRequest) string {
	if req.Object == nil {
		return req.Text
	}
	b, err := json.Marshal(req.Object)
	if err != nil {
		return req.Text
	}
	return string(b)
}

// LastResult returns the most recent successful result for a connection.
func (e *QueryExecutor) LastResult(id string) (*domain.QueryResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	res, ok := e.last[id]
	return res, ok
}

// Forget drops the cached last result of a connection.
func (e *QueryExecutor) Forget(id string) {
	e.mu.Lock()
	delete(e.last, id)
	e.mu.Unlock()
}
