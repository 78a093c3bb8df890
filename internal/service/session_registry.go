package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"dbai/internal/dbclient"
	"dbai/internal/domain"

	"golang.org/x/sync/errgroup"
)

// ─────────────────────────────────────────────────────────────
// Session Registry: one live session per connection id
// ─────────────────────────────────────────────────────────────

// session owns one backend handle. Every field is guarded by mu.
type session struct {
	mu          sync.Mutex
	id          string
	state       domain.SessionState
	cfg         *domain.ConnectionConfig
	conn        dbclient.Conn
	ctx         context.Context // cancelled when the session leaves connected
	cancel      context.CancelFunc
	connectedAt time.Time
	generation  uint64
	lastErr     error
}

func (s *session) statusLocked() domain.SessionStatus {
	st := domain.SessionStatus{
		ConnectionID: s.id,
		State:        s.state,
		Generation:   s.generation,
	}
	if s.state == domain.SessionConnected {
		st.ConnectedAt = s.connectedAt
	}
	if s.lastErr != nil {
		st.Error = s.lastErr.Error()
		st.ErrorKind = domain.KindOf(s.lastErr)
	}
	return st
}

// release detaches the handle and cancels the session context. The caller
// closes the returned conn outside the lock.
func (s *session) releaseLocked() dbclient.Conn {
	conn := s.conn
	if s.cancel != nil {
		s.cancel()
	}
	s.conn, s.ctx, s.cancel = nil, nil, nil
	return conn
}

// activeSession is a borrowed view of a connected session.
type activeSession struct {
	ID         string
	Config     *domain.ConnectionConfig
	Conn       dbclient.Conn
	Ctx        context.Context
	Generation uint64
}

// SessionRegistry tracks sessions and drives their state machine:
//
//	disconnected|errored -> connecting -> connected|errored
//	connected -> disconnecting -> disconnected
//	connected -> errored (lost)
type SessionRegistry struct {
	creds          *CredentialStore
	adapters       *dbclient.Registry
	emitter        EventEmitter
	logger         *slog.Logger
	connectTimeout time.Duration
	guard          opGuard

	mu        sync.Mutex
	sessions  map[string]*session
	listeners []func(id string)
}

// NewSessionRegistry creates a registry and makes creds consult it before
// edits and deletes.
func NewSessionRegistry(
	creds *CredentialStore,
	adapters *dbclient.Registry,
	emitter EventEmitter,
	logger *slog.Logger,
	connectTimeout time.Duration,
) *SessionRegistry {
	if emitter == nil {
		emitter = NopEmitter{}
	}
	r := &SessionRegistry{
		creds:          creds,
		adapters:       adapters,
		emitter:        emitter,
		logger:         logger.With("component", "sessions"),
		connectTimeout: connectTimeout,
		sessions:       make(map[string]*session),
	}
	creds.inUse = r.IsLive
	return r
}

// OnLeaveConnected registers fn to run whenever a session leaves the
// connected state (disconnect or loss).
func (r *SessionRegistry) OnLeaveConnected(fn func(id string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

func (r *SessionRegistry) notifyLeave(id string) {
	r.mu.Lock()
	fns := append([]func(string){}, r.listeners...)
	r.mu.Unlock()
	for _, fn := range fns {
		fn(id)
	}
}

func (r *SessionRegistry) emit(st domain.SessionStatus) {
	r.emitter.Emit(context.Background(), EventSessionStatus, st)
}

func (r *SessionRegistry) lookup(id string) *session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

func (r *SessionRegistry) getOrCreate(id string) *session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		s = &session{id: id, state: domain.SessionDisconnected}
		r.sessions[id] = s
	}
	return s
}

// IsLive reports whether id has a connecting, connected or disconnecting
// session.
func (r *SessionRegistry) IsLive(id string) bool {
	s := r.lookup(id)
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Live()
}

func alreadyConnected(id string, state domain.SessionState) error {
	return domain.E(domain.KindAlreadyConnected, "connect", id, fmt.Errorf("session is %s", state))
}

// Connect opens a session for id. There is no retry: a failed connect
// leaves the session errored with the cause attached.
func (r *SessionRegistry) Connect(ctx context.Context, id string) (domain.SessionStatus, error) {
	if r.IsLive(id) {
		return r.Status(id), alreadyConnected(id, r.Status(id).State)
	}
	release, err := r.guard.Acquire(id, "connect")
	if err != nil {
		return r.Status(id), err
	}
	defer release()

	cfg, secretValue, err := r.creds.Resolve(ctx, id)
	if err != nil {
		return r.Status(id), err
	}
	adapter, err := r.adapters.Get(cfg.Driver)
	if err != nil {
		return r.Status(id), domain.WithContext(err, "connect", id)
	}

	s := r.getOrCreate(id)
	s.mu.Lock()
	if s.state.Live() {
		state := s.state
		s.mu.Unlock()
		return r.Status(id), alreadyConnected(id, state)
	}
	s.state = domain.SessionConnecting
	s.cfg = cfg
	s.lastErr = nil
	st := s.statusLocked()
	s.mu.Unlock()
	r.emit(st)

	r.logger.Info("connecting", "id", id, "driver", cfg.Driver, "address", cfg.Address())
	cctx, cancel := context.WithTimeout(ctx, r.connectTimeout)
	conn, err := adapter.Connect(cctx, cfg, secretValue)
	cancel()

	s.mu.Lock()
	if err != nil {
		err = kinded(err, "connect", id, domain.KindTimedOut, domain.KindProtocolMismatch)
		s.state = domain.SessionErrored
		s.lastErr = err
		st = s.statusLocked()
		s.mu.Unlock()
		r.emit(st)
		r.logger.Warn("connect failed", "id", id, "kind", domain.KindOf(err), "error", err)
		return st, err
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.conn = conn
	s.state = domain.SessionConnected
	s.connectedAt = time.Now()
	s.generation++
	st = s.statusLocked()
	s.mu.Unlock()
	r.emit(st)

	r.logger.Info("connected", "id", id, "generation", st.Generation)
	return st, nil
}

// Disconnect closes the session for id. It never fails because of the
// backend: Close errors are logged and the session still ends disconnected.
// In-flight queries observe ConnectionLost.
func (r *SessionRegistry) Disconnect(ctx context.Context, id string) (domain.SessionStatus, error) {
	s := r.lookup(id)
	if s == nil {
		if _, err := r.creds.Get(ctx, id); err != nil {
			return domain.SessionStatus{}, err
		}
		return domain.SessionStatus{ConnectionID: id, State: domain.SessionDisconnected}, nil
	}

	s.mu.Lock()
	switch s.state {
	case domain.SessionConnected:
	case domain.SessionErrored:
		s.state = domain.SessionDisconnected
		s.lastErr = nil
		st := s.statusLocked()
		s.mu.Unlock()
		r.emit(st)
		return st, nil
	case domain.SessionConnecting:
		st := s.statusLocked()
		s.mu.Unlock()
		return st, domain.E(domain.KindOperationInProgress, "disconnect", id, errors.New("connect in progress"))
	default:
		st := s.statusLocked()
		s.mu.Unlock()
		return st, nil
	}
	s.state = domain.SessionDisconnecting
	conn := s.releaseLocked()
	st := s.statusLocked()
	s.mu.Unlock()
	r.emit(st)
	r.notifyLeave(id)

	if err := conn.Close(ctx); err != nil {
		r.logger.Warn("close failed", "id", id, "error", err)
	}

	s.mu.Lock()
	s.state = domain.SessionDisconnected
	st = s.statusLocked()
	s.mu.Unlock()
	r.emit(st)

	r.logger.Info("disconnected", "id", id)
	return st, nil
}

// MarkLost moves a connected session to errored after its backend dropped.
func (r *SessionRegistry) MarkLost(id string, cause error) {
	s := r.lookup(id)
	if s == nil {
		return
	}
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()
	r.markLost(id, gen, cause)
}

// markLost only acts if the session is still on generation gen, so a stale
// report cannot tear down a newer session.
func (r *SessionRegistry) markLost(id string, gen uint64, cause error) {
	s := r.lookup(id)
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.state != domain.SessionConnected || s.generation != gen {
		s.mu.Unlock()
		return
	}
	if domain.KindOf(cause) != domain.KindConnectionLost {
		cause = domain.E(domain.KindConnectionLost, "session", id, cause)
	}
	s.state = domain.SessionErrored
	s.lastErr = cause
	conn := s.releaseLocked()
	st := s.statusLocked()
	s.mu.Unlock()
	r.emit(st)
	r.notifyLeave(id)

	r.logger.Warn("session lost", "id", id, "error", cause)
	closeCtx, cancel := context.WithTimeout(context.Background(), r.connectTimeout)
	defer cancel()
	if err := conn.Close(closeCtx); err != nil {
		r.logger.Debug("close after loss failed", "id", id, "error", err)
	}
}

// TestConnection connects to id on a throwaway handle and closes it. The
// registry state is not touched.
func (r *SessionRegistry) TestConnection(ctx context.Context, id string) error {
	release, err := r.guard.Acquire(id, "test")
	if err != nil {
		return err
	}
	defer release()

	cfg, secretValue, err := r.creds.Resolve(ctx, id)
	if err != nil {
		return err
	}
	return r.trialConnect(ctx, cfg, secretValue)
}

// TestConfig checks an unsaved config.
func (r *SessionRegistry) TestConfig(ctx context.Context, cfg *domain.ConnectionConfig, secretValue string) error {
	c := cfg.Normalized()
	if err := c.Validate(); err != nil {
		return err
	}
	return r.trialConnect(ctx, c, secretValue)
}

func (r *SessionRegistry) trialConnect(ctx context.Context, cfg *domain.ConnectionConfig, secretValue string) error {
	adapter, err := r.adapters.Get(cfg.Driver)
	if err != nil {
		return domain.WithContext(err, "test", cfg.ID)
	}
	cctx, cancel := context.WithTimeout(ctx, r.connectTimeout)
	defer cancel()

	start := time.Now()
	conn, err := adapter.Connect(cctx, cfg, secretValue)
	if err != nil {
		err = kinded(err, "test", cfg.ID, domain.KindTimedOut, domain.KindProtocolMismatch)
		r.logger.Info("test failed", "id", cfg.ID, "kind", domain.KindOf(err))
		return err
	}
	if err := conn.Close(ctx); err != nil {
		r.logger.Warn("close after test failed", "id", cfg.ID, "error", err)
	}
	r.logger.Info("test ok", "id", cfg.ID, "elapsed", time.Since(start))
	return nil
}

// Status returns a snapshot for id. Unknown ids report disconnected.
func (r *SessionRegistry) Status(id string) domain.SessionStatus {
	s := r.lookup(id)
	if s == nil {
		return domain.SessionStatus{ConnectionID: id, State: domain.SessionDisconnected}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

// Statuses returns snapshots of every session the registry has seen,
// ordered by id.
func (r *SessionRegistry) Statuses() []domain.SessionStatus {
	r.mu.Lock()
	all := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.Unlock()

	out := make([]domain.SessionStatus, 0, len(all))
	for _, s := range all {
		s.mu.Lock()
		out = append(out, s.statusLocked())
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectionID < out[j].ConnectionID })
	return out
}

// active borrows the connected session for id, or fails with
// SessionNotConnected.
func (r *SessionRegistry) active(id, op string) (*activeSession, error) {
	s := r.lookup(id)
	if s == nil {
		return nil, domain.E(domain.KindSessionNotConnected, op, id, errors.New("session is disconnected"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.SessionConnected {
		return nil, domain.E(domain.KindSessionNotConnected, op, id, fmt.Errorf("session is %s", s.state))
	}
	return &activeSession{ID: id, Config: s.cfg, Conn: s.conn, Ctx: s.ctx, Generation: s.generation}, nil
}

// generation returns the current generation of id and whether it is
// connected.
func (r *SessionRegistry) generation(id string) (uint64, bool) {
	s := r.lookup(id)
	if s == nil {
		return 0, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation, s.state == domain.SessionConnected
}

func (r *SessionRegistry) connected() []*activeSession {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	var out []*activeSession
	for _, id := range ids {
		if a, err := r.active(id, "list"); err == nil {
			out = append(out, a)
		}
	}
	return out
}

// CloseAll disconnects every session in parallel and waits for in-flight
// operations. Used on shutdown.
func (r *SessionRegistry) CloseAll(ctx context.Context) error {
	disconnectAll := func() error {
		r.mu.Lock()
		ids := make([]string, 0, len(r.sessions))
		for id := range r.sessions {
			ids = append(ids, id)
		}
		r.mu.Unlock()

		var g errgroup.Group
		for _, id := range ids {
			g.Go(func() error {
				_, err := r.Disconnect(ctx, id)
				if errors.Is(err, domain.ErrOperationInProgress) {
					return nil
				}
				return err
			})
		}
		return g.Wait()
	}

	err := disconnectAll()
	r.guard.WaitAll(ctx)
	// connects that were in flight during the first pass
	if err2 := disconnectAll(); err == nil {
		err = err2
	}
	return err
}

// kinded stamps op/id on err, classifying unkinded errors with the given
// timeout and fallback kinds.
func kinded(err error, op, id string, timeoutKind, fallback domain.ErrorKind) error {
	if domain.KindOf(err) != "" {
		return domain.WithContext(err, op, id)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.E(timeoutKind, op, id, err)
	}
	return domain.E(fallback, op, id, err)
}
