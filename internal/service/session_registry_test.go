package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"dbai/internal/config"
	"dbai/internal/dbclient"
	"dbai/internal/domain"
	"dbai/internal/service"
)

// ─────────────────────────────────────────────────────────────
// Connect / Disconnect
// ─────────────────────────────────────────────────────────────

func TestSessionRegistry_ConnectLifecycle(t *testing.T) {
	stub := newStub(domain.DatabaseDriverMongoDB)
	f := newFixture(t, []dbclient.Adapter{stub})
	ctx := context.Background()
	id := f.saveMongo(t, "mongo")

	if got := f.state(id); got != domain.SessionDisconnected {
		t.Fatalf("expected disconnected before connect, got %s", got)
	}

	st, err := f.svc.Connect(ctx, id)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if st.State != domain.SessionConnected {
		t.Fatalf("expected connected, got %s", st.State)
	}
	if st.Generation != 1 {
		t.Errorf("expected generation 1, got %d", st.Generation)
	}
	if st.ConnectedAt.IsZero() {
		t.Error("expected ConnectedAt set")
	}

	st, err = f.svc.Disconnect(ctx, id)
	if err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if st.State != domain.SessionDisconnected {
		t.Fatalf("expected disconnected, got %s", st.State)
	}
	if n := stub.closes.Load(); n != 1 {
		t.Errorf("expected 1 close, got %d", n)
	}

	// second disconnect is a no-op
	if _, err := f.svc.Disconnect(ctx, id); err != nil {
		t.Fatalf("repeat disconnect: %v", err)
	}
	if n := stub.closes.Load(); n != 1 {
		t.Errorf("repeat disconnect closed again: %d", n)
	}

	st, err = f.svc.Connect(ctx, id)
	if err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if st.Generation != 2 {
		t.Errorf("expected generation 2 after reconnect, got %d", st.Generation)
	}
}

func TestSessionRegistry_EmitsStatusEvents(t *testing.T) {
	f := newFixture(t, []dbclient.Adapter{newStub(domain.DatabaseDriverMongoDB)})
	ctx := context.Background()
	id := f.saveMongo(t, "mongo")

	f.connect(t, id)
	if _, err := f.svc.Disconnect(ctx, id); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	var states []domain.SessionState
	for _, ev := range f.emitter.Snapshot() {
		if ev.Event != service.EventSessionStatus {
			continue
		}
		st, ok := ev.Data.(domain.SessionStatus)
		if !ok {
			t.Fatalf("unexpected payload %T", ev.Data)
		}
		states = append(states, st.State)
	}
	want := []domain.SessionState{
		domain.SessionConnecting, domain.SessionConnected,
		domain.SessionDisconnecting, domain.SessionDisconnected,
	}
	if len(states) != len(want) {
		t.Fatalf("expected states %v, got %v", want, states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("expected states %v, got %v", want, states)
		}
	}
}

func TestSessionRegistry_ConnectTwice(t *testing.T) {
	stub := newStub(domain.DatabaseDriverMongoDB)
	f := newFixture(t, []dbclient.Adapter{stub})
	id := f.saveMongo(t, "mongo")
	f.connect(t, id)

	st, err := f.svc.Connect(context.Background(), id)
	wantKind(t, err, domain.KindAlreadyConnected)
	if st.State != domain.SessionConnected {
		t.Errorf("expected session to stay connected, got %s", st.State)
	}
	if n := stub.connects.Load(); n != 1 {
		t.Fatalf("expected exactly one adapter connect, got %d", n)
	}
}

func TestSessionRegistry_ConnectFailureLeavesErrored(t *testing.T) {
	stub := newStub(domain.DatabaseDriverMongoDB)
	stub.connectFn = func(context.Context) error {
		return domain.Errorf(domain.KindAuthRejected, "bad credentials")
	}
	f := newFixture(t, []dbclient.Adapter{stub})
	ctx := context.Background()
	id := f.saveMongo(t, "mongo")

	st, err := f.svc.Connect(ctx, id)
	wantKind(t, err, domain.KindAuthRejected)
	if st.State != domain.SessionErrored {
		t.Fatalf("expected errored, got %s", st.State)
	}
	if st.ErrorKind != domain.KindAuthRejected {
		t.Errorf("expected error kind on status, got %q", st.ErrorKind)
	}
	if n := stub.connects.Load(); n != 1 {
		t.Fatalf("connect must not retry, got %d attempts", n)
	}

	st, err = f.svc.Disconnect(ctx, id)
	if err != nil {
		t.Fatalf("disconnect errored session: %v", err)
	}
	if st.State != domain.SessionDisconnected || st.Error != "" {
		t.Fatalf("expected clean disconnected status, got %+v", st)
	}
}

func TestSessionRegistry_ConnectTimeout(t *testing.T) {
	stub := newStub(domain.DatabaseDriverMongoDB)
	stub.connectFn = func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	f := newFixture(t, []dbclient.Adapter{stub}, func(c *config.Config) {
		c.Connect.Timeout = 50 * time.Millisecond
	})
	id := f.saveMongo(t, "mongo")

	_, err := f.svc.Connect(context.Background(), id)
	wantKind(t, err, domain.KindTimedOut)
	if got := f.state(id); got != domain.SessionErrored {
		t.Fatalf("expected errored, got %s", got)
	}
}

func TestSessionRegistry_UnknownDriverAdapter(t *testing.T) {
	// mongodb config, but only a postgres adapter registered
	f := newFixture(t, []dbclient.Adapter{newStub(domain.DatabaseDriverPostgres)})
	id := f.saveMongo(t, "mongo")

	_, err := f.svc.Connect(context.Background(), id)
	wantKind(t, err, domain.KindInvalidConfig)
	if got := f.state(id); got != domain.SessionDisconnected {
		t.Fatalf("expected disconnected, got %s", got)
	}
}

func TestSessionRegistry_DisconnectUnknown(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Disconnect(context.Background(), "missing")
	wantKind(t, err, domain.KindNotFound)
}

func TestSessionRegistry_ConnectWhileBusy(t *testing.T) {
	stub := newStub(domain.DatabaseDriverMongoDB)
	entered := make(chan struct{})
	unblock := make(chan struct{})
	stub.connectFn = func(context.Context) error {
		close(entered)
		<-unblock
		return nil
	}
	f := newFixture(t, []dbclient.Adapter{stub})
	ctx := context.Background()
	id := f.saveMongo(t, "mongo")

	errc := make(chan error, 1)
	go func() {
		_, err := f.svc.Connect(ctx, id)
		errc <- err
	}()
	<-entered

	if got := f.state(id); got != domain.SessionConnecting {
		t.Fatalf("expected connecting, got %s", got)
	}
	_, err := f.svc.Connect(ctx, id)
	wantKind(t, err, domain.KindAlreadyConnected)

	err = f.svc.TestConnection(ctx, id)
	wantKind(t, err, domain.KindOperationInProgress)

	_, err = f.svc.Disconnect(ctx, id)
	wantKind(t, err, domain.KindOperationInProgress)

	close(unblock)
	if err := <-errc; err != nil {
		t.Fatalf("connect: %v", err)
	}
	if got := f.state(id); got != domain.SessionConnected {
		t.Fatalf("expected connected, got %s", got)
	}
}

// ─────────────────────────────────────────────────────────────
// TestConnection
// ─────────────────────────────────────────────────────────────

func TestSessionRegistry_TestConnectionLeavesStateAlone(t *testing.T) {
	stub := newStub(domain.DatabaseDriverMongoDB)
	f := newFixture(t, []dbclient.Adapter{stub})
	ctx := context.Background()
	id := f.saveMongo(t, "mongo")

	if err := f.svc.TestConnection(ctx, id); err != nil {
		t.Fatalf("test connection: %v", err)
	}
	if got := f.state(id); got != domain.SessionDisconnected {
		t.Fatalf("expected disconnected after test, got %s", got)
	}
	if n := stub.closes.Load(); n != 1 {
		t.Errorf("expected test handle closed, got %d closes", n)
	}

	stub.connectFn = func(context.Context) error {
		return domain.Errorf(domain.KindNetworkUnreachable, "no route")
	}
	err := f.svc.TestConnection(ctx, id)
	wantKind(t, err, domain.KindNetworkUnreachable)
	st := f.svc.Sessions().Status(id)
	if st.State != domain.SessionDisconnected || st.Error != "" {
		t.Fatalf("failed test must not touch status, got %+v", st)
	}
}

func TestSessionRegistry_TestUnsavedInput(t *testing.T) {
	stub := newStub(domain.DatabaseDriverPostgres)
	f := newFixture(t, []dbclient.Adapter{stub})
	ctx := context.Background()

	err := f.svc.TestConnectionInput(ctx, service.ConnectionInput{
		Name: "pg", Driver: "postgres", Host: "db", Password: "pw",
	})
	if err != nil {
		t.Fatalf("test input: %v", err)
	}
	if stub.secret() != "pw" {
		t.Errorf("expected password passed through, got %q", stub.secret())
	}

	err = f.svc.TestConnectionInput(ctx, service.ConnectionInput{Name: "pg", Driver: "postgres"})
	wantKind(t, err, domain.KindInvalidConfig)

	list, _ := f.svc.ListConnections(ctx)
	if len(list) != 0 {
		t.Fatal("testing an input must not save it")
	}
}

// ─────────────────────────────────────────────────────────────
// Health and shutdown
// ─────────────────────────────────────────────────────────────

func TestHealthChecker_MarksFailedPingLost(t *testing.T) {
	stub := newStub(domain.DatabaseDriverMongoDB)
	f := newFixture(t, []dbclient.Adapter{stub})
	id := f.saveMongo(t, "mongo")
	f.connect(t, id)

	if n := f.svc.Health().CheckNow(context.Background()); n != 0 {
		t.Fatalf("healthy session reported lost: %d", n)
	}

	stub.pingErr = errors.New("connection reset by peer")
	if n := f.svc.Health().CheckNow(context.Background()); n != 1 {
		t.Fatalf("expected 1 lost session, got %d", n)
	}
	st := f.svc.Sessions().Status(id)
	if st.State != domain.SessionErrored {
		t.Fatalf("expected errored, got %s", st.State)
	}
	if st.ErrorKind != domain.KindConnectionLost {
		t.Errorf("expected ConnectionLost, got %q", st.ErrorKind)
	}
}

func TestHealthChecker_StartStop(t *testing.T) {
	f := newFixture(t, nil, func(c *config.Config) {
		c.Health.Enabled = true
		c.Health.Interval = time.Hour
	})
	if err := f.svc.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	f.svc.Health().Stop(ctx)
}

func TestSessionRegistry_CloseAll(t *testing.T) {
	stub := newStub(domain.DatabaseDriverMongoDB)
	f := newFixture(t, []dbclient.Adapter{stub})
	a := f.saveMongo(t, "a")
	b := f.saveMongo(t, "b")
	f.connect(t, a)
	f.connect(t, b)

	if err := f.svc.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	for _, id := range []string{a, b} {
		if got := f.state(id); got != domain.SessionDisconnected {
			t.Errorf("%s: expected disconnected, got %s", id, got)
		}
	}
	if n := stub.closes.Load(); n != 2 {
		t.Errorf("expected 2 closes, got %d", n)
	}
}
