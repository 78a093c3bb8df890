package dbclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"dbai/internal/domain"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify_Generic(t *testing.T) {
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}

	tests := []struct {
		name  string
		phase phase
		err   error
		want  domain.ErrorKind
	}{
		{"connect deadline", phaseConnect, context.DeadlineExceeded, domain.KindTimedOut},
		{"execute deadline", phaseExecute, context.DeadlineExceeded, domain.KindQueryTimeout},
		{"connect canceled", phaseConnect, context.Canceled, domain.KindTimedOut},
		{"execute canceled", phaseExecute, context.Canceled, domain.KindConnectionLost},
		{"connect refused", phaseConnect, refused, domain.KindNetworkUnreachable},
		{"execute refused", phaseExecute, refused, domain.KindConnectionLost},
		{"net timeout connect", phaseConnect, timeoutErr{}, domain.KindTimedOut},
		{"net timeout execute", phaseExecute, timeoutErr{}, domain.KindQueryTimeout},
		{"dns", phaseConnect, &net.DNSError{Err: "no such host", Name: "nope.invalid"}, domain.KindNetworkUnreachable},
		{"unknown connect", phaseConnect, errors.New("unexpected handshake byte"), domain.KindProtocolMismatch},
		{"unknown execute", phaseExecute, errors.New("near FROM"), domain.KindQuerySyntaxError},
		{"unknown schema", phaseSchema, errors.New("bad catalog"), domain.KindQuerySyntaxError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(tt.phase, fmt.Errorf("op: %w", tt.err), nil)
			assert.Equal(t, tt.want, domain.KindOf(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestClassify_PassesKindedErrors(t *testing.T) {
	orig := domain.E(domain.KindInvalidConfig, "connect", "c1", errors.New("bad port"))
	assert.Same(t, orig, classify(phaseConnect, orig, classifyPostgres))
	assert.NoError(t, classify(phaseExecute, nil, nil))
}

func TestClassifyPostgres(t *testing.T) {
	tests := []struct {
		name  string
		phase phase
		code  pq.ErrorCode
		want  domain.ErrorKind
	}{
		{"bad password", phaseConnect, "28P01", domain.KindAuthRejected},
		{"insufficient privilege", phaseExecute, "42501", domain.KindPermissionDenied},
		{"syntax", phaseExecute, "42601", domain.KindQuerySyntaxError},
		{"undefined table", phaseSchema, "42P01", domain.KindQuerySyntaxError},
		{"statement timeout", phaseExecute, "57014", domain.KindQueryTimeout},
		{"admin shutdown", phaseExecute, "57P01", domain.KindConnectionLost},
		{"cannot connect now", phaseConnect, "57P03", domain.KindNetworkUnreachable},
		{"unknown db at connect", phaseConnect, "3D000", domain.KindProtocolMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(tt.phase, &pq.Error{Code: tt.code, Message: tt.name}, classifyPostgres)
			assert.Equal(t, tt.want, domain.KindOf(err))
		})
	}
}
