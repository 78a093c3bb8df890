package dbclient

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"os"
	"syscall"

	"dbai/internal/domain"
)

// phase is the adapter call an error came from. It decides the fallback kind
// and how transport failures are reported.
type phase int

const (
	phaseConnect phase = iota
	phaseExecute
	phaseSchema
)

func (p phase) op() string {
	switch p {
	case phaseConnect:
		return "connect"
	case phaseSchema:
		return "list collections"
	default:
		return "execute"
	}
}

// driverClassifier maps a backend-specific error to a kind. ok is false when
// the error is not one the backend recognises.
type driverClassifier func(p phase, err error) (kind domain.ErrorKind, ok bool)

// classify turns err into a kinded *domain.Error. Errors that already carry a
// kind pass through.
func classify(p phase, err error, byDriver driverClassifier) error {
	if err == nil {
		return nil
	}
	if domain.KindOf(err) != "" {
		return err
	}
	return domain.E(kindFor(p, err, byDriver), p.op(), "", err)
}

func kindFor(p phase, err error, byDriver driverClassifier) domain.ErrorKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		if p == phaseConnect {
			return domain.KindTimedOut
		}
		return domain.KindQueryTimeout
	case errors.Is(err, context.Canceled):
		if p == phaseConnect {
			return domain.KindTimedOut
		}
		return domain.KindConnectionLost
	}

	if byDriver != nil {
		if k, ok := byDriver(p, err); ok {
			return k
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		if p == phaseConnect {
			return domain.KindTimedOut
		}
		return domain.KindQueryTimeout
	}

	if isTransportError(err) {
		if p == phaseConnect {
			return domain.KindNetworkUnreachable
		}
		return domain.KindConnectionLost
	}

	switch p {
	case phaseConnect:
		return domain.KindProtocolMismatch
	default:
		return domain.KindQuerySyntaxError
	}
}

func isTransportError(err error) bool {
	var opErr *net.OpError
	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &opErr), errors.As(err, &dnsErr):
		return true
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE), errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH):
		return true
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone),
		errors.Is(err, net.ErrClosed):
		return true
	case errors.Is(err, os.ErrNotExist):
		return true
	}
	return false
}

// syntaxError reports a malformed query detected before reaching the backend.
func syntaxError(format string, args ...any) error {
	e := domain.Errorf(domain.KindQuerySyntaxError, format, args...)
	e.Op = phaseExecute.op()
	return e
}
