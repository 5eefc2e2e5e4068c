package weather

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// TransportKind names the class of a transport-level failure. The sync
// engine maps every kind to a retryable outcome.
type TransportKind string

const (
	KindHostUnreachable TransportKind = "host-unreachable"
	KindTimeout         TransportKind = "timeout"
	KindOtherIO         TransportKind = "other-io"
)

// APIError is a non-2xx HTTP response from the provider.
type APIError struct {
	StatusCode int
	Status     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("weather api: unexpected status %s", e.Status)
}

// IsClientError reports whether the status is in the 4xx range.
func (e *APIError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// IsServerError reports whether the status is in the 5xx range.
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// TransportError is a failure that happened before any HTTP status was
// received: the host could not be reached, the call timed out, or the
// connection broke mid-flight.
type TransportError struct {
	Kind TransportKind
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("weather transport (%s): %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// classifyTransport wraps a client-side error with its failure kind.
// Context cancellation is passed through untouched so callers can tell an
// abandoned call from a failed one.
func classifyTransport(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &TransportError{Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TransportError{Kind: KindTimeout, Err: err}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &TransportError{Kind: KindHostUnreachable, Err: err}
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return &TransportError{Kind: KindHostUnreachable, Err: err}
	}

	return &TransportError{Kind: KindOtherIO, Err: err}
}
