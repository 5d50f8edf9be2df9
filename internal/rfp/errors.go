package rfp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	// ErrEmpty is returned by adapters whose source had no listings.
	ErrEmpty = errors.New("source returned no listings")
	// ErrNotFound is returned by blob stores for missing objects.
	ErrNotFound = errors.New("object not found")
	// ErrDedupConflict marks a stored prior entry that is missing or corrupt.
	ErrDedupConflict = errors.New("dedup conflict")
)

// NetworkError is a transport or HTTP status failure talking to a source.
type NetworkError struct {
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("network error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Transient reports whether a retry may succeed: 429, any 5xx, or a
// transport-level timeout.
func (e *NetworkError) Transient() bool {
	if e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500 {
		return true
	}
	var netErr net.Error
	if errors.As(e.Err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// AuthError reports a missing, expired or rejected credential.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("auth error: %v", e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// ParseError reports a response whose shape no longer matches the adapter.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse error: %v", e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// SourceFetchError is an isolated per-source failure recorded in the report.
type SourceFetchError struct {
	Source Source
	Err    error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("source %s: %s: %v", e.Source, ErrorKind(e.Err), e.Err)
}

func (e *SourceFetchError) Unwrap() error { return e.Err }

// ClassificationError reports text a classifier pass could not process.
type ClassificationError struct {
	ContentHash string
	Err         error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classify %s: %v", e.ContentHash, e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// PersistenceError is a fatal dataset or seen-set write failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("persist %s: %v", e.Op, e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }

// ErrorKind classifies err into the short label used in outcome reasons.
func ErrorKind(err error) string {
	var (
		netErr   *NetworkError
		authErr  *AuthError
		parseErr *ParseError
	)
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrEmpty):
		return "empty"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &parseErr):
		return "parse"
	case errors.As(err, &netErr):
		return "network"
	default:
		return "unknown"
	}
}
