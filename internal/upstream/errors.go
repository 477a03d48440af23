package upstream

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/blackwell-systems/aurtrust/internal/trust"
)

var (
	// ErrUnavailable indicates a transient failure that survived every retry.
	ErrUnavailable = errors.New("upstream unavailable")

	// ErrProtocol indicates a permanent failure such as an unusable response body.
	ErrProtocol = errors.New("upstream protocol error")

	// ErrNoSource indicates an identity whose repository has no registered source.
	ErrNoSource = errors.New("no source for repository")
)

// ErrorKind classifies fetch failures.
type ErrorKind int

const (
	// KindUnavailable is a transient failure: timeout, 5xx, rate limiting.
	KindUnavailable ErrorKind = iota
	// KindProtocol is a permanent failure for this package.
	KindProtocol
)

// String returns a short name for the kind.
func (k ErrorKind) String() string {
	if k == KindProtocol {
		return "protocol"
	}
	return "unavailable"
}

// FetchError is the per-package failure returned by a fetch.
type FetchError struct {
	Identity trust.Identity
	Kind     ErrorKind
	Attempts int
	Err      error
}

// Error implements the error interface
func (e *FetchError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("fetch %s: %s after %d attempts: %v", e.Identity, e.Kind, e.Attempts, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.Identity, e.Kind, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrUnavailable:
		return e.Kind == KindUnavailable
	case ErrProtocol:
		return e.Kind == KindProtocol
	}
	return false
}

// TransientError marks a source failure worth retrying.
type TransientError struct {
	StatusCode int
	Err        error
}

// Error implements the error interface
func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transient failure (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient failure: %v", e.Err)
}

// Unwrap implements errors.Unwrap
func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err so the fetcher retries it.
func Transient(err error) error {
	return &TransientError{Err: err}
}

// TransientStatus wraps an HTTP status failure so the fetcher retries it.
func TransientStatus(code int) error {
	return &TransientError{StatusCode: code, Err: errors.New(http.StatusText(code))}
}

// IsTransientStatus reports whether an HTTP status is worth retrying.
func IsTransientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var tErr *TransientError
	return errors.As(err, &tErr)
}
