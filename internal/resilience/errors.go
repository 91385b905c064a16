package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
	"time"
)

// TransientError wraps an error that is safe to retry (e.g., 429, 5xx, network timeout).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// ErrorKind implements Classified.
func (e *TransientError) ErrorKind() ErrorKind { return KindFetchTransient }

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// PersistenceKind distinguishes store failures the caller may retry.
type PersistenceKind int

const (
	// PersistenceConflict is a concurrent writer or unique-constraint race.
	PersistenceConflict PersistenceKind = iota + 1
	// PersistenceUnavailable is lost connectivity or an exhausted pool.
	PersistenceUnavailable
	// PersistencePermanent is a malformed statement or bad data.
	PersistencePermanent
)

// PersistenceError is returned by stores with the failure classified.
type PersistenceError struct {
	Kind PersistenceKind
	Op   string
	Err  error
}

func (e *PersistenceError) Error() string {
	return "store: " + e.Op + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ErrorKind implements Classified.
func (e *PersistenceError) ErrorKind() ErrorKind {
	switch e.Kind {
	case PersistenceConflict:
		return KindPersistenceConflict
	case PersistenceUnavailable:
		return KindPersistenceUnavailable
	default:
		return KindPersistencePermanent
	}
}

// RetryAfterHint is implemented by errors that carry a server-provided
// minimum delay before the next attempt.
type RetryAfterHint interface {
	RetryAfterDelay() time.Duration
}

// IsTransient returns true if the error (or any error in its chain) is
// classified as retryable, or if it matches common transient error patterns
// (network timeouts, connection resets, DNS failures).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	// Classified errors decide for themselves.
	var c Classified
	if errors.As(err, &c) {
		return c.ErrorKind().Retryable()
	}

	// Check for network-level transient errors.
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Connection reset / refused / DNS.
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return statusCode > 500 && statusCode < 600
	}
}

// retryAfterOf returns the first hint found in err's chain.
func retryAfterOf(err error) time.Duration {
	var h RetryAfterHint
	if errors.As(err, &h) {
		return h.RetryAfterDelay()
	}
	return 0
}
