package resilience

import (
	"context"
	"errors"
)

// ErrorKind labels a failure for counting, retry and escalation decisions.
type ErrorKind string

const (
	KindNone                   ErrorKind = ""
	KindFetchTransient         ErrorKind = "fetch_transient"
	KindFetchPermanent         ErrorKind = "fetch_permanent"
	KindFetchQuotaExceeded     ErrorKind = "fetch_quota_exceeded"
	KindParseStructural        ErrorKind = "parse_structural"
	KindPersistenceConflict    ErrorKind = "persistence_conflict"
	KindPersistenceUnavailable ErrorKind = "persistence_unavailable"
	KindPersistencePermanent   ErrorKind = "persistence_permanent"
	KindCanceled               ErrorKind = "canceled"
	KindUnknown                ErrorKind = "unknown"
)

// Classified is implemented by errors that know their own kind.
type Classified interface {
	error
	ErrorKind() ErrorKind
}

// Retryable reports whether another attempt at the same operation may succeed.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindFetchTransient, KindPersistenceConflict, KindPersistenceUnavailable:
		return true
	default:
		return false
	}
}

// JobLevel reports whether the kind aborts a whole crawl job once the item's
// retry budget is spent. Quota exhaustion escalates immediately.
func (k ErrorKind) JobLevel() bool {
	return k == KindFetchQuotaExceeded || k == KindPersistenceUnavailable
}

// KindOf classifies err. Unclassified transient-looking errors map to
// KindFetchTransient; everything else unclassified is KindUnknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var c Classified
	if errors.As(err, &c) {
		return c.ErrorKind()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}
	if IsTransient(err) {
		return KindFetchTransient
	}
	return KindUnknown
}
