// Package fetch retrieves directory pages through a rendering/proxy service
// and classifies every failure so callers can decide to retry, skip or abort.
package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/sells-group/directory-crawler/internal/resilience"
)

// Client fetches a single page. Implementations never retry internally.
type Client interface {
	Fetch(ctx context.Context, req Request) (*Page, error)
}

// Request describes one page to fetch.
type Request struct {
	URL             string
	Render          bool   // browser-rendered HTML instead of the raw body
	WaitForSelector string // only meaningful with Render
	SiteID          string // selects the rate limit bucket

	// Headers are sent to the target site. Rendered requests forward only
	// Referer; the browser controls the rest.
	Headers map[string]string
}

// Page is a fetched document.
type Page struct {
	URL        string // requested URL
	FinalURL   string // URL after redirects, when the service reports one
	StatusCode int
	HTML       string
}

// Kind classifies a fetch failure.
type Kind int

const (
	// Transient failures may succeed on a later attempt.
	Transient Kind = iota + 1
	// Permanent failures will not succeed for this URL.
	Permanent
	// QuotaExceeded means the service refuses all further work for the job.
	QuotaExceeded
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	case QuotaExceeded:
		return "quota_exceeded"
	default:
		return "unknown"
	}
}

// Error is returned by Client implementations for every failed fetch.
type Error struct {
	Kind       Kind
	URL        string
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("fetch: %s %s", e.Kind, e.URL)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorKind implements resilience.Classified.
func (e *Error) ErrorKind() resilience.ErrorKind {
	switch e.Kind {
	case Transient:
		return resilience.KindFetchTransient
	case QuotaExceeded:
		return resilience.KindFetchQuotaExceeded
	default:
		return resilience.KindFetchPermanent
	}
}

// RetryAfterDelay implements resilience.RetryAfterHint.
func (e *Error) RetryAfterDelay() time.Duration { return e.RetryAfter }

// KindForStatus maps an HTTP status to a fetch Kind. Zero means success.
func KindForStatus(status int) Kind {
	switch {
	case status >= 200 && status < 400:
		return 0
	case status == 402:
		return QuotaExceeded
	case resilience.IsTransientHTTPStatus(status):
		return Transient
	default:
		return Permanent
	}
}
