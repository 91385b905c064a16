// Package fetchtest provides a scripted fetch.Client for tests.
package fetchtest

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/directory-crawler/internal/fetch"
)

// Response is one scripted answer of a Static client.
type Response struct {
	HTML string
	Err  error
}

// Static is an in-memory fetch.Client keyed by URL. Each call consumes the
// next scripted response; the last one repeats. Unknown URLs fail
// permanently with 404.
type Static struct {
	mu        sync.Mutex
	responses map[string][]Response
	latency   map[string]time.Duration
	calls     map[string]int
	requests  []fetch.Request
	started   chan string
	inFlight  int
	peak      int
}

// NewStatic creates an empty Static client.
func NewStatic() *Static {
	return &Static{
		responses: make(map[string][]Response),
		latency:   make(map[string]time.Duration),
		calls:     make(map[string]int),
		started:   make(chan string, 256),
	}
}

// AddPage scripts a successful response for url.
func (s *Static) AddPage(url, html string) *Static {
	return s.Add(url, Response{HTML: html})
}

// AddError scripts a failing response for url.
func (s *Static) AddError(url string, err error) *Static {
	return s.Add(url, Response{Err: err})
}

// Add appends scripted responses for url.
func (s *Static) Add(url string, rs ...Response) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[url] = append(s.responses[url], rs...)
	return s
}

// Delay makes every fetch of url take d. The wait ends early with the
// context error when ctx is done.
func (s *Static) Delay(url string, d time.Duration) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency[url] = d
	return s
}

// Started receives each URL as its fetch begins.
func (s *Static) Started() <-chan string { return s.started }

// Calls returns how many times url was fetched.
func (s *Static) Calls(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[url]
}

// PeakInFlight returns the most fetches that were running at once.
func (s *Static) PeakInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peak
}

// Requests returns every request received, in arrival order.
func (s *Static) Requests() []fetch.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]fetch.Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Fetch implements fetch.Client.
func (s *Static) Fetch(ctx context.Context, req fetch.Request) (*fetch.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	n := s.calls[req.URL]
	s.calls[req.URL] = n + 1
	s.requests = append(s.requests, req)
	rs := s.responses[req.URL]
	delay := s.latency[req.URL]
	s.inFlight++
	s.peak = max(s.peak, s.inFlight)
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	select {
	case s.started <- req.URL:
	default:
	}
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if len(rs) == 0 {
		return nil, &fetch.Error{Kind: fetch.Permanent, URL: req.URL, StatusCode: http.StatusNotFound, Err: eris.New("no scripted response")}
	}
	r := rs[min(n, len(rs)-1)]
	if r.Err != nil {
		return nil, r.Err
	}
	return &fetch.Page{URL: req.URL, FinalURL: req.URL, StatusCode: http.StatusOK, HTML: r.HTML}, nil
}
