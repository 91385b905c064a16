// Package zyte provides a client for the Zyte API extract endpoint, a
// rendering/proxy service that returns browser-rendered or raw HTML.
package zyte

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the Zyte API operations.
type Client interface {
	// Extract fetches a URL through Zyte and returns the page body.
	Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error)
}

// ExtractRequest is the JSON payload for POST /v1/extract.
type ExtractRequest struct {
	URL                      string          `json:"url"`
	BrowserHTML              bool            `json:"browserHtml,omitempty"`
	HTTPResponseBody         bool            `json:"httpResponseBody,omitempty"`
	Actions                  []Action        `json:"actions,omitempty"`
	CustomHTTPRequestHeaders []HTTPHeader    `json:"customHttpRequestHeaders,omitempty"`
	RequestHeaders           *RequestHeaders `json:"requestHeaders,omitempty"`
}

// RequestHeaders are the headers a browser request may override. The
// browser sets every other header itself.
type RequestHeaders struct {
	Referer string `json:"referer,omitempty"`
}

// Action is a browser action executed before the HTML snapshot.
type Action struct {
	Action   string    `json:"action"`
	Selector *Selector `json:"selector,omitempty"`
	Timeout  float64   `json:"timeout,omitempty"`
}

// Selector targets an element for an Action.
type Selector struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// HTTPHeader is a single outgoing header forwarded to the target site.
type HTTPHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// WaitForSelector returns an action that waits for a CSS selector to appear.
func WaitForSelector(css string) Action {
	return Action{
		Action:   "waitForSelector",
		Selector: &Selector{Type: "css", Value: css},
		Timeout:  15,
	}
}

// ExtractResponse is the parsed Zyte API response.
type ExtractResponse struct {
	URL              string `json:"url"`
	StatusCode       int    `json:"statusCode"`
	BrowserHTML      string `json:"browserHtml"`
	HTTPResponseBody string `json:"httpResponseBody"` // base64
}

// HTML returns the rendered HTML, decoding the raw body when the request
// asked for httpResponseBody instead of browserHtml.
func (r *ExtractResponse) HTML() (string, error) {
	if r.BrowserHTML != "" {
		return r.BrowserHTML, nil
	}
	if r.HTTPResponseBody == "" {
		return "", nil
	}
	b, err := base64.StdEncoding.DecodeString(r.HTTPResponseBody)
	if err != nil {
		return "", eris.Wrap(err, "zyte: decode httpResponseBody")
	}
	return string(b), nil
}

// APIError is a non-2xx answer from the Zyte API. Zyte reports errors as
// RFC 7807 problem documents.
type APIError struct {
	StatusCode int
	RetryAfter time.Duration
	Type       string `json:"type"`
	Title      string `json:"title"`
	Detail     string `json:"detail"`
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("zyte: status %d", e.StatusCode)
	if e.Type != "" {
		msg += " " + e.Type
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	} else if e.Title != "" {
		msg += ": " + e.Title
	}
	return msg
}

// Option configures the Zyte client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.http.Timeout = d
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a new Zyte API client. Requests authenticate with HTTP
// basic auth using the API key as username and an empty password.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.zyte.com",
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 32,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Extract issues a single request. It never retries; callers decide based on
// the returned *APIError.
func (c *httpClient) Extract(ctx context.Context, in ExtractRequest) (*ExtractResponse, error) {
	if in.URL == "" {
		return nil, eris.New("zyte: url is required")
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, eris.Wrap(err, "zyte: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/extract", bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "zyte: create request")
	}
	req.SetBasicAuth(c.apiKey, "")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "zyte: request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "zyte: read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
		if jsonErr := json.Unmarshal(body, apiErr); jsonErr != nil {
			apiErr.Detail = truncate(strings.TrimSpace(string(body)), 512)
		}
		apiErr.StatusCode = resp.StatusCode
		return nil, apiErr
	}

	var out ExtractResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "zyte: unmarshal response")
	}
	return &out, nil
}

// parseRetryAfter parses a Retry-After header (seconds or HTTP-date).
// Returns 0 if absent or invalid.
func parseRetryAfter(h string) time.Duration {
	h = strings.TrimSpace(h)
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
