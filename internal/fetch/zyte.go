package fetch

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/directory-crawler/internal/resilience"
	"github.com/sells-group/directory-crawler/pkg/zyte"
)

// ZyteFetcher implements Client on top of the Zyte extract API.
type ZyteFetcher struct {
	client zyte.Client
	limits *Limits
}

// NewZyteFetcher wires a Zyte client to the shared per-site limits.
func NewZyteFetcher(client zyte.Client, limits *Limits) *ZyteFetcher {
	if limits == nil {
		limits = NewLimits(nil, SiteLimit{})
	}
	return &ZyteFetcher{client: client, limits: limits}
}

// Fetch waits on the site's limiter, issues one extract call and classifies
// the outcome.
func (f *ZyteFetcher) Fetch(ctx context.Context, req Request) (*Page, error) {
	if req.URL == "" {
		return nil, &Error{Kind: Permanent, Err: eris.New("empty url")}
	}

	lim := f.limits.For(req.SiteID)
	if err := lim.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, eris.Wrap(err, "fetch: rate limiter wait")
	}

	resp, err := f.client.Extract(ctx, buildExtract(req))
	if err != nil {
		ferr := classify(ctx, req.URL, err)
		if ferr == nil {
			return nil, ctx.Err()
		}
		if ferr.StatusCode == http.StatusTooManyRequests {
			lim.OnRateLimit()
		}
		return nil, ferr
	}

	// The service answers 200 with the target's own status for downloads.
	if kind := KindForStatus(resp.StatusCode); kind != 0 && resp.StatusCode != 0 {
		if kind == QuotaExceeded {
			kind = Permanent // 402 from the target site is not our budget
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			lim.OnRateLimit()
		}
		return nil, &Error{Kind: kind, URL: req.URL, StatusCode: resp.StatusCode, Err: eris.New("target responded with error status")}
	}

	html, err := resp.HTML()
	if err != nil {
		return nil, &Error{Kind: Transient, URL: req.URL, Err: err}
	}
	lim.OnSuccess()

	zap.L().Debug("fetch: page retrieved",
		zap.String("site", req.SiteID),
		zap.String("url", req.URL),
		zap.Bool("render", req.Render),
		zap.Int("bytes", len(html)),
	)

	final := resp.URL
	if final == "" {
		final = req.URL
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	return &Page{URL: req.URL, FinalURL: final, StatusCode: status, HTML: html}, nil
}

func buildExtract(req Request) zyte.ExtractRequest {
	out := zyte.ExtractRequest{URL: req.URL}
	if req.Render {
		out.BrowserHTML = true
		if req.WaitForSelector != "" {
			out.Actions = []zyte.Action{zyte.WaitForSelector(req.WaitForSelector)}
		}
		for name, value := range req.Headers {
			if strings.EqualFold(name, "Referer") {
				out.RequestHeaders = &zyte.RequestHeaders{Referer: value}
			} else {
				zap.L().Debug("fetch: header not forwarded for rendered request",
					zap.String("url", req.URL), zap.String("header", name))
			}
		}
		return out
	}
	out.HTTPResponseBody = true
	if len(req.Headers) > 0 {
		names := make([]string, 0, len(req.Headers))
		for name := range req.Headers {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			out.CustomHTTPRequestHeaders = append(out.CustomHTTPRequestHeaders, zyte.HTTPHeader{Name: name, Value: req.Headers[name]})
		}
	}
	return out
}

// classify converts a Zyte client error into *Error. It returns nil when the
// failure is only the caller's context ending.
func classify(ctx context.Context, url string, err error) *Error {
	var apiErr *zyte.APIError
	if errors.As(err, &apiErr) {
		kind := KindForStatus(apiErr.StatusCode)
		if apiErr.StatusCode == http.StatusForbidden && isQuotaProblem(apiErr.Type) {
			kind = QuotaExceeded
		}
		return &Error{Kind: kind, URL: url, StatusCode: apiErr.StatusCode, RetryAfter: apiErr.RetryAfter, Err: apiErr}
	}
	if ctx.Err() != nil {
		return nil
	}
	if resilience.IsTransient(err) {
		return &Error{Kind: Transient, URL: url, Err: err}
	}
	return &Error{Kind: Permanent, URL: url, Err: err}
}

func isQuotaProblem(problemType string) bool {
	t := strings.ToLower(problemType)
	return strings.Contains(t, "quota") || strings.Contains(t, "budget")
}
