package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/directory-crawler/internal/resilience"
	"github.com/sells-group/directory-crawler/pkg/zyte"
)

type fakeZyte struct {
	resp  *zyte.ExtractResponse
	err   error
	calls atomic.Int32
	last  zyte.ExtractRequest
}

func (f *fakeZyte) Extract(_ context.Context, req zyte.ExtractRequest) (*zyte.ExtractResponse, error) {
	f.calls.Add(1)
	f.last = req
	return f.resp, f.err
}

func fastLimits() *Limits {
	return NewLimits(nil, SiteLimit{Rate: 1000, Burst: 100})
}

func TestZyteFetcher_Success(t *testing.T) {
	fz := &fakeZyte{resp: &zyte.ExtractResponse{URL: "https://www.yelp.ca/biz/a", StatusCode: 200, BrowserHTML: "<h1>A</h1>"}}
	f := NewZyteFetcher(fz, fastLimits())

	page, err := f.Fetch(context.Background(), Request{URL: "https://www.yelp.ca/biz/a", Render: true, WaitForSelector: "h1", SiteID: "yelp"})
	require.NoError(t, err)
	assert.Equal(t, "<h1>A</h1>", page.HTML)
	assert.Equal(t, 200, page.StatusCode)
	assert.Equal(t, "https://www.yelp.ca/biz/a", page.FinalURL)

	assert.True(t, fz.last.BrowserHTML)
	assert.False(t, fz.last.HTTPResponseBody)
	require.Len(t, fz.last.Actions, 1)
	assert.Equal(t, "h1", fz.last.Actions[0].Selector.Value)
}

func TestZyteFetcher_RawBodyWithHeaders(t *testing.T) {
	fz := &fakeZyte{resp: &zyte.ExtractResponse{StatusCode: 200, BrowserHTML: "<html/>"}}
	f := NewZyteFetcher(fz, fastLimits())

	_, err := f.Fetch(context.Background(), Request{
		URL:     "https://www.yellowpages.com/search",
		SiteID:  "yellowpages",
		Headers: map[string]string{"User-Agent": "x", "Accept-Language": "en"},
	})
	require.NoError(t, err)
	assert.True(t, fz.last.HTTPResponseBody)
	assert.Empty(t, fz.last.Actions)
	require.Len(t, fz.last.CustomHTTPRequestHeaders, 2)
	assert.Equal(t, "Accept-Language", fz.last.CustomHTTPRequestHeaders[0].Name)
}

func TestZyteFetcher_RenderForwardsReferer(t *testing.T) {
	fz := &fakeZyte{resp: &zyte.ExtractResponse{StatusCode: 200, BrowserHTML: "<html/>"}}
	f := NewZyteFetcher(fz, fastLimits())

	_, err := f.Fetch(context.Background(), Request{
		URL:     "https://www.yelp.ca/biz/a",
		Render:  true,
		SiteID:  "yelp",
		Headers: map[string]string{"referer": "https://www.yelp.ca/search", "Accept-Language": "en"},
	})
	require.NoError(t, err)
	assert.True(t, fz.last.BrowserHTML)
	assert.Empty(t, fz.last.CustomHTTPRequestHeaders)
	require.NotNil(t, fz.last.RequestHeaders)
	assert.Equal(t, "https://www.yelp.ca/search", fz.last.RequestHeaders.Referer)
}

func TestZyteFetcher_RenderWithoutHeaders(t *testing.T) {
	fz := &fakeZyte{resp: &zyte.ExtractResponse{StatusCode: 200, BrowserHTML: "<html/>"}}
	f := NewZyteFetcher(fz, fastLimits())

	_, err := f.Fetch(context.Background(), Request{URL: "https://www.yelp.ca/biz/a", Render: true, SiteID: "yelp"})
	require.NoError(t, err)
	assert.Nil(t, fz.last.RequestHeaders)
}

func TestZyteFetcher_Classification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"429", &zyte.APIError{StatusCode: 429, RetryAfter: 2 * time.Second}, Transient},
		{"503", &zyte.APIError{StatusCode: 503}, Transient},
		{"520", &zyte.APIError{StatusCode: 520, Type: "/download/temporary-error"}, Transient},
		{"408", &zyte.APIError{StatusCode: 408}, Transient},
		{"400", &zyte.APIError{StatusCode: 400, Type: "/request/invalid"}, Permanent},
		{"404", &zyte.APIError{StatusCode: 404}, Permanent},
		{"402", &zyte.APIError{StatusCode: 402}, QuotaExceeded},
		{"403 quota", &zyte.APIError{StatusCode: 403, Type: "/limits/monthly-quota"}, QuotaExceeded},
		{"403 budget", &zyte.APIError{StatusCode: 403, Type: "/auth/Budget-exhausted"}, QuotaExceeded},
		{"403 other", &zyte.APIError{StatusCode: 403, Type: "/auth/forbidden"}, Permanent},
		{"network", errors.New("read tcp: connection reset by peer"), Transient},
		{"malformed", errors.New("zyte: marshal request"), Permanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewZyteFetcher(&fakeZyte{err: tt.err}, fastLimits())
			_, err := f.Fetch(context.Background(), Request{URL: "https://example.com", SiteID: "s"})

			var ferr *Error
			require.True(t, errors.As(err, &ferr))
			assert.Equal(t, tt.want, ferr.Kind)
		})
	}
}

func TestZyteFetcher_RetryAfterSurfaced(t *testing.T) {
	f := NewZyteFetcher(&fakeZyte{err: &zyte.APIError{StatusCode: 429, RetryAfter: 3 * time.Second}}, fastLimits())
	_, err := f.Fetch(context.Background(), Request{URL: "https://example.com", SiteID: "s"})

	var hint resilience.RetryAfterHint
	require.True(t, errors.As(err, &hint))
	assert.Equal(t, 3*time.Second, hint.RetryAfterDelay())
	assert.Equal(t, resilience.KindFetchTransient, resilience.KindOf(err))
}

func TestZyteFetcher_TargetStatusClassified(t *testing.T) {
	f := NewZyteFetcher(&fakeZyte{resp: &zyte.ExtractResponse{StatusCode: 404}}, fastLimits())
	_, err := f.Fetch(context.Background(), Request{URL: "https://example.com/gone", SiteID: "s"})

	var ferr *Error
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, Permanent, ferr.Kind)
	assert.Equal(t, 404, ferr.StatusCode)
}

func TestZyteFetcher_429HalvesSiteRate(t *testing.T) {
	limits := NewLimits(map[string]SiteLimit{"yelp": {Rate: 100, Burst: 10}}, SiteLimit{})
	f := NewZyteFetcher(&fakeZyte{err: &zyte.APIError{StatusCode: 429}}, limits)

	_, err := f.Fetch(context.Background(), Request{URL: "https://www.yelp.ca/x", SiteID: "yelp"})
	require.Error(t, err)
	assert.Equal(t, rate.Limit(50), limits.For("yelp").limit())
}

func TestZyteFetcher_QuotaKind(t *testing.T) {
	f := NewZyteFetcher(&fakeZyte{err: &zyte.APIError{StatusCode: 402}}, fastLimits())
	_, err := f.Fetch(context.Background(), Request{URL: "https://example.com", SiteID: "s"})
	assert.Equal(t, resilience.KindFetchQuotaExceeded, resilience.KindOf(err))
	assert.True(t, resilience.KindOf(err).JobLevel())
}

func TestZyteFetcher_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fz := &fakeZyte{resp: &zyte.ExtractResponse{StatusCode: 200}}
	limits := NewLimits(map[string]SiteLimit{"slow": {Rate: 0.001, Burst: 1}}, SiteLimit{})
	// Drain the single token so Wait has to block.
	require.True(t, limits.For("slow").limiter.Allow())

	f := NewZyteFetcher(fz, limits)
	_, err := f.Fetch(ctx, Request{URL: "https://example.com", SiteID: "slow"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), fz.calls.Load())
}

func TestZyteFetcher_EmptyURL(t *testing.T) {
	f := NewZyteFetcher(&fakeZyte{}, fastLimits())
	_, err := f.Fetch(context.Background(), Request{})

	var ferr *Error
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, Permanent, ferr.Kind)
}

func TestZyteFetcher_EndToEndHTTP(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"type":"/limits/over-global-limits","title":"Global limit"}`))
			return
		}
		_, _ = w.Write([]byte(`{"url":"https://example.com","statusCode":200,"browserHtml":"<p>ok</p>"}`))
	}))
	defer srv.Close()

	f := NewZyteFetcher(zyte.NewClient("k", zyte.WithBaseURL(srv.URL)), fastLimits())

	_, err := f.Fetch(context.Background(), Request{URL: "https://example.com", Render: true, SiteID: "s"})
	var ferr *Error
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, Transient, ferr.Kind)
	assert.Equal(t, time.Second, ferr.RetryAfter)

	page, err := f.Fetch(context.Background(), Request{URL: "https://example.com", Render: true, SiteID: "s"})
	require.NoError(t, err)
	assert.Equal(t, "<p>ok</p>", page.HTML)
}

func TestKindForStatus(t *testing.T) {
	assert.Equal(t, Kind(0), KindForStatus(200))
	assert.Equal(t, Kind(0), KindForStatus(301))
	assert.Equal(t, Transient, KindForStatus(429))
	assert.Equal(t, Transient, KindForStatus(500))
	assert.Equal(t, Permanent, KindForStatus(410))
	assert.Equal(t, QuotaExceeded, KindForStatus(402))
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Kind: Transient, URL: "https://x", StatusCode: 503, Err: errors.New("busy")}
	assert.Equal(t, "fetch: transient https://x (status 503): busy", err.Error())
}
