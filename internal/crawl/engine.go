// Package crawl drives site adapters through search, listing and detail
// pages and hands normalized records to the persistence layer.
package crawl

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/sells-group/directory-crawler/internal/config"
	"github.com/sells-group/directory-crawler/internal/fetch"
	"github.com/sells-group/directory-crawler/internal/model"
	"github.com/sells-group/directory-crawler/internal/normalize"
	"github.com/sells-group/directory-crawler/internal/resilience"
	"github.com/sells-group/directory-crawler/internal/site"
	"github.com/sells-group/directory-crawler/internal/store"
)

// Upserter persists one normalized record. *store.Upserter implements it.
type Upserter interface {
	Upsert(ctx context.Context, rec model.BusinessRecord) (store.Outcome, error)
}

// Options tunes an Engine.
type Options struct {
	Workers              int // in-flight fetches and detail items across all pairs
	MaxConcurrentQueries int // (site, query) pairs paginating at once
	MaxPages             int // default listing page limit per pair
	Retry                resilience.RetryConfig
	DetailTimeout        time.Duration // per detail item, zero for none
	Metrics              *Metrics
}

// OptionsFromConfig maps the crawl config section onto Options.
func OptionsFromConfig(c config.CrawlConfig) Options {
	return Options{
		Workers:              c.Workers,
		MaxConcurrentQueries: c.MaxConcurrentQueries,
		MaxPages:             c.MaxPages,
		Retry:                resilience.FromRetryCap(c.RetryCap, c.InitialBackoffMs, c.MaxBackoffMs),
		DetailTimeout:        time.Duration(c.DetailTimeoutSecs) * time.Second,
	}
}

// Job is one crawl request: every query is run against every selected site.
type Job struct {
	ID       string
	Sites    []string // empty selects every registered adapter
	Queries  []site.Query
	MaxPages int // zero uses Options.MaxPages
}

// Engine runs crawl jobs.
type Engine struct {
	fetcher  fetch.Client
	registry *site.Registry
	upserter Upserter
	opts     Options
	now      func() time.Time
}

// NewEngine creates an Engine. Zero option values fall back to defaults.
func NewEngine(fetcher fetch.Client, registry *site.Registry, upserter Upserter, opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.MaxConcurrentQueries <= 0 {
		opts.MaxConcurrentQueries = 4
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 5
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = resilience.DefaultRetryConfig()
	}
	return &Engine{
		fetcher:  fetcher,
		registry: registry,
		upserter: upserter,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run executes job and blocks until every pair has finished paginating and
// every dispatched detail item has settled. Setup problems (unknown site, no
// queries) return a nil report. A job that ends Failed returns its report
// together with a *JobError.
//
// Cancelling ctx stops new listing pages and detail items. A detail item
// already fetching runs to completion or to DetailTimeout, without further
// retries.
func (e *Engine) Run(ctx context.Context, job Job) (*Report, error) {
	adapters, err := e.registry.Select(job.Sites)
	if err != nil {
		return nil, eris.Wrap(err, "crawl: select sites")
	}
	if len(job.Queries) == 0 {
		return nil, eris.New("crawl: job has no queries")
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.MaxPages <= 0 {
		job.MaxPages = e.opts.MaxPages
	}

	jobCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	r := &run{
		engine:   e,
		job:      job,
		report:   newReport(job.ID, e.now()),
		seen:     make(map[string]bool),
		cancel:   cancel,
		fetchSem: semaphore.NewWeighted(int64(e.opts.Workers)),
		log: zap.L().With(
			zap.String("component", "crawl.engine"),
			zap.String("job_id", job.ID),
		),
	}
	r.workers.SetLimit(e.opts.Workers)
	r.log.Info("crawl: job started",
		zap.Int("sites", len(adapters)),
		zap.Int("queries", len(job.Queries)),
		zap.Int("max_pages", job.MaxPages),
	)

	r.transition(Searching)
	var pairs errgroup.Group
	pairs.SetLimit(e.opts.MaxConcurrentQueries)
	for _, a := range adapters {
		for _, q := range job.Queries {
			pairs.Go(func() error {
				r.paginate(jobCtx, a, q)
				return nil
			})
		}
	}
	_ = pairs.Wait()
	r.transition(Draining)
	_ = r.workers.Wait()

	return r.finish(ctx)
}

// run is the mutable state of one Run call.
type run struct {
	engine  *Engine
	job     Job
	log     *zap.Logger
	workers errgroup.Group
	cancel  context.CancelCauseFunc

	// fetchSem bounds in-flight fetches, listing and detail alike.
	fetchSem *semaphore.Weighted

	mu       sync.Mutex
	report   *Report
	seen     map[string]bool
	abortErr error
}

func (r *run) transition(to State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	from := r.report.State
	if from == to || !from.CanTransition(to) {
		return
	}
	r.report.State = to
	r.report.Transitions = append(r.report.Transitions, Transition{From: from, To: to, At: r.engine.now()})
	r.log.Info("crawl: state transition", zap.Stringer("from", from), zap.Stringer("to", to))
}

// abort fails the job once; later causes are ignored.
func (r *run) abort(err error) {
	r.mu.Lock()
	first := r.abortErr == nil
	if first {
		r.abortErr = err
	}
	r.mu.Unlock()
	if first {
		r.log.Error("crawl: aborting job", zap.String("kind", string(resilience.KindOf(err))), zap.Error(err))
		r.cancel(err)
	}
}

func (r *run) finish(parent context.Context) (*Report, error) {
	r.mu.Lock()
	abortErr := r.abortErr
	r.mu.Unlock()

	var jobErr *JobError
	switch {
	case abortErr != nil:
		jobErr = &JobError{JobID: r.job.ID, Kind: resilience.KindOf(abortErr), Err: abortErr}
	case parent.Err() != nil:
		jobErr = &JobError{JobID: r.job.ID, Kind: resilience.KindCanceled, Err: parent.Err()}
	}

	if jobErr != nil {
		r.report.Cause = jobErr.Err
		r.report.CauseKind = jobErr.Kind
		r.report.CauseText = jobErr.Err.Error()
		r.transition(Failed)
	} else {
		r.transition(Done)
	}
	rep := r.report
	rep.FinishedAt = r.engine.now()
	status := rep.ExitStatus()
	r.engine.opts.Metrics.jobDone(status)

	r.log.Info("crawl: job finished",
		zap.Stringer("state", rep.State),
		zap.Stringer("status", status),
		zap.Int("pages", rep.Pages),
		zap.Int("inserted", rep.Inserted),
		zap.Int("merged", rep.Merged),
		zap.Int("unchanged", rep.Unchanged),
		zap.Int("persisted", rep.Persisted()),
		zap.Int("skipped", rep.TotalSkipped()),
		zap.Int("listing_failures", len(rep.ListingFailures)),
		zap.Int("duplicates", rep.Duplicates),
		zap.Int("degraded", rep.Degraded),
		zap.Duration("elapsed", rep.FinishedAt.Sub(rep.StartedAt)),
	)
	if jobErr != nil {
		return rep, jobErr
	}
	return rep, nil
}

// paginate walks the listing pages of one (site, query) pair in order and
// dispatches every new detail reference to the worker pool.
func (r *run) paginate(ctx context.Context, a site.Adapter, q site.Query) {
	siteName := a.SourceName().String()
	log := r.log.With(zap.String("site", siteName), zap.Stringer("query", q))

	for page := 1; page <= r.job.MaxPages; page++ {
		if ctx.Err() != nil {
			return
		}
		req := a.BuildSearchRequest(q, page)
		p, err := r.fetch(ctx, ctx, siteName, "listing", req)
		if err == nil {
			r.transition(Listing)
			var refs []site.DetailRef
			var hasNext bool
			refs, hasNext, err = a.ParseListingPage(p)
			if err == nil {
				r.pageParsed(siteName)
				log.Debug("crawl: listing page parsed", zap.Int("page", page), zap.Int("refs", len(refs)), zap.Bool("has_next", hasNext))
				for _, ref := range refs {
					if ctx.Err() != nil {
						return
					}
					if !r.claim(siteName, ref) {
						continue
					}
					r.transition(Detailing)
					r.workers.Go(func() error {
						r.detail(ctx, a, ref)
						return nil
					})
				}
				if len(refs) == 0 || !hasNext {
					return
				}
				continue
			}
		}

		if ctx.Err() != nil {
			return
		}
		kind := resilience.KindOf(err)
		log.Warn("crawl: listing page failed, skipping remaining pages",
			zap.Int("page", page), zap.String("kind", string(kind)), zap.Error(err))
		r.mu.Lock()
		r.report.ListingFailures = append(r.report.ListingFailures, SkippedItem{Site: siteName, URL: req.URL, Kind: kind, Error: err.Error()})
		if kind == resilience.KindParseStructural {
			r.report.Diagnostics = append(r.report.Diagnostics, err.Error())
		}
		r.mu.Unlock()
		if kind.JobLevel() {
			r.abort(err)
		}
		return
	}
}

// claim reports whether ref is new to this job for its site.
func (r *run) claim(siteName string, ref site.DetailRef) bool {
	key := strings.TrimSpace(ref.SourceID)
	if key == "" {
		key = model.NormalizeURL(ref.URL)
	}
	key = siteName + "|" + key

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen[key] {
		r.report.Duplicates++
		return false
	}
	r.seen[key] = true
	return true
}

func (r *run) pageParsed(siteName string) {
	r.mu.Lock()
	r.report.Pages++
	r.mu.Unlock()
	r.engine.opts.Metrics.page(siteName)
}

// detail fetches, parses, normalizes and persists one business. jobCtx
// gates the start of the item and every retry; the work itself runs under
// a context that survives job cancellation, bounded by DetailTimeout.
func (r *run) detail(jobCtx context.Context, a site.Adapter, ref site.DetailRef) {
	siteName := a.SourceName().String()
	itemCtx := context.WithoutCancel(jobCtx)
	if r.engine.opts.DetailTimeout > 0 {
		var cancel context.CancelFunc
		itemCtx, cancel = context.WithTimeout(itemCtx, r.engine.opts.DetailTimeout)
		defer cancel()
	}
	if err := jobCtx.Err(); err != nil {
		r.itemFailed(jobCtx, itemCtx, siteName, ref.URL, err)
		return
	}

	req := fetch.Request{URL: ref.URL, SiteID: siteName}
	if dr, ok := a.(site.DetailRequester); ok {
		req = dr.BuildDetailRequest(ref)
	}
	p, err := r.fetch(jobCtx, itemCtx, siteName, "detail", req)
	if err != nil {
		r.itemFailed(jobCtx, itemCtx, siteName, ref.URL, err)
		return
	}
	raw, err := a.ParseDetailPage(p, ref)
	if err != nil {
		r.itemFailed(jobCtx, itemCtx, siteName, ref.URL, err)
		return
	}

	rec, degraded := normalize.Normalize(*raw, a.SourceName())
	cfg := r.retryConfig(jobCtx, siteName, "upsert")
	outcome, err := resilience.DoVal(itemCtx, cfg, func(ctx context.Context) (store.Outcome, error) {
		return r.engine.upserter.Upsert(ctx, rec)
	})
	if err != nil {
		r.itemFailed(jobCtx, itemCtx, siteName, ref.URL, err)
		return
	}

	r.mu.Lock()
	r.report.Degraded += len(degraded)
	switch outcome {
	case store.Inserted:
		r.report.Inserted++
	case store.Merged:
		r.report.Merged++
	case store.Unchanged:
		r.report.Unchanged++
	}
	r.mu.Unlock()
	r.engine.opts.Metrics.record(siteName, outcome)
}

// itemFailed records a skipped detail item and escalates job-level kinds.
// A context error is a timeout when the item's own deadline fired and a
// cancellation otherwise.
func (r *run) itemFailed(jobCtx, itemCtx context.Context, siteName, url string, err error) {
	kind := resilience.KindOf(err)
	if kind == resilience.KindCanceled && errors.Is(itemCtx.Err(), context.DeadlineExceeded) {
		kind = resilience.KindFetchTransient
	}
	if kind != resilience.KindCanceled && jobCtx.Err() != nil && errors.Is(err, context.Canceled) {
		kind = resilience.KindCanceled
	}

	r.mu.Lock()
	r.report.Skipped[kind]++
	r.report.SkippedItems = append(r.report.SkippedItems, SkippedItem{Site: siteName, URL: url, Kind: kind, Error: err.Error()})
	if kind == resilience.KindParseStructural {
		r.report.Diagnostics = append(r.report.Diagnostics, err.Error())
	}
	r.mu.Unlock()
	r.engine.opts.Metrics.skipped(siteName, kind)

	r.log.Warn("crawl: item skipped",
		zap.String("site", siteName),
		zap.String("url", url),
		zap.String("kind", string(kind)),
		zap.Error(err),
	)
	if kind.JobLevel() {
		r.abort(err)
	}
}

// fetch runs one page request under the retry policy. Attempts run under
// ctx and hold a fetchSem slot; no attempt starts once jobCtx is done.
func (r *run) fetch(jobCtx, ctx context.Context, siteName, stage string, req fetch.Request) (*fetch.Page, error) {
	cfg := r.retryConfig(jobCtx, siteName, "fetch "+stage)
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (*fetch.Page, error) {
		if err := jobCtx.Err(); err != nil {
			return nil, err
		}
		if err := r.fetchSem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer r.fetchSem.Release(1)
		if err := jobCtx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		p, err := r.engine.fetcher.Fetch(ctx, req)
		r.engine.opts.Metrics.fetchDone(siteName, time.Since(start), err)
		return p, err
	})
}

// retryConfig stops retrying once jobCtx is done; the attempt in flight
// still completes.
func (r *run) retryConfig(jobCtx context.Context, siteName, op string) resilience.RetryConfig {
	cfg := r.engine.opts.Retry
	cfg.OnRetry = resilience.RetryLogger(siteName, op)
	cfg.ShouldRetry = func(err error) bool {
		return jobCtx.Err() == nil && resilience.IsTransient(err)
	}
	return cfg
}
