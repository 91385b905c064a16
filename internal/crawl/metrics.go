package crawl

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sells-group/directory-crawler/internal/resilience"
	"github.com/sells-group/directory-crawler/internal/store"
)

// MetricsNamespace prefixes every crawl metric.
const MetricsNamespace = "crawl"

// Metrics holds the Prometheus collectors for crawl jobs. A nil *Metrics
// records nothing.
type Metrics struct {
	FetchTotal    *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec
	PagesTotal    *prometheus.CounterVec
	RecordsTotal  *prometheus.CounterVec
	SkippedTotal  *prometheus.CounterVec
	JobsTotal     *prometheus.CounterVec
}

// NewMetrics creates and registers the crawl metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		FetchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "fetch_total",
			Help:      "Fetch attempts by site and outcome (ok or error kind)",
		}, []string{"site", "outcome"}),
		FetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of single fetch attempts",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}, []string{"site"}),
		PagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "listing_pages_total",
			Help:      "Listing pages parsed",
		}, []string{"site"}),
		RecordsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "records_total",
			Help:      "Records persisted by upsert outcome",
		}, []string{"site", "outcome"}),
		SkippedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "skipped_total",
			Help:      "Detail items skipped by error kind",
		}, []string{"site", "kind"}),
		JobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "jobs_total",
			Help:      "Finished jobs by exit status",
		}, []string{"status"}),
	}
}

func (m *Metrics) fetchDone(site string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(resilience.KindOf(err))
	}
	m.FetchTotal.WithLabelValues(site, outcome).Inc()
	m.FetchDuration.WithLabelValues(site).Observe(d.Seconds())
}

func (m *Metrics) page(site string) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(site).Inc()
}

func (m *Metrics) record(site string, o store.Outcome) {
	if m == nil {
		return
	}
	m.RecordsTotal.WithLabelValues(site, o.String()).Inc()
}

func (m *Metrics) skipped(site string, kind resilience.ErrorKind) {
	if m == nil {
		return
	}
	m.SkippedTotal.WithLabelValues(site, string(kind)).Inc()
}

func (m *Metrics) jobDone(s ExitStatus) {
	if m == nil {
		return
	}
	m.JobsTotal.WithLabelValues(s.String()).Inc()
}
