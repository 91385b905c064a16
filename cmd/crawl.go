package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/directory-crawler/internal/crawl"
	"github.com/sells-group/directory-crawler/internal/fetch"
	"github.com/sells-group/directory-crawler/internal/site"
	"github.com/sells-group/directory-crawler/internal/store"
	"github.com/sells-group/directory-crawler/pkg/zyte"
)

var (
	crawlSites       []string
	crawlQueries     []string
	crawlQueriesFile string
	crawlMaxPages    int
	crawlMetricsAddr string
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl directory sites for one or more queries",
	Long: `Runs one crawl job: every selected site is searched for every query,
listing pages are followed up to --max-pages, and each business is normalized
and upserted. Exit code 0 means success, 2 means the job finished with skipped
items, 1 means the job aborted.`,
	Example: `  directory-crawler crawl --sites yelp --query "Plumbers@Montreal, QC"
  directory-crawler crawl --queries-file queries.yaml --max-pages 3`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("crawl"); err != nil {
			return err
		}
		queries, err := collectQueries(crawlQueries, crawlQueriesFile)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "init store")
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate")
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		opts := crawl.OptionsFromConfig(cfg.Crawl)
		opts.Metrics = crawl.NewMetrics(reg)

		addr := crawlMetricsAddr
		if addr == "" {
			addr = cfg.Metrics.Addr
		}
		if addr != "" {
			stopMetrics := startMetricsServer(addr, reg)
			defer stopMetrics()
		}

		client := zyte.NewClient(cfg.Zyte.Key,
			zyte.WithBaseURL(cfg.Zyte.BaseURL),
			zyte.WithTimeout(time.Duration(cfg.Zyte.TimeoutSecs)*time.Second),
		)
		fetcher := fetch.NewZyteFetcher(client, siteLimits())

		engine := crawl.NewEngine(fetcher, site.DefaultRegistry(), store.NewUpserter(st), opts)
		rep, err := engine.Run(ctx, crawl.Job{
			Sites:    crawlSites,
			Queries:  queries,
			MaxPages: crawlMaxPages,
		})
		if rep == nil {
			return eris.Wrap(err, "crawl")
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(rep); encErr != nil {
			zap.L().Warn("write report", zap.Error(encErr))
		}

		switch status := rep.ExitStatus(); status {
		case crawl.Success:
			return nil
		case crawl.Partial:
			return &exitError{code: status.Code(), err: eris.Errorf("crawl finished with %d skipped items and %d failed listing pages", rep.TotalSkipped(), len(rep.ListingFailures))}
		default:
			if err == nil {
				err = eris.Errorf("crawl ended in state %s", rep.State)
			}
			return &exitError{code: status.Code(), err: err}
		}
	},
}

// siteLimits builds the shared per-site limiter from the sites config.
func siteLimits() *fetch.Limits {
	conf := make(map[string]fetch.SiteLimit)
	for _, name := range site.DefaultRegistry().AllNames() {
		sc := cfg.Site(name)
		conf[name] = fetch.SiteLimit{Rate: sc.RateLimit, Burst: sc.Burst}
	}
	fallback := cfg.Site("")
	return fetch.NewLimits(conf, fetch.SiteLimit{Rate: fallback.RateLimit, Burst: fallback.Burst})
}

func init() {
	crawlCmd.Flags().StringSliceVar(&crawlSites, "sites", nil, "sites to crawl (default: all registered sites)")
	crawlCmd.Flags().StringArrayVarP(&crawlQueries, "query", "q", nil, `search query as "Category@Location" (repeatable)`)
	crawlCmd.Flags().StringVar(&crawlQueriesFile, "queries-file", "", "YAML, CSV or XLSX file of category/location queries")
	crawlCmd.Flags().IntVar(&crawlMaxPages, "max-pages", 0, "listing pages per query and site (default: crawl.max_pages)")
	crawlCmd.Flags().StringVar(&crawlMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (default: metrics.addr)")
	rootCmd.AddCommand(crawlCmd)
}
