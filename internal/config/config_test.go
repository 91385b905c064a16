package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.zyte.com", cfg.Zyte.BaseURL)
	assert.Equal(t, 60, cfg.Zyte.TimeoutSecs)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, 8, cfg.Crawl.Workers)
	assert.Equal(t, 5, cfg.Crawl.MaxPages)
	assert.Equal(t, 4, cfg.Crawl.MaxConcurrentQueries)
	assert.Equal(t, 3, cfg.Crawl.RetryCap)
	assert.Equal(t, 500, cfg.Crawl.InitialBackoffMs)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.InDelta(t, 1.0, cfg.Sites["yelp"].RateLimit, 0.001)
	assert.Equal(t, 2, cfg.Sites["yellowpages"].Burst)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: crawl.db
crawl:
  workers: 16
  max_pages: 10
sites:
  yelp:
    rate_limit: 0.5
    burst: 1
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "crawl.db", cfg.Store.DatabaseURL)
	assert.Equal(t, 16, cfg.Crawl.Workers)
	assert.Equal(t, 10, cfg.Crawl.MaxPages)
	assert.InDelta(t, 0.5, cfg.Sites["yelp"].RateLimit, 0.001)
	assert.Equal(t, "console", cfg.Log.Format)
	// Defaults still apply for unset values
	assert.Equal(t, 3, cfg.Crawl.RetryCap)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("CRAWLER_STORE_DRIVER", "postgres")
	t.Setenv("CRAWLER_LOG_LEVEL", "warn")
	t.Setenv("CRAWLER_ZYTE_KEY", "zyte-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "zyte-secret", cfg.Zyte.Key)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("CRAWLER_CRAWL_WORKERS", "3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Crawl.Workers)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validCrawl returns a Config that passes crawl validation.
func validCrawl() *Config {
	cfg := &Config{}
	cfg.Zyte.Key = "key"
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = "postgres://localhost/crawler"
	cfg.Crawl.Workers = 8
	cfg.Crawl.MaxPages = 5
	cfg.Crawl.MaxConcurrentQueries = 2
	cfg.Crawl.RetryCap = 3
	return cfg
}

func TestValidateCrawl_AllPresent(t *testing.T) {
	assert.NoError(t, validCrawl().Validate("crawl"))
}

func TestValidateCrawl_MissingFields(t *testing.T) {
	cfg := &Config{}
	cfg.Store.Driver = "postgres"

	err := cfg.Validate("crawl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.Contains(t, err.Error(), "zyte.key is required")
	assert.Contains(t, err.Error(), "crawl.workers must be between 1 and 256")
	assert.Contains(t, err.Error(), "crawl.max_pages must be > 0")
}

func TestValidateCrawl_NegativeRetryCap(t *testing.T) {
	cfg := validCrawl()
	cfg.Crawl.RetryCap = -1
	err := cfg.Validate("crawl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crawl.retry_cap must be >= 0")
}

func TestValidateMigrate_SQLiteNeedsNoURL(t *testing.T) {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	assert.NoError(t, cfg.Validate("migrate"))
}

func TestValidate_UnsupportedDriver(t *testing.T) {
	cfg := &Config{}
	cfg.Store.Driver = "mysql"
	err := cfg.Validate("migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not supported")
}

func TestValidateUnknownMode(t *testing.T) {
	err := validCrawl().Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestSiteFallback(t *testing.T) {
	cfg := &Config{Sites: map[string]SiteConfig{"yelp": {RateLimit: 0.5, Burst: 3}}}

	assert.Equal(t, SiteConfig{RateLimit: 0.5, Burst: 3}, cfg.Site("yelp"))
	assert.Equal(t, SiteConfig{RateLimit: 1, Burst: 1}, cfg.Site("unknown"))
}
