package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Zyte    ZyteConfig            `yaml:"zyte" mapstructure:"zyte"`
	Store   StoreConfig           `yaml:"store" mapstructure:"store"`
	Crawl   CrawlConfig           `yaml:"crawl" mapstructure:"crawl"`
	Sites   map[string]SiteConfig `yaml:"sites" mapstructure:"sites"`
	Log     LogConfig             `yaml:"log" mapstructure:"log"`
	Metrics MetricsConfig         `yaml:"metrics" mapstructure:"metrics"`
}

// ZyteConfig holds the rendering/proxy service settings.
type ZyteConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// CrawlConfig configures the orchestrator.
type CrawlConfig struct {
	Workers              int `yaml:"workers" mapstructure:"workers"`
	MaxPages             int `yaml:"max_pages" mapstructure:"max_pages"`
	MaxConcurrentQueries int `yaml:"max_concurrent_queries" mapstructure:"max_concurrent_queries"`
	RetryCap             int `yaml:"retry_cap" mapstructure:"retry_cap"`
	InitialBackoffMs     int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs         int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	DetailTimeoutSecs    int `yaml:"detail_timeout_secs" mapstructure:"detail_timeout_secs"`
}

// SiteConfig holds per-site fair-use limits.
type SiteConfig struct {
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	Burst     int     `yaml:"burst" mapstructure:"burst"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// MetricsConfig configures the optional Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("zyte.key", "")
	v.SetDefault("zyte.base_url", "https://api.zyte.com")
	v.SetDefault("zyte.timeout_secs", 60)
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("crawl.workers", 8)
	v.SetDefault("crawl.max_pages", 5)
	v.SetDefault("crawl.max_concurrent_queries", 4)
	v.SetDefault("crawl.retry_cap", 3)
	v.SetDefault("crawl.initial_backoff_ms", 500)
	v.SetDefault("crawl.max_backoff_ms", 30000)
	v.SetDefault("crawl.detail_timeout_secs", 120)
	v.SetDefault("sites.yelp.rate_limit", 1.0)
	v.SetDefault("sites.yelp.burst", 2)
	v.SetDefault("sites.yellowpages.rate_limit", 2.0)
	v.SetDefault("sites.yellowpages.burst", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("metrics.addr", "")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the keys a mode needs before it starts any work.
// Modes: "crawl", "migrate", "sites".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "crawl":
		errs = append(errs, c.validateStore()...)
		if c.Zyte.Key == "" {
			errs = append(errs, "zyte.key is required")
		}
		if c.Crawl.Workers < 1 || c.Crawl.Workers > 256 {
			errs = append(errs, "crawl.workers must be between 1 and 256")
		}
		if c.Crawl.MaxPages < 1 {
			errs = append(errs, "crawl.max_pages must be > 0")
		}
		if c.Crawl.MaxConcurrentQueries < 1 {
			errs = append(errs, "crawl.max_concurrent_queries must be > 0")
		}
		if c.Crawl.RetryCap < 0 {
			errs = append(errs, "crawl.retry_cap must be >= 0")
		}
		for name, sc := range c.Sites {
			if sc.RateLimit < 0 {
				errs = append(errs, fmt.Sprintf("sites.%s.rate_limit must be >= 0", name))
			}
		}
	case "migrate":
		errs = append(errs, c.validateStore()...)
	case "sites":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required"}
		}
	case "sqlite":
	default:
		return []string{fmt.Sprintf("store.driver %q is not supported (valid: postgres, sqlite)", c.Store.Driver)}
	}
	return nil
}

// Site returns the limits for a site, falling back to one request per second.
func (c *Config) Site(name string) SiteConfig {
	sc, ok := c.Sites[name]
	if !ok || sc.RateLimit <= 0 {
		sc.RateLimit = 1
	}
	if sc.Burst <= 0 {
		sc.Burst = 1
	}
	return sc
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
