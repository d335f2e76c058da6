// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/scrapemonster/catalog-crawler/internal/catalog"
)

// Config captures all harvester knobs loaded via Viper.
type Config struct {
	Site      SiteConfig        `mapstructure:"site"`
	Crawl     CrawlConfig       `mapstructure:"crawl"`
	Stabilize StabilizeConfig   `mapstructure:"stabilize"`
	RateLimit RateLimitConfig   `mapstructure:"ratelimit"`
	Cache     CacheConfig       `mapstructure:"cache"`
	Output    OutputConfig      `mapstructure:"output"`
	PubSub    PubSubConfig      `mapstructure:"pubsub"`
	Telemetry TelemetryConfig   `mapstructure:"telemetry"`
	Logging   LoggingConfig     `mapstructure:"logging"`
	Selectors catalog.Selectors `mapstructure:"selectors"`
}

// SiteConfig identifies the storefront and its seed pages.
type SiteConfig struct {
	BaseURL   string   `mapstructure:"base_url"`
	Seeds     []string `mapstructure:"seeds"`
	UserAgent string   `mapstructure:"user_agent"`
}

// CrawlConfig governs per-stage concurrency and browser behavior.
type CrawlConfig struct {
	CategoryConcurrency  int  `mapstructure:"category_concurrency"`
	DiscoveryConcurrency int  `mapstructure:"discovery_concurrency"`
	ExtractConcurrency   int  `mapstructure:"extract_concurrency"`
	Retries              int  `mapstructure:"retries"`
	Headless             bool `mapstructure:"headless"`
	NavTimeoutSec        int  `mapstructure:"nav_timeout_seconds"`
	OpTimeoutSec         int  `mapstructure:"op_timeout_seconds"`
	CategorySettleMs     int  `mapstructure:"category_settle_ms"`
	DetailsTimeoutMs     int  `mapstructure:"details_timeout_ms"`
}

// StabilizeConfig tunes the infinite-scroll plateau detector.
type StabilizeConfig struct {
	RingSize       int `mapstructure:"ring_size"`
	GrowBatch      int `mapstructure:"grow_batch"`
	StepDelayMs    int `mapstructure:"step_delay_ms"`
	SettleDelayMs  int `mapstructure:"settle_delay_ms"`
	InitialDelayMs int `mapstructure:"initial_delay_ms"`
	MaxWaitMs      int `mapstructure:"max_wait_ms"`
}

// RateLimitConfig is the admission policy for the shared storefront.
type RateLimitConfig struct {
	Resource string  `mapstructure:"resource"`
	RPS      float64 `mapstructure:"rps"`
	Burst    int     `mapstructure:"burst"`
}

// CacheConfig selects the memoization backend and TTL.
type CacheConfig struct {
	Backend  string `mapstructure:"backend"`
	TTLHours int    `mapstructure:"ttl_hours"`
	DSN      string `mapstructure:"dsn"`
}

// OutputConfig sets where the JSONL artifact lands. A non-empty GCS
// bucket routes the artifact to object storage instead of local disk.
type OutputConfig struct {
	Dir       string `mapstructure:"dir"`
	File      string `mapstructure:"file"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// PubSubConfig holds metadata for publish-subscribe run notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// TelemetryConfig controls the metrics scrape endpoint.
type TelemetryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("site.base_url", "https://www.tops.co.th/en")
	v.SetDefault("site.user_agent", "catalog-crawler/0.1")
	v.SetDefault("crawl.category_concurrency", 4)
	v.SetDefault("crawl.discovery_concurrency", 2)
	v.SetDefault("crawl.extract_concurrency", 4)
	v.SetDefault("crawl.retries", 1)
	v.SetDefault("crawl.headless", true)
	v.SetDefault("crawl.nav_timeout_seconds", 60)
	v.SetDefault("crawl.op_timeout_seconds", 30)
	v.SetDefault("crawl.category_settle_ms", 5000)
	v.SetDefault("crawl.details_timeout_ms", 100)
	v.SetDefault("stabilize.ring_size", 3)
	v.SetDefault("stabilize.grow_batch", 3)
	v.SetDefault("stabilize.step_delay_ms", 500)
	v.SetDefault("stabilize.settle_delay_ms", 2000)
	v.SetDefault("stabilize.initial_delay_ms", 3000)
	v.SetDefault("stabilize.max_wait_ms", 300_000)
	v.SetDefault("ratelimit.resource", "storefront")
	v.SetDefault("ratelimit.rps", 2.0)
	v.SetDefault("ratelimit.burst", 1)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl_hours", 24)
	v.SetDefault("output.dir", "data")
	v.SetDefault("output.file", "products.jsonl")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.addr", ":9090")
	v.SetDefault("logging.development", true)

	sel := catalog.DefaultSelectors()
	v.SetDefault("selectors.category_carousel", sel.CategoryCarousel)
	v.SetDefault("selectors.category_links", sel.CategoryLinks)
	v.SetDefault("selectors.product_tiles", sel.ProductTiles)
	v.SetDefault("selectors.product_name", sel.ProductName)
	v.SetDefault("selectors.product_images", sel.ProductImages)
	v.SetDefault("selectors.product_sku", sel.ProductSKU)
	v.SetDefault("selectors.product_details", sel.ProductDetails)
	v.SetDefault("selectors.product_price", sel.ProductPrice)
	v.SetDefault("selectors.product_labels", sel.ProductLabels)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if len(c.Site.Seeds) == 0 {
		return fmt.Errorf("site.seeds must list at least one URL")
	}
	if c.Site.BaseURL == "" {
		return fmt.Errorf("site.base_url is required")
	}
	if c.Crawl.CategoryConcurrency <= 0 || c.Crawl.DiscoveryConcurrency <= 0 || c.Crawl.ExtractConcurrency <= 0 {
		return fmt.Errorf("crawl concurrency values must be > 0")
	}
	if c.Crawl.Retries < 0 {
		return fmt.Errorf("crawl.retries must be >= 0")
	}
	if c.Crawl.OpTimeoutSec > 0 && c.OpTimeout() <= c.CategorySettle() {
		return fmt.Errorf("crawl.op_timeout_seconds must exceed crawl.category_settle_ms")
	}
	if c.Stabilize.RingSize <= 0 || c.Stabilize.GrowBatch <= 0 || c.Stabilize.MaxWaitMs <= 0 {
		return fmt.Errorf("stabilize settings must be > 0")
	}
	switch c.Cache.Backend {
	case "memory":
	case "postgres":
		if c.Cache.DSN == "" {
			return fmt.Errorf("cache.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown cache.backend %q", c.Cache.Backend)
	}
	if c.Output.File == "" {
		return fmt.Errorf("output.file is required")
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id is required when a topic is set")
	}
	return nil
}

// CacheTTL converts the cache TTL config into a duration.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLHours) * time.Hour
}

// NavTimeout converts the navigation timeout config into a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Crawl.NavTimeoutSec) * time.Second
}

// OpTimeout converts the per-operation browser timeout into a duration.
func (c Config) OpTimeout() time.Duration {
	return time.Duration(c.Crawl.OpTimeoutSec) * time.Second
}

// CategorySettle converts the carousel settle pause into a duration.
func (c Config) CategorySettle() time.Duration {
	return time.Duration(c.Crawl.CategorySettleMs) * time.Millisecond
}

// DetailsTimeout converts the details probe budget into a duration.
func (c Config) DetailsTimeout() time.Duration {
	return time.Duration(c.Crawl.DetailsTimeoutMs) * time.Millisecond
}

// Detector materializes the stabilization settings.
func (c Config) Detector(logger *zap.Logger) catalog.Detector {
	return catalog.Detector{
		RingSize:     c.Stabilize.RingSize,
		GrowBatch:    c.Stabilize.GrowBatch,
		StepDelay:    time.Duration(c.Stabilize.StepDelayMs) * time.Millisecond,
		SettleDelay:  time.Duration(c.Stabilize.SettleDelayMs) * time.Millisecond,
		InitialDelay: time.Duration(c.Stabilize.InitialDelayMs) * time.Millisecond,
		MaxWait:      time.Duration(c.Stabilize.MaxWaitMs) * time.Millisecond,
		Logger:       logger,
	}
}
