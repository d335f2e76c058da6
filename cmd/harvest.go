package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	gcpubsub "cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scrapemonster/catalog-crawler/internal/browser"
	"github.com/scrapemonster/catalog-crawler/internal/cache"
	"github.com/scrapemonster/catalog-crawler/internal/catalog"
	"github.com/scrapemonster/catalog-crawler/internal/config"
	"github.com/scrapemonster/catalog-crawler/internal/harvest"
	"github.com/scrapemonster/catalog-crawler/internal/logging"
	"github.com/scrapemonster/catalog-crawler/internal/pipeline"
	"github.com/scrapemonster/catalog-crawler/internal/publisher"
	"github.com/scrapemonster/catalog-crawler/internal/ratelimit"
	"github.com/scrapemonster/catalog-crawler/internal/sink"
	"github.com/scrapemonster/catalog-crawler/internal/telemetry"
)

// newHarvestCmd creates the 'harvest' subcommand, which runs the full
// three-stage pipeline once and exits.
func newHarvestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "harvest",
		Short: "Runs one full catalog harvest",
		Long: `Discovers category pages from the configured seeds, scrolls every
category listing until it stabilizes, extracts product records, and
writes the batch as a JSONL artifact.`,
		RunE: runHarvestCommand,
	}
}

func runHarvestCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		ts := telemetry.NewServer(cfg.Telemetry.Addr, logger)
		ts.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := ts.Shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown", zap.Error(err))
			}
		}()
	}

	chrome, err := browser.New(ctx, browser.Config{
		UserAgent:  cfg.Site.UserAgent,
		Headless:   cfg.Crawl.Headless,
		NavTimeout: cfg.NavTimeout(),
		OpTimeout:  cfg.OpTimeout(),
	}, logger)
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	defer func() {
		if err := chrome.Close(); err != nil {
			logger.Warn("close browser", zap.Error(err))
		}
	}()

	store, closeStore, err := buildCacheStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	limiter := ratelimit.NewRegistry(ratelimit.Policy{
		RPS:   cfg.RateLimit.RPS,
		Burst: cfg.RateLimit.Burst,
	})

	invoker := &pipeline.Invoker{
		Cache:   cache.New(store, cfg.CacheTTL(), logger),
		Limiter: limiter,
		Retries: cfg.Crawl.Retries,
		Logger:  logger,
	}

	recordSink, err := buildSink(ctx, cfg, logger)
	if err != nil {
		return err
	}

	pub, closePub, err := buildPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	defer closePub()

	extractor := &catalog.Extractor{
		Browser:        chrome,
		BaseURL:        cfg.Site.BaseURL,
		Selectors:      cfg.Selectors,
		DetailsTimeout: cfg.DetailsTimeout(),
		Logger:         logger,
	}

	harvester := harvest.New(chrome, invoker, extractor, recordSink, pub, harvest.Config{
		Seeds:                cfg.Site.Seeds,
		BaseURL:              cfg.Site.BaseURL,
		Selectors:            cfg.Selectors,
		Resource:             cfg.RateLimit.Resource,
		CategorySettle:       cfg.CategorySettle(),
		Detector:             cfg.Detector(logger),
		CategoryConcurrency:  cfg.Crawl.CategoryConcurrency,
		DiscoveryConcurrency: cfg.Crawl.DiscoveryConcurrency,
		ExtractConcurrency:   cfg.Crawl.ExtractConcurrency,
		OutputFile:           cfg.Output.File,
		Topic:                cfg.PubSub.Topic,
	}, logger)

	summary, err := harvester.Run(ctx, uuid.NewString())
	if err != nil {
		return fmt.Errorf("run harvest: %w", err)
	}

	logger.Info("harvest complete",
		zap.String("run_id", summary.RunID),
		zap.Int("records", summary.Records),
		zap.Int("failed_units", summary.FailedUnits),
		zap.String("artifact", summary.ArtifactURI),
	)
	return nil
}

func buildCacheStore(ctx context.Context, cfg config.Config) (cache.Store, func(), error) {
	switch cfg.Cache.Backend {
	case "postgres":
		store, err := cache.NewPostgresStore(ctx, cache.PostgresStoreConfig{DSN: cfg.Cache.DSN})
		if err != nil {
			return nil, nil, fmt.Errorf("init cache store: %w", err)
		}
		return store, store.Close, nil
	default:
		return cache.NewMemoryStore(), func() {}, nil
	}
}

func buildSink(ctx context.Context, cfg config.Config, logger *zap.Logger) (sink.Sink, error) {
	if cfg.Output.GCSBucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init storage client: %w", err)
		}
		return sink.NewGCSSink(client, cfg.Output.GCSBucket, cfg.Output.GCSPrefix)
	}
	return sink.NewFileSystemSink(cfg.Output.Dir, logger)
}

func buildPublisher(ctx context.Context, cfg config.Config) (publisher.Publisher, func(), error) {
	if cfg.PubSub.Topic == "" {
		return nil, func() {}, nil
	}
	client, err := gcpubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("init pubsub client: %w", err)
	}
	pub, err := publisher.NewPubSub(client)
	if err != nil {
		return nil, nil, err
	}
	return pub, func() { client.Close() }, nil //nolint:errcheck // best-effort close
}
