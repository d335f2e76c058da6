// Package harvest composes the three-stage catalog pipeline: category
// discovery, product discovery, and record extraction.
package harvest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/scrapemonster/catalog-crawler/internal/catalog"
	"github.com/scrapemonster/catalog-crawler/internal/pipeline"
	"github.com/scrapemonster/catalog-crawler/internal/publisher"
	"github.com/scrapemonster/catalog-crawler/internal/sink"
	"github.com/scrapemonster/catalog-crawler/internal/telemetry"
)

// Task identities used for cache fingerprints. Renaming one invalidates
// its cached results.
const (
	taskFindCategories = "find_category_pages"
	taskFindProducts   = "find_product_pages"
	taskExtract        = "extract_product_info"
)

// Config holds the per-run pipeline settings.
type Config struct {
	Seeds []string
	// BaseURL prefixes relative storefront paths.
	BaseURL   string
	Selectors catalog.Selectors
	// Resource names the shared rate-limited resource for page fetches.
	Resource string
	// CategorySettle is the pause after the category carousel appears,
	// letting the remaining carousels render.
	CategorySettle time.Duration
	Detector       catalog.Detector

	CategoryConcurrency  int
	DiscoveryConcurrency int
	ExtractConcurrency   int

	OutputFile string
	// Topic, when set, receives the run summary after the artifact lands.
	Topic string
}

// Summary describes one completed run.
type Summary struct {
	RunID       string    `json:"run_id"`
	Seeds       int       `json:"seeds"`
	Categories  int       `json:"categories"`
	Products    int       `json:"products"`
	Records     int       `json:"records"`
	FailedUnits int       `json:"failed_units"`
	ArtifactURI string    `json:"artifact_uri"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Harvester runs the pipeline end to end.
type Harvester struct {
	browser   catalog.Browser
	invoker   *pipeline.Invoker
	extractor *catalog.Extractor
	sink      sink.Sink
	publisher publisher.Publisher
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Harvester.
func New(
	browser catalog.Browser,
	invoker *pipeline.Invoker,
	extractor *catalog.Extractor,
	s sink.Sink,
	pub publisher.Publisher,
	cfg Config,
	logger *zap.Logger,
) *Harvester {
	if cfg.CategorySettle <= 0 {
		cfg.CategorySettle = 5 * time.Second
	}
	return &Harvester{
		browser:   browser,
		invoker:   invoker,
		extractor: extractor,
		sink:      s,
		publisher: pub,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run executes all three stages and persists the record batch. A failing
// unit forfeits only its own slot; the run carries on (see DESIGN.md).
func (h *Harvester) Run(ctx context.Context, runID string) (Summary, error) {
	summary := Summary{
		RunID:     runID,
		Seeds:     len(h.cfg.Seeds),
		StartedAt: time.Now().UTC(),
	}
	logger := h.logger.With(zap.String("run_id", runID))
	logger.Info("harvest starting", zap.Int("seeds", len(h.cfg.Seeds)))

	categoryResults := pipeline.FanOut(ctx, h.cfg.Seeds, h.cfg.CategoryConcurrency,
		func(ctx context.Context, seed string) ([]string, error) {
			return h.findCategoryPages(ctx, seed)
		})
	categories := pipeline.Flatten(categoryResults, h.slotFailed(logger, "categories", h.cfg.Seeds, &summary))
	logger.Info("category discovery finished", zap.Int("categories", len(categories)))
	summary.Categories = len(categories)

	productResults := pipeline.FanOut(ctx, categories, h.cfg.DiscoveryConcurrency,
		func(ctx context.Context, category string) ([]string, error) {
			return h.findProductPages(ctx, category)
		})
	products := pipeline.Flatten(productResults, h.slotFailed(logger, "products", categories, &summary))
	logger.Info("product discovery finished", zap.Int("products", len(products)))
	summary.Products = len(products)

	recordResults := pipeline.FanOut(ctx, products, h.cfg.ExtractConcurrency,
		func(ctx context.Context, url string) (catalog.ProductRecord, error) {
			return h.extractProduct(ctx, url)
		})
	records := pipeline.Collect(recordResults, h.slotFailed(logger, "extract", products, &summary))
	summary.Records = len(records)
	for range records {
		telemetry.RecordExtracted()
	}

	uri, err := h.sink.Write(ctx, h.cfg.OutputFile, records)
	if err != nil {
		return summary, fmt.Errorf("persist records: %w", err)
	}
	summary.ArtifactURI = uri
	summary.FinishedAt = time.Now().UTC()

	h.publishSummary(ctx, logger, summary)
	logger.Info("harvest finished",
		zap.Int("records", summary.Records),
		zap.Int("failed_units", summary.FailedUnits),
		zap.String("artifact", uri),
	)
	return summary, nil
}

func (h *Harvester) slotFailed(logger *zap.Logger, stage string, inputs []string, summary *Summary) func(int, error) {
	return func(i int, err error) {
		summary.FailedUnits++
		telemetry.UnitFailed(stage)
		input := ""
		if i < len(inputs) {
			input = inputs[i]
		}
		logger.Warn("unit failed terminally",
			zap.String("stage", stage), zap.String("input", input), zap.Error(err))
	}
}

// findCategoryPages loads a seed page and collects its category links.
func (h *Harvester) findCategoryPages(ctx context.Context, seed string) ([]string, error) {
	req := pipeline.Request{
		Task:     taskFindCategories,
		Args:     map[string]any{"url": seed},
		Resource: h.cfg.Resource,
	}
	return pipeline.Invoke(ctx, h.invoker, req, func(ctx context.Context) ([]string, error) {
		session, err := h.browser.NewSession(ctx)
		if err != nil {
			return nil, fmt.Errorf("open session: %w", err)
		}
		defer h.closeSession(session, seed)

		if err := session.Navigate(ctx, seed); err != nil {
			return nil, fmt.Errorf("navigate %s: %w", seed, err)
		}
		h.logger.Info("finding category pages", zap.String("url", seed))
		if err := session.WaitVisible(ctx, h.cfg.Selectors.CategoryCarousel); err != nil {
			return nil, fmt.Errorf("wait for carousel: %w", err)
		}
		if err := session.Sleep(ctx, h.cfg.CategorySettle); err != nil {
			return nil, fmt.Errorf("settle: %w", err)
		}
		links, err := session.Attributes(ctx, h.cfg.Selectors.CategoryLinks, "href")
		if err != nil {
			return nil, fmt.Errorf("collect category links: %w", err)
		}
		return links, nil
	})
}

// findProductPages scrolls a category listing until it stops growing and
// collects the product links.
func (h *Harvester) findProductPages(ctx context.Context, category string) ([]string, error) {
	url := catalog.AbsoluteURL(h.cfg.BaseURL, category)
	req := pipeline.Request{
		Task: taskFindProducts,
		Args: map[string]any{"url": url},
	}
	return pipeline.Invoke(ctx, h.invoker, req, func(ctx context.Context) ([]string, error) {
		session, err := h.browser.NewSession(ctx)
		if err != nil {
			return nil, fmt.Errorf("open session: %w", err)
		}
		defer h.closeSession(session, url)

		if err := session.Navigate(ctx, url); err != nil {
			return nil, fmt.Errorf("navigate %s: %w", url, err)
		}
		h.logger.Info("scraping products", zap.String("url", url))

		count := h.cfg.Detector.Wait(ctx,
			func(ctx context.Context) error {
				return session.ScrollBy(ctx, 300)
			},
			func(ctx context.Context) (int, error) {
				return session.Count(ctx, h.cfg.Selectors.ProductTiles)
			},
		)
		h.logger.Debug("listing stabilized",
			zap.String("url", url), zap.Int("products", count))

		links, err := session.Attributes(ctx, h.cfg.Selectors.ProductTiles, "href")
		if err != nil {
			return nil, fmt.Errorf("collect product links: %w", err)
		}
		return links, nil
	})
}

// extractProduct builds one record. The extractor opens its own session
// per attempt, so the fingerprint depends on the task and URL alone.
func (h *Harvester) extractProduct(ctx context.Context, url string) (catalog.ProductRecord, error) {
	req := pipeline.Request{
		Task:     taskExtract,
		Args:     map[string]any{"url": url},
		Resource: h.cfg.Resource,
	}
	return pipeline.Invoke(ctx, h.invoker, req, func(ctx context.Context) (catalog.ProductRecord, error) {
		return h.extractor.Extract(ctx, url, nil)
	})
}

func (h *Harvester) closeSession(session catalog.Session, url string) {
	if err := session.Close(); err != nil {
		h.logger.Warn("close session", zap.String("url", url), zap.Error(err))
	}
}

func (h *Harvester) publishSummary(ctx context.Context, logger *zap.Logger, summary Summary) {
	if h.publisher == nil || h.cfg.Topic == "" {
		return
	}
	id, err := h.publisher.Publish(ctx, h.cfg.Topic, summary)
	if err != nil {
		logger.Warn("publish run summary failed", zap.Error(err))
		return
	}
	logger.Info("run summary published", zap.String("message_id", id))
}
