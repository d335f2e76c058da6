package harvest

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scrapemonster/catalog-crawler/internal/cache"
	"github.com/scrapemonster/catalog-crawler/internal/catalog"
	"github.com/scrapemonster/catalog-crawler/internal/pipeline"
	"github.com/scrapemonster/catalog-crawler/internal/publisher"
	"github.com/scrapemonster/catalog-crawler/internal/ratelimit"
	"github.com/scrapemonster/catalog-crawler/internal/sink"
)

const testBase = "https://shop.test/en"

// fakeSite is a scripted storefront shared by all fake sessions.
type fakeSite struct {
	mu sync.Mutex
	// categoryLinks maps seed URL to carousel hrefs.
	categoryLinks map[string][]string
	// productLinks maps category URL to tile hrefs.
	productLinks map[string][]string
	// tileCounts tracks how many tiles each listing has realized; scrolls
	// grow it toward len(productLinks[url]).
	tileCounts map[string]int
	// products maps product URL to page text by selector.
	products map[string]map[string]string
	// navigations counts page loads per URL.
	navigations map[string]int
}

func (f *fakeSite) navigate(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigations[url]++
}

func (f *fakeSite) visits(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.navigations[url]
}

func (f *fakeSite) scroll(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tileCounts[url] < len(f.productLinks[url]) {
		f.tileCounts[url]++
	}
}

func (f *fakeSite) tiles(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tileCounts[url]
}

type fakeSession struct {
	site *fakeSite
	url  string
	sel  catalog.Selectors
}

func (s *fakeSession) Navigate(_ context.Context, url string) error {
	s.url = url
	s.site.navigate(url)
	return nil
}

func (s *fakeSession) WaitVisible(context.Context, string) error { return nil }

func (s *fakeSession) Text(_ context.Context, selector string) (string, error) {
	if page, ok := s.site.products[s.url]; ok {
		if v, ok := page[selector]; ok {
			return v, nil
		}
	}
	return "", context.DeadlineExceeded
}

func (s *fakeSession) Attributes(_ context.Context, selector, _ string) ([]string, error) {
	switch selector {
	case s.sel.CategoryLinks:
		return s.site.categoryLinks[s.url], nil
	case s.sel.ProductTiles:
		return s.site.productLinks[s.url], nil
	}
	return nil, nil
}

func (s *fakeSession) Count(_ context.Context, selector string) (int, error) {
	if selector == s.sel.ProductTiles {
		return s.site.tiles(s.url), nil
	}
	return 0, nil
}

func (s *fakeSession) ScrollBy(context.Context, float64) error {
	s.site.scroll(s.url)
	return nil
}

func (s *fakeSession) Sleep(context.Context, time.Duration) error { return nil }

func (s *fakeSession) Close() error { return nil }

type fakeBrowser struct {
	site *fakeSite
	sel  catalog.Selectors
}

func (b *fakeBrowser) NewSession(context.Context) (catalog.Session, error) {
	return &fakeSession{site: b.site, sel: b.sel}, nil
}

func (b *fakeBrowser) Close() error { return nil }

func productPage(sel catalog.Selectors, name, sku, price string) map[string]string {
	return map[string]string{
		sel.ProductName:  name,
		sel.ProductSKU:   sku,
		sel.ProductPrice: price,
	}
}

func newTestSite(sel catalog.Selectors) *fakeSite {
	return &fakeSite{
		categoryLinks: map[string][]string{
			testBase + "/home": {"/cat-a", "/cat-b"},
		},
		productLinks: map[string][]string{
			testBase + "/cat-a": {"/p1", "/p2"},
			testBase + "/cat-b": {"/p3"},
		},
		tileCounts: map[string]int{},
		products: map[string]map[string]string{
			testBase + "/p1": productPage(sel, "Fresh Milk 1 L.", "SKU 4006381333931", "59.50"),
			testBase + "/p2": productPage(sel, "Mystery Item", "SKU 12345", "call us"),
			testBase + "/p3": productPage(sel, "Organic Eggs", "SKU none", "120"),
		},
		navigations: map[string]int{},
	}
}

func newTestHarvester(site *fakeSite, sel catalog.Selectors, memSink *sink.MemorySink, pub publisher.Publisher) *Harvester {
	logger := zap.NewNop()
	browser := &fakeBrowser{site: site, sel: sel}
	invoker := &pipeline.Invoker{
		Cache:   cache.New(cache.NewMemoryStore(), time.Hour, logger),
		Limiter: ratelimit.NewRegistry(ratelimit.Policy{}),
		Retries: 1,
		Logger:  logger,
	}
	extractor := &catalog.Extractor{
		Browser:        browser,
		BaseURL:        testBase,
		Selectors:      sel,
		DetailsTimeout: 10 * time.Millisecond,
		Logger:         logger,
	}
	detector := catalog.Detector{
		RingSize:     3,
		GrowBatch:    3,
		StepDelay:    time.Millisecond,
		SettleDelay:  time.Millisecond,
		InitialDelay: time.Millisecond,
		MaxWait:      time.Second,
	}
	cfg := Config{
		Seeds:                []string{testBase + "/home"},
		BaseURL:              testBase,
		Selectors:            sel,
		Resource:             "storefront",
		CategorySettle:       time.Millisecond,
		Detector:             detector,
		CategoryConcurrency:  2,
		DiscoveryConcurrency: 2,
		ExtractConcurrency:   2,
		OutputFile:           "products.jsonl",
		Topic:                "harvest-runs",
	}
	return New(browser, invoker, extractor, memSink, pub, cfg, logger)
}

func TestHarvester_RunEndToEnd(t *testing.T) {
	t.Parallel()

	sel := catalog.DefaultSelectors()
	site := newTestSite(sel)
	memSink := sink.NewMemorySink()
	pub := publisher.NewMemory()

	h := newTestHarvester(site, sel, memSink, pub)
	summary, err := h.Run(context.Background(), "run-1")
	require.NoError(t, err)

	require.Equal(t, 1, summary.Seeds)
	require.Equal(t, 2, summary.Categories)
	require.Equal(t, 3, summary.Products)
	// p2 has an unparseable price and must be absent, not defaulted.
	require.Equal(t, 2, summary.Records)
	require.Equal(t, 1, summary.FailedUnits)
	require.Equal(t, "memory://products.jsonl", summary.ArtifactURI)

	data, ok := memSink.Artifact("products.jsonl")
	require.True(t, ok)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 2)

	// Aggregation preserves input order: p1 before p3.
	var first, second catalog.ProductRecord
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	require.Equal(t, "Fresh Milk", first.Name)
	require.NotNil(t, first.Quantity)
	require.Equal(t, "1L", *first.Quantity)
	require.Equal(t, "EAN-13 4006381333931", *first.Barcode)
	require.Equal(t, "Organic Eggs", second.Name)
	require.Nil(t, second.Quantity)
	require.Nil(t, second.Barcode)
	require.InDelta(t, 120, second.Price, 1e-9)

	// The malformed unit got exactly one automatic retry.
	require.Equal(t, 2, site.visits(testBase+"/p2"))
}

func TestHarvester_RunPublishesSummary(t *testing.T) {
	t.Parallel()

	sel := catalog.DefaultSelectors()
	site := newTestSite(sel)
	pub := publisher.NewMemory()

	h := newTestHarvester(site, sel, sink.NewMemorySink(), pub)
	summary, err := h.Run(context.Background(), "run-2")
	require.NoError(t, err)

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "harvest-runs", msgs[0].Topic)
	require.Equal(t, summary, msgs[0].Payload)
}

func TestHarvester_SecondRunServedFromCache(t *testing.T) {
	t.Parallel()

	sel := catalog.DefaultSelectors()
	site := newTestSite(sel)

	h := newTestHarvester(site, sel, sink.NewMemorySink(), publisher.NewMemory())
	ctx := context.Background()

	_, err := h.Run(ctx, "run-a")
	require.NoError(t, err)
	firstVisits := site.visits(testBase + "/p1")
	require.Equal(t, 1, firstVisits)

	_, err = h.Run(ctx, "run-b")
	require.NoError(t, err)
	require.Equal(t, firstVisits, site.visits(testBase+"/p1"),
		"cached unit must not refetch within the TTL window")
}
