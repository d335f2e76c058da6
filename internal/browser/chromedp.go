// Package browser implements catalog.Browser over headless Chrome via
// chromedp. One allocator is shared; each session is an isolated tab.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/scrapemonster/catalog-crawler/internal/catalog"
)

// Config controls the shared Chrome process.
type Config struct {
	UserAgent  string
	Headless   bool
	NavTimeout time.Duration
	// OpTimeout bounds every session operation that carries no deadline of
	// its own, so a selector that never matches fails instead of waiting
	// forever. It must exceed the longest configured in-page sleep.
	OpTimeout time.Duration
}

const defaultOpTimeout = 30 * time.Second

// Chrome owns the exec allocator and the shared browser context.
type Chrome struct {
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	cfg           Config
	logger        *zap.Logger
}

// New launches Chrome and warms the browser context up.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Chrome, error) {
	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = defaultOpTimeout
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	return &Chrome{
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		cfg:           cfg,
		logger:        logger,
	}, nil
}

// NewSession opens a fresh tab. The caller owns its teardown.
func (c *Chrome) NewSession(_ context.Context) (catalog.Session, error) {
	tabCtx, tabCancel := chromedp.NewContext(c.browserCtx)
	return &session{
		ctx:        tabCtx,
		cancel:     tabCancel,
		navTimeout: c.cfg.NavTimeout,
		opTimeout:  c.cfg.OpTimeout,
		userAgent:  c.cfg.UserAgent,
		exec:       chromedp.Run,
	}, nil
}

// Close tears down the browser and allocator.
func (c *Chrome) Close() error {
	c.browserCancel()
	c.allocCancel()
	return nil
}

type session struct {
	ctx        context.Context
	cancel     context.CancelFunc
	navTimeout time.Duration
	opTimeout  time.Duration
	userAgent  string
	// exec runs actions against a chromedp context (chromedp.Run outside
	// of tests).
	exec func(ctx context.Context, actions ...chromedp.Action) error
}

// run executes actions against the tab while honoring the caller context:
// chromedp actions must run on the tab context, so cancellation is
// forwarded from the caller. Callers without their own deadline get
// opTimeout, so waits on selectors that never match still terminate.
func (s *session) run(ctx context.Context, actions ...chromedp.Action) error {
	if _, ok := ctx.Deadline(); !ok && s.opTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opTimeout)
		defer cancel()
	}
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	if err := s.exec(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("chromedp run: %w", ctx.Err())
		}
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

func (s *session) Navigate(ctx context.Context, url string) error {
	if s.navTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.navTimeout)
		defer cancel()
	}
	tasks := chromedp.Tasks{
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if s.userAgent != "" {
		tasks = append(chromedp.Tasks{emulation.SetUserAgentOverride(s.userAgent)}, tasks...)
	}
	return s.run(ctx, tasks)
}

func (s *session) WaitVisible(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (s *session) Text(ctx context.Context, selector string) (string, error) {
	var out string
	if err := s.run(ctx, chromedp.Text(selector, &out, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return out, nil
}

func (s *session) Attributes(ctx context.Context, selector, attribute string) ([]string, error) {
	var nodes []*cdp.Node
	if err := s.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if v := n.AttributeValue(attribute); v != "" {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *session) Count(ctx context.Context, selector string) (int, error) {
	var nodes []*cdp.Node
	if err := s.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return 0, err
	}
	return len(nodes), nil
}

func (s *session) ScrollBy(ctx context.Context, deltaY float64) error {
	wheel := input.DispatchMouseEvent(input.MouseWheel, 200, 300).
		WithDeltaX(0).
		WithDeltaY(deltaY)
	return s.run(ctx, wheel)
}

func (s *session) Sleep(ctx context.Context, d time.Duration) error {
	return s.run(ctx, chromedp.Sleep(d))
}

func (s *session) Close() error {
	s.cancel()
	return nil
}
