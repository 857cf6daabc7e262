package scrapers

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/repeto/internal/common"
)

// Renderer fetches JavaScript-heavy listing pages through a headless browser
// and hands the rendered HTML back for goquery parsing. One Renderer holds
// one browser; adapters create it lazily and close it after the run.
type Renderer struct {
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	waitTime      time.Duration
	logger        arbor.ILogger
}

// NewRenderer starts a headless browser with the shared adapter settings.
func NewRenderer(config common.ScraperConfig, logger arbor.ILogger) (*Renderer, error) {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(config.UserAgent),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Startup probe so a missing Chrome binary fails here, not mid-scrape.
	probeCtx, probeCancel := context.WithTimeout(browserCtx, 30*time.Second)
	defer probeCancel()
	if err := chromedp.Run(probeCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("browser failed startup probe: %w", err)
	}

	waitTime := config.BrowserWaitTime
	if waitTime <= 0 {
		waitTime = 3 * time.Second
	}

	logger.Debug().Msg("Headless browser started")

	return &Renderer{
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		waitTime:      waitTime,
		logger:        logger,
	}, nil
}

// Render navigates to url, waits for scripts to settle and returns the
// rendered HTML.
func (r *Renderer) Render(ctx context.Context, url string) (string, error) {
	runCtx, cancel := context.WithCancel(r.browserCtx)
	defer cancel()

	// Propagate the caller's deadline onto the browser context.
	if deadline, ok := ctx.Deadline(); ok {
		runCtx, cancel = context.WithDeadline(runCtx, deadline)
		defer cancel()
	}

	var html string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.Sleep(r.waitTime),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("failed to render %s: %w", url, err)
	}
	return html, nil
}

// Close shuts the browser down.
func (r *Renderer) Close() {
	if r.browserCancel != nil {
		r.browserCancel()
	}
	if r.allocCancel != nil {
		r.allocCancel()
	}
}
