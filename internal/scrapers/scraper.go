// Package scrapers holds the scraper adapter contract and the concrete
// adapters that turn listing pages and county surplus tables into staged
// leads.
package scrapers

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/repeto/internal/common"
	"github.com/ternarybob/repeto/internal/models"
)

// Scraper is one source adapter. Scrape honors ctx cancellation and returns
// a partial Result alongside the error when some pages succeeded.
type Scraper interface {
	Name() string
	SourceType() string
	Scrape(ctx context.Context) (*Result, error)
}

// Target scopes one scrape run to a job's state and county.
type Target struct {
	StateAbbr  string
	CountyID   string
	CountyName string
	SourceURL  string // Entry page for county-specific adapters
	BatchID    string
}

// Result is the outcome of one scrape run.
type Result struct {
	Leads        []models.StagedLead
	TotalFound   int
	PagesScraped int
	Duration     time.Duration
	SourceURL    string
}

// Factory constructs a scraper for one target.
type Factory func(target Target, config common.ScraperConfig, logger arbor.ILogger) Scraper

var registry = map[string]Factory{}

// Register adds a named factory. Called from adapter init functions.
func Register(name string, factory Factory) {
	registry[name] = factory
}

// New constructs the named scraper, or an error listing what is registered.
func New(name string, target Target, config common.ScraperConfig, logger arbor.ILogger) (Scraper, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown scraper %q (registered: %s)", name, strings.Join(Names(), ", "))
	}
	return factory(target, config, logger), nil
}

// Registered reports whether a scraper with the given name exists.
func Registered(name string) bool {
	_, ok := registry[name]
	return ok
}

// Names returns the registered scraper names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// fetcher wraps an http.Client with the shared adapter settings: a fixed
// user agent and a randomized delay before every request.
type fetcher struct {
	client *http.Client
	config common.ScraperConfig
	logger arbor.ILogger
}

func newFetcher(config common.ScraperConfig, logger arbor.ILogger) *fetcher {
	return &fetcher{
		client: &http.Client{Timeout: config.RequestTimeout},
		config: config,
		logger: logger,
	}
}

// delay sleeps a random duration inside the configured window, or until ctx
// is done.
func (f *fetcher) delay(ctx context.Context) error {
	window := f.config.DelayMax - f.config.DelayMin
	d := f.config.DelayMin
	if window > 0 {
		d += time.Duration(rand.Int63n(int64(window)))
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fetchDocument GETs a page and parses it with goquery.
func (f *fetcher) fetchDocument(ctx context.Context, url string) (*goquery.Document, error) {
	if err := f.delay(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetch %s returned status %d", url, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", url, err)
	}
	return doc, nil
}
