package scrapers

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/repeto/internal/common"
	"github.com/ternarybob/repeto/internal/models"
)

// AuctionScraperName is the registry key for the nationwide auction adapter.
const AuctionScraperName = "auction_nationwide"

const (
	auctionBaseURL   = "https://www.auction.com"
	auctionSearchURL = auctionBaseURL + "/residential/foreclosure"
)

// stateZipPattern matches the trailing "ST 12345" in a listing address.
var stateZipPattern = regexp.MustCompile(`([A-Z]{2})\s*(\d{5})?`)

func init() {
	Register(AuctionScraperName, func(target Target, config common.ScraperConfig, logger arbor.ILogger) Scraper {
		return NewAuctionScraper(target, config, logger)
	})
}

// AuctionScraper scrapes a nationwide foreclosure listing aggregator, one
// state per run. Listing pages are JavaScript-rendered, so the browser path
// is used when enabled; plain fetch still works against cached/static pages.
type AuctionScraper struct {
	target  Target
	config  common.ScraperConfig
	fetcher *fetcher
	logger  arbor.ILogger
}

// NewAuctionScraper creates the adapter for one target state.
func NewAuctionScraper(target Target, config common.ScraperConfig, logger arbor.ILogger) *AuctionScraper {
	return &AuctionScraper{
		target:  target,
		config:  config,
		fetcher: newFetcher(config, logger),
		logger:  logger,
	}
}

func (s *AuctionScraper) Name() string { return AuctionScraperName }

func (s *AuctionScraper) SourceType() string { return models.SourceTypeAuction }

// Scrape walks the paginated listing for the target state and parses every
// property card. Page-level failures end the walk but keep the leads already
// collected.
func (s *AuctionScraper) Scrape(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{SourceURL: s.searchURL(1)}

	var renderer *Renderer
	if s.config.EnableBrowser {
		var err error
		renderer, err = NewRenderer(s.config, s.logger)
		if err != nil {
			return result, fmt.Errorf("failed to start browser: %w", err)
		}
		defer renderer.Close()
	}

	maxPages := s.config.MaxPages
	if maxPages <= 0 {
		maxPages = 5
	}

	for page := 1; page <= maxPages; page++ {
		doc, err := s.fetchPage(ctx, renderer, page)
		if err != nil {
			result.Duration = time.Since(start)
			if result.PagesScraped > 0 {
				s.logger.Warn().Err(err).Int("page", page).Msg("Stopping pagination on fetch error")
				return result, nil
			}
			return result, err
		}
		result.PagesScraped++

		cards := doc.Find(".property-card")
		if cards.Length() == 0 {
			break
		}

		cards.Each(func(_ int, card *goquery.Selection) {
			lead := s.parseCard(card)
			if lead != nil {
				result.Leads = append(result.Leads, *lead)
			}
		})

		s.logger.Debug().Int("page", page).Int("cards", cards.Length()).Msg("Parsed listing page")
	}

	result.TotalFound = len(result.Leads)
	result.Duration = time.Since(start)

	s.logger.Info().
		Str("scraper", AuctionScraperName).
		Str("state", s.target.StateAbbr).
		Int("leads", result.TotalFound).
		Int("pages", result.PagesScraped).
		Msg("Auction scrape complete")

	return result, nil
}

func (s *AuctionScraper) searchURL(page int) string {
	url := auctionSearchURL
	sep := "?"
	if s.target.StateAbbr != "" {
		url += sep + "state=" + s.target.StateAbbr
		sep = "&"
	}
	if page > 1 {
		url += fmt.Sprintf("%spage=%d", sep, page)
	}
	return url
}

func (s *AuctionScraper) fetchPage(ctx context.Context, renderer *Renderer, page int) (*goquery.Document, error) {
	url := s.searchURL(page)

	if renderer == nil {
		return s.fetcher.fetchDocument(ctx, url)
	}

	if err := s.fetcher.delay(ctx); err != nil {
		return nil, err
	}
	html, err := renderer.Render(ctx, url)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// parseCard turns one property card into a staged lead, or nil when the card
// has no usable address. Aggregator listings have no owner, so the owner is
// left as a placeholder and the lead relies on downstream enrichment.
func (s *AuctionScraper) parseCard(card *goquery.Selection) *models.StagedLead {
	fullAddress := strings.TrimSpace(card.Find(".property-address").Text())
	if fullAddress == "" {
		return nil
	}

	street, city, stateAbbr, zipCode := splitAddress(fullAddress)
	if street == "" {
		return nil
	}
	if stateAbbr == "" {
		stateAbbr = s.target.StateAbbr
	}

	lead := &models.StagedLead{
		OwnerName:       "Property Owner",
		PropertyAddress: models.NormalizeAddress(street),
		City:            city,
		StateAbbr:       stateAbbr,
		ZipCode:         zipCode,
		County:          s.target.CountyName,
		Source:          AuctionScraperName,
		SourceType:      models.SourceTypeAuction,
		BatchID:         s.target.BatchID,
	}

	if price := card.Find(".property-price, .auction-price, .bid-amount").First().Text(); price != "" {
		if amount, ok := models.ParseCurrency(price); ok {
			lead.SaleAmount = amount
		}
	}

	if date := strings.TrimSpace(card.Find(".auction-date, .sale-date").First().Text()); date != "" {
		if parsed, ok := parseSaleDate(date); ok {
			lead.SaleDate = parsed
		}
	}

	if href, ok := card.Find("a[href*='/property/']").First().Attr("href"); ok {
		if strings.HasPrefix(href, "http") {
			lead.SourceURL = href
		} else {
			lead.SourceURL = auctionBaseURL + href
		}
	}

	lead.ID = models.ContentID(lead.PropertyAddress, lead.StateAbbr, lead.OwnerName, lead.SaleDate)
	return lead
}

// splitAddress breaks "123 Main St, City, ST 12345" into components. Missing
// segments come back empty.
func splitAddress(full string) (street, city, stateAbbr, zipCode string) {
	parts := strings.Split(full, ",")
	if len(parts) > 0 {
		street = strings.TrimSpace(parts[0])
	}
	if len(parts) > 1 {
		city = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 {
		if m := stateZipPattern.FindStringSubmatch(strings.TrimSpace(parts[2])); m != nil {
			stateAbbr = m[1]
			zipCode = m[2]
		}
	}
	return street, city, stateAbbr, zipCode
}

// saleDateLayouts are the formats listing sites print auction dates in.
var saleDateLayouts = []string{
	"Jan 2, 2006",
	"January 2, 2006",
	"01/02/2006",
	"2006-01-02",
}

// parseSaleDate normalizes a scraped date string to YYYY-MM-DD.
func parseSaleDate(value string) (string, bool) {
	cleaned := strings.TrimSpace(value)
	for _, layout := range saleDateLayouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}
