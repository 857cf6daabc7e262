package scrapers

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/repeto/internal/common"
	"github.com/ternarybob/repeto/internal/models"
)

// CountySurplusScraperName is the registry key for the county excess-funds
// adapter.
const CountySurplusScraperName = "county_surplus"

// surplusKeywords mark links to excess-funds documents and pages.
var surplusKeywords = []string{"surplus", "excess", "overage", "overbid", "proceeds"}

// Column keyword sets for header matching in published surplus tables.
var (
	nameColumns    = []string{"name", "owner", "defendant"}
	addressColumns = []string{"address", "property", "location"}
	amountColumns  = []string{"amount", "proceeds", "surplus", "overage", "excess"}
	caseColumns    = []string{"case", "number", "parcel", "apn"}
	dateColumns    = []string{"date", "sale"}
)

func init() {
	Register(CountySurplusScraperName, func(target Target, config common.ScraperConfig, logger arbor.ILogger) Scraper {
		return NewCountySurplusScraper(target, config, logger)
	})
}

// CountySurplusScraper parses a county's published excess-funds page. The
// entry URL comes from the county row; the adapter follows on-page links
// whose text names surplus funds, then extracts any HTML table whose header
// it can map to owner/address/amount columns.
type CountySurplusScraper struct {
	target  Target
	config  common.ScraperConfig
	fetcher *fetcher
	logger  arbor.ILogger
}

// NewCountySurplusScraper creates the adapter for one county.
func NewCountySurplusScraper(target Target, config common.ScraperConfig, logger arbor.ILogger) *CountySurplusScraper {
	return &CountySurplusScraper{
		target:  target,
		config:  config,
		fetcher: newFetcher(config, logger),
		logger:  logger,
	}
}

func (s *CountySurplusScraper) Name() string { return CountySurplusScraperName }

func (s *CountySurplusScraper) SourceType() string { return models.SourceTypeCountySurplus }

func (s *CountySurplusScraper) Scrape(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{SourceURL: s.target.SourceURL}

	if s.target.SourceURL == "" {
		return result, fmt.Errorf("county %q has no records URL", s.target.CountyName)
	}

	doc, err := s.fetcher.fetchDocument(ctx, s.target.SourceURL)
	if err != nil {
		return result, err
	}
	result.PagesScraped++

	// Tables on the entry page itself, then linked surplus pages.
	result.Leads = append(result.Leads, s.parseTables(doc, s.target.SourceURL)...)

	for _, link := range s.surplusLinks(doc) {
		if err := ctx.Err(); err != nil {
			break
		}
		linked, err := s.fetcher.fetchDocument(ctx, link)
		if err != nil {
			s.logger.Warn().Err(err).Str("url", link).Msg("Failed to fetch surplus page")
			continue
		}
		result.PagesScraped++
		result.Leads = append(result.Leads, s.parseTables(linked, link)...)

		if s.config.MaxPages > 0 && result.PagesScraped >= s.config.MaxPages {
			break
		}
	}

	result.TotalFound = len(result.Leads)
	result.Duration = time.Since(start)

	s.logger.Info().
		Str("scraper", CountySurplusScraperName).
		Str("county", s.target.CountyName).
		Int("leads", result.TotalFound).
		Int("pages", result.PagesScraped).
		Msg("County surplus scrape complete")

	return result, nil
}

// surplusLinks returns same-page HTML links whose text names surplus funds.
// PDF and spreadsheet links are skipped; those lists need manual handling.
func (s *CountySurplusScraper) surplusLinks(doc *goquery.Document) []string {
	seen := map[string]struct{}{}
	var links []string

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		text := strings.ToLower(a.Text())

		lower := strings.ToLower(href)
		if strings.HasSuffix(lower, ".pdf") || strings.HasSuffix(lower, ".xls") ||
			strings.HasSuffix(lower, ".xlsx") || strings.HasSuffix(lower, ".csv") {
			return
		}

		matched := false
		for _, kw := range surplusKeywords {
			if strings.Contains(text, kw) {
				matched = true
				break
			}
		}
		if !matched {
			return
		}

		resolved := resolveURL(s.target.SourceURL, href)
		if resolved == "" {
			return
		}
		if _, dup := seen[resolved]; dup {
			return
		}
		seen[resolved] = struct{}{}
		links = append(links, resolved)
	})

	return links
}

// parseTables extracts leads from every table whose header row maps to at
// least a name and an address column.
func (s *CountySurplusScraper) parseTables(doc *goquery.Document, sourceURL string) []models.StagedLead {
	var leads []models.StagedLead

	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		rows := table.Find("tr")
		if rows.Length() < 2 {
			return
		}

		header := cellTexts(rows.First())
		nameIdx := findColumn(header, nameColumns)
		addressIdx := findColumn(header, addressColumns)
		amountIdx := findColumn(header, amountColumns)
		caseIdx := findColumn(header, caseColumns)
		dateIdx := findColumn(header, dateColumns)

		if nameIdx < 0 || addressIdx < 0 {
			return
		}

		rows.Slice(1, rows.Length()).Each(func(_ int, row *goquery.Selection) {
			lead := s.leadFromRow(cellTexts(row), nameIdx, addressIdx, amountIdx, caseIdx, dateIdx, sourceURL)
			if lead != nil {
				leads = append(leads, *lead)
			}
		})
	})

	return leads
}

func (s *CountySurplusScraper) leadFromRow(cells []string, nameIdx, addressIdx, amountIdx, caseIdx, dateIdx int, sourceURL string) *models.StagedLead {
	owner := cellAt(cells, nameIdx)
	address := cellAt(cells, addressIdx)
	if owner == "" || address == "" {
		return nil
	}

	lead := &models.StagedLead{
		OwnerName:       owner,
		PropertyAddress: models.NormalizeAddress(address),
		StateAbbr:       s.target.StateAbbr,
		County:          s.target.CountyName,
		CaseNumber:      cellAt(cells, caseIdx),
		Source:          CountySurplusScraperName,
		SourceType:      models.SourceTypeCountySurplus,
		SourceURL:       sourceURL,
		BatchID:         s.target.BatchID,
	}

	if amount := cellAt(cells, amountIdx); amount != "" {
		if parsed, ok := models.ParseCurrency(amount); ok {
			lead.OverageAmount = parsed
		}
	}

	if date := cellAt(cells, dateIdx); date != "" {
		if parsed, ok := parseSaleDate(date); ok {
			lead.SaleDate = parsed
		}
	}

	lead.ID = models.ContentID(lead.PropertyAddress, lead.StateAbbr, lead.OwnerName, lead.SaleDate)
	return lead
}

func cellTexts(row *goquery.Selection) []string {
	var cells []string
	row.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
		cells = append(cells, strings.TrimSpace(cell.Text()))
	})
	return cells
}

func cellAt(cells []string, idx int) string {
	if idx < 0 || idx >= len(cells) {
		return ""
	}
	return cells[idx]
}

// findColumn returns the first header index containing any keyword, or -1.
func findColumn(header []string, keywords []string) int {
	for i, col := range header {
		lower := strings.ToLower(col)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				return i
			}
		}
	}
	return -1
}

// resolveURL joins a possibly relative href against the page URL.
func resolveURL(base, href string) string {
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := baseURL.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}
