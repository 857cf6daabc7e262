package models

import "time"

// CircuitBreakerThreshold is the consecutive-failure count at which a county
// is excluded from scheduling until manually reset.
const CircuitBreakerThreshold = 5

// County is a scheduling target with per-county cadence and health tracking.
type County struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	StateAbbr            string     `json:"state_abbr"`
	FipsCode             string     `json:"fips_code,omitempty"`
	RecordsURL           string     `json:"records_url,omitempty"`
	HasOnlineRecords     bool       `json:"has_online_records"`
	IsActive             bool       `json:"is_active"`
	ScraperName          string     `json:"scraper_name,omitempty"`
	ScrapeIntervalHours  int        `json:"scrape_interval_hours,omitempty"`
	ConsecutiveFailures  int        `json:"consecutive_failures"`
	NextScheduledScrape  *time.Time `json:"next_scheduled_scrape,omitempty"`
	LastScrapedAt        *time.Time `json:"last_scraped_at,omitempty"`
	LastSuccessfulScrape *time.Time `json:"last_successful_scrape,omitempty"`
	TotalLeadsFound      int        `json:"total_leads_found"`
	LeadsThisMonth       int        `json:"leads_this_month"`
}

// Schedulable reports whether the county passes the circuit breaker.
func (c *County) Schedulable() bool {
	return c.IsActive && c.HasOnlineRecords && c.ConsecutiveFailures < CircuitBreakerThreshold
}

// NationwideMarker in states_covered means a source covers every state.
const NationwideMarker = "ALL"

// ScrapeSource is a named scraper capability (a nationwide aggregator or a
// site family) that the scheduler fans out into per-state jobs.
type ScrapeSource struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	ScraperName   string     `json:"scraper_name"`
	SourceType    string     `json:"source_type,omitempty"`
	BaseURL       string     `json:"base_url,omitempty"`
	IsActive      bool       `json:"is_active"`
	StatesCovered []string   `json:"states_covered,omitempty"`
	LastScheduled *time.Time `json:"last_scheduled,omitempty"`
}

// IsNationwide reports whether the source covers all states.
func (s *ScrapeSource) IsNationwide() bool {
	for _, state := range s.StatesCovered {
		if state == NationwideMarker {
			return true
		}
	}
	return false
}
