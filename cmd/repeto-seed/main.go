// repeto-seed populates the counties and scrape_sources tables with the
// built-in coverage data. Safe to re-run: rows are keyed deterministically
// and upserted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/repeto/internal/common"
	"github.com/ternarybob/repeto/internal/models"
	"github.com/ternarybob/repeto/internal/scrapers"
	"github.com/ternarybob/repeto/internal/store"
)

type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles configPaths
	statesFlag  = flag.String("states", "", "Comma-separated state codes to seed (default all)")
	showVersion = flag.Bool("version", false, "Print version information")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("repeto-seed version %s\n", common.GetVersion())
		os.Exit(0)
	}

	if len(configFiles) == 0 {
		if _, err := os.Stat("repeto.toml"); err == nil {
			configFiles = append(configFiles, "repeto.toml")
		}
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		arbor.NewLogger().Fatal().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	logger := common.InitLogger(config, "seed")
	common.PrintBanner("Seed")

	var only map[string]struct{}
	if *statesFlag != "" {
		only = map[string]struct{}{}
		for _, s := range strings.Split(*statesFlag, ",") {
			s = strings.ToUpper(strings.TrimSpace(s))
			if !models.IsValidState(s) {
				logger.Fatal().Str("state", s).Msg("Unknown state code")
				os.Exit(1)
			}
			only[s] = struct{}{}
		}
	}

	client := store.NewClient(config.Store.URL, config.Store.ServiceKey,
		store.WithLogger(logger),
		store.WithTimeout(config.Store.RequestTimeout),
		store.WithRateLimit(config.Store.RatePerSecond),
	)
	countyStore := store.NewCountyStore(client, logger)

	ctx := context.Background()

	counties := seedCounties(only)
	if err := countyStore.InsertCounties(ctx, counties); err != nil {
		logger.Fatal().Err(err).Msg("Failed to seed counties")
		os.Exit(1)
	}
	logger.Info().Int("counties", len(counties)).Msg("Counties seeded")

	sources := seedSources()
	if err := countyStore.InsertSources(ctx, sources); err != nil {
		logger.Fatal().Err(err).Msg("Failed to seed scrape sources")
		os.Exit(1)
	}
	logger.Info().Int("sources", len(sources)).Msg("Scrape sources seeded")
}

// countyID derives a stable UUID from the county identity so re-seeding
// merges instead of duplicating.
func countyID(stateAbbr, name string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("county|"+stateAbbr+"|"+name)).String()
}

func sourceID(name string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("source|"+name)).String()
}

func seedCounties(only map[string]struct{}) []models.County {
	var counties []models.County
	for stateAbbr, names := range countiesWithOnlineRecords {
		if only != nil {
			if _, ok := only[stateAbbr]; !ok {
				continue
			}
		}
		for _, name := range names {
			county := models.County{
				ID:               countyID(stateAbbr, name),
				Name:             name,
				StateAbbr:        stateAbbr,
				HasOnlineRecords: true,
				IsActive:         true,
				ScraperName:      scrapers.CountySurplusScraperName,
			}
			if url, ok := knownRecordsURLs[name+", "+stateAbbr]; ok {
				county.RecordsURL = url
			}
			counties = append(counties, county)
		}
	}
	return counties
}

func seedSources() []models.ScrapeSource {
	sources := []models.ScrapeSource{
		{
			Name:        "Auction.com",
			ScraperName: scrapers.AuctionScraperName,
			SourceType:  models.SourceTypeAuction,
			BaseURL:     "https://www.auction.com",
		},
		{
			Name:        "HUD Homes",
			ScraperName: scrapers.AuctionScraperName,
			SourceType:  models.SourceTypeHudForeclosure,
			BaseURL:     "https://www.hudhomestore.gov",
		},
	}
	for i := range sources {
		sources[i].ID = sourceID(sources[i].Name)
		sources[i].IsActive = true
		sources[i].StatesCovered = []string{models.NationwideMarker}
	}
	return sources
}

// countiesWithOnlineRecords lists the counties that publish surplus-funds or
// foreclosure records online, by state.
var countiesWithOnlineRecords = map[string][]string{
	"FL": {
		"Alachua", "Baker", "Bay", "Bradford", "Brevard", "Broward",
		"Charlotte", "Citrus", "Clay", "Collier", "Columbia", "Duval",
		"Escambia", "Flagler", "Hernando", "Highlands", "Hillsborough",
		"Indian River", "Lake", "Lee", "Leon", "Manatee", "Marion",
		"Martin", "Miami-Dade", "Monroe", "Nassau", "Okaloosa", "Orange",
		"Osceola", "Palm Beach", "Pasco", "Pinellas", "Polk", "Putnam",
		"Santa Rosa", "Sarasota", "Seminole", "St. Johns", "St. Lucie",
		"Sumter", "Volusia",
	},
	"TX": {
		"Harris", "Dallas", "Tarrant", "Bexar", "Travis", "Collin",
		"Denton", "Hidalgo", "El Paso", "Fort Bend", "Williamson",
		"Montgomery", "Cameron", "Nueces", "Bell", "Galveston",
	},
	"CA": {
		"Los Angeles", "San Diego", "Orange", "Riverside", "San Bernardino",
		"Santa Clara", "Alameda", "Sacramento", "Contra Costa", "Fresno",
		"Kern", "San Francisco", "Ventura", "San Mateo", "San Joaquin",
	},
	"AZ": {"Maricopa", "Pima", "Pinal", "Yavapai", "Yuma", "Mohave", "Coconino"},
	"NV": {"Clark", "Washoe", "Carson City", "Douglas", "Lyon", "Nye"},
	"CO": {
		"Denver", "El Paso", "Arapahoe", "Jefferson", "Adams", "Larimer",
		"Boulder", "Douglas", "Weld", "Pueblo",
	},
	"GA": {
		"Fulton", "Gwinnett", "Cobb", "DeKalb", "Chatham", "Clayton",
		"Cherokee", "Forsyth", "Henry", "Richmond",
	},
	"OH": {
		"Cuyahoga", "Franklin", "Hamilton", "Summit", "Montgomery",
		"Lucas", "Butler", "Stark", "Lorain", "Mahoning",
	},
	"PA": {
		"Philadelphia", "Allegheny", "Montgomery", "Bucks", "Delaware",
		"Lancaster", "Chester", "York", "Berks", "Lehigh",
	},
	"NY": {
		"Kings", "Queens", "New York", "Suffolk", "Bronx", "Nassau",
		"Westchester", "Erie", "Monroe", "Richmond",
	},
}

// knownRecordsURLs are hand-verified entry pages for county surplus lists,
// keyed "Name, ST".
var knownRecordsURLs = map[string]string{
	"Gwinnett, GA":   "https://www.gwinnettcounty.com/web/gwinnett/departments/taxcommissioner/taxsales",
	"Fulton, GA":     "https://www.fultoncountyga.gov/services/tax-and-revenue/real-property/tax-sales",
	"Harris, TX":     "https://www.hctax.net/Property/PropertyTax",
	"Dallas, TX":     "https://www.dallascounty.org/departments/tax/",
	"Maricopa, AZ":   "https://treasurer.maricopa.gov/",
	"Miami-Dade, FL": "https://www.miamidade.gov/global/service.page?Mduid_service=ser1489091962836786",
	"Broward, FL":    "https://www.broward.org/RecordsTaxesTreasury/Pages/Default.aspx",
}
