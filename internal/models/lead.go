package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Source type constants shared by scraper adapters and the importer.
const (
	SourceTypeCountySurplus  = "county_surplus"
	SourceTypeTrusteeSale    = "trustee_sale"
	SourceTypeAuction        = "auction"
	SourceTypeTaxLien        = "tax_lien"
	SourceTypeSheriffSale    = "sheriff_sale"
	SourceTypeHudForeclosure = "hud_foreclosure"
	SourceTypeREO            = "reo"
	SourceTypePreforeclosure = "preforeclosure"
)

// StagedLead is a candidate record written by a scraper adapter into the
// staging table. Only the importer mutates it afterwards (quality_score,
// validation_notes, imported, imported_at). Rows are never deleted; rejected
// rows stay behind as an audit trail.
type StagedLead struct {
	ID              string     `json:"id"`
	OwnerName       string     `json:"owner_name"`
	PropertyAddress string     `json:"property_address"`
	City            string     `json:"city,omitempty"`
	StateAbbr       string     `json:"state_abbr"`
	ZipCode         string     `json:"zip_code,omitempty"`
	County          string     `json:"county,omitempty"`
	CaseNumber      string     `json:"case_number,omitempty"`
	SaleDate        string     `json:"sale_date,omitempty"`
	SaleAmount      float64    `json:"sale_amount,omitempty"`
	OpeningBid      float64    `json:"opening_bid,omitempty"`
	ClosingBid      float64    `json:"closing_bid,omitempty"`
	OverageAmount   float64    `json:"overage_amount,omitempty"`
	PrimaryPhone    string     `json:"primary_phone,omitempty"`
	PrimaryEmail    string     `json:"primary_email,omitempty"`
	TrusteeName     string     `json:"trustee_name,omitempty"`
	Source          string     `json:"source"`
	SourceType      string     `json:"source_type"`
	SourceURL       string     `json:"source_url,omitempty"`
	BatchID         string     `json:"batch_id,omitempty"`
	Imported        bool       `json:"imported"`
	ImportedAt      *time.Time `json:"imported_at,omitempty"`
	QualityScore    *int       `json:"quality_score,omitempty"`
	ValidationNotes string     `json:"validation_notes,omitempty"`
	Lat             float64    `json:"lat,omitempty"`
	Lng             float64    `json:"lng,omitempty"`
	CreatedAt       time.Time  `json:"created_at,omitempty"`
}

// Lead is a validated production record. Enrichment fields (APN, assessed
// value, contact info) are written asynchronously by downstream scripts via
// partial PATCH and are never touched by the worker's upsert path.
type Lead struct {
	ID              string     `json:"id"`
	OwnerName       string     `json:"owner_name,omitempty"`
	PropertyAddress string     `json:"property_address"`
	City            string     `json:"city,omitempty"`
	StateAbbr       string     `json:"state_abbr"`
	ZipCode         string     `json:"zip_code,omitempty"`
	County          string     `json:"county,omitempty"`
	CaseNumber      string     `json:"case_number,omitempty"`
	SaleDate        string     `json:"sale_date,omitempty"`
	SaleAmount      float64    `json:"sale_amount,omitempty"`
	OpeningBid      float64    `json:"opening_bid,omitempty"`
	OverageAmount   float64    `json:"overage_amount,omitempty"`
	MortgageAmount  float64    `json:"mortgage_amount,omitempty"`
	EstimatedValue  float64    `json:"estimated_market_value,omitempty"`
	ForeclosureType string     `json:"foreclosure_type,omitempty"`
	LenderName      string     `json:"lender_name,omitempty"`
	TrusteeName     string     `json:"trustee_name,omitempty"`
	PrimaryPhone    string     `json:"primary_phone,omitempty"`
	PrimaryEmail    string     `json:"primary_email,omitempty"`
	APNNumber       string     `json:"apn_number,omitempty"`
	AssessedValue   float64    `json:"assessed_value,omitempty"`
	SquareFootage   int        `json:"square_footage,omitempty"`
	Lat             float64    `json:"lat,omitempty"`
	Lng             float64    `json:"lng,omitempty"`
	Source          string     `json:"source,omitempty"`
	SourceType      string     `json:"source_type,omitempty"`
	BatchID         string     `json:"batch_id,omitempty"`
	ScrapedLeadID   string     `json:"scraped_lead_id,omitempty"`
	ScrapedAt       *time.Time `json:"scraped_at,omitempty"`
	LastUpdated     *time.Time `json:"last_updated,omitempty"`
	CreatedAt       *time.Time `json:"created_at,omitempty"`
}

// ContentID derives the content-based lead identifier used for upserts.
// Two scrapes of the same property/owner/sale produce the same ID, which is
// what makes double-processing a job safe.
func ContentID(address, stateAbbr, owner, saleDate string) string {
	unique := fmt.Sprintf("%s|%s|%s|%s", address, stateAbbr, owner, saleDate)
	sum := sha256.Sum256([]byte(unique))
	return hex.EncodeToString(sum[:])[:16]
}

// EnsureID populates the content ID when a scraper adapter left it empty.
func (l *Lead) EnsureID() {
	if l.ID == "" {
		l.ID = ContentID(l.PropertyAddress, l.StateAbbr, l.OwnerName, l.SaleDate)
	}
}

// Validate checks the fields every production insert requires.
func (l *Lead) Validate() error {
	if l.PropertyAddress == "" {
		return fmt.Errorf("property address is required")
	}
	if l.StateAbbr == "" {
		return fmt.Errorf("state abbreviation is required")
	}
	if l.Source == "" {
		return fmt.Errorf("source is required")
	}
	return nil
}

// addressReplacements maps full street suffixes and directions to postal
// abbreviations. Order matters for none of these, so a map is fine.
var addressReplacements = map[string]string{
	" STREET":    " ST",
	" AVENUE":    " AVE",
	" BOULEVARD": " BLVD",
	" DRIVE":     " DR",
	" ROAD":      " RD",
	" LANE":      " LN",
	" COURT":     " CT",
	" CIRCLE":    " CIR",
	" PLACE":     " PL",
	" NORTH":     " N",
	" SOUTH":     " S",
	" EAST":      " E",
	" WEST":      " W",
}

// NormalizeAddress upper-cases an address and abbreviates common street
// suffixes so the (address, state) duplicate check compares like with like.
func NormalizeAddress(address string) string {
	if address == "" {
		return ""
	}
	address = strings.ToUpper(strings.TrimSpace(address))
	for full, abbr := range addressReplacements {
		address = strings.ReplaceAll(address, full, abbr)
	}
	return address
}

// ParseCurrency parses a scraped currency string ("$12,345.67") into a
// float. Returns 0 and false when the value is empty or unparseable.
func ParseCurrency(value string) (float64, bool) {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0, false
	}
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimSpace(cleaned)
	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return amount, true
}
