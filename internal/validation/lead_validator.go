// Package validation holds the structural checks and quality scoring applied
// to staged leads before promotion to production.
package validation

import (
	"fmt"
	"strings"

	"github.com/ternarybob/repeto/internal/models"
)

// Scoring weights. A lead must reach MinQualityScore to be importable, so a
// bare name-and-address row (score 0) never promotes.
const (
	ScoreOverage       = 20
	ScoreCaseNumber    = 20
	ScoreContactInfo   = 15
	ScoreLocation      = 15
	ScoreSaleDate      = 10
	ScoreCounty        = 10
	ScoreQualitySource = 10

	MinQualityScore  = 30
	MinAddressLength = 5
)

// placeholderNames are owner values that scrapers emit when a site hides the
// real owner. They fail structural validation outright.
var placeholderNames = map[string]struct{}{
	"unknown": {},
	"n/a":     {},
	"na":      {},
	"none":    {},
	"null":    {},
}

// highQualitySources get a score bonus: overage-bearing record types where
// the surplus claim is most actionable.
var highQualitySources = map[string]struct{}{
	models.SourceTypeCountySurplus: {},
	models.SourceTypeTrusteeSale:   {},
}

// Result is the full validation outcome for one staged lead.
type Result struct {
	Valid   bool
	Notes   string
	Score   int
	Reasons []string
}

// Validator applies structural checks then quality scoring. Thresholds are
// configurable so a dry run can preview a stricter cutoff.
type Validator struct {
	minScore      int
	minAddressLen int
}

// Option configures a Validator.
type Option func(*Validator)

// WithMinScore overrides the minimum quality score.
func WithMinScore(score int) Option {
	return func(v *Validator) {
		v.minScore = score
	}
}

// WithMinAddressLength overrides the minimum address length.
func WithMinAddressLength(length int) Option {
	return func(v *Validator) {
		v.minAddressLen = length
	}
}

// New creates a Validator with the default thresholds.
func New(opts ...Option) *Validator {
	v := &Validator{
		minScore:      MinQualityScore,
		minAddressLen: MinAddressLength,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ValidOwnerName reports whether the owner name is present and not a
// placeholder.
func ValidOwnerName(name string) bool {
	cleaned := strings.ToLower(strings.TrimSpace(name))
	if cleaned == "" {
		return false
	}
	_, placeholder := placeholderNames[cleaned]
	return !placeholder
}

// ValidAddress reports whether the address meets the minimum length after
// trimming.
func (v *Validator) ValidAddress(address string) bool {
	return len(strings.TrimSpace(address)) >= v.minAddressLen
}

// Score computes the quality score with an itemized reason per component.
// Scoring is pure: it never mutates the lead and the same input always
// produces the same score.
func (v *Validator) Score(lead *models.StagedLead) (int, []string) {
	score := 0
	var reasons []string

	if lead.OverageAmount > 0 {
		score += ScoreOverage
		reasons = append(reasons, fmt.Sprintf("+%d has overage amount ($%.2f)", ScoreOverage, lead.OverageAmount))
	}

	if lead.CaseNumber != "" {
		score += ScoreCaseNumber
		reasons = append(reasons, fmt.Sprintf("+%d has case number", ScoreCaseNumber))
	}

	hasPhone := lead.PrimaryPhone != ""
	hasEmail := lead.PrimaryEmail != ""
	if hasPhone || hasEmail {
		score += ScoreContactInfo
		var kinds []string
		if hasPhone {
			kinds = append(kinds, "phone")
		}
		if hasEmail {
			kinds = append(kinds, "email")
		}
		reasons = append(reasons, fmt.Sprintf("+%d has contact info (%s)", ScoreContactInfo, strings.Join(kinds, ", ")))
	}

	if lead.City != "" && lead.ZipCode != "" {
		score += ScoreLocation
		reasons = append(reasons, fmt.Sprintf("+%d has complete location", ScoreLocation))
	}

	if lead.SaleDate != "" {
		score += ScoreSaleDate
		reasons = append(reasons, fmt.Sprintf("+%d has sale date", ScoreSaleDate))
	}

	if lead.County != "" {
		score += ScoreCounty
		reasons = append(reasons, fmt.Sprintf("+%d has county", ScoreCounty))
	}

	sourceType := strings.ToLower(lead.SourceType)
	if _, ok := highQualitySources[sourceType]; ok {
		score += ScoreQualitySource
		reasons = append(reasons, fmt.Sprintf("+%d high-quality source (%s)", ScoreQualitySource, sourceType))
	}

	return score, reasons
}

// Validate runs the structural checks, then scoring against the minimum
// threshold. Structural failures return score 0; quality failures return the
// computed score so the staging row records how close the lead came.
func (v *Validator) Validate(lead *models.StagedLead) Result {
	if !ValidOwnerName(lead.OwnerName) {
		return Result{Notes: "Invalid or missing owner name"}
	}

	if !v.ValidAddress(lead.PropertyAddress) {
		return Result{Notes: "Invalid or missing property address"}
	}

	if !models.IsValidState(strings.ToUpper(lead.StateAbbr)) {
		return Result{Notes: "Invalid or missing state code"}
	}

	score, reasons := v.Score(lead)

	if score < v.minScore {
		return Result{
			Notes:   fmt.Sprintf("Quality score too low (%d < %d)", score, v.minScore),
			Score:   score,
			Reasons: reasons,
		}
	}

	return Result{
		Valid:   true,
		Notes:   fmt.Sprintf("Valid lead with quality score %d", score),
		Score:   score,
		Reasons: reasons,
	}
}
