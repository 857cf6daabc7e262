package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/repeto/internal/models"
)

func TestValidate_RejectsMissingOwnerName(t *testing.T) {
	v := New()

	result := v.Validate(&models.StagedLead{
		PropertyAddress: "123 Main St",
		StateAbbr:       "GA",
		OverageAmount:   50000,
		CaseNumber:      "2024-CV-1234",
	})

	assert.False(t, result.Valid)
	assert.Equal(t, 0, result.Score, "structural rejection must not score")
	assert.Equal(t, "Invalid or missing owner name", result.Notes)
}

func TestValidate_RejectsPlaceholderOwnerNames(t *testing.T) {
	v := New()

	for _, name := range []string{"unknown", "N/A", "na", "None", "NULL", "  Unknown  "} {
		result := v.Validate(&models.StagedLead{
			OwnerName:       name,
			PropertyAddress: "123 Main St",
			StateAbbr:       "GA",
		})
		assert.False(t, result.Valid, "placeholder %q must be rejected", name)
		assert.Equal(t, 0, result.Score)
	}
}

func TestValidate_RejectsShortAddress(t *testing.T) {
	v := New()

	result := v.Validate(&models.StagedLead{
		OwnerName:       "John Smith",
		PropertyAddress: "123",
		StateAbbr:       "GA",
	})

	assert.False(t, result.Valid)
	assert.Equal(t, "Invalid or missing property address", result.Notes)
}

func TestValidate_RejectsInvalidState(t *testing.T) {
	v := New()

	result := v.Validate(&models.StagedLead{
		OwnerName:       "John Smith",
		PropertyAddress: "123 Main St",
		StateAbbr:       "XX",
	})

	assert.False(t, result.Valid)
	assert.Equal(t, "Invalid or missing state code", result.Notes)
}

func TestValidate_AcceptsLowercaseState(t *testing.T) {
	v := New()

	result := v.Validate(&models.StagedLead{
		OwnerName:       "John Smith",
		PropertyAddress: "123 Main St",
		StateAbbr:       "ga",
		OverageAmount:   1000,
		CaseNumber:      "24-CV-1",
	})

	assert.True(t, result.Valid)
}

func TestValidate_RejectsBelowQualityThreshold(t *testing.T) {
	v := New()

	// Only a sale date: 10 points, under the default threshold of 30.
	result := v.Validate(&models.StagedLead{
		OwnerName:       "John Smith",
		PropertyAddress: "123 Main St",
		StateAbbr:       "GA",
		SaleDate:        "2024-06-01",
	})

	assert.False(t, result.Valid)
	assert.Equal(t, 10, result.Score)
	assert.Equal(t, "Quality score too low (10 < 30)", result.Notes)
}

func TestScore_SumsPresentSignals(t *testing.T) {
	v := New()

	// Overage (20) + case number (20) + city/zip (15) = 55.
	score, reasons := v.Score(&models.StagedLead{
		OwnerName:       "Jane Doe",
		PropertyAddress: "456 Oak Ave",
		City:            "Atlanta",
		StateAbbr:       "GA",
		ZipCode:         "30303",
		OverageAmount:   12500.50,
		CaseNumber:      "2024-CV-5678",
	})

	assert.Equal(t, 55, score)
	assert.Len(t, reasons, 3)
	assert.Contains(t, reasons, "+20 has case number")
	assert.Contains(t, reasons, "+15 has complete location")
}

func TestScore_MaximumLead(t *testing.T) {
	v := New()

	score, reasons := v.Score(&models.StagedLead{
		OwnerName:       "Jane Doe",
		PropertyAddress: "456 Oak Ave",
		City:            "Atlanta",
		StateAbbr:       "GA",
		ZipCode:         "30303",
		County:          "Fulton",
		OverageAmount:   12500,
		CaseNumber:      "2024-CV-5678",
		SaleDate:        "2024-06-01",
		PrimaryPhone:    "404-555-0100",
		PrimaryEmail:    "jane@example.com",
		SourceType:      models.SourceTypeCountySurplus,
	})

	assert.Equal(t, 100, score)
	assert.Contains(t, reasons, "+15 has contact info (phone, email)")
	assert.Contains(t, reasons, "+10 high-quality source (county_surplus)")
}

func TestScore_CityAloneDoesNotCountAsLocation(t *testing.T) {
	v := New()

	score, _ := v.Score(&models.StagedLead{City: "Atlanta"})
	assert.Equal(t, 0, score)
}

func TestScore_ContactInfoCountsOnce(t *testing.T) {
	v := New()

	phoneOnly, _ := v.Score(&models.StagedLead{PrimaryPhone: "404-555-0100"})
	both, _ := v.Score(&models.StagedLead{PrimaryPhone: "404-555-0100", PrimaryEmail: "a@b.com"})

	assert.Equal(t, ScoreContactInfo, phoneOnly)
	assert.Equal(t, ScoreContactInfo, both)
}

func TestScore_HighQualitySourceTypes(t *testing.T) {
	v := New()

	for sourceType, want := range map[string]int{
		models.SourceTypeCountySurplus: ScoreQualitySource,
		models.SourceTypeTrusteeSale:   ScoreQualitySource,
		"TRUSTEE_SALE":                 ScoreQualitySource,
		models.SourceTypeAuction:       0,
		"":                             0,
	} {
		score, _ := v.Score(&models.StagedLead{SourceType: sourceType})
		assert.Equal(t, want, score, "source type %q", sourceType)
	}
}

func TestScore_IsDeterministic(t *testing.T) {
	v := New()
	lead := &models.StagedLead{
		OwnerName:       "Jane Doe",
		PropertyAddress: "456 Oak Ave",
		StateAbbr:       "GA",
		OverageAmount:   12500,
		CaseNumber:      "2024-CV-5678",
	}

	first, _ := v.Score(lead)
	second, _ := v.Score(lead)
	assert.Equal(t, first, second)
}

func TestValidate_CustomThresholds(t *testing.T) {
	v := New(WithMinScore(10), WithMinAddressLength(3))

	result := v.Validate(&models.StagedLead{
		OwnerName:       "John Smith",
		PropertyAddress: "1 Elm",
		StateAbbr:       "GA",
		SaleDate:        "2024-06-01",
	})

	assert.True(t, result.Valid)
	assert.Equal(t, 10, result.Score)
}
