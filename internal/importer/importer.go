// Package importer promotes validated leads from the staging table to the
// production table: validate, score, deduplicate, map fields, insert, mark.
package importer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/repeto/internal/interfaces"
	"github.com/ternarybob/repeto/internal/models"
	"github.com/ternarybob/repeto/internal/validation"
)

// foreclosureTypes maps a staging source_type to the production
// foreclosure_type taxonomy. Unmapped types fall back to "other".
var foreclosureTypes = map[string]string{
	models.SourceTypeCountySurplus:  "tax-sale-overage",
	models.SourceTypeTrusteeSale:    "trustee-sale-overage",
	models.SourceTypeAuction:        "auction",
	models.SourceTypeTaxLien:        "tax-lien",
	models.SourceTypeSheriffSale:    "sheriff-sale",
	models.SourceTypeHudForeclosure: "hud-foreclosure",
	models.SourceTypeREO:            "bank-owned",
	models.SourceTypePreforeclosure: "pre-foreclosure",
}

// ForeclosureType resolves a source type to its production taxonomy value.
func ForeclosureType(sourceType string) string {
	if mapped, ok := foreclosureTypes[strings.ToLower(sourceType)]; ok {
		return mapped
	}
	return "other"
}

// Stats accumulates per-run counters. Every processed row lands in exactly
// one of imported, skipped-duplicate, rejected-validation, rejected-quality
// or errors.
type Stats struct {
	TotalProcessed     int
	Validated          int
	Imported           int
	SkippedDuplicate   int
	RejectedValidation int
	RejectedQuality    int
	Errors             int
}

// SuccessRate returns the imported share of processed rows as a percentage.
func (s Stats) SuccessRate() float64 {
	if s.TotalProcessed == 0 {
		return 0
	}
	return float64(s.Imported) / float64(s.TotalProcessed) * 100
}

// Importer runs the staging-to-production pipeline.
type Importer struct {
	store     interfaces.LeadStore
	validator *validation.Validator
	logger    arbor.ILogger
	batchSize int
	dryRun    bool
	now       func() time.Time
}

// Option configures an Importer.
type Option func(*Importer)

// WithBatchSize sets the staging fetch page size.
func WithBatchSize(size int) Option {
	return func(i *Importer) {
		if size > 0 {
			i.batchSize = size
		}
	}
}

// WithDryRun previews the run without writing to either table.
func WithDryRun(dryRun bool) Option {
	return func(i *Importer) {
		i.dryRun = dryRun
	}
}

// WithValidator substitutes a validator with non-default thresholds.
func WithValidator(v *validation.Validator) Option {
	return func(i *Importer) {
		i.validator = v
	}
}

// WithClock substitutes the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(i *Importer) {
		i.now = now
	}
}

// New creates an Importer.
func New(store interfaces.LeadStore, logger arbor.ILogger, opts ...Option) *Importer {
	imp := &Importer{
		store:     store,
		validator: validation.New(),
		logger:    logger,
		batchSize: 100,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(imp)
	}
	return imp
}

// Run processes every unimported staging row in batches and returns the run
// statistics. Per-row failures are counted, logged and skipped; only a
// failure to fetch a batch aborts the run.
func (i *Importer) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	start := i.now()

	mode := "production"
	if i.dryRun {
		mode = "dry run"
	}
	i.logger.Info().Str("mode", mode).Msg("Starting lead import")

	knownTotal, err := i.store.CountUnimported(ctx)
	if err != nil {
		i.logger.Error().Err(err).Msg("Failed to count unimported leads")
		knownTotal = 0
	} else {
		i.logger.Info().Int("total", knownTotal).Msg("Unimported leads in staging")
	}

	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		leads, err := i.store.FetchUnimported(ctx, i.batchSize, offset)
		if err != nil {
			return stats, fmt.Errorf("failed to fetch staging batch at offset %d: %w", offset, err)
		}
		if len(leads) == 0 {
			break
		}

		for idx := range leads {
			i.importLead(ctx, &leads[idx], &stats)
		}

		offset += i.batchSize
		i.logger.Info().
			Int("processed", stats.TotalProcessed).
			Int("known_total", knownTotal).
			Msg("Batch complete")

		// Guard against a pathological store that keeps returning rows.
		if offset > knownTotal+i.batchSize {
			break
		}
	}

	i.logger.Info().
		Str("duration", i.now().Sub(start).String()).
		Int("processed", stats.TotalProcessed).
		Int("validated", stats.Validated).
		Int("imported", stats.Imported).
		Int("duplicates", stats.SkippedDuplicate).
		Int("rejected_validation", stats.RejectedValidation).
		Int("rejected_quality", stats.RejectedQuality).
		Int("errors", stats.Errors).
		Msg("Import complete")

	return stats, nil
}

// importLead handles one staging row end to end: validate, dedupe, map,
// insert, mark. It updates stats and never returns an error; failures are
// recorded on the staging row instead.
func (i *Importer) importLead(ctx context.Context, lead *models.StagedLead, stats *Stats) {
	stats.TotalProcessed++

	result := i.validator.Validate(lead)

	if !result.Valid {
		if result.Score > 0 {
			stats.RejectedQuality++
			i.logger.Info().
				Str("owner", lead.OwnerName).
				Int("score", result.Score).
				Msg("Rejected (low quality)")
		} else {
			stats.RejectedValidation++
			i.logger.Warn().
				Str("owner", lead.OwnerName).
				Str("notes", result.Notes).
				Msg("Rejected (validation)")
		}
		i.recordOutcome(ctx, lead.ID, result.Score, result.Notes)
		return
	}

	stats.Validated++

	if i.isDuplicate(ctx, lead.PropertyAddress, lead.StateAbbr) {
		stats.SkippedDuplicate++
		i.logger.Info().
			Str("owner", lead.OwnerName).
			Str("address", lead.PropertyAddress).
			Msg("Skipped (duplicate)")
		i.recordOutcome(ctx, lead.ID, result.Score, result.Notes+"; Duplicate - already in production")
		return
	}

	row := i.mapFields(lead)

	i.logger.Info().
		Str("owner", lead.OwnerName).
		Str("address", lead.PropertyAddress).
		Int("score", result.Score).
		Msg("Importing")

	if i.dryRun {
		i.logger.Info().
			Str("owner", lead.OwnerName).
			Str("score_breakdown", strings.Join(result.Reasons, ", ")).
			Msg("[DRY RUN] Would import")
		stats.Imported++
		return
	}

	if err := i.store.InsertProductionLead(ctx, row); err != nil {
		stats.Errors++
		i.logger.Error().Err(err).Str("lead_id", lead.ID).Msg("Failed to import lead")
		i.recordOutcome(ctx, lead.ID, result.Score, result.Notes+"; Import error: "+err.Error())
		return
	}

	if err := i.store.UpdateStagedLead(ctx, lead.ID, map[string]interface{}{
		"imported":         true,
		"imported_at":      i.now().UTC().Format(time.RFC3339),
		"quality_score":    result.Score,
		"validation_notes": result.Notes + "; Imported successfully",
	}); err != nil {
		// The production row exists; the content-based duplicate check makes
		// reprocessing on the next run end up as a skip, not a double insert.
		i.logger.Error().Err(err).Str("lead_id", lead.ID).Msg("Failed to mark lead imported")
	}

	stats.Imported++
}

// isDuplicate checks the production table for the exact (address, state)
// pair. A failed check reports duplicate, trading a missed import for never
// double-inserting.
func (i *Importer) isDuplicate(ctx context.Context, address, stateAbbr string) bool {
	existing, err := i.store.FindProductionByAddress(ctx, address, stateAbbr, 1)
	if err != nil {
		i.logger.Error().Err(err).Str("address", address).Msg("Duplicate check failed")
		return true
	}
	return len(existing) > 0
}

// recordOutcome patches the staging row with the validation result. Skipped
// in dry runs.
func (i *Importer) recordOutcome(ctx context.Context, id string, score int, notes string) {
	if i.dryRun {
		return
	}
	err := i.store.UpdateStagedLead(ctx, id, map[string]interface{}{
		"quality_score":    score,
		"validation_notes": notes,
	})
	if err != nil {
		i.logger.Error().Err(err).Str("lead_id", id).Msg("Failed to record validation outcome")
	}
}

// mapFields builds the production row from a staging row. Zero-valued
// optional fields are left out so enrichment columns written by other
// processes are never clobbered.
func (i *Importer) mapFields(lead *models.StagedLead) map[string]interface{} {
	saleAmount := lead.ClosingBid
	if saleAmount == 0 && (lead.OverageAmount > 0 || lead.OpeningBid > 0) {
		saleAmount = lead.OverageAmount + lead.OpeningBid
	}

	estimatedValue := lead.OverageAmount
	if estimatedValue > 0 && lead.OpeningBid > 0 {
		estimatedValue += lead.OpeningBid
	}

	row := map[string]interface{}{
		"owner_name":       lead.OwnerName,
		"property_address": lead.PropertyAddress,
		"state_abbr":       lead.StateAbbr,
		"foreclosure_type": ForeclosureType(lead.SourceType),
		"scraped_lead_id":  lead.ID,
		"created_at":       i.now().UTC().Format(time.RFC3339),
	}

	setIfPresent(row, "city", lead.City)
	setIfPresent(row, "zip_code", lead.ZipCode)
	setIfPresent(row, "county", lead.County)
	setIfPresent(row, "case_number", lead.CaseNumber)
	setIfPresent(row, "sale_date", lead.SaleDate)
	setIfPresent(row, "source", lead.SourceURL)
	setIfPresent(row, "primary_phone", lead.PrimaryPhone)
	setIfPresent(row, "primary_email", lead.PrimaryEmail)
	setIfPresent(row, "trustee_name", lead.TrusteeName)

	if saleAmount > 0 {
		row["sale_amount"] = saleAmount
	}
	if estimatedValue > 0 {
		row["estimated_market_value"] = estimatedValue
	}
	if lead.OpeningBid > 0 {
		row["mortgage_amount"] = lead.OpeningBid
	}
	if lead.Lat != 0 || lead.Lng != 0 {
		row["lat"] = lead.Lat
		row["lng"] = lead.Lng
	}

	return row
}

func setIfPresent(row map[string]interface{}, key, value string) {
	if value != "" {
		row[key] = value
	}
}
