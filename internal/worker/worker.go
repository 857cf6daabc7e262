// Package worker runs the scrape job poll loop: claim a job, execute its
// scraper adapter, persist the leads, settle the job and the county's health.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/repeto/internal/common"
	"github.com/ternarybob/repeto/internal/importer"
	"github.com/ternarybob/repeto/internal/interfaces"
	"github.com/ternarybob/repeto/internal/models"
	"github.com/ternarybob/repeto/internal/scrapers"
)

// Worker claims and executes scrape jobs. Multiple workers can run against
// the same queue; the store-side claim procedure guarantees each job goes to
// exactly one of them.
type Worker struct {
	jobs     interfaces.JobStore
	leads    interfaces.LeadStore
	counties interfaces.CountyStore
	seen     interfaces.SeenCache
	config   common.WorkerConfig
	scraper  common.ScraperConfig
	logger   arbor.ILogger
	now      func() time.Time

	// newScraper is swappable for tests.
	newScraper func(name string, target scrapers.Target) (scrapers.Scraper, error)
}

// New creates a Worker. seen may be nil to disable the local cache.
func New(
	jobs interfaces.JobStore,
	leads interfaces.LeadStore,
	counties interfaces.CountyStore,
	seen interfaces.SeenCache,
	config common.WorkerConfig,
	scraperConfig common.ScraperConfig,
	logger arbor.ILogger,
) *Worker {
	w := &Worker{
		jobs:     jobs,
		leads:    leads,
		counties: counties,
		seen:     seen,
		config:   config,
		scraper:  scraperConfig,
		logger:   logger,
		now:      time.Now,
	}
	w.newScraper = func(name string, target scrapers.Target) (scrapers.Scraper, error) {
		return scrapers.New(name, target, w.scraper, w.logger)
	}
	return w
}

// Run is the worker loop. It returns when ctx is cancelled; an in-flight job
// finishes under its own timeout before the loop exits.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Str("worker_id", w.config.ID).Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Str("worker_id", w.config.ID).Msg("Worker stopped")
			return ctx.Err()
		default:
		}

		jobID, err := w.jobs.ClaimNextJob(ctx, w.config.ID)
		if err != nil {
			w.logger.Error().Err(err).Msg("Failed to claim job")
			w.sleep(ctx, w.config.ErrorBackoff)
			continue
		}

		if jobID == "" {
			w.sleep(ctx, w.config.PollInterval)
			continue
		}

		w.processJob(ctx, jobID)
	}
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

// processJob executes one claimed job end to end. Errors and adapter panics
// route through the failure path; they never escape to the loop.
func (w *Worker) processJob(ctx context.Context, jobID string) {
	w.logger.Info().Str("job_id", jobID).Msg("Processing job")

	job, err := w.jobs.GetJob(ctx, jobID)
	if err != nil {
		w.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to load claimed job")
		w.failJob(ctx, &models.ScrapeJob{ID: jobID, MaxAttempts: w.config.MaxAttempts}, err)
		return
	}

	result, err := w.runScraper(ctx, job)
	if err != nil {
		w.logger.Error().Err(err).Str("job_id", jobID).Msg("Job failed")
		w.failJob(ctx, job, err)
		return
	}

	newCount, updatedCount := w.persistLeads(ctx, job, result.Leads)
	w.completeJob(ctx, job, result, newCount, updatedCount)
}

// runScraper resolves the job's adapter and executes it under the per-job
// timeout, converting a panic into an error.
func (w *Worker) runScraper(ctx context.Context, job *models.ScrapeJob) (result *scrapers.Result, err error) {
	name := job.ScraperName
	if name == "" || !scrapers.Registered(name) {
		name = w.config.DefaultSource
	}

	target := scrapers.Target{
		StateAbbr:  job.StateAbbr,
		CountyID:   job.CountyID,
		CountyName: job.CountyName,
		BatchID:    common.NewBatchID(),
	}

	// County jobs need the county's records URL as the entry page.
	if job.CountyID != "" {
		county, cerr := w.counties.GetCounty(ctx, job.CountyID)
		if cerr != nil {
			return nil, fmt.Errorf("failed to load county %s: %w", job.CountyID, cerr)
		}
		target.CountyName = county.Name
		target.SourceURL = county.RecordsURL
		if target.StateAbbr == "" {
			target.StateAbbr = county.StateAbbr
		}
	}

	scraper, err := w.newScraper(name, target)
	if err != nil {
		return nil, err
	}

	w.logger.Info().
		Str("job_id", job.ID).
		Str("scraper", name).
		Str("state", target.StateAbbr).
		Str("county", target.CountyName).
		Msg("Executing scraper")

	jobCtx := ctx
	if w.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, w.config.JobTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("scraper panic: %v", r)
		}
	}()

	return scraper.Scrape(jobCtx)
}

// leadFingerprint covers exactly the fields the upsert path mutates, so an
// unchanged lead on a later scrape is a cache hit.
func leadFingerprint(lead *models.StagedLead) string {
	return fmt.Sprintf("%s|%.2f|%s", lead.SaleDate, lead.SaleAmount, lead.Source)
}

// persistLeads upserts scraped leads into the production table by content
// ID. Existing rows get only the mutable fields patched; enrichment columns
// written by other processes are never touched. Per-lead failures are logged
// and skipped.
func (w *Worker) persistLeads(ctx context.Context, job *models.ScrapeJob, leads []models.StagedLead) (newCount, updatedCount int) {
	if len(leads) == 0 {
		return 0, 0
	}

	w.logger.Info().Str("job_id", job.ID).Int("leads", len(leads)).Msg("Saving leads")

	for i := range leads {
		lead := &leads[i]
		if lead.ID == "" {
			lead.ID = models.ContentID(lead.PropertyAddress, lead.StateAbbr, lead.OwnerName, lead.SaleDate)
		}

		fingerprint := leadFingerprint(lead)
		if w.seen != nil && w.seen.Seen(lead.ID, fingerprint) {
			continue
		}

		existing, err := w.leads.GetProductionLead(ctx, lead.ID)
		if err != nil {
			w.logger.Warn().Err(err).Str("lead_id", lead.ID).Msg("Failed to look up lead")
			continue
		}

		if existing != nil {
			if err := w.leads.UpdateProductionLead(ctx, lead.ID, w.mutableFields(lead)); err != nil {
				w.logger.Warn().Err(err).Str("lead_id", lead.ID).Msg("Failed to update lead")
				continue
			}
			updatedCount++
		} else {
			if err := w.leads.InsertProductionLead(ctx, w.insertRow(lead)); err != nil {
				w.logger.Warn().Err(err).Str("lead_id", lead.ID).Msg("Failed to insert lead")
				continue
			}
			newCount++
		}

		if w.seen != nil {
			if err := w.seen.Record(lead.ID, fingerprint); err != nil {
				w.logger.Warn().Err(err).Str("lead_id", lead.ID).Msg("Failed to record seen lead")
			}
		}
	}

	w.logger.Info().
		Str("job_id", job.ID).
		Int("new", newCount).
		Int("updated", updatedCount).
		Msg("Leads saved")

	return newCount, updatedCount
}

// mutableFields is the partial PATCH for an existing row. Empty scrape
// values are left out so they keep the stored value.
func (w *Worker) mutableFields(lead *models.StagedLead) map[string]interface{} {
	fields := map[string]interface{}{
		"source":       lead.Source,
		"batch_id":     lead.BatchID,
		"last_updated": w.now().UTC().Format(time.RFC3339),
	}
	if lead.SaleDate != "" {
		fields["sale_date"] = lead.SaleDate
	}
	if lead.SaleAmount > 0 {
		fields["sale_amount"] = lead.SaleAmount
	}
	return fields
}

func (w *Worker) insertRow(lead *models.StagedLead) map[string]interface{} {
	row := map[string]interface{}{
		"id":               lead.ID,
		"owner_name":       lead.OwnerName,
		"property_address": lead.PropertyAddress,
		"state_abbr":       lead.StateAbbr,
		"foreclosure_type": importer.ForeclosureType(lead.SourceType),
		"source":           lead.Source,
		"source_type":      lead.SourceType,
		"batch_id":         lead.BatchID,
		"scraped_at":       w.now().UTC().Format(time.RFC3339),
	}
	if lead.City != "" {
		row["city"] = lead.City
	}
	if lead.ZipCode != "" {
		row["zip_code"] = lead.ZipCode
	}
	if lead.County != "" {
		row["county"] = lead.County
	}
	if lead.CaseNumber != "" {
		row["case_number"] = lead.CaseNumber
	}
	if lead.SaleDate != "" {
		row["sale_date"] = lead.SaleDate
	}
	if lead.SaleAmount > 0 {
		row["sale_amount"] = lead.SaleAmount
	}
	if lead.OverageAmount > 0 {
		row["overage_amount"] = lead.OverageAmount
	}
	if lead.TrusteeName != "" {
		row["trustee_name"] = lead.TrusteeName
	}
	return row
}

// completeJob stamps the result counts. County health is refreshed only when
// the run found leads; an empty result neither rewards nor punishes.
func (w *Worker) completeJob(ctx context.Context, job *models.ScrapeJob, result *scrapers.Result, newCount, updatedCount int) {
	now := w.now().UTC().Format(time.RFC3339)

	err := w.jobs.UpdateJob(ctx, job.ID, map[string]interface{}{
		"status":        string(models.JobStatusCompleted),
		"completed_at":  now,
		"leads_found":   result.TotalFound,
		"leads_new":     newCount,
		"leads_updated": updatedCount,
	})
	if err != nil {
		w.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to mark job completed")
	}

	if result.TotalFound > 0 && job.CountyID != "" {
		county, err := w.counties.GetCounty(ctx, job.CountyID)
		if err != nil {
			w.logger.Error().Err(err).Str("county_id", job.CountyID).Msg("Failed to load county for health update")
			return
		}
		err = w.counties.UpdateCounty(ctx, job.CountyID, map[string]interface{}{
			"last_scraped_at":        now,
			"last_successful_scrape": now,
			"consecutive_failures":   0,
			"total_leads_found":      county.TotalLeadsFound + newCount,
			"leads_this_month":       county.LeadsThisMonth + newCount,
		})
		if err != nil {
			w.logger.Error().Err(err).Str("county_id", job.CountyID).Msg("Failed to update county health")
		}
	}

	w.logger.Info().
		Str("job_id", job.ID).
		Int("found", result.TotalFound).
		Int("new", newCount).
		Int("updated", updatedCount).
		Msg("Job completed")
}

// failJob either requeues the job with exponential backoff or marks it
// terminally failed and charges the county's failure count.
func (w *Worker) failJob(ctx context.Context, job *models.ScrapeJob, jobErr error) {
	now := w.now().UTC().Format(time.RFC3339)

	if job.CanRetry() {
		delay := models.RetryDelay(job.AttemptNumber)
		err := w.jobs.UpdateJob(ctx, job.ID, map[string]interface{}{
			"status":         string(models.JobStatusPending),
			"worker_id":      nil,
			"attempt_number": job.AttemptNumber + 1,
			"next_retry_at":  w.now().UTC().Add(delay).Format(time.RFC3339),
			"error_message":  jobErr.Error(),
		})
		if err != nil {
			w.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to requeue job")
			return
		}
		w.logger.Info().
			Str("job_id", job.ID).
			Str("retry_delay", delay.String()).
			Msg("Job scheduled for retry")
		return
	}

	err := w.jobs.UpdateJob(ctx, job.ID, map[string]interface{}{
		"status":        string(models.JobStatusFailed),
		"completed_at":  now,
		"error_message": jobErr.Error(),
	})
	if err != nil {
		w.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to mark job failed")
	}

	if job.CountyID != "" {
		county, err := w.counties.GetCounty(ctx, job.CountyID)
		if err != nil {
			w.logger.Error().Err(err).Str("county_id", job.CountyID).Msg("Failed to load county for failure update")
			return
		}
		err = w.counties.UpdateCounty(ctx, job.CountyID, map[string]interface{}{
			"consecutive_failures": county.ConsecutiveFailures + 1,
			"last_scraped_at":      now,
		})
		if err != nil {
			w.logger.Error().Err(err).Str("county_id", job.CountyID).Msg("Failed to update county failures")
		}
	}
}
