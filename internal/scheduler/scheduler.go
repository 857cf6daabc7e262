// Package scheduler runs the periodic sweeps that keep the scrape job queue
// fed: due counties, nationwide sources, and the stale-running-job reaper.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/repeto/internal/common"
	"github.com/ternarybob/repeto/internal/interfaces"
	"github.com/ternarybob/repeto/internal/models"
	"github.com/ternarybob/repeto/internal/scrapers"
)

const (
	defaultPriority    = 5
	defaultMaxAttempts = 3

	// defaultCountyInterval is used when a county row carries no cadence.
	defaultCountyInterval = 24 * time.Hour
)

// Scheduler owns the cron entries. Sweeps share a mutex so a slow store
// never lets two sweeps interleave.
type Scheduler struct {
	jobs     interfaces.JobStore
	counties interfaces.CountyStore
	config   common.SchedulerConfig
	logger   arbor.ILogger
	cron     *cron.Cron
	mu       sync.Mutex
	now      func() time.Time
}

// New creates a Scheduler.
func New(jobs interfaces.JobStore, counties interfaces.CountyStore, config common.SchedulerConfig, logger arbor.ILogger) *Scheduler {
	return &Scheduler{
		jobs:     jobs,
		counties: counties,
		config:   config,
		logger:   logger,
		cron:     cron.New(),
		now:      time.Now,
	}
}

// Start registers the sweeps and starts the cron runner.
func (s *Scheduler) Start() error {
	entries := []struct {
		name     string
		schedule string
		sweep    func(context.Context) error
	}{
		{"due counties", s.config.CountySchedule, s.SweepDueCounties},
		{"nationwide sources", s.config.NationwideSchedule, s.SweepNationwideSources},
		{"stale jobs", s.config.ReaperSchedule, s.ReapStaleJobs},
	}

	for _, entry := range entries {
		entry := entry
		if entry.schedule == "" {
			s.logger.Warn().Str("sweep", entry.name).Msg("Sweep disabled (no schedule)")
			continue
		}
		_, err := s.cron.AddFunc(entry.schedule, func() {
			if err := entry.sweep(context.Background()); err != nil {
				s.logger.Error().Err(err).Str("sweep", entry.name).Msg("Sweep failed")
			}
		})
		if err != nil {
			return fmt.Errorf("failed to register %s sweep: %w", entry.name, err)
		}
		s.logger.Info().Str("sweep", entry.name).Str("schedule", entry.schedule).Msg("Sweep registered")
	}

	s.cron.Start()
	s.logger.Info().Msg("Scheduler started")
	return nil
}

// Stop halts the cron runner and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Scheduler stopped")
}

// SweepDueCounties enqueues one job per due county. Counties with a job
// already pending or running are skipped; scheduling advances the county's
// next_scheduled_scrape so a stuck queue cannot pile up duplicates.
func (s *Scheduler) SweepDueCounties(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()

	counties, err := s.counties.ListDueCounties(ctx, now, s.config.CountyBatch)
	if err != nil {
		return err
	}

	scheduled := 0
	for i := range counties {
		county := &counties[i]

		active, err := s.jobs.HasActiveJobForCounty(ctx, county.ID)
		if err != nil {
			s.logger.Warn().Err(err).Str("county", county.Name).Msg("Active-job check failed")
			continue
		}
		if active {
			continue
		}

		scraperName := county.ScraperName
		if scraperName == "" {
			scraperName = scrapers.CountySurplusScraperName
		}

		job := &models.ScrapeJob{
			ID:          common.NewJobID(),
			CountyID:    county.ID,
			CountyName:  county.Name,
			StateAbbr:   county.StateAbbr,
			ScraperName: scraperName,
			JobType:     models.JobTypeScheduled,
			Priority:    defaultPriority,
			Status:      models.JobStatusPending,
			MaxAttempts: defaultMaxAttempts,
			CreatedAt:   now,
		}

		if err := s.jobs.CreateJob(ctx, job); err != nil {
			s.logger.Warn().Err(err).Str("county", county.Name).Msg("Failed to enqueue county job")
			continue
		}

		interval := defaultCountyInterval
		if county.ScrapeIntervalHours > 0 {
			interval = time.Duration(county.ScrapeIntervalHours) * time.Hour
		}
		err = s.counties.UpdateCounty(ctx, county.ID, map[string]interface{}{
			"next_scheduled_scrape": now.Add(interval).Format(time.RFC3339),
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("county", county.Name).Msg("Failed to advance county schedule")
		}

		scheduled++
		s.logger.Debug().
			Str("county", county.Name).
			Str("state", county.StateAbbr).
			Str("job_id", job.ID).
			Msg("Scheduled county scrape")
	}

	if scheduled > 0 {
		s.logger.Info().Int("scheduled", scheduled).Int("due", len(counties)).Msg("County sweep complete")
	}
	return nil
}

// SweepNationwideSources fans each active nationwide source out into
// per-state jobs, bounded by states_per_source. A source with a pending or
// running job inside the cooldown window is skipped entirely.
func (s *Scheduler) SweepNationwideSources(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()

	sources, err := s.counties.ListNationwideSources(ctx)
	if err != nil {
		return err
	}

	cooldown := s.config.SourceCooldown
	if cooldown <= 0 {
		cooldown = 24 * time.Hour
	}

	for i := range sources {
		source := &sources[i]

		recent, err := s.jobs.HasRecentJobForSource(ctx, source.ID, now.Add(-cooldown))
		if err != nil {
			s.logger.Warn().Err(err).Str("source", source.Name).Msg("Cooldown check failed")
			continue
		}
		if recent {
			continue
		}

		states := models.StateCodes
		if s.config.StatesPerSource > 0 && s.config.StatesPerSource < len(states) {
			states = states[:s.config.StatesPerSource]
		}

		created := 0
		for _, stateAbbr := range states {
			job := &models.ScrapeJob{
				ID:          common.NewJobID(),
				SourceID:    source.ID,
				StateAbbr:   stateAbbr,
				ScraperName: source.ScraperName,
				JobType:     models.JobTypeScheduled,
				Priority:    defaultPriority,
				Status:      models.JobStatusPending,
				MaxAttempts: defaultMaxAttempts,
				CreatedAt:   now,
			}
			if err := s.jobs.CreateJob(ctx, job); err != nil {
				s.logger.Warn().Err(err).Str("source", source.Name).Str("state", stateAbbr).Msg("Failed to enqueue source job")
				continue
			}
			created++
		}

		s.logger.Info().
			Str("source", source.Name).
			Int("jobs", created).
			Msg("Scheduled nationwide source")
	}

	return nil
}

// ReapStaleJobs routes running jobs whose worker went quiet through the
// normal failure path: requeue with backoff while attempts remain, otherwise
// terminal failure.
func (s *Scheduler) ReapStaleJobs(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staleAfter := s.config.StaleAfter
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}

	now := s.now().UTC()
	cutoff := now.Add(-staleAfter)

	jobs, err := s.jobs.ListStaleRunning(ctx, cutoff)
	if err != nil {
		return err
	}

	for i := range jobs {
		job := &jobs[i]
		lastSeen := "unknown"
		if job.UpdatedAt != nil {
			lastSeen = job.UpdatedAt.UTC().Format(time.RFC3339)
		}
		reason := fmt.Sprintf("stale: no progress since %s (worker %s)", lastSeen, job.WorkerID)

		if job.CanRetry() {
			delay := models.RetryDelay(job.AttemptNumber)
			err := s.jobs.UpdateJob(ctx, job.ID, map[string]interface{}{
				"status":         string(models.JobStatusPending),
				"worker_id":      nil,
				"attempt_number": job.AttemptNumber + 1,
				"next_retry_at":  now.Add(delay).Format(time.RFC3339),
				"error_message":  reason,
			})
			if err != nil {
				s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to requeue stale job")
				continue
			}
			s.logger.Info().Str("job_id", job.ID).Str("retry_delay", delay.String()).Msg("Stale job requeued")
			continue
		}

		err := s.jobs.UpdateJob(ctx, job.ID, map[string]interface{}{
			"status":        string(models.JobStatusFailed),
			"completed_at":  now.Format(time.RFC3339),
			"error_message": reason,
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to fail stale job")
			continue
		}

		if job.CountyID != "" {
			county, err := s.counties.GetCounty(ctx, job.CountyID)
			if err != nil {
				s.logger.Warn().Err(err).Str("county_id", job.CountyID).Msg("Failed to load county for stale-job failure")
				continue
			}
			err = s.counties.UpdateCounty(ctx, job.CountyID, map[string]interface{}{
				"consecutive_failures": county.ConsecutiveFailures + 1,
				"last_scraped_at":      now.Format(time.RFC3339),
			})
			if err != nil {
				s.logger.Warn().Err(err).Str("county_id", job.CountyID).Msg("Failed to update county failures")
			}
		}

		s.logger.Warn().Str("job_id", job.ID).Msg("Stale job failed terminally")
	}

	if len(jobs) > 0 {
		s.logger.Info().Int("reaped", len(jobs)).Msg("Stale job sweep complete")
	}
	return nil
}
