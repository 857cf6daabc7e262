package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/repeto/internal/common"
	"github.com/ternarybob/repeto/internal/models"
	"github.com/ternarybob/repeto/internal/scrapers"
)

type fakeJobStore struct {
	created   []*models.ScrapeJob
	updates   map[string][]map[string]interface{}
	activeFor map[string]bool
	recentFor map[string]bool
	stale     []models.ScrapeJob
	sinceSeen map[string]time.Time
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{
		updates:   map[string][]map[string]interface{}{},
		activeFor: map[string]bool{},
		recentFor: map[string]bool{},
		sinceSeen: map[string]time.Time{},
	}
}

func (s *fakeJobStore) ClaimNextJob(ctx context.Context, workerID string) (string, error) {
	return "", nil
}

func (s *fakeJobStore) GetJob(ctx context.Context, id string) (*models.ScrapeJob, error) {
	return nil, fmt.Errorf("job not found: %s", id)
}

func (s *fakeJobStore) HasActiveJobForCounty(ctx context.Context, countyID string) (bool, error) {
	return s.activeFor[countyID], nil
}

func (s *fakeJobStore) HasRecentJobForSource(ctx context.Context, sourceID string, since time.Time) (bool, error) {
	s.sinceSeen[sourceID] = since
	return s.recentFor[sourceID], nil
}

func (s *fakeJobStore) CreateJob(ctx context.Context, job *models.ScrapeJob) error {
	s.created = append(s.created, job)
	return nil
}

func (s *fakeJobStore) UpdateJob(ctx context.Context, id string, fields map[string]interface{}) error {
	s.updates[id] = append(s.updates[id], fields)
	return nil
}

func (s *fakeJobStore) ListStaleRunning(ctx context.Context, cutoff time.Time) ([]models.ScrapeJob, error) {
	return s.stale, nil
}

type fakeCountyStore struct {
	due      []models.County
	sources  []models.ScrapeSource
	counties map[string]*models.County
	updates  map[string][]map[string]interface{}
}

func newFakeCountyStore() *fakeCountyStore {
	return &fakeCountyStore{
		counties: map[string]*models.County{},
		updates:  map[string][]map[string]interface{}{},
	}
}

func (s *fakeCountyStore) ListDueCounties(ctx context.Context, now time.Time, limit int) ([]models.County, error) {
	return s.due, nil
}

func (s *fakeCountyStore) GetCounty(ctx context.Context, id string) (*models.County, error) {
	county, ok := s.counties[id]
	if !ok {
		return nil, fmt.Errorf("county not found: %s", id)
	}
	copied := *county
	return &copied, nil
}

func (s *fakeCountyStore) UpdateCounty(ctx context.Context, id string, fields map[string]interface{}) error {
	s.updates[id] = append(s.updates[id], fields)
	return nil
}

func (s *fakeCountyStore) ListNationwideSources(ctx context.Context) ([]models.ScrapeSource, error) {
	return s.sources, nil
}

func (s *fakeCountyStore) InsertCounties(ctx context.Context, counties []models.County) error {
	return nil
}

func (s *fakeCountyStore) InsertSources(ctx context.Context, sources []models.ScrapeSource) error {
	return nil
}

func newTestScheduler(jobs *fakeJobStore, counties *fakeCountyStore, config common.SchedulerConfig) *Scheduler {
	s := New(jobs, counties, config, arbor.NewLogger())
	s.now = func() time.Time {
		return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	return s
}

func TestSweepDueCounties_EnqueuesAndAdvancesSchedule(t *testing.T) {
	jobs := newFakeJobStore()
	counties := newFakeCountyStore()
	counties.due = []models.County{
		{ID: "county-1", Name: "Fulton", StateAbbr: "GA", ScrapeIntervalHours: 48},
		{ID: "county-2", Name: "Harris", StateAbbr: "TX"},
	}

	s := newTestScheduler(jobs, counties, common.SchedulerConfig{CountyBatch: 50})
	require.NoError(t, s.SweepDueCounties(context.Background()))

	require.Len(t, jobs.created, 2)
	job := jobs.created[0]
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, "county-1", job.CountyID)
	assert.Equal(t, "GA", job.StateAbbr)
	assert.Equal(t, models.JobTypeScheduled, job.JobType)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, 3, job.MaxAttempts)

	// 48h cadence for Fulton, 24h default for Harris.
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	require.Len(t, counties.updates["county-1"], 1)
	assert.Equal(t, base.Add(48*time.Hour).Format(time.RFC3339), counties.updates["county-1"][0]["next_scheduled_scrape"])
	require.Len(t, counties.updates["county-2"], 1)
	assert.Equal(t, base.Add(24*time.Hour).Format(time.RFC3339), counties.updates["county-2"][0]["next_scheduled_scrape"])
}

func TestSweepDueCounties_SkipsCountiesWithActiveJobs(t *testing.T) {
	jobs := newFakeJobStore()
	jobs.activeFor["county-1"] = true
	counties := newFakeCountyStore()
	counties.due = []models.County{
		{ID: "county-1", Name: "Fulton", StateAbbr: "GA"},
		{ID: "county-2", Name: "Harris", StateAbbr: "TX"},
	}

	s := newTestScheduler(jobs, counties, common.SchedulerConfig{})
	require.NoError(t, s.SweepDueCounties(context.Background()))

	require.Len(t, jobs.created, 1)
	assert.Equal(t, "county-2", jobs.created[0].CountyID)
	assert.Empty(t, counties.updates["county-1"], "skipped county must keep its schedule")
}

func TestSweepDueCounties_DefaultsScraperName(t *testing.T) {
	jobs := newFakeJobStore()
	counties := newFakeCountyStore()
	counties.due = []models.County{
		{ID: "county-1", Name: "Fulton", StateAbbr: "GA"},
		{ID: "county-2", Name: "Maricopa", StateAbbr: "AZ", ScraperName: "maricopa_special"},
	}

	s := newTestScheduler(jobs, counties, common.SchedulerConfig{})
	require.NoError(t, s.SweepDueCounties(context.Background()))

	require.Len(t, jobs.created, 2)
	assert.Equal(t, scrapers.CountySurplusScraperName, jobs.created[0].ScraperName)
	assert.Equal(t, "maricopa_special", jobs.created[1].ScraperName)
}

func TestSweepNationwideSources_FansOutStates(t *testing.T) {
	jobs := newFakeJobStore()
	counties := newFakeCountyStore()
	counties.sources = []models.ScrapeSource{
		{ID: "source-1", Name: "Auction.com", ScraperName: "auction_nationwide"},
	}

	s := newTestScheduler(jobs, counties, common.SchedulerConfig{StatesPerSource: 3})
	require.NoError(t, s.SweepNationwideSources(context.Background()))

	require.Len(t, jobs.created, 3)
	var states []string
	for _, job := range jobs.created {
		assert.Equal(t, "source-1", job.SourceID)
		assert.Equal(t, "auction_nationwide", job.ScraperName)
		assert.Empty(t, job.CountyID)
		states = append(states, job.StateAbbr)
	}
	assert.Equal(t, models.StateCodes[:3], states)
}

func TestSweepNationwideSources_HonorsCooldown(t *testing.T) {
	jobs := newFakeJobStore()
	jobs.recentFor["source-1"] = true
	counties := newFakeCountyStore()
	counties.sources = []models.ScrapeSource{
		{ID: "source-1", Name: "Auction.com"},
		{ID: "source-2", Name: "HUD Homes"},
	}

	s := newTestScheduler(jobs, counties, common.SchedulerConfig{StatesPerSource: 2})
	require.NoError(t, s.SweepNationwideSources(context.Background()))

	for _, job := range jobs.created {
		assert.Equal(t, "source-2", job.SourceID)
	}
	assert.Len(t, jobs.created, 2)

	// Default cooldown is 24 hours back from now.
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, base.Add(-24*time.Hour), jobs.sinceSeen["source-1"])
}

func TestReapStaleJobs_RequeuesRetryable(t *testing.T) {
	updatedAt := time.Date(2024, 6, 1, 11, 0, 0, 0, time.UTC)
	jobs := newFakeJobStore()
	jobs.stale = []models.ScrapeJob{
		{ID: "job-1", WorkerID: "worker-7", AttemptNumber: 0, MaxAttempts: 3, UpdatedAt: &updatedAt},
	}

	s := newTestScheduler(jobs, newFakeCountyStore(), common.SchedulerConfig{})
	require.NoError(t, s.ReapStaleJobs(context.Background()))

	require.Len(t, jobs.updates["job-1"], 1)
	update := jobs.updates["job-1"][0]
	assert.Equal(t, "pending", update["status"])
	assert.Nil(t, update["worker_id"])
	assert.Equal(t, 1, update["attempt_number"])
	assert.Contains(t, update["error_message"], "worker worker-7")
	assert.Contains(t, update["error_message"], "2024-06-01T11:00:00Z")

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, base.Add(time.Minute).Format(time.RFC3339), update["next_retry_at"])
}

func TestReapStaleJobs_FailsExhaustedAndChargesCounty(t *testing.T) {
	jobs := newFakeJobStore()
	jobs.stale = []models.ScrapeJob{
		{ID: "job-1", CountyID: "county-1", WorkerID: "worker-7", AttemptNumber: 3, MaxAttempts: 3},
	}
	counties := newFakeCountyStore()
	counties.counties["county-1"] = &models.County{ID: "county-1", ConsecutiveFailures: 1}

	s := newTestScheduler(jobs, counties, common.SchedulerConfig{})
	require.NoError(t, s.ReapStaleJobs(context.Background()))

	update := jobs.updates["job-1"][0]
	assert.Equal(t, "failed", update["status"])
	assert.Contains(t, update, "completed_at")
	assert.Contains(t, update["error_message"], "unknown")

	require.Len(t, counties.updates["county-1"], 1)
	assert.Equal(t, 2, counties.updates["county-1"][0]["consecutive_failures"])
}

func TestStart_RegistersOnlyConfiguredSweeps(t *testing.T) {
	s := newTestScheduler(newFakeJobStore(), newFakeCountyStore(), common.SchedulerConfig{
		CountySchedule: "@every 5m",
	})
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Len(t, s.cron.Entries(), 1)
}

func TestStart_RejectsBadSchedule(t *testing.T) {
	s := newTestScheduler(newFakeJobStore(), newFakeCountyStore(), common.SchedulerConfig{
		CountySchedule: "not a schedule",
	})
	assert.Error(t, s.Start())
}
