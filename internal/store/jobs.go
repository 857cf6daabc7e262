package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/repeto/internal/interfaces"
	"github.com/ternarybob/repeto/internal/models"
)

const jobsTable = "scrape_jobs"

// claimProcedure is the stored procedure that selects one pending job
// (priority, then retry order), moves it to running and stamps the worker
// identity in a single atomic statement. This is the queue's only
// concurrency-control point.
const claimProcedure = "claim_next_scrape_job"

// JobStore implements interfaces.JobStore on the REST client.
type JobStore struct {
	client *Client
	logger arbor.ILogger
}

// NewJobStore creates a JobStore.
func NewJobStore(client *Client, logger arbor.ILogger) interfaces.JobStore {
	return &JobStore{
		client: client,
		logger: logger,
	}
}

func (s *JobStore) ClaimNextJob(ctx context.Context, workerID string) (string, error) {
	var jobID *string
	err := s.client.RPC(ctx, claimProcedure, map[string]interface{}{
		"p_worker_id": workerID,
	}, &jobID)
	if err != nil {
		return "", fmt.Errorf("failed to claim next job: %w", err)
	}
	if jobID == nil {
		return "", nil
	}
	return *jobID, nil
}

func (s *JobStore) GetJob(ctx context.Context, id string) (*models.ScrapeJob, error) {
	var jobs []models.ScrapeJob
	err := s.client.Select(ctx, jobsTable, Query{
		Filters: []Filter{Eq("id", id)},
		Limit:   1,
	}, &jobs)
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("job not found: %s", id)
	}
	return &jobs[0], nil
}

func (s *JobStore) HasActiveJobForCounty(ctx context.Context, countyID string) (bool, error) {
	count, err := s.client.Count(ctx, jobsTable,
		Eq("county_id", countyID),
		In("status", string(models.JobStatusPending), string(models.JobStatusRunning)),
	)
	if err != nil {
		return false, fmt.Errorf("failed to check active jobs for county %s: %w", countyID, err)
	}
	return count > 0, nil
}

func (s *JobStore) HasRecentJobForSource(ctx context.Context, sourceID string, since time.Time) (bool, error) {
	count, err := s.client.Count(ctx, jobsTable,
		Eq("source_id", sourceID),
		In("status", string(models.JobStatusPending), string(models.JobStatusRunning)),
		Gte("created_at", since.UTC().Format(time.RFC3339)),
	)
	if err != nil {
		return false, fmt.Errorf("failed to check recent jobs for source %s: %w", sourceID, err)
	}
	return count > 0, nil
}

func (s *JobStore) CreateJob(ctx context.Context, job *models.ScrapeJob) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	if err := s.client.Insert(ctx, jobsTable, []*models.ScrapeJob{job}, false); err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (s *JobStore) UpdateJob(ctx context.Context, id string, fields map[string]interface{}) error {
	if id == "" {
		return fmt.Errorf("job ID is required")
	}
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339)
	if err := s.client.Update(ctx, jobsTable, []Filter{Eq("id", id)}, fields); err != nil {
		return fmt.Errorf("failed to update job %s: %w", id, err)
	}
	return nil
}

func (s *JobStore) ListStaleRunning(ctx context.Context, cutoff time.Time) ([]models.ScrapeJob, error) {
	var jobs []models.ScrapeJob
	err := s.client.Select(ctx, jobsTable, Query{
		Filters: []Filter{
			Eq("status", string(models.JobStatusRunning)),
			Lt("updated_at", cutoff.UTC().Format(time.RFC3339)),
		},
		Order: "updated_at.asc",
	}, &jobs)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale running jobs: %w", err)
	}
	return jobs, nil
}
