package models

import (
	"math"
	"time"
)

// JobStatus represents the lifecycle state of a scrape job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job type constants.
const (
	JobTypeScheduled = "scheduled"
	JobTypeManual    = "manual"
)

// RetryBackoffBase is the base delay for failed-job rescheduling. A job
// failing on attempt k is retried after RetryBackoffBase * 2^k.
const RetryBackoffBase = 60 * time.Second

// ScrapeJob is a unit of scheduled scraping work. Jobs are created by the
// scheduler, claimed atomically by exactly one worker at a time, and either
// complete or walk the retry/backoff path until max_attempts is exhausted.
type ScrapeJob struct {
	ID            string     `json:"id"`
	SourceID      string     `json:"source_id,omitempty"`
	CountyID      string     `json:"county_id,omitempty"`
	CountyName    string     `json:"county_name,omitempty"`
	StateAbbr     string     `json:"state_abbr,omitempty"`
	ScraperName   string     `json:"scraper_name,omitempty"`
	JobType       string     `json:"job_type,omitempty"`
	Priority      int        `json:"priority,omitempty"`
	Status        JobStatus  `json:"status"`
	WorkerID      string     `json:"worker_id,omitempty"`
	AttemptNumber int        `json:"attempt_number"`
	MaxAttempts   int        `json:"max_attempts"`
	NextRetryAt   *time.Time `json:"next_retry_at,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	LeadsFound    int        `json:"leads_found"`
	LeadsNew      int        `json:"leads_new"`
	LeadsUpdated  int        `json:"leads_updated"`
	CreatedAt     time.Time  `json:"created_at,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

// RetryDelay returns the backoff delay for a job that failed on the given
// attempt number: 1m, 2m, 4m, 8m, ...
func RetryDelay(attemptNumber int) time.Duration {
	if attemptNumber < 0 {
		attemptNumber = 0
	}
	return RetryBackoffBase * time.Duration(math.Pow(2, float64(attemptNumber)))
}

// CanRetry reports whether the job has attempts remaining.
func (j *ScrapeJob) CanRetry() bool {
	return j.AttemptNumber < j.MaxAttempts
}

// IsTerminal reports whether the job reached a final state.
func (j *ScrapeJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
