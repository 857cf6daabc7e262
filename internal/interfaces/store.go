// Package interfaces defines the contracts between repeto components and the
// record store. The importer, worker and scheduler depend on these rather
// than on the concrete REST client so tests can substitute fakes.
package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/repeto/internal/models"
)

// LeadStore provides access to the staging and production lead tables.
type LeadStore interface {
	// FetchUnimported returns a page of staging rows with imported = false.
	FetchUnimported(ctx context.Context, limit, offset int) ([]models.StagedLead, error)

	// CountUnimported returns the exact number of unimported staging rows.
	CountUnimported(ctx context.Context) (int, error)

	// UpdateStagedLead patches the staging row with the given ID.
	UpdateStagedLead(ctx context.Context, id string, fields map[string]interface{}) error

	// InsertStagedLeads writes scraped candidates into the staging table.
	InsertStagedLeads(ctx context.Context, leads []models.StagedLead) error

	// FindProductionByAddress returns production rows matching the exact
	// (property_address, state_abbr) pair, up to limit.
	FindProductionByAddress(ctx context.Context, address, stateAbbr string, limit int) ([]models.Lead, error)

	// GetProductionLead returns the production row with the given content ID,
	// or nil when absent.
	GetProductionLead(ctx context.Context, id string) (*models.Lead, error)

	// InsertProductionLead writes one row into the production table.
	InsertProductionLead(ctx context.Context, fields map[string]interface{}) error

	// UpdateProductionLead patches the production row with the given ID.
	UpdateProductionLead(ctx context.Context, id string, fields map[string]interface{}) error
}

// JobStore provides the scrape job queue operations.
type JobStore interface {
	// ClaimNextJob atomically claims one pending job for the worker, moving
	// it to running and stamping the worker ID. Returns "" when no job is
	// claimable.
	ClaimNextJob(ctx context.Context, workerID string) (string, error)

	// GetJob returns the job with the given ID.
	GetJob(ctx context.Context, id string) (*models.ScrapeJob, error)

	// HasActiveJobForCounty reports whether a pending or running job exists
	// for the county.
	HasActiveJobForCounty(ctx context.Context, countyID string) (bool, error)

	// HasRecentJobForSource reports whether a pending or running job for the
	// source was created after the cutoff.
	HasRecentJobForSource(ctx context.Context, sourceID string, since time.Time) (bool, error)

	// CreateJob enqueues a new pending job.
	CreateJob(ctx context.Context, job *models.ScrapeJob) error

	// UpdateJob patches the job row with the given ID.
	UpdateJob(ctx context.Context, id string, fields map[string]interface{}) error

	// ListStaleRunning returns running jobs not updated since the cutoff.
	ListStaleRunning(ctx context.Context, cutoff time.Time) ([]models.ScrapeJob, error)
}

// CountyStore provides county and source scheduling queries.
type CountyStore interface {
	// ListDueCounties returns schedulable counties due for a scrape, capped
	// at limit. Counties at the circuit-breaker threshold are excluded.
	ListDueCounties(ctx context.Context, now time.Time, limit int) ([]models.County, error)

	// GetCounty returns the county with the given ID.
	GetCounty(ctx context.Context, id string) (*models.County, error)

	// UpdateCounty patches the county row with the given ID.
	UpdateCounty(ctx context.Context, id string, fields map[string]interface{}) error

	// ListNationwideSources returns active sources covering all states.
	ListNationwideSources(ctx context.Context) ([]models.ScrapeSource, error)

	// InsertCounties seeds county rows, merging on conflict.
	InsertCounties(ctx context.Context, counties []models.County) error

	// InsertSources seeds source rows, merging on conflict.
	InsertSources(ctx context.Context, sources []models.ScrapeSource) error
}

// SeenCache is a local fast-path cache of lead content hashes the worker has
// already upserted. The store-side upsert stays authoritative; the cache only
// avoids redundant round trips for unchanged leads.
type SeenCache interface {
	// Seen reports whether the content hash was recorded with an identical
	// fingerprint.
	Seen(id, fingerprint string) bool

	// Record stores the content hash with its fingerprint.
	Record(id, fingerprint string) error

	// Prune deletes entries not seen within the retention window and returns
	// the number removed.
	Prune(retention time.Duration) (int, error)

	// Close releases the underlying store.
	Close() error
}
