package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/repeto/internal/interfaces"
	"github.com/ternarybob/repeto/internal/models"
)

const (
	countiesTable = "counties"
	sourcesTable  = "scrape_sources"
)

// CountyStore implements interfaces.CountyStore on the REST client.
type CountyStore struct {
	client *Client
	logger arbor.ILogger
}

// NewCountyStore creates a CountyStore.
func NewCountyStore(client *Client, logger arbor.ILogger) interfaces.CountyStore {
	return &CountyStore{
		client: client,
		logger: logger,
	}
}

// ListDueCounties returns active counties with online records whose next
// scheduled scrape is unset or in the past, skipping any county that has
// tripped the failure circuit breaker. Results are ordered so the counties
// that have waited longest come first.
func (s *CountyStore) ListDueCounties(ctx context.Context, now time.Time, limit int) ([]models.County, error) {
	ts := now.UTC().Format(time.RFC3339)
	var counties []models.County
	err := s.client.Select(ctx, countiesTable, Query{
		Filters: []Filter{
			Eq("is_active", "true"),
			Eq("has_online_records", "true"),
			Lt("consecutive_failures", fmt.Sprintf("%d", models.CircuitBreakerThreshold)),
			Or(fmt.Sprintf("next_scheduled_scrape.is.null,next_scheduled_scrape.lte.%s", ts)),
		},
		Order: "next_scheduled_scrape.asc.nullsfirst",
		Limit: limit,
	}, &counties)
	if err != nil {
		return nil, fmt.Errorf("failed to list due counties: %w", err)
	}
	return counties, nil
}

func (s *CountyStore) GetCounty(ctx context.Context, id string) (*models.County, error) {
	var counties []models.County
	err := s.client.Select(ctx, countiesTable, Query{
		Filters: []Filter{Eq("id", id)},
		Limit:   1,
	}, &counties)
	if err != nil {
		return nil, fmt.Errorf("failed to get county %s: %w", id, err)
	}
	if len(counties) == 0 {
		return nil, fmt.Errorf("county not found: %s", id)
	}
	return &counties[0], nil
}

func (s *CountyStore) UpdateCounty(ctx context.Context, id string, fields map[string]interface{}) error {
	if id == "" {
		return fmt.Errorf("county ID is required")
	}
	if err := s.client.Update(ctx, countiesTable, []Filter{Eq("id", id)}, fields); err != nil {
		return fmt.Errorf("failed to update county %s: %w", id, err)
	}
	return nil
}

func (s *CountyStore) ListNationwideSources(ctx context.Context) ([]models.ScrapeSource, error) {
	var sources []models.ScrapeSource
	err := s.client.Select(ctx, sourcesTable, Query{
		Filters: []Filter{
			Eq("is_active", "true"),
			Contains("states_covered", models.NationwideMarker),
		},
		Order: "name.asc",
	}, &sources)
	if err != nil {
		return nil, fmt.Errorf("failed to list nationwide sources: %w", err)
	}
	return sources, nil
}

func (s *CountyStore) InsertCounties(ctx context.Context, counties []models.County) error {
	if len(counties) == 0 {
		return nil
	}
	if err := s.client.Insert(ctx, countiesTable, counties, true); err != nil {
		return fmt.Errorf("failed to insert counties: %w", err)
	}
	return nil
}

func (s *CountyStore) InsertSources(ctx context.Context, sources []models.ScrapeSource) error {
	if len(sources) == 0 {
		return nil
	}
	if err := s.client.Insert(ctx, sourcesTable, sources, true); err != nil {
		return fmt.Errorf("failed to insert scrape sources: %w", err)
	}
	return nil
}
