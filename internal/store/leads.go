package store

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/repeto/internal/interfaces"
	"github.com/ternarybob/repeto/internal/models"
)

const (
	stagingTable    = "scraped_leads"
	productionTable = "foreclosure_leads"
)

// LeadStore implements interfaces.LeadStore on the REST client.
type LeadStore struct {
	client *Client
	logger arbor.ILogger
}

// NewLeadStore creates a LeadStore.
func NewLeadStore(client *Client, logger arbor.ILogger) interfaces.LeadStore {
	return &LeadStore{
		client: client,
		logger: logger,
	}
}

func (s *LeadStore) FetchUnimported(ctx context.Context, limit, offset int) ([]models.StagedLead, error) {
	var leads []models.StagedLead
	err := s.client.Select(ctx, stagingTable, Query{
		Filters: []Filter{Eq("imported", "false")},
		Order:   "created_at.asc",
		Limit:   limit,
		Offset:  offset,
	}, &leads)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unimported leads: %w", err)
	}
	return leads, nil
}

func (s *LeadStore) CountUnimported(ctx context.Context) (int, error) {
	count, err := s.client.Count(ctx, stagingTable, Eq("imported", "false"))
	if err != nil {
		return 0, fmt.Errorf("failed to count unimported leads: %w", err)
	}
	return count, nil
}

func (s *LeadStore) UpdateStagedLead(ctx context.Context, id string, fields map[string]interface{}) error {
	if id == "" {
		return fmt.Errorf("staged lead ID is required")
	}
	if err := s.client.Update(ctx, stagingTable, []Filter{Eq("id", id)}, fields); err != nil {
		return fmt.Errorf("failed to update staged lead %s: %w", id, err)
	}
	return nil
}

func (s *LeadStore) InsertStagedLeads(ctx context.Context, leads []models.StagedLead) error {
	if len(leads) == 0 {
		return nil
	}
	if err := s.client.Insert(ctx, stagingTable, leads, true); err != nil {
		return fmt.Errorf("failed to insert staged leads: %w", err)
	}
	return nil
}

func (s *LeadStore) FindProductionByAddress(ctx context.Context, address, stateAbbr string, limit int) ([]models.Lead, error) {
	var leads []models.Lead
	err := s.client.Select(ctx, productionTable, Query{
		Filters: []Filter{
			Eq("property_address", address),
			Eq("state_abbr", stateAbbr),
		},
		Limit: limit,
	}, &leads)
	if err != nil {
		return nil, fmt.Errorf("failed to query production leads by address: %w", err)
	}
	return leads, nil
}

func (s *LeadStore) GetProductionLead(ctx context.Context, id string) (*models.Lead, error) {
	var leads []models.Lead
	err := s.client.Select(ctx, productionTable, Query{
		Filters: []Filter{Eq("id", id)},
		Limit:   1,
	}, &leads)
	if err != nil {
		return nil, fmt.Errorf("failed to get production lead %s: %w", id, err)
	}
	if len(leads) == 0 {
		return nil, nil
	}
	return &leads[0], nil
}

func (s *LeadStore) InsertProductionLead(ctx context.Context, fields map[string]interface{}) error {
	if err := s.client.Insert(ctx, productionTable, []map[string]interface{}{fields}, false); err != nil {
		return fmt.Errorf("failed to insert production lead: %w", err)
	}
	return nil
}

func (s *LeadStore) UpdateProductionLead(ctx context.Context, id string, fields map[string]interface{}) error {
	if id == "" {
		return fmt.Errorf("production lead ID is required")
	}
	if err := s.client.Update(ctx, productionTable, []Filter{Eq("id", id)}, fields); err != nil {
		return fmt.Errorf("failed to update production lead %s: %w", id, err)
	}
	return nil
}
