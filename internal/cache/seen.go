// Package cache holds the worker's local seen-lead cache. It records the
// content fingerprint of every lead the worker has already upserted so an
// unchanged lead on a later scrape skips the store round trip. The store-side
// upsert stays authoritative; losing this cache only costs redundant writes.
package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/repeto/internal/interfaces"
	"github.com/timshannon/badgerhold/v4"
)

// SeenLead is one cache entry, keyed by the lead's content ID.
type SeenLead struct {
	ID          string `badgerhold:"key"`
	Fingerprint string
	LastSeen    time.Time
}

// SeenCache implements interfaces.SeenCache on badgerhold.
type SeenCache struct {
	store  *badgerhold.Store
	logger arbor.ILogger
}

// OpenSeenCache opens (creating if needed) the cache at path.
func OpenSeenCache(path string, logger arbor.ILogger) (interfaces.SeenCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = path
	options.ValueDir = path
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open seen cache: %w", err)
	}

	logger.Debug().Str("path", path).Msg("Seen cache opened")

	return &SeenCache{
		store:  store,
		logger: logger,
	}, nil
}

// Seen reports whether the lead was recorded with an identical fingerprint.
// Any read error reports unseen, which just forces the store round trip.
func (c *SeenCache) Seen(id, fingerprint string) bool {
	var entry SeenLead
	err := c.store.Get(id, &entry)
	if err != nil {
		if !errors.Is(err, badgerhold.ErrNotFound) {
			c.logger.Warn().Err(err).Str("lead_id", id).Msg("Seen cache read failed")
		}
		return false
	}
	return entry.Fingerprint == fingerprint
}

// Record stores the lead's current fingerprint.
func (c *SeenCache) Record(id, fingerprint string) error {
	entry := SeenLead{
		ID:          id,
		Fingerprint: fingerprint,
		LastSeen:    time.Now().UTC(),
	}
	if err := c.store.Upsert(id, entry); err != nil {
		return fmt.Errorf("failed to record seen lead: %w", err)
	}
	return nil
}

// Prune deletes entries not seen within the retention window, then lets
// badger reclaim the freed value-log space.
func (c *SeenCache) Prune(retention time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-retention)

	var stale []SeenLead
	if err := c.store.Find(&stale, badgerhold.Where("LastSeen").Lt(cutoff)); err != nil {
		return 0, fmt.Errorf("failed to list stale seen leads: %w", err)
	}

	removed := 0
	for _, entry := range stale {
		if err := c.store.Delete(entry.ID, SeenLead{}); err != nil {
			c.logger.Warn().Err(err).Str("lead_id", entry.ID).Msg("Failed to prune seen lead")
			continue
		}
		removed++
	}

	// Value-log GC keeps rewriting until nothing is reclaimable.
	db := c.store.Badger()
	for {
		if err := db.RunValueLogGC(0.5); err != nil {
			if !errors.Is(err, badger.ErrNoRewrite) {
				c.logger.Debug().Err(err).Msg("Value log GC stopped")
			}
			break
		}
	}

	if removed > 0 {
		c.logger.Info().Int("removed", removed).Msg("Seen cache pruned")
	}
	return removed, nil
}

// Close releases the underlying store.
func (c *SeenCache) Close() error {
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}
