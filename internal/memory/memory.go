// Package memory keeps the learned account-to-bucket history: an in-memory
// cache backed by a durable store with fire-and-forget writes.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rumor-ml/propsheet/internal/domain"
)

// Store persists learning entries. Implementations live in internal/store.
type Store interface {
	LoadMemory(ctx context.Context, fileType domain.FileType) ([]domain.LearningEntry, error)
	SaveMemory(ctx context.Context, entry domain.LearningEntry) error
}

type key struct {
	account  string
	fileType domain.FileType
}

// Cache is the in-memory learning memory. Reads are pure lookups; Learn and
// RecordSuggestion update the cache synchronously so that later resolutions in
// the same session see the new assignment, then persist in the background.
// A failed persistence write is logged and never rolls back the cache.
// Safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[key]domain.LearningEntry
	store   Store
	logger  *slog.Logger
}

// New creates a cache. The store may be nil, in which case learned assignments
// live only for the session.
func New(store Store, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		entries: make(map[key]domain.LearningEntry),
		store:   store,
		logger:  logger,
	}
}

// Load merges persisted entries for a file type into the cache. Conflicts with
// entries already in the cache resolve last-write-wins by UpdatedAt; on equal
// timestamps a user entry beats a suggested one.
func (c *Cache) Load(ctx context.Context, fileType domain.FileType) error {
	if c.store == nil {
		return nil
	}
	entries, err := c.store.LoadMemory(ctx, fileType)
	if err != nil {
		return fmt.Errorf("failed to load learning memory for %s: %w", fileType, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			c.logger.Warn("skipping invalid learning entry", "accountKey", e.AccountKey, "error", err)
			continue
		}
		c.merge(e)
	}
	return nil
}

func (c *Cache) merge(e domain.LearningEntry) {
	k := key{account: e.AccountKey, fileType: e.FileType}
	existing, ok := c.entries[k]
	if !ok {
		c.entries[k] = e
		return
	}
	if e.UpdatedAt.After(existing.UpdatedAt) {
		c.entries[k] = e
		return
	}
	if e.UpdatedAt.Equal(existing.UpdatedAt) &&
		e.Provenance == domain.ProvenanceUser && existing.Provenance != domain.ProvenanceUser {
		c.entries[k] = e
	}
}

// Lookup returns the learned bucket for a normalized account key and file
// type. Entries pointing at the exclude bucket still count as learned.
func (c *Cache) Lookup(accountKey string, fileType domain.FileType) (domain.BucketKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key{account: accountKey, fileType: fileType}]
	if !ok {
		return "", false
	}
	return e.Bucket, true
}

// Entry returns the full learning entry for a key, for suggestion ranking.
func (c *Cache) Entry(accountKey string, fileType domain.FileType) (domain.LearningEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key{account: accountKey, fileType: fileType}]
	return e, ok
}

// Learn records a user-confirmed assignment. The cache is updated
// synchronously; the durable write happens in the background and its failure
// is logged without retry. Usage count carries over from any prior entry.
func (c *Cache) Learn(ctx context.Context, accountKey string, fileType domain.FileType, bucket domain.BucketKey) error {
	entry := domain.LearningEntry{
		AccountKey: accountKey,
		FileType:   fileType,
		Bucket:     bucket,
		Provenance: domain.ProvenanceUser,
		Confidence: 1.0,
		UsageCount: 1,
		UpdatedAt:  time.Now(),
	}
	return c.record(ctx, entry)
}

// RecordSuggestion records an automatic resolution so future sessions start
// from it. A suggestion never overwrites a user-confirmed entry.
func (c *Cache) RecordSuggestion(ctx context.Context, accountKey string, fileType domain.FileType, bucket domain.BucketKey, confidence float64) error {
	if existing, ok := c.Entry(accountKey, fileType); ok && existing.Provenance == domain.ProvenanceUser {
		return nil
	}
	entry := domain.LearningEntry{
		AccountKey: accountKey,
		FileType:   fileType,
		Bucket:     bucket,
		Provenance: domain.ProvenanceSuggested,
		Confidence: confidence,
		UsageCount: 1,
		UpdatedAt:  time.Now(),
	}
	return c.record(ctx, entry)
}

func (c *Cache) record(ctx context.Context, entry domain.LearningEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("invalid learning entry: %w", err)
	}

	c.mu.Lock()
	k := key{account: entry.AccountKey, fileType: entry.FileType}
	if existing, ok := c.entries[k]; ok {
		entry.UsageCount = existing.UsageCount + 1
	}
	c.entries[k] = entry
	c.mu.Unlock()

	if c.store == nil {
		return nil
	}

	// Fire-and-forget: classification is advisory, not a ledger. The in-memory
	// state stays authoritative for the session whatever happens here.
	go func(e domain.LearningEntry) {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := c.store.SaveMemory(saveCtx, e); err != nil {
			c.logger.Error("failed to persist learning entry",
				"accountKey", e.AccountKey, "fileType", e.FileType, "bucket", e.Bucket, "error", err)
		}
	}(entry)

	return nil
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Entries returns a snapshot of all cached entries, for inspection.
func (c *Cache) Entries() []domain.LearningEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.LearningEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	return out
}
