// Package store defines the durable-store contract for datasets and learning
// memory, plus an in-memory implementation for tests and local runs.
// Real backends live in the sqlite and firestore subpackages.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rumor-ml/propsheet/internal/domain"
)

// Store persists datasets and learning-memory entries. The engine treats all
// writes as advisory: a failed write is logged by the caller and the in-memory
// state stays authoritative for the session.
type Store interface {
	LoadMemory(ctx context.Context, fileType domain.FileType) ([]domain.LearningEntry, error)
	SaveMemory(ctx context.Context, entry domain.LearningEntry) error

	LoadDatasets(ctx context.Context) ([]*domain.Dataset, error)
	SaveDataset(ctx context.Context, ds *domain.Dataset) error
	DeleteDataset(ctx context.Context, id string) error

	Close() error
}

type memoryKey struct {
	account  string
	fileType domain.FileType
}

// Memory is an in-memory Store. Safe for concurrent use.
type Memory struct {
	mu       sync.Mutex
	entries  map[memoryKey]domain.LearningEntry
	datasets map[string]*domain.Dataset
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		entries:  make(map[memoryKey]domain.LearningEntry),
		datasets: make(map[string]*domain.Dataset),
	}
}

// LoadMemory returns all entries for a file type.
func (m *Memory) LoadMemory(ctx context.Context, fileType domain.FileType) ([]domain.LearningEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.LearningEntry
	for k, e := range m.entries {
		if k.fileType == fileType {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountKey < out[j].AccountKey })
	return out, nil
}

// SaveMemory upserts an entry, last-write-wins by UpdatedAt.
func (m *Memory) SaveMemory(ctx context.Context, entry domain.LearningEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("invalid learning entry: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	k := memoryKey{account: entry.AccountKey, fileType: entry.FileType}
	if existing, ok := m.entries[k]; ok && existing.UpdatedAt.After(entry.UpdatedAt) {
		return nil
	}
	m.entries[k] = entry
	return nil
}

// LoadDatasets returns all stored datasets, oldest first.
func (m *Memory) LoadDatasets(ctx context.Context) ([]*domain.Dataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*domain.Dataset, 0, len(m.datasets))
	for _, ds := range m.datasets {
		out = append(out, ds.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// SaveDataset upserts a dataset by ID.
func (m *Memory) SaveDataset(ctx context.Context, ds *domain.Dataset) error {
	if ds == nil || ds.ID == "" {
		return fmt.Errorf("dataset ID cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.datasets[ds.ID] = ds.Clone()
	return nil
}

// DeleteDataset removes a dataset by ID.
func (m *Memory) DeleteDataset(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.datasets[id]; !ok {
		return fmt.Errorf("dataset %q: %w", id, domain.ErrNotFound)
	}
	delete(m.datasets, id)
	return nil
}

// Close implements Store.
func (m *Memory) Close() error { return nil }
