// Package firestore implements the durable store on Cloud Firestore.
package firestore

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/iterator"

	"github.com/rumor-ml/propsheet/internal/domain"
)

const (
	datasetCollection = "propsheet-datasets"
	memoryCollection  = "propsheet-learned-buckets"
)

// Store is a Firestore-backed durable store.
type Store struct {
	client    *firestore.Client
	projectID string
}

// New creates a Firestore store using Application Default Credentials.
func New(ctx context.Context, projectID string) (*Store, error) {
	conf := &firebase.Config{ProjectID: projectID}
	app, err := firebase.NewApp(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return &Store{client: client, projectID: projectID}, nil
}

// Close closes the Firestore client.
func (s *Store) Close() error {
	return s.client.Close()
}

// memoryDocID builds a deterministic document ID so that writes for the same
// (accountKey, fileType) land on the same document. Firestore forbids "/" in
// document IDs.
func memoryDocID(accountKey string, fileType domain.FileType) string {
	return strings.ReplaceAll(accountKey, "/", "_") + "__" + string(fileType)
}

// LoadMemory retrieves all learning entries for a file type.
func (s *Store) LoadMemory(ctx context.Context, fileType domain.FileType) ([]domain.LearningEntry, error) {
	iter := s.client.Collection(memoryCollection).
		Where("fileType", "==", string(fileType)).
		Documents(ctx)

	var entries []domain.LearningEntry
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate learned buckets for %s: %w", fileType, err)
		}

		var e domain.LearningEntry
		if err := doc.DataTo(&e); err != nil {
			return nil, fmt.Errorf("failed to parse learned bucket: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// SaveMemory upserts an entry. Firestore document writes are last-write-wins,
// which matches the advisory nature of classification memory.
func (s *Store) SaveMemory(ctx context.Context, entry domain.LearningEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("invalid learning entry: %w", err)
	}
	_, err := s.client.Collection(memoryCollection).
		Doc(memoryDocID(entry.AccountKey, entry.FileType)).
		Set(ctx, entry)
	if err != nil {
		return fmt.Errorf("failed to save learned bucket for %q: %w", entry.AccountKey, err)
	}
	return nil
}

// LoadDatasets retrieves all stored datasets, oldest first.
func (s *Store) LoadDatasets(ctx context.Context) ([]*domain.Dataset, error) {
	iter := s.client.Collection(datasetCollection).
		OrderBy("createdAt", firestore.Asc).
		Documents(ctx)

	var datasets []*domain.Dataset
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate datasets: %w", err)
		}

		var ds domain.Dataset
		if err := doc.DataTo(&ds); err != nil {
			return nil, fmt.Errorf("failed to parse dataset: %w", err)
		}
		datasets = append(datasets, &ds)
	}
	return datasets, nil
}

// SaveDataset upserts a dataset by ID.
func (s *Store) SaveDataset(ctx context.Context, ds *domain.Dataset) error {
	if ds == nil || ds.ID == "" {
		return fmt.Errorf("dataset ID cannot be empty")
	}
	_, err := s.client.Collection(datasetCollection).Doc(ds.ID).Set(ctx, ds)
	if err != nil {
		return fmt.Errorf("failed to save dataset %s: %w", ds.ID, err)
	}
	return nil
}

// DeleteDataset removes a dataset by ID.
func (s *Store) DeleteDataset(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("dataset ID cannot be empty")
	}
	_, err := s.client.Collection(datasetCollection).Doc(id).Delete(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete dataset %s: %w", id, err)
	}
	return nil
}
