// Package sqlite implements the durable store on a local SQLite database.
// Learning entries get a real table keyed by (account_key, file_type);
// datasets are stored as JSON payloads alongside their queryable columns.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rumor-ml/propsheet/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS learned_buckets (
	account_key TEXT NOT NULL,
	file_type   TEXT NOT NULL,
	bucket      TEXT NOT NULL,
	provenance  TEXT NOT NULL,
	confidence  REAL NOT NULL DEFAULT 0,
	usage_count INTEGER NOT NULL DEFAULT 1,
	updated_at  TIMESTAMP NOT NULL,
	PRIMARY KEY (account_key, file_type)
);

CREATE TABLE IF NOT EXISTS datasets (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	file_type  TEXT NOT NULL,
	active     INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMP NOT NULL,
	payload    BLOB NOT NULL
);
`

// Store is a SQLite-backed durable store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %q: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize sqlite schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadMemory returns all learning entries for a file type.
func (s *Store) LoadMemory(ctx context.Context, fileType domain.FileType) ([]domain.LearningEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT account_key, file_type, bucket, provenance, confidence, usage_count, updated_at
		FROM learned_buckets
		WHERE file_type = ?
		ORDER BY account_key`, string(fileType))
	if err != nil {
		return nil, fmt.Errorf("failed to query learned buckets for %s: %w", fileType, err)
	}
	defer rows.Close()

	var entries []domain.LearningEntry
	for rows.Next() {
		var e domain.LearningEntry
		var updatedAt string
		if err := rows.Scan(&e.AccountKey, &e.FileType, &e.Bucket, &e.Provenance, &e.Confidence, &e.UsageCount, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan learned bucket: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, updatedAt)
		if err != nil {
			return nil, fmt.Errorf("invalid updated_at %q for %s: %w", updatedAt, e.AccountKey, err)
		}
		e.UpdatedAt = ts
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate learned buckets: %w", err)
	}
	return entries, nil
}

// SaveMemory upserts an entry. Concurrent writers resolve last-write-wins:
// an older entry never overwrites a newer one.
func (s *Store) SaveMemory(ctx context.Context, entry domain.LearningEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("invalid learning entry: %w", err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO learned_buckets (account_key, file_type, bucket, provenance, confidence, usage_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_key, file_type) DO UPDATE SET
			bucket      = excluded.bucket,
			provenance  = excluded.provenance,
			confidence  = excluded.confidence,
			usage_count = learned_buckets.usage_count + 1,
			updated_at  = excluded.updated_at
		WHERE excluded.updated_at >= learned_buckets.updated_at`,
		entry.AccountKey, string(entry.FileType), string(entry.Bucket), string(entry.Provenance),
		entry.Confidence, entry.UsageCount, entry.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save learned bucket for %q: %w", entry.AccountKey, err)
	}
	return nil
}

// LoadDatasets returns all stored datasets, oldest first.
func (s *Store) LoadDatasets(ctx context.Context) ([]*domain.Dataset, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM datasets ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query datasets: %w", err)
	}
	defer rows.Close()

	var datasets []*domain.Dataset
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan dataset payload: %w", err)
		}
		var ds domain.Dataset
		if err := json.Unmarshal(payload, &ds); err != nil {
			return nil, fmt.Errorf("failed to decode dataset payload: %w", err)
		}
		datasets = append(datasets, &ds)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate datasets: %w", err)
	}
	return datasets, nil
}

// SaveDataset upserts a dataset by ID.
func (s *Store) SaveDataset(ctx context.Context, ds *domain.Dataset) error {
	if ds == nil || ds.ID == "" {
		return fmt.Errorf("dataset ID cannot be empty")
	}
	payload, err := json.Marshal(ds)
	if err != nil {
		return fmt.Errorf("failed to encode dataset %s: %w", ds.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO datasets (id, name, file_type, active, created_at, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name       = excluded.name,
			file_type  = excluded.file_type,
			active     = excluded.active,
			payload    = excluded.payload`,
		ds.ID, ds.Name, string(ds.FileType), boolToInt(ds.Active),
		ds.CreatedAt.UTC().Format(time.RFC3339Nano), payload)
	if err != nil {
		return fmt.Errorf("failed to save dataset %s: %w", ds.ID, err)
	}
	return nil
}

// DeleteDataset removes a dataset by ID.
func (s *Store) DeleteDataset(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM datasets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete dataset %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete of dataset %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("dataset %q: %w", id, domain.ErrNotFound)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
