// Package output serializes engine state into a JSON snapshot for downstream
// tooling.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rumor-ml/propsheet/internal/aggregate"
	"github.com/rumor-ml/propsheet/internal/domain"
	"github.com/rumor-ml/propsheet/internal/suppress"
)

// Snapshot is the exported view of a session: the saved datasets, derived
// per-bucket totals, the reconciliation report, and the suppression trail of
// the most recent upload.
type Snapshot struct {
	GeneratedAt    time.Time              `json:"generatedAt"`
	Datasets       []*domain.Dataset      `json:"datasets"`
	Totals         aggregate.Result       `json:"totals"`
	Reconciliation aggregate.Report       `json:"reconciliation"`
	Suppressions   []suppress.Suppression `json:"suppressions,omitempty"`
}

// WriteOptions configures how the snapshot is written.
type WriteOptions struct {
	FilePath string // Output path (empty = stdout)
}

// WriteSnapshot serializes a snapshot as indented JSON.
func WriteSnapshot(snap *Snapshot, w io.Writer) error {
	if snap == nil {
		return fmt.Errorf("snapshot cannot be nil")
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(snap); err != nil {
		return fmt.Errorf("failed to encode snapshot as JSON: %w", err)
	}

	return nil
}

// WriteSnapshotToFile writes the snapshot to a file or stdout. File writes go
// through a temp file in the target directory plus rename, so a crash mid-write
// never leaves a truncated snapshot behind.
func WriteSnapshotToFile(snap *Snapshot, opts WriteOptions) error {
	if snap == nil {
		return fmt.Errorf("snapshot cannot be nil")
	}

	if opts.FilePath == "" {
		return WriteSnapshot(snap, os.Stdout)
	}

	dir := filepath.Dir(opts.FilePath)
	tmp, err := os.CreateTemp(dir, filepath.Base(opts.FilePath)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := WriteSnapshot(snap, tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot to %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, opts.FilePath); err != nil {
		return fmt.Errorf("failed to move snapshot into place at %s: %w", opts.FilePath, err)
	}
	return nil
}

// LoadSnapshot reads a previously written snapshot.
func LoadSnapshot(filePath string) (*Snapshot, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}

	f, err := os.Open(filePath)
	if err != nil {
		// Unwrapped so the caller can check os.IsNotExist.
		return nil, err
	}
	defer f.Close()

	var snap Snapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot JSON: %w", err)
	}
	return &snap, nil
}
