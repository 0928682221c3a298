// Package validate checks dataset integrity before persistence: entity
// constraints plus referential integrity between the record list and the
// name-keyed overlays.
package validate

import (
	"fmt"

	"github.com/rumor-ml/propsheet/internal/domain"
	"github.com/rumor-ml/propsheet/internal/registry"
)

// ValidationResult contains all validation errors and warnings for a dataset.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// ValidationError represents a validation error.
type ValidationError struct {
	Entity  string // "dataset", "account", "inclusion", "bucket"
	ID      string
	Field   string
	Value   string
	Message string
}

// ValidationWarning represents a non-critical validation issue.
type ValidationWarning struct {
	Entity  string
	ID      string
	Field   string
	Value   string
	Message string
}

// HasErrors reports whether any blocking problem was found.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error summarizes the blocking problems in one message.
func (r *ValidationResult) Error() error {
	if !r.HasErrors() {
		return nil
	}
	first := r.Errors[0]
	return fmt.Errorf("validation failed with %d errors (first: %s %s [%s]: %s)",
		len(r.Errors), first.Entity, first.ID, first.Field, first.Message)
}

// ValidateDataset checks a dataset's entity constraints and the referential
// integrity between its record list and the name-keyed overlay maps. The
// registry is optional; when supplied, bucket assignments must reference
// defined buckets.
func ValidateDataset(ds *domain.Dataset, reg *registry.Registry) *ValidationResult {
	result := &ValidationResult{
		Errors:   []ValidationError{},
		Warnings: []ValidationWarning{},
	}

	if ds == nil {
		result.Errors = append(result.Errors, ValidationError{
			Entity:  "dataset",
			Field:   "dataset",
			Message: "dataset cannot be nil",
		})
		return result
	}

	if ds.ID == "" {
		result.Errors = append(result.Errors, ValidationError{
			Entity:  "dataset",
			ID:      ds.ID,
			Field:   "ID",
			Message: "dataset ID cannot be empty",
		})
	}
	if ds.Name == "" {
		result.Errors = append(result.Errors, ValidationError{
			Entity:  "dataset",
			ID:      ds.ID,
			Field:   "Name",
			Message: "dataset name cannot be empty",
		})
	}
	if !domain.ValidateFileType(ds.FileType) {
		result.Errors = append(result.Errors, ValidationError{
			Entity:  "dataset",
			ID:      ds.ID,
			Field:   "FileType",
			Value:   string(ds.FileType),
			Message: "unknown file type",
		})
	}

	// Validate accounts and build the name set for overlay checks.
	names := make(map[string]bool, len(ds.Records))
	for _, rec := range ds.Records {
		if rec.Name == "" {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "account",
				ID:      ds.ID,
				Field:   "Name",
				Message: "account name cannot be empty",
			})
			continue
		}
		if names[rec.Name] {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "account",
				ID:      ds.ID,
				Field:   "Name",
				Value:   rec.Name,
				Message: "duplicate account name",
			})
		}
		names[rec.Name] = true

		if len(rec.Periods) == 0 {
			result.Warnings = append(result.Warnings, ValidationWarning{
				Entity:  "account",
				ID:      ds.ID,
				Field:   "Periods",
				Value:   rec.Name,
				Message: "account has no period values",
			})
		}
	}

	// Referential integrity: every overlay key must name a record.
	for name := range ds.Inclusion {
		if !names[name] {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "inclusion",
				ID:      ds.ID,
				Field:   "Inclusion",
				Value:   name,
				Message: "inclusion flag references unknown account",
			})
		}
	}
	for name, bucket := range ds.Buckets {
		if !names[name] {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "bucket",
				ID:      ds.ID,
				Field:   "Buckets",
				Value:   name,
				Message: "bucket assignment references unknown account",
			})
		}
		if reg != nil {
			if _, ok := reg.Get(bucket); !ok {
				result.Errors = append(result.Errors, ValidationError{
					Entity:  "bucket",
					ID:      ds.ID,
					Field:   "Buckets",
					Value:   string(bucket),
					Message: fmt.Sprintf("account %q assigned to undefined bucket", name),
				})
			}
		}
	}

	// Every record should carry an inclusion flag once classified.
	for name := range names {
		if _, ok := ds.Inclusion[name]; !ok {
			result.Warnings = append(result.Warnings, ValidationWarning{
				Entity:  "inclusion",
				ID:      ds.ID,
				Field:   "Inclusion",
				Value:   name,
				Message: "account has no inclusion flag",
			})
		}
	}

	included := 0
	for _, v := range ds.Inclusion {
		if v {
			included++
		}
	}
	if len(ds.Records) > 0 && included == 0 {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Entity:  "dataset",
			ID:      ds.ID,
			Field:   "Inclusion",
			Message: "no accounts are included; totals will be empty",
		})
	}

	return result
}
