// Package registry holds the bucket taxonomy: definitions with term
// dictionaries in a stable priority order, loaded from an embedded YAML file.
package registry

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rumor-ml/propsheet/internal/domain"
)

//go:embed buckets.yaml
var embeddedBuckets []byte

// Definition is one taxonomy entry.
//
// Definitions should be created via YAML loading (New, NewFromYAML,
// LoadFromFile) or the registry's AddBucket, both of which validate:
//   - Key non-empty and unique within the registry
//   - Category a valid domain.Category
//   - Terms non-empty strings (empty term list is allowed)
//
// Fields are exported for YAML unmarshaling; direct construction bypasses
// validation.
type Definition struct {
	Key         domain.BucketKey `yaml:"key" json:"key"`
	Label       string           `yaml:"label" json:"label"`
	Category    domain.Category  `yaml:"category" json:"category"`
	Description string           `yaml:"description" json:"description"`
	Terms       []string         `yaml:"terms" json:"terms"`
}

// IsTotal reports whether this bucket is a total-type bucket, which is subject
// to at-most-one-included-account exclusivity per dataset.
func (d Definition) IsTotal() bool {
	return d.Category.IsTotal()
}

// bucketSet is the top-level YAML structure.
type bucketSet struct {
	Buckets []Definition `yaml:"buckets"`
}

// Registry holds bucket definitions in a fixed, stable priority order.
// Term matching is first-match-wins over that order, so insertion order is
// itself meaningful and is preserved across CRUD operations.
//
// The registry is not synchronized; callers that share one across goroutines
// (the session does) must serialize access themselves.
type Registry struct {
	defs []Definition
}

// New creates a registry from the embedded default taxonomy.
func New() (*Registry, error) {
	r, err := NewFromYAML(embeddedBuckets)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded buckets (possible binary corruption): %w", err)
	}
	return r, nil
}

// NewFromYAML creates a registry from YAML data.
func NewFromYAML(data []byte) (*Registry, error) {
	var set bucketSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse YAML buckets (check syntax, indentation, and field names): %w", err)
	}

	seen := make(map[domain.BucketKey]struct{}, len(set.Buckets))
	for i, def := range set.Buckets {
		if strings.TrimSpace(string(def.Key)) == "" {
			return nil, fmt.Errorf("bucket %d (%s): key cannot be empty", i, def.Label)
		}
		if !domain.ValidateCategory(def.Category) {
			return nil, fmt.Errorf("bucket %d (%s): invalid category %q", i, def.Key, def.Category)
		}
		if _, dup := seen[def.Key]; dup {
			return nil, fmt.Errorf("bucket %d (%s): duplicate key", i, def.Key)
		}
		seen[def.Key] = struct{}{}
		for _, term := range def.Terms {
			if strings.TrimSpace(term) == "" {
				return nil, fmt.Errorf("bucket %d (%s): term cannot be empty", i, def.Key)
			}
		}
	}

	if _, ok := seen[domain.KeyExclude]; !ok {
		return nil, fmt.Errorf("bucket set must define the %q bucket (resolution fallback target)", domain.KeyExclude)
	}

	defs := make([]Definition, len(set.Buckets))
	copy(defs, set.Buckets)
	return &Registry{defs: defs}, nil
}

// LoadFromFile creates a registry from a filesystem path.
func LoadFromFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read buckets file: %w", err)
	}
	r, err := NewFromYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load buckets from %q: %w", path, err)
	}
	return r, nil
}

// Definitions returns a copy of the definitions in priority order.
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, len(r.defs))
	for i, d := range r.defs {
		out[i] = d
		out[i].Terms = append([]string(nil), d.Terms...)
	}
	return out
}

// Get returns the definition for a key.
func (r *Registry) Get(key domain.BucketKey) (Definition, bool) {
	for _, d := range r.defs {
		if d.Key == key {
			d.Terms = append([]string(nil), d.Terms...)
			return d, true
		}
	}
	return Definition{}, false
}

// MatchTerm returns the first bucket, in priority order, one of whose terms is
// a case-insensitive substring of the account name.
func (r *Registry) MatchTerm(accountName string) (Definition, bool) {
	name := strings.ToLower(strings.TrimSpace(accountName))
	for _, d := range r.defs {
		for _, term := range d.Terms {
			if strings.Contains(name, strings.ToLower(term)) {
				return d, true
			}
		}
	}
	return Definition{}, false
}

// TermMatches returns every bucket with a matching term, in priority order.
// Used for ranked suggestion lists, not for resolution.
func (r *Registry) TermMatches(accountName string) []Definition {
	name := strings.ToLower(strings.TrimSpace(accountName))
	var out []Definition
	for _, d := range r.defs {
		for _, term := range d.Terms {
			if strings.Contains(name, strings.ToLower(term)) {
				out = append(out, d)
				break
			}
		}
	}
	return out
}

// TotalBuckets returns the total-type buckets in priority order.
func (r *Registry) TotalBuckets() []Definition {
	var out []Definition
	for _, d := range r.defs {
		if d.IsTotal() {
			out = append(out, d)
		}
	}
	return out
}

// AddTerm appends a term to a bucket's dictionary. Adding a term that is
// already present (case-insensitively) is a no-op.
func (r *Registry) AddTerm(key domain.BucketKey, term string) error {
	term = strings.TrimSpace(term)
	if term == "" {
		return fmt.Errorf("term cannot be empty")
	}
	for i := range r.defs {
		if r.defs[i].Key != key {
			continue
		}
		for _, existing := range r.defs[i].Terms {
			if strings.EqualFold(existing, term) {
				return nil
			}
		}
		r.defs[i].Terms = append(r.defs[i].Terms, term)
		return nil
	}
	return fmt.Errorf("bucket %q: %w", key, domain.ErrNotFound)
}

// RemoveTerm deletes a term from a bucket's dictionary.
func (r *Registry) RemoveTerm(key domain.BucketKey, term string) error {
	for i := range r.defs {
		if r.defs[i].Key != key {
			continue
		}
		for j, existing := range r.defs[i].Terms {
			if strings.EqualFold(existing, term) {
				r.defs[i].Terms = append(r.defs[i].Terms[:j], r.defs[i].Terms[j+1:]...)
				return nil
			}
		}
		return fmt.Errorf("term %q on bucket %q: %w", term, key, domain.ErrNotFound)
	}
	return fmt.Errorf("bucket %q: %w", key, domain.ErrNotFound)
}

var nonKeyChars = regexp.MustCompile(`[^a-z0-9]+`)

// KeyFromLabel derives a bucket key from a display label.
// "Pet Rent Income" becomes "pet_rent_income".
func KeyFromLabel(label string) (domain.BucketKey, error) {
	key := strings.ToLower(strings.TrimSpace(label))
	key = nonKeyChars.ReplaceAllString(key, "_")
	key = strings.Trim(key, "_")
	if key == "" {
		return "", fmt.Errorf("label %q contains no usable characters", label)
	}
	return domain.BucketKey(key), nil
}

// AddBucket appends a custom bucket at the end of the priority order. The key
// is derived from the label.
func (r *Registry) AddBucket(label string, category domain.Category, description string) (Definition, error) {
	if !domain.ValidateCategory(category) {
		return Definition{}, fmt.Errorf("invalid category %q", category)
	}
	key, err := KeyFromLabel(label)
	if err != nil {
		return Definition{}, err
	}
	if _, exists := r.Get(key); exists {
		return Definition{}, fmt.Errorf("bucket %q: %w", key, domain.ErrAlreadyExists)
	}

	def := Definition{
		Key:         key,
		Label:       strings.TrimSpace(label),
		Category:    category,
		Description: description,
		Terms:       []string{},
	}
	r.defs = append(r.defs, def)
	return def, nil
}

// Delete removes a bucket and its term dictionary. The exclude bucket cannot
// be deleted because it is the resolution fallback. Accounts and learned
// entries that still reference the deleted key fall back to exclude on their
// next resolution; callers are expected to surface that to the user.
func (r *Registry) Delete(key domain.BucketKey) (Definition, error) {
	if key == domain.KeyExclude {
		return Definition{}, fmt.Errorf("the %q bucket cannot be deleted", domain.KeyExclude)
	}
	for i := range r.defs {
		if r.defs[i].Key == key {
			def := r.defs[i]
			r.defs = append(r.defs[:i], r.defs[i+1:]...)
			return def, nil
		}
	}
	return Definition{}, fmt.Errorf("bucket %q: %w", key, domain.ErrNotFound)
}

// Reorder rearranges the priority order to match keys exactly. Every existing
// key must appear exactly once.
func (r *Registry) Reorder(keys []domain.BucketKey) error {
	if len(keys) != len(r.defs) {
		return fmt.Errorf("reorder must list all %d buckets, got %d", len(r.defs), len(keys))
	}
	byKey := make(map[domain.BucketKey]Definition, len(r.defs))
	for _, d := range r.defs {
		byKey[d.Key] = d
	}
	next := make([]Definition, 0, len(keys))
	for _, k := range keys {
		d, ok := byKey[k]
		if !ok {
			return fmt.Errorf("bucket %q: %w", k, domain.ErrNotFound)
		}
		delete(byKey, k)
		next = append(next, d)
	}
	r.defs = next
	return nil
}
