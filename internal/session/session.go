// Package session owns the upload-and-categorize workflow: the saved
// datasets, the single live dataset being edited, and the per-session bucket
// overrides. Every state change triggers a pure recompute of resolution and
// suppression; nothing derived is cached across mutations.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rumor-ml/propsheet/internal/aggregate"
	"github.com/rumor-ml/propsheet/internal/ai"
	"github.com/rumor-ml/propsheet/internal/domain"
	"github.com/rumor-ml/propsheet/internal/memory"
	"github.com/rumor-ml/propsheet/internal/normalize"
	"github.com/rumor-ml/propsheet/internal/registry"
	"github.com/rumor-ml/propsheet/internal/resolver"
	"github.com/rumor-ml/propsheet/internal/suppress"
	"github.com/rumor-ml/propsheet/internal/validate"
)

// DatasetStore persists datasets. The learning memory has its own store
// wired through memory.Cache.
type DatasetStore interface {
	LoadDatasets(ctx context.Context) ([]*domain.Dataset, error)
	SaveDataset(ctx context.Context, ds *domain.Dataset) error
	DeleteDataset(ctx context.Context, id string) error
}

// Session is the engine's single point of mutation. All methods are safe for
// concurrent use; the session mutex also serializes registry access, which is
// why the registry itself carries no lock.
type Session struct {
	mu sync.Mutex

	registry *registry.Registry
	memory   *memory.Cache
	store    DatasetStore
	oracle   ai.Oracle
	opts     suppress.Options
	logger   *slog.Logger

	datasets []*domain.Dataset
	// live is the dataset currently being uploaded or edited. Aggregation
	// counts it instead of its saved counterpart.
	live *domain.Dataset
	// overrides are explicit bucket assignments made during the live edit,
	// keyed by display account name. Cleared when the live dataset is saved
	// or discarded.
	overrides map[string]domain.BucketKey
	// userInclusion preserves explicit include/exclude toggles across
	// recomputes so suppression never silently undoes a user decision.
	userInclusion map[string]bool
	// suppressions from the most recent recompute of the live dataset.
	suppressions []suppress.Suppression
}

// Config carries the session's collaborators. Registry is required; the rest
// may be nil (nil store means session-only persistence, nil oracle means no
// AI labels).
type Config struct {
	Registry *registry.Registry
	Memory   *memory.Cache
	Store    DatasetStore
	Oracle   ai.Oracle
	Suppress suppress.Options
	Logger   *slog.Logger
}

// New creates a session.
func New(cfg Config) (*Session, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("session requires a bucket registry")
	}
	if cfg.Memory == nil {
		cfg.Memory = memory.New(nil, cfg.Logger)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Session{
		registry:  cfg.Registry,
		memory:    cfg.Memory,
		store:     cfg.Store,
		oracle:    cfg.Oracle,
		opts:      cfg.Suppress,
		logger:    cfg.Logger,
		overrides: make(map[string]domain.BucketKey),
	}, nil
}

// Restore loads previously saved datasets from the store. Call once at
// startup, before serving requests.
func (s *Session) Restore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	datasets, err := s.store.LoadDatasets(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore datasets: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets = datasets
	return nil
}

// Registry exposes the bucket registry. Mutations through it must go through
// the session's Bucket* methods so resolution is recomputed.
func (s *Session) Registry() *registry.Registry {
	return s.registry
}

// Memory exposes the learning cache for read-side handlers.
func (s *Session) Memory() *memory.Cache {
	return s.memory
}

// Ingest normalizes rows into a new live dataset, labels the accounts via the
// oracle, resolves a bucket for every account, and runs suppression. Any
// previous live dataset is discarded along with its session overrides and
// inclusion toggles. Rows that cannot be normalized are
// reported as issues but never abort the upload; duplicate account names keep
// the first occurrence.
func (s *Session) Ingest(ctx context.Context, name string, fileType domain.FileType, rows []normalize.Row) (*domain.Dataset, []normalize.Issue, error) {
	records, issues := normalize.Records(rows)

	ds, err := domain.NewDataset(uuid.NewString(), name, fileType)
	if err != nil {
		return nil, nil, err
	}
	names := make([]string, 0, len(records))
	for _, rec := range records {
		if err := ds.AddRecord(rec); err != nil {
			s.logger.Warn("skipping duplicate account row",
				"dataset", name, "account", rec.Name)
			continue
		}
		names = append(names, rec.Name)
	}

	labels := s.categorize(ctx, names, fileType)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.live = ds
	s.overrides = make(map[string]domain.BucketKey)
	s.userInclusion = nil
	s.suppressions = nil
	for _, n := range names {
		ds.AICategories[n] = labels[n]
	}
	s.recompute(ctx)
	s.recordSuggestions(ctx)

	s.logger.Info("ingested dataset",
		"dataset", name,
		"fileType", fileType,
		"accounts", len(names),
		"issues", len(issues),
		"suppressed", len(s.suppressions))
	return ds.Clone(), issues, nil
}

// categorize asks the oracle for labels and degrades to all-unknown when it
// fails. Runs outside the session lock; oracle calls can be slow.
func (s *Session) categorize(ctx context.Context, names []string, fileType domain.FileType) map[string]domain.AICategory {
	if s.oracle == nil || len(names) == 0 {
		return ai.Unknown(names)
	}
	labels, err := s.oracle.Categorize(ctx, names, fileType)
	if err != nil {
		s.logger.Warn("oracle categorization failed, continuing without labels", "error", err)
		return ai.Unknown(names)
	}
	for _, n := range names {
		if _, ok := labels[n]; !ok {
			labels[n] = domain.AICategoryUnknown
		}
	}
	return labels
}

// recompute re-resolves every account in the live dataset and re-applies
// suppression from scratch. Caller holds the mutex.
func (s *Session) recompute(ctx context.Context) {
	ds := s.live
	if ds == nil {
		return
	}
	for _, rec := range ds.Records {
		bucket := resolver.Resolve(resolver.Input{
			AccountName: rec.Name,
			AICategory:  ds.AICategory(rec.Name),
			FileType:    ds.FileType,
			Overrides:   s.overrides,
			Registry:    s.registry,
			Memory:      s.memory,
		})
		ds.Buckets[rec.Name] = bucket
		// Suppression starts from the default inclusion; explicit user
		// toggles are re-applied next and pinned through the passes.
		ds.Inclusion[rec.Name] = rec.DerivedTotal != 0
	}
	for name, included := range s.userInclusion {
		if _, ok := ds.Inclusion[name]; ok {
			ds.Inclusion[name] = included
		}
	}
	opts := s.opts
	opts.Pinned = s.userInclusion
	s.suppressions = suppress.Apply(ds, s.registry, opts, s.logger)
}

// recordSuggestions seeds learning memory with the current auto-resolutions so
// repeated uploads converge without user action. Called once per ingest, not
// per recompute, so an editing session does not inflate usage counts or issue
// redundant store writes. User assignments are never displaced. Caller holds
// the mutex.
func (s *Session) recordSuggestions(ctx context.Context) {
	ds := s.live
	if ds == nil {
		return
	}
	for _, rec := range ds.Records {
		bucket := ds.Buckets[rec.Name]
		if bucket == domain.KeyExclude {
			continue
		}
		key := normalize.AccountKey(rec.Name)
		if e, ok := s.memory.Entry(key, ds.FileType); ok && e.Provenance == domain.ProvenanceUser {
			continue
		}
		if err := s.memory.RecordSuggestion(ctx, key, ds.FileType, bucket, suggestionConfidence); err != nil {
			s.logger.Warn("failed to record suggestion", "account", rec.Name, "error", err)
		}
	}
}

const suggestionConfidence = 0.7

// AssignBucket pins an account in the live dataset to a bucket, records the
// assignment in learning memory, and recomputes resolution and suppression.
func (s *Session) AssignBucket(ctx context.Context, accountName string, bucket domain.BucketKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.live == nil {
		return fmt.Errorf("no dataset is being edited: %w", domain.ErrNotFound)
	}
	if _, ok := s.live.Record(accountName); !ok {
		return fmt.Errorf("account %q: %w", accountName, domain.ErrNotFound)
	}
	if _, ok := s.registry.Get(bucket); !ok {
		return fmt.Errorf("bucket %q: %w", bucket, domain.ErrNotFound)
	}

	s.overrides[accountName] = bucket
	if err := s.memory.Learn(ctx, normalize.AccountKey(accountName), s.live.FileType, bucket); err != nil {
		return fmt.Errorf("failed to learn assignment for %q: %w", accountName, err)
	}
	s.recompute(ctx)
	return nil
}

// ToggleInclusion flips an account's inclusion flag in the live dataset. The
// explicit choice survives later recomputes: the account is pinned through the
// suppression passes, so a re-included total is never re-cleared by an
// unrelated edit.
func (s *Session) ToggleInclusion(accountName string, included bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.live == nil {
		return fmt.Errorf("no dataset is being edited: %w", domain.ErrNotFound)
	}
	if _, ok := s.live.Record(accountName); !ok {
		return fmt.Errorf("account %q: %w", accountName, domain.ErrNotFound)
	}
	if s.userInclusion == nil {
		s.userInclusion = make(map[string]bool)
	}
	s.userInclusion[accountName] = included
	s.live.Inclusion[accountName] = included
	return nil
}

// SaveLive persists the live dataset and promotes it into the saved set,
// replacing any saved dataset with the same ID. The live slot and the session
// overrides are cleared.
func (s *Session) SaveLive(ctx context.Context) (*domain.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.live == nil {
		return nil, fmt.Errorf("no dataset is being edited: %w", domain.ErrNotFound)
	}
	ds := s.live

	if result := validate.ValidateDataset(ds, s.registry); result.HasErrors() {
		return nil, result.Error()
	}

	if s.store != nil {
		if err := s.store.SaveDataset(ctx, ds); err != nil {
			return nil, fmt.Errorf("failed to save dataset %q: %w", ds.Name, err)
		}
	}

	replaced := false
	for i, existing := range s.datasets {
		if existing.ID == ds.ID {
			s.datasets[i] = ds
			replaced = true
			break
		}
	}
	if !replaced {
		s.datasets = append(s.datasets, ds)
	}

	s.live = nil
	s.overrides = make(map[string]domain.BucketKey)
	s.userInclusion = nil
	s.suppressions = nil
	s.logger.Info("saved dataset", "dataset", ds.Name, "id", ds.ID)
	return ds.Clone(), nil
}

// OpenForEdit clones a saved dataset into the live slot. The saved copy stays
// untouched until SaveLive; aggregation counts the clone instead of it.
func (s *Session) OpenForEdit(id string) (*domain.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ds := range s.datasets {
		if ds.ID == id {
			s.live = ds.Clone()
			s.overrides = make(map[string]domain.BucketKey)
			s.userInclusion = nil
			s.suppressions = nil
			return s.live.Clone(), nil
		}
	}
	return nil, fmt.Errorf("dataset %q: %w", id, domain.ErrNotFound)
}

// DiscardLive drops the live dataset without saving. Edits made since
// OpenForEdit are lost; learned memory entries are kept.
func (s *Session) DiscardLive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live = nil
	s.overrides = make(map[string]domain.BucketKey)
	s.userInclusion = nil
	s.suppressions = nil
}

// Live returns a copy of the dataset being edited, or nil.
func (s *Session) Live() *domain.Dataset {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live == nil {
		return nil
	}
	return s.live.Clone()
}

// Suppressions returns the suppression trail from the most recent recompute.
func (s *Session) Suppressions() []suppress.Suppression {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]suppress.Suppression, len(s.suppressions))
	copy(out, s.suppressions)
	return out
}

// Datasets returns copies of the saved datasets, newest first.
func (s *Session) Datasets() []*domain.Dataset {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Dataset, 0, len(s.datasets))
	for _, ds := range s.datasets {
		out = append(out, ds.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Dataset returns a copy of a saved dataset by ID.
func (s *Session) Dataset(id string) (*domain.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ds := range s.datasets {
		if ds.ID == id {
			return ds.Clone(), nil
		}
	}
	return nil, fmt.Errorf("dataset %q: %w", id, domain.ErrNotFound)
}

// SetDatasetActive flips a saved dataset in or out of aggregation and
// persists the change.
func (s *Session) SetDatasetActive(ctx context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ds := range s.datasets {
		if ds.ID != id {
			continue
		}
		ds.Active = active
		if s.store != nil {
			if err := s.store.SaveDataset(ctx, ds); err != nil {
				return fmt.Errorf("failed to persist active flag for %q: %w", ds.Name, err)
			}
		}
		return nil
	}
	return fmt.Errorf("dataset %q: %w", id, domain.ErrNotFound)
}

// DeleteDataset removes a saved dataset from the session and the store.
func (s *Session) DeleteDataset(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, ds := range s.datasets {
		if ds.ID != id {
			continue
		}
		if s.store != nil {
			if err := s.store.DeleteDataset(ctx, id); err != nil {
				return fmt.Errorf("failed to delete dataset %q: %w", ds.Name, err)
			}
		}
		s.datasets = append(s.datasets[:i], s.datasets[i+1:]...)
		return nil
	}
	return fmt.Errorf("dataset %q: %w", id, domain.ErrNotFound)
}

// Totals aggregates per-bucket totals across the active saved datasets plus
// the live dataset, never double-counting the dataset being edited.
func (s *Session) Totals() aggregate.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return aggregate.BucketTotals(s.datasets, s.live)
}

// Reconcile reports item-vs-declared-total agreement for the current totals.
func (s *Session) Reconcile() aggregate.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return aggregate.Reconcile(aggregate.BucketTotals(s.datasets, s.live), s.registry)
}

// Suggestions ranks bucket choices for one account in the live dataset.
func (s *Session) Suggestions(accountName string) ([]resolver.Suggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.live == nil {
		return nil, fmt.Errorf("no dataset is being edited: %w", domain.ErrNotFound)
	}
	if _, ok := s.live.Record(accountName); !ok {
		return nil, fmt.Errorf("account %q: %w", accountName, domain.ErrNotFound)
	}
	return resolver.Suggestions(resolver.Input{
		AccountName: accountName,
		AICategory:  s.live.AICategory(accountName),
		FileType:    s.live.FileType,
		Registry:    s.registry,
		Memory:      s.memory,
	}), nil
}

// BucketAddTerm adds a matching term to a bucket and recomputes the live
// dataset so the new term takes effect immediately.
func (s *Session) BucketAddTerm(ctx context.Context, key domain.BucketKey, term string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.registry.AddTerm(key, term); err != nil {
		return err
	}
	s.recompute(ctx)
	return nil
}

// BucketRemoveTerm removes a matching term from a bucket.
func (s *Session) BucketRemoveTerm(ctx context.Context, key domain.BucketKey, term string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.registry.RemoveTerm(key, term); err != nil {
		return err
	}
	s.recompute(ctx)
	return nil
}

// BucketAdd creates a custom bucket at the lowest priority.
func (s *Session) BucketAdd(ctx context.Context, label string, category domain.Category, description string) (registry.Definition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, err := s.registry.AddBucket(label, category, description)
	if err != nil {
		return registry.Definition{}, err
	}
	s.recompute(ctx)
	return def, nil
}

// BucketDelete removes a bucket. Accounts that resolved to it fall back
// through the chain, usually onto exclude; the affected live accounts are
// returned so the caller can surface them.
func (s *Session) BucketDelete(ctx context.Context, key domain.BucketKey) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var affected []string
	if s.live != nil {
		for _, rec := range s.live.Records {
			if s.live.Buckets[rec.Name] == key {
				affected = append(affected, rec.Name)
			}
		}
	}
	if _, err := s.registry.Delete(key); err != nil {
		return nil, err
	}
	s.recompute(ctx)
	return affected, nil
}

// Summary aggregates headline statistics for dashboards.
type Summary struct {
	Datasets       int                          `json:"datasets"`
	ActiveDatasets int                          `json:"activeDatasets"`
	Accounts       int                          `json:"accounts"`
	LearnedEntries int                          `json:"learnedEntries"`
	ByCategory     map[domain.Category]int      `json:"byCategory"`
	Totals         map[domain.BucketKey]float64 `json:"totals"`
	GeneratedAt    time.Time                    `json:"generatedAt"`
}

// Summarize builds the dashboard summary from current state.
func (s *Session) Summarize() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := Summary{
		ByCategory:  make(map[domain.Category]int),
		GeneratedAt: time.Now(),
	}
	count := func(ds *domain.Dataset) {
		for _, rec := range ds.Records {
			if !ds.Included(rec.Name) {
				continue
			}
			sum.Accounts++
			if def, ok := s.registry.Get(ds.Bucket(rec.Name)); ok {
				sum.ByCategory[def.Category]++
			}
		}
	}
	for _, ds := range s.datasets {
		sum.Datasets++
		if !ds.Active {
			continue
		}
		sum.ActiveDatasets++
		if s.live != nil && ds.ID == s.live.ID {
			continue
		}
		count(ds)
	}
	if s.live != nil {
		count(s.live)
	}
	sum.LearnedEntries = s.memory.Len()
	sum.Totals = aggregate.BucketTotals(s.datasets, s.live).Totals
	return sum
}
