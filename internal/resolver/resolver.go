// Package resolver assigns a bucket to each account via a layered priority
// chain: session override, learned memory, registry term match, AI category
// mapping, generic category fallback, exclude.
package resolver

import (
	"github.com/rumor-ml/propsheet/internal/domain"
	"github.com/rumor-ml/propsheet/internal/memory"
	"github.com/rumor-ml/propsheet/internal/normalize"
	"github.com/rumor-ml/propsheet/internal/registry"
)

// Input carries everything a resolution depends on. Resolve is a pure function
// of its input: identical inputs always yield the identical bucket.
type Input struct {
	AccountName string
	AICategory  domain.AICategory
	FileType    domain.FileType
	// Overrides are explicit assignments already made in the current editing
	// session, keyed by display account name.
	Overrides map[string]domain.BucketKey
	Registry  *registry.Registry
	Memory    *memory.Cache
}

// Resolve returns the bucket for an account. An override or learned entry that
// points at a bucket no longer in the registry is skipped, so accounts whose
// bucket was deleted fall through the rest of the chain and ultimately land on
// exclude.
func Resolve(in Input) domain.BucketKey {
	// 1. Session override.
	if b, ok := in.Overrides[in.AccountName]; ok {
		if _, exists := in.Registry.Get(b); exists {
			return b
		}
	}

	// 2. Learned memory.
	if in.Memory != nil {
		if b, ok := in.Memory.Lookup(normalize.AccountKey(in.AccountName), in.FileType); ok {
			if _, exists := in.Registry.Get(b); exists {
				return b
			}
		}
	}

	// 3. Registry term match, first-match-wins in priority order.
	if def, ok := in.Registry.MatchTerm(in.AccountName); ok {
		return def.Key
	}

	// 4. Cash-flow files map the AI category onto the primary buckets.
	if in.FileType == domain.FileTypeCashFlow {
		if b, ok := cashFlowBucket(in.AICategory); ok {
			if _, exists := in.Registry.Get(b); exists {
				return b
			}
		}
	}

	// 5. Generic category fallback.
	if b, ok := genericBucket(in.AICategory); ok {
		if _, exists := in.Registry.Get(b); exists {
			return b
		}
	}

	// 6. Default.
	return domain.KeyExclude
}

func cashFlowBucket(c domain.AICategory) (domain.BucketKey, bool) {
	switch c {
	case domain.AICategoryIncome:
		return domain.KeyIncomeItem, true
	case domain.AICategoryExpense:
		return domain.KeyExpenseItem, true
	case domain.AICategoryCash:
		return domain.KeyCashAmount, true
	}
	return "", false
}

func genericBucket(c domain.AICategory) (domain.BucketKey, bool) {
	switch c {
	case domain.AICategoryIncome:
		return domain.KeyOtherIncome, true
	case domain.AICategoryExpense:
		return domain.KeyOperatingExpenses, true
	}
	return "", false
}

// Source names where a suggestion came from, for UI display.
type Source string

const (
	SourceMemory   Source = "memory"
	SourceTerm     Source = "term"
	SourceCategory Source = "category"
	SourceDefault  Source = "default"
)

// Suggestion is one ranked bucket choice.
type Suggestion struct {
	Bucket     domain.BucketKey `json:"bucket"`
	Label      string           `json:"label"`
	Source     Source           `json:"source"`
	Confidence float64          `json:"confidence"`
}

// Suggestions returns an ordered list of bucket choices for UI display using
// the resolution priority: the memory match first, then every term match in
// registry order, then the category fallbacks, then exclude last. Duplicates
// keep their highest-priority position. Session overrides are not included;
// the list exists to let the user pick one.
func Suggestions(in Input) []Suggestion {
	var out []Suggestion
	seen := make(map[domain.BucketKey]struct{})

	add := func(b domain.BucketKey, source Source, confidence float64) {
		if _, dup := seen[b]; dup {
			return
		}
		def, exists := in.Registry.Get(b)
		if !exists {
			return
		}
		seen[b] = struct{}{}
		out = append(out, Suggestion{
			Bucket:     b,
			Label:      def.Label,
			Source:     source,
			Confidence: confidence,
		})
	}

	if in.Memory != nil {
		if e, ok := in.Memory.Entry(normalize.AccountKey(in.AccountName), in.FileType); ok {
			conf := e.Confidence
			if e.Provenance == domain.ProvenanceUser {
				conf = 1.0
			}
			add(e.Bucket, SourceMemory, conf)
		}
	}

	for _, def := range in.Registry.TermMatches(in.AccountName) {
		add(def.Key, SourceTerm, 0.9)
	}

	if in.FileType == domain.FileTypeCashFlow {
		if b, ok := cashFlowBucket(in.AICategory); ok {
			add(b, SourceCategory, 0.6)
		}
	}
	if b, ok := genericBucket(in.AICategory); ok {
		add(b, SourceCategory, 0.5)
	}

	add(domain.KeyExclude, SourceDefault, 0.3)
	return out
}
