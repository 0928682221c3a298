// Package ai supplies account-name category labels from an external oracle.
// The oracle is best-effort: when it fails or is absent the engine still
// functions on term and category fallbacks alone.
package ai

import (
	"context"
	"strings"

	"github.com/rumor-ml/propsheet/internal/domain"
)

// Oracle labels a batch of account names in one round trip. Per-account
// failures are independent: a name missing from the result map is treated as
// unknown by the caller.
type Oracle interface {
	Categorize(ctx context.Context, accountNames []string, fileType domain.FileType) (map[string]domain.AICategory, error)
}

// Unknown returns the all-unknown labeling for a batch. Used when no oracle is
// configured or the configured one failed.
func Unknown(accountNames []string) map[string]domain.AICategory {
	out := make(map[string]domain.AICategory, len(accountNames))
	for _, name := range accountNames {
		out[name] = domain.AICategoryUnknown
	}
	return out
}

// SectionOracle labels accounts from the document's own structure, with no
// network calls: rows that appear under an income or expense section header
// inherit that section's category. Account names must be passed in original
// row order for the section walk to make sense.
type SectionOracle struct{}

// NewSectionOracle returns the section-based oracle.
func NewSectionOracle() *SectionOracle {
	return &SectionOracle{}
}

// Categorize walks the names in order, tracking the current section.
func (o *SectionOracle) Categorize(ctx context.Context, accountNames []string, fileType domain.FileType) (map[string]domain.AICategory, error) {
	out := make(map[string]domain.AICategory, len(accountNames))

	current := domain.AICategoryUnknown
	for _, name := range accountNames {
		lower := strings.ToLower(strings.TrimSpace(name))

		switch {
		case strings.Contains(lower, "income") || strings.Contains(lower, "revenue"):
			current = domain.AICategoryIncome
		case strings.Contains(lower, "expense") || strings.Contains(lower, "cost"):
			current = domain.AICategoryExpense
		case strings.Contains(lower, "cash") || strings.Contains(lower, "balance"):
			current = domain.AICategoryCash
		}

		out[name] = current
	}
	return out, nil
}
