// Package suppress detects redundant total rows within a dataset and enforces
// at-most-one-included-account per total-type bucket.
package suppress

import (
	"log/slog"
	"math"

	"github.com/rumor-ml/propsheet/internal/domain"
	"github.com/rumor-ml/propsheet/internal/registry"
)

// Reason classifies why an account's inclusion flag was cleared.
type Reason string

const (
	// ReasonZeroTotal marks accounts whose derived total is zero across all periods.
	ReasonZeroTotal Reason = "zero_total"
	// ReasonValueCollision marks accounts sharing a nonzero derived total with
	// an earlier included account. Spreadsheets frequently repeat a grand total
	// under two labels.
	ReasonValueCollision Reason = "value_collision"
	// ReasonTotalExclusivity marks accounts assigned to a total-type bucket
	// that already has an earlier included account.
	ReasonTotalExclusivity Reason = "total_exclusivity"
)

// Suppression records one inclusion flag cleared by Apply.
type Suppression struct {
	Account string           `json:"account"`
	Bucket  domain.BucketKey `json:"bucket"`
	Reason  Reason           `json:"reason"`
	// Kept names the account that stayed included, for value-collision and
	// total-exclusivity suppressions.
	Kept string `json:"kept,omitempty"`
}

// Options controls the heuristic passes. Value-collision suppression risks
// false positives when two genuinely distinct accounts coincidentally share a
// total, so it stays an explicit toggle.
type Options struct {
	ValueCollision bool
	// Pinned holds accounts whose inclusion flag was set explicitly by the
	// user. A pinned account is never cleared by any pass; it still claims
	// collision and total-bucket slots like any other included account.
	Pinned map[string]bool
}

func (o Options) pinned(account string) bool {
	_, ok := o.Pinned[account]
	return ok
}

// DefaultOptions enables every pass.
func DefaultOptions() Options {
	return Options{ValueCollision: true}
}

// collisionKey groups derived totals at cent precision, matching how totals
// are displayed and compared elsewhere.
func collisionKey(v float64) int64 {
	return int64(math.Round(v * 100))
}

// Apply runs the suppression passes over a dataset, in order: zero-value
// suppression, value-collision suppression (when enabled), total-bucket
// exclusivity. Only currently-included accounts are considered; suppressed
// accounts remain visible in the dataset, just not counted. Accounts pinned in
// opts keep their inclusion flag through every pass. Each cleared flag is
// returned and logged. Deterministic: earlier row order always wins.
func Apply(ds *domain.Dataset, reg *registry.Registry, opts Options, logger *slog.Logger) []Suppression {
	if logger == nil {
		logger = slog.Default()
	}

	var suppressions []Suppression
	record := func(s Suppression) {
		ds.Inclusion[s.Account] = false
		suppressions = append(suppressions, s)
		logger.Info("suppressed duplicate total",
			"dataset", ds.ID, "account", s.Account, "bucket", s.Bucket, "reason", s.Reason, "kept", s.Kept)
	}

	// Pass 1: zero-value suppression.
	for _, rec := range ds.Records {
		if ds.Included(rec.Name) && rec.DerivedTotal == 0 && !opts.pinned(rec.Name) {
			record(Suppression{Account: rec.Name, Bucket: ds.Bucket(rec.Name), Reason: ReasonZeroTotal})
		}
	}

	// Pass 2: value-collision suppression.
	if opts.ValueCollision {
		firstByValue := make(map[int64]string)
		for _, rec := range ds.Records {
			if !ds.Included(rec.Name) || rec.DerivedTotal == 0 {
				continue
			}
			k := collisionKey(rec.DerivedTotal)
			if kept, ok := firstByValue[k]; ok {
				if opts.pinned(rec.Name) {
					continue
				}
				record(Suppression{
					Account: rec.Name,
					Bucket:  ds.Bucket(rec.Name),
					Reason:  ReasonValueCollision,
					Kept:    kept,
				})
				continue
			}
			firstByValue[k] = rec.Name
		}
	}

	// Pass 3: total-bucket exclusivity.
	firstByBucket := make(map[domain.BucketKey]string)
	for _, rec := range ds.Records {
		if !ds.Included(rec.Name) {
			continue
		}
		bucket := ds.Bucket(rec.Name)
		def, ok := reg.Get(bucket)
		if !ok || !def.IsTotal() {
			continue
		}
		if kept, claimed := firstByBucket[bucket]; claimed {
			if opts.pinned(rec.Name) {
				continue
			}
			record(Suppression{
				Account: rec.Name,
				Bucket:  bucket,
				Reason:  ReasonTotalExclusivity,
				Kept:    kept,
			})
			continue
		}
		firstByBucket[bucket] = rec.Name
	}

	return suppressions
}
