// Package aggregate combines included accounts across datasets into per-bucket
// totals and checks item-level sums against declared totals. Everything here
// is pure and recomputed on demand; nothing is stored.
package aggregate

import (
	"math"

	"github.com/rumor-ml/propsheet/internal/domain"
	"github.com/rumor-ml/propsheet/internal/registry"
)

// Epsilon is the tolerance for item-vs-total comparisons.
const Epsilon = 0.01

// Result carries derived per-bucket totals. Never persisted.
type Result struct {
	Totals map[domain.BucketKey]float64 `json:"totals"`
}

// BucketTotals accumulates derived totals for every included, non-excluded
// account across the active saved datasets plus the optional live in-progress
// dataset. When a live dataset is supplied, its saved counterpart (matched by
// ID) is skipped so the dataset is never counted twice:
//
//	result = Σ(active saved, excluding the one being edited) + Σ(live)
func BucketTotals(datasets []*domain.Dataset, live *domain.Dataset) Result {
	totals := make(map[domain.BucketKey]float64)

	for _, ds := range datasets {
		if !ds.Active {
			continue
		}
		if live != nil && ds.ID == live.ID {
			continue
		}
		accumulate(totals, ds)
	}

	if live != nil {
		accumulate(totals, live)
	}

	return Result{Totals: totals}
}

func accumulate(totals map[domain.BucketKey]float64, ds *domain.Dataset) {
	for _, rec := range ds.Records {
		if !ds.Included(rec.Name) {
			continue
		}
		bucket := ds.Bucket(rec.Name)
		if bucket == domain.KeyExclude {
			continue
		}
		totals[bucket] += rec.DerivedTotal
	}
}

// Report compares item-level sums against the declared total buckets.
// Advisory only: mismatches are surfaced to the user, never auto-corrected,
// and never block saving.
type Report struct {
	IncomeItemsSum      float64 `json:"incomeItemsSum"`
	IncomeTotalDeclared float64 `json:"incomeTotalDeclared"`
	IncomeMismatch      bool    `json:"incomeMismatch"`
	IncomeDelta         float64 `json:"incomeDelta"`

	ExpenseItemsSum      float64 `json:"expenseItemsSum"`
	ExpenseTotalDeclared float64 `json:"expenseTotalDeclared"`
	ExpenseMismatch      bool    `json:"expenseMismatch"`
	ExpenseDelta         float64 `json:"expenseDelta"`

	NetOperatingIncome float64 `json:"netOperatingIncome"`
}

// Reconcile builds the item-vs-total report for a set of bucket totals.
// Item sums cover every bucket with the plain income or expense category;
// declared totals cover the total-type income and expense categories. Net
// operating income is the explicitly assigned bucket's value when one exists,
// otherwise declared income minus declared expenses.
func Reconcile(res Result, reg *registry.Registry) Report {
	var rep Report

	for _, def := range reg.Definitions() {
		v, ok := res.Totals[def.Key]
		if !ok {
			continue
		}
		switch def.Category {
		case domain.CategoryIncome:
			rep.IncomeItemsSum += v
		case domain.CategoryIncomeTotal:
			rep.IncomeTotalDeclared += v
		case domain.CategoryExpense:
			rep.ExpenseItemsSum += v
		case domain.CategoryExpenseTotal:
			rep.ExpenseTotalDeclared += v
		}
	}

	rep.IncomeDelta = rep.IncomeTotalDeclared - rep.IncomeItemsSum
	rep.IncomeMismatch = math.Abs(rep.IncomeDelta) > Epsilon
	rep.ExpenseDelta = rep.ExpenseTotalDeclared - rep.ExpenseItemsSum
	rep.ExpenseMismatch = math.Abs(rep.ExpenseDelta) > Epsilon

	if noi, ok := res.Totals[domain.KeyNetOperatingIncome]; ok {
		rep.NetOperatingIncome = noi
	} else {
		rep.NetOperatingIncome = rep.IncomeTotalDeclared - rep.ExpenseTotalDeclared
	}

	return rep
}
