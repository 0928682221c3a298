package propsheet_test

import (
	"context"
	"strings"
	"testing"

	"github.com/rumor-ml/propsheet/internal/ai"
	"github.com/rumor-ml/propsheet/internal/domain"
	"github.com/rumor-ml/propsheet/internal/ingest"
	"github.com/rumor-ml/propsheet/internal/memory"
	"github.com/rumor-ml/propsheet/internal/registry"
	"github.com/rumor-ml/propsheet/internal/session"
	"github.com/rumor-ml/propsheet/internal/store"
	"github.com/rumor-ml/propsheet/internal/suppress"
)

// marchStatement is a realistic export: duplicate grand-total rows under two
// labels, a declared total row, a zero row, and a malformed cell.
const marchStatement = `Account,Jan,Feb,Mar,Total
Rental Income,1000,1200,1100,3300
Laundry Income,40,35,45,120
Pet Fees,30,30,30,90
Total Operating Income,1070,1265,1175,3510
Gross Income,1070,1265,1175,3510
Repairs and Maintenance,250,180,abc,430
Insurance,120,120,120,360
Total Operating Expenses,370,300,120,790
Vacant Unit Adjustment,0,0,0,0
`

func newEngine(t *testing.T) (*session.Session, *store.Memory) {
	t.Helper()
	reg, err := registry.New()
	if err != nil {
		t.Fatalf("registry.New failed: %v", err)
	}
	st := store.NewMemory()
	sess, err := session.New(session.Config{
		Registry: reg,
		Memory:   memory.New(st, nil),
		Store:    st,
		Oracle:   ai.NewSectionOracle(),
		Suppress: suppress.DefaultOptions(),
	})
	if err != nil {
		t.Fatalf("session.New failed: %v", err)
	}
	return sess, st
}

func TestEndToEndCashFlow(t *testing.T) {
	sess, st := newEngine(t)
	ctx := context.Background()

	rows, err := ingest.ReadRows(strings.NewReader(marchStatement))
	if err != nil {
		t.Fatalf("ReadRows failed: %v", err)
	}

	ds, issues, err := sess.Ingest(ctx, "March", domain.FileTypeCashFlow, rows)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	// The malformed cell degrades to zero and is reported, not fatal.
	if len(issues) != 1 {
		t.Errorf("issues = %v; want exactly the malformed cell", issues)
	}
	rec, ok := ds.Record("Repairs and Maintenance")
	if !ok || rec.DerivedTotal != 430 {
		t.Errorf("Repairs derived total = %+v; explicit Total column should win", rec)
	}

	// Term matching routes rows, totals included.
	for name, want := range map[string]domain.BucketKey{
		"Rental Income":            domain.KeyIncomeItem,
		"Laundry Income":           domain.KeyIncomeItem,
		"Pet Fees":                 domain.KeyIncomeItem,
		"Total Operating Income":   domain.KeyTotalOperatingIncome,
		"Gross Income":             domain.KeyTotalOperatingIncome,
		"Repairs and Maintenance":  domain.KeyExpenseItem,
		"Insurance":                domain.KeyExpenseItem,
		"Total Operating Expenses": domain.KeyTotalOperatingExpense,
	} {
		if got := ds.Bucket(name); got != want {
			t.Errorf("%s resolved to %s; want %s", name, got, want)
		}
	}

	// Gross Income repeats the declared total under a second label; the
	// total-bucket exclusivity pass keeps only the first row.
	if ds.Included("Gross Income") {
		t.Error("duplicate declared-total row should be suppressed")
	}
	if !ds.Included("Total Operating Income") {
		t.Error("first declared-total row should stay included")
	}
	if ds.Included("Vacant Unit Adjustment") {
		t.Error("zero-total row should be suppressed")
	}

	suppressed := map[string]bool{}
	for _, s := range sess.Suppressions() {
		suppressed[s.Account] = true
	}
	if !suppressed["Gross Income"] || !suppressed["Vacant Unit Adjustment"] {
		t.Errorf("suppression trail = %v; want both suppressed rows recorded", sess.Suppressions())
	}

	// Persist and check the aggregate view.
	saved, err := sess.SaveLive(ctx)
	if err != nil {
		t.Fatalf("SaveLive failed: %v", err)
	}

	totals := sess.Totals().Totals
	if got := totals[domain.KeyIncomeItem]; got != 3510 {
		t.Errorf("income items = %v; want 3510", got)
	}
	if got := totals[domain.KeyTotalOperatingIncome]; got != 3510 {
		t.Errorf("declared income = %v; want 3510 after suppressing the duplicate", got)
	}
	if got := totals[domain.KeyExpenseItem]; got != 790 {
		t.Errorf("expense items = %v; want 790", got)
	}

	rep := sess.Reconcile()
	if rep.IncomeMismatch {
		t.Errorf("income mismatch with delta %v; items and declared agree", rep.IncomeDelta)
	}
	if rep.ExpenseMismatch {
		t.Errorf("expense mismatch with delta %v; items and declared agree", rep.ExpenseDelta)
	}
	if rep.NetOperatingIncome != 3510-790 {
		t.Errorf("NOI = %v; want %v", rep.NetOperatingIncome, 3510-790)
	}

	// The saved dataset survived the round trip through the store.
	persisted, err := st.LoadDatasets(ctx)
	if err != nil {
		t.Fatalf("LoadDatasets failed: %v", err)
	}
	if len(persisted) != 1 || persisted[0].ID != saved.ID {
		t.Errorf("persisted = %+v; want the saved dataset", persisted)
	}
}

func TestEndToEndCorrectionIsRemembered(t *testing.T) {
	sess, _ := newEngine(t)
	ctx := context.Background()

	statement := "Account,Total\nHOA Dues,150\nRental Income,1000\n"

	rows, _ := ingest.ReadRows(strings.NewReader(statement))
	ds, _, err := sess.Ingest(ctx, "March", domain.FileTypeCashFlow, rows)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if got := ds.Bucket("HOA Dues"); got != domain.KeyExclude {
		t.Fatalf("HOA Dues resolved to %s before correction; want exclude", got)
	}

	if err := sess.AssignBucket(ctx, "HOA Dues", domain.KeyExpenseItem); err != nil {
		t.Fatalf("AssignBucket failed: %v", err)
	}
	if _, err := sess.SaveLive(ctx); err != nil {
		t.Fatalf("SaveLive failed: %v", err)
	}

	// A later upload with different spacing and case still hits the learned
	// assignment through key normalization.
	statement = "Account,Total\nHOA  DUES,175\n"
	rows, _ = ingest.ReadRows(strings.NewReader(statement))
	next, _, err := sess.Ingest(ctx, "April", domain.FileTypeCashFlow, rows)
	if err != nil {
		t.Fatalf("second Ingest failed: %v", err)
	}
	if got := next.Bucket("HOA  DUES"); got != domain.KeyExpenseItem {
		t.Errorf("HOA DUES resolved to %s; want the remembered expense_item", got)
	}
}

func TestEndToEndEditWithoutDoubleCounting(t *testing.T) {
	sess, _ := newEngine(t)
	ctx := context.Background()

	rows, _ := ingest.ReadRows(strings.NewReader(marchStatement))
	if _, _, err := sess.Ingest(ctx, "March", domain.FileTypeCashFlow, rows); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	saved, err := sess.SaveLive(ctx)
	if err != nil {
		t.Fatalf("SaveLive failed: %v", err)
	}

	base := sess.Totals().Totals[domain.KeyIncomeItem]
	if _, err := sess.OpenForEdit(saved.ID); err != nil {
		t.Fatalf("OpenForEdit failed: %v", err)
	}
	if got := sess.Totals().Totals[domain.KeyIncomeItem]; got != base {
		t.Errorf("totals while editing = %v; want %v (dataset counted once)", got, base)
	}

	if err := sess.ToggleInclusion("Pet Fees", false); err != nil {
		t.Fatalf("ToggleInclusion failed: %v", err)
	}
	if _, err := sess.SaveLive(ctx); err != nil {
		t.Fatalf("second SaveLive failed: %v", err)
	}
	if got := sess.Totals().Totals[domain.KeyIncomeItem]; got != base-90 {
		t.Errorf("totals after exclusion = %v; want %v", got, base-90)
	}
}
