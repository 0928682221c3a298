package validate

import (
	"strings"
	"testing"

	"github.com/rumor-ml/propsheet/internal/domain"
	"github.com/rumor-ml/propsheet/internal/registry"
)

func validDataset(t *testing.T) *domain.Dataset {
	t.Helper()
	ds, err := domain.NewDataset("ds-1", "March", domain.FileTypeCashFlow)
	if err != nil {
		t.Fatalf("NewDataset failed: %v", err)
	}
	rec, err := domain.NewAccountRecord("Rental Income", []domain.Period{{Label: "Jan", Amount: 1000}}, 1000)
	if err != nil {
		t.Fatalf("NewAccountRecord failed: %v", err)
	}
	if err := ds.AddRecord(*rec); err != nil {
		t.Fatalf("AddRecord failed: %v", err)
	}
	ds.Buckets["Rental Income"] = domain.KeyIncomeItem
	return ds
}

func TestValidDatasetPasses(t *testing.T) {
	reg, err := registry.New()
	if err != nil {
		t.Fatalf("registry.New failed: %v", err)
	}

	result := ValidateDataset(validDataset(t), reg)
	if result.HasErrors() {
		t.Errorf("unexpected errors: %+v", result.Errors)
	}
	if err := result.Error(); err != nil {
		t.Errorf("Error() = %v; want nil", err)
	}
}

func TestNilDataset(t *testing.T) {
	result := ValidateDataset(nil, nil)
	if !result.HasErrors() {
		t.Fatal("nil dataset should fail")
	}
}

func TestDatasetFieldErrors(t *testing.T) {
	ds := validDataset(t)
	ds.ID = ""
	ds.Name = ""
	ds.FileType = "quarterly"

	result := ValidateDataset(ds, nil)
	if len(result.Errors) != 3 {
		t.Fatalf("got %d errors; want 3: %+v", len(result.Errors), result.Errors)
	}
	fields := map[string]bool{}
	for _, e := range result.Errors {
		fields[e.Field] = true
	}
	for _, f := range []string{"ID", "Name", "FileType"} {
		if !fields[f] {
			t.Errorf("missing error for field %s", f)
		}
	}
}

func TestDuplicateAccountName(t *testing.T) {
	ds := validDataset(t)
	// Bypass AddRecord, which guards duplicates itself.
	ds.Records = append(ds.Records, ds.Records[0])

	result := ValidateDataset(ds, nil)
	if !result.HasErrors() {
		t.Fatal("duplicate account name should fail")
	}
	if got := result.Errors[0].Message; got != "duplicate account name" {
		t.Errorf("message = %q", got)
	}
}

func TestOverlayReferentialIntegrity(t *testing.T) {
	ds := validDataset(t)
	ds.Inclusion["Ghost Account"] = true
	ds.Buckets["Another Ghost"] = domain.KeyExpenseItem

	result := ValidateDataset(ds, nil)
	if len(result.Errors) != 2 {
		t.Fatalf("got %d errors; want 2: %+v", len(result.Errors), result.Errors)
	}
	for _, e := range result.Errors {
		if !strings.Contains(e.Message, "unknown account") {
			t.Errorf("unexpected error: %+v", e)
		}
	}
}

func TestUndefinedBucketRequiresRegistry(t *testing.T) {
	ds := validDataset(t)
	ds.Buckets["Rental Income"] = "made_up_bucket"

	// Without a registry the assignment is accepted.
	if result := ValidateDataset(ds, nil); result.HasErrors() {
		t.Errorf("unexpected errors without registry: %+v", result.Errors)
	}

	reg, _ := registry.New()
	result := ValidateDataset(ds, reg)
	if !result.HasErrors() {
		t.Fatal("undefined bucket should fail against the registry")
	}
	if got := result.Errors[0].Value; got != "made_up_bucket" {
		t.Errorf("error value = %q; want made_up_bucket", got)
	}
}

func TestWarnings(t *testing.T) {
	ds := validDataset(t)
	rec, _ := domain.NewAccountRecord("No Periods", nil, 0)
	if err := ds.AddRecord(*rec); err != nil {
		t.Fatalf("AddRecord failed: %v", err)
	}
	delete(ds.Inclusion, "No Periods")

	result := ValidateDataset(ds, nil)
	if result.HasErrors() {
		t.Fatalf("unexpected errors: %+v", result.Errors)
	}

	messages := map[string]bool{}
	for _, w := range result.Warnings {
		messages[w.Message] = true
	}
	if !messages["account has no period values"] {
		t.Error("missing no-periods warning")
	}
	if !messages["account has no inclusion flag"] {
		t.Error("missing inclusion-flag warning")
	}
}

func TestAllExcludedWarning(t *testing.T) {
	ds := validDataset(t)
	ds.Inclusion["Rental Income"] = false

	result := ValidateDataset(ds, nil)
	if result.HasErrors() {
		t.Fatalf("unexpected errors: %+v", result.Errors)
	}
	found := false
	for _, w := range result.Warnings {
		if w.Field == "Inclusion" && w.Entity == "dataset" {
			found = true
		}
	}
	if !found {
		t.Error("missing all-excluded warning")
	}
}
