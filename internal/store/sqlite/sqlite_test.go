package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rumor-ml/propsheet/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "propsheet.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func entry(account string, bucket domain.BucketKey, updatedAt time.Time) domain.LearningEntry {
	return domain.LearningEntry{
		AccountKey: account,
		FileType:   domain.FileTypeCashFlow,
		Bucket:     bucket,
		Provenance: domain.ProvenanceUser,
		Confidence: 1.0,
		UsageCount: 1,
		UpdatedAt:  updatedAt,
	}
}

func TestMemoryRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := s.SaveMemory(ctx, entry("rental income", domain.KeyIncomeItem, now)); err != nil {
		t.Fatalf("SaveMemory failed: %v", err)
	}
	if err := s.SaveMemory(ctx, entry("advertising", domain.KeyExpenseItem, now)); err != nil {
		t.Fatalf("SaveMemory failed: %v", err)
	}

	got, err := s.LoadMemory(ctx, domain.FileTypeCashFlow)
	if err != nil {
		t.Fatalf("LoadMemory failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("loaded %d entries; want 2", len(got))
	}
	if got[0].AccountKey != "advertising" || got[1].AccountKey != "rental income" {
		t.Errorf("order = %s, %s; want advertising, rental income", got[0].AccountKey, got[1].AccountKey)
	}
	e := got[1]
	if e.Bucket != domain.KeyIncomeItem || e.Provenance != domain.ProvenanceUser || e.Confidence != 1.0 {
		t.Errorf("entry round trip mismatch: %+v", e)
	}
	if !e.UpdatedAt.Equal(now) {
		t.Errorf("UpdatedAt = %v; want %v", e.UpdatedAt, now)
	}

	other, err := s.LoadMemory(ctx, domain.FileTypeRentRoll)
	if err != nil {
		t.Fatalf("LoadMemory failed: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("rent roll entries = %d; want 0", len(other))
	}
}

func TestUpsertIncrementsUsageCount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := s.SaveMemory(ctx, entry("laundry", domain.KeyIncomeItem, now)); err != nil {
		t.Fatalf("SaveMemory failed: %v", err)
	}
	if err := s.SaveMemory(ctx, entry("laundry", domain.KeyOtherIncome, now.Add(time.Second))); err != nil {
		t.Fatalf("SaveMemory upsert failed: %v", err)
	}

	got, _ := s.LoadMemory(ctx, domain.FileTypeCashFlow)
	if len(got) != 1 {
		t.Fatalf("loaded %d entries; want 1", len(got))
	}
	if got[0].Bucket != domain.KeyOtherIncome {
		t.Errorf("bucket = %s; want other_income", got[0].Bucket)
	}
	if got[0].UsageCount != 2 {
		t.Errorf("usage count = %d; want 2", got[0].UsageCount)
	}
}

func TestStaleWriteLoses(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := s.SaveMemory(ctx, entry("laundry", domain.KeyIncomeItem, now)); err != nil {
		t.Fatalf("SaveMemory failed: %v", err)
	}
	if err := s.SaveMemory(ctx, entry("laundry", domain.KeyExclude, now.Add(-time.Hour))); err != nil {
		t.Fatalf("stale SaveMemory failed: %v", err)
	}

	got, _ := s.LoadMemory(ctx, domain.FileTypeCashFlow)
	if len(got) != 1 || got[0].Bucket != domain.KeyIncomeItem {
		t.Errorf("entries = %+v; want the newer income_item entry", got)
	}
}

func TestSaveMemoryRejectsInvalidEntry(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveMemory(context.Background(), entry("", domain.KeyIncomeItem, time.Now())); err == nil {
		t.Error("empty account key should be rejected")
	}
}

func TestDatasetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ds, err := domain.NewDataset("ds-1", "March Cash Flow", domain.FileTypeCashFlow)
	if err != nil {
		t.Fatalf("NewDataset failed: %v", err)
	}
	rec, _ := domain.NewAccountRecord("Rental Income", []domain.Period{{Label: "Jan", Amount: 1000}}, 1000)
	if err := ds.AddRecord(*rec); err != nil {
		t.Fatalf("AddRecord failed: %v", err)
	}
	ds.Buckets["Rental Income"] = domain.KeyIncomeItem

	if err := s.SaveDataset(ctx, ds); err != nil {
		t.Fatalf("SaveDataset failed: %v", err)
	}

	got, err := s.LoadDatasets(ctx)
	if err != nil {
		t.Fatalf("LoadDatasets failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("loaded %d datasets; want 1", len(got))
	}
	loaded := got[0]
	if loaded.ID != "ds-1" || loaded.Name != "March Cash Flow" || loaded.FileType != domain.FileTypeCashFlow {
		t.Errorf("dataset header mismatch: %+v", loaded)
	}
	if len(loaded.Records) != 1 || loaded.Records[0].DerivedTotal != 1000 {
		t.Errorf("records mismatch: %+v", loaded.Records)
	}
	if loaded.Bucket("Rental Income") != domain.KeyIncomeItem {
		t.Errorf("bucket overlay lost: %v", loaded.Buckets)
	}
	if !loaded.Included("Rental Income") {
		t.Error("inclusion overlay lost")
	}
}

func TestDatasetUpsertReplaces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ds, _ := domain.NewDataset("ds-1", "March", domain.FileTypeCashFlow)
	if err := s.SaveDataset(ctx, ds); err != nil {
		t.Fatalf("SaveDataset failed: %v", err)
	}

	ds.Name = "March (revised)"
	ds.Active = false
	if err := s.SaveDataset(ctx, ds); err != nil {
		t.Fatalf("SaveDataset upsert failed: %v", err)
	}

	got, _ := s.LoadDatasets(ctx)
	if len(got) != 1 {
		t.Fatalf("loaded %d datasets; want 1", len(got))
	}
	if got[0].Name != "March (revised)" || got[0].Active {
		t.Errorf("upsert not applied: %+v", got[0])
	}
}

func TestLoadDatasetsOrdersByCreation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	older, _ := domain.NewDataset("a", "January", domain.FileTypeCashFlow)
	newer, _ := domain.NewDataset("b", "February", domain.FileTypeCashFlow)
	newer.CreatedAt = older.CreatedAt.Add(time.Minute)

	if err := s.SaveDataset(ctx, newer); err != nil {
		t.Fatalf("SaveDataset failed: %v", err)
	}
	if err := s.SaveDataset(ctx, older); err != nil {
		t.Fatalf("SaveDataset failed: %v", err)
	}

	got, _ := s.LoadDatasets(ctx)
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("order = %v; want a then b", []string{got[0].ID, got[1].ID})
	}
}

func TestDeleteDataset(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ds, _ := domain.NewDataset("a", "January", domain.FileTypeCashFlow)
	s.SaveDataset(ctx, ds)

	if err := s.DeleteDataset(ctx, "a"); err != nil {
		t.Fatalf("DeleteDataset failed: %v", err)
	}
	if err := s.DeleteDataset(ctx, "a"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second delete err = %v; want ErrNotFound", err)
	}
}

func TestReopenPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "propsheet.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.SaveMemory(ctx, entry("laundry", domain.KeyIncomeItem, time.Now())); err != nil {
		t.Fatalf("SaveMemory failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.LoadMemory(ctx, domain.FileTypeCashFlow)
	if err != nil {
		t.Fatalf("LoadMemory failed: %v", err)
	}
	if len(got) != 1 || got[0].Bucket != domain.KeyIncomeItem {
		t.Errorf("entries after reopen = %+v; want the saved entry", got)
	}
}
