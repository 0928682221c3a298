package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rumor-ml/propsheet/internal/domain"
)

func TestDetectFileType(t *testing.T) {
	tests := []struct {
		path string
		want domain.FileType
	}{
		{"exports/maple_court_cash_flow.csv", domain.FileTypeCashFlow},
		{"Cash Flow 2025.csv", domain.FileTypeCashFlow},
		{"cashflow-q1.csv", domain.FileTypeCashFlow},
		{"balance_sheet_dec.csv", domain.FileTypeBalanceSheet},
		{"rent_roll_march.csv", domain.FileTypeRentRoll},
		{"RentRoll.csv", domain.FileTypeRentRoll},
		{"income_statement.csv", domain.FileTypeIncomeStatement},
		{"p&l-2025.csv", domain.FileTypeIncomeStatement},
		{"profit and loss.csv", domain.FileTypeIncomeStatement},
		{"misc_export.csv", domain.FileTypeGeneral},
	}
	for _, tt := range tests {
		if got := DetectFileType(tt.path); got != tt.want {
			t.Errorf("DetectFileType(%q) = %s; want %s", tt.path, got, tt.want)
		}
	}
}

func TestDatasetName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"exports/maple_court_cash_flow.csv", "Maple Court Cash Flow"},
		{"rent-roll-march.csv", "Rent Roll March"},
		{"Balance.csv", "Balance"},
	}
	for _, tt := range tests {
		if got := datasetName(tt.path); got != tt.want {
			t.Errorf("datasetName(%q) = %q; want %q", tt.path, got, tt.want)
		}
	}
}

func TestReadRows(t *testing.T) {
	csvData := "Account, Jan ,Feb,Total\n" +
		"Rental Income,1000,1200,2200\n" +
		"\"Repairs, Exterior\",200,100,300\n" +
		"Short Row,50\n"

	rows, err := ReadRows(strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("ReadRows failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows; want 3", len(rows))
	}

	// Header cells are trimmed.
	wantCols := []string{"Account", "Jan", "Feb", "Total"}
	for i, col := range wantCols {
		if rows[0].Columns[i] != col {
			t.Errorf("column %d = %q; want %q", i, rows[0].Columns[i], col)
		}
	}

	if got := rows[1].Cells["Account"]; got != "Repairs, Exterior" {
		t.Errorf("quoted cell = %q; want %q", got, "Repairs, Exterior")
	}

	// Short rows leave trailing columns empty rather than failing.
	if got := rows[2].Cells["Feb"]; got != "" {
		t.Errorf("missing cell = %q; want empty", got)
	}
	if got := rows[2].Cells["Jan"]; got != "50" {
		t.Errorf("short row Jan = %q; want 50", got)
	}
}

func TestReadRowsEmptyFile(t *testing.T) {
	if _, err := ReadRows(strings.NewReader("")); err == nil {
		t.Error("empty input should fail")
	}
}

func TestReadRowsHeaderOnly(t *testing.T) {
	rows, err := ReadRows(strings.NewReader("Account,Total\n"))
	if err != nil {
		t.Fatalf("ReadRows failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("got %d rows; want 0", len(rows))
	}
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "maple_court_cash_flow.csv"), "Account,Total\nRent,100\n")
	mustWrite(t, filepath.Join(dir, "notes.txt"), "not a spreadsheet")
	sub := filepath.Join(dir, "2025")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	mustWrite(t, filepath.Join(sub, "rent_roll.CSV"), "Unit,Rent\n101,950\n")

	results, err := NewScanner(dir).Scan()
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("found %d files; want 2", len(results))
	}

	byName := map[string]ScanResult{}
	for _, r := range results {
		byName[r.Name] = r
	}
	cf, ok := byName["Maple Court Cash Flow"]
	if !ok || cf.FileType != domain.FileTypeCashFlow {
		t.Errorf("cash flow result = %+v", cf)
	}
	rr, ok := byName["Rent Roll"]
	if !ok || rr.FileType != domain.FileTypeRentRoll {
		t.Errorf("rent roll result = %+v", rr)
	}
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "statement.csv")
	mustWrite(t, path, "Account,Total\nRent,100\n")

	rows, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(rows) != 1 || rows[0].Cells["Account"] != "Rent" {
		t.Errorf("rows = %+v", rows)
	}

	if _, err := ReadFile(filepath.Join(dir, "missing.csv")); err == nil {
		t.Error("missing file should fail")
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
