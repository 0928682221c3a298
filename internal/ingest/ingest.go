// Package ingest finds spreadsheet exports on disk and turns them into
// normalized rows for the engine.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rumor-ml/propsheet/internal/domain"
	"github.com/rumor-ml/propsheet/internal/normalize"
)

// Scanner walks a directory tree and finds spreadsheet files.
type Scanner struct {
	rootDir string
}

// NewScanner creates a scanner for the given root directory.
func NewScanner(rootDir string) *Scanner {
	return &Scanner{rootDir: rootDir}
}

// ScanResult is a found file with the file type inferred from its path.
type ScanResult struct {
	Path     string
	Name     string
	FileType domain.FileType
}

// Scan walks the directory tree and returns every CSV file found, with the
// file type detected from path keywords.
func (s *Scanner) Scan() ([]ScanResult, error) {
	var results []ScanResult

	rootDir := s.expandHome(s.rootDir)

	err := filepath.Walk(rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if strings.ToLower(filepath.Ext(path)) != ".csv" {
			return nil
		}
		results = append(results, ScanResult{
			Path:     path,
			Name:     datasetName(path),
			FileType: DetectFileType(path),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	return results, nil
}

// expandHome expands ~ to the home directory.
func (s *Scanner) expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// datasetName converts a file path to a readable dataset name.
// "exports/maple_court_cash_flow.csv" -> "Maple Court Cash Flow"
func datasetName(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	base = strings.ReplaceAll(base, "_", " ")
	base = strings.ReplaceAll(base, "-", " ")

	words := strings.Fields(base)
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

// DetectFileType infers the statement type from keywords anywhere in the
// path. Unrecognized paths fall back to the general type, which still gets
// term matching and the generic category fallbacks.
func DetectFileType(path string) domain.FileType {
	p := strings.ToLower(filepath.ToSlash(path))
	switch {
	case strings.Contains(p, "cash_flow") || strings.Contains(p, "cash flow") || strings.Contains(p, "cashflow"):
		return domain.FileTypeCashFlow
	case strings.Contains(p, "balance"):
		return domain.FileTypeBalanceSheet
	case strings.Contains(p, "rent_roll") || strings.Contains(p, "rent roll") || strings.Contains(p, "rentroll"):
		return domain.FileTypeRentRoll
	case strings.Contains(p, "income") || strings.Contains(p, "p&l") || strings.Contains(p, "profit"):
		return domain.FileTypeIncomeStatement
	default:
		return domain.FileTypeGeneral
	}
}

// ReadRows parses CSV content into rows using the first record as the header.
// Ragged rows are tolerated; short rows leave trailing columns empty.
func ReadRows(r io.Reader) ([]normalize.Row, error) {
	cr := csv.NewReader(r)
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows []normalize.Row
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", len(rows)+2, err)
		}
		rows = append(rows, normalize.NewRow(header, record))
	}
	return rows, nil
}

// ReadFile parses a CSV file into rows.
func ReadFile(path string) ([]normalize.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	rows, err := ReadRows(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}
