// Package normalize converts parsed spreadsheet rows into canonical account
// records with per-period amounts and a derived total.
package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rumor-ml/propsheet/internal/domain"
)

// Row is one parsed spreadsheet row: an ordered list of column names plus the
// cell value per column. Column order is preserved because it becomes the
// time-series period order.
type Row struct {
	Columns []string
	Cells   map[string]string
}

// NewRow creates a row from an ordered header and matching cell values.
// Extra cells beyond the header are dropped; missing cells become empty.
func NewRow(columns []string, cells []string) Row {
	r := Row{
		Columns: append([]string(nil), columns...),
		Cells:   make(map[string]string, len(columns)),
	}
	for i, col := range columns {
		if i < len(cells) {
			r.Cells[col] = cells[i]
		} else {
			r.Cells[col] = ""
		}
	}
	return r
}

// Issue records a malformed cell encountered during normalization. Parsing
// problems degrade the cell to zero and never abort the row.
type Issue struct {
	Row     int
	Account string
	Column  string
	Value   string
	Err     string
}

func (i Issue) String() string {
	return fmt.Sprintf("row %d (%s) column %q: %s: %q", i.Row, i.Account, i.Column, i.Err, i.Value)
}

// accountColumnPattern matches column names that hold the account display name.
var accountColumnPattern = regexp.MustCompile(`(?i)account|name|description|item`)

// DetectAccountColumn returns the first column whose name looks like an account
// name column, else the first column. Returns "" only for an empty header.
func DetectAccountColumn(columns []string) string {
	for _, col := range columns {
		if accountColumnPattern.MatchString(col) {
			return col
		}
	}
	if len(columns) > 0 {
		return columns[0]
	}
	return ""
}

// totalLabels are the period labels treated as an explicit total column, in
// priority order. When several total-like columns exist, the earlier entry in
// this list wins regardless of column order; ties on the same label fall back
// to column order.
var totalLabels = []string{"total", "totals", "grand total", "sum"}

// IsTotalLabel reports whether the period label names a total-like column.
func IsTotalLabel(label string) bool {
	norm := strings.ToLower(strings.TrimSpace(label))
	for _, l := range totalLabels {
		if norm == l {
			return true
		}
	}
	return false
}

// DerivedTotal computes the canonical per-account total. If an explicit
// total-like column exists its value is used (by the totalLabels priority
// list); otherwise all non-total period values are summed. This is the single
// implementation of the rule; suppression and aggregation reuse its output
// through AccountRecord.DerivedTotal.
func DerivedTotal(periods []domain.Period) float64 {
	for _, want := range totalLabels {
		for _, p := range periods {
			if strings.ToLower(strings.TrimSpace(p.Label)) == want {
				return p.Amount
			}
		}
	}

	var sum float64
	for _, p := range periods {
		if IsTotalLabel(p.Label) {
			continue
		}
		sum += p.Amount
	}
	return sum
}

// thousandsReplacer strips formatting that strconv cannot digest.
var thousandsReplacer = strings.NewReplacer(",", "", "$", "", " ", "")

// ParseAmount coerces a spreadsheet cell to a number. Thousands separators and
// currency signs are stripped and parenthesized values become negative:
// "(123)" parses to -123. An empty cell is zero without error.
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return 0, nil
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	s = thousandsReplacer.Replace(s)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %w", err)
	}
	if negative {
		v = -v
	}
	return v, nil
}

// Record converts one row into an account record. Malformed cells degrade to
// zero and are reported as issues; the record is always produced. The rowIdx
// is only used for issue reporting.
func Record(row Row, accountColumn string, rowIdx int) (domain.AccountRecord, []Issue) {
	name := strings.TrimSpace(row.Cells[accountColumn])

	var issues []Issue
	periods := make([]domain.Period, 0, len(row.Columns))
	for _, col := range row.Columns {
		if col == accountColumn {
			continue
		}
		amount, err := ParseAmount(row.Cells[col])
		if err != nil {
			issues = append(issues, Issue{
				Row:     rowIdx,
				Account: name,
				Column:  col,
				Value:   row.Cells[col],
				Err:     err.Error(),
			})
		}
		periods = append(periods, domain.Period{Label: col, Amount: amount})
	}

	return domain.AccountRecord{
		Name:         name,
		Periods:      periods,
		DerivedTotal: DerivedTotal(periods),
	}, issues
}

// Records normalizes an ordered sequence of rows. The account column is
// detected from the first row's header. Rows with an empty account name are
// skipped. Returned issues cover every malformed cell across all rows.
func Records(rows []Row) ([]domain.AccountRecord, []Issue) {
	if len(rows) == 0 {
		return nil, nil
	}

	accountCol := DetectAccountColumn(rows[0].Columns)

	var (
		records []domain.AccountRecord
		issues  []Issue
	)
	for i, row := range rows {
		rec, recIssues := Record(row, accountCol, i)
		issues = append(issues, recIssues...)
		if rec.Name == "" {
			continue
		}
		records = append(records, rec)
	}
	return records, issues
}
