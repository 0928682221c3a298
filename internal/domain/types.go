// Package domain defines the core types for spreadsheet bucket classification:
// datasets, account records, bucket definitions and learning-memory entries.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// FileType identifies the kind of financial spreadsheet a dataset came from.
// Use ValidateFileType to ensure validity before use.
type FileType string

const (
	FileTypeCashFlow        FileType = "cash_flow"
	FileTypeBalanceSheet    FileType = "balance_sheet"
	FileTypeRentRoll        FileType = "rent_roll"
	FileTypeIncomeStatement FileType = "income_statement"
	FileTypeGeneral         FileType = "general"
)

// Category is the semantic category of a bucket. The base set covers line items;
// a category whose name contains "total" marks a total-type bucket, which is
// subject to at-most-one-included-account exclusivity per dataset.
type Category string

const (
	CategoryIncome       Category = "income"
	CategoryExpense      Category = "expense"
	CategoryCash         Category = "cash"
	CategoryNetIncome    Category = "net_income"
	CategoryExclude      Category = "exclude"
	CategoryIncomeTotal  Category = "income_total"
	CategoryExpenseTotal Category = "expense_total"
)

// IsTotal reports whether this category marks a total-type bucket.
// The naming convention (substring "total") is the authoritative marker;
// there is no separate flag.
func (c Category) IsTotal() bool {
	return strings.Contains(strings.ToLower(string(c)), "total")
}

// AICategory is the opaque label supplied by the external classification oracle.
// It is consumed as an input, never computed here.
type AICategory string

const (
	AICategoryIncome  AICategory = "income"
	AICategoryExpense AICategory = "expense"
	AICategoryCash    AICategory = "cash"
	AICategoryUnknown AICategory = "unknown"
)

// BucketKey identifies a bucket definition in the registry.
type BucketKey string

// Well-known bucket keys. The registry may carry additional custom buckets;
// these constants exist because the resolver's category fallbacks and the
// reconciliation report reference them directly.
const (
	KeyIncomeItem            BucketKey = "income_item"
	KeyOtherIncome           BucketKey = "other_income"
	KeyExpenseItem           BucketKey = "expense_item"
	KeyOperatingExpenses     BucketKey = "operating_expenses"
	KeyCashAmount            BucketKey = "cash_amount"
	KeyNetOperatingIncome    BucketKey = "net_operating_income"
	KeyTotalOperatingIncome  BucketKey = "total_operating_income"
	KeyTotalOperatingExpense BucketKey = "total_operating_expenses"
	KeyExclude               BucketKey = "exclude"
)

var (
	validFileTypes = map[FileType]struct{}{
		FileTypeCashFlow: {}, FileTypeBalanceSheet: {}, FileTypeRentRoll: {},
		FileTypeIncomeStatement: {}, FileTypeGeneral: {},
	}

	validCategories = map[Category]struct{}{
		CategoryIncome: {}, CategoryExpense: {}, CategoryCash: {},
		CategoryNetIncome: {}, CategoryExclude: {},
		CategoryIncomeTotal: {}, CategoryExpenseTotal: {},
	}

	validAICategories = map[AICategory]struct{}{
		AICategoryIncome: {}, AICategoryExpense: {},
		AICategoryCash: {}, AICategoryUnknown: {},
	}
)

// ValidateFileType checks if the file type is valid.
func ValidateFileType(t FileType) bool {
	_, ok := validFileTypes[t]
	return ok
}

// ValidateCategory checks if the category is valid.
func ValidateCategory(c Category) bool {
	_, ok := validCategories[c]
	return ok
}

// ValidateAICategory checks if the AI category label is valid.
func ValidateAICategory(c AICategory) bool {
	_, ok := validAICategories[c]
	return ok
}

// Sentinel errors shared across packages.
var (
	ErrAlreadyExists = errors.New("already exists")
	ErrNotFound      = errors.New("not found")
)

// Period is one column of an account's time series. Slice order is column order.
type Period struct {
	Label  string  `json:"label" firestore:"label"`
	Amount float64 `json:"amount" firestore:"amount"`
}

// AccountRecord is one line item within one dataset. Records are created once
// during normalization and treated as immutable afterwards; corrections replace
// the dataset, not the record.
type AccountRecord struct {
	Name         string   `json:"name" firestore:"name"`
	Periods      []Period `json:"periods" firestore:"periods"`
	DerivedTotal float64  `json:"derivedTotal" firestore:"derivedTotal"`
}

// NewAccountRecord creates a validated account record.
func NewAccountRecord(name string, periods []Period, derivedTotal float64) (*AccountRecord, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("account name cannot be empty")
	}
	return &AccountRecord{
		Name:         name,
		Periods:      append([]Period(nil), periods...),
		DerivedTotal: derivedTotal,
	}, nil
}

// Dataset is one uploaded file's processed state. Records are an immutable
// ordered sequence; the inclusion and bucket maps are the only mutable overlay.
type Dataset struct {
	ID           string                `json:"id" firestore:"id"`
	Name         string                `json:"name" firestore:"name"`
	FileType     FileType              `json:"fileType" firestore:"fileType"`
	Active       bool                  `json:"active" firestore:"active"`
	Records      []AccountRecord       `json:"records" firestore:"records"`
	Inclusion    map[string]bool       `json:"inclusion" firestore:"inclusion"`
	Buckets      map[string]BucketKey  `json:"buckets" firestore:"buckets"`
	AICategories map[string]AICategory `json:"aiCategories" firestore:"aiCategories"`
	CreatedAt    time.Time             `json:"createdAt" firestore:"createdAt"`
}

// NewDataset creates an empty dataset with initialized maps.
func NewDataset(id, name string, fileType FileType) (*Dataset, error) {
	if id == "" {
		return nil, fmt.Errorf("dataset ID cannot be empty")
	}
	if !ValidateFileType(fileType) {
		return nil, fmt.Errorf("invalid file type: %s", fileType)
	}
	return &Dataset{
		ID:           id,
		Name:         name,
		FileType:     fileType,
		Active:       true,
		Records:      []AccountRecord{},
		Inclusion:    map[string]bool{},
		Buckets:      map[string]BucketKey{},
		AICategories: map[string]AICategory{},
		CreatedAt:    time.Now(),
	}, nil
}

// AddRecord appends a record and seeds its default inclusion flag: false when
// the derived total is zero, true otherwise. Duplicate account names are
// rejected because the inclusion and bucket overlays are keyed by name.
func (d *Dataset) AddRecord(rec AccountRecord) error {
	if rec.Name == "" {
		return fmt.Errorf("account name cannot be empty")
	}
	if _, ok := d.Inclusion[rec.Name]; ok {
		return fmt.Errorf("account %q: %w", rec.Name, ErrAlreadyExists)
	}
	d.Records = append(d.Records, rec)
	d.Inclusion[rec.Name] = rec.DerivedTotal != 0
	return nil
}

// Record returns the record with the given account name.
func (d *Dataset) Record(name string) (*AccountRecord, bool) {
	for i := range d.Records {
		if d.Records[i].Name == name {
			return &d.Records[i], true
		}
	}
	return nil, false
}

// Included reports whether the named account currently counts toward totals.
func (d *Dataset) Included(name string) bool {
	return d.Inclusion[name]
}

// Bucket returns the bucket currently assigned to the named account.
// Unassigned accounts resolve to the exclude bucket.
func (d *Dataset) Bucket(name string) BucketKey {
	if b, ok := d.Buckets[name]; ok {
		return b
	}
	return KeyExclude
}

// AICategory returns the oracle label for the named account, defaulting to
// unknown when the oracle never supplied one.
func (d *Dataset) AICategory(name string) AICategory {
	if c, ok := d.AICategories[name]; ok {
		return c
	}
	return AICategoryUnknown
}

// Clone returns a deep copy. Used to open a saved dataset for editing without
// mutating the persisted copy.
func (d *Dataset) Clone() *Dataset {
	out := &Dataset{
		ID:           d.ID,
		Name:         d.Name,
		FileType:     d.FileType,
		Active:       d.Active,
		Records:      make([]AccountRecord, len(d.Records)),
		Inclusion:    make(map[string]bool, len(d.Inclusion)),
		Buckets:      make(map[string]BucketKey, len(d.Buckets)),
		AICategories: make(map[string]AICategory, len(d.AICategories)),
		CreatedAt:    d.CreatedAt,
	}
	for i, rec := range d.Records {
		out.Records[i] = AccountRecord{
			Name:         rec.Name,
			Periods:      append([]Period(nil), rec.Periods...),
			DerivedTotal: rec.DerivedTotal,
		}
	}
	for k, v := range d.Inclusion {
		out.Inclusion[k] = v
	}
	for k, v := range d.Buckets {
		out.Buckets[k] = v
	}
	for k, v := range d.AICategories {
		out.AICategories[k] = v
	}
	return out
}

// Provenance records how a learning-memory entry came to be.
type Provenance string

const (
	// ProvenanceUser marks an assignment explicitly confirmed by a user.
	ProvenanceUser Provenance = "user"
	// ProvenanceSuggested marks an assignment recorded from an automatic resolution.
	ProvenanceSuggested Provenance = "suggested"
)

// LearningEntry is one persisted account-to-bucket assignment, keyed by the
// normalized account name and file type. Concurrent writers resolve
// last-write-wins by UpdatedAt.
type LearningEntry struct {
	AccountKey string     `json:"accountKey" firestore:"accountKey"`
	FileType   FileType   `json:"fileType"   firestore:"fileType"`
	Bucket     BucketKey  `json:"bucket"     firestore:"bucket"`
	Provenance Provenance `json:"provenance" firestore:"provenance"`
	Confidence float64    `json:"confidence" firestore:"confidence"`
	UsageCount int        `json:"usageCount" firestore:"usageCount"`
	UpdatedAt  time.Time  `json:"updatedAt"  firestore:"updatedAt"`
}

// Validate checks entry invariants.
func (e *LearningEntry) Validate() error {
	if e.AccountKey == "" {
		return fmt.Errorf("account key cannot be empty")
	}
	if !ValidateFileType(e.FileType) {
		return fmt.Errorf("invalid file type: %s", e.FileType)
	}
	if e.Bucket == "" {
		return fmt.Errorf("bucket cannot be empty")
	}
	if e.Provenance != ProvenanceUser && e.Provenance != ProvenanceSuggested {
		return fmt.Errorf("invalid provenance: %s", e.Provenance)
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return fmt.Errorf("confidence must be in [0,1], got %f", e.Confidence)
	}
	return nil
}
