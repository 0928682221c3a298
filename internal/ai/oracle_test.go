package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rumor-ml/propsheet/internal/domain"
)

func TestUnknown(t *testing.T) {
	got := Unknown([]string{"Rental Income", "Repairs"})
	if len(got) != 2 {
		t.Fatalf("got %d labels; want 2", len(got))
	}
	for name, c := range got {
		if c != domain.AICategoryUnknown {
			t.Errorf("%s = %s; want unknown", name, c)
		}
	}
}

func TestSectionOracle(t *testing.T) {
	names := []string{
		"Gross Income",
		"Rental Payments",
		"Laundry",
		"Operating Expenses",
		"Repairs",
		"Landscaping",
		"Cash Accounts",
		"Checking",
	}

	got, err := NewSectionOracle().Categorize(context.Background(), names, domain.FileTypeCashFlow)
	if err != nil {
		t.Fatalf("Categorize failed: %v", err)
	}

	want := map[string]domain.AICategory{
		"Gross Income":       domain.AICategoryIncome,
		"Rental Payments":    domain.AICategoryIncome,
		"Laundry":            domain.AICategoryIncome,
		"Operating Expenses": domain.AICategoryExpense,
		"Repairs":            domain.AICategoryExpense,
		"Landscaping":        domain.AICategoryExpense,
		"Cash Accounts":      domain.AICategoryCash,
		"Checking":           domain.AICategoryCash,
	}
	for name, w := range want {
		if got[name] != w {
			t.Errorf("%s = %s; want %s", name, got[name], w)
		}
	}
}

func TestSectionOracleNoHeader(t *testing.T) {
	got, err := NewSectionOracle().Categorize(context.Background(), []string{"Unit 101", "Unit 102"}, domain.FileTypeRentRoll)
	if err != nil {
		t.Fatalf("Categorize failed: %v", err)
	}
	for name, c := range got {
		if c != domain.AICategoryUnknown {
			t.Errorf("%s = %s; want unknown before any section header", name, c)
		}
	}
}

func TestHTTPOracle(t *testing.T) {
	var gotPath string
	var gotReq categorizeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		json.NewEncoder(w).Encode(categorizeResponse{
			Categories: map[string]domain.AICategory{
				"Rental Income": domain.AICategoryIncome,
				"Repairs":       "made-up-label",
			},
		})
	}))
	defer srv.Close()

	o := NewHTTPOracle(srv.URL)
	got, err := o.Categorize(context.Background(), []string{"Rental Income", "Repairs", "Mystery"}, domain.FileTypeCashFlow)
	if err != nil {
		t.Fatalf("Categorize failed: %v", err)
	}

	if gotPath != "/api/categorize" {
		t.Errorf("request path = %q", gotPath)
	}
	if gotReq.FileType != domain.FileTypeCashFlow || len(gotReq.AccountNames) != 3 {
		t.Errorf("request = %+v", gotReq)
	}

	if got["Rental Income"] != domain.AICategoryIncome {
		t.Errorf("Rental Income = %s; want income", got["Rental Income"])
	}
	// Invalid labels and missing names both degrade to unknown.
	if got["Repairs"] != domain.AICategoryUnknown {
		t.Errorf("Repairs = %s; want unknown", got["Repairs"])
	}
	if got["Mystery"] != domain.AICategoryUnknown {
		t.Errorf("Mystery = %s; want unknown", got["Mystery"])
	}
}

func TestHTTPOracleErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := NewHTTPOracle(srv.URL).Categorize(context.Background(), []string{"Rent"}, domain.FileTypeGeneral); err == nil {
		t.Error("non-200 response should fail")
	}
}
