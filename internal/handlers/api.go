// Package handlers implements the HTTP API over a categorization session.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rumor-ml/propsheet/internal/domain"
	"github.com/rumor-ml/propsheet/internal/resolver"
	"github.com/rumor-ml/propsheet/internal/session"
)

// APIHandler handles API requests against one session.
type APIHandler struct {
	session *session.Session
	logger  *slog.Logger
}

// NewAPIHandler creates a new API handler.
func NewAPIHandler(s *session.Session, logger *slog.Logger) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIHandler{session: s, logger: logger}
}

// HealthCheck handles GET /health.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists):
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

// Categorize handles POST /api/categorize: resolve a bucket for each of a
// batch of account names without creating a dataset. Mirrors the resolution an
// upload would produce, minus suppression.
func (h *APIHandler) Categorize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountNames []string        `json:"account_names"`
		FileType     domain.FileType `json:"file_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.FileType == "" {
		req.FileType = domain.FileTypeGeneral
	}
	if !domain.ValidateFileType(req.FileType) {
		badRequest(w, "invalid file type: "+string(req.FileType))
		return
	}

	reg := h.session.Registry()
	mem := h.session.Memory()
	buckets := make(map[string]domain.BucketKey, len(req.AccountNames))
	for _, name := range req.AccountNames {
		buckets[name] = resolver.Resolve(resolver.Input{
			AccountName: name,
			AICategory:  domain.AICategoryUnknown,
			FileType:    req.FileType,
			Registry:    reg,
			Memory:      mem,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"buckets": buckets})
}

// Learn handles POST /api/learn: pin an account in the live dataset to a
// bucket and remember the assignment for future uploads.
func (h *APIHandler) Learn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountName string           `json:"account_name"`
		Bucket      domain.BucketKey `json:"bucket"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.AccountName == "" || req.Bucket == "" {
		badRequest(w, "account_name and bucket are required")
		return
	}

	if err := h.session.AssignBucket(r.Context(), req.AccountName, req.Bucket); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"live":         h.session.Live(),
		"suppressions": h.session.Suppressions(),
	})
}

// Suggestions handles GET /api/suggestions?account=NAME.
func (h *APIHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account")
	if account == "" {
		badRequest(w, "account query parameter is required")
		return
	}
	suggestions, err := h.session.Suggestions(account)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]resolver.Suggestion{"suggestions": suggestions})
}

// GetDatasets handles GET /api/datasets.
func (h *APIHandler) GetDatasets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Datasets())
}

// GetDataset handles GET /api/datasets/{id}.
func (h *APIHandler) GetDataset(w http.ResponseWriter, r *http.Request) {
	ds, err := h.session.Dataset(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

// SetDatasetActive handles PUT /api/datasets/{id}/active.
func (h *APIHandler) SetDatasetActive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if err := h.session.SetDatasetActive(r.Context(), r.PathValue("id"), req.Active); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"active": req.Active})
}

// DeleteDataset handles DELETE /api/datasets/{id}.
func (h *APIHandler) DeleteDataset(w http.ResponseWriter, r *http.Request) {
	if err := h.session.DeleteDataset(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EditDataset handles POST /api/datasets/{id}/edit: clone a saved dataset
// into the live slot for editing.
func (h *APIHandler) EditDataset(w http.ResponseWriter, r *http.Request) {
	ds, err := h.session.OpenForEdit(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

// GetLive handles GET /api/live.
func (h *APIHandler) GetLive(w http.ResponseWriter, r *http.Request) {
	live := h.session.Live()
	if live == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no dataset is being edited"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"dataset":      live,
		"suppressions": h.session.Suppressions(),
	})
}

// SaveLive handles POST /api/live/save.
func (h *APIHandler) SaveLive(w http.ResponseWriter, r *http.Request) {
	ds, err := h.session.SaveLive(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

// DiscardLive handles POST /api/live/discard.
func (h *APIHandler) DiscardLive(w http.ResponseWriter, r *http.Request) {
	h.session.DiscardLive()
	w.WriteHeader(http.StatusNoContent)
}

// ToggleInclusion handles PUT /api/live/inclusion.
func (h *APIHandler) ToggleInclusion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountName string `json:"account_name"`
		Included    bool   `json:"included"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if err := h.session.ToggleInclusion(req.AccountName, req.Included); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"included": req.Included})
}

// GetBuckets handles GET /api/buckets.
func (h *APIHandler) GetBuckets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Registry().Definitions())
}

// AddBucket handles POST /api/buckets.
func (h *APIHandler) AddBucket(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label       string          `json:"label"`
		Category    domain.Category `json:"category"`
		Description string          `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	def, err := h.session.BucketAdd(r.Context(), req.Label, req.Category, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, def)
}

// DeleteBucket handles DELETE /api/buckets/{key}. Accounts that resolved to
// the deleted bucket fall back through the chain; the affected live accounts
// come back in the response so the UI can flag them.
func (h *APIHandler) DeleteBucket(w http.ResponseWriter, r *http.Request) {
	affected, err := h.session.BucketDelete(r.Context(), domain.BucketKey(r.PathValue("key")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"affectedAccounts": affected})
}

// AddBucketTerm handles POST /api/buckets/{key}/terms.
func (h *APIHandler) AddBucketTerm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Term string `json:"term"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	key := domain.BucketKey(r.PathValue("key"))
	if err := h.session.BucketAddTerm(r.Context(), key, req.Term); err != nil {
		writeError(w, err)
		return
	}
	def, _ := h.session.Registry().Get(key)
	writeJSON(w, http.StatusOK, def)
}

// RemoveBucketTerm handles DELETE /api/buckets/{key}/terms.
func (h *APIHandler) RemoveBucketTerm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Term string `json:"term"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	key := domain.BucketKey(r.PathValue("key"))
	if err := h.session.BucketRemoveTerm(r.Context(), key, req.Term); err != nil {
		writeError(w, err)
		return
	}
	def, _ := h.session.Registry().Get(key)
	writeJSON(w, http.StatusOK, def)
}

// GetTotals handles GET /api/totals.
func (h *APIHandler) GetTotals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Totals())
}

// GetReconciliation handles GET /api/reconcile.
func (h *APIHandler) GetReconciliation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Reconcile())
}

// GetSummary handles GET /api/summary.
func (h *APIHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Summarize())
}
