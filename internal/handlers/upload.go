package handlers

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/rumor-ml/propsheet/internal/domain"
	"github.com/rumor-ml/propsheet/internal/ingest"
)

// maxUploadBytes bounds the multipart form in memory.
const maxUploadBytes = 32 << 20

// Upload handles POST /api/upload: a multipart CSV upload that becomes the
// live dataset. The optional file_type form field overrides detection from
// the file name; the optional name field overrides the derived dataset name.
func (h *APIHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		badRequest(w, "failed to parse multipart form")
		return
	}

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		badRequest(w, "no file uploaded")
		return
	}
	header := files[0]

	if ext := strings.ToLower(filepath.Ext(header.Filename)); ext != ".csv" {
		badRequest(w, "unsupported file type: "+ext)
		return
	}

	fileType := domain.FileType(r.FormValue("file_type"))
	if fileType == "" {
		fileType = ingest.DetectFileType(header.Filename)
	}
	if !domain.ValidateFileType(fileType) {
		badRequest(w, "invalid file type: "+string(fileType))
		return
	}

	name := r.FormValue("name")
	if name == "" {
		name = strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
	}

	f, err := header.Open()
	if err != nil {
		writeError(w, err)
		return
	}
	defer f.Close()

	rows, err := ingest.ReadRows(f)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	ds, issues, err := h.session.Ingest(r.Context(), name, fileType, rows)
	if err != nil {
		writeError(w, err)
		return
	}

	issueStrings := make([]string, 0, len(issues))
	for _, issue := range issues {
		issueStrings = append(issueStrings, issue.String())
	}

	h.logger.Info("upload accepted",
		"dataset", name,
		"fileType", fileType,
		"accounts", len(ds.Records),
		"issues", len(issues))

	writeJSON(w, http.StatusCreated, map[string]any{
		"dataset":      ds,
		"issues":       issueStrings,
		"suppressions": h.session.Suppressions(),
	})
}
