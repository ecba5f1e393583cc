package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/mimir-aip/digitclf/pkg/metadatastore"
	"github.com/mimir-aip/digitclf/pkg/mlmodel"
	"github.com/mimir-aip/digitclf/pkg/models"
	"github.com/mimir-aip/digitclf/pkg/storage"
)

// RunHandler handles run and report HTTP requests
type RunHandler struct {
	service   *mlmodel.Service
	artifacts *storage.FileStore
}

// NewRunHandler creates a new run handler
func NewRunHandler(service *mlmodel.Service, artifacts *storage.FileStore) *RunHandler {
	return &RunHandler{
		service:   service,
		artifacts: artifacts,
	}
}

// HandleRuns handles GET /api/runs?prefix=&limit=
func (h *RunHandler) HandleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, fmt.Sprintf("Invalid limit: %q", v), http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := h.service.ListRuns(r.URL.Query().Get("prefix"), limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to list runs: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// HandleRun handles GET /api/runs/{id}
func (h *RunHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/runs/"), "/")
	if id == "" {
		http.Error(w, "Run ID required", http.StatusBadRequest)
		return
	}

	run, err := h.service.GetRun(id)
	if errors.Is(err, metadatastore.ErrNotFound) {
		http.Error(w, fmt.Sprintf("Run not found: %s", id), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to get run: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// HandleReports handles GET /api/reports, listing prefixes with a report
func (h *RunHandler) HandleReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	prefixes, err := h.artifacts.ListPrefixes()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to list reports: %v", err), http.StatusInternalServerError)
		return
	}
	if prefixes == nil {
		prefixes = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"prefixes": prefixes})
}

// HandleReport handles GET /api/reports/{prefix}
func (h *RunHandler) HandleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	prefix := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/reports/"), "/")
	if err := storage.ValidatePrefix(prefix); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	report, err := h.artifacts.LoadReport(prefix)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, fmt.Sprintf("Report not found: %s", prefix), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to load report: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleArtifact handles GET /api/artifacts/{prefix}/{kind} where kind is
// loss_plot or confusion_matrix
func (h *RunHandler) HandleArtifact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/artifacts/"), "/"), "/")
	if len(parts) != 2 {
		http.Error(w, "Expected /api/artifacts/{prefix}/{kind}", http.StatusBadRequest)
		return
	}
	prefix, kind := parts[0], parts[1]
	if err := storage.ValidatePrefix(prefix); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var path string
	switch kind {
	case models.ArtifactLossPlot:
		path = h.artifacts.LossPlotPath(prefix)
	case models.ArtifactConfusionMatrix:
		path = h.artifacts.ConfusionMatrixPath(prefix)
	default:
		http.Error(w, fmt.Sprintf("Unknown artifact kind: %s", kind), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, path)
}
