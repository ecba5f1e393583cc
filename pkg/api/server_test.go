package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimir-aip/digitclf/pkg/metadatastore"
	"github.com/mimir-aip/digitclf/pkg/mlmodel"
	"github.com/mimir-aip/digitclf/pkg/models"
	"github.com/mimir-aip/digitclf/pkg/storage"
)

func newTestServer(t *testing.T) (http.Handler, *metadatastore.SQLiteStore, *storage.FileStore) {
	t.Helper()
	dir := t.TempDir()

	store, err := metadatastore.NewSQLiteStore(filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	artifacts, err := storage.NewFileStore(filepath.Join(dir, "out"))
	require.NoError(t, err)

	svc := mlmodel.NewService(store, artifacts, nil, nil)
	return NewServer(":0", svc, artifacts, nil).Handler(), store, artifacts
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthAndReady(t *testing.T) {
	h, _, _ := newTestServer(t)

	assert.Equal(t, http.StatusOK, get(t, h, "/health").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/ready").Code)
}

func TestRunEndpoints(t *testing.T) {
	h, store, _ := newTestServer(t)

	now := time.Now().UTC()
	run := &models.EvaluationRun{
		ID: "run-1", Prefix: "original",
		Mode: models.PreprocessNormalize, Variant: models.VariantPrimary,
		Status: models.RunStatusCompleted, Stage: models.StageDone,
		Report:    map[string]float64{"Specificity": 0.5},
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, store.SaveRun(run))

	rec := get(t, h, "/api/runs?prefix=original")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []models.EvaluationRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)

	rec = get(t, h, "/api/runs/run-1")
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.EvaluationRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 0.5, got.Report["Specificity"])

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/runs/nope").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/runs?limit=x").Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/runs/run-1", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestReportEndpoints(t *testing.T) {
	h, _, artifacts := newTestServer(t)

	_, err := artifacts.SaveReport("filter_avg", map[string]float64{"F1 Score": 0.8})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(artifacts.LossPlotPath("filter_avg"), []byte("\x89PNG"), 0644))

	rec := get(t, h, "/api/reports")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"prefixes":["filter_avg"]}`, rec.Body.String())

	rec = get(t, h, "/api/reports/filter_avg")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"F1 Score":0.8}`, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/reports/missing").Code)

	rec = get(t, h, "/api/artifacts/filter_avg/loss_plot")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "\x89PNG", rec.Body.String())

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/artifacts/filter_avg/confusion_matrix").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/artifacts/filter_avg/report").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/artifacts/filter_avg").Code)
}
