package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimir-aip/digitclf/pkg/config"
	"github.com/mimir-aip/digitclf/pkg/dataset"
	"github.com/mimir-aip/digitclf/pkg/models"
)

func TestBuildRequest(t *testing.T) {
	cfg := config.Default()
	cfg.Variant = "Alternate"
	cfg.Epochs = 2
	cfg.Seed = 9
	cfg.Mode = "passthrough"
	cfg.LearningRate = 0.01
	cfg.InputSize = 16

	train := dataset.Synthetic(10, 4, 4, 10, 1)
	req, err := buildRequest(cfg, train, train)
	require.NoError(t, err)
	assert.Equal(t, models.VariantAlternate, req.Variant)
	assert.Equal(t, models.PreprocessPassThrough, req.Mode)
	assert.Equal(t, 2, req.Config.Epochs)
	assert.Equal(t, int64(9), req.Config.RandomSeed)
	assert.Equal(t, 0.0, req.Config.ValidationSplit)
	assert.Equal(t, 0.01, req.Config.LearningRate)
	assert.Equal(t, 16, req.InputSize)

	cfg.Variant = "deep"
	_, err = buildRequest(cfg, train, train)
	assert.Error(t, err)
}

func TestLoadSplitsSynthetic(t *testing.T) {
	cfg := config.Default()
	cfg.DatasetFormat = config.FormatSynthetic
	cfg.SyntheticSize = 50

	train, test, err := loadSplits(cfg)
	require.NoError(t, err)
	assert.Equal(t, 50, train.Len())
	assert.Equal(t, 11, test.Len())
	rows, cols := train.Shape()
	assert.Equal(t, 28, rows)
	assert.Equal(t, 28, cols)

	cfg.DatasetFormat = "parquet"
	_, _, err = loadSplits(cfg)
	assert.Error(t, err)

	cfg.DatasetFormat = config.FormatIDX
	cfg.TrainImages = t.TempDir() + "/missing"
	_, _, err = loadSplits(cfg)
	assert.Error(t, err)
}

func TestPrintRuns(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	runs := []*models.EvaluationRun{
		{
			ID: "r1", Prefix: "original", Variant: models.VariantPrimary,
			Status: models.RunStatusCompleted, Stage: models.StageDone,
			PerformanceMetrics: &models.PerformanceMetrics{Accuracy: 0.975},
			Report:             map[string]float64{"F1 Score": 0.9749},
			CreatedAt:          created,
		},
		{
			ID: "r2", Prefix: "raw", Variant: models.VariantAlternate,
			Status: models.RunStatusFailed, Stage: models.StageBuilt,
			CreatedAt: created,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, printRuns(&buf, runs))
	out := buf.String()
	assert.Contains(t, out, "PREFIX")
	assert.Contains(t, out, "0.9750")
	assert.Contains(t, out, "0.9749")
	assert.Contains(t, out, "failed")
}
