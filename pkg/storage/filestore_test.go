package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimir-aip/digitclf/pkg/models"
)

func TestFileStoreReportRoundTrip(t *testing.T) {
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "out"))
	require.NoError(t, err)

	report := map[string]float64{"Precision": 0.9, "Specificity": 0.8}
	path, err := fs.SaveReport("original", report)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(fs.BasePath(), "original_model.json"), path)
	assert.NoFileExists(t, path+".tmp")

	loaded, err := fs.LoadReport("original")
	require.NoError(t, err)
	assert.Equal(t, report, loaded)

	_, err = fs.LoadReport("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStorePaths(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	paths := fs.ArtifactPaths("filter_avg")
	require.Len(t, paths, 3)
	assert.Equal(t, "filter_avg_loss.png", filepath.Base(paths[models.ArtifactLossPlot]))
	assert.Equal(t, "filter_avg_confusion_matrix.png", filepath.Base(paths[models.ArtifactConfusionMatrix]))
	assert.Equal(t, "filter_avg_model.json", filepath.Base(paths[models.ArtifactReport]))
}

func TestValidatePrefix(t *testing.T) {
	assert.NoError(t, ValidatePrefix("original"))
	for _, bad := range []string{"", ".", "..", "a/b", `a\b`} {
		assert.Error(t, ValidatePrefix(bad), bad)
	}

	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	_, err = fs.SaveReport("../escape", map[string]float64{})
	assert.Error(t, err)
}

func TestListAndRemove(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	for _, p := range []string{"original", "filter_avg"} {
		_, err := fs.SaveReport(p, map[string]float64{"F1 Score": 0.5})
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(fs.LossPlotPath("original"), []byte("png"), 0644))

	prefixes, err := fs.ListPrefixes()
	require.NoError(t, err)
	assert.Equal(t, []string{"filter_avg", "original"}, prefixes)

	require.NoError(t, fs.RemoveArtifacts("original"))
	assert.NoFileExists(t, fs.LossPlotPath("original"))
	assert.NoFileExists(t, fs.ReportPath("original"))

	prefixes, err = fs.ListPrefixes()
	require.NoError(t, err)
	assert.Equal(t, []string{"filter_avg"}, prefixes)
}
