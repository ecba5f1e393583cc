package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/mimir-aip/digitclf/pkg/models"
)

// ErrNotFound is returned when a requested artifact does not exist
var ErrNotFound = errors.New("artifact not found")

const (
	lossSuffix      = "_loss.png"
	confusionSuffix = "_confusion_matrix.png"
	reportSuffix    = "_model.json"
)

// FileStore owns the output directory for plots and metrics reports.
// Artifact names are derived from a caller supplied prefix.
type FileStore struct {
	basePath string
	mu       sync.Mutex
}

// NewFileStore creates a new file-based artifact store
func NewFileStore(basePath string) (*FileStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &FileStore{basePath: basePath}, nil
}

// BasePath returns the output directory
func (fs *FileStore) BasePath() string {
	return fs.basePath
}

// ValidatePrefix rejects prefixes that would escape the output directory
func ValidatePrefix(prefix string) error {
	if prefix == "" {
		return fmt.Errorf("prefix is required")
	}
	if strings.ContainsAny(prefix, `/\`) || prefix == "." || prefix == ".." {
		return fmt.Errorf("invalid prefix %q", prefix)
	}
	return nil
}

// LossPlotPath returns the path of the loss curve image for prefix
func (fs *FileStore) LossPlotPath(prefix string) string {
	return filepath.Join(fs.basePath, prefix+lossSuffix)
}

// ConfusionMatrixPath returns the path of the confusion matrix image for prefix
func (fs *FileStore) ConfusionMatrixPath(prefix string) string {
	return filepath.Join(fs.basePath, prefix+confusionSuffix)
}

// ReportPath returns the path of the metrics report for prefix
func (fs *FileStore) ReportPath(prefix string) string {
	return filepath.Join(fs.basePath, prefix+reportSuffix)
}

// ArtifactPaths returns every artifact path for prefix keyed by artifact kind
func (fs *FileStore) ArtifactPaths(prefix string) map[string]string {
	return map[string]string{
		models.ArtifactLossPlot:        fs.LossPlotPath(prefix),
		models.ArtifactConfusionMatrix: fs.ConfusionMatrixPath(prefix),
		models.ArtifactReport:          fs.ReportPath(prefix),
	}
}

// SaveReport writes report as indented JSON to the prefix's report path.
// The file is written to a temp name and renamed so readers never see a partial report.
func (fs *FileStore) SaveReport(prefix string, report map[string]float64) (string, error) {
	if err := ValidatePrefix(prefix); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	path := fs.ReportPath(prefix)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to move report into place: %w", err)
	}
	return path, nil
}

// LoadReport reads the metrics report for prefix
func (fs *FileStore) LoadReport(prefix string) (map[string]float64, error) {
	if err := ValidatePrefix(prefix); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fs.ReportPath(prefix))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: report for %s", ErrNotFound, prefix)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	var report map[string]float64
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	return report, nil
}

// ListPrefixes returns the prefixes that have a metrics report, sorted
func (fs *FileStore) ListPrefixes() ([]string, error) {
	entries, err := os.ReadDir(fs.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list output directory: %w", err)
	}

	var prefixes []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, reportSuffix) {
			continue
		}
		prefixes = append(prefixes, strings.TrimSuffix(name, reportSuffix))
	}
	sort.Strings(prefixes)
	return prefixes, nil
}

// RemoveArtifacts deletes every artifact of prefix that exists
func (fs *FileStore) RemoveArtifacts(prefix string) error {
	if err := ValidatePrefix(prefix); err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	for _, path := range fs.ArtifactPaths(prefix) {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}
	return nil
}
