package metadatastore

import (
	"errors"

	"github.com/mimir-aip/digitclf/pkg/models"
)

// ErrNotFound is returned when a run does not exist
var ErrNotFound = errors.New("run not found")

// RunStore is the interface for evaluation run persistence.
// It records run metadata and metrics, not the plot or report files themselves.
type RunStore interface {
	SaveRun(run *models.EvaluationRun) error
	GetRun(id string) (*models.EvaluationRun, error)
	ListRuns(limit int) ([]*models.EvaluationRun, error)
	ListRunsByPrefix(prefix string) ([]*models.EvaluationRun, error)
	DeleteRun(id string) error
	Close() error
}
