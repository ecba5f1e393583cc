package evaluation

import (
	"github.com/mimir-aip/digitclf/pkg/models"
)

// Report keys, exactly as written to the metrics file
const (
	KeyPrecision   = "Precision"
	KeyRecall      = "Recall (Sensitivity)"
	KeyF1          = "F1 Score"
	KeySensitivity = "Sensitivity"
	KeySpecificity = "Specificity"
)

// ReportKeys lists the report keys in output order
var ReportKeys = []string{KeyPrecision, KeyRecall, KeyF1, KeySensitivity, KeySpecificity}

// Report maps metric names to scores
type Report map[string]float64

// NewReport extracts the five persisted scores. Sensitivity is weighted
// recall and specificity is trace / total.
func NewReport(cr *ClassificationReport, cm *ConfusionMatrix) Report {
	return Report{
		KeyPrecision:   cr.WeightedPrecision,
		KeyRecall:      cr.WeightedRecall,
		KeyF1:          cr.WeightedF1,
		KeySensitivity: cr.WeightedRecall,
		KeySpecificity: Specificity(cm),
	}
}

// Evaluate builds the confusion matrix, classification report and metrics
// report for a set of predictions
func Evaluate(yTrue, yPred, classes []int) (*ConfusionMatrix, *ClassificationReport, Report, error) {
	cm, err := NewConfusionMatrix(yTrue, yPred, classes)
	if err != nil {
		return nil, nil, nil, err
	}
	cr := NewClassificationReport(cm)
	return cm, cr, NewReport(cr, cm), nil
}

// PerformanceMetrics folds the report into the shared run model
func PerformanceMetrics(r Report, cm *ConfusionMatrix, accuracy, testLoss float64) *models.PerformanceMetrics {
	return &models.PerformanceMetrics{
		TestLoss:        testLoss,
		Accuracy:        accuracy,
		Precision:       r[KeyPrecision],
		Recall:          r[KeyRecall],
		F1Score:         r[KeyF1],
		Sensitivity:     r[KeySensitivity],
		Specificity:     r[KeySpecificity],
		ConfusionMatrix: cm.Rows(),
	}
}
