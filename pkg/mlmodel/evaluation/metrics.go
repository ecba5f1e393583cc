// Package evaluation computes classification metrics from true and predicted
// labels. Per-class arithmetic goes through golearn's evaluation package and
// support-weighted averages through gonum's stat package.
package evaluation

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/sjwhitworth/golearn/evaluation"
	"gonum.org/v1/gonum/stat"
)

// ErrUnknownClass is returned when a label is not one of the matrix classes
var ErrUnknownClass = errors.New("label is not a known class")

// DigitClasses are the ten class labels of a digit classifier
var DigitClasses = []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}

// ConfusionMatrix counts predictions by true class (rows) and predicted class (columns)
type ConfusionMatrix struct {
	Classes []int
	Counts  [][]int
	index   map[int]int
}

// NewConfusionMatrix tabulates yTrue against yPred over the given classes
func NewConfusionMatrix(yTrue, yPred, classes []int) (*ConfusionMatrix, error) {
	if len(yTrue) != len(yPred) {
		return nil, fmt.Errorf("yTrue and yPred must have same length: %d != %d", len(yTrue), len(yPred))
	}
	if len(yTrue) == 0 {
		return nil, fmt.Errorf("empty predictions")
	}
	if len(classes) == 0 {
		return nil, fmt.Errorf("no classes")
	}

	cm := &ConfusionMatrix{
		Classes: append([]int(nil), classes...),
		Counts:  make([][]int, len(classes)),
		index:   make(map[int]int, len(classes)),
	}
	for i, c := range classes {
		if _, dup := cm.index[c]; dup {
			return nil, fmt.Errorf("duplicate class %d", c)
		}
		cm.index[c] = i
		cm.Counts[i] = make([]int, len(classes))
	}

	for i := range yTrue {
		r, ok := cm.index[yTrue[i]]
		if !ok {
			return nil, fmt.Errorf("%w: true label %d at %d", ErrUnknownClass, yTrue[i], i)
		}
		c, ok := cm.index[yPred[i]]
		if !ok {
			return nil, fmt.Errorf("%w: predicted label %d at %d", ErrUnknownClass, yPred[i], i)
		}
		cm.Counts[r][c]++
	}
	return cm, nil
}

// Total returns the number of tabulated predictions
func (cm *ConfusionMatrix) Total() int {
	total := 0
	for _, row := range cm.Counts {
		for _, v := range row {
			total += v
		}
	}
	return total
}

// Trace returns the number of correct predictions
func (cm *ConfusionMatrix) Trace() int {
	trace := 0
	for i := range cm.Counts {
		trace += cm.Counts[i][i]
	}
	return trace
}

// Support returns the number of true samples of each class
func (cm *ConfusionMatrix) Support() []int {
	support := make([]int, len(cm.Classes))
	for i, row := range cm.Counts {
		for _, v := range row {
			support[i] += v
		}
	}
	return support
}

// Max returns the largest single cell count
func (cm *ConfusionMatrix) Max() int {
	m := 0
	for _, row := range cm.Counts {
		for _, v := range row {
			if v > m {
				m = v
			}
		}
	}
	return m
}

// Rows returns a copy of the counts suitable for serialisation
func (cm *ConfusionMatrix) Rows() [][]int {
	out := make([][]int, len(cm.Counts))
	for i, row := range cm.Counts {
		out[i] = append([]int(nil), row...)
	}
	return out
}

// golearn converts to golearn's string-keyed representation. Every class gets
// a full row so golearn's false-positive sums see all columns.
func (cm *ConfusionMatrix) golearn() evaluation.ConfusionMatrix {
	out := make(evaluation.ConfusionMatrix, len(cm.Classes))
	for i, actual := range cm.Classes {
		row := make(map[string]int, len(cm.Classes))
		for j, predicted := range cm.Classes {
			row[strconv.Itoa(predicted)] = cm.Counts[i][j]
		}
		out[strconv.Itoa(actual)] = row
	}
	return out
}

// Summary renders golearn's per-class text table
func (cm *ConfusionMatrix) Summary() string {
	return evaluation.GetSummary(cm.golearn())
}

// Specificity returns trace / total. This is overall accuracy, not the
// per-class true negative rate; see PerClassSpecificity for that.
func Specificity(cm *ConfusionMatrix) float64 {
	total := cm.Total()
	if total == 0 {
		return 0
	}
	return float64(cm.Trace()) / float64(total)
}

// PerClassSpecificity returns TN / (TN + FP) for each class, one-vs-rest
func PerClassSpecificity(cm *ConfusionMatrix) []float64 {
	total := cm.Total()
	support := cm.Support()
	out := make([]float64, len(cm.Classes))
	for k := range cm.Classes {
		fp := 0
		for i := range cm.Counts {
			if i != k {
				fp += cm.Counts[i][k]
			}
		}
		negatives := total - support[k]
		tn := negatives - fp
		out[k] = zeroIfNaN(float64(tn) / float64(negatives))
	}
	return out
}

// ClassMetrics holds the per-class line of a classification report
type ClassMetrics struct {
	Class     int     `json:"class"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1Score   float64 `json:"f1_score"`
	Support   int     `json:"support"`
}

// ClassificationReport holds per-class metrics and their support-weighted averages
type ClassificationReport struct {
	Classes           []ClassMetrics `json:"classes"`
	Accuracy          float64        `json:"accuracy"`
	WeightedPrecision float64        `json:"weighted_precision"`
	WeightedRecall    float64        `json:"weighted_recall"`
	WeightedF1        float64        `json:"weighted_f1"`
	Support           int            `json:"support"`
}

// NewClassificationReport computes per-class precision, recall and F1 and
// their averages weighted by support. A metric whose denominator is zero is
// reported as 0.
func NewClassificationReport(cm *ConfusionMatrix) *ClassificationReport {
	gl := cm.golearn()
	support := cm.Support()

	report := &ClassificationReport{
		Classes:  make([]ClassMetrics, len(cm.Classes)),
		Accuracy: zeroIfNaN(evaluation.GetAccuracy(gl)),
		Support:  cm.Total(),
	}

	precision := make([]float64, len(cm.Classes))
	recall := make([]float64, len(cm.Classes))
	f1 := make([]float64, len(cm.Classes))
	weights := make([]float64, len(cm.Classes))
	for i, class := range cm.Classes {
		key := strconv.Itoa(class)
		precision[i] = zeroIfNaN(evaluation.GetPrecision(key, gl))
		recall[i] = zeroIfNaN(evaluation.GetRecall(key, gl))
		f1[i] = zeroIfNaN(evaluation.GetF1Score(key, gl))
		weights[i] = float64(support[i])
		report.Classes[i] = ClassMetrics{
			Class:     class,
			Precision: precision[i],
			Recall:    recall[i],
			F1Score:   f1[i],
			Support:   support[i],
		}
	}

	if report.Support > 0 {
		report.WeightedPrecision = stat.Mean(precision, weights)
		report.WeightedRecall = stat.Mean(recall, weights)
		report.WeightedF1 = stat.Mean(f1, weights)
	}
	return report
}

func zeroIfNaN(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
