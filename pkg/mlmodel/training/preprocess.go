package training

import (
	"errors"
	"fmt"

	"github.com/mimir-aip/digitclf/pkg/dataset"
	"github.com/mimir-aip/digitclf/pkg/models"
	"gonum.org/v1/gonum/mat"
)

// MaxIntensity is the largest raw pixel value of an 8-bit grayscale image
const MaxIntensity = 255.0

// ErrShapeMismatch is returned when images in a split do not share one shape
var ErrShapeMismatch = errors.New("image shape mismatch")

// legacyNormalizedPrefixes are the artifact prefixes that historically implied normalisation
var legacyNormalizedPrefixes = map[string]bool{
	"original":           true,
	"filter_avg":         true,
	"filter_undersample": true,
	"filter_oversample":  true,
}

// ModeForPrefix maps a legacy artifact prefix to the preprocessing mode it used to select
func ModeForPrefix(prefix string) models.PreprocessMode {
	if legacyNormalizedPrefixes[prefix] {
		return models.PreprocessNormalize
	}
	return models.PreprocessPassThrough
}

// Features is a preprocessed split: one flattened row per sample
type Features struct {
	X *mat.Dense
	Y []int
}

// Len returns the number of samples
func (f *Features) Len() int {
	return len(f.Y)
}

// Width returns the feature vector length
func (f *Features) Width() int {
	if f.X == nil {
		return 0
	}
	_, c := f.X.Dims()
	return c
}

// Preprocess flattens both splits and, in normalize mode, scales intensities
// into [0,1]. Labels are returned unchanged.
func Preprocess(train, test dataset.Split, mode models.PreprocessMode) (*Features, *Features, error) {
	if err := mode.Validate(); err != nil {
		return nil, nil, err
	}
	trainFeatures, err := flatten(train, mode)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to preprocess training split: %w", err)
	}
	testFeatures, err := flatten(test, mode)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to preprocess test split: %w", err)
	}
	if trainFeatures.Width() != testFeatures.Width() {
		return nil, nil, fmt.Errorf("%w: train rows have %d features, test rows %d",
			ErrShapeMismatch, trainFeatures.Width(), testFeatures.Width())
	}
	return trainFeatures, testFeatures, nil
}

func flatten(s dataset.Split, mode models.PreprocessMode) (*Features, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if s.Len() == 0 {
		return nil, fmt.Errorf("split is empty")
	}

	rows, cols := s.Shape()
	width := rows * cols
	x := mat.NewDense(s.Len(), width, nil)
	for i, im := range s.Images {
		if im.Rows != rows || im.Cols != cols {
			return nil, fmt.Errorf("%w: image %d is %dx%d, expected %dx%d", ErrShapeMismatch, i, im.Rows, im.Cols, rows, cols)
		}
		row := x.RawRowView(i)
		copy(row, im.Pix)
		if mode == models.PreprocessNormalize {
			for j, v := range row {
				row[j] = unitScale(v)
			}
		}
	}

	y := make([]int, s.Len())
	copy(y, s.Labels)
	return &Features{X: x, Y: y}, nil
}

func unitScale(v float64) float64 {
	v /= MaxIntensity
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
