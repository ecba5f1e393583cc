package models

import (
	"fmt"
)

// ModelVariant selects one of the two fixed training recipes
type ModelVariant string

const (
	// VariantPrimary trains a softmax classifier for 20 epochs, holding out
	// the last 20% of the training data for validation
	VariantPrimary ModelVariant = "primary"
	// VariantAlternate trains a logits classifier for 6 epochs and validates
	// against the test split after every epoch
	VariantAlternate ModelVariant = "alternate"
)

// PreprocessMode selects how raw image grids are turned into features
type PreprocessMode string

const (
	PreprocessNormalize   PreprocessMode = "normalize"   // flatten and scale to [0,1]
	PreprocessPassThrough PreprocessMode = "passthrough" // flatten only
)

// Validate checks if the variant is known
func (v ModelVariant) Validate() error {
	switch v {
	case VariantPrimary, VariantAlternate:
		return nil
	}
	return fmt.Errorf("invalid model variant: %q", v)
}

// Validate checks if the preprocessing mode is known
func (m PreprocessMode) Validate() error {
	switch m {
	case PreprocessNormalize, PreprocessPassThrough:
		return nil
	}
	return fmt.Errorf("invalid preprocess mode: %q", m)
}

// TrainingConfig holds configuration for model training
type TrainingConfig struct {
	Epochs          int     `json:"epochs" yaml:"epochs"`
	BatchSize       int     `json:"batch_size" yaml:"batch_size"`
	ValidationSplit float64 `json:"validation_split" yaml:"validation_split"` // fraction of training rows held out from the tail
	LearningRate    float64 `json:"learning_rate" yaml:"learning_rate"`
	HiddenUnits     int     `json:"hidden_units" yaml:"hidden_units"`
	Classes         int     `json:"classes" yaml:"classes"`
	RandomSeed      int64   `json:"random_seed" yaml:"random_seed"`
	Shuffle         bool    `json:"shuffle" yaml:"shuffle"`
}

// DefaultTrainingConfig returns the fixed recipe for a variant
func DefaultTrainingConfig(variant ModelVariant) *TrainingConfig {
	cfg := &TrainingConfig{
		Epochs:          20,
		BatchSize:       32,
		ValidationSplit: 0.2,
		LearningRate:    0.001,
		HiddenUnits:     128,
		Classes:         10,
		RandomSeed:      42,
		Shuffle:         true,
	}
	if variant == VariantAlternate {
		cfg.Epochs = 6
		cfg.ValidationSplit = 0
	}
	return cfg
}

// Validate checks if the TrainingConfig is usable
func (c *TrainingConfig) Validate() error {
	if c.Epochs <= 0 {
		return fmt.Errorf("epochs must be positive, got %d", c.Epochs)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.ValidationSplit < 0 || c.ValidationSplit >= 1 {
		return fmt.Errorf("validation_split must be in [0,1), got %g", c.ValidationSplit)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be positive, got %g", c.LearningRate)
	}
	if c.HiddenUnits <= 0 {
		return fmt.Errorf("hidden_units must be positive, got %d", c.HiddenUnits)
	}
	if c.Classes < 2 {
		return fmt.Errorf("classes must be at least 2, got %d", c.Classes)
	}
	return nil
}

// TrainingMetrics holds metrics collected during training
type TrainingMetrics struct {
	Epoch              int                  `json:"epoch"`
	TrainingLoss       float64              `json:"training_loss"`
	ValidationLoss     float64              `json:"validation_loss"`
	TrainingAccuracy   float64              `json:"training_accuracy,omitempty"`
	ValidationAccuracy float64              `json:"validation_accuracy,omitempty"`
	LearningCurve      []LearningCurvePoint `json:"learning_curve,omitempty"`
}

// LearningCurvePoint represents a point in the learning curve
type LearningCurvePoint struct {
	Epoch              int     `json:"epoch"`
	TrainingLoss       float64 `json:"training_loss"`
	ValidationLoss     float64 `json:"validation_loss"`
	TrainingAccuracy   float64 `json:"training_accuracy,omitempty"`
	ValidationAccuracy float64 `json:"validation_accuracy,omitempty"`
}

// PerformanceMetrics holds model performance on the test split
type PerformanceMetrics struct {
	TestLoss        float64 `json:"test_loss"`
	Accuracy        float64 `json:"accuracy"`
	Precision       float64 `json:"precision"`
	Recall          float64 `json:"recall"`
	F1Score         float64 `json:"f1_score"`
	Sensitivity     float64 `json:"sensitivity"`
	Specificity     float64 `json:"specificity"`
	ConfusionMatrix [][]int `json:"confusion_matrix,omitempty"`
}
