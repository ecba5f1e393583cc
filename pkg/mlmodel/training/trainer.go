package training

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mimir-aip/digitclf/pkg/models"
)

// Trainer interface defines the contract for classifier training
type Trainer interface {
	// Train builds a fresh model and fits it on the training features
	Train(ctx context.Context, data *TrainingData, config *models.TrainingConfig) (*TrainingResult, error)

	// Validate evaluates the trained model on the test features
	Validate(data *TrainingData) (*ValidationResult, error)
}

// StagedTrainer is a Trainer whose build and fit steps can be driven
// separately, so callers can observe the built model before fitting
type StagedTrainer interface {
	Trainer

	// Build creates the model for inputSize features
	Build(inputSize int, config *models.TrainingConfig) (*Network, error)

	// FitModel fits the model created by the last Build
	FitModel(ctx context.Context, data *TrainingData, config *models.TrainingConfig) (*TrainingResult, error)
}

var _ StagedTrainer = (*NeuralNetworkTrainer)(nil)

// TrainingData holds preprocessed features for training and testing
type TrainingData struct {
	Train *Features
	Test  *Features
}

// TrainingResult holds the results of model training
type TrainingResult struct {
	Model           *Network
	History         *History
	TrainingMetrics *models.TrainingMetrics
}

// ValidationResult holds test-set metrics and predictions
type ValidationResult struct {
	Loss        float64
	Accuracy    float64
	Predictions []int
}

// NeuralNetworkTrainer trains the fixed two-layer classifier for one variant.
// A trainer owns the model it builds until the next Train call.
type NeuralNetworkTrainer struct {
	variant models.ModelVariant
	logger  *slog.Logger
	model   *Network
}

// NewNeuralNetworkTrainer creates a new neural network trainer
func NewNeuralNetworkTrainer(variant models.ModelVariant, logger *slog.Logger) *NeuralNetworkTrainer {
	if logger == nil {
		logger = slog.Default()
	}
	return &NeuralNetworkTrainer{variant: variant, logger: logger}
}

// Train builds a fresh network and fits it
func (t *NeuralNetworkTrainer) Train(ctx context.Context, data *TrainingData, config *models.TrainingConfig) (*TrainingResult, error) {
	if data == nil || data.Train == nil {
		return nil, fmt.Errorf("no training data provided")
	}
	if config == nil {
		config = models.DefaultTrainingConfig(t.variant)
	}
	if _, err := t.Build(data.Train.Width(), config); err != nil {
		return nil, err
	}
	return t.FitModel(ctx, data, config)
}

// Build creates the network for inputSize features and makes it the
// trainer's current model
func (t *NeuralNetworkTrainer) Build(inputSize int, config *models.TrainingConfig) (*Network, error) {
	if config == nil {
		config = models.DefaultTrainingConfig(t.variant)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid training config: %w", err)
	}

	net, err := BuildModel(ModelConfigFor(inputSize, config, t.variant))
	if err != nil {
		return nil, fmt.Errorf("failed to build model: %w", err)
	}
	t.model = net
	t.logger.Info("model built",
		"variant", t.variant,
		"input", net.InputSize,
		"hidden", config.HiddenUnits,
		"classes", net.Classes,
		"logits", net.Logits)
	return net, nil
}

// FitModel fits the current model on the training features
func (t *NeuralNetworkTrainer) FitModel(ctx context.Context, data *TrainingData, config *models.TrainingConfig) (*TrainingResult, error) {
	if t.model == nil {
		return nil, fmt.Errorf("model has not been built")
	}
	if data == nil || data.Train == nil {
		return nil, fmt.Errorf("no training data provided")
	}
	if config == nil {
		config = models.DefaultTrainingConfig(t.variant)
	}

	opts := FitOptionsFor(config)
	opts.Logger = t.logger
	if t.variant == models.VariantAlternate {
		// the alternate recipe validates against the test split every epoch
		opts.Validation = data.Test
	}

	history, err := Fit(ctx, t.model, data.Train, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fit model: %w", err)
	}

	return &TrainingResult{
		Model:           t.model,
		History:         history,
		TrainingMetrics: history.Metrics(),
	}, nil
}

// Model returns the current model, nil before Build
func (t *NeuralNetworkTrainer) Model() *Network {
	return t.model
}

// Validate evaluates the last trained model and predicts test classes
func (t *NeuralNetworkTrainer) Validate(data *TrainingData) (*ValidationResult, error) {
	if t.model == nil {
		return nil, fmt.Errorf("model has not been trained")
	}
	if data == nil || data.Test == nil {
		return nil, fmt.Errorf("no test data provided")
	}

	loss, acc, err := Evaluate(t.model, data.Test)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate model: %w", err)
	}
	preds, err := PredictClasses(t.model, data.Test.X)
	if err != nil {
		return nil, fmt.Errorf("failed to predict test classes: %w", err)
	}
	return &ValidationResult{Loss: loss, Accuracy: acc, Predictions: preds}, nil
}
