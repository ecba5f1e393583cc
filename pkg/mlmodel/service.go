package mlmodel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/mimir-aip/digitclf/pkg/dataset"
	"github.com/mimir-aip/digitclf/pkg/metadatastore"
	"github.com/mimir-aip/digitclf/pkg/mlmodel/evaluation"
	"github.com/mimir-aip/digitclf/pkg/mlmodel/training"
	"github.com/mimir-aip/digitclf/pkg/models"
	"github.com/mimir-aip/digitclf/pkg/plotting"
	"github.com/mimir-aip/digitclf/pkg/storage"
)

const confusionTitle = "Confusion Matrix"

// RunRequest describes one evaluation run
type RunRequest struct {
	Train     dataset.Split
	Test      dataset.Split
	Prefix    string
	Mode      models.PreprocessMode // empty picks the mode from the prefix
	Variant   models.ModelVariant   // empty means primary
	InputSize int                   // expected feature length, 0 derives it from the images
	Config    *models.TrainingConfig
}

// Validate checks the request and fills in defaults
func (r *RunRequest) Validate() error {
	if err := storage.ValidatePrefix(r.Prefix); err != nil {
		return err
	}
	if r.Mode == "" {
		r.Mode = training.ModeForPrefix(r.Prefix)
	}
	if err := r.Mode.Validate(); err != nil {
		return err
	}
	if r.Variant == "" {
		r.Variant = models.VariantPrimary
	}
	if err := r.Variant.Validate(); err != nil {
		return err
	}
	if r.InputSize < 0 {
		return fmt.Errorf("input size must not be negative, got %d", r.InputSize)
	}
	if r.Config == nil {
		r.Config = models.DefaultTrainingConfig(r.Variant)
	}
	if err := r.Config.Validate(); err != nil {
		return fmt.Errorf("invalid training config: %w", err)
	}
	if r.Train.Len() == 0 {
		return fmt.Errorf("training split is empty")
	}
	if r.Test.Len() == 0 {
		return fmt.Errorf("test split is empty")
	}
	return nil
}

// TrainerFactory creates the trainer used for one run
type TrainerFactory func(variant models.ModelVariant, logger *slog.Logger) training.StagedTrainer

func newNeuralNetworkTrainer(variant models.ModelVariant, logger *slog.Logger) training.StagedTrainer {
	return training.NewNeuralNetworkTrainer(variant, logger)
}

// Service runs the preprocess, train, evaluate and report pipeline
type Service struct {
	store      metadatastore.RunStore
	artifacts  *storage.FileStore
	logger     *slog.Logger
	out        io.Writer
	newTrainer TrainerFactory
}

// NewService creates a new pipeline service. store may be nil, in which case
// runs are not recorded. out receives the test accuracy line and defaults to stdout.
func NewService(store metadatastore.RunStore, artifacts *storage.FileStore, logger *slog.Logger, out io.Writer) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if out == nil {
		out = os.Stdout
	}
	return &Service{
		store:      store,
		artifacts:  artifacts,
		logger:     logger,
		out:        out,
		newTrainer: newNeuralNetworkTrainer,
	}
}

// SetTrainerFactory replaces the trainer used by later runs. nil restores
// the default neural network trainer.
func (s *Service) SetTrainerFactory(f TrainerFactory) {
	if f == nil {
		f = newNeuralNetworkTrainer
	}
	s.newTrainer = f
}

// Run executes one full pipeline pass. The returned run carries the
// metrics report and artifact paths. On error the run is returned as well,
// marked failed at the stage it reached.
func (s *Service) Run(ctx context.Context, req RunRequest) (*models.EvaluationRun, error) {
	if s.artifacts == nil {
		return nil, fmt.Errorf("no artifact store configured")
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run request: %w", err)
	}

	now := time.Now().UTC()
	run := &models.EvaluationRun{
		ID:             uuid.New().String(),
		Prefix:         req.Prefix,
		Mode:           req.Mode,
		Variant:        req.Variant,
		Status:         models.RunStatusRunning,
		Stage:          models.StageIdle,
		TrainSamples:   req.Train.Len(),
		TestSamples:    req.Test.Len(),
		TrainingConfig: req.Config,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	logger := s.logger.With("run", run.ID, "prefix", run.Prefix)
	s.save(logger, run)

	if err := s.execute(ctx, logger, run, req); err != nil {
		run.Fail(err)
		s.save(logger, run)
		logger.Error("run failed", "stage", run.Stage, "error", err)
		return run, err
	}

	run.Complete()
	s.save(logger, run)
	logger.Info("run completed", "accuracy", run.PerformanceMetrics.Accuracy)
	return run, nil
}

func (s *Service) execute(ctx context.Context, logger *slog.Logger, run *models.EvaluationRun, req RunRequest) error {
	advance := func(stage models.RunStage) {
		run.Advance(stage)
		logger.Info("stage reached", "stage", stage)
	}

	xTrain, xTest, err := training.Preprocess(req.Train, req.Test, req.Mode)
	if err != nil {
		return fmt.Errorf("failed to preprocess: %w", err)
	}
	inputSize := req.InputSize
	if inputSize == 0 {
		inputSize = xTrain.Width()
	}
	run.InputSize = inputSize
	advance(models.StagePreprocessed)

	data := &training.TrainingData{Train: xTrain, Test: xTest}
	trainer := s.newTrainer(req.Variant, logger)
	if _, err := trainer.Build(inputSize, req.Config); err != nil {
		return err
	}
	advance(models.StageBuilt)

	result, err := trainer.FitModel(ctx, data, req.Config)
	if err != nil {
		return err
	}
	run.TrainingMetrics = result.TrainingMetrics
	advance(models.StageTrained)

	paths := s.artifacts.ArtifactPaths(req.Prefix)
	run.Artifacts = map[string]string{}

	trainLoss, valLoss := result.History.Losses()
	if !result.History.HasValidation {
		valLoss = nil
	}
	if err := plotting.LossCurve(trainLoss, valLoss, paths[models.ArtifactLossPlot]); err != nil {
		return err
	}
	run.Artifacts[models.ArtifactLossPlot] = paths[models.ArtifactLossPlot]
	logger.Info("loss plot written", "path", paths[models.ArtifactLossPlot])

	val, err := trainer.Validate(data)
	if err != nil {
		return err
	}
	advance(models.StageEvaluated)
	fmt.Fprintf(s.out, "Test accuracy: %v\n", val.Accuracy)

	classes := make([]int, req.Config.Classes)
	for i := range classes {
		classes[i] = i
	}
	cm, cr, report, err := evaluation.Evaluate(xTest.Y, val.Predictions, classes)
	if err != nil {
		return fmt.Errorf("failed to compute metrics: %w", err)
	}
	logger.Debug("classification summary", "summary", cm.Summary())
	run.Report = report
	run.PerformanceMetrics = evaluation.PerformanceMetrics(report, cm, val.Accuracy, val.Loss)

	reportPath, err := s.artifacts.SaveReport(req.Prefix, report)
	if err != nil {
		return err
	}
	run.Artifacts[models.ArtifactReport] = reportPath
	advance(models.StageReported)
	logger.Info("metrics report written",
		"path", reportPath,
		"precision", report[evaluation.KeyPrecision],
		"recall", report[evaluation.KeyRecall],
		"f1", report[evaluation.KeyF1],
		"specificity", report[evaluation.KeySpecificity],
		"support", cr.Support)

	cmPath := paths[models.ArtifactConfusionMatrix]
	if err := plotting.ConfusionMatrix(cm, plotting.ClassLabels(classes), confusionTitle, cmPath); err != nil {
		return err
	}
	run.Artifacts[models.ArtifactConfusionMatrix] = cmPath
	logger.Info("confusion matrix written", "path", cmPath)

	return nil
}

// save records the run when a store is configured. Store failures are
// logged and never fail the run.
func (s *Service) save(logger *slog.Logger, run *models.EvaluationRun) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveRun(run); err != nil {
		logger.Warn("failed to record run", "error", err)
	}
}

// GetRun returns a recorded run
func (s *Service) GetRun(id string) (*models.EvaluationRun, error) {
	if s.store == nil {
		return nil, fmt.Errorf("no run store configured")
	}
	return s.store.GetRun(id)
}

// ListRuns returns recorded runs newest first, optionally filtered by prefix
func (s *Service) ListRuns(prefix string, limit int) ([]*models.EvaluationRun, error) {
	if s.store == nil {
		return nil, fmt.Errorf("no run store configured")
	}
	if prefix != "" {
		runs, err := s.store.ListRunsByPrefix(prefix)
		if err != nil {
			return nil, err
		}
		if limit > 0 && len(runs) > limit {
			runs = runs[:limit]
		}
		return runs, nil
	}
	return s.store.ListRuns(limit)
}
