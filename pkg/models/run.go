package models

import (
	"time"
)

// RunStatus represents the current status of an evaluation run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunStage is the last pipeline stage a run reached. Stages only move forward.
type RunStage string

const (
	StageIdle         RunStage = "idle"
	StagePreprocessed RunStage = "preprocessed"
	StageBuilt        RunStage = "built"
	StageTrained      RunStage = "trained"
	StageEvaluated    RunStage = "evaluated"
	StageReported     RunStage = "reported"
	StageDone         RunStage = "done"
)

// Artifact kinds written by a run
const (
	ArtifactLossPlot        = "loss_plot"
	ArtifactConfusionMatrix = "confusion_matrix"
	ArtifactReport          = "report"
)

// EvaluationRun is one pass of the train/evaluate/report pipeline
type EvaluationRun struct {
	ID                 string              `json:"id"`
	Prefix             string              `json:"prefix"`
	Mode               PreprocessMode      `json:"mode"`
	Variant            ModelVariant        `json:"variant"`
	Status             RunStatus           `json:"status"`
	Stage              RunStage            `json:"stage"`
	TrainSamples       int                 `json:"train_samples"`
	TestSamples        int                 `json:"test_samples"`
	InputSize          int                 `json:"input_size"`
	TrainingConfig     *TrainingConfig     `json:"training_config,omitempty"`
	TrainingMetrics    *TrainingMetrics    `json:"training_metrics,omitempty"`
	PerformanceMetrics *PerformanceMetrics `json:"performance_metrics,omitempty"`
	Report             map[string]float64  `json:"report,omitempty"`
	Artifacts          map[string]string   `json:"artifacts,omitempty"`
	Error              string              `json:"error,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
	CompletedAt        *time.Time          `json:"completed_at,omitempty"`
}

// Advance moves the run to stage and bumps UpdatedAt
func (r *EvaluationRun) Advance(stage RunStage) {
	r.Stage = stage
	r.UpdatedAt = time.Now().UTC()
}

// Fail marks the run as failed, keeping the stage it reached
func (r *EvaluationRun) Fail(err error) {
	now := time.Now().UTC()
	r.Status = RunStatusFailed
	r.Error = err.Error()
	r.UpdatedAt = now
	r.CompletedAt = &now
}

// Complete marks the run as done
func (r *EvaluationRun) Complete() {
	now := time.Now().UTC()
	r.Status = RunStatusCompleted
	r.Stage = StageDone
	r.UpdatedAt = now
	r.CompletedAt = &now
}
