package models

import (
	"errors"
	"testing"
)

// TestDefaultTrainingConfig tests the fixed recipes of both variants
func TestDefaultTrainingConfig(t *testing.T) {
	primary := DefaultTrainingConfig(VariantPrimary)
	if primary.Epochs != 20 {
		t.Errorf("Expected 20 epochs for primary variant, got %d", primary.Epochs)
	}
	if primary.ValidationSplit != 0.2 {
		t.Errorf("Expected validation split 0.2, got %g", primary.ValidationSplit)
	}
	if primary.HiddenUnits != 128 || primary.Classes != 10 {
		t.Errorf("Expected 128 hidden units and 10 classes, got %d and %d", primary.HiddenUnits, primary.Classes)
	}
	if err := primary.Validate(); err != nil {
		t.Errorf("Expected primary config to be valid, got %v", err)
	}

	alternate := DefaultTrainingConfig(VariantAlternate)
	if alternate.Epochs != 6 {
		t.Errorf("Expected 6 epochs for alternate variant, got %d", alternate.Epochs)
	}
	if alternate.ValidationSplit != 0 {
		t.Errorf("Expected no validation split for alternate variant, got %g", alternate.ValidationSplit)
	}
}

// TestTrainingConfigValidate tests rejection of unusable configs
func TestTrainingConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *TrainingConfig)
	}{
		{"zero epochs", func(c *TrainingConfig) { c.Epochs = 0 }},
		{"zero batch", func(c *TrainingConfig) { c.BatchSize = 0 }},
		{"split of one", func(c *TrainingConfig) { c.ValidationSplit = 1 }},
		{"negative split", func(c *TrainingConfig) { c.ValidationSplit = -0.1 }},
		{"zero learning rate", func(c *TrainingConfig) { c.LearningRate = 0 }},
		{"no hidden units", func(c *TrainingConfig) { c.HiddenUnits = 0 }},
		{"single class", func(c *TrainingConfig) { c.Classes = 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultTrainingConfig(VariantPrimary)
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Expected validation error")
			}
		})
	}
}

// TestEnumValidate tests variant and mode validation
func TestEnumValidate(t *testing.T) {
	if err := VariantPrimary.Validate(); err != nil {
		t.Errorf("Expected primary to be valid, got %v", err)
	}
	if err := ModelVariant("tuned").Validate(); err == nil {
		t.Error("Expected unknown variant to be rejected")
	}
	if err := PreprocessPassThrough.Validate(); err != nil {
		t.Errorf("Expected passthrough to be valid, got %v", err)
	}
	if err := PreprocessMode("filter_avg").Validate(); err == nil {
		t.Error("Expected unknown mode to be rejected")
	}
}

// TestRunLifecycle tests stage and status transitions
func TestRunLifecycle(t *testing.T) {
	run := &EvaluationRun{ID: "run-1", Status: RunStatusRunning, Stage: StageIdle}

	run.Advance(StagePreprocessed)
	if run.Stage != StagePreprocessed {
		t.Errorf("Expected stage %s, got %s", StagePreprocessed, run.Stage)
	}

	run.Fail(errors.New("shape mismatch"))
	if run.Status != RunStatusFailed {
		t.Errorf("Expected status %s, got %s", RunStatusFailed, run.Status)
	}
	if run.Stage != StagePreprocessed {
		t.Errorf("Expected failed run to keep stage %s, got %s", StagePreprocessed, run.Stage)
	}
	if run.Error != "shape mismatch" || run.CompletedAt == nil {
		t.Errorf("Expected error and completion time to be recorded")
	}

	done := &EvaluationRun{ID: "run-2", Status: RunStatusRunning}
	done.Complete()
	if done.Status != RunStatusCompleted || done.Stage != StageDone {
		t.Errorf("Expected completed/done, got %s/%s", done.Status, done.Stage)
	}
}
