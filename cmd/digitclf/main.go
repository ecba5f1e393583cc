package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mimir-aip/digitclf/pkg/config"
	"github.com/mimir-aip/digitclf/pkg/dataset"
	"github.com/mimir-aip/digitclf/pkg/metadatastore"
	"github.com/mimir-aip/digitclf/pkg/mlmodel"
	"github.com/mimir-aip/digitclf/pkg/models"
	"github.com/mimir-aip/digitclf/pkg/scheduler"
	"github.com/mimir-aip/digitclf/pkg/storage"
)

func main() {
	args := os.Args[1:]
	var err error
	switch {
	case len(args) > 0 && args[0] == "runs":
		err = runsCommand(args[1:])
	case len(args) > 0 && args[0] == "serve":
		err = serveCommand(args[1:])
	default:
		err = runCommand(args)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "digitclf:", err)
		os.Exit(1)
	}
}

// runCommand trains, evaluates and reports once, or on a cron schedule
func runCommand(args []string) error {
	fs := flag.NewFlagSet("digitclf", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file (overrides DIGITCLF_CONFIG)")
	prefix := fs.String("prefix", "", "artifact name prefix")
	mode := fs.String("mode", "", "preprocessing mode: normalize or passthrough (default from prefix)")
	variant := fs.String("variant", "", "training recipe: primary or alternate")
	epochs := fs.Int("epochs", 0, "override the recipe's epoch count")
	inputSize := fs.Int("input-size", 0, "expected feature length per image (default rows*cols)")
	format := fs.String("format", "", "dataset format: idx, csv or synthetic")
	output := fs.String("output", "", "output directory")
	db := fs.String("db", "", "SQLite run registry path (empty disables)")
	schedule := fs.String("schedule", "", `cron expression or descriptor such as "@every 6h"`)
	logLevel := fs.String("log-level", "", "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *configPath != "" {
		if err := os.Setenv("DIGITCLF_CONFIG", *configPath); err != nil {
			return fmt.Errorf("failed to select config file: %w", err)
		}
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// explicitly set flags win over env and file
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "prefix":
			cfg.Prefix = *prefix
		case "mode":
			cfg.Mode = *mode
		case "variant":
			cfg.Variant = *variant
		case "epochs":
			cfg.Epochs = *epochs
		case "input-size":
			cfg.InputSize = *inputSize
		case "format":
			cfg.DatasetFormat = *format
		case "output":
			cfg.OutputDir = *output
		case "db":
			cfg.DatabasePath = *db
		case "schedule":
			cfg.Schedule = *schedule
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	logger.Info("starting digitclf", "environment", cfg.Environment, "prefix", cfg.Prefix, "variant", cfg.Variant)

	artifacts, err := storage.NewFileStore(cfg.OutputDir)
	if err != nil {
		return err
	}

	var store metadatastore.RunStore
	if cfg.DatabasePath != "" {
		sqlStore, err := metadatastore.NewSQLiteStore(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to open run registry: %w", err)
		}
		defer sqlStore.Close()
		store = sqlStore
		logger.Info("run registry opened", "path", cfg.DatabasePath)
	}

	train, test, err := loadSplits(cfg)
	if err != nil {
		return err
	}
	logger.Info("dataset loaded", "format", cfg.DatasetFormat, "train", train.Len(), "test", test.Len())

	req, err := buildRequest(cfg, train, test)
	if err != nil {
		return err
	}
	svc := mlmodel.NewService(store, artifacts, logger, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Schedule == "" {
		_, err := svc.Run(ctx, req)
		return err
	}

	sched := scheduler.NewService(logger)
	_, err = sched.Schedule("evaluate "+cfg.Prefix, cfg.Schedule, func(jobCtx context.Context) error {
		_, err := svc.Run(jobCtx, req)
		return err
	})
	if err != nil {
		return err
	}

	// first pass runs right away, the schedule covers the rest
	if _, err := svc.Run(ctx, req); err != nil {
		logger.Error("initial run failed", "error", err)
	}
	sched.Start()
	<-ctx.Done()
	logger.Info("shutting down")
	sched.Stop()
	return nil
}

// buildRequest turns config into a pipeline request
func buildRequest(cfg *config.Config, train, test dataset.Split) (mlmodel.RunRequest, error) {
	variant := models.ModelVariant(strings.ToLower(cfg.Variant))
	if err := variant.Validate(); err != nil {
		return mlmodel.RunRequest{}, err
	}
	tc := models.DefaultTrainingConfig(variant)
	if cfg.Epochs > 0 {
		tc.Epochs = cfg.Epochs
	}
	if cfg.LearningRate > 0 {
		tc.LearningRate = cfg.LearningRate
	}
	tc.BatchSize = cfg.BatchSize
	tc.RandomSeed = cfg.Seed

	return mlmodel.RunRequest{
		Train:     train,
		Test:      test,
		Prefix:    cfg.Prefix,
		Mode:      models.PreprocessMode(strings.ToLower(cfg.Mode)),
		Variant:   variant,
		InputSize: cfg.InputSize,
		Config:    tc,
	}, nil
}

// loadSplits reads the training and test splits in the configured format
func loadSplits(cfg *config.Config) (train, test dataset.Split, err error) {
	switch strings.ToLower(cfg.DatasetFormat) {
	case config.FormatIDX:
		if train, err = dataset.LoadIDX(cfg.TrainImages, cfg.TrainLabels); err != nil {
			return train, test, fmt.Errorf("failed to load training split: %w", err)
		}
		if test, err = dataset.LoadIDX(cfg.TestImages, cfg.TestLabels); err != nil {
			return train, test, fmt.Errorf("failed to load test split: %w", err)
		}
	case config.FormatCSV:
		if train, err = dataset.LoadCSV(cfg.TrainCSV); err != nil {
			return train, test, fmt.Errorf("failed to load training split: %w", err)
		}
		if test, err = dataset.LoadCSV(cfg.TestCSV); err != nil {
			return train, test, fmt.Errorf("failed to load test split: %w", err)
		}
	case config.FormatSynthetic:
		n := cfg.SyntheticSize
		train = dataset.Synthetic(n, 28, 28, 10, cfg.Seed)
		test = dataset.Synthetic(n/5+1, 28, 28, 10, cfg.Seed+1)
	default:
		return train, test, fmt.Errorf("unsupported dataset format: %q", cfg.DatasetFormat)
	}
	return train, test, nil
}

// newLogger builds the process logger from level and format settings
func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(format) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
