package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/mimir-aip/digitclf/pkg/api"
	"github.com/mimir-aip/digitclf/pkg/config"
	"github.com/mimir-aip/digitclf/pkg/metadatastore"
	"github.com/mimir-aip/digitclf/pkg/mlmodel"
	"github.com/mimir-aip/digitclf/pkg/storage"
)

// serveCommand exposes recorded runs, reports and plots over HTTP
func serveCommand(args []string) error {
	fs := flag.NewFlagSet("digitclf serve", flag.ContinueOnError)
	addr := fs.String("addr", ":8080", "listen address")
	db := fs.String("db", "", "SQLite run registry path")
	output := fs.String("output", "", "output directory holding reports and plots")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *db != "" {
		cfg.DatabasePath = *db
	}
	if *output != "" {
		cfg.OutputDir = *output
	}
	if cfg.DatabasePath == "" {
		return fmt.Errorf("no run registry configured, pass -db or set DIGITCLF_DATABASE_PATH")
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat)

	store, err := metadatastore.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open run registry: %w", err)
	}
	defer store.Close()

	artifacts, err := storage.NewFileStore(cfg.OutputDir)
	if err != nil {
		return err
	}

	svc := mlmodel.NewService(store, artifacts, logger, nil)
	server := api.NewServer(*addr, svc, artifacts, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return server.Start(ctx)
}
