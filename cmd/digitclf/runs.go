package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/mimir-aip/digitclf/pkg/config"
	"github.com/mimir-aip/digitclf/pkg/metadatastore"
	"github.com/mimir-aip/digitclf/pkg/mlmodel"
	"github.com/mimir-aip/digitclf/pkg/mlmodel/evaluation"
	"github.com/mimir-aip/digitclf/pkg/models"
)

// runsCommand lists recorded runs or prints one run as JSON
func runsCommand(args []string) error {
	fs := flag.NewFlagSet("digitclf runs", flag.ContinueOnError)
	db := fs.String("db", "", "SQLite run registry path")
	prefix := fs.String("prefix", "", "only runs with this prefix")
	limit := fs.Int("limit", 20, "maximum number of runs to list (0 for all)")
	id := fs.String("id", "", "print a single run as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := *db
	if path == "" {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		path = cfg.DatabasePath
	}
	if path == "" {
		return fmt.Errorf("no run registry configured, pass -db or set DIGITCLF_DATABASE_PATH")
	}

	store, err := metadatastore.NewSQLiteStore(path)
	if err != nil {
		return fmt.Errorf("failed to open run registry: %w", err)
	}
	defer store.Close()
	svc := mlmodel.NewService(store, nil, nil, nil)

	if *id != "" {
		run, err := svc.GetRun(*id)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	}

	runs, err := svc.ListRuns(*prefix, *limit)
	if err != nil {
		return err
	}
	return printRuns(os.Stdout, runs)
}

func printRuns(w io.Writer, runs []*models.EvaluationRun) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPREFIX\tVARIANT\tSTATUS\tSTAGE\tACCURACY\tF1\tCREATED")
	for _, r := range runs {
		acc, f1 := "-", "-"
		if r.PerformanceMetrics != nil {
			acc = fmt.Sprintf("%.4f", r.PerformanceMetrics.Accuracy)
		}
		if v, ok := r.Report[evaluation.KeyF1]; ok {
			f1 = fmt.Sprintf("%.4f", v)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Prefix, r.Variant, r.Status, r.Stage, acc, f1,
			r.CreatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}
