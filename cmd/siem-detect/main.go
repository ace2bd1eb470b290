// Package main runs one detection pass and prints a triage summary.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"hostline-siem/internal/alertstore"
	"hostline-siem/internal/archive"
	"hostline-siem/internal/config"
	"hostline-siem/internal/fim"
	"hostline-siem/internal/logging"
	"hostline-siem/internal/rules"
	"hostline-siem/internal/startup"
)

func main() {
	var (
		runFIM     bool
		runArchive bool
	)
	flag.BoolVar(&runFIM, "fim", false, "Run a file integrity pass before detection")
	flag.BoolVar(&runArchive, "archive", false, "Archive closed alerts to S3 after detection")
	flag.Parse()

	if err := run(runFIM, runArchive); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(runFIM, runArchive bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.SetupWriter(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := context.Background()

	fmt.Printf("[%s] Starting SIEM detection run...\n", time.Now().UTC().Format(time.RFC3339))

	components, err := startup.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	if runFIM || cfg.FIM.Enabled {
		fmt.Println("Running file integrity pass...")
		agent := fim.NewAgent(cfg.FIM.Agent, logger)
		changes, err := agent.Run(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Recorded %d integrity changes\n", changes)
	}

	summary, err := components.Detect(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Generated %d alerts from rule detection\n", summary.PatternAlerts)
	fmt.Printf("Generated %d alerts from brute force detection\n", summary.WindowAlerts)
	fmt.Printf("Total alerts generated: %d\n", summary.Total())

	stats, err := components.Store.Stats(ctx)
	if err != nil {
		return err
	}
	statsJSON, _ := json.MarshalIndent(stats, "", "  ")
	fmt.Printf("Alert statistics: %s\n", statsJSON)

	if err := printOpenCriticals(ctx, components.Store); err != nil {
		return err
	}

	if runArchive && cfg.Archive.Enabled {
		archiver, err := archive.NewArchiver(ctx, cfg.Archive, logger)
		if err != nil {
			return err
		}
		manifests, err := archiver.Run(ctx, components.Store)
		if err != nil {
			return err
		}
		fmt.Printf("Archived %d batches of closed alerts\n", len(manifests))
	}

	fmt.Printf("[%s] Detection run complete.\n", time.Now().UTC().Format(time.RFC3339))
	return nil
}

// printOpenCriticals warns about open CRITICAL and HIGH alerts, listing
// the first five.
func printOpenCriticals(ctx context.Context, store alertstore.Store) error {
	open, err := store.Query(ctx, alertstore.Filter{Status: alertstore.StatusOpen})
	if err != nil {
		return err
	}

	var urgent []alertstore.Alert
	for _, a := range open {
		if a.Severity == rules.SeverityCritical || a.Severity == rules.SeverityHigh {
			urgent = append(urgent, a)
		}
	}
	if len(urgent) == 0 {
		return nil
	}

	fmt.Printf("\nWARNING: %d CRITICAL/HIGH alerts require attention!\n", len(urgent))
	for i, a := range urgent {
		if i == 5 {
			break
		}
		source := a.SourceIP
		if source == "" {
			source = "unknown"
		}
		fmt.Printf("  - [%s] %s from %s\n", a.Severity, a.Title, source)
	}
	return nil
}
