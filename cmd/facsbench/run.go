package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/okulev/facs/pkg/config"
	"github.com/okulev/facs/pkg/executor"
	"github.com/okulev/facs/pkg/fastqscreen"
	"github.com/okulev/facs/pkg/result"
	"github.com/okulev/facs/pkg/runner"
	"github.com/okulev/facs/pkg/store"
	"github.com/okulev/facs/pkg/upload"
)

var (
	outputFile string
	toolOutput bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the benchmark sweep",
	Long:  `Screen every configured fastq sample against every reference and report the results.`,
	RunE:  runSweep,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&outputFile, "output", "",
		"Write the assembled reports as JSON to this file")
	runCmd.Flags().BoolVar(&toolOutput, "tool-output", false,
		"Pass the screening tool's own output through to stdout")
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	// Setup context with signal handling.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
	}()

	interval, err := cfg.Benchmark.ParsedSampleInterval()
	if err != nil {
		return fmt.Errorf("parsing sample interval: %w", err)
	}

	execCfg := &executor.Config{SampleInterval: interval}
	if toolOutput {
		execCfg.ToolOutput = os.Stdout
	}

	aligner := fastqscreen.Aligner(cfg.Benchmark.Aligner)

	r := runner.New(log, &runner.Config{
		Binary:         cfg.Screen.Binary,
		AlignerBinary:  cfg.Screen.AlignerBinary(aligner),
		FastqDir:       cfg.Benchmark.FastqDir,
		ReferenceDir:   cfg.Benchmark.ReferenceDir,
		Bowtie2Indexes: cfg.Benchmark.Bowtie2Indexes,
		WorkDir:        cfg.Benchmark.WorkDir,
		Threads:        cfg.Benchmark.Threads,
		Aligner:        aligner,
		SampleMemory:   cfg.Benchmark.SampleMemory,
	}, executor.New(log, execCfg))

	reports, err := r.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("running sweep: %w", err)
	}

	if len(reports) == 0 {
		log.Warn("Sweep produced no reports")
	}

	if outputFile != "" {
		if err := writeReports(outputFile, reports); err != nil {
			return err
		}
	}

	if err := persistReports(ctx, cfg, reports); err != nil {
		return err
	}

	deliverReports(ctx, cfg, reports)

	if err := uploadReports(ctx, cfg, reports); err != nil {
		return err
	}

	return nil
}

// writeReports dumps the assembled reports as an indented JSON array.
func writeReports(path string, reports []*result.RunReport) error {
	data, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding reports: %w", err)
	}

	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing reports file: %w", err)
	}

	log.WithField("path", path).Info("Wrote reports file")

	return nil
}

// persistReports saves reports into the configured database, if any.
func persistReports(ctx context.Context, cfg *config.Config, reports []*result.RunReport) error {
	if cfg.Results.Database.Driver == "" {
		return nil
	}

	st, err := store.New(log, storeConfig(cfg))
	if err != nil {
		return fmt.Errorf("opening report store: %w", err)
	}
	defer func() { _ = st.Close() }()

	for _, report := range reports {
		if err := st.Save(ctx, report); err != nil {
			return fmt.Errorf("persisting report %s: %w", report.Key(), err)
		}
	}

	log.WithField("reports", len(reports)).Info("Persisted reports")

	return nil
}

// deliverReports pushes documents to CouchDB. Delivery is best-effort:
// failures are logged, never fatal.
func deliverReports(ctx context.Context, cfg *config.Config, reports []*result.RunReport) {
	if !cfg.Results.CouchDB.Enabled {
		return
	}

	couch := upload.NewCouchDB(log, &cfg.Results.CouchDB)

	for _, report := range reports {
		if err := couch.Deliver(ctx, report); err != nil {
			log.WithError(err).WithField("doc_id", report.Key()).
				Warn("CouchDB delivery failed")
		}
	}
}

// uploadReports ships the sweep's documents to S3 storage.
func uploadReports(ctx context.Context, cfg *config.Config, reports []*result.RunReport) error {
	if !cfg.Results.Upload.S3.Enabled || len(reports) == 0 {
		return nil
	}

	uploader, err := upload.NewS3Uploader(log, &cfg.Results.Upload.S3)
	if err != nil {
		return fmt.Errorf("creating uploader: %w", err)
	}

	if err := uploader.Preflight(ctx); err != nil {
		return fmt.Errorf("s3 preflight: %w", err)
	}

	sweepID := reports[0].BeginTimestamp.UTC().Format("20060102-150405")

	if err := uploader.UploadReports(ctx, sweepID, reports); err != nil {
		return fmt.Errorf("uploading reports: %w", err)
	}

	return nil
}

// storeConfig maps the database section onto the store's driver/DSN
// pair.
func storeConfig(cfg *config.Config) *store.Config {
	db := cfg.Results.Database

	if db.Driver == "postgres" {
		return &store.Config{Driver: "postgres", DSN: db.Postgres.DSN()}
	}

	return &store.Config{Driver: "sqlite", DSN: db.SQLite.Path}
}
