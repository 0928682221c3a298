package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rumor-ml/propsheet/internal/aggregate"
	"github.com/rumor-ml/propsheet/internal/ai"
	"github.com/rumor-ml/propsheet/internal/config"
	"github.com/rumor-ml/propsheet/internal/ingest"
	"github.com/rumor-ml/propsheet/internal/log"
	"github.com/rumor-ml/propsheet/internal/memory"
	"github.com/rumor-ml/propsheet/internal/output"
	"github.com/rumor-ml/propsheet/internal/registry"
	"github.com/rumor-ml/propsheet/internal/server"
	"github.com/rumor-ml/propsheet/internal/session"
	"github.com/rumor-ml/propsheet/internal/store"
	firestorestore "github.com/rumor-ml/propsheet/internal/store/firestore"
	sqlitestore "github.com/rumor-ml/propsheet/internal/store/sqlite"
	"github.com/rumor-ml/propsheet/internal/suppress"
	"github.com/rumor-ml/propsheet/internal/ui"
)

const (
	version = "0.1.0"
)

var (
	// Global flags
	versionFlag = flag.Bool("version", false, "Show version")
	verbose     = flag.Bool("verbose", false, "Show detailed logs")

	// Core CLI flags
	inputDir   = flag.String("input", "", "Input directory containing spreadsheet exports")
	outputFile = flag.String("output", "", "Output JSON snapshot (default: stdout)")

	// Server mode
	serve = flag.Bool("serve", false, "Run the HTTP API server instead of a one-shot ingest")
	addr  = flag.String("addr", "", "Server listen address (overrides PROPSHEET_ADDR)")

	// Storage flags
	backend   = flag.String("backend", "", "Storage backend: memory, sqlite, firestore (overrides PROPSHEET_BACKEND)")
	dbPath    = flag.String("db", "", "SQLite database path (overrides PROPSHEET_SQLITE_PATH)")
	projectID = flag.String("project", "", "Firestore project ID (overrides PROPSHEET_FIRESTORE_PROJECT)")

	// Engine flags
	bucketsFile     = flag.String("buckets", "", "Custom bucket definitions YAML (default: embedded)")
	oracleMode      = flag.String("oracle", "", "Account oracle: none, section, http, gemini (overrides PROPSHEET_ORACLE)")
	noCollisionFlag = flag.Bool("no-collision-dedup", false, "Disable duplicate-total suppression by derived value")
)

func main() {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, `propsheet - Bucket classification engine for property financial spreadsheets

Usage:
  propsheet [flags]

Flags:
`)
		flag.PrintDefaults()
		fmt.Fprint(os.Stderr, `
Examples:
  # Classify all CSV exports and print the snapshot
  propsheet -input ./exports

  # Persist datasets and learned assignments in SQLite
  propsheet -input ./exports -backend sqlite -db propsheet.db -output snapshot.json

  # Run the HTTP API
  propsheet -serve -addr :8085 -backend sqlite -db propsheet.db

`)
	}

	flag.Parse()

	if *versionFlag {
		fmt.Printf("propsheet version %s\n", version)
		os.Exit(0)
	}

	if !*serve && *inputDir == "" {
		fmt.Fprintf(os.Stderr, "Error: -input flag is required (or run with -serve)\n\n")
		flag.Usage()
		os.Exit(1)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	level := log.ParseLevel(cfg.LogLevel)
	if *verbose {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level, JSON: cfg.LogJSON, Component: "propsheet"})
	log.SetDefault(logger)

	reg, err := loadRegistry(cfg)
	if err != nil {
		return err
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	oracle, err := buildOracle(ctx, cfg)
	if err != nil {
		return err
	}

	opts := suppress.Options{ValueCollision: cfg.ValueCollision}

	sess, err := session.New(session.Config{
		Registry: reg,
		Memory:   memory.New(st, logger),
		Store:    st,
		Oracle:   oracle,
		Suppress: opts,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	if err := sess.Restore(ctx); err != nil {
		return err
	}

	if *serve {
		return runServer(ctx, cfg, sess, logger)
	}
	return runIngest(ctx, cfg, sess, logger)
}

// applyFlags lets CLI flags override environment configuration.
func applyFlags(cfg *config.Config) {
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *backend != "" {
		cfg.Backend = *backend
	}
	if *dbPath != "" {
		cfg.SQLitePath = *dbPath
		if *backend == "" {
			cfg.Backend = "sqlite"
		}
	}
	if *projectID != "" {
		cfg.FirestoreProject = *projectID
		if *backend == "" {
			cfg.Backend = "firestore"
		}
	}
	if *bucketsFile != "" {
		cfg.BucketsFile = *bucketsFile
	}
	if *oracleMode != "" {
		cfg.Oracle = *oracleMode
	}
	if *noCollisionFlag {
		cfg.ValueCollision = false
	}
}

func loadRegistry(cfg *config.Config) (*registry.Registry, error) {
	if cfg.BucketsFile != "" {
		reg, err := registry.LoadFromFile(cfg.BucketsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load bucket definitions: %w", err)
		}
		return reg, nil
	}
	reg, err := registry.New()
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded bucket definitions: %w", err)
	}
	return reg, nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Backend {
	case "sqlite":
		return sqlitestore.Open(cfg.SQLitePath)
	case "firestore":
		return firestorestore.New(ctx, cfg.FirestoreProject)
	default:
		return store.NewMemory(), nil
	}
}

func buildOracle(ctx context.Context, cfg *config.Config) (ai.Oracle, error) {
	switch cfg.Oracle {
	case "none":
		return nil, nil
	case "http":
		return ai.NewHTTPOracle(cfg.OracleURL), nil
	case "gemini":
		return ai.NewGeminiOracle(ctx, cfg.GeminiModel)
	default:
		return ai.NewSectionOracle(), nil
	}
}

func runServer(ctx context.Context, cfg *config.Config, sess *session.Session, logger *slog.Logger) error {
	srv := server.New(sess, logger)
	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutting down")
		return httpServer.Shutdown(context.Background())
	}
}

func runIngest(ctx context.Context, cfg *config.Config, sess *session.Session, logger *slog.Logger) error {
	if !*verbose {
		ui.Header("Classifying Property Spreadsheets")
		ui.Step(1, 4, "Scanning directory")
	} else {
		logger.Debug("scanning directory", "dir", *inputDir)
	}

	files, err := ingest.NewScanner(*inputDir).Scan()
	if err != nil {
		return fmt.Errorf("failed to scan directory %s: %w", *inputDir, err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no CSV files found in %s", *inputDir)
	}
	if !*verbose {
		ui.Success(fmt.Sprintf("Found %d spreadsheet files", len(files)))
		ui.Step(2, 4, "Classifying accounts")
	}

	var totalIssues int
	for i, file := range files {
		if *verbose {
			logger.Debug("ingesting", "path", file.Path, "fileType", file.FileType)
		} else {
			fmt.Fprintf(os.Stderr, "\r  Progress: %d/%d files...", i+1, len(files))
		}

		rows, err := ingest.ReadFile(file.Path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file.Path, err)
		}

		_, issues, err := sess.Ingest(ctx, file.Name, file.FileType, rows)
		if err != nil {
			return fmt.Errorf("failed to ingest %s: %w", file.Path, err)
		}
		totalIssues += len(issues)
		for _, issue := range issues {
			logger.Warn("normalization issue", "file", file.Path, "issue", issue.String())
		}

		if _, err := sess.SaveLive(ctx); err != nil {
			return fmt.Errorf("failed to save dataset for %s: %w", file.Path, err)
		}
	}
	if !*verbose {
		fmt.Fprintf(os.Stderr, "\r  Progress: %d/%d files - Complete!\n", len(files), len(files))
		if totalIssues > 0 {
			ui.Warning(fmt.Sprintf("%d cells could not be parsed and were zeroed", totalIssues))
		}
		ui.Step(3, 4, "Aggregating totals")
	}

	totals := sess.Totals()
	report := sess.Reconcile()
	printReport(report)

	if !*verbose {
		ui.Step(4, 4, "Writing snapshot")
	}
	snap := &output.Snapshot{
		GeneratedAt:    sess.Summarize().GeneratedAt,
		Datasets:       sess.Datasets(),
		Totals:         totals,
		Reconciliation: report,
	}
	if err := output.WriteSnapshotToFile(snap, output.WriteOptions{FilePath: *outputFile}); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if *outputFile != "" && !*verbose {
		ui.Success(fmt.Sprintf("Snapshot written to %s", *outputFile))
	}
	return nil
}

func printReport(report aggregate.Report) {
	fmt.Fprintf(os.Stderr, "\n")
	ui.Info(fmt.Sprintf("Income items: %.2f, declared total: %.2f", report.IncomeItemsSum, report.IncomeTotalDeclared))
	if report.IncomeMismatch {
		ui.Warning(fmt.Sprintf("Income off by %.2f", report.IncomeDelta))
	}
	ui.Info(fmt.Sprintf("Expense items: %.2f, declared total: %.2f", report.ExpenseItemsSum, report.ExpenseTotalDeclared))
	if report.ExpenseMismatch {
		ui.Warning(fmt.Sprintf("Expenses off by %.2f", report.ExpenseDelta))
	}
	ui.Info(fmt.Sprintf("Net operating income: %.2f", report.NetOperatingIncome))
}
