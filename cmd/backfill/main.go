package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	syncapp "github.com/erp/crmsync/internal/application/integration"
	"github.com/erp/crmsync/internal/bootstrap"
	"github.com/erp/crmsync/internal/domain/integration"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath     string
		checkpointPath string
		outputDir      string
		status         bool
		asJSON         bool
		opts           syncapp.BackfillOptions
	)
	flag.StringVar(&configPath, "config", "", "Path to config file (default: ./config.toml)")
	flag.StringVar(&checkpointPath, "checkpoint", "", "Checkpoint file (default: sync.checkpoint_file)")
	flag.StringVar(&outputDir, "output", "", "Directory for failure reports (default: sync.output_dir)")
	flag.BoolVar(&status, "status", false, "Print the saved checkpoint and exit")
	flag.BoolVar(&asJSON, "json", false, "Print the result as JSON")
	flag.IntVar(&opts.StartYear, "start-year", 2020, "First year to migrate")
	flag.IntVar(&opts.EndYear, "end-year", time.Now().Year(), "Last year to migrate")
	flag.BoolVar(&opts.CustomersOnly, "customers-only", false, "Migrate customers only")
	flag.BoolVar(&opts.SkipCustomers, "skip-customers", false, "Skip the customer phase")
	flag.BoolVar(&opts.QuotesOnly, "quotes-only", false, "Migrate quotes only")
	flag.BoolVar(&opts.OrdersOnly, "orders-only", false, "Migrate orders only")
	flag.BoolVar(&opts.DryRun, "dry-run", false, "Count records per year without writing to HubSpot")
	flag.BoolVar(&opts.Resume, "resume", false, "Resume from the saved checkpoint")
	flag.BoolVar(&opts.Reset, "reset", false, "Delete the saved checkpoint and exit")
	flag.Parse()

	if err := opts.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, configPath, "backfill")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = app.Close(shutdownCtx)
	}()
	log := app.Logger

	if opts.Reset {
		if err := app.Checkpoints(checkpointPath).Reset(ctx); err != nil {
			log.Error("Failed to reset checkpoint", zap.Error(err))
			return 1
		}
		fmt.Println("Checkpoint has been reset. Run again without -reset to start fresh.")
		return 0
	}

	if status {
		cp, err := app.Checkpoints(checkpointPath).Load(ctx)
		if err != nil && !errors.Is(err, integration.ErrCheckpointNotFound) {
			log.Error("Failed to load checkpoint", zap.Error(err))
			return 1
		}
		fmt.Printf("Checkpoint:\n  %s\n", cp.ResumeInfo())
		return 0
	}

	if outputDir != "" {
		app.Config.Sync.OutputDir = outputDir
	}
	svc, err := app.BackfillService(checkpointPath)
	if err != nil {
		log.Error("Failed to initialize backfill", zap.Error(err))
		return 1
	}

	result, err := svc.Run(ctx, opts)
	if err != nil {
		log.Error("Backfill failed", zap.Error(err))
		return 1
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			log.Error("Failed to encode result", zap.Error(err))
			return 1
		}
	} else {
		printResult(result)
	}

	if result.Run != nil && result.Run.HasFatalError() {
		return 1
	}
	return 0
}

func printResult(r *syncapp.BackfillResult) {
	if r.DryRun != nil {
		fmt.Println("Dry run, records per partition:")
		for _, c := range r.DryRun {
			label := string(c.Phase)
			if c.Year != 0 {
				label = fmt.Sprintf("%s %d", c.Phase, c.Year)
			}
			if c.Error != "" {
				fmt.Printf("  %-15s error: %s\n", label, c.Error)
				continue
			}
			fmt.Printf("  %-15s %d\n", label, c.Count)
		}
		return
	}

	run := r.Run
	fmt.Printf("Backfill %s: %s in %s\n", run.ID, run.Status, run.Duration().Round(time.Second))
	for _, p := range run.Phases {
		fmt.Printf("  %-9s %-7s total=%d created=%d updated=%d skipped=%d errors=%d\n",
			p.Phase, p.Status, p.Total, p.Created, p.Updated, p.Skipped, p.Errors)
	}
	if run.FailureCount > 0 {
		fmt.Printf("Failed records: %d, see %s\n", run.FailureCount, run.ReportLocation)
	}
	if r.Checkpoint != nil && r.Checkpoint.Phase != integration.BackfillPhaseComplete {
		fmt.Printf("Backfill incomplete, rerun with -resume.\n  %s\n", r.Checkpoint.ResumeInfo())
	}
}
