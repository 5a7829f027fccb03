package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
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
		check          bool
		customersOnly  bool
		quotesOnly     bool
		ordersOnly     bool
		customerFilter string
		quoteFilter    string
		orderFilter    string
	)
	flag.StringVar(&configPath, "config", "", "Path to config file (default: ./config.toml)")
	flag.BoolVar(&check, "check", false, "Only test the Epicor and HubSpot connections")
	flag.BoolVar(&customersOnly, "customers-only", false, "Sync customers only")
	flag.BoolVar(&quotesOnly, "quotes-only", false, "Sync quotes only")
	flag.BoolVar(&ordersOnly, "orders-only", false, "Sync orders only")
	flag.StringVar(&customerFilter, "customer-filter", "", "OData $filter for customers")
	flag.StringVar(&quoteFilter, "quote-filter", "", "OData $filter for quotes")
	flag.StringVar(&orderFilter, "order-filter", "", "OData $filter for orders")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, configPath, "sync")
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

	manager, err := app.SyncManager(ctx)
	if err != nil {
		log.Error("Failed to initialize sync", zap.Error(err))
		return 1
	}

	if check {
		return checkConnections(ctx, manager, log)
	}

	opts, err := runOptions(app.Config.Sync.Customers, app.Config.Sync.Quotes, app.Config.Sync.Orders,
		customersOnly, quotesOnly, ordersOnly)
	if err != nil {
		log.Error("Invalid flags", zap.Error(err))
		return 2
	}
	opts.CustomerFilter = customerFilter
	opts.QuoteFilter = quoteFilter
	opts.OrderFilter = orderFilter

	summary, err := manager.Run(ctx, opts)
	if errors.Is(err, integration.ErrRunInProgress) {
		log.Warn("Another sync run is in progress, exiting")
		return 1
	}
	if err != nil {
		log.Error("Sync failed", zap.Error(err))
		return 1
	}

	printSummary(summary)
	if summary.HasFatalError() {
		return 1
	}
	return 0
}

// runOptions narrows the configured phases to at most one "-only" flag
func runOptions(customers, quotes, orders, customersOnly, quotesOnly, ordersOnly bool) (syncapp.RunOptions, error) {
	opts := syncapp.RunOptions{
		Trigger:   integration.RunTriggerCLI,
		Customers: customers,
		Quotes:    quotes,
		Orders:    orders,
	}

	only := 0
	for _, b := range []bool{customersOnly, quotesOnly, ordersOnly} {
		if b {
			only++
		}
	}
	switch {
	case only > 1:
		return opts, errors.New("only one of -customers-only, -quotes-only and -orders-only may be set")
	case only == 1:
		opts.Customers, opts.Quotes, opts.Orders = customersOnly, quotesOnly, ordersOnly
	}

	if !opts.Customers && !opts.Quotes && !opts.Orders {
		return opts, errors.New("no sync phase is enabled")
	}
	return opts, nil
}

func checkConnections(ctx context.Context, manager *syncapp.SyncManager, log *zap.Logger) int {
	results := manager.TestConnections(ctx)
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	code := 0
	for _, name := range names {
		if err := results[name]; err != nil {
			fmt.Printf("%-8s FAILED  %v\n", name, err)
			code = 1
			continue
		}
		fmt.Printf("%-8s OK\n", name)
	}
	if code != 0 {
		log.Warn("Connection check failed")
	}
	return code
}

func printSummary(s *integration.RunSummary) {
	fmt.Println()
	fmt.Printf("Run %s: %s in %s\n", s.ID, s.Status, s.Duration().Round(time.Second))
	for _, p := range s.Phases {
		fmt.Printf("  %-9s %-7s total=%d created=%d updated=%d skipped=%d errors=%d warnings=%d\n",
			p.Phase, p.Status, p.Total, p.Created, p.Updated, p.Skipped, p.Errors, p.Warnings)
		if p.Lines != (integration.LineSyncSummary{}) {
			fmt.Printf("  %-9s line items created=%d updated=%d products created=%d skipped=%d errors=%d\n",
				"", p.Lines.Created, p.Lines.Updated, p.Lines.ProductsCreated, p.Lines.Skipped, p.Lines.Errors)
		}
		if p.FatalError != "" {
			fmt.Printf("  %-9s aborted: %s\n", "", p.FatalError)
		}
	}
	if s.FailureCount > 0 {
		fmt.Printf("Failed records: %d, see %s\n", s.FailureCount, s.ReportLocation)
	}
}
