package integration

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/erp/crmsync/internal/domain/integration"
	applog "github.com/erp/crmsync/internal/infrastructure/logger"
	"github.com/erp/crmsync/internal/infrastructure/telemetry"
)

// Date fields the backfill partitions on
const (
	QuoteYearField = "EntryDate"
	OrderYearField = "OrderDate"
)

// ErrInvalidBackfillOptions is returned for contradictory or out-of-range options
var ErrInvalidBackfillOptions = errors.New("integration: invalid backfill options")

// BackfillOptions controls a historical backfill
type BackfillOptions struct {
	StartYear     int
	EndYear       int
	CustomersOnly bool
	SkipCustomers bool
	QuotesOnly    bool
	OrdersOnly    bool
	DryRun        bool
	Resume        bool
	Reset         bool
}

// Validate checks the options
func (o BackfillOptions) Validate() error {
	if o.StartYear <= 0 || o.EndYear <= 0 {
		return fmt.Errorf("%w: years must be positive", ErrInvalidBackfillOptions)
	}
	if o.StartYear > o.EndYear {
		return fmt.Errorf("%w: start year %d is after end year %d", ErrInvalidBackfillOptions, o.StartYear, o.EndYear)
	}
	only := 0
	for _, b := range []bool{o.CustomersOnly, o.QuotesOnly, o.OrdersOnly} {
		if b {
			only++
		}
	}
	if only > 1 {
		return fmt.Errorf("%w: only one of customers-only, quotes-only and orders-only may be set", ErrInvalidBackfillOptions)
	}
	if o.CustomersOnly && o.SkipCustomers {
		return fmt.Errorf("%w: customers-only and skip-customers conflict", ErrInvalidBackfillOptions)
	}
	return nil
}

func (o BackfillOptions) customers() bool {
	return !o.SkipCustomers && !o.QuotesOnly && !o.OrdersOnly
}

func (o BackfillOptions) quotes() bool {
	return !o.CustomersOnly && !o.OrdersOnly
}

func (o BackfillOptions) orders() bool {
	return !o.CustomersOnly && !o.QuotesOnly
}

// PartitionCount is the number of source records in one backfill partition
type PartitionCount struct {
	Phase integration.Phase `json:"phase"`
	Year  int               `json:"year,omitempty"`
	Count int               `json:"count"`
	Error string            `json:"error,omitempty"`
}

// BackfillResult is the outcome of a backfill invocation
type BackfillResult struct {
	Run        *integration.RunSummary `json:"run,omitempty"`
	Checkpoint *integration.Checkpoint `json:"checkpoint,omitempty"`
	DryRun     []PartitionCount        `json:"dry_run,omitempty"`
}

// BackfillConfig holds the collaborators of the BackfillService
type BackfillConfig struct {
	Source      integration.SourceClient
	CRM         integration.CRMClient
	Transformer *integration.Transformer
	Checkpoints integration.CheckpointStore
	Runs        integration.SyncRunRepository
	Reports     FailureReportFactory
	Metrics     *telemetry.SyncMetrics
	Logger      *zap.Logger
}

// BackfillService migrates history year by year and records progress in a
// checkpoint so an interrupted backfill can resume
type BackfillService struct {
	cfg    BackfillConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewBackfillService creates a new BackfillService
func NewBackfillService(cfg BackfillConfig) *BackfillService {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BackfillService{
		cfg:    cfg,
		logger: logger.Named("backfill"),
		now:    time.Now,
	}
}

// Run executes the backfill. Per-record and per-partition failures are
// reported in the result; the error covers option and checkpoint problems.
func (s *BackfillService) Run(ctx context.Context, opts BackfillOptions) (*BackfillResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	if opts.DryRun {
		return &BackfillResult{DryRun: s.count(ctx, opts)}, nil
	}

	cp, err := s.prepareCheckpoint(ctx, opts)
	if err != nil {
		return nil, err
	}

	run := integration.NewRunSummary(integration.RunTriggerBackfill, s.now())
	ctx, span := telemetry.StartServiceSpan(ctx, "backfill", "run",
		telemetry.WithAttribute(telemetry.SpanAttrRunID, run.ID.String()))
	defer span.End()

	ctx = applog.WithRunID(applog.WithContext(ctx, s.logger), run.ID.String())
	logger := applog.FromContext(ctx)
	logger.Info("Backfill started",
		zap.Int("start_year", cp.StartYear),
		zap.Int("end_year", cp.EndYear),
		zap.String("checkpoint_phase", string(cp.Phase)),
	)
	s.persist(ctx, run)

	report := s.openReport(run, logger)
	syncs := NewSynchronizers(Dependencies{
		Source:      s.cfg.Source,
		CRM:         s.cfg.CRM,
		Transformer: s.cfg.Transformer,
		Failures:    report,
		Logger:      logger,
		Metrics:     s.cfg.Metrics,
	})

	if opts.customers() {
		if cp.ShouldSkipCustomers() {
			logger.Info("Customers already migrated, skipping")
		} else {
			ps, err := syncs.Customers.SyncAll(applog.WithPhase(ctx, integration.PhaseCustomers.String()), "")
			run.AddPhase(ps)
			s.cfg.Metrics.RecordPhase(ctx, ps.Phase, ps.Status, ps.Duration())
			if err == nil {
				cp.CompleteCustomers(integration.StatsFromSummary(ps), s.now())
				s.save(ctx, cp, logger)
			}
		}
	}

	if opts.quotes() {
		ps := s.runYears(ctx, cp, integration.PhaseQuotes, syncs.Quotes.SyncAll, logger)
		run.AddPhase(ps)
		if allDone(cp.QuotesYearsDone, cp.StartYear, cp.EndYear) {
			cp.CompleteQuotes(s.now())
			s.save(ctx, cp, logger)
		}
	}

	if opts.orders() {
		ps := s.runYears(ctx, cp, integration.PhaseOrders, syncs.Orders.SyncAll, logger)
		run.AddPhase(ps)
	}

	if cp.CustomersDone &&
		allDone(cp.QuotesYearsDone, cp.StartYear, cp.EndYear) &&
		allDone(cp.OrdersYearsDone, cp.StartYear, cp.EndYear) {
		cp.CompleteMigration(s.now())
		s.save(ctx, cp, logger)
	}

	if err := report.Close(); err != nil {
		logger.Warn("Failed to close failure report", zap.Error(err))
	}
	run.FailureCount = report.Count()
	run.ReportLocation = report.Location()
	logFailureSummary(logger, report)
	run.Finish(s.now())
	s.cfg.Metrics.RecordRun(ctx, run.Trigger, run.Status)
	s.persist(ctx, run)

	telemetry.SetAttribute(span, "status", run.Status.String())
	logger.Info("Backfill finished",
		zap.String("status", run.Status.String()),
		zap.String("checkpoint_phase", string(cp.Phase)),
		zap.Int("failures", run.FailureCount),
		zap.Duration("duration", run.Duration()),
	)
	return &BackfillResult{Run: run, Checkpoint: cp}, nil
}

// prepareCheckpoint resets, resumes or starts the checkpoint per opts
func (s *BackfillService) prepareCheckpoint(ctx context.Context, opts BackfillOptions) (*integration.Checkpoint, error) {
	if opts.Reset && s.cfg.Checkpoints != nil {
		if err := s.cfg.Checkpoints.Reset(ctx); err != nil {
			return nil, fmt.Errorf("reset checkpoint: %w", err)
		}
		s.logger.Info("Checkpoint reset")
	}

	if opts.Resume && !opts.Reset && s.cfg.Checkpoints != nil {
		cp, err := s.cfg.Checkpoints.Load(ctx)
		switch {
		case err == nil:
			s.logger.Info("Resuming backfill", zap.String("checkpoint", cp.ResumeInfo()))
			return cp, nil
		case errors.Is(err, integration.ErrCheckpointNotFound):
			s.logger.Info("No checkpoint to resume, starting fresh")
		default:
			return nil, fmt.Errorf("load checkpoint: %w", err)
		}
	}

	return integration.NewCheckpoint(opts.StartYear, opts.EndYear, s.now()), nil
}

// runYears syncs one phase a calendar year at a time. A year whose fetch
// failed is not marked done, so a resumed backfill retries it.
func (s *BackfillService) runYears(
	ctx context.Context,
	cp *integration.Checkpoint,
	phase integration.Phase,
	syncAll func(context.Context, string) (*integration.PhaseSummary, error),
	logger *zap.Logger,
) *integration.PhaseSummary {
	field, skip, complete := QuoteYearField, cp.ShouldSkipQuoteYear, cp.CompleteQuoteYear
	if phase == integration.PhaseOrders {
		field, skip, complete = OrderYearField, cp.ShouldSkipOrderYear, cp.CompleteOrderYear
	}

	total := integration.NewPhaseSummary(phase, s.now())
	for year := cp.StartYear; year <= cp.EndYear; year++ {
		if skip(year) {
			logger.Info("Year already migrated, skipping", zap.String("phase", phase.String()), zap.Int("year", year))
			continue
		}
		if ctx.Err() != nil {
			total.Abort(ctx.Err(), s.now())
			return total
		}

		ps, err := syncAll(applog.WithPhase(ctx, phase.String()), integration.YearFilter(field, year))
		total.Merge(ps)
		s.cfg.Metrics.RecordPhase(ctx, phase, ps.Status, ps.Duration())
		if err != nil {
			logger.Error("Backfill year aborted",
				zap.String("phase", phase.String()),
				zap.Int("year", year),
				zap.Error(err),
			)
			continue
		}

		complete(year, integration.StatsFromSummary(ps), s.now())
		s.save(ctx, cp, logger)
		logger.Info("Backfill year complete",
			zap.String("phase", phase.String()),
			zap.Int("year", year),
			zap.Int("total", ps.Total),
			zap.Int("errors", ps.Errors),
		)
	}
	total.Finish(s.now())
	return total
}

// count fetches every partition without writing anything
func (s *BackfillService) count(ctx context.Context, opts BackfillOptions) []PartitionCount {
	var counts []PartitionCount
	add := func(phase integration.Phase, year, n int, err error) {
		pc := PartitionCount{Phase: phase, Year: year, Count: n}
		if err != nil {
			pc.Error = err.Error()
		}
		s.logger.Info("Dry run partition",
			zap.String("phase", phase.String()),
			zap.Int("year", year),
			zap.Int("count", n),
			zap.Error(err),
		)
		counts = append(counts, pc)
	}

	if opts.customers() {
		customers, err := s.cfg.Source.FetchCustomers(ctx, "")
		add(integration.PhaseCustomers, 0, len(customers), err)
	}
	for year := opts.StartYear; year <= opts.EndYear; year++ {
		if opts.quotes() {
			quotes, err := s.cfg.Source.FetchQuotes(ctx, integration.YearFilter(QuoteYearField, year))
			add(integration.PhaseQuotes, year, len(quotes), err)
		}
		if opts.orders() {
			orders, err := s.cfg.Source.FetchOrders(ctx, integration.YearFilter(OrderYearField, year))
			add(integration.PhaseOrders, year, len(orders), err)
		}
	}
	return counts
}

func (s *BackfillService) openReport(run *integration.RunSummary, logger *zap.Logger) FailureReport {
	if s.cfg.Reports == nil {
		return NewMemoryFailureReport()
	}
	report, err := s.cfg.Reports(run.ID, run.StartedAt)
	if err != nil {
		logger.Warn("Failed to open failure report, keeping failures in memory", zap.Error(err))
		return NewMemoryFailureReport()
	}
	return report
}

func (s *BackfillService) save(ctx context.Context, cp *integration.Checkpoint, logger *zap.Logger) {
	if s.cfg.Checkpoints == nil {
		return
	}
	if err := s.cfg.Checkpoints.Save(ctx, cp); err != nil {
		logger.Error("Failed to save checkpoint", zap.Error(err))
	}
}

func (s *BackfillService) persist(ctx context.Context, run *integration.RunSummary) {
	if s.cfg.Runs == nil {
		return
	}
	if err := s.cfg.Runs.Save(ctx, run); err != nil {
		s.logger.Warn("Failed to save backfill run", zap.String("run_id", run.ID.String()), zap.Error(err))
	}
}

func allDone(done []int, start, end int) bool {
	for y := start; y <= end; y++ {
		if !slices.Contains(done, y) {
			return false
		}
	}
	return true
}
