package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/crmsync/internal/domain/integration"
	applog "github.com/erp/crmsync/internal/infrastructure/logger"
	"github.com/erp/crmsync/internal/infrastructure/telemetry"
)

// ---------------------------------------------------------------------------
// Run options and collaborators
// ---------------------------------------------------------------------------

// RunOptions selects the phases of one run and their source filters
type RunOptions struct {
	Trigger        integration.RunTrigger
	Customers      bool
	Quotes         bool
	Orders         bool
	CustomerFilter string
	QuoteFilter    string
	OrderFilter    string
}

// DefaultRunOptions enables every phase with no filter
func DefaultRunOptions(trigger integration.RunTrigger) RunOptions {
	return RunOptions{Trigger: trigger, Customers: true, Quotes: true, Orders: true}
}

// FailureReport is a failure sink that is finalized at the end of a run
type FailureReport interface {
	integration.FailureSink
	Count() int
	// Summary counts failures by RecordFailure.SummaryKey
	Summary() map[string]int
	Close() error
	// Location is the file the report was written to, "" when kept in memory
	Location() string
}

// FailureReportFactory opens the failure report of a run
type FailureReportFactory func(runID uuid.UUID, startedAt time.Time) (FailureReport, error)

// Pinger checks connectivity to a remote system
type Pinger interface {
	Ping(ctx context.Context) error
}

// SyncManagerConfig holds the collaborators of the SyncManager. Only Source,
// CRM and Transformer are required.
type SyncManagerConfig struct {
	Source      integration.SourceClient
	CRM         integration.CRMClient
	Transformer *integration.Transformer

	Runs      integration.SyncRunRepository
	Lock      integration.RunLock
	Artifacts integration.ArtifactStore
	Reports   FailureReportFactory
	Pingers   map[string]Pinger
	Metrics   *telemetry.SyncMetrics
	Logger    *zap.Logger

	LockKey        string
	LockTTL        time.Duration
	RunTimeout     time.Duration
	ArtifactPrefix string
}

// ---------------------------------------------------------------------------
// SyncManager
// ---------------------------------------------------------------------------

// SyncManager runs the customer, quote and order phases in dependency order
// and keeps the run history
type SyncManager struct {
	cfg    SyncManagerConfig
	logger *zap.Logger
	now    func() time.Time

	wg sync.WaitGroup
}

// NewSyncManager creates a new SyncManager
func NewSyncManager(cfg SyncManagerConfig) *SyncManager {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LockKey == "" {
		cfg.LockKey = "crmsync:run"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 6 * time.Hour
	}
	return &SyncManager{
		cfg:    cfg,
		logger: logger.Named("sync_manager"),
		now:    time.Now,
	}
}

// Run executes one sync run and blocks until it finishes. The error is
// ErrRunInProgress when another run holds the lock; phase failures are
// reported in the summary only.
func (m *SyncManager) Run(ctx context.Context, opts RunOptions) (*integration.RunSummary, error) {
	if err := m.acquire(ctx); err != nil {
		return nil, err
	}
	defer m.release()

	summary := m.begin(ctx, opts)
	m.execute(ctx, summary, opts)
	return summary, nil
}

// Start begins a run in the background and returns its initial summary
func (m *SyncManager) Start(ctx context.Context, opts RunOptions) (*integration.RunSummary, error) {
	if err := m.acquire(ctx); err != nil {
		return nil, err
	}

	summary := m.begin(ctx, opts)
	started := *summary

	runCtx := context.WithoutCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.release()
		m.execute(runCtx, summary, opts)
	}()

	return &started, nil
}

// Wait blocks until every background run has finished
func (m *SyncManager) Wait() {
	m.wg.Wait()
}

// GetRun returns a persisted run
func (m *SyncManager) GetRun(ctx context.Context, id uuid.UUID) (*integration.RunSummary, error) {
	if m.cfg.Runs == nil {
		return nil, integration.ErrSyncRunNotFound
	}
	return m.cfg.Runs.FindByID(ctx, id)
}

// ListRuns returns the most recent runs, newest first
func (m *SyncManager) ListRuns(ctx context.Context, limit int) ([]*integration.RunSummary, error) {
	if m.cfg.Runs == nil {
		return []*integration.RunSummary{}, nil
	}
	return m.cfg.Runs.FindRecent(ctx, limit)
}

// TestConnections pings every configured remote system. A nil entry means
// the system answered.
func (m *SyncManager) TestConnections(ctx context.Context) map[string]error {
	results := make(map[string]error, len(m.cfg.Pingers))
	for name, p := range m.cfg.Pingers {
		err := p.Ping(ctx)
		if err != nil {
			m.logger.Warn("Connection check failed", zap.String("system", name), zap.Error(err))
		} else {
			m.logger.Info("Connection check passed", zap.String("system", name))
		}
		results[name] = err
	}
	return results
}

// ---------------------------------------------------------------------------
// run lifecycle
// ---------------------------------------------------------------------------

func (m *SyncManager) acquire(ctx context.Context) error {
	if m.cfg.Lock == nil {
		return nil
	}
	ok, err := m.cfg.Lock.TryAcquire(ctx, m.cfg.LockKey, m.cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return integration.ErrRunInProgress
	}
	return nil
}

func (m *SyncManager) release() {
	if m.cfg.Lock == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.cfg.Lock.Release(ctx, m.cfg.LockKey); err != nil {
		m.logger.Warn("Failed to release run lock", zap.Error(err))
	}
}

func (m *SyncManager) begin(ctx context.Context, opts RunOptions) *integration.RunSummary {
	summary := integration.NewRunSummary(opts.Trigger, m.now())
	m.persist(ctx, summary)
	m.logger.Info("Sync run started",
		zap.String("run_id", summary.ID.String()),
		zap.String("trigger", string(opts.Trigger)),
		zap.Bool("customers", opts.Customers),
		zap.Bool("quotes", opts.Quotes),
		zap.Bool("orders", opts.Orders),
	)
	return summary
}

func (m *SyncManager) execute(ctx context.Context, summary *integration.RunSummary, opts RunOptions) {
	if m.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.RunTimeout)
		defer cancel()
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "sync_manager", "run",
		telemetry.WithAttribute(telemetry.SpanAttrRunID, summary.ID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrTrigger, string(summary.Trigger)),
	)
	defer span.End()

	ctx = applog.WithRunID(applog.WithContext(ctx, m.logger), summary.ID.String())
	logger := applog.FromContext(ctx)
	report := m.openReport(summary, logger)

	syncs := NewSynchronizers(Dependencies{
		Source:      m.cfg.Source,
		CRM:         m.cfg.CRM,
		Transformer: m.cfg.Transformer,
		Failures:    report,
		Logger:      logger,
		Metrics:     m.cfg.Metrics,
	})

	type phase struct {
		enabled bool
		name    integration.Phase
		filter  string
		run     func(context.Context, string) (*integration.PhaseSummary, error)
	}
	phases := []phase{
		{opts.Customers, integration.PhaseCustomers, opts.CustomerFilter, syncs.Customers.SyncAll},
		{opts.Quotes, integration.PhaseQuotes, opts.QuoteFilter, syncs.Quotes.SyncAll},
		{opts.Orders, integration.PhaseOrders, opts.OrderFilter, syncs.Orders.SyncAll},
	}

	for _, p := range phases {
		if !p.enabled {
			continue
		}
		ps, err := p.run(applog.WithPhase(ctx, p.name.String()), p.filter)
		if err != nil {
			// The phase is aborted; later phases still run.
			telemetry.RecordError(span, err)
			logger.Error("Sync phase aborted", zap.String("phase", p.name.String()), zap.Error(err))
		}
		summary.AddPhase(ps)
		m.cfg.Metrics.RecordPhase(ctx, ps.Phase, ps.Status, ps.Duration())
	}

	if err := report.Close(); err != nil {
		logger.Warn("Failed to close failure report", zap.Error(err))
	}
	summary.FailureCount = report.Count()
	summary.ReportLocation = m.publishReport(ctx, summary, report, logger)
	logFailureSummary(logger, report)

	summary.Finish(m.now())
	m.cfg.Metrics.RecordRun(ctx, summary.Trigger, summary.Status)
	m.persist(ctx, summary)

	telemetry.SetAttribute(span, "status", summary.Status.String())
	logger.Info("Sync run finished",
		zap.String("status", summary.Status.String()),
		zap.Int("failures", summary.FailureCount),
		zap.String("report", summary.ReportLocation),
		zap.Int("products_cached", syncs.Lines.CachedProducts()),
		zap.Duration("duration", summary.Duration()),
	)
}

// openReport opens the run's failure report, falling back to memory
func (m *SyncManager) openReport(summary *integration.RunSummary, logger *zap.Logger) FailureReport {
	if m.cfg.Reports == nil {
		return NewMemoryFailureReport()
	}
	report, err := m.cfg.Reports(summary.ID, summary.StartedAt)
	if err != nil {
		logger.Warn("Failed to open failure report, keeping failures in memory", zap.Error(err))
		return NewMemoryFailureReport()
	}
	return report
}

// publishReport uploads a non-empty report file to the artifact store and
// returns where the report can be found
func (m *SyncManager) publishReport(ctx context.Context, summary *integration.RunSummary, report FailureReport, logger *zap.Logger) string {
	location := report.Location()
	if m.cfg.Artifacts == nil || location == "" || report.Count() == 0 {
		return location
	}

	f, err := os.Open(location)
	if err != nil {
		logger.Warn("Failed to open failure report for upload", zap.String("path", location), zap.Error(err))
		return location
	}
	defer f.Close()

	key := m.artifactKey(summary, filepath.Base(location))
	uploaded, err := m.cfg.Artifacts.Put(ctx, key, f, "text/csv")
	if err != nil {
		logger.Warn("Failed to upload failure report", zap.String("key", key), zap.Error(err))
		return location
	}
	return uploaded
}

func (m *SyncManager) artifactKey(summary *integration.RunSummary, name string) string {
	key := fmt.Sprintf("runs/%s/%s", summary.ID, name)
	if m.cfg.ArtifactPrefix != "" {
		key = m.cfg.ArtifactPrefix + "/" + key
	}
	return key
}

func (m *SyncManager) persist(ctx context.Context, summary *integration.RunSummary) {
	if m.cfg.Runs == nil {
		return
	}
	if err := m.cfg.Runs.Save(ctx, summary); err != nil {
		m.logger.Warn("Failed to save sync run",
			zap.String("run_id", summary.ID.String()),
			zap.Error(err),
		)
	}
}

// ---------------------------------------------------------------------------
// MemoryFailureReport
// ---------------------------------------------------------------------------

// MemoryFailureReport keeps failures in memory. It is safe for concurrent use.
type MemoryFailureReport struct {
	mu       sync.Mutex
	failures []integration.RecordFailure
}

// NewMemoryFailureReport creates an empty in-memory report
func NewMemoryFailureReport() *MemoryFailureReport {
	return &MemoryFailureReport{}
}

// Record implements integration.FailureSink
func (r *MemoryFailureReport) Record(f integration.RecordFailure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, f)
}

// Failures returns a copy of the recorded failures
func (r *MemoryFailureReport) Failures() []integration.RecordFailure {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]integration.RecordFailure(nil), r.failures...)
}

// Count returns the number of recorded failures
func (r *MemoryFailureReport) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.failures)
}

// Summary implements FailureReport
func (r *MemoryFailureReport) Summary() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int)
	for _, f := range r.failures {
		out[f.SummaryKey()]++
	}
	return out
}

// Close implements FailureReport
func (r *MemoryFailureReport) Close() error { return nil }

// Location implements FailureReport
func (r *MemoryFailureReport) Location() string { return "" }

func logFailureSummary(logger *zap.Logger, report FailureReport) {
	byKey := report.Summary()
	if len(byKey) == 0 {
		return
	}
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fields := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, zap.Int(k, byKey[k]))
	}
	logger.Warn("Failures by entity and type", fields...)
}
