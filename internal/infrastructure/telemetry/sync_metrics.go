package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/erp/crmsync/internal/domain/integration"
)

// SyncMetrics records per-record, per-phase and per-run sync counters.
// A nil *SyncMetrics is valid and records nothing.
type SyncMetrics struct {
	logger *zap.Logger

	recordsTotal  *Counter
	failuresTotal *Counter
	linesTotal    *Counter
	runsTotal     *Counter
	phaseDuration *Histogram
}

// SyncMetricsConfig holds configuration for sync metrics.
type SyncMetricsConfig struct {
	Meter  metric.Meter
	Logger *zap.Logger
}

// PhaseDurationBuckets are bucket boundaries for sync phase duration (seconds).
// Phases range from a few seconds for an incremental run to hours for a backfill year.
var PhaseDurationBuckets = []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600, 7200}

// NewSyncMetrics creates the sync instruments on the given meter.
func NewSyncMetrics(cfg SyncMetricsConfig) (*SyncMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &SyncMetrics{logger: logger}

	var err error
	m.recordsTotal, err = NewCounter(
		cfg.Meter,
		"crmsync_records_total",
		"Total number of source records processed",
		"{records}",
	)
	if err != nil {
		return nil, err
	}

	m.failuresTotal, err = NewCounter(
		cfg.Meter,
		"crmsync_failures_total",
		"Total number of per-record failures and warnings",
		"{failures}",
	)
	if err != nil {
		return nil, err
	}

	m.linesTotal, err = NewCounter(
		cfg.Meter,
		"crmsync_line_items_total",
		"Total number of line items reconciled",
		"{line_items}",
	)
	if err != nil {
		return nil, err
	}

	m.runsTotal, err = NewCounter(
		cfg.Meter,
		"crmsync_runs_total",
		"Total number of finished sync runs",
		"{runs}",
	)
	if err != nil {
		return nil, err
	}

	m.phaseDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "crmsync_phase_duration_seconds",
		Description: "Duration of a sync phase",
		Unit:        "s",
		Boundaries:  PhaseDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	return m, nil
}

// =============================================================================
// Recording
// =============================================================================

// RecordRecord counts one synced source record by entity and action.
func (m *SyncMetrics) RecordRecord(ctx context.Context, entity integration.EntityType, action integration.SyncAction) {
	if m == nil {
		return
	}
	m.recordsTotal.Inc(ctx,
		AttrEntity.String(entity.String()),
		AttrAction.String(action.String()),
	)
}

// RecordFailure counts one failure entry tagged with its severity.
func (m *SyncMetrics) RecordFailure(ctx context.Context, entity integration.EntityType, kind integration.FailureKind) {
	if m == nil {
		return
	}
	m.failuresTotal.Inc(ctx,
		AttrEntity.String(entity.String()),
		AttrFailureKind.String(kind.String()),
		AttrSeverity.String(severity(kind)),
	)
}

func severity(kind integration.FailureKind) string {
	switch {
	case kind.IsPhaseFatal():
		return "fatal"
	case kind.IsWarning():
		return "warning"
	default:
		return "error"
	}
}

// RecordLines adds the counters of one line-item reconciliation.
func (m *SyncMetrics) RecordLines(ctx context.Context, s integration.LineSyncSummary) {
	if m == nil {
		return
	}
	add := func(action string, n int) {
		if n > 0 {
			m.linesTotal.Add(ctx, int64(n), AttrAction.String(action))
		}
	}
	add("created", s.Created)
	add("updated", s.Updated)
	add("skipped", s.Skipped)
	add("failed", s.Errors)
	add("product_created", s.ProductsCreated)
}

// RecordPhase records how long a phase ran and how it ended.
func (m *SyncMetrics) RecordPhase(ctx context.Context, phase integration.Phase, status integration.SyncStatus, d time.Duration) {
	if m == nil {
		return
	}
	m.phaseDuration.RecordDuration(ctx, d,
		AttrPhase.String(phase.String()),
		AttrStatus.String(status.String()),
	)
}

// RecordRun counts one finished run by trigger and status.
func (m *SyncMetrics) RecordRun(ctx context.Context, trigger integration.RunTrigger, status integration.SyncStatus) {
	if m == nil {
		return
	}
	m.runsTotal.Inc(ctx,
		AttrTrigger.String(string(trigger)),
		AttrStatus.String(status.String()),
	)
}

// =============================================================================
// Error Types
// =============================================================================

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewSyncMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
