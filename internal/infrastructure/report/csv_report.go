// Package report writes per-record sync failures to CSV files that operators
// can review and replay.
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/erp/crmsync/internal/domain/integration"
)

// DefaultPrefix is the file name prefix of a sync run's report
const DefaultPrefix = "failed_records"

// Header is the first row of every failure report
var Header = []string{
	"timestamp",
	"entity_type",
	"entity_id",
	"operation",
	"error_type",
	"error_message",
	"source_data",
}

// Sentinel errors for the report
var (
	ErrReportClosed = errors.New("report: report is closed")
	ErrEmptyDir     = errors.New("report: output directory is required")
)

// CSVReport appends failures to a CSV file as they are recorded. It is safe
// for concurrent use. A report that recorded nothing is removed on Close.
type CSVReport struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	writer  *csv.Writer
	count   int
	byKey   map[string]int
	closed  bool
	removed bool
	logger  *zap.Logger
}

// Option configures a CSVReport
type Option func(*CSVReport)

// WithLogger sets the logger used for write errors
func WithLogger(logger *zap.Logger) Option {
	return func(r *CSVReport) {
		if logger != nil {
			r.logger = logger.Named("failure_report")
		}
	}
}

// FileName returns the report name for a run started at startedAt
func FileName(prefix string, startedAt time.Time) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return fmt.Sprintf("%s_%s.csv", prefix, startedAt.UTC().Format("20060102_150405"))
}

// NewCSVReport creates dir if needed and opens a new report in it
func NewCSVReport(dir, prefix string, startedAt time.Time, opts ...Option) (*CSVReport, error) {
	if dir == "" {
		return nil, ErrEmptyDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report directory: %w", err)
	}

	path := filepath.Join(dir, FileName(prefix, startedAt))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create report file: %w", err)
	}

	r := &CSVReport{
		path:   path,
		file:   f,
		writer: csv.NewWriter(f),
		byKey:  make(map[string]int),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := r.writer.Write(Header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write report header: %w", err)
	}
	r.writer.Flush()
	if err := r.writer.Error(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write report header: %w", err)
	}
	return r, nil
}

// Record implements integration.FailureSink. Write errors are logged, never
// returned to the synchronizer.
func (r *CSVReport) Record(f integration.RecordFailure) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		r.logger.Warn("Dropping failure recorded after close", zap.String("failure", f.Error()))
		return
	}

	at := f.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}
	row := []string{
		at.UTC().Format(time.RFC3339),
		f.Entity.String(),
		f.EntityID,
		string(f.Operation),
		f.Kind.String(),
		f.Message,
		f.Snapshot,
	}
	if err := r.writer.Write(row); err != nil {
		r.logger.Error("Failed to write failure record", zap.String("path", r.path), zap.Error(err))
		return
	}
	// flush per row so a crashed run still leaves its failures on disk
	r.writer.Flush()
	if err := r.writer.Error(); err != nil {
		r.logger.Error("Failed to flush failure record", zap.String("path", r.path), zap.Error(err))
		return
	}

	r.count++
	r.byKey[f.SummaryKey()]++
}

// Count returns the number of recorded failures
func (r *CSVReport) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Location returns the report path, or "" once an empty report was removed
func (r *CSVReport) Location() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.removed {
		return ""
	}
	return r.path
}

// Summary counts failures by "entity/error_type"
func (r *CSVReport) Summary() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.byKey))
	for k, v := range r.byKey {
		out[k] = v
	}
	return out
}

// Close flushes and closes the file. It is idempotent.
func (r *CSVReport) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	r.writer.Flush()
	err := errors.Join(r.writer.Error(), r.file.Close())
	if err != nil {
		return fmt.Errorf("close report: %w", err)
	}

	if r.count == 0 {
		if err := os.Remove(r.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove empty report: %w", err)
		}
		r.removed = true
		return nil
	}

	r.logger.Info("Failure report written", zap.String("path", r.path), zap.Int("failures", r.count))
	return nil
}
