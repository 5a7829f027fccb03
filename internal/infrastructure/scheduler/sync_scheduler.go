package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/erp/crmsync/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// SyncExecutor
// ---------------------------------------------------------------------------

// SyncExecutor runs one sync and blocks until it finishes. It returns
// integration.ErrRunInProgress when another run holds the lock.
type SyncExecutor interface {
	Execute(ctx context.Context) (*integration.RunSummary, error)
}

// SyncExecutorFunc adapts a function to SyncExecutor
type SyncExecutorFunc func(ctx context.Context) (*integration.RunSummary, error)

// Execute implements SyncExecutor
func (f SyncExecutorFunc) Execute(ctx context.Context) (*integration.RunSummary, error) {
	return f(ctx)
}

// ---------------------------------------------------------------------------
// SyncSchedulerConfig
// ---------------------------------------------------------------------------

// SyncSchedulerConfig holds configuration for the periodic sync
type SyncSchedulerConfig struct {
	// Interval between the start of two scheduled runs
	Interval time.Duration
	// RunOnStart triggers a run as soon as the scheduler starts
	RunOnStart bool
	// JobTimeout bounds one run; zero means no limit
	JobTimeout time.Duration
	// MaxHistory is the number of recent results kept for monitoring
	MaxHistory int
}

// DefaultSyncSchedulerConfig returns default configuration
func DefaultSyncSchedulerConfig() SyncSchedulerConfig {
	return SyncSchedulerConfig{
		Interval:   time.Hour,
		RunOnStart: true,
		JobTimeout: 0,
		MaxHistory: 50,
	}
}

// Validate validates the configuration
func (c *SyncSchedulerConfig) Validate() error {
	if c.Interval <= 0 {
		return ErrInvalidConfig
	}
	if c.JobTimeout < 0 {
		return ErrInvalidConfig
	}
	if c.MaxHistory <= 0 {
		c.MaxHistory = 50
	}
	return nil
}

// ---------------------------------------------------------------------------
// Tick results
// ---------------------------------------------------------------------------

// TickResult records what one scheduled tick did
type TickResult struct {
	At      time.Time
	RunID   string
	Status  integration.SyncStatus
	Skipped bool
	Error   string
}

// ---------------------------------------------------------------------------
// SyncScheduler
// ---------------------------------------------------------------------------

// SyncScheduler runs the sync on a fixed interval. Ticks that find a run
// in flight are skipped, never queued.
type SyncScheduler struct {
	config   SyncSchedulerConfig
	executor SyncExecutor
	logger   *zap.Logger

	trigger   chan struct{}
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	historyMu sync.RWMutex
	history   []TickResult
}

// NewSyncScheduler creates a new sync scheduler
func NewSyncScheduler(config SyncSchedulerConfig, executor SyncExecutor, logger *zap.Logger) (*SyncScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if executor == nil {
		return nil, ErrInvalidConfig
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncScheduler{
		config:   config,
		executor: executor,
		logger:   logger.Named("sync_scheduler"),
		trigger:  make(chan struct{}, 1),
		history:  make([]TickResult, 0, config.MaxHistory),
	}, nil
}

// Start starts the scheduling loop
func (s *SyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return ErrSchedulerRunning
	}
	s.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.runLoop(ctx)

	s.logger.Info("Sync scheduler started",
		zap.Duration("interval", s.config.Interval),
		zap.Bool("run_on_start", s.config.RunOnStart),
	)
	return nil
}

// Stop cancels the loop and waits for an in-flight run to return
func (s *SyncScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Sync scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Sync scheduler stop timed out")
		return ctx.Err()
	}
}

// TriggerNow requests an immediate tick. A request made while one is
// already pending is merged into it.
func (s *SyncScheduler) TriggerNow() error {
	s.mu.Lock()
	running := s.isRunning
	s.mu.Unlock()
	if !running {
		return ErrSchedulerNotRunning
	}
	select {
	case s.trigger <- struct{}{}:
	default:
	}
	return nil
}

// History returns up to limit recent tick results, newest first
func (s *SyncScheduler) History(limit int) []TickResult {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	result := make([]TickResult, limit)
	copy(result, s.history[:limit])
	return result
}

func (s *SyncScheduler) runLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if s.config.RunOnStart {
		s.tick(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		case <-s.trigger:
			s.tick(ctx)
		}
	}
}

// tick executes one run and records its result
func (s *SyncScheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	runCtx := ctx
	if s.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.config.JobTimeout)
		defer cancel()
	}

	result := TickResult{At: time.Now()}
	summary, err := s.executor.Execute(runCtx)
	switch {
	case errors.Is(err, integration.ErrRunInProgress):
		result.Skipped = true
		s.logger.Info("Skipping scheduled sync, a run is already in progress")
	case err != nil:
		result.Error = err.Error()
		s.logger.Error("Scheduled sync failed", zap.Error(err))
	case summary != nil:
		result.RunID = summary.ID.String()
		result.Status = summary.Status
		s.logger.Info("Scheduled sync finished",
			zap.String("run_id", result.RunID),
			zap.String("status", string(summary.Status)),
			zap.Int("failures", summary.FailureCount),
			zap.Duration("duration", summary.Duration()),
		)
	}
	s.addToHistory(result)
}

func (s *SyncScheduler) addToHistory(r TickResult) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	s.history = append([]TickResult{r}, s.history...)
	if len(s.history) > s.config.MaxHistory {
		s.history = s.history[:s.config.MaxHistory]
	}
}
