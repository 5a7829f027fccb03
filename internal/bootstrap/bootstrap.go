// Package bootstrap wires configuration, logging, telemetry and the sync
// adapters shared by the crmsync commands.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	syncapp "github.com/erp/crmsync/internal/application/integration"
	"github.com/erp/crmsync/internal/domain/integration"
	"github.com/erp/crmsync/internal/infrastructure/cache"
	"github.com/erp/crmsync/internal/infrastructure/checkpoint"
	"github.com/erp/crmsync/internal/infrastructure/config"
	"github.com/erp/crmsync/internal/infrastructure/epicor"
	"github.com/erp/crmsync/internal/infrastructure/hubspot"
	"github.com/erp/crmsync/internal/infrastructure/logger"
	"github.com/erp/crmsync/internal/infrastructure/owner"
	"github.com/erp/crmsync/internal/infrastructure/persistence"
	"github.com/erp/crmsync/internal/infrastructure/report"
	"github.com/erp/crmsync/internal/infrastructure/storage"
	"github.com/erp/crmsync/internal/infrastructure/telemetry"
)

// Version is stamped at build time with -ldflags
var Version = "dev"

// App holds the process-wide collaborators. Adapters are created lazily
// and closed in reverse order by Close.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Meter   *telemetry.MeterProvider
	Metrics *telemetry.SyncMetrics

	closers []func(context.Context) error

	source      *epicor.Client
	crm         *hubspot.Client
	transformer *integration.Transformer
	db          *persistence.Database
}

// New loads configuration from configPath (empty searches the default
// locations) and starts logging and telemetry
func New(ctx context.Context, configPath, component string) (*App, error) {
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	log, err := logger.New(&logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Output:      cfg.Log.Output,
		TimeFormat:  logger.DefaultTimeFormat,
		ServiceName: cfg.Telemetry.ServiceName,
		Environment: cfg.App.Env,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	a := &App{Config: cfg, Logger: log}
	a.closers = append(a.closers, func(context.Context) error {
		_ = logger.Sync(log)
		return nil
	})

	if err := a.startTelemetry(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.Logger = a.Logger.Named(component)
	return a, nil
}

func (a *App) startTelemetry(ctx context.Context) error {
	t := a.Config.Telemetry

	export := telemetry.ExportConfig{
		Enabled:           t.Enabled,
		CollectorEndpoint: t.CollectorEndpoint,
		ServiceName:       t.ServiceName,
		ServiceVersion:    Version,
		Insecure:          t.Insecure,
	}

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		ExportConfig:  export,
		SamplingRatio: t.SamplingRatio,
	}, a.Logger)
	if err != nil {
		return fmt.Errorf("initialize tracer provider: %w", err)
	}
	a.closers = append(a.closers, tp.Shutdown)

	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{ExportConfig: export}, a.Logger)
	if err != nil {
		return fmt.Errorf("initialize meter provider: %w", err)
	}
	a.closers = append(a.closers, mp.Shutdown)
	a.Meter = mp

	lp, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{ExportConfig: export}, a.Logger)
	if err != nil {
		return fmt.Errorf("initialize logger provider: %w", err)
	}
	a.closers = append(a.closers, lp.Shutdown)
	a.Logger = telemetry.BridgeLogger(a.Logger, lp, t.ServiceName, logger.ParseLevel(a.Config.Log.Level))

	metrics, err := telemetry.NewSyncMetrics(telemetry.SyncMetricsConfig{
		Meter:  mp.Meter("crmsync"),
		Logger: a.Logger,
	})
	if err != nil {
		return fmt.Errorf("initialize sync metrics: %w", err)
	}
	a.Metrics = metrics
	return nil
}

// Close releases everything New and the adapter getters opened, newest
// first. It is safe to call more than once.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// ---------------------------------------------------------------------------
// Remote systems
// ---------------------------------------------------------------------------

// Source returns the Epicor client
func (a *App) Source() (*epicor.Client, error) {
	if a.source != nil {
		return a.source, nil
	}
	e := a.Config.Epicor
	client, err := epicor.NewClient(&epicor.Config{
		BaseURL:            e.BaseURL,
		Company:            e.Company,
		Username:           e.Username,
		Password:           e.Password,
		APIKey:             e.APIKey,
		BatchSize:          a.Config.Sync.BatchSize,
		MaxRetries:         a.Config.Sync.MaxRetries,
		Timeout:            e.Timeout,
		InsecureSkipVerify: e.InsecureSkipVerify,
	}, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("create epicor client: %w", err)
	}
	a.source = client
	return client, nil
}

// CRM returns the HubSpot client
func (a *App) CRM() (*hubspot.Client, error) {
	if a.crm != nil {
		return a.crm, nil
	}
	h := a.Config.HubSpot
	client, err := hubspot.NewClient(&hubspot.Config{
		APIKey:            h.APIKey,
		BaseURL:           h.BaseURL,
		RateLimitInterval: h.RateLimitInterval,
		MaxRetries:        a.Config.Sync.MaxRetries,
		Timeout:           h.Timeout,
	}, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("create hubspot client: %w", err)
	}
	a.crm = client
	return client, nil
}

// Transformer loads the sales rep mapping and returns the record transformer
func (a *App) Transformer() (*integration.Transformer, error) {
	if a.transformer != nil {
		return a.transformer, nil
	}
	owners, err := owner.Load(a.Config.Sync.SalesRepMappingFile, a.Logger)
	if err != nil {
		return nil, err
	}
	a.transformer = integration.NewTransformer(integration.Pipelines{
		QuotesPipelineID: a.Config.HubSpot.QuotesPipelineID,
		OrdersPipelineID: a.Config.HubSpot.OrdersPipelineID,
	}, owners, integration.WithPhoneRegion(a.Config.Sync.PhoneRegion))
	return a.transformer, nil
}

// ---------------------------------------------------------------------------
// Local infrastructure
// ---------------------------------------------------------------------------

// Database opens the run history store and migrates its schema
func (a *App) Database() (*persistence.Database, error) {
	if a.db != nil {
		return a.db, nil
	}
	t := a.Config.Telemetry
	dbCfg := telemetry.DefaultDBTracingConfig()
	dbCfg.Enabled = t.Enabled && t.DBTraceEnabled
	dbCfg.LogFullSQL = t.DBLogFullSQL
	dbCfg.DBSystem = a.Config.Database.Driver
	if t.DBSlowQueryThresh > 0 {
		dbCfg.SlowQueryThresh = t.DBSlowQueryThresh
	}
	tracing := telemetry.NewDBTracingPlugin(dbCfg, a.Logger)

	db, err := persistence.NewDatabase(&a.Config.Database,
		persistence.WithLogger(a.Logger, "warn", logger.WithSlowThreshold(dbCfg.SlowQueryThresh)),
		persistence.WithTracing(tracing),
		persistence.WithAutoMigrate(),
	)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return db.Close() })
	a.db = db
	return db, nil
}

// RunLock returns the Redis run lock, or an in-memory lock when Redis is
// disabled or unreachable
func (a *App) RunLock(ctx context.Context) (integration.RunLock, error) {
	lock, err := cache.NewRunLockFactory(a.Config.Redis,
		cache.WithLogger(a.Logger),
		cache.WithInMemoryFallback(!a.Config.IsProduction()),
	).Create(ctx)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return lock.Close() })
	return lock, nil
}

// Artifacts returns the S3 store when a bucket is configured, local disk
// under the output directory otherwise
func (a *App) Artifacts(ctx context.Context) (integration.ArtifactStore, error) {
	aws := a.Config.AWS
	if aws.S3Bucket == "" {
		local, err := storage.NewLocalStore(a.Config.Sync.OutputDir)
		if err != nil {
			return nil, err
		}
		a.Logger.Debug("Artifacts kept on local disk", zap.String("dir", local.Root()))
		return local, nil
	}
	s3, err := storage.NewS3Store(ctx, storage.S3Config{
		Bucket:       aws.S3Bucket,
		Region:       aws.Region,
		Endpoint:     aws.Endpoint,
		AccessKey:    aws.AccessKey,
		SecretKey:    aws.SecretKey,
		UsePathStyle: aws.UsePathStyle,
	}, storage.WithLogger(a.Logger))
	if err != nil {
		return nil, err
	}
	if err := s3.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	a.Logger.Debug("Artifacts uploaded to S3", zap.String("bucket", s3.Bucket()))
	return s3, nil
}

// Reports opens a CSV failure report per run in the output directory
func (a *App) Reports() syncapp.FailureReportFactory {
	dir := a.Config.Sync.OutputDir
	log := a.Logger
	return func(_ uuid.UUID, startedAt time.Time) (syncapp.FailureReport, error) {
		return report.NewCSVReport(dir, report.DefaultPrefix, startedAt, report.WithLogger(log))
	}
}

// Checkpoints returns the backfill checkpoint store. An empty path uses the
// configured checkpoint file.
func (a *App) Checkpoints(path string) *checkpoint.FileStore {
	if path == "" {
		path = a.Config.Sync.CheckpointFile
	}
	return checkpoint.NewFileStore(path, a.Logger)
}

// ---------------------------------------------------------------------------
// Services
// ---------------------------------------------------------------------------

// SyncManager wires the orchestrator with every configured adapter. Run
// history and artifact upload failures are not fatal; the manager runs
// without them.
func (a *App) SyncManager(ctx context.Context) (*syncapp.SyncManager, error) {
	source, crm, transformer, err := a.syncAdapters()
	if err != nil {
		return nil, err
	}
	lock, err := a.RunLock(ctx)
	if err != nil {
		return nil, err
	}

	cfg := syncapp.SyncManagerConfig{
		Source:      source,
		CRM:         crm,
		Transformer: transformer,
		Lock:        lock,
		Reports:     a.Reports(),
		Pingers: map[string]syncapp.Pinger{
			"epicor":  source,
			"hubspot": crm,
		},
		Metrics:        a.Metrics,
		Logger:         a.Logger,
		LockTTL:        a.Config.Sync.RunTimeout + time.Hour,
		RunTimeout:     a.Config.Sync.RunTimeout,
		ArtifactPrefix: a.Config.AWS.ArtifactPrefix,
	}

	if db, err := a.Database(); err != nil {
		a.Logger.Warn("Run history unavailable", zap.Error(err))
	} else {
		cfg.Runs = persistence.NewGormSyncRunRepository(db.DB)
	}
	if a.Config.AWS.S3Bucket != "" {
		if store, err := a.Artifacts(ctx); err != nil {
			a.Logger.Warn("Artifact store unavailable, reports stay on local disk", zap.Error(err))
		} else {
			cfg.Artifacts = store
		}
	}

	return syncapp.NewSyncManager(cfg), nil
}

// BackfillService wires the historical backfill runner
func (a *App) BackfillService(checkpointPath string) (*syncapp.BackfillService, error) {
	source, crm, transformer, err := a.syncAdapters()
	if err != nil {
		return nil, err
	}
	cfg := syncapp.BackfillConfig{
		Source:      source,
		CRM:         crm,
		Transformer: transformer,
		Checkpoints: a.Checkpoints(checkpointPath),
		Reports:     a.Reports(),
		Metrics:     a.Metrics,
		Logger:      a.Logger,
	}
	if db, err := a.Database(); err != nil {
		a.Logger.Warn("Run history unavailable", zap.Error(err))
	} else {
		cfg.Runs = persistence.NewGormSyncRunRepository(db.DB)
	}
	return syncapp.NewBackfillService(cfg), nil
}

func (a *App) syncAdapters() (*epicor.Client, *hubspot.Client, *integration.Transformer, error) {
	if err := a.Config.ValidateForSync(); err != nil {
		return nil, nil, nil, err
	}
	source, err := a.Source()
	if err != nil {
		return nil, nil, nil, err
	}
	crm, err := a.CRM()
	if err != nil {
		return nil, nil, nil, err
	}
	transformer, err := a.Transformer()
	if err != nil {
		return nil, nil, nil, err
	}
	return source, crm, transformer, nil
}
