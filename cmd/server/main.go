package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	syncapp "github.com/erp/crmsync/internal/application/integration"
	"github.com/erp/crmsync/internal/bootstrap"
	"github.com/erp/crmsync/internal/domain/integration"
	"github.com/erp/crmsync/internal/infrastructure/scheduler"
	"github.com/erp/crmsync/internal/interfaces/http/handler"
	"github.com/erp/crmsync/internal/interfaces/http/router"
)

func main() {
	configPath := ""
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	ctx := context.Background()
	app, err := bootstrap.New(ctx, configPath, "server")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		os.Exit(1)
	}
	cfg := app.Config
	log := app.Logger

	manager, err := app.SyncManager(ctx)
	if err != nil {
		log.Error("Failed to initialize sync", zap.Error(err))
		_ = app.Close(ctx)
		os.Exit(1)
	}

	// Periodic sync
	var sched *scheduler.SyncScheduler
	if cfg.Sync.Interval > 0 {
		schedCfg := scheduler.DefaultSyncSchedulerConfig()
		schedCfg.Interval = cfg.Sync.Interval
		schedCfg.JobTimeout = cfg.Sync.RunTimeout
		sched, err = scheduler.NewSyncScheduler(schedCfg, scheduler.SyncExecutorFunc(
			func(ctx context.Context) (*integration.RunSummary, error) {
				opts := syncapp.DefaultRunOptions(integration.RunTriggerSchedule)
				opts.Customers = cfg.Sync.Customers
				opts.Quotes = cfg.Sync.Quotes
				opts.Orders = cfg.Sync.Orders
				return manager.Run(ctx, opts)
			}), log)
		if err != nil {
			log.Error("Failed to create scheduler", zap.Error(err))
			_ = app.Close(ctx)
			os.Exit(1)
		}
		if err := sched.Start(ctx); err != nil {
			log.Error("Failed to start scheduler", zap.Error(err))
			_ = app.Close(ctx)
			os.Exit(1)
		}
	} else {
		log.Info("Scheduled sync disabled, runs are triggered through the API")
	}

	health := handler.NewHealthHandler(manager, bootstrap.Version)
	if sched != nil {
		health.WithSchedule(lastTick(sched))
	}

	mode := gin.DebugMode
	if cfg.IsProduction() {
		mode = gin.ReleaseMode
	}
	engine, err := router.NewEngine(router.EngineConfig{
		Mode:           mode,
		ServiceName:    cfg.Telemetry.ServiceName,
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		TracingEnabled: cfg.Telemetry.Enabled,
		MeterProvider:  app.Meter,
		Logger:         log,
	}, health)
	if err != nil {
		log.Error("Failed to create HTTP engine", zap.Error(err))
		_ = app.Close(ctx)
		os.Exit(1)
	}
	router.NewRouter(engine, router.WithAPIVersion("v1")).
		Register(router.SyncRoutes(handler.NewSyncRunHandler(manager))).
		Setup()

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      engine,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// SIGHUP requests an immediate scheduled sync; SIGINT/SIGTERM shut down
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	exitCode := 0
wait:
	for {
		select {
		case sig := <-quit:
			if sig != syscall.SIGHUP {
				log.Info("Shutting down server...")
				break wait
			}
			if sched == nil {
				log.Warn("SIGHUP ignored, scheduled sync is disabled")
				continue
			}
			if err := sched.TriggerNow(); err != nil {
				log.Warn("Failed to trigger sync", zap.Error(err))
			} else {
				log.Info("Sync triggered by SIGHUP")
			}
		case err := <-serveErr:
			log.Error("Server failed", zap.Error(err))
			exitCode = 1
			break wait
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			log.Warn("Scheduler did not stop cleanly", zap.Error(err))
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("Server forced to shutdown", zap.Error(err))
	}
	manager.Wait()
	log.Info("Server exited gracefully")

	if err := app.Close(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Shutdown: %v\n", err)
	}
	os.Exit(exitCode)
}

func lastTick(sched *scheduler.SyncScheduler) handler.ScheduleStatus {
	return func() (handler.ScheduledTick, bool) {
		h := sched.History(1)
		if len(h) == 0 {
			return handler.ScheduledTick{}, false
		}
		t := h[0]
		tick := handler.ScheduledTick{At: t.At, RunID: t.RunID, Skipped: t.Skipped, Error: t.Error}
		if t.Status != "" {
			tick.Status = t.Status.String()
		}
		return tick, true
	}
}
