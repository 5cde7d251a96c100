/*
main.go - Application entry point

PURPOSE:
  Wires the accrual engine: configuration, logger, store, collaborators,
  the task registry, the queue worker, and the ops HTTP server.

STARTUP SEQUENCE:
  1. Parse -config flag, load viper config with env overrides
  2. Build the zap logger
  3. Open the SQLite store (auto-migrates)
  4. Register the three recurring tasks exactly once
  5. Start the registry and the ops HTTP server
  6. Block until SIGINT/SIGTERM, then shut down gracefully

TASKS REGISTERED:
  loan-interest-accrual   every N hours (default 4)
  loan-overdue-sweep      daily at HH:MM (default 02:30)
  notification-queue      every N minutes (default 1)

DEPLOYMENT CONSTRAINT:
  The registry guards overlap only within this process. Running two
  instances double-executes every job; deploy a single active scheduler
  instance.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/crednest/loan-engine/api"
	"github.com/crednest/loan-engine/config"
	"github.com/crednest/loan-engine/jobs"
	"github.com/crednest/loan-engine/logging"
	"github.com/crednest/loan-engine/notify"
	"github.com/crednest/loan-engine/schedule"
	"github.com/crednest/loan-engine/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	defer logger.Sync()

	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		logger.Fatal("invalid timezone", zap.String("timezone", cfg.Scheduler.Timezone), zap.Error(err))
	}

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer store.Close()

	// Collaborators. Real deployments swap these for the CRM and SMS
	// vendor clients.
	assigner := &jobs.LogOfficerAssigner{Logger: logger.Named("assigner")}
	gateway := &jobs.LogGateway{Logger: logger.Named("gateway")}

	interest := jobs.NewInterestRunner(store, loc, logger.Named("interest"))
	overdue := jobs.NewOverdueRunner(store, assigner, store, loc, logger.Named("overdue"))
	worker := notify.NewWorker(store, gateway, notify.WorkerConfig{
		BatchSize:   cfg.Notify.BatchSize,
		MaxAttempts: cfg.Notify.MaxAttempts,
	}, logger.Named("notify"))

	registry := schedule.New(loc, logger.Named("scheduler"))
	mustRegister(logger, registry, jobs.TaskInterestAccrual,
		schedule.EveryNHours(cfg.Scheduler.InterestEveryHrs), interest.Run)
	mustRegister(logger, registry, jobs.TaskOverdueSweep,
		schedule.DailyAt(cfg.Scheduler.OverdueSweepAt), overdue.Run)
	mustRegister(logger, registry, jobs.TaskNotifyQueue,
		schedule.EveryNMinutes(cfg.Scheduler.QueueEveryMins), worker.Run)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	registry.Start(ctx)

	handler := api.NewHandler(store, registry, logger.Named("api"))
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      api.NewRouter(handler),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("ops server starting", zap.Int("port", cfg.HTTP.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	if err := registry.Stop(shutdownCtx); err != nil {
		logger.Error("scheduler forced to stop", zap.Error(err))
	}

	logger.Info("stopped")
}

func mustRegister(logger *zap.Logger, registry *schedule.Registry, name string, cadence schedule.Cadence, handler schedule.Handler) {
	if err := registry.Register(name, cadence, handler); err != nil {
		logger.Fatal("task registration failed", zap.String("task", name), zap.Error(err))
	}
}
