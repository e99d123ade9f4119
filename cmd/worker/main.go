// Package main provides the entry point for the daily feed worker: the job
// scheduler, the background task runner and the admin HTTP server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"dailyfeed/internal/config"
	"dailyfeed/internal/di"
	"dailyfeed/internal/handlers"
	"dailyfeed/internal/observability"
	"dailyfeed/internal/version"

	"github.com/gin-gonic/gin"
)

// fatalIfErr logs the error with context and panics with a consistent message
func fatalIfErr(ctx context.Context, logger *observability.Logger, msg string, err error, fields map[string]interface{}) {
	logger.Error(ctx, msg, err, fields)
	panic(msg + ": " + err.Error())
}

func main() {
	ctx := context.Background()

	cfg, err := config.NewConfig()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	tp, mp, logger, err := observability.SetupObservability(&cfg.OpenTelemetry, handlers.ServiceName,
		observability.ParseLogLevel(cfg.Server.LogLevel))
	if err != nil {
		panic("Failed to initialize observability: " + err.Error())
	}
	defer func() {
		if shutdowner, ok := tp.(interface{ Shutdown(context.Context) error }); ok {
			if err := shutdowner.Shutdown(context.Background()); err != nil {
				logger.Warn(ctx, "Error shutting down tracer provider", map[string]interface{}{"error": err.Error(), "provider": "tracer"})
			}
		}
		if mp != nil {
			if err := mp.Shutdown(context.Background()); err != nil {
				logger.Warn(ctx, "Error shutting down meter provider", map[string]interface{}{"error": err.Error(), "provider": "meter"})
			}
		}
		_ = logger.Sync()
	}()

	logger.Info(ctx, "Starting daily feed worker", map[string]interface{}{
		"port":     cfg.Server.Port,
		"logLevel": cfg.Server.LogLevel,
		"debug":    cfg.Server.Debug,
		"timezone": cfg.Pipeline.Timezone,
		"version":  version.Version,
	})

	container := di.NewServiceContainer(cfg, logger)
	if err := container.Initialize(ctx); err != nil {
		fatalIfErr(ctx, logger, "Failed to initialize services", err, nil)
	}

	orchestrator, err := container.GetDailyOrchestrator()
	if err != nil {
		fatalIfErr(ctx, logger, "Failed to get daily orchestrator", err, nil)
	}
	dispatcher, err := container.GetNotificationDispatcher()
	if err != nil {
		fatalIfErr(ctx, logger, "Failed to get notification dispatcher", err, nil)
	}
	generator, err := container.GetAnswerGenerator()
	if err != nil {
		fatalIfErr(ctx, logger, "Failed to get answer generator", err, nil)
	}
	scheduler, err := container.GetScheduler()
	if err != nil {
		fatalIfErr(ctx, logger, "Failed to get scheduler", err, nil)
	}
	runner, err := container.GetTaskRunner()
	if err != nil {
		fatalIfErr(ctx, logger, "Failed to get task runner", err, nil)
	}

	schedulerCtx, stopScheduler := context.WithCancel(ctx)
	defer stopScheduler()
	go scheduler.Start(schedulerCtx)

	gin.SetMode(gin.ReleaseMode)
	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	}
	router := handlers.NewRouter(cfg, orchestrator, dispatcher, generator, scheduler, runner, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: config.ServerReadHeaderTimeout,
	}

	go func() {
		logger.Info(ctx, "Admin server starting", map[string]interface{}{"port": cfg.Server.Port})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatalIfErr(ctx, logger, "Failed to start admin server", err, map[string]interface{}{"port": cfg.Server.Port})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info(ctx, "Worker shutting down", nil)

	// Stop firing new jobs before the HTTP server and running tasks drain
	stopScheduler()

	serverCtx, serverCancel := context.WithTimeout(ctx, config.ServerShutdownTimeout)
	defer serverCancel()
	if err := srv.Shutdown(serverCtx); err != nil {
		logger.Warn(ctx, "Admin server forced to shutdown", map[string]interface{}{"error": err.Error()})
	}

	workerCtx, workerCancel := context.WithTimeout(ctx, config.WorkerShutdownTimeout)
	defer workerCancel()
	if err := container.Shutdown(workerCtx); err != nil {
		logger.Warn(ctx, "Service shutdown incomplete", map[string]interface{}{"error": err.Error()})
	}

	logger.Info(ctx, "Worker exited", nil)
}
