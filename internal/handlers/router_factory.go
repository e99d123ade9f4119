// Package handlers exposes the admin HTTP surface of the worker process.
package handlers

import (
	"net/http"
	"time"

	"dailyfeed/internal/config"
	"dailyfeed/internal/observability"
	"dailyfeed/internal/services"
	"dailyfeed/internal/version"
	"dailyfeed/internal/worker"

	"github.com/gin-gonic/gin"
)

// ServiceName identifies the worker in traces, logs and the version endpoint
const ServiceName = "dailyfeed-worker"

// NewRouter creates the gin engine with logging, tracing and all admin routes
func NewRouter(
	cfg *config.Config,
	orchestrator services.DailyOrchestratorInterface,
	dispatcher services.NotificationDispatcherInterface,
	generator services.AnswerGeneratorInterface,
	scheduler *worker.Scheduler,
	runner *worker.TaskRunner,
	logger *observability.Logger,
) *gin.Engine {
	router := gin.New()
	router.Use(ErrorRecovery(logger))
	router.Use(requestLogger(logger))
	router.Use(observability.GinMiddlewareWithErrorHandling(ServiceName)...)
	router.RedirectTrailingSlash = false

	v1 := router.Group("/v1")
	v1.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": ServiceName})
	})
	v1.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, version.Get(ServiceName))
	})

	adminHandler := NewAdminHandler(scheduler, runner, orchestrator, dispatcher, generator, logger)
	feedHandler := NewFeedHandler(orchestrator, dispatcher, logger)

	admin := v1.Group("/admin", RequireAdminToken(cfg.Server.AdminToken))
	{
		admin.POST("/jobs/:job/trigger", adminHandler.TriggerJob)
		admin.GET("/jobs/history", adminHandler.GetJobHistory)
		admin.GET("/tasks/:id", adminHandler.GetTask)
		admin.GET("/daily/stats", adminHandler.GetDailyStats)
		admin.GET("/generation/stats", adminHandler.GetGenerationStats)
		admin.POST("/questions/:id/stale", adminHandler.MarkAnswerStale)
		admin.GET("/selections/:id/delivery", adminHandler.GetDeliveryStats)
	}

	users := v1.Group("/users/:userId", RequireAdminToken(cfg.Server.AdminToken))
	{
		users.GET("/feed", feedHandler.GetFeed)
		users.POST("/selections/:selectionId/read", feedHandler.MarkAsRead)
		users.GET("/notifications", feedHandler.GetNotificationHistory)
	}

	return router
}

// requestLogger logs every request at a level chosen by its status code
func requestLogger(logger *observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		statusCode := c.Writer.Status()
		fields := map[string]interface{}{
			"http.method":      c.Request.Method,
			"http.path":        c.Request.URL.Path,
			"http.route":       c.FullPath(),
			"http.status_code": statusCode,
			"http.latency_ms":  time.Since(start).Milliseconds(),
			"http.client_ip":   c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			fields["http.error"] = c.Errors.String()
		}

		switch {
		case statusCode >= 500:
			fields["http.error_type"] = "server_error"
			logger.Error(c.Request.Context(), "HTTP request failed", nil, fields)
		case statusCode >= 400:
			fields["http.error_type"] = "client_error"
			logger.Warn(c.Request.Context(), "HTTP request warning", fields)
		default:
			logger.Info(c.Request.Context(), "HTTP request", fields)
		}
	}
}
