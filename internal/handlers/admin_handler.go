package handlers

import (
	"net/http"

	"dailyfeed/internal/observability"
	"dailyfeed/internal/services"
	contextutils "dailyfeed/internal/utils"
	"dailyfeed/internal/worker"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// AdminHandler serves job control and pipeline statistics
type AdminHandler struct {
	scheduler    *worker.Scheduler
	runner       *worker.TaskRunner
	orchestrator services.DailyOrchestratorInterface
	dispatcher   services.NotificationDispatcherInterface
	generator    services.AnswerGeneratorInterface
	logger       *observability.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(
	scheduler *worker.Scheduler,
	runner *worker.TaskRunner,
	orchestrator services.DailyOrchestratorInterface,
	dispatcher services.NotificationDispatcherInterface,
	generator services.AnswerGeneratorInterface,
	logger *observability.Logger,
) *AdminHandler {
	return &AdminHandler{
		scheduler:    scheduler,
		runner:       runner,
		orchestrator: orchestrator,
		dispatcher:   dispatcher,
		generator:    generator,
		logger:       logger,
	}
}

// TriggerJob submits a job to the task runner and returns without waiting for it
func (h *AdminHandler) TriggerJob(c *gin.Context) {
	job := c.Param("job")
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "trigger_job",
		observability.AttributeJob(job),
	)
	defer span.End()

	taskID, err := h.scheduler.Trigger(ctx, job)
	if err != nil {
		span.RecordError(err)
		h.logger.Warn(ctx, "Job trigger rejected", map[string]interface{}{
			"job":   job,
			"error": err.Error(),
		})
		HandleAppError(c, err)
		return
	}
	span.SetAttributes(attribute.String("task.id", taskID))

	c.JSON(http.StatusAccepted, gin.H{
		"task_id": taskID,
		"job":     job,
		"status":  worker.TaskRunning,
	})
}

// GetTask reports the state of a submitted task
func (h *AdminHandler) GetTask(c *gin.Context) {
	id := c.Param("id")
	info, ok := h.runner.Status(id)
	if !ok {
		HandleAppError(c, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "task %s not found", id))
		return
	}
	c.JSON(http.StatusOK, info)
}

// GetJobHistory returns recent runs and the schedule
func (h *AdminHandler) GetJobHistory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"history": h.scheduler.GetHistory(),
		"jobs":    h.scheduler.Jobs(),
	})
}

// GetDailyStats returns selection and notification totals for a date, today by default
func (h *AdminHandler) GetDailyStats(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_daily_stats")
	defer span.End()

	stats, err := h.orchestrator.GetDailyStats(ctx, c.Query("date"))
	if err != nil {
		span.RecordError(err)
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetGenerationStats returns answer coverage counts
func (h *AdminHandler) GetGenerationStats(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_generation_stats")
	defer span.End()

	stats, err := h.generator.GetGenerationStats(ctx)
	if err != nil {
		span.RecordError(err)
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// MarkAnswerStale flags a question's answer for regeneration on the next nightly run
func (h *AdminHandler) MarkAnswerStale(c *gin.Context) {
	questionID, err := pathID(c, "id")
	if err != nil {
		HandleAppError(c, err)
		return
	}
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "mark_answer_stale",
		observability.AttributeQuestionID(questionID),
	)
	defer span.End()

	marked, err := h.generator.MarkAsStale(ctx, questionID)
	if err != nil {
		span.RecordError(err)
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"question_id": questionID, "marked": marked})
}

// GetDeliveryStats returns notification counts by status for one selection
func (h *AdminHandler) GetDeliveryStats(c *gin.Context) {
	selectionID, err := pathID(c, "id")
	if err != nil {
		HandleAppError(c, err)
		return
	}
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_delivery_stats",
		observability.AttributeSelectionID(selectionID),
	)
	defer span.End()

	stats, err := h.dispatcher.GetDeliveryStats(ctx, selectionID)
	if err != nil {
		span.RecordError(err)
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
