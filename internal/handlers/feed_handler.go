package handlers

import (
	"net/http"

	"dailyfeed/internal/models"
	"dailyfeed/internal/observability"
	"dailyfeed/internal/services"

	"github.com/gin-gonic/gin"
)

// FeedHandler serves the per-user feed, read receipts and notification history
type FeedHandler struct {
	orchestrator services.DailyOrchestratorInterface
	dispatcher   services.NotificationDispatcherInterface
	logger       *observability.Logger
}

// NewFeedHandler creates a new FeedHandler
func NewFeedHandler(orchestrator services.DailyOrchestratorInterface, dispatcher services.NotificationDispatcherInterface, logger *observability.Logger) *FeedHandler {
	return &FeedHandler{orchestrator: orchestrator, dispatcher: dispatcher, logger: logger}
}

// GetFeed returns today's content for each of the user's topics
func (h *FeedHandler) GetFeed(c *gin.Context) {
	userID, err := pathID(c, "userId")
	if err != nil {
		HandleAppError(c, err)
		return
	}
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_daily_feed",
		observability.AttributeUserID(userID),
	)
	defer span.End()

	feed, err := h.orchestrator.GetDailyFeed(ctx, userID)
	if err != nil {
		span.RecordError(err)
		HandleAppError(c, err)
		return
	}
	if feed == nil {
		feed = []models.FeedItem{}
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "items": feed})
}

// MarkAsRead records engagement with a selection and returns the updated streak
func (h *FeedHandler) MarkAsRead(c *gin.Context) {
	userID, err := pathID(c, "userId")
	if err != nil {
		HandleAppError(c, err)
		return
	}
	selectionID, err := pathID(c, "selectionId")
	if err != nil {
		HandleAppError(c, err)
		return
	}
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "mark_as_read",
		observability.AttributeUserID(userID),
		observability.AttributeSelectionID(selectionID),
	)
	defer span.End()

	streak, err := h.orchestrator.MarkAsRead(ctx, userID, selectionID)
	if err != nil {
		span.RecordError(err)
		HandleAppError(c, err)
		return
	}
	h.logger.Debug(ctx, "Selection marked as read", map[string]interface{}{
		"user_id":      userID,
		"selection_id": selectionID,
		"streak":       streak.Count,
	})
	c.JSON(http.StatusOK, gin.H{"streak": streak})
}

// GetNotificationHistory returns one page of the user's delivery log
func (h *FeedHandler) GetNotificationHistory(c *gin.Context) {
	userID, err := pathID(c, "userId")
	if err != nil {
		HandleAppError(c, err)
		return
	}
	page, limit, err := ParsePagination(c)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_notification_history",
		observability.AttributeUserID(userID),
	)
	defer span.End()

	history, err := h.dispatcher.GetNotificationHistory(ctx, userID, page, limit)
	if err != nil {
		span.RecordError(err)
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}
