package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dailyfeed/internal/config"
	"dailyfeed/internal/models"
	"dailyfeed/internal/observability"
	"dailyfeed/internal/serviceinterfaces"
	contextutils "dailyfeed/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// NotificationDispatcherInterface defines notification delivery operations
type NotificationDispatcherInterface interface {
	SendToOne(ctx context.Context, userID int64, token string, payload models.NotificationPayload, selectionID int64) (*models.NotificationLog, error)
	SendToMany(ctx context.Context, recipients []models.Recipient, payload models.NotificationPayload, selectionID int64) (*models.DispatchResult, error)
	SendDailyNotifications(ctx context.Context, topicID, selectionID int64, payload models.NotificationPayload) (*models.DispatchResult, error)
	CleanupInvalidTokens(ctx context.Context) (int64, error)
	GetDeliveryStats(ctx context.Context, selectionID int64) (*models.DeliveryStats, error)
	GetNotificationHistory(ctx context.Context, userID int64, page, limit int) (*models.NotificationHistory, error)
}

// NotificationDispatcher delivers payloads through a Messenger and logs every attempt
type NotificationDispatcher struct {
	messenger  serviceinterfaces.Messenger
	users      serviceinterfaces.UserStore
	logs       serviceinterfaces.NotificationLogStore
	selections serviceinterfaces.SelectionStore
	batchSize  int
	logger     *observability.Logger
	metrics    *observability.PipelineMetrics
	now        func() time.Time
}

var _ NotificationDispatcherInterface = (*NotificationDispatcher)(nil)

// NewNotificationDispatcher creates a NotificationDispatcher
func NewNotificationDispatcher(
	messenger serviceinterfaces.Messenger,
	users serviceinterfaces.UserStore,
	logs serviceinterfaces.NotificationLogStore,
	selections serviceinterfaces.SelectionStore,
	cfg config.PushConfig,
	logger *observability.Logger,
	metrics *observability.PipelineMetrics,
) *NotificationDispatcher {
	batchSize := cfg.BatchSize
	if batchSize < 1 {
		batchSize = config.DefaultPushBatchSize
	}
	return &NotificationDispatcher{
		messenger:  messenger,
		users:      users,
		logs:       logs,
		selections: selections,
		batchSize:  batchSize,
		logger:     logger,
		metrics:    metrics,
		now:        time.Now,
	}
}

// SendToOne delivers to a single token. Delivery failures are recorded in
// the returned log, not returned as errors.
func (d *NotificationDispatcher) SendToOne(ctx context.Context, userID int64, token string, payload models.NotificationPayload, selectionID int64) (result *models.NotificationLog, err error) {
	ctx, span := observability.TraceDispatcherFunction(ctx, "send_to_one",
		observability.AttributeUserID(userID),
		observability.AttributeSelectionID(selectionID),
	)
	defer observability.FinishSpan(span, &err)

	if selectionID <= 0 {
		return nil, contextutils.WrapError(contextutils.ErrInvalidInput, "selection id is required")
	}
	if token == "" || token == models.InvalidPushToken {
		return nil, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "user %d has no deliverable token", userID)
	}

	entry := models.NotificationLog{UserID: userID, DailySelectionID: selectionID}
	messageID, sendErr := d.messenger.SendOne(ctx, token, toPushMessage(payload))
	if sendErr == nil {
		sentAt := d.now().UTC()
		entry.Status = models.NotificationSent
		entry.MessageID = &messageID
		entry.SentAt = &sentAt
		d.metrics.RecordDelivery(ctx, 1, 0)
	} else {
		code, message := sendFailure(sendErr)
		errText := formatDeliveryError(code, message)
		entry.Status = models.NotificationFailed
		entry.Error = &errText
		d.metrics.RecordDelivery(ctx, 0, 1)

		if serviceinterfaces.IsInvalidTokenCode(code) {
			if _, flagErr := d.users.FlagTokensInvalid(ctx, []models.Recipient{{UserID: userID, Token: token}}); flagErr != nil {
				d.logger.Error(ctx, "Failed to flag invalid token", flagErr, map[string]interface{}{"user_id": userID})
			}
		}
		d.logger.Warn(ctx, "Notification delivery failed", map[string]interface{}{
			"user_id":      userID,
			"selection_id": selectionID,
			"error":        errText,
		})
	}

	stored, err := d.logs.InsertLog(ctx, &entry)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to write notification log")
	}
	return stored, nil
}

// SendToMany delivers in sequential batches of at most batchSize recipients.
// A batch whose multicast call fails is logged as batch_error for every
// recipient and the next batch still runs.
func (d *NotificationDispatcher) SendToMany(ctx context.Context, recipients []models.Recipient, payload models.NotificationPayload, selectionID int64) (result *models.DispatchResult, err error) {
	ctx, span := observability.TraceDispatcherFunction(ctx, "send_to_many",
		observability.AttributeSelectionID(selectionID),
		attribute.Int("recipients", len(recipients)),
	)
	defer observability.FinishSpan(span, &err)

	if selectionID <= 0 {
		return nil, contextutils.WrapError(contextutils.ErrInvalidInput, "selection id is required")
	}

	result = &models.DispatchResult{}
	msg := toPushMessage(payload)

	for offset := 0; offset < len(recipients); offset += d.batchSize {
		batch := recipients[offset:min(offset+d.batchSize, len(recipients))]
		result.Batches++
		d.sendBatch(ctx, batch, msg, selectionID, result)
	}

	d.metrics.RecordDelivery(ctx, result.Sent, result.Failed)
	span.SetAttributes(
		attribute.Int("notifications.sent", result.Sent),
		attribute.Int("notifications.failed", result.Failed),
	)
	d.logger.Info(ctx, "Notification dispatch completed", map[string]interface{}{
		"selection_id": selectionID,
		"recipients":   len(recipients),
		"sent":         result.Sent,
		"failed":       result.Failed,
		"batches":      result.Batches,
		"flagged":      result.Flagged,
	})
	return result, nil
}

func (d *NotificationDispatcher) sendBatch(ctx context.Context, batch []models.Recipient, msg serviceinterfaces.PushMessage, selectionID int64, result *models.DispatchResult) {
	tokens := make([]string, len(batch))
	for i, r := range batch {
		tokens[i] = r.Token
	}

	logs := make([]models.NotificationLog, 0, len(batch))
	var invalid []models.Recipient
	sentAt := d.now().UTC()

	results, batchErr := d.messenger.SendMulticast(ctx, tokens, msg)
	if batchErr != nil {
		errText := formatDeliveryError(serviceinterfaces.PushErrorBatch, batchErr.Error())
		d.logger.Error(ctx, "Multicast batch failed", batchErr, map[string]interface{}{
			"selection_id": selectionID,
			"batch_size":   len(batch),
		})
		for _, r := range batch {
			logs = append(logs, models.NotificationLog{
				UserID:           r.UserID,
				DailySelectionID: selectionID,
				Status:           models.NotificationFailed,
				Error:            &errText,
			})
		}
		result.Failed += len(batch)
	} else {
		for i, r := range batch {
			entry := models.NotificationLog{UserID: r.UserID, DailySelectionID: selectionID}
			if i >= len(results) {
				errText := formatDeliveryError(serviceinterfaces.PushErrorSendFailed, "no result returned for recipient")
				entry.Status = models.NotificationFailed
				entry.Error = &errText
				result.Failed++
				logs = append(logs, entry)
				continue
			}

			res := results[i]
			if res.Success {
				messageID := res.MessageID
				entry.Status = models.NotificationSent
				entry.MessageID = &messageID
				entry.SentAt = &sentAt
				result.Sent++
			} else {
				errText := formatDeliveryError(res.ErrorCode, res.ErrorMessage)
				entry.Status = models.NotificationFailed
				entry.Error = &errText
				result.Failed++
				if serviceinterfaces.IsInvalidTokenCode(res.ErrorCode) {
					invalid = append(invalid, r)
				}
			}
			logs = append(logs, entry)
		}
	}

	if err := d.logs.InsertLogs(ctx, logs); err != nil {
		d.logger.Error(ctx, "Failed to write notification logs", err, map[string]interface{}{
			"selection_id": selectionID,
			"count":        len(logs),
		})
	}

	if len(invalid) > 0 {
		flagged, err := d.users.FlagTokensInvalid(ctx, invalid)
		if err != nil {
			d.logger.Error(ctx, "Failed to flag invalid tokens", err, map[string]interface{}{
				"selection_id": selectionID,
				"count":        len(invalid),
			})
			return
		}
		result.Flagged += int(flagged)
	}
}

// SendDailyNotifications sends payload to every eligible subscriber of the topic
func (d *NotificationDispatcher) SendDailyNotifications(ctx context.Context, topicID, selectionID int64, payload models.NotificationPayload) (result *models.DispatchResult, err error) {
	ctx, span := observability.TraceDispatcherFunction(ctx, "send_daily_notifications",
		observability.AttributeTopicID(topicID),
		observability.AttributeSelectionID(selectionID),
	)
	defer observability.FinishSpan(span, &err)

	recipients, err := d.users.ListEligibleRecipients(ctx, topicID)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to list recipients")
	}
	if len(recipients) == 0 {
		d.logger.Info(ctx, "No eligible recipients for topic", map[string]interface{}{
			"topic_id":     topicID,
			"selection_id": selectionID,
		})
		return &models.DispatchResult{}, nil
	}
	return d.SendToMany(ctx, recipients, payload, selectionID)
}

// CleanupInvalidTokens clears every flagged token so a fresh one can be registered
func (d *NotificationDispatcher) CleanupInvalidTokens(ctx context.Context) (cleared int64, err error) {
	ctx, span := observability.TraceDispatcherFunction(ctx, "cleanup_invalid_tokens")
	defer observability.FinishSpan(span, &err)

	cleared, err = d.users.ClearInvalidTokens(ctx)
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to clear invalid tokens")
	}
	d.logger.Info(ctx, "Invalid push tokens cleared", map[string]interface{}{"cleared": cleared})
	return cleared, nil
}

// GetDeliveryStats counts the selection's notification logs by status
func (d *NotificationDispatcher) GetDeliveryStats(ctx context.Context, selectionID int64) (stats *models.DeliveryStats, err error) {
	ctx, span := observability.TraceDispatcherFunction(ctx, "get_delivery_stats",
		observability.AttributeSelectionID(selectionID),
	)
	defer observability.FinishSpan(span, &err)

	if _, err := d.selections.GetSelection(ctx, selectionID); err != nil {
		return nil, err
	}

	counts, err := d.logs.CountByStatus(ctx, selectionID)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to count notification logs")
	}

	stats = &models.DeliveryStats{
		SelectionID: selectionID,
		Sent:        counts[models.NotificationSent],
		Failed:      counts[models.NotificationFailed],
		Delivered:   counts[models.NotificationDelivered],
		Pending:     counts[models.NotificationPending],
	}
	for _, n := range counts {
		stats.Total += n
	}
	return stats, nil
}

// GetNotificationHistory lists a user's logs newest first. page is clamped to
// [1, MaxHistoryPage] and limit to [1, MaxHistoryPageSize].
func (d *NotificationDispatcher) GetNotificationHistory(ctx context.Context, userID int64, page, limit int) (history *models.NotificationHistory, err error) {
	page, limit = clampPage(page, limit)
	ctx, span := observability.TraceDispatcherFunction(ctx, "get_notification_history",
		observability.AttributeUserID(userID),
		observability.AttributePage(page),
		observability.AttributeLimit(limit),
	)
	defer observability.FinishSpan(span, &err)

	items, total, err := d.logs.ListByUser(ctx, userID, limit, (page-1)*limit)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to list notification history")
	}
	if items == nil {
		items = []models.NotificationLog{}
	}
	return &models.NotificationHistory{Items: items, Page: page, Limit: limit, Total: total}, nil
}

func clampPage(page, limit int) (int, int) {
	switch {
	case page < 1:
		page = 1
	case page > config.MaxHistoryPage:
		page = config.MaxHistoryPage
	}
	switch {
	case limit <= 0:
		limit = config.DefaultHistoryPageSize
	case limit > config.MaxHistoryPageSize:
		limit = config.MaxHistoryPageSize
	}
	return page, limit
}

func toPushMessage(p models.NotificationPayload) serviceinterfaces.PushMessage {
	data := make(map[string]string, len(p.Data))
	for k, v := range p.Data {
		data[k] = v
	}
	return serviceinterfaces.PushMessage{Title: p.Title, Body: p.Body, Data: data}
}

// sendFailure extracts the normalized code from a SendOne error
func sendFailure(err error) (code, message string) {
	var sendErr *serviceinterfaces.SendError
	if errors.As(err, &sendErr) {
		return sendErr.Code, sendErr.Message
	}
	return serviceinterfaces.PushErrorUnavailable, err.Error()
}

func formatDeliveryError(code, message string) string {
	if code == "" {
		code = serviceinterfaces.PushErrorSendFailed
	}
	return fmt.Sprintf("%s: %s", code, message)
}
