package store

import (
	"context"
	"database/sql"

	"dailyfeed/internal/models"
	"dailyfeed/internal/observability"
	contextutils "dailyfeed/internal/utils"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel/attribute"
)

var logColumns = []string{"id", "user_id", "daily_selection_id", "status", "error", "message_id", "sent_at", "created_at"}

// NotificationLogStore appends and reads delivery attempts
type NotificationLogStore struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewNotificationLogStore creates a new NotificationLogStore
func NewNotificationLogStore(db *sql.DB, logger *observability.Logger) *NotificationLogStore {
	return &NotificationLogStore{db: db, logger: logger}
}

// InsertLog appends one attempt and returns it with id and created_at filled in
func (s *NotificationLogStore) InsertLog(ctx context.Context, log *models.NotificationLog) (result *models.NotificationLog, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "insert_notification_log",
		observability.AttributeUserID(log.UserID), observability.AttributeSelectionID(log.DailySelectionID))
	defer observability.FinishSpan(span, &err)

	stored := *log
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO notification_logs (user_id, daily_selection_id, status, error, message_id, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		log.UserID, log.DailySelectionID, string(log.Status), log.Error, log.MessageID, log.SentAt).
		Scan(&stored.ID, &stored.CreatedAt)
	if err != nil {
		return nil, queryError(err, "failed to insert notification log")
	}
	return &stored, nil
}

// InsertLogs appends a whole batch in one multi-row INSERT
func (s *NotificationLogStore) InsertLogs(ctx context.Context, logs []models.NotificationLog) (err error) {
	if len(logs) == 0 {
		return nil
	}

	ctx, span := observability.TraceDatabaseFunction(ctx, "insert_notification_logs", attribute.Int("logs.count", len(logs)))
	defer observability.FinishSpan(span, &err)

	insert := psql.Insert("notification_logs").
		Columns("user_id", "daily_selection_id", "status", "error", "message_id", "sent_at")
	for _, l := range logs {
		insert = insert.Values(l.UserID, l.DailySelectionID, string(l.Status), l.Error, l.MessageID, l.SentAt)
	}

	query, args, err := insert.ToSql()
	if err != nil {
		return queryError(err, "failed to build notification log insert")
	}
	if _, err = s.db.ExecContext(ctx, query, args...); err != nil {
		return queryError(err, "failed to insert notification logs")
	}
	return nil
}

// CountByStatus groups a selection's logs by status
func (s *NotificationLogStore) CountByStatus(ctx context.Context, selectionID int64) (result map[models.NotificationStatus]int, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "count_notification_logs_by_status", observability.AttributeSelectionID(selectionID))
	defer observability.FinishSpan(span, &err)

	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM notification_logs
		WHERE daily_selection_id = $1
		GROUP BY status`, selectionID)
	if err != nil {
		return nil, queryError(err, "failed to count notification logs")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	counts := map[models.NotificationStatus]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, queryError(err, "failed to scan status count")
		}
		counts[models.NotificationStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, queryError(err, "failed to iterate status counts")
	}
	return counts, nil
}

// ListByUser returns one page of the user's logs, newest first, plus the user's total
func (s *NotificationLogStore) ListByUser(ctx context.Context, userID int64, limit, offset int) (result []models.NotificationLog, total int, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "list_notification_logs_by_user",
		observability.AttributeUserID(userID), observability.AttributeLimit(limit), attribute.Int("offset", offset))
	defer observability.FinishSpan(span, &err)

	if limit < 0 || offset < 0 {
		return nil, 0, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "invalid page window limit=%d offset=%d", limit, offset)
	}

	countQuery, countArgs, err := psql.Select("COUNT(*)").From("notification_logs").
		Where(sq.Eq{"user_id": userID}).ToSql()
	if err != nil {
		return nil, 0, queryError(err, "failed to build count query")
	}
	if err := s.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, queryError(err, "failed to count notification logs")
	}

	query, args, err := psql.Select(logColumns...).From("notification_logs").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, 0, queryError(err, "failed to build history query")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, queryError(err, "failed to list notification logs")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	logs := []models.NotificationLog{}
	for rows.Next() {
		var l models.NotificationLog
		var status string
		var errText, messageID sql.NullString
		var sentAt sql.NullTime
		if err := rows.Scan(&l.ID, &l.UserID, &l.DailySelectionID, &status, &errText, &messageID, &sentAt, &l.CreatedAt); err != nil {
			return nil, 0, queryError(err, "failed to scan notification log")
		}
		l.Status = models.NotificationStatus(status)
		l.Error = nullStringPtr(errText)
		l.MessageID = nullStringPtr(messageID)
		l.SentAt = nullTimePtr(sentAt)
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, queryError(err, "failed to iterate notification logs")
	}

	span.SetAttributes(attribute.Int("logs.total", total))
	return logs, total, nil
}
