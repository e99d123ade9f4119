package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"dailyfeed/internal/models"
	"dailyfeed/internal/observability"
	contextutils "dailyfeed/internal/utils"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
)

const selectionColumns = `id, to_char(date, 'YYYY-MM-DD'), topic_id, question_id, answer_id, notifications_sent, created_at`

// SelectionStore reads and writes daily selections
type SelectionStore struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewSelectionStore creates a new SelectionStore
func NewSelectionStore(db *sql.DB, logger *observability.Logger) *SelectionStore {
	return &SelectionStore{db: db, logger: logger}
}

// GetSelection loads one selection by id
func (s *SelectionStore) GetSelection(ctx context.Context, selectionID int64) (result *models.DailySelection, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "get_selection", observability.AttributeSelectionID(selectionID))
	defer observability.FinishSpan(span, &err)

	row := s.db.QueryRowContext(ctx, `SELECT `+selectionColumns+` FROM daily_selections WHERE id = $1`, selectionID)
	sel, err := scanSelection(row)
	if err != nil {
		return nil, notFound(err, contextutils.ErrSelectionNotFound, "failed to get selection")
	}
	return sel, nil
}

// GetSelectionByTopicDate loads the selection for (date, topic)
func (s *SelectionStore) GetSelectionByTopicDate(ctx context.Context, topicID int64, date string) (result *models.DailySelection, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "get_selection_by_topic_date",
		observability.AttributeTopicID(topicID), observability.AttributeDate(date))
	defer observability.FinishSpan(span, &err)

	row := s.db.QueryRowContext(ctx, `SELECT `+selectionColumns+`
		FROM daily_selections WHERE date = $1::date AND topic_id = $2`, date, topicID)
	sel, err := scanSelection(row)
	if err != nil {
		return nil, notFound(err, contextutils.ErrRecordNotFound, "failed to get selection by topic and date")
	}
	return sel, nil
}

// InsertSelectionIfAbsent inserts unless (date, topic) exists, then reads the stored row back.
// A losing racer gets the winner's row and created=false.
func (s *SelectionStore) InsertSelectionIfAbsent(ctx context.Context, sel *models.DailySelection) (stored *models.DailySelection, created bool, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "insert_selection_if_absent",
		observability.AttributeTopicID(sel.TopicID), observability.AttributeDate(sel.Date))
	defer observability.FinishSpan(span, &err)

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO daily_selections (date, topic_id, question_id, answer_id, notifications_sent)
		VALUES ($1::date, $2, $3, $4, 0)
		ON CONFLICT (date, topic_id) DO NOTHING
		RETURNING `+selectionColumns,
		sel.Date, sel.TopicID, sel.QuestionID, sel.AnswerID)

	stored, err = scanSelection(row)
	switch {
	case err == nil:
		span.SetAttributes(attribute.Bool("selection.created", true))
		return stored, true, nil
	case errors.Is(err, sql.ErrNoRows), isUniqueViolation(err):
		// Conflict: another run already pinned this topic for the day
	default:
		return nil, false, queryError(err, "failed to insert selection")
	}

	stored, err = s.GetSelectionByTopicDate(ctx, sel.TopicID, sel.Date)
	if contextutils.KindOf(err) == contextutils.KindNotFound {
		// The conflicting row was deleted between the insert and the read
		return nil, false, contextutils.WrapErrorf(contextutils.ErrConflict,
			"selection for topic %d on %s vanished after conflicting insert", sel.TopicID, sel.Date)
	}
	if err != nil {
		return nil, false, err
	}
	span.SetAttributes(attribute.Bool("selection.created", false))
	return stored, false, nil
}

// ClaimDispatch takes the selection's dispatch lease in one conditional UPDATE
func (s *SelectionStore) ClaimDispatch(ctx context.Context, selectionID int64, at, staleBefore time.Time) (claimed bool, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "claim_dispatch", observability.AttributeSelectionID(selectionID))
	defer observability.FinishSpan(span, &err)

	var id int64
	err = s.db.QueryRowContext(ctx, `
		UPDATE daily_selections SET dispatch_started_at = $2
		WHERE id = $1
		  AND (dispatch_started_at IS NULL
		       OR (dispatch_started_at < $3
		           AND NOT EXISTS (SELECT 1 FROM notification_logs WHERE daily_selection_id = $1)))
		RETURNING id`, selectionID, at, staleBefore).Scan(&id)
	switch {
	case err == nil:
		claimed = true
	case errors.Is(err, sql.ErrNoRows):
		claimed = false
	default:
		return false, queryError(err, "failed to claim selection dispatch")
	}
	span.SetAttributes(attribute.Bool("dispatch.claimed", claimed))
	return claimed, nil
}

// IncrementNotificationsSent adds delta to the selection's counter
func (s *SelectionStore) IncrementNotificationsSent(ctx context.Context, selectionID int64, delta int) (err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "increment_notifications_sent",
		observability.AttributeSelectionID(selectionID), attribute.Int("delta", delta))
	defer observability.FinishSpan(span, &err)

	res, err := s.db.ExecContext(ctx, `
		UPDATE daily_selections SET notifications_sent = notifications_sent + $2 WHERE id = $1`,
		selectionID, delta)
	if err != nil {
		return queryError(err, "failed to increment notifications sent")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return queryError(err, "failed to read rows affected")
	}
	if n == 0 {
		return contextutils.WrapErrorf(contextutils.ErrSelectionNotFound, "selection %d", selectionID)
	}
	return nil
}

// GetFeed joins the date's selections with question, topic and answer for the given topics
func (s *SelectionStore) GetFeed(ctx context.Context, date string, topicIDs []int64) (result []models.FeedItem, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "get_feed",
		observability.AttributeDate(date), attribute.Int("topics.count", len(topicIDs)))
	defer observability.FinishSpan(span, &err)

	items := []models.FeedItem{}
	if len(topicIDs) == 0 {
		return items, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT ds.id, to_char(ds.date, 'YYYY-MM-DD'), t.id, t.name,
		       q.id, q.text, q.difficulty, q.tags,
		       COALESCE(a.content, ''), a.generated_at
		FROM daily_selections ds
		JOIN topics t ON t.id = ds.topic_id
		JOIN questions q ON q.id = ds.question_id
		LEFT JOIN answers a ON a.question_id = ds.question_id
		WHERE ds.date = $1::date AND ds.topic_id = ANY($2)
		ORDER BY t.display_order ASC, t.id ASC`, date, pq.Array(topicIDs))
	if err != nil {
		return nil, queryError(err, "failed to query feed")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	for rows.Next() {
		var item models.FeedItem
		var tags []string
		var generatedAt sql.NullTime
		if err := rows.Scan(&item.SelectionID, &item.Date, &item.Topic.ID, &item.Topic.Name,
			&item.QuestionID, &item.QuestionText, &item.Difficulty, pq.Array(&tags),
			&item.AnswerContent, &generatedAt); err != nil {
			return nil, queryError(err, "failed to scan feed item")
		}
		if tags == nil {
			tags = []string{}
		}
		item.Tags = tags
		item.AnswerGeneratedAt = nullTimePtr(generatedAt)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, queryError(err, "failed to iterate feed")
	}
	return items, nil
}

// GetDailyStats aggregates the date's selections; a date without selections yields zero totals
func (s *SelectionStore) GetDailyStats(ctx context.Context, date string) (result *models.DailyStats, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "get_daily_stats", observability.AttributeDate(date))
	defer observability.FinishSpan(span, &err)

	rows, err := s.db.QueryContext(ctx, `
		SELECT ds.topic_id, t.name, q.text, ds.notifications_sent
		FROM daily_selections ds
		JOIN topics t ON t.id = ds.topic_id
		JOIN questions q ON q.id = ds.question_id
		WHERE ds.date = $1::date
		ORDER BY t.display_order ASC, t.id ASC`, date)
	if err != nil {
		return nil, queryError(err, "failed to query daily stats")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	stats := &models.DailyStats{Date: date, Breakdown: []models.TopicDailyStat{}}
	for rows.Next() {
		var row models.TopicDailyStat
		if err := rows.Scan(&row.TopicID, &row.TopicName, &row.QuestionText, &row.NotificationsSent); err != nil {
			return nil, queryError(err, "failed to scan daily stat")
		}
		stats.Breakdown = append(stats.Breakdown, row)
		stats.TopicsWithContent++
		stats.TotalNotificationsSent += row.NotificationsSent
	}
	if err := rows.Err(); err != nil {
		return nil, queryError(err, "failed to iterate daily stats")
	}
	return stats, nil
}

func scanSelection(row rowScanner) (*models.DailySelection, error) {
	var sel models.DailySelection
	var answerID sql.NullInt64
	if err := row.Scan(&sel.ID, &sel.Date, &sel.TopicID, &sel.QuestionID, &answerID, &sel.NotificationsSent, &sel.CreatedAt); err != nil {
		return nil, err
	}
	sel.AnswerID = nullInt64Ptr(answerID)
	return &sel, nil
}
