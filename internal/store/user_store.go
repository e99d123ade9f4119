package store

import (
	"context"
	"database/sql"

	"dailyfeed/internal/models"
	"dailyfeed/internal/observability"
	contextutils "dailyfeed/internal/utils"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
)

// UserStore reads and writes the subscription, token and streak columns of users
type UserStore struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewUserStore creates a new UserStore
func NewUserStore(db *sql.DB, logger *observability.Logger) *UserStore {
	return &UserStore{db: db, logger: logger}
}

// GetUser loads one user by id
func (s *UserStore) GetUser(ctx context.Context, userID int64) (result *models.User, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "get_user", observability.AttributeUserID(userID))
	defer observability.FinishSpan(span, &err)

	var u models.User
	var topics []int64
	var token, lastActive sql.NullString
	err = s.db.QueryRowContext(ctx, `
		SELECT id, is_active, subscribed_topic_ids, push_token,
		       streak_count, to_char(streak_last_active_date, 'YYYY-MM-DD')
		FROM users WHERE id = $1`, userID).
		Scan(&u.ID, &u.IsActive, pq.Array(&topics), &token, &u.Streak.Count, &lastActive)
	if err != nil {
		return nil, notFound(err, contextutils.ErrUserNotFound, "failed to get user")
	}

	if topics == nil {
		topics = []int64{}
	}
	u.SubscribedTopicIDs = topics
	u.PushToken = nullStringPtr(token)
	u.Streak.LastActiveDate = nullStringPtr(lastActive)
	return &u, nil
}

// ListEligibleRecipients returns active subscribers of the topic whose token is set and not flagged
func (s *UserStore) ListEligibleRecipients(ctx context.Context, topicID int64) (result []models.Recipient, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "list_eligible_recipients", observability.AttributeTopicID(topicID))
	defer observability.FinishSpan(span, &err)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, push_token
		FROM users
		WHERE is_active
		  AND subscribed_topic_ids @> ARRAY[$1]::bigint[]
		  AND push_token IS NOT NULL
		  AND push_token <> ''
		  AND push_token <> $2
		ORDER BY id ASC`, topicID, models.InvalidPushToken)
	if err != nil {
		return nil, queryError(err, "failed to list eligible recipients")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	recipients := []models.Recipient{}
	for rows.Next() {
		var r models.Recipient
		if err := rows.Scan(&r.UserID, &r.Token); err != nil {
			return nil, queryError(err, "failed to scan recipient")
		}
		recipients = append(recipients, r)
	}
	if err := rows.Err(); err != nil {
		return nil, queryError(err, "failed to iterate recipients")
	}

	span.SetAttributes(attribute.Int("recipients.count", len(recipients)))
	return recipients, nil
}

// FlagTokensInvalid writes the invalid-token sentinel in one statement. A user
// who registered a new token since the rejected send keeps the new one.
func (s *UserStore) FlagTokensInvalid(ctx context.Context, rejected []models.Recipient) (result int64, err error) {
	if len(rejected) == 0 {
		return 0, nil
	}

	ctx, span := observability.TraceDatabaseFunction(ctx, "flag_tokens_invalid", attribute.Int("users.count", len(rejected)))
	defer observability.FinishSpan(span, &err)

	userIDs := make([]int64, len(rejected))
	tokens := make([]string, len(rejected))
	for i, r := range rejected {
		userIDs[i] = r.UserID
		tokens[i] = r.Token
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE users u SET push_token = $3
		FROM unnest($1::bigint[], $2::text[]) AS r(user_id, token)
		WHERE u.id = r.user_id AND u.push_token = r.token`,
		pq.Array(userIDs), pq.Array(tokens), models.InvalidPushToken)
	if err != nil {
		return 0, queryError(err, "failed to flag tokens invalid")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, queryError(err, "failed to read rows affected")
	}
	return n, nil
}

// ClearInvalidTokens nulls every flagged token
func (s *UserStore) ClearInvalidTokens(ctx context.Context) (result int64, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "clear_invalid_tokens")
	defer observability.FinishSpan(span, &err)

	res, err := s.db.ExecContext(ctx, `UPDATE users SET push_token = NULL WHERE push_token = $1`, models.InvalidPushToken)
	if err != nil {
		return 0, queryError(err, "failed to clear invalid tokens")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, queryError(err, "failed to read rows affected")
	}
	span.SetAttributes(attribute.Int64("tokens.cleared", n))
	return n, nil
}

// RecordActivity applies the calendar-day streak rule in a single UPDATE.
// SET expressions all read the pre-update row, so count and date move together.
func (s *UserStore) RecordActivity(ctx context.Context, userID int64, today string) (result *models.Streak, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "record_activity",
		observability.AttributeUserID(userID), observability.AttributeDate(today))
	defer observability.FinishSpan(span, &err)

	var streak models.Streak
	var lastActive sql.NullString
	err = s.db.QueryRowContext(ctx, `
		UPDATE users SET
			streak_count = CASE
				WHEN streak_last_active_date IS NULL THEN 1
				WHEN streak_last_active_date >= $2::date THEN GREATEST(streak_count, 1)
				WHEN streak_last_active_date = $2::date - 1 THEN streak_count + 1
				ELSE 1
			END,
			streak_last_active_date = GREATEST(COALESCE(streak_last_active_date, $2::date), $2::date)
		WHERE id = $1
		RETURNING streak_count, to_char(streak_last_active_date, 'YYYY-MM-DD')`, userID, today).
		Scan(&streak.Count, &lastActive)
	if err != nil {
		return nil, notFound(err, contextutils.ErrUserNotFound, "failed to record activity")
	}

	streak.LastActiveDate = nullStringPtr(lastActive)
	span.SetAttributes(attribute.Int("streak.count", streak.Count))
	return &streak, nil
}

// ResetStaleStreaks zeroes positive streaks last active before cutoff
func (s *UserStore) ResetStaleStreaks(ctx context.Context, cutoff string) (result int64, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "reset_stale_streaks", observability.AttributeDate(cutoff))
	defer observability.FinishSpan(span, &err)

	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET streak_count = 0
		WHERE streak_count > 0 AND streak_last_active_date < $1::date`, cutoff)
	if err != nil {
		return 0, queryError(err, "failed to reset stale streaks")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, queryError(err, "failed to read rows affected")
	}
	return n, nil
}
