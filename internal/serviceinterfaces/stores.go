package serviceinterfaces

import (
	"context"
	"time"

	"dailyfeed/internal/models"
)

// CatalogStore persists topics, questions and answers
type CatalogStore interface {
	// ListActiveTopics returns active topics ordered by display order
	ListActiveTopics(ctx context.Context) ([]models.Topic, error)
	GetTopic(ctx context.Context, topicID int64) (*models.Topic, error)
	GetQuestion(ctx context.Context, questionID int64) (*models.Question, error)

	// ClaimQuestion atomically picks the least recently used active question of
	// the topic and marks it used at usedAt. Returns ErrNoQuestionsAvailable when
	// the topic has none.
	ClaimQuestion(ctx context.Context, topicID int64, usedAt time.Time) (*models.Question, error)

	// GetAnswerByQuestion returns ErrRecordNotFound when no answer exists
	GetAnswerByQuestion(ctx context.Context, questionID int64) (*models.Answer, error)

	// UpsertAnswer inserts or overwrites the question's answer and clears its stale flag
	UpsertAnswer(ctx context.Context, answer *models.Answer) (*models.Answer, error)

	// MarkAnswerStale returns false when the question has no answer
	MarkAnswerStale(ctx context.Context, questionID int64) (bool, error)

	ListQuestionsNeedingAnswers(ctx context.Context) ([]models.QuestionForGeneration, error)
	GetGenerationStats(ctx context.Context) (*models.GenerationStats, error)
}

// SelectionStore persists daily selections
type SelectionStore interface {
	GetSelection(ctx context.Context, selectionID int64) (*models.DailySelection, error)

	// GetSelectionByTopicDate returns ErrRecordNotFound when absent
	GetSelectionByTopicDate(ctx context.Context, topicID int64, date string) (*models.DailySelection, error)

	// InsertSelectionIfAbsent inserts sel unless (date, topic) already exists.
	// created reports whether this call inserted the row; the returned selection
	// is the stored row either way.
	InsertSelectionIfAbsent(ctx context.Context, sel *models.DailySelection) (stored *models.DailySelection, created bool, err error)

	// ClaimDispatch marks the selection as being dispatched at. It succeeds when
	// no run has claimed it yet, or when the earlier claim is older than
	// staleBefore and produced no notification logs. Exactly one concurrent
	// caller wins.
	ClaimDispatch(ctx context.Context, selectionID int64, at, staleBefore time.Time) (bool, error)

	IncrementNotificationsSent(ctx context.Context, selectionID int64, delta int) error
	GetFeed(ctx context.Context, date string, topicIDs []int64) ([]models.FeedItem, error)
	GetDailyStats(ctx context.Context, date string) (*models.DailyStats, error)
}

// UserStore persists the user fields this pipeline reads and writes
type UserStore interface {
	GetUser(ctx context.Context, userID int64) (*models.User, error)

	// ListEligibleRecipients returns active subscribers of the topic with a deliverable token
	ListEligibleRecipients(ctx context.Context, topicID int64) ([]models.Recipient, error)

	// FlagTokensInvalid writes the invalid-token sentinel for every listed
	// recipient whose stored token still equals the rejected one
	FlagTokensInvalid(ctx context.Context, rejected []models.Recipient) (int64, error)

	// ClearInvalidTokens nulls every sentinel token and returns how many were cleared
	ClearInvalidTokens(ctx context.Context) (int64, error)

	// RecordActivity applies the streak rule for today in a single atomic write
	RecordActivity(ctx context.Context, userID int64, today string) (*models.Streak, error)

	// ResetStaleStreaks zeroes positive streaks whose last active date is before cutoff
	ResetStaleStreaks(ctx context.Context, cutoff string) (int64, error)
}

// NotificationLogStore persists delivery attempts
type NotificationLogStore interface {
	InsertLog(ctx context.Context, log *models.NotificationLog) (*models.NotificationLog, error)
	InsertLogs(ctx context.Context, logs []models.NotificationLog) error
	CountByStatus(ctx context.Context, selectionID int64) (map[models.NotificationStatus]int, error)
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]models.NotificationLog, int, error)
}
