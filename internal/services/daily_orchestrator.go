package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"dailyfeed/internal/config"
	"dailyfeed/internal/models"
	"dailyfeed/internal/observability"
	"dailyfeed/internal/serviceinterfaces"
	contextutils "dailyfeed/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// staleStreakDays is how many calendar days of inactivity a streak survives
const staleStreakDays = 2

// DailyOrchestratorInterface defines the daily pipeline operations
type DailyOrchestratorInterface interface {
	RunDailyFlow(ctx context.Context) (*models.DailyRunSummary, error)
	GetDailyFeed(ctx context.Context, userID int64) ([]models.FeedItem, error)
	MarkAsRead(ctx context.Context, userID, selectionID int64) (*models.Streak, error)
	ResetStaleStreaks(ctx context.Context) (int64, error)
	GetDailyStats(ctx context.Context, date string) (*models.DailyStats, error)
}

// DailyOrchestrator runs the per-topic daily pipeline
type DailyOrchestrator struct {
	catalog       serviceinterfaces.CatalogStore
	selections    serviceinterfaces.SelectionStore
	users         serviceinterfaces.UserStore
	dispatcher    NotificationDispatcherInterface
	logger        *observability.Logger
	loc           *time.Location
	bodyMaxLength int
	now           func() time.Time
}

var _ DailyOrchestratorInterface = (*DailyOrchestrator)(nil)

// NewDailyOrchestrator creates a DailyOrchestrator. "Today" is the calendar
// date in cfg.Timezone.
func NewDailyOrchestrator(
	catalog serviceinterfaces.CatalogStore,
	selections serviceinterfaces.SelectionStore,
	users serviceinterfaces.UserStore,
	dispatcher NotificationDispatcherInterface,
	cfg config.PipelineConfig,
	logger *observability.Logger,
) *DailyOrchestrator {
	bodyMax := cfg.BodyMaxLength
	if bodyMax < 1 {
		bodyMax = config.DefaultBodyMaxLength
	}
	return &DailyOrchestrator{
		catalog:       catalog,
		selections:    selections,
		users:         users,
		dispatcher:    dispatcher,
		logger:        logger,
		loc:           contextutils.LoadLocation(cfg.Timezone),
		bodyMaxLength: bodyMax,
		now:           time.Now,
	}
}

// WithClock replaces the clock, for tests and backfills
func (o *DailyOrchestrator) WithClock(now func() time.Time) *DailyOrchestrator {
	o.now = now
	return o
}

func (o *DailyOrchestrator) today() string {
	return contextutils.CalendarDate(o.now(), o.loc)
}

// RunDailyFlow selects and dispatches one question per active topic. Topics
// run sequentially in display order and a failing topic never stops the rest.
// Only the active-topics query can fail the whole run.
func (o *DailyOrchestrator) RunDailyFlow(ctx context.Context) (summary *models.DailyRunSummary, err error) {
	start := o.now()
	date := contextutils.CalendarDate(start, o.loc)
	ctx, span := observability.TraceOrchestratorFunction(ctx, "run_daily_flow",
		observability.AttributeDate(date),
	)
	defer observability.FinishSpan(span, &err)

	topics, err := o.catalog.ListActiveTopics(ctx)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to load active topics")
	}

	o.logger.Info(ctx, "Starting daily flow", map[string]interface{}{
		"date":   date,
		"topics": len(topics),
	})

	summary = &models.DailyRunSummary{Date: date, Topics: make([]models.TopicRunResult, 0, len(topics))}
	for _, topic := range topics {
		res := o.runTopic(ctx, topic, date, start)
		summary.TopicsProcessed++
		if res.SelectionID != 0 {
			summary.QuestionsSelected++
		}
		summary.NotificationsSent += res.NotificationsSent
		if res.Error != "" {
			summary.Errors++
		}
		summary.Topics = append(summary.Topics, res)
	}
	summary.Duration = o.now().Sub(start)

	span.SetAttributes(
		attribute.Int("topics.processed", summary.TopicsProcessed),
		attribute.Int("questions.selected", summary.QuestionsSelected),
		attribute.Int("notifications.sent", summary.NotificationsSent),
		attribute.Int("errors", summary.Errors),
	)
	o.logger.Info(ctx, "Daily flow completed", map[string]interface{}{
		"date":               summary.Date,
		"topics_processed":   summary.TopicsProcessed,
		"questions_selected": summary.QuestionsSelected,
		"notifications_sent": summary.NotificationsSent,
		"errors":             summary.Errors,
		"duration_ms":        summary.Duration.Milliseconds(),
	})
	return summary, nil
}

// runTopic handles one topic and converts every failure, panics included,
// into the result's Error field
func (o *DailyOrchestrator) runTopic(ctx context.Context, topic models.Topic, date string, usedAt time.Time) (res models.TopicRunResult) {
	res = models.TopicRunResult{TopicID: topic.ID, TopicName: topic.Name}

	ctx, span := observability.TraceOrchestratorFunction(ctx, "run_topic",
		observability.AttributeTopicID(topic.ID),
		observability.AttributeDate(date),
	)
	var err error
	defer observability.FinishSpan(span, &err)

	defer func() {
		if r := recover(); r != nil {
			err = contextutils.ErrorWithContextf("panic processing topic %d: %v", topic.ID, r)
			res.Error = err.Error()
		}
		if res.Error != "" {
			o.logger.Error(ctx, "Daily flow topic failed", err, map[string]interface{}{
				"topic_id":   topic.ID,
				"topic_name": topic.Name,
				"kind":       contextutils.KindOf(err).String(),
			})
		}
	}()

	sel, question, created, err := o.resolveSelection(ctx, topic, date, usedAt)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.SelectionID = sel.ID
	res.QuestionID = sel.QuestionID
	res.Created = created

	dispatch, err := o.claimDispatch(ctx, sel)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	if !dispatch {
		o.logger.Info(ctx, "Selection already claimed for dispatch, skipping notifications", map[string]interface{}{
			"topic_id":     topic.ID,
			"selection_id": sel.ID,
		})
		return res
	}

	result, err := o.dispatcher.SendDailyNotifications(ctx, topic.ID, sel.ID, o.buildPayload(topic, question, sel))
	if err != nil {
		err = contextutils.WrapError(err, "notification dispatch failed")
		res.Error = err.Error()
		return res
	}
	res.Dispatched = true
	res.NotificationsSent = result.Sent

	if result.Sent > 0 {
		if err = o.selections.IncrementNotificationsSent(ctx, sel.ID, result.Sent); err != nil {
			err = contextutils.WrapError(err, "failed to record notifications sent")
			res.Error = err.Error()
		}
	}
	return res
}

// resolveSelection reuses today's selection for the topic when one exists,
// otherwise claims a question and inserts a selection for it
func (o *DailyOrchestrator) resolveSelection(ctx context.Context, topic models.Topic, date string, usedAt time.Time) (*models.DailySelection, *models.Question, bool, error) {
	existing, err := o.selections.GetSelectionByTopicDate(ctx, topic.ID, date)
	if err == nil {
		question, qerr := o.catalog.GetQuestion(ctx, existing.QuestionID)
		if qerr != nil {
			return nil, nil, false, contextutils.WrapError(qerr, "failed to load selected question")
		}
		return existing, question, false, nil
	}
	if contextutils.KindOf(err) != contextutils.KindNotFound {
		return nil, nil, false, contextutils.WrapError(err, "failed to look up selection")
	}

	question, err := o.catalog.ClaimQuestion(ctx, topic.ID, usedAt)
	if err != nil {
		return nil, nil, false, contextutils.WrapErrorf(err, "failed to claim question for topic %q", topic.Name)
	}

	var answerID *int64
	answer, err := o.catalog.GetAnswerByQuestion(ctx, question.ID)
	switch {
	case err == nil:
		answerID = &answer.ID
	case contextutils.KindOf(err) == contextutils.KindNotFound:
		o.logger.Warn(ctx, "Selected question has no answer yet", map[string]interface{}{
			"topic_id":    topic.ID,
			"question_id": question.ID,
		})
	default:
		o.logger.Warn(ctx, "Answer lookup failed, continuing without answer", map[string]interface{}{
			"topic_id":    topic.ID,
			"question_id": question.ID,
			"error":       err.Error(),
		})
	}

	sel, created, err := o.selections.InsertSelectionIfAbsent(ctx, &models.DailySelection{
		Date:       date,
		TopicID:    topic.ID,
		QuestionID: question.ID,
		AnswerID:   answerID,
	})
	if err != nil {
		return nil, nil, false, contextutils.WrapError(err, "failed to store selection")
	}
	if !created && sel.QuestionID != question.ID {
		// a concurrent run stored its own pick first
		o.logger.Info(ctx, "Selection created concurrently, using stored question", map[string]interface{}{
			"topic_id":         topic.ID,
			"claimed_question": question.ID,
			"stored_question":  sel.QuestionID,
		})
		if question, err = o.catalog.GetQuestion(ctx, sel.QuestionID); err != nil {
			return nil, nil, false, contextutils.WrapError(err, "failed to load selected question")
		}
	}
	return sel, question, created, nil
}

// claimDispatch takes the selection's dispatch lease. Only the run holding it
// sends; a lease left behind by a run that crashed before logging anything is
// reclaimed once it is older than DispatchClaimLease.
func (o *DailyOrchestrator) claimDispatch(ctx context.Context, sel *models.DailySelection) (bool, error) {
	now := o.now()
	claimed, err := o.selections.ClaimDispatch(ctx, sel.ID, now, now.Add(-config.DispatchClaimLease))
	if err != nil {
		return false, contextutils.WrapError(err, "failed to claim selection dispatch")
	}
	return claimed, nil
}

func (o *DailyOrchestrator) buildPayload(topic models.Topic, question *models.Question, sel *models.DailySelection) models.NotificationPayload {
	return models.NotificationPayload{
		Title: fmt.Sprintf("Daily %s question", topic.Name),
		Body:  truncate(question.Text, o.bodyMaxLength),
		Data: map[string]string{
			"selectionId": strconv.FormatInt(sel.ID, 10),
			"topicId":     strconv.FormatInt(topic.ID, 10),
		},
	}
}

// GetDailyFeed returns today's selections for the user's subscribed topics
func (o *DailyOrchestrator) GetDailyFeed(ctx context.Context, userID int64) (feed []models.FeedItem, err error) {
	date := o.today()
	ctx, span := observability.TraceOrchestratorFunction(ctx, "get_daily_feed",
		observability.AttributeUserID(userID),
		observability.AttributeDate(date),
	)
	defer observability.FinishSpan(span, &err)

	user, err := o.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(user.SubscribedTopicIDs) == 0 {
		return []models.FeedItem{}, nil
	}

	feed, err = o.selections.GetFeed(ctx, date, user.SubscribedTopicIDs)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to load daily feed")
	}
	return feed, nil
}

// MarkAsRead records that the user read a selection today and returns the updated streak
func (o *DailyOrchestrator) MarkAsRead(ctx context.Context, userID, selectionID int64) (streak *models.Streak, err error) {
	date := o.today()
	ctx, span := observability.TraceOrchestratorFunction(ctx, "mark_as_read",
		observability.AttributeUserID(userID),
		observability.AttributeSelectionID(selectionID),
	)
	defer observability.FinishSpan(span, &err)

	if _, err = o.selections.GetSelection(ctx, selectionID); err != nil {
		return nil, err
	}
	if _, err = o.users.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	streak, err = o.users.RecordActivity(ctx, userID, date)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to record activity")
	}
	span.SetAttributes(attribute.Int("streak.count", streak.Count))
	return streak, nil
}

// ResetStaleStreaks zeroes positive streaks last active more than two days ago
func (o *DailyOrchestrator) ResetStaleStreaks(ctx context.Context) (reset int64, err error) {
	ctx, span := observability.TraceOrchestratorFunction(ctx, "reset_stale_streaks")
	defer observability.FinishSpan(span, &err)

	cutoff, err := contextutils.AddDays(o.today(), -staleStreakDays)
	if err != nil {
		return 0, err
	}
	reset, err = o.users.ResetStaleStreaks(ctx, cutoff)
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to reset stale streaks")
	}
	o.logger.Info(ctx, "Stale streaks reset", map[string]interface{}{
		"cutoff": cutoff,
		"reset":  reset,
	})
	return reset, nil
}

// GetDailyStats aggregates selections for date, or for today when date is empty
func (o *DailyOrchestrator) GetDailyStats(ctx context.Context, date string) (stats *models.DailyStats, err error) {
	if date == "" {
		date = o.today()
	}
	ctx, span := observability.TraceOrchestratorFunction(ctx, "get_daily_stats",
		observability.AttributeDate(date),
	)
	defer observability.FinishSpan(span, &err)

	if _, err = contextutils.ParseCalendarDate(date); err != nil {
		return nil, err
	}
	stats, err = o.selections.GetDailyStats(ctx, date)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to load daily stats")
	}
	return stats, nil
}
