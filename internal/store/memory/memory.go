// Package memory provides an in-process test double for the store interfaces.
// Service and handler tests wire it in place of Postgres.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"dailyfeed/internal/models"
	"dailyfeed/internal/serviceinterfaces"
	contextutils "dailyfeed/internal/utils"
)

var (
	_ serviceinterfaces.CatalogStore         = (*Store)(nil)
	_ serviceinterfaces.SelectionStore       = (*Store)(nil)
	_ serviceinterfaces.UserStore            = (*Store)(nil)
	_ serviceinterfaces.NotificationLogStore = (*Store)(nil)
)

type selectionKey struct {
	date    string
	topicID int64
}

// Store keeps every table in maps behind one mutex. Each method holds the
// lock for its whole read-modify-write, which gives it the same single-row
// atomicity the Postgres statements have.
type Store struct {
	mu  sync.Mutex
	now func() time.Time

	topics     map[int64]*models.Topic
	questions  map[int64]*models.Question
	answers    map[int64]*models.Answer // by question id
	selections map[int64]*models.DailySelection
	byTopicDay map[selectionKey]int64
	dispatches map[int64]time.Time // selection id -> dispatch claim time
	users      map[int64]*models.User
	logs       []models.NotificationLog

	nextID int64
}

// New creates an empty Store. A nil clock means time.Now.
func New(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		now:        now,
		topics:     map[int64]*models.Topic{},
		questions:  map[int64]*models.Question{},
		answers:    map[int64]*models.Answer{},
		selections: map[int64]*models.DailySelection{},
		byTopicDay: map[selectionKey]int64{},
		dispatches: map[int64]time.Time{},
		users:      map[int64]*models.User{},
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// AddTopic seeds a topic; a zero ID is assigned
func (s *Store) AddTopic(t models.Topic) models.Topic {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == 0 {
		t.ID = s.id()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	s.topics[t.ID] = &t
	return t
}

// AddQuestion seeds a question; a zero ID is assigned
func (s *Store) AddQuestion(q models.Question) models.Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q.ID == 0 {
		q.ID = s.id()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = s.now()
	}
	if q.Tags == nil {
		q.Tags = []string{}
	}
	s.questions[q.ID] = &q
	return q
}

// AddUser seeds a user; a zero ID is assigned
func (s *Store) AddUser(u models.User) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.id()
	}
	s.users[u.ID] = copyUser(&u)
	return u
}

// SetPushToken replaces a seeded user's token
func (s *Store) SetPushToken(userID int64, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.PushToken = &token
	}
}

// Logs returns a copy of every notification log in insertion order
func (s *Store) Logs() []models.NotificationLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.NotificationLog(nil), s.logs...)
}

// Selections returns every selection ordered by id
func (s *Store) Selections() []models.DailySelection {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.DailySelection, 0, len(s.selections))
	for _, sel := range s.selections {
		out = append(out, *sel)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListActiveTopics returns active topics ordered by display order
func (s *Store) ListActiveTopics(_ context.Context) ([]models.Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeTopicsLocked(), nil
}

func (s *Store) activeTopicsLocked() []models.Topic {
	out := []models.Topic{}
	for _, t := range s.topics {
		if t.IsActive {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// GetTopic loads one topic by id
func (s *Store) GetTopic(_ context.Context, topicID int64) (*models.Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.topics[topicID]
	if !ok {
		return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "topic %d", topicID)
	}
	cp := *t
	return &cp, nil
}

// GetQuestion loads one question by id
func (s *Store) GetQuestion(_ context.Context, questionID int64) (*models.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[questionID]
	if !ok {
		return nil, contextutils.WrapErrorf(contextutils.ErrQuestionNotFound, "question %d", questionID)
	}
	return copyQuestion(q), nil
}

// ClaimQuestion picks the least recently used active question and marks it used
func (s *Store) ClaimQuestion(_ context.Context, topicID int64, usedAt time.Time) (*models.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *models.Question
	for _, q := range s.questions {
		if q.TopicID != topicID || !q.IsActive {
			continue
		}
		if best == nil || claimsBefore(q, best) {
			best = q
		}
	}
	if best == nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrNoQuestionsAvailable, "topic %d", topicID)
	}

	if best.LastUsedDate == nil || usedAt.After(*best.LastUsedDate) {
		t := usedAt
		best.LastUsedDate = &t
	}
	best.UsageCount++
	return copyQuestion(best), nil
}

// claimsBefore orders by last used (never used first), then usage count, then id
func claimsBefore(a, b *models.Question) bool {
	switch {
	case a.LastUsedDate == nil && b.LastUsedDate != nil:
		return true
	case a.LastUsedDate != nil && b.LastUsedDate == nil:
		return false
	case a.LastUsedDate != nil && !a.LastUsedDate.Equal(*b.LastUsedDate):
		return a.LastUsedDate.Before(*b.LastUsedDate)
	}
	if a.UsageCount != b.UsageCount {
		return a.UsageCount < b.UsageCount
	}
	return a.ID < b.ID
}

// GetAnswerByQuestion returns ErrRecordNotFound when the question has no answer
func (s *Store) GetAnswerByQuestion(_ context.Context, questionID int64) (*models.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.answers[questionID]
	if !ok {
		return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "answer for question %d", questionID)
	}
	cp := *a
	return &cp, nil
}

// UpsertAnswer writes the answer for its question and clears the stale flag
func (s *Store) UpsertAnswer(_ context.Context, answer *models.Answer) (*models.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.answers[answer.QuestionID]
	if !ok {
		stored = &models.Answer{ID: s.id(), QuestionID: answer.QuestionID}
		s.answers[answer.QuestionID] = stored
	}
	stored.Content = answer.Content
	stored.GeneratedAt = answer.GeneratedAt
	stored.Model = answer.Model
	stored.TokenCount = answer.TokenCount
	stored.IsStale = false

	cp := *stored
	return &cp, nil
}

// MarkAnswerStale reports whether an answer existed to flag
func (s *Store) MarkAnswerStale(_ context.Context, questionID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.answers[questionID]
	if !ok {
		return false, nil
	}
	a.IsStale = true
	return true, nil
}

// ListQuestionsNeedingAnswers returns active questions with no answer or a stale one
func (s *Store) ListQuestionsNeedingAnswers(_ context.Context) ([]models.QuestionForGeneration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.QuestionForGeneration{}
	for _, q := range s.questions {
		if !q.IsActive {
			continue
		}
		if a, ok := s.answers[q.ID]; ok && !a.IsStale {
			continue
		}
		name := ""
		if t, ok := s.topics[q.TopicID]; ok {
			name = t.Name
		}
		out = append(out, models.QuestionForGeneration{
			QuestionID: q.ID, Text: q.Text, Difficulty: q.Difficulty, TopicName: name,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out, nil
}

// GetGenerationStats summarizes answer coverage
func (s *Store) GetGenerationStats(_ context.Context) (*models.GenerationStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &models.GenerationStats{TotalAnswers: len(s.answers)}
	for _, a := range s.answers {
		if a.IsStale {
			stats.StaleAnswers++
		}
		if stats.LastGeneratedAt == nil || a.GeneratedAt.After(*stats.LastGeneratedAt) {
			t := a.GeneratedAt
			stats.LastGeneratedAt = &t
		}
	}
	for _, q := range s.questions {
		if _, ok := s.answers[q.ID]; q.IsActive && !ok {
			stats.QuestionsWithoutAnswer++
		}
	}
	return stats, nil
}

// GetSelection loads one selection by id
func (s *Store) GetSelection(_ context.Context, selectionID int64) (*models.DailySelection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sel, ok := s.selections[selectionID]
	if !ok {
		return nil, contextutils.WrapErrorf(contextutils.ErrSelectionNotFound, "selection %d", selectionID)
	}
	return copySelection(sel), nil
}

// GetSelectionByTopicDate loads the selection for (date, topic)
func (s *Store) GetSelectionByTopicDate(_ context.Context, topicID int64, date string) (*models.DailySelection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byTopicDay[selectionKey{date: date, topicID: topicID}]
	if !ok {
		return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "selection for topic %d on %s", topicID, date)
	}
	return copySelection(s.selections[id]), nil
}

// InsertSelectionIfAbsent inserts unless (date, topic) exists and returns the stored row
func (s *Store) InsertSelectionIfAbsent(_ context.Context, sel *models.DailySelection) (*models.DailySelection, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := selectionKey{date: sel.Date, topicID: sel.TopicID}
	if id, ok := s.byTopicDay[key]; ok {
		return copySelection(s.selections[id]), false, nil
	}

	stored := copySelection(sel)
	stored.ID = s.id()
	stored.NotificationsSent = 0
	stored.CreatedAt = s.now()
	s.selections[stored.ID] = stored
	s.byTopicDay[key] = stored.ID
	return copySelection(stored), true, nil
}

// ClaimDispatch takes the selection's dispatch lease
func (s *Store) ClaimDispatch(_ context.Context, selectionID int64, at, staleBefore time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.selections[selectionID]; !ok {
		return false, nil
	}
	if claimedAt, ok := s.dispatches[selectionID]; ok {
		if !claimedAt.Before(staleBefore) {
			return false, nil
		}
		for _, l := range s.logs {
			if l.DailySelectionID == selectionID {
				return false, nil
			}
		}
	}
	s.dispatches[selectionID] = at
	return true, nil
}

// IncrementNotificationsSent adds delta to the selection's counter
func (s *Store) IncrementNotificationsSent(_ context.Context, selectionID int64, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sel, ok := s.selections[selectionID]
	if !ok {
		return contextutils.WrapErrorf(contextutils.ErrSelectionNotFound, "selection %d", selectionID)
	}
	sel.NotificationsSent += delta
	return nil
}

// GetFeed joins the date's selections for the given topics
func (s *Store) GetFeed(_ context.Context, date string, topicIDs []int64) ([]models.FeedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[int64]bool, len(topicIDs))
	for _, id := range topicIDs {
		wanted[id] = true
	}

	items := []models.FeedItem{}
	for _, t := range s.orderedTopicsLocked() {
		if !wanted[t.ID] {
			continue
		}
		id, ok := s.byTopicDay[selectionKey{date: date, topicID: t.ID}]
		if !ok {
			continue
		}
		sel := s.selections[id]
		q := s.questions[sel.QuestionID]
		if q == nil {
			continue
		}
		item := models.FeedItem{
			SelectionID:  sel.ID,
			Date:         sel.Date,
			Topic:        models.TopicSummary{ID: t.ID, Name: t.Name},
			QuestionID:   q.ID,
			QuestionText: q.Text,
			Difficulty:   q.Difficulty,
			Tags:         append([]string{}, q.Tags...),
		}
		if a, ok := s.answers[q.ID]; ok {
			item.AnswerContent = a.Content
			generated := a.GeneratedAt
			item.AnswerGeneratedAt = &generated
		}
		items = append(items, item)
	}
	return items, nil
}

// GetDailyStats aggregates the date's selections in topic display order
func (s *Store) GetDailyStats(_ context.Context, date string) (*models.DailyStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &models.DailyStats{Date: date, Breakdown: []models.TopicDailyStat{}}
	for _, t := range s.orderedTopicsLocked() {
		id, ok := s.byTopicDay[selectionKey{date: date, topicID: t.ID}]
		if !ok {
			continue
		}
		sel := s.selections[id]
		text := ""
		if q := s.questions[sel.QuestionID]; q != nil {
			text = q.Text
		}
		stats.Breakdown = append(stats.Breakdown, models.TopicDailyStat{
			TopicID: t.ID, TopicName: t.Name, QuestionText: text, NotificationsSent: sel.NotificationsSent,
		})
		stats.TopicsWithContent++
		stats.TotalNotificationsSent += sel.NotificationsSent
	}
	return stats, nil
}

// orderedTopicsLocked returns all topics, active or not, in display order
func (s *Store) orderedTopicsLocked() []models.Topic {
	out := make([]models.Topic, 0, len(s.topics))
	for _, t := range s.topics {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// GetUser loads one user by id
func (s *Store) GetUser(_ context.Context, userID int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, contextutils.WrapErrorf(contextutils.ErrUserNotFound, "user %d", userID)
	}
	return copyUser(u), nil
}

// ListEligibleRecipients returns active subscribers with a deliverable token, by user id
func (s *Store) ListEligibleRecipients(_ context.Context, topicID int64) ([]models.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.Recipient{}
	for _, u := range s.users {
		if !u.IsActive || !u.HasDeliverableToken() || !subscribed(u, topicID) {
			continue
		}
		out = append(out, models.Recipient{UserID: u.ID, Token: *u.PushToken})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func subscribed(u *models.User, topicID int64) bool {
	for _, id := range u.SubscribedTopicIDs {
		if id == topicID {
			return true
		}
	}
	return false
}

// FlagTokensInvalid writes the sentinel for every listed user still holding the rejected token
func (s *Store) FlagTokensInvalid(_ context.Context, rejected []models.Recipient) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, r := range rejected {
		if u, ok := s.users[r.UserID]; ok && u.PushToken != nil && *u.PushToken == r.Token {
			sentinel := models.InvalidPushToken
			u.PushToken = &sentinel
			n++
		}
	}
	return n, nil
}

// ClearInvalidTokens nulls every flagged token
func (s *Store) ClearInvalidTokens(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, u := range s.users {
		if u.PushToken != nil && *u.PushToken == models.InvalidPushToken {
			u.PushToken = nil
			n++
		}
	}
	return n, nil
}

// RecordActivity applies the calendar-day streak rule under the store lock
func (s *Store) RecordActivity(_ context.Context, userID int64, today string) (*models.Streak, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, contextutils.WrapErrorf(contextutils.ErrUserNotFound, "user %d", userID)
	}
	next, err := models.NextStreak(u.Streak, today)
	if err != nil {
		return nil, err
	}
	u.Streak = next
	out := copyStreak(next)
	return &out, nil
}

// ResetStaleStreaks zeroes positive streaks last active before cutoff
func (s *Store) ResetStaleStreaks(_ context.Context, cutoff string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, u := range s.users {
		// YYYY-MM-DD compares correctly as a string
		if u.Streak.Count > 0 && u.Streak.LastActiveDate != nil && *u.Streak.LastActiveDate < cutoff {
			u.Streak.Count = 0
			n++
		}
	}
	return n, nil
}

// InsertLog appends one attempt
func (s *Store) InsertLog(_ context.Context, log *models.NotificationLog) (*models.NotificationLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *log
	stored.ID = s.id()
	stored.CreatedAt = s.now()
	s.logs = append(s.logs, stored)
	return &stored, nil
}

// InsertLogs appends a whole batch
func (s *Store) InsertLogs(_ context.Context, logs []models.NotificationLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, l := range logs {
		l.ID = s.id()
		l.CreatedAt = now
		s.logs = append(s.logs, l)
	}
	return nil
}

// CountByStatus groups a selection's logs by status
func (s *Store) CountByStatus(_ context.Context, selectionID int64) (map[models.NotificationStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[models.NotificationStatus]int{}
	for _, l := range s.logs {
		if l.DailySelectionID == selectionID {
			counts[l.Status]++
		}
	}
	return counts, nil
}

// ListByUser pages the user's logs newest first
func (s *Store) ListByUser(_ context.Context, userID int64, limit, offset int) ([]models.NotificationLog, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mine := []models.NotificationLog{}
	for _, l := range s.logs {
		if l.UserID == userID {
			mine = append(mine, l)
		}
	}
	sort.Slice(mine, func(i, j int) bool {
		if !mine[i].CreatedAt.Equal(mine[j].CreatedAt) {
			return mine[i].CreatedAt.After(mine[j].CreatedAt)
		}
		return mine[i].ID > mine[j].ID
	})

	total := len(mine)
	if offset < 0 || limit < 0 {
		return nil, 0, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "invalid page window limit=%d offset=%d", limit, offset)
	}
	if offset >= total {
		return []models.NotificationLog{}, total, nil
	}
	end := offset + limit
	if end > total || end < offset {
		end = total
	}
	return mine[offset:end], total, nil
}

func copyQuestion(q *models.Question) *models.Question {
	cp := *q
	cp.Tags = append([]string{}, q.Tags...)
	if q.LastUsedDate != nil {
		t := *q.LastUsedDate
		cp.LastUsedDate = &t
	}
	return &cp
}

func copySelection(sel *models.DailySelection) *models.DailySelection {
	cp := *sel
	if sel.AnswerID != nil {
		id := *sel.AnswerID
		cp.AnswerID = &id
	}
	return &cp
}

func copyStreak(st models.Streak) models.Streak {
	if st.LastActiveDate != nil {
		d := *st.LastActiveDate
		st.LastActiveDate = &d
	}
	return st
}

func copyUser(u *models.User) *models.User {
	cp := *u
	cp.SubscribedTopicIDs = append([]int64{}, u.SubscribedTopicIDs...)
	if u.PushToken != nil {
		tok := *u.PushToken
		cp.PushToken = &tok
	}
	cp.Streak = copyStreak(u.Streak)
	return &cp
}
