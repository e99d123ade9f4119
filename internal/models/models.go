// Package models defines data structures used throughout the daily feed pipeline.
package models

import (
	"time"

	contextutils "dailyfeed/internal/utils"
)

// InvalidPushToken marks a push token the gateway rejected; cleanup clears it later
const InvalidPushToken = "invalid"

// Topic is a subject users subscribe to
type Topic struct {
	ID           int64     `json:"id" yaml:"id"`
	Name         string    `json:"name" yaml:"name"`
	Description  string    `json:"description" yaml:"description"`
	IsActive     bool      `json:"is_active" yaml:"is_active"`
	DisplayOrder int       `json:"display_order" yaml:"display_order"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
}

// Question belongs to one topic. LastUsedDate only ever moves forward.
type Question struct {
	ID           int64      `json:"id" yaml:"id"`
	TopicID      int64      `json:"topic_id" yaml:"topic_id"`
	Text         string     `json:"text" yaml:"text"`
	Difficulty   string     `json:"difficulty" yaml:"difficulty"`
	Tags         []string   `json:"tags" yaml:"tags"`
	IsActive     bool       `json:"is_active" yaml:"is_active"`
	LastUsedDate *time.Time `json:"last_used_date,omitempty" yaml:"last_used_date,omitempty"`
	UsageCount   int        `json:"usage_count" yaml:"usage_count"`
	CreatedAt    time.Time  `json:"created_at" yaml:"created_at"`
}

// Answer is the generated explanation for a question; at most one per question
type Answer struct {
	ID          int64     `json:"id" yaml:"id"`
	QuestionID  int64     `json:"question_id" yaml:"question_id"`
	Content     string    `json:"content" yaml:"content"`
	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at"`
	Model       string    `json:"model" yaml:"model"`
	TokenCount  int       `json:"token_count" yaml:"token_count"`
	IsStale     bool      `json:"is_stale" yaml:"is_stale"`
}

// Streak counts consecutive calendar days of engagement
type Streak struct {
	Count          int     `json:"count" yaml:"count"`
	LastActiveDate *string `json:"last_active_date,omitempty" yaml:"last_active_date,omitempty"`
}

// User holds the subscription, push token and streak fields this pipeline touches
type User struct {
	ID                 int64   `json:"id" yaml:"id"`
	IsActive           bool    `json:"is_active" yaml:"is_active"`
	SubscribedTopicIDs []int64 `json:"subscribed_topic_ids" yaml:"subscribed_topic_ids"`
	PushToken          *string `json:"-" yaml:"-"`
	Streak             Streak  `json:"streak" yaml:"streak"`
}

// HasDeliverableToken reports whether the user has a token that is neither empty nor flagged
func (u *User) HasDeliverableToken() bool {
	return u.PushToken != nil && *u.PushToken != "" && *u.PushToken != InvalidPushToken
}

// NextStreak applies the calendar-day streak rule for activity on today:
// same day keeps the streak, exactly one day later increments it, anything else restarts at 1.
// A last-active date after today (clock skew) is treated like a same-day repeat.
func NextStreak(current Streak, today string) (Streak, error) {
	if current.LastActiveDate == nil {
		return Streak{Count: 1, LastActiveDate: &today}, nil
	}

	gap, err := contextutils.DaysBetween(*current.LastActiveDate, today)
	if err != nil {
		return Streak{}, err
	}

	switch {
	case gap <= 0:
		last := *current.LastActiveDate
		count := current.Count
		if count < 1 {
			count = 1
		}
		return Streak{Count: count, LastActiveDate: &last}, nil
	case gap == 1:
		return Streak{Count: current.Count + 1, LastActiveDate: &today}, nil
	default:
		return Streak{Count: 1, LastActiveDate: &today}, nil
	}
}
