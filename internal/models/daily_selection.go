package models

import "time"

// DailySelection pins one question of a topic to one calendar date; unique on (date, topic)
type DailySelection struct {
	ID                int64     `json:"id" yaml:"id"`
	Date              string    `json:"date" yaml:"date"`
	TopicID           int64     `json:"topic_id" yaml:"topic_id"`
	QuestionID        int64     `json:"question_id" yaml:"question_id"`
	AnswerID          *int64    `json:"answer_id,omitempty" yaml:"answer_id,omitempty"`
	NotificationsSent int       `json:"notifications_sent" yaml:"notifications_sent"`
	CreatedAt         time.Time `json:"created_at" yaml:"created_at"`
}

// TopicSummary is the topic portion of a feed item
type TopicSummary struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// FeedItem is one topic's content for today in a user's feed
type FeedItem struct {
	SelectionID       int64        `json:"selection_id"`
	Date              string       `json:"date"`
	Topic             TopicSummary `json:"topic"`
	QuestionID        int64        `json:"question_id"`
	QuestionText      string       `json:"question_text"`
	Difficulty        string       `json:"difficulty"`
	Tags              []string     `json:"tags"`
	AnswerContent     string       `json:"answer_content"`
	AnswerGeneratedAt *time.Time   `json:"answer_generated_at,omitempty"`
}

// TopicDailyStat is one row of the per-topic stats breakdown
type TopicDailyStat struct {
	TopicID           int64  `json:"topic_id"`
	TopicName         string `json:"topic_name"`
	QuestionText      string `json:"question_text"`
	NotificationsSent int    `json:"notifications_sent"`
}

// DailyStats aggregates the selections for one date
type DailyStats struct {
	Date                   string           `json:"date"`
	TopicsWithContent      int              `json:"topics_with_content"`
	TotalNotificationsSent int              `json:"total_notifications_sent"`
	Breakdown              []TopicDailyStat `json:"breakdown"`
}

// TopicRunResult records what happened to one topic during a daily run
type TopicRunResult struct {
	TopicID           int64  `json:"topic_id"`
	TopicName         string `json:"topic_name"`
	SelectionID       int64  `json:"selection_id,omitempty"`
	QuestionID        int64  `json:"question_id,omitempty"`
	Created           bool   `json:"created"`
	Dispatched        bool   `json:"dispatched"`
	NotificationsSent int    `json:"notifications_sent"`
	Error             string `json:"error,omitempty"`
}

// DailyRunSummary is logged once at the end of every daily run
type DailyRunSummary struct {
	Date              string           `json:"date"`
	TopicsProcessed   int              `json:"topics_processed"`
	QuestionsSelected int              `json:"questions_selected"`
	NotificationsSent int              `json:"notifications_sent"`
	Errors            int              `json:"errors"`
	Duration          time.Duration    `json:"duration"`
	Topics            []TopicRunResult `json:"topics"`
}
