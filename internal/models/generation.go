package models

import "time"

// GeneratedText is the result of one successful completion
type GeneratedText struct {
	Content     string `json:"content"`
	Model       string `json:"model"`
	TotalTokens int    `json:"total_tokens"`
	Attempts    int    `json:"attempts"`
}

// QuestionForGeneration is an active question whose answer is missing or stale
type QuestionForGeneration struct {
	QuestionID int64  `json:"question_id"`
	Text       string `json:"text"`
	Difficulty string `json:"difficulty"`
	TopicName  string `json:"topic_name"`
}

// GenerationRunSummary tallies one nightly generation pass
type GenerationRunSummary struct {
	Candidates int           `json:"candidates"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Batches    int           `json:"batches"`
	Duration   time.Duration `json:"duration"`
}

// FailureRate returns failed/candidates, 0 for an empty run
func (s GenerationRunSummary) FailureRate() float64 {
	if s.Candidates == 0 {
		return 0
	}
	return float64(s.Failed) / float64(s.Candidates)
}

// GenerationStats describes answer coverage
type GenerationStats struct {
	TotalAnswers           int        `json:"total_answers"`
	StaleAnswers           int        `json:"stale_answers"`
	QuestionsWithoutAnswer int        `json:"questions_without_answer"`
	LastGeneratedAt        *time.Time `json:"last_generated_at"`
}
