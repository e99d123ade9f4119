package store

import (
	"context"
	"database/sql"
	"time"

	"dailyfeed/internal/models"
	"dailyfeed/internal/observability"
	contextutils "dailyfeed/internal/utils"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
)

const questionColumns = `id, topic_id, text, difficulty, tags, is_active, last_used_date, usage_count, created_at`

const answerColumns = `id, question_id, content, generated_at, model, token_count, is_stale`

// CatalogStore reads and writes topics, questions and answers
type CatalogStore struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewCatalogStore creates a new CatalogStore
func NewCatalogStore(db *sql.DB, logger *observability.Logger) *CatalogStore {
	return &CatalogStore{db: db, logger: logger}
}

// ListActiveTopics returns active topics ordered by display order
func (s *CatalogStore) ListActiveTopics(ctx context.Context) (result []models.Topic, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "list_active_topics")
	defer observability.FinishSpan(span, &err)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, is_active, display_order, created_at
		FROM topics
		WHERE is_active
		ORDER BY display_order ASC, id ASC`)
	if err != nil {
		return nil, queryError(err, "failed to list active topics")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	topics := []models.Topic{}
	for rows.Next() {
		var t models.Topic
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.IsActive, &t.DisplayOrder, &t.CreatedAt); err != nil {
			return nil, queryError(err, "failed to scan topic")
		}
		topics = append(topics, t)
	}
	if err := rows.Err(); err != nil {
		return nil, queryError(err, "failed to iterate topics")
	}

	span.SetAttributes(attribute.Int("topics.count", len(topics)))
	return topics, nil
}

// GetTopic loads one topic by id
func (s *CatalogStore) GetTopic(ctx context.Context, topicID int64) (result *models.Topic, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "get_topic", observability.AttributeTopicID(topicID))
	defer observability.FinishSpan(span, &err)

	var t models.Topic
	err = s.db.QueryRowContext(ctx, `
		SELECT id, name, description, is_active, display_order, created_at
		FROM topics WHERE id = $1`, topicID).
		Scan(&t.ID, &t.Name, &t.Description, &t.IsActive, &t.DisplayOrder, &t.CreatedAt)
	if err != nil {
		return nil, notFound(err, contextutils.ErrRecordNotFound, "failed to get topic")
	}
	return &t, nil
}

// GetQuestion loads one question by id
func (s *CatalogStore) GetQuestion(ctx context.Context, questionID int64) (result *models.Question, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "get_question", observability.AttributeQuestionID(questionID))
	defer observability.FinishSpan(span, &err)

	row := s.db.QueryRowContext(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = $1`, questionID)
	q, err := scanQuestion(row)
	if err != nil {
		return nil, notFound(err, contextutils.ErrQuestionNotFound, "failed to get question")
	}
	return q, nil
}

// ClaimQuestion marks the least recently used active question of the topic as
// used in one statement. SKIP LOCKED lets a concurrent claimer move on to the
// next candidate instead of waiting and then taking the same row.
func (s *CatalogStore) ClaimQuestion(ctx context.Context, topicID int64, usedAt time.Time) (result *models.Question, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "claim_question", observability.AttributeTopicID(topicID))
	defer observability.FinishSpan(span, &err)

	row := s.db.QueryRowContext(ctx, `
		UPDATE questions
		SET last_used_date = GREATEST(COALESCE(last_used_date, $2), $2),
		    usage_count = usage_count + 1
		WHERE id = (
			SELECT id FROM questions
			WHERE topic_id = $1 AND is_active
			ORDER BY last_used_date ASC NULLS FIRST, usage_count ASC, id ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+questionColumns, topicID, usedAt)

	q, err := scanQuestion(row)
	if err != nil {
		return nil, notFound(err, contextutils.ErrNoQuestionsAvailable, "failed to claim question")
	}

	span.SetAttributes(observability.AttributeQuestionID(q.ID), attribute.Int("question.usage_count", q.UsageCount))
	return q, nil
}

// GetAnswerByQuestion returns ErrRecordNotFound when the question has no answer
func (s *CatalogStore) GetAnswerByQuestion(ctx context.Context, questionID int64) (result *models.Answer, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "get_answer_by_question", observability.AttributeQuestionID(questionID))
	defer observability.FinishSpan(span, &err)

	row := s.db.QueryRowContext(ctx, `SELECT `+answerColumns+` FROM answers WHERE question_id = $1`, questionID)
	a, err := scanAnswer(row)
	if err != nil {
		return nil, notFound(err, contextutils.ErrRecordNotFound, "failed to get answer")
	}
	return a, nil
}

// UpsertAnswer writes the answer for its question and clears the stale flag
func (s *CatalogStore) UpsertAnswer(ctx context.Context, answer *models.Answer) (result *models.Answer, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "upsert_answer", observability.AttributeQuestionID(answer.QuestionID))
	defer observability.FinishSpan(span, &err)

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO answers (question_id, content, generated_at, model, token_count, is_stale)
		VALUES ($1, $2, $3, $4, $5, FALSE)
		ON CONFLICT (question_id) DO UPDATE SET
			content = EXCLUDED.content,
			generated_at = EXCLUDED.generated_at,
			model = EXCLUDED.model,
			token_count = EXCLUDED.token_count,
			is_stale = FALSE
		RETURNING `+answerColumns,
		answer.QuestionID, answer.Content, answer.GeneratedAt, answer.Model, answer.TokenCount)

	a, err := scanAnswer(row)
	if err != nil {
		return nil, queryError(err, "failed to upsert answer")
	}
	return a, nil
}

// MarkAnswerStale reports whether an answer existed to flag
func (s *CatalogStore) MarkAnswerStale(ctx context.Context, questionID int64) (result bool, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "mark_answer_stale", observability.AttributeQuestionID(questionID))
	defer observability.FinishSpan(span, &err)

	res, err := s.db.ExecContext(ctx, `UPDATE answers SET is_stale = TRUE WHERE question_id = $1`, questionID)
	if err != nil {
		return false, queryError(err, "failed to mark answer stale")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, queryError(err, "failed to read rows affected")
	}
	return n > 0, nil
}

// ListQuestionsNeedingAnswers returns active questions with no answer or a stale one
func (s *CatalogStore) ListQuestionsNeedingAnswers(ctx context.Context) (result []models.QuestionForGeneration, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "list_questions_needing_answers")
	defer observability.FinishSpan(span, &err)

	rows, err := s.db.QueryContext(ctx, `
		SELECT q.id, q.text, q.difficulty, t.name
		FROM questions q
		JOIN topics t ON t.id = q.topic_id
		LEFT JOIN answers a ON a.question_id = q.id
		WHERE q.is_active AND (a.id IS NULL OR a.is_stale)
		ORDER BY q.id ASC`)
	if err != nil {
		return nil, queryError(err, "failed to list questions needing answers")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	out := []models.QuestionForGeneration{}
	for rows.Next() {
		var q models.QuestionForGeneration
		if err := rows.Scan(&q.QuestionID, &q.Text, &q.Difficulty, &q.TopicName); err != nil {
			return nil, queryError(err, "failed to scan question")
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, queryError(err, "failed to iterate questions")
	}

	span.SetAttributes(attribute.Int("questions.count", len(out)))
	return out, nil
}

// GetGenerationStats summarizes answer coverage in one round trip
func (s *CatalogStore) GetGenerationStats(ctx context.Context) (result *models.GenerationStats, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "get_generation_stats")
	defer observability.FinishSpan(span, &err)

	var stats models.GenerationStats
	var last sql.NullTime
	err = s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM answers),
			(SELECT COUNT(*) FROM answers WHERE is_stale),
			(SELECT COUNT(*) FROM questions q
			  WHERE q.is_active AND NOT EXISTS (SELECT 1 FROM answers a WHERE a.question_id = q.id)),
			(SELECT MAX(generated_at) FROM answers)`).
		Scan(&stats.TotalAnswers, &stats.StaleAnswers, &stats.QuestionsWithoutAnswer, &last)
	if err != nil {
		return nil, queryError(err, "failed to get generation stats")
	}
	stats.LastGeneratedAt = nullTimePtr(last)
	return &stats, nil
}

func scanQuestion(row rowScanner) (*models.Question, error) {
	var q models.Question
	var lastUsed sql.NullTime
	var tags []string
	if err := row.Scan(&q.ID, &q.TopicID, &q.Text, &q.Difficulty, pq.Array(&tags), &q.IsActive, &lastUsed, &q.UsageCount, &q.CreatedAt); err != nil {
		return nil, err
	}
	if tags == nil {
		tags = []string{}
	}
	q.Tags = tags
	q.LastUsedDate = nullTimePtr(lastUsed)
	return &q, nil
}

func scanAnswer(row rowScanner) (*models.Answer, error) {
	var a models.Answer
	if err := row.Scan(&a.ID, &a.QuestionID, &a.Content, &a.GeneratedAt, &a.Model, &a.TokenCount, &a.IsStale); err != nil {
		return nil, err
	}
	return &a, nil
}
