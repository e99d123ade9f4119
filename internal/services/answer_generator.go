package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"dailyfeed/internal/config"
	"dailyfeed/internal/models"
	"dailyfeed/internal/observability"
	"dailyfeed/internal/serviceinterfaces"
	contextutils "dailyfeed/internal/utils"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
)

const answerSystemPrompt = `You are an experienced tutor writing the answer card for a daily learning question.
Explain the answer concisely and accurately so a learner can understand it in a couple of minutes.
Format the answer in Markdown, using short paragraphs, lists and code blocks where they help.
Keep the answer under 300 words.`

// AnswerGeneratorInterface defines answer generation operations
type AnswerGeneratorInterface interface {
	GenerateAnswer(ctx context.Context, questionText, topicName, difficulty string) (*models.GeneratedText, error)
	GenerateForQuestion(ctx context.Context, questionID int64) (*models.Answer, error)
	MarkAsStale(ctx context.Context, questionID int64) (bool, error)
	NightlyGeneration(ctx context.Context) (*models.GenerationRunSummary, error)
	GetGenerationStats(ctx context.Context) (*models.GenerationStats, error)
}

// AnswerGenerator obtains answers from the text generation gateway and stores them
type AnswerGenerator struct {
	catalog   serviceinterfaces.CatalogStore
	generator serviceinterfaces.TextGenerator
	cfg       config.GenerationConfig
	logger    *observability.Logger
	metrics   *observability.PipelineMetrics

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

var _ AnswerGeneratorInterface = (*AnswerGenerator)(nil)

// NewAnswerGenerator creates an AnswerGenerator. Zero config values fall back to the package defaults.
func NewAnswerGenerator(catalog serviceinterfaces.CatalogStore, generator serviceinterfaces.TextGenerator, cfg config.GenerationConfig, logger *observability.Logger, metrics *observability.PipelineMetrics) *AnswerGenerator {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = config.DefaultGenerationMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = config.DefaultGenerationBaseDelay
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = config.DefaultGenerationBatchSize
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = config.GenerationRequestTimeout
	}
	return &AnswerGenerator{
		catalog:   catalog,
		generator: generator,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// GenerateAnswer asks the gateway for an answer. Rate limits, 5xx responses
// and network failures are retried with exponential backoff; anything else
// fails on the first attempt.
func (g *AnswerGenerator) GenerateAnswer(ctx context.Context, questionText, topicName, difficulty string) (result *models.GeneratedText, err error) {
	ctx, span := observability.TraceGeneratorFunction(ctx, "generate_answer",
		attribute.String("topic.name", topicName),
		attribute.String("difficulty", difficulty),
	)
	defer observability.FinishSpan(span, &err)

	req := serviceinterfaces.CompletionRequest{
		SystemPrompt: answerSystemPrompt,
		UserPrompt:   buildAnswerPrompt(questionText, topicName, difficulty),
		Model:        g.cfg.Model,
		MaxTokens:    g.cfg.MaxTokens,
		Temperature:  g.cfg.Temperature,
	}

	attempts := 0
	operation := func() (*serviceinterfaces.CompletionResult, error) {
		attempts++
		callCtx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
		defer cancel()

		res, callErr := g.generator.Complete(callCtx, req)
		if callErr == nil {
			return res, nil
		}
		if ctx.Err() != nil || !isRetryableGenerationError(callErr) {
			return nil, backoff.Permanent(callErr)
		}
		return nil, callErr
	}

	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(&backoff.ExponentialBackOff{
			InitialInterval:     g.cfg.BaseDelay,
			RandomizationFactor: 0,
			Multiplier:          2,
			MaxInterval:         g.cfg.BaseDelay << g.cfg.MaxAttempts,
		}),
		backoff.WithMaxTries(uint(g.cfg.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(retryErr error, delay time.Duration) {
			g.metrics.RecordRetry(ctx)
			g.logger.Warn(ctx, "Retrying answer generation", map[string]interface{}{
				"attempt":  attempts,
				"delay_ms": delay.Milliseconds(),
				"error":    retryErr.Error(),
			})
		}),
	)
	span.SetAttributes(attribute.Int("generation.attempts", attempts))
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Unwrap()
		}
		return nil, classifyGenerationError(err, attempts)
	}

	model := res.Model
	if model == "" {
		model = g.cfg.Model
	}
	return &models.GeneratedText{
		Content:     res.Text,
		Model:       model,
		TotalTokens: res.TotalTokens,
		Attempts:    attempts,
	}, nil
}

// GenerateForQuestion returns the stored answer when it is fresh and otherwise
// generates and upserts a new one
func (g *AnswerGenerator) GenerateForQuestion(ctx context.Context, questionID int64) (result *models.Answer, err error) {
	ctx, span := observability.TraceGeneratorFunction(ctx, "generate_for_question",
		observability.AttributeQuestionID(questionID),
	)
	defer observability.FinishSpan(span, &err)

	existing, err := g.catalog.GetAnswerByQuestion(ctx, questionID)
	switch {
	case err == nil && !existing.IsStale:
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return existing, nil
	case err != nil && contextutils.KindOf(err) != contextutils.KindNotFound:
		return nil, contextutils.WrapError(err, "failed to look up answer")
	}

	question, err := g.catalog.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}

	topicName := ""
	topic, err := g.catalog.GetTopic(ctx, question.TopicID)
	switch {
	case err == nil:
		topicName = topic.Name
	case contextutils.KindOf(err) != contextutils.KindNotFound:
		return nil, contextutils.WrapError(err, "failed to load topic")
	}

	return g.generateAndStore(ctx, models.QuestionForGeneration{
		QuestionID: question.ID,
		Text:       question.Text,
		Difficulty: question.Difficulty,
		TopicName:  topicName,
	})
}

func (g *AnswerGenerator) generateAndStore(ctx context.Context, q models.QuestionForGeneration) (*models.Answer, error) {
	generated, err := g.GenerateAnswer(ctx, q.Text, q.TopicName, q.Difficulty)
	if err != nil {
		g.metrics.RecordGeneration(ctx, false)
		return nil, err
	}

	answer, err := g.catalog.UpsertAnswer(ctx, &models.Answer{
		QuestionID:  q.QuestionID,
		Content:     generated.Content,
		GeneratedAt: g.now().UTC(),
		Model:       generated.Model,
		TokenCount:  generated.TotalTokens,
	})
	if err != nil {
		g.metrics.RecordGeneration(ctx, false)
		return nil, contextutils.WrapError(err, "failed to store answer")
	}
	g.metrics.RecordGeneration(ctx, true)

	g.logger.Info(ctx, "Answer generated", map[string]interface{}{
		"question_id": q.QuestionID,
		"model":       generated.Model,
		"tokens":      generated.TotalTokens,
		"attempts":    generated.Attempts,
	})
	return answer, nil
}

// MarkAsStale flags the question's answer for regeneration. It reports false
// when the question has no answer.
func (g *AnswerGenerator) MarkAsStale(ctx context.Context, questionID int64) (marked bool, err error) {
	ctx, span := observability.TraceGeneratorFunction(ctx, "mark_as_stale",
		observability.AttributeQuestionID(questionID),
	)
	defer observability.FinishSpan(span, &err)

	marked, err = g.catalog.MarkAnswerStale(ctx, questionID)
	if err != nil {
		return false, contextutils.WrapError(err, "failed to mark answer stale")
	}
	if !marked {
		g.logger.Info(ctx, "No answer to mark stale", map[string]interface{}{"question_id": questionID})
	}
	return marked, nil
}

// NightlyGeneration fills in missing and stale answers in batches. Individual
// failures are counted and never stop the run.
func (g *AnswerGenerator) NightlyGeneration(ctx context.Context) (summary *models.GenerationRunSummary, err error) {
	ctx, span := observability.TraceGeneratorFunction(ctx, "nightly_generation")
	defer observability.FinishSpan(span, &err)

	start := g.now()
	candidates, err := g.catalog.ListQuestionsNeedingAnswers(ctx)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to list questions needing answers")
	}

	summary = &models.GenerationRunSummary{Candidates: len(candidates)}
	g.logger.Info(ctx, "Starting nightly answer generation", map[string]interface{}{
		"candidates": len(candidates),
		"batch_size": g.cfg.BatchSize,
	})

	for offset := 0; offset < len(candidates); offset += g.cfg.BatchSize {
		if offset > 0 {
			if err := g.sleep(ctx, g.cfg.BatchDelay); err != nil {
				summary.Duration = g.now().Sub(start)
				return summary, contextutils.WrapError(err, "nightly generation interrupted")
			}
		}

		end := min(offset+g.cfg.BatchSize, len(candidates))
		summary.Batches++
		for _, q := range candidates[offset:end] {
			if _, genErr := g.generateAndStore(ctx, q); genErr != nil {
				summary.Failed++
				g.logger.Warn(ctx, "Answer generation failed", map[string]interface{}{
					"question_id": q.QuestionID,
					"kind":        contextutils.KindOf(genErr).String(),
					"error":       genErr.Error(),
				})
				continue
			}
			summary.Succeeded++
		}
	}

	summary.Duration = g.now().Sub(start)
	span.SetAttributes(
		attribute.Int("generation.succeeded", summary.Succeeded),
		attribute.Int("generation.failed", summary.Failed),
	)

	fields := map[string]interface{}{
		"candidates":   summary.Candidates,
		"succeeded":    summary.Succeeded,
		"failed":       summary.Failed,
		"batches":      summary.Batches,
		"failure_rate": summary.FailureRate(),
		"duration_ms":  summary.Duration.Milliseconds(),
	}
	if summary.FailureRate() > 0.5 {
		g.logger.Error(ctx, "Nightly answer generation failure rate above 50%",
			contextutils.ErrorWithContextf("%d of %d generations failed", summary.Failed, summary.Candidates), fields)
	} else {
		g.logger.Info(ctx, "Nightly answer generation completed", fields)
	}
	return summary, nil
}

// GetGenerationStats reports answer coverage
func (g *AnswerGenerator) GetGenerationStats(ctx context.Context) (stats *models.GenerationStats, err error) {
	ctx, span := observability.TraceGeneratorFunction(ctx, "get_generation_stats")
	defer observability.FinishSpan(span, &err)

	stats, err = g.catalog.GetGenerationStats(ctx)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to load generation stats")
	}
	return stats, nil
}

func buildAnswerPrompt(questionText, topicName, difficulty string) string {
	prompt := ""
	if topicName != "" {
		prompt += fmt.Sprintf("Topic: %s\n", topicName)
	}
	if difficulty != "" {
		prompt += fmt.Sprintf("Difficulty: %s\n", difficulty)
	}
	return prompt + fmt.Sprintf("\nQuestion: %s", questionText)
}

// isRetryableGenerationError is true for 429, any 5xx and transient transport failures
func isRetryableGenerationError(err error) bool {
	var genErr *serviceinterfaces.GenerationError
	if errors.As(err, &genErr) {
		switch {
		case genErr.StatusCode == http.StatusTooManyRequests, genErr.StatusCode >= 500:
			return true
		case genErr.StatusCode == 0 && genErr.Code == GenerationCodeNetwork:
			return genErr.Err == nil || isTransientNetworkError(genErr.Err)
		}
		return false
	}
	return isTransientNetworkError(err)
}

// isTransientNetworkError accepts timeouts, resets, refused connections, DNS
// failures and truncated responses. TLS, scheme and other transport errors
// fail the same way on every attempt and are not retried.
func isTransientNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func classifyGenerationError(err error, attempts int) error {
	if contextutils.KindOf(err) == contextutils.KindPermanentExternal {
		return contextutils.WrapErrorf(err, "answer generation failed after %d attempt(s)", attempts)
	}
	if isRetryableGenerationError(err) {
		return contextutils.WrapErrorf(contextutils.ErrGenerationUnavailable, "answer generation failed after %d attempt(s): %w", attempts, err)
	}
	return contextutils.WrapErrorf(contextutils.ErrGenerationFailed, "answer generation failed after %d attempt(s): %w", attempts, err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
