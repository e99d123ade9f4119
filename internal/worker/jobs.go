package worker

import (
	"context"
	"fmt"

	"dailyfeed/internal/services"
)

// PipelineJobs returns the four daily jobs bound to the pipeline services.
// Details strings end up in run history and task status.
func PipelineJobs(orchestrator services.DailyOrchestratorInterface, dispatcher services.NotificationDispatcherInterface, generator services.AnswerGeneratorInterface) map[string]TaskFunc {
	return map[string]TaskFunc{
		JobResetStreaks: func(ctx context.Context) (string, error) {
			reset, err := orchestrator.ResetStaleStreaks(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("reset %d stale streaks", reset), nil
		},
		JobAnswerGeneration: func(ctx context.Context) (string, error) {
			summary, err := generator.NightlyGeneration(ctx)
			if summary == nil {
				return "", err
			}
			return fmt.Sprintf("generated %d of %d answers in %d batches (%d failed)",
				summary.Succeeded, summary.Candidates, summary.Batches, summary.Failed), err
		},
		JobTokenCleanup: func(ctx context.Context) (string, error) {
			cleared, err := dispatcher.CleanupInvalidTokens(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("cleared %d invalid push tokens", cleared), nil
		},
		JobDailyFlow: func(ctx context.Context) (string, error) {
			summary, err := orchestrator.RunDailyFlow(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s: %d topics, %d selected, %d notifications, %d errors",
				summary.Date, summary.TopicsProcessed, summary.QuestionsSelected, summary.NotificationsSent, summary.Errors), nil
		},
	}
}
