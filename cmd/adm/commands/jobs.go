package commands

import (
	"context"
	"strings"

	"dailyfeed/internal/config"
	"dailyfeed/internal/di"
	"dailyfeed/internal/observability"
	"dailyfeed/internal/worker"

	"github.com/spf13/cobra"
)

var jobNames = []string{worker.JobResetStreaks, worker.JobAnswerGeneration, worker.JobTokenCleanup, worker.JobDailyFlow}

// JobCommands returns the commands that inspect and run the daily jobs
func JobCommands(open ContainerOpener, logger *observability.Logger) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and run the daily pipeline jobs",
		Long: `Inspect and run the daily pipeline jobs.

Available commands:
  list      - Show the schedule
  run       - Run one job now and wait for it (` + strings.Join(jobNames, ", ") + `)`,
	}

	jobsCmd.AddCommand(listJobsCmd(open))
	jobsCmd.AddCommand(runJobCmd(open, logger))
	return jobsCmd
}

func listJobsCmd(open ContainerOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show each job with its time and next run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withContainer(cmd.Context(), open, func(sc *di.ServiceContainer) error {
				scheduler, err := sc.GetScheduler()
				if err != nil {
					return err
				}
				return printResult(cmd, scheduler.Jobs())
			})
		},
	}
}

func runJobCmd(open ContainerOpener, logger *observability.Logger) *cobra.Command {
	var timeout = config.CLIJobTimeout
	cmd := &cobra.Command{
		Use:       "run <job>",
		Short:     "Run a job synchronously",
		Args:      cobra.ExactArgs(1),
		ValidArgs: jobNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			return withContainer(ctx, open, func(sc *di.ServiceContainer) error {
				scheduler, err := sc.GetScheduler()
				if err != nil {
					return err
				}
				logger.Info(ctx, "Running job", map[string]interface{}{"job": args[0]})
				record, runErr := scheduler.RunNow(ctx, args[0])
				if record.Job != "" {
					if err := printResult(cmd, record); err != nil {
						return err
					}
				}
				return runErr
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", config.CLIJobTimeout, "Abort the job after this long")
	return cmd
}
