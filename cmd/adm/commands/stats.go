package commands

import (
	"dailyfeed/internal/di"

	"github.com/spf13/cobra"
)

// StatsCommands returns the read-only reporting commands
func StatsCommands(open ContainerOpener) *cobra.Command {
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Pipeline statistics",
		Long: `Pipeline statistics.

Available commands:
  daily       - Selections and notifications for a date
  generation  - Answer coverage
  delivery    - Notification outcomes for one selection`,
	}

	statsCmd.AddCommand(dailyStatsCmd(open))
	statsCmd.AddCommand(generationStatsCmd(open))
	statsCmd.AddCommand(deliveryStatsCmd(open))
	return statsCmd
}

func dailyStatsCmd(open ContainerOpener) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "daily",
		Short: "Show selections and notification totals for a date",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withContainer(cmd.Context(), open, func(sc *di.ServiceContainer) error {
				orchestrator, err := sc.GetDailyOrchestrator()
				if err != nil {
					return err
				}
				stats, err := orchestrator.GetDailyStats(cmd.Context(), date)
				if err != nil {
					return err
				}
				return printResult(cmd, stats)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Calendar date YYYY-MM-DD (defaults to today in the pipeline time zone)")
	return cmd
}

func generationStatsCmd(open ContainerOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "generation",
		Short: "Show answer coverage",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withContainer(cmd.Context(), open, func(sc *di.ServiceContainer) error {
				generator, err := sc.GetAnswerGenerator()
				if err != nil {
					return err
				}
				stats, err := generator.GetGenerationStats(cmd.Context())
				if err != nil {
					return err
				}
				return printResult(cmd, stats)
			})
		},
	}
}

func deliveryStatsCmd(open ContainerOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "delivery <selection-id>",
		Short: "Show notification counts by status for one selection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			selectionID, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withContainer(cmd.Context(), open, func(sc *di.ServiceContainer) error {
				dispatcher, err := sc.GetNotificationDispatcher()
				if err != nil {
					return err
				}
				stats, err := dispatcher.GetDeliveryStats(cmd.Context(), selectionID)
				if err != nil {
					return err
				}
				return printResult(cmd, stats)
			})
		},
	}
}
