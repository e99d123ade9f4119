// Package main provides the admin CLI for the daily feed pipeline.
package main

import (
	"context"
	"fmt"
	"os"

	"dailyfeed/cmd/adm/commands"
	"dailyfeed/internal/config"
	"dailyfeed/internal/di"
	"dailyfeed/internal/observability"
	"dailyfeed/internal/version"

	"github.com/spf13/cobra"
)

func main() {
	if os.Getenv("DAILYFEED_CONFIG_FILE") == "" {
		for _, path := range []string{"config.yaml", "../config.yaml", "../../config.yaml"} {
			if _, err := os.Stat(path); err == nil {
				if err := os.Setenv("DAILYFEED_CONFIG_FILE", path); err != nil {
					fmt.Fprintf(os.Stderr, "Failed to set DAILYFEED_CONFIG_FILE: %v\n", err)
					os.Exit(1)
				}
				break
			}
		}
	}

	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// The CLI logs to stderr only and never exports telemetry
	cfg.OpenTelemetry.EnableTracing = false
	cfg.OpenTelemetry.EnableMetrics = false
	cfg.OpenTelemetry.EnableLogging = false

	_, _, logger, err := observability.SetupObservability(&cfg.OpenTelemetry, "dailyfeed-adm", observability.ParseLogLevel("error"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize observability: %v\n", err)
		os.Exit(1)
	}

	open := func(ctx context.Context) (*di.ServiceContainer, error) {
		sc := di.NewServiceContainer(cfg, logger)
		if err := sc.Initialize(ctx); err != nil {
			return nil, err
		}
		return sc, nil
	}

	rootCmd := newRootCmd(cfg, logger, open)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(cfg *config.Config, logger *observability.Logger, open commands.ContainerOpener) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "adm",
		Short: "Daily feed administration tool",
		Long: `Daily feed administration tool

Runs migrations, runs pipeline jobs synchronously and prints statistics
against the database named in the configuration.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				fmt.Printf("Error showing help: %v\n", err)
			}
		},
	}
	rootCmd.PersistentFlags().StringP("output", "o", "yaml", "Output format: yaml or json")

	rootCmd.AddCommand(commands.DatabaseCommands(cfg, logger))
	rootCmd.AddCommand(commands.JobCommands(open, logger))
	rootCmd.AddCommand(commands.StatsCommands(open))
	rootCmd.AddCommand(commands.QuestionCommands(open))
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Get("dailyfeed-adm").String())
		},
	})
	return rootCmd
}
