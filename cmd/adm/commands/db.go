// Package commands provides CLI commands for the admin tool
package commands

import (
	"dailyfeed/internal/config"
	"dailyfeed/internal/database"
	"dailyfeed/internal/observability"
	contextutils "dailyfeed/internal/utils"

	"github.com/spf13/cobra"
)

// DatabaseCommands returns the database management commands
func DatabaseCommands(cfg *config.Config, logger *observability.Logger) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
		Long: `Database management commands for the daily feed pipeline.

Available commands:
  migrate   - Apply pending schema migrations
  info      - Show which database the tool is connected to`,
	}

	dbCmd.AddCommand(migrateCmd(cfg, logger))
	dbCmd.AddCommand(infoCmd(cfg, logger))

	return dbCmd
}

func migrateCmd(cfg *config.Config, logger *observability.Logger) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			manager := database.NewManager(logger)
			db, err := manager.InitDBWithoutMigrations(cfg.Database)
			if err != nil {
				return contextutils.WrapError(err, "failed to connect to database")
			}
			defer func() { _ = db.Close() }()

			if path == "" {
				path = cfg.Database.MigrationsPath
			}
			if err := manager.RunMigrations(ctx, db, path); err != nil {
				logger.Error(ctx, "Migration failed", err, map[string]interface{}{"database": maskDatabaseURL(cfg.Database.URL)})
				return err
			}
			return printResult(cmd, map[string]interface{}{
				"database": maskDatabaseURL(cfg.Database.URL),
				"status":   "migrated",
			})
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "Migrations directory (defaults to database.migrations_path or ./migrations)")
	return cmd
}

func infoCmd(cfg *config.Config, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show database connection information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			db, err := database.NewManager(logger).InitDBWithoutMigrations(cfg.Database)
			if err != nil {
				return contextutils.WrapError(err, "failed to connect to database")
			}
			defer func() { _ = db.Close() }()

			return printResult(cmd, map[string]interface{}{
				"url":    maskDatabaseURL(cfg.Database.URL),
				"status": getDatabaseInfo(ctx, db),
			})
		},
	}
}
