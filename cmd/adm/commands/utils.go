package commands

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"dailyfeed/internal/di"
	contextutils "dailyfeed/internal/utils"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// ContainerOpener builds an initialized service container. Callers shut it down.
type ContainerOpener func(ctx context.Context) (*di.ServiceContainer, error)

// withContainer opens a container for the duration of fn
func withContainer(ctx context.Context, open ContainerOpener, fn func(sc *di.ServiceContainer) error) error {
	sc, err := open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = sc.Shutdown(context.Background()) }()
	return fn(sc)
}

// printResult writes v to the command's output in the format chosen by --output
func printResult(cmd *cobra.Command, v interface{}) error {
	format, _ := cmd.Flags().GetString("output")
	out := cmd.OutOrStdout()

	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return contextutils.WrapErrorf(contextutils.ErrInvalidInput, "unknown output format %q (want yaml or json)", format)
	}
}

// maskDatabaseURL masks sensitive parts of the database URL for display
func maskDatabaseURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) == 2 {
			return "postgres://***:***@" + parts[1]
		}
	}
	return url
}

// getDatabaseInfo returns database connection information
func getDatabaseInfo(ctx context.Context, db *sql.DB) string {
	if db == nil {
		return "Not connected"
	}

	var dbName string
	if err := db.QueryRowContext(ctx, "SELECT current_database()").Scan(&dbName); err != nil {
		return "Connected (unknown database)"
	}

	var host sql.NullString
	if err := db.QueryRowContext(ctx, "SELECT inet_server_addr()::text").Scan(&host); err != nil || !host.Valid {
		return fmt.Sprintf("Connected to %s", dbName)
	}
	return fmt.Sprintf("Connected to %s on %s", dbName, host.String)
}
