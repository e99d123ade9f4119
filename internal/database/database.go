// Package database provides database connection and migration functionality.
package database

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"dailyfeed/internal/config"
	"dailyfeed/internal/observability"
	contextutils "dailyfeed/internal/utils"

	// Import PostgreSQL driver for database/sql
	_ "github.com/lib/pq"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file" // required for golang-migrate file source

	// OpenTelemetry SQL instrumentation
	"go.nhat.io/otelsql"

	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// Manager handles database operations with proper logging
type Manager struct {
	logger *observability.Logger
}

var (
	otelDriverNameCache string
	otelDriverOnce      sync.Once
	otelDriverErr       error
)

// NewManager creates a new database manager with the provided logger
func NewManager(logger *observability.Logger) *Manager {
	return &Manager{
		logger: logger,
	}
}

// InitDB opens the pool and applies pending migrations
func (dm *Manager) InitDB(cfg config.DatabaseConfig) (result0 *sql.DB, err error) {
	ctx, span := observability.TraceDatabaseFunction(context.Background(), "InitDB",
		attribute.String("db.name", extractDatabaseName(cfg.URL)),
		attribute.String("db.system", "postgresql"),
		attribute.Int("db.max_open_conns", cfg.MaxOpenConns),
		attribute.Int("db.max_idle_conns", cfg.MaxIdleConns),
	)
	defer observability.FinishSpan(span, &err)

	db, err := dm.InitDBWithoutMigrations(cfg)
	if err != nil {
		return nil, err
	}

	if err := dm.RunMigrations(ctx, db, cfg.MigrationsPath); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			dm.logger.Error(ctx, "Failed to close database after migration failure", closeErr)
		}
		return nil, err
	}

	return db, nil
}

// extractDatabaseName extracts the database name from a PostgreSQL connection string
func extractDatabaseName(databaseURL string) string {
	// url.Parse also accepts a key=value DSN, as a scheme-less path
	if u, err := url.Parse(databaseURL); err == nil && u.Scheme != "" {
		dbName := strings.TrimPrefix(u.Path, "/")
		if dbName != "" {
			return dbName
		}
		return "dailyfeed"
	}

	// key=value DSN form: dbname=foo
	for _, part := range strings.Fields(databaseURL) {
		if strings.HasPrefix(part, "dbname=") {
			return strings.TrimPrefix(part, "dbname=")
		}
	}

	return "dailyfeed"
}

// InitDBWithoutMigrations initializes and returns a database connection without running migrations
func (dm *Manager) InitDBWithoutMigrations(cfg config.DatabaseConfig) (result0 *sql.DB, err error) {
	ctx, span := observability.TraceDatabaseFunction(context.Background(), "InitDBWithoutMigrations",
		attribute.String("db.name", extractDatabaseName(cfg.URL)),
	)
	defer observability.FinishSpan(span, &err)

	if cfg.URL == "" {
		return nil, contextutils.WrapError(contextutils.ErrConfigInvalid, "database url is empty")
	}

	// Register OpenTelemetry SQL driver once per process and reuse the name
	otelDriverOnce.Do(func() {
		otelDriverNameCache, otelDriverErr = otelsql.Register("postgres",
			otelsql.WithDatabaseName(extractDatabaseName(cfg.URL)),
			otelsql.TraceQueryWithArgs(),
			otelsql.WithSystem(semconv.DBSystemPostgreSQL),
			otelsql.TraceRowsAffected(),
		)
	})
	if otelDriverErr != nil {
		return nil, contextutils.WrapError(otelDriverErr, "failed to register otelsql driver")
	}

	db, err := sql.Open(otelDriverNameCache, cfg.URL)
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseConnection, "failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			dm.logger.Error(ctx, "Failed to close database connection after ping failure", closeErr)
		}
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseConnection, "failed to ping database: %w", err)
	}

	dm.logger.Info(ctx, "Database connection established", map[string]interface{}{
		"max_open_conns":    cfg.MaxOpenConns,
		"max_idle_conns":    cfg.MaxIdleConns,
		"conn_max_lifetime": cfg.ConnMaxLifetime.String(),
	})

	return db, nil
}

// RunMigrations applies every pending golang-migrate migration over an open pool.
// An empty migrationsPath searches upward from the working directory for "migrations".
func (dm *Manager) RunMigrations(ctx context.Context, db *sql.DB, migrationsPath string) (err error) {
	if migrationsPath == "" {
		migrationsPath, err = GetMigrationsPath()
		if err != nil {
			return err
		}
	}

	ctx, span := observability.TraceDatabaseFunction(ctx, "RunMigrations",
		attribute.String("db.system", "postgresql"),
		attribute.String("migration.path", migrationsPath),
	)
	defer observability.FinishSpan(span, &err)

	absPath, err := filepath.Abs(migrationsPath)
	if err != nil {
		return contextutils.WrapError(err, "failed to resolve migrations path")
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return contextutils.WrapErrorf(contextutils.ErrDatabaseConnection, "failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+filepath.ToSlash(absPath), "postgres", driver)
	if err != nil {
		return contextutils.WrapError(err, "failed to initialize golang-migrate")
	}

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "golang-migrate up failed: %w", err)
	}

	version, dirty, verr := m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		dm.logger.Warn(ctx, "Could not read migration version", map[string]interface{}{"error": verr.Error()})
	}

	if errors.Is(err, migrate.ErrNoChange) {
		dm.logger.Info(ctx, "No new migrations to apply", map[string]interface{}{"version": version, "dirty": dirty})
	} else {
		dm.logger.Info(ctx, "Migrations applied successfully", map[string]interface{}{"version": version, "dirty": dirty})
	}
	return nil
}

// GetMigrationsPath returns the path to the migrations directory
func GetMigrationsPath() (string, error) {
	currentDir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		migrationsPath := filepath.Join(currentDir, "migrations")
		if info, statErr := os.Stat(migrationsPath); statErr == nil && info.IsDir() {
			return migrationsPath, nil
		}

		parent := filepath.Dir(currentDir)
		if parent == currentDir {
			return "", contextutils.ErrorWithContextf("migrations directory not found in any parent directory")
		}
		currentDir = parent
	}
}
