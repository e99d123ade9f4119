//go:build integration

// Package dbtest starts a throwaway PostgreSQL container for integration tests.
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"dailyfeed/internal/config"
	"dailyfeed/internal/database"
	"dailyfeed/internal/observability"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	once      sync.Once
	sharedURL string
	initErr   error
)

// URL starts the shared container on first use and returns its connection URL
func URL(t *testing.T) string {
	t.Helper()
	once.Do(func() {
		sharedURL, initErr = startContainer()
	})
	if initErr != nil {
		t.Fatalf("dbtest: failed to start postgres: %v", initErr)
	}
	return sharedURL
}

// Open returns a migrated, otelsql-instrumented pool with every table truncated
func Open(t *testing.T) *sql.DB {
	t.Helper()

	cfg := config.DatabaseConfig{
		URL:             URL(t),
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Minute,
		MigrationsPath:  MigrationsPath(),
	}
	manager := database.NewManager(observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false}))
	db, err := manager.InitDB(cfg)
	if err != nil {
		t.Fatalf("dbtest: init db: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("dbtest: close db: %v", err)
		}
	})

	if _, err := db.Exec(`TRUNCATE notification_logs, daily_selections, answers, questions, topics, users RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("dbtest: truncate: %v", err)
	}
	return db
}

// MigrationsPath resolves the repository's migrations directory from this source file
func MigrationsPath() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "migrations")
}

func startContainer() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:17-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "dailyfeed",
			"POSTGRES_PASSWORD": "dailyfeed",
			"POSTGRES_DB":       "dailyfeed_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", fmt.Errorf("start container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return "", fmt.Errorf("get mapped port: %w", err)
	}

	return fmt.Sprintf("postgres://dailyfeed:dailyfeed@%s:%s/dailyfeed_test?sslmode=disable", host, port.Port()), nil
}
