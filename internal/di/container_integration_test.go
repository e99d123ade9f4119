//go:build integration

package di

import (
	"context"
	"testing"

	"dailyfeed/internal/config"
	"dailyfeed/internal/database/dbtest"
	"dailyfeed/internal/observability"
	"dailyfeed/internal/worker"

	"github.com/stretchr/testify/suite"
)

// ServiceContainerIntegrationTestSuite runs the container against a real Postgres
type ServiceContainerIntegrationTestSuite struct {
	suite.Suite
	Container *ServiceContainer
}

func TestServiceContainerIntegrationTestSuite(t *testing.T) {
	suite.Run(t, new(ServiceContainerIntegrationTestSuite))
}

func (s *ServiceContainerIntegrationTestSuite) SetupTest() {
	// truncates every table and leaves the schema migrated
	dbtest.Open(s.T())

	cfg := testConfig()
	cfg.Database.URL = dbtest.URL(s.T())
	cfg.Database.MigrationsPath = dbtest.MigrationsPath()

	s.Container = NewServiceContainer(cfg, observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false}))
	s.Require().NoError(s.Container.Initialize(context.Background()))
}

func (s *ServiceContainerIntegrationTestSuite) TearDownTest() {
	s.Require().NoError(s.Container.Shutdown(context.Background()))
}

func (s *ServiceContainerIntegrationTestSuite) TestDatabaseIsReachable() {
	db := s.Container.GetDatabase()
	s.Require().NotNil(db)
	s.Require().NoError(db.PingContext(context.Background()))
	s.NotNil(s.Container.GetDatabaseManager())
}

func (s *ServiceContainerIntegrationTestSuite) TestDailyFlowAgainstPostgres() {
	ctx := context.Background()
	db := s.Container.GetDatabase()

	var topicID int64
	s.Require().NoError(db.QueryRowContext(ctx, `INSERT INTO topics (name) VALUES ('Networking') RETURNING id`).Scan(&topicID))
	_, err := db.ExecContext(ctx, `INSERT INTO questions (topic_id, text) VALUES ($1, 'What is a TCP half-open connection?')`, topicID)
	s.Require().NoError(err)
	_, err = db.ExecContext(ctx, `INSERT INTO users (subscribed_topic_ids, push_token) VALUES (ARRAY[$1]::bigint[], 'tok-a'), (ARRAY[$1]::bigint[], NULL)`, topicID)
	s.Require().NoError(err)

	scheduler, err := s.Container.GetScheduler()
	s.Require().NoError(err)

	record, err := scheduler.RunNow(ctx, worker.JobDailyFlow)
	s.Require().NoError(err)
	s.Equal("Success", record.Status)

	// a replay the same day must not create a second selection or resend
	_, err = scheduler.RunNow(ctx, worker.JobDailyFlow)
	s.Require().NoError(err)

	var selections, logs int
	s.Require().NoError(db.QueryRowContext(ctx, `SELECT COUNT(*) FROM daily_selections`).Scan(&selections))
	s.Require().NoError(db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notification_logs`).Scan(&logs))
	s.Equal(1, selections)
	s.Equal(1, logs)

	orchestrator, err := s.Container.GetDailyOrchestrator()
	s.Require().NoError(err)
	stats, err := orchestrator.GetDailyStats(ctx, "")
	s.Require().NoError(err)
	s.Equal(1, stats.TopicsWithContent)
	s.Equal(1, stats.TotalNotificationsSent)
}
