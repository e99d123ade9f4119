package config

import "time"

// Timeout constants
const (
	// HTTP timeouts
	DefaultHTTPTimeout      = 60 * time.Second
	ServerShutdownTimeout   = 10 * time.Second
	WorkerShutdownTimeout   = 30 * time.Second
	CLIJobTimeout           = 30 * time.Minute
	ServerReadHeaderTimeout = 10 * time.Second

	// Database timeouts
	DatabaseConnMaxLifetime = 5 * time.Minute

	// Scheduler
	SchedulerCheckInterval = 30 * time.Second

	// A dispatch claim older than this with no delivery logs is treated as
	// abandoned by a crashed run and may be claimed again
	DispatchClaimLease = 30 * time.Minute

	// External calls
	GenerationRequestTimeout = 60 * time.Second
	PushSendTimeout          = 30 * time.Second
)

// Pipeline defaults
const (
	DefaultServerPort     = "8081"
	DefaultBodyMaxLength  = 100
	DefaultRunHistorySize = 50
	DefaultTopicsCacheTTL = 5 * time.Minute

	DefaultGenerationModel       = "gpt-4o-mini"
	DefaultGenerationMaxTokens   = 800
	DefaultGenerationTemperature = 0.7
	DefaultGenerationMaxAttempts = 3
	DefaultGenerationBaseDelay   = 1 * time.Second
	DefaultGenerationBatchSize   = 10
	DefaultGenerationBatchDelay  = 2 * time.Second

	// Matches the usual push-gateway multicast cap
	DefaultPushBatchSize   = 500
	DefaultPushConcurrency = 20
)

// Notification history paging
const (
	DefaultHistoryPageSize = 20
	MaxHistoryPageSize     = 100
	// Keeps (page-1)*limit well inside int64 and the Postgres OFFSET range
	MaxHistoryPage = 1_000_000
)
