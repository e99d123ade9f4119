// Package config handles application configuration loading from a YAML file
// with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	contextutils "dailyfeed/internal/utils"

	"gopkg.in/yaml.v3"
)

// ConfigFileEnv names the environment variable pointing at the YAML config file
const ConfigFileEnv = "DAILYFEED_CONFIG_FILE"

// Config holds all configuration for the application
type Config struct {
	// Admin HTTP server configuration
	Server ServerConfig `json:"server" yaml:"server"`

	// Database configuration
	Database DatabaseConfig `json:"database" yaml:"database"`

	// Pipeline behaviour shared by all jobs
	Pipeline PipelineConfig `json:"pipeline" yaml:"pipeline"`

	// Times of day for the fixed daily jobs
	Schedule ScheduleConfig `json:"schedule" yaml:"schedule"`

	// Text generation gateway
	Generation GenerationConfig `json:"generation" yaml:"generation"`

	// Push gateway
	Push PushConfig `json:"push" yaml:"push"`

	Cache CacheConfig `json:"cache" yaml:"cache"`

	// OpenTelemetry Configuration
	OpenTelemetry OpenTelemetryConfig `json:"open_telemetry" yaml:"open_telemetry"`

	// Internal fields
	IsTest bool `json:"is_test" yaml:"is_test"`
}

// ServerConfig represents the admin server configuration
type ServerConfig struct {
	Port       string `json:"port" yaml:"port" validate:"required"`
	AdminToken string `json:"admin_token" yaml:"admin_token"`
	Debug      bool   `json:"debug" yaml:"debug"`
	LogLevel   string `json:"log_level" yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	URL             string        `json:"url" yaml:"url"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`       // Maximum number of open connections to the database
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`       // Maximum number of idle connections in the pool
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"` // Maximum amount of time a connection may be reused
	MigrationsPath  string        `json:"migrations_path" yaml:"migrations_path"`
}

// PipelineConfig controls the daily flow
type PipelineConfig struct {
	// Timezone decides which calendar day "today" is
	Timezone string `json:"timezone" yaml:"timezone"`
	// BodyMaxLength is the question-text cutoff for notification bodies
	BodyMaxLength int `json:"body_max_length" yaml:"body_max_length" validate:"min=1"`
}

// ScheduleConfig holds HH:MM times for the fixed daily jobs
type ScheduleConfig struct {
	ResetStreaks     string        `json:"reset_streaks" yaml:"reset_streaks"`
	AnswerGeneration string        `json:"answer_generation" yaml:"answer_generation"`
	TokenCleanup     string        `json:"token_cleanup" yaml:"token_cleanup"`
	DailyFlow        string        `json:"daily_flow" yaml:"daily_flow"`
	CheckInterval    time.Duration `json:"check_interval" yaml:"check_interval"`
	HistorySize      int           `json:"history_size" yaml:"history_size" validate:"min=1"`
}

// GenerationConfig configures the text generation gateway and nightly batches
type GenerationConfig struct {
	Provider       string        `json:"provider" yaml:"provider" validate:"oneof=openai anthropic"`
	URL            string        `json:"url" yaml:"url"`
	APIKey         string        `json:"api_key" yaml:"api_key"`
	Model          string        `json:"model" yaml:"model" validate:"required"`
	MaxTokens      int           `json:"max_tokens" yaml:"max_tokens" validate:"min=1"`
	Temperature    float64       `json:"temperature" yaml:"temperature" validate:"gte=0,lte=2"`
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`
	MaxAttempts    int           `json:"max_attempts" yaml:"max_attempts" validate:"min=1,max=10"`
	BaseDelay      time.Duration `json:"base_delay" yaml:"base_delay"`
	BatchSize      int           `json:"batch_size" yaml:"batch_size" validate:"min=1"`
	BatchDelay     time.Duration `json:"batch_delay" yaml:"batch_delay"`
}

// PushConfig configures notification delivery
type PushConfig struct {
	Provider    string         `json:"provider" yaml:"provider" validate:"oneof=apns telegram log"`
	BatchSize   int            `json:"batch_size" yaml:"batch_size" validate:"min=1,max=500"`
	Concurrency int            `json:"concurrency" yaml:"concurrency" validate:"min=1"`
	SendTimeout time.Duration  `json:"send_timeout" yaml:"send_timeout"`
	APNS        APNSConfig     `json:"apns" yaml:"apns"`
	Telegram    TelegramConfig `json:"telegram" yaml:"telegram"`
}

// APNSConfig holds token-based APNs credentials
type APNSConfig struct {
	KeyPath    string `json:"key_path" yaml:"key_path"`
	KeyID      string `json:"key_id" yaml:"key_id"`
	TeamID     string `json:"team_id" yaml:"team_id"`
	Topic      string `json:"topic" yaml:"topic"`
	Production bool   `json:"production" yaml:"production"`
}

// TelegramConfig holds the bot token used when push tokens are chat ids
type TelegramConfig struct {
	Token string `json:"token" yaml:"token"`
}

// CacheConfig controls in-process read caches
type CacheConfig struct {
	TopicsTTL time.Duration `json:"topics_ttl" yaml:"topics_ttl"`
}

// OpenTelemetryConfig holds all OpenTelemetry-related configuration
type OpenTelemetryConfig struct {
	Endpoint       string            `json:"endpoint" yaml:"endpoint"`               // Default: "localhost:4317"
	Protocol       string            `json:"protocol" yaml:"protocol"`               // "grpc" or "http", default: "grpc"
	Insecure       bool              `json:"insecure" yaml:"insecure"`               // Default: true (for localhost)
	Headers        map[string]string `json:"headers" yaml:"headers"`                 // For authenticated endpoints
	ServiceName    string            `json:"service_name" yaml:"service_name"`       // Default: "dailyfeed-worker"
	ServiceVersion string            `json:"service_version" yaml:"service_version"` // From version package
	EnableTracing  bool              `json:"enable_tracing" yaml:"enable_tracing"`
	EnableMetrics  bool              `json:"enable_metrics" yaml:"enable_metrics"`
	EnableLogging  bool              `json:"enable_logging" yaml:"enable_logging"`
	UseAutoSDK     bool              `json:"use_auto_sdk" yaml:"use_auto_sdk"`
	SamplingRate   float64           `json:"sampling_rate" yaml:"sampling_rate"` // Default: 1.0 (100%)
}

// NewConfig loads configuration from YAML file first, then overrides with environment variables
func NewConfig() (result0 *Config, err error) {
	config, err := loadConfigWithOverrides()
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrConfigInvalid, "failed to load config: %w", err)
	}

	config.overrideFromEnv()
	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// ApplyDefaults fills every unset field with its default
func (c *Config) ApplyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}

	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = DatabaseConnMaxLifetime
	}

	if c.Pipeline.Timezone == "" {
		c.Pipeline.Timezone = "UTC"
	}
	if c.Pipeline.BodyMaxLength == 0 {
		c.Pipeline.BodyMaxLength = DefaultBodyMaxLength
	}

	if c.Schedule.ResetStreaks == "" {
		c.Schedule.ResetStreaks = "00:00"
	}
	if c.Schedule.AnswerGeneration == "" {
		c.Schedule.AnswerGeneration = "02:00"
	}
	if c.Schedule.TokenCleanup == "" {
		c.Schedule.TokenCleanup = "03:00"
	}
	if c.Schedule.DailyFlow == "" {
		c.Schedule.DailyFlow = "05:00"
	}
	if c.Schedule.CheckInterval == 0 {
		c.Schedule.CheckInterval = SchedulerCheckInterval
	}
	if c.Schedule.HistorySize == 0 {
		c.Schedule.HistorySize = DefaultRunHistorySize
	}

	if c.Generation.Provider == "" {
		c.Generation.Provider = "openai"
	}
	if c.Generation.Model == "" {
		c.Generation.Model = DefaultGenerationModel
	}
	if c.Generation.MaxTokens == 0 {
		c.Generation.MaxTokens = DefaultGenerationMaxTokens
	}
	if c.Generation.Temperature == 0 {
		c.Generation.Temperature = DefaultGenerationTemperature
	}
	if c.Generation.RequestTimeout == 0 {
		c.Generation.RequestTimeout = GenerationRequestTimeout
	}
	if c.Generation.MaxAttempts == 0 {
		c.Generation.MaxAttempts = DefaultGenerationMaxAttempts
	}
	if c.Generation.BaseDelay == 0 {
		c.Generation.BaseDelay = DefaultGenerationBaseDelay
	}
	if c.Generation.BatchSize == 0 {
		c.Generation.BatchSize = DefaultGenerationBatchSize
	}
	if c.Generation.BatchDelay == 0 {
		c.Generation.BatchDelay = DefaultGenerationBatchDelay
	}

	if c.Push.Provider == "" {
		c.Push.Provider = "log"
	}
	if c.Push.BatchSize == 0 {
		c.Push.BatchSize = DefaultPushBatchSize
	}
	if c.Push.Concurrency == 0 {
		c.Push.Concurrency = DefaultPushConcurrency
	}
	if c.Push.SendTimeout == 0 {
		c.Push.SendTimeout = PushSendTimeout
	}

	if c.Cache.TopicsTTL == 0 {
		c.Cache.TopicsTTL = DefaultTopicsCacheTTL
	}

	if c.OpenTelemetry.Protocol == "" {
		c.OpenTelemetry.Protocol = "grpc"
	}
	if c.OpenTelemetry.ServiceName == "" {
		c.OpenTelemetry.ServiceName = "dailyfeed-worker"
	}
	if c.OpenTelemetry.SamplingRate == 0 {
		c.OpenTelemetry.SamplingRate = 1.0
	}
}

// Validate checks struct tags plus cross-field rules the tags cannot express
func (c *Config) Validate() error {
	if err := contextutils.ValidateStruct(c); err != nil {
		return err
	}

	for name, value := range c.Schedule.Times() {
		if _, _, err := ParseClock(value); err != nil {
			return contextutils.WrapErrorf(contextutils.ErrValidationFailed, "schedule.%s: %v", name, err)
		}
	}

	if _, err := time.LoadLocation(c.Pipeline.Timezone); err != nil {
		return contextutils.WrapErrorf(contextutils.ErrValidationFailed, "pipeline.timezone %q: %v", c.Pipeline.Timezone, err)
	}

	switch c.Push.Provider {
	case "apns":
		if c.Push.APNS.KeyPath == "" || c.Push.APNS.KeyID == "" || c.Push.APNS.TeamID == "" || c.Push.APNS.Topic == "" {
			return contextutils.WrapError(contextutils.ErrValidationFailed, "push.apns requires key_path, key_id, team_id and topic")
		}
	case "telegram":
		if c.Push.Telegram.Token == "" {
			return contextutils.WrapError(contextutils.ErrValidationFailed, "push.telegram.token is required")
		}
	}

	return nil
}

// Times returns the configured job times keyed by their yaml names
func (s ScheduleConfig) Times() map[string]string {
	return map[string]string{
		"reset_streaks":     s.ResetStreaks,
		"answer_generation": s.AnswerGeneration,
		"token_cleanup":     s.TokenCleanup,
		"daily_flow":        s.DailyFlow,
	}
}

// ParseClock parses an HH:MM time of day
func ParseClock(value string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q, expected HH:MM", value)
	}
	return t.Hour(), t.Minute(), nil
}

// overrideFromEnv overrides config values with environment variables using reflection
func (c *Config) overrideFromEnv() {
	overrideStructFromEnv(c)
}

// overrideStructFromEnv recursively overrides struct fields with environment variables
func overrideStructFromEnv(v interface{}) {
	overrideStructFromEnvWithPrefix(v, "")
}

var durationType = reflect.TypeOf(time.Duration(0))

// overrideStructFromEnvWithPrefix recursively overrides struct fields with environment variables.
// The variable name is the upper-cased yaml path joined by underscores, e.g. PUSH_APNS_KEY_ID.
func overrideStructFromEnvWithPrefix(v interface{}, prefix string) {
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	if val.Kind() != reflect.Struct {
		return
	}

	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		if !field.CanSet() {
			continue
		}

		yamlTag := strings.Split(fieldType.Tag.Get("yaml"), ",")[0]
		if yamlTag == "" || yamlTag == "-" {
			continue
		}

		envKey := strings.ToUpper(strings.ReplaceAll(yamlTag, "-", "_"))
		if prefix != "" {
			envKey = prefix + "_" + envKey
		}

		if field.Type() == durationType {
			if envVal := os.Getenv(envKey); envVal != "" {
				if d, err := time.ParseDuration(envVal); err == nil {
					field.SetInt(int64(d))
				}
			}
			continue
		}

		switch field.Kind() {
		case reflect.String:
			if envVal := os.Getenv(envKey); envVal != "" {
				field.SetString(envVal)
			}
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if envVal := os.Getenv(envKey); envVal != "" {
				if intVal, err := strconv.ParseInt(envVal, 10, 64); err == nil {
					field.SetInt(intVal)
				}
			}
		case reflect.Float32, reflect.Float64:
			if envVal := os.Getenv(envKey); envVal != "" {
				if floatVal, err := strconv.ParseFloat(envVal, 64); err == nil {
					field.SetFloat(floatVal)
				}
			}
		case reflect.Bool:
			if envVal := os.Getenv(envKey); envVal != "" {
				if boolVal, err := strconv.ParseBool(envVal); err == nil {
					field.SetBool(boolVal)
				}
			}
		case reflect.Slice:
			if envVal := os.Getenv(envKey); envVal != "" {
				if field.Type().Elem().Kind() == reflect.String {
					field.Set(reflect.ValueOf(strings.Split(envVal, ",")))
				}
			}
		case reflect.Struct:
			if field.CanAddr() {
				overrideStructFromEnvWithPrefix(field.Addr().Interface(), envKey)
			}
		}
	}
}

// loadConfigWithOverrides loads the config file named by DAILYFEED_CONFIG_FILE, or config.yaml.
// A missing default config.yaml is not an error: defaults and env carry the whole configuration.
func loadConfigWithOverrides() (result0 *Config, err error) {
	if envPath := os.Getenv(ConfigFileEnv); envPath != "" {
		config, err := loadConfigFromFile(envPath)
		if err != nil {
			return nil, contextutils.WrapErrorf(contextutils.ErrConfigInvalid, "failed to load config from %s: %w", envPath, err)
		}
		return config, nil
	}

	config, err := loadConfigFromFile("config.yaml")
	if os.IsNotExist(err) {
		return &Config{}, nil
	}
	return config, err
}

// loadConfigFromFile loads configuration from a specific file
func loadConfigFromFile(path string) (result0 *Config, err error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(yamlFile, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
