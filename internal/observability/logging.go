// Package observability wires the worker's telemetry: a zap Logger that tags
// every line with the active trace, job and task, span helpers for each
// pipeline area (orchestrator, dispatcher, generator, gateways, worker,
// handlers, database), the PipelineMetrics instruments, and the OTLP
// providers that export all three.
package observability

import (
	"context"
	"os"

	"dailyfeed/internal/config"
	contextutils "dailyfeed/internal/utils"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const defaultLoggerName = "dailyfeed"

// Logger wraps zap with context-aware helpers taking map fields
type Logger struct {
	*zap.Logger
}

// NewLogger creates an info-level logger
func NewLogger(cfg *config.OpenTelemetryConfig) *Logger {
	return NewLoggerWithLevel(cfg, zap.InfoLevel)
}

// NewLoggerWithLevel builds a JSON stdout logger and, when an endpoint is
// configured, tees it into an OTLP log exporter. Disabled logging yields a no-op logger.
func NewLoggerWithLevel(cfg *config.OpenTelemetryConfig, level zapcore.Level) *Logger {
	if cfg == nil || !cfg.EnableLogging {
		return &Logger{Logger: zap.NewNop()}
	}

	zapLogger := newConsoleLogger(level)
	if cfg.Endpoint == "" {
		zapLogger.Info("OTLP log export disabled, logging to stdout only")
		return &Logger{Logger: zapLogger}
	}

	otelCore, err := newOTLPCore(cfg)
	if err != nil {
		zapLogger.Error("OTLP log export unavailable, logging to stdout only",
			zap.Error(err), zap.String("endpoint", cfg.Endpoint))
		return &Logger{Logger: zapLogger}
	}
	zapLogger = zap.New(zapcore.NewTee(zapLogger.Core(), otelCore))
	zapLogger.Info("OTLP log export configured", zap.String("endpoint", cfg.Endpoint))
	return &Logger{Logger: zapLogger}
}

func newConsoleLogger(level zapcore.Level) *zap.Logger {
	zapConfig := zap.NewProductionConfig()
	if os.Getenv("ENV") == "development" {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig.EncoderConfig.TimeKey = "timestamp"
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		zapConfig.EncoderConfig.StacktraceKey = "stacktrace"
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)

	zapLogger, err := zapConfig.Build()
	if err != nil {
		return zap.NewExample()
	}
	return zapLogger
}

func newOTLPCore(cfg *config.OpenTelemetryConfig) (zapcore.Core, error) {
	ctx := context.Background()
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to create otel resource")
	}

	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlploggrpc.WithHeaders(cfg.Headers))
	}
	exporter, err := otlploggrpc.New(ctx, opts...)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to create OTLP log exporter")
	}

	provider := log.NewLoggerProvider(
		log.WithProcessor(log.NewBatchProcessor(exporter)),
		log.WithResource(res),
	)
	name := cfg.ServiceName
	if name == "" {
		name = defaultLoggerName
	}
	return otelzap.NewCore(name, otelzap.WithLoggerProvider(provider)), nil
}

// Debug logs a debug message with context
func (l *Logger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.logWithContext(ctx, zap.DebugLevel, msg, fields...)
}

// Info logs an info message with context
func (l *Logger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.logWithContext(ctx, zap.InfoLevel, msg, fields...)
}

// Warn logs a warning message with context
func (l *Logger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.logWithContext(ctx, zap.WarnLevel, msg, fields...)
}

// Error logs err with its message and error kind
func (l *Logger) Error(ctx context.Context, msg string, err error, fields ...map[string]interface{}) {
	if err == nil {
		l.logWithContext(ctx, zap.ErrorLevel, msg, fields...)
		return
	}
	errFields := map[string]interface{}{
		"error":      err.Error(),
		"error_kind": contextutils.KindOf(err).String(),
	}
	l.logWithContext(ctx, zap.ErrorLevel, msg, append(fields, errFields)...)
}

// logWithContext adds job, task and trace correlation, then writes the entry
// if the level is enabled
func (l *Logger) logWithContext(ctx context.Context, level zapcore.Level, msg string, fields ...map[string]interface{}) {
	entry := l.Logger.Check(level, msg)
	if entry == nil {
		return
	}

	merged := mergeFields(fields...)
	if job := contextutils.GetJobNameFromContext(ctx); job != "" {
		if _, exists := merged["job"]; !exists {
			merged["job"] = job
		}
	}
	if taskID := contextutils.GetTaskIDFromContext(ctx); taskID != "" {
		merged["task_id"] = taskID
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		merged["trace_id"] = sc.TraceID().String()
		merged["span_id"] = sc.SpanID().String()
	}

	zapFields := make([]zap.Field, 0, len(merged))
	for k, v := range merged {
		zapFields = append(zapFields, zap.Any(k, v))
	}
	entry.Write(zapFields...)
}

// mergeFields copies every non-nil map into a new one; later maps win
func mergeFields(fields ...map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, 8)
	for _, fieldMap := range fields {
		for k, v := range fieldMap {
			merged[k] = v
		}
	}
	return merged
}

// Sync flushes any buffered log entries
func (l *Logger) Sync() error {
	return l.Logger.Sync()
}

// ParseLogLevel maps a config log level to a zap level, defaulting to info
func ParseLogLevel(level string) zapcore.Level {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zap.InfoLevel
	}
	return l
}
