package observability

import (
	"context"
	"errors"
	"testing"

	contextutils "dailyfeed/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogWithContextAddsTraceInfo(t *testing.T) {
	tp := trace.NewTracerProvider()
	tracer := tp.Tracer("test-tracer")

	core, observedLogs := observer.New(zap.InfoLevel)
	logger := &Logger{Logger: zap.New(core)}

	ctx, span := tracer.Start(context.Background(), "test-span")
	defer span.End()

	logger.Info(ctx, "test message", nil)

	entries := observedLogs.All()
	assert.Equal(t, 1, len(entries), "Expected 1 log entry")

	fields := entries[0].ContextMap()
	spanContext := span.SpanContext()
	assert.Equal(t, spanContext.TraceID().String(), fields["trace_id"])
	assert.Equal(t, spanContext.SpanID().String(), fields["span_id"])
}

func TestLogWithContextNoSpan(t *testing.T) {
	core, observedLogs := observer.New(zap.InfoLevel)
	logger := &Logger{Logger: zap.New(core)}

	logger.Info(context.Background(), "test message", nil)

	fields := observedLogs.All()[0].ContextMap()
	assert.NotContains(t, fields, "trace_id")
	assert.NotContains(t, fields, "span_id")
}

func TestLogWithContextAddsJobAndTask(t *testing.T) {
	core, observedLogs := observer.New(zap.InfoLevel)
	logger := &Logger{Logger: zap.New(core)}

	ctx := contextutils.WithTaskID(contextutils.WithJobName(context.Background(), "daily_flow"), "task-1")
	caller := map[string]interface{}{"topic_id": 3}
	logger.Error(ctx, "topic failed", errors.New("boom"), caller)

	entry := observedLogs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	fields := entry.ContextMap()
	assert.Equal(t, "daily_flow", fields["job"])
	assert.Equal(t, "task-1", fields["task_id"])
	assert.Equal(t, "boom", fields["error"])
	assert.Equal(t, "internal", fields["error_kind"])
	assert.Equal(t, int64(3), fields["topic_id"])

	// the caller's map must not pick up the correlation fields
	assert.NotContains(t, caller, "job")
	assert.NotContains(t, caller, "error")
}

func TestErrorLogsKind(t *testing.T) {
	core, observedLogs := observer.New(zap.InfoLevel)
	logger := &Logger{Logger: zap.New(core)}

	logger.Error(context.Background(), "push failed", contextutils.WrapError(contextutils.ErrPushUnavailable, "apns 503"), nil)
	logger.Error(context.Background(), "no error attached", nil)
	logger.Debug(context.Background(), "below level", map[string]interface{}{"dropped": true})

	entries := observedLogs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "transient_external", entries[0].ContextMap()["error_kind"])
	assert.NotContains(t, entries[1].ContextMap(), "error")
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLogLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, ParseLogLevel("warn"))
	assert.Equal(t, zapcore.InfoLevel, ParseLogLevel("bogus"))
}
