package observability

import (
	"context"
	"errors"
	"testing"

	"dailyfeed/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

func TestSetupObservability_NoneEnabled(t *testing.T) {
	cfg := &config.OpenTelemetryConfig{
		ServiceName: "test-service",
		Protocol:    "grpc",
		Endpoint:    "localhost:4317",
		Insecure:    true,
	}
	tp, mp, logger, err := SetupObservability(cfg, "test-service", zap.InfoLevel)
	require.NoError(t, err)
	require.Nil(t, tp)
	require.Nil(t, mp)
	require.NotNil(t, logger) // Logger is always returned (no-op when disabled)
}

func TestSetupObservability_StandardSDK(t *testing.T) {
	cfg := &config.OpenTelemetryConfig{
		EnableTracing:  true,
		ServiceName:    "test-service",
		ServiceVersion: "1.0.0",
		Protocol:       "grpc",
		Endpoint:       "localhost:4317",
		Insecure:       true,
		SamplingRate:   1.0,
	}
	tp, _, logger, err := SetupObservability(cfg, "test-service", zap.InfoLevel)
	require.NoError(t, err)
	require.NotNil(t, logger)

	_, isStandardSDK := tp.(*sdktrace.TracerProvider)
	require.True(t, isStandardSDK, "Expected standard SDK TracerProvider when UseAutoSDK is false")
}

func TestInitStandardTracing_Protocols(t *testing.T) {
	for _, protocol := range []string{"grpc", "http"} {
		cfg := &config.OpenTelemetryConfig{
			ServiceName:  "test-service",
			Protocol:     protocol,
			Endpoint:     "localhost:4318",
			Insecure:     true,
			SamplingRate: 0.5,
		}
		tp, err := InitStandardTracing(cfg)
		require.NoError(t, err, protocol)
		_, ok := tp.(*sdktrace.TracerProvider)
		require.True(t, ok, "Expected *sdktrace.TracerProvider")
	}
}

func TestInitStandardTracing_InvalidProtocol(t *testing.T) {
	cfg := &config.OpenTelemetryConfig{Protocol: "invalid", SamplingRate: 1.0}
	tp, err := InitStandardTracing(cfg)
	require.Error(t, err)
	require.Nil(t, tp)
	require.Contains(t, err.Error(), "unsupported otel protocol")
}

func TestPipelineMetrics_Records(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewPipelineMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordDelivery(ctx, 7, 2)
	m.RecordGeneration(ctx, true)
	m.RecordGeneration(ctx, false)
	m.RecordRetry(ctx)
	m.RecordJobRun(ctx, "daily_flow", errors.New("x"))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			if sum, ok := metric.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					totals[metric.Name] += dp.Value
				}
			}
		}
	}

	assert.Equal(t, int64(7), totals["dailyfeed.notifications.sent"])
	assert.Equal(t, int64(2), totals["dailyfeed.notifications.failed"])
	assert.Equal(t, int64(1), totals["dailyfeed.answers.generated"])
	assert.Equal(t, int64(1), totals["dailyfeed.answers.failed"])
	assert.Equal(t, int64(1), totals["dailyfeed.generation.retries"])
	assert.Equal(t, int64(1), totals["dailyfeed.job.runs"])
}

func TestPipelineMetrics_NilSafe(t *testing.T) {
	var m *PipelineMetrics
	assert.NotPanics(t, func() {
		m.RecordDelivery(context.Background(), 1, 1)
		m.RecordJobRun(context.Background(), "x", nil)
	})
	assert.NotNil(t, NewNoopPipelineMetrics())
}
