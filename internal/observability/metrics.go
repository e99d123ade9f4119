package observability

import (
	"context"

	"dailyfeed/internal/config"
	contextutils "dailyfeed/internal/utils"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// InitMetrics initializes OpenTelemetry metrics
func InitMetrics(cfg *config.OpenTelemetryConfig) (result0 *sdkmetric.MeterProvider, err error) {
	ctx := context.Background()

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to create otel resource: %w", err)
	}

	var exporter sdkmetric.Exporter
	switch cfg.Protocol {
	case "grpc":
		opts := []otlpmetricgrpc.Option{
			otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
			otlpmetricgrpc.WithHeaders(cfg.Headers),
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		exp, err := otlpmetricgrpc.New(ctx, opts...)
		if err != nil {
			return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to create otlp grpc metric exporter: %w", err)
		}
		exporter = exp
	case "http":
		opts := []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpoint(cfg.Endpoint),
			otlpmetrichttp.WithHeaders(cfg.Headers),
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		exp, err := otlpmetrichttp.New(ctx, opts...)
		if err != nil {
			return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to create otlp http metric exporter: %w", err)
		}
		exporter = exp
	default:
		return nil, contextutils.WrapErrorf(contextutils.ErrConfigInvalid, "unsupported otel protocol: %s", cfg.Protocol)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	)
	return mp, nil
}

// PipelineMetrics holds the counters the pipeline reports
type PipelineMetrics struct {
	notificationsSent   metric.Int64Counter
	notificationsFailed metric.Int64Counter
	answersGenerated    metric.Int64Counter
	generationFailures  metric.Int64Counter
	generationRetries   metric.Int64Counter
	jobRuns             metric.Int64Counter
}

// NewPipelineMetrics registers the pipeline counters on meter
func NewPipelineMetrics(meter metric.Meter) (*PipelineMetrics, error) {
	m := &PipelineMetrics{}
	var err error

	if m.notificationsSent, err = meter.Int64Counter("dailyfeed.notifications.sent",
		metric.WithDescription("Notifications accepted by the push gateway")); err != nil {
		return nil, err
	}
	if m.notificationsFailed, err = meter.Int64Counter("dailyfeed.notifications.failed",
		metric.WithDescription("Notifications that failed delivery")); err != nil {
		return nil, err
	}
	if m.answersGenerated, err = meter.Int64Counter("dailyfeed.answers.generated",
		metric.WithDescription("Answers produced by the text generation gateway")); err != nil {
		return nil, err
	}
	if m.generationFailures, err = meter.Int64Counter("dailyfeed.answers.failed",
		metric.WithDescription("Answer generations that failed after retries")); err != nil {
		return nil, err
	}
	if m.generationRetries, err = meter.Int64Counter("dailyfeed.generation.retries",
		metric.WithDescription("Retried text generation attempts")); err != nil {
		return nil, err
	}
	if m.jobRuns, err = meter.Int64Counter("dailyfeed.job.runs",
		metric.WithDescription("Scheduled and manual job executions")); err != nil {
		return nil, err
	}
	return m, nil
}

// NewNoopPipelineMetrics returns counters that record nothing
func NewNoopPipelineMetrics() *PipelineMetrics {
	m, _ := NewPipelineMetrics(noop.NewMeterProvider().Meter(tracerName))
	return m
}

// RecordDelivery adds sent and failed notification counts
func (m *PipelineMetrics) RecordDelivery(ctx context.Context, sent, failed int) {
	if m == nil {
		return
	}
	m.notificationsSent.Add(ctx, int64(sent))
	m.notificationsFailed.Add(ctx, int64(failed))
}

// RecordGeneration counts one generation outcome
func (m *PipelineMetrics) RecordGeneration(ctx context.Context, succeeded bool) {
	if m == nil {
		return
	}
	if succeeded {
		m.answersGenerated.Add(ctx, 1)
		return
	}
	m.generationFailures.Add(ctx, 1)
}

// RecordRetry counts one retried generation attempt
func (m *PipelineMetrics) RecordRetry(ctx context.Context) {
	if m == nil {
		return
	}
	m.generationRetries.Add(ctx, 1)
}

// RecordJobRun counts one job execution tagged with its outcome
func (m *PipelineMetrics) RecordJobRun(ctx context.Context, job string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.jobRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job", job),
		attribute.String("status", status),
	))
}
