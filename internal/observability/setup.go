package observability

import (
	"context"
	"os"

	"dailyfeed/internal/config"

	autosdk "go.opentelemetry.io/auto/sdk"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zapcore"
)

// SetupObservability initializes tracing, metrics, and logging for a service
func SetupObservability(cfg *config.OpenTelemetryConfig, serviceName string, level zapcore.Level) (result0 trace.TracerProvider, result1 *sdkmetric.MeterProvider, result2 *Logger, err error) {
	if serviceName != "" {
		cfg.ServiceName = serviceName
	}

	var tp trace.TracerProvider
	var mp *sdkmetric.MeterProvider

	if err := os.Setenv("OTEL_SERVICE_NAME", cfg.ServiceName); err != nil {
		return nil, nil, nil, err
	}
	if err := os.Setenv("OTEL_SERVICE_VERSION", cfg.ServiceVersion); err != nil {
		return nil, nil, nil, err
	}

	// NewLoggerWithLevel returns a no-op logger when logging is disabled
	logger := NewLoggerWithLevel(cfg, level)

	if cfg.EnableTracing {
		if cfg.UseAutoSDK {
			tp = autosdk.TracerProvider()
			otel.SetTracerProvider(tp)

			logger.Info(context.Background(), "Tracing enabled with Auto SDK", map[string]interface{}{"service_name": cfg.ServiceName})
		} else {
			tp, err = InitStandardTracing(cfg)
			if err != nil {
				return nil, nil, logger, err
			}
			otel.SetTracerProvider(tp)

			logger.Info(context.Background(), "Tracing enabled with standard SDK", map[string]interface{}{"service_name": cfg.ServiceName})
		}

		if err := InitTracing(cfg); err != nil {
			return nil, nil, logger, err
		}

		InitGlobalTracer()
	}

	if cfg.EnableMetrics {
		mp, err = InitMetrics(cfg)
		if err != nil {
			return tp, nil, logger, err
		}
		otel.SetMeterProvider(mp)
	}

	return tp, mp, logger, nil
}
