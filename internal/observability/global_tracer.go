package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "dailyfeed"

var globalTracer trace.Tracer

// InitGlobalTracer initializes the global tracer for the application.
func InitGlobalTracer() {
	globalTracer = otel.Tracer(tracerName)
}

// GetGlobalTracer returns the global tracer instance for the application.
func GetGlobalTracer() trace.Tracer {
	if globalTracer == nil {
		globalTracer = otel.Tracer(tracerName)
	}
	return globalTracer
}

// TraceFunction starts a new span with a descriptive name for the given service and function.
func TraceFunction(ctx context.Context, serviceName, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := GetGlobalTracer()
	spanName := fmt.Sprintf("%s.%s", serviceName, functionName)
	return tracer.Start(ctx, spanName, trace.WithAttributes(attributes...))
}

// TraceOrchestratorFunction starts a new span for a daily orchestrator function.
func TraceOrchestratorFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "orchestrator", functionName, attributes...)
}

// TraceDispatcherFunction starts a new span for a notification dispatcher function.
func TraceDispatcherFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "dispatcher", functionName, attributes...)
}

// TraceGeneratorFunction starts a new span for an answer generator function.
func TraceGeneratorFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "generator", functionName, attributes...)
}

// TraceGatewayFunction starts a new span for an outbound gateway call.
func TraceGatewayFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "gateway", functionName, attributes...)
}

// TraceWorkerFunction starts a new span for a scheduler or task runner function.
func TraceWorkerFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "worker", functionName, attributes...)
}

// TraceHandlerFunction starts a new span for a handler function.
func TraceHandlerFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "handler", functionName, attributes...)
}

// TraceDatabaseFunction starts a new span for a database function.
func TraceDatabaseFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "database", functionName, attributes...)
}

// AttributeTopicID returns a tracing attribute for a topic ID.
func AttributeTopicID(id int64) attribute.KeyValue {
	return attribute.Int64("topic.id", id)
}

// AttributeQuestionID returns a tracing attribute for a question ID.
func AttributeQuestionID(id int64) attribute.KeyValue {
	return attribute.Int64("question.id", id)
}

// AttributeUserID returns a tracing attribute for a user ID.
func AttributeUserID(id int64) attribute.KeyValue {
	return attribute.Int64("user.id", id)
}

// AttributeSelectionID returns a tracing attribute for a daily selection ID.
func AttributeSelectionID(id int64) attribute.KeyValue {
	return attribute.Int64("selection.id", id)
}

// AttributeDate returns a tracing attribute for a calendar date.
func AttributeDate(date string) attribute.KeyValue {
	return attribute.String("date", date)
}

// AttributeJob returns a tracing attribute for a scheduled job name.
func AttributeJob(job string) attribute.KeyValue {
	return attribute.String("job", job)
}

// AttributeLimit returns a tracing attribute for a limit value.
func AttributeLimit(limit int) attribute.KeyValue {
	return attribute.Int("limit", limit)
}

// AttributePage returns a tracing attribute for a page value.
func AttributePage(page int) attribute.KeyValue {
	return attribute.Int("page", page)
}
