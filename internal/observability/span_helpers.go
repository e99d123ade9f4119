package observability

import (
	contextutils "dailyfeed/internal/utils"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// FinishSpan ends span, recording the error behind errPtr together with its
// kind. Caller mistakes (not found, invalid input, conflict, unauthorized)
// are recorded but leave the span status unset; every other kind marks the
// span as failed. Use with a named error return:
//
//	defer observability.FinishSpan(span, &err)
func FinishSpan(span trace.Span, errPtr *error) {
	if span == nil {
		return
	}
	defer span.End()
	if errPtr == nil || *errPtr == nil {
		return
	}

	err := *errPtr
	kind := contextutils.KindOf(err)
	span.SetAttributes(
		attribute.String("error.kind", kind.String()),
		attribute.Bool("error.retryable", contextutils.IsRetryable(err)),
	)
	if isCallerError(kind) {
		span.RecordError(err)
		return
	}
	span.RecordError(err, trace.WithStackTrace(true))
	span.SetStatus(codes.Error, err.Error())
}

func isCallerError(kind contextutils.ErrorKind) bool {
	switch kind {
	case contextutils.KindNotFound, contextutils.KindInvalidInput,
		contextutils.KindConflict, contextutils.KindUnauthorized:
		return true
	}
	return false
}
