package contextutils

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appError *AppError
		expected string
	}{
		{
			name: "error with details",
			appError: &AppError{
				Code:     ErrorCodeInvalidInput,
				Severity: SeverityError,
				Message:  "Invalid input",
				Details:  "selection id must be positive",
			},
			expected: "INVALID_INPUT: Invalid input - selection id must be positive",
		},
		{
			name: "error without details",
			appError: &AppError{
				Code:     ErrorCodeRecordNotFound,
				Severity: SeverityInfo,
				Message:  "Record not found",
			},
			expected: "RECORD_NOT_FOUND: Record not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appError.Error())
		})
	}
}

func TestAppError_Is(t *testing.T) {
	err1 := &AppError{Code: ErrorCodeUserNotFound}
	err2 := &AppError{Code: ErrorCodeUserNotFound}
	err3 := &AppError{Code: ErrorCodeRecordNotFound}

	assert.True(t, err1.Is(err2))
	assert.False(t, err1.Is(err3))
	assert.False(t, err1.Is(errors.New("regular error")))
}

func TestWrapError(t *testing.T) {
	t.Run("nil error", func(t *testing.T) {
		assert.Nil(t, WrapError(nil, "context"))
	})

	t.Run("AppError wrapping", func(t *testing.T) {
		wrapped := WrapError(ErrQuestionNotFound, "load question 7")

		appErr, ok := wrapped.(*AppError)
		assert.True(t, ok)
		assert.Equal(t, ErrorCodeQuestionNotFound, appErr.Code)
		assert.Equal(t, "load question 7", appErr.Message)
		assert.Contains(t, appErr.Details, "Question not found")
		assert.True(t, errors.Is(wrapped, ErrQuestionNotFound))
	})

	t.Run("regular error wrapping", func(t *testing.T) {
		original := errors.New("connection reset")
		wrapped := WrapError(original, "context")

		appErr, ok := wrapped.(*AppError)
		assert.True(t, ok)
		assert.Equal(t, ErrorCodeInternalError, appErr.Code)
		assert.Equal(t, "connection reset", appErr.Details)
		assert.Equal(t, original, appErr.Cause)
	})
}

func TestWrapErrorf(t *testing.T) {
	t.Run("plain format", func(t *testing.T) {
		wrapped := WrapErrorf(errors.New("db down"), "failed to claim for topic %d", 3)

		appErr, ok := wrapped.(*AppError)
		assert.True(t, ok)
		assert.Equal(t, "failed to claim for topic 3", appErr.Message)
		assert.Equal(t, "db down", appErr.Details)
	})

	t.Run("percent w keeps both causes reachable", func(t *testing.T) {
		cause := errors.New("socket closed")
		wrapped := WrapErrorf(ErrDatabaseQuery, "claim question: %w", cause)

		assert.True(t, errors.Is(wrapped, cause))
		assert.Equal(t, ErrorCodeDatabaseQuery, GetErrorCode(wrapped))
	})
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorKind
	}{
		{"nil", nil, KindInternal},
		{"plain error", errors.New("boom"), KindInternal},
		{"not found sentinel", ErrSelectionNotFound, KindNotFound},
		{"no questions", WrapError(ErrNoQuestionsAvailable, "topic 1"), KindNotFound},
		{"conflict", WrapError(ErrConflict, "selection read-back"), KindConflict},
		{"transient", ErrGenerationUnavailable, KindTransientExternal},
		{"timeout", ErrTimeout, KindTransientExternal},
		{"permanent", ErrGenerationResponseInvalid, KindPermanentExternal},
		{"infrastructure", ErrDatabaseQuery, KindInfrastructure},
		{"invalid input", ErrInvalidFormat, KindInvalidInput},
		{"unauthorized", ErrUnauthorized, KindUnauthorized},
		{"generic wrapper looks through", WrapError(fmt.Errorf("x: %w", ErrUserNotFound), "outer"), KindNotFound},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), KindTransientExternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, KindOf(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrTimeout))
	assert.True(t, IsRetryable(WrapError(ErrGenerationUnavailable, "attempt 1")))
	assert.False(t, IsRetryable(ErrGenerationFailed))
	assert.False(t, IsRetryable(errors.New("regular error")))
}

func TestAppError_ToJSON(t *testing.T) {
	err := &AppError{
		Code:     ErrorCodeInvalidInput,
		Severity: SeverityWarn,
		Message:  "Invalid input",
		Details:  "Field required",
		Cause:    errors.New("underlying error"),
	}

	json := err.ToJSON()

	assert.Equal(t, "INVALID_INPUT", json["code"])
	assert.Equal(t, "invalid_input", json["kind"])
	assert.Equal(t, "Field required", json["details"])
	assert.Equal(t, false, json["retryable"])
	assert.NotContains(t, json, "cause")
}

func TestContextKeys(t *testing.T) {
	ctx := WithTaskID(WithJobName(context.Background(), "daily_flow"), "abc")
	assert.Equal(t, "daily_flow", GetJobNameFromContext(ctx))
	assert.Equal(t, "abc", GetTaskIDFromContext(ctx))
	assert.Equal(t, "", GetTaskIDFromContext(context.Background()))
}
