// Package contextutils provides error handling utilities and standardized error types
// for consistent error management across the daily feed pipeline.
package contextutils

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a standardized error code for API responses
type ErrorCode string

const (
	// Database error codes

	// ErrorCodeDatabaseConnection indicates a database connection error
	ErrorCodeDatabaseConnection ErrorCode = "DATABASE_CONNECTION_ERROR"
	// ErrorCodeDatabaseQuery indicates a database query error
	ErrorCodeDatabaseQuery ErrorCode = "DATABASE_QUERY_ERROR"
	// ErrorCodeRecordNotFound indicates that a requested record was not found
	ErrorCodeRecordNotFound ErrorCode = "RECORD_NOT_FOUND"

	// Domain lookups

	// ErrorCodeQuestionNotFound indicates that the requested question was not found
	ErrorCodeQuestionNotFound ErrorCode = "QUESTION_NOT_FOUND"
	// ErrorCodeUserNotFound indicates that the requested user was not found
	ErrorCodeUserNotFound ErrorCode = "USER_NOT_FOUND"
	// ErrorCodeSelectionNotFound indicates that the requested daily selection was not found
	ErrorCodeSelectionNotFound ErrorCode = "SELECTION_NOT_FOUND"
	// ErrorCodeNoQuestionsAvailable indicates that a topic has no active question to claim
	ErrorCodeNoQuestionsAvailable ErrorCode = "NO_QUESTIONS_AVAILABLE"
	// ErrorCodeConflict indicates that an operation conflicts with the current state
	ErrorCodeConflict ErrorCode = "CONFLICT"

	// Validation error codes

	// ErrorCodeInvalidInput indicates that the provided input is invalid
	ErrorCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrorCodeInvalidFormat indicates that the input format is invalid
	ErrorCodeInvalidFormat ErrorCode = "INVALID_FORMAT"
	// ErrorCodeValidationFailed indicates that validation has failed
	ErrorCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	// Service error codes

	// ErrorCodeUnauthorized indicates that the caller is not authorized
	ErrorCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrorCodeServiceUnavailable indicates that the service is temporarily unavailable
	ErrorCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	// ErrorCodeTimeout indicates that a request has timed out
	ErrorCodeTimeout ErrorCode = "REQUEST_TIMEOUT"
	// ErrorCodeInternalError indicates an internal server error
	ErrorCodeInternalError ErrorCode = "INTERNAL_SERVER_ERROR"

	// External gateway error codes

	// ErrorCodeGenerationFailed indicates a non-retryable text generation failure
	ErrorCodeGenerationFailed ErrorCode = "GENERATION_FAILED"
	// ErrorCodeGenerationUnavailable indicates a retryable text generation failure
	ErrorCodeGenerationUnavailable ErrorCode = "GENERATION_UNAVAILABLE"
	// ErrorCodeGenerationResponseInvalid indicates an unusable completion payload
	ErrorCodeGenerationResponseInvalid ErrorCode = "GENERATION_RESPONSE_INVALID"
	// ErrorCodePushUnavailable indicates the push gateway could not be reached
	ErrorCodePushUnavailable ErrorCode = "PUSH_UNAVAILABLE"
	// ErrorCodeConfigInvalid indicates an unusable configuration
	ErrorCodeConfigInvalid ErrorCode = "CONFIG_INVALID"
)

// SeverityLevel represents the severity of an error for logging and monitoring
type SeverityLevel string

const (
	// SeverityDebug indicates debug-level errors for development
	SeverityDebug SeverityLevel = "debug"
	// SeverityInfo indicates informational errors
	SeverityInfo SeverityLevel = "info"
	// SeverityWarn indicates warning-level errors
	SeverityWarn SeverityLevel = "warn"
	// SeverityError indicates error-level issues
	SeverityError SeverityLevel = "error"
	// SeverityFatal indicates fatal errors that require immediate attention
	SeverityFatal SeverityLevel = "fatal"
)

// AppError represents a structured error with code, severity, and context
type AppError struct {
	Code     ErrorCode
	Severity SeverityLevel
	Message  string
	Details  string
	Cause    error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison for errors.Is
func (e *AppError) Is(target error) bool {
	if appErr, ok := target.(*AppError); ok {
		return e.Code == appErr.Code
	}
	return false
}

// Error types for consistent error handling with associated codes and severity
var (
	// Database errors
	ErrDatabaseConnection = &AppError{
		Code:     ErrorCodeDatabaseConnection,
		Severity: SeverityError,
		Message:  "Database connection failed",
	}

	ErrDatabaseQuery = &AppError{
		Code:     ErrorCodeDatabaseQuery,
		Severity: SeverityError,
		Message:  "Database query failed",
	}

	ErrRecordNotFound = &AppError{
		Code:     ErrorCodeRecordNotFound,
		Severity: SeverityInfo,
		Message:  "Record not found",
	}

	// Domain lookups
	ErrQuestionNotFound = &AppError{
		Code:     ErrorCodeQuestionNotFound,
		Severity: SeverityInfo,
		Message:  "Question not found",
	}

	ErrUserNotFound = &AppError{
		Code:     ErrorCodeUserNotFound,
		Severity: SeverityInfo,
		Message:  "User not found",
	}

	ErrSelectionNotFound = &AppError{
		Code:     ErrorCodeSelectionNotFound,
		Severity: SeverityInfo,
		Message:  "Daily selection not found",
	}

	ErrNoQuestionsAvailable = &AppError{
		Code:     ErrorCodeNoQuestionsAvailable,
		Severity: SeverityWarn,
		Message:  "No active questions available for topic",
	}

	ErrConflict = &AppError{
		Code:     ErrorCodeConflict,
		Severity: SeverityWarn,
		Message:  "Operation conflicts with current state",
	}

	// Validation errors
	ErrInvalidInput = &AppError{
		Code:     ErrorCodeInvalidInput,
		Severity: SeverityWarn,
		Message:  "Invalid input",
	}

	ErrInvalidFormat = &AppError{
		Code:     ErrorCodeInvalidFormat,
		Severity: SeverityWarn,
		Message:  "Invalid format",
	}

	ErrValidationFailed = &AppError{
		Code:     ErrorCodeValidationFailed,
		Severity: SeverityWarn,
		Message:  "Validation failed",
	}

	// Service errors
	ErrUnauthorized = &AppError{
		Code:     ErrorCodeUnauthorized,
		Severity: SeverityWarn,
		Message:  "Unauthorized",
	}

	ErrTimeout = &AppError{
		Code:     ErrorCodeTimeout,
		Severity: SeverityWarn,
		Message:  "Request timeout",
	}

	ErrInternalError = &AppError{
		Code:     ErrorCodeInternalError,
		Severity: SeverityError,
		Message:  "Internal server error",
	}

	// External gateway errors
	ErrGenerationFailed = &AppError{
		Code:     ErrorCodeGenerationFailed,
		Severity: SeverityError,
		Message:  "Answer generation failed",
	}

	ErrGenerationUnavailable = &AppError{
		Code:     ErrorCodeGenerationUnavailable,
		Severity: SeverityWarn,
		Message:  "Text generation service unavailable",
	}

	ErrGenerationResponseInvalid = &AppError{
		Code:     ErrorCodeGenerationResponseInvalid,
		Severity: SeverityError,
		Message:  "Text generation response invalid",
	}

	ErrPushUnavailable = &AppError{
		Code:     ErrorCodePushUnavailable,
		Severity: SeverityError,
		Message:  "Push gateway unavailable",
	}

	ErrConfigInvalid = &AppError{
		Code:     ErrorCodeConfigInvalid,
		Severity: SeverityFatal,
		Message:  "Configuration invalid",
	}
)

// NewAppError creates a new AppError with the specified code, severity, message and details
func NewAppError(code ErrorCode, severity SeverityLevel, message, details string) *AppError {
	return &AppError{
		Code:     code,
		Severity: severity,
		Message:  message,
		Details:  details,
	}
}

// NewAppErrorWithCause creates a new AppError with an underlying cause
func NewAppErrorWithCause(code ErrorCode, severity SeverityLevel, message, details string, cause error) *AppError {
	return &AppError{
		Code:     code,
		Severity: severity,
		Message:  message,
		Details:  details,
		Cause:    cause,
	}
}

// WrapError wraps an error with additional context, preserving AppError structure if possible
func WrapError(err error, context string) error {
	if err == nil {
		return nil
	}

	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:     appErr.Code,
			Severity: appErr.Severity,
			Message:  context,
			Details:  appErr.Error(),
			Cause:    appErr,
		}
	}

	return &AppError{
		Code:     ErrorCodeInternalError,
		Severity: SeverityError,
		Message:  context,
		Details:  err.Error(),
		Cause:    err,
	}
}

// WrapErrorf wraps an error with formatted context, preserving AppError structure if possible
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}

	// %w in the format means the caller already placed the cause in args
	if strings.Contains(format, "%w") {
		wrappedErr := fmt.Errorf(format, args...)

		if appErr, ok := err.(*AppError); ok {
			return &AppError{
				Code:     appErr.Code,
				Severity: appErr.Severity,
				Message:  wrappedErr.Error(),
				Details:  appErr.Error(),
				Cause:    wrappedErr,
			}
		}

		return &AppError{
			Code:     ErrorCodeInternalError,
			Severity: SeverityError,
			Message:  wrappedErr.Error(),
			Details:  err.Error(),
			Cause:    wrappedErr,
		}
	}

	msg := fmt.Sprintf(format, args...)
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:     appErr.Code,
			Severity: appErr.Severity,
			Message:  msg,
			Details:  appErr.Error(),
			Cause:    appErr,
		}
	}

	return &AppError{
		Code:     ErrorCodeInternalError,
		Severity: SeverityError,
		Message:  msg,
		Details:  err.Error(),
		Cause:    err,
	}
}

// ErrorWithContextf creates a new error with formatted context
func ErrorWithContextf(format string, args ...interface{}) error {
	return &AppError{
		Code:     ErrorCodeInternalError,
		Severity: SeverityError,
		Message:  fmt.Sprintf(format, args...),
	}
}

// GetErrorCode returns the error code from an error if it's an AppError, otherwise returns a default code
func GetErrorCode(err error) ErrorCode {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return ErrorCodeInternalError
}

// IsRetryable reports whether err is a transient external failure worth another attempt.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransientExternal
}

// ToJSON converts an AppError to a JSON-serializable structure for API responses
func (e *AppError) ToJSON() map[string]interface{} {
	result := map[string]interface{}{
		"code":     string(e.Code),
		"message":  e.Message,
		"severity": string(e.Severity),
		"kind":     KindOf(e).String(),
	}

	if e.Details != "" {
		result["details"] = e.Details
	}

	result["retryable"] = IsRetryable(e)

	if e.Cause != nil {
		switch e.Severity {
		case SeverityError, SeverityFatal:
			result["cause"] = e.Cause.Error()
		}
	}

	return result
}

// ContextKey represents a context key type for passing values through context
type ContextKey string

const (
	// JobNameKey carries the scheduled job name for log correlation
	JobNameKey ContextKey = "jobName"
	// TaskIDKey carries the background task id for log correlation
	TaskIDKey ContextKey = "taskID"
)

// WithJobName returns a new context with the job name set
func WithJobName(ctx context.Context, job string) context.Context {
	return context.WithValue(ctx, JobNameKey, job)
}

// GetJobNameFromContext extracts the job name from context, returning "" if not found
func GetJobNameFromContext(ctx context.Context) string {
	if job, ok := ctx.Value(JobNameKey).(string); ok {
		return job
	}
	return ""
}

// WithTaskID returns a new context with the task id set
func WithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, TaskIDKey, taskID)
}

// GetTaskIDFromContext extracts the task id from context, returning "" if not found
func GetTaskIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(TaskIDKey).(string); ok {
		return id
	}
	return ""
}

// AsError walks the wrap chain looking for an AppError
func AsError(err error, target **AppError) bool {
	return errors.As(err, target)
}
