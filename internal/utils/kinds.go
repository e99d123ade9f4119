package contextutils

import (
	"context"
	"errors"
)

// ErrorKind is the closed set of failure categories callers branch on.
type ErrorKind int

const (
	// KindInternal is any failure that fits no other category
	KindInternal ErrorKind = iota
	// KindNotFound means a referenced entity does not exist
	KindNotFound
	// KindConflict means a unique-key insert lost a race
	KindConflict
	// KindTransientExternal means a retryable external failure
	KindTransientExternal
	// KindPermanentExternal means a non-retryable external failure
	KindPermanentExternal
	// KindInfrastructure means persistence or network layer unavailable
	KindInfrastructure
	// KindInvalidInput means the caller supplied unusable arguments
	KindInvalidInput
	// KindUnauthorized means the caller is not allowed to perform the operation
	KindUnauthorized
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTransientExternal:
		return "transient_external"
	case KindPermanentExternal:
		return "permanent_external"
	case KindInfrastructure:
		return "infrastructure"
	case KindInvalidInput:
		return "invalid_input"
	case KindUnauthorized:
		return "unauthorized"
	case KindInternal:
		return "internal"
	}
	return "internal"
}

// KindForCode maps an ErrorCode to its ErrorKind.
func KindForCode(code ErrorCode) ErrorKind {
	switch code {
	case ErrorCodeRecordNotFound, ErrorCodeQuestionNotFound, ErrorCodeUserNotFound,
		ErrorCodeSelectionNotFound, ErrorCodeNoQuestionsAvailable:
		return KindNotFound
	case ErrorCodeConflict:
		return KindConflict
	case ErrorCodeServiceUnavailable, ErrorCodeTimeout,
		ErrorCodeGenerationUnavailable, ErrorCodePushUnavailable:
		return KindTransientExternal
	case ErrorCodeGenerationFailed, ErrorCodeGenerationResponseInvalid:
		return KindPermanentExternal
	case ErrorCodeDatabaseConnection, ErrorCodeDatabaseQuery:
		return KindInfrastructure
	case ErrorCodeInvalidInput, ErrorCodeInvalidFormat, ErrorCodeValidationFailed:
		return KindInvalidInput
	case ErrorCodeUnauthorized:
		return KindUnauthorized
	case ErrorCodeInternalError, ErrorCodeConfigInvalid:
		return KindInternal
	}
	return KindInternal
}

// KindOf classifies err by the first AppError in its chain that carries a
// specific code. Generic INTERNAL_SERVER_ERROR wrappers are looked through so
// that WrapError on a typed failure keeps the original kind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindInternal
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		if appErr, ok := e.(*AppError); ok && appErr.Code != ErrorCodeInternalError {
			return KindForCode(appErr.Code)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransientExternal
	}
	return KindInternal
}
