package handlers

import (
	"fmt"
	"net/http"

	contextutils "dailyfeed/internal/utils"

	"github.com/gin-gonic/gin"
)

// StandardizeHTTPError creates consistent HTTP error responses with structured error information
func StandardizeHTTPError(c *gin.Context, statusCode int, message, details string) {
	var errorCode contextutils.ErrorCode
	var severity contextutils.SeverityLevel

	switch statusCode {
	case http.StatusBadRequest:
		errorCode = contextutils.ErrorCodeInvalidInput
		severity = contextutils.SeverityWarn
	case http.StatusUnauthorized:
		errorCode = contextutils.ErrorCodeUnauthorized
		severity = contextutils.SeverityWarn
	case http.StatusNotFound:
		errorCode = contextutils.ErrorCodeRecordNotFound
		severity = contextutils.SeverityInfo
	case http.StatusServiceUnavailable:
		errorCode = contextutils.ErrorCodeServiceUnavailable
		severity = contextutils.SeverityError
	default:
		errorCode = contextutils.ErrorCodeInternalError
		severity = contextutils.SeverityError
	}

	appErr := contextutils.NewAppError(errorCode, severity, message, details)
	c.JSON(statusCode, appErr.ToJSON())
}

// StandardizeAppError sends a structured error response using AppError
func StandardizeAppError(c *gin.Context, err *contextutils.AppError) {
	c.JSON(statusForKind(contextutils.KindOf(err)), err.ToJSON())
}

// HandleValidationError handles input validation errors consistently
func HandleValidationError(c *gin.Context, field string, value interface{}, reason string) {
	appErr := contextutils.NewAppError(
		contextutils.ErrorCodeInvalidInput,
		contextutils.SeverityWarn,
		fmt.Sprintf("Invalid %s", field),
		fmt.Sprintf("Value '%v' is invalid: %s", value, reason),
	)

	StandardizeAppError(c, appErr)
}

// HandleAppError sends the response for any service error. The status is
// derived from the error kind, so wrapped errors keep their original status.
func HandleAppError(c *gin.Context, err error) {
	_ = c.Error(err)

	var appErr *contextutils.AppError
	if contextutils.AsError(err, &appErr) {
		StandardizeAppError(c, appErr)
		return
	}

	status := statusForKind(contextutils.KindOf(err))
	if status == http.StatusInternalServerError {
		StandardizeHTTPError(c, status, "Internal server error", err.Error())
		return
	}
	StandardizeHTTPError(c, status, http.StatusText(status), err.Error())
}

// statusForKind maps every error kind to its HTTP status
func statusForKind(kind contextutils.ErrorKind) int {
	switch kind {
	case contextutils.KindNotFound:
		return http.StatusNotFound
	case contextutils.KindConflict:
		return http.StatusConflict
	case contextutils.KindInvalidInput:
		return http.StatusBadRequest
	case contextutils.KindUnauthorized:
		return http.StatusUnauthorized
	case contextutils.KindTransientExternal, contextutils.KindInfrastructure:
		return http.StatusServiceUnavailable
	case contextutils.KindPermanentExternal:
		return http.StatusBadGateway
	case contextutils.KindInternal:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}
