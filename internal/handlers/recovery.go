package handlers

import (
	"fmt"
	"runtime/debug"

	"dailyfeed/internal/observability"
	contextutils "dailyfeed/internal/utils"

	"github.com/gin-gonic/gin"
)

// ErrorRecovery converts a panicking handler into a structured 500 response
// and logs the panic with its stack.
func ErrorRecovery(logger *observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if recovered := recover(); recovered != nil {
				stack := string(debug.Stack())

				panicErr, ok := recovered.(error)
				if !ok {
					panicErr = fmt.Errorf("%v", recovered)
				}
				logger.Error(c.Request.Context(), "Panic recovered in handler", panicErr, map[string]interface{}{
					"http.method": c.Request.Method,
					"http.path":   c.Request.URL.Path,
					"stack":       stack,
				})

				appErr := contextutils.NewAppErrorWithCause(
					contextutils.ErrorCodeInternalError,
					contextutils.SeverityFatal,
					"Internal server error",
					"A panic occurred while processing the request",
					panicErr,
				)
				if gin.Mode() == gin.DebugMode {
					appErr.Details = appErr.Details + "\nStack trace: " + stack
				}
				HandleAppError(c, appErr)
				c.Abort()
			}
		}()
		c.Next()
	}
}
