package handlers

import (
	"crypto/subtle"
	"strings"

	contextutils "dailyfeed/internal/utils"

	"github.com/gin-gonic/gin"
)

// RequireAdminToken rejects requests whose Authorization header does not
// carry the configured bearer token. An empty configured token rejects everything.
func RequireAdminToken(token string) gin.HandlerFunc {
	expected := []byte(token)
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		presented, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || len(expected) == 0 || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(presented)), expected) != 1 {
			HandleAppError(c, contextutils.WrapError(contextutils.ErrUnauthorized, "missing or invalid admin token"))
			c.Abort()
			return
		}
		c.Next()
	}
}
