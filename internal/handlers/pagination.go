package handlers

import (
	"strconv"
	"strings"

	contextutils "dailyfeed/internal/utils"

	"github.com/gin-gonic/gin"
)

// ParsePagination reads the page and limit query params. Missing values
// come back as zero so the service applies its own defaults and bounds;
// values that are not integers are rejected.
func ParsePagination(c *gin.Context) (page, limit int, err error) {
	if page, err = queryInt(c, "page"); err != nil {
		return 0, 0, err
	}
	if limit, err = queryInt(c, "limit"); err != nil {
		return 0, 0, err
	}
	return page, limit, nil
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "%s must be an integer, got %q", key, raw)
	}
	return v, nil
}

// pathID parses a positive int64 path parameter
func pathID(c *gin.Context, key string) (int64, error) {
	raw := c.Param(key)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "%s must be a positive integer, got %q", key, raw)
	}
	return id, nil
}
