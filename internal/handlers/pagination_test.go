package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	contextutils "dailyfeed/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(target string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, target, nil)
	return c
}

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		page    int
		limit   int
		wantErr bool
	}{
		{"absent", "/x", 0, 0, false},
		{"both set", "/x?page=3&limit=15", 3, 15, false},
		{"out of range passes through", "/x?page=-1&limit=5000", -1, 5000, false},
		{"padded", "/x?page=%202%20", 2, 0, false},
		{"bad page", "/x?page=two", 0, 0, true},
		{"bad limit", "/x?limit=1.5", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, limit, err := ParsePagination(newTestContext(tt.target))
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, contextutils.KindInvalidInput, contextutils.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.page, page)
			assert.Equal(t, tt.limit, limit)
		})
	}
}

func TestPathID(t *testing.T) {
	c := newTestContext("/x")
	c.Params = gin.Params{{Key: "id", Value: "42"}, {Key: "zero", Value: "0"}, {Key: "word", Value: "abc"}}

	id, err := pathID(c, "id")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = pathID(c, "zero")
	assert.Equal(t, contextutils.KindInvalidInput, contextutils.KindOf(err))

	_, err = pathID(c, "word")
	assert.Equal(t, contextutils.KindInvalidInput, contextutils.KindOf(err))
}
