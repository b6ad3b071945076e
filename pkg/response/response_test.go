package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"caisse/pkg/errors"
	"caisse/pkg/pagination"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecorder() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	return c, w
}

func TestErrorStatusMirrorsCode(t *testing.T) {
	tests := []struct {
		name   string
		write  func(c *gin.Context)
		status int
	}{
		{"bad request", func(c *gin.Context) { BadRequest(c, "x") }, http.StatusBadRequest},
		{"unauthorized", func(c *gin.Context) { Unauthorized(c, "x") }, http.StatusUnauthorized},
		{"forbidden", func(c *gin.Context) { Forbidden(c, "x") }, http.StatusForbidden},
		{"not found", func(c *gin.Context) { NotFound(c, "x") }, http.StatusNotFound},
		{"conflict", func(c *gin.Context) { Conflict(c, "x") }, http.StatusConflict},
		{"server error", func(c *gin.Context) { ServerError(c, "x") }, http.StatusInternalServerError},
		{"unknown code", func(c *gin.Context) { Error(c, 1001, "x") }, http.StatusInternalServerError},
		{"business conflict", func(c *gin.Context) { Error(c, errors.CodeInsufficientStock, "x") }, http.StatusConflict},
		{"business unauthorized", func(c *gin.Context) { Error(c, errors.CodeAccountInactive, "x") }, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newRecorder()
			tt.write(c)
			assert.Equal(t, tt.status, w.Code)

			var body Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, "x", body.Message)
		})
	}
}

func TestSuccessWithPage(t *testing.T) {
	c, w := newRecorder()
	SuccessWithPage(c, []int{1, 2}, pagination.NewPageInfo(1, 2, 5))

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	pageInfo := body["page_info"].(map[string]interface{})
	assert.Equal(t, float64(3), pageInfo["total_pages"])
}
