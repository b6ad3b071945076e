package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"caisse/internal/models"
	"caisse/internal/services"
	apperrors "caisse/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestHandleError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		err    error
		status int
		code   int
	}{
		{gorm.ErrRecordNotFound, http.StatusNotFound, apperrors.CodeNotFound},
		{fmt.Errorf("%w: 数量必须大于0", services.ErrInvalidParam), http.StatusBadRequest, apperrors.CodeInvalidParam},
		{services.ErrInvalidCredentials, http.StatusUnauthorized, apperrors.CodeInvalidCredentials},
		{services.ErrEntityInactive, http.StatusUnauthorized, apperrors.CodeEntityInactive},
		{services.ErrForbidden, http.StatusForbidden, apperrors.CodeForbidden},
		{fmt.Errorf("%w: 可用 1", services.ErrInsufficientStock), http.StatusConflict, apperrors.CodeInsufficientStock},
		{services.ErrSessionAlreadyOpen, http.StatusConflict, apperrors.CodeSessionAlreadyOpen},
		{services.ErrNoOpenSession, http.StatusConflict, apperrors.CodeNoOpenSession},
		{services.ErrInUse, http.StatusConflict, apperrors.CodeInUse},
		{errors.New("disk full"), http.StatusInternalServerError, apperrors.CodeServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			handleError(c, tt.err, "操作失败")
			assert.Equal(t, tt.status, w.Code)

			var body struct {
				Code int `json:"code"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Code)
		})
	}
}

func TestBindJSON_FieldMessages(t *testing.T) {
	gin.SetMode(gin.TestMode)
	SetupValidator()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body := `{"payment_method":"cheque","lines":[]}`
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	var req CreateInvoiceRequest
	assert.False(t, bindJSON(c, &req))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Message, "payment_method 取值无效")
	assert.Contains(t, resp.Message, "lines 长度或数值过小")

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	body = `{"payment_method":"card","lines":[{"quantity":"1"}]}`
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	req = CreateInvoiceRequest{}
	assert.False(t, bindJSON(c, &req))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Message, "product_id 不能为空")
	assert.NotContains(t, resp.Message, "product_i_d")
}

func TestDateRangeQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/?from=2026-03-01&to=2026-03-31", nil)
	r, ok := dateRange(c)
	require.True(t, ok)
	require.NotNil(t, r.From)
	require.NotNil(t, r.To)
	assert.Equal(t, 1, r.To.Day())

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/?from=31/03/2026", nil)
	_, ok = dateRange(c)
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeliverable(t *testing.T) {
	self, other := uint(7), uint(8)
	event := func(userID *uint) string {
		raw, err := json.Marshal(services.RealtimeEvent{
			Event: "notification",
			Data:  &models.Notification{EntityID: 1, UserID: userID, Title: "Stock bas"},
		})
		require.NoError(t, err)
		return string(raw)
	}

	assert.True(t, deliverable(event(nil), self), "broadcast")
	assert.True(t, deliverable(event(&self), self))
	assert.False(t, deliverable(event(&other), self))
	assert.False(t, deliverable("not json", self))
	assert.False(t, deliverable(`{"event":"ping"}`, self))
}

func TestMatchOrigin(t *testing.T) {
	tests := []struct {
		origin, allowed string
		want            bool
	}{
		{"https://caisse.example.com", "https://caisse.example.com", true},
		{"https://shop.example.com", "*.example.com", true},
		{"http://example.com:8080", "*.example.com", true},
		{"https://evil-example.com", "*.example.com", false},
		{"https://other.com", "https://caisse.example.com", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchOrigin(tt.origin, tt.allowed), tt.origin)
	}
}
