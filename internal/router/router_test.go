package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"caisse/internal/database"
	"caisse/internal/metrics"
	"caisse/internal/models"
	"caisse/pkg/config"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const cookieName = "caisse_token"

type testServer struct {
	engine *gin.Engine
	db     *gorm.DB
	entity *models.Entity
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.MigrateDB(db))

	cfg := &config.Config{
		JWT:  config.JWTConfig{SecretKey: "test-secret", TokenDuration: "1h", RefreshDuration: "1h", CookieName: cookieName},
		CORS: config.CORSConfig{AllowOrigins: []string{"*"}, AllowMethods: []string{"GET", "POST", "PUT", "DELETE"}},
		Cash: config.CashConfig{VarianceTolerance: "1.00", MajorVariance: "50.00"},
	}
	m := metrics.New()
	svc := NewServices(db, cfg, nil, m)

	_, err = svc.Permissions.SeedDefaults()
	require.NoError(t, err)
	_, err = svc.Users.EnsureSuperAdmin("root", "root@example.com", "password123")
	require.NoError(t, err)

	s := &testServer{db: db}
	s.entity = &models.Entity{
		Name:     "Beauté Dakar",
		Code:     "BDK",
		Type:     models.EntityTypeCosmetics,
		Status:   models.EntityStatusActive,
		Currency: "XOF",
	}
	require.NoError(t, db.Create(s.entity).Error)
	s.user(t, "awa", models.RoleAdmin)
	s.user(t, "fatou", models.RoleCashier)

	s.engine = SetupRouter(Options{Config: cfg, DB: db, Services: svc, Metrics: m})
	return s
}

func (s *testServer) user(t *testing.T, username, role string) {
	t.Helper()
	u := &models.User{
		EntityID: &s.entity.ID,
		Username: username,
		Email:    username + "@example.com",
		FullName: username,
		Role:     role,
		Status:   models.UserStatusActive,
	}
	require.NoError(t, u.SetPassword("password123"))
	require.NoError(t, s.db.Create(u).Error)
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func (s *testServer) login(t *testing.T, username string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": username, "password": "password123"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotEmpty(t, body.Data.Token)
	return body.Data.Token
}

// data 解析统一响应中的 data 字段
func data(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body struct {
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body.Data
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "disabled", health["checks"].(map[string]interface{})["redis"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = s.do(t, http.MethodGet, "/api/v1/ping", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "caisse_http_requests_total")

	w = s.do(t, http.MethodGet, "/api/v1/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuthentication(t *testing.T) {
	s := newTestServer(t)

	t.Run("no token", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/products", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/products", "not-a-token", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong password", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "awa", "password": "nope-nope"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("missing fields", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "awa"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "password")
	})

	t.Run("cookie session", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "awa@example.com", "password": "password123"})
		require.Equal(t, http.StatusOK, w.Code)

		var cookie *http.Cookie
		for _, c := range w.Result().Cookies() {
			if c.Name == cookieName {
				cookie = c
			}
		}
		require.NotNil(t, cookie)
		assert.True(t, cookie.HttpOnly)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
		req.AddCookie(cookie)
		me := httptest.NewRecorder()
		s.engine.ServeHTTP(me, req)
		require.Equal(t, http.StatusOK, me.Code)
		assert.Contains(t, me.Body.String(), `"username":"awa"`)
	})

	t.Run("suspended user is rejected on next request", func(t *testing.T) {
		token := s.login(t, "fatou")
		require.NoError(t, s.db.Model(&models.User{}).Where("username = ?", "fatou").
			Update("status", models.UserStatusSuspended).Error)

		w := s.do(t, http.MethodGet, "/api/v1/auth/me", token, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAuthorization(t *testing.T) {
	s := newTestServer(t)
	root := s.login(t, "root")
	admin := s.login(t, "awa")
	cashier := s.login(t, "fatou")

	tests := []struct {
		name   string
		token  string
		method string
		path   string
		status int
	}{
		{"super admin lists entities", root, http.MethodGet, "/api/v1/entities", http.StatusOK},
		{"admin cannot list entities", admin, http.MethodGet, "/api/v1/entities", http.StatusForbidden},
		{"super admin has no store data", root, http.MethodGet, "/api/v1/products", http.StatusForbidden},
		{"cashier reads products", cashier, http.MethodGet, "/api/v1/products", http.StatusOK},
		{"cashier cannot create products", cashier, http.MethodPost, "/api/v1/products", http.StatusForbidden},
		{"cashier cannot read reports", cashier, http.MethodGet, "/api/v1/reports/sales", http.StatusForbidden},
		{"cashier cannot list users", cashier, http.MethodGet, "/api/v1/users", http.StatusForbidden},
		{"admin reads current entity", admin, http.MethodGet, "/api/v1/entity", http.StatusOK},
		{"admin reads audit logs", admin, http.MethodGet, "/api/v1/audit-logs", http.StatusOK},
		{"admin cannot review registrations", admin, http.MethodGet, "/api/v1/registrations", http.StatusForbidden},
		{"system status is platform only", admin, http.MethodGet, "/api/v1/system/status", http.StatusForbidden},
		{"dashboard for everyone", cashier, http.MethodGet, "/api/v1/dashboard", http.StatusOK},
		{"unknown product", admin, http.MethodGet, "/api/v1/products/9999", http.StatusNotFound},
		{"bad id", admin, http.MethodGet, "/api/v1/products/abc", http.StatusBadRequest},
		{"bad date range", admin, http.MethodGet, "/api/v1/invoices?from=2026-13-01", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body interface{}
			if tt.method == http.MethodPost {
				body = gin.H{}
			}
			w := s.do(t, tt.method, tt.path, tt.token, body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestSaleFlow(t *testing.T) {
	s := newTestServer(t)
	admin := s.login(t, "awa")
	cashier := s.login(t, "fatou")

	w := s.do(t, http.MethodPost, "/api/v1/products", admin, gin.H{
		"sku":            "KARITE-250",
		"name":           "Beurre de karité 250g",
		"purchase_price": "1500",
		"sale_price":     "2500",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	productID := uint(data(t, w)["id"].(float64))

	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/stock/%d/adjust", productID), admin, gin.H{"delta": "10", "reason": "Réception initiale"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	sale := gin.H{
		"payment_method": "cash",
		"lines":          []gin.H{{"product_id": productID, "quantity": "3"}},
		"validate":       true,
	}

	// 现金销售需要先开钱箱
	w = s.do(t, http.MethodPost, "/api/v1/invoices", cashier, sale)
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/v1/cash-sessions", cashier, gin.H{"opening_balance": "5000"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/v1/invoices", cashier, sale)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	invoice := data(t, w)
	assert.Equal(t, models.InvoiceStatusValidated, invoice["status"])
	assert.True(t, decimal.RequireFromString(invoice["total"].(string)).Equal(decimal.NewFromInt(7500)))
	invoiceID := uint(invoice["id"].(float64))

	w = s.do(t, http.MethodGet, "/api/v1/stock?keyword=KARITE", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stock struct {
		Data []struct {
			Quantity string `json:"quantity"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stock))
	require.Len(t, stock.Data, 1)
	assert.True(t, decimal.RequireFromString(stock.Data[0].Quantity).Equal(decimal.NewFromInt(7)))

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/invoices/%d/print", invoiceID), cashier, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/html"))
	assert.Contains(t, w.Body.String(), invoice["number"].(string))

	// 收银员不能作废
	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/invoices/%d/cancel", invoiceID), cashier, gin.H{"reason": "erreur"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/reports/sales?format=csv", admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "ventes_")

	w = s.do(t, http.MethodGet, "/api/v1/reports/sales?format=doc", admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/audit-logs?resource=invoices", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"action":"create"`)
}

func TestRegistrationFlow(t *testing.T) {
	s := newTestServer(t)
	root := s.login(t, "root")

	w := s.do(t, http.MethodPost, "/api/v1/registrations", "", gin.H{
		"entity_name":  "Épices Thiès",
		"entity_type":  "spices",
		"contact_name": "Mamadou Diop",
		"email":        "mamadou@example.com",
		"phone":        "+221771234567",
		"username":     "mamadou",
		"password":     "password123",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	created := data(t, w)
	reference := created["reference"].(string)
	assert.NotContains(t, w.Body.String(), "password_hash")

	w = s.do(t, http.MethodGet, "/api/v1/registrations/status/"+reference, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.RegistrationPending, data(t, w)["status"])

	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/registrations/%d/approve", uint(created["id"].(float64))), root, gin.H{"code": "ETH"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// 审批后申请人可以登录
	token := s.login(t, "mamadou")
	w = s.do(t, http.MethodGet, "/api/v1/entity", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ETH", data(t, w)["code"])
}
