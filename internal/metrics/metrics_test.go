package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.InvoiceValidated("cash")
		m.AutoOrderCreated()
		m.ObserveRequest("GET", "/x", 200, time.Millisecond)
	})
}

func TestCounters(t *testing.T) {
	m := New()
	m.InvoiceValidated("cash")
	m.InvoiceValidated("cash")
	m.InvoiceValidated("card")
	m.AutoOrderCreated()
	m.CashSessionClosed("major")
	m.NotificationDelivered("whatsapp", "failed")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.invoicesValidated.WithLabelValues("cash")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.autoOrders))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.cashSessionsClosed.WithLabelValues("major")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.notificationDeliveries.WithLabelValues("whatsapp", "failed")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveRequest("GET", "/api/v1/invoices", 200, 20*time.Millisecond)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `caisse_http_requests_total{method="GET",path="/api/v1/invoices",status="200"} 1`)
}
