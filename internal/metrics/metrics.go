package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 服务指标，使用独立注册表；nil 接收者上的记录方法为空操作
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal          *prometheus.CounterVec
	requestDuration        *prometheus.HistogramVec
	invoicesValidated      *prometheus.CounterVec
	invoicesCancelled      prometheus.Counter
	autoOrders             prometheus.Counter
	cashSessionsClosed     *prometheus.CounterVec
	notificationDeliveries *prometheus.CounterVec
}

// New 创建并注册全部指标
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caisse",
			Name:      "http_requests_total",
			Help:      "HTTP请求总数",
		}, []string{"method", "path", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "caisse",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP请求耗时",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		invoicesValidated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caisse",
			Name:      "invoices_validated_total",
			Help:      "已确认的发票数",
		}, []string{"payment_method"}),
		invoicesCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "caisse",
			Name:      "invoices_cancelled_total",
			Help:      "已作废的发票数",
		}),
		autoOrders: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "caisse",
			Name:      "auto_orders_total",
			Help:      "自动生成的补货订单数",
		}),
		cashSessionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caisse",
			Name:      "cash_sessions_closed_total",
			Help:      "按差额等级统计的关闭收银会话数",
		}, []string{"level"}),
		notificationDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caisse",
			Name:      "notification_deliveries_total",
			Help:      "外部通知投递结果",
		}, []string{"channel", "status"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestsTotal,
		m.requestDuration,
		m.invoicesValidated,
		m.invoicesCancelled,
		m.autoOrders,
		m.cashSessionsClosed,
		m.notificationDeliveries,
	)
	return m
}

// Handler /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry 注册表（测试用）
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRequest 记录一次HTTP请求
func (m *Metrics) ObserveRequest(method, path string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// InvoiceValidated 发票确认
func (m *Metrics) InvoiceValidated(paymentMethod string) {
	if m == nil {
		return
	}
	m.invoicesValidated.WithLabelValues(paymentMethod).Inc()
}

// InvoiceCancelled 发票作废
func (m *Metrics) InvoiceCancelled() {
	if m == nil {
		return
	}
	m.invoicesCancelled.Inc()
}

// AutoOrderCreated 自动补货订单
func (m *Metrics) AutoOrderCreated() {
	if m == nil {
		return
	}
	m.autoOrders.Inc()
}

// CashSessionClosed 收银会话关闭
func (m *Metrics) CashSessionClosed(level string) {
	if m == nil {
		return
	}
	m.cashSessionsClosed.WithLabelValues(level).Inc()
}

// NotificationDelivered 外部通知投递
func (m *Metrics) NotificationDelivered(channel, status string) {
	if m == nil {
		return
	}
	m.notificationDeliveries.WithLabelValues(channel, status).Inc()
}
