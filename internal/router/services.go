package router

import (
	"caisse/internal/metrics"
	"caisse/internal/models"
	"caisse/internal/services"
	"caisse/pkg/config"
	"caisse/pkg/jwt"
	"caisse/pkg/queue"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Services 所有业务服务
type Services struct {
	Audit         *services.AuditService
	Auth          *services.AuthService
	Permissions   *services.PermissionService
	Entities      *services.EntityService
	Users         *services.UserService
	Registrations *services.RegistrationService
	Categories    *services.CategoryService
	Products      *services.ProductService
	Stock         *services.StockService
	Thresholds    *services.ThresholdService
	Orders        *services.OrderService
	Invoices      *services.InvoiceService
	CashSessions  *services.CashSessionService
	Notifications *services.NotificationService
	Reports       *services.ReportService
	Dashboard     *services.DashboardService
}

// NewServices 组装服务，redis 为空时不推送实时事件也不投递外部消息
func NewServices(db *gorm.DB, cfg *config.Config, redis *queue.RedisQueue, m *metrics.Metrics) *Services {
	var (
		publisher  services.Publisher
		deliveries services.DeliveryQueue
	)
	if redis != nil {
		publisher, deliveries = redis, redis
	}

	notifications := services.NewNotificationService(db, publisher, deliveries)
	if redis != nil {
		if cfg.Messaging.WhatsAppEnabled {
			notifications.WithChannels(models.ChannelWhatsApp)
		}
		if cfg.Messaging.TelegramEnabled {
			notifications.WithChannels(models.ChannelTelegram)
		}
	}

	permissions := services.NewPermissionService(db)
	entities := services.NewEntityService(db)
	users := services.NewUserService(db)
	thresholds := services.NewThresholdService(db, notifications, m)
	stock := services.NewStockService(db, thresholds)
	orders := services.NewOrderService(db)
	sessions := services.NewCashSessionService(db, notifications, m,
		amount(cfg.Cash.VarianceTolerance, "1.00"), amount(cfg.Cash.MajorVariance, "50.00"))
	registrations := services.NewRegistrationService(db, entities, users, notifications)

	return &Services{
		Audit:         services.NewAuditService(db),
		Auth:          services.NewAuthService(db, jwt.NewFromConfig(cfg.JWT), permissions),
		Permissions:   permissions,
		Entities:      entities,
		Users:         users,
		Registrations: registrations,
		Categories:    services.NewCategoryService(db),
		Products:      services.NewProductService(db),
		Stock:         stock,
		Thresholds:    thresholds,
		Orders:        orders,
		Invoices:      services.NewInvoiceService(db, thresholds, notifications, m),
		CashSessions:  sessions,
		Notifications: notifications,
		Reports:       services.NewReportService(db),
		Dashboard:     services.NewDashboardService(db, entities, stock, orders, sessions, notifications, registrations),
	}
}

func amount(raw, fallback string) decimal.Decimal {
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		return decimal.RequireFromString(fallback)
	}
	return d
}
