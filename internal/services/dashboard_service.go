package services

import (
	"errors"
	"time"

	"caisse/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type DashboardService struct {
	db            *gorm.DB
	entities      *EntityService
	stock         *StockService
	orders        *OrderService
	sessions      *CashSessionService
	notifications *NotificationService
	registrations *RegistrationService
}

// DailySales 当日销售
type DailySales struct {
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
}

// PlatformDashboard 超级管理员
type PlatformDashboard struct {
	Role                 string       `json:"role"`
	Entities             *EntityStats `json:"entities"`
	Users                int64        `json:"users"`
	PendingRegistrations int64        `json:"pending_registrations"`
}

// ManagerDashboard 管理员与经理
type ManagerDashboard struct {
	Role          string     `json:"role"`
	TodaySales    DailySales `json:"today_sales"`
	LowStock      int64      `json:"low_stock"`
	PendingOrders int64      `json:"pending_orders"`
	OpenSessions  int64      `json:"open_sessions"`
	Unread        int64      `json:"unread_notifications"`
}

// CashierDashboard 收银员
type CashierDashboard struct {
	Role       string         `json:"role"`
	Session    *SessionDetail `json:"session"`
	TodaySales DailySales     `json:"today_sales"`
	Unread     int64          `json:"unread_notifications"`
}

// StockKeeperDashboard 库管
type StockKeeperDashboard struct {
	Role          string      `json:"role"`
	LowStock      []StockView `json:"low_stock"`
	PendingOrders int64       `json:"pending_orders"`
	Unread        int64       `json:"unread_notifications"`
}

const dashboardLowStockLimit = 20

func NewDashboardService(db *gorm.DB, entities *EntityService, stock *StockService, orders *OrderService,
	sessions *CashSessionService, notifications *NotificationService, registrations *RegistrationService) *DashboardService {
	return &DashboardService{
		db:            db,
		entities:      entities,
		stock:         stock,
		orders:        orders,
		sessions:      sessions,
		notifications: notifications,
		registrations: registrations,
	}
}

// Summary 按角色返回首页数据
func (s *DashboardService) Summary(actor Actor) (interface{}, error) {
	switch actor.Role {
	case models.RoleSuperAdmin:
		return s.platform()
	case models.RoleCashier:
		return s.cashier(actor)
	case models.RoleStockKeeper:
		return s.stockKeeper(actor)
	default:
		return s.manager(actor)
	}
}

func (s *DashboardService) platform() (*PlatformDashboard, error) {
	stats, err := s.entities.GetStats()
	if err != nil {
		return nil, err
	}
	d := &PlatformDashboard{Role: models.RoleSuperAdmin, Entities: stats}
	if err := s.db.Model(&models.User{}).Count(&d.Users).Error; err != nil {
		return nil, err
	}
	if d.PendingRegistrations, err = s.registrations.PendingCount(); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *DashboardService) manager(actor Actor) (*ManagerDashboard, error) {
	d := &ManagerDashboard{Role: actor.Role}
	var err error
	if d.TodaySales, err = s.todaySales(actor.EntityID, 0); err != nil {
		return nil, err
	}
	if d.LowStock, err = s.stock.LowStockCount(actor.EntityID); err != nil {
		return nil, err
	}
	if d.PendingOrders, err = s.orders.PendingCount(actor.EntityID); err != nil {
		return nil, err
	}
	if d.OpenSessions, err = s.sessions.OpenCount(actor.EntityID); err != nil {
		return nil, err
	}
	if d.Unread, err = s.notifications.UnreadCount(actor); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *DashboardService) cashier(actor Actor) (*CashierDashboard, error) {
	d := &CashierDashboard{Role: actor.Role}
	session, err := s.sessions.Current(actor)
	if err == nil {
		d.Session = session
	} else if !errors.Is(err, ErrNoOpenSession) {
		return nil, err
	}
	if d.TodaySales, err = s.todaySales(actor.EntityID, actor.UserID); err != nil {
		return nil, err
	}
	if d.Unread, err = s.notifications.UnreadCount(actor); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *DashboardService) stockKeeper(actor Actor) (*StockKeeperDashboard, error) {
	d := &StockKeeperDashboard{Role: actor.Role}
	var err error
	if d.LowStock, _, err = s.stock.List(actor.EntityID, StockFilter{LowOnly: true}, 1, dashboardLowStockLimit); err != nil {
		return nil, err
	}
	if d.PendingOrders, err = s.orders.PendingCount(actor.EntityID); err != nil {
		return nil, err
	}
	if d.Unread, err = s.notifications.UnreadCount(actor); err != nil {
		return nil, err
	}
	return d, nil
}

// todaySales 当日已确认发票，userID 非0时只统计该收银员
func (s *DashboardService) todaySales(entityID, userID uint) (DailySales, error) {
	now := time.Now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	query := s.db.Model(&models.Invoice{}).
		Where("entity_id = ? AND status = ? AND validated_at >= ?", entityID, models.InvoiceStatusValidated, start)
	if userID != 0 {
		query = query.Where("created_by = ?", userID)
	}

	var totals []decimal.Decimal
	if err := query.Pluck("total", &totals).Error; err != nil {
		return DailySales{}, err
	}
	sales := DailySales{Count: len(totals), Total: decimal.Zero}
	for _, t := range totals {
		sales.Total = sales.Total.Add(t)
	}
	sales.Total = sales.Total.Round(2)
	return sales, nil
}
