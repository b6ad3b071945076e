package services

import (
	"context"
	"sync"
	"testing"

	"caisse/internal/database"
	"caisse/internal/models"
	"caisse/pkg/queue"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 内存库每个连接独立，只保留一个连接
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.MigrateDB(db))
	return db
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []RealtimeEvent
}

func (p *recordingPublisher) PublishMessage(_ context.Context, _ string, message interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := message.(RealtimeEvent); ok {
		p.events = append(p.events, e)
	}
	return nil
}

type recordingQueue struct {
	mu       sync.Mutex
	messages []*queue.DeliveryMessage
}

func (q *recordingQueue) Enqueue(_ context.Context, msg *queue.DeliveryMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, msg)
	return nil
}

func (q *recordingQueue) byChannel(channel string) []*queue.DeliveryMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*queue.DeliveryMessage
	for _, m := range q.messages {
		if m.Channel == channel {
			out = append(out, m)
		}
	}
	return out
}

// fixture 一个经营主体及各角色用户，服务按生产方式装配
type fixture struct {
	db            *gorm.DB
	entity        *models.Entity
	admin         *models.User
	manager       *models.User
	cashier       *models.User
	keeper        *models.User
	publisher     *recordingPublisher
	queue         *recordingQueue
	notifications *NotificationService
	thresholds    *ThresholdService
	products      *ProductService
	stock         *StockService
	orders        *OrderService
	invoices      *InvoiceService
	sessions      *CashSessionService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupTestDB(t)

	f := &fixture{
		db:        db,
		publisher: &recordingPublisher{},
		queue:     &recordingQueue{},
	}
	f.entity = &models.Entity{
		Name:          "Épices du Marché",
		Code:          "EPM",
		Type:          models.EntityTypeSpices,
		Status:        models.EntityStatusActive,
		Currency:      "XOF",
		WhatsAppPhone: "+221770000000",
	}
	require.NoError(t, db.Create(f.entity).Error)

	f.admin = f.user(t, "awa", models.RoleAdmin)
	f.manager = f.user(t, "moussa", models.RoleManager)
	f.cashier = f.user(t, "fatou", models.RoleCashier)
	f.keeper = f.user(t, "ibrahima", models.RoleStockKeeper)

	f.notifications = NewNotificationService(db, f.publisher, f.queue).
		WithChannels(models.ChannelWhatsApp, models.ChannelTelegram)
	f.thresholds = NewThresholdService(db, f.notifications, nil)
	f.products = NewProductService(db)
	f.stock = NewStockService(db, f.thresholds)
	f.orders = NewOrderService(db)
	f.invoices = NewInvoiceService(db, f.thresholds, f.notifications, nil)
	f.sessions = NewCashSessionService(db, f.notifications, nil, d("1.00"), d("50.00"))
	return f
}

func (f *fixture) user(t *testing.T, username, role string) *models.User {
	t.Helper()
	u := &models.User{
		EntityID: &f.entity.ID,
		Username: username,
		Email:    username + "@example.com",
		FullName: username,
		Role:     role,
		Status:   models.UserStatusActive,
	}
	require.NoError(t, u.SetPassword("password123"))
	require.NoError(t, f.db.Create(u).Error)
	return u
}

func (f *fixture) actor(u *models.User) Actor {
	return Actor{UserID: u.ID, EntityID: u.EntityIDValue(), Username: u.Username, Role: u.Role}
}

// product 创建商品并直接设置库存数量
func (f *fixture) product(t *testing.T, sku, purchase, sale, qty string) *models.Product {
	t.Helper()
	p, err := f.products.Create(f.entity.ID, ProductInput{
		SKU:           sku,
		Name:          "Produit " + sku,
		Unit:          "piece",
		PurchasePrice: d(purchase),
		SalePrice:     d(sale),
	})
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&models.Stock{}).
		Where("product_id = ?", p.ID).
		Update("quantity", d(qty)).Error)
	return p
}

func (f *fixture) quantity(t *testing.T, productID uint) decimal.Decimal {
	t.Helper()
	var stock models.Stock
	require.NoError(t, f.db.Where("product_id = ?", productID).First(&stock).Error)
	return stock.Quantity
}
