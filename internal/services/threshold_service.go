package services

import (
	"context"
	"errors"
	"time"

	"caisse/internal/metrics"
	"caisse/internal/models"
	"caisse/pkg/logger"
	"caisse/pkg/pagination"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ThresholdService struct {
	db            *gorm.DB
	notifications *NotificationService
	metrics       *metrics.Metrics
}

// ThresholdInput 自动补货规则参数
type ThresholdInput struct {
	ProductID       uint
	MinQuantity     decimal.Decimal
	ReorderQuantity decimal.Decimal
	SupplierName    string
	SupplierPhone   string
	Enabled         *bool
}

// ReorderEvent 一次自动补货
type ReorderEvent struct {
	EntityID    uint
	EntityName  string
	ProductID   uint
	ProductName string
	Quantity    decimal.Decimal
	MinQuantity decimal.Decimal
	Order       *models.Order
}

func NewThresholdService(db *gorm.DB, notifications *NotificationService, m *metrics.Metrics) *ThresholdService {
	return &ThresholdService{db: db, notifications: notifications, metrics: m}
}

// Create 创建补货规则，每个商品一条
func (s *ThresholdService) Create(entityID uint, in ThresholdInput) (*models.StockThreshold, error) {
	if err := validateThreshold(in); err != nil {
		return nil, err
	}

	var product models.Product
	if err := s.db.Where("entity_id = ?", entityID).First(&product, in.ProductID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invalidParam("商品不存在")
		}
		return nil, err
	}

	var count int64
	s.db.Model(&models.StockThreshold{}).Where("entity_id = ? AND product_id = ?", entityID, in.ProductID).Count(&count)
	if count > 0 {
		return nil, duplicate("该商品已有补货规则")
	}

	enabled := true
	if in.Enabled != nil {
		enabled = *in.Enabled
	}
	threshold := &models.StockThreshold{
		EntityID:        entityID,
		ProductID:       in.ProductID,
		MinQuantity:     in.MinQuantity,
		ReorderQuantity: in.ReorderQuantity,
		SupplierName:    in.SupplierName,
		SupplierPhone:   in.SupplierPhone,
		Enabled:         enabled,
	}
	if err := s.db.Create(threshold).Error; err != nil {
		return nil, err
	}
	threshold.Product = &product
	return threshold, nil
}

// GetByID 获取补货规则
func (s *ThresholdService) GetByID(entityID, id uint) (*models.StockThreshold, error) {
	var threshold models.StockThreshold
	err := s.db.Preload("Product").Where("entity_id = ?", entityID).First(&threshold, id).Error
	if err != nil {
		return nil, err
	}
	return &threshold, nil
}

// List 补货规则列表
func (s *ThresholdService) List(entityID uint, page, pageSize int) ([]*models.StockThreshold, int64, error) {
	var thresholds []*models.StockThreshold
	var total int64

	query := s.db.Model(&models.StockThreshold{}).Where("entity_id = ?", entityID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Preload("Product").Order("id").Scopes(pagination.Paginate(page, pageSize)).Find(&thresholds).Error
	return thresholds, total, err
}

// Update 更新补货规则（商品不可更换）
func (s *ThresholdService) Update(entityID, id uint, in ThresholdInput) (*models.StockThreshold, error) {
	threshold, err := s.GetByID(entityID, id)
	if err != nil {
		return nil, err
	}
	in.ProductID = threshold.ProductID
	if err := validateThreshold(in); err != nil {
		return nil, err
	}

	threshold.MinQuantity = in.MinQuantity
	threshold.ReorderQuantity = in.ReorderQuantity
	threshold.SupplierName = in.SupplierName
	threshold.SupplierPhone = in.SupplierPhone
	if in.Enabled != nil {
		threshold.Enabled = *in.Enabled
	}

	product := threshold.Product
	threshold.Product = nil
	if err := s.db.Save(threshold).Error; err != nil {
		return nil, err
	}
	threshold.Product = product
	return threshold, nil
}

// Delete 删除补货规则
func (s *ThresholdService) Delete(entityID, id uint) error {
	result := s.db.Where("entity_id = ?", entityID).Delete(&models.StockThreshold{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CheckAndReorder 检查商品库存，触及水位且没有进行中的自动订单时生成补货订单
func (s *ThresholdService) CheckAndReorder(ctx context.Context, entityID, productID uint) (*ReorderEvent, error) {
	var event *ReorderEvent
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		event, err = s.checkAndReorder(tx, entityID, productID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if event != nil {
		s.Announce(ctx, event)
	}
	return event, nil
}

// checkAndReorder 在调用方事务内执行，只写库不发通知
func (s *ThresholdService) checkAndReorder(tx *gorm.DB, entityID, productID uint) (*ReorderEvent, error) {
	var threshold models.StockThreshold
	err := tx.Where("entity_id = ? AND product_id = ? AND enabled = ?", entityID, productID, true).First(&threshold).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var stock models.Stock
	if err := tx.Where("entity_id = ? AND product_id = ?", entityID, productID).First(&stock).Error; err != nil {
		return nil, err
	}
	if !threshold.Breached(stock.Quantity) {
		return nil, nil
	}

	var pending int64
	err = tx.Model(&models.OrderLine{}).
		Joins("JOIN orders ON orders.id = order_lines.order_id").
		Where("orders.entity_id = ? AND orders.is_auto = ? AND orders.status IN ? AND order_lines.product_id = ?",
			entityID, true, []string{models.OrderStatusPending, models.OrderStatusConfirmed}, productID).
		Count(&pending).Error
	if err != nil {
		return nil, err
	}
	if pending > 0 {
		return nil, nil
	}

	var product models.Product
	if err := tx.First(&product, productID).Error; err != nil {
		return nil, err
	}

	now := time.Now()
	number, err := nextNumber(tx, &models.Order{}, entityID, "CMD", now)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		EntityID:      entityID,
		Number:        number,
		SupplierName:  threshold.SupplierName,
		SupplierPhone: threshold.SupplierPhone,
		Status:        models.OrderStatusPending,
		IsAuto:        true,
		Notes:         "库存低于补货水位自动生成",
		Lines: []models.OrderLine{{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    threshold.ReorderQuantity,
			UnitCost:    product.PurchasePrice,
		}},
	}
	order.ComputeTotals()
	if err := tx.Create(order).Error; err != nil {
		return nil, err
	}

	if err := tx.Model(&models.StockThreshold{}).Where("id = ?", threshold.ID).
		Update("last_triggered_at", now).Error; err != nil {
		return nil, err
	}

	var entityName string
	tx.Model(&models.Entity{}).Select("name").Where("id = ?", entityID).Scan(&entityName)

	return &ReorderEvent{
		EntityID:    entityID,
		EntityName:  entityName,
		ProductID:   product.ID,
		ProductName: product.Name,
		Quantity:    stock.Quantity,
		MinQuantity: threshold.MinQuantity,
		Order:       order,
	}, nil
}

// Announce 事务提交后发送低库存与自动订单通知
func (s *ThresholdService) Announce(ctx context.Context, events ...*ReorderEvent) {
	for _, e := range events {
		if e == nil {
			continue
		}
		s.metrics.AutoOrderCreated()
		logger.GetLogger().Infof("自动补货: 经营主体 %d 商品 %s 库存 %s，已生成订单 %s",
			e.EntityID, e.ProductName, e.Quantity.String(), e.Order.Number)

		if s.notifications == nil {
			continue
		}
		roles := []string{models.RoleAdmin, models.RoleManager, models.RoleStockKeeper}
		_, err := s.notifications.Notify(ctx, NotifyRequest{
			EntityID: e.EntityID,
			Roles:    roles,
			Type:     models.NotificationLowStock,
			Title:    "库存不足: " + e.ProductName,
			Message:  "当前库存 " + e.Quantity.String() + "，补货水位 " + e.MinQuantity.String(),
			Payload: map[string]string{
				"entity":       e.EntityName,
				"product":      e.ProductName,
				"quantity":     e.Quantity.String(),
				"min_quantity": e.MinQuantity.String(),
			},
			WhatsApp: true,
		})
		if err != nil {
			logger.GetLogger().Errorf("发送低库存通知失败: %v", err)
		}

		line := e.Order.Lines[0]
		_, err = s.notifications.Notify(ctx, NotifyRequest{
			EntityID: e.EntityID,
			Roles:    roles,
			Type:     models.NotificationAutoOrder,
			Title:    "已自动生成补货订单 " + e.Order.Number,
			Message:  e.ProductName + " × " + line.Quantity.String(),
			Payload: map[string]string{
				"entity":       e.EntityName,
				"order_number": e.Order.Number,
				"product":      e.ProductName,
				"quantity":     line.Quantity.String(),
				"supplier":     e.Order.SupplierName,
			},
		})
		if err != nil {
			logger.GetLogger().Errorf("发送自动订单通知失败: %v", err)
		}
	}
}

// Sweep 巡检所有触及水位的启用规则（定时任务调用）
func (s *ThresholdService) Sweep(ctx context.Context) (int, error) {
	type breach struct {
		EntityID  uint
		ProductID uint
	}
	var breaches []breach
	err := s.db.Model(&models.StockThreshold{}).
		Select("stock_thresholds.entity_id, stock_thresholds.product_id").
		Joins("JOIN stocks ON stocks.entity_id = stock_thresholds.entity_id AND stocks.product_id = stock_thresholds.product_id").
		Joins("JOIN entities ON entities.id = stock_thresholds.entity_id").
		Where("stock_thresholds.enabled = ? AND entities.status = ?", true, models.EntityStatusActive).
		Where("stocks.quantity <= stock_thresholds.min_quantity").
		Scan(&breaches).Error
	if err != nil {
		return 0, err
	}

	created := 0
	for _, b := range breaches {
		if ctx.Err() != nil {
			return created, ctx.Err()
		}
		event, err := s.CheckAndReorder(ctx, b.EntityID, b.ProductID)
		if err != nil {
			logger.GetLogger().Errorf("自动补货检查失败 (entity=%d, product=%d): %v", b.EntityID, b.ProductID, err)
			continue
		}
		if event != nil {
			created++
		}
	}
	return created, nil
}

func validateThreshold(in ThresholdInput) error {
	if in.MinQuantity.IsNegative() {
		return invalidParam("补货水位不能为负数")
	}
	if !in.ReorderQuantity.IsPositive() {
		return invalidParam("补货数量必须大于0")
	}
	if exceedsPlaces(in.MinQuantity, quantityPlaces) || exceedsPlaces(in.ReorderQuantity, quantityPlaces) {
		return invalidParam("数量最多保留3位小数")
	}
	return nil
}
