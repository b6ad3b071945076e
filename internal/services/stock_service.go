package services

import (
	"context"
	"errors"
	"fmt"

	"caisse/internal/models"
	"caisse/pkg/pagination"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type StockService struct {
	db         *gorm.DB
	thresholds *ThresholdService
}

// StockView 库存列表行
type StockView struct {
	ProductID     uint            `json:"product_id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Unit          string          `json:"unit"`
	CategoryID    *uint           `json:"category_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	MinQuantity   decimal.Decimal `json:"min_quantity"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	Status        string          `json:"status"`
	Value         decimal.Decimal `json:"value"` // 按进价计算的库存价值
}

// StockFilter 库存列表过滤
type StockFilter struct {
	Keyword string
	LowOnly bool
}

// AdjustInput 库存调整：Delta 为增减量，Count 为盘点后的绝对数量，二选一
type AdjustInput struct {
	Delta  *decimal.Decimal
	Count  *decimal.Decimal
	Type   string // adjustment（默认）或 return
	Reason string
}

// MovementFilter 库存流水过滤
type MovementFilter struct {
	ProductID uint
	Type      string
	Range     DateRange
}

// stockChange 一次库存变动
type stockChange struct {
	EntityID  uint
	ProductID uint
	Delta     decimal.Decimal // 正数入库，负数出库
	Type      string
	Reference string
	UserID    *uint
	Notes     string
	// 出库时要求库存充足
	RequireAvailable bool
}

func NewStockService(db *gorm.DB, thresholds *ThresholdService) *StockService {
	return &StockService{db: db, thresholds: thresholds}
}

// applyStockChange 以单条 UPDATE 语句修改库存并写入流水
func applyStockChange(tx *gorm.DB, ch stockChange) (*models.StockMovement, error) {
	query := tx.Model(&models.Stock{}).Where("entity_id = ? AND product_id = ?", ch.EntityID, ch.ProductID)

	var result *gorm.DB
	if ch.Delta.IsNegative() {
		amount := ch.Delta.Neg()
		if ch.RequireAvailable {
			query = query.Where("quantity >= ?", amount)
		}
		result = query.Update("quantity", gorm.Expr("quantity - ?", amount))
	} else {
		result = query.Update("quantity", gorm.Expr("quantity + ?", ch.Delta))
	}
	if result.Error != nil {
		return nil, result.Error
	}

	var stock models.Stock
	err := tx.Where("entity_id = ? AND product_id = ?", ch.EntityID, ch.ProductID).First(&stock).Error
	if result.RowsAffected == 0 {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("商品 %d 没有库存记录: %w", ch.ProductID, gorm.ErrRecordNotFound)
		}
		if err != nil {
			return nil, err
		}
		var name string
		tx.Model(&models.Product{}).Select("name").Where("id = ?", ch.ProductID).Scan(&name)
		return nil, fmt.Errorf("%w: %s 可用 %s，需要 %s", ErrInsufficientStock, name, stock.Quantity.String(), ch.Delta.Neg().String())
	}
	if err != nil {
		return nil, err
	}

	movement := &models.StockMovement{
		EntityID:       ch.EntityID,
		ProductID:      ch.ProductID,
		Type:           ch.Type,
		Quantity:       ch.Delta,
		QuantityBefore: stock.Quantity.Sub(ch.Delta),
		QuantityAfter:  stock.Quantity,
		Reference:      ch.Reference,
		UserID:         ch.UserID,
		Notes:          truncateRunes(ch.Notes, 255),
	}
	if err := tx.Create(movement).Error; err != nil {
		return nil, err
	}
	return movement, nil
}

// List 库存列表
func (s *StockService) List(entityID uint, filter StockFilter, page, pageSize int) ([]StockView, int64, error) {
	query := s.db.Model(&models.Stock{}).
		Joins("JOIN products ON products.id = stocks.product_id").
		Where("stocks.entity_id = ?", entityID)
	if filter.Keyword != "" {
		pattern := likePattern(filter.Keyword)
		query = query.Where("LOWER(products.name) LIKE ? OR LOWER(products.sku) LIKE ?", pattern, pattern)
	}
	if filter.LowOnly {
		query = query.Where("stocks.quantity <= stocks.min_quantity")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []StockView
	err := query.Select("stocks.product_id, products.sku, products.name, products.unit, products.category_id, " +
		"stocks.quantity, stocks.min_quantity, products.purchase_price").
		Order("products.name").Scopes(pagination.Paginate(page, pageSize)).
		Scan(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	for i := range rows {
		fillStockView(&rows[i])
	}
	return rows, total, nil
}

func fillStockView(v *StockView) {
	stock := models.Stock{Quantity: v.Quantity, MinQuantity: v.MinQuantity}
	v.Status = stock.Status()
	if v.Quantity.IsPositive() {
		v.Value = v.Quantity.Mul(v.PurchasePrice).Round(2)
	} else {
		v.Value = decimal.Zero
	}
}

// LowStockCount 低于告警水位的商品数
func (s *StockService) LowStockCount(entityID uint) (int64, error) {
	var count int64
	err := s.db.Model(&models.Stock{}).
		Where("entity_id = ? AND quantity <= min_quantity", entityID).
		Count(&count).Error
	return count, err
}

// SetMinQuantity 设置告警水位
func (s *StockService) SetMinQuantity(entityID, productID uint, min decimal.Decimal) error {
	if min.IsNegative() {
		return invalidParam("告警水位不能为负数")
	}
	if exceedsPlaces(min, quantityPlaces) {
		return invalidParam("告警水位最多保留3位小数")
	}
	result := s.db.Model(&models.Stock{}).
		Where("entity_id = ? AND product_id = ?", entityID, productID).
		Update("min_quantity", min)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Adjust 手工调整库存（盘点/报损/退货），之后检查自动补货
func (s *StockService) Adjust(ctx context.Context, actor Actor, productID uint, in AdjustInput) (*models.StockMovement, error) {
	if (in.Delta == nil) == (in.Count == nil) {
		return nil, invalidParam("必须且只能指定调整量或盘点数量之一")
	}
	if in.Type == "" {
		in.Type = models.MovementAdjustment
	}
	if in.Type != models.MovementAdjustment && in.Type != models.MovementReturn {
		return nil, invalidParam("无效的调整类型: %s", in.Type)
	}
	if in.Reason == "" {
		return nil, invalidParam("必须填写调整原因")
	}
	if (in.Delta != nil && exceedsPlaces(*in.Delta, quantityPlaces)) ||
		(in.Count != nil && exceedsPlaces(*in.Count, quantityPlaces)) {
		return nil, invalidParam("数量最多保留3位小数")
	}

	var movement *models.StockMovement
	var event *ReorderEvent
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var stock models.Stock
		if err := tx.Where("entity_id = ? AND product_id = ?", actor.EntityID, productID).First(&stock).Error; err != nil {
			return err
		}

		var delta decimal.Decimal
		if in.Delta != nil {
			delta = *in.Delta
		} else {
			if in.Count.IsNegative() {
				return invalidParam("盘点数量不能为负数")
			}
			delta = in.Count.Sub(stock.Quantity)
		}
		if delta.IsZero() {
			return invalidParam("库存数量没有变化")
		}

		userID := actor.UserID
		var err error
		movement, err = applyStockChange(tx, stockChange{
			EntityID:         actor.EntityID,
			ProductID:        productID,
			Delta:            delta,
			Type:             in.Type,
			Reference:        "ADJ",
			UserID:           &userID,
			Notes:            in.Reason,
			RequireAvailable: true,
		})
		if err != nil {
			return err
		}

		if delta.IsNegative() && s.thresholds != nil {
			event, err = s.thresholds.checkAndReorder(tx, actor.EntityID, productID)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if event != nil {
		s.thresholds.Announce(ctx, event)
	}
	return movement, nil
}

// ListMovements 库存流水
func (s *StockService) ListMovements(entityID uint, filter MovementFilter, page, pageSize int) ([]*models.StockMovement, int64, error) {
	var movements []*models.StockMovement
	var total int64

	query := s.db.Model(&models.StockMovement{}).Where("entity_id = ?", entityID)
	if filter.ProductID != 0 {
		query = query.Where("product_id = ?", filter.ProductID)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	query = filter.Range.Apply(query, "created_at")

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Preload("Product").Order("created_at DESC, id DESC").Scopes(pagination.Paginate(page, pageSize)).Find(&movements).Error
	return movements, total, err
}
