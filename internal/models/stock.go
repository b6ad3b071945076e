package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stock 商品库存，每个经营主体每个商品一行
type Stock struct {
	BaseModel
	EntityID    uint            `gorm:"not null;index;uniqueIndex:idx_stock_entity_product" json:"entity_id"`
	ProductID   uint            `gorm:"not null;uniqueIndex:idx_stock_entity_product" json:"product_id"`
	Quantity    decimal.Decimal `gorm:"type:decimal(12,3);not null;default:0" json:"quantity"`
	MinQuantity decimal.Decimal `gorm:"type:decimal(12,3);not null;default:0" json:"min_quantity"` // 告警水位

	Product *Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`
}

// TableName 指定表名
func (Stock) TableName() string {
	return "stocks"
}

// 库存状态
const (
	StockStatusOK  = "ok"
	StockStatusLow = "low"
	StockStatusOut = "out"
)

// Status 根据数量与告警水位计算库存状态
func (s *Stock) Status() string {
	switch {
	case !s.Quantity.IsPositive():
		return StockStatusOut
	case s.Quantity.LessThanOrEqual(s.MinQuantity):
		return StockStatusLow
	default:
		return StockStatusOK
	}
}

// StockMovement 库存流水（审计轨迹）
type StockMovement struct {
	ID             uint            `gorm:"primarykey" json:"id"`
	EntityID       uint            `gorm:"not null;index" json:"entity_id"`
	ProductID      uint            `gorm:"not null;index" json:"product_id"`
	Type           string          `gorm:"size:20;not null;index" json:"type"`
	Quantity       decimal.Decimal `gorm:"type:decimal(12,3);not null" json:"quantity"` // 带符号
	QuantityBefore decimal.Decimal `gorm:"type:decimal(12,3);not null" json:"quantity_before"`
	QuantityAfter  decimal.Decimal `gorm:"type:decimal(12,3);not null" json:"quantity_after"`
	Reference      string          `gorm:"size:50;index" json:"reference"` // 发票号或订单号
	UserID         *uint           `json:"user_id"`
	Notes          string          `gorm:"size:255" json:"notes"`
	CreatedAt      time.Time       `gorm:"index" json:"created_at"`

	Product *Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`
}

// TableName 指定表名
func (StockMovement) TableName() string {
	return "stock_movements"
}

// 库存流水类型
const (
	MovementSale         = "sale"
	MovementPurchase     = "purchase"
	MovementAdjustment   = "adjustment"
	MovementReturn       = "return"
	MovementCancellation = "cancellation"
)

// StockThreshold 自动补货规则
type StockThreshold struct {
	BaseModel
	EntityID        uint            `gorm:"not null;index;uniqueIndex:idx_threshold_entity_product" json:"entity_id"`
	ProductID       uint            `gorm:"not null;uniqueIndex:idx_threshold_entity_product" json:"product_id"`
	MinQuantity     decimal.Decimal `gorm:"type:decimal(12,3);not null" json:"min_quantity"`
	ReorderQuantity decimal.Decimal `gorm:"type:decimal(12,3);not null" json:"reorder_quantity"`
	SupplierName    string          `gorm:"size:100" json:"supplier_name"`
	SupplierPhone   string          `gorm:"size:30" json:"supplier_phone"`
	Enabled         bool            `gorm:"not null" json:"enabled"`
	LastTriggeredAt *time.Time      `json:"last_triggered_at"`

	Product *Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`
}

// TableName 指定表名
func (StockThreshold) TableName() string {
	return "stock_thresholds"
}

// Breached 当前数量是否触及补货水位
func (t *StockThreshold) Breached(quantity decimal.Decimal) bool {
	return t.Enabled && quantity.LessThanOrEqual(t.MinQuantity)
}
