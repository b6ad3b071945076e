package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order 采购订单
type Order struct {
	BaseModel
	EntityID      uint            `gorm:"not null;index;uniqueIndex:idx_order_entity_number" json:"entity_id"`
	Number        string          `gorm:"size:50;not null;uniqueIndex:idx_order_entity_number" json:"number"`
	SupplierName  string          `gorm:"size:100" json:"supplier_name"`
	SupplierPhone string          `gorm:"size:30" json:"supplier_phone"`
	Status        string          `gorm:"size:20;not null;default:'pending';index" json:"status"`
	IsAuto        bool            `gorm:"not null;index" json:"is_auto"`
	Total         decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"total"`
	Notes         string          `gorm:"size:255" json:"notes"`
	ExpectedAt    *time.Time      `json:"expected_at"`
	ReceivedAt    *time.Time      `json:"received_at"`
	CreatedBy     *uint           `json:"created_by"` // 自动订单为空

	Lines []OrderLine `gorm:"foreignKey:OrderID" json:"lines,omitempty"`
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}

// 订单状态
const (
	OrderStatusPending   = "pending"
	OrderStatusConfirmed = "confirmed"
	OrderStatusReceived  = "received"
	OrderStatusCancelled = "cancelled"
)

// IsOpen 订单是否仍在进行中
func (o *Order) IsOpen() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusConfirmed
}

// OrderLine 采购订单行
type OrderLine struct {
	ID               uint            `gorm:"primarykey" json:"id"`
	OrderID          uint            `gorm:"not null;index" json:"order_id"`
	ProductID        uint            `gorm:"not null;index" json:"product_id"`
	ProductName      string          `gorm:"size:150;not null" json:"product_name"`
	Quantity         decimal.Decimal `gorm:"type:decimal(12,3);not null" json:"quantity"`
	ReceivedQuantity decimal.Decimal `gorm:"type:decimal(12,3);not null;default:0" json:"received_quantity"`
	UnitCost         decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_cost"`
	LineTotal        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"line_total"`
}

// TableName 指定表名
func (OrderLine) TableName() string {
	return "order_lines"
}

// ComputeTotals 计算行金额与订单总额
func (o *Order) ComputeTotals() {
	total := decimal.Zero
	for i := range o.Lines {
		line := &o.Lines[i]
		line.LineTotal = line.UnitCost.Mul(line.Quantity).Round(2)
		total = total.Add(line.LineTotal)
	}
	o.Total = total
}
