package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoice 销售发票
type Invoice struct {
	BaseModel
	EntityID      uint            `gorm:"not null;index;uniqueIndex:idx_invoice_entity_number" json:"entity_id"`
	Number        string          `gorm:"size:50;not null;uniqueIndex:idx_invoice_entity_number" json:"number"`
	CustomerName  string          `gorm:"size:100" json:"customer_name"`
	CustomerPhone string          `gorm:"size:30" json:"customer_phone"`
	Status        string          `gorm:"size:20;not null;default:'draft';index" json:"status"`
	PaymentMethod string          `gorm:"size:20;not null" json:"payment_method"`
	Subtotal      decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"subtotal"`
	Discount      decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"discount"`
	Total         decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"total"`
	CashSessionID *uint           `gorm:"index" json:"cash_session_id"`
	CreatedBy     uint            `gorm:"not null;index" json:"created_by"`
	ValidatedAt   *time.Time      `gorm:"index" json:"validated_at"`
	CancelledAt   *time.Time      `json:"cancelled_at"`
	Notes         string          `gorm:"size:255" json:"notes"`

	Lines   []InvoiceLine `gorm:"foreignKey:InvoiceID" json:"lines,omitempty"`
	Creator *User         `gorm:"foreignKey:CreatedBy" json:"creator,omitempty"`
}

// TableName 指定表名
func (Invoice) TableName() string {
	return "invoices"
}

// 发票状态
const (
	InvoiceStatusDraft     = "draft"
	InvoiceStatusValidated = "validated"
	InvoiceStatusCancelled = "cancelled"
)

// 支付方式
const (
	PaymentCash        = "cash"
	PaymentCard        = "card"
	PaymentMobileMoney = "mobile_money"
)

// InvoiceLine 发票行，商品名称与单价为开票时快照
type InvoiceLine struct {
	ID          uint            `gorm:"primarykey" json:"id"`
	InvoiceID   uint            `gorm:"not null;index" json:"invoice_id"`
	ProductID   uint            `gorm:"not null;index" json:"product_id"`
	ProductName string          `gorm:"size:150;not null" json:"product_name"`
	Unit        string          `gorm:"size:20" json:"unit"`
	Quantity    decimal.Decimal `gorm:"type:decimal(12,3);not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price"`
	Discount    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"discount"`
	LineTotal   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"line_total"`
}

// TableName 指定表名
func (InvoiceLine) TableName() string {
	return "invoice_lines"
}

// ComputeTotal 行金额 = 单价 × 数量 − 行折扣，不低于0
func (l *InvoiceLine) ComputeTotal() decimal.Decimal {
	total := l.UnitPrice.Mul(l.Quantity).Sub(l.Discount).Round(2)
	if total.IsNegative() {
		total = decimal.Zero
	}
	l.LineTotal = total
	return total
}

// ComputeTotals 重新计算小计与总额
func (inv *Invoice) ComputeTotals() {
	subtotal := decimal.Zero
	for i := range inv.Lines {
		subtotal = subtotal.Add(inv.Lines[i].ComputeTotal())
	}
	inv.Subtotal = subtotal
	total := subtotal.Sub(inv.Discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	inv.Total = total
}
