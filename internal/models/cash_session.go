package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CashSession 收银会话（开钱箱到关钱箱）
type CashSession struct {
	BaseModel
	EntityID        uint             `gorm:"not null;index" json:"entity_id"`
	UserID          uint             `gorm:"not null;index" json:"user_id"`
	Status          string           `gorm:"size:20;not null;default:'open';index" json:"status"`
	OpeningBalance  decimal.Decimal  `gorm:"type:decimal(12,2);not null" json:"opening_balance"`
	ExpectedBalance *decimal.Decimal `gorm:"type:decimal(12,2)" json:"expected_balance"`
	DeclaredBalance *decimal.Decimal `gorm:"type:decimal(12,2)" json:"declared_balance"`
	Variance        *decimal.Decimal `gorm:"type:decimal(12,2)" json:"variance"`
	VarianceLevel   string           `gorm:"size:20" json:"variance_level"`
	OpenedAt        time.Time        `gorm:"not null;index" json:"opened_at"`
	ClosedAt        *time.Time       `json:"closed_at"`
	Notes           string           `gorm:"size:255" json:"notes"`
	StaleNotifiedAt *time.Time       `json:"-"` // 已发送超时未关闭提醒

	User      *User          `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Movements []CashMovement `gorm:"foreignKey:SessionID" json:"movements,omitempty"`
}

// TableName 指定表名
func (CashSession) TableName() string {
	return "cash_sessions"
}

// 会话状态
const (
	CashSessionOpen   = "open"
	CashSessionClosed = "closed"
)

// 差额等级
const (
	VarianceBalanced = "balanced"
	VarianceMinor    = "minor"
	VarianceMajor    = "major"
)

// CashMovement 钱箱流水
type CashMovement struct {
	ID        uint            `gorm:"primarykey" json:"id"`
	SessionID uint            `gorm:"not null;index" json:"session_id"`
	EntityID  uint            `gorm:"not null;index" json:"entity_id"`
	Type      string          `gorm:"size:20;not null" json:"type"`
	Amount    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"` // 始终为正，方向由类型决定
	Reason    string          `gorm:"size:255" json:"reason"`
	InvoiceID *uint           `gorm:"index" json:"invoice_id"`
	UserID    uint            `gorm:"not null" json:"user_id"`
	CreatedAt time.Time       `json:"created_at"`
}

// TableName 指定表名
func (CashMovement) TableName() string {
	return "cash_movements"
}

// 钱箱流水类型
const (
	CashMovementSale    = "sale"
	CashMovementRefund  = "refund"
	CashMovementCashIn  = "cash_in"
	CashMovementCashOut = "cash_out"
	CashMovementExpense = "expense"
)

// IsManualCashMovement 可由收银员手工登记的流水类型
func IsManualCashMovement(t string) bool {
	return t == CashMovementCashIn || t == CashMovementCashOut || t == CashMovementExpense
}

// Signed 按方向带符号的金额
func (m *CashMovement) Signed() decimal.Decimal {
	switch m.Type {
	case CashMovementSale, CashMovementCashIn:
		return m.Amount
	default:
		return m.Amount.Neg()
	}
}

// ExpectedBalance 应有余额 = 开箱金额 + 收入 − 支出
func ExpectedBalance(opening decimal.Decimal, movements []CashMovement) decimal.Decimal {
	balance := opening
	for i := range movements {
		balance = balance.Add(movements[i].Signed())
	}
	return balance
}

// ClassifyVariance 差额分级：容差内为平衡，重大阈值内为轻微，超出为重大
func ClassifyVariance(variance, tolerance, major decimal.Decimal) string {
	abs := variance.Abs()
	switch {
	case abs.LessThanOrEqual(tolerance):
		return VarianceBalanced
	case abs.LessThanOrEqual(major):
		return VarianceMinor
	default:
		return VarianceMajor
	}
}
