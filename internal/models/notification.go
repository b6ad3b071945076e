package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification 通知
type Notification struct {
	BaseModel
	EntityID       uint           `gorm:"not null;index" json:"entity_id"`
	UserID         *uint          `gorm:"index" json:"user_id"` // 为空表示经营主体广播
	Type           string         `gorm:"size:30;not null;index" json:"type"`
	Title          string         `gorm:"size:150;not null" json:"title"`
	Message        string         `gorm:"type:text" json:"message"`
	Channel        string         `gorm:"size:20;not null;default:'in_app'" json:"channel"`
	RecipientPhone string         `gorm:"size:50" json:"recipient_phone"` // WhatsApp号码或Telegram聊天ID
	TemplateName   string         `gorm:"size:100" json:"template_name"`
	Status         string         `gorm:"size:20;not null;default:'pending';index" json:"status"`
	Error          string         `gorm:"size:500" json:"error,omitempty"`
	ReadAt         *time.Time     `json:"read_at"`
	SentAt         *time.Time     `json:"sent_at"`
	Payload        datatypes.JSON `json:"payload,omitempty"`
}

// TableName 指定表名
func (Notification) TableName() string {
	return "notifications"
}

// 通知类型
const (
	NotificationLowStock     = "low_stock"
	NotificationAutoOrder    = "auto_order"
	NotificationCashVariance = "cash_variance"
	NotificationRegistration = "registration"
	NotificationInvoice      = "invoice"
	NotificationStaleSession = "stale_session"
	NotificationCustom       = "custom"
)

// 通知渠道
const (
	ChannelInApp    = "in_app"
	ChannelWhatsApp = "whatsapp"
	ChannelTelegram = "telegram"
)

// 通知状态
const (
	NotificationPending = "pending"
	NotificationSent    = "sent"
	NotificationFailed  = "failed"
	NotificationRead    = "read"
)
