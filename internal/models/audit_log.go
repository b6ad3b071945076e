package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog 审计日志
type AuditLog struct {
	ID         uint           `gorm:"primarykey" json:"id"`
	EntityID   uint           `gorm:"not null;index" json:"entity_id"`
	UserID     uint           `gorm:"index" json:"user_id"`
	Username   string         `gorm:"size:50" json:"username"`
	Action     string         `gorm:"size:30;not null;index" json:"action"`
	Resource   string         `gorm:"size:50;not null;index" json:"resource"`
	ResourceID string         `gorm:"size:50" json:"resource_id"`
	Details    datatypes.JSON `json:"details,omitempty"`
	IPAddress  string         `gorm:"size:64" json:"ip_address"`
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`
}

// TableName 指定表名
func (AuditLog) TableName() string {
	return "audit_logs"
}
