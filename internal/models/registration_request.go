package models

import (
	"time"
)

// RegistrationRequest 经营主体入驻申请
type RegistrationRequest struct {
	BaseModel
	Reference       string     `gorm:"size:36;uniqueIndex" json:"reference"`
	EntityName      string     `gorm:"size:100;not null" json:"entity_name"`
	EntityType      string     `gorm:"size:20;not null" json:"entity_type"`
	ContactName     string     `gorm:"size:100;not null" json:"contact_name"`
	Email           string     `gorm:"size:100;not null;index" json:"email"`
	Phone           string     `gorm:"size:30" json:"phone"`
	Username        string     `gorm:"size:50;not null;index" json:"username"`
	PasswordHash    string     `gorm:"size:255;not null" json:"-"`
	Status          string     `gorm:"size:20;not null;default:'pending';index" json:"status"`
	ReviewedBy      *uint      `json:"reviewed_by"`
	ReviewedAt      *time.Time `json:"reviewed_at"`
	RejectionReason string     `gorm:"size:500" json:"rejection_reason,omitempty"`
	EntityID        *uint      `json:"entity_id"` // 审批通过后创建的经营主体
}

// TableName 指定表名
func (RegistrationRequest) TableName() string {
	return "registration_requests"
}

// 申请状态常量
const (
	RegistrationPending  = "pending"
	RegistrationApproved = "approved"
	RegistrationRejected = "rejected"
)

// Approve 审批通过
func (r *RegistrationRequest) Approve(reviewerID, entityID uint) {
	now := time.Now()
	r.Status = RegistrationApproved
	r.ReviewedBy = &reviewerID
	r.ReviewedAt = &now
	r.EntityID = &entityID
}

// Reject 拒绝申请
func (r *RegistrationRequest) Reject(reviewerID uint, reason string) {
	now := time.Now()
	r.Status = RegistrationRejected
	r.ReviewedBy = &reviewerID
	r.ReviewedAt = &now
	r.RejectionReason = reason
}
