package services

import (
	"encoding/json"
	"fmt"

	"caisse/internal/models"
	"caisse/pkg/logger"
	"caisse/pkg/pagination"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AuditService struct {
	db *gorm.DB
}

// AuditFilter 审计日志过滤
type AuditFilter struct {
	EntityID uint // 仅超级管理员有效
	Resource string
	Action   string
	UserID   uint
	Range    DateRange
}

func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{db: db}
}

// Record 记录一条审计日志，失败只写日志不影响业务
func (s *AuditService) Record(actor Actor, action, resource string, resourceID interface{}, details interface{}, ip string) {
	entry := &models.AuditLog{
		EntityID:  actor.EntityID,
		UserID:    actor.UserID,
		Username:  actor.Username,
		Action:    action,
		Resource:  resource,
		IPAddress: ip,
	}
	if resourceID != nil {
		entry.ResourceID = fmt.Sprint(resourceID)
	}
	if details != nil {
		if raw, err := json.Marshal(details); err == nil {
			entry.Details = datatypes.JSON(raw)
		}
	}

	if err := s.db.Create(entry).Error; err != nil {
		logger.GetLogger().Errorf("写入审计日志失败: %v", err)
	}
}

// GetWithFiltersAndPage 查询审计日志
func (s *AuditService) GetWithFiltersAndPage(actor Actor, filter AuditFilter, page, pageSize int) ([]*models.AuditLog, int64, error) {
	var logs []*models.AuditLog
	var total int64

	query := s.db.Model(&models.AuditLog{})
	if actor.IsSuperAdmin() {
		if filter.EntityID != 0 {
			query = query.Where("entity_id = ?", filter.EntityID)
		}
	} else {
		query = query.Where("entity_id = ?", actor.EntityID)
	}
	if filter.Resource != "" {
		query = query.Where("resource = ?", filter.Resource)
	}
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if filter.UserID != 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	query = filter.Range.Apply(query, "created_at")

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Order("created_at DESC, id DESC").Scopes(pagination.Paginate(page, pageSize)).Find(&logs).Error
	return logs, total, err
}
