package services

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"caisse/internal/models"
	"caisse/pkg/pagination"

	"gorm.io/gorm"
)

type EntityService struct {
	db *gorm.DB
}

// EntityStats 经营主体统计信息
type EntityStats struct {
	Total     int64 `json:"total"`
	Active    int64 `json:"active"`
	Inactive  int64 `json:"inactive"`
	Cosmetics int64 `json:"cosmetics"`
	Spices    int64 `json:"spices"`
}

// EntityInput 创建/更新经营主体参数
type EntityInput struct {
	Name          string
	Code          string
	Type          string
	Phone         string
	Address       string
	Currency      string
	WhatsAppPhone string
}

var entityCodePattern = regexp.MustCompile(`^[A-Z0-9]{2,20}$`)

func NewEntityService(db *gorm.DB) *EntityService {
	return &EntityService{db: db}
}

// GetWithFiltersAndPage 组合查询（分页版本）
func (s *EntityService) GetWithFiltersAndPage(status, entityType, keyword string, page, pageSize int) ([]*models.Entity, int64, error) {
	var entities []*models.Entity
	var total int64

	query := s.db.Model(&models.Entity{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if entityType != "" {
		query = query.Where("type = ?", entityType)
	}
	if keyword != "" {
		pattern := likePattern(keyword)
		query = query.Where("LOWER(name) LIKE ? OR LOWER(code) LIKE ?", pattern, pattern)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.Order("created_at DESC").Scopes(pagination.Paginate(page, pageSize)).Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	s.fillUserCounts(entities)
	return entities, total, nil
}

func (s *EntityService) fillUserCounts(entities []*models.Entity) {
	if len(entities) == 0 {
		return
	}
	ids := make([]uint, len(entities))
	for i, e := range entities {
		ids[i] = e.ID
	}

	type row struct {
		EntityID uint
		Count    int
	}
	var rows []row
	s.db.Model(&models.User{}).
		Select("entity_id, COUNT(*) as count").
		Where("entity_id IN ?", ids).
		Group("entity_id").
		Scan(&rows)

	counts := make(map[uint]int, len(rows))
	for _, r := range rows {
		counts[r.EntityID] = r.Count
	}
	for _, e := range entities {
		e.UserCount = counts[e.ID]
	}
}

// Create 创建经营主体
func (s *EntityService) Create(in EntityInput) (*models.Entity, error) {
	return s.create(s.db, in)
}

func (s *EntityService) create(tx *gorm.DB, in EntityInput) (*models.Entity, error) {
	in.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	if err := s.validate(in); err != nil {
		return nil, err
	}

	var count int64
	tx.Model(&models.Entity{}).Where("code = ?", in.Code).Count(&count)
	if count > 0 {
		return nil, duplicate("经营主体代码已存在")
	}

	entity := &models.Entity{
		Name:          strings.TrimSpace(in.Name),
		Code:          in.Code,
		Type:          in.Type,
		Status:        models.EntityStatusActive,
		Phone:         in.Phone,
		Address:       in.Address,
		Currency:      in.Currency,
		WhatsAppPhone: in.WhatsAppPhone,
	}
	if entity.Currency == "" {
		entity.Currency = "XOF"
	}

	if err := tx.Create(entity).Error; err != nil {
		if isDuplicateKey(err) {
			return nil, duplicate("经营主体代码已存在")
		}
		return nil, err
	}
	return entity, nil
}

// GetByID 根据ID获取经营主体
func (s *EntityService) GetByID(id uint) (*models.Entity, error) {
	var entity models.Entity
	if err := s.db.First(&entity, id).Error; err != nil {
		return nil, err
	}
	var count int64
	s.db.Model(&models.User{}).Where("entity_id = ?", id).Count(&count)
	entity.UserCount = int(count)
	return &entity, nil
}

// Update 更新经营主体（代码不可修改）
func (s *EntityService) Update(id uint, in EntityInput) (*models.Entity, error) {
	var entity models.Entity
	if err := s.db.First(&entity, id).Error; err != nil {
		return nil, err
	}

	in.Code = entity.Code
	if in.Type == "" {
		in.Type = entity.Type
	}
	if err := s.validate(in); err != nil {
		return nil, err
	}

	entity.Name = strings.TrimSpace(in.Name)
	entity.Type = in.Type
	entity.Phone = in.Phone
	entity.Address = in.Address
	entity.WhatsAppPhone = in.WhatsAppPhone
	if in.Currency != "" {
		entity.Currency = in.Currency
	}

	if err := s.db.Save(&entity).Error; err != nil {
		return nil, err
	}
	return &entity, nil
}

// Activate 激活经营主体
func (s *EntityService) Activate(id uint) (*models.Entity, error) {
	return s.setStatus(id, models.EntityStatusActive)
}

// Deactivate 停用经营主体，其用户将无法登录
func (s *EntityService) Deactivate(id uint) (*models.Entity, error) {
	return s.setStatus(id, models.EntityStatusInactive)
}

func (s *EntityService) setStatus(id uint, status string) (*models.Entity, error) {
	var entity models.Entity
	if err := s.db.First(&entity, id).Error; err != nil {
		return nil, err
	}
	entity.Status = status
	if err := s.db.Save(&entity).Error; err != nil {
		return nil, err
	}
	return &entity, nil
}

// Delete 删除经营主体，已有销售记录的主体只能停用
func (s *EntityService) Delete(id uint) error {
	var entity models.Entity
	if err := s.db.First(&entity, id).Error; err != nil {
		return err
	}

	var invoices int64
	if err := s.db.Model(&models.Invoice{}).Where("entity_id = ?", id).Count(&invoices).Error; err != nil {
		return err
	}
	if invoices > 0 {
		return ErrInUse
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		orderIDs := tx.Model(&models.Order{}).Select("id").Where("entity_id = ?", id)
		if err := tx.Where("order_id IN (?)", orderIDs).Delete(&models.OrderLine{}).Error; err != nil {
			return err
		}
		// 按外键依赖顺序删除
		for _, model := range []interface{}{
			&models.Order{}, &models.Permission{}, &models.StockThreshold{}, &models.StockMovement{},
			&models.Stock{}, &models.Product{}, &models.ProductCategory{}, &models.Notification{},
			&models.CashMovement{}, &models.CashSession{}, &models.AuditLog{}, &models.User{},
		} {
			if err := tx.Where("entity_id = ?", id).Delete(model).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&models.Entity{}, id).Error
	})
}

// GetStats 获取经营主体统计
func (s *EntityService) GetStats() (*EntityStats, error) {
	stats := &EntityStats{}
	s.db.Model(&models.Entity{}).Count(&stats.Total)
	s.db.Model(&models.Entity{}).Where("status = ?", models.EntityStatusActive).Count(&stats.Active)
	s.db.Model(&models.Entity{}).Where("status = ?", models.EntityStatusInactive).Count(&stats.Inactive)
	s.db.Model(&models.Entity{}).Where("type = ?", models.EntityTypeCosmetics).Count(&stats.Cosmetics)
	s.db.Model(&models.Entity{}).Where("type = ?", models.EntityTypeSpices).Count(&stats.Spices)
	return stats, nil
}

func (s *EntityService) validate(in EntityInput) error {
	nameLen := utf8.RuneCountInString(strings.TrimSpace(in.Name))
	if nameLen < 2 || nameLen > 100 {
		return invalidParam("经营主体名称长度必须在2-100个字符之间")
	}
	if !entityCodePattern.MatchString(in.Code) {
		return invalidParam("经营主体代码只能包含2-20位大写字母或数字")
	}
	if in.Type != models.EntityTypeCosmetics && in.Type != models.EntityTypeSpices {
		return invalidParam("经营主体类型必须是 cosmetics 或 spices")
	}
	return nil
}
