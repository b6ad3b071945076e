package services

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"caisse/internal/models"

	"gorm.io/gorm"
)

type CategoryService struct {
	db *gorm.DB
}

var colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

func NewCategoryService(db *gorm.DB) *CategoryService {
	return &CategoryService{db: db}
}

// Create 创建商品分类
func (s *CategoryService) Create(entityID uint, name, color string) (*models.ProductCategory, error) {
	name = strings.TrimSpace(name)
	if err := validateCategory(name, color); err != nil {
		return nil, err
	}
	if color == "" {
		color = "#2196F3"
	}

	var count int64
	s.db.Model(&models.ProductCategory{}).Where("entity_id = ? AND name = ?", entityID, name).Count(&count)
	if count > 0 {
		return nil, duplicate("分类已存在")
	}

	category := &models.ProductCategory{EntityID: entityID, Name: name, Color: color}
	if err := s.db.Create(category).Error; err != nil {
		return nil, err
	}
	return category, nil
}

// GetByID 根据ID获取分类
func (s *CategoryService) GetByID(entityID, id uint) (*models.ProductCategory, error) {
	var category models.ProductCategory
	err := s.db.Where("entity_id = ?", entityID).First(&category, id).Error
	return &category, err
}

// List 经营主体的全部分类
func (s *CategoryService) List(entityID uint) ([]models.ProductCategory, error) {
	var categories []models.ProductCategory
	err := s.db.Where("entity_id = ?", entityID).Order("name").Find(&categories).Error
	return categories, err
}

// Update 更新分类名称或颜色
func (s *CategoryService) Update(entityID, id uint, name, color string) (*models.ProductCategory, error) {
	category, err := s.GetByID(entityID, id)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = category.Name
	}
	if err := validateCategory(name, color); err != nil {
		return nil, err
	}

	if name != category.Name {
		var count int64
		s.db.Model(&models.ProductCategory{}).Where("entity_id = ? AND name = ? AND id <> ?", entityID, name, id).Count(&count)
		if count > 0 {
			return nil, duplicate("分类已存在")
		}
		category.Name = name
	}
	if color != "" {
		category.Color = color
	}

	if err := s.db.Save(category).Error; err != nil {
		return nil, err
	}
	return category, nil
}

// Delete 删除分类（检查是否被商品使用）
func (s *CategoryService) Delete(entityID, id uint) error {
	if _, err := s.GetByID(entityID, id); err != nil {
		return err
	}
	var count int64
	if err := s.db.Model(&models.Product{}).Where("category_id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrInUse
	}
	return s.db.Delete(&models.ProductCategory{}, id).Error
}

func validateCategory(name, color string) error {
	n := utf8.RuneCountInString(name)
	if n < 1 || n > 100 {
		return invalidParam("分类名称长度必须在1-100个字符之间")
	}
	if color != "" && !colorPattern.MatchString(color) {
		return invalidParam("颜色格式错误，应为 #RRGGBB")
	}
	return nil
}
