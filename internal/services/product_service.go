package services

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"caisse/internal/models"
	"caisse/pkg/pagination"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ProductService struct {
	db *gorm.DB
}

// ProductInput 创建/更新商品参数
type ProductInput struct {
	CategoryID    *uint
	SKU           string
	Barcode       string
	Name          string
	Unit          string
	PurchasePrice decimal.Decimal
	SalePrice     decimal.Decimal
	Active        *bool
	MinQuantity   decimal.Decimal // 库存告警水位，仅创建时使用
}

// ProductFilter 商品列表过滤
type ProductFilter struct {
	Keyword    string
	CategoryID uint
	Active     *bool
}

var validUnits = map[string]bool{"piece": true, "kg": true, "g": true, "l": true, "ml": true}

func NewProductService(db *gorm.DB) *ProductService {
	return &ProductService{db: db}
}

// Create 创建商品并初始化库存行（数量0）
func (s *ProductService) Create(entityID uint, in ProductInput) (*models.Product, error) {
	in.SKU = strings.ToUpper(strings.TrimSpace(in.SKU))
	if in.Unit == "" {
		in.Unit = "piece"
	}
	if err := s.validate(entityID, in); err != nil {
		return nil, err
	}
	if in.MinQuantity.IsNegative() {
		return nil, invalidParam("告警水位不能为负数")
	}
	if exceedsPlaces(in.MinQuantity, quantityPlaces) {
		return nil, invalidParam("告警水位最多保留3位小数")
	}

	var count int64
	if err := s.db.Model(&models.Product{}).Where("entity_id = ? AND sku = ?", entityID, in.SKU).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, duplicate("商品编码已存在")
	}

	active := true
	if in.Active != nil {
		active = *in.Active
	}
	product := &models.Product{
		EntityID:      entityID,
		CategoryID:    in.CategoryID,
		SKU:           in.SKU,
		Barcode:       strings.TrimSpace(in.Barcode),
		Name:          strings.TrimSpace(in.Name),
		Unit:          in.Unit,
		PurchasePrice: in.PurchasePrice,
		SalePrice:     in.SalePrice,
		Active:        active,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(product).Error; err != nil {
			if isDuplicateKey(err) {
				return duplicate("商品编码已存在")
			}
			return err
		}
		stock := &models.Stock{
			EntityID:    entityID,
			ProductID:   product.ID,
			Quantity:    decimal.Zero,
			MinQuantity: in.MinQuantity,
		}
		if err := tx.Create(stock).Error; err != nil {
			return err
		}
		product.Stock = stock
		return nil
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

// GetByID 根据ID获取商品
func (s *ProductService) GetByID(entityID, id uint) (*models.Product, error) {
	var product models.Product
	err := s.db.Preload("Category").Preload("Stock").
		Where("entity_id = ?", entityID).
		First(&product, id).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetByBarcode 扫码查找在售商品
func (s *ProductService) GetByBarcode(entityID uint, barcode string) (*models.Product, error) {
	var product models.Product
	err := s.db.Preload("Stock").
		Where("entity_id = ? AND active = ? AND (barcode = ? OR sku = ?)", entityID, true, barcode, strings.ToUpper(barcode)).
		First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetWithFiltersAndPage 组合查询（分页版本）
func (s *ProductService) GetWithFiltersAndPage(entityID uint, filter ProductFilter, page, pageSize int) ([]*models.Product, int64, error) {
	var products []*models.Product
	var total int64

	query := s.db.Model(&models.Product{}).Where("entity_id = ?", entityID)
	if filter.Keyword != "" {
		pattern := likePattern(filter.Keyword)
		query = query.Where("LOWER(name) LIKE ? OR LOWER(sku) LIKE ? OR barcode = ?", pattern, pattern, filter.Keyword)
	}
	if filter.CategoryID != 0 {
		query = query.Where("category_id = ?", filter.CategoryID)
	}
	if filter.Active != nil {
		query = query.Where("active = ?", *filter.Active)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Preload("Category").Preload("Stock").
		Order("name").Scopes(pagination.Paginate(page, pageSize)).Find(&products).Error
	return products, total, err
}

// Update 更新商品（编码不可修改）
func (s *ProductService) Update(entityID, id uint, in ProductInput) (*models.Product, error) {
	product, err := s.GetByID(entityID, id)
	if err != nil {
		return nil, err
	}

	in.SKU = product.SKU
	if in.Unit == "" {
		in.Unit = product.Unit
	}
	if in.Name == "" {
		in.Name = product.Name
	}
	if err := s.validate(entityID, in); err != nil {
		return nil, err
	}

	product.CategoryID = in.CategoryID
	product.Barcode = strings.TrimSpace(in.Barcode)
	product.Name = strings.TrimSpace(in.Name)
	product.Unit = in.Unit
	product.PurchasePrice = in.PurchasePrice
	product.SalePrice = in.SalePrice
	if in.Active != nil {
		product.Active = *in.Active
	}

	product.Category = nil
	product.Stock = nil
	if err := s.db.Save(product).Error; err != nil {
		return nil, err
	}
	return s.GetByID(entityID, id)
}

// Delete 删除商品；有发票、采购单或库存流水的商品只能停用
func (s *ProductService) Delete(entityID, id uint) error {
	if _, err := s.GetByID(entityID, id); err != nil {
		return err
	}

	for _, model := range []interface{}{&models.InvoiceLine{}, &models.OrderLine{}, &models.StockMovement{}} {
		var count int64
		if err := s.db.Model(model).Where("product_id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: 商品已有业务记录，请停用", ErrInUse)
		}
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, model := range []interface{}{&models.StockThreshold{}, &models.Stock{}} {
			if err := tx.Where("entity_id = ? AND product_id = ?", entityID, id).Delete(model).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&models.Product{}, id).Error
	})
}

func (s *ProductService) validate(entityID uint, in ProductInput) error {
	if in.SKU == "" || utf8.RuneCountInString(in.SKU) > 50 {
		return invalidParam("商品编码不能为空且不超过50个字符")
	}
	n := utf8.RuneCountInString(strings.TrimSpace(in.Name))
	if n < 1 || n > 150 {
		return invalidParam("商品名称长度必须在1-150个字符之间")
	}
	if !validUnits[in.Unit] {
		return invalidParam("无效的计量单位: %s", in.Unit)
	}
	if in.PurchasePrice.IsNegative() || in.SalePrice.IsNegative() {
		return invalidParam("价格不能为负数")
	}
	if exceedsPlaces(in.PurchasePrice, moneyPlaces) || exceedsPlaces(in.SalePrice, moneyPlaces) {
		return invalidParam("价格最多保留2位小数")
	}
	if in.CategoryID != nil {
		var category models.ProductCategory
		err := s.db.Where("entity_id = ?", entityID).First(&category, *in.CategoryID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return invalidParam("分类不存在")
		}
		if err != nil {
			return err
		}
	}
	return nil
}
