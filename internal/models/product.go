package models

import "github.com/shopspring/decimal"

// ProductCategory 商品分类
type ProductCategory struct {
	BaseModel
	EntityID uint   `gorm:"not null;index;uniqueIndex:idx_category_entity_name" json:"entity_id"`
	Name     string `gorm:"size:100;not null;uniqueIndex:idx_category_entity_name" json:"name"`
	Color    string `gorm:"size:7;default:'#2196F3'" json:"color"` // 默认蓝色
}

// TableName 指定表名
func (ProductCategory) TableName() string {
	return "product_categories"
}

// Product 商品
type Product struct {
	BaseModel
	EntityID      uint            `gorm:"not null;index;uniqueIndex:idx_product_entity_sku" json:"entity_id"`
	CategoryID    *uint           `gorm:"index" json:"category_id"`
	SKU           string          `gorm:"size:50;not null;uniqueIndex:idx_product_entity_sku" json:"sku"`
	Barcode       string          `gorm:"size:50;index" json:"barcode"`
	Name          string          `gorm:"size:150;not null" json:"name"`
	Unit          string          `gorm:"size:20;default:'piece'" json:"unit"` // piece / kg / g / l
	PurchasePrice decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"purchase_price"`
	SalePrice     decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"sale_price"`
	Active        bool            `gorm:"not null" json:"active"`

	Category *ProductCategory `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	Stock    *Stock           `gorm:"foreignKey:ProductID" json:"stock,omitempty"`
}

// TableName 指定表名
func (Product) TableName() string {
	return "products"
}
