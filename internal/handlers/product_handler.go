package handlers

import (
	"caisse/internal/models"
	"caisse/internal/services"
	"caisse/pkg/pagination"
	"caisse/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type CategoryRequest struct {
	Name  string `json:"name" binding:"required,max=100"`
	Color string `json:"color"`
}

type ProductRequest struct {
	CategoryID    *uint           `json:"category_id"`
	SKU           string          `json:"sku" binding:"required,max=50"`
	Barcode       string          `json:"barcode" binding:"max=64"`
	Name          string          `json:"name" binding:"required,max=200"`
	Unit          string          `json:"unit" binding:"omitempty,oneof=piece kg g l ml"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	Active        *bool           `json:"active"`
	MinQuantity   decimal.Decimal `json:"min_quantity"`
}

func (r ProductRequest) input() services.ProductInput {
	return services.ProductInput{
		CategoryID:    r.CategoryID,
		SKU:           r.SKU,
		Barcode:       r.Barcode,
		Name:          r.Name,
		Unit:          r.Unit,
		PurchasePrice: r.PurchasePrice,
		SalePrice:     r.SalePrice,
		Active:        r.Active,
		MinQuantity:   r.MinQuantity,
	}
}

type ProductHandler struct {
	products   *services.ProductService
	categories *services.CategoryService
	auditRecorder
}

func NewProductHandler(products *services.ProductService, categories *services.CategoryService, audit *services.AuditService) *ProductHandler {
	return &ProductHandler{products: products, categories: categories, auditRecorder: auditRecorder{audit: audit}}
}

// ==================== 分类 ====================

// ListCategories 分类列表
func (h *ProductHandler) ListCategories(c *gin.Context) {
	categories, err := h.categories.List(actor(c).EntityID)
	if err != nil {
		response.ServerError(c, "查询失败")
		return
	}
	response.Success(c, categories)
}

// CreateCategory 创建分类
func (h *ProductHandler) CreateCategory(c *gin.Context) {
	var req CategoryRequest
	if !bindJSON(c, &req) {
		return
	}

	category, err := h.categories.Create(actor(c).EntityID, req.Name, req.Color)
	if err != nil {
		handleError(c, err, "创建分类失败")
		return
	}
	h.record(c, "create", models.ResourceProducts, category.ID, gin.H{"category": category.Name})
	response.SuccessWithMessage(c, "创建成功", category)
}

// UpdateCategory 更新分类
func (h *ProductHandler) UpdateCategory(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req CategoryRequest
	if !bindJSON(c, &req) {
		return
	}

	category, err := h.categories.Update(actor(c).EntityID, id, req.Name, req.Color)
	if err != nil {
		handleError(c, err, "更新分类失败")
		return
	}
	response.SuccessWithMessage(c, "更新成功", category)
}

// DeleteCategory 删除分类
func (h *ProductHandler) DeleteCategory(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.categories.Delete(actor(c).EntityID, id); err != nil {
		handleError(c, err, "删除分类失败")
		return
	}
	h.record(c, "delete", models.ResourceProducts, id, gin.H{"category": true})
	response.SuccessWithMessage(c, "删除成功", nil)
}

// ==================== 商品 ====================

// GetAll 商品列表
func (h *ProductHandler) GetAll(c *gin.Context) {
	pageParams := pagination.ParsePageParams(c)
	filter := services.ProductFilter{
		Keyword:    c.Query("keyword"),
		CategoryID: queryUint(c, "category_id"),
		Active:     queryBool(c, "active"),
	}

	products, total, err := h.products.GetWithFiltersAndPage(actor(c).EntityID, filter, pageParams.Page, pageParams.PageSize)
	if err != nil {
		response.ServerError(c, "查询失败")
		return
	}
	response.SuccessWithPage(c, products, pagination.NewPageInfo(pageParams.Page, pageParams.PageSize, total))
}

// GetByID 商品详情
func (h *ProductHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	product, err := h.products.GetByID(actor(c).EntityID, id)
	if err != nil {
		handleError(c, err, "查询失败")
		return
	}
	response.Success(c, product)
}

// GetByBarcode 扫码查询
func (h *ProductHandler) GetByBarcode(c *gin.Context) {
	product, err := h.products.GetByBarcode(actor(c).EntityID, c.Param("barcode"))
	if err != nil {
		handleError(c, err, "查询失败")
		return
	}
	response.Success(c, product)
}

// Create 创建商品
func (h *ProductHandler) Create(c *gin.Context) {
	var req ProductRequest
	if !bindJSON(c, &req) {
		return
	}

	product, err := h.products.Create(actor(c).EntityID, req.input())
	if err != nil {
		handleError(c, err, "创建商品失败")
		return
	}
	h.record(c, "create", models.ResourceProducts, product.ID, gin.H{"sku": product.SKU, "name": product.Name})
	response.SuccessWithMessage(c, "创建成功", product)
}

// Update 更新商品
func (h *ProductHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req ProductRequest
	if !bindJSON(c, &req) {
		return
	}

	product, err := h.products.Update(actor(c).EntityID, id, req.input())
	if err != nil {
		handleError(c, err, "更新商品失败")
		return
	}
	h.record(c, "update", models.ResourceProducts, id, req)
	response.SuccessWithMessage(c, "更新成功", product)
}

// Delete 删除商品
func (h *ProductHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.products.Delete(actor(c).EntityID, id); err != nil {
		handleError(c, err, "删除商品失败")
		return
	}
	h.record(c, "delete", models.ResourceProducts, id, nil)
	response.SuccessWithMessage(c, "删除成功", nil)
}
