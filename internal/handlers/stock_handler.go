package handlers

import (
	"caisse/internal/models"
	"caisse/internal/services"
	"caisse/pkg/pagination"
	"caisse/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type AdjustStockRequest struct {
	Delta  *decimal.Decimal `json:"delta"`
	Count  *decimal.Decimal `json:"count"`
	Type   string           `json:"type" binding:"omitempty,oneof=adjustment return"`
	Reason string           `json:"reason" binding:"required,max=255"`
}

type MinQuantityRequest struct {
	MinQuantity decimal.Decimal `json:"min_quantity"`
}

type ThresholdRequest struct {
	ProductID       uint            `json:"product_id" binding:"required"`
	MinQuantity     decimal.Decimal `json:"min_quantity"`
	ReorderQuantity decimal.Decimal `json:"reorder_quantity"`
	SupplierName    string          `json:"supplier_name" binding:"max=200"`
	SupplierPhone   string          `json:"supplier_phone" binding:"max=30"`
	Enabled         *bool           `json:"enabled"`
}

func (r ThresholdRequest) input() services.ThresholdInput {
	return services.ThresholdInput{
		ProductID:       r.ProductID,
		MinQuantity:     r.MinQuantity,
		ReorderQuantity: r.ReorderQuantity,
		SupplierName:    r.SupplierName,
		SupplierPhone:   r.SupplierPhone,
		Enabled:         r.Enabled,
	}
}

type StockHandler struct {
	stock      *services.StockService
	thresholds *services.ThresholdService
	auditRecorder
}

func NewStockHandler(stock *services.StockService, thresholds *services.ThresholdService, audit *services.AuditService) *StockHandler {
	return &StockHandler{stock: stock, thresholds: thresholds, auditRecorder: auditRecorder{audit: audit}}
}

// GetAll 库存列表，low=true 只看低库存
func (h *StockHandler) GetAll(c *gin.Context) {
	pageParams := pagination.ParsePageParams(c)
	filter := services.StockFilter{Keyword: c.Query("keyword")}
	if low := queryBool(c, "low"); low != nil {
		filter.LowOnly = *low
	}

	rows, total, err := h.stock.List(actor(c).EntityID, filter, pageParams.Page, pageParams.PageSize)
	if err != nil {
		response.ServerError(c, "查询失败")
		return
	}
	response.SuccessWithPage(c, rows, pagination.NewPageInfo(pageParams.Page, pageParams.PageSize, total))
}

// Adjust 手工调整库存
func (h *StockHandler) Adjust(c *gin.Context) {
	productID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req AdjustStockRequest
	if !bindJSON(c, &req) {
		return
	}

	movement, err := h.stock.Adjust(c.Request.Context(), actor(c), productID, services.AdjustInput{
		Delta:  req.Delta,
		Count:  req.Count,
		Type:   req.Type,
		Reason: req.Reason,
	})
	if err != nil {
		handleError(c, err, "调整库存失败")
		return
	}
	h.record(c, "adjust", models.ResourceStock, productID, req)
	response.SuccessWithMessage(c, "库存已调整", movement)
}

// SetMinQuantity 设置告警水位
func (h *StockHandler) SetMinQuantity(c *gin.Context) {
	productID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req MinQuantityRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.stock.SetMinQuantity(actor(c).EntityID, productID, req.MinQuantity); err != nil {
		handleError(c, err, "设置失败")
		return
	}
	h.record(c, "update", models.ResourceStock, productID, req)
	response.SuccessWithMessage(c, "设置成功", nil)
}

// Movements 库存流水
func (h *StockHandler) Movements(c *gin.Context) {
	r, ok := dateRange(c)
	if !ok {
		return
	}
	pageParams := pagination.ParsePageParams(c)
	filter := services.MovementFilter{
		ProductID: queryUint(c, "product_id"),
		Type:      c.Query("type"),
		Range:     r,
	}

	movements, total, err := h.stock.ListMovements(actor(c).EntityID, filter, pageParams.Page, pageParams.PageSize)
	if err != nil {
		response.ServerError(c, "查询失败")
		return
	}
	response.SuccessWithPage(c, movements, pagination.NewPageInfo(pageParams.Page, pageParams.PageSize, total))
}

// ==================== 自动补货规则 ====================

// ListThresholds 规则列表
func (h *StockHandler) ListThresholds(c *gin.Context) {
	pageParams := pagination.ParsePageParams(c)

	thresholds, total, err := h.thresholds.List(actor(c).EntityID, pageParams.Page, pageParams.PageSize)
	if err != nil {
		response.ServerError(c, "查询失败")
		return
	}
	response.SuccessWithPage(c, thresholds, pagination.NewPageInfo(pageParams.Page, pageParams.PageSize, total))
}

// GetThreshold 规则详情
func (h *StockHandler) GetThreshold(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	threshold, err := h.thresholds.GetByID(actor(c).EntityID, id)
	if err != nil {
		handleError(c, err, "查询失败")
		return
	}
	response.Success(c, threshold)
}

// CreateThreshold 创建规则
func (h *StockHandler) CreateThreshold(c *gin.Context) {
	var req ThresholdRequest
	if !bindJSON(c, &req) {
		return
	}

	threshold, err := h.thresholds.Create(actor(c).EntityID, req.input())
	if err != nil {
		handleError(c, err, "创建规则失败")
		return
	}
	h.record(c, "create", models.ResourceThresholds, threshold.ID, req)
	response.SuccessWithMessage(c, "创建成功", threshold)
}

// UpdateThreshold 更新规则
func (h *StockHandler) UpdateThreshold(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req ThresholdRequest
	if !bindJSON(c, &req) {
		return
	}

	threshold, err := h.thresholds.Update(actor(c).EntityID, id, req.input())
	if err != nil {
		handleError(c, err, "更新规则失败")
		return
	}
	h.record(c, "update", models.ResourceThresholds, id, req)
	response.SuccessWithMessage(c, "更新成功", threshold)
}

// DeleteThreshold 删除规则
func (h *StockHandler) DeleteThreshold(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.thresholds.Delete(actor(c).EntityID, id); err != nil {
		handleError(c, err, "删除规则失败")
		return
	}
	h.record(c, "delete", models.ResourceThresholds, id, nil)
	response.SuccessWithMessage(c, "删除成功", nil)
}

// CheckThreshold 立即检查某商品是否需要补货
func (h *StockHandler) CheckThreshold(c *gin.Context) {
	productID, ok := parseID(c, "id")
	if !ok {
		return
	}

	event, err := h.thresholds.CheckAndReorder(c.Request.Context(), actor(c).EntityID, productID)
	if err != nil {
		handleError(c, err, "检查失败")
		return
	}
	if event == nil {
		response.SuccessWithMessage(c, "库存充足或已有进行中的补货订单", gin.H{"reordered": false})
		return
	}
	response.SuccessWithMessage(c, "已生成补货订单", gin.H{"reordered": true, "order": event.Order})
}
