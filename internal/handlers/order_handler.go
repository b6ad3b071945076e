package handlers

import (
	"time"

	"caisse/internal/models"
	"caisse/internal/services"
	"caisse/pkg/pagination"
	"caisse/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type OrderLineRequest struct {
	ProductID uint             `json:"product_id" binding:"required"`
	Quantity  decimal.Decimal  `json:"quantity"`
	UnitCost  *decimal.Decimal `json:"unit_cost"`
}

type CreateOrderRequest struct {
	SupplierName  string             `json:"supplier_name" binding:"max=200"`
	SupplierPhone string             `json:"supplier_phone" binding:"max=30"`
	Notes         string             `json:"notes" binding:"max=255"`
	ExpectedAt    *time.Time         `json:"expected_at"`
	Lines         []OrderLineRequest `json:"lines" binding:"required,min=1,dive"`
}

type ReceiveLineRequest struct {
	LineID   uint            `json:"line_id" binding:"required"`
	Quantity decimal.Decimal `json:"quantity"`
}

// ReceiveOrderRequest 未列出的订单行按订购数量全部入库
type ReceiveOrderRequest struct {
	Lines []ReceiveLineRequest `json:"lines" binding:"dive"`
}

type OrderHandler struct {
	service *services.OrderService
	auditRecorder
}

func NewOrderHandler(service *services.OrderService, audit *services.AuditService) *OrderHandler {
	return &OrderHandler{service: service, auditRecorder: auditRecorder{audit: audit}}
}

// Create 创建采购订单
func (h *OrderHandler) Create(c *gin.Context) {
	var req CreateOrderRequest
	if !bindJSON(c, &req) {
		return
	}

	in := services.OrderInput{
		SupplierName:  req.SupplierName,
		SupplierPhone: req.SupplierPhone,
		Notes:         req.Notes,
		ExpectedAt:    req.ExpectedAt,
	}
	for _, l := range req.Lines {
		in.Lines = append(in.Lines, services.OrderLineInput{ProductID: l.ProductID, Quantity: l.Quantity, UnitCost: l.UnitCost})
	}

	order, err := h.service.Create(actor(c), in)
	if err != nil {
		handleError(c, err, "创建订单失败")
		return
	}
	h.record(c, "create", models.ResourceOrders, order.ID, gin.H{"number": order.Number, "total": order.Total})
	response.SuccessWithMessage(c, "创建成功", order)
}

// GetAll 订单列表
func (h *OrderHandler) GetAll(c *gin.Context) {
	r, ok := dateRange(c)
	if !ok {
		return
	}
	pageParams := pagination.ParsePageParams(c)
	filter := services.OrderFilter{
		Status: c.Query("status"),
		IsAuto: queryBool(c, "is_auto"),
		Range:  r,
	}

	orders, total, err := h.service.GetWithFiltersAndPage(actor(c).EntityID, filter, pageParams.Page, pageParams.PageSize)
	if err != nil {
		response.ServerError(c, "查询失败")
		return
	}
	response.SuccessWithPage(c, orders, pagination.NewPageInfo(pageParams.Page, pageParams.PageSize, total))
}

// GetByID 订单详情
func (h *OrderHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	order, err := h.service.GetByID(actor(c).EntityID, id)
	if err != nil {
		handleError(c, err, "查询失败")
		return
	}
	response.Success(c, order)
}

// Confirm 确认订单（已发给供应商）
func (h *OrderHandler) Confirm(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	order, err := h.service.Confirm(actor(c).EntityID, id)
	if err != nil {
		handleError(c, err, "确认订单失败")
		return
	}
	h.record(c, "confirm", models.ResourceOrders, id, nil)
	response.SuccessWithMessage(c, "订单已确认", order)
}

// Cancel 取消订单
func (h *OrderHandler) Cancel(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	order, err := h.service.Cancel(actor(c).EntityID, id)
	if err != nil {
		handleError(c, err, "取消订单失败")
		return
	}
	h.record(c, "cancel", models.ResourceOrders, id, nil)
	response.SuccessWithMessage(c, "订单已取消", order)
}

// Receive 收货入库
func (h *OrderHandler) Receive(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req ReceiveOrderRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	received := make(map[uint]decimal.Decimal, len(req.Lines))
	for _, l := range req.Lines {
		received[l.LineID] = l.Quantity
	}

	order, err := h.service.Receive(actor(c), id, received)
	if err != nil {
		handleError(c, err, "收货失败")
		return
	}
	h.record(c, "receive", models.ResourceOrders, id, req)
	response.SuccessWithMessage(c, "收货完成", order)
}
