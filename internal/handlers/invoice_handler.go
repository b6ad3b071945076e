package handlers

import (
	"caisse/internal/models"
	"caisse/internal/services"
	"caisse/pkg/pagination"
	"caisse/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type InvoiceLineRequest struct {
	ProductID uint            `json:"product_id" binding:"required"`
	Quantity  decimal.Decimal `json:"quantity"`
	Discount  decimal.Decimal `json:"discount"`
}

type CreateInvoiceRequest struct {
	CustomerName  string               `json:"customer_name" binding:"max=200"`
	CustomerPhone string               `json:"customer_phone" binding:"max=30"`
	PaymentMethod string               `json:"payment_method" binding:"required,oneof=cash card mobile_money"`
	Discount      decimal.Decimal      `json:"discount"`
	Notes         string               `json:"notes" binding:"max=255"`
	Lines         []InvoiceLineRequest `json:"lines" binding:"required,min=1,dive"`
	Validate      bool                 `json:"validate"`
	SendReceipt   bool                 `json:"send_receipt"`
}

type ValidateInvoiceRequest struct {
	SendReceipt bool `json:"send_receipt"`
}

type CancelInvoiceRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

type InvoiceHandler struct {
	service *services.InvoiceService
	auditRecorder
}

func NewInvoiceHandler(service *services.InvoiceService, audit *services.AuditService) *InvoiceHandler {
	return &InvoiceHandler{service: service, auditRecorder: auditRecorder{audit: audit}}
}

// Create 开票（可选立即确认）
func (h *InvoiceHandler) Create(c *gin.Context) {
	var req CreateInvoiceRequest
	if !bindJSON(c, &req) {
		return
	}

	in := services.InvoiceInput{
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		PaymentMethod: req.PaymentMethod,
		Discount:      req.Discount,
		Notes:         req.Notes,
		Validate:      req.Validate,
		SendReceipt:   req.SendReceipt,
	}
	for _, l := range req.Lines {
		in.Lines = append(in.Lines, services.InvoiceLineInput{ProductID: l.ProductID, Quantity: l.Quantity, Discount: l.Discount})
	}

	invoice, err := h.service.Create(c.Request.Context(), actor(c), in)
	if err != nil {
		handleError(c, err, "开票失败")
		return
	}
	h.record(c, "create", models.ResourceInvoices, invoice.ID, gin.H{"number": invoice.Number, "status": invoice.Status, "total": invoice.Total})
	response.SuccessWithMessage(c, "开票成功", invoice)
}

// GetAll 发票列表，收银员只能看到自己开的发票
func (h *InvoiceHandler) GetAll(c *gin.Context) {
	r, ok := dateRange(c)
	if !ok {
		return
	}
	pageParams := pagination.ParsePageParams(c)
	filter := services.InvoiceFilter{
		Status:        c.Query("status"),
		PaymentMethod: c.Query("payment_method"),
		CreatedBy:     queryUint(c, "created_by"),
		Keyword:       c.Query("keyword"),
		Range:         r,
	}

	invoices, total, err := h.service.GetWithFiltersAndPage(actor(c), filter, pageParams.Page, pageParams.PageSize)
	if err != nil {
		response.ServerError(c, "查询失败")
		return
	}
	response.SuccessWithPage(c, invoices, pagination.NewPageInfo(pageParams.Page, pageParams.PageSize, total))
}

// GetByID 发票详情
func (h *InvoiceHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	invoice, err := h.service.GetByID(actor(c), id)
	if err != nil {
		handleError(c, err, "查询失败")
		return
	}
	response.Success(c, invoice)
}

// Validate 确认草稿发票：扣减库存并计入收银会话
func (h *InvoiceHandler) Validate(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req ValidateInvoiceRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	invoice, err := h.service.Validate(c.Request.Context(), actor(c), id, req.SendReceipt)
	if err != nil {
		handleError(c, err, "确认发票失败")
		return
	}
	h.record(c, "validate", models.ResourceInvoices, id, gin.H{"number": invoice.Number, "total": invoice.Total})
	response.SuccessWithMessage(c, "发票已确认", invoice)
}

// Cancel 作废发票，已确认的发票回补库存
func (h *InvoiceHandler) Cancel(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req CancelInvoiceRequest
	if !bindJSON(c, &req) {
		return
	}

	invoice, err := h.service.Cancel(actor(c), id, req.Reason)
	if err != nil {
		handleError(c, err, "作废发票失败")
		return
	}
	h.record(c, "cancel", models.ResourceInvoices, id, gin.H{"number": invoice.Number, "reason": req.Reason})
	response.SuccessWithMessage(c, "发票已作废", invoice)
}

// Print 可打印的发票（HTML，浏览器打印为 PDF）
func (h *InvoiceHandler) Print(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	doc, err := h.service.Document(actor(c), id)
	if err != nil {
		handleError(c, err, "生成发票失败")
		return
	}
	renderDocument(c, *doc)
}
