package handlers

import (
	"caisse/internal/models"
	"caisse/internal/services"
	"caisse/pkg/pagination"
	"caisse/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type OpenSessionRequest struct {
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	Notes          string          `json:"notes" binding:"max=255"`
}

type CashMovementRequest struct {
	Type   string          `json:"type" binding:"required,oneof=cash_in cash_out expense"`
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason" binding:"required,max=255"`
}

type CloseSessionRequest struct {
	DeclaredBalance decimal.Decimal `json:"declared_balance"`
	Notes           string          `json:"notes" binding:"max=255"`
}

type CashSessionHandler struct {
	service *services.CashSessionService
	auditRecorder
}

func NewCashSessionHandler(service *services.CashSessionService, audit *services.AuditService) *CashSessionHandler {
	return &CashSessionHandler{service: service, auditRecorder: auditRecorder{audit: audit}}
}

// Open 开启收银会话，每人同时只能有一个
func (h *CashSessionHandler) Open(c *gin.Context) {
	var req OpenSessionRequest
	if !bindJSON(c, &req) {
		return
	}

	session, err := h.service.Open(actor(c), req.OpeningBalance, req.Notes)
	if err != nil {
		handleError(c, err, "开启会话失败")
		return
	}
	h.record(c, "open", models.ResourceCashSessions, session.ID, gin.H{"opening_balance": session.OpeningBalance})
	response.SuccessWithMessage(c, "会话已开启", session)
}

// Current 当前用户进行中的会话
func (h *CashSessionHandler) Current(c *gin.Context) {
	detail, err := h.service.Current(actor(c))
	if err != nil {
		handleError(c, err, "查询失败")
		return
	}
	response.Success(c, detail)
}

// GetAll 会话列表
func (h *CashSessionHandler) GetAll(c *gin.Context) {
	r, ok := dateRange(c)
	if !ok {
		return
	}
	pageParams := pagination.ParsePageParams(c)
	filter := services.SessionFilter{
		UserID: queryUint(c, "user_id"),
		Status: c.Query("status"),
		Range:  r,
	}

	sessions, total, err := h.service.GetWithFiltersAndPage(actor(c), filter, pageParams.Page, pageParams.PageSize)
	if err != nil {
		response.ServerError(c, "查询失败")
		return
	}
	response.SuccessWithPage(c, sessions, pagination.NewPageInfo(pageParams.Page, pageParams.PageSize, total))
}

// GetByID 会话详情（含流水汇总）
func (h *CashSessionHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	detail, err := h.service.Get(actor(c), id)
	if err != nil {
		handleError(c, err, "查询失败")
		return
	}
	response.Success(c, detail)
}

// AddMovement 登记存入/取出/支出
func (h *CashSessionHandler) AddMovement(c *gin.Context) {
	var req CashMovementRequest
	if !bindJSON(c, &req) {
		return
	}

	movement, err := h.service.AddMovement(actor(c), req.Type, req.Amount, req.Reason)
	if err != nil {
		handleError(c, err, "登记失败")
		return
	}
	h.record(c, "movement", models.ResourceCashSessions, movement.SessionID, req)
	response.SuccessWithMessage(c, "登记成功", movement)
}

// Close 清点钱箱并关闭会话
func (h *CashSessionHandler) Close(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req CloseSessionRequest
	if !bindJSON(c, &req) {
		return
	}

	session, err := h.service.Close(c.Request.Context(), actor(c), id, req.DeclaredBalance, req.Notes)
	if err != nil {
		handleError(c, err, "关闭会话失败")
		return
	}
	h.record(c, "close", models.ResourceCashSessions, id, gin.H{
		"declared": session.DeclaredBalance,
		"variance": session.Variance,
		"level":    session.VarianceLevel,
	})
	response.SuccessWithMessage(c, "会话已关闭", session)
}
