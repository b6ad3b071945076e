package handlers

import (
	"caisse/internal/models"
	"caisse/internal/services"
	"caisse/pkg/pagination"
	"caisse/pkg/response"

	"github.com/gin-gonic/gin"
)

type SubmitRegistrationRequest struct {
	EntityName  string `json:"entity_name" binding:"required"`
	EntityType  string `json:"entity_type" binding:"required,oneof=cosmetics spices"`
	ContactName string `json:"contact_name" binding:"required"`
	Email       string `json:"email" binding:"required,email"`
	Phone       string `json:"phone" binding:"required"`
	Username    string `json:"username" binding:"required"`
	Password    string `json:"password" binding:"required,min=8"`
}

type ApproveRegistrationRequest struct {
	Code string `json:"code"` // 为空时根据名称生成
}

type RejectRegistrationRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type RegistrationHandler struct {
	service *services.RegistrationService
	auditRecorder
}

func NewRegistrationHandler(service *services.RegistrationService, audit *services.AuditService) *RegistrationHandler {
	return &RegistrationHandler{service: service, auditRecorder: auditRecorder{audit: audit}}
}

// Submit 提交入驻申请（无需登录）
func (h *RegistrationHandler) Submit(c *gin.Context) {
	var req SubmitRegistrationRequest
	if !bindJSON(c, &req) {
		return
	}

	request, err := h.service.Submit(c.Request.Context(), services.RegistrationInput{
		EntityName:  req.EntityName,
		EntityType:  req.EntityType,
		ContactName: req.ContactName,
		Email:       req.Email,
		Phone:       req.Phone,
		Username:    req.Username,
		Password:    req.Password,
	})
	if err != nil {
		handleError(c, err, "提交申请失败")
		return
	}
	response.SuccessWithMessage(c, "申请已提交，等待平台审核", request)
}

// Status 按申请编号查询进度（无需登录）
func (h *RegistrationHandler) Status(c *gin.Context) {
	request, err := h.service.GetByReference(c.Param("reference"))
	if err != nil {
		handleError(c, err, "查询失败")
		return
	}
	response.Success(c, gin.H{
		"reference":        request.Reference,
		"entity_name":      request.EntityName,
		"status":           request.Status,
		"rejection_reason": request.RejectionReason,
		"created_at":       request.CreatedAt,
	})
}

// GetAll 申请列表
func (h *RegistrationHandler) GetAll(c *gin.Context) {
	pageParams := pagination.ParsePageParams(c)

	requests, total, err := h.service.GetWithFiltersAndPage(c.Query("status"), c.Query("keyword"), pageParams.Page, pageParams.PageSize)
	if err != nil {
		response.ServerError(c, "查询失败")
		return
	}
	response.SuccessWithPage(c, requests, pagination.NewPageInfo(pageParams.Page, pageParams.PageSize, total))
}

// GetByID 申请详情
func (h *RegistrationHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	request, err := h.service.GetByID(id)
	if err != nil {
		handleError(c, err, "查询失败")
		return
	}
	response.Success(c, request)
}

// Approve 审批通过：创建经营主体和管理员账号
func (h *RegistrationHandler) Approve(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req ApproveRegistrationRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	result, err := h.service.Approve(c.Request.Context(), actor(c), id, req.Code)
	if err != nil {
		handleError(c, err, "审批失败")
		return
	}
	h.record(c, "approve", models.ResourceRegistrations, id, gin.H{"entity_id": result.Entity.ID, "code": result.Entity.Code})
	response.SuccessWithMessage(c, "申请已通过", result)
}

// Reject 拒绝申请
func (h *RegistrationHandler) Reject(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req RejectRegistrationRequest
	if !bindJSON(c, &req) {
		return
	}

	request, err := h.service.Reject(actor(c), id, req.Reason)
	if err != nil {
		handleError(c, err, "操作失败")
		return
	}
	h.record(c, "reject", models.ResourceRegistrations, id, req)
	response.SuccessWithMessage(c, "申请已拒绝", request)
}
