package handlers

import (
	"caisse/internal/models"
	"caisse/internal/services"
	"caisse/pkg/pagination"
	"caisse/pkg/response"

	"github.com/gin-gonic/gin"
)

// EntityRequest 创建/更新经营主体
type EntityRequest struct {
	Name          string `json:"name" binding:"required"`
	Code          string `json:"code"`
	Type          string `json:"type" binding:"omitempty,oneof=cosmetics spices"`
	Phone         string `json:"phone"`
	Address       string `json:"address"`
	Currency      string `json:"currency"`
	WhatsAppPhone string `json:"whatsapp_phone"`
}

func (r EntityRequest) input() services.EntityInput {
	return services.EntityInput{
		Name:          r.Name,
		Code:          r.Code,
		Type:          r.Type,
		Phone:         r.Phone,
		Address:       r.Address,
		Currency:      r.Currency,
		WhatsAppPhone: r.WhatsAppPhone,
	}
}

type EntityHandler struct {
	service *services.EntityService
	auditRecorder
}

func NewEntityHandler(service *services.EntityService, audit *services.AuditService) *EntityHandler {
	return &EntityHandler{service: service, auditRecorder: auditRecorder{audit: audit}}
}

// Create 创建经营主体
func (h *EntityHandler) Create(c *gin.Context) {
	var req EntityRequest
	if !bindJSON(c, &req) {
		return
	}

	entity, err := h.service.Create(req.input())
	if err != nil {
		handleError(c, err, "创建失败")
		return
	}
	h.record(c, "create", models.ResourceEntities, entity.ID, req)
	response.Success(c, entity)
}

// GetAll 经营主体列表
func (h *EntityHandler) GetAll(c *gin.Context) {
	pageParams := pagination.ParsePageParams(c)

	entities, total, err := h.service.GetWithFiltersAndPage(c.Query("status"), c.Query("type"), c.Query("keyword"), pageParams.Page, pageParams.PageSize)
	if err != nil {
		response.ServerError(c, "查询失败")
		return
	}
	response.SuccessWithPage(c, entities, pagination.NewPageInfo(pageParams.Page, pageParams.PageSize, total))
}

// GetByID 获取经营主体
func (h *EntityHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	entity, err := h.service.GetByID(id)
	if err != nil {
		handleError(c, err, "查询失败")
		return
	}
	response.Success(c, entity)
}

// Current 当前用户所属经营主体
func (h *EntityHandler) Current(c *gin.Context) {
	entity, err := h.service.GetByID(actor(c).EntityID)
	if err != nil {
		handleError(c, err, "查询失败")
		return
	}
	response.Success(c, entity)
}

// Update 更新经营主体
func (h *EntityHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	h.update(c, id)
}

// UpdateCurrent 管理员更新本经营主体资料
func (h *EntityHandler) UpdateCurrent(c *gin.Context) {
	h.update(c, actor(c).EntityID)
}

func (h *EntityHandler) update(c *gin.Context, id uint) {
	var req EntityRequest
	if !bindJSON(c, &req) {
		return
	}

	entity, err := h.service.Update(id, req.input())
	if err != nil {
		handleError(c, err, "更新失败")
		return
	}
	h.record(c, "update", models.ResourceEntities, id, req)
	response.Success(c, entity)
}

// Activate 激活经营主体
func (h *EntityHandler) Activate(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	entity, err := h.service.Activate(id)
	if err != nil {
		handleError(c, err, "激活失败")
		return
	}
	h.record(c, "activate", models.ResourceEntities, id, nil)
	response.SuccessWithMessage(c, "经营主体已激活", entity)
}

// Deactivate 停用经营主体
func (h *EntityHandler) Deactivate(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	entity, err := h.service.Deactivate(id)
	if err != nil {
		handleError(c, err, "停用失败")
		return
	}
	h.record(c, "deactivate", models.ResourceEntities, id, nil)
	response.SuccessWithMessage(c, "经营主体已停用", entity)
}

// Delete 删除经营主体
func (h *EntityHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(id); err != nil {
		handleError(c, err, "删除失败")
		return
	}
	h.record(c, "delete", models.ResourceEntities, id, nil)
	response.Success(c, nil)
}

// GetStats 经营主体统计
func (h *EntityHandler) GetStats(c *gin.Context) {
	stats, err := h.service.GetStats()
	if err != nil {
		response.ServerError(c, "查询失败")
		return
	}
	response.Success(c, stats)
}
