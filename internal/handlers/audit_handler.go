package handlers

import (
	"caisse/internal/services"
	"caisse/pkg/pagination"
	"caisse/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	service *services.AuditService
}

func NewAuditHandler(service *services.AuditService) *AuditHandler {
	return &AuditHandler{service: service}
}

// GetAll 审计日志
func (h *AuditHandler) GetAll(c *gin.Context) {
	r, ok := dateRange(c)
	if !ok {
		return
	}
	pageParams := pagination.ParsePageParams(c)
	filter := services.AuditFilter{
		EntityID: queryUint(c, "entity_id"),
		Resource: c.Query("resource"),
		Action:   c.Query("action"),
		UserID:   queryUint(c, "user_id"),
		Range:    r,
	}

	logs, total, err := h.service.GetWithFiltersAndPage(actor(c), filter, pageParams.Page, pageParams.PageSize)
	if err != nil {
		response.ServerError(c, "查询失败")
		return
	}
	response.SuccessWithPage(c, logs, pagination.NewPageInfo(pageParams.Page, pageParams.PageSize, total))
}
