package handlers

import (
	"caisse/internal/services"
	"caisse/pkg/response"

	"github.com/gin-gonic/gin"
)

type DashboardHandler struct {
	service *services.DashboardService
}

func NewDashboardHandler(service *services.DashboardService) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// Summary 按角色返回首页数据
func (h *DashboardHandler) Summary(c *gin.Context) {
	summary, err := h.service.Summary(actor(c))
	if err != nil {
		handleError(c, err, "获取首页数据失败")
		return
	}
	response.Success(c, summary)
}
