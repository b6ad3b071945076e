package handlers

import (
	"caisse/internal/models"
	"caisse/internal/services"
	"caisse/pkg/response"

	"github.com/gin-gonic/gin"
)

type SetMatrixRequest struct {
	EntityID uint                    `json:"entity_id"` // 超级管理员：0 表示平台默认值
	Entries  []services.MatrixUpdate `json:"entries" binding:"required,min=1,dive"`
}

type PermissionHandler struct {
	service *services.PermissionService
	auditRecorder
}

func NewPermissionHandler(service *services.PermissionService, audit *services.AuditService) *PermissionHandler {
	return &PermissionHandler{service: service, auditRecorder: auditRecorder{audit: audit}}
}

// Catalog 可用的角色、资源与操作
func (h *PermissionHandler) Catalog(c *gin.Context) {
	response.Success(c, gin.H{
		"roles":     models.EntityRoles,
		"resources": models.AllResources,
		"actions":   models.AllActions,
	})
}

// GetMatrix 角色的权限矩阵；管理员看到本主体的有效值
func (h *PermissionHandler) GetMatrix(c *gin.Context) {
	a := actor(c)
	entityID := a.EntityID
	if a.IsSuperAdmin() {
		entityID = queryUint(c, "entity_id")
	}

	entries, err := h.service.GetMatrix(c.Param("role"), entityID)
	if err != nil {
		handleError(c, err, "查询权限失败")
		return
	}
	response.Success(c, entries)
}

// SetMatrix 修改权限矩阵
func (h *PermissionHandler) SetMatrix(c *gin.Context) {
	var req SetMatrixRequest
	if !bindJSON(c, &req) {
		return
	}

	role := c.Param("role")
	entries, err := h.service.SetMatrix(actor(c), role, req.EntityID, req.Entries)
	if err != nil {
		handleError(c, err, "修改权限失败")
		return
	}
	h.record(c, "update", models.ResourcePermissions, role, req)
	response.Success(c, entries)
}

// Reset 删除本经营主体对该角色的自定义权限
func (h *PermissionHandler) Reset(c *gin.Context) {
	a := actor(c)
	entityID := a.EntityID
	if a.IsSuperAdmin() {
		entityID = queryUint(c, "entity_id")
	}

	role := c.Param("role")
	if role == models.RoleAdmin && !a.IsSuperAdmin() {
		response.Forbidden(c, services.ErrForbidden.Error())
		return
	}
	if err := h.service.ResetEntityOverrides(entityID, role); err != nil {
		handleError(c, err, "重置权限失败")
		return
	}
	h.record(c, "reset", models.ResourcePermissions, role, gin.H{"entity_id": entityID})
	response.Success(c, nil)
}
