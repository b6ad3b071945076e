package handlers

import (
	"caisse/internal/models"
	"caisse/internal/services"
	"caisse/pkg/pagination"
	"caisse/pkg/response"

	"github.com/gin-gonic/gin"
)

type CreateUserRequest struct {
	EntityID uint    `json:"entity_id"` // 仅超级管理员有效
	Username string  `json:"username" binding:"required"`
	Email    string  `json:"email" binding:"required,email"`
	Password string  `json:"password" binding:"required,min=8"`
	FullName string  `json:"full_name" binding:"required"`
	Phone    *string `json:"phone"`
	Role     string  `json:"role" binding:"required,oneof=admin manager cashier stock_keeper"`
}

type UpdateUserRequest struct {
	Email    string  `json:"email" binding:"omitempty,email"`
	FullName string  `json:"full_name"`
	Phone    *string `json:"phone"`
	Role     string  `json:"role" binding:"omitempty,oneof=admin manager cashier stock_keeper"`
}

type ResetPasswordRequest struct {
	NewPassword string `json:"new_password" binding:"required,min=8"`
}

type UserHandler struct {
	service *services.UserService
	auditRecorder
}

func NewUserHandler(service *services.UserService, audit *services.AuditService) *UserHandler {
	return &UserHandler{service: service, auditRecorder: auditRecorder{audit: audit}}
}

// ========== 基础CRUD方法 ==========

// Create 创建用户
func (h *UserHandler) Create(c *gin.Context) {
	var req CreateUserRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.service.Create(actor(c), req.EntityID, services.UserInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Phone:    req.Phone,
		Role:     req.Role,
	})
	if err != nil {
		handleError(c, err, "创建用户失败")
		return
	}
	h.record(c, "create", models.ResourceUsers, user.ID, gin.H{"username": user.Username, "role": user.Role})
	response.Success(c, user)
}

// GetAll 用户列表
func (h *UserHandler) GetAll(c *gin.Context) {
	pageParams := pagination.ParsePageParams(c)
	filter := services.UserFilter{
		EntityID: queryUint(c, "entity_id"),
		Role:     c.Query("role"),
		Status:   c.Query("status"),
		Keyword:  c.Query("keyword"),
	}

	users, total, err := h.service.GetWithFiltersAndPage(actor(c), filter, pageParams.Page, pageParams.PageSize)
	if err != nil {
		response.ServerError(c, "查询失败")
		return
	}
	response.SuccessWithPage(c, users, pagination.NewPageInfo(pageParams.Page, pageParams.PageSize, total))
}

// GetByID 获取用户
func (h *UserHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	user, err := h.service.GetByID(actor(c), id)
	if err != nil {
		handleError(c, err, "查询失败")
		return
	}
	response.Success(c, user)
}

// Update 更新用户
func (h *UserHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req UpdateUserRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.service.Update(actor(c), id, services.UserUpdate{
		Email:    req.Email,
		FullName: req.FullName,
		Phone:    req.Phone,
		Role:     req.Role,
	})
	if err != nil {
		handleError(c, err, "更新用户失败")
		return
	}
	h.record(c, "update", models.ResourceUsers, id, req)
	response.Success(c, user)
}

// Delete 删除用户
func (h *UserHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(actor(c), id); err != nil {
		handleError(c, err, "删除用户失败")
		return
	}
	h.record(c, "delete", models.ResourceUsers, id, nil)
	response.Success(c, nil)
}

// ========== 快捷操作 ==========

// Activate 激活用户
func (h *UserHandler) Activate(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	user, err := h.service.Activate(actor(c), id)
	if err != nil {
		handleError(c, err, "激活失败")
		return
	}
	h.record(c, "activate", models.ResourceUsers, id, nil)
	response.SuccessWithMessage(c, "用户已激活", user)
}

// Suspend 停用用户
func (h *UserHandler) Suspend(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	user, err := h.service.Suspend(actor(c), id)
	if err != nil {
		handleError(c, err, "停用失败")
		return
	}
	h.record(c, "suspend", models.ResourceUsers, id, nil)
	response.SuccessWithMessage(c, "用户已停用", user)
}

// ResetPassword 管理员重置密码
func (h *UserHandler) ResetPassword(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req ResetPasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.service.ResetPassword(actor(c), id, req.NewPassword); err != nil {
		handleError(c, err, "重置密码失败")
		return
	}
	h.record(c, "reset_password", models.ResourceUsers, id, nil)
	response.SuccessWithMessage(c, "密码已重置", nil)
}
