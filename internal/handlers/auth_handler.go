package handlers

import (
	"net/http"

	"caisse/internal/middleware"
	"caisse/internal/services"
	"caisse/pkg/config"
	"caisse/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authService *services.AuthService
	userService *services.UserService
	cookie      config.JWTConfig
	auditRecorder
}

func NewAuthHandler(authService *services.AuthService, userService *services.UserService, audit *services.AuditService, cookie config.JWTConfig) *AuthHandler {
	return &AuthHandler{
		authService:   authService,
		userService:   userService,
		cookie:        cookie,
		auditRecorder: auditRecorder{audit: audit},
	}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"` // 用户名或邮箱
	Password string `json:"password" binding:"required"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8"`
}

// Login 用户登录，同时写入会话Cookie
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.authService.Login(req.Username, req.Password)
	if err != nil {
		handleError(c, err, "登录失败")
		return
	}

	h.setCookie(c, result.Token)
	if h.audit != nil {
		h.audit.Record(services.Actor{
			UserID:   result.User.ID,
			EntityID: result.User.EntityIDValue(),
			Username: result.User.Username,
			Role:     result.User.Role,
		}, "login", "auth", result.User.ID, nil, c.ClientIP())
	}
	response.Success(c, result)
}

// Logout 清除会话Cookie，令牌本身无状态
func (h *AuthHandler) Logout(c *gin.Context) {
	h.clearCookie(c)
	response.SuccessWithMessage(c, "登出成功", nil)
}

// Refresh 刷新令牌
func (h *AuthHandler) Refresh(c *gin.Context) {
	token := middleware.TokenFromRequest(c, h.cookie.CookieName)
	if token == "" {
		response.Unauthorized(c, "请先登录")
		return
	}

	result, err := h.authService.Refresh(token)
	if err != nil {
		handleError(c, err, "刷新令牌失败")
		return
	}
	h.setCookie(c, result.Token)
	response.Success(c, result)
}

// Me 当前用户信息与有效权限
func (h *AuthHandler) Me(c *gin.Context) {
	profile, err := h.authService.Me(actor(c).UserID)
	if err != nil {
		handleError(c, err, "获取用户信息失败")
		return
	}
	response.Success(c, profile)
}

// ChangePassword 修改自己的密码
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.userService.ChangePassword(actor(c).UserID, req.OldPassword, req.NewPassword); err != nil {
		handleError(c, err, "修改密码失败")
		return
	}
	h.record(c, "change_password", "auth", actor(c).UserID, nil)
	response.SuccessWithMessage(c, "密码已修改", nil)
}

func (h *AuthHandler) setCookie(c *gin.Context, token string) {
	if h.cookie.CookieName == "" {
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.CookieName, token, int(h.authService.TokenDuration().Seconds()), "/", "", h.cookie.CookieSecure, true)
}

func (h *AuthHandler) clearCookie(c *gin.Context) {
	if h.cookie.CookieName == "" {
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.CookieName, "", -1, "/", "", h.cookie.CookieSecure, true)
}
