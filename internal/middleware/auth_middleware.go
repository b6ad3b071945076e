package middleware

import (
	"errors"
	"strings"

	"caisse/internal/models"
	"caisse/internal/services"
	"caisse/pkg/logger"
	"caisse/pkg/response"

	"github.com/gin-gonic/gin"
)

// 上下文键
const (
	ContextUser  = "user"
	ContextActor = "actor"
)

// AuthMiddleware 登录与权限中间件
type AuthMiddleware struct {
	auth        *services.AuthService
	permissions *services.PermissionService
	cookieName  string
}

func NewAuthMiddleware(auth *services.AuthService, permissions *services.PermissionService, cookieName string) *AuthMiddleware {
	return &AuthMiddleware{
		auth:        auth,
		permissions: permissions,
		cookieName:  cookieName,
	}
}

// TokenFromRequest 从 Authorization 头或会话 Cookie 中取令牌
func TokenFromRequest(c *gin.Context, cookieName string) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		if strings.HasPrefix(authHeader, "Bearer ") {
			return strings.TrimSpace(authHeader[7:])
		}
		return ""
	}
	if cookieName != "" {
		if token, err := c.Cookie(cookieName); err == nil {
			return token
		}
	}
	return ""
}

// RequireLogin 校验令牌并把当前用户写入上下文
func (m *AuthMiddleware) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := TokenFromRequest(c, m.cookieName)
		if token == "" {
			response.Unauthorized(c, "请先登录")
			c.Abort()
			return
		}

		claims, err := m.auth.VerifyToken(token)
		if err != nil {
			response.Unauthorized(c, "Token无效或已过期")
			c.Abort()
			return
		}

		// 每次请求重新校验用户和经营主体状态，停用立即生效
		user, err := m.auth.CurrentUser(claims.UserID)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrAccountInactive):
				response.Unauthorized(c, "用户已被禁用")
			case errors.Is(err, services.ErrEntityInactive):
				response.Unauthorized(c, "经营主体已停用")
			default:
				response.Unauthorized(c, "用户不存在")
			}
			c.Abort()
			return
		}

		c.Set(ContextUser, user)
		c.Set(ContextActor, services.Actor{
			UserID:   user.ID,
			EntityID: user.EntityIDValue(),
			Username: user.Username,
			Role:     user.Role,
		})
		c.Next()
	}
}

// RequirePermission 要求当前角色在本经营主体内拥有 resource:action 权限
func (m *AuthMiddleware) RequirePermission(resource, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := GetActor(c)
		if !ok {
			response.Unauthorized(c, "请先登录")
			c.Abort()
			return
		}

		allowed, err := m.permissions.HasPermission(actor.Role, actor.EntityID, resource, action)
		if err != nil {
			logger.GetLogger().Errorf("权限检查失败: %v", err)
			response.ServerError(c, "权限检查失败")
			c.Abort()
			return
		}
		if !allowed {
			response.Forbidden(c, "权限不足：需要 "+resource+":"+action+" 权限")
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireExport 请求文件导出（format 非 json）时额外要求 resource:export 权限
func (m *AuthMiddleware) RequireExport(resource string) gin.HandlerFunc {
	check := m.RequirePermission(resource, models.ActionExport)
	return func(c *gin.Context) {
		format := strings.ToLower(c.Query("format"))
		if format == "" || format == "json" {
			c.Next()
			return
		}
		check(c)
	}
}

// RequireSuperAdmin 要求平台超级管理员
func (m *AuthMiddleware) RequireSuperAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := GetActor(c)
		if !ok {
			response.Unauthorized(c, "请先登录")
			c.Abort()
			return
		}
		if !actor.IsSuperAdmin() {
			response.Forbidden(c, "需要平台管理员权限")
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireEntity 要求属于某个经营主体（超级管理员没有门店数据）
func (m *AuthMiddleware) RequireEntity() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := GetActor(c)
		if !ok {
			response.Unauthorized(c, "请先登录")
			c.Abort()
			return
		}
		if actor.EntityID == 0 {
			response.Forbidden(c, "该操作仅适用于经营主体用户")
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetActor 当前操作人
func GetActor(c *gin.Context) (services.Actor, bool) {
	v, ok := c.Get(ContextActor)
	if !ok {
		return services.Actor{}, false
	}
	actor, ok := v.(services.Actor)
	return actor, ok
}

// GetUser 当前登录用户
func GetUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(ContextUser)
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok
}
