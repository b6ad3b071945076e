package handlers

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"caisse/internal/middleware"
	"caisse/internal/services"
	apperrors "caisse/pkg/errors"
	"caisse/pkg/logger"
	"caisse/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// parseID 解析路径中的ID参数
func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		response.BadRequest(c, "ID格式错误")
		return 0, false
	}
	return uint(id), true
}

// queryUint 可选的数字查询参数
func queryUint(c *gin.Context, name string) uint {
	v, err := strconv.ParseUint(c.Query(name), 10, 32)
	if err != nil {
		return 0
	}
	return uint(v)
}

// queryBool 可选的布尔查询参数，未提供返回 nil
func queryBool(c *gin.Context, name string) *bool {
	raw := c.Query(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &v
}

// dateRange 解析 from/to 查询参数（YYYY-MM-DD，to 当天包含在内）
func dateRange(c *gin.Context) (services.DateRange, bool) {
	r, err := services.DayRange(c.Query("from"), c.Query("to"), time.Local)
	if err != nil {
		handleError(c, err, "")
		return r, false
	}
	return r, true
}

// actor 当前操作人，中间件保证已登录
func actor(c *gin.Context) services.Actor {
	a, _ := middleware.GetActor(c)
	return a
}

// bindJSON 绑定并校验请求体，校验失败时返回字段级错误信息
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.BadRequest(c, bindErrorMessage(err))
		return false
	}
	return true
}

var validationMessages = map[string]string{
	"required": "不能为空",
	"email":    "邮箱格式错误",
	"min":      "长度或数值过小",
	"max":      "长度或数值过大",
	"oneof":    "取值无效",
	"gt":       "必须大于 %s",
	"gte":      "必须大于等于 %s",
}

func bindErrorMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "参数错误"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg, ok := validationMessages[fe.Tag()]
		if !ok {
			msg = "校验失败(" + fe.Tag() + ")"
		} else if strings.Contains(msg, "%s") {
			msg = fmt.Sprintf(msg, fe.Param())
		}
		parts = append(parts, fe.Field()+" "+msg)
	}
	return "参数错误: " + strings.Join(parts, "; ")
}

var businessCodes = []struct {
	err  error
	code int
}{
	{services.ErrInvalidCredentials, apperrors.CodeInvalidCredentials},
	{services.ErrAccountInactive, apperrors.CodeAccountInactive},
	{services.ErrEntityInactive, apperrors.CodeEntityInactive},
	{services.ErrDuplicate, apperrors.CodeDuplicate},
	{services.ErrInvalidState, apperrors.CodeInvalidState},
	{services.ErrInUse, apperrors.CodeInUse},
	{services.ErrInsufficientStock, apperrors.CodeInsufficientStock},
	{services.ErrSessionAlreadyOpen, apperrors.CodeSessionAlreadyOpen},
	{services.ErrNoOpenSession, apperrors.CodeNoOpenSession},
}

// handleError 业务错误映射为响应码，未识别的错误按 500 返回 fallback
func handleError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		response.NotFound(c, "记录不存在")
	case errors.Is(err, services.ErrInvalidParam):
		response.BadRequest(c, err.Error())
	case errors.Is(err, services.ErrForbidden):
		response.Forbidden(c, err.Error())
	default:
		for _, m := range businessCodes {
			if errors.Is(err, m.err) {
				response.Error(c, m.code, err.Error())
				return
			}
		}
		if fallback == "" {
			fallback = "服务器内部错误"
		}
		logger.GetLogger().WithField("path", c.FullPath()).Errorf("%s: %v", fallback, err)
		response.ServerError(c, fallback)
	}
}

// auditRecorder 处理器共用的审计记录
type auditRecorder struct {
	audit *services.AuditService
}

func (r auditRecorder) record(c *gin.Context, action, resource string, resourceID interface{}, details interface{}) {
	if r.audit == nil {
		return
	}
	r.audit.Record(actor(c), action, resource, resourceID, details, c.ClientIP())
}
