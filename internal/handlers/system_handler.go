package handlers

import (
	"context"
	"net/http"
	"time"

	"caisse/pkg/response"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Pinger 依赖的外部服务（Redis）
type Pinger interface {
	Ping(ctx context.Context) error
	Length(ctx context.Context) (int64, error)
}

// JobLister 定时任务列表
type JobLister interface {
	Entries() []string
}

// SystemHandler 系统处理器
type SystemHandler struct {
	db        *gorm.DB
	redis     Pinger
	scheduler JobLister
	startedAt time.Time
}

// NewSystemHandler 创建系统处理器
func NewSystemHandler(db *gorm.DB, redis Pinger, scheduler JobLister) *SystemHandler {
	return &SystemHandler{db: db, redis: redis, scheduler: scheduler, startedAt: time.Now()}
}

// Health 健康检查：数据库必须可用，Redis 不可用时降级
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{"database": "ok", "redis": "ok"}
	status, overall := http.StatusOK, "ok"

	if sqlDB, err := h.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		checks["database"] = "down"
		status, overall = http.StatusServiceUnavailable, "unavailable"
	}
	if h.redis == nil {
		checks["redis"] = "disabled"
	} else if err := h.redis.Ping(ctx); err != nil {
		checks["redis"] = "down"
	}

	c.JSON(status, gin.H{
		"status": overall,
		"checks": checks,
		"uptime": time.Since(h.startedAt).Round(time.Second).String(),
	})
}

// Status 调度器和投递队列状态（超级管理员）
func (h *SystemHandler) Status(c *gin.Context) {
	data := gin.H{"started_at": h.startedAt, "jobs": []string{}}
	if h.scheduler != nil {
		data["jobs"] = h.scheduler.Entries()
	}
	if h.redis != nil {
		if n, err := h.redis.Length(c.Request.Context()); err == nil {
			data["pending_deliveries"] = n
		}
	}
	response.Success(c, data)
}
