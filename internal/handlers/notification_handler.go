package handlers

import (
	"caisse/internal/models"
	"caisse/internal/services"
	"caisse/pkg/pagination"
	"caisse/pkg/response"

	"github.com/gin-gonic/gin"
)

type SendMessageRequest struct {
	Phone   string `json:"phone" binding:"required,max=30"`
	Title   string `json:"title" binding:"max=150"`
	Message string `json:"message" binding:"required,max=1000"`
}

type NotificationHandler struct {
	service *services.NotificationService
	auditRecorder
}

func NewNotificationHandler(service *services.NotificationService, audit *services.AuditService) *NotificationHandler {
	return &NotificationHandler{service: service, auditRecorder: auditRecorder{audit: audit}}
}

// GetMine 我的站内通知，unread=true 只看未读
func (h *NotificationHandler) GetMine(c *gin.Context) {
	pageParams := pagination.ParsePageParams(c)
	unreadOnly := false
	if v := queryBool(c, "unread"); v != nil {
		unreadOnly = *v
	}

	notifications, total, err := h.service.ListMine(actor(c), unreadOnly, pageParams.Page, pageParams.PageSize)
	if err != nil {
		response.ServerError(c, "查询失败")
		return
	}
	response.SuccessWithPage(c, notifications, pagination.NewPageInfo(pageParams.Page, pageParams.PageSize, total))
}

// UnreadCount 未读数
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	count, err := h.service.UnreadCount(actor(c))
	if err != nil {
		response.ServerError(c, "查询失败")
		return
	}
	response.Success(c, gin.H{"unread": count})
}

// MarkRead 标记已读
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	notification, err := h.service.MarkRead(actor(c), id)
	if err != nil {
		handleError(c, err, "操作失败")
		return
	}
	response.Success(c, notification)
}

// MarkAllRead 全部已读
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	count, err := h.service.MarkAllRead(actor(c))
	if err != nil {
		response.ServerError(c, "操作失败")
		return
	}
	response.Success(c, gin.H{"updated": count})
}

// Send 发送自定义 WhatsApp 消息
func (h *NotificationHandler) Send(c *gin.Context) {
	var req SendMessageRequest
	if !bindJSON(c, &req) {
		return
	}

	notification, err := h.service.SendCustom(c.Request.Context(), actor(c), req.Phone, req.Title, req.Message)
	if err != nil {
		handleError(c, err, "发送失败")
		return
	}
	h.record(c, "send", models.ResourceNotifications, notification.ID, gin.H{"phone": req.Phone, "title": req.Title})
	response.SuccessWithMessage(c, "消息已加入发送队列", notification)
}

// Deliveries 外部通道投递记录
func (h *NotificationHandler) Deliveries(c *gin.Context) {
	pageParams := pagination.ParsePageParams(c)

	deliveries, total, err := h.service.ListDeliveries(actor(c).EntityID, c.Query("status"), pageParams.Page, pageParams.PageSize)
	if err != nil {
		response.ServerError(c, "查询失败")
		return
	}
	response.SuccessWithPage(c, deliveries, pagination.NewPageInfo(pageParams.Page, pageParams.PageSize, total))
}
