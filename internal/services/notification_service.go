package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"caisse/internal/models"
	"caisse/pkg/logger"
	"caisse/pkg/messaging"
	"caisse/pkg/pagination"
	"caisse/pkg/queue"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Publisher 实时事件发布（Redis 发布订阅）
type Publisher interface {
	PublishMessage(ctx context.Context, channel string, message interface{}) error
}

// DeliveryQueue 外部通知投递队列
type DeliveryQueue interface {
	Enqueue(ctx context.Context, message *queue.DeliveryMessage) error
}

// RealtimeEvent 推送给 websocket 客户端的事件
type RealtimeEvent struct {
	Event string               `json:"event"`
	Data  *models.Notification `json:"data"`
}

// EntityChannel 经营主体的实时频道名
func EntityChannel(entityID uint) string {
	return fmt.Sprintf("entity:%d", entityID)
}

// NotifyRequest 一次通知
type NotifyRequest struct {
	EntityID       uint
	UserID         *uint    // 指定接收人，为空时按 Roles 或广播
	Roles          []string // 发给经营主体内这些角色的活跃用户
	Type           string
	Title          string
	Message        string
	Payload        map[string]string
	WhatsApp       bool   // 同时发送到 WhatsApp
	RecipientPhone string // WhatsApp 号码，为空时使用经营主体的告警号码
	Telegram       bool   // 同时发送到平台 Telegram 群
}

type NotificationService struct {
	db        *gorm.DB
	publisher Publisher
	queue     DeliveryQueue
	channels  map[string]bool
}

func NewNotificationService(db *gorm.DB, publisher Publisher, deliveries DeliveryQueue) *NotificationService {
	return &NotificationService{
		db:        db,
		publisher: publisher,
		queue:     deliveries,
		channels:  make(map[string]bool),
	}
}

// WithChannels 启用外部通道（whatsapp / telegram）
func (s *NotificationService) WithChannels(channels ...string) *NotificationService {
	for _, ch := range channels {
		s.channels[ch] = true
	}
	return s
}

// Notify 写入站内通知并推送实时事件，需要时将外部通道加入投递队列
func (s *NotificationService) Notify(ctx context.Context, req NotifyRequest) ([]*models.Notification, error) {
	payload, err := encodePayload(req.Payload)
	if err != nil {
		return nil, err
	}

	recipients, err := s.resolveRecipients(req)
	if err != nil {
		return nil, err
	}

	var created []*models.Notification
	for _, userID := range recipients {
		n := &models.Notification{
			EntityID: req.EntityID,
			UserID:   userID,
			Type:     req.Type,
			Title:    req.Title,
			Message:  req.Message,
			Channel:  models.ChannelInApp,
			Status:   models.NotificationSent,
			Payload:  payload,
		}
		if err := s.db.Create(n).Error; err != nil {
			return created, err
		}
		created = append(created, n)
		s.publish(ctx, n)
	}

	if req.WhatsApp && s.channels[models.ChannelWhatsApp] {
		phone := req.RecipientPhone
		if phone == "" {
			var entity models.Entity
			if err := s.db.Select("whatsapp_phone").First(&entity, req.EntityID).Error; err == nil {
				phone = entity.WhatsAppPhone
			}
		}
		if phone != "" {
			n, err := s.enqueueExternal(ctx, req, payload, models.ChannelWhatsApp, phone)
			if err != nil {
				return created, err
			}
			created = append(created, n)
		}
	}

	if req.Telegram && s.channels[models.ChannelTelegram] {
		n, err := s.enqueueExternal(ctx, req, payload, models.ChannelTelegram, "")
		if err != nil {
			return created, err
		}
		created = append(created, n)
	}

	return created, nil
}

// resolveRecipients 站内通知接收人；nil 表示经营主体广播
func (s *NotificationService) resolveRecipients(req NotifyRequest) ([]*uint, error) {
	// 平台通知没有站内收件箱，只走外部通道
	if req.EntityID == 0 {
		return nil, nil
	}
	if req.UserID != nil {
		return []*uint{req.UserID}, nil
	}
	if len(req.Roles) == 0 {
		return []*uint{nil}, nil
	}

	var ids []uint
	err := s.db.Model(&models.User{}).
		Where("entity_id = ? AND status = ? AND role IN ?", req.EntityID, models.UserStatusActive, req.Roles).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*uint{nil}, nil
	}

	recipients := make([]*uint, len(ids))
	for i := range ids {
		id := ids[i]
		recipients[i] = &id
	}
	return recipients, nil
}

func (s *NotificationService) enqueueExternal(ctx context.Context, req NotifyRequest, payload datatypes.JSON, channel, recipient string) (*models.Notification, error) {
	template, params, _ := messaging.SelectTemplate(req.Type, req.Payload)
	if channel != models.ChannelWhatsApp {
		template, params = "", nil
	}

	n := &models.Notification{
		EntityID:       req.EntityID,
		UserID:         req.UserID,
		Type:           req.Type,
		Title:          req.Title,
		Message:        req.Message,
		Channel:        channel,
		RecipientPhone: recipient,
		TemplateName:   template,
		Status:         models.NotificationPending,
		Payload:        payload,
	}
	if err := s.db.Create(n).Error; err != nil {
		return nil, err
	}

	if s.queue == nil {
		s.MarkDelivery(n.ID, fmt.Errorf("投递队列不可用"))
		n.Status = models.NotificationFailed
		return n, nil
	}

	msg := &queue.DeliveryMessage{
		DeliveryID:     uuid.New().String(),
		NotificationID: n.ID,
		EntityID:       n.EntityID,
		Channel:        channel,
		Recipient:      recipient,
		Template:       template,
		Params:         params,
		Text:           req.Title + "\n" + req.Message,
	}
	if err := s.queue.Enqueue(ctx, msg); err != nil {
		logger.GetLogger().WithFields(logrus.Fields{
			"notification_id": n.ID,
			"channel":         channel,
		}).Errorf("通知入队失败: %v", err)
		s.MarkDelivery(n.ID, err)
		n.Status = models.NotificationFailed
		n.Error = err.Error()
	}
	return n, nil
}

func (s *NotificationService) publish(ctx context.Context, n *models.Notification) {
	if s.publisher == nil {
		return
	}
	event := RealtimeEvent{Event: "notification", Data: n}
	if err := s.publisher.PublishMessage(ctx, EntityChannel(n.EntityID), event); err != nil {
		logger.GetLogger().Warnf("发布实时通知失败: %v", err)
	}
}

// MarkDelivery 记录外部投递结果，不重试
func (s *NotificationService) MarkDelivery(id uint, deliveryErr error) {
	updates := map[string]interface{}{}
	if deliveryErr != nil {
		updates["status"] = models.NotificationFailed
		updates["error"] = truncateRunes(deliveryErr.Error(), 500)
	} else {
		updates["status"] = models.NotificationSent
		updates["sent_at"] = time.Now()
	}
	if err := s.db.Model(&models.Notification{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		logger.GetLogger().Errorf("更新通知投递状态失败: %v", err)
	}
}

// inbox 当前用户可见的站内通知
func (s *NotificationService) inbox(actor Actor) *gorm.DB {
	return s.db.Model(&models.Notification{}).
		Where("entity_id = ? AND channel = ?", actor.EntityID, models.ChannelInApp).
		Where("user_id IS NULL OR user_id = ?", actor.UserID)
}

// ListMine 我的通知
func (s *NotificationService) ListMine(actor Actor, unreadOnly bool, page, pageSize int) ([]*models.Notification, int64, error) {
	var notifications []*models.Notification
	var total int64

	query := s.inbox(actor)
	if unreadOnly {
		query = query.Where("read_at IS NULL")
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Order("created_at DESC, id DESC").Scopes(pagination.Paginate(page, pageSize)).Find(&notifications).Error
	return notifications, total, err
}

// UnreadCount 未读数量
func (s *NotificationService) UnreadCount(actor Actor) (int64, error) {
	var count int64
	err := s.inbox(actor).Where("read_at IS NULL").Count(&count).Error
	return count, err
}

// MarkRead 标记已读
func (s *NotificationService) MarkRead(actor Actor, id uint) (*models.Notification, error) {
	var n models.Notification
	if err := s.inbox(actor).First(&n, id).Error; err != nil {
		return nil, err
	}
	if n.ReadAt == nil {
		now := time.Now()
		n.ReadAt = &now
		n.Status = models.NotificationRead
		if err := s.db.Model(&models.Notification{}).Where("id = ?", id).
			Updates(map[string]interface{}{"read_at": now, "status": models.NotificationRead}).Error; err != nil {
			return nil, err
		}
	}
	return &n, nil
}

// MarkAllRead 全部标记已读
func (s *NotificationService) MarkAllRead(actor Actor) (int64, error) {
	result := s.inbox(actor).Where("read_at IS NULL").
		Updates(map[string]interface{}{"read_at": time.Now(), "status": models.NotificationRead})
	return result.RowsAffected, result.Error
}

// SendCustom 管理员发送自定义 WhatsApp 消息
func (s *NotificationService) SendCustom(ctx context.Context, actor Actor, phone, title, message string) (*models.Notification, error) {
	if phone == "" || message == "" {
		return nil, invalidParam("号码和内容不能为空")
	}
	if !s.channels[models.ChannelWhatsApp] {
		return nil, invalidState("WhatsApp 通道未启用")
	}
	if title == "" {
		title = "Message"
	}

	created, err := s.Notify(ctx, NotifyRequest{
		EntityID:       actor.EntityID,
		UserID:         &actor.UserID,
		Type:           models.NotificationCustom,
		Title:          title,
		Message:        message,
		WhatsApp:       true,
		RecipientPhone: phone,
	})
	if err != nil {
		return nil, err
	}
	for _, n := range created {
		if n.Channel == models.ChannelWhatsApp {
			return n, nil
		}
	}
	return nil, fmt.Errorf("未能创建WhatsApp通知")
}

// ListDeliveries 外部投递记录（管理员查看）
func (s *NotificationService) ListDeliveries(entityID uint, status string, page, pageSize int) ([]*models.Notification, int64, error) {
	var notifications []*models.Notification
	var total int64

	query := s.db.Model(&models.Notification{}).
		Where("entity_id = ? AND channel <> ?", entityID, models.ChannelInApp)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Order("created_at DESC, id DESC").Scopes(pagination.Paginate(page, pageSize)).Find(&notifications).Error
	return notifications, total, err
}

func encodePayload(payload map[string]string) (datatypes.JSON, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
