package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"caisse/internal/middleware"
	"caisse/internal/services"
	"caisse/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 60 * time.Second
	pongWait     = 300 * time.Second
)

// Subscriber 实时频道订阅（Redis 发布订阅）
type Subscriber interface {
	SubscribeChannel(ctx context.Context, channel string) *redis.PubSub
}

// WebSocketHandler 站内通知实时推送
type WebSocketHandler struct {
	upgrader   websocket.Upgrader
	subscriber Subscriber
	auth       *services.AuthService
	cookieName string
	log        *logrus.Logger
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(subscriber Subscriber, auth *services.AuthService, cookieName string, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// 同源请求
				if origin == "" {
					return true
				}
				for _, allowed := range allowedOrigins {
					if allowed == "*" || matchOrigin(origin, allowed) {
						return true
					}
				}
				logger.GetLogger().Warnf("WebSocket连接被拒绝，非法Origin: %s", origin)
				return false
			},
			ReadBufferSize:  1024 * 4,
			WriteBufferSize: 1024 * 32,
		},
		subscriber: subscriber,
		auth:       auth,
		cookieName: cookieName,
		log:        logger.GetLogger(),
	}
}

// Notifications 推送当前用户所在经营主体的通知（广播和发给本人的）
func (h *WebSocketHandler) Notifications(c *gin.Context) {
	// 浏览器 WebSocket 不支持自定义header，令牌放在查询参数或cookie中
	token := c.Query("token")
	if token == "" {
		token = middleware.TokenFromRequest(c, h.cookieName)
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "缺少认证令牌"})
		return
	}

	claims, err := h.auth.VerifyToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "无效的令牌"})
		return
	}
	user, err := h.auth.CurrentUser(claims.UserID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	if user.EntityID == nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "平台账号没有实时通知"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Error("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	h.log.WithFields(logrus.Fields{
		"user_id":     user.ID,
		"entity_id":   *user.EntityID,
		"remote_addr": c.ClientIP(),
	}).Info("Notification WebSocket connection established")

	h.stream(conn, *user.EntityID, user.ID)
}

func (h *WebSocketHandler) stream(conn *websocket.Conn, entityID, userID uint) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pubsub := h.subscriber.SubscribeChannel(ctx, services.EntityChannel(entityID))
	defer pubsub.Close()

	// 等待订阅成功
	if _, err := pubsub.Receive(ctx); err != nil {
		h.log.WithError(err).Error("Failed to subscribe to Redis channel")
		return
	}

	go h.readPump(conn, cancel)

	ch := pubsub.Channel()
	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.log.WithError(err).Debug("Failed to send ping")
				return
			}

		case msg, ok := <-ch:
			if !ok {
				return
			}
			if !deliverable(msg.Payload, userID) {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				h.log.WithError(err).Error("Failed to send message to client")
				return
			}
		}
	}
}

// deliverable 广播通知或发给该用户的通知
func deliverable(payload string, userID uint) bool {
	var event services.RealtimeEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil || event.Data == nil {
		return false
	}
	return event.Data.UserID == nil || *event.Data.UserID == userID
}

// readPump 处理客户端消息（主要是ping/pong），连接断开时取消订阅
func (h *WebSocketHandler) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.WithError(err).Error("WebSocket unexpected close")
			}
			return
		}
	}
}

// matchOrigin 检查origin是否匹配allowed模式
// 支持精确匹配和通配符匹配（如 *.example.com）
func matchOrigin(origin, allowed string) bool {
	if origin == allowed {
		return true
	}
	if !strings.HasPrefix(allowed, "*.") {
		return false
	}

	domain := allowed[2:]
	host := origin
	if idx := strings.Index(host, "://"); idx != -1 {
		host = host[idx+3:]
	}
	if idx := strings.Index(host, ":"); idx != -1 {
		host = host[:idx]
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}
