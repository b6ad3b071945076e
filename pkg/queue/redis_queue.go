package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisQueue Redis队列实现：外部通知投递队列 + 实时频道
type RedisQueue struct {
	client *redis.Client
	prefix string
}

// DeliveryMessage 队列中的通知投递消息
type DeliveryMessage struct {
	DeliveryID     string   `json:"delivery_id"`
	NotificationID uint     `json:"notification_id"`
	EntityID       uint     `json:"entity_id"`
	Channel        string   `json:"channel"`   // whatsapp / telegram
	Recipient      string   `json:"recipient"` // 手机号或聊天ID
	Template       string   `json:"template,omitempty"`
	Params         []string `json:"params,omitempty"`
	Text           string   `json:"text"`
	Created        int64    `json:"created"`
}

// Config Redis配置
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	Prefix   string
}

// NewRedisQueue 创建Redis队列实例
func NewRedisQueue(config *Config) *RedisQueue {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password: config.Password,
		DB:       config.DB,
	})

	return NewRedisQueueWithClient(client, config.Prefix)
}

// NewRedisQueueWithClient 使用已有客户端创建队列
func NewRedisQueueWithClient(client *redis.Client, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = "caisse"
	}
	return &RedisQueue{
		client: client,
		prefix: prefix,
	}
}

// Close 关闭Redis连接
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

// Ping 测试Redis连接
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Enqueue 将投递消息加入队列（左侧入队，右侧出队）
func (q *RedisQueue) Enqueue(ctx context.Context, message *DeliveryMessage) error {
	if message.Created == 0 {
		message.Created = time.Now().Unix()
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("序列化投递消息失败: %w", err)
	}

	if err := q.client.LPush(ctx, q.deliveryKey(), data).Err(); err != nil {
		return fmt.Errorf("投递消息入队失败: %w", err)
	}
	return nil
}

// Dequeue 阻塞获取一条投递消息，超时返回 nil, nil
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*DeliveryMessage, error) {
	result, err := q.client.BRPop(ctx, timeout, q.deliveryKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	// BRPop 返回 [key, value]
	if len(result) != 2 {
		return nil, fmt.Errorf("意外的队列返回: %v", result)
	}

	var message DeliveryMessage
	if err := json.Unmarshal([]byte(result[1]), &message); err != nil {
		return nil, fmt.Errorf("解析投递消息失败: %w", err)
	}
	return &message, nil
}

// Length 当前待投递数量
func (q *RedisQueue) Length(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.deliveryKey()).Result()
}

// PublishMessage 发布消息到指定频道
func (q *RedisQueue) PublishMessage(ctx context.Context, channel string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	if err := q.client.Publish(ctx, q.ChannelKey(channel), data).Err(); err != nil {
		return fmt.Errorf("发布消息失败: %w", err)
	}
	return nil
}

// SubscribeChannel 订阅指定频道
func (q *RedisQueue) SubscribeChannel(ctx context.Context, channel string) *redis.PubSub {
	return q.client.Subscribe(ctx, q.ChannelKey(channel))
}

// ChannelKey 频道完整键名
func (q *RedisQueue) ChannelKey(channel string) string {
	return fmt.Sprintf("%s:channel:%s", q.prefix, channel)
}

func (q *RedisQueue) deliveryKey() string {
	return fmt.Sprintf("%s:queue:deliveries", q.prefix)
}
