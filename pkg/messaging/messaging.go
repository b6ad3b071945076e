package messaging

import (
	"context"
	"errors"
	"fmt"
)

// Message 一条待发送的外部消息
type Message struct {
	Recipient string   // WhatsApp号码或Telegram聊天ID
	Template  string   // 模板名，为空时按纯文本发送
	Params    []string // 模板正文参数（有序）
	Text      string
}

// Sender 外部消息通道
type Sender interface {
	Channel() string
	Send(ctx context.Context, msg Message) error
}

// ErrChannelDisabled 通道未启用
var ErrChannelDisabled = errors.New("消息通道未启用")

// Registry 按通道名查找发送器
type Registry struct {
	senders map[string]Sender
}

// NewRegistry 创建发送器注册表，nil 发送器会被忽略
func NewRegistry(senders ...Sender) *Registry {
	r := &Registry{senders: make(map[string]Sender)}
	for _, s := range senders {
		if s != nil {
			r.senders[s.Channel()] = s
		}
	}
	return r
}

// Send 通过指定通道发送
func (r *Registry) Send(ctx context.Context, channel string, msg Message) error {
	sender, ok := r.senders[channel]
	if !ok {
		return fmt.Errorf("%w: %s", ErrChannelDisabled, channel)
	}
	return sender.Send(ctx, msg)
}

// Enabled 通道是否可用
func (r *Registry) Enabled(channel string) bool {
	_, ok := r.senders[channel]
	return ok
}
