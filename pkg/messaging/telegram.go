package messaging

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSender 通过 Telegram 机器人发送平台通知
type TelegramSender struct {
	api           telegramAPI
	defaultChatID int64
}

// NewTelegramSender 创建 Telegram 发送器（会调用 getMe 校验令牌）
func NewTelegramSender(token string, defaultChatID int64) (*TelegramSender, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("初始化Telegram机器人失败: %w", err)
	}
	return NewTelegramSenderWithAPI(api, defaultChatID), nil
}

// NewTelegramSenderWithAPI 使用已有客户端创建发送器
func NewTelegramSenderWithAPI(api telegramAPI, defaultChatID int64) *TelegramSender {
	return &TelegramSender{api: api, defaultChatID: defaultChatID}
}

// Channel 通道名
func (s *TelegramSender) Channel() string {
	return "telegram"
}

// Send 发送文本消息，接收方为空时发往平台管理群
func (s *TelegramSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	chatID := s.defaultChatID
	if msg.Recipient != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(msg.Recipient), 10, 64)
		if err != nil {
			return fmt.Errorf("无效的Telegram聊天ID: %s", msg.Recipient)
		}
		chatID = id
	}
	if chatID == 0 {
		return fmt.Errorf("缺少Telegram聊天ID")
	}

	text := msg.Text
	if text == "" && msg.Template != "" {
		text = msg.Template + ": " + strings.Join(msg.Params, " | ")
	}

	if _, err := s.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("Telegram发送失败: %w", err)
	}
	return nil
}
