package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// WhatsAppConfig 消息服务商配置
type WhatsAppConfig struct {
	BaseURL       string
	PhoneNumberID string
	Token         string
	Language      string
}

// WhatsAppSender 通过服务商 REST 接口发送 WhatsApp 模板消息
type WhatsAppSender struct {
	cfg    WhatsAppConfig
	client *http.Client
}

// NewWhatsAppSender 创建 WhatsApp 发送器
func NewWhatsAppSender(cfg WhatsAppConfig) *WhatsAppSender {
	if cfg.Language == "" {
		cfg.Language = "fr"
	}
	return &WhatsAppSender{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// WithHTTPClient 替换 HTTP 客户端
func (s *WhatsAppSender) WithHTTPClient(client *http.Client) *WhatsAppSender {
	s.client = client
	return s
}

// Channel 通道名
func (s *WhatsAppSender) Channel() string {
	return "whatsapp"
}

type waLanguage struct {
	Code string `json:"code"`
}

type waParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type waComponent struct {
	Type       string        `json:"type"`
	Parameters []waParameter `json:"parameters"`
}

type waTemplate struct {
	Name       string        `json:"name"`
	Language   waLanguage    `json:"language"`
	Components []waComponent `json:"components,omitempty"`
}

type waText struct {
	Body string `json:"body"`
}

type waRequest struct {
	MessagingProduct string      `json:"messaging_product"`
	To               string      `json:"to"`
	Type             string      `json:"type"`
	Template         *waTemplate `json:"template,omitempty"`
	Text             *waText     `json:"text,omitempty"`
}

type waError struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// buildRequest 构造请求体：有模板时发送模板消息，否则发送纯文本
func (s *WhatsAppSender) buildRequest(msg Message) waRequest {
	req := waRequest{
		MessagingProduct: "whatsapp",
		To:               NormalizePhone(msg.Recipient),
	}

	if msg.Template == "" {
		req.Type = "text"
		req.Text = &waText{Body: msg.Text}
		return req
	}

	tpl := &waTemplate{
		Name:     msg.Template,
		Language: waLanguage{Code: s.cfg.Language},
	}
	if len(msg.Params) > 0 {
		params := make([]waParameter, 0, len(msg.Params))
		for _, p := range msg.Params {
			params = append(params, waParameter{Type: "text", Text: p})
		}
		tpl.Components = []waComponent{{Type: "body", Parameters: params}}
	}
	req.Type = "template"
	req.Template = tpl
	return req
}

// Send 发送消息
func (s *WhatsAppSender) Send(ctx context.Context, msg Message) error {
	if msg.Recipient == "" {
		return fmt.Errorf("缺少WhatsApp接收号码")
	}

	body, err := json.Marshal(s.buildRequest(msg))
	if err != nil {
		return fmt.Errorf("序列化WhatsApp请求失败: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", strings.TrimRight(s.cfg.BaseURL, "/"), s.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("创建WhatsApp请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.Token)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("WhatsApp请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr waError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("WhatsApp返回错误 %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return fmt.Errorf("WhatsApp返回错误 %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return nil
}

// NormalizePhone 去掉号码中的空格、横线和前导 + / 00
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	out := b.String()
	return strings.TrimPrefix(out, "00")
}
