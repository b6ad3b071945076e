package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectTemplate(t *testing.T) {
	name, params, ok := SelectTemplate("low_stock", map[string]string{
		"entity":   "Boutique Saba",
		"product":  "Cannelle",
		"quantity": "0,5",
	})
	require.True(t, ok)
	assert.Equal(t, "caisse_low_stock", name)
	assert.Equal(t, []string{"Boutique Saba", "Cannelle", "0,5", "-"}, params)

	_, _, ok = SelectTemplate("custom", nil)
	assert.False(t, ok)
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "22177123456", NormalizePhone("+221 77-123-456"))
	assert.Equal(t, "22177123456", NormalizePhone("0022177123456"))
}

func TestWhatsAppSender_SendTemplate(t *testing.T) {
	var captured map[string]interface{}
	var auth, path string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.1"}]}`))
	}))
	defer srv.Close()

	sender := NewWhatsAppSender(WhatsAppConfig{BaseURL: srv.URL + "/", PhoneNumberID: "123", Token: "tok"})
	err := sender.Send(context.Background(), Message{
		Recipient: "+221 77 000 00 00",
		Template:  "caisse_low_stock",
		Params:    []string{"A", "B"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok", auth)
	assert.Equal(t, "/123/messages", path)
	assert.Equal(t, "template", captured["type"])
	assert.Equal(t, "221770000000", captured["to"])
	tpl := captured["template"].(map[string]interface{})
	assert.Equal(t, "caisse_low_stock", tpl["name"])
	assert.Equal(t, "fr", tpl["language"].(map[string]interface{})["code"])
	components := tpl["components"].([]interface{})
	require.Len(t, components, 1)
	parameters := components[0].(map[string]interface{})["parameters"].([]interface{})
	assert.Len(t, parameters, 2)
}

func TestWhatsAppSender_SendText(t *testing.T) {
	req := NewWhatsAppSender(WhatsAppConfig{}).buildRequest(Message{Recipient: "1", Text: "bonjour"})
	assert.Equal(t, "text", req.Type)
	assert.Nil(t, req.Template)
	assert.Equal(t, "bonjour", req.Text.Body)
}

func TestWhatsAppSender_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"template not found","code":132001}}`))
	}))
	defer srv.Close()

	sender := NewWhatsAppSender(WhatsAppConfig{BaseURL: srv.URL, PhoneNumberID: "1"})
	err := sender.Send(context.Background(), Message{Recipient: "1", Template: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "template not found")
}

func TestWhatsAppSender_MissingRecipient(t *testing.T) {
	err := NewWhatsAppSender(WhatsAppConfig{}).Send(context.Background(), Message{Text: "x"})
	assert.Error(t, err)
}

type fakeTelegram struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeTelegram) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func TestTelegramSender(t *testing.T) {
	api := &fakeTelegram{}
	sender := NewTelegramSenderWithAPI(api, -100)

	require.NoError(t, sender.Send(context.Background(), Message{Text: "nouvelle demande"}))
	require.NoError(t, sender.Send(context.Background(), Message{Recipient: "42", Template: "caisse_low_stock", Params: []string{"a", "b"}}))

	require.Len(t, api.sent, 2)
	assert.Equal(t, int64(-100), api.sent[0].ChatID)
	assert.Equal(t, int64(42), api.sent[1].ChatID)
	assert.Equal(t, "caisse_low_stock: a | b", api.sent[1].Text)

	assert.Error(t, sender.Send(context.Background(), Message{Recipient: "abc", Text: "x"}))
}

func TestRegistry(t *testing.T) {
	api := &fakeTelegram{err: errors.New("boom")}
	r := NewRegistry(NewTelegramSenderWithAPI(api, 1), nil)

	assert.True(t, r.Enabled("telegram"))
	assert.False(t, r.Enabled("whatsapp"))

	err := r.Send(context.Background(), "whatsapp", Message{})
	assert.ErrorIs(t, err, ErrChannelDisabled)
	assert.Error(t, r.Send(context.Background(), "telegram", Message{Text: "x"}))
}
