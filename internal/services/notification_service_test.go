package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"caisse/internal/models"
	"caisse/pkg/messaging"
	"caisse/pkg/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationService_Notify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("roles fan out to active users", func(t *testing.T) {
		created, err := f.notifications.Notify(ctx, NotifyRequest{
			EntityID: f.entity.ID,
			Roles:    []string{models.RoleAdmin, models.RoleManager},
			Type:     models.NotificationLowStock,
			Title:    "Stock bas",
			Message:  "Poivre noir",
			Payload:  map[string]string{"entity": f.entity.Name, "product": "Poivre noir"},
			WhatsApp: true,
		})
		require.NoError(t, err)
		require.Len(t, created, 3)

		inApp := 0
		for _, n := range created {
			if n.Channel == models.ChannelInApp {
				inApp++
				require.NotNil(t, n.UserID)
			}
		}
		assert.Equal(t, 2, inApp)

		wa := f.queue.byChannel(models.ChannelWhatsApp)
		require.Len(t, wa, 1)
		assert.Equal(t, "+221770000000", wa[0].Recipient)
		assert.Equal(t, "caisse_low_stock", wa[0].Template)
		assert.Equal(t, []string{f.entity.Name, "Poivre noir", "-", "-"}, wa[0].Params)
		assert.Equal(t, "Stock bas\nPoivre noir", wa[0].Text)
		assert.Len(t, f.publisher.events, 2)
	})

	t.Run("no recipients becomes broadcast", func(t *testing.T) {
		created, err := f.notifications.Notify(ctx, NotifyRequest{
			EntityID: f.entity.ID,
			Roles:    []string{models.RoleSuperAdmin},
			Type:     models.NotificationCustom,
			Title:    "Info",
		})
		require.NoError(t, err)
		require.Len(t, created, 1)
		assert.Nil(t, created[0].UserID)
	})

	t.Run("disabled channel is skipped", func(t *testing.T) {
		svc := NewNotificationService(f.db, nil, f.queue)
		before := len(f.queue.messages)
		created, err := svc.Notify(ctx, NotifyRequest{
			EntityID: f.entity.ID,
			UserID:   &f.admin.ID,
			Type:     models.NotificationCustom,
			Title:    "Info",
			WhatsApp: true,
			Telegram: true,
		})
		require.NoError(t, err)
		assert.Len(t, created, 1)
		assert.Len(t, f.queue.messages, before)
	})

	t.Run("telegram has no template", func(t *testing.T) {
		_, err := f.notifications.Notify(ctx, NotifyRequest{
			EntityID: 0,
			Roles:    []string{models.RoleSuperAdmin},
			Type:     models.NotificationRegistration,
			Title:    "Nouvelle demande",
			Message:  "Boutique",
			Telegram: true,
		})
		require.NoError(t, err)
		tg := f.queue.byChannel(models.ChannelTelegram)
		require.Len(t, tg, 1)
		assert.Empty(t, tg[0].Template)
		assert.Empty(t, tg[0].Recipient)
	})
}

func TestNotificationService_Inbox(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cashier := f.actor(f.cashier)

	_, err := f.notifications.Notify(ctx, NotifyRequest{EntityID: f.entity.ID, UserID: &f.cashier.ID, Type: models.NotificationCustom, Title: "A"})
	require.NoError(t, err)
	_, err = f.notifications.Notify(ctx, NotifyRequest{EntityID: f.entity.ID, Type: models.NotificationCustom, Title: "B"})
	require.NoError(t, err)
	_, err = f.notifications.Notify(ctx, NotifyRequest{EntityID: f.entity.ID, UserID: &f.manager.ID, Type: models.NotificationCustom, Title: "C"})
	require.NoError(t, err)

	list, total, err := f.notifications.ListMine(cashier, false, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, list, 2)

	count, err := f.notifications.UnreadCount(cashier)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	read, err := f.notifications.MarkRead(cashier, list[0].ID)
	require.NoError(t, err)
	assert.NotNil(t, read.ReadAt)
	assert.Equal(t, models.NotificationRead, read.Status)

	count, err = f.notifications.UnreadCount(cashier)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// 其他用户的通知不可见
	var other models.Notification
	require.NoError(t, f.db.Where("title = ?", "C").First(&other).Error)
	_, err = f.notifications.MarkRead(cashier, other.ID)
	assert.Error(t, err)

	updated, err := f.notifications.MarkAllRead(cashier)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)

	unread, total, err := f.notifications.ListMine(cashier, true, 1, 20)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, unread)

	count, err = f.notifications.UnreadCount(f.actor(f.manager))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestNotificationService_SendCustom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.actor(f.admin)

	n, err := f.notifications.SendCustom(ctx, admin, "+221771112233", "", "Livraison demain")
	require.NoError(t, err)
	assert.Equal(t, models.ChannelWhatsApp, n.Channel)
	assert.Equal(t, models.NotificationPending, n.Status)
	assert.Empty(t, n.TemplateName)

	wa := f.queue.byChannel(models.ChannelWhatsApp)
	require.Len(t, wa, 1)
	assert.Equal(t, "+221771112233", wa[0].Recipient)
	assert.Equal(t, "Message\nLivraison demain", wa[0].Text)

	_, err = f.notifications.SendCustom(ctx, admin, "", "", "x")
	assert.ErrorIs(t, err, ErrInvalidParam)

	disabled := NewNotificationService(f.db, nil, f.queue)
	_, err = disabled.SendCustom(ctx, admin, "+221771112233", "", "x")
	assert.ErrorIs(t, err, ErrInvalidState)

	deliveries, total, err := f.notifications.ListDeliveries(f.entity.ID, models.NotificationPending, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, n.ID, deliveries[0].ID)
}

func TestNotificationService_NoQueueMarksFailed(t *testing.T) {
	f := newFixture(t)
	svc := NewNotificationService(f.db, nil, nil).WithChannels(models.ChannelWhatsApp)

	n, err := svc.SendCustom(context.Background(), f.actor(f.admin), "+221771112233", "", "x")
	require.NoError(t, err)
	assert.Equal(t, models.NotificationFailed, n.Status)

	var stored models.Notification
	require.NoError(t, f.db.First(&stored, n.ID).Error)
	assert.Equal(t, models.NotificationFailed, stored.Status)
	assert.NotEmpty(t, stored.Error)
}

func TestNotificationService_MarkDeliveryKeepsValidText(t *testing.T) {
	f := newFixture(t)
	n, err := f.notifications.SendCustom(context.Background(), f.actor(f.admin), "+221771112233", "", "x")
	require.NoError(t, err)

	f.notifications.MarkDelivery(n.ID, errors.New(strings.Repeat("échec ", 120)))

	var stored models.Notification
	require.NoError(t, f.db.First(&stored, n.ID).Error)
	assert.Equal(t, models.NotificationFailed, stored.Status)
	assert.True(t, utf8.ValidString(stored.Error))
	assert.Equal(t, 500, utf8.RuneCountInString(stored.Error))
}

type fakeSender struct {
	err  error
	sent []messaging.Message
}

func (s *fakeSender) Send(_ context.Context, _ string, msg messaging.Message) error {
	s.sent = append(s.sent, msg)
	return s.err
}

func TestNotificationWorker_Process(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.notifications.SendCustom(ctx, f.actor(f.admin), "+221771112233", "", "ok")
	require.NoError(t, err)
	_, err = f.notifications.SendCustom(ctx, f.actor(f.admin), "+221779998877", "", "ko")
	require.NoError(t, err)
	msgs := f.queue.byChannel(models.ChannelWhatsApp)
	require.Len(t, msgs, 2)

	sender := &fakeSender{}
	worker := NewNotificationWorker(nil, sender, f.notifications, nil)
	require.NoError(t, worker.Process(ctx, msgs[0]))

	var sent models.Notification
	require.NoError(t, f.db.First(&sent, msgs[0].NotificationID).Error)
	assert.Equal(t, models.NotificationSent, sent.Status)
	assert.NotNil(t, sent.SentAt)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "+221771112233", sender.sent[0].Recipient)

	sender.err = errors.New("provider down")
	assert.Error(t, worker.Process(ctx, msgs[1]))

	var failed models.Notification
	require.NoError(t, f.db.First(&failed, msgs[1].NotificationID).Error)
	assert.Equal(t, models.NotificationFailed, failed.Status)
	assert.Equal(t, "provider down", failed.Error)
}

type sliceSource struct {
	messages chan *queue.DeliveryMessage
}

func (s *sliceSource) Dequeue(ctx context.Context, _ time.Duration) (*queue.DeliveryMessage, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg := <-s.messages:
		return msg, nil
	}
}

func TestNotificationWorker_StartStop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	n, err := f.notifications.SendCustom(ctx, f.actor(f.admin), "+221771112233", "", "ok")
	require.NoError(t, err)

	source := &sliceSource{messages: make(chan *queue.DeliveryMessage, 1)}
	source.messages <- f.queue.byChannel(models.ChannelWhatsApp)[0]

	worker := NewNotificationWorker(source, &fakeSender{}, f.notifications, nil)
	worker.Start(ctx)

	assert.Eventually(t, func() bool {
		var stored models.Notification
		if err := f.db.First(&stored, n.ID).Error; err != nil {
			return false
		}
		return stored.Status == models.NotificationSent
	}, 2*time.Second, 20*time.Millisecond)

	worker.Stop()
}
