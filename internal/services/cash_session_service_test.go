package services

import (
	"context"
	"testing"
	"time"

	"caisse/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestCashSessionService_Open(t *testing.T) {
	f := newFixture(t)
	actor := f.actor(f.cashier)

	_, err := f.sessions.Open(actor, d("-1"), "")
	assert.ErrorIs(t, err, ErrInvalidParam)

	session, err := f.sessions.Open(actor, d("150"), "matin")
	require.NoError(t, err)
	assert.Equal(t, models.CashSessionOpen, session.Status)
	assert.False(t, session.OpenedAt.IsZero())

	_, err = f.sessions.Open(actor, d("0"), "")
	assert.ErrorIs(t, err, ErrSessionAlreadyOpen)

	// 其他用户可以同时开箱
	_, err = f.sessions.Open(f.actor(f.manager), d("0"), "")
	assert.NoError(t, err)

	count, err := f.sessions.OpenCount(f.entity.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestCashSessionService_OneOpenSessionIndex(t *testing.T) {
	f := newFixture(t)
	actor := f.actor(f.cashier)

	first, err := f.sessions.Open(actor, d("10"), "")
	require.NoError(t, err)

	// 绕过计数检查直接插入，模拟两个并发请求同时通过检查
	dup := &models.CashSession{
		EntityID:       f.entity.ID,
		UserID:         f.cashier.ID,
		Status:         models.CashSessionOpen,
		OpeningBalance: d("0"),
		OpenedAt:       time.Now(),
	}
	err = f.db.Create(dup).Error
	require.Error(t, err)
	assert.True(t, isDuplicateKey(err))

	// 已关闭的会话不受约束
	require.NoError(t, f.db.Model(&models.CashSession{}).Where("id = ?", first.ID).
		Update("status", models.CashSessionClosed).Error)
	_, err = f.sessions.Open(actor, d("0"), "")
	assert.NoError(t, err)
}

func TestCashSessionService_Movements(t *testing.T) {
	f := newFixture(t)
	actor := f.actor(f.cashier)

	_, err := f.sessions.AddMovement(actor, models.CashMovementCashIn, d("10"), "appoint")
	assert.ErrorIs(t, err, ErrNoOpenSession)

	_, err = f.sessions.Open(actor, d("100"), "")
	require.NoError(t, err)

	_, err = f.sessions.AddMovement(actor, models.CashMovementSale, d("10"), "vente")
	assert.ErrorIs(t, err, ErrInvalidParam)
	_, err = f.sessions.AddMovement(actor, models.CashMovementExpense, d("0"), "rien")
	assert.ErrorIs(t, err, ErrInvalidParam)
	_, err = f.sessions.AddMovement(actor, models.CashMovementExpense, d("5"), "")
	assert.ErrorIs(t, err, ErrInvalidParam)
	_, err = f.sessions.AddMovement(actor, models.CashMovementExpense, d("5.001"), "taxi")
	assert.ErrorIs(t, err, ErrInvalidParam)

	_, err = f.sessions.AddMovement(actor, models.CashMovementCashIn, d("20"), "appoint")
	require.NoError(t, err)
	_, err = f.sessions.AddMovement(actor, models.CashMovementExpense, d("5"), "sachets")
	require.NoError(t, err)
	_, err = f.sessions.AddMovement(actor, models.CashMovementCashOut, d("15"), "banque")
	require.NoError(t, err)

	detail, err := f.sessions.Current(actor)
	require.NoError(t, err)
	assert.Len(t, detail.Movements, 3)
	assert.True(t, detail.Expected.Equal(d("100")), detail.Expected.String())
	assert.True(t, detail.Summary[models.CashMovementCashIn].Equal(d("20")))
	assert.True(t, detail.Summary[models.CashMovementSale].IsZero())
}

func TestCashSessionService_CloseBalanced(t *testing.T) {
	f := newFixture(t)
	actor := f.actor(f.cashier)

	session, err := f.sessions.Open(actor, d("100"), "")
	require.NoError(t, err)
	_, err = f.sessions.AddMovement(actor, models.CashMovementCashIn, d("20"), "appoint")
	require.NoError(t, err)
	_, err = f.sessions.AddMovement(actor, models.CashMovementExpense, d("5"), "sachets")
	require.NoError(t, err)

	closed, err := f.sessions.Close(context.Background(), actor, session.ID, d("115.50"), "fin de journée")
	require.NoError(t, err)
	assert.Equal(t, models.CashSessionClosed, closed.Status)
	require.NotNil(t, closed.ExpectedBalance)
	assert.True(t, closed.ExpectedBalance.Equal(d("115")))
	assert.True(t, closed.Variance.Equal(d("0.5")))
	assert.Equal(t, models.VarianceBalanced, closed.VarianceLevel)
	assert.NotNil(t, closed.ClosedAt)

	_, err = f.sessions.Close(context.Background(), actor, session.ID, d("115"), "")
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = f.sessions.Current(actor)
	assert.ErrorIs(t, err, ErrNoOpenSession)

	var stored models.CashSession
	require.NoError(t, f.db.First(&stored, session.ID).Error)
	assert.Equal(t, models.VarianceBalanced, stored.VarianceLevel)
	assert.True(t, stored.DeclaredBalance.Equal(d("115.5")))
}

func TestCashSessionService_CloseMajorVarianceNotifies(t *testing.T) {
	f := newFixture(t)
	actor := f.actor(f.cashier)

	session, err := f.sessions.Open(actor, d("100"), "")
	require.NoError(t, err)
	_, err = f.sessions.AddMovement(actor, models.CashMovementCashIn, d("15"), "appoint")
	require.NoError(t, err)

	// 经理关闭收银员的会话
	closed, err := f.sessions.Close(context.Background(), f.actor(f.manager), session.ID, d("40"), "")
	require.NoError(t, err)
	assert.True(t, closed.Variance.Equal(d("-75")), closed.Variance.String())
	assert.Equal(t, models.VarianceMajor, closed.VarianceLevel)

	var inApp []models.Notification
	require.NoError(t, f.db.Where("type = ? AND channel = ?", models.NotificationCashVariance, models.ChannelInApp).Find(&inApp).Error)
	assert.Len(t, inApp, 2)

	whatsapp := f.queue.byChannel(models.ChannelWhatsApp)
	require.Len(t, whatsapp, 1)
	assert.Equal(t, "caisse_cash_variance", whatsapp[0].Template)
	assert.Equal(t, []string{f.entity.Name, f.cashier.Username, "-75,00", models.VarianceMajor}, whatsapp[0].Params)
	assert.NotEmpty(t, f.publisher.events)
}

func TestCashSessionService_MinorVariance(t *testing.T) {
	f := newFixture(t)
	actor := f.actor(f.cashier)

	session, err := f.sessions.Open(actor, d("100"), "")
	require.NoError(t, err)
	closed, err := f.sessions.Close(context.Background(), actor, session.ID, d("90"), "")
	require.NoError(t, err)
	assert.Equal(t, models.VarianceMinor, closed.VarianceLevel)
	assert.Empty(t, f.queue.byChannel(models.ChannelWhatsApp))
}

func TestCashSessionService_CashierScope(t *testing.T) {
	f := newFixture(t)
	other := f.user(t, "khady", models.RoleCashier)

	session, err := f.sessions.Open(f.actor(other), d("0"), "")
	require.NoError(t, err)

	_, err = f.sessions.Get(f.actor(f.cashier), session.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	_, err = f.sessions.Close(context.Background(), f.actor(f.cashier), session.ID, d("0"), "")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	list, total, err := f.sessions.GetWithFiltersAndPage(f.actor(f.manager), SessionFilter{Status: models.CashSessionOpen}, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.NotNil(t, list[0].User)
	assert.Equal(t, "khady", list[0].User.Username)
}

func TestCashSessionService_NotifyStale(t *testing.T) {
	f := newFixture(t)
	actor := f.actor(f.cashier)

	session, err := f.sessions.Open(actor, d("0"), "")
	require.NoError(t, err)
	_, err = f.sessions.Open(f.actor(f.manager), d("0"), "")
	require.NoError(t, err)

	require.NoError(t, f.db.Model(&models.CashSession{}).Where("id = ?", session.ID).
		Update("opened_at", time.Now().Add(-13*time.Hour)).Error)

	notified, err := f.sessions.NotifyStale(context.Background(), 12)
	require.NoError(t, err)
	assert.Equal(t, 1, notified)

	notified, err = f.sessions.NotifyStale(context.Background(), 12)
	require.NoError(t, err)
	assert.Zero(t, notified)

	var count int64
	f.db.Model(&models.Notification{}).Where("type = ?", models.NotificationStaleSession).Count(&count)
	// admin + manager 站内 + 一条 WhatsApp
	assert.Equal(t, int64(3), count)
}
