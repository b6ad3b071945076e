package services

import (
	"context"
	"testing"

	"caisse/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStockService_Adjust(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "SAF", "6", "10", "10")
	ctx := context.Background()
	actor := f.actor(f.keeper)

	t.Run("delta", func(t *testing.T) {
		m, err := f.stock.Adjust(ctx, actor, p.ID, AdjustInput{Delta: dp("-2.250"), Reason: "casse"})
		require.NoError(t, err)
		assert.Equal(t, models.MovementAdjustment, m.Type)
		assert.True(t, m.QuantityBefore.Equal(d("10")))
		assert.True(t, m.QuantityAfter.Equal(d("7.75")), m.QuantityAfter.String())
		require.NotNil(t, m.UserID)
		assert.Equal(t, f.keeper.ID, *m.UserID)
	})

	t.Run("precision beyond stored scale", func(t *testing.T) {
		_, err := f.stock.Adjust(ctx, actor, p.ID, AdjustInput{Delta: dp("-0.0004"), Reason: "pesée"})
		assert.ErrorIs(t, err, ErrInvalidParam)
		_, err = f.stock.Adjust(ctx, actor, p.ID, AdjustInput{Count: dp("7.7501"), Reason: "pesée"})
		assert.ErrorIs(t, err, ErrInvalidParam)
		assert.True(t, f.quantity(t, p.ID).Equal(d("7.75")))
	})

	t.Run("absolute count", func(t *testing.T) {
		m, err := f.stock.Adjust(ctx, actor, p.ID, AdjustInput{Count: dp("12"), Reason: "inventaire"})
		require.NoError(t, err)
		assert.True(t, m.Quantity.Equal(d("4.25")), m.Quantity.String())
		assert.True(t, f.quantity(t, p.ID).Equal(d("12")))
	})

	t.Run("count to zero", func(t *testing.T) {
		_, err := f.stock.Adjust(ctx, actor, p.ID, AdjustInput{Count: dp("0"), Reason: "inventaire"})
		require.NoError(t, err)
		assert.True(t, f.quantity(t, p.ID).IsZero())
	})

	t.Run("cannot go negative", func(t *testing.T) {
		_, err := f.stock.Adjust(ctx, actor, p.ID, AdjustInput{Delta: dp("-1"), Reason: "casse"})
		assert.ErrorIs(t, err, ErrInsufficientStock)
		assert.True(t, f.quantity(t, p.ID).IsZero())
	})

	t.Run("return adds stock", func(t *testing.T) {
		m, err := f.stock.Adjust(ctx, actor, p.ID, AdjustInput{Delta: dp("3"), Type: models.MovementReturn, Reason: "retour client"})
		require.NoError(t, err)
		assert.Equal(t, models.MovementReturn, m.Type)
		assert.True(t, f.quantity(t, p.ID).Equal(d("3")))
	})

	t.Run("invalid input", func(t *testing.T) {
		cases := []AdjustInput{
			{Reason: "rien"},
			{Delta: dp("1"), Count: dp("1"), Reason: "les deux"},
			{Delta: dp("1")},
			{Delta: dp("1"), Type: models.MovementSale, Reason: "vente"},
			{Count: dp("-1"), Reason: "négatif"},
			{Delta: dp("0"), Reason: "zéro"},
		}
		for _, in := range cases {
			_, err := f.stock.Adjust(ctx, actor, p.ID, in)
			assert.ErrorIs(t, err, ErrInvalidParam)
		}
	})
}

func TestStockService_ListAndMovements(t *testing.T) {
	f := newFixture(t)
	ok := f.product(t, "SAF", "6", "10", "20")
	low := f.product(t, "CUM", "2", "4", "1")
	f.product(t, "POI", "3", "5", "0")
	ctx := context.Background()

	require.NoError(t, f.stock.SetMinQuantity(f.entity.ID, low.ID, d("5")))
	require.NoError(t, f.stock.SetMinQuantity(f.entity.ID, ok.ID, d("5")))

	rows, total, err := f.stock.List(f.entity.ID, StockFilter{}, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	status := map[string]string{}
	for _, r := range rows {
		status[r.SKU] = r.Status
	}
	assert.Equal(t, models.StockStatusOK, status["SAF"])
	assert.Equal(t, models.StockStatusLow, status["CUM"])
	assert.Equal(t, models.StockStatusOut, status["POI"])

	lowRows, total, err := f.stock.List(f.entity.ID, StockFilter{LowOnly: true}, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, lowRows, 2)

	count, err := f.stock.LowStockCount(f.entity.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	rows, _, err = f.stock.List(f.entity.ID, StockFilter{Keyword: "saf"}, 1, 20)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Value.Equal(d("120")), rows[0].Value.String())

	_, err = f.stock.Adjust(ctx, f.actor(f.keeper), ok.ID, AdjustInput{Delta: dp("-1"), Reason: "casse"})
	require.NoError(t, err)
	_, err = f.stock.Adjust(ctx, f.actor(f.keeper), low.ID, AdjustInput{Delta: dp("2"), Reason: "trouvé"})
	require.NoError(t, err)

	movements, total, err := f.stock.ListMovements(f.entity.ID, MovementFilter{ProductID: ok.ID}, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, ok.ID, movements[0].ProductID)
	require.NotNil(t, movements[0].Product)

	assert.ErrorIs(t, f.stock.SetMinQuantity(f.entity.ID, ok.ID, d("-1")), ErrInvalidParam)
}

func TestThresholdService_AutoReorderOnSale(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "SAF", "6.5", "10", "6")
	ctx := context.Background()

	threshold, err := f.thresholds.Create(f.entity.ID, ThresholdInput{
		ProductID:       p.ID,
		MinQuantity:     d("5"),
		ReorderQuantity: d("20"),
		SupplierName:    "Grossiste Sandaga",
		SupplierPhone:   "+221775550000",
	})
	require.NoError(t, err)
	assert.True(t, threshold.Enabled)

	_, err = f.thresholds.Create(f.entity.ID, ThresholdInput{ProductID: p.ID, MinQuantity: d("1"), ReorderQuantity: d("1")})
	assert.ErrorIs(t, err, ErrDuplicate)

	// 6 -> 4，触及水位
	_, err = f.invoices.Create(ctx, f.actor(f.manager), InvoiceInput{
		PaymentMethod: models.PaymentCard,
		Lines:         []InvoiceLineInput{{ProductID: p.ID, Quantity: d("2")}},
		Validate:      true,
	})
	require.NoError(t, err)

	var orders []models.Order
	require.NoError(t, f.db.Preload("Lines").Where("entity_id = ? AND is_auto = ?", f.entity.ID, true).Find(&orders).Error)
	require.Len(t, orders, 1)
	order := orders[0]
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, "Grossiste Sandaga", order.SupplierName)
	assert.Nil(t, order.CreatedBy)
	require.Len(t, order.Lines, 1)
	assert.True(t, order.Lines[0].Quantity.Equal(d("20")))
	assert.True(t, order.Lines[0].UnitCost.Equal(d("6.5")))
	assert.True(t, order.Total.Equal(d("130")), order.Total.String())

	reloaded, err := f.thresholds.GetByID(f.entity.ID, threshold.ID)
	require.NoError(t, err)
	assert.NotNil(t, reloaded.LastTriggeredAt)

	var lowStock int64
	f.db.Model(&models.Notification{}).Where("type = ? AND channel = ?", models.NotificationLowStock, models.ChannelInApp).Count(&lowStock)
	// admin + manager + stock_keeper
	assert.Equal(t, int64(3), lowStock)
	whatsapp := f.queue.byChannel(models.ChannelWhatsApp)
	require.Len(t, whatsapp, 1)
	assert.Equal(t, "caisse_low_stock", whatsapp[0].Template)
	assert.Equal(t, f.entity.WhatsAppPhone, whatsapp[0].Recipient)

	// 已有进行中的自动订单，不再重复生成
	_, err = f.invoices.Create(ctx, f.actor(f.manager), InvoiceInput{
		PaymentMethod: models.PaymentCard,
		Lines:         []InvoiceLineInput{{ProductID: p.ID, Quantity: d("1")}},
		Validate:      true,
	})
	require.NoError(t, err)
	var count int64
	f.db.Model(&models.Order{}).Where("is_auto = ?", true).Count(&count)
	assert.Equal(t, int64(1), count)

	// 自动订单取消后再次检查会重新生成
	_, err = f.orders.Cancel(f.entity.ID, order.ID)
	require.NoError(t, err)
	event, err := f.thresholds.CheckAndReorder(ctx, f.entity.ID, p.ID)
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.NotEqual(t, order.Number, event.Order.Number)
}

func TestThresholdService_DisabledOrAboveMin(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "SAF", "6", "10", "3")
	ctx := context.Background()

	disabled := false
	th, err := f.thresholds.Create(f.entity.ID, ThresholdInput{
		ProductID: p.ID, MinQuantity: d("5"), ReorderQuantity: d("10"), Enabled: &disabled,
	})
	require.NoError(t, err)
	assert.False(t, th.Enabled)

	event, err := f.thresholds.CheckAndReorder(ctx, f.entity.ID, p.ID)
	require.NoError(t, err)
	assert.Nil(t, event)

	enabled := true
	_, err = f.thresholds.Update(f.entity.ID, th.ID, ThresholdInput{MinQuantity: d("2"), ReorderQuantity: d("10"), Enabled: &enabled})
	require.NoError(t, err)

	event, err = f.thresholds.CheckAndReorder(ctx, f.entity.ID, p.ID)
	require.NoError(t, err)
	assert.Nil(t, event)
}

func TestThresholdService_Sweep(t *testing.T) {
	f := newFixture(t)
	breached := f.product(t, "SAF", "6", "10", "1")
	healthy := f.product(t, "CUM", "2", "4", "50")
	ctx := context.Background()

	for _, p := range []*models.Product{breached, healthy} {
		_, err := f.thresholds.Create(f.entity.ID, ThresholdInput{ProductID: p.ID, MinQuantity: d("5"), ReorderQuantity: d("10")})
		require.NoError(t, err)
	}

	created, err := f.thresholds.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	created, err = f.thresholds.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, created)

	list, total, err := f.thresholds.List(f.entity.ID, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.NotNil(t, list[0].Product)
}

func TestThresholdService_Validation(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "SAF", "6", "10", "3")

	_, err := f.thresholds.Create(f.entity.ID, ThresholdInput{ProductID: p.ID, MinQuantity: d("5"), ReorderQuantity: d("0")})
	assert.ErrorIs(t, err, ErrInvalidParam)
	_, err = f.thresholds.Create(f.entity.ID, ThresholdInput{ProductID: 999, MinQuantity: d("5"), ReorderQuantity: d("1")})
	assert.ErrorIs(t, err, ErrInvalidParam)
}
