package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"caisse/internal/metrics"
	"caisse/internal/models"
	"caisse/pkg/export"
	"caisse/pkg/logger"
	"caisse/pkg/pagination"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const numberRetries = 3

type InvoiceService struct {
	db            *gorm.DB
	thresholds    *ThresholdService
	notifications *NotificationService
	metrics       *metrics.Metrics
}

// InvoiceLineInput 发票行参数，单价取商品当前售价
type InvoiceLineInput struct {
	ProductID uint
	Quantity  decimal.Decimal
	Discount  decimal.Decimal
}

// InvoiceInput 开票参数
type InvoiceInput struct {
	CustomerName  string
	CustomerPhone string
	PaymentMethod string
	Discount      decimal.Decimal
	Notes         string
	Lines         []InvoiceLineInput
	Validate      bool // 创建后立即确认
	SendReceipt   bool // 确认后通过 WhatsApp 发送小票
}

// InvoiceFilter 发票列表过滤
type InvoiceFilter struct {
	Status        string
	PaymentMethod string
	CreatedBy     uint
	Keyword       string
	Range         DateRange
}

func NewInvoiceService(db *gorm.DB, thresholds *ThresholdService, notifications *NotificationService, m *metrics.Metrics) *InvoiceService {
	return &InvoiceService{db: db, thresholds: thresholds, notifications: notifications, metrics: m}
}

func validPaymentMethod(method string) bool {
	switch method {
	case models.PaymentCash, models.PaymentCard, models.PaymentMobileMoney:
		return true
	}
	return false
}

// Create 创建草稿发票，Validate 为真时在同一事务内确认
func (s *InvoiceService) Create(ctx context.Context, actor Actor, in InvoiceInput) (*models.Invoice, error) {
	if !validPaymentMethod(in.PaymentMethod) {
		return nil, invalidParam("无效的支付方式: %s", in.PaymentMethod)
	}
	if len(in.Lines) == 0 {
		return nil, invalidParam("发票至少需要一行")
	}
	if in.Discount.IsNegative() {
		return nil, invalidParam("折扣不能为负数")
	}
	if exceedsPlaces(in.Discount, moneyPlaces) {
		return nil, invalidParam("折扣最多保留2位小数")
	}

	var invoice *models.Invoice
	var events []*ReorderEvent
	var err error
	for attempt := 0; attempt < numberRetries; attempt++ {
		invoice, events = nil, nil
		err = s.db.Transaction(func(tx *gorm.DB) error {
			inv, err := s.buildDraft(tx, actor, in)
			if err != nil {
				return err
			}
			inv.Number, err = nextNumber(tx, &models.Invoice{}, actor.EntityID, "FAC", time.Now())
			if err != nil {
				return err
			}
			if err := tx.Create(inv).Error; err != nil {
				return err
			}
			if in.Validate {
				events, err = s.validateTx(tx, actor, inv)
				if err != nil {
					return err
				}
			}
			invoice = inv
			return nil
		})
		if !isDuplicateKey(err) {
			break
		}
		logger.ForEntity(actor.EntityID, actor.UserID).Warnf("发票号冲突，重试第 %d 次", attempt+1)
	}
	if err != nil {
		if isDuplicateKey(err) {
			return nil, duplicate("发票号生成冲突，请重试")
		}
		return nil, err
	}

	if in.Validate {
		s.afterValidate(ctx, actor, invoice, events, in.SendReceipt)
	}
	return invoice, nil
}

// buildDraft 按商品目录快照构造发票行
func (s *InvoiceService) buildDraft(tx *gorm.DB, actor Actor, in InvoiceInput) (*models.Invoice, error) {
	inv := &models.Invoice{
		EntityID:      actor.EntityID,
		CustomerName:  strings.TrimSpace(in.CustomerName),
		CustomerPhone: strings.TrimSpace(in.CustomerPhone),
		Status:        models.InvoiceStatusDraft,
		PaymentMethod: in.PaymentMethod,
		Discount:      in.Discount,
		CreatedBy:     actor.UserID,
		Notes:         in.Notes,
	}

	for _, li := range in.Lines {
		if !li.Quantity.IsPositive() {
			return nil, invalidParam("数量必须大于0")
		}
		if exceedsPlaces(li.Quantity, quantityPlaces) {
			return nil, invalidParam("数量最多保留3位小数")
		}
		if li.Discount.IsNegative() {
			return nil, invalidParam("行折扣不能为负数")
		}
		if exceedsPlaces(li.Discount, moneyPlaces) {
			return nil, invalidParam("行折扣最多保留2位小数")
		}
		var product models.Product
		if err := tx.Where("entity_id = ?", actor.EntityID).First(&product, li.ProductID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, invalidParam("商品 %d 不存在", li.ProductID)
			}
			return nil, err
		}
		if !product.Active {
			return nil, invalidParam("商品 %s 已停售", product.Name)
		}
		inv.Lines = append(inv.Lines, models.InvoiceLine{
			ProductID:   product.ID,
			ProductName: product.Name,
			Unit:        product.Unit,
			Quantity:    li.Quantity,
			UnitPrice:   product.SalePrice,
			Discount:    li.Discount,
		})
	}
	inv.ComputeTotals()
	return inv, nil
}

// scoped 收银员只能看到自己开的发票
func (s *InvoiceService) scoped(db *gorm.DB, actor Actor) *gorm.DB {
	query := db.Model(&models.Invoice{}).Where("invoices.entity_id = ?", actor.EntityID)
	if actor.Role == models.RoleCashier {
		query = query.Where("invoices.created_by = ?", actor.UserID)
	}
	return query
}

// GetByID 获取发票（含发票行）
func (s *InvoiceService) GetByID(actor Actor, id uint) (*models.Invoice, error) {
	var invoice models.Invoice
	err := s.scoped(s.db, actor).Preload("Lines").Preload("Creator").First(&invoice, id).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// GetWithFiltersAndPage 发票列表
func (s *InvoiceService) GetWithFiltersAndPage(actor Actor, filter InvoiceFilter, page, pageSize int) ([]*models.Invoice, int64, error) {
	var invoices []*models.Invoice
	var total int64

	query := s.scoped(s.db, actor)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.PaymentMethod != "" {
		query = query.Where("payment_method = ?", filter.PaymentMethod)
	}
	if filter.CreatedBy != 0 {
		query = query.Where("created_by = ?", filter.CreatedBy)
	}
	if filter.Keyword != "" {
		pattern := likePattern(filter.Keyword)
		query = query.Where("LOWER(number) LIKE ? OR LOWER(customer_name) LIKE ? OR customer_phone LIKE ?",
			pattern, pattern, pattern)
	}
	query = filter.Range.Apply(query, "created_at")

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Preload("Creator").Order("created_at DESC, id DESC").Scopes(pagination.Paginate(page, pageSize)).Find(&invoices).Error
	return invoices, total, err
}

// Validate 确认发票：扣减库存、登记钱箱收入、检查自动补货，任一失败则整体回滚
func (s *InvoiceService) Validate(ctx context.Context, actor Actor, id uint, sendReceipt bool) (*models.Invoice, error) {
	var invoice *models.Invoice
	var events []*ReorderEvent
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var inv models.Invoice
		if err := s.scoped(tx, actor).Preload("Lines").First(&inv, id).Error; err != nil {
			return err
		}
		var err error
		events, err = s.validateTx(tx, actor, &inv)
		if err != nil {
			return err
		}
		invoice = &inv
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterValidate(ctx, actor, invoice, events, sendReceipt)
	return invoice, nil
}

func (s *InvoiceService) validateTx(tx *gorm.DB, actor Actor, inv *models.Invoice) ([]*ReorderEvent, error) {
	if inv.Status != models.InvoiceStatusDraft {
		return nil, invalidState("发票状态为 %s，不能确认", inv.Status)
	}
	if len(inv.Lines) == 0 {
		return nil, invalidParam("发票没有任何行")
	}

	var session *models.CashSession
	if inv.PaymentMethod == models.PaymentCash {
		var open models.CashSession
		err := tx.Where("entity_id = ? AND user_id = ? AND status = ?", actor.EntityID, actor.UserID, models.CashSessionOpen).
			First(&open).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoOpenSession
		}
		if err != nil {
			return nil, err
		}
		session = &open
	}

	userID := actor.UserID
	products := make([]uint, 0, len(inv.Lines))
	seen := make(map[uint]bool)
	for _, line := range inv.Lines {
		if _, err := applyStockChange(tx, stockChange{
			EntityID:         inv.EntityID,
			ProductID:        line.ProductID,
			Delta:            line.Quantity.Neg(),
			Type:             models.MovementSale,
			Reference:        inv.Number,
			UserID:           &userID,
			RequireAvailable: true,
		}); err != nil {
			return nil, err
		}
		if !seen[line.ProductID] {
			seen[line.ProductID] = true
			products = append(products, line.ProductID)
		}
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":       models.InvoiceStatusValidated,
		"validated_at": now,
	}
	if session != nil {
		updates["cash_session_id"] = session.ID
	}
	result := tx.Model(&models.Invoice{}).
		Where("id = ? AND status = ?", inv.ID, models.InvoiceStatusDraft).
		Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, invalidState("发票已被其他操作处理")
	}
	inv.Status = models.InvoiceStatusValidated
	inv.ValidatedAt = &now

	if session != nil {
		inv.CashSessionID = &session.ID
		if inv.Total.IsPositive() {
			movement := &models.CashMovement{
				SessionID: session.ID,
				EntityID:  inv.EntityID,
				Type:      models.CashMovementSale,
				Amount:    inv.Total,
				Reason:    inv.Number,
				InvoiceID: &inv.ID,
				UserID:    actor.UserID,
			}
			if err := tx.Create(movement).Error; err != nil {
				return nil, err
			}
		}
	}

	var events []*ReorderEvent
	if s.thresholds != nil {
		for _, productID := range products {
			event, err := s.thresholds.checkAndReorder(tx, inv.EntityID, productID)
			if err != nil {
				return nil, err
			}
			if event != nil {
				events = append(events, event)
			}
		}
	}
	return events, nil
}

// afterValidate 提交后的通知与指标
func (s *InvoiceService) afterValidate(ctx context.Context, actor Actor, inv *models.Invoice, events []*ReorderEvent, sendReceipt bool) {
	s.metrics.InvoiceValidated(inv.PaymentMethod)
	if s.thresholds != nil {
		s.thresholds.Announce(ctx, events...)
	}

	if !sendReceipt || inv.CustomerPhone == "" || s.notifications == nil {
		return
	}
	customer := inv.CustomerName
	if customer == "" {
		customer = "client"
	}
	_, err := s.notifications.Notify(ctx, NotifyRequest{
		EntityID: inv.EntityID,
		UserID:   &actor.UserID,
		Type:     models.NotificationInvoice,
		Title:    "Facture " + inv.Number,
		Message:  fmt.Sprintf("%s: %s", customer, inv.Total.StringFixed(2)),
		Payload: map[string]string{
			"customer": customer,
			"number":   inv.Number,
			"total":    export.DecimalComma(inv.Total),
		},
		WhatsApp:       true,
		RecipientPhone: inv.CustomerPhone,
	})
	if err != nil {
		logger.ForEntity(inv.EntityID, actor.UserID).Errorf("发送发票小票失败 (%s): %v", inv.Number, err)
	}
}

// Cancel 作废发票：草稿直接作废；已确认的回补库存，原收银会话仍打开时登记退款
func (s *InvoiceService) Cancel(actor Actor, id uint, reason string) (*models.Invoice, error) {
	var invoice *models.Invoice
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var inv models.Invoice
		if err := s.scoped(tx, actor).Preload("Lines").First(&inv, id).Error; err != nil {
			return err
		}
		if inv.Status == models.InvoiceStatusCancelled {
			return invalidState("发票已作废")
		}

		if inv.Status == models.InvoiceStatusValidated {
			userID := actor.UserID
			for _, line := range inv.Lines {
				if _, err := applyStockChange(tx, stockChange{
					EntityID:  inv.EntityID,
					ProductID: line.ProductID,
					Delta:     line.Quantity,
					Type:      models.MovementCancellation,
					Reference: inv.Number,
					UserID:    &userID,
					Notes:     reason,
				}); err != nil {
					return err
				}
			}

			if inv.CashSessionID != nil && inv.Total.IsPositive() {
				var session models.CashSession
				err := tx.Where("id = ? AND status = ?", *inv.CashSessionID, models.CashSessionOpen).First(&session).Error
				if err == nil {
					refund := &models.CashMovement{
						SessionID: session.ID,
						EntityID:  inv.EntityID,
						Type:      models.CashMovementRefund,
						Amount:    inv.Total,
						Reason:    "Annulation " + inv.Number,
						InvoiceID: &inv.ID,
						UserID:    actor.UserID,
					}
					if err := tx.Create(refund).Error; err != nil {
						return err
					}
				} else if !errors.Is(err, gorm.ErrRecordNotFound) {
					return err
				}
			}
		}

		now := time.Now()
		notes := inv.Notes
		if reason != "" {
			notes = truncateRunes(strings.TrimSpace(notes+" "+reason), 255)
		}
		result := tx.Model(&models.Invoice{}).
			Where("id = ? AND status = ?", inv.ID, inv.Status).
			Updates(map[string]interface{}{
				"status":       models.InvoiceStatusCancelled,
				"cancelled_at": now,
				"notes":        notes,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return invalidState("发票已被其他操作处理")
		}
		inv.Status = models.InvoiceStatusCancelled
		inv.CancelledAt = &now
		inv.Notes = notes
		invoice = &inv
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.InvoiceCancelled()
	return invoice, nil
}

var paymentLabels = map[string]string{
	models.PaymentCash:        "Espèces",
	models.PaymentCard:        "Carte",
	models.PaymentMobileMoney: "Mobile money",
}

var invoiceStatusLabels = map[string]string{
	models.InvoiceStatusDraft:     "Brouillon",
	models.InvoiceStatusValidated: "Validée",
	models.InvoiceStatusCancelled: "Annulée",
}

// Document 发票打印文档
func (s *InvoiceService) Document(actor Actor, id uint) (*export.Document, error) {
	invoice, err := s.GetByID(actor, id)
	if err != nil {
		return nil, err
	}
	var entity models.Entity
	if err := s.db.First(&entity, invoice.EntityID).Error; err != nil {
		return nil, err
	}

	lines := export.Table{
		Name:    "lignes",
		Headers: []string{"Article", "Qté", "Unité", "Prix unitaire", "Remise", "Total"},
	}
	for _, l := range invoice.Lines {
		lines.AddRow(l.ProductName, l.Quantity, l.Unit, export.M(l.UnitPrice), export.M(l.Discount), export.M(l.LineTotal))
	}

	meta := []export.Field{
		{Label: "Date", Value: invoice.CreatedAt},
		{Label: "Statut", Value: invoiceStatusLabels[invoice.Status]},
		{Label: "Paiement", Value: paymentLabels[invoice.PaymentMethod]},
	}
	if invoice.CustomerName != "" {
		meta = append(meta, export.Field{Label: "Client", Value: invoice.CustomerName})
	}
	if invoice.CustomerPhone != "" {
		meta = append(meta, export.Field{Label: "Téléphone", Value: invoice.CustomerPhone})
	}
	if invoice.Creator != nil {
		meta = append(meta, export.Field{Label: "Caissier", Value: invoice.Creator.Username})
	}

	footer := entity.Address
	if entity.Phone != "" {
		footer = strings.TrimSpace(footer + " " + entity.Phone)
	}

	return &export.Document{
		Title:      "Facture " + invoice.Number,
		EntityName: entity.Name,
		Meta:       meta,
		Tables:     []export.Table{lines},
		Summary: []export.Field{
			{Label: "Sous-total", Value: export.M(invoice.Subtotal)},
			{Label: "Remise", Value: export.M(invoice.Discount)},
			{Label: "Total", Value: export.M(invoice.Total)},
		},
		Footer: footer,
	}, nil
}
