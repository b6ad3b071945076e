package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"caisse/internal/metrics"
	"caisse/internal/models"
	"caisse/pkg/export"
	"caisse/pkg/logger"
	"caisse/pkg/pagination"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CashSessionService struct {
	db            *gorm.DB
	notifications *NotificationService
	metrics       *metrics.Metrics
	tolerance     decimal.Decimal
	major         decimal.Decimal
}

// SessionDetail 会话详情：流水按类型汇总与应有余额
type SessionDetail struct {
	*models.CashSession
	Summary  map[string]decimal.Decimal `json:"summary"`
	Expected decimal.Decimal            `json:"expected"`
}

// SessionFilter 会话列表过滤
type SessionFilter struct {
	UserID uint
	Status string
	Range  DateRange
}

func NewCashSessionService(db *gorm.DB, notifications *NotificationService, m *metrics.Metrics, tolerance, major decimal.Decimal) *CashSessionService {
	return &CashSessionService{
		db:            db,
		notifications: notifications,
		metrics:       m,
		tolerance:     tolerance,
		major:         major,
	}
}

// scoped 收银员只能看到自己的会话
func (s *CashSessionService) scoped(db *gorm.DB, actor Actor) *gorm.DB {
	query := db.Model(&models.CashSession{}).Where("entity_id = ?", actor.EntityID)
	if actor.Role == models.RoleCashier {
		query = query.Where("user_id = ?", actor.UserID)
	}
	return query
}

// Open 打开收银会话，每个用户同时只能有一个
func (s *CashSessionService) Open(actor Actor, opening decimal.Decimal, notes string) (*models.CashSession, error) {
	if opening.IsNegative() {
		return nil, invalidParam("开箱金额不能为负数")
	}
	if exceedsPlaces(opening, moneyPlaces) {
		return nil, invalidParam("金额最多保留2位小数")
	}

	var session *models.CashSession
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.CashSession{}).
			Where("entity_id = ? AND user_id = ? AND status = ?", actor.EntityID, actor.UserID, models.CashSessionOpen).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrSessionAlreadyOpen
		}

		session = &models.CashSession{
			EntityID:       actor.EntityID,
			UserID:         actor.UserID,
			Status:         models.CashSessionOpen,
			OpeningBalance: opening,
			OpenedAt:       time.Now(),
			Notes:          notes,
		}
		return tx.Create(session).Error
	})
	if err != nil {
		// 并发打开时由部分唯一索引拦截
		if isDuplicateKey(err) {
			return nil, ErrSessionAlreadyOpen
		}
		return nil, err
	}
	return session, nil
}

// Current 当前用户打开的会话
func (s *CashSessionService) Current(actor Actor) (*SessionDetail, error) {
	var session models.CashSession
	err := s.db.Where("entity_id = ? AND user_id = ? AND status = ?", actor.EntityID, actor.UserID, models.CashSessionOpen).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoOpenSession
	}
	if err != nil {
		return nil, err
	}
	return s.detail(&session)
}

// Get 会话详情
func (s *CashSessionService) Get(actor Actor, id uint) (*SessionDetail, error) {
	var session models.CashSession
	if err := s.scoped(s.db, actor).Preload("User").First(&session, id).Error; err != nil {
		return nil, err
	}
	return s.detail(&session)
}

func (s *CashSessionService) detail(session *models.CashSession) (*SessionDetail, error) {
	if err := s.db.Where("session_id = ?", session.ID).Order("created_at, id").Find(&session.Movements).Error; err != nil {
		return nil, err
	}
	summary := map[string]decimal.Decimal{
		models.CashMovementSale:    decimal.Zero,
		models.CashMovementRefund:  decimal.Zero,
		models.CashMovementCashIn:  decimal.Zero,
		models.CashMovementCashOut: decimal.Zero,
		models.CashMovementExpense: decimal.Zero,
	}
	for _, m := range session.Movements {
		summary[m.Type] = summary[m.Type].Add(m.Amount)
	}
	return &SessionDetail{
		CashSession: session,
		Summary:     summary,
		Expected:    models.ExpectedBalance(session.OpeningBalance, session.Movements),
	}, nil
}

// GetWithFiltersAndPage 会话列表
func (s *CashSessionService) GetWithFiltersAndPage(actor Actor, filter SessionFilter, page, pageSize int) ([]*models.CashSession, int64, error) {
	var sessions []*models.CashSession
	var total int64

	query := s.scoped(s.db, actor)
	if filter.UserID != 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	query = filter.Range.Apply(query, "opened_at")

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Preload("User").Order("opened_at DESC, id DESC").Scopes(pagination.Paginate(page, pageSize)).Find(&sessions).Error
	return sessions, total, err
}

// OpenCount 当前打开的会话数
func (s *CashSessionService) OpenCount(entityID uint) (int64, error) {
	var count int64
	err := s.db.Model(&models.CashSession{}).
		Where("entity_id = ? AND status = ?", entityID, models.CashSessionOpen).
		Count(&count).Error
	return count, err
}

// AddMovement 在当前会话登记手工流水（存入/取出/支出）
func (s *CashSessionService) AddMovement(actor Actor, movementType string, amount decimal.Decimal, reason string) (*models.CashMovement, error) {
	if !models.IsManualCashMovement(movementType) {
		return nil, invalidParam("无效的流水类型: %s", movementType)
	}
	if !amount.IsPositive() {
		return nil, invalidParam("金额必须大于0")
	}
	if exceedsPlaces(amount, moneyPlaces) {
		return nil, invalidParam("金额最多保留2位小数")
	}
	if reason == "" {
		return nil, invalidParam("必须填写原因")
	}

	var session models.CashSession
	err := s.db.Where("entity_id = ? AND user_id = ? AND status = ?", actor.EntityID, actor.UserID, models.CashSessionOpen).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoOpenSession
	}
	if err != nil {
		return nil, err
	}

	movement := &models.CashMovement{
		SessionID: session.ID,
		EntityID:  actor.EntityID,
		Type:      movementType,
		Amount:    amount,
		Reason:    reason,
		UserID:    actor.UserID,
	}
	if err := s.db.Create(movement).Error; err != nil {
		return nil, err
	}
	return movement, nil
}

// Close 关闭会话：计算应有余额与差额并分级，重大差额通知管理员
func (s *CashSessionService) Close(ctx context.Context, actor Actor, id uint, declared decimal.Decimal, notes string) (*models.CashSession, error) {
	if declared.IsNegative() {
		return nil, invalidParam("清点金额不能为负数")
	}
	if exceedsPlaces(declared, moneyPlaces) {
		return nil, invalidParam("金额最多保留2位小数")
	}

	var session models.CashSession
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.scoped(tx, actor).Preload("User").First(&session, id).Error; err != nil {
			return err
		}
		if session.Status != models.CashSessionOpen {
			return invalidState("会话已关闭")
		}
		if err := tx.Where("session_id = ?", session.ID).Find(&session.Movements).Error; err != nil {
			return err
		}

		expected := models.ExpectedBalance(session.OpeningBalance, session.Movements)
		variance := declared.Sub(expected)
		level := models.ClassifyVariance(variance, s.tolerance, s.major)
		now := time.Now()

		updates := map[string]interface{}{
			"status":           models.CashSessionClosed,
			"expected_balance": expected,
			"declared_balance": declared,
			"variance":         variance,
			"variance_level":   level,
			"closed_at":        now,
		}
		if notes != "" {
			updates["notes"] = notes
			session.Notes = notes
		}
		result := tx.Model(&models.CashSession{}).
			Where("id = ? AND status = ?", session.ID, models.CashSessionOpen).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return invalidState("会话已关闭")
		}

		session.Status = models.CashSessionClosed
		session.ExpectedBalance = &expected
		session.DeclaredBalance = &declared
		session.Variance = &variance
		session.VarianceLevel = level
		session.ClosedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.CashSessionClosed(session.VarianceLevel)
	if session.VarianceLevel == models.VarianceMajor {
		s.notifyVariance(ctx, &session)
	}
	return &session, nil
}

func (s *CashSessionService) notifyVariance(ctx context.Context, session *models.CashSession) {
	if s.notifications == nil {
		return
	}
	cashier := fmt.Sprintf("#%d", session.UserID)
	if session.User != nil {
		cashier = session.User.Username
	}
	var entityName string
	s.db.Model(&models.Entity{}).Select("name").Where("id = ?", session.EntityID).Scan(&entityName)

	_, err := s.notifications.Notify(ctx, NotifyRequest{
		EntityID: session.EntityID,
		Roles:    []string{models.RoleAdmin, models.RoleManager},
		Type:     models.NotificationCashVariance,
		Title:    "Écart de caisse important",
		Message:  fmt.Sprintf("Session #%d (%s): écart %s", session.ID, cashier, session.Variance.StringFixed(2)),
		Payload: map[string]string{
			"entity":   entityName,
			"cashier":  cashier,
			"variance": export.DecimalComma(*session.Variance),
			"level":    session.VarianceLevel,
		},
		WhatsApp: true,
	})
	if err != nil {
		logger.ForEntity(session.EntityID, session.UserID).Errorf("发送钱箱差额通知失败: %v", err)
	}
}

// NotifyStale 提醒经理长时间未关闭的会话，每个会话只提醒一次
func (s *CashSessionService) NotifyStale(ctx context.Context, hours int) (int, error) {
	if hours <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-time.Duration(hours) * time.Hour)

	var sessions []models.CashSession
	err := s.db.Preload("User").
		Where("status = ? AND opened_at < ? AND stale_notified_at IS NULL", models.CashSessionOpen, cutoff).
		Find(&sessions).Error
	if err != nil {
		return 0, err
	}

	notified := 0
	for i := range sessions {
		session := &sessions[i]
		cashier := fmt.Sprintf("#%d", session.UserID)
		if session.User != nil {
			cashier = session.User.Username
		}
		var entityName string
		s.db.Model(&models.Entity{}).Select("name").Where("id = ?", session.EntityID).Scan(&entityName)

		if s.notifications != nil {
			_, err := s.notifications.Notify(ctx, NotifyRequest{
				EntityID: session.EntityID,
				Roles:    []string{models.RoleAdmin, models.RoleManager},
				Type:     models.NotificationStaleSession,
				Title:    "Session de caisse non clôturée",
				Message:  fmt.Sprintf("%s a ouvert la caisse le %s", cashier, session.OpenedAt.Format("02/01/2006 15:04")),
				Payload: map[string]string{
					"entity":  entityName,
					"cashier": cashier,
					"hours":   fmt.Sprintf("%d", int(time.Since(session.OpenedAt).Hours())),
				},
				WhatsApp: true,
			})
			if err != nil {
				logger.GetLogger().Errorf("发送会话超时提醒失败: %v", err)
				continue
			}
		}

		if err := s.db.Model(&models.CashSession{}).Where("id = ?", session.ID).
			Update("stale_notified_at", time.Now()).Error; err != nil {
			return notified, err
		}
		notified++
	}
	return notified, nil
}
