package services

import (
	"errors"
	"time"

	"caisse/internal/models"
	"caisse/pkg/pagination"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type OrderService struct {
	db *gorm.DB
}

// OrderLineInput 订单行参数
type OrderLineInput struct {
	ProductID uint
	Quantity  decimal.Decimal
	UnitCost  *decimal.Decimal // 为空时取商品进价
}

// OrderInput 手工采购订单参数
type OrderInput struct {
	SupplierName  string
	SupplierPhone string
	Notes         string
	ExpectedAt    *time.Time
	Lines         []OrderLineInput
}

// OrderFilter 订单列表过滤
type OrderFilter struct {
	Status string
	IsAuto *bool
	Range  DateRange
}

func NewOrderService(db *gorm.DB) *OrderService {
	return &OrderService{db: db}
}

// Create 创建手工采购订单
func (s *OrderService) Create(actor Actor, in OrderInput) (*models.Order, error) {
	if len(in.Lines) == 0 {
		return nil, invalidParam("订单至少需要一行")
	}

	order := &models.Order{
		EntityID:      actor.EntityID,
		SupplierName:  in.SupplierName,
		SupplierPhone: in.SupplierPhone,
		Status:        models.OrderStatusPending,
		Notes:         in.Notes,
		ExpectedAt:    in.ExpectedAt,
		CreatedBy:     &actor.UserID,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		for _, li := range in.Lines {
			if !li.Quantity.IsPositive() {
				return invalidParam("订购数量必须大于0")
			}
			if exceedsPlaces(li.Quantity, quantityPlaces) {
				return invalidParam("订购数量最多保留3位小数")
			}
			var product models.Product
			if err := tx.Where("entity_id = ?", actor.EntityID).First(&product, li.ProductID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return invalidParam("商品 %d 不存在", li.ProductID)
				}
				return err
			}
			cost := product.PurchasePrice
			if li.UnitCost != nil {
				if li.UnitCost.IsNegative() {
					return invalidParam("进价不能为负数")
				}
				if exceedsPlaces(*li.UnitCost, moneyPlaces) {
					return invalidParam("进价最多保留2位小数")
				}
				cost = *li.UnitCost
			}
			order.Lines = append(order.Lines, models.OrderLine{
				ProductID:   product.ID,
				ProductName: product.Name,
				Quantity:    li.Quantity,
				UnitCost:    cost,
			})
		}
		order.ComputeTotals()

		number, err := nextNumber(tx, &models.Order{}, actor.EntityID, "CMD", time.Now())
		if err != nil {
			return err
		}
		order.Number = number
		return tx.Create(order).Error
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// GetByID 获取订单（含订单行）
func (s *OrderService) GetByID(entityID, id uint) (*models.Order, error) {
	var order models.Order
	err := s.db.Preload("Lines").Where("entity_id = ?", entityID).First(&order, id).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetWithFiltersAndPage 订单列表
func (s *OrderService) GetWithFiltersAndPage(entityID uint, filter OrderFilter, page, pageSize int) ([]*models.Order, int64, error) {
	var orders []*models.Order
	var total int64

	query := s.db.Model(&models.Order{}).Where("entity_id = ?", entityID)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.IsAuto != nil {
		query = query.Where("is_auto = ?", *filter.IsAuto)
	}
	query = filter.Range.Apply(query, "created_at")

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Preload("Lines").Order("created_at DESC, id DESC").Scopes(pagination.Paginate(page, pageSize)).Find(&orders).Error
	return orders, total, err
}

// PendingCount 进行中的订单数
func (s *OrderService) PendingCount(entityID uint) (int64, error) {
	var count int64
	err := s.db.Model(&models.Order{}).
		Where("entity_id = ? AND status IN ?", entityID, []string{models.OrderStatusPending, models.OrderStatusConfirmed}).
		Count(&count).Error
	return count, err
}

// Confirm 确认订单（已发给供应商）
func (s *OrderService) Confirm(entityID, id uint) (*models.Order, error) {
	return s.transition(entityID, id, models.OrderStatusConfirmed, []string{models.OrderStatusPending})
}

// Cancel 取消订单，仅限进行中的订单
func (s *OrderService) Cancel(entityID, id uint) (*models.Order, error) {
	return s.transition(entityID, id, models.OrderStatusCancelled,
		[]string{models.OrderStatusPending, models.OrderStatusConfirmed})
}

func (s *OrderService) transition(entityID, id uint, to string, from []string) (*models.Order, error) {
	order, err := s.GetByID(entityID, id)
	if err != nil {
		return nil, err
	}

	result := s.db.Model(&models.Order{}).
		Where("id = ? AND status IN ?", order.ID, from).
		Update("status", to)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, invalidState("订单状态为 %s，不能变更为 %s", order.Status, to)
	}
	order.Status = to
	return order, nil
}

// Receive 收货入库，received 为订单行ID到实收数量的映射，缺省为订购数量
func (s *OrderService) Receive(actor Actor, id uint, received map[uint]decimal.Decimal) (*models.Order, error) {
	var order *models.Order
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var o models.Order
		if err := tx.Preload("Lines").Where("entity_id = ?", actor.EntityID).First(&o, id).Error; err != nil {
			return err
		}
		if !o.IsOpen() {
			return invalidState("订单状态为 %s，不能收货", o.Status)
		}

		for lineID := range received {
			found := false
			for _, line := range o.Lines {
				if line.ID == lineID {
					found = true
					break
				}
			}
			if !found {
				return invalidParam("订单行 %d 不属于该订单", lineID)
			}
		}

		userID := actor.UserID
		for i := range o.Lines {
			line := &o.Lines[i]
			qty := line.Quantity
			if v, ok := received[line.ID]; ok {
				qty = v
			}
			if qty.IsNegative() {
				return invalidParam("实收数量不能为负数")
			}
			if exceedsPlaces(qty, quantityPlaces) {
				return invalidParam("实收数量最多保留3位小数")
			}
			line.ReceivedQuantity = qty
			if err := tx.Model(&models.OrderLine{}).Where("id = ?", line.ID).
				Update("received_quantity", qty).Error; err != nil {
				return err
			}
			if qty.IsZero() {
				continue
			}
			if _, err := applyStockChange(tx, stockChange{
				EntityID:  actor.EntityID,
				ProductID: line.ProductID,
				Delta:     qty,
				Type:      models.MovementPurchase,
				Reference: o.Number,
				UserID:    &userID,
			}); err != nil {
				return err
			}
		}

		now := time.Now()
		result := tx.Model(&models.Order{}).
			Where("id = ? AND status IN ?", o.ID, []string{models.OrderStatusPending, models.OrderStatusConfirmed}).
			Updates(map[string]interface{}{"status": models.OrderStatusReceived, "received_at": now})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return invalidState("订单已被其他操作处理")
		}
		o.Status = models.OrderStatusReceived
		o.ReceivedAt = &now
		order = &o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}
