package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yeremiapane/restaurant-pos/hub"
	"github.com/yeremiapane/restaurant-pos/models"
	"github.com/yeremiapane/restaurant-pos/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MaxItemQuantity bounds a single cart line.
const MaxItemQuantity = 999

const (
	defaultOrderPageSize = 50
	maxOrderPageSize     = 200
)

// PriceLookup resolves current catalog prices for menu item ids. Ids that do
// not exist are absent from the result.
type PriceLookup interface {
	PricesFor(ctx context.Context, ids []uint) (map[uint]decimal.Decimal, error)
}

type OrderItemInput struct {
	MenuItemID uint
	Quantity   int
	// Price is what the client displayed. Optional.
	Price *decimal.Decimal
}

type CreateOrderInput struct {
	Items     []OrderItemInput
	Subtotal  *decimal.Decimal
	Tax       *decimal.Decimal
	Total     *decimal.Decimal
	OrderType string
}

type OrderFilter struct {
	Status    string
	OrderType string
	Limit     int
	Offset    int
}

type OrderService struct {
	db           *gorm.DB
	prices       PriceLookup
	intents      IntentCanceler
	publisher    hub.Publisher
	taxRate      decimal.Decimal
	queryTimeout time.Duration
}

// NewOrderService wires the order ledger. intents may be nil, in which case
// orders with a payment in flight cannot be cancelled.
func NewOrderService(db *gorm.DB, prices PriceLookup, intents IntentCanceler, publisher hub.Publisher, taxRate decimal.Decimal, queryTimeout time.Duration) *OrderService {
	if publisher == nil {
		publisher = hub.Noop{}
	}
	return &OrderService{
		db:           db,
		prices:       prices,
		intents:      intents,
		publisher:    publisher,
		taxRate:      taxRate,
		queryTimeout: queryTimeout,
	}
}

// CreateOrder prices the cart from the catalog and stores the order with all
// of its lines in one transaction. Either every row is written or none is.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (uint, error) {
	if len(in.Items) == 0 {
		return 0, utils.NewValidationError("order must contain at least one item")
	}
	ids := make([]uint, 0, len(in.Items))
	for i, item := range in.Items {
		if item.MenuItemID == 0 {
			return 0, utils.NewValidationError("item %d has no menu item id", i+1)
		}
		if item.Quantity <= 0 {
			return 0, utils.NewValidationError("quantity for menu item %d must be positive", item.MenuItemID)
		}
		if item.Quantity > MaxItemQuantity {
			return 0, utils.NewValidationError("quantity for menu item %d must not exceed %d", item.MenuItemID, MaxItemQuantity)
		}
		ids = append(ids, item.MenuItemID)
	}

	orderType := strings.TrimSpace(in.OrderType)
	if orderType == "" {
		orderType = models.OrderTypeOnline
	}

	prices, err := s.prices.PricesFor(ctx, ids)
	if err != nil {
		return 0, err
	}

	lines := make([]models.OrderItem, 0, len(in.Items))
	subtotal := decimal.Zero
	for _, item := range in.Items {
		price, ok := prices[item.MenuItemID]
		if !ok {
			return 0, utils.NewValidationError("menu item %d does not exist", item.MenuItemID)
		}
		if item.Price != nil && !item.Price.Equal(price) {
			return 0, utils.NewValidationError("price of menu item %d has changed", item.MenuItemID)
		}
		line := models.OrderItem{
			MenuItemID: item.MenuItemID,
			Quantity:   item.Quantity,
			Price:      price,
		}
		subtotal = subtotal.Add(line.LineTotal())
		lines = append(lines, line)
	}
	subtotal = utils.RoundMoney(subtotal)
	tax := utils.RoundMoney(subtotal.Mul(s.taxRate))
	total := subtotal.Add(tax)
	if utils.ExceedsMoneyColumn(total) {
		return 0, utils.NewValidationError("order total exceeds %s", utils.MaxMoney.StringFixed(2))
	}

	if mismatch(in.Subtotal, subtotal) || mismatch(in.Tax, tax) || mismatch(in.Total, total) {
		return 0, utils.NewValidationError("order totals do not match current prices")
	}

	ctx, cancel := withTimeout(ctx, s.queryTimeout)
	defer cancel()

	order := models.Order{
		Status:    models.OrderStatusPending,
		OrderType: orderType,
		Subtotal:  subtotal,
		Tax:       tax,
		Total:     total,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&order).Error; err != nil {
			return err
		}
		for i := range lines {
			lines[i].OrderID = order.ID
			if err := tx.Omit(clause.Associations).Create(&lines[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		utils.ErrorLogger.Printf("Order creation rolled back: %v", err)
		return 0, utils.WrapDBError(err, "failed to create order")
	}

	utils.InfoLogger.Printf("Order #%d created: %d items, total %s", order.ID, len(lines), order.Total.StringFixed(2))
	publishOrderEvent(ctx, s.publisher, hub.EventOrderCreated, &order)
	return order.ID, nil
}

// GetOrder returns the order with its items in insertion order.
func (s *OrderService) GetOrder(ctx context.Context, id uint) (*models.Order, error) {
	ctx, cancel := withTimeout(ctx, s.queryTimeout)
	defer cancel()

	var order models.Order
	err := s.db.WithContext(ctx).
		Preload("OrderItems", func(tx *gorm.DB) *gorm.DB { return tx.Order("id ASC") }).
		Preload("Payments", func(tx *gorm.DB) *gorm.DB { return tx.Order("id ASC") }).
		First(&order, id).Error
	if err != nil {
		return nil, orderLookupError(err, id)
	}
	return &order, nil
}

// ListOrders returns a page of orders, newest first, plus the total number of
// orders matching the filter.
func (s *OrderService) ListOrders(ctx context.Context, f OrderFilter) ([]models.Order, int64, error) {
	ctx, cancel := withTimeout(ctx, s.queryTimeout)
	defer cancel()

	q := s.db.WithContext(ctx).Model(&models.Order{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.OrderType != "" {
		q = q.Where("order_type = ?", f.OrderType)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, utils.WrapDBError(err, "failed to count orders")
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultOrderPageSize
	}
	if limit > maxOrderPageSize {
		limit = maxOrderPageSize
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	orders := make([]models.Order, 0)
	err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Offset(offset).Find(&orders).Error
	if err != nil {
		return nil, 0, utils.WrapDBError(err, "failed to list orders")
	}
	return orders, total, nil
}

// CancelOrder cancels an order that has not reached a final status. A payment
// intent in flight is canceled at the processor first; if the processor says
// the payment is already completing, the order is left alone.
func (s *OrderService) CancelOrder(ctx context.Context, id uint) (*models.Order, error) {
	current, err := s.loadOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.IsFinal() {
		return nil, utils.NewConflictError("order %d is already %s", id, current.Status)
	}
	intentID := current.PaymentIntentID
	if intentID != nil {
		if s.intents == nil {
			return nil, utils.NewConflictError("order %d has a payment in progress", id)
		}
		if err := releaseIntent(ctx, s.intents, id, *intentID); err != nil {
			return nil, err
		}
	}

	ctx, cancel := withTimeout(ctx, s.queryTimeout)
	defer cancel()

	var order models.Order
	changed := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("payment_intent_id IS NULL")
		if intentID != nil {
			q = tx.Where("payment_intent_id = ?", *intentID)
		}
		changed, err = advanceStatus(q, id, models.OrderStatusCancelled, models.OpenOrderStatuses, nil)
		if err != nil {
			return err
		}
		if changed && intentID != nil {
			if err := setPaymentStatus(tx, *intentID, models.PaymentStatusCanceled, nil); err != nil {
				return err
			}
		}
		return tx.First(&order, id).Error
	})
	if err != nil {
		return nil, utils.WrapDBError(orderLookupError(err, id), "failed to cancel order")
	}
	if !changed {
		if order.Status == models.OrderStatusCancelled {
			// the processor's cancel notification got here first
			return &order, nil
		}
		return nil, utils.NewConflictError("order %d changed while it was being cancelled", id)
	}

	utils.InfoLogger.Printf("Order #%d cancelled", order.ID)
	publishOrderEvent(ctx, s.publisher, hub.EventOrderUpdated, &order)
	return &order, nil
}

func (s *OrderService) loadOrder(ctx context.Context, id uint) (*models.Order, error) {
	return findOrder(ctx, s.db, s.queryTimeout, id)
}

func mismatch(claimed *decimal.Decimal, actual decimal.Decimal) bool {
	return claimed != nil && !claimed.Equal(actual)
}

func orderLookupError(err error, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.NewNotFoundError("order %d not found", id)
	}
	return err
}
