package domain

import "time"

// OrderStatus описывает жизненный цикл операционного заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан сагой, оплата ещё не подтверждена.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed — заказ финализирован, позиции заморожены.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusPaid — оплата подтверждена платёжным провайдером.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusShipped — заказ передан в доставку; терминальный статус.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusCancelled — заказ отменён до завершения цикла; терминальный статус.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusRefunded — заказ полностью возвращён клиенту.
	OrderStatusRefunded OrderStatus = "refunded"
)

// orderTransitions — фиксированная таблица допустимых переходов статусов.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:      {OrderStatusShipped, OrderStatusRefunded},
	OrderStatusShipped:   {},
	OrderStatusCancelled: {},
	OrderStatusRefunded:  {},
}

// OrderItem представляет одну позицию заказа, зафиксированную из корзины.
type OrderItem struct {
	ID             string
	ProductID      string
	Description    string
	Qty            int32
	UnitPriceMinor int64
	TotalMinor     int64
	CreatedAt      time.Time
}

// Order — операционное, изменяемое представление заказа. Финансовая
// сторона живёт отдельно в FinancialOrder.
type Order struct {
	ID            string
	TenantID      string
	CartID        string
	CustomerID    string
	CustomerEmail string
	Status        OrderStatus
	Currency      string
	SubtotalMinor int64
	DiscountMinor int64
	TotalMinor    int64
	Items         []OrderItem
	// AppliedPromotions фиксирует скидки, применённые сагой; учёт usage
	// выполняется слушателем успешной оплаты по этому списку.
	AppliedPromotions []AppliedPromotion
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CanTransition проверяет переход по таблице статусов.
func (o *Order) CanTransition(to OrderStatus) bool {
	for _, allowed := range orderTransitions[o.Status] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition применяет переход статуса или возвращает ErrInvalidStateTransition.
func (o *Order) Transition(to OrderStatus, now time.Time) error {
	if !o.CanTransition(to) {
		return ErrInvalidStateTransition
	}
	o.Status = to
	o.UpdatedAt = now
	return nil
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.TenantID == "" {
		errs = append(errs, ErrTenantRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrCartEmpty)
	}
	if o.TotalMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	// Сверяем subtotal заказа с суммой позиций. Total — сумма к списанию:
	// нетто после скидки плюс налог, поэтому ниже нетто он быть не может;
	// точная сверка налога выполняется по snapshot финансового заказа.
	var calc int64
	for _, item := range o.Items {
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.UnitPriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		calc += item.TotalMinor
	}
	if calc != o.SubtotalMinor || o.TotalMinor < o.SubtotalMinor-o.DiscountMinor {
		errs = append(errs, ErrTotalsMismatch)
	}

	return errs
}
