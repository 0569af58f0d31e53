package domain

import "time"

// CartStatus описывает жизненный цикл корзины.
type CartStatus string

const (
	// CartStatusActive — корзина открыта и может изменяться.
	CartStatusActive CartStatus = "active"
	// CartStatusConverted — корзина сконвертирована в заказ; изменение запрещено.
	CartStatusConverted CartStatus = "converted"
	// CartStatusAbandoned — корзина заброшена покупателем.
	CartStatusAbandoned CartStatus = "abandoned"
)

// CartItem представляет одну позицию корзины.
type CartItem struct {
	ID             string
	ProductID      string
	Description    string
	Qty            int32
	UnitPriceMinor int64
	TotalMinor     int64
	CreatedAt      time.Time
}

// Cart агрегирует позиции покупателя до чекаута.
type Cart struct {
	ID            string
	TenantID      string
	CustomerID    string
	CustomerEmail string
	Currency      string
	Status        CartStatus
	Items         []CartItem
	OrderID       string // заполняется при конверсии
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SubtotalMinor возвращает сумму всех позиций корзины.
func (c *Cart) SubtotalMinor() int64 {
	var total int64
	for _, item := range c.Items {
		total += item.TotalMinor
	}
	return total
}

// ValidateForCheckout проверяет предусловия чекаута. Нарушения возвращаются
// до любых побочных эффектов.
func (c *Cart) ValidateForCheckout() error {
	if c.Status != CartStatusActive {
		return ErrCartNotActive
	}
	if len(c.Items) == 0 {
		return ErrCartEmpty
	}
	if c.CustomerEmail == "" {
		return ErrCustomerEmailRequired
	}
	for _, item := range c.Items {
		if item.Qty <= 0 {
			return ErrItemQtyInvalid
		}
		if item.UnitPriceMinor < 0 {
			return ErrItemPriceInvalid
		}
	}
	return nil
}

// MarkConverted переводит корзину в converted и записывает id заказа.
// Конверсия одностороння.
func (c *Cart) MarkConverted(orderID string, now time.Time) error {
	if c.Status != CartStatusActive {
		return ErrCartNotActive
	}
	c.Status = CartStatusConverted
	c.OrderID = orderID
	c.UpdatedAt = now
	return nil
}
