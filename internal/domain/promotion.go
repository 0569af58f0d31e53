package domain

import "time"

// PromotionType задаёт формулу расчёта скидки.
type PromotionType string

const (
	// PromotionPercentage — процент от subtotal.
	PromotionPercentage PromotionType = "percentage"
	// PromotionFixed — фиксированная сумма, не больше subtotal.
	PromotionFixed PromotionType = "fixed"
	// PromotionThreshold — фиксированная сумма при достижении порога корзины.
	PromotionThreshold PromotionType = "threshold"
	// PromotionFreeShipping — компенсация доставки фиксированной суммой.
	PromotionFreeShipping PromotionType = "free_shipping"
	// PromotionBOGO — "buy X get Y": бесплатные единицы по минимальной цене корзины.
	PromotionBOGO PromotionType = "bogo"
)

// Promotion описывает промо-акцию тенанта.
type Promotion struct {
	ID       string
	TenantID string
	Code     string
	Type     PromotionType
	// Percent — целые проценты для percentage-акций.
	Percent int64
	// ValueMinor — сумма скидки для fixed/threshold/free_shipping.
	ValueMinor int64
	// BuyQty/GetQty — параметры BOGO: за каждые BuyQty купленных единиц
	// GetQty единиц бесплатно.
	BuyQty int32
	GetQty int32
	// MinCartMinor — минимальный subtotal корзины для применения.
	MinCartMinor int64
	// Stackable — можно ли сочетать с другими акциями.
	Stackable bool
	// UsageLimit/PerCustomerLimit — лимиты применения (0 — без лимита).
	UsageLimit       int64
	PerCustomerLimit int64
	StartsAt         *time.Time
	EndsAt           *time.Time
	CreatedAt        time.Time
}

// ActiveAt проверяет окно действия акции на момент now.
func (p *Promotion) ActiveAt(now time.Time) bool {
	if p.StartsAt != nil && now.Before(*p.StartsAt) {
		return false
	}
	if p.EndsAt != nil && now.After(*p.EndsAt) {
		return false
	}
	return true
}

// MeetsThreshold проверяет минимальный порог корзины.
func (p *Promotion) MeetsThreshold(subtotalMinor int64) bool {
	return subtotalMinor >= p.MinCartMinor
}

// AppliedPromotion — результат применения одной акции к корзине.
type AppliedPromotion struct {
	PromotionID   string
	Code          string
	Type          PromotionType
	DiscountMinor int64
}

// PromotionUsage фиксирует применение акции к заказу. Запись уникальна по
// паре (promotion, order) — повторное применение идемпотентно.
type PromotionUsage struct {
	ID          string
	TenantID    string
	PromotionID string
	OrderID     string
	CustomerID  string
	CreatedAt   time.Time
}
