package domain

import "time"

// PaymentStatus описывает состояние платежа в системе.
type PaymentStatus string

const (
	// PaymentStatusPending — платёж инициирован, но не подтверждён.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusAuthorized — провайдер принял intent и вернул ссылку.
	PaymentStatusAuthorized PaymentStatus = "authorized"
	// PaymentStatusSucceeded — деньги списаны в пользу мерчанта.
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	// PaymentStatusFailed — провайдер отклонил платёж или произошла ошибка.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusCancelled — платёж отменён до завершения.
	PaymentStatusCancelled PaymentStatus = "cancelled"
	// PaymentStatusRefunded — деньги возвращены клиенту.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// paymentTransitions — таблица переходов платежа: pending→authorized→succeeded,
// любой не-succeeded статус может уйти в failed/cancelled, succeeded→refunded.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:    {PaymentStatusAuthorized, PaymentStatusSucceeded, PaymentStatusFailed, PaymentStatusCancelled},
	PaymentStatusAuthorized: {PaymentStatusSucceeded, PaymentStatusFailed, PaymentStatusCancelled},
	PaymentStatusSucceeded:  {PaymentStatusRefunded},
	PaymentStatusFailed:     {},
	PaymentStatusCancelled:  {},
	PaymentStatusRefunded:   {},
}

// Payment описывает платёж, связанный с заказом.
type Payment struct {
	ID           string
	TenantID     string
	OrderID      string
	Provider     string
	ProviderRef  string // идентификатор intent/charge у провайдера
	ClientSecret string
	Status       PaymentStatus
	AmountMinor  int64
	Currency     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CanTransition проверяет переход по таблице статусов платежа.
func (p *Payment) CanTransition(to PaymentStatus) bool {
	for _, allowed := range paymentTransitions[p.Status] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition применяет переход или возвращает ErrInvalidStateTransition.
func (p *Payment) Transition(to PaymentStatus, now time.Time) error {
	if !p.CanTransition(to) {
		return ErrInvalidStateTransition
	}
	p.Status = to
	p.UpdatedAt = now
	return nil
}

// Validate проверяет корректность полей платежа и возвращает ошибки, если они есть.
func (p *Payment) Validate() []error {
	var errs []error

	if p.TenantID == "" {
		errs = append(errs, ErrTenantRequired)
	}
	if p.OrderID == "" {
		errs = append(errs, ErrOrderIDRequired)
	}
	if p.AmountMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}
	if p.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}

	return errs
}
