package domain

import "fmt"

// Money — денежная величина в минимальных единицах валюты (центах).
// Вся арифметика целочисленная; float в денежных путях запрещён.
type Money struct {
	AmountMinor int64
	Currency    string
}

// NewMoney создаёт денежную величину, проверяя знак и код валюты.
func NewMoney(amountMinor int64, currency string) (Money, error) {
	if currency == "" {
		return Money{}, ErrCurrencyRequired
	}
	if amountMinor < 0 {
		return Money{}, ErrAmountNegative
	}
	return Money{AmountMinor: amountMinor, Currency: currency}, nil
}

// Add складывает две суммы одной валюты.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return Money{AmountMinor: m.AmountMinor + other.AmountMinor, Currency: m.Currency}, nil
}

// Sub вычитает сумму той же валюты; отрицательный результат недопустим.
func (m Money) Sub(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	result := m.AmountMinor - other.AmountMinor
	if result < 0 {
		return Money{}, ErrAmountNegative
	}
	return Money{AmountMinor: result, Currency: m.Currency}, nil
}

// IsZero сообщает, равна ли сумма нулю.
func (m Money) IsZero() bool {
	return m.AmountMinor == 0
}

// String форматирует сумму для логов: "1099 USD".
func (m Money) String() string {
	return fmt.Sprintf("%d %s", m.AmountMinor, m.Currency)
}

// PercentOf возвращает pct процентов от amount с округлением half-up.
// Используется для процентных скидок: round(subtotal * pct / 100).
func PercentOf(amountMinor, pct int64) int64 {
	if amountMinor <= 0 || pct <= 0 {
		return 0
	}
	return (amountMinor*pct + 50) / 100
}

// BasisPointsOf возвращает долю amount, заданную в базисных пунктах
// (1 bp = 0.01%), с округлением half-up. Применяется для налоговых ставок,
// которые не выражаются целыми процентами.
func BasisPointsOf(amountMinor, bps int64) int64 {
	if amountMinor <= 0 || bps <= 0 {
		return 0
	}
	return (amountMinor*bps + 5000) / 10000
}

// ProportionOf распределяет amount в пропорции part/whole с округлением
// half-up. Вызывающая сторона отвечает за то, чтобы остаток округления был
// явно отнесён на одну из долей.
func ProportionOf(amountMinor, part, whole int64) int64 {
	if amountMinor <= 0 || part <= 0 || whole <= 0 {
		return 0
	}
	return (amountMinor*part + whole/2) / whole
}
