package domain

import (
	"time"
)

// FinancialOrderStatus описывает статус бухгалтерской записи заказа.
type FinancialOrderStatus string

const (
	// FinancialOrderStatusDraft — запись создана, итоги ещё не вычислены.
	FinancialOrderStatusDraft FinancialOrderStatus = "draft"
	// FinancialOrderStatusPending — ожидаем подтверждение оплаты.
	FinancialOrderStatusPending FinancialOrderStatus = "pending"
	// FinancialOrderStatusPaid — оплата получена, запись зафиксирована.
	FinancialOrderStatusPaid FinancialOrderStatus = "paid"
	// FinancialOrderStatusFailed — оплата не состоялась.
	FinancialOrderStatusFailed FinancialOrderStatus = "failed"
	// FinancialOrderStatusRefunded — средства возвращены клиенту.
	FinancialOrderStatusRefunded FinancialOrderStatus = "refunded"
)

// TaxLine — одна строка налоговой разбивки snapshot.
type TaxLine struct {
	Name               string  `json:"name"`
	Percentage         float64 `json:"percentage"`
	TaxableAmountMinor int64   `json:"taxable_amount_cents"`
	TaxAmountMinor     int64   `json:"tax_amount_cents"`
}

// SnapshotItem — позиция заказа в составе snapshot со своей налоговой частью.
type SnapshotItem struct {
	Description    string            `json:"description"`
	Qty            int32             `json:"quantity"`
	UnitPriceMinor int64             `json:"unit_price_cents"`
	SubtotalMinor  int64             `json:"subtotal_cents"`
	TaxMinor       int64             `json:"tax_cents"`
	TotalMinor     int64             `json:"total_cents"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// OrderSnapshot — полная, неизменяемая картина финансового заказа на момент
// заморозки. Сериализуется в JSON и хешируется для контроля целостности.
type OrderSnapshot struct {
	LockedAt      time.Time      `json:"locked_at"`
	Currency      string         `json:"currency"`
	SubtotalMinor int64          `json:"subtotal_cents"`
	TaxTotalMinor int64          `json:"tax_total_cents"`
	TotalMinor    int64          `json:"total_cents"`
	TaxLines      []TaxLine      `json:"tax_lines"`
	Items         []SnapshotItem `json:"items"`
}

// FinancialOrder — бухгалтерская запись заказа. После установки LockedAt
// итоги и snapshot неизменяемы; меняться могут только статус и метки времени.
type FinancialOrder struct {
	ID            string
	TenantID      string
	OrderID       string
	Currency      string
	SubtotalMinor int64
	TaxTotalMinor int64
	TotalMinor    int64
	Status        FinancialOrderStatus
	LockedAt      *time.Time
	PaidAt        *time.Time
	Snapshot      []byte // сериализованный OrderSnapshot
	SnapshotHash  string
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Locked сообщает, заморожен ли финансовый заказ.
func (f *FinancialOrder) Locked() bool {
	return f.LockedAt != nil
}

// ApplyLock записывает вычисленные итоги, snapshot и его хеш. Повторная
// заморозка запрещена; инвариант subtotal + tax == total проверяется здесь
// и далее никогда не пересчитывается.
func (f *FinancialOrder) ApplyLock(subtotalMinor, taxTotalMinor, totalMinor int64, snapshot []byte, hash string, now time.Time) error {
	if f.Locked() {
		return ErrAlreadyLocked
	}
	if subtotalMinor+taxTotalMinor != totalMinor {
		return ErrTotalsMismatch
	}
	f.SubtotalMinor = subtotalMinor
	f.TaxTotalMinor = taxTotalMinor
	f.TotalMinor = totalMinor
	f.Snapshot = snapshot
	f.SnapshotHash = hash
	lockedAt := now
	f.LockedAt = &lockedAt
	f.UpdatedAt = now
	return nil
}

// MarkPaid переводит запись в paid и фиксирует момент оплаты.
func (f *FinancialOrder) MarkPaid(now time.Time) {
	f.Status = FinancialOrderStatusPaid
	paidAt := now
	f.PaidAt = &paidAt
	f.UpdatedAt = now
}

// MarkFailed переводит запись в failed.
func (f *FinancialOrder) MarkFailed(now time.Time) {
	f.Status = FinancialOrderStatusFailed
	f.UpdatedAt = now
}

// MarkRefunded переводит запись в refunded.
func (f *FinancialOrder) MarkRefunded(now time.Time) {
	f.Status = FinancialOrderStatusRefunded
	f.UpdatedAt = now
}
