package domain

import "time"

// InvoiceStatus описывает состояние выставленного счёта.
type InvoiceStatus string

const (
	// InvoiceStatusIssued — счёт выставлен по зафиксированному snapshot.
	InvoiceStatusIssued InvoiceStatus = "issued"
	// InvoiceStatusCredited — по счёту выписаны кредит-ноты на полную сумму.
	InvoiceStatusCredited InvoiceStatus = "credited"
)

// Invoice — счёт, выставленный по финансовому заказу в момент заморозки.
// Итог счёта всегда равен итогу snapshot; reconciliation сверяет их.
type Invoice struct {
	ID               string
	TenantID         string
	FinancialOrderID string
	Number           string
	Currency         string
	TotalMinor       int64
	Status           InvoiceStatus
	IssuedAt         time.Time
	CreatedAt        time.Time
}

// CreditNote — корректировка счёта. Сумма всех кредит-нот по счёту не может
// превысить его итог; проверка выполняется до записи.
type CreditNote struct {
	ID          string
	TenantID    string
	InvoiceID   string
	AmountMinor int64
	Reason      string
	CreatedAt   time.Time
}

// ValidateCreditNote проверяет, что новая кредит-нота вместе с уже
// выписанными не превышает итог счёта.
func (i *Invoice) ValidateCreditNote(amountMinor, creditedMinor int64) error {
	if amountMinor <= 0 {
		return ErrAmountNegative
	}
	if creditedMinor+amountMinor > i.TotalMinor {
		return ErrCreditNoteExceedsInvoice
	}
	return nil
}
