package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// invoiceRepositoryInMemory — in-memory реализация InvoiceRepository.
type invoiceRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Invoice
	notes map[string][]domain.CreditNote
}

// NewInvoiceRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewInvoiceRepository() domain.InvoiceRepository {
	return &invoiceRepositoryInMemory{
		items: make(map[string]domain.Invoice),
		notes: make(map[string][]domain.CreditNote),
	}
}

// Create сохраняет счёт.
func (r *invoiceRepositoryInMemory) Create(ctx context.Context, invoice domain.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[invoice.ID] = invoice
	return nil
}

// GetByFinancialOrder возвращает счёт финансового заказа, если он есть.
func (r *invoiceRepositoryInMemory) GetByFinancialOrder(ctx context.Context, tenantID, financialOrderID string) (domain.Invoice, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, invoice := range r.items {
		if invoice.TenantID == tenantID && invoice.FinancialOrderID == financialOrderID {
			return invoice, true, nil
		}
	}
	return domain.Invoice{}, false, nil
}

// CreditedTotal возвращает сумму кредит-нот по счёту.
func (r *invoiceRepositoryInMemory) CreditedTotal(ctx context.Context, invoiceID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total int64
	for _, note := range r.notes[invoiceID] {
		total += note.AmountMinor
	}
	return total, nil
}

// CreateCreditNote пишет кредит-ноту.
func (r *invoiceRepositoryInMemory) CreateCreditNote(ctx context.Context, note domain.CreditNote) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.notes[note.InvoiceID] = append(r.notes[note.InvoiceID], note)
	return nil
}

// Save перезаписывает счёт.
func (r *invoiceRepositoryInMemory) Save(ctx context.Context, invoice domain.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[invoice.ID]; !ok {
		return domain.ErrInvoiceNotFound
	}
	r.items[invoice.ID] = invoice
	return nil
}

var _ domain.InvoiceRepository = (*invoiceRepositoryInMemory)(nil)
