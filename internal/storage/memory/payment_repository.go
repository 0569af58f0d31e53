package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// paymentRepositoryInMemory — in-memory реализация PaymentRepository.
type paymentRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Payment
}

// NewPaymentRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewPaymentRepository() domain.PaymentRepository {
	return &paymentRepositoryInMemory{
		items: make(map[string]domain.Payment),
	}
}

// Create сохраняет новый платёж, если ID ещё не занят.
func (r *paymentRepositoryInMemory) Create(ctx context.Context, payment domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[payment.ID]; exists {
		return domain.ErrOrderVersionConflict
	}
	r.items[payment.ID] = payment
	return nil
}

// Get возвращает платёж или ErrPaymentNotFound, если его нет.
func (r *paymentRepositoryInMemory) Get(ctx context.Context, tenantID, id string) (domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	payment, ok := r.items[id]
	if !ok || payment.TenantID != tenantID {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return payment, nil
}

// ListByOrder возвращает платежи заказа в порядке создания.
func (r *paymentRepositoryInMemory) ListByOrder(ctx context.Context, tenantID, orderID string) ([]domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Payment, 0)
	for _, payment := range r.items {
		if payment.TenantID != tenantID || payment.OrderID != orderID {
			continue
		}
		result = append(result, payment)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

// Save перезаписывает платёж.
func (r *paymentRepositoryInMemory) Save(ctx context.Context, payment domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[payment.ID]; !ok {
		return domain.ErrPaymentNotFound
	}
	r.items[payment.ID] = payment
	return nil
}

var _ domain.PaymentRepository = (*paymentRepositoryInMemory)(nil)
