package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// financialOrderRepositoryInMemory — in-memory реализация FinancialOrderRepository.
type financialOrderRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.FinancialOrder
}

// NewFinancialOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewFinancialOrderRepository() domain.FinancialOrderRepository {
	return &financialOrderRepositoryInMemory{
		items: make(map[string]domain.FinancialOrder),
	}
}

// Create сохраняет новый финансовый заказ. Повтор по order_id — конфликт.
func (r *financialOrderRepositoryInMemory) Create(ctx context.Context, fo domain.FinancialOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[fo.ID]; exists {
		return domain.ErrOrderVersionConflict
	}
	for _, existing := range r.items {
		if existing.TenantID == fo.TenantID && existing.OrderID == fo.OrderID {
			return domain.ErrOrderVersionConflict
		}
	}
	r.items[fo.ID] = fo
	return nil
}

// Get возвращает финансовый заказ или ErrFinancialOrderNotFound.
func (r *financialOrderRepositoryInMemory) Get(ctx context.Context, tenantID, id string) (domain.FinancialOrder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fo, ok := r.items[id]
	if !ok || fo.TenantID != tenantID {
		return domain.FinancialOrder{}, domain.ErrFinancialOrderNotFound
	}
	return fo, nil
}

// GetByOrder возвращает финансовый заказ по операционному заказу.
func (r *financialOrderRepositoryInMemory) GetByOrder(ctx context.Context, tenantID, orderID string) (domain.FinancialOrder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, fo := range r.items {
		if fo.TenantID == tenantID && fo.OrderID == orderID {
			return fo, nil
		}
	}
	return domain.FinancialOrder{}, domain.ErrFinancialOrderNotFound
}

// ListByTenant возвращает финансовые заказы тенанта; пустой tenantID — все.
func (r *financialOrderRepositoryInMemory) ListByTenant(ctx context.Context, tenantID string) ([]domain.FinancialOrder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.FinancialOrder, 0, len(r.items))
	for _, fo := range r.items {
		if tenantID != "" && fo.TenantID != tenantID {
			continue
		}
		result = append(result, fo)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

// Save перезаписывает финансовый заказ, проверяя версию (optimistic locking).
func (r *financialOrderRepositoryInMemory) Save(ctx context.Context, fo domain.FinancialOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[fo.ID]
	if !ok {
		return domain.ErrFinancialOrderNotFound
	}
	if current.Version != fo.Version {
		return domain.ErrOrderVersionConflict
	}
	fo.Version++
	r.items[fo.ID] = fo
	return nil
}

var _ domain.FinancialOrderRepository = (*financialOrderRepositoryInMemory)(nil)
