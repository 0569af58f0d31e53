package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// orderRepositoryInMemory — простая in-memory реализация OrderRepository.
type orderRepositoryInMemory struct {
	mu     sync.RWMutex
	items  map[string]domain.Order
	byCart map[string]string
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		items:  make(map[string]domain.Order),
		byCart: make(map[string]string),
	}
}

func orderKey(tenantID, id string) string {
	return tenantID + "/" + id
}

// Create сохраняет новый заказ. Повтор по id или по cart_id — конфликт,
// как unique-индексы в PostgreSQL.
func (r *orderRepositoryInMemory) Create(ctx context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := orderKey(order.TenantID, order.ID)
	if _, exists := r.items[key]; exists {
		return domain.ErrOrderVersionConflict
	}
	if order.CartID != "" {
		if _, exists := r.byCart[order.CartID]; exists {
			return domain.ErrOrderVersionConflict
		}
		r.byCart[order.CartID] = order.ID
	}
	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	r.items[key] = order
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(ctx context.Context, tenantID, id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[orderKey(tenantID, id)]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

// ListByCustomer возвращает заказы клиента, ограничивая выборку limit (если >0).
func (r *orderRepositoryInMemory) ListByCustomer(ctx context.Context, tenantID, customerID string, limit int) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0, len(r.items))
	for _, order := range r.items {
		if order.TenantID != tenantID || order.CustomerID != customerID {
			continue
		}
		result = append(result, order)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// Save перезаписывает заказ, проверяя версию (optimistic locking).
func (r *orderRepositoryInMemory) Save(ctx context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := orderKey(order.TenantID, order.ID)
	current, ok := r.items[key]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrOrderVersionConflict
	}
	order.Version++
	r.items[key] = order
	return nil
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
