package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// cartRepositoryInMemory — простая in-memory реализация CartRepository.
type cartRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Cart
}

// NewCartRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewCartRepository() domain.CartRepository {
	return &cartRepositoryInMemory{
		items: make(map[string]domain.Cart),
	}
}

func cartKey(tenantID, id string) string {
	return tenantID + "/" + id
}

// Create сохраняет новую корзину, если ID ещё не занят.
func (r *cartRepositoryInMemory) Create(ctx context.Context, cart domain.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := cartKey(cart.TenantID, cart.ID)
	if _, exists := r.items[key]; exists {
		return domain.ErrOrderVersionConflict
	}
	r.items[key] = cart
	return nil
}

// Get возвращает корзину или ErrCartNotFound, если её нет.
func (r *cartRepositoryInMemory) Get(ctx context.Context, tenantID, id string) (domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cart, ok := r.items[cartKey(tenantID, id)]
	if !ok {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	return cart, nil
}

// Save перезаписывает корзину, проверяя версию (optimistic locking).
func (r *cartRepositoryInMemory) Save(ctx context.Context, cart domain.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := cartKey(cart.TenantID, cart.ID)
	current, ok := r.items[key]
	if !ok {
		return domain.ErrCartNotFound
	}
	if current.Version != cart.Version {
		return domain.ErrOrderVersionConflict
	}
	cart.Version++
	r.items[key] = cart
	return nil
}

var _ domain.CartRepository = (*cartRepositoryInMemory)(nil)
