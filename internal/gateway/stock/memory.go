package stock

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// MemoryGateway — складской шлюз на счётчиках в памяти. Поддерживает оба
// режима протокола: плоский резерв (Reserve/Release) и аллокацию под заказ
// (AllocateForOrder/ReleaseAllocation). Все операции атомарны под одним
// mutex, так что конкурентные checkout-саги не уводят остатки в минус.
type MemoryGateway struct {
	mu          sync.Mutex
	available   map[string]int32
	allocations map[string]map[string]int32
	logger      *log.Entry
}

// NewMemoryGateway создаёт шлюз с начальными остатками по товарам.
func NewMemoryGateway(levels map[string]int32, logger *log.Entry) *MemoryGateway {
	if logger == nil {
		logger = log.WithField("component", "stock-gateway")
	}
	available := make(map[string]int32, len(levels))
	for productID, qty := range levels {
		available[productID] = qty
	}
	return &MemoryGateway{
		available:   available,
		allocations: make(map[string]map[string]int32),
		logger:      logger,
	}
}

// SetLevel выставляет остаток товара. Используется при загрузке каталога.
func (g *MemoryGateway) SetLevel(productID string, qty int32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.available[productID] = qty
}

// Level возвращает текущий свободный остаток товара.
func (g *MemoryGateway) Level(productID string) int32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.available[productID]
}

// Validate проверяет доступность позиций без резервирования.
func (g *MemoryGateway) Validate(ctx context.Context, items []domain.StockItem) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.checkLocked(items)
}

// Reserve резервирует позиции декрементом плоского счётчика. Либо все
// позиции, либо ни одной: частичный резерв не оставляется.
func (g *MemoryGateway) Reserve(ctx context.Context, items []domain.StockItem) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.checkLocked(items); err != nil {
		return err
	}
	for _, item := range items {
		g.available[item.ProductID] -= item.Qty
	}
	return nil
}

// Release возвращает ранее зарезервированные позиции в свободный остаток.
func (g *MemoryGateway) Release(ctx context.Context, items []domain.StockItem) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, item := range items {
		g.available[item.ProductID] += item.Qty
	}
	return nil
}

// AllocateForOrder резервирует позиции под конкретный заказ. Повторный
// вызов для того же заказа возвращает ошибку, а не дублирует аллокацию.
func (g *MemoryGateway) AllocateForOrder(ctx context.Context, orderID string, items []domain.StockItem) error {
	if orderID == "" {
		return domain.ErrOrderIDRequired
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.allocations[orderID]; exists {
		return fmt.Errorf("stock allocation already exists for order %s", orderID)
	}
	if err := g.checkLocked(items); err != nil {
		return err
	}

	allocation := make(map[string]int32, len(items))
	for _, item := range items {
		g.available[item.ProductID] -= item.Qty
		allocation[item.ProductID] += item.Qty
	}
	g.allocations[orderID] = allocation
	return nil
}

// ReleaseAllocation снимает аллокацию заказа. Снятие несуществующей
// аллокации — no-op: компенсация саги может прийти повторно.
func (g *MemoryGateway) ReleaseAllocation(ctx context.Context, orderID string, items []domain.StockItem) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	allocation, exists := g.allocations[orderID]
	if !exists {
		g.logger.WithField("order_id", orderID).Debug("release of missing stock allocation ignored")
		return nil
	}
	for productID, qty := range allocation {
		g.available[productID] += qty
	}
	delete(g.allocations, orderID)
	return nil
}

func (g *MemoryGateway) checkLocked(items []domain.StockItem) error {
	if len(items) == 0 {
		return domain.ErrCartEmpty
	}
	for _, item := range items {
		if item.Qty <= 0 {
			return fmt.Errorf("%w: product %s", domain.ErrItemQtyInvalid, item.ProductID)
		}
		if g.available[item.ProductID] < item.Qty {
			return fmt.Errorf("%w: product %s", domain.ErrInsufficientStock, item.ProductID)
		}
	}
	return nil
}

var _ domain.StockGateway = (*MemoryGateway)(nil)
