package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// promotionRepositoryInMemory — in-memory реализация PromotionRepository.
type promotionRepositoryInMemory struct {
	mu     sync.RWMutex
	items  map[string]domain.Promotion
	usages map[string]domain.PromotionUsage // ключ promotionID/orderID
}

// NewPromotionRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewPromotionRepository() domain.PromotionRepository {
	return &promotionRepositoryInMemory{
		items:  make(map[string]domain.Promotion),
		usages: make(map[string]domain.PromotionUsage),
	}
}

func usageKey(promotionID, orderID string) string {
	return promotionID + "/" + orderID
}

// Create сохраняет акцию.
func (r *promotionRepositoryInMemory) Create(ctx context.Context, promo domain.Promotion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[promo.ID] = promo
	return nil
}

// GetByCode возвращает акцию по коду или ErrPromotionNotFound.
func (r *promotionRepositoryInMemory) GetByCode(ctx context.Context, tenantID, code string) (domain.Promotion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, promo := range r.items {
		if promo.TenantID == tenantID && promo.Code == code {
			return promo, nil
		}
	}
	return domain.Promotion{}, domain.ErrPromotionNotFound
}

// CountUsage возвращает общее число применений акции.
func (r *promotionRepositoryInMemory) CountUsage(ctx context.Context, promotionID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int64
	for _, usage := range r.usages {
		if usage.PromotionID == promotionID {
			count++
		}
	}
	return count, nil
}

// CountUsageByCustomer возвращает число применений акции клиентом.
func (r *promotionRepositoryInMemory) CountUsageByCustomer(ctx context.Context, promotionID, customerID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int64
	for _, usage := range r.usages {
		if usage.PromotionID == promotionID && usage.CustomerID == customerID {
			count++
		}
	}
	return count, nil
}

// RecordUsage пишет применение; повтор по паре (promotion, order) — ошибка.
func (r *promotionRepositoryInMemory) RecordUsage(ctx context.Context, usage domain.PromotionUsage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := usageKey(usage.PromotionID, usage.OrderID)
	if _, exists := r.usages[key]; exists {
		return domain.ErrPromotionUsageExists
	}
	r.usages[key] = usage
	return nil
}

// UsageExists проверяет, зафиксировано ли применение акции к заказу.
func (r *promotionRepositoryInMemory) UsageExists(ctx context.Context, promotionID, orderID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.usages[usageKey(promotionID, orderID)]
	return exists, nil
}

var _ domain.PromotionRepository = (*promotionRepositoryInMemory)(nil)
