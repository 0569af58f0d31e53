package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// providerEventRepositoryInMemory — in-memory реализация ProviderEventRepository.
type providerEventRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.ProviderEvent
}

// NewProviderEventRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewProviderEventRepository() domain.ProviderEventRepository {
	return &providerEventRepositoryInMemory{
		items: make(map[string]domain.ProviderEvent),
	}
}

func eventMapKey(provider, eventID string) string {
	return provider + "/" + eventID
}

// CreateProcessing регистрирует событие; повтор возвращает существующую
// запись вместе с ErrProviderEventExists.
func (r *providerEventRepositoryInMemory) CreateProcessing(ctx context.Context, provider, eventID, eventType string) (domain.ProviderEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := eventMapKey(provider, eventID)
	if existing, exists := r.items[key]; exists {
		return existing, domain.ErrProviderEventExists
	}

	now := time.Now().UTC()
	event := domain.ProviderEvent{
		Provider:  provider,
		EventID:   eventID,
		EventType: eventType,
		Status:    domain.ProviderEventProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.items[key] = event
	return event, nil
}

// Get возвращает событие или ErrProviderEventNotFound.
func (r *providerEventRepositoryInMemory) Get(ctx context.Context, provider, eventID string) (domain.ProviderEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	event, ok := r.items[eventMapKey(provider, eventID)]
	if !ok {
		return domain.ProviderEvent{}, domain.ErrProviderEventNotFound
	}
	return event, nil
}

// MarkProcessed выставляется только после успешного завершения handler.
func (r *providerEventRepositoryInMemory) MarkProcessed(ctx context.Context, provider, eventID string) error {
	return r.markStatus(provider, eventID, domain.ProviderEventProcessed)
}

// MarkFailed оставляет событие доступным для повторной доставки.
func (r *providerEventRepositoryInMemory) MarkFailed(ctx context.Context, provider, eventID string) error {
	return r.markStatus(provider, eventID, domain.ProviderEventFailed)
}

func (r *providerEventRepositoryInMemory) markStatus(provider, eventID string, status domain.ProviderEventStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := eventMapKey(provider, eventID)
	event, ok := r.items[key]
	if !ok {
		return domain.ErrProviderEventNotFound
	}
	event.Status = status
	event.UpdatedAt = time.Now().UTC()
	r.items[key] = event
	return nil
}

var _ domain.ProviderEventRepository = (*providerEventRepositoryInMemory)(nil)
