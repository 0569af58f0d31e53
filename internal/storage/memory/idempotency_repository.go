package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// idempotencyRepositoryInMemory — in-memory реализация IdempotencyRepository.
type idempotencyRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.IdempotencyRecord
}

// NewIdempotencyRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewIdempotencyRepository() domain.IdempotencyRepository {
	return &idempotencyRepositoryInMemory{
		items: make(map[string]domain.IdempotencyRecord),
	}
}

func recordKey(tenantID, key, path string) string {
	return tenantID + "/" + key + "/" + path
}

// CreateProcessing регистрирует ключ в статусе processing. Повтор ключа с
// другим телом запроса — ErrIdempotencyHashMismatch. Запись с истёкшим ttl
// считается отсутствующей и перехватывается как новый ключ, не дожидаясь
// фоновой очистки.
func (r *idempotencyRepositoryInMemory) CreateProcessing(ctx context.Context, tenantID, key, path, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	requestHash = strings.TrimSpace(requestHash)

	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}
	if requestHash == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	now := time.Now().UTC()
	if ttlAt.IsZero() {
		ttlAt = now.Add(24 * time.Hour)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	mapKey := recordKey(tenantID, key, path)
	if existing, exists := r.items[mapKey]; exists && existing.TTLAt.After(now) {
		if existing.RequestHash != requestHash {
			return existing, domain.ErrIdempotencyHashMismatch
		}
		return existing, domain.ErrIdempotencyKeyAlreadyExists
	}

	record := domain.IdempotencyRecord{
		TenantID:    tenantID,
		Key:         key,
		Path:        path,
		RequestHash: requestHash,
		Status:      domain.IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.items[mapKey] = record
	return record, nil
}

// Get возвращает запись по ключу или ErrIdempotencyKeyNotFound.
func (r *idempotencyRepositoryInMemory) Get(ctx context.Context, tenantID, key, path string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.items[recordKey(tenantID, key, path)]
	if !ok {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return record, nil
}

// MarkDone сохраняет успешный ответ под ключом.
func (r *idempotencyRepositoryInMemory) MarkDone(ctx context.Context, tenantID, key, path string, responseBody []byte, httpStatus int) error {
	return r.markStatus(tenantID, key, path, domain.IdempotencyStatusDone, responseBody, httpStatus)
}

// MarkFailed сохраняет финальный ошибочный ответ под ключом.
func (r *idempotencyRepositoryInMemory) MarkFailed(ctx context.Context, tenantID, key, path string, responseBody []byte, httpStatus int) error {
	return r.markStatus(tenantID, key, path, domain.IdempotencyStatusFailed, responseBody, httpStatus)
}

// DeleteExpired удаляет записи с ttl <= before, не больше limit за вызов.
func (r *idempotencyRepositoryInMemory) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	expired := make([]string, 0)
	for mapKey, record := range r.items {
		if !record.TTLAt.After(before) {
			expired = append(expired, mapKey)
		}
	}
	sort.Strings(expired)

	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	for _, mapKey := range expired {
		delete(r.items, mapKey)
	}

	return len(expired), nil
}

func (r *idempotencyRepositoryInMemory) markStatus(tenantID, key, path string, status domain.IdempotencyStatus, responseBody []byte, httpStatus int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	mapKey := recordKey(tenantID, key, path)
	record, ok := r.items[mapKey]
	if !ok {
		return domain.ErrIdempotencyKeyNotFound
	}

	record.Status = status
	record.ResponseBody = append([]byte(nil), responseBody...)
	record.HTTPStatus = httpStatus
	record.UpdatedAt = time.Now().UTC()
	r.items[mapKey] = record
	return nil
}

var _ domain.IdempotencyRepository = (*idempotencyRepositoryInMemory)(nil)
