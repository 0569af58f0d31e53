package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

type outboxRecord struct {
	msg       domain.OutboxMessage
	status    string
	createdAt time.Time
}

// outboxRepositoryInMemory — in-memory реализация OutboxRepository.
type outboxRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]outboxRecord
}

// NewOutboxRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOutboxRepository() domain.OutboxRepository {
	return &outboxRepositoryInMemory{
		items: make(map[string]outboxRecord),
	}
}

// Enqueue сохраняет сообщение в статусе pending.
func (r *outboxRepositoryInMemory) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	r.items[msg.ID] = outboxRecord{
		msg:       msg,
		status:    "pending",
		createdAt: time.Now().UTC(),
	}
	return msg, nil
}

// PullPending возвращает pending-сообщения в порядке создания.
func (r *outboxRepositoryInMemory) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	records := make([]outboxRecord, 0, len(r.items))
	for _, record := range r.items {
		if record.status == "pending" {
			records = append(records, record)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].createdAt.Equal(records[j].createdAt) {
			return records[i].createdAt.Before(records[j].createdAt)
		}
		return records[i].msg.ID < records[j].msg.ID
	})

	if len(records) > limit {
		records = records[:limit]
	}

	result := make([]domain.OutboxMessage, 0, len(records))
	for _, record := range records {
		result = append(result, record.msg)
	}
	return result, nil
}

// Stats возвращает состояние backlog.
func (r *outboxRepositoryInMemory) Stats(ctx context.Context) (domain.OutboxStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stats domain.OutboxStats
	for _, record := range r.items {
		if record.status != "pending" {
			continue
		}
		stats.PendingCount++
		if stats.OldestPendingAt.IsZero() || record.createdAt.Before(stats.OldestPendingAt) {
			stats.OldestPendingAt = record.createdAt
		}
	}
	return stats, nil
}

// MarkSent переводит сообщение в sent.
func (r *outboxRepositoryInMemory) MarkSent(ctx context.Context, id string) error {
	return r.markStatus(id, "sent")
}

// MarkFailed переводит сообщение в failed.
func (r *outboxRepositoryInMemory) MarkFailed(ctx context.Context, id string) error {
	return r.markStatus(id, "failed")
}

func (r *outboxRepositoryInMemory) markStatus(id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.items[id]
	if !ok {
		return domain.ErrOutboxPublish
	}
	record.status = status
	r.items[id] = record
	return nil
}

var _ domain.OutboxRepository = (*outboxRepositoryInMemory)(nil)
