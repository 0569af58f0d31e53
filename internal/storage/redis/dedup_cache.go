package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

const defaultSeenTTL = 48 * time.Hour

// NewDedupCache создаёт кеш дедупликации webhook-событий поверх Redis.
// Кеш только ускоряет путь повторной доставки: авторитетом остаётся
// таблица provider events, промах кеша безопасен.
func NewDedupCache(client *redis.Client) *DedupCache {
	return &DedupCache{
		client: client,
		ttl:    defaultSeenTTL,
	}
}

// DedupCache хранит отметки об обработанных событиях провайдера.
type DedupCache struct {
	client *redis.Client
	ttl    time.Duration
}

// Seen сообщает, было ли событие уже обработано.
func (c *DedupCache) Seen(ctx context.Context, provider, eventID string) (bool, error) {
	err := c.client.Get(ctx, seenKey(provider, eventID)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get failed: %w", err)
	}
	return true, nil
}

// MarkSeen помечает событие обработанным; отметка живёт дольше любого
// разумного окна redelivery провайдера.
func (c *DedupCache) MarkSeen(ctx context.Context, provider, eventID string) error {
	if err := c.client.Set(ctx, seenKey(provider, eventID), "1", c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Ping проверяет доступность Redis.
func (c *DedupCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func seenKey(provider, eventID string) string {
	return fmt.Sprintf("webhook:seen:%s:%s", provider, eventID)
}

var _ domain.EventDedupCache = (*DedupCache)(nil)
