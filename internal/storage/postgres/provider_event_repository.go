package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

type providerEventRepository struct {
	db *sql.DB
}

// NewProviderEventRepository создаёт PostgreSQL-реализацию ProviderEventRepository.
func NewProviderEventRepository(store *Store) domain.ProviderEventRepository {
	return &providerEventRepository{db: store.DB()}
}

func (r *providerEventRepository) CreateProcessing(ctx context.Context, provider, eventID, eventType string) (domain.ProviderEvent, error) {
	db := q(ctx, r.db)
	now := time.Now().UTC()

	_, err := db.ExecContext(ctx, `
		INSERT INTO provider_events (provider, event_id, event_type, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`,
		provider, eventID, eventType, string(domain.ProviderEventProcessing), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			existing, getErr := r.Get(ctx, provider, eventID)
			if getErr != nil {
				return domain.ProviderEvent{}, domain.ErrProviderEventExists
			}
			return existing, domain.ErrProviderEventExists
		}
		return domain.ProviderEvent{}, fmt.Errorf("create provider event: %w", err)
	}

	return domain.ProviderEvent{
		Provider:  provider,
		EventID:   eventID,
		EventType: eventType,
		Status:    domain.ProviderEventProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (r *providerEventRepository) Get(ctx context.Context, provider, eventID string) (domain.ProviderEvent, error) {
	db := q(ctx, r.db)

	var event domain.ProviderEvent
	var status string

	err := db.QueryRowContext(ctx, `
		SELECT provider, event_id, event_type, status, created_at, updated_at
		FROM provider_events
		WHERE provider = $1 AND event_id = $2
	`, provider, eventID).Scan(
		&event.Provider, &event.EventID, &event.EventType,
		&status, &event.CreatedAt, &event.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ProviderEvent{}, domain.ErrProviderEventNotFound
		}
		return domain.ProviderEvent{}, fmt.Errorf("get provider event: %w", err)
	}
	event.Status = domain.ProviderEventStatus(status)

	return event, nil
}

func (r *providerEventRepository) MarkProcessed(ctx context.Context, provider, eventID string) error {
	return r.markStatus(ctx, provider, eventID, domain.ProviderEventProcessed)
}

func (r *providerEventRepository) MarkFailed(ctx context.Context, provider, eventID string) error {
	return r.markStatus(ctx, provider, eventID, domain.ProviderEventFailed)
}

func (r *providerEventRepository) markStatus(ctx context.Context, provider, eventID string, status domain.ProviderEventStatus) error {
	db := q(ctx, r.db)

	res, err := db.ExecContext(ctx, `
		UPDATE provider_events
		SET status = $1,
		    updated_at = $2
		WHERE provider = $3 AND event_id = $4
	`, string(status), time.Now().UTC(), provider, eventID)
	if err != nil {
		return fmt.Errorf("mark provider event status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("provider event rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrProviderEventNotFound
	}

	return nil
}

var _ domain.ProviderEventRepository = (*providerEventRepository)(nil)
