package webhook

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/service/settlement"
)

var webhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "commerce_webhook_events_total",
	Help: "Total number of webhook events grouped by result.",
}, []string{"result"})

// Типы событий, которые платёжный провайдер доставляет через webhook.
const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
)

// Event — разобранное webhook-событие провайдера.
type Event struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	TenantID    string `json:"tenant_id"`
	PaymentID   string `json:"payment_id"`
	ProviderRef string `json:"provider_reference"`
	Currency    string `json:"currency"`
	Reason      string `json:"reason,omitempty"`
}

// Processor дедуплицирует и обрабатывает события провайдера. Дедупликация
// двухуровневая: быстрый кеш и долговременная таблица; processed
// выставляется только после успешного завершения handler, так что падение
// в середине обработки допускает безопасную повторную доставку.
type Processor struct {
	events     domain.ProviderEventRepository
	cache      domain.EventDedupCache
	settlement *settlement.Listener
	logger     *log.Entry
}

// NewProcessor создаёт обработчик webhook-событий.
func NewProcessor(
	events domain.ProviderEventRepository,
	cache domain.EventDedupCache,
	settlementListener *settlement.Listener,
	logger *log.Entry,
) *Processor {
	if logger == nil {
		logger = log.New().WithField("component", "webhook")
	}
	return &Processor{
		events:     events,
		cache:      cache,
		settlement: settlementListener,
		logger:     logger,
	}
}

// Process обрабатывает одно событие. Повторная доставка уже обработанного
// события — успех без повторной обработки; неизвестный тип события
// подтверждается как no-op, чтобы провайдер перестал ретраить.
func (p *Processor) Process(ctx context.Context, provider string, event Event) error {
	entry := p.logger.WithFields(log.Fields{
		"provider":   provider,
		"event_id":   event.ID,
		"event_type": event.Type,
	})

	if p.cache != nil {
		seen, err := p.cache.Seen(ctx, provider, event.ID)
		if err != nil {
			// Кеш — оптимизация; при его отказе авторитетна таблица.
			entry.WithError(err).Warn("dedup cache lookup failed")
		} else if seen {
			webhookEventsTotal.WithLabelValues("duplicate").Inc()
			entry.Debug("duplicate event, served from cache")
			return nil
		}
	}

	_, err := p.events.CreateProcessing(ctx, provider, event.ID, event.Type)
	if err != nil {
		if errors.Is(err, domain.ErrProviderEventExists) {
			existing, getErr := p.events.Get(ctx, provider, event.ID)
			if getErr == nil && existing.Status == domain.ProviderEventProcessed {
				webhookEventsTotal.WithLabelValues("duplicate").Inc()
				entry.Debug("duplicate event, already processed")
				return nil
			}
			// processing/failed: предыдущая доставка оборвалась, обрабатываем заново.
		} else {
			return err
		}
	}

	if err := p.dispatch(ctx, event); err != nil {
		webhookEventsTotal.WithLabelValues("error").Inc()
		if markErr := p.events.MarkFailed(ctx, provider, event.ID); markErr != nil {
			entry.WithError(markErr).Warn("mark event failed errored")
		}
		return err
	}

	if err := p.events.MarkProcessed(ctx, provider, event.ID); err != nil {
		return err
	}
	if p.cache != nil {
		if err := p.cache.MarkSeen(ctx, provider, event.ID); err != nil {
			entry.WithError(err).Warn("dedup cache mark failed")
		}
	}

	webhookEventsTotal.WithLabelValues("processed").Inc()
	entry.Info("webhook event processed")
	return nil
}

func (p *Processor) dispatch(ctx context.Context, event Event) error {
	rctx := domain.RequestContext{
		TenantID: event.TenantID,
		Currency: event.Currency,
		ActorID:  "webhook",
	}

	switch event.Type {
	case EventPaymentSucceeded:
		return p.settlement.HandlePaymentSucceeded(ctx, rctx, event.PaymentID, event.ProviderRef)
	case EventPaymentFailed:
		return p.settlement.HandlePaymentFailed(ctx, rctx, event.PaymentID, event.Reason)
	default:
		// Неизвестный тип подтверждаем без обработки.
		p.logger.WithField("event_type", event.Type).Debug("unknown event type, acknowledged")
		return nil
	}
}
