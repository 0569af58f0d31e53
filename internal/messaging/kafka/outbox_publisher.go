package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// OutboxTopicPublisher публикует outbox-сообщения в Kafka. Topic выбирается
// по типу события: платёжные события уходят в отдельный topic, остальное —
// в поток заказов.
type OutboxTopicPublisher struct {
	producer *Producer
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer) domain.OutboxPublisher {
	return &OutboxTopicPublisher{producer: producer}
}

func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	envelope := EventEnvelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       json.RawMessage(event.Payload),
		PublishedAt:   time.Now().UTC(),
	}

	return p.producer.PublishEvent(topicForEvent(event.EventType), key, envelope)
}

func topicForEvent(eventType string) string {
	switch eventType {
	case domain.EventOrderRefunded, domain.EventPaymentFailed:
		return TopicPaymentEvents
	default:
		return TopicOrderEvents
	}
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)

// dlqPublisher отправляет обёрнутые диспетчером outbox сообщения в
// Dead Letter Queue. Payload уже содержит DLQ-конверт, поэтому сообщение
// уходит как есть.
type dlqPublisher struct {
	producer *Producer
}

// NewDLQPublisher создаёт паблишер DLQ-топика для outbox-диспетчера.
func NewDLQPublisher(producer *Producer) domain.OutboxPublisher {
	return &dlqPublisher{producer: producer}
}

func (p *dlqPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka dlq publisher is not initialized")
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	return p.producer.PublishRaw(TopicDeadLetterQueue, key, event.Payload, nil)
}
