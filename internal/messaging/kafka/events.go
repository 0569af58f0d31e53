package kafka

import (
	"encoding/json"
	"time"
)

// Topics для событий платформы.
const (
	TopicOrderEvents     = "commerce.order.events"
	TopicPaymentEvents   = "commerce.payment.events"
	TopicDeadLetterQueue = "commerce.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики.
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// EventEnvelope — обёртка, в которой outbox-сообщения уходят в Kafka.
// Payload остаётся непрозрачным JSON: схема зависит от EventType
// (см. domain.OrderPaidEvent и соседей).
type EventEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// DLQRecord описывает сообщение, попавшее в Dead Letter Queue. Запись несёт
// исходные координаты сообщения, чтобы dlq-reprocess мог вернуть его в
// оригинальный topic.
type DLQRecord struct {
	OriginalTopic     string `json:"original_topic"`
	OriginalPartition int32  `json:"original_partition"`
	OriginalOffset    int64  `json:"original_offset"`
	OriginalKey       string `json:"original_key"`
	OriginalValue     string `json:"original_value"`
	ErrorMessage      string `json:"error_message"`
	FailedAt          string `json:"failed_at"`
	RetryCount        int    `json:"retry_count"`
}
