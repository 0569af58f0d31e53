package kafka

import (
	"context"
	"fmt"
	"strconv"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// NewDLQReprocessHandler возвращает обработчик DLQ-топика, который
// возвращает сообщение в оригинальный topic. Счётчик ретраев переносится
// в headers, чтобы consumer различал повторный заход от первого.
func NewDLQReprocessHandler(producer *Producer) MessageHandler {
	logger := log.WithField("component", "dlq-reprocess")

	return func(_ context.Context, message *sarama.ConsumerMessage) error {
		record, err := ParseDLQRecord(message)
		if err != nil {
			return err
		}
		if record.OriginalTopic == "" {
			return fmt.Errorf("dlq record has no original topic")
		}

		headers := map[string]string{
			HeaderRetryCount:    strconv.Itoa(record.RetryCount + 1),
			HeaderOriginalTopic: record.OriginalTopic,
			HeaderErrorMessage:  record.ErrorMessage,
			HeaderFailedAt:      record.FailedAt,
		}

		if err := producer.PublishRaw(record.OriginalTopic, record.OriginalKey, []byte(record.OriginalValue), headers); err != nil {
			return fmt.Errorf("failed to republish dlq message: %w", err)
		}

		logger.WithFields(log.Fields{
			"topic":       record.OriginalTopic,
			"retry_count": record.RetryCount + 1,
		}).Info("dlq message republished")
		return nil
	}
}
