package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// DefaultTTL — срок жизни idempotency ключа по умолчанию.
const DefaultTTL = 24 * time.Hour

// Outcome описывает решение по входящему запросу с idempotency-key.
type Outcome int

const (
	// OutcomeProceed — ключ новый, запрос нужно исполнить.
	OutcomeProceed Outcome = iota
	// OutcomeReplay — ключ завершён, сохранённый ответ возвращается как есть.
	OutcomeReplay
	// OutcomeInFlight — тот же запрос ещё обрабатывается конкурентно.
	OutcomeInFlight
)

// Decision — результат Begin для обработчика запроса.
type Decision struct {
	Outcome      Outcome
	ResponseBody []byte
	HTTPStatus   int
}

// Service реализует клиентскую идемпотентность поверх хранилища ключей.
// Запись уникальна по (tenant, key, path); повтор ключа с другим телом
// запроса отклоняется как конфликт, а не исполняется повторно.
type Service struct {
	repo   domain.IdempotencyRepository
	logger *log.Entry
	ttl    time.Duration
}

// NewService создаёт сервис клиентской идемпотентности.
func NewService(repo domain.IdempotencyRepository, logger *log.Entry, ttl time.Duration) *Service {
	if logger == nil {
		logger = log.WithField("component", "idempotency-service")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{repo: repo, logger: logger, ttl: ttl}
}

// RequestHash считает hex-кодированный SHA-256 от тела запроса.
func RequestHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Begin регистрирует попытку обработки запроса. Первый вызов по ключу
// резервирует его и возвращает OutcomeProceed; повтор с тем же телом
// возвращает сохранённый ответ или OutcomeInFlight, повтор с другим телом —
// ErrIdempotencyHashMismatch.
func (s *Service) Begin(ctx context.Context, tenantID, key, path, requestHash string) (Decision, error) {
	if key == "" {
		return Decision{}, domain.ErrIdempotencyKeyRequired
	}
	if requestHash == "" {
		return Decision{}, domain.ErrIdempotencyRequestHashRequired
	}

	ttlAt := time.Now().UTC().Add(s.ttl)
	_, err := s.repo.CreateProcessing(ctx, tenantID, key, path, requestHash, ttlAt)
	if err == nil {
		return Decision{Outcome: OutcomeProceed}, nil
	}
	if !errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) {
		return Decision{}, err
	}

	record, err := s.repo.Get(ctx, tenantID, key, path)
	if err != nil {
		return Decision{}, err
	}
	if record.RequestHash != requestHash {
		return Decision{}, domain.ErrIdempotencyHashMismatch
	}

	switch record.Status {
	case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
		return Decision{
			Outcome:      OutcomeReplay,
			ResponseBody: record.ResponseBody,
			HTTPStatus:   record.HTTPStatus,
		}, nil
	default:
		return Decision{Outcome: OutcomeInFlight}, nil
	}
}

// Complete сохраняет успешный ответ под ключом. Последующие повторы
// получают responseBody и httpStatus без повторного исполнения.
func (s *Service) Complete(ctx context.Context, tenantID, key, path string, responseBody []byte, httpStatus int) error {
	if err := s.repo.MarkDone(ctx, tenantID, key, path, responseBody, httpStatus); err != nil {
		s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent response")
		return err
	}
	return nil
}

// Fail сохраняет финальный ошибочный ответ. Бизнес-отказ так же
// детерминирован, как успех: повтор ключа вернёт ту же ошибку.
func (s *Service) Fail(ctx context.Context, tenantID, key, path string, responseBody []byte, httpStatus int) error {
	if err := s.repo.MarkFailed(ctx, tenantID, key, path, responseBody, httpStatus); err != nil {
		s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent error response")
		return err
	}
	return nil
}
