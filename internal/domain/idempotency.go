package domain

import "time"

// IdempotencyStatus описывает жизненный цикл ключа идемпотентности.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing означает, что запрос принят и ещё обрабатывается.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone означает, что запрос завершён успешно и ответ сохранён.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed означает, что обработка завершилась ошибкой.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// IdempotencyRecord хранит состояние обработки запроса с idempotency-key.
// Запись уникальна по (tenant, key, path): один и тот же ключ на разных
// эндпоинтах — разные записи.
type IdempotencyRecord struct {
	TenantID     string
	Key          string
	Path         string
	RequestHash  string
	ResponseBody []byte
	HTTPStatus   int
	Status       IdempotencyStatus
	TTLAt        time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}

// ProviderEventStatus описывает стадию обработки webhook-события провайдера.
type ProviderEventStatus string

const (
	// ProviderEventProcessing — событие принято, handler ещё не завершился.
	ProviderEventProcessing ProviderEventStatus = "processing"
	// ProviderEventProcessed — handler завершился без ошибки.
	ProviderEventProcessed ProviderEventStatus = "processed"
	// ProviderEventFailed — обработка завершилась ошибкой, redelivery допустим.
	ProviderEventFailed ProviderEventStatus = "failed"
)

// ProviderEvent — дедупликация входящих webhook по id события провайдера.
// Отдельный механизм от клиентской идемпотентности: ключ назначает провайдер,
// а processed выставляется только после успешного завершения handler, чтобы
// падение в середине обработки позволяло безопасную повторную доставку.
type ProviderEvent struct {
	Provider  string
	EventID   string
	EventType string
	Status    ProviderEventStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}
