package domain

import "context"

// StockItem — пара (товар, количество) для операций склада.
type StockItem struct {
	ProductID string
	Qty       int32
}

// StockGateway описывает взаимодействие со складом. Реализация может быть
// одноточечной (немедленный декремент счётчика) или распределённой
// (аллокация по складам) — протокол от этого не меняется.
type StockGateway interface {
	// Validate проверяет доступность позиций без резервирования.
	// Возвращает ErrInsufficientStock с указанием товара, если какой-то
	// позиции не хватает.
	Validate(ctx context.Context, items []StockItem) error
	// Reserve резервирует позиции. Компенсация — Release.
	Reserve(ctx context.Context, items []StockItem) error
	// Release снимает резерв (компенсация саги).
	Release(ctx context.Context, items []StockItem) error
	// AllocateForOrder резервирует позиции под конкретный заказ; используется
	// в режиме отложенного резервирования, когда склад распределяет сток
	// по заказам, а не по плоскому счётчику.
	AllocateForOrder(ctx context.Context, orderID string, items []StockItem) error
	// ReleaseAllocation снимает аллокацию заказа (компенсация).
	ReleaseAllocation(ctx context.Context, orderID string, items []StockItem) error
}

// PaymentIntent — клиентская часть созданного у провайдера intent.
type PaymentIntent struct {
	ProviderPaymentID string
	ClientSecret      string
}

// PaymentGateway описывает взаимодействие с платёжным провайдером.
type PaymentGateway interface {
	// CreateIntent создаёт intent на списание у провайдера.
	CreateIntent(ctx context.Context, payment Payment, metadata map[string]string) (PaymentIntent, error)
	// Confirm подтверждает платёж у провайдера.
	Confirm(ctx context.Context, payment Payment) error
	// Refund инициирует возврат части или всей суммы; возвращает ссылку
	// провайдера. idempotencyKey детерминирован по (заказ, сумма): если
	// локальная запись возврата потерялась, повтор не спишет деньги дважды.
	Refund(ctx context.Context, payment Payment, amountMinor int64, idempotencyKey string) (string, error)
	// Cancel отменяет незавершённый платёж.
	Cancel(ctx context.Context, payment Payment) error
}

// PromotionResolver загружает активные акции и фильтрует их по окну действия
// и лимитам использования перед передачей в Evaluator.
type PromotionResolver interface {
	ActiveForCart(ctx context.Context, rctx RequestContext, codes []string, customerID string) ([]Promotion, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// TxRunner исполняет fn внутри одной транзакции БД. Транзакция передаётся
// репозиториям через context, так что несколько репозиториев присоединяются
// к одной транзакции.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventDedupCache — быстрый кеш перед долговременной таблицей provider events.
// Промах кеша не означает, что событие новое: авторитетна таблица.
type EventDedupCache interface {
	Seen(ctx context.Context, provider, eventID string) (bool, error)
	MarkSeen(ctx context.Context, provider, eventID string) error
}
