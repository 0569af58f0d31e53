package domain

import (
	"context"
	"time"
)

// CartRepository описывает требования к хранилищу корзин.
type CartRepository interface {
	Create(ctx context.Context, cart Cart) error
	// Get возвращает корзину по идентификатору или ErrCartNotFound.
	Get(ctx context.Context, tenantID, id string) (Cart, error)
	// Save применяет обновления с учётом optimistic locking.
	Save(ctx context.Context, cart Cart) error
}

// OrderRepository описывает требования к хранилищу операционных заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Уникальный индекс по cart_id превращает
	// гонку двойного чекаута в обнаружимый конфликт.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(ctx context.Context, tenantID, id string) (Order, error)
	ListByCustomer(ctx context.Context, tenantID, customerID string, limit int) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(ctx context.Context, order Order) error
}

// FinancialOrderRepository хранит бухгалтерские записи заказов.
type FinancialOrderRepository interface {
	Create(ctx context.Context, fo FinancialOrder) error
	Get(ctx context.Context, tenantID, id string) (FinancialOrder, error)
	// GetByOrder возвращает финансовый заказ по операционному заказу.
	GetByOrder(ctx context.Context, tenantID, orderID string) (FinancialOrder, error)
	// ListByTenant возвращает финансовые заказы тенанта; пустой tenantID
	// означает все тенанты (для reconciliation).
	ListByTenant(ctx context.Context, tenantID string) ([]FinancialOrder, error)
	Save(ctx context.Context, fo FinancialOrder) error
}

// PaymentRepository хранит платежи.
type PaymentRepository interface {
	Create(ctx context.Context, payment Payment) error
	Get(ctx context.Context, tenantID, id string) (Payment, error)
	ListByOrder(ctx context.Context, tenantID, orderID string) ([]Payment, error)
	Save(ctx context.Context, payment Payment) error
}

// LedgerRepository хранит книги, счета и транзакции. Транзакции и проводки
// append-only: интерфейс намеренно не содержит update/delete для них.
type LedgerRepository interface {
	CreateLedger(ctx context.Context, ledger Ledger, accounts []LedgerAccount) error
	GetLedgerByTenant(ctx context.Context, tenantID string) (Ledger, error)
	GetAccount(ctx context.Context, ledgerID string, code AccountCode) (LedgerAccount, error)
	// CreateTransaction атомарно сохраняет транзакцию со всеми проводками.
	CreateTransaction(ctx context.Context, tx LedgerTransaction) error
	// FindByReference ищет транзакцию по приложению: тип/идентификатор
	// ссылки и провайдерская ссылка. Основа идемпотентности проводок.
	FindByReference(ctx context.Context, ledgerID, referenceType, referenceID, providerRef string) (LedgerTransaction, bool, error)
	ListByReference(ctx context.Context, ledgerID, referenceType, referenceID string) ([]LedgerTransaction, error)
}

// PromotionRepository хранит акции и их применение.
type PromotionRepository interface {
	Create(ctx context.Context, promo Promotion) error
	GetByCode(ctx context.Context, tenantID, code string) (Promotion, error)
	// CountUsage возвращает общее число применений акции.
	CountUsage(ctx context.Context, promotionID string) (int64, error)
	// CountUsageByCustomer возвращает число применений акции клиентом.
	CountUsageByCustomer(ctx context.Context, promotionID, customerID string) (int64, error)
	// RecordUsage пишет применение; повтор по паре (promotion, order)
	// возвращает ErrPromotionUsageExists.
	RecordUsage(ctx context.Context, usage PromotionUsage) error
	UsageExists(ctx context.Context, promotionID, orderID string) (bool, error)
}

// InvoiceRepository хранит счета и кредит-ноты.
type InvoiceRepository interface {
	Create(ctx context.Context, invoice Invoice) error
	GetByFinancialOrder(ctx context.Context, tenantID, financialOrderID string) (Invoice, bool, error)
	// CreditedTotal возвращает сумму уже выписанных кредит-нот по счёту.
	CreditedTotal(ctx context.Context, invoiceID string) (int64, error)
	// CreateCreditNote пишет кредит-ноту; проверка лимита выполняется
	// сервисом до вызова.
	CreateCreditNote(ctx context.Context, note CreditNote) error
	Save(ctx context.Context, invoice Invoice) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, tenantID, key, path, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, tenantID, key, path string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, tenantID, key, path string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, tenantID, key, path string, responseBody []byte, httpStatus int) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// ProviderEventRepository — долговременная дедупликация webhook-событий.
type ProviderEventRepository interface {
	// CreateProcessing регистрирует событие; повтор по (provider, event_id)
	// возвращает ErrProviderEventExists вместе с текущим состоянием.
	CreateProcessing(ctx context.Context, provider, eventID, eventType string) (ProviderEvent, error)
	Get(ctx context.Context, provider, eventID string) (ProviderEvent, error)
	MarkProcessed(ctx context.Context, provider, eventID string) error
	MarkFailed(ctx context.Context, provider, eventID string) error
}
