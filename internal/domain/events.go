package domain

import "time"

// Имена доменных событий, публикуемых через outbox.
const (
	EventOrderPaid     = "OrderPaid"
	EventOrderRefunded = "OrderRefunded"
	EventOrderLocked   = "OrderLocked"
	EventPaymentFailed = "PaymentFailed"
)

// OutboxMessage хранит данные для публикуемого события. Сообщения пишутся
// в той же транзакции, что и породившее их изменение состояния, и
// доставляются отдельным диспетчером — события отражают только
// закоммиченное состояние.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// OrderPaidEvent — полезная нагрузка события OrderPaid. Несёт достаточно
// данных, чтобы слушатель действовал без повторного чтения заказа.
type OrderPaidEvent struct {
	TenantID    string `json:"tenant_id"`
	OrderID     string `json:"order_id"`
	CustomerID  string `json:"customer_id"`
	Currency    string `json:"currency"`
	TotalMinor  int64  `json:"total_cents"`
	ProviderRef string `json:"provider_reference"`
	OccurredAt  string `json:"occurred_at"`
}

// OrderRefundedEvent — полезная нагрузка события OrderRefunded.
type OrderRefundedEvent struct {
	TenantID    string `json:"tenant_id"`
	OrderID     string `json:"order_id"`
	Currency    string `json:"currency"`
	AmountMinor int64  `json:"amount_cents"`
	ProviderRef string `json:"provider_reference"`
	Reason      string `json:"reason,omitempty"`
	OccurredAt  string `json:"occurred_at"`
}

// PaymentFailedEvent — полезная нагрузка события PaymentFailed. Несёт
// достаточно данных, чтобы слушатель освободил резерв склада без
// обращения к платежу.
type PaymentFailedEvent struct {
	TenantID   string `json:"tenant_id"`
	OrderID    string `json:"order_id"`
	PaymentID  string `json:"payment_id"`
	Reason     string `json:"reason,omitempty"`
	OccurredAt string `json:"occurred_at"`
}

// OrderLockedEvent — полезная нагрузка события OrderLocked.
type OrderLockedEvent struct {
	TenantID         string `json:"tenant_id"`
	OrderID          string `json:"order_id"`
	FinancialOrderID string `json:"financial_order_id"`
	SnapshotHash     string `json:"snapshot_hash"`
	TotalMinor       int64  `json:"total_cents"`
	OccurredAt       string `json:"occurred_at"`
}
