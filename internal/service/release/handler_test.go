package release

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/gateway/stock"
	"github.com/vladislavdragonenkov/commerce/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/commerce/internal/storage/memory"
)

type handlerEnv struct {
	orders  domain.OrderRepository
	stock   *stock.MemoryGateway
	handler *Handler
}

func newHandlerEnv(t *testing.T, deferred bool) *handlerEnv {
	t.Helper()

	env := &handlerEnv{
		orders: memory.NewOrderRepository(),
		stock:  stock.NewMemoryGateway(map[string]int32{"sku-a": 10}, nil),
	}
	env.handler = NewHandler(env.orders, env.stock, memory.NewTxRunner(), deferred, nil)
	return env
}

func (e *handlerEnv) seedOrder(t *testing.T, status domain.OrderStatus) domain.Order {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	order := domain.Order{
		ID:         "order-1",
		TenantID:   "tenant-1",
		CartID:     "cart-1",
		CustomerID: "cust-1",
		Status:     status,
		Currency:   "EUR",
		Items: []domain.OrderItem{
			{ID: "oi-1", ProductID: "sku-a", Qty: 2, UnitPriceMinor: 5000, TotalMinor: 10000, CreatedAt: now},
		},
		SubtotalMinor: 10000,
		TotalMinor:    10000,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.orders.Create(ctx, order); err != nil {
		t.Fatalf("seed order failed: %v", err)
	}
	return order
}

func paymentFailedMessage(t *testing.T, tenantID, orderID string) *sarama.ConsumerMessage {
	t.Helper()

	payload, err := json.Marshal(domain.PaymentFailedEvent{
		TenantID:   tenantID,
		OrderID:    orderID,
		PaymentID:  "pay-1",
		Reason:     "card_declined",
		OccurredAt: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		t.Fatalf("marshal payload failed: %v", err)
	}

	value, err := json.Marshal(kafka.EventEnvelope{
		ID:            "outbox-1",
		AggregateType: "payment",
		AggregateID:   "pay-1",
		EventType:     domain.EventPaymentFailed,
		Payload:       payload,
		PublishedAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("marshal envelope failed: %v", err)
	}

	return &sarama.ConsumerMessage{
		Topic: kafka.TopicPaymentEvents,
		Value: value,
	}
}

func TestHandleCancelsOrderAndReleasesStock(t *testing.T) {
	env := newHandlerEnv(t, false)
	ctx := context.Background()

	// Резерв уже снят сагой чекаута при создании заказа.
	if err := env.stock.Reserve(ctx, []domain.StockItem{{ProductID: "sku-a", Qty: 2}}); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	env.seedOrder(t, domain.OrderStatusPending)

	if err := env.handler.Handle(ctx, paymentFailedMessage(t, "tenant-1", "order-1")); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	order, err := env.orders.Get(ctx, "tenant-1", "order-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if order.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled order, got %s", order.Status)
	}
	if level := env.stock.Level("sku-a"); level != 10 {
		t.Fatalf("expected stock released back to 10, got %d", level)
	}
}

func TestHandleDeferredReleasesAllocation(t *testing.T) {
	env := newHandlerEnv(t, true)
	ctx := context.Background()

	items := []domain.StockItem{{ProductID: "sku-a", Qty: 2}}
	if err := env.stock.AllocateForOrder(ctx, "order-1", items); err != nil {
		t.Fatalf("allocate failed: %v", err)
	}
	env.seedOrder(t, domain.OrderStatusConfirmed)

	if err := env.handler.Handle(ctx, paymentFailedMessage(t, "tenant-1", "order-1")); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	order, err := env.orders.Get(ctx, "tenant-1", "order-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if order.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled order, got %s", order.Status)
	}
	if level := env.stock.Level("sku-a"); level != 10 {
		t.Fatalf("expected allocation released back to 10, got %d", level)
	}
}

func TestHandleSkipsPaidOrder(t *testing.T) {
	env := newHandlerEnv(t, false)
	ctx := context.Background()

	env.seedOrder(t, domain.OrderStatusPaid)

	if err := env.handler.Handle(ctx, paymentFailedMessage(t, "tenant-1", "order-1")); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	order, err := env.orders.Get(ctx, "tenant-1", "order-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if order.Status != domain.OrderStatusPaid {
		t.Fatalf("paid order must not change, got %s", order.Status)
	}
	if level := env.stock.Level("sku-a"); level != 10 {
		t.Fatalf("stock must stay at 10, got %d", level)
	}
}

func TestHandleIsIdempotent(t *testing.T) {
	env := newHandlerEnv(t, false)
	ctx := context.Background()

	if err := env.stock.Reserve(ctx, []domain.StockItem{{ProductID: "sku-a", Qty: 2}}); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	env.seedOrder(t, domain.OrderStatusPending)

	msg := paymentFailedMessage(t, "tenant-1", "order-1")
	if err := env.handler.Handle(ctx, msg); err != nil {
		t.Fatalf("first Handle failed: %v", err)
	}
	if err := env.handler.Handle(ctx, msg); err != nil {
		t.Fatalf("redelivery must be no-op: %v", err)
	}

	if level := env.stock.Level("sku-a"); level != 10 {
		t.Fatalf("stock must not be released twice, got %d", level)
	}
}

func TestHandleSkipsUnknownOrder(t *testing.T) {
	env := newHandlerEnv(t, false)

	if err := env.handler.Handle(context.Background(), paymentFailedMessage(t, "tenant-1", "missing")); err != nil {
		t.Fatalf("unknown order must not fail: %v", err)
	}
}

func TestHandleIgnoresOtherEvents(t *testing.T) {
	env := newHandlerEnv(t, false)

	value, err := json.Marshal(kafka.EventEnvelope{
		ID:        "outbox-2",
		EventType: domain.EventOrderRefunded,
		Payload:   json.RawMessage(`{}`),
	})
	if err != nil {
		t.Fatalf("marshal envelope failed: %v", err)
	}

	msg := &sarama.ConsumerMessage{Topic: kafka.TopicPaymentEvents, Value: value}
	if err := env.handler.Handle(context.Background(), msg); err != nil {
		t.Fatalf("foreign event must be skipped: %v", err)
	}
}

func TestHandleRejectsIncompletePayload(t *testing.T) {
	env := newHandlerEnv(t, false)

	value, err := json.Marshal(kafka.EventEnvelope{
		ID:        "outbox-3",
		EventType: domain.EventPaymentFailed,
		Payload:   json.RawMessage(`{"reason":"card_declined"}`),
	})
	if err != nil {
		t.Fatalf("marshal envelope failed: %v", err)
	}

	msg := &sarama.ConsumerMessage{Topic: kafka.TopicPaymentEvents, Value: value}
	if err := env.handler.Handle(context.Background(), msg); err == nil {
		t.Fatal("expected error for payload without tenant and order")
	}
}
