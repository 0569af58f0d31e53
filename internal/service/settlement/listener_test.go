package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	ledgersvc "github.com/vladislavdragonenkov/commerce/internal/service/ledger"
	"github.com/vladislavdragonenkov/commerce/internal/service/promotion"
	"github.com/vladislavdragonenkov/commerce/internal/service/snapshot"
	"github.com/vladislavdragonenkov/commerce/internal/storage/memory"
)

type listenerEnv struct {
	payments   domain.PaymentRepository
	orders     domain.OrderRepository
	financial  domain.FinancialOrderRepository
	invoices   domain.InvoiceRepository
	promotions domain.PromotionRepository
	outbox     domain.OutboxRepository
	listener   *Listener
}

func newListenerEnv(t *testing.T) *listenerEnv {
	t.Helper()

	env := &listenerEnv{
		payments:   memory.NewPaymentRepository(),
		orders:     memory.NewOrderRepository(),
		financial:  memory.NewFinancialOrderRepository(),
		invoices:   memory.NewInvoiceRepository(),
		promotions: memory.NewPromotionRepository(),
		outbox:     memory.NewOutboxRepository(),
	}

	locker := snapshot.NewLocker(snapshot.TaxConfig{
		"test": {{Name: "VAT", RateBps: 2000}},
	}, nil)
	ledger := ledgersvc.NewService(memory.NewLedgerRepository(), nil)
	resolver := promotion.NewResolver(env.promotions, nil)

	env.listener = NewListener(
		env.payments,
		env.orders,
		env.financial,
		env.invoices,
		locker,
		ledger,
		resolver,
		env.outbox,
		memory.NewTxRunner(),
		"test",
		nil,
	)
	return env
}

func (e *listenerEnv) seedOrderWithPayment(t *testing.T) (domain.Order, domain.Payment) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	order := domain.Order{
		ID:            "order-1",
		TenantID:      "tenant-1",
		CartID:        "cart-1",
		CustomerID:    "cust-1",
		CustomerEmail: "buyer@example.com",
		Status:        domain.OrderStatusPending,
		Currency:      "EUR",
		Items: []domain.OrderItem{
			{ID: "oi-1", ProductID: "sku-a", Qty: 2, UnitPriceMinor: 5000, TotalMinor: 10000, CreatedAt: now},
		},
		SubtotalMinor: 10000,
		TotalMinor:    10000,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.orders.Create(ctx, order); err != nil {
		t.Fatalf("seed order: %v", err)
	}

	payment := domain.Payment{
		ID:          "payment-1",
		TenantID:    "tenant-1",
		OrderID:     order.ID,
		Provider:    "stripe",
		Status:      domain.PaymentStatusAuthorized,
		AmountMinor: order.TotalMinor,
		Currency:    order.Currency,
		ProviderRef: "pi_payment-1",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.payments.Create(ctx, payment); err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	return order, payment
}

func listenerContext() domain.RequestContext {
	return domain.RequestContext{TenantID: "tenant-1", Currency: "EUR", ActorID: "webhook"}
}

func TestHandlePaymentSucceededSettlesOrder(t *testing.T) {
	env := newListenerEnv(t)
	ctx := context.Background()
	rctx := listenerContext()
	order, payment := env.seedOrderWithPayment(t)

	if err := env.listener.HandlePaymentSucceeded(ctx, rctx, payment.ID, "ch_1"); err != nil {
		t.Fatalf("handle payment succeeded: %v", err)
	}

	settled, err := env.payments.Get(ctx, rctx.TenantID, payment.ID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if settled.Status != domain.PaymentStatusSucceeded {
		t.Fatalf("expected status succeeded, got %s", settled.Status)
	}
	if settled.ProviderRef != "ch_1" {
		t.Fatalf("provider reference not updated: %q", settled.ProviderRef)
	}

	paid, err := env.orders.Get(ctx, rctx.TenantID, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if paid.Status != domain.OrderStatusPaid {
		t.Fatalf("expected status paid, got %s", paid.Status)
	}

	fo, err := env.financial.GetByOrder(ctx, rctx.TenantID, order.ID)
	if err != nil {
		t.Fatalf("get financial order: %v", err)
	}
	if !fo.Locked() {
		t.Fatal("financial order must be locked on settlement")
	}
	if fo.Status != domain.FinancialOrderStatusPaid {
		t.Fatalf("expected financial status paid, got %s", fo.Status)
	}
	if fo.SubtotalMinor != 10000 || fo.TaxTotalMinor != 2000 || fo.TotalMinor != 12000 {
		t.Fatalf("unexpected totals: subtotal=%d tax=%d total=%d", fo.SubtotalMinor, fo.TaxTotalMinor, fo.TotalMinor)
	}

	invoice, found, err := env.invoices.GetByFinancialOrder(ctx, rctx.TenantID, fo.ID)
	if err != nil {
		t.Fatalf("get invoice: %v", err)
	}
	if !found {
		t.Fatal("invoice must be issued")
	}
	if invoice.TotalMinor != fo.TotalMinor {
		t.Fatalf("invoice total %d, expected %d", invoice.TotalMinor, fo.TotalMinor)
	}

	pending, err := env.outbox.PullPending(ctx, 100)
	if err != nil {
		t.Fatalf("pull pending: %v", err)
	}
	types := map[string]int{}
	for _, msg := range pending {
		types[msg.EventType]++
	}
	if types[domain.EventOrderPaid] != 1 || types[domain.EventOrderLocked] != 1 {
		t.Fatalf("expected one OrderPaid and one OrderLocked event, got %v", types)
	}
}

func TestHandlePaymentSucceededSingleSave(t *testing.T) {
	env := newListenerEnv(t)
	ctx := context.Background()
	rctx := listenerContext()
	order, payment := env.seedOrderWithPayment(t)

	if err := env.listener.HandlePaymentSucceeded(ctx, rctx, payment.ID, "ch_1"); err != nil {
		t.Fatalf("handle payment succeeded: %v", err)
	}

	// Заморозка и оплата должны уйти в хранилище одной записью: версия
	// из хранилища актуальна и следующая запись не конфликтует.
	fo, err := env.financial.GetByOrder(ctx, rctx.TenantID, order.ID)
	if err != nil {
		t.Fatalf("get financial order: %v", err)
	}
	if !fo.Locked() || fo.Status != domain.FinancialOrderStatusPaid {
		t.Fatalf("expected locked and paid order, got locked=%v status=%s", fo.Locked(), fo.Status)
	}
	fo.MarkRefunded(time.Now().UTC())
	if err := env.financial.Save(ctx, fo); err != nil {
		t.Fatalf("follow-up save must not hit a version conflict: %v", err)
	}
}

func TestHandlePaymentSucceededIdempotent(t *testing.T) {
	env := newListenerEnv(t)
	ctx := context.Background()
	rctx := listenerContext()
	order, payment := env.seedOrderWithPayment(t)

	if err := env.listener.HandlePaymentSucceeded(ctx, rctx, payment.ID, "ch_1"); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := env.listener.HandlePaymentSucceeded(ctx, rctx, payment.ID, "ch_1"); err != nil {
		t.Fatalf("redelivery: %v", err)
	}

	pending, err := env.outbox.PullPending(ctx, 100)
	if err != nil {
		t.Fatalf("pull pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("redelivery must not enqueue new events, got %d", len(pending))
	}

	fo, err := env.financial.GetByOrder(ctx, rctx.TenantID, order.ID)
	if err != nil {
		t.Fatalf("get financial order: %v", err)
	}
	if fo.Status != domain.FinancialOrderStatusPaid {
		t.Fatalf("status after redelivery: %s", fo.Status)
	}
}

func TestHandlePaymentSucceededRecordsPromotionUsage(t *testing.T) {
	env := newListenerEnv(t)
	ctx := context.Background()
	rctx := listenerContext()
	order, payment := env.seedOrderWithPayment(t)

	order.AppliedPromotions = []domain.AppliedPromotion{
		{PromotionID: "promo-1", Code: "SAVE10", Type: domain.PromotionPercentage, DiscountMinor: 1000},
	}
	if err := env.orders.Save(ctx, order); err != nil {
		t.Fatalf("save order: %v", err)
	}

	if err := env.listener.HandlePaymentSucceeded(ctx, rctx, payment.ID, "ch_1"); err != nil {
		t.Fatalf("handle payment succeeded: %v", err)
	}

	exists, err := env.promotions.UsageExists(ctx, "promo-1", order.ID)
	if err != nil {
		t.Fatalf("usage exists: %v", err)
	}
	if !exists {
		t.Fatal("promotion usage must be recorded on settlement")
	}
}

func TestHandlePaymentFailed(t *testing.T) {
	env := newListenerEnv(t)
	ctx := context.Background()
	rctx := listenerContext()
	_, payment := env.seedOrderWithPayment(t)

	if err := env.listener.HandlePaymentFailed(ctx, rctx, payment.ID, "card_declined"); err != nil {
		t.Fatalf("handle payment failed: %v", err)
	}

	failed, err := env.payments.Get(ctx, rctx.TenantID, payment.ID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if failed.Status != domain.PaymentStatusFailed {
		t.Fatalf("expected status failed, got %s", failed.Status)
	}

	// Повторная доставка того же отказа ничего не меняет.
	if err := env.listener.HandlePaymentFailed(ctx, rctx, payment.ID, "card_declined"); err != nil {
		t.Fatalf("redelivery: %v", err)
	}

	pending, err := env.outbox.PullPending(ctx, 100)
	if err != nil {
		t.Fatalf("pull pending: %v", err)
	}
	var failedEvents int
	for _, msg := range pending {
		if msg.EventType == domain.EventPaymentFailed {
			failedEvents++
		}
	}
	if failedEvents != 1 {
		t.Fatalf("expected exactly one PaymentFailed event, got %d", failedEvents)
	}
}
