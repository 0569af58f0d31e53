package checkout

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/gateway/payment"
	"github.com/vladislavdragonenkov/commerce/internal/gateway/stock"
	ledgersvc "github.com/vladislavdragonenkov/commerce/internal/service/ledger"
	"github.com/vladislavdragonenkov/commerce/internal/service/promotion"
	"github.com/vladislavdragonenkov/commerce/internal/service/settlement"
	"github.com/vladislavdragonenkov/commerce/internal/service/snapshot"
	"github.com/vladislavdragonenkov/commerce/internal/storage/memory"
)

type checkoutEnv struct {
	carts     domain.CartRepository
	orders    domain.OrderRepository
	payments  domain.PaymentRepository
	financial domain.FinancialOrderRepository
	invoices  domain.InvoiceRepository
	outbox    domain.OutboxRepository
	stock     *stock.MockGateway
	gateway   *payment.MockGateway
	orch      *Orchestrator
}

func newCheckoutEnv(t *testing.T, opts Options) *checkoutEnv {
	t.Helper()

	env := &checkoutEnv{
		carts:     memory.NewCartRepository(),
		orders:    memory.NewOrderRepository(),
		payments:  memory.NewPaymentRepository(),
		financial: memory.NewFinancialOrderRepository(),
		invoices:  memory.NewInvoiceRepository(),
		outbox:    memory.NewOutboxRepository(),
		stock:     stock.NewMockGateway(),
		gateway:   payment.NewMockGateway(),
	}

	resolver := promotion.NewResolver(memory.NewPromotionRepository(), nil)
	ledger := ledgersvc.NewService(memory.NewLedgerRepository(), nil)
	locker := snapshot.NewLocker(snapshot.TaxConfig{
		"test": {{Name: "VAT", RateBps: 2000}},
	}, nil)
	listener := settlement.NewListener(
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

	env.orch = NewOrchestratorWithoutMetrics(
		env.carts,
		env.orders,
		env.payments,
		env.financial,
		env.invoices,
		env.stock,
		env.gateway,
		resolver,
		locker,
		"test",
		ledger,
		listener,
		env.outbox,
		memory.NewTxRunner(),
		opts,
		nil,
	)
	return env
}

func testRequestContext() domain.RequestContext {
	return domain.RequestContext{TenantID: "tenant-1", Currency: "EUR", ActorID: "actor-1"}
}

func (e *checkoutEnv) seedCart(t *testing.T, qtyPrices ...int64) domain.Cart {
	t.Helper()
	if len(qtyPrices)%2 != 0 {
		t.Fatal("seedCart expects (qty, price) pairs")
	}

	now := time.Now().UTC()
	cart := domain.Cart{
		ID:            "cart-1",
		TenantID:      "tenant-1",
		CustomerID:    "cust-1",
		CustomerEmail: "buyer@example.com",
		Currency:      "EUR",
		Status:        domain.CartStatusActive,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for i := 0; i < len(qtyPrices); i += 2 {
		qty := int32(qtyPrices[i])
		price := qtyPrices[i+1]
		cart.Items = append(cart.Items, domain.CartItem{
			ID:             "item-" + string(rune('a'+i/2)),
			ProductID:      "sku-" + string(rune('a'+i/2)),
			Description:    "test item",
			Qty:            qty,
			UnitPriceMinor: price,
			TotalMinor:     int64(qty) * price,
			CreatedAt:      now,
		})
	}
	if err := e.carts.Create(context.Background(), cart); err != nil {
		t.Fatalf("seed cart: %v", err)
	}
	return cart
}

func TestCheckoutHappyPath(t *testing.T) {
	env := newCheckoutEnv(t, Options{})
	ctx := context.Background()
	rctx := testRequestContext()
	cart := env.seedCart(t, 2, 2500, 1, 5000)

	result, err := env.orch.Checkout(ctx, rctx, cart.ID, "stripe", nil)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if result.OrderID == "" || result.PaymentID == "" {
		t.Fatalf("missing identifiers in result: %+v", result)
	}
	// 10000 subtotal + 20% VAT: списывается сумма с налогом.
	if result.AmountMinor != 12000 {
		t.Fatalf("expected amount 12000, got %d", result.AmountMinor)
	}
	if result.ClientSecret == "" {
		t.Fatal("expected client secret for client-side confirmation")
	}

	order, err := env.orders.Get(ctx, rctx.TenantID, result.OrderID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("expected status pending, got %s", order.Status)
	}
	if order.SubtotalMinor != 10000 || order.TotalMinor != 12000 {
		t.Fatalf("unexpected order totals: subtotal=%d total=%d", order.SubtotalMinor, order.TotalMinor)
	}

	pay, err := env.payments.Get(ctx, rctx.TenantID, result.PaymentID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if pay.Status != domain.PaymentStatusAuthorized {
		t.Fatalf("expected status authorized, got %s", pay.Status)
	}
	if pay.ProviderRef == "" {
		t.Fatal("expected provider reference on intent")
	}

	converted, err := env.carts.Get(ctx, rctx.TenantID, cart.ID)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if converted.Status != domain.CartStatusConverted {
		t.Fatalf("cart was not converted: %s", converted.Status)
	}
	if converted.OrderID != result.OrderID {
		t.Fatalf("cart references order %q, expected %q", converted.OrderID, result.OrderID)
	}

	if env.stock.ValidateCalls != 1 || env.stock.ReserveCalls != 1 {
		t.Fatalf("expected validate=1 reserve=1, got %d/%d", env.stock.ValidateCalls, env.stock.ReserveCalls)
	}
	if env.stock.ReleaseCalls != 0 {
		t.Fatalf("compensation must not run on success, release=%d", env.stock.ReleaseCalls)
	}
}

func TestCheckoutInsufficientStockFailsFast(t *testing.T) {
	env := newCheckoutEnv(t, Options{})
	ctx := context.Background()
	rctx := testRequestContext()
	cart := env.seedCart(t, 5, 1000)

	env.stock.ValidateErr = domain.ErrInsufficientStock

	_, err := env.orch.Checkout(ctx, rctx, cart.ID, "stripe", nil)
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if env.stock.ReserveCalls != 0 {
		t.Fatalf("reserve must not run after failed validation, reserve=%d", env.stock.ReserveCalls)
	}
	if env.gateway.IntentCalls != 0 {
		t.Fatalf("intent must not be created, calls=%d", env.gateway.IntentCalls)
	}

	unchanged, err := env.carts.Get(ctx, rctx.TenantID, cart.ID)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if unchanged.Status != domain.CartStatusActive {
		t.Fatalf("cart must stay active, got %s", unchanged.Status)
	}
}

func TestCheckoutPaymentFailureReleasesReservation(t *testing.T) {
	env := newCheckoutEnv(t, Options{})
	ctx := context.Background()
	rctx := testRequestContext()
	cart := env.seedCart(t, 1, 9900)

	env.gateway.IntentErr = errors.New("provider unavailable")

	_, err := env.orch.Checkout(ctx, rctx, cart.ID, "stripe", nil)
	if !errors.Is(err, domain.ErrPaymentInitFailed) {
		t.Fatalf("expected ErrPaymentInitFailed, got %v", err)
	}
	if env.stock.ReserveCalls != 1 || env.stock.ReleaseCalls != 1 {
		t.Fatalf("expected reserve=1 release=1, got %d/%d", env.stock.ReserveCalls, env.stock.ReleaseCalls)
	}

	unchanged, err := env.carts.Get(ctx, rctx.TenantID, cart.ID)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if unchanged.Status != domain.CartStatusActive {
		t.Fatalf("cart conversion must roll back, got %s", unchanged.Status)
	}
}

func TestCheckoutCompensationFailureNotReturned(t *testing.T) {
	env := newCheckoutEnv(t, Options{})
	ctx := context.Background()
	rctx := testRequestContext()
	cart := env.seedCart(t, 1, 1500)

	env.gateway.IntentErr = errors.New("provider unavailable")
	env.stock.ReleaseErr = errors.New("stock service down")

	_, err := env.orch.Checkout(ctx, rctx, cart.ID, "stripe", nil)
	if !errors.Is(err, domain.ErrPaymentInitFailed) {
		t.Fatalf("caller must get the original error, not the compensation error: %v", err)
	}
	if env.stock.ReleaseCalls != 1 {
		t.Fatalf("expected a compensation attempt, release=%d", env.stock.ReleaseCalls)
	}
}

func TestCheckoutDeferredReservation(t *testing.T) {
	env := newCheckoutEnv(t, Options{DeferredReservation: true})
	ctx := context.Background()
	rctx := testRequestContext()
	cart := env.seedCart(t, 3, 700)

	if _, err := env.orch.Checkout(ctx, rctx, cart.ID, "stripe", nil); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if env.stock.ReserveCalls != 0 {
		t.Fatalf("flat reserve must not be used, reserve=%d", env.stock.ReserveCalls)
	}
	if env.stock.AllocateCalls != 1 {
		t.Fatalf("expected per-order allocation, allocate=%d", env.stock.AllocateCalls)
	}
}

func TestCheckoutDeferredReservationCompensation(t *testing.T) {
	env := newCheckoutEnv(t, Options{DeferredReservation: true})
	ctx := context.Background()
	rctx := testRequestContext()
	cart := env.seedCart(t, 3, 700)

	env.gateway.IntentErr = errors.New("provider unavailable")

	if _, err := env.orch.Checkout(ctx, rctx, cart.ID, "stripe", nil); err == nil {
		t.Fatal("expected checkout error")
	}
	if env.stock.DeallocCalls != 1 {
		t.Fatalf("expected allocation release, dealloc=%d", env.stock.DeallocCalls)
	}
	if env.stock.ReleaseCalls != 0 {
		t.Fatalf("flat release must not run in allocation mode, release=%d", env.stock.ReleaseCalls)
	}
}

// checkoutAndSettle проводит полный цикл до оплаченного заказа.
func checkoutAndSettle(t *testing.T, env *checkoutEnv, rctx domain.RequestContext) Result {
	t.Helper()
	ctx := context.Background()

	result, err := env.orch.Checkout(ctx, rctx, "cart-1", "stripe", nil)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if err := env.orch.ConfirmPayment(ctx, rctx, result.PaymentID, "ch_settled"); err != nil {
		t.Fatalf("confirm payment: %v", err)
	}
	return result
}

func TestRefundFullAmount(t *testing.T) {
	env := newCheckoutEnv(t, Options{})
	ctx := context.Background()
	rctx := testRequestContext()
	env.seedCart(t, 2, 5000)

	result := checkoutAndSettle(t, env, rctx)

	if err := env.orch.Refund(ctx, rctx, result.OrderID, 0, "customer request"); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if env.gateway.RefundCalls != 1 {
		t.Fatalf("expected a single provider call, refund=%d", env.gateway.RefundCalls)
	}
	if env.gateway.LastRefundAmount != result.AmountMinor {
		t.Fatalf("full refund must return %d, requested %d", result.AmountMinor, env.gateway.LastRefundAmount)
	}
	// Ключ детерминирован по (заказ, сумма): повтор после сбоя локальной
	// транзакции уходит провайдеру с тем же ключом.
	wantKey := fmt.Sprintf("refund-%s-%d", result.OrderID, result.AmountMinor)
	if env.gateway.LastRefundKey != wantKey {
		t.Fatalf("expected idempotency key %q, got %q", wantKey, env.gateway.LastRefundKey)
	}

	pay, err := env.payments.Get(ctx, rctx.TenantID, result.PaymentID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if pay.Status != domain.PaymentStatusRefunded {
		t.Fatalf("expected status refunded, got %s", pay.Status)
	}

	order, err := env.orders.Get(ctx, rctx.TenantID, result.OrderID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if order.Status != domain.OrderStatusRefunded {
		t.Fatalf("expected status refunded, got %s", order.Status)
	}

	fo, err := env.financial.GetByOrder(ctx, rctx.TenantID, result.OrderID)
	if err != nil {
		t.Fatalf("get financial order: %v", err)
	}
	if fo.Status != domain.FinancialOrderStatusRefunded {
		t.Fatalf("expected financial status refunded, got %s", fo.Status)
	}

	invoice, ok, err := env.invoices.GetByFinancialOrder(ctx, rctx.TenantID, fo.ID)
	if err != nil {
		t.Fatalf("get invoice: %v", err)
	}
	if !ok {
		t.Fatal("settlement must have issued an invoice")
	}
	if invoice.Status != domain.InvoiceStatusCredited {
		t.Fatalf("full refund must credit the invoice, got %s", invoice.Status)
	}
	credited, err := env.invoices.CreditedTotal(ctx, invoice.ID)
	if err != nil {
		t.Fatalf("credited total: %v", err)
	}
	if credited != invoice.TotalMinor {
		t.Fatalf("credit notes must cover the invoice total: %d != %d", credited, invoice.TotalMinor)
	}

	pending, err := env.outbox.PullPending(ctx, 100)
	if err != nil {
		t.Fatalf("pull pending: %v", err)
	}
	var refundEvents int
	for _, msg := range pending {
		if msg.EventType == domain.EventOrderRefunded {
			refundEvents++
		}
	}
	if refundEvents != 1 {
		t.Fatalf("expected exactly one OrderRefunded event, got %d", refundEvents)
	}
}

func TestRefundExceedsPaidRejected(t *testing.T) {
	env := newCheckoutEnv(t, Options{})
	ctx := context.Background()
	rctx := testRequestContext()
	env.seedCart(t, 1, 4000)

	result := checkoutAndSettle(t, env, rctx)

	err := env.orch.Refund(ctx, rctx, result.OrderID, result.AmountMinor+1, "too much")
	if !errors.Is(err, domain.ErrRefundExceedsPaid) {
		t.Fatalf("expected ErrRefundExceedsPaid, got %v", err)
	}
	if env.gateway.RefundCalls != 0 {
		t.Fatalf("provider must not be called for a rejected refund, refund=%d", env.gateway.RefundCalls)
	}
}

func TestRefundWithoutSettledPayment(t *testing.T) {
	env := newCheckoutEnv(t, Options{})
	ctx := context.Background()
	rctx := testRequestContext()
	env.seedCart(t, 1, 4000)

	result, err := env.orch.Checkout(ctx, rctx, "cart-1", "stripe", nil)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	err = env.orch.Refund(ctx, rctx, result.OrderID, 0, "no settlement yet")
	if !errors.Is(err, domain.ErrRefundExceedsPaid) {
		t.Fatalf("expected ErrRefundExceedsPaid without settled payments, got %v", err)
	}
}
