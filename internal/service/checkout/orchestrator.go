package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/metrics"
	ledgersvc "github.com/vladislavdragonenkov/commerce/internal/service/ledger"
	"github.com/vladislavdragonenkov/commerce/internal/service/promotion"
	"github.com/vladislavdragonenkov/commerce/internal/service/settlement"
	"github.com/vladislavdragonenkov/commerce/internal/service/snapshot"
)

// Result — клиентская часть успешного чекаута.
type Result struct {
	OrderID      string
	PaymentID    string
	ClientSecret string
	AmountMinor  int64
	Currency     string
}

// Options настраивает поведение саги.
type Options struct {
	// DeferredReservation переключает склад с плоского резерва до заказа
	// на аллокацию под конкретный заказ внутри транзакции. Это выбор
	// конфигурации, а не изменение протокола.
	DeferredReservation bool
}

// Orchestrator — верхнеуровневая сага чекаута: валидация и резерв стока,
// создание заказа, расчёт скидок, создание payment intent и конверсия
// корзины, с компенсацией резерва при любом сбое после него.
type Orchestrator struct {
	carts     domain.CartRepository
	orders    domain.OrderRepository
	payments  domain.PaymentRepository
	financial domain.FinancialOrderRepository
	invoices  domain.InvoiceRepository
	stock     domain.StockGateway
	gateway   domain.PaymentGateway
	resolver  *promotion.Resolver
	locker    *snapshot.Locker
	// jurisdiction задаёт налоговые ставки, по которым сага котирует сумму
	// списания; слушатель оплаты замораживает итоги по той же конфигурации.
	jurisdiction string
	ledger       *ledgersvc.Service
	settlement   *settlement.Listener
	outbox       domain.OutboxRepository
	txRunner     domain.TxRunner
	opts         Options
	logger       *log.Entry
	metrics      *metrics.CheckoutMetrics
	now          func() time.Time
}

// NewOrchestrator создаёт рабочий экземпляр саги.
func NewOrchestrator(
	carts domain.CartRepository,
	orders domain.OrderRepository,
	payments domain.PaymentRepository,
	financial domain.FinancialOrderRepository,
	invoices domain.InvoiceRepository,
	stock domain.StockGateway,
	gateway domain.PaymentGateway,
	resolver *promotion.Resolver,
	locker *snapshot.Locker,
	jurisdiction string,
	ledger *ledgersvc.Service,
	settlementListener *settlement.Listener,
	outbox domain.OutboxRepository,
	txRunner domain.TxRunner,
	opts Options,
	logger *log.Entry,
) *Orchestrator {
	if logger == nil {
		logger = log.New().WithField("component", "checkout")
	}
	return &Orchestrator{
		carts:        carts,
		orders:       orders,
		payments:     payments,
		financial:    financial,
		invoices:     invoices,
		stock:        stock,
		gateway:      gateway,
		resolver:     resolver,
		locker:       locker,
		jurisdiction: jurisdiction,
		ledger:       ledger,
		settlement:   settlementListener,
		outbox:       outbox,
		txRunner:     txRunner,
		opts:         opts,
		logger:       logger,
		metrics:      metrics.NewCheckoutMetrics(),
		now:          time.Now,
	}
}

// NewOrchestratorWithoutMetrics создаёт оркестратор без метрик (для тестов).
func NewOrchestratorWithoutMetrics(
	carts domain.CartRepository,
	orders domain.OrderRepository,
	payments domain.PaymentRepository,
	financial domain.FinancialOrderRepository,
	invoices domain.InvoiceRepository,
	stock domain.StockGateway,
	gateway domain.PaymentGateway,
	resolver *promotion.Resolver,
	locker *snapshot.Locker,
	jurisdiction string,
	ledger *ledgersvc.Service,
	settlementListener *settlement.Listener,
	outbox domain.OutboxRepository,
	txRunner domain.TxRunner,
	opts Options,
	logger *log.Entry,
) *Orchestrator {
	o := NewOrchestrator(carts, orders, payments, financial, invoices, stock, gateway, resolver, locker, jurisdiction, ledger, settlementListener, outbox, txRunner, opts, logger)
	o.metrics = nil
	return o
}

// Checkout выполняет сагу чекаута. Нарушения предусловий возвращаются
// типизированными ошибками до любых побочных эффектов. После резервирования
// стока любой сбой — включая неизвестный исход создания intent — компенсируется
// снятием резерва до возврата ошибки вызывающему: ложное снятие, требующее
// повторной попытки покупателя, предпочтительнее подвисшего платежа без заказа.
func (o *Orchestrator) Checkout(ctx context.Context, rctx domain.RequestContext, cartID, provider string, couponCodes []string) (Result, error) {
	start := o.now()
	if o.metrics != nil {
		o.metrics.RecordCheckoutStarted()
	}
	defer func() {
		if o.metrics != nil {
			o.metrics.RecordCheckoutDuration(time.Since(start))
		}
	}()

	cart, err := o.carts.Get(ctx, rctx.TenantID, cartID)
	if err != nil {
		return o.fail(err)
	}
	if err := cart.ValidateForCheckout(); err != nil {
		return o.fail(err)
	}

	items := stockItems(cart)

	// Шаг 1: проверка доступности без резерва; падаем быстро с указанием
	// дефицитной позиции.
	if err := o.stock.Validate(ctx, items); err != nil {
		return o.fail(err)
	}

	// Шаг 2: плоский резерв. В режиме отложенной аллокации резерв
	// выполняется внутри транзакции против id заказа.
	reserved := false
	if !o.opts.DeferredReservation {
		if err := o.stock.Reserve(ctx, items); err != nil {
			return o.fail(err)
		}
		reserved = true
	}

	orderID := uuid.NewString()
	var result Result

	// Шаг 3: одна транзакция БД — заказ, скидки, payment intent, конверсия
	// корзины. Конкурентный читатель никогда не видит полусозданный заказ.
	txErr := o.txRunner.RunInTx(ctx, func(ctx context.Context) error {
		now := o.now().UTC()

		order := orderFromCart(orderID, rctx, cart, now)

		if o.opts.DeferredReservation {
			if err := o.stock.AllocateForOrder(ctx, orderID, items); err != nil {
				return err
			}
			reserved = true
		}

		candidates, err := o.resolver.ActiveForCart(ctx, rctx, couponCodes, cart.CustomerID)
		if err != nil {
			return err
		}
		applied, discount := promotion.Evaluate(now, order.SubtotalMinor, cart.Items, candidates)
		order.AppliedPromotions = applied
		order.DiscountMinor = discount

		// Сумма списания котируется по тем же ставкам, по которым слушатель
		// оплаты позже заморозит итоги: иначе cash в книге разойдётся с
		// фактически списанной суммой.
		total, err := o.locker.Quote(order, o.jurisdiction, discount)
		if err != nil {
			return err
		}
		order.TotalMinor = total

		if errs := order.ValidateInvariants(); len(errs) > 0 {
			return errors.Join(errs...)
		}
		if err := o.orders.Create(ctx, order); err != nil {
			return err
		}

		payment := domain.Payment{
			ID:          uuid.NewString(),
			TenantID:    rctx.TenantID,
			OrderID:     order.ID,
			Provider:    provider,
			Status:      domain.PaymentStatusPending,
			AmountMinor: order.TotalMinor,
			Currency:    order.Currency,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		if errs := payment.Validate(); len(errs) > 0 {
			return errors.Join(errs...)
		}

		intent, err := o.gateway.CreateIntent(ctx, payment, map[string]string{
			"tenant_id": rctx.TenantID,
			"order_id":  order.ID,
			"cart_id":   cart.ID,
		})
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrPaymentInitFailed, err)
		}
		payment.ProviderRef = intent.ProviderPaymentID
		payment.ClientSecret = intent.ClientSecret
		if err := payment.Transition(domain.PaymentStatusAuthorized, now); err != nil {
			return err
		}
		if err := o.payments.Create(ctx, payment); err != nil {
			return err
		}

		if err := cart.MarkConverted(order.ID, now); err != nil {
			return err
		}
		if err := o.carts.Save(ctx, cart); err != nil {
			return err
		}

		result = Result{
			OrderID:      order.ID,
			PaymentID:    payment.ID,
			ClientSecret: payment.ClientSecret,
			AmountMinor:  payment.AmountMinor,
			Currency:     payment.Currency,
		}
		return nil
	})

	if txErr != nil {
		if reserved {
			o.compensate(ctx, orderID, items)
		}
		return o.fail(txErr)
	}

	if o.metrics != nil {
		o.metrics.RecordCheckoutCompleted()
	}
	o.logger.WithFields(log.Fields{
		"tenant_id": rctx.TenantID,
		"cart_id":   cartID,
		"order_id":  result.OrderID,
		"amount":    result.AmountMinor,
	}).Info("checkout completed")

	return result, nil
}

// ConfirmPayment переводит платёж в succeeded по подтверждению провайдера.
// Выполняется в одной транзакции; компенсации нет — к этому моменту деньги
// у провайдера уже двинулись.
func (o *Orchestrator) ConfirmPayment(ctx context.Context, rctx domain.RequestContext, paymentID, providerRef string) error {
	return o.settlement.HandlePaymentSucceeded(ctx, rctx, paymentID, providerRef)
}

// Refund инициирует возврат. Сумма, превышающая сумму завершённых платежей,
// отклоняется до обращения к провайдеру; amountMinor <= 0 означает полный
// возврат. Создаётся ровно одна refund-транзакция на запрошенную сумму.
func (o *Orchestrator) Refund(ctx context.Context, rctx domain.RequestContext, orderID string, amountMinor int64, reason string) error {
	if o.metrics != nil {
		o.metrics.RecordRefund()
	}

	order, err := o.orders.Get(ctx, rctx.TenantID, orderID)
	if err != nil {
		return err
	}

	payments, err := o.payments.ListByOrder(ctx, rctx.TenantID, orderID)
	if err != nil {
		return err
	}

	var paid int64
	var source *domain.Payment
	for i := range payments {
		if payments[i].Status == domain.PaymentStatusSucceeded {
			paid += payments[i].AmountMinor
			if source == nil {
				source = &payments[i]
			}
		}
	}
	if source == nil {
		return domain.ErrRefundExceedsPaid
	}
	if amountMinor <= 0 {
		amountMinor = paid
	}
	if amountMinor > paid {
		return domain.ErrRefundExceedsPaid
	}

	// Ключ идемпотентности детерминирован по (заказ, сумма): если транзакция
	// после вызова провайдера упала, повтор уйдёт с тем же ключом и провайдер
	// не проведёт второй возврат.
	refundKey := fmt.Sprintf("refund-%s-%d", orderID, amountMinor)
	providerRef, err := o.gateway.Refund(ctx, *source, amountMinor, refundKey)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPaymentInitFailed, err)
	}

	return o.txRunner.RunInTx(ctx, func(ctx context.Context) error {
		now := o.now().UTC()

		if err := source.Transition(domain.PaymentStatusRefunded, now); err != nil {
			return err
		}
		if err := o.payments.Save(ctx, *source); err != nil {
			return err
		}

		if err := order.Transition(domain.OrderStatusRefunded, now); err != nil {
			return err
		}
		if err := o.orders.Save(ctx, order); err != nil {
			return err
		}

		fo, err := o.financial.GetByOrder(ctx, rctx.TenantID, orderID)
		if err != nil {
			return err
		}
		fo.MarkRefunded(now)
		if err := o.financial.Save(ctx, fo); err != nil {
			return err
		}

		if err := o.issueCreditNote(ctx, rctx, fo.ID, amountMinor, reason, now); err != nil {
			return err
		}

		if _, err := o.ledger.PostOrderRefunded(ctx, rctx, fo, amountMinor, providerRef); err != nil {
			return err
		}

		payload, err := json.Marshal(domain.OrderRefundedEvent{
			TenantID:    rctx.TenantID,
			OrderID:     orderID,
			Currency:    fo.Currency,
			AmountMinor: amountMinor,
			ProviderRef: providerRef,
			Reason:      reason,
			OccurredAt:  now.Format(time.RFC3339Nano),
		})
		if err != nil {
			return fmt.Errorf("marshal order refunded event: %w", err)
		}
		if _, err := o.outbox.Enqueue(ctx, domain.OutboxMessage{
			AggregateType: "order",
			AggregateID:   orderID,
			EventType:     domain.EventOrderRefunded,
			Payload:       payload,
		}); err != nil {
			return err
		}
		if o.metrics != nil {
			o.metrics.RecordOutboxEvent()
		}

		o.logger.WithFields(log.Fields{
			"tenant_id": rctx.TenantID,
			"order_id":  orderID,
			"amount":    amountMinor,
		}).Info("order refunded")
		return nil
	})
}

// issueCreditNote выписывает кредит-ноту по счёту заказа. Счёт неизменяем
// после выставления, поэтому возврат фиксируется корректировкой. Суммарные
// кредит-ноты не могут превысить итог счёта; при полном покрытии счёт
// переводится в credited.
func (o *Orchestrator) issueCreditNote(ctx context.Context, rctx domain.RequestContext, financialOrderID string, amountMinor int64, reason string, now time.Time) error {
	invoice, ok, err := o.invoices.GetByFinancialOrder(ctx, rctx.TenantID, financialOrderID)
	if err != nil {
		return err
	}
	if !ok {
		// Заказ мог быть возвращён до выставления счёта; корректировать нечего.
		return nil
	}

	credited, err := o.invoices.CreditedTotal(ctx, invoice.ID)
	if err != nil {
		return err
	}
	if err := invoice.ValidateCreditNote(amountMinor, credited); err != nil {
		return err
	}

	if err := o.invoices.CreateCreditNote(ctx, domain.CreditNote{
		ID:          uuid.NewString(),
		TenantID:    rctx.TenantID,
		InvoiceID:   invoice.ID,
		AmountMinor: amountMinor,
		Reason:      reason,
		CreatedAt:   now,
	}); err != nil {
		return err
	}

	if credited+amountMinor == invoice.TotalMinor {
		invoice.Status = domain.InvoiceStatusCredited
		if err := o.invoices.Save(ctx, invoice); err != nil {
			return err
		}
	}
	return nil
}

// compensate снимает резерв или аллокацию. Ошибки компенсации логируются,
// но никогда не возвращаются: частичное снятие лучше, чем нерешённый
// запрос вызывающего.
func (o *Orchestrator) compensate(ctx context.Context, orderID string, items []domain.StockItem) {
	if o.metrics != nil {
		o.metrics.RecordCompensation()
	}

	var err error
	if o.opts.DeferredReservation {
		err = o.stock.ReleaseAllocation(ctx, orderID, items)
	} else {
		err = o.stock.Release(ctx, items)
	}
	if err != nil {
		o.logger.WithError(err).WithField("order_id", orderID).Error("stock compensation failed")
	}
}

func (o *Orchestrator) fail(err error) (Result, error) {
	if o.metrics != nil {
		o.metrics.RecordCheckoutFailed()
	}
	return Result{}, err
}

func stockItems(cart domain.Cart) []domain.StockItem {
	items := make([]domain.StockItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, domain.StockItem{ProductID: item.ProductID, Qty: item.Qty})
	}
	return items
}

func orderFromCart(orderID string, rctx domain.RequestContext, cart domain.Cart, now time.Time) domain.Order {
	order := domain.Order{
		ID:            orderID,
		TenantID:      rctx.TenantID,
		CartID:        cart.ID,
		CustomerID:    cart.CustomerID,
		CustomerEmail: cart.CustomerEmail,
		Status:        domain.OrderStatusPending,
		Currency:      cart.Currency,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, item := range cart.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ID:             uuid.NewString(),
			ProductID:      item.ProductID,
			Description:    item.Description,
			Qty:            item.Qty,
			UnitPriceMinor: item.UnitPriceMinor,
			TotalMinor:     item.TotalMinor,
			CreatedAt:      now,
		})
		order.SubtotalMinor += item.TotalMinor
	}
	order.TotalMinor = order.SubtotalMinor
	return order
}
