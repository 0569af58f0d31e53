package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	ledgersvc "github.com/vladislavdragonenkov/commerce/internal/service/ledger"
	"github.com/vladislavdragonenkov/commerce/internal/service/promotion"
	"github.com/vladislavdragonenkov/commerce/internal/service/snapshot"
)

// Listener обрабатывает подтверждение оплаты: в одной транзакции переводит
// платёж и заказ в оплаченные, замораживает финансовый заказ, выставляет
// счёт, делает проводку в книге, учитывает применение акций и ставит
// события в outbox. Каждый шаг идемпотентен, поэтому redelivery безопасен.
type Listener struct {
	payments     domain.PaymentRepository
	orders       domain.OrderRepository
	financial    domain.FinancialOrderRepository
	invoices     domain.InvoiceRepository
	locker       *snapshot.Locker
	ledger       *ledgersvc.Service
	promotions   *promotion.Resolver
	outbox       domain.OutboxRepository
	txRunner     domain.TxRunner
	jurisdiction string
	logger       *log.Entry
	now          func() time.Time
}

// NewListener создаёт слушатель платёжных событий.
func NewListener(
	payments domain.PaymentRepository,
	orders domain.OrderRepository,
	financial domain.FinancialOrderRepository,
	invoices domain.InvoiceRepository,
	locker *snapshot.Locker,
	ledger *ledgersvc.Service,
	promotions *promotion.Resolver,
	outbox domain.OutboxRepository,
	txRunner domain.TxRunner,
	jurisdiction string,
	logger *log.Entry,
) *Listener {
	if logger == nil {
		logger = log.New().WithField("component", "settlement")
	}
	return &Listener{
		payments:     payments,
		orders:       orders,
		financial:    financial,
		invoices:     invoices,
		locker:       locker,
		ledger:       ledger,
		promotions:   promotions,
		outbox:       outbox,
		txRunner:     txRunner,
		jurisdiction: jurisdiction,
		logger:       logger,
		now:          time.Now,
	}
}

// HandlePaymentSucceeded — слушатель события "оплата прошла". Компенсации
// здесь нет: деньги у провайдера уже двинулись, задача — довести локальное
// состояние до согласованного. Повторный вызов с тем же платежом ничего
// не меняет.
func (l *Listener) HandlePaymentSucceeded(ctx context.Context, rctx domain.RequestContext, paymentID, providerRef string) error {
	return l.txRunner.RunInTx(ctx, func(ctx context.Context) error {
		now := l.now().UTC()

		payment, err := l.payments.Get(ctx, rctx.TenantID, paymentID)
		if err != nil {
			return err
		}
		if payment.Status == domain.PaymentStatusSucceeded {
			l.logger.WithField("payment_id", paymentID).Debug("payment already settled")
			return nil
		}
		if err := payment.Transition(domain.PaymentStatusSucceeded, now); err != nil {
			return err
		}
		if providerRef != "" {
			payment.ProviderRef = providerRef
		}
		if err := l.payments.Save(ctx, payment); err != nil {
			return err
		}

		order, err := l.orders.Get(ctx, rctx.TenantID, payment.OrderID)
		if err != nil {
			return err
		}
		if err := l.advanceOrderToPaid(ctx, &order, now); err != nil {
			return err
		}

		fo, err := l.ensureFinancialOrder(ctx, rctx, order, now)
		if err != nil {
			return err
		}

		if !fo.Locked() {
			if err := l.locker.Lock(rctx, &fo, order, l.jurisdiction, order.DiscountMinor); err != nil {
				return err
			}
		}
		fo.MarkPaid(now)
		// Единственный Save: заморозка и оплата уходят одной записью, второй
		// Save споткнулся бы о проверку версии.
		if err := l.financial.Save(ctx, fo); err != nil {
			return err
		}

		if err := l.ensureInvoice(ctx, rctx, fo, now); err != nil {
			return err
		}

		if _, err := l.ledger.PostOrderPaid(ctx, rctx, fo, payment.ProviderRef); err != nil {
			return err
		}

		for _, applied := range order.AppliedPromotions {
			usage := domain.PromotionUsage{
				ID:          uuid.NewString(),
				TenantID:    rctx.TenantID,
				PromotionID: applied.PromotionID,
				OrderID:     order.ID,
				CustomerID:  order.CustomerID,
				CreatedAt:   now,
			}
			if err := l.promotions.RecordUsage(ctx, usage); err != nil {
				return err
			}
		}

		if err := l.emitPaidEvents(ctx, order, fo, payment, now); err != nil {
			return err
		}

		l.logger.WithFields(log.Fields{
			"tenant_id":  rctx.TenantID,
			"order_id":   order.ID,
			"payment_id": payment.ID,
		}).Info("payment settled")
		return nil
	})
}

// HandlePaymentFailed переводит платёж и финансовый заказ в failed.
// Дальнейшая политика (grace period, приостановка) — внешнее решение,
// наружу уходит только событие.
func (l *Listener) HandlePaymentFailed(ctx context.Context, rctx domain.RequestContext, paymentID, reason string) error {
	return l.txRunner.RunInTx(ctx, func(ctx context.Context) error {
		now := l.now().UTC()

		payment, err := l.payments.Get(ctx, rctx.TenantID, paymentID)
		if err != nil {
			return err
		}
		if payment.Status == domain.PaymentStatusFailed {
			return nil
		}
		if err := payment.Transition(domain.PaymentStatusFailed, now); err != nil {
			return err
		}
		if err := l.payments.Save(ctx, payment); err != nil {
			return err
		}

		fo, err := l.financial.GetByOrder(ctx, rctx.TenantID, payment.OrderID)
		if err == nil {
			fo.MarkFailed(now)
			if err := l.financial.Save(ctx, fo); err != nil {
				return err
			}
		} else if !errors.Is(err, domain.ErrFinancialOrderNotFound) {
			return err
		}

		payload, err := json.Marshal(domain.PaymentFailedEvent{
			TenantID:   rctx.TenantID,
			OrderID:    payment.OrderID,
			PaymentID:  payment.ID,
			Reason:     reason,
			OccurredAt: now.Format(time.RFC3339Nano),
		})
		if err != nil {
			return fmt.Errorf("marshal payment failed event: %w", err)
		}
		_, err = l.outbox.Enqueue(ctx, domain.OutboxMessage{
			AggregateType: "payment",
			AggregateID:   payment.ID,
			EventType:     domain.EventPaymentFailed,
			Payload:       payload,
		})
		return err
	})
}

// advanceOrderToPaid доводит заказ до paid через допустимые переходы.
func (l *Listener) advanceOrderToPaid(ctx context.Context, order *domain.Order, now time.Time) error {
	if order.Status == domain.OrderStatusPaid {
		return nil
	}
	if order.Status == domain.OrderStatusPending {
		if err := order.Transition(domain.OrderStatusConfirmed, now); err != nil {
			return err
		}
	}
	if err := order.Transition(domain.OrderStatusPaid, now); err != nil {
		return err
	}
	return l.orders.Save(ctx, *order)
}

// ensureFinancialOrder синхронизирует финансовый заказ из операционного,
// создавая draft-запись при первом обращении.
func (l *Listener) ensureFinancialOrder(ctx context.Context, rctx domain.RequestContext, order domain.Order, now time.Time) (domain.FinancialOrder, error) {
	fo, err := l.financial.GetByOrder(ctx, rctx.TenantID, order.ID)
	if err == nil {
		return fo, nil
	}
	if !errors.Is(err, domain.ErrFinancialOrderNotFound) {
		return domain.FinancialOrder{}, err
	}

	fo = domain.FinancialOrder{
		ID:        uuid.NewString(),
		TenantID:  rctx.TenantID,
		OrderID:   order.ID,
		Currency:  order.Currency,
		Status:    domain.FinancialOrderStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := l.financial.Create(ctx, fo); err != nil {
		return domain.FinancialOrder{}, err
	}
	return fo, nil
}

// ensureInvoice выставляет счёт по зафиксированному snapshot, если его ещё нет.
func (l *Listener) ensureInvoice(ctx context.Context, rctx domain.RequestContext, fo domain.FinancialOrder, now time.Time) error {
	_, found, err := l.invoices.GetByFinancialOrder(ctx, rctx.TenantID, fo.ID)
	if err != nil {
		return err
	}
	if found {
		return nil
	}

	invoice := domain.Invoice{
		ID:               uuid.NewString(),
		TenantID:         rctx.TenantID,
		FinancialOrderID: fo.ID,
		Number:           fmt.Sprintf("INV-%s", fo.OrderID),
		Currency:         fo.Currency,
		TotalMinor:       fo.TotalMinor,
		Status:           domain.InvoiceStatusIssued,
		IssuedAt:         now,
		CreatedAt:        now,
	}
	return l.invoices.Create(ctx, invoice)
}

func (l *Listener) emitPaidEvents(ctx context.Context, order domain.Order, fo domain.FinancialOrder, payment domain.Payment, now time.Time) error {
	paid, err := json.Marshal(domain.OrderPaidEvent{
		TenantID:    order.TenantID,
		OrderID:     order.ID,
		CustomerID:  order.CustomerID,
		Currency:    fo.Currency,
		TotalMinor:  fo.TotalMinor,
		ProviderRef: payment.ProviderRef,
		OccurredAt:  now.Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal order paid event: %w", err)
	}
	if _, err := l.outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     domain.EventOrderPaid,
		Payload:       paid,
	}); err != nil {
		return err
	}

	locked, err := json.Marshal(domain.OrderLockedEvent{
		TenantID:         order.TenantID,
		OrderID:          order.ID,
		FinancialOrderID: fo.ID,
		SnapshotHash:     fo.SnapshotHash,
		TotalMinor:       fo.TotalMinor,
		OccurredAt:       now.Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal order locked event: %w", err)
	}
	_, err = l.outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: "financial_order",
		AggregateID:   fo.ID,
		EventType:     domain.EventOrderLocked,
		Payload:       locked,
	})
	return err
}
