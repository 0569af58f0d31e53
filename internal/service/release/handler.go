// Package release освобождает складской резерв по событиям окончательного
// отказа оплаты. Сага чекаута снимает резерв только при ошибках внутри
// самого чекаута; если платёж падает уже после создания заказа, резерв
// остаётся висеть до этого слушателя.
package release

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/messaging/kafka"
)

// Handler — consumer-обработчик топика платёжных событий. На PaymentFailed
// отменяет заказ и возвращает его позиции на склад; остальные события
// топика пропускает.
type Handler struct {
	orders   domain.OrderRepository
	stock    domain.StockGateway
	txRunner domain.TxRunner
	deferred bool
	logger   *log.Entry
	now      func() time.Time
}

// NewHandler создаёт обработчик. deferred должен совпадать с режимом
// резервирования саги чекаута: от него зависит способ снятия резерва.
func NewHandler(
	orders domain.OrderRepository,
	stock domain.StockGateway,
	txRunner domain.TxRunner,
	deferred bool,
	logger *log.Entry,
) *Handler {
	if logger == nil {
		logger = log.WithField("component", "stock-release")
	}
	return &Handler{
		orders:   orders,
		stock:    stock,
		txRunner: txRunner,
		deferred: deferred,
		logger:   logger,
		now:      time.Now,
	}
}

// Handle реализует kafka.MessageHandler. Ошибка из Handle уводит сообщение
// в retry, а после исчерпания попыток — в DLQ.
func (h *Handler) Handle(ctx context.Context, message *sarama.ConsumerMessage) error {
	envelope, err := kafka.ParseEnvelope(message)
	if err != nil {
		return err
	}
	if envelope.EventType != domain.EventPaymentFailed {
		return nil
	}

	var event domain.PaymentFailedEvent
	if err := json.Unmarshal(envelope.Payload, &event); err != nil {
		return fmt.Errorf("unmarshal payment failed event: %w", err)
	}
	if event.TenantID == "" || event.OrderID == "" {
		return fmt.Errorf("payment failed event %s has no tenant or order", envelope.ID)
	}

	return h.txRunner.RunInTx(ctx, func(ctx context.Context) error {
		order, err := h.orders.Get(ctx, event.TenantID, event.OrderID)
		if errors.Is(err, domain.ErrOrderNotFound) {
			h.logger.WithFields(log.Fields{
				"tenant_id": event.TenantID,
				"order_id":  event.OrderID,
			}).Warn("payment failed for unknown order, skipping")
			return nil
		}
		if err != nil {
			return err
		}

		// Повторная доставка или поздний reject после успешной оплаты:
		// заказ уже ушёл дальше по жизненному циклу, резерв не трогаем.
		if !order.CanTransition(domain.OrderStatusCancelled) {
			return nil
		}

		if err := order.Transition(domain.OrderStatusCancelled, h.now().UTC()); err != nil {
			return err
		}
		if err := h.orders.Save(ctx, order); err != nil {
			return err
		}

		items := make([]domain.StockItem, 0, len(order.Items))
		for _, item := range order.Items {
			items = append(items, domain.StockItem{ProductID: item.ProductID, Qty: item.Qty})
		}
		if h.deferred {
			err = h.stock.ReleaseAllocation(ctx, order.ID, items)
		} else {
			err = h.stock.Release(ctx, items)
		}
		if err != nil {
			return err
		}

		h.logger.WithFields(log.Fields{
			"tenant_id": event.TenantID,
			"order_id":  event.OrderID,
			"reason":    event.Reason,
		}).Info("order cancelled, stock released")
		return nil
	})
}
