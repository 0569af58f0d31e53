package promotion

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// Resolver загружает акции по кодам купонов и отфильтровывает те, что не
// проходят по окну действия или лимитам использования. Evaluator получает
// уже пригодных кандидатов, но перепроверяет окно сам.
type Resolver struct {
	promotions domain.PromotionRepository
	logger     *log.Entry
	now        func() time.Time
}

// NewResolver создаёт резолвер акций.
func NewResolver(promotions domain.PromotionRepository, logger *log.Entry) *Resolver {
	if logger == nil {
		logger = log.New().WithField("component", "promotion-resolver")
	}
	return &Resolver{
		promotions: promotions,
		logger:     logger,
		now:        time.Now,
	}
}

// ActiveForCart возвращает акции, применимые к корзине клиента.
// Неизвестные коды пропускаются с предупреждением, а не ошибкой: чекаут
// не должен падать из-за опечатки в купоне.
func (r *Resolver) ActiveForCart(ctx context.Context, rctx domain.RequestContext, codes []string, customerID string) ([]domain.Promotion, error) {
	now := r.now().UTC()
	result := make([]domain.Promotion, 0, len(codes))

	for _, code := range codes {
		promo, err := r.promotions.GetByCode(ctx, rctx.TenantID, code)
		if err != nil {
			if errors.Is(err, domain.ErrPromotionNotFound) {
				r.logger.WithFields(log.Fields{
					"tenant_id": rctx.TenantID,
					"code":      code,
				}).Warn("unknown coupon code, skipping")
				continue
			}
			return nil, err
		}

		if !promo.ActiveAt(now) {
			continue
		}

		if promo.UsageLimit > 0 {
			used, err := r.promotions.CountUsage(ctx, promo.ID)
			if err != nil {
				return nil, err
			}
			if used >= promo.UsageLimit {
				continue
			}
		}

		if promo.PerCustomerLimit > 0 && customerID != "" {
			used, err := r.promotions.CountUsageByCustomer(ctx, promo.ID, customerID)
			if err != nil {
				return nil, err
			}
			if used >= promo.PerCustomerLimit {
				continue
			}
		}

		result = append(result, promo)
	}

	return result, nil
}

// RecordUsage фиксирует применение акции к заказу. Повторная запись той же
// пары (promotion, order) не является ошибкой — операция идемпотентна.
func (r *Resolver) RecordUsage(ctx context.Context, usage domain.PromotionUsage) error {
	err := r.promotions.RecordUsage(ctx, usage)
	if errors.Is(err, domain.ErrPromotionUsageExists) {
		r.logger.WithFields(log.Fields{
			"promotion_id": usage.PromotionID,
			"order_id":     usage.OrderID,
		}).Debug("promotion usage already recorded")
		return nil
	}
	return err
}

var _ domain.PromotionResolver = (*Resolver)(nil)
