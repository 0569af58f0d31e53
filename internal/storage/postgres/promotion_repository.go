package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

type promotionRepository struct {
	db *sql.DB
}

// NewPromotionRepository создаёт PostgreSQL-реализацию PromotionRepository.
func NewPromotionRepository(store *Store) domain.PromotionRepository {
	return &promotionRepository{db: store.DB()}
}

func (r *promotionRepository) Create(ctx context.Context, promo domain.Promotion) error {
	db := q(ctx, r.db)

	_, err := db.ExecContext(ctx, `
		INSERT INTO promotions (
			id, tenant_id, code, type, percent, value_minor, buy_qty, get_qty,
			min_cart_minor, stackable, usage_limit, per_customer_limit,
			starts_at, ends_at, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`,
		promo.ID, promo.TenantID, promo.Code, string(promo.Type), promo.Percent,
		promo.ValueMinor, promo.BuyQty, promo.GetQty, promo.MinCartMinor,
		promo.Stackable, promo.UsageLimit, promo.PerCustomerLimit,
		promo.StartsAt, promo.EndsAt, promo.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert promotion: %w", err)
	}

	return nil
}

func (r *promotionRepository) GetByCode(ctx context.Context, tenantID, code string) (domain.Promotion, error) {
	db := q(ctx, r.db)

	var (
		promo    domain.Promotion
		typeRaw  string
		startsAt sql.NullTime
		endsAt   sql.NullTime
	)

	err := db.QueryRowContext(ctx, `
		SELECT id, tenant_id, code, type, percent, value_minor, buy_qty, get_qty,
		       min_cart_minor, stackable, usage_limit, per_customer_limit,
		       starts_at, ends_at, created_at
		FROM promotions
		WHERE tenant_id = $1 AND code = $2
	`, tenantID, code).Scan(
		&promo.ID, &promo.TenantID, &promo.Code, &typeRaw, &promo.Percent,
		&promo.ValueMinor, &promo.BuyQty, &promo.GetQty, &promo.MinCartMinor,
		&promo.Stackable, &promo.UsageLimit, &promo.PerCustomerLimit,
		&startsAt, &endsAt, &promo.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Promotion{}, domain.ErrPromotionNotFound
		}
		return domain.Promotion{}, fmt.Errorf("select promotion: %w", err)
	}

	promo.Type = domain.PromotionType(typeRaw)
	if startsAt.Valid {
		t := startsAt.Time.UTC()
		promo.StartsAt = &t
	}
	if endsAt.Valid {
		t := endsAt.Time.UTC()
		promo.EndsAt = &t
	}

	return promo, nil
}

func (r *promotionRepository) CountUsage(ctx context.Context, promotionID string) (int64, error) {
	db := q(ctx, r.db)

	var count int64
	if err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM promotion_usages WHERE promotion_id = $1
	`, promotionID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count promotion usage: %w", err)
	}
	return count, nil
}

func (r *promotionRepository) CountUsageByCustomer(ctx context.Context, promotionID, customerID string) (int64, error) {
	db := q(ctx, r.db)

	var count int64
	if err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM promotion_usages WHERE promotion_id = $1 AND customer_id = $2
	`, promotionID, customerID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count promotion usage by customer: %w", err)
	}
	return count, nil
}

func (r *promotionRepository) RecordUsage(ctx context.Context, usage domain.PromotionUsage) error {
	db := q(ctx, r.db)

	_, err := db.ExecContext(ctx, `
		INSERT INTO promotion_usages (id, tenant_id, promotion_id, order_id, customer_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`,
		usage.ID, usage.TenantID, usage.PromotionID, usage.OrderID, usage.CustomerID, usage.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrPromotionUsageExists
		}
		return fmt.Errorf("insert promotion usage: %w", err)
	}

	return nil
}

func (r *promotionRepository) UsageExists(ctx context.Context, promotionID, orderID string) (bool, error) {
	db := q(ctx, r.db)

	var id string
	err := db.QueryRowContext(ctx, `
		SELECT id FROM promotion_usages WHERE promotion_id = $1 AND order_id = $2
	`, promotionID, orderID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check promotion usage: %w", err)
}

var _ domain.PromotionRepository = (*promotionRepository)(nil)
