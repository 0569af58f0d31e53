package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

type cartRepository struct {
	db *sql.DB
}

// NewCartRepository создаёт PostgreSQL-реализацию CartRepository.
func NewCartRepository(store *Store) domain.CartRepository {
	return &cartRepository{db: store.DB()}
}

func (r *cartRepository) Create(ctx context.Context, cart domain.Cart) error {
	db := q(ctx, r.db)

	_, err := db.ExecContext(ctx, `
		INSERT INTO carts (
			id, tenant_id, customer_id, customer_email, currency, status,
			order_id, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		cart.ID, cart.TenantID, cart.CustomerID, cart.CustomerEmail, cart.Currency,
		string(cart.Status), cart.OrderID, cart.Version, cart.CreatedAt, cart.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert cart: %w", err)
	}

	for _, item := range cart.Items {
		if _, err := db.ExecContext(ctx, `
			INSERT INTO cart_items (
				id, cart_id, product_id, description, qty, unit_price_minor, total_minor, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`,
			item.ID, cart.ID, item.ProductID, item.Description,
			item.Qty, item.UnitPriceMinor, item.TotalMinor, item.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert cart item: %w", err)
		}
	}

	return nil
}

func (r *cartRepository) Get(ctx context.Context, tenantID, id string) (domain.Cart, error) {
	db := q(ctx, r.db)

	var cart domain.Cart
	var status string

	err := db.QueryRowContext(ctx, `
		SELECT id, tenant_id, customer_id, customer_email, currency, status,
		       order_id, version, created_at, updated_at
		FROM carts
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id).Scan(
		&cart.ID, &cart.TenantID, &cart.CustomerID, &cart.CustomerEmail, &cart.Currency,
		&status, &cart.OrderID, &cart.Version, &cart.CreatedAt, &cart.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Cart{}, domain.ErrCartNotFound
		}
		return domain.Cart{}, fmt.Errorf("select cart: %w", err)
	}
	cart.Status = domain.CartStatus(status)

	rows, err := db.QueryContext(ctx, `
		SELECT id, product_id, description, qty, unit_price_minor, total_minor, created_at
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY created_at ASC, id ASC
	`, cart.ID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("load cart items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.CartItem, 0)
	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(
			&item.ID, &item.ProductID, &item.Description,
			&item.Qty, &item.UnitPriceMinor, &item.TotalMinor, &item.CreatedAt,
		); err != nil {
			return domain.Cart{}, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return domain.Cart{}, fmt.Errorf("iterate cart items: %w", err)
	}
	cart.Items = items

	return cart, nil
}

func (r *cartRepository) Save(ctx context.Context, cart domain.Cart) error {
	db := q(ctx, r.db)

	res, err := db.ExecContext(ctx, `
		UPDATE carts
		SET customer_id = $1,
		    customer_email = $2,
		    status = $3,
		    order_id = $4,
		    version = version + 1,
		    updated_at = $5
		WHERE tenant_id = $6
		  AND id = $7
		  AND version = $8
	`,
		cart.CustomerID, cart.CustomerEmail, string(cart.Status), cart.OrderID,
		cart.UpdatedAt, cart.TenantID, cart.ID, cart.Version,
	)
	if err != nil {
		return fmt.Errorf("update cart: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		var id string
		err := db.QueryRowContext(ctx, `SELECT id FROM carts WHERE tenant_id = $1 AND id = $2`, cart.TenantID, cart.ID).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrCartNotFound
		}
		if err != nil {
			return fmt.Errorf("check cart exists: %w", err)
		}
		return domain.ErrOrderVersionConflict
	}

	return nil
}

var _ domain.CartRepository = (*cartRepository)(nil)
