package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	db := q(ctx, r.db)

	promotions, err := json.Marshal(order.AppliedPromotions)
	if err != nil {
		return fmt.Errorf("marshal applied promotions: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO orders (
			id, tenant_id, cart_id, customer_id, customer_email, status, currency,
			subtotal_minor, discount_minor, total_minor, applied_promotions,
			version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`,
		order.ID, order.TenantID, order.CartID, order.CustomerID, order.CustomerEmail,
		string(order.Status), order.Currency, order.SubtotalMinor, order.DiscountMinor,
		order.TotalMinor, promotions, order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderVersionConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for _, item := range order.Items {
		if _, err := db.ExecContext(ctx, `
			INSERT INTO order_items (
				id, order_id, product_id, description, qty, unit_price_minor, total_minor, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`,
			item.ID, order.ID, item.ProductID, item.Description,
			item.Qty, item.UnitPriceMinor, item.TotalMinor, item.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	return nil
}

func (r *orderRepository) Get(ctx context.Context, tenantID, id string) (domain.Order, error) {
	db := q(ctx, r.db)

	order, err := r.scanOrder(db.QueryRowContext(ctx, selectOrderQuery+`
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id))
	if err != nil {
		return domain.Order{}, err
	}

	items, err := r.loadItems(ctx, db, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items

	return order, nil
}

func (r *orderRepository) ListByCustomer(ctx context.Context, tenantID, customerID string, limit int) ([]domain.Order, error) {
	db := q(ctx, r.db)

	query := selectOrderQuery + `
		WHERE tenant_id = $1 AND customer_id = $2
		ORDER BY created_at DESC, id DESC
	`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = db.QueryContext(ctx, query+" LIMIT $3", tenantID, customerID, limit)
	} else {
		rows, err = db.QueryContext(ctx, query, tenantID, customerID)
	}
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := r.scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items, err := r.loadItems(ctx, db, order.ID)
		if err != nil {
			return nil, err
		}
		order.Items = items
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	return orders, nil
}

func (r *orderRepository) Save(ctx context.Context, order domain.Order) error {
	db := q(ctx, r.db)

	promotions, err := json.Marshal(order.AppliedPromotions)
	if err != nil {
		return fmt.Errorf("marshal applied promotions: %w", err)
	}

	res, err := db.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    subtotal_minor = $2,
		    discount_minor = $3,
		    total_minor = $4,
		    applied_promotions = $5,
		    version = version + 1,
		    updated_at = $6
		WHERE tenant_id = $7
		  AND id = $8
		  AND version = $9
	`,
		string(order.Status), order.SubtotalMinor, order.DiscountMinor, order.TotalMinor,
		promotions, order.UpdatedAt, order.TenantID, order.ID, order.Version,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		var id string
		err := db.QueryRowContext(ctx, `SELECT id FROM orders WHERE tenant_id = $1 AND id = $2`, order.TenantID, order.ID).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("check order exists: %w", err)
		}
		return domain.ErrOrderVersionConflict
	}

	return nil
}

const selectOrderQuery = `
	SELECT id, tenant_id, cart_id, customer_id, customer_email, status, currency,
	       subtotal_minor, discount_minor, total_minor, applied_promotions,
	       version, created_at, updated_at
	FROM orders
`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *orderRepository) scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order      domain.Order
		status     string
		promotions []byte
	)

	err := row.Scan(
		&order.ID, &order.TenantID, &order.CartID, &order.CustomerID, &order.CustomerEmail,
		&status, &order.Currency, &order.SubtotalMinor, &order.DiscountMinor,
		&order.TotalMinor, &promotions, &order.Version, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("scan order row: %w", err)
	}

	order.Status = domain.OrderStatus(status)
	if len(promotions) > 0 {
		if err := json.Unmarshal(promotions, &order.AppliedPromotions); err != nil {
			return domain.Order{}, fmt.Errorf("unmarshal applied promotions: %w", err)
		}
	}

	return order, nil
}

func (r *orderRepository) loadItems(ctx context.Context, db querier, orderID string) ([]domain.OrderItem, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, product_id, description, qty, unit_price_minor, total_minor, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID, &item.ProductID, &item.Description,
			&item.Qty, &item.UnitPriceMinor, &item.TotalMinor, &item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return items, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
