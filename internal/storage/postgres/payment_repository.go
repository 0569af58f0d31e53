package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

type paymentRepository struct {
	db *sql.DB
}

// NewPaymentRepository создаёт PostgreSQL-реализацию PaymentRepository.
func NewPaymentRepository(store *Store) domain.PaymentRepository {
	return &paymentRepository{db: store.DB()}
}

func (r *paymentRepository) Create(ctx context.Context, payment domain.Payment) error {
	db := q(ctx, r.db)

	_, err := db.ExecContext(ctx, `
		INSERT INTO payments (
			id, tenant_id, order_id, provider, provider_ref, client_secret,
			status, amount_minor, currency, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		payment.ID, payment.TenantID, payment.OrderID, payment.Provider,
		payment.ProviderRef, payment.ClientSecret, string(payment.Status),
		payment.AmountMinor, payment.Currency, payment.CreatedAt, payment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}

	return nil
}

func (r *paymentRepository) Get(ctx context.Context, tenantID, id string) (domain.Payment, error) {
	db := q(ctx, r.db)

	var payment domain.Payment
	var status string

	err := db.QueryRowContext(ctx, `
		SELECT id, tenant_id, order_id, provider, provider_ref, client_secret,
		       status, amount_minor, currency, created_at, updated_at
		FROM payments
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id).Scan(
		&payment.ID, &payment.TenantID, &payment.OrderID, &payment.Provider,
		&payment.ProviderRef, &payment.ClientSecret, &status,
		&payment.AmountMinor, &payment.Currency, &payment.CreatedAt, &payment.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Payment{}, domain.ErrPaymentNotFound
		}
		return domain.Payment{}, fmt.Errorf("select payment: %w", err)
	}
	payment.Status = domain.PaymentStatus(status)

	return payment, nil
}

func (r *paymentRepository) ListByOrder(ctx context.Context, tenantID, orderID string) ([]domain.Payment, error) {
	db := q(ctx, r.db)

	rows, err := db.QueryContext(ctx, `
		SELECT id, tenant_id, order_id, provider, provider_ref, client_secret,
		       status, amount_minor, currency, created_at, updated_at
		FROM payments
		WHERE tenant_id = $1 AND order_id = $2
		ORDER BY created_at ASC, id ASC
	`, tenantID, orderID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0)
	for rows.Next() {
		var payment domain.Payment
		var status string
		if err := rows.Scan(
			&payment.ID, &payment.TenantID, &payment.OrderID, &payment.Provider,
			&payment.ProviderRef, &payment.ClientSecret, &status,
			&payment.AmountMinor, &payment.Currency, &payment.CreatedAt, &payment.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan payment row: %w", err)
		}
		payment.Status = domain.PaymentStatus(status)
		payments = append(payments, payment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment rows: %w", err)
	}

	return payments, nil
}

func (r *paymentRepository) Save(ctx context.Context, payment domain.Payment) error {
	db := q(ctx, r.db)

	res, err := db.ExecContext(ctx, `
		UPDATE payments
		SET provider = $1,
		    provider_ref = $2,
		    client_secret = $3,
		    status = $4,
		    amount_minor = $5,
		    updated_at = $6
		WHERE tenant_id = $7
		  AND id = $8
	`,
		payment.Provider, payment.ProviderRef, payment.ClientSecret,
		string(payment.Status), payment.AmountMinor, payment.UpdatedAt,
		payment.TenantID, payment.ID,
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrPaymentNotFound
	}

	return nil
}

var _ domain.PaymentRepository = (*paymentRepository)(nil)
