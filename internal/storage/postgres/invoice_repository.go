package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

type invoiceRepository struct {
	db *sql.DB
}

// NewInvoiceRepository создаёт PostgreSQL-реализацию InvoiceRepository.
func NewInvoiceRepository(store *Store) domain.InvoiceRepository {
	return &invoiceRepository{db: store.DB()}
}

func (r *invoiceRepository) Create(ctx context.Context, invoice domain.Invoice) error {
	db := q(ctx, r.db)

	_, err := db.ExecContext(ctx, `
		INSERT INTO invoices (
			id, tenant_id, financial_order_id, number, currency, total_minor,
			status, issued_at, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		invoice.ID, invoice.TenantID, invoice.FinancialOrderID, invoice.Number,
		invoice.Currency, invoice.TotalMinor, string(invoice.Status),
		invoice.IssuedAt, invoice.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}

	return nil
}

func (r *invoiceRepository) GetByFinancialOrder(ctx context.Context, tenantID, financialOrderID string) (domain.Invoice, bool, error) {
	db := q(ctx, r.db)

	var invoice domain.Invoice
	var status string

	err := db.QueryRowContext(ctx, `
		SELECT id, tenant_id, financial_order_id, number, currency, total_minor,
		       status, issued_at, created_at
		FROM invoices
		WHERE tenant_id = $1 AND financial_order_id = $2
	`, tenantID, financialOrderID).Scan(
		&invoice.ID, &invoice.TenantID, &invoice.FinancialOrderID, &invoice.Number,
		&invoice.Currency, &invoice.TotalMinor, &status,
		&invoice.IssuedAt, &invoice.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Invoice{}, false, nil
		}
		return domain.Invoice{}, false, fmt.Errorf("select invoice: %w", err)
	}
	invoice.Status = domain.InvoiceStatus(status)

	return invoice, true, nil
}

func (r *invoiceRepository) CreditedTotal(ctx context.Context, invoiceID string) (int64, error) {
	db := q(ctx, r.db)

	var total int64
	if err := db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_minor), 0) FROM credit_notes WHERE invoice_id = $1
	`, invoiceID).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum credit notes: %w", err)
	}
	return total, nil
}

func (r *invoiceRepository) CreateCreditNote(ctx context.Context, note domain.CreditNote) error {
	db := q(ctx, r.db)

	_, err := db.ExecContext(ctx, `
		INSERT INTO credit_notes (id, tenant_id, invoice_id, amount_minor, reason, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`,
		note.ID, note.TenantID, note.InvoiceID, note.AmountMinor, note.Reason, note.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert credit note: %w", err)
	}

	return nil
}

func (r *invoiceRepository) Save(ctx context.Context, invoice domain.Invoice) error {
	db := q(ctx, r.db)

	res, err := db.ExecContext(ctx, `
		UPDATE invoices
		SET status = $1
		WHERE tenant_id = $2 AND id = $3
	`, string(invoice.Status), invoice.TenantID, invoice.ID)
	if err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrInvoiceNotFound
	}

	return nil
}

var _ domain.InvoiceRepository = (*invoiceRepository)(nil)
