package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

type financialOrderRepository struct {
	db *sql.DB
}

// NewFinancialOrderRepository создаёт PostgreSQL-реализацию FinancialOrderRepository.
func NewFinancialOrderRepository(store *Store) domain.FinancialOrderRepository {
	return &financialOrderRepository{db: store.DB()}
}

func (r *financialOrderRepository) Create(ctx context.Context, fo domain.FinancialOrder) error {
	db := q(ctx, r.db)

	_, err := db.ExecContext(ctx, `
		INSERT INTO financial_orders (
			id, tenant_id, order_id, currency, subtotal_minor, tax_total_minor,
			total_minor, status, locked_at, paid_at, snapshot, snapshot_hash,
			version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`,
		fo.ID, fo.TenantID, fo.OrderID, fo.Currency, fo.SubtotalMinor, fo.TaxTotalMinor,
		fo.TotalMinor, string(fo.Status), fo.LockedAt, fo.PaidAt, nullBytes(fo.Snapshot),
		fo.SnapshotHash, fo.Version, fo.CreatedAt, fo.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderVersionConflict
		}
		return fmt.Errorf("insert financial order: %w", err)
	}

	return nil
}

func (r *financialOrderRepository) Get(ctx context.Context, tenantID, id string) (domain.FinancialOrder, error) {
	db := q(ctx, r.db)
	return r.scanOne(db.QueryRowContext(ctx, selectFinancialOrderQuery+`
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id))
}

func (r *financialOrderRepository) GetByOrder(ctx context.Context, tenantID, orderID string) (domain.FinancialOrder, error) {
	db := q(ctx, r.db)
	return r.scanOne(db.QueryRowContext(ctx, selectFinancialOrderQuery+`
		WHERE tenant_id = $1 AND order_id = $2
	`, tenantID, orderID))
}

func (r *financialOrderRepository) ListByTenant(ctx context.Context, tenantID string) ([]domain.FinancialOrder, error) {
	db := q(ctx, r.db)

	var (
		rows *sql.Rows
		err  error
	)
	if tenantID == "" {
		rows, err = db.QueryContext(ctx, selectFinancialOrderQuery+` ORDER BY created_at ASC, id ASC`)
	} else {
		rows, err = db.QueryContext(ctx, selectFinancialOrderQuery+`
			WHERE tenant_id = $1
			ORDER BY created_at ASC, id ASC
		`, tenantID)
	}
	if err != nil {
		return nil, fmt.Errorf("list financial orders: %w", err)
	}
	defer rows.Close()

	result := make([]domain.FinancialOrder, 0)
	for rows.Next() {
		fo, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, fo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate financial orders: %w", err)
	}

	return result, nil
}

func (r *financialOrderRepository) Save(ctx context.Context, fo domain.FinancialOrder) error {
	db := q(ctx, r.db)

	res, err := db.ExecContext(ctx, `
		UPDATE financial_orders
		SET subtotal_minor = $1,
		    tax_total_minor = $2,
		    total_minor = $3,
		    status = $4,
		    locked_at = $5,
		    paid_at = $6,
		    snapshot = $7,
		    snapshot_hash = $8,
		    version = version + 1,
		    updated_at = $9
		WHERE tenant_id = $10
		  AND id = $11
		  AND version = $12
	`,
		fo.SubtotalMinor, fo.TaxTotalMinor, fo.TotalMinor, string(fo.Status),
		fo.LockedAt, fo.PaidAt, nullBytes(fo.Snapshot), fo.SnapshotHash,
		fo.UpdatedAt, fo.TenantID, fo.ID, fo.Version,
	)
	if err != nil {
		return fmt.Errorf("update financial order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		var id string
		err := db.QueryRowContext(ctx, `SELECT id FROM financial_orders WHERE tenant_id = $1 AND id = $2`, fo.TenantID, fo.ID).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrFinancialOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("check financial order exists: %w", err)
		}
		return domain.ErrOrderVersionConflict
	}

	return nil
}

const selectFinancialOrderQuery = `
	SELECT id, tenant_id, order_id, currency, subtotal_minor, tax_total_minor,
	       total_minor, status, locked_at, paid_at, snapshot, snapshot_hash,
	       version, created_at, updated_at
	FROM financial_orders
`

func (r *financialOrderRepository) scanOne(row rowScanner) (domain.FinancialOrder, error) {
	var (
		fo       domain.FinancialOrder
		status   string
		lockedAt sql.NullTime
		paidAt   sql.NullTime
		snapshot []byte
	)

	err := row.Scan(
		&fo.ID, &fo.TenantID, &fo.OrderID, &fo.Currency, &fo.SubtotalMinor, &fo.TaxTotalMinor,
		&fo.TotalMinor, &status, &lockedAt, &paidAt, &snapshot, &fo.SnapshotHash,
		&fo.Version, &fo.CreatedAt, &fo.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.FinancialOrder{}, domain.ErrFinancialOrderNotFound
		}
		return domain.FinancialOrder{}, fmt.Errorf("scan financial order: %w", err)
	}

	fo.Status = domain.FinancialOrderStatus(status)
	if lockedAt.Valid {
		t := lockedAt.Time.UTC()
		fo.LockedAt = &t
	}
	if paidAt.Valid {
		t := paidAt.Time.UTC()
		fo.PaidAt = &t
	}
	if len(snapshot) > 0 {
		fo.Snapshot = append([]byte(nil), snapshot...)
	}

	return fo, nil
}

// nullBytes превращает пустой slice в NULL, чтобы snapshot JSONB-колонки
// оставался NULL до заморозки.
func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

var _ domain.FinancialOrderRepository = (*financialOrderRepository)(nil)
