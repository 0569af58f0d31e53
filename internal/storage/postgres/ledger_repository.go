package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

type ledgerRepository struct {
	db *sql.DB
}

// NewLedgerRepository создаёт PostgreSQL-реализацию LedgerRepository.
func NewLedgerRepository(store *Store) domain.LedgerRepository {
	return &ledgerRepository{db: store.DB()}
}

func (r *ledgerRepository) CreateLedger(ctx context.Context, ledger domain.Ledger, accounts []domain.LedgerAccount) error {
	db := q(ctx, r.db)

	_, err := db.ExecContext(ctx, `
		INSERT INTO ledgers (id, tenant_id, currency, created_at)
		VALUES ($1,$2,$3,$4)
	`, ledger.ID, ledger.TenantID, ledger.Currency, ledger.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("insert ledger: %w", err)
	}

	for _, account := range accounts {
		if _, err := db.ExecContext(ctx, `
			INSERT INTO ledger_accounts (id, ledger_id, code, name, created_at)
			VALUES ($1,$2,$3,$4,$5)
		`, account.ID, ledger.ID, string(account.Code), account.Name, account.CreatedAt); err != nil {
			return fmt.Errorf("insert ledger account: %w", err)
		}
	}

	return nil
}

func (r *ledgerRepository) GetLedgerByTenant(ctx context.Context, tenantID string) (domain.Ledger, error) {
	db := q(ctx, r.db)

	var ledger domain.Ledger
	err := db.QueryRowContext(ctx, `
		SELECT id, tenant_id, currency, created_at
		FROM ledgers
		WHERE tenant_id = $1
	`, tenantID).Scan(&ledger.ID, &ledger.TenantID, &ledger.Currency, &ledger.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Ledger{}, domain.ErrLedgerNotFound
		}
		return domain.Ledger{}, fmt.Errorf("select ledger: %w", err)
	}

	return ledger, nil
}

func (r *ledgerRepository) GetAccount(ctx context.Context, ledgerID string, code domain.AccountCode) (domain.LedgerAccount, error) {
	db := q(ctx, r.db)

	var account domain.LedgerAccount
	var codeRaw string
	err := db.QueryRowContext(ctx, `
		SELECT id, ledger_id, code, name, created_at
		FROM ledger_accounts
		WHERE ledger_id = $1 AND code = $2
	`, ledgerID, string(code)).Scan(
		&account.ID, &account.LedgerID, &codeRaw, &account.Name, &account.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.LedgerAccount{}, domain.ErrLedgerAccountNotFound
		}
		return domain.LedgerAccount{}, fmt.Errorf("select ledger account: %w", err)
	}
	account.Code = domain.AccountCode(codeRaw)

	return account, nil
}

func (r *ledgerRepository) CreateTransaction(ctx context.Context, tx domain.LedgerTransaction) error {
	db := q(ctx, r.db)

	_, err := db.ExecContext(ctx, `
		INSERT INTO ledger_transactions (
			id, ledger_id, reference_type, reference_id, provider_ref, description, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		tx.ID, tx.LedgerID, tx.ReferenceType, tx.ReferenceID,
		tx.ProviderRef, tx.Description, tx.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrLedgerTransactionExists
		}
		return fmt.Errorf("insert ledger transaction: %w", err)
	}

	for _, entry := range tx.Entries {
		if _, err := db.ExecContext(ctx, `
			INSERT INTO ledger_entries (
				id, transaction_id, account_id, entry_type, amount_minor, currency, memo, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`,
			entry.ID, tx.ID, entry.AccountID, string(entry.Type),
			entry.AmountMinor, entry.Currency, entry.Memo, entry.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert ledger entry: %w", err)
		}
	}

	return nil
}

func (r *ledgerRepository) FindByReference(ctx context.Context, ledgerID, referenceType, referenceID, providerRef string) (domain.LedgerTransaction, bool, error) {
	db := q(ctx, r.db)

	tx, err := r.scanTransaction(db.QueryRowContext(ctx, selectLedgerTxQuery+`
		WHERE ledger_id = $1 AND reference_type = $2 AND reference_id = $3 AND provider_ref = $4
	`, ledgerID, referenceType, referenceID, providerRef))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.LedgerTransaction{}, false, nil
		}
		return domain.LedgerTransaction{}, false, err
	}

	entries, err := r.loadEntries(ctx, db, tx.ID)
	if err != nil {
		return domain.LedgerTransaction{}, false, err
	}
	tx.Entries = entries

	return tx, true, nil
}

func (r *ledgerRepository) ListByReference(ctx context.Context, ledgerID, referenceType, referenceID string) ([]domain.LedgerTransaction, error) {
	db := q(ctx, r.db)

	rows, err := db.QueryContext(ctx, selectLedgerTxQuery+`
		WHERE ledger_id = $1 AND reference_type = $2 AND reference_id = $3
		ORDER BY created_at ASC, id ASC
	`, ledgerID, referenceType, referenceID)
	if err != nil {
		return nil, fmt.Errorf("list ledger transactions: %w", err)
	}
	defer rows.Close()

	result := make([]domain.LedgerTransaction, 0)
	for rows.Next() {
		tx, err := r.scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		entries, err := r.loadEntries(ctx, db, tx.ID)
		if err != nil {
			return nil, err
		}
		tx.Entries = entries
		result = append(result, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger transactions: %w", err)
	}

	return result, nil
}

const selectLedgerTxQuery = `
	SELECT id, ledger_id, reference_type, reference_id, provider_ref, description, created_at
	FROM ledger_transactions
`

func (r *ledgerRepository) scanTransaction(row rowScanner) (domain.LedgerTransaction, error) {
	var tx domain.LedgerTransaction
	err := row.Scan(
		&tx.ID, &tx.LedgerID, &tx.ReferenceType, &tx.ReferenceID,
		&tx.ProviderRef, &tx.Description, &tx.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.LedgerTransaction{}, sql.ErrNoRows
		}
		return domain.LedgerTransaction{}, fmt.Errorf("scan ledger transaction: %w", err)
	}
	return tx, nil
}

func (r *ledgerRepository) loadEntries(ctx context.Context, db querier, transactionID string) ([]domain.LedgerEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, account_id, entry_type, amount_minor, currency, memo, created_at
		FROM ledger_entries
		WHERE transaction_id = $1
		ORDER BY created_at ASC, id ASC
	`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("load ledger entries: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.LedgerEntry, 0)
	for rows.Next() {
		var entry domain.LedgerEntry
		var entryType string
		if err := rows.Scan(
			&entry.ID, &entry.AccountID, &entryType,
			&entry.AmountMinor, &entry.Currency, &entry.Memo, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entry.Type = domain.EntryType(entryType)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}

	return entries, nil
}

var _ domain.LedgerRepository = (*ledgerRepository)(nil)
