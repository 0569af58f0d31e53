package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// ledgerRepositoryInMemory — in-memory реализация LedgerRepository.
type ledgerRepositoryInMemory struct {
	mu           sync.RWMutex
	ledgers      map[string]domain.Ledger
	accounts     map[string][]domain.LedgerAccount
	transactions map[string]domain.LedgerTransaction
}

// NewLedgerRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewLedgerRepository() domain.LedgerRepository {
	return &ledgerRepositoryInMemory{
		ledgers:      make(map[string]domain.Ledger),
		accounts:     make(map[string][]domain.LedgerAccount),
		transactions: make(map[string]domain.LedgerTransaction),
	}
}

// CreateLedger сохраняет книгу и её план счетов. Повтор по тенанту — no-op.
func (r *ledgerRepositoryInMemory) CreateLedger(ctx context.Context, ledger domain.Ledger, accounts []domain.LedgerAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.ledgers {
		if existing.TenantID == ledger.TenantID {
			return nil
		}
	}
	r.ledgers[ledger.ID] = ledger
	r.accounts[ledger.ID] = append([]domain.LedgerAccount(nil), accounts...)
	return nil
}

// GetLedgerByTenant возвращает книгу тенанта или ErrLedgerNotFound.
func (r *ledgerRepositoryInMemory) GetLedgerByTenant(ctx context.Context, tenantID string) (domain.Ledger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, ledger := range r.ledgers {
		if ledger.TenantID == tenantID {
			return ledger, nil
		}
	}
	return domain.Ledger{}, domain.ErrLedgerNotFound
}

// GetAccount возвращает счёт книги по коду или ErrLedgerAccountNotFound.
func (r *ledgerRepositoryInMemory) GetAccount(ctx context.Context, ledgerID string, code domain.AccountCode) (domain.LedgerAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, account := range r.accounts[ledgerID] {
		if account.Code == code {
			return account, nil
		}
	}
	return domain.LedgerAccount{}, domain.ErrLedgerAccountNotFound
}

// CreateTransaction сохраняет транзакцию с проводками. Повтор по ссылке
// возвращает ErrLedgerTransactionExists, как unique-индекс в PostgreSQL.
func (r *ledgerRepositoryInMemory) CreateTransaction(ctx context.Context, tx domain.LedgerTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.transactions {
		if existing.LedgerID == tx.LedgerID &&
			existing.ReferenceType == tx.ReferenceType &&
			existing.ReferenceID == tx.ReferenceID &&
			existing.ProviderRef == tx.ProviderRef {
			return domain.ErrLedgerTransactionExists
		}
	}

	tx.Entries = append([]domain.LedgerEntry(nil), tx.Entries...)
	r.transactions[tx.ID] = tx
	return nil
}

// FindByReference ищет транзакцию по полной ссылке на экономическое событие.
func (r *ledgerRepositoryInMemory) FindByReference(ctx context.Context, ledgerID, referenceType, referenceID, providerRef string) (domain.LedgerTransaction, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, tx := range r.transactions {
		if tx.LedgerID == ledgerID &&
			tx.ReferenceType == referenceType &&
			tx.ReferenceID == referenceID &&
			tx.ProviderRef == providerRef {
			return tx, true, nil
		}
	}
	return domain.LedgerTransaction{}, false, nil
}

// ListByReference возвращает все транзакции с данной ссылкой в порядке создания.
func (r *ledgerRepositoryInMemory) ListByReference(ctx context.Context, ledgerID, referenceType, referenceID string) ([]domain.LedgerTransaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.LedgerTransaction, 0)
	for _, tx := range r.transactions {
		if tx.LedgerID == ledgerID && tx.ReferenceType == referenceType && tx.ReferenceID == referenceID {
			result = append(result, tx)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

var _ domain.LedgerRepository = (*ledgerRepositoryInMemory)(nil)
