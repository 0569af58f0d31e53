package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// EntryInput — одна проводка на входе CreateTransaction.
type EntryInput struct {
	AccountCode domain.AccountCode
	Type        domain.EntryType
	AmountMinor int64
	Memo        string
}

// Service создаёт сбалансированные двойные записи в книге тенанта.
// Проводки append-only; никакая запись никогда не правится и не удаляется.
type Service struct {
	ledgers domain.LedgerRepository
	logger  *log.Entry
	now     func() time.Time
}

// NewService создаёт ledger-сервис.
func NewService(ledgers domain.LedgerRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "ledger")
	}
	return &Service{
		ledgers: ledgers,
		logger:  logger,
		now:     time.Now,
	}
}

// CreateTransaction валидирует и атомарно сохраняет транзакцию с проводками.
// Отклоняет без частичной записи: пустой набор проводок, отрицательные
// суммы, некорректный тип проводки, расхождение дебетов и кредитов.
// Несбалансированная транзакция, дошедшая сюда, — нарушение программного
// инварианта; она никогда не приводится к балансу молча.
func (s *Service) CreateTransaction(ctx context.Context, rctx domain.RequestContext, ledgerID, referenceType, referenceID, providerRef, description string, entries []EntryInput) (domain.LedgerTransaction, error) {
	now := s.now().UTC()

	tx := domain.LedgerTransaction{
		ID:            uuid.NewString(),
		LedgerID:      ledgerID,
		ReferenceType: referenceType,
		ReferenceID:   referenceID,
		ProviderRef:   providerRef,
		Description:   description,
		CreatedAt:     now,
	}

	for _, input := range entries {
		account, err := s.ledgers.GetAccount(ctx, ledgerID, input.AccountCode)
		if err != nil {
			return domain.LedgerTransaction{}, err
		}
		tx.Entries = append(tx.Entries, domain.LedgerEntry{
			ID:          uuid.NewString(),
			AccountID:   account.ID,
			Type:        input.Type,
			AmountMinor: input.AmountMinor,
			Currency:    rctx.Currency,
			Memo:        input.Memo,
			CreatedAt:   now,
		})
	}

	if err := tx.ValidateBalanced(); err != nil {
		return domain.LedgerTransaction{}, err
	}

	if err := s.ledgers.CreateTransaction(ctx, tx); err != nil {
		return domain.LedgerTransaction{}, fmt.Errorf("persist ledger transaction: %w", err)
	}

	s.logger.WithFields(log.Fields{
		"tenant_id":      rctx.TenantID,
		"ledger_id":      ledgerID,
		"tx_id":          tx.ID,
		"reference_type": referenceType,
		"reference_id":   referenceID,
		"debit_total":    tx.DebitTotal(),
	}).Info("ledger transaction created")

	return tx, nil
}

// PostOrderPaid делает стандартную проводку оплаты заказа:
// дебет cash на полный итог, кредит revenue на чистую выручку,
// кредит tax_payable на налог. Идемпотентность обеспечивается проверкой
// существующей транзакции по (order, provider ref) до записи.
func (s *Service) PostOrderPaid(ctx context.Context, rctx domain.RequestContext, fo domain.FinancialOrder, providerRef string) (domain.LedgerTransaction, error) {
	ledger, err := s.ledgers.GetLedgerByTenant(ctx, rctx.TenantID)
	if err != nil {
		return domain.LedgerTransaction{}, err
	}

	existing, found, err := s.ledgers.FindByReference(ctx, ledger.ID, "order", fo.OrderID, providerRef)
	if err != nil {
		return domain.LedgerTransaction{}, err
	}
	if found {
		s.logger.WithFields(log.Fields{
			"order_id": fo.OrderID,
			"tx_id":    existing.ID,
		}).Debug("order paid posting already exists")
		return existing, nil
	}

	entries := []EntryInput{
		{AccountCode: domain.AccountCash, Type: domain.EntryDebit, AmountMinor: fo.TotalMinor, Memo: "order payment"},
		{AccountCode: domain.AccountRevenue, Type: domain.EntryCredit, AmountMinor: fo.SubtotalMinor, Memo: "net revenue"},
	}
	if fo.TaxTotalMinor > 0 {
		entries = append(entries, EntryInput{
			AccountCode: domain.AccountTaxPayable,
			Type:        domain.EntryCredit,
			AmountMinor: fo.TaxTotalMinor,
			Memo:        "tax payable",
		})
	}

	description := fmt.Sprintf("payment for order %s", fo.OrderID)
	tx, err := s.CreateTransaction(ctx, rctx, ledger.ID, "order", fo.OrderID, providerRef, description, entries)
	if errors.Is(err, domain.ErrLedgerTransactionExists) {
		// Гонка с конкурентной проводкой того же события: возвращаем её.
		existing, _, findErr := s.ledgers.FindByReference(ctx, ledger.ID, "order", fo.OrderID, providerRef)
		if findErr != nil {
			return domain.LedgerTransaction{}, findErr
		}
		return existing, nil
	}
	return tx, err
}

// PostOrderRefunded делает зеркальную проводку возврата: кредит cash на
// сумму возврата, дебет revenue и tax_payable в той же пропорции, в какой
// выручка и налог входили в исходный итог. Доли считаются по отношению
// исходной выручки/налога к исходному итогу с округлением; остаток
// округления относится на ногу revenue, чтобы дебеты сходились с суммой
// возврата точно — это единственное место, где точность обрабатывается
// явно, а не оставляется на волю случая.
func (s *Service) PostOrderRefunded(ctx context.Context, rctx domain.RequestContext, fo domain.FinancialOrder, refundMinor int64, providerRef string) (domain.LedgerTransaction, error) {
	ledger, err := s.ledgers.GetLedgerByTenant(ctx, rctx.TenantID)
	if err != nil {
		return domain.LedgerTransaction{}, err
	}

	existing, found, err := s.ledgers.FindByReference(ctx, ledger.ID, "refund", fo.OrderID, providerRef)
	if err != nil {
		return domain.LedgerTransaction{}, err
	}
	if found {
		s.logger.WithFields(log.Fields{
			"order_id": fo.OrderID,
			"tx_id":    existing.ID,
		}).Debug("refund posting already exists")
		return existing, nil
	}

	taxShare := domain.ProportionOf(refundMinor, fo.TaxTotalMinor, fo.TotalMinor)
	revenueShare := refundMinor - taxShare

	entries := []EntryInput{
		{AccountCode: domain.AccountCash, Type: domain.EntryCredit, AmountMinor: refundMinor, Memo: "refund payout"},
		{AccountCode: domain.AccountRevenue, Type: domain.EntryDebit, AmountMinor: revenueShare, Memo: "revenue reversal"},
	}
	if taxShare > 0 {
		entries = append(entries, EntryInput{
			AccountCode: domain.AccountTaxPayable,
			Type:        domain.EntryDebit,
			AmountMinor: taxShare,
			Memo:        "tax reversal",
		})
	}

	description := fmt.Sprintf("refund for order %s", fo.OrderID)
	tx, err := s.CreateTransaction(ctx, rctx, ledger.ID, "refund", fo.OrderID, providerRef, description, entries)
	if errors.Is(err, domain.ErrLedgerTransactionExists) {
		existing, _, findErr := s.ledgers.FindByReference(ctx, ledger.ID, "refund", fo.OrderID, providerRef)
		if findErr != nil {
			return domain.LedgerTransaction{}, findErr
		}
		return existing, nil
	}
	return tx, err
}

// EnsureLedger создаёт книгу тенанта с фиксированным планом счетов, если её
// ещё нет. Вызывается при первом финансовом событии тенанта.
func (s *Service) EnsureLedger(ctx context.Context, rctx domain.RequestContext) (domain.Ledger, error) {
	ledger, err := s.ledgers.GetLedgerByTenant(ctx, rctx.TenantID)
	if err == nil {
		return ledger, nil
	}
	if !errors.Is(err, domain.ErrLedgerNotFound) {
		return domain.Ledger{}, err
	}

	now := s.now().UTC()
	ledger = domain.Ledger{
		ID:        uuid.NewString(),
		TenantID:  rctx.TenantID,
		Currency:  rctx.Currency,
		CreatedAt: now,
	}
	accounts := make([]domain.LedgerAccount, 0, len(domain.ChartOfAccounts))
	for _, code := range domain.ChartOfAccounts {
		accounts = append(accounts, domain.LedgerAccount{
			ID:        uuid.NewString(),
			LedgerID:  ledger.ID,
			Code:      code,
			Name:      string(code),
			CreatedAt: now,
		})
	}

	if err := s.ledgers.CreateLedger(ctx, ledger, accounts); err != nil {
		return domain.Ledger{}, fmt.Errorf("create tenant ledger: %w", err)
	}

	s.logger.WithField("tenant_id", rctx.TenantID).Info("tenant ledger created")
	return ledger, nil
}
