package reconcile

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

var (
	reconcileRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commerce_reconcile_runs_total",
		Help: "Total number of reconciliation runs grouped by result.",
	}, []string{"result"})
	reconcileIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commerce_reconcile_issues_total",
		Help: "Total number of reconciliation issues grouped by type.",
	}, []string{"type"})
)

// Service независимо перепроверяет согласованность финансовых заказов,
// счетов и книги. Только чтение: расхождения регистрируются, но никогда
// не исправляются автоматически — это осознанная позиция, а не пробел.
type Service struct {
	financial domain.FinancialOrderRepository
	ledgers   domain.LedgerRepository
	invoices  domain.InvoiceRepository
	logger    *log.Entry
}

// NewService создаёт reconciliation-сервис.
func NewService(
	financial domain.FinancialOrderRepository,
	ledgers domain.LedgerRepository,
	invoices domain.InvoiceRepository,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "reconcile")
	}
	return &Service{
		financial: financial,
		ledgers:   ledgers,
		invoices:  invoices,
		logger:    logger,
	}
}

// Reconcile проверяет три инварианта для каждого финансового заказа в
// области видимости (пустой tenantID — все тенанты) и возвращает
// структурированные расхождения, не прерываясь на первом:
//  1. каждая транзакция ledger, ссылающаяся на заказ, сбалансирована;
//  2. если по заказу есть счёт, его итог равен итогу финансового заказа;
//  3. для оплаченных заказов сумма кредитовых "order"-транзакций равна итогу.
func (s *Service) Reconcile(ctx context.Context, tenantID string) ([]domain.ReconciliationIssue, error) {
	orders, err := s.financial.ListByTenant(ctx, tenantID)
	if err != nil {
		reconcileRunsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("list financial orders: %w", err)
	}

	issues := make([]domain.ReconciliationIssue, 0)
	for _, fo := range orders {
		issues = append(issues, s.checkOrder(ctx, fo)...)
	}

	for _, issue := range issues {
		reconcileIssuesTotal.WithLabelValues(string(issue.Type)).Inc()
		s.logger.WithFields(log.Fields{
			"type":               issue.Type,
			"tenant_id":          issue.TenantID,
			"financial_order_id": issue.FinancialOrderID,
			"tx_id":              issue.TransactionID,
			"expected_minor":     issue.ExpectedMinor,
			"actual_minor":       issue.ActualMinor,
		}).Warn("reconciliation issue detected")
	}

	if len(issues) == 0 {
		reconcileRunsTotal.WithLabelValues("clean").Inc()
	} else {
		reconcileRunsTotal.WithLabelValues("issues").Inc()
	}

	return issues, nil
}

// Verify выполняет те же проверки и возвращает одну агрегированную ошибку,
// если найдено хоть одно расхождение. Предназначен для scheduled health
// check, а не для жизненного цикла самих данных.
func (s *Service) Verify(ctx context.Context, tenantID string) error {
	issues, err := s.Reconcile(ctx, tenantID)
	if err != nil {
		return err
	}
	if len(issues) > 0 {
		return fmt.Errorf("reconciliation found %d issue(s), first: %s for financial order %s",
			len(issues), issues[0].Type, issues[0].FinancialOrderID)
	}
	return nil
}

func (s *Service) checkOrder(ctx context.Context, fo domain.FinancialOrder) []domain.ReconciliationIssue {
	var issues []domain.ReconciliationIssue

	ledger, err := s.ledgers.GetLedgerByTenant(ctx, fo.TenantID)
	if err != nil {
		// Нет книги — нечего сверять по ledger-инвариантам, но счёт проверяем.
		issues = append(issues, s.checkInvoice(ctx, fo)...)
		return issues
	}

	transactions := make([]domain.LedgerTransaction, 0)
	for _, refType := range []string{"order", "refund"} {
		txs, err := s.ledgers.ListByReference(ctx, ledger.ID, refType, fo.OrderID)
		if err != nil {
			s.logger.WithError(err).WithField("order_id", fo.OrderID).Warn("list ledger transactions failed")
			continue
		}
		transactions = append(transactions, txs...)
	}

	// Инвариант 1: баланс каждой транзакции.
	for _, tx := range transactions {
		debits := tx.DebitTotal()
		credits := tx.CreditTotal()
		if debits != credits {
			issues = append(issues, domain.ReconciliationIssue{
				Type:             domain.IssueLedgerUnbalanced,
				TenantID:         fo.TenantID,
				FinancialOrderID: fo.ID,
				TransactionID:    tx.ID,
				ExpectedMinor:    debits,
				ActualMinor:      credits,
				Detail:           "sum of debit entries differs from sum of credit entries",
			})
		}
	}

	// Инвариант 2: итог счёта равен итогу финансового заказа.
	issues = append(issues, s.checkInvoice(ctx, fo)...)

	// Инвариант 3: для оплаченных заказов сумма кредитов "order"-транзакций
	// равна итогу заказа.
	if fo.Status == domain.FinancialOrderStatusPaid {
		var credited int64
		for _, tx := range transactions {
			if tx.ReferenceType == "order" {
				credited += tx.CreditTotal()
			}
		}
		if credited != fo.TotalMinor {
			issues = append(issues, domain.ReconciliationIssue{
				Type:             domain.IssuePaymentTotalMismatch,
				TenantID:         fo.TenantID,
				FinancialOrderID: fo.ID,
				ExpectedMinor:    fo.TotalMinor,
				ActualMinor:      credited,
				Detail:           "completed credit transactions do not sum to the order total",
			})
		}
	}

	return issues
}

func (s *Service) checkInvoice(ctx context.Context, fo domain.FinancialOrder) []domain.ReconciliationIssue {
	invoice, found, err := s.invoices.GetByFinancialOrder(ctx, fo.TenantID, fo.ID)
	if err != nil {
		s.logger.WithError(err).WithField("financial_order_id", fo.ID).Warn("load invoice failed")
		return nil
	}
	if !found {
		return nil
	}
	if invoice.TotalMinor != fo.TotalMinor {
		return []domain.ReconciliationIssue{{
			Type:             domain.IssueInvoiceTotalMismatch,
			TenantID:         fo.TenantID,
			FinancialOrderID: fo.ID,
			ExpectedMinor:    fo.TotalMinor,
			ActualMinor:      invoice.TotalMinor,
			Detail:           fmt.Sprintf("invoice %s total differs from financial order total", invoice.Number),
		}}
	}
	return nil
}
