package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/storage/memory"
)

func newTestService(t *testing.T) (*Service, domain.Ledger) {
	t.Helper()
	svc := NewService(memory.NewLedgerRepository(), nil)
	ledger, err := svc.EnsureLedger(context.Background(), rctx())
	if err != nil {
		t.Fatalf("ensure ledger: %v", err)
	}
	return svc, ledger
}

func rctx() domain.RequestContext {
	return domain.RequestContext{TenantID: "tenant-1", Currency: "USD", ActorID: "test"}
}

func TestEnsureLedgerIdempotent(t *testing.T) {
	svc := NewService(memory.NewLedgerRepository(), nil)

	first, err := svc.EnsureLedger(context.Background(), rctx())
	if err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	second, err := svc.EnsureLedger(context.Background(), rctx())
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if first.ID != second.ID {
		t.Fatal("ensure must return the same ledger for a tenant")
	}
}

func TestCreateTransactionRejectsInvalid(t *testing.T) {
	svc, ledger := newTestService(t)
	ctx := context.Background()

	// Пустой набор проводок.
	_, err := svc.CreateTransaction(ctx, rctx(), ledger.ID, "order", "o1", "ref-1", "empty", nil)
	if !errors.Is(err, domain.ErrLedgerEntriesRequired) {
		t.Fatalf("expected ErrLedgerEntriesRequired, got %v", err)
	}

	// Отрицательная сумма.
	_, err = svc.CreateTransaction(ctx, rctx(), ledger.ID, "order", "o1", "ref-1", "negative", []EntryInput{
		{AccountCode: domain.AccountCash, Type: domain.EntryDebit, AmountMinor: -100},
		{AccountCode: domain.AccountRevenue, Type: domain.EntryCredit, AmountMinor: -100},
	})
	if !errors.Is(err, domain.ErrAmountNegative) {
		t.Fatalf("expected ErrAmountNegative, got %v", err)
	}

	// Некорректный тип проводки.
	_, err = svc.CreateTransaction(ctx, rctx(), ledger.ID, "order", "o1", "ref-1", "bad type", []EntryInput{
		{AccountCode: domain.AccountCash, Type: "transfer", AmountMinor: 100},
		{AccountCode: domain.AccountRevenue, Type: domain.EntryCredit, AmountMinor: 100},
	})
	if !errors.Is(err, domain.ErrLedgerEntryTypeInvalid) {
		t.Fatalf("expected ErrLedgerEntryTypeInvalid, got %v", err)
	}

	// Дебеты не равны кредитам.
	_, err = svc.CreateTransaction(ctx, rctx(), ledger.ID, "order", "o1", "ref-1", "unbalanced", []EntryInput{
		{AccountCode: domain.AccountCash, Type: domain.EntryDebit, AmountMinor: 100},
		{AccountCode: domain.AccountRevenue, Type: domain.EntryCredit, AmountMinor: 99},
	})
	if !errors.Is(err, domain.ErrLedgerUnbalanced) {
		t.Fatalf("expected ErrLedgerUnbalanced, got %v", err)
	}
}

func TestCreateTransactionBalancedPersists(t *testing.T) {
	svc, ledger := newTestService(t)
	ctx := context.Background()

	tx, err := svc.CreateTransaction(ctx, rctx(), ledger.ID, "order", "o1", "ref-1", "payment", []EntryInput{
		{AccountCode: domain.AccountCash, Type: domain.EntryDebit, AmountMinor: 1200},
		{AccountCode: domain.AccountRevenue, Type: domain.EntryCredit, AmountMinor: 1000},
		{AccountCode: domain.AccountTaxPayable, Type: domain.EntryCredit, AmountMinor: 200},
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	if len(tx.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(tx.Entries))
	}
	if tx.DebitTotal() != tx.CreditTotal() {
		t.Fatalf("transaction must be balanced: %d vs %d", tx.DebitTotal(), tx.CreditTotal())
	}
}

func TestPostOrderPaidIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	fo := domain.FinancialOrder{
		ID:            "fo-1",
		TenantID:      "tenant-1",
		OrderID:       "order-1",
		Currency:      "USD",
		SubtotalMinor: 10000,
		TaxTotalMinor: 2000,
		TotalMinor:    12000,
	}

	first, err := svc.PostOrderPaid(ctx, rctx(), fo, "pi_1")
	if err != nil {
		t.Fatalf("first posting: %v", err)
	}
	if first.DebitTotal() != 12000 {
		t.Fatalf("expected debit total 12000, got %d", first.DebitTotal())
	}

	second, err := svc.PostOrderPaid(ctx, rctx(), fo, "pi_1")
	if err != nil {
		t.Fatalf("second posting: %v", err)
	}
	if second.ID != first.ID {
		t.Fatal("duplicate posting must return the existing transaction")
	}
}

func TestPostOrderRefundedRoundingRemainder(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// Итог 1001, налог 167: доли возврата не делятся нацело.
	fo := domain.FinancialOrder{
		ID:            "fo-1",
		TenantID:      "tenant-1",
		OrderID:       "order-1",
		Currency:      "USD",
		SubtotalMinor: 834,
		TaxTotalMinor: 167,
		TotalMinor:    1001,
	}

	tx, err := svc.PostOrderRefunded(ctx, rctx(), fo, 500, "re_1")
	if err != nil {
		t.Fatalf("refund posting: %v", err)
	}

	if tx.DebitTotal() != 500 || tx.CreditTotal() != 500 {
		t.Fatalf("refund posting must balance to the refund amount: debit=%d credit=%d",
			tx.DebitTotal(), tx.CreditTotal())
	}
}

func TestPostOrderRefundedFullAmount(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	fo := domain.FinancialOrder{
		ID:            "fo-1",
		TenantID:      "tenant-1",
		OrderID:       "order-1",
		Currency:      "USD",
		SubtotalMinor: 10000,
		TaxTotalMinor: 2000,
		TotalMinor:    12000,
	}

	tx, err := svc.PostOrderRefunded(ctx, rctx(), fo, 12000, "re_full")
	if err != nil {
		t.Fatalf("refund posting: %v", err)
	}
	// Налоговая доля полного возврата равна исходному налогу.
	var taxDebit int64
	for _, entry := range tx.Entries {
		if entry.Type == domain.EntryDebit && entry.Memo == "tax reversal" {
			taxDebit = entry.AmountMinor
		}
	}
	if taxDebit != 2000 {
		t.Fatalf("expected tax reversal 2000, got %d", taxDebit)
	}
}
