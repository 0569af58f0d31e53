package domain

import "time"

// AccountCode — код счёта в фиксированном плане счетов тенанта.
type AccountCode string

const (
	// AccountCash — денежные средства.
	AccountCash AccountCode = "cash"
	// AccountRevenue — выручка.
	AccountRevenue AccountCode = "revenue"
	// AccountTaxPayable — налог к уплате.
	AccountTaxPayable AccountCode = "tax_payable"
	// AccountReceivable — дебиторская задолженность.
	AccountReceivable AccountCode = "accounts_receivable"
	// AccountRefundLiability — обязательства по возвратам.
	AccountRefundLiability AccountCode = "refund_liability"
)

// ChartOfAccounts — фиксированный набор счетов, создаваемый для каждого ledger.
var ChartOfAccounts = []AccountCode{
	AccountCash,
	AccountRevenue,
	AccountTaxPayable,
	AccountReceivable,
	AccountRefundLiability,
}

// EntryType — направление проводки.
type EntryType string

const (
	// EntryDebit — дебетовая проводка.
	EntryDebit EntryType = "debit"
	// EntryCredit — кредитовая проводка.
	EntryCredit EntryType = "credit"
)

// Ledger — одна книга учёта на тенанта, с единственной валютой.
type Ledger struct {
	ID        string
	TenantID  string
	Currency  string
	CreatedAt time.Time
}

// LedgerAccount — счёт в плане счетов ledger.
type LedgerAccount struct {
	ID        string
	LedgerID  string
	Code      AccountCode
	Name      string
	CreatedAt time.Time
}

// LedgerEntry — одна проводка внутри транзакции. Проводки append-only:
// никогда не редактируются и не удаляются.
type LedgerEntry struct {
	ID          string
	AccountID   string
	Type        EntryType
	AmountMinor int64
	Currency    string
	Memo        string
	CreatedAt   time.Time
}

// LedgerTransaction группирует сбалансированный набор проводок вокруг
// одного экономического события (оплата, возврат).
type LedgerTransaction struct {
	ID            string
	LedgerID      string
	ReferenceType string // "order", "refund"
	ReferenceID   string
	ProviderRef   string
	Description   string
	Entries       []LedgerEntry
	CreatedAt     time.Time
}

// ValidateBalanced проверяет инварианты транзакции до записи:
// непустой набор проводок, неотрицательные суммы, корректный тип и
// равенство сумм дебетов и кредитов. Проверка выполняется до персистенции
// и никогда после.
func (t *LedgerTransaction) ValidateBalanced() error {
	if len(t.Entries) == 0 {
		return ErrLedgerEntriesRequired
	}

	var debits, credits int64
	for _, entry := range t.Entries {
		if entry.AmountMinor < 0 {
			return ErrAmountNegative
		}
		switch entry.Type {
		case EntryDebit:
			debits += entry.AmountMinor
		case EntryCredit:
			credits += entry.AmountMinor
		default:
			return ErrLedgerEntryTypeInvalid
		}
	}

	if debits != credits {
		return ErrLedgerUnbalanced
	}
	return nil
}

// DebitTotal возвращает сумму дебетовых проводок.
func (t *LedgerTransaction) DebitTotal() int64 {
	var total int64
	for _, entry := range t.Entries {
		if entry.Type == EntryDebit {
			total += entry.AmountMinor
		}
	}
	return total
}

// CreditTotal возвращает сумму кредитовых проводок.
func (t *LedgerTransaction) CreditTotal() int64 {
	var total int64
	for _, entry := range t.Entries {
		if entry.Type == EntryCredit {
			total += entry.AmountMinor
		}
	}
	return total
}
