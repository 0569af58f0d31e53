package domain

// IssueType классифицирует расхождение, найденное reconciliation.
type IssueType string

const (
	// IssueLedgerUnbalanced — транзакция ledger с неравными дебетами и кредитами.
	IssueLedgerUnbalanced IssueType = "ledger_unbalanced"
	// IssueInvoiceTotalMismatch — итог счёта не совпадает с итогом финансового заказа.
	IssueInvoiceTotalMismatch IssueType = "invoice_total_mismatch"
	// IssuePaymentTotalMismatch — сумма кредитовых транзакций не равна итогу заказа.
	IssuePaymentTotalMismatch IssueType = "payment_total_mismatch"
)

// ReconciliationIssue — структурированное описание одного расхождения.
// Расхождения только регистрируются; система никогда не исправляет
// финансовые данные автоматически.
type ReconciliationIssue struct {
	Type             IssueType `json:"type"`
	TenantID         string    `json:"tenant_id"`
	FinancialOrderID string    `json:"financial_order_id"`
	TransactionID    string    `json:"transaction_id,omitempty"`
	ExpectedMinor    int64     `json:"expected_cents"`
	ActualMinor      int64     `json:"actual_cents"`
	Detail           string    `json:"detail,omitempty"`
}
