package domain

// RequestContext несёт явный контекст запроса через все ядровые операции:
// тенант, валюта его ledger и инициатор. Ядро никогда не читает эти данные
// из глобального состояния.
type RequestContext struct {
	TenantID string
	Currency string
	ActorID  string
}

// Validate проверяет обязательные поля контекста.
func (rc RequestContext) Validate() []error {
	var errs []error

	if rc.TenantID == "" {
		errs = append(errs, ErrTenantRequired)
	}
	if rc.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}

	return errs
}
