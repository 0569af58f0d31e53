package domain

import "errors"

var (
	// Ошибка отсутствующего идентификатора тенанта.
	ErrTenantRequired = errors.New("tenant_id is required")
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// ErrCurrencyMismatch возвращается при арифметике над разными валютами.
	ErrCurrencyMismatch = errors.New("currency mismatch")
	// ErrAmountNegative — денежная сумма не может быть отрицательной.
	ErrAmountNegative = errors.New("amount_minor must be non-negative")

	// ErrCartNotFound возвращается, если корзина не найдена.
	ErrCartNotFound = errors.New("cart not found")
	// ErrCartEmpty — чекаут невозможен для пустой корзины.
	ErrCartEmpty = errors.New("cart must contain at least one item")
	// ErrCartNotActive — корзина уже сконвертирована или заброшена.
	ErrCartNotActive = errors.New("cart is not active")
	// ErrCustomerEmailRequired — у корзины нет идентичности покупателя.
	ErrCustomerEmailRequired = errors.New("customer email is required")
	// ErrItemQtyInvalid — некорректное количество в позиции (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// ErrItemPriceInvalid — отрицательная цена позиции.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")

	// ErrOrderIDRequired — обязательный идентификатор заказа отсутствует.
	ErrOrderIDRequired = errors.New("order_id is required")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrInvalidStateTransition — переход статуса вне таблицы переходов.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrFinancialOrderNotFound возвращается, если финансовый заказ не найден.
	ErrFinancialOrderNotFound = errors.New("financial order not found")
	// ErrAlreadyLocked — повторная попытка заморозить финансовый заказ.
	ErrAlreadyLocked = errors.New("financial order is already locked")
	// ErrNotLocked — операция требует зафиксированного snapshot.
	ErrNotLocked = errors.New("financial order is not locked")
	// ErrTotalsMismatch — нарушен инвариант subtotal + tax == total.
	ErrTotalsMismatch = errors.New("subtotal and tax do not add up to total")

	// ErrPaymentNotFound возвращается, если платёж не найден.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrPaymentInitFailed — провайдер недоступен или отклонил создание intent.
	ErrPaymentInitFailed = errors.New("payment initialization failed")
	// ErrRefundExceedsPaid — возврат превышает сумму завершённых платежей.
	ErrRefundExceedsPaid = errors.New("refund cannot exceed paid amount")

	// ErrInsufficientStock — склад не может покрыть запрошенное количество.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrStockTemporary — временная ошибка при обращении к складу.
	ErrStockTemporary = errors.New("stock gateway temporary error")

	// ErrLedgerNotFound возвращается, если ledger тенанта не найден.
	ErrLedgerNotFound = errors.New("ledger not found")
	// ErrLedgerAccountNotFound — счёт отсутствует в плане счетов.
	ErrLedgerAccountNotFound = errors.New("ledger account not found")
	// ErrLedgerEntriesRequired — транзакция без проводок не имеет смысла.
	ErrLedgerEntriesRequired = errors.New("ledger transaction requires at least one entry")
	// ErrLedgerEntryTypeInvalid — проводка не является ни дебетом, ни кредитом.
	ErrLedgerEntryTypeInvalid = errors.New("ledger entry must be debit or credit")
	// ErrLedgerUnbalanced — сумма дебетов не равна сумме кредитов.
	ErrLedgerUnbalanced = errors.New("ledger transaction is unbalanced")
	// ErrLedgerTransactionExists — транзакция с такой ссылкой уже записана.
	ErrLedgerTransactionExists = errors.New("ledger transaction already recorded")

	// ErrInvoiceNotFound возвращается, если счёт не найден.
	ErrInvoiceNotFound = errors.New("invoice not found")
	// ErrCreditNoteExceedsInvoice — кредит-нота превышает остаток по счёту.
	ErrCreditNoteExceedsInvoice = errors.New("credit note cannot exceed invoice total")

	// ErrPromotionNotFound возвращается, если промо-акция не найдена.
	ErrPromotionNotFound = errors.New("promotion not found")
	// ErrPromotionUsageExists — usage по паре (promotion, order) уже записан.
	ErrPromotionUsageExists = errors.New("promotion usage already recorded")

	// ErrIdempotencyKeyRequired — пустой idempotency-key недопустим.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — без хеша запроса replay нельзя сверить.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyNotFound возвращается, если запись по ключу не найдена.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrIdempotencyKeyAlreadyExists — ключ уже зарегистрирован.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — тот же ключ пришёл с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency request hash mismatch")

	// ErrProviderEventExists — событие провайдера с таким id уже зарегистрировано.
	ErrProviderEventExists = errors.New("provider event already recorded")
	// ErrProviderEventNotFound возвращается, если событие не найдено.
	ErrProviderEventNotFound = errors.New("provider event not found")
	// ErrWebhookSecretMissing — секрет подписи webhook не сконфигурирован.
	ErrWebhookSecretMissing = errors.New("webhook secret is not configured")
	// ErrWebhookSignatureInvalid — подпись webhook не прошла проверку.
	ErrWebhookSignatureInvalid = errors.New("webhook signature is invalid")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsNotFound проверяет, относится ли ошибка к классу "ресурс не найден".
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCartNotFound) ||
		errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrFinancialOrderNotFound) ||
		errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, ErrInvoiceNotFound) ||
		errors.Is(err, ErrLedgerNotFound) ||
		errors.Is(err, ErrLedgerAccountNotFound) ||
		errors.Is(err, ErrPromotionNotFound)
}

// IsBusinessRuleViolation проверяет, относится ли ошибка к нарушениям
// бизнес-правил (422 на транспортном уровне).
func IsBusinessRuleViolation(err error) bool {
	return errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInvalidStateTransition) ||
		errors.Is(err, ErrLedgerUnbalanced) ||
		errors.Is(err, ErrAlreadyLocked) ||
		errors.Is(err, ErrRefundExceedsPaid) ||
		errors.Is(err, ErrCreditNoteExceedsInvoice) ||
		errors.Is(err, ErrCartNotActive)
}

// IsValidation проверяет, относится ли ошибка к ошибкам валидации входа.
func IsValidation(err error) bool {
	return errors.Is(err, ErrCartEmpty) ||
		errors.Is(err, ErrCustomerEmailRequired) ||
		errors.Is(err, ErrTenantRequired) ||
		errors.Is(err, ErrCurrencyRequired) ||
		errors.Is(err, ErrItemQtyInvalid) ||
		errors.Is(err, ErrItemPriceInvalid) ||
		errors.Is(err, ErrAmountNegative) ||
		errors.Is(err, ErrTotalsMismatch) ||
		errors.Is(err, ErrOrderIDRequired)
}

// IsRetryable проверяет, имеет ли смысл повторять операцию.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStockTemporary) ||
		errors.Is(err, ErrPaymentInitFailed)
}
