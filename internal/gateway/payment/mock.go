package payment

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// MockGateway — конфигурируемая заглушка PaymentGateway для тестов.
type MockGateway struct {
	IntentErr  error
	ConfirmErr error
	RefundErr  error
	CancelErr  error

	IntentCalls  int
	ConfirmCalls int
	RefundCalls  int
	CancelCalls  int

	LastRefundAmount int64
	LastRefundKey    string
}

// NewMockGateway возвращает mock с успешным сценарием по умолчанию.
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

// CreateIntent возвращает детерминированный intent по id платежа.
func (m *MockGateway) CreateIntent(ctx context.Context, payment domain.Payment, metadata map[string]string) (domain.PaymentIntent, error) {
	m.IntentCalls++
	if m.IntentErr != nil {
		return domain.PaymentIntent{}, m.IntentErr
	}
	return domain.PaymentIntent{
		ProviderPaymentID: "pi_" + payment.ID,
		ClientSecret:      fmt.Sprintf("pi_%s_secret", payment.ID),
	}, nil
}

// Confirm возвращает настроенную ошибку и считает вызовы.
func (m *MockGateway) Confirm(ctx context.Context, payment domain.Payment) error {
	m.ConfirmCalls++
	return m.ConfirmErr
}

// Refund возвращает детерминированную ссылку на возврат.
func (m *MockGateway) Refund(ctx context.Context, payment domain.Payment, amountMinor int64, idempotencyKey string) (string, error) {
	m.RefundCalls++
	m.LastRefundAmount = amountMinor
	m.LastRefundKey = idempotencyKey
	if m.RefundErr != nil {
		return "", m.RefundErr
	}
	return "re_" + payment.ID, nil
}

// Cancel возвращает настроенную ошибку и считает вызовы.
func (m *MockGateway) Cancel(ctx context.Context, payment domain.Payment) error {
	m.CancelCalls++
	return m.CancelErr
}

var _ domain.PaymentGateway = (*MockGateway)(nil)
