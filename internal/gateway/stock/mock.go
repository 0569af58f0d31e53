package stock

import (
	"context"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// MockGateway — конфигурируемая заглушка StockGateway для тестов.
type MockGateway struct {
	ValidateErr error
	ReserveErr  error
	ReleaseErr  error
	AllocateErr error
	DeallocErr  error

	ValidateCalls int
	ReserveCalls  int
	ReleaseCalls  int
	AllocateCalls int
	DeallocCalls  int
}

// NewMockGateway возвращает mock с успешным сценарием по умолчанию.
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

// Validate возвращает заранее настроенную ошибку и считает вызовы.
func (m *MockGateway) Validate(ctx context.Context, items []domain.StockItem) error {
	m.ValidateCalls++
	return m.ValidateErr
}

// Reserve возвращает заранее настроенную ошибку и считает вызовы.
func (m *MockGateway) Reserve(ctx context.Context, items []domain.StockItem) error {
	m.ReserveCalls++
	return m.ReserveErr
}

// Release возвращает заранее настроенную ошибку и считает вызовы.
func (m *MockGateway) Release(ctx context.Context, items []domain.StockItem) error {
	m.ReleaseCalls++
	return m.ReleaseErr
}

// AllocateForOrder возвращает настроенную ошибку и считает вызовы.
func (m *MockGateway) AllocateForOrder(ctx context.Context, orderID string, items []domain.StockItem) error {
	m.AllocateCalls++
	return m.AllocateErr
}

// ReleaseAllocation возвращает настроенную ошибку и считает вызовы.
func (m *MockGateway) ReleaseAllocation(ctx context.Context, orderID string, items []domain.StockItem) error {
	m.DeallocCalls++
	return m.DeallocErr
}

var _ domain.StockGateway = (*MockGateway)(nil)
