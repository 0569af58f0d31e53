package memory

import (
	"context"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// TxRunner — in-memory замена транзакций: fn исполняется напрямую, без
// атомарности. Пригоден для локальной разработки и unit-тестов, где
// репозитории этого пакета и так последовательны.
type TxRunner struct{}

// NewTxRunner возвращает no-op TxRunner.
func NewTxRunner() *TxRunner {
	return &TxRunner{}
}

// RunInTx исполняет fn с исходным context.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

var _ domain.TxRunner = (*TxRunner)(nil)
