package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

type txCtxKey struct{}

// querier покрывает общую часть *sql.DB и *sql.Tx, так что репозитории
// работают одинаково внутри и снаружи транзакции.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxRunner исполняет fn в одной транзакции БД. Транзакция кладётся в context,
// и репозитории этого пакета присоединяются к ней через q(ctx). Вложенный
// RunInTx переиспользует уже открытую транзакцию.
type TxRunner struct {
	db *sql.DB
}

// NewTxRunner создаёт TxRunner поверх подключения Store.
func NewTxRunner(store *Store) *TxRunner {
	return &TxRunner{db: store.DB()}
}

// RunInTx открывает транзакцию, кладёт её в context и исполняет fn.
// Ошибка fn откатывает транзакцию целиком.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txFromContext(ctx); ok {
		return fn(ctx)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(context.WithValue(ctx, txCtxKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func txFromContext(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txCtxKey{}).(*sql.Tx)
	return tx, ok
}

// q возвращает транзакцию из context, если она есть, иначе пул подключений.
func q(ctx context.Context, db *sql.DB) querier {
	if tx, ok := txFromContext(ctx); ok {
		return tx
	}
	return db
}

var _ domain.TxRunner = (*TxRunner)(nil)
