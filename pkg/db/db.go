package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"overnight_bot/pkg/logger"
)

// Querier — общий срез pgx-пула и транзакции.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Manager — обёртка над pgxpool с транзакционным helper-ом.
type Manager struct {
	pool *pgxpool.Pool
}

func NewManager(ctx context.Context, dsn string) (*Manager, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgx ping: %w", err)
	}
	return &Manager{pool: pool}, nil
}

func (m *Manager) Conn() Querier { return m.pool }

func (m *Manager) Close() { m.pool.Close() }

// InTx выполняет fn в транзакции ReadCommitted: rollback на ошибке
// или панике, commit при успехе.
func (m *Manager) InTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) (err error) {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			logger.Error("паника в транзакции: %v", p)
			_ = tx.Rollback(ctx)
			panic(p)
		} else if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	if err = fn(ctx, tx); err != nil {
		return fmt.Errorf("tx fn: %w", err)
	}
	return nil
}
