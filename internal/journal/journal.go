package journal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"overnight_bot/internal/models"
	"overnight_bot/pkg/db"
)

// Journal — необязательный журнал сделок в Postgres. Снапшот на диске
// остаётся источником истины; журнал только для аналитики, его ошибки
// не должны ронять торговый цикл.
type Journal struct {
	mgr    *db.Manager
	symbol string
}

const schema = `
CREATE TABLE IF NOT EXISTS trades (
    id          BIGSERIAL PRIMARY KEY,
    symbol      TEXT        NOT NULL,
    entry_time  TIMESTAMPTZ NOT NULL,
    entry_price NUMERIC     NOT NULL,
    exit_time   TIMESTAMPTZ NOT NULL,
    exit_price  NUMERIC     NOT NULL,
    quantity    NUMERIC     NOT NULL,
    fee_paid    NUMERIC     NOT NULL,
    pnl_abs     NUMERIC     NOT NULL,
    pnl_pct     NUMERIC     NOT NULL,
    exit_reason TEXT        NOT NULL
)`

func New(ctx context.Context, mgr *db.Manager, symbol string) (*Journal, error) {
	if _, err := mgr.Conn().Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("journal schema: %w", err)
	}
	return &Journal{mgr: mgr, symbol: symbol}, nil
}

// Record пишет закрытую сделку.
func (j *Journal) Record(ctx context.Context, t models.Trade) error {
	return j.mgr.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO trades (symbol, entry_time, entry_price, exit_time, exit_price,
			                     quantity, fee_paid, pnl_abs, pnl_pct, exit_reason)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			j.symbol, t.EntryTime, t.EntryPrice, t.ExitTime, t.ExitPrice,
			t.Quantity, t.FeePaid, t.PnlAbs, t.PnlPct, t.ExitReason)
		return err
	})
}

// Recent — последние n сделок по символу, свежие первыми.
func (j *Journal) Recent(ctx context.Context, n int) ([]models.Trade, error) {
	rows, err := j.mgr.Conn().Query(ctx,
		`SELECT entry_time, entry_price, exit_time, exit_price,
		        quantity, fee_paid, pnl_abs, pnl_pct, exit_reason
		 FROM trades WHERE symbol = $1 ORDER BY exit_time DESC LIMIT $2`,
		j.symbol, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Trade
	for rows.Next() {
		var t models.Trade
		if err := rows.Scan(&t.EntryTime, &t.EntryPrice, &t.ExitTime, &t.ExitPrice,
			&t.Quantity, &t.FeePaid, &t.PnlAbs, &t.PnlPct, &t.ExitReason); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
