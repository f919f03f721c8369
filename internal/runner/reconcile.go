package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"overnight_bot/internal/state"
	"overnight_bot/pkg/logger"
)

// допуск на пыль и комиссии в базовой валюте
var reconcileTolerance = decimal.NewFromFloat(0.995)

// остатки дешевле 10 единиц котируемой валюты считаем пылью
var dustNotional = decimal.NewFromInt(10)

// reconcile сверяет снапшот с реальным балансом биржи в обе стороны.
// LONG без монет на счёте — нельзя «продать» несуществующую позицию;
// FLAT при монетах на счёте — позиция, о которой бот не знает.
// Любое расхождение — фатал на старте, нужен ручной разбор.
func (r *Runner) reconcile(ctx context.Context, snap state.Snapshot) error {
	base, _, ok := strings.Cut(r.cfg.Symbol, "-")
	if !ok {
		return fmt.Errorf("непонятный символ %q", r.cfg.Symbol)
	}
	bal, err := r.client.Balance(ctx, base)
	if err != nil {
		return fmt.Errorf("сверка с биржей: %w", err)
	}

	if snap.Position.IsLong() {
		want := snap.Position.Quantity.Mul(reconcileTolerance)
		if bal.LessThan(want) {
			return fmt.Errorf("снапшот ждёт %s %s, на бирже %s: расхождение, нужен ручной разбор",
				snap.Position.Quantity, base, bal)
		}
		logger.Info("[RUNNER] сверка ок: %s %s на счёте", bal, base)
		return nil
	}

	if bal.IsPositive() {
		px, err := r.client.CurrentPrice(ctx, r.cfg.Symbol, r.cfg.MaxDataAge)
		if err != nil {
			return fmt.Errorf("сверка с биржей: %w", err)
		}
		if notional := bal.Mul(px); notional.GreaterThan(dustNotional) {
			if !r.cfg.StartFresh {
				return fmt.Errorf("снапшот FLAT, но на бирже %s %s (~%s): расхождение, нужен ручной разбор",
					bal, base, notional.StringFixed(2))
			}
			logger.Warn("[RUNNER] снапшот FLAT, на бирже %s %s, start_fresh разрешён — монеты игнорируем", bal, base)
			return nil
		}
	}
	logger.Info("[RUNNER] сверка ок: позиция FLAT, на счёте только пыль")
	return nil
}
