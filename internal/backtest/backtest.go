package backtest

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"overnight_bot/internal/engine"
	"overnight_bot/internal/models"
	"overnight_bot/internal/risk"
	"overnight_bot/pkg/logger"
)

// Result — итог прогона по историческим свечам.
type Result struct {
	InitialCash decimal.Decimal
	FinalEquity decimal.Decimal
	FirstClose  decimal.Decimal
	LastClose   decimal.Decimal
	Trades      []models.Trade
	Curve       []models.EquityPoint
	Events      []models.Event
	Skipped     int
	Candles     int
}

// Run прогоняет свечи через тот же гард и движок, что и live-режим.
// Дубликаты и свечи не по порядку — ошибка данных: логируем и пропускаем,
// состояние не трогаем. В конце открытая позиция закрывается принудительно.
func Run(ctx context.Context, g *risk.Guard, eng *engine.Engine, initialCash decimal.Decimal, candles []models.Candle) (Result, error) {
	if len(candles) == 0 {
		return Result{}, errors.New("empty candle set")
	}

	res := Result{
		InitialCash: initialCash,
		FirstClose:  candles[0].Close,
		LastClose:   candles[len(candles)-1].Close,
		Candles:     len(candles),
	}

	for _, c := range candles {
		evs, err := g.OnCandle(ctx, c)
		res.Events = append(res.Events, evs...)
		if err != nil {
			if errors.Is(err, engine.ErrDuplicateCandle) || errors.Is(err, engine.ErrOutOfOrder) {
				logger.Warn("[BACKTEST] пропуск свечи: %v", err)
				res.Skipped++
				continue
			}
			return res, fmt.Errorf("candle %s: %w", c.Start, err)
		}
	}

	if ev, err := eng.ForceClose(ctx); err != nil {
		return res, fmt.Errorf("force close: %w", err)
	} else if ev != nil {
		res.Events = append(res.Events, *ev)
	}

	res.Trades = eng.Trades()
	res.Curve = eng.Curve()
	res.FinalEquity = eng.Cash()
	return res, nil
}
