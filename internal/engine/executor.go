package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"overnight_bot/internal/models"
)

var d100 = decimal.NewFromInt(100)

// Fill — результат исполнения ордера (симулированного или реального).
type Fill struct {
	Time     time.Time
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Fee      decimal.Decimal
}

// Executor — единственный шов между бэктестом и live: решения движка
// одинаковые, различается только источник филлов.
type Executor interface {
	// Buy покупает на notional кэша. c — свеча-наблюдение, на которой
	// принято решение (симулятор филлит по её close).
	Buy(ctx context.Context, notional decimal.Decimal, c models.Candle) (Fill, error)
	// Sell продаёт qty целиком.
	Sell(ctx context.Context, qty decimal.Decimal, c models.Candle) (Fill, error)
}

// SimExecutor — бэктестовый исполнитель: мгновенный филл по close
// с плоской комиссией feePct от notional с обеих сторон.
type SimExecutor struct {
	FeePct decimal.Decimal // 0.1 = 0.1%
}

func (s SimExecutor) feeRate() decimal.Decimal { return s.FeePct.Div(d100) }

func (s SimExecutor) Buy(_ context.Context, notional decimal.Decimal, c models.Candle) (Fill, error) {
	price := c.Close
	// qty = notional / (price * (1 + fee)): комиссия съедает часть монет
	denom := price.Mul(decimal.NewFromInt(1).Add(s.feeRate()))
	qty := notional.Div(denom).Truncate(12)
	fee := qty.Mul(price).Mul(s.feeRate())
	return Fill{Time: c.Start, Price: price, Quantity: qty, Fee: fee}, nil
}

func (s SimExecutor) Sell(_ context.Context, qty decimal.Decimal, c models.Candle) (Fill, error) {
	price := c.Close
	fee := qty.Mul(price).Mul(s.feeRate())
	return Fill{Time: c.Start, Price: price, Quantity: qty, Fee: fee}, nil
}
