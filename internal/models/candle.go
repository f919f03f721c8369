package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle — одно ценовое наблюдение (закрытая свеча).
// Неизменяемая; движок требует строго возрастающий Start.
type Candle struct {
	Start  time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
}

// EquityPoint — точка кривой капитала (mark-to-market на момент свечи).
type EquityPoint struct {
	At    time.Time
	Value decimal.Decimal
}
