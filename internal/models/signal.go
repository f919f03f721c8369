package models

import "github.com/shopspring/decimal"

// Side — "BUY"/"SELL" или пустая строка (HOLD).
type Side string

const (
	SideNone Side = ""
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Decision — ответ стратегии на окно свечей.
// Для crossover-стратегий работает Side; для gated-стратегий
// (вход по часу/потолку цены) — EntryEligible, выход считает движок.
type Decision struct {
	Side          Side
	EntryEligible bool
	Reason        string
}

// ExitPolicy — параметры выхода, которые стратегия отдаёт движку.
// TrailingStopPct == 0 → трейлинг выключен, выход только по сигналу SELL.
type ExitPolicy struct {
	TrailingStopPct decimal.Decimal
	// NeverSellAtLoss: трейлинг проверяется только при profitPct > 0,
	// в минусе держим позицию сколько угодно (без таймаута, осознанно).
	NeverSellAtLoss bool
}
