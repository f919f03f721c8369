package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExitReason — почему закрылась сделка.
const (
	ExitTrailingStop   = "TRAILING_STOP"
	ExitStrategySignal = "STRATEGY_SIGNAL"
	ExitEndOfData      = "END_OF_DATA" // принудительная ликвидация в конце бэктеста
)

// Trade — закрытая сделка. Создаётся на закрытии, больше не мутирует.
type Trade struct {
	EntryTime  time.Time       `json:"entry_time"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	ExitTime   time.Time       `json:"exit_time"`
	ExitPrice  decimal.Decimal `json:"exit_price"`
	Quantity   decimal.Decimal `json:"quantity"`
	FeePaid    decimal.Decimal `json:"fee_paid"` // обе комиссии: вход + выход
	PnlAbs     decimal.Decimal `json:"pnl_abs"`  // net of both fees
	PnlPct     decimal.Decimal `json:"pnl_pct"`
	ExitReason string          `json:"exit_reason"`
}

func (t Trade) IsLoss() bool { return t.PnlAbs.IsNegative() }
