package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Состояния позиции. Инвариант: FLAT ⇒ все поля нулевые,
// LONG ⇒ PeakPrice >= EntryPrice (peak только растёт).
const (
	StateFlat = "FLAT"
	StateLong = "LONG"
)

// Position — единственная позиция движка (один актив, без шортов).
// Мутирует только execution engine; риск-менеджер читает.
type Position struct {
	State      string          `json:"state"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	EntryTime  time.Time       `json:"entry_time"`
	PeakPrice  decimal.Decimal `json:"peak_price"`
	Quantity   decimal.Decimal `json:"quantity"`
	// EntryCash — сколько кэша ушло на вход (notional + комиссия),
	// база для расчёта pnl net of fees.
	EntryCash decimal.Decimal `json:"entry_cash"`
	// EntryFee — комиссия входа, войдёт в Trade.FeePaid при закрытии.
	EntryFee decimal.Decimal `json:"entry_fee"`
}

func (p Position) IsLong() bool { return p.State == StateLong }

// Reset возвращает позицию в FLAT, обнуляя все поля.
func (p *Position) Reset() {
	*p = Position{State: StateFlat}
}
