package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Settings — параметры всех стратегий из конфига; фабрика выбирает по Name.
type Settings struct {
	Name string

	// overnight
	EntryHour     int
	Timezone      string
	MaxEntryPrice decimal.Decimal

	// macross
	FastPeriod int
	SlowPeriod int

	// neverloss
	LookbackBars int
	PriceDropPct decimal.Decimal

	// общий трейлинг для overnight/neverloss
	TrailingStopPct decimal.Decimal
}

func New(ts Settings) (Strategy, error) {
	switch ts.Name {
	case "macross":
		return NewMACross(MACrossConfig{
			FastPeriod: ts.FastPeriod,
			SlowPeriod: ts.SlowPeriod,
		}), nil

	case "neverloss":
		return NewNeverLoss(NeverLossConfig{
			LookbackBars:    ts.LookbackBars,
			PriceDropPct:    ts.PriceDropPct,
			TrailingStopPct: ts.TrailingStopPct,
		}), nil

	case "overnight", "":
		return NewOvernight(OvernightConfig{
			EntryHour:       ts.EntryHour,
			MaxEntryPrice:   ts.MaxEntryPrice,
			TrailingStopPct: ts.TrailingStopPct,
			Timezone:        ts.Timezone,
		})

	default:
		return nil, fmt.Errorf("unknown strategy %q", ts.Name)
	}
}
