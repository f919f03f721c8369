package strategy

import (
	"fmt"

	talib "github.com/markcheno/go-talib"

	"overnight_bot/internal/models"
)

// MACross — классический кроссовер двух SMA: fast пересекает slow снизу
// вверх → BUY, сверху вниз → SELL. Без трейлинга, выход по своему же SELL.
type MACross struct {
	fast int
	slow int
}

type MACrossConfig struct {
	FastPeriod int
	SlowPeriod int
}

func NewMACross(cfg MACrossConfig) *MACross {
	fast, slow := cfg.FastPeriod, cfg.SlowPeriod
	if fast <= 0 {
		fast = 20
	}
	if slow <= fast {
		slow = 50
	}
	return &MACross{fast: fast, slow: slow}
}

func (s *MACross) Name() string { return "macross" }

func (s *MACross) DayGated() bool { return false }

func (s *MACross) Exits() models.ExitPolicy { return models.ExitPolicy{} }

func (s *MACross) Evaluate(window []models.Candle) models.Decision {
	// для кросса нужны значения на текущей и предыдущей свече
	if len(window) < s.slow+1 {
		return models.Decision{Reason: "warmup"}
	}

	closes := make([]float64, len(window))
	for i, c := range window {
		closes[i] = c.Close.InexactFloat64()
	}

	fast := talib.Sma(closes, s.fast)
	slow := talib.Sma(closes, s.slow)

	n := len(closes) - 1
	prevFast, prevSlow := fast[n-1], slow[n-1]
	curFast, curSlow := fast[n], slow[n]

	if prevFast <= prevSlow && curFast > curSlow {
		return models.Decision{
			Side:   models.SideBuy,
			Reason: fmt.Sprintf("SMA%d crossed above SMA%d", s.fast, s.slow),
		}
	}
	if prevFast >= prevSlow && curFast < curSlow {
		return models.Decision{
			Side:   models.SideSell,
			Reason: fmt.Sprintf("SMA%d crossed below SMA%d", s.fast, s.slow),
		}
	}
	return models.Decision{Reason: "no crossover"}
}
