package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"overnight_bot/internal/models"
)

var d100 = decimal.NewFromInt(100)

// NeverLoss — вход на просадке: цена упала не меньше чем на dropPct
// за lookback свечей. Выход — трейлинг от пика, но строго в плюсе:
// пока позиция в минусе, держим без ограничения по времени.
type NeverLoss struct {
	lookback    int
	dropPct     decimal.Decimal // положительное число, например 0.3 = -0.3%
	trailingPct decimal.Decimal
}

type NeverLossConfig struct {
	LookbackBars    int
	PriceDropPct    decimal.Decimal
	TrailingStopPct decimal.Decimal
}

func NewNeverLoss(cfg NeverLossConfig) *NeverLoss {
	lb := cfg.LookbackBars
	if lb <= 0 {
		lb = 4
	}
	return &NeverLoss{
		lookback:    lb,
		dropPct:     cfg.PriceDropPct,
		trailingPct: cfg.TrailingStopPct,
	}
}

func (s *NeverLoss) Name() string { return "neverloss" }

func (s *NeverLoss) DayGated() bool { return false }

func (s *NeverLoss) Exits() models.ExitPolicy {
	return models.ExitPolicy{
		TrailingStopPct: s.trailingPct,
		NeverSellAtLoss: true,
	}
}

func (s *NeverLoss) Evaluate(window []models.Candle) models.Decision {
	if len(window) < s.lookback+1 {
		return models.Decision{Reason: "warmup"}
	}

	cur := window[len(window)-1].Close
	ref := window[len(window)-1-s.lookback].Close
	if ref.IsZero() {
		return models.Decision{Reason: "zero reference price"}
	}

	changePct := cur.Sub(ref).Div(ref).Mul(d100)
	if changePct.LessThanOrEqual(s.dropPct.Neg()) {
		return models.Decision{
			EntryEligible: true,
			Reason:        fmt.Sprintf("price %s%% over last %d bars", changePct.StringFixed(2), s.lookback),
		}
	}
	return models.Decision{Reason: fmt.Sprintf("drop %s%% above threshold -%s%%", changePct.StringFixed(2), s.dropPct)}
}
