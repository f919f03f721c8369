package strategy

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"overnight_bot/internal/models"
)

// Overnight — "overnight recovery": вход в заданный час (окно 5 минут)
// в таймзоне стратегии и только ниже потолка цены. Сама стратегия SELL
// не генерит — выход считает движок по трейлингу, в минус не продаём.
type Overnight struct {
	entryHour     int
	entryWindow   int // минут от начала часа
	maxEntryPrice decimal.Decimal
	trailingPct   decimal.Decimal
	loc           *time.Location
}

type OvernightConfig struct {
	EntryHour       int
	MaxEntryPrice   decimal.Decimal
	TrailingStopPct decimal.Decimal
	Timezone        string
}

func NewOvernight(cfg OvernightConfig) (*Overnight, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("overnight: bad timezone %q: %w", cfg.Timezone, err)
	}
	return &Overnight{
		entryHour:     cfg.EntryHour,
		entryWindow:   5,
		maxEntryPrice: cfg.MaxEntryPrice,
		trailingPct:   cfg.TrailingStopPct,
		loc:           loc,
	}, nil
}

func (s *Overnight) Name() string { return "overnight" }

func (s *Overnight) DayGated() bool { return true }

func (s *Overnight) Exits() models.ExitPolicy {
	return models.ExitPolicy{
		TrailingStopPct: s.trailingPct,
		NeverSellAtLoss: true,
	}
}

func (s *Overnight) Evaluate(window []models.Candle) models.Decision {
	if len(window) == 0 {
		return models.Decision{Reason: "empty window"}
	}
	c := window[len(window)-1]
	t := c.Start.In(s.loc)

	if t.Hour() != s.entryHour {
		return models.Decision{Reason: fmt.Sprintf("not entry hour (%02d:00, target %02d:00)", t.Hour(), s.entryHour)}
	}
	if t.Minute() > s.entryWindow {
		return models.Decision{Reason: fmt.Sprintf("entry window closed (%02d:%02d)", t.Hour(), t.Minute())}
	}
	if c.Close.GreaterThanOrEqual(s.maxEntryPrice) {
		return models.Decision{Reason: fmt.Sprintf("price too high (%s >= %s)", c.Close, s.maxEntryPrice)}
	}

	return models.Decision{
		EntryEligible: true,
		Reason:        fmt.Sprintf("price %s < %s at %02d:%02d", c.Close, s.maxEntryPrice, t.Hour(), t.Minute()),
	}
}
