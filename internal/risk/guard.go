package risk

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"overnight_bot/internal/engine"
	"overnight_bot/internal/models"
	"overnight_bot/pkg/logger"
)

var d100 = decimal.NewFromInt(100)

// Limits — пороги рубильников. Нулевое значение отключает проверку.
type Limits struct {
	MaxDailyLossPct      decimal.Decimal // 5 = 5% от equity на начало дня
	MaxConsecutiveLosses int
}

// Guard оборачивает движок и решает, можно ли открывать новые позиции.
// На выходы рубильники не влияют: уже открытую позицию движок закрывает
// по своим правилам в любом состоянии гарда.
type Guard struct {
	eng *engine.Engine
	lim Limits
	loc *time.Location

	// oncePerDay — максимум один вход в календарный день (для стратегий
	// с дневным окном входа)
	oncePerDay bool

	st models.RiskState
}

func NewGuard(eng *engine.Engine, lim Limits, loc *time.Location, oncePerDay bool) *Guard {
	if loc == nil {
		loc = time.UTC
	}
	return &Guard{eng: eng, lim: lim, loc: loc, oncePerDay: oncePerDay}
}

// Restore поднимает состояние риска из снапшота.
func (g *Guard) Restore(st models.RiskState) { g.st = st }

func (g *Guard) State() models.RiskState { return g.st }

// OnCandle прогоняет свечу через движок с учётом рубильников.
// Календарный день считается по локальной дате наблюдения в таймзоне
// стратегии, а не по часам хоста.
func (g *Guard) OnCandle(ctx context.Context, c models.Candle) ([]models.Event, error) {
	// отбракованное движком наблюдение не должно трогать RiskState:
	// свеча со вчерашней датой иначе перепишет день и сбросит рубильник
	if err := g.eng.ValidateOrder(c); err != nil {
		return nil, err
	}

	day := c.Start.In(g.loc).Format("2006-01-02")

	var events []models.Event

	if g.st.Date != day {
		if g.st.Tripped {
			events = append(events, models.Event{Type: models.EventBreakerCleared, At: c.Start, Reason: g.st.TrippedReason})
			logger.Info("[RISK] новый день %s: рубильник %s сброшен", day, g.st.TrippedReason)
		}
		g.st.Date = day
		g.st.DayStartEquity = g.eng.Equity(c.Close)
		g.st.TradesToday = nil
		g.st.Tripped = false
		g.st.TrippedReason = ""
	}

	if g.checkDailyLoss(c) {
		events = append(events, models.Event{Type: models.EventBreakerTripped, At: c.Start, Reason: models.BreakerDailyLoss})
	}

	ev, err := g.eng.Step(ctx, c, g.entryAllowed(day))
	if err != nil {
		return events, err
	}
	if ev == nil {
		return events, nil
	}
	events = append(events, *ev)

	switch ev.Type {
	case models.EventOpened:
		g.st.LastEntryDate = day
	case models.EventClosed:
		g.st.TradesToday = append(g.st.TradesToday, *ev.Trade)
		if ev.Trade.IsLoss() {
			g.st.ConsecutiveLosses++
		} else {
			g.st.ConsecutiveLosses = 0
		}
		if g.checkConsecLosses() {
			events = append(events, models.Event{Type: models.EventBreakerTripped, At: c.Start, Reason: models.BreakerConsecLosses})
		}
		// закрытие могло добить дневной лимит
		if g.checkDailyLoss(c) {
			events = append(events, models.Event{Type: models.EventBreakerTripped, At: c.Start, Reason: models.BreakerDailyLoss})
		}
	}
	return events, nil
}

func (g *Guard) entryAllowed(day string) bool {
	if g.st.Tripped {
		return false
	}
	if g.oncePerDay && g.st.LastEntryDate == day {
		return false
	}
	return true
}

// checkDailyLoss взводит дневной рубильник, если просадка от equity
// на начало дня превысила лимит. До конца дня входы запрещены.
func (g *Guard) checkDailyLoss(c models.Candle) bool {
	if g.st.Tripped || g.lim.MaxDailyLossPct.IsZero() || g.st.DayStartEquity.IsZero() {
		return false
	}
	eq := g.eng.Equity(c.Close)
	pnlPct := eq.Sub(g.st.DayStartEquity).Div(g.st.DayStartEquity).Mul(d100)
	if pnlPct.LessThanOrEqual(g.lim.MaxDailyLossPct.Neg()) {
		g.st.Tripped = true
		g.st.TrippedReason = models.BreakerDailyLoss
		logger.Warn("[RISK] дневной лимит убытка: %s%% <= -%s%%, входы закрыты до конца дня",
			pnlPct.StringFixed(2), g.lim.MaxDailyLossPct)
		return true
	}
	return false
}

func (g *Guard) checkConsecLosses() bool {
	if g.st.Tripped || g.lim.MaxConsecutiveLosses <= 0 {
		return false
	}
	if g.st.ConsecutiveLosses >= g.lim.MaxConsecutiveLosses {
		g.st.Tripped = true
		g.st.TrippedReason = models.BreakerConsecLosses
		logger.Warn("[RISK] %d убытков подряд, входы закрыты до конца дня", g.st.ConsecutiveLosses)
		return true
	}
	return false
}
