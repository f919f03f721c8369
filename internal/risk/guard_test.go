package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"overnight_bot/internal/engine"
	"overnight_bot/internal/models"
)

type scriptStrategy struct {
	eligible bool
	side     models.Side
	exits    models.ExitPolicy
}

func (s *scriptStrategy) Name() string { return "script" }
func (s *scriptStrategy) Evaluate(_ []models.Candle) models.Decision {
	return models.Decision{Side: s.side, EntryEligible: s.eligible, Reason: "scripted"}
}
func (s *scriptStrategy) Exits() models.ExitPolicy { return s.exits }
func (s *scriptStrategy) DayGated() bool           { return false }

var day1 = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func candleAt(base time.Time, min int, close float64) models.Candle {
	px := decimal.NewFromFloat(close)
	return models.Candle{Start: base.Add(time.Duration(min) * time.Minute), Open: px, High: px, Low: px, Close: px, Volume: decimal.NewFromInt(1)}
}

func setup(s *scriptStrategy, lim Limits, oncePerDay bool) (*Guard, *engine.Engine) {
	eng := engine.New(s, engine.SimExecutor{FeePct: decimal.NewFromFloat(0.1)},
		engine.Config{InitialCash: decimal.NewFromFloat(10000)})
	return NewGuard(eng, lim, time.UTC, oncePerDay), eng
}

// прогоняет свечу и падает на неожиданной ошибке
func mustCandle(t *testing.T, g *Guard, c models.Candle) []models.Event {
	t.Helper()
	evs, err := g.OnCandle(context.Background(), c)
	if err != nil {
		t.Fatalf("OnCandle %s: %v", c.Start, err)
	}
	return evs
}

func hasEvent(evs []models.Event, typ string) bool {
	for _, e := range evs {
		if e.Type == typ {
			return true
		}
	}
	return false
}

func TestDailyLossBreaker(t *testing.T) {
	s := &scriptStrategy{eligible: true}
	g, eng := setup(s, Limits{MaxDailyLossPct: decimal.NewFromInt(5)}, false)

	// вход по 100, затем просадка 6% от дневного equity
	mustCandle(t, g, candleAt(day1, 0, 100))
	if !eng.Position().IsLong() {
		t.Fatal("позиция не открылась")
	}
	evs := mustCandle(t, g, candleAt(day1, 5, 94))
	if !hasEvent(evs, models.EventBreakerTripped) {
		t.Fatalf("рубильник не взвёлся: %+v", evs)
	}
	if st := g.State(); st.TrippedReason != models.BreakerDailyLoss {
		t.Fatalf("причина %q", st.TrippedReason)
	}

	// позицию рубильник не трогает
	if !eng.Position().IsLong() {
		t.Fatal("рубильник закрыл позицию")
	}

	// выходим по сигналу и пробуем войти снова в тот же день — нельзя
	s.side = models.SideSell
	mustCandle(t, g, candleAt(day1, 10, 94))
	s.side = models.SideNone
	mustCandle(t, g, candleAt(day1, 15, 94))
	if eng.Position().IsLong() {
		t.Fatal("вход при взведённом рубильнике")
	}

	// следующий календарный день: сброс и вход разрешён
	day2 := day1.Add(24 * time.Hour)
	evs = mustCandle(t, g, candleAt(day2, 0, 94))
	if !hasEvent(evs, models.EventBreakerCleared) {
		t.Fatalf("рубильник не сбросился: %+v", evs)
	}
	if !hasEvent(evs, models.EventOpened) {
		t.Fatalf("вход не открылся в новый день: %+v", evs)
	}
}

func TestConsecutiveLossBreaker(t *testing.T) {
	s := &scriptStrategy{eligible: true}
	// дневной лимит отключён, следим только за серией убытков
	g, eng := setup(s, Limits{MaxConsecutiveLosses: 3}, false)

	// три убыточных сделки подряд: вход 100 → выход 99
	min := 0
	px := 100.0
	for i := 0; i < 3; i++ {
		s.side = models.SideNone
		mustCandle(t, g, candleAt(day1, min, px))
		s.side = models.SideSell
		evs := mustCandle(t, g, candleAt(day1, min+5, px-1))
		if !hasEvent(evs, models.EventClosed) {
			t.Fatalf("сделка %d не закрылась", i)
		}
		tripped := hasEvent(evs, models.EventBreakerTripped)
		if i < 2 && tripped {
			t.Fatalf("рубильник взвёлся раньше времени на сделке %d", i)
		}
		if i == 2 && !tripped {
			t.Fatal("рубильник не взвёлся на третьем убытке")
		}
		min += 10
	}
	if st := g.State(); st.TrippedReason != models.BreakerConsecLosses {
		t.Fatalf("причина %q", st.TrippedReason)
	}

	s.side = models.SideNone
	mustCandle(t, g, candleAt(day1, min, 100))
	if eng.Position().IsLong() {
		t.Fatal("вход после серии убытков в тот же день")
	}
}

func TestWinResetsLossStreak(t *testing.T) {
	s := &scriptStrategy{eligible: true}
	g, _ := setup(s, Limits{MaxConsecutiveLosses: 2}, false)

	// убыток, затем прибыль: счётчик должен обнулиться
	mustCandle(t, g, candleAt(day1, 0, 100))
	s.side = models.SideSell
	mustCandle(t, g, candleAt(day1, 5, 99))
	s.side = models.SideNone
	mustCandle(t, g, candleAt(day1, 10, 99))
	s.side = models.SideSell
	mustCandle(t, g, candleAt(day1, 15, 110))

	if st := g.State(); st.ConsecutiveLosses != 0 {
		t.Fatalf("серия убытков %d после прибыльной сделки", st.ConsecutiveLosses)
	}
	if g.State().Tripped {
		t.Fatal("рубильник взвёлся после win")
	}
}

func TestOneEntryPerDay(t *testing.T) {
	s := &scriptStrategy{eligible: true}
	g, eng := setup(s, Limits{}, true)

	// вход и выход в один день
	mustCandle(t, g, candleAt(day1, 0, 100))
	s.side = models.SideSell
	mustCandle(t, g, candleAt(day1, 5, 102))
	s.side = models.SideNone

	// условия входа всё ещё выполняются, но лимит — один вход в день
	mustCandle(t, g, candleAt(day1, 10, 100))
	if eng.Position().IsLong() {
		t.Fatal("второй вход в тот же день")
	}

	day2 := day1.Add(24 * time.Hour)
	evs := mustCandle(t, g, candleAt(day2, 0, 100))
	if !hasEvent(evs, models.EventOpened) {
		t.Fatalf("вход в новый день не открылся: %+v", evs)
	}
}

// Свеча, отбракованная движком по порядку, не должна трогать RiskState:
// вчерашняя дата иначе сбрасывает взведённый рубильник и открывает входы.
func TestRejectedCandleKeepsRiskState(t *testing.T) {
	s := &scriptStrategy{eligible: true}
	g, eng := setup(s, Limits{MaxDailyLossPct: decimal.NewFromInt(5)}, false)

	// вход по 100, просадка 6% — рубильник взведён
	mustCandle(t, g, candleAt(day1, 0, 100))
	mustCandle(t, g, candleAt(day1, 5, 94))
	if !g.State().Tripped {
		t.Fatal("рубильник не взвёлся")
	}
	before := g.State()

	// отстающая свеча со вчерашней датой: движок её отвергает,
	// риск-состояние обязано остаться нетронутым
	stale := candleAt(day1.Add(-24*time.Hour), 0, 94)
	evs, err := g.OnCandle(context.Background(), stale)
	if !errors.Is(err, engine.ErrOutOfOrder) {
		t.Fatalf("ждали ErrOutOfOrder, got %v", err)
	}
	if len(evs) != 0 {
		t.Fatalf("события от отбракованной свечи: %+v", evs)
	}
	after := g.State()
	if after.Date != before.Date || !after.Tripped || after.TrippedReason != before.TrippedReason {
		t.Fatalf("RiskState изменился: было %+v, стало %+v", before, after)
	}
	if !after.DayStartEquity.Equal(before.DayStartEquity) {
		t.Fatalf("DayStartEquity изменился: %s -> %s", before.DayStartEquity, after.DayStartEquity)
	}

	// дубликат тоже мимо
	if _, err := g.OnCandle(context.Background(), candleAt(day1, 5, 94)); !errors.Is(err, engine.ErrDuplicateCandle) {
		t.Fatalf("ждали ErrDuplicateCandle, got %v", err)
	}

	// закрываемся по сигналу и пробуем войти снова в тот же день:
	// рубильник обязан стоять, день не «перекатился»
	s.side = models.SideSell
	mustCandle(t, g, candleAt(day1, 10, 94))
	s.side = models.SideNone
	mustCandle(t, g, candleAt(day1, 15, 94))
	if eng.Position().IsLong() {
		t.Fatal("вход при взведённом рубильнике после отбракованной свечи")
	}
}

// Restore: рубильник переживает рестарт в рамках того же дня.
func TestRestoreKeepsTrip(t *testing.T) {
	s := &scriptStrategy{eligible: true}
	g, eng := setup(s, Limits{MaxDailyLossPct: decimal.NewFromInt(5)}, false)

	g.Restore(models.RiskState{
		Date:           day1.Format("2006-01-02"),
		DayStartEquity: decimal.NewFromInt(10000),
		Tripped:        true,
		TrippedReason:  models.BreakerDailyLoss,
	})

	mustCandle(t, g, candleAt(day1, 30, 100))
	if eng.Position().IsLong() {
		t.Fatal("вход при восстановленном рубильнике")
	}
}
