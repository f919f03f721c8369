package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"overnight_bot/internal/models"
)

// scriptStrategy — управляемая заглушка: решения переключаются из теста.
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

var t0 = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func candleAt(min int, close float64) models.Candle {
	px := decimal.NewFromFloat(close)
	return models.Candle{Start: t0.Add(time.Duration(min) * time.Minute), Open: px, High: px, Low: px, Close: px, Volume: decimal.NewFromInt(1)}
}

func newTestEngine(s *scriptStrategy, cash float64) *Engine {
	return New(s, SimExecutor{FeePct: decimal.NewFromFloat(0.1)}, Config{InitialCash: decimal.NewFromFloat(cash)})
}

func TestEntrySizingAllIn(t *testing.T) {
	s := &scriptStrategy{eligible: true}
	e := newTestEngine(s, 10000)

	ev, err := e.Step(context.Background(), candleAt(0, 100), true)
	if err != nil {
		t.Fatal(err)
	}
	if ev == nil || ev.Type != models.EventOpened {
		t.Fatalf("ожидали OPENED, получили %+v", ev)
	}

	pos := e.Position()
	if !pos.IsLong() {
		t.Fatalf("позиция не открылась: %+v", pos)
	}
	// qty = cash / (price * (1 + fee)): 10000 / 100.1
	wantQty := decimal.NewFromInt(10000).Div(decimal.NewFromFloat(100.1)).Truncate(12)
	if !pos.Quantity.Equal(wantQty) {
		t.Fatalf("qty = %s, ждали %s", pos.Quantity, wantQty)
	}
	// весь кэш ушёл в позицию, остаётся только пыль от округления
	if e.Cash().GreaterThan(decimal.NewFromFloat(0.01)) || e.Cash().IsNegative() {
		t.Fatalf("cash после входа = %s", e.Cash())
	}
	if !pos.PeakPrice.Equal(pos.EntryPrice) {
		t.Fatalf("peak на входе должен равняться цене входа: %s != %s", pos.PeakPrice, pos.EntryPrice)
	}
}

func TestTrailingStopFromPeak(t *testing.T) {
	s := &scriptStrategy{
		eligible: true,
		exits:    models.ExitPolicy{TrailingStopPct: decimal.NewFromInt(1)},
	}
	e := newTestEngine(s, 10000)
	ctx := context.Background()

	steps := []struct {
		min      int
		close    float64
		wantExit bool
	}{
		{0, 85464, false},  // вход
		{5, 88000, false},  // peak растёт
		{10, 91231, false}, // peak = 91231
		{15, 90500, false}, // просадка 0.80% < 1%
		{20, 90300, true},  // просадка 1.02% >= 1%
	}
	s.eligible = true
	for i, st := range steps {
		if i > 0 {
			s.eligible = false // вход только на первой свече
		}
		ev, err := e.Step(ctx, candleAt(st.min, st.close), true)
		if err != nil {
			t.Fatalf("шаг %d: %v", i, err)
		}
		gotExit := ev != nil && ev.Type == models.EventClosed
		if gotExit != st.wantExit {
			t.Fatalf("шаг %d (close=%v): exit=%v, ждали %v", i, st.close, gotExit, st.wantExit)
		}
	}

	trades := e.Trades()
	if len(trades) != 1 {
		t.Fatalf("сделок %d, ждали 1", len(trades))
	}
	if trades[0].ExitReason != models.ExitTrailingStop {
		t.Fatalf("причина выхода %s", trades[0].ExitReason)
	}
	if !trades[0].PnlAbs.IsPositive() {
		t.Fatalf("выход с пика должен быть в плюс, pnl=%s", trades[0].PnlAbs)
	}
}

func TestNeverSellAtLossHoldsUnderwater(t *testing.T) {
	s := &scriptStrategy{
		eligible: true,
		exits: models.ExitPolicy{
			TrailingStopPct: decimal.NewFromInt(1),
			NeverSellAtLoss: true,
		},
	}
	e := newTestEngine(s, 10000)
	ctx := context.Background()

	// вход по 100
	if _, err := e.Step(ctx, candleAt(0, 100), true); err != nil {
		t.Fatal(err)
	}
	s.eligible = false

	// просадка 5% — но в минусе не продаём никогда
	ev, err := e.Step(ctx, candleAt(5, 95), true)
	if err != nil {
		t.Fatal(err)
	}
	if ev != nil {
		t.Fatalf("в минусе вышли: %+v", ev)
	}
	if !e.Position().IsLong() {
		t.Fatal("позиция закрылась под водой")
	}

	// восстановление выше входа: profit > 0, peak подтянулся к 101
	if ev, _ = e.Step(ctx, candleAt(10, 101), true); ev != nil {
		t.Fatalf("вышли сразу на восстановлении: %+v", ev)
	}
	// откат 1% от пика в плюсе — теперь трейлинг работает
	ev, err = e.Step(ctx, candleAt(15, 99.9), true)
	if err != nil {
		t.Fatal(err)
	}
	// 99.9 ниже входа (100) — profit < 0, снова держим
	if ev != nil {
		t.Fatalf("продали ниже входа: %+v", ev)
	}

	// рост до 105, затем откат >1% от пика при profit > 0 — выход
	if _, err = e.Step(ctx, candleAt(20, 105), true); err != nil {
		t.Fatal(err)
	}
	ev, err = e.Step(ctx, candleAt(25, 103.9), true)
	if err != nil {
		t.Fatal(err)
	}
	if ev == nil || ev.Type != models.EventClosed {
		t.Fatalf("ждали выход по трейлингу, получили %+v", ev)
	}
	if ev.Trade.PnlAbs.IsNegative() {
		t.Fatalf("never-sell-at-loss дал убыточную сделку: %s", ev.Trade.PnlAbs)
	}
}

func TestFeePaidIdentity(t *testing.T) {
	s := &scriptStrategy{eligible: true}
	e := newTestEngine(s, 10000)
	ctx := context.Background()

	if _, err := e.Step(ctx, candleAt(0, 100), true); err != nil {
		t.Fatal(err)
	}
	s.eligible = false
	s.side = models.SideSell
	ev, err := e.Step(ctx, candleAt(5, 110), true)
	if err != nil {
		t.Fatal(err)
	}
	if ev == nil || ev.Trade == nil {
		t.Fatal("сделка не закрылась по сигналу")
	}

	tr := ev.Trade
	feeRate := decimal.NewFromFloat(0.1).Div(decimal.NewFromInt(100))
	entryNotional := tr.Quantity.Mul(tr.EntryPrice)
	exitNotional := tr.Quantity.Mul(tr.ExitPrice)
	wantFee := feeRate.Mul(entryNotional).Add(feeRate.Mul(exitNotional))
	if !tr.FeePaid.Equal(wantFee) {
		t.Fatalf("FeePaid = %s, ждали %s", tr.FeePaid, wantFee)
	}
	// pnl = выручка за вычетом обеих комиссий минус потраченный кэш
	wantPnl := exitNotional.Sub(feeRate.Mul(exitNotional)).Sub(decimal.NewFromInt(10000))
	if tr.PnlAbs.Sub(wantPnl).Abs().GreaterThan(decimal.NewFromFloat(0.0001)) {
		t.Fatalf("PnlAbs = %s, ждали ~%s", tr.PnlAbs, wantPnl)
	}
	if tr.ExitReason != models.ExitStrategySignal {
		t.Fatalf("причина %s", tr.ExitReason)
	}
}

func TestOrderingViolations(t *testing.T) {
	s := &scriptStrategy{}
	e := newTestEngine(s, 1000)
	ctx := context.Background()

	if _, err := e.Step(ctx, candleAt(10, 100), true); err != nil {
		t.Fatal(err)
	}
	cashBefore := e.Cash()

	if _, err := e.Step(ctx, candleAt(10, 100), true); !errors.Is(err, ErrDuplicateCandle) {
		t.Fatalf("дубликат: err=%v", err)
	}
	if _, err := e.Step(ctx, candleAt(5, 100), true); !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("не по порядку: err=%v", err)
	}

	// отвергнутые свечи не двигают состояние
	if !e.Cash().Equal(cashBefore) {
		t.Fatal("состояние изменилось на отвергнутой свече")
	}
	if lp, _ := e.LastProcessed(); !lp.Equal(t0.Add(10 * time.Minute)) {
		t.Fatalf("lastProcessed сдвинулся: %s", lp)
	}
}

func TestForceCloseAtEndOfData(t *testing.T) {
	s := &scriptStrategy{eligible: true}
	e := newTestEngine(s, 10000)
	ctx := context.Background()

	if _, err := e.Step(ctx, candleAt(0, 100), true); err != nil {
		t.Fatal(err)
	}
	s.eligible = false
	if _, err := e.Step(ctx, candleAt(5, 98), true); err != nil {
		t.Fatal(err)
	}

	ev, err := e.ForceClose(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if ev == nil || ev.Trade.ExitReason != models.ExitEndOfData {
		t.Fatalf("ждали END_OF_DATA, получили %+v", ev)
	}
	if e.Position().IsLong() {
		t.Fatal("позиция осталась открытой")
	}
	// по последней свече, даже в убыток
	if !ev.Trade.ExitPrice.Equal(decimal.NewFromInt(98)) {
		t.Fatalf("цена выхода %s, ждали 98", ev.Trade.ExitPrice)
	}

	// повторный вызов — no-op
	if ev, _ := e.ForceClose(ctx); ev != nil {
		t.Fatalf("повторный ForceClose вернул событие: %+v", ev)
	}
}

func TestDeterministicReplay(t *testing.T) {
	run := func() []models.Trade {
		s := &scriptStrategy{eligible: true, exits: models.ExitPolicy{TrailingStopPct: decimal.NewFromInt(1)}}
		e := newTestEngine(s, 10000)
		closes := []float64{100, 102, 105, 103.9, 101, 100, 99}
		for i, px := range closes {
			if i > 0 {
				s.eligible = false
			}
			if _, err := e.Step(context.Background(), candleAt(i*5, px), true); err != nil {
				t.Fatal(err)
			}
		}
		_, _ = e.ForceClose(context.Background())
		return e.Trades()
	}

	a, b := run(), run()
	if len(a) != len(b) {
		t.Fatalf("разное число сделок: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if !a[i].PnlAbs.Equal(b[i].PnlAbs) || !a[i].FeePaid.Equal(b[i].FeePaid) {
			t.Fatalf("сделка %d отличается: %+v vs %+v", i, a[i], b[i])
		}
	}
}

// после рестарта движок продолжает вести восстановленную позицию
// так, будто падения не было
func TestRestoreContinuesPosition(t *testing.T) {
	s := &scriptStrategy{exits: models.ExitPolicy{TrailingStopPct: decimal.NewFromInt(1)}}
	e := newTestEngine(s, 0)

	pos := models.Position{
		State:      models.StateLong,
		EntryPrice: decimal.NewFromInt(100),
		EntryTime:  t0,
		PeakPrice:  decimal.NewFromInt(105),
		Quantity:   decimal.NewFromInt(10),
		EntryCash:  decimal.NewFromInt(1000),
		EntryFee:   decimal.NewFromInt(1),
	}
	e.Restore(pos, decimal.Zero, t0.Add(5*time.Minute))

	// свеча не новее lastProcessed отвергается
	if _, err := e.Step(context.Background(), candleAt(5, 104), true); !errors.Is(err, ErrDuplicateCandle) {
		t.Fatalf("err = %v", err)
	}

	// просадка 1.05% от восстановленного пика 105 — выход
	ev, err := e.Step(context.Background(), candleAt(10, 103.9), true)
	if err != nil {
		t.Fatal(err)
	}
	if ev == nil || ev.Type != models.EventClosed {
		t.Fatalf("ждали выход, получили %+v", ev)
	}
	if !ev.Trade.EntryPrice.Equal(pos.EntryPrice) || !ev.Trade.EntryTime.Equal(pos.EntryTime) {
		t.Fatalf("сделка потеряла данные входа: %+v", ev.Trade)
	}
}

// При NeverSellAtLoss сигнал SELL под водой игнорируется, в плюсе работает.
func TestNeverSellAtLossVetoesStrategySell(t *testing.T) {
	s := &scriptStrategy{
		eligible: true,
		exits:    models.ExitPolicy{NeverSellAtLoss: true},
	}
	e := newTestEngine(s, 10000)
	ctx := context.Background()

	if _, err := e.Step(ctx, candleAt(0, 100), true); err != nil {
		t.Fatal(err)
	}
	s.eligible = false
	s.side = models.SideSell

	// под водой SELL не закрывает
	ev, err := e.Step(ctx, candleAt(5, 95), true)
	if err != nil {
		t.Fatal(err)
	}
	if ev != nil || !e.Position().IsLong() {
		t.Fatalf("SELL закрыл убыточную позицию: %+v", ev)
	}

	// в плюсе SELL работает
	ev, err = e.Step(ctx, candleAt(10, 101), true)
	if err != nil {
		t.Fatal(err)
	}
	if ev == nil || ev.Type != models.EventClosed {
		t.Fatalf("SELL в плюсе не закрыл: %+v", ev)
	}
	if ev.Trade.ExitReason != models.ExitStrategySignal {
		t.Fatalf("причина выхода %s", ev.Trade.ExitReason)
	}
	if ev.Trade.PnlAbs.IsNegative() {
		t.Fatalf("pnl отрицательный: %s", ev.Trade.PnlAbs)
	}
}

func TestEntryBlockedWhenNotAllowed(t *testing.T) {
	s := &scriptStrategy{eligible: true}
	e := newTestEngine(s, 1000)

	ev, err := e.Step(context.Background(), candleAt(0, 100), false)
	if err != nil {
		t.Fatal(err)
	}
	if ev != nil || e.Position().IsLong() {
		t.Fatal("вход прошёл при запрете риск-менеджера")
	}
}
