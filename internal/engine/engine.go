package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"overnight_bot/internal/models"
	"overnight_bot/internal/strategy"
	"overnight_bot/pkg/logger"
)

var (
	// ErrDuplicateCandle — свеча с уже обработанным timestamp.
	ErrDuplicateCandle = errors.New("duplicate candle timestamp")
	// ErrOutOfOrder — свеча старше последней обработанной.
	ErrOutOfOrder = errors.New("candle out of order")
)

const defaultWindow = 500

// Config — параметры движка.
type Config struct {
	InitialCash decimal.Decimal
	// MaxWindow — сколько свечей держим для стратегии (0 = дефолт).
	MaxWindow int
}

// Engine — конечный автомат FLAT <-> LONG. Каждое наблюдение проходит
// через Step; все мутации состояния откладываются до успешного филла,
// поэтому упавший тик не оставляет следов.
type Engine struct {
	strat strategy.Strategy
	exec  Executor

	pos    models.Position
	cash   decimal.Decimal
	window []models.Candle
	maxWin int

	trades []models.Trade
	curve  []models.EquityPoint

	last    time.Time
	hasLast bool
	lastC   models.Candle
}

func New(strat strategy.Strategy, exec Executor, cfg Config) *Engine {
	mw := cfg.MaxWindow
	if mw <= 0 {
		mw = defaultWindow
	}
	return &Engine{
		strat:  strat,
		exec:   exec,
		pos:    models.Position{State: models.StateFlat},
		cash:   cfg.InitialCash,
		maxWin: mw,
		window: make([]models.Candle, 0, mw),
	}
}

// Restore поднимает движок из снапшота после рестарта.
func (e *Engine) Restore(pos models.Position, cash decimal.Decimal, last time.Time) {
	e.pos = pos
	e.cash = cash
	if !last.IsZero() {
		e.last = last
		e.hasLast = true
	}
}

// Warmup заливает историю свечей для прогрева окна стратегии, без
// торговых решений. Свечи старше last пропускаются.
func (e *Engine) Warmup(candles []models.Candle) {
	for _, c := range candles {
		if e.hasLast && !c.Start.After(e.last) {
			continue
		}
		e.pushWindow(c)
	}
}

// ValidateOrder проверяет монотонность потока наблюдений.
func (e *Engine) ValidateOrder(c models.Candle) error {
	if !e.hasLast {
		return nil
	}
	if c.Start.Equal(e.last) {
		return fmt.Errorf("%w: %s", ErrDuplicateCandle, c.Start.Format(time.RFC3339))
	}
	if c.Start.Before(e.last) {
		return fmt.Errorf("%w: %s before %s", ErrOutOfOrder,
			c.Start.Format(time.RFC3339), e.last.Format(time.RFC3339))
	}
	return nil
}

// Step обрабатывает одну свечу. entryAllowed — разрешение риск-менеджера
// на открытие новой позиции (на выходы оно не влияет). Возвращает событие
// открытия/закрытия, если оно произошло на этом тике.
func (e *Engine) Step(ctx context.Context, c models.Candle, entryAllowed bool) (*models.Event, error) {
	if err := e.ValidateOrder(c); err != nil {
		return nil, err
	}

	win := append(e.window, c)
	if len(win) > e.maxWin {
		win = win[len(win)-e.maxWin:]
	}

	var ev *models.Event

	if e.pos.IsLong() {
		peak := e.pos.PeakPrice
		if c.Close.GreaterThan(peak) {
			peak = c.Close
		}
		reason, exit := e.shouldExit(win, c, peak)
		if exit {
			trade, err := e.closeLong(ctx, c, reason)
			if err != nil {
				return nil, err
			}
			ev = &models.Event{Type: models.EventClosed, At: c.Start, Price: trade.ExitPrice, Trade: trade, Reason: reason}
		} else {
			e.pos.PeakPrice = peak
		}
	} else if entryAllowed {
		dec := e.strat.Evaluate(win)
		if dec.Side == models.SideBuy || dec.EntryEligible {
			fill, err := e.exec.Buy(ctx, e.cash, c)
			if err != nil {
				return nil, fmt.Errorf("buy: %w", err)
			}
			e.openLong(fill)
			ev = &models.Event{Type: models.EventOpened, At: c.Start, Price: fill.Price, Reason: dec.Reason}
		}
	}

	e.window = win
	e.last = c.Start
	e.hasLast = true
	e.lastC = c
	e.curve = append(e.curve, models.EquityPoint{At: c.Start, Value: e.Equity(c.Close)})
	return ev, nil
}

// shouldExit применяет правила выхода на close-цене. Порядок: трейлинг,
// затем сигнал стратегии.
func (e *Engine) shouldExit(win []models.Candle, c models.Candle, peak decimal.Decimal) (string, bool) {
	exits := e.strat.Exits()

	if exits.TrailingStopPct.IsPositive() {
		profitPct := c.Close.Sub(e.pos.EntryPrice).Div(e.pos.EntryPrice).Mul(d100)
		// never-sell-at-loss: трейлинг оценивается только в плюсе,
		// под водой держим без ограничения по времени
		armed := !exits.NeverSellAtLoss || profitPct.IsPositive()
		if armed {
			drawdownPct := peak.Sub(c.Close).Div(peak).Mul(d100)
			if drawdownPct.GreaterThanOrEqual(exits.TrailingStopPct) {
				return models.ExitTrailingStop, true
			}
		}
	}

	dec := e.strat.Evaluate(win)
	if dec.Side == models.SideSell {
		// NeverSellAtLoss распространяется и на SELL стратегии: под водой
		// держим, пока цена не выйдет в плюс. Стратегии с этой политикой
		// сами SELL не шлют, ветка страхует чужие комбинации настроек.
		if exits.NeverSellAtLoss && c.Close.LessThanOrEqual(e.pos.EntryPrice) {
			return "", false
		}
		return models.ExitStrategySignal, true
	}
	return "", false
}

func (e *Engine) openLong(fill Fill) {
	spent := fill.Price.Mul(fill.Quantity).Add(fill.Fee)
	e.pos = models.Position{
		State:      models.StateLong,
		EntryPrice: fill.Price,
		EntryTime:  fill.Time,
		PeakPrice:  fill.Price,
		Quantity:   fill.Quantity,
		EntryCash:  spent,
		EntryFee:   fill.Fee,
	}
	e.cash = e.cash.Sub(spent)
	logger.Info("[ENGINE] открыт лонг: цена=%s qty=%s", fill.Price, fill.Quantity)
}

func (e *Engine) closeLong(ctx context.Context, c models.Candle, reason string) (*models.Trade, error) {
	fill, err := e.exec.Sell(ctx, e.pos.Quantity, c)
	if err != nil {
		return nil, fmt.Errorf("sell: %w", err)
	}
	proceeds := fill.Price.Mul(fill.Quantity).Sub(fill.Fee)
	pnlAbs := proceeds.Sub(e.pos.EntryCash)
	pnlPct := pnlAbs.Div(e.pos.EntryCash).Mul(d100)

	trade := models.Trade{
		EntryTime:  e.pos.EntryTime,
		EntryPrice: e.pos.EntryPrice,
		ExitTime:   fill.Time,
		ExitPrice:  fill.Price,
		Quantity:   fill.Quantity,
		FeePaid:    e.pos.EntryFee.Add(fill.Fee),
		PnlAbs:     pnlAbs,
		PnlPct:     pnlPct,
		ExitReason: reason,
	}
	e.cash = e.cash.Add(proceeds)
	e.pos.Reset()
	e.trades = append(e.trades, trade)
	logger.Info("[ENGINE] закрыт лонг: причина=%s pnl=%s (%s%%)", reason, pnlAbs.StringFixed(2), pnlPct.StringFixed(2))
	return &trade, nil
}

// ForceClose принудительно закрывает позицию по последней свече
// (конец данных бэктеста). В FLAT — no-op.
func (e *Engine) ForceClose(ctx context.Context) (*models.Event, error) {
	if !e.pos.IsLong() {
		return nil, nil
	}
	trade, err := e.closeLong(ctx, e.lastC, models.ExitEndOfData)
	if err != nil {
		return nil, err
	}
	if n := len(e.curve); n > 0 {
		e.curve[n-1].Value = e.cash
	}
	return &models.Event{Type: models.EventClosed, At: e.lastC.Start, Price: trade.ExitPrice, Trade: trade, Reason: trade.ExitReason}, nil
}

// Equity — стоимость счёта по цене px.
func (e *Engine) Equity(px decimal.Decimal) decimal.Decimal {
	if e.pos.IsLong() {
		return e.cash.Add(e.pos.Quantity.Mul(px))
	}
	return e.cash
}

func (e *Engine) pushWindow(c models.Candle) {
	e.window = append(e.window, c)
	if len(e.window) > e.maxWin {
		e.window = e.window[len(e.window)-e.maxWin:]
	}
	e.last = c.Start
	e.hasLast = true
	e.lastC = c
}

func (e *Engine) Position() models.Position      { return e.pos }
func (e *Engine) Cash() decimal.Decimal          { return e.cash }
func (e *Engine) Trades() []models.Trade         { return e.trades }
func (e *Engine) Curve() []models.EquityPoint    { return e.curve }
func (e *Engine) LastProcessed() (time.Time, bool) { return e.last, e.hasLast }
