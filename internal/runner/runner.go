package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/shopspring/decimal"

	"overnight_bot/internal/engine"
	"overnight_bot/internal/exchange"
	"overnight_bot/internal/journal"
	"overnight_bot/internal/models"
	"overnight_bot/internal/modules/config"
	"overnight_bot/internal/modules/health/service"
	"overnight_bot/internal/notify"
	"overnight_bot/internal/risk"
	"overnight_bot/internal/state"
	"overnight_bot/internal/strategy"
	"overnight_bot/pkg/logger"
	"overnight_bot/pkg/retry"
)

// warmupBars — глубина истории для прогрева окна стратегии при старте.
const warmupBars = 300

// Runner — живой цикл: раз в PollInterval тянет закрытые свечи и гонит
// их через тот же гард и движок, что и бэктест. Снапшот пишется после
// каждого обработанного наблюдения, до следующего тика.
type Runner struct {
	cfg    *config.Config
	client *exchange.Client
	eng    *engine.Engine
	guard  *risk.Guard
	store  *state.Store
	n      notify.Notifier
	jrnl   *journal.Journal
	health *service.State
	met    *service.Metrics

	cancel context.CancelFunc
	done   chan struct{}
}

func New(
	cfg *config.Config,
	client *exchange.Client,
	n notify.Notifier,
	jrnl *journal.Journal,
	health *service.State,
	met *service.Metrics,
) (*Runner, error) {
	strat, err := strategy.New(cfg.Strategy.Settings())
	if err != nil {
		return nil, fmt.Errorf("strategy: %w", err)
	}

	loc := time.UTC
	if cfg.Strategy.Timezone != "" {
		if l, err := time.LoadLocation(cfg.Strategy.Timezone); err == nil {
			loc = l
		}
	}

	eng := engine.New(strat, exchange.NewLiveExecutor(client, cfg.Symbol), engine.Config{
		InitialCash: decimal.NewFromFloat(cfg.InitialCash),
	})
	guard := risk.NewGuard(eng, risk.Limits{
		MaxDailyLossPct:      decimal.NewFromFloat(cfg.Risk.MaxDailyLossPct),
		MaxConsecutiveLosses: cfg.Risk.MaxConsecutiveLosses,
	}, loc, strat.DayGated())

	store, err := state.NewStore(cfg.StateDir)
	if err != nil {
		return nil, err
	}

	return &Runner{
		cfg:    cfg,
		client: client,
		eng:    eng,
		guard:  guard,
		store:  store,
		n:      n,
		jrnl:   jrnl,
		health: health,
		met:    met,
		done:   make(chan struct{}),
	}, nil
}

// Start: лок каталога состояния, восстановление, сверка с биржей,
// прогрев окна и запуск цикла в горутине.
func (r *Runner) Start(parent context.Context) error {
	if err := r.store.Lock(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(parent)
	r.cancel = cancel

	if err := r.restore(ctx); err != nil {
		r.store.Unlock()
		cancel()
		return err
	}
	if err := r.warmup(ctx); err != nil {
		r.store.Unlock()
		cancel()
		return err
	}

	go r.loop(ctx)
	r.health.SetReady(true)
	r.n.Sendf("🤖 Бот запущен: %s, стратегия %s, equity %s",
		r.cfg.Symbol, r.cfg.Strategy.Name, r.eng.Cash().StringFixed(2))
	return nil
}

func (r *Runner) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}
	select {
	case <-r.done:
	case <-ctx.Done():
	}
	r.store.Unlock()
	return nil
}

// restore поднимает снапшот с диска. Нет снапшота — чистый старт.
// Битые обе копии — фатал, если явно не разрешён старт с нуля.
func (r *Runner) restore(ctx context.Context) error {
	snap, err := r.store.Load()
	switch {
	case errors.Is(err, state.ErrNoSnapshot):
		logger.Info("[RUNNER] снапшота нет, старт с нуля: cash=%v", r.cfg.InitialCash)
		return nil
	case err != nil:
		if !r.cfg.StartFresh {
			return fmt.Errorf("снапшот повреждён (перезапустите с start_fresh для старта с нуля): %w", err)
		}
		logger.Warn("[RUNNER] снапшот повреждён, start_fresh разрешён: %v", err)
		return r.store.Wipe()
	}

	if snap.Symbol != r.cfg.Symbol {
		return fmt.Errorf("снапшот для %s, в конфиге %s", snap.Symbol, r.cfg.Symbol)
	}

	r.eng.Restore(snap.Position, snap.Cash, snap.LastProcessed)
	r.guard.Restore(snap.Risk)
	r.health.SetInPosition(snap.Position.IsLong())

	if err := r.reconcile(ctx, snap); err != nil {
		return err
	}
	logger.Info("[RUNNER] восстановлены: позиция=%s cash=%s last=%s",
		snap.Position.State, snap.Cash.StringFixed(2), snap.LastProcessed.Format(time.RFC3339))
	return nil
}

func (r *Runner) warmup(ctx context.Context) error {
	candles, err := retry.DoWithResult(ctx, func() ([]models.Candle, error) {
		return r.client.Candles(ctx, r.cfg.Symbol, r.cfg.Bar, warmupBars)
	}, retry.DefaultConfig())
	if err != nil {
		return fmt.Errorf("warmup candles: %w", err)
	}
	r.eng.Warmup(dropUnclosed(candles, r.cfg.PollInterval))
	logger.Info("[RUNNER] окно прогрето: %d свечей", len(candles))
	return nil
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.done)

	t := time.NewTicker(r.cfg.PollInterval)
	defer t.Stop()

	r.tick(ctx) // первый тик сразу, не ждём интервал
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if r.stopRequested() {
				r.n.Send("🛑 Найден стоп-файл, бот останавливается")
				logger.Info("[RUNNER] остановка по стоп-файлу %s", r.cfg.StopFile)
				r.health.SetReady(false)
				return
			}
			r.tick(ctx)
		}
	}
}

// tick — одно наблюдение. Любая ошибка тика не меняет состояние:
// пропустили, залогировали, ждём следующий.
func (r *Runner) tick(ctx context.Context) {
	span := opentracing.StartSpan("tick")
	defer span.Finish()
	ctx = opentracing.ContextWithSpan(ctx, span)

	r.met.TicksTotal.Inc()
	r.health.TouchTick(time.Now())

	candles, err := retry.DoWithResult(ctx, func() ([]models.Candle, error) {
		return r.client.Candles(ctx, r.cfg.Symbol, r.cfg.Bar, 10)
	}, retry.DefaultConfig())
	if err != nil {
		logger.Warn("[TICK] свечи недоступны, тик пропущен: %v", err)
		r.met.TicksSkipped.Inc()
		return
	}

	closed := dropUnclosed(candles, r.cfg.PollInterval)
	if len(closed) == 0 {
		r.met.TicksSkipped.Inc()
		return
	}
	last := closed[len(closed)-1]
	if age := time.Since(last.Start.Add(r.cfg.PollInterval)); age > r.cfg.MaxDataAge {
		logger.Warn("[TICK] данные устарели на %s, тик пропущен", age.Round(time.Second))
		r.met.TicksSkipped.Inc()
		return
	}

	// после простоя закрытых свечей может накопиться несколько — догоняем
	r.processClosed(ctx, closed)
	r.met.Equity.Set(r.eng.Equity(last.Close).InexactFloat64())
}

// processClosed прогоняет закрытые свечи через гард по порядку.
// Снапшот пишется до уведомлений: упасть между ними безопасно, при
// рестарте позиция уже на диске и повторный ордер не уйдёт.
func (r *Runner) processClosed(ctx context.Context, closed []models.Candle) {
	for _, c := range closed {
		if lp, ok := r.eng.LastProcessed(); ok && !c.Start.After(lp) {
			continue
		}
		events, err := r.guard.OnCandle(ctx, c)
		if err != nil {
			if errors.Is(err, engine.ErrDuplicateCandle) || errors.Is(err, engine.ErrOutOfOrder) {
				// ошибка данных: свечу отбрасываем, остальные догоняем
				logger.Warn("[TICK] свеча %s отброшена: %v", c.Start.Format(time.RFC3339), err)
				continue
			}
			logger.Warn("[TICK] свеча %s: %v", c.Start.Format(time.RFC3339), err)
			r.met.TicksSkipped.Inc()
			r.publish(ctx, events)
			return
		}
		if err := r.persist(); err != nil {
			logger.Error("[TICK] снапшот не записался: %v", err)
			return
		}
		r.publish(ctx, events)
	}
}

func (r *Runner) publish(ctx context.Context, events []models.Event) {
	for _, ev := range events {
		switch ev.Type {
		case models.EventOpened:
			r.health.SetInPosition(true)
			r.n.Sendf("📈 Вход: %s по %s (%s)", r.cfg.Symbol, ev.Price.StringFixed(2), ev.Reason)
		case models.EventClosed:
			r.health.SetInPosition(false)
			t := ev.Trade
			r.n.Sendf("📉 Выход: %s по %s, pnl %s (%s%%), причина %s",
				r.cfg.Symbol, t.ExitPrice.StringFixed(2), t.PnlAbs.StringFixed(2), t.PnlPct.StringFixed(2), t.ExitReason)
			r.met.TradesTotal.WithLabelValues(t.ExitReason).Inc()
			if r.jrnl != nil {
				if err := r.jrnl.Record(ctx, *t); err != nil {
					logger.Warn("[RUNNER] журнал сделок недоступен: %v", err)
				}
			}
		case models.EventBreakerTripped:
			r.health.SetBreaker(true)
			r.met.BreakerActive.Set(1)
			r.n.Sendf("⛔️ Рубильник %s: входы закрыты до конца дня", ev.Reason)
		case models.EventBreakerCleared:
			r.health.SetBreaker(false)
			r.met.BreakerActive.Set(0)
			r.n.Send("✅ Новый день, рубильник сброшен")
		}
	}
}

func (r *Runner) persist() error {
	lp, _ := r.eng.LastProcessed()
	return r.store.Save(state.Snapshot{
		Symbol:        r.cfg.Symbol,
		Position:      r.eng.Position(),
		Cash:          r.eng.Cash(),
		Risk:          r.guard.State(),
		LastProcessed: lp,
	})
}

func (r *Runner) stopRequested() bool {
	_, err := os.Stat(r.cfg.StopFile)
	return err == nil
}

// Status — текстовая сводка для /status в Telegram.
func (r *Runner) Status(ctx context.Context) string {
	pos := r.eng.Position()
	st := r.guard.State()
	if !pos.IsLong() {
		return fmt.Sprintf("FLAT | cash=%s | день=%s | рубильник=%v",
			r.eng.Cash().StringFixed(2), st.Date, st.Tripped)
	}
	px, err := r.client.CurrentPrice(ctx, r.cfg.Symbol, r.cfg.MaxDataAge)
	if err != nil {
		return fmt.Sprintf("LONG с %s по %s | цена недоступна: %v",
			pos.EntryTime.Format("2006-01-02 15:04"), pos.EntryPrice.StringFixed(2), err)
	}
	return fmt.Sprintf("LONG %s @ %s | сейчас %s | пик %s | equity=%s",
		pos.Quantity, pos.EntryPrice.StringFixed(2), px.StringFixed(2),
		pos.PeakPrice.StringFixed(2), r.eng.Equity(px).StringFixed(2))
}

// dropUnclosed отбрасывает ещё не закрывшиеся свечи: биржа отдаёт
// текущую формирующуюся свечу вместе с историей.
func dropUnclosed(candles []models.Candle, bar time.Duration) []models.Candle {
	cut := time.Now().Add(-bar)
	out := candles
	for len(out) > 0 && out[len(out)-1].Start.After(cut) {
		out = out[:len(out)-1]
	}
	return out
}
