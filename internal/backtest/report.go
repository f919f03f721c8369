package backtest

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"overnight_bot/internal/models"
)

var d100 = decimal.NewFromInt(100)

// Report — агрегированные метрики прогона.
type Report struct {
	TotalReturnPct decimal.Decimal
	BuyHoldPct     decimal.Decimal
	MaxDrawdownPct decimal.Decimal
	WinRatePct     decimal.Decimal
	TradeCount     int
	WinCount       int
	LossCount      int
	TotalFees      decimal.Decimal
	TotalPnl       decimal.Decimal
	Skipped        int
}

// Summarize считает метрики по результату прогона.
func Summarize(res Result) Report {
	rep := Report{TradeCount: len(res.Trades), Skipped: res.Skipped}

	if res.InitialCash.IsPositive() {
		rep.TotalReturnPct = res.FinalEquity.Sub(res.InitialCash).Div(res.InitialCash).Mul(d100)
	}
	if res.FirstClose.IsPositive() {
		rep.BuyHoldPct = res.LastClose.Sub(res.FirstClose).Div(res.FirstClose).Mul(d100)
	}

	for _, t := range res.Trades {
		rep.TotalFees = rep.TotalFees.Add(t.FeePaid)
		rep.TotalPnl = rep.TotalPnl.Add(t.PnlAbs)
		if t.IsLoss() {
			rep.LossCount++
		} else {
			rep.WinCount++
		}
	}
	if rep.TradeCount > 0 {
		rep.WinRatePct = decimal.NewFromInt(int64(rep.WinCount)).Div(decimal.NewFromInt(int64(rep.TradeCount))).Mul(d100)
	}
	rep.MaxDrawdownPct = maxDrawdown(res.Curve)
	return rep
}

// maxDrawdown — максимальная просадка equity-кривой от бегущего пика.
func maxDrawdown(curve []models.EquityPoint) decimal.Decimal {
	var peak, maxDD decimal.Decimal
	for _, p := range curve {
		if p.Value.GreaterThan(peak) {
			peak = p.Value
		}
		if peak.IsPositive() {
			dd := peak.Sub(p.Value).Div(peak).Mul(d100)
			if dd.GreaterThan(maxDD) {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// Render печатает отчёт в том же духе, что и консольная сводка бота.
func Render(res Result, rep Report) string {
	var b strings.Builder
	line := strings.Repeat("=", 52)
	fmt.Fprintln(&b, line)
	fmt.Fprintln(&b, "РЕЗУЛЬТАТЫ БЭКТЕСТА")
	fmt.Fprintln(&b, line)
	fmt.Fprintf(&b, "Свечей обработано:   %d (пропущено %d)\n", res.Candles, rep.Skipped)
	fmt.Fprintf(&b, "Начальный капитал:   %s\n", res.InitialCash.StringFixed(2))
	fmt.Fprintf(&b, "Итоговый капитал:    %s\n", res.FinalEquity.StringFixed(2))
	fmt.Fprintf(&b, "Доходность:          %s%%\n", rep.TotalReturnPct.StringFixed(2))
	fmt.Fprintf(&b, "Buy & Hold:          %s%%\n", rep.BuyHoldPct.StringFixed(2))
	fmt.Fprintf(&b, "Макс. просадка:      %s%%\n", rep.MaxDrawdownPct.StringFixed(2))
	fmt.Fprintf(&b, "Сделок:              %d (в плюс %d, в минус %d)\n", rep.TradeCount, rep.WinCount, rep.LossCount)
	fmt.Fprintf(&b, "Win rate:            %s%%\n", rep.WinRatePct.StringFixed(1))
	fmt.Fprintf(&b, "Комиссии:            %s\n", rep.TotalFees.StringFixed(2))
	fmt.Fprintln(&b, line)
	for _, t := range res.Trades {
		fmt.Fprintf(&b, "%s  %s -> %s  pnl=%s (%s%%)  %s\n",
			t.EntryTime.Format("2006-01-02 15:04"),
			t.EntryPrice.StringFixed(2), t.ExitPrice.StringFixed(2),
			t.PnlAbs.StringFixed(2), t.PnlPct.StringFixed(2), t.ExitReason)
	}
	return b.String()
}
