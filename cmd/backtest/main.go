package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"overnight_bot/internal/backtest"
	"overnight_bot/internal/engine"
	"overnight_bot/internal/exchange"
	"overnight_bot/internal/models"
	"overnight_bot/internal/risk"
	"overnight_bot/internal/strategy"
	"overnight_bot/pkg/logger"
)

// Сценарий прогона описывается yaml-файлом (см. configs/backtest.yaml):
// источник свечей (csv либо биржа), параметры стратегии и риска.
func main() {
	cfgPath := flag.String("config", "configs/backtest.yaml", "путь к сценарию")
	flag.Parse()

	logger.Init()
	logger.SetServiceName("backtest")
	defer logger.Sync()

	if err := run(*cfgPath); err != nil {
		fmt.Fprintf(os.Stderr, "backtest: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	viper.SetConfigFile(cfgPath)
	viper.SetConfigType("yaml")
	viper.SetDefault("initial_cash", 10000.0)
	viper.SetDefault("fee_pct", 0.1)
	viper.SetDefault("bar", "5m")
	viper.SetDefault("risk.max_daily_loss_pct", 5.0)
	viper.SetDefault("risk.max_consecutive_losses", 3)
	if err := viper.ReadInConfig(); err != nil {
		return errors.Wrap(err, "read scenario")
	}

	candles, err := loadCandles()
	if err != nil {
		return err
	}
	if len(candles) == 0 {
		return errors.New("no candles to replay")
	}

	strat, err := strategy.New(strategy.Settings{
		Name:            viper.GetString("strategy.name"),
		EntryHour:       viper.GetInt("strategy.entry_hour"),
		Timezone:        viper.GetString("strategy.timezone"),
		MaxEntryPrice:   decimal.NewFromFloat(viper.GetFloat64("strategy.max_entry_price")),
		FastPeriod:      viper.GetInt("strategy.fast_period"),
		SlowPeriod:      viper.GetInt("strategy.slow_period"),
		LookbackBars:    viper.GetInt("strategy.lookback_bars"),
		PriceDropPct:    decimal.NewFromFloat(viper.GetFloat64("strategy.price_drop_pct")),
		TrailingStopPct: decimal.NewFromFloat(viper.GetFloat64("strategy.trailing_stop_pct")),
	})
	if err != nil {
		return errors.Wrap(err, "build strategy")
	}

	loc := time.UTC
	if tz := viper.GetString("strategy.timezone"); tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}

	initialCash := decimal.NewFromFloat(viper.GetFloat64("initial_cash"))
	eng := engine.New(strat, engine.SimExecutor{
		FeePct: decimal.NewFromFloat(viper.GetFloat64("fee_pct")),
	}, engine.Config{InitialCash: initialCash})
	guard := risk.NewGuard(eng, risk.Limits{
		MaxDailyLossPct:      decimal.NewFromFloat(viper.GetFloat64("risk.max_daily_loss_pct")),
		MaxConsecutiveLosses: viper.GetInt("risk.max_consecutive_losses"),
	}, loc, strat.DayGated())

	res, err := backtest.Run(context.Background(), guard, eng, initialCash, candles)
	if err != nil {
		return errors.Wrap(err, "run")
	}
	fmt.Print(backtest.Render(res, backtest.Summarize(res)))
	return nil
}

// loadCandles: csv-файл либо история с биржи за указанный период.
func loadCandles() ([]models.Candle, error) {
	if path := viper.GetString("csv"); path != "" {
		candles, err := backtest.LoadCSV(path)
		return candles, errors.Wrap(err, "load csv")
	}

	symbol := viper.GetString("symbol")
	if symbol == "" {
		return nil, errors.New("scenario needs either csv or symbol")
	}
	since, err := time.Parse("2006-01-02", viper.GetString("since"))
	if err != nil {
		return nil, errors.Wrap(err, "parse since")
	}
	client := exchange.NewClient(exchange.Creds{})
	candles, err := client.CandlesHistory(context.Background(), symbol, viper.GetString("bar"), since)
	return candles, errors.Wrap(err, "fetch candles")
}
