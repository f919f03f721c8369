package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"

	"overnight_bot/internal/strategy"
)

const (
	configFilePathENV = "CONFIG_FILE"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
	apiKeyENV         = "OKX_API_KEY"
	apiSecretENV      = "OKX_API_SECRET"
	apiPassphraseENV  = "OKX_API_PASSPHRASE"
)

// Config ...
type Config struct {
	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`
	DB      string `yaml:"db_dsn"`
	Service struct {
		Host      string `yaml:"host"`
		AdminPort int    `yaml:"admin_port"`
	} `yaml:"service"`

	Exchange struct {
		APIKey     string `yaml:"api_key"`
		APISecret  string `yaml:"api_secret"`
		Passphrase string `yaml:"passphrase"`
	} `yaml:"exchange"`

	// Торгуемый инструмент, один на процесс
	Symbol string `yaml:"symbol"`
	Bar    string `yaml:"bar"` // таймфрейм свечей, напр. "5m"

	InitialCash float64 `yaml:"initial_cash"`
	FeePct      float64 `yaml:"fee_pct"` // 0.1 => 0.1% с каждой стороны

	Strategy StrategyConfig `yaml:"strategy"`

	Risk struct {
		MaxDailyLossPct      float64 `yaml:"max_daily_loss_pct"`
		MaxConsecutiveLosses int     `yaml:"max_consecutive_losses"`
	} `yaml:"risk"`

	// Живой цикл
	PollInterval time.Duration `yaml:"poll_interval"`
	StateDir     string        `yaml:"state_dir"`
	StopFile     string        `yaml:"stop_file"`
	// MaxDataAge — максимально допустимый возраст последней свечи;
	// старше — тик пропускаем
	MaxDataAge time.Duration `yaml:"max_data_age"`
	// StartFresh — явное разрешение стартовать с нуля при битом снапшоте
	StartFresh bool `yaml:"start_fresh"`

	JaegerHost string `yaml:"jaeger_host"`
}

// StrategyConfig — yaml-представление параметров стратегии
// (decimal-поля стратегии yaml.v2 не умеет декодировать напрямую).
type StrategyConfig struct {
	Name            string  `yaml:"name"`
	EntryHour       int     `yaml:"entry_hour"`
	Timezone        string  `yaml:"timezone"`
	MaxEntryPrice   float64 `yaml:"max_entry_price"`
	FastPeriod      int     `yaml:"fast_period"`
	SlowPeriod      int     `yaml:"slow_period"`
	LookbackBars    int     `yaml:"lookback_bars"`
	PriceDropPct    float64 `yaml:"price_drop_pct"`
	TrailingStopPct float64 `yaml:"trailing_stop_pct"`
}

func (s StrategyConfig) Settings() strategy.Settings {
	return strategy.Settings{
		Name:            s.Name,
		EntryHour:       s.EntryHour,
		Timezone:        s.Timezone,
		MaxEntryPrice:   decimal.NewFromFloat(s.MaxEntryPrice),
		FastPeriod:      s.FastPeriod,
		SlowPeriod:      s.SlowPeriod,
		LookbackBars:    s.LookbackBars,
		PriceDropPct:    decimal.NewFromFloat(s.PriceDropPct),
		TrailingStopPct: decimal.NewFromFloat(s.TrailingStopPct),
	}
}

func NewConfig() (*Config, error) {
	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	file, err := os.Open("configs/" + configFileName)
	if err != nil {
		log.Fatalf("Failed to open config file: %v", err)
	}

	defer func() {
		_ = file.Close()
	}()

	decoder := yaml.NewDecoder(file)
	config := Config{
		Symbol:      getenvDefault("SYMBOL", "BTC-USDT"),
		Bar:         getenvDefault("BAR", "5m"),
		InitialCash: floatFromEnv("INITIAL_CASH", 10000),
		FeePct:      floatFromEnv("FEE_PCT", 0.1),

		PollInterval: durationFromEnv("POLL_INTERVAL", "5m"),
		StateDir:     getenvDefault("STATE_DIR", "data"),
		StopFile:     getenvDefault("STOP_FILE", "STOP"),
		MaxDataAge:   durationFromEnv("MAX_DATA_AGE", "15m"),
		StartFresh:   boolFromEnv("START_FRESH", false),
	}
	config.Strategy = StrategyConfig{
		Name:            getenvDefault("STRATEGY", "overnight"),
		EntryHour:       intFromEnv("ENTRY_HOUR", 15),
		Timezone:        getenvDefault("STRATEGY_TZ", "America/New_York"),
		MaxEntryPrice:   floatFromEnv("MAX_ENTRY_PRICE", 90000),
		TrailingStopPct: floatFromEnv("TRAILING_STOP_PCT", 1.0),
		FastPeriod:      intFromEnv("FAST_PERIOD", 20),
		SlowPeriod:      intFromEnv("SLOW_PERIOD", 50),
		LookbackBars:    intFromEnv("LOOKBACK_BARS", 4),
		PriceDropPct:    floatFromEnv("PRICE_DROP_PCT", 2.0),
	}
	config.Risk.MaxDailyLossPct = floatFromEnv("MAX_DAILY_LOSS_PCT", 5.0)
	config.Risk.MaxConsecutiveLosses = intFromEnv("MAX_CONSECUTIVE_LOSSES", 3)

	if err = decoder.Decode(&config); err != nil {
		log.Fatalf("Failed to decode config file: %v", err)
	}

	if token := os.Getenv(tokenTelegramENV); token != "" {
		config.Telegram.Token = token
	}
	if dsn := os.Getenv(databaseDSN); dsn != "" {
		config.DB = dsn
	}
	if v := os.Getenv(apiKeyENV); v != "" {
		config.Exchange.APIKey = v
	}
	if v := os.Getenv(apiSecretENV); v != "" {
		config.Exchange.APISecret = v
	}
	if v := os.Getenv(apiPassphraseENV); v != "" {
		config.Exchange.Passphrase = v
	}
	return &config, nil
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func boolFromEnv(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if v == "1" || v == "true" || v == "TRUE" {
			return true
		}
		if v == "0" || v == "false" || v == "FALSE" {
			return false
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getenvDefault(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}
