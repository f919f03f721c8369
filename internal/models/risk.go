package models

import "github.com/shopspring/decimal"

// Причины срабатывания circuit breaker'а.
const (
	BreakerDailyLoss    = "DAILY_LOSS"
	BreakerConsecLosses = "CONSECUTIVE_LOSSES"
)

// RiskState — дневные счётчики риск-менеджера.
// Date/LastEntryDate — локальные даты наблюдений ("2006-01-02") в таймзоне
// стратегии, НЕ wall clock хоста. Сбрасывается на границе календарного дня.
type RiskState struct {
	Date              string          `json:"date"`
	DayStartEquity    decimal.Decimal `json:"day_start_equity"`
	TradesToday       []Trade         `json:"trades_today"`
	ConsecutiveLosses int             `json:"consecutive_losses"`
	Tripped           bool            `json:"tripped"`
	TrippedReason     string          `json:"tripped_reason"`
	// LastEntryDate — для day-gated стратегий: не больше одного входа в день,
	// повторный вход в тот же день после закрытия запрещён.
	LastEntryDate string `json:"last_entry_date"`
}
