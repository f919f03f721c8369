package strategy

import "overnight_bot/internal/models"

// Strategy — чистая функция от окна свечей. Никакого скрытого состояния:
// одинаковое окно в бэктесте и в live обязано давать одинаковое решение.
// Окно короче нужного lookback'а → HOLD/not-eligible, не ошибка.
type Strategy interface {
	Name() string
	Evaluate(window []models.Candle) models.Decision

	// Exits — параметры выхода, которые движок применяет пока позиция открыта.
	Exits() models.ExitPolicy

	// DayGated: не больше одного входа в календарный день (следит риск-менеджер).
	DayGated() bool
}
