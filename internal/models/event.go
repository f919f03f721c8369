package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Типы событий движка/риск-менеджера. На каждое наблюдение — не больше
// одной мутации леджера и одного события по ней; breaker-события идут
// отдельно (это наблюдаемые риск-события, не ошибки).
const (
	EventOpened         = "OPENED"
	EventClosed         = "CLOSED"
	EventBreakerTripped = "BREAKER_TRIPPED"
	EventBreakerCleared = "BREAKER_CLEARED"
)

type Event struct {
	Type   string
	At     time.Time
	Price  decimal.Decimal
	Trade  *Trade // только для CLOSED
	Reason string
}
