package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics — счётчики торгового цикла для /metrics.
type Metrics struct {
	TicksTotal    prometheus.Counter
	TicksSkipped  prometheus.Counter
	TradesTotal   *prometheus.CounterVec
	Equity        prometheus.Gauge
	BreakerActive prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bot", Name: "ticks_total",
			Help: "Обработанных наблюдений всего.",
		}),
		TicksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bot", Name: "ticks_skipped_total",
			Help: "Пропущенных тиков (ошибки данных, устаревшие свечи, сбои сети).",
		}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bot", Name: "trades_total",
			Help: "Закрытых сделок по причине выхода.",
		}, []string{"exit_reason"}),
		Equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bot", Name: "equity",
			Help: "Текущая стоимость счёта в котируемой валюте.",
		}),
		BreakerActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bot", Name: "breaker_active",
			Help: "1, если риск-рубильник взведён.",
		}),
	}
	prometheus.MustRegister(m.TicksTotal, m.TicksSkipped, m.TradesTotal, m.Equity, m.BreakerActive)
	return m
}
