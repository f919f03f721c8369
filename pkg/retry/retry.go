package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Config — ограниченный экспоненциальный backoff с jitter:
// delay = min(InitialDelay * Multiplier^attempt + jitter, MaxDelay).
// Jitter нужен против "thundering herd" при одновременных retry.
type Config struct {
	// MaxAttempts — сколько всего попыток (включая первую). Минимум 1.
	MaxAttempts int

	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// JitterFactor 0.0–1.0, доля случайной вариации задержки.
	JitterFactor float64

	// OnRetry — callback перед каждой повторной попыткой (для логирования).
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig подходит для обычных REST-запросов:
// 4 попытки, задержки 500ms, 1s, 2s (+ jitter).
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  4,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// OrderConfig — для выставления ордеров: быстрее и настойчивее.
func OrderConfig() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

func (c *Config) validate() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.JitterFactor < 0 {
		c.JitterFactor = 0
	}
	if c.JitterFactor > 1 {
		c.JitterFactor = 1
	}
}

func (c *Config) delay(attempt int) time.Duration {
	d := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt))
	if d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	if c.JitterFactor > 0 {
		d += d * c.JitterFactor * (rand.Float64()*2 - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Do выполняет операцию с повторами. Возвращает nil при успехе,
// иначе последнюю ошибку после исчерпания попыток. Отмена контекста
// прерывает ожидание между попытками.
func Do(ctx context.Context, operation func() error, cfg Config) error {
	cfg.validate()

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return lastErr
			}
			return ctx.Err()
		default:
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt >= cfg.MaxAttempts-1 {
			break
		}

		d := cfg.delay(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, d)
		}

		select {
		case <-time.After(d):
		case <-ctx.Done():
			return lastErr
		}
	}
	return lastErr
}

// DoWithResult — то же, но для операций с результатом.
func DoWithResult[T any](ctx context.Context, operation func() (T, error), cfg Config) (T, error) {
	var out T
	err := Do(ctx, func() error {
		var opErr error
		out, opErr = operation()
		return opErr
	}, cfg)
	return out, err
}
