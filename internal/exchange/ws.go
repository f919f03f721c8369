package exchange

import (
	"context"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"overnight_bot/pkg/logger"
)

const wsPublicURL = "wss://ws.okx.com:8443/ws/v5/public"

// PriceCache — последняя цена по инструменту с отметкой времени.
// Протухший кэш не отдаётся: решение на устаревших данных хуже пропуска тика.
type PriceCache struct {
	mu sync.RWMutex
	px map[string]cachedPrice
}

type cachedPrice struct {
	price decimal.Decimal
	at    time.Time
}

func NewPriceCache() *PriceCache {
	return &PriceCache{px: make(map[string]cachedPrice)}
}

func (p *PriceCache) Set(instID string, price decimal.Decimal) {
	p.mu.Lock()
	p.px[instID] = cachedPrice{price: price, at: time.Now()}
	p.mu.Unlock()
}

func (p *PriceCache) Get(instID string, maxAge time.Duration) (decimal.Decimal, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.px[instID]
	if !ok || time.Since(c.at) > maxAge {
		return decimal.Decimal{}, false
	}
	return c.price, true
}

// StreamTicker держит WS-подписку на тикер и кормит кэш цен.
// Рвётся — переподключаемся с паузой, пока жив ctx.
func (c *Client) StreamTicker(ctx context.Context, instID string) {
	dialer := &websocket.Dialer{}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := dialer.DialContext(ctx, wsPublicURL, nil)
		if err != nil {
			logger.Warn("[WS] не подключились: %v", err)
			time.Sleep(3 * time.Second)
			continue
		}
		sub := map[string]any{
			"op":   "subscribe",
			"args": []map[string]string{{"channel": "tickers", "instId": instID}},
		}
		if err := conn.WriteJSON(sub); err != nil {
			conn.Close()
			continue
		}
		logger.Info("[WS] подписка на тикер %s", instID)

		stopPing := make(chan struct{})
		go func() {
			t := time.NewTicker(20 * time.Second)
			defer t.Stop()
			for {
				select {
				case <-stopPing:
					return
				case <-ctx.Done():
					return
				case <-t.C:
					_ = conn.WriteMessage(websocket.TextMessage, []byte("ping"))
				}
			}
		}()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				close(stopPing)
				conn.Close()
				logger.Warn("[WS] чтение оборвалось: %v", err)
				break
			}
			if string(msg) == "pong" {
				continue
			}
			var frame struct {
				Arg struct {
					Channel string `json:"channel"`
					InstID  string `json:"instId"`
				} `json:"arg"`
				Data []struct {
					Last string `json:"last"`
				} `json:"data"`
			}
			if err := sonic.Unmarshal(msg, &frame); err != nil || frame.Arg.Channel != "tickers" {
				continue
			}
			for _, d := range frame.Data {
				if px, err := decimal.NewFromString(d.Last); err == nil && px.IsPositive() {
					c.cache.Set(frame.Arg.InstID, px)
				}
			}
		}

		select {
		case <-ctx.Done():
			return
		default:
			time.Sleep(time.Second)
		}
	}
}
