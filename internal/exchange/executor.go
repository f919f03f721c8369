package exchange

import (
	"context"

	"github.com/shopspring/decimal"

	"overnight_bot/internal/engine"
	"overnight_bot/internal/models"
	"overnight_bot/pkg/retry"
)

// LiveExecutor исполняет решения движка реальными маркет-ордерами.
// Сетевые ошибки ретраятся; отказ биржи после ретраев уходит наверх,
// и движок пропускает тик без изменений состояния.
type LiveExecutor struct {
	client *Client
	instID string
	retry  retry.Config
}

func NewLiveExecutor(client *Client, instID string) *LiveExecutor {
	return &LiveExecutor{client: client, instID: instID, retry: retry.OrderConfig()}
}

func (l *LiveExecutor) Buy(ctx context.Context, notional decimal.Decimal, _ models.Candle) (engine.Fill, error) {
	res, err := retry.DoWithResult(ctx, func() (OrderResult, error) {
		return l.client.PlaceMarketBuy(ctx, l.instID, notional)
	}, l.retry)
	if err != nil {
		return engine.Fill{}, err
	}
	return engine.Fill{Time: res.Time, Price: res.AvgPrice, Quantity: res.FilledSz, Fee: res.Fee}, nil
}

func (l *LiveExecutor) Sell(ctx context.Context, qty decimal.Decimal, _ models.Candle) (engine.Fill, error) {
	res, err := retry.DoWithResult(ctx, func() (OrderResult, error) {
		return l.client.PlaceMarketSell(ctx, l.instID, qty)
	}, l.retry)
	if err != nil {
		return engine.Fill{}, err
	}
	return engine.Fill{Time: res.Time, Price: res.AvgPrice, Quantity: res.FilledSz, Fee: res.Fee}, nil
}
