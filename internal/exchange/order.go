package exchange

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
)

// OrderResult — сводка исполненного ордера: средняя цена, объём, комиссия
// в котируемой валюте.
type OrderResult struct {
	OrderID  string
	AvgPrice decimal.Decimal
	FilledSz decimal.Decimal
	Fee      decimal.Decimal
	Time     time.Time
}

// PlaceMarketBuy покупает спотом на notional котируемой валюты (tgtCcy=quote_ccy).
func (c *Client) PlaceMarketBuy(ctx context.Context, instID string, notional decimal.Decimal) (OrderResult, error) {
	body := fmt.Sprintf(`{"instId":%q,"tdMode":"cash","side":"buy","ordType":"market","tgtCcy":"quote_ccy","sz":%q}`,
		instID, notional.String())
	return c.placeAndWait(ctx, instID, body)
}

// PlaceMarketSell продаёт qty базовой валюты по рынку.
func (c *Client) PlaceMarketSell(ctx context.Context, instID string, qty decimal.Decimal) (OrderResult, error) {
	body := fmt.Sprintf(`{"instId":%q,"tdMode":"cash","side":"sell","ordType":"market","sz":%q}`,
		instID, qty.String())
	return c.placeAndWait(ctx, instID, body)
}

func (c *Client) placeAndWait(ctx context.Context, instID, body string) (OrderResult, error) {
	data, err := c.do(ctx, http.MethodPost, "/api/v5/trade/order", body, true)
	if err != nil {
		return OrderResult{}, fmt.Errorf("place order: %w", err)
	}
	var placed []struct {
		OrdID string `json:"ordId"`
		SCode string `json:"sCode"`
		SMsg  string `json:"sMsg"`
	}
	if err := sonic.Unmarshal(data, &placed); err != nil {
		return OrderResult{}, err
	}
	if len(placed) == 0 {
		return OrderResult{}, fmt.Errorf("place order: пустой ответ")
	}
	if placed[0].SCode != "0" {
		return OrderResult{}, fmt.Errorf("order rejected: code=%s msg=%s", placed[0].SCode, placed[0].SMsg)
	}

	// маркет-ордер филлится почти сразу; опрашиваем детали до state=filled
	ordID := placed[0].OrdID
	for i := 0; i < 10; i++ {
		res, filled, err := c.orderDetails(ctx, instID, ordID)
		if err != nil {
			return OrderResult{}, err
		}
		if filled {
			return res, nil
		}
		select {
		case <-ctx.Done():
			return OrderResult{}, ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return OrderResult{}, fmt.Errorf("order %s не зафиллился за отведённое время", ordID)
}

func (c *Client) orderDetails(ctx context.Context, instID, ordID string) (OrderResult, bool, error) {
	path := fmt.Sprintf("/api/v5/trade/order?instId=%s&ordId=%s", instID, ordID)
	data, err := c.do(ctx, http.MethodGet, path, "", true)
	if err != nil {
		return OrderResult{}, false, fmt.Errorf("order details: %w", err)
	}
	var arr []struct {
		State     string `json:"state"`
		AvgPx     string `json:"avgPx"`
		AccFillSz string `json:"accFillSz"`
		Fee       string `json:"fee"`
		FeeCcy    string `json:"feeCcy"`
		FillTime  string `json:"fillTime"`
	}
	if err := sonic.Unmarshal(data, &arr); err != nil {
		return OrderResult{}, false, err
	}
	if len(arr) == 0 || arr[0].State != "filled" {
		return OrderResult{}, false, nil
	}

	d := arr[0]
	avgPx, err := decimal.NewFromString(d.AvgPx)
	if err != nil {
		return OrderResult{}, false, fmt.Errorf("bad avgPx %q", d.AvgPx)
	}
	sz, err := decimal.NewFromString(d.AccFillSz)
	if err != nil {
		return OrderResult{}, false, fmt.Errorf("bad accFillSz %q", d.AccFillSz)
	}
	// комиссия приходит отрицательной; на покупках — в базовой валюте,
	// приводим к котируемой
	fee := decimal.Zero
	if d.Fee != "" {
		f, err := decimal.NewFromString(d.Fee)
		if err != nil {
			return OrderResult{}, false, fmt.Errorf("bad fee %q", d.Fee)
		}
		fee = f.Neg()
		if isBaseCcy(instID, d.FeeCcy) {
			fee = fee.Mul(avgPx)
		}
	}
	at := time.Now().UTC()
	if ms, err := parseMillis(d.FillTime); err == nil {
		at = ms
	}
	return OrderResult{OrderID: ordID, AvgPrice: avgPx, FilledSz: sz, Fee: fee, Time: at}, true, nil
}

// isBaseCcy: для instId вида BTC-USDT базовая валюта — BTC.
func isBaseCcy(instID, ccy string) bool {
	base, _, ok := strings.Cut(instID, "-")
	return ok && strings.EqualFold(base, ccy)
}

func parseMillis(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}
