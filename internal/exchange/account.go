package exchange

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
)

// Balance — доступный остаток валюты на торговом счёте.
func (c *Client) Balance(ctx context.Context, ccy string) (decimal.Decimal, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/v5/account/balance?ccy="+ccy, "", true)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("balance %s: %w", ccy, err)
	}
	var arr []struct {
		Details []struct {
			Ccy      string `json:"ccy"`
			AvailBal string `json:"availBal"`
		} `json:"details"`
	}
	if err := sonic.Unmarshal(data, &arr); err != nil {
		return decimal.Decimal{}, err
	}
	for _, acc := range arr {
		for _, d := range acc.Details {
			if d.Ccy != ccy {
				continue
			}
			v, err := decimal.NewFromString(d.AvailBal)
			if err != nil {
				return decimal.Decimal{}, fmt.Errorf("balance %s: bad availBal %q", ccy, d.AvailBal)
			}
			return v, nil
		}
	}
	return decimal.Zero, nil
}
