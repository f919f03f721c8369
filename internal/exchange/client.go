package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
)

const baseURL = "https://www.okx.com"

// Client — REST-клиент OKX: публичные маркет-данные и приватные ордера.
type Client struct {
	http      *http.Client
	base      string
	apiKey    string
	apiSecret string
	passph    string

	cache *PriceCache
}

type Creds struct {
	APIKey     string
	APISecret  string
	Passphrase string
	// BaseURL переопределяет адрес API (пусто = боевой OKX).
	BaseURL string
}

func NewClient(creds Creds) *Client {
	base := creds.BaseURL
	if base == "" {
		base = baseURL
	}
	return &Client{
		http:      &http.Client{Timeout: 10 * time.Second},
		base:      base,
		apiKey:    creds.APIKey,
		apiSecret: creds.APISecret,
		passph:    creds.Passphrase,
		cache:     NewPriceCache(),
	}
}

type apiResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path, body string, signed bool) ([]byte, error) {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return nil, err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if signed {
		ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
		msg := ts + strings.ToUpper(method) + path + body
		h := hmac.New(sha256.New, []byte(c.apiSecret))
		h.Write([]byte(msg))
		req.Header.Set("OK-ACCESS-KEY", c.apiKey)
		req.Header.Set("OK-ACCESS-SIGN", base64.StdEncoding.EncodeToString(h.Sum(nil)))
		req.Header.Set("OK-ACCESS-TIMESTAMP", ts)
		req.Header.Set("OK-ACCESS-PASSPHRASE", c.passph)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	rb, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(rb))
	}
	var wrap apiResponse
	if err := sonic.Unmarshal(rb, &wrap); err != nil {
		return nil, err
	}
	if wrap.Code != "0" {
		return nil, fmt.Errorf("okx error: code=%s msg=%s", wrap.Code, wrap.Msg)
	}
	return wrap.Data, nil
}

// CurrentPrice — последняя цена инструмента: из WS-кэша, если он свежий,
// иначе через REST-тикер.
func (c *Client) CurrentPrice(ctx context.Context, instID string, maxAge time.Duration) (decimal.Decimal, error) {
	if px, ok := c.cache.Get(instID, maxAge); ok {
		return px, nil
	}
	data, err := c.do(ctx, http.MethodGet, "/api/v5/market/ticker?instId="+instID, "", false)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("ticker %s: %w", instID, err)
	}
	var arr []struct {
		Last string `json:"last"`
	}
	if err := sonic.Unmarshal(data, &arr); err != nil {
		return decimal.Decimal{}, err
	}
	if len(arr) == 0 {
		return decimal.Decimal{}, fmt.Errorf("ticker %s: пустой ответ", instID)
	}
	px, err := decimal.NewFromString(arr[0].Last)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("ticker %s: bad last %q", instID, arr[0].Last)
	}
	c.cache.Set(instID, px)
	return px, nil
}
