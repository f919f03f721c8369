package exchange

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"

	"overnight_bot/internal/models"
)

// Candles тянет свечи инструмента. OKX отдаёт их от новых к старым —
// разворачиваем в хронологический порядок, как ждёт движок.
// bar — "5m", "1H" и т.п.
func (c *Client) Candles(ctx context.Context, instID, bar string, limit int) ([]models.Candle, error) {
	if limit <= 0 || limit > 300 {
		limit = 300
	}
	path := fmt.Sprintf("/api/v5/market/candles?instId=%s&bar=%s&limit=%d", instID, bar, limit)
	data, err := c.do(ctx, http.MethodGet, path, "", false)
	if err != nil {
		return nil, fmt.Errorf("candles %s: %w", instID, err)
	}

	var rows [][]string
	if err := sonic.Unmarshal(data, &rows); err != nil {
		return nil, err
	}

	candles := make([]models.Candle, 0, len(rows))
	// с конца: последняя строка — самая старая свеча
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		if len(row) < 6 {
			continue
		}
		candle, err := parseCandle(row)
		if err != nil {
			return nil, fmt.Errorf("candles %s: %w", instID, err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// CandlesHistory добирает историю постранично до нужной глубины,
// двигаясь курсором after в прошлое. Возвращает хронологический порядок.
func (c *Client) CandlesHistory(ctx context.Context, instID, bar string, since time.Time) ([]models.Candle, error) {
	var pages [][]models.Candle
	after := ""
	for {
		path := fmt.Sprintf("/api/v5/market/history-candles?instId=%s&bar=%s&limit=100", instID, bar)
		if after != "" {
			path += "&after=" + after
		}
		data, err := c.do(ctx, http.MethodGet, path, "", false)
		if err != nil {
			return nil, fmt.Errorf("history candles %s: %w", instID, err)
		}
		var rows [][]string
		if err := sonic.Unmarshal(data, &rows); err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			break
		}

		page := make([]models.Candle, 0, len(rows))
		done := false
		for i := len(rows) - 1; i >= 0; i-- {
			candle, err := parseCandle(rows[i])
			if err != nil {
				return nil, fmt.Errorf("history candles %s: %w", instID, err)
			}
			if candle.Start.Before(since) {
				done = true
				continue
			}
			page = append(page, candle)
		}
		pages = append(pages, page)
		if done {
			break
		}
		after = rows[len(rows)-1][0] // ts самой старой свечи страницы
	}

	// страницы шли от свежих к старым
	var out []models.Candle
	for i := len(pages) - 1; i >= 0; i-- {
		out = append(out, pages[i]...)
	}
	return out, nil
}

func parseCandle(row []string) (models.Candle, error) {
	ms, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return models.Candle{}, fmt.Errorf("bad ts %q", row[0])
	}
	c := models.Candle{Start: time.UnixMilli(ms).UTC()}
	for j, dst := range []*decimal.Decimal{&c.Open, &c.High, &c.Low, &c.Close, &c.Volume} {
		v, err := decimal.NewFromString(row[j+1])
		if err != nil {
			return models.Candle{}, fmt.Errorf("bad field %q", row[j+1])
		}
		*dst = v
	}
	return c, nil
}
