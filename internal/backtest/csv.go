package backtest

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"overnight_bot/internal/models"
)

// LoadCSV читает свечи из файла с колонками:
// timestamp,open,high,low,close,volume. Timestamp — RFC3339 либо unix-секунды.
func LoadCSV(path string) ([]models.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	candles := make([]models.Candle, 0, len(rows))
	for i, row := range rows {
		if i == 0 && row[0] == "timestamp" {
			continue // заголовок
		}
		if len(row) < 6 {
			return nil, fmt.Errorf("строка %d: ожидается 6 колонок, есть %d", i+1, len(row))
		}
		ts, err := parseTime(row[0])
		if err != nil {
			return nil, fmt.Errorf("строка %d: %w", i+1, err)
		}
		c := models.Candle{Start: ts}
		for j, dst := range []*decimal.Decimal{&c.Open, &c.High, &c.Low, &c.Close, &c.Volume} {
			v, err := decimal.NewFromString(row[j+1])
			if err != nil {
				return nil, fmt.Errorf("строка %d, колонка %d: %w", i+1, j+2, err)
			}
			*dst = v
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC(), nil
	}
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q", s)
	}
	return time.Unix(sec, 0).UTC(), nil
}
