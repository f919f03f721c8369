package exchange

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseCandle(t *testing.T) {
	// формат биржи: [ts, o, h, l, c, vol, ...]
	row := []string{"1741618800000", "85000", "85500", "84900", "85464", "123.45", "x", "y", "1"}
	c, err := parseCandle(row)
	if err != nil {
		t.Fatal(err)
	}
	if !c.Start.Equal(time.UnixMilli(1741618800000).UTC()) {
		t.Fatalf("start = %s", c.Start)
	}
	if !c.Close.Equal(decimal.NewFromInt(85464)) {
		t.Fatalf("close = %s", c.Close)
	}
	if !c.Volume.Equal(decimal.NewFromFloat(123.45)) {
		t.Fatalf("volume = %s", c.Volume)
	}

	if _, err := parseCandle([]string{"not-a-ts", "1", "1", "1", "1", "1"}); err == nil {
		t.Fatal("битый timestamp прошёл")
	}
	if _, err := parseCandle([]string{"1741618800000", "1", "oops", "1", "1", "1"}); err == nil {
		t.Fatal("битая цена прошла")
	}
}

func TestIsBaseCcy(t *testing.T) {
	tests := []struct {
		instID, ccy string
		want        bool
	}{
		{"BTC-USDT", "BTC", true},
		{"BTC-USDT", "btc", true},
		{"BTC-USDT", "USDT", false},
		{"BTCUSDT", "BTC", false}, // нет дефиса — формат не наш
	}
	for _, tc := range tests {
		if got := isBaseCcy(tc.instID, tc.ccy); got != tc.want {
			t.Fatalf("isBaseCcy(%q, %q) = %v", tc.instID, tc.ccy, got)
		}
	}
}

func TestPriceCacheStaleness(t *testing.T) {
	pc := NewPriceCache()
	if _, ok := pc.Get("BTC-USDT", time.Minute); ok {
		t.Fatal("пустой кэш что-то вернул")
	}

	pc.Set("BTC-USDT", decimal.NewFromInt(85464))
	px, ok := pc.Get("BTC-USDT", time.Minute)
	if !ok || !px.Equal(decimal.NewFromInt(85464)) {
		t.Fatalf("свежая цена: %s ok=%v", px, ok)
	}

	// нулевой maxAge делает любую запись протухшей
	if _, ok := pc.Get("BTC-USDT", 0); ok {
		t.Fatal("протухшая цена вернулась")
	}
}
