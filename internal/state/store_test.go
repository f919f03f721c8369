package state

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"overnight_bot/internal/models"
)

func sampleSnapshot() Snapshot {
	return Snapshot{
		Symbol: "BTC-USDT",
		Position: models.Position{
			State:      models.StateLong,
			EntryPrice: decimal.NewFromInt(85464),
			EntryTime:  time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC),
			PeakPrice:  decimal.NewFromInt(91231),
			Quantity:   decimal.NewFromFloat(0.117),
			EntryCash:  decimal.NewFromInt(10000),
			EntryFee:   decimal.NewFromInt(10),
		},
		Cash: decimal.Zero,
		Risk: models.RiskState{
			Date:           "2025-03-10",
			DayStartEquity: decimal.NewFromInt(10000),
		},
		LastProcessed: time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC),
	}
}

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSaveLoadRoundtrip(t *testing.T) {
	s := newStore(t)
	want := sampleSnapshot()
	if err := s.Save(want); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got.Symbol != want.Symbol || got.Position.State != want.Position.State {
		t.Fatalf("снапшот исказился: %+v", got)
	}
	if !got.Position.Quantity.Equal(want.Position.Quantity) ||
		!got.Position.PeakPrice.Equal(want.Position.PeakPrice) {
		t.Fatalf("decimal-поля исказились: %+v", got.Position)
	}
	if !got.LastProcessed.Equal(want.LastProcessed) {
		t.Fatalf("lastProcessed: %s != %s", got.LastProcessed, want.LastProcessed)
	}
	if got.Version != SnapshotVersion {
		t.Fatalf("version = %d", got.Version)
	}
}

func TestLoadNoSnapshot(t *testing.T) {
	s := newStore(t)
	if _, err := s.Load(); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("err = %v, ждали ErrNoSnapshot", err)
	}
}

// обрыв записи посреди основного файла: поднимаемся из бэкапа
func TestBackupFallback(t *testing.T) {
	s := newStore(t)
	want := sampleSnapshot()
	if err := s.Save(want); err != nil {
		t.Fatal(err)
	}
	// вторая запись создаёт бэкап
	if err := s.Save(want); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(s.primary(), []byte(`{"version":1,"symbol":"BTC-`), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("бэкап не сработал: %v", err)
	}
	if got.Symbol != want.Symbol {
		t.Fatalf("из бэкапа пришло не то: %+v", got)
	}
}

func TestBothCopiesCorrupt(t *testing.T) {
	s := newStore(t)
	if err := s.Save(sampleSnapshot()); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(sampleSnapshot()); err != nil {
		t.Fatal(err)
	}
	_ = os.WriteFile(s.primary(), []byte("garbage"), 0o644)
	_ = os.WriteFile(s.backup(), []byte("{}"), 0o644)

	_, err := s.Load()
	if err == nil || errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("обе копии битые, а Load вернул %v", err)
	}
}

// структурно неверный снапшот отбрасывается даже при валидном JSON
func TestStructuralValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown state", `{"version":1,"symbol":"BTC-USDT","position":{"state":"SHORT"},"cash":"1"}`},
		{"bad version", `{"version":99,"symbol":"BTC-USDT","position":{"state":"FLAT"},"cash":"1"}`},
		{"empty symbol", `{"version":1,"symbol":"","position":{"state":"FLAT"},"cash":"1"}`},
		{"negative cash", `{"version":1,"symbol":"BTC-USDT","position":{"state":"FLAT"},"cash":"-5"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newStore(t)
			if err := os.WriteFile(s.primary(), []byte(tc.body), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := s.Load(); err == nil {
				t.Fatal("битый снапшот прошёл валидацию")
			}
		})
	}
}

func TestWipe(t *testing.T) {
	s := newStore(t)
	_ = s.Save(sampleSnapshot())
	_ = s.Save(sampleSnapshot())
	if err := s.Wipe(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("после Wipe err = %v", err)
	}
}

func TestExclusiveLock(t *testing.T) {
	dir := t.TempDir()
	a, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Lock(); err != nil {
		t.Fatal(err)
	}
	defer a.Unlock()

	b, _ := NewStore(dir)
	if err := b.Lock(); err == nil {
		b.Unlock()
		t.Fatal("второй лок на том же каталоге прошёл")
	}

	a.Unlock()
	if err := b.Lock(); err != nil {
		t.Fatalf("после Unlock лок не взялся: %v", err)
	}
	b.Unlock()
}

// tmp-файл не должен оставаться после успешной записи
func TestNoTmpLeftovers(t *testing.T) {
	s := newStore(t)
	if err := s.Save(sampleSnapshot()); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(s.dir, "state.json.tmp")); !os.IsNotExist(err) {
		t.Fatal("остался временный файл")
	}
}
