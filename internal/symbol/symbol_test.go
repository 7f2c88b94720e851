package symbol

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// --- Table construction tests ---

func TestNewTable_Valid(t *testing.T) {
	tbl, err := NewTable(DefaultSpec("EURUSD"), DefaultSpec("GBPUSD"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tbl.Names()) != 2 {
		t.Errorf("expected 2 symbols, got %d", len(tbl.Names()))
	}
}

func TestNewTable_InvalidName(t *testing.T) {
	tests := []string{"eurusd", "EUR/USD", "EURUSDX", "EURUS", ""}
	for _, name := range tests {
		_, err := NewTable(DefaultSpec(name))
		if !errors.Is(err, ErrInvalidName) {
			t.Errorf("expected ErrInvalidName for %q, got %v", name, err)
		}
	}
}

func TestNewTable_Duplicate(t *testing.T) {
	_, err := NewTable(DefaultSpec("EURUSD"), DefaultSpec("EURUSD"))
	if err == nil {
		t.Error("expected error for duplicate symbol")
	}
}

func TestLookup_Unknown(t *testing.T) {
	tbl, _ := NewTable(DefaultSpec("EURUSD"))
	_, err := tbl.Lookup("USDJPY")
	if !errors.Is(err, ErrUnknownSymbol) {
		t.Errorf("expected ErrUnknownSymbol, got %v", err)
	}
}

// --- Quantity bounds tests ---

func TestQuantityValid_Bounds(t *testing.T) {
	spec := DefaultSpec("EURUSD") // 0.01 .. 100 lots

	tests := []struct {
		lots  float64
		valid bool
	}{
		{0.01, true},
		{1, true},
		{100, true},
		{0.009, false},
		{100.01, false},
		{0, false},
		{-1, false},
	}
	for _, tt := range tests {
		if got := spec.QuantityValid(d(tt.lots)); got != tt.valid {
			t.Errorf("QuantityValid(%v) = %v, want %v", tt.lots, got, tt.valid)
		}
	}
}

// --- Trading hours tests ---

func TestOpenAt_AlwaysOpenByDefault(t *testing.T) {
	spec := DefaultSpec("EURUSD")
	saturday := time.Date(2026, 8, 22, 12, 0, 0, 0, time.UTC)
	if !spec.OpenAt(saturday) {
		t.Error("spec without weekend close should always be open")
	}
}

func TestOpenAt_WeekendClose(t *testing.T) {
	spec := DefaultSpec("EURUSD")
	spec.WeekendClosed = true

	tests := []struct {
		name string
		at   time.Time
		open bool
	}{
		{"wednesday noon", time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC), true},
		{"friday 21:59", time.Date(2026, 8, 21, 21, 59, 0, 0, time.UTC), true},
		{"friday 22:00", time.Date(2026, 8, 21, 22, 0, 0, 0, time.UTC), false},
		{"saturday", time.Date(2026, 8, 22, 12, 0, 0, 0, time.UTC), false},
		{"sunday 21:59", time.Date(2026, 8, 23, 21, 59, 0, 0, time.UTC), false},
		{"sunday 22:00", time.Date(2026, 8, 23, 22, 0, 0, 0, time.UTC), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := spec.OpenAt(tt.at); got != tt.open {
				t.Errorf("OpenAt(%s) = %v, want %v", tt.at, got, tt.open)
			}
		})
	}
}
