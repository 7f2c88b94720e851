package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if len(cfg.Symbols) != 1 || cfg.Symbols[0] != "EURUSD" {
		t.Errorf("expected default symbols [EURUSD], got %v", cfg.Symbols)
	}
	if !cfg.StartingBalance.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("expected default balance 10000, got %s", cfg.StartingBalance)
	}
	if cfg.BarInterval != time.Minute {
		t.Errorf("expected default bar interval 1m, got %s", cfg.BarInterval)
	}
	if cfg.OptimisticTieBreak {
		t.Error("tie-break must default to conservative")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SYMBOLS", "EURUSD, GBPUSD ,USDJPY")
	t.Setenv("STARTING_BALANCE", "50000")
	t.Setenv("BAR_INTERVAL", "5m")
	t.Setenv("TIE_BREAK", "optimistic")
	t.Setenv("REJECT_PROB", "0.05")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Symbols) != 3 || cfg.Symbols[1] != "GBPUSD" {
		t.Errorf("expected trimmed symbol list, got %v", cfg.Symbols)
	}
	if !cfg.StartingBalance.Equal(decimal.NewFromInt(50000)) {
		t.Errorf("expected balance 50000, got %s", cfg.StartingBalance)
	}
	if cfg.BarInterval != 5*time.Minute {
		t.Errorf("expected 5m bar interval, got %s", cfg.BarInterval)
	}
	if !cfg.OptimisticTieBreak {
		t.Error("expected optimistic tie-break")
	}
	if cfg.RejectProb != 0.05 {
		t.Errorf("expected reject prob 0.05, got %v", cfg.RejectProb)
	}
}

func TestLoad_InvalidRejectProb(t *testing.T) {
	for _, v := range []string{"1.5", "-0.1", "often"} {
		t.Setenv("REJECT_PROB", v)
		if _, err := Load(); err == nil {
			t.Errorf("expected error for REJECT_PROB=%q", v)
		}
	}
}

func TestLoad_InvalidBarInterval(t *testing.T) {
	t.Setenv("BAR_INTERVAL", "-1m")
	if _, err := Load(); err == nil {
		t.Error("expected error for negative bar interval")
	}
}

func TestLoad_InvalidDecimal(t *testing.T) {
	t.Setenv("STARTING_BALANCE", "lots")
	if _, err := Load(); err == nil {
		t.Error("expected error for non-decimal balance")
	}
}
