// Package config loads the engine configuration from the environment,
// with optional .env support for local development.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config is the full engine configuration.
type Config struct {
	Port string

	Symbols      []string
	StrategyName string

	StartingBalance  decimal.Decimal
	CommissionPerLot decimal.Decimal
	MaxSlippagePips  decimal.Decimal
	RejectProb       float64
	MaxLotsPerSymbol decimal.Decimal
	MaxLotsTotal     decimal.Decimal

	BarInterval   time.Duration
	SnapshotEvery int

	// OptimisticTieBreak selects take-profit when one bar crosses both
	// stop levels; the default (false) is the conservative stop-loss
	// rule.
	OptimisticTieBreak bool

	DatabaseURL string
	RedisURL    string
}

// Load reads configuration from the environment. A missing .env file is
// not an error.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file, using process environment")
	}

	cfg := Config{
		Port:               getEnv("PORT", "8080"),
		Symbols:            splitList(getEnv("SYMBOLS", "EURUSD")),
		StrategyName:       getEnv("STRATEGY", "sma-crossover"),
		RejectProb:         0,
		BarInterval:        time.Minute,
		SnapshotEvery:      100,
		OptimisticTieBreak: getEnv("TIE_BREAK", "conservative") == "optimistic",
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
	}

	var err error
	if cfg.StartingBalance, err = getDecimal("STARTING_BALANCE", "10000"); err != nil {
		return Config{}, err
	}
	if cfg.CommissionPerLot, err = getDecimal("COMMISSION_PER_LOT", "7"); err != nil {
		return Config{}, err
	}
	if cfg.MaxSlippagePips, err = getDecimal("MAX_SLIPPAGE_PIPS", "1"); err != nil {
		return Config{}, err
	}
	if cfg.MaxLotsPerSymbol, err = getDecimal("MAX_LOTS_PER_SYMBOL", "10"); err != nil {
		return Config{}, err
	}
	if cfg.MaxLotsTotal, err = getDecimal("MAX_LOTS_TOTAL", "20"); err != nil {
		return Config{}, err
	}

	if v := os.Getenv("REJECT_PROB"); v != "" {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil || p < 0 || p > 1 {
			return Config{}, fmt.Errorf("config: REJECT_PROB must be in [0,1], got %q", v)
		}
		cfg.RejectProb = p
	}
	if v := os.Getenv("BAR_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("config: BAR_INTERVAL must be a positive duration, got %q", v)
		}
		cfg.BarInterval = d
	}
	if v := os.Getenv("SNAPSHOT_EVERY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("config: SNAPSHOT_EVERY must be >= 0, got %q", v)
		}
		cfg.SnapshotEvery = n
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDecimal(key, fallback string) (decimal.Decimal, error) {
	v := getEnv(key, fallback)
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("config: %s must be a decimal, got %q", key, v)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
