package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/fxsim/paperbroker/internal/api"
	"github.com/fxsim/paperbroker/internal/config"
	"github.com/fxsim/paperbroker/internal/cost"
	"github.com/fxsim/paperbroker/internal/feed"
	"github.com/fxsim/paperbroker/internal/journal"
	"github.com/fxsim/paperbroker/internal/ledger"
	"github.com/fxsim/paperbroker/internal/match"
	"github.com/fxsim/paperbroker/internal/metrics"
	"github.com/fxsim/paperbroker/internal/notify"
	"github.com/fxsim/paperbroker/internal/position"
	"github.com/fxsim/paperbroker/internal/risk"
	"github.com/fxsim/paperbroker/internal/session"
	"github.com/fxsim/paperbroker/internal/strategy"
	"github.com/fxsim/paperbroker/internal/symbol"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "err", err)
		os.Exit(1)
	}

	// --- Journal ---
	var jnl journal.Journal
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		pg := journal.NewPostgresJournal(pool)
		if err := pg.Init(context.Background()); err != nil {
			slog.Error("schema init failed", "err", err)
			os.Exit(1)
		}
		jnl = pg
		slog.Info("connected to PostgreSQL")
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory journal (data will not persist)")
		jnl = journal.NewMemoryJournal()
	}

	jnl = journal.NewRetryJournal(jnl, journal.DefaultBackoff())

	// Best-effort async replica if Redis is configured.
	var replica *journal.RedisReplica
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		replica = journal.NewRedisReplica(rdb)
		go replica.Run()
		jnl = journal.NewReplicatedJournal(jnl, replica)
		slog.Info("Redis journal replica enabled")
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Symbols ---
	specs := make([]symbol.Spec, 0, len(cfg.Symbols))
	for _, name := range cfg.Symbols {
		specs = append(specs, symbol.DefaultSpec(name))
	}
	symbols, err := symbol.NewTable(specs...)
	if err != nil {
		slog.Error("invalid symbol list", "err", err)
		os.Exit(1)
	}

	// --- Engine ---
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	costModel, err := cost.NewModel(cfg.CommissionPerLot, cfg.MaxSlippagePips, rng)
	if err != nil {
		slog.Error("invalid cost model", "err", err)
		os.Exit(1)
	}

	led := ledger.New(cfg.StartingBalance, costModel, symbols)

	tieBreak := position.Conservative
	if cfg.OptimisticTieBreak {
		tieBreak = position.Optimistic
	}
	positions := position.NewManager(symbols, costModel, led, tieBreak)
	led.SetUnrealizedSource(positions)

	limiter := risk.NewExposureLimiter(cfg.MaxLotsPerSymbol, cfg.MaxLotsTotal)
	matcher := match.New(symbols, costModel, led, limiter, positions, cfg.RejectProb, rng)

	// --- WebSocket hub ---
	hub := notify.NewHub()
	go hub.Run()

	// --- Strategies ---
	registry := strategy.NewRegistry()
	registry.Register("sma-crossover", func() strategy.Strategy {
		return strategy.NewSMACrossover(5, 20,
			decimal.NewFromFloat(0.1), decimal.NewFromInt(20), decimal.NewFromInt(40))
	})

	// --- Price feed ---
	// Synthetic random walk for rehearsal runs; a live adapter plugs in
	// here by implementing feed.PriceSource.
	start := make(map[string]decimal.Decimal, len(cfg.Symbols))
	for _, name := range cfg.Symbols {
		start[name] = decimal.NewFromFloat(1.1000)
	}
	source := feed.NewRandomWalkSource(start,
		decimal.NewFromFloat(0.0002), decimal.NewFromInt(2),
		decimal.NewFromFloat(0.0001), 250*time.Millisecond, rng)

	loop := session.New(session.Config{
		Symbols:       cfg.Symbols,
		Source:        source,
		Bars:          feed.NewBarBuilder(cfg.BarInterval),
		Matcher:       matcher,
		Positions:     positions,
		Ledger:        led,
		Journal:       jnl,
		Hub:           hub,
		Registry:      registry,
		StrategyName:  cfg.StrategyName,
		SnapshotEvery: cfg.SnapshotEvery,
	})

	if err := loop.Start(context.Background()); err != nil {
		slog.Error("session start failed", "err", err)
		os.Exit(1)
	}

	apiSrv := api.NewServer(jnl, led, loop)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for dashboard cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"paperbroker"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time fill and closure events.
		r.Get("/ws", hub.HandleWS)

		apiSrv.Routes(r)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("paperbroker listening", "port", cfg.Port, "symbols", cfg.Symbols)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown: stop the session (settles open positions and
	// writes the final snapshot) before tearing down the HTTP server.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	slog.Info("shutting down paperbroker...")
	summary, err := loop.Stop(ctx)
	if err != nil {
		slog.Error("session stop error", "err", err)
	} else {
		slog.Info("session settled",
			"trades", summary.TotalTrades,
			"win_rate", summary.WinRate.StringFixed(2),
			"net_pnl", summary.NetPnL.String(),
			"max_drawdown", summary.MaxDrawdown.String(),
			"final_balance", summary.FinalBalance.String(),
		)
	}

	if replica != nil {
		replica.Stop()
	}

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("paperbroker stopped")
}
