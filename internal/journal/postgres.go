package journal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fxsim/paperbroker/internal/model"
)

// PostgresJournal implements Journal using PostgreSQL as the source of
// truth. All monetary values are stored as NUMERIC for exact decimal
// precision.
type PostgresJournal struct {
	pool *pgxpool.Pool
}

// NewPostgresJournal creates a PostgreSQL-backed journal.
func NewPostgresJournal(pool *pgxpool.Pool) *PostgresJournal {
	return &PostgresJournal{pool: pool}
}

// Schema is the DDL for the five journal tables. Applied once at boot.
const Schema = `
CREATE TABLE IF NOT EXISTS orders (
	id               TEXT PRIMARY KEY,
	symbol           TEXT NOT NULL,
	side             TEXT NOT NULL,
	kind             TEXT NOT NULL,
	quantity         NUMERIC NOT NULL,
	trigger_price    NUMERIC NOT NULL,
	stop_loss_pips   NUMERIC NOT NULL,
	take_profit_pips NUMERIC NOT NULL,
	status           TEXT NOT NULL,
	reason           TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS fills (
	id          TEXT PRIMARY KEY,
	order_id    TEXT NOT NULL REFERENCES orders(id),
	symbol      TEXT NOT NULL,
	side        TEXT NOT NULL,
	price       NUMERIC NOT NULL,
	quantity    NUMERIC NOT NULL,
	spread_cost NUMERIC NOT NULL,
	commission  NUMERIC NOT NULL,
	slippage    NUMERIC NOT NULL,
	time        TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS positions (
	id             TEXT PRIMARY KEY,
	order_id       TEXT NOT NULL,
	symbol         TEXT NOT NULL,
	side           TEXT NOT NULL,
	quantity       NUMERIC NOT NULL,
	entry_price    NUMERIC NOT NULL,
	stop_loss      NUMERIC NOT NULL,
	take_profit    NUMERIC NOT NULL,
	entry_costs    NUMERIC NOT NULL,
	status         TEXT NOT NULL,
	opened_at      TIMESTAMPTZ NOT NULL,
	closed_at      TIMESTAMPTZ,
	close_reason   TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS trades (
	id           TEXT PRIMARY KEY,
	position_id  TEXT NOT NULL REFERENCES positions(id),
	symbol       TEXT NOT NULL,
	side         TEXT NOT NULL,
	quantity     NUMERIC NOT NULL,
	entry_price  NUMERIC NOT NULL,
	exit_price   NUMERIC NOT NULL,
	entry_time   TIMESTAMPTZ NOT NULL,
	exit_time    TIMESTAMPTZ NOT NULL,
	gross_pnl    NUMERIC NOT NULL,
	entry_costs  NUMERIC NOT NULL,
	exit_costs   NUMERIC NOT NULL,
	net_pnl      NUMERIC NOT NULL,
	close_reason TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS account_snapshots (
	balance    NUMERIC NOT NULL,
	equity     NUMERIC NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

// Init applies the schema.
func (j *PostgresJournal) Init(ctx context.Context) error {
	if _, err := j.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("journal: apply schema: %w", err)
	}
	return nil
}

func (j *PostgresJournal) RecordOrder(ctx context.Context, o model.Order) error {
	_, err := j.pool.Exec(ctx,
		`INSERT INTO orders (id, symbol, side, kind, quantity, trigger_price, stop_loss_pips, take_profit_pips, status, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, reason = EXCLUDED.reason`,
		o.ID, o.Symbol, string(o.Side), string(o.Kind),
		o.Quantity.String(), o.TriggerPrice.String(),
		o.StopLossPips.String(), o.TakeProfitPips.String(),
		string(o.Status), string(o.Reason), o.CreatedAt,
	)
	return err
}

func (j *PostgresJournal) RecordFill(ctx context.Context, f model.Fill) error {
	_, err := j.pool.Exec(ctx,
		`INSERT INTO fills (id, order_id, symbol, side, price, quantity, spread_cost, commission, slippage, time)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10)`,
		f.ID, f.OrderID, f.Symbol, string(f.Side),
		f.Price.String(), f.Quantity.String(),
		f.SpreadCost.String(), f.Commission.String(), f.Slippage.String(),
		f.Time,
	)
	return err
}

func (j *PostgresJournal) RecordPositionOpen(ctx context.Context, p model.Position) error {
	_, err := j.pool.Exec(ctx,
		`INSERT INTO positions (id, order_id, symbol, side, quantity, entry_price, stop_loss, take_profit, entry_costs, status, opened_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10, $11)`,
		p.ID, p.OrderID, p.Symbol, string(p.Side),
		p.Quantity.String(), p.EntryPrice.String(),
		p.StopLoss.String(), p.TakeProfit.String(), p.EntryCosts.String(),
		string(p.Status), p.OpenedAt,
	)
	return err
}

func (j *PostgresJournal) RecordPositionClose(ctx context.Context, p model.Position, t model.Trade) error {
	tx, err := j.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE positions SET status = $2, closed_at = $3, close_reason = $4 WHERE id = $1`,
		p.ID, string(p.Status), p.ClosedAt, string(p.CloseReason),
	); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO trades (id, position_id, symbol, side, quantity, entry_price, exit_price, entry_time, exit_time, gross_pnl, entry_costs, exit_costs, net_pnl, close_reason)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8, $9, $10::NUMERIC, $11::NUMERIC, $12::NUMERIC, $13::NUMERIC, $14)`,
		t.ID, t.PositionID, t.Symbol, string(t.Side),
		t.Quantity.String(), t.EntryPrice.String(), t.ExitPrice.String(),
		t.EntryTime, t.ExitTime,
		t.GrossPnL.String(), t.EntryCosts.String(), t.ExitCosts.String(), t.NetPnL.String(),
		string(t.CloseReason),
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (j *PostgresJournal) RecordSnapshot(ctx context.Context, s model.AccountState) error {
	_, err := j.pool.Exec(ctx,
		`INSERT INTO account_snapshots (balance, equity, updated_at)
		 VALUES ($1::NUMERIC, $2::NUMERIC, $3)`,
		s.Balance.String(), s.Equity.String(), s.UpdatedAt,
	)
	return err
}

func (j *PostgresJournal) QueryTrades(ctx context.Context, filter TradeFilter) ([]model.Trade, error) {
	rows, err := j.pool.Query(ctx,
		`SELECT id, position_id, symbol, side,
		        quantity::TEXT, entry_price::TEXT, exit_price::TEXT,
		        entry_time, exit_time,
		        gross_pnl::TEXT, entry_costs::TEXT, exit_costs::TEXT, net_pnl::TEXT,
		        close_reason
		 FROM trades
		 WHERE ($1 = '' OR symbol = $1)
		   AND ($2 = '' OR close_reason = $2)
		 ORDER BY exit_time`,
		filter.Symbol, string(filter.Reason))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		var t model.Trade
		var side, reason string
		var qty, entry, exit, gross, entryCosts, exitCosts, net string

		if err := rows.Scan(&t.ID, &t.PositionID, &t.Symbol, &side,
			&qty, &entry, &exit,
			&t.EntryTime, &t.ExitTime,
			&gross, &entryCosts, &exitCosts, &net,
			&reason); err != nil {
			return nil, err
		}

		t.Side = model.Side(side)
		t.CloseReason = model.CloseReason(reason)
		t.Quantity, _ = decimal.NewFromString(qty)
		t.EntryPrice, _ = decimal.NewFromString(entry)
		t.ExitPrice, _ = decimal.NewFromString(exit)
		t.GrossPnL, _ = decimal.NewFromString(gross)
		t.EntryCosts, _ = decimal.NewFromString(entryCosts)
		t.ExitCosts, _ = decimal.NewFromString(exitCosts)
		t.NetPnL, _ = decimal.NewFromString(net)

		if filter.Matches(t) {
			trades = append(trades, t)
		}
	}
	return trades, rows.Err()
}

func (j *PostgresJournal) QueryOpenPositions(ctx context.Context) ([]model.Position, error) {
	rows, err := j.pool.Query(ctx,
		`SELECT id, order_id, symbol, side,
		        quantity::TEXT, entry_price::TEXT, stop_loss::TEXT, take_profit::TEXT, entry_costs::TEXT,
		        status, opened_at
		 FROM positions WHERE status = 'open' ORDER BY opened_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		var p model.Position
		var side, status string
		var qty, entry, sl, tp, costs string

		if err := rows.Scan(&p.ID, &p.OrderID, &p.Symbol, &side,
			&qty, &entry, &sl, &tp, &costs,
			&status, &p.OpenedAt); err != nil {
			return nil, err
		}

		p.Side = model.Side(side)
		p.Status = model.PositionStatus(status)
		p.Quantity, _ = decimal.NewFromString(qty)
		p.EntryPrice, _ = decimal.NewFromString(entry)
		p.StopLoss, _ = decimal.NewFromString(sl)
		p.TakeProfit, _ = decimal.NewFromString(tp)
		p.EntryCosts, _ = decimal.NewFromString(costs)

		positions = append(positions, p)
	}
	return positions, rows.Err()
}
