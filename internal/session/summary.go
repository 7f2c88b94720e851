package session

import (
	"github.com/shopspring/decimal"

	"github.com/fxsim/paperbroker/internal/model"
)

// Summary is the aggregate result returned when a session stops.
type Summary struct {
	TotalTrades  int                `json:"total_trades"`
	Wins         int                `json:"wins"`
	WinRate      decimal.Decimal    `json:"win_rate"` // 0..1, zero when no trades
	NetPnL       decimal.Decimal    `json:"net_pnl"`
	MaxDrawdown  decimal.Decimal    `json:"max_drawdown"` // peak-to-trough equity drop
	FinalBalance decimal.Decimal    `json:"final_balance"`
	FinalEquity  decimal.Decimal    `json:"final_equity"`
	Rejections   map[string]int     `json:"rejections"` // reason -> count
	Trades       []model.Trade      `json:"trades"`
	Account      model.AccountState `json:"account"`
}

func summarize(trades []model.Trade, rejections map[string]int, maxDrawdown decimal.Decimal, account model.AccountState) Summary {
	s := Summary{
		TotalTrades:  len(trades),
		NetPnL:       decimal.Zero,
		MaxDrawdown:  maxDrawdown,
		FinalBalance: account.Balance,
		FinalEquity:  account.Equity,
		Rejections:   rejections,
		Trades:       trades,
		Account:      account,
	}
	for _, t := range trades {
		s.NetPnL = s.NetPnL.Add(t.NetPnL)
		if t.NetPnL.IsPositive() {
			s.Wins++
		}
	}
	if s.TotalTrades > 0 {
		s.WinRate = decimal.NewFromInt(int64(s.Wins)).
			Div(decimal.NewFromInt(int64(s.TotalTrades))).Round(4)
	} else {
		s.WinRate = decimal.Zero
	}
	return s
}
