// Package api exposes the read-only reporting surface over the journal,
// ledger, and session: trades, open positions, account state, and the
// running summary.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fxsim/paperbroker/internal/journal"
	"github.com/fxsim/paperbroker/internal/ledger"
	"github.com/fxsim/paperbroker/internal/model"
	"github.com/fxsim/paperbroker/internal/session"
)

// Server bundles the reporting dependencies.
type Server struct {
	journal journal.Journal
	ledger  *ledger.Ledger
	loop    *session.Loop
}

// NewServer creates the reporting server.
func NewServer(j journal.Journal, l *ledger.Ledger, loop *session.Loop) *Server {
	return &Server{journal: j, ledger: l, loop: loop}
}

// Routes mounts the reporting endpoints on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/trades", s.GetTrades)
	r.Get("/positions", s.GetOpenPositions)
	r.Get("/account", s.GetAccount)
	r.Get("/summary", s.GetSummary)
}

// GetTrades handles GET /api/v1/trades?symbol=&reason=&since=&until=
func (s *Server) GetTrades(w http.ResponseWriter, r *http.Request) {
	filter := journal.TradeFilter{
		Symbol: r.URL.Query().Get("symbol"),
		Reason: model.CloseReason(r.URL.Query().Get("reason")),
	}
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, "since must be RFC3339", http.StatusBadRequest)
			return
		}
		filter.Since = t
	}
	if v := r.URL.Query().Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, "until must be RFC3339", http.StatusBadRequest)
			return
		}
		filter.Until = t
	}

	trades, err := s.journal.QueryTrades(r.Context(), filter)
	if err != nil {
		writeError(w, "failed to query trades", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(trades)
}

// GetOpenPositions handles GET /api/v1/positions
func (s *Server) GetOpenPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.journal.QueryOpenPositions(r.Context())
	if err != nil {
		writeError(w, "failed to query positions", http.StatusInternalServerError)
		return
	}
	if positions == nil {
		positions = []model.Position{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(positions)
}

// GetAccount handles GET /api/v1/account
func (s *Server) GetAccount(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.ledger.Account())
}

// GetSummary handles GET /api/v1/summary
func (s *Server) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary := s.loop.Summary()
	if summary.Trades == nil {
		summary.Trades = []model.Trade{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
