package httpserver

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/mselser95/phantombet/pkg/types"
	"go.uber.org/zap"
)

// SettleableView lists markets the orchestrator would try to settle now.
type SettleableView interface {
	SettleableMarkets(ctx context.Context) ([]*types.Market, error)
}

// RoundsView exposes the most recent consensus round and attempt per market.
type RoundsView interface {
	Rounds() []*types.RoundResult
	Attempts() []*types.SettlementAttempt
}

// ErrorResponse represents an HTTP error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MarketsResponse is the body of GET /api/markets/settleable.
type MarketsResponse struct {
	Count   int             `json:"count"`
	Markets []*types.Market `json:"markets"`
}

// RoundsResponse is the body of GET /api/rounds.
type RoundsResponse struct {
	Count  int                  `json:"count"`
	Rounds []*types.RoundResult `json:"rounds"`
}

// AttemptsResponse is the body of GET /api/attempts.
type AttemptsResponse struct {
	Count    int                        `json:"count"`
	Attempts []*types.SettlementAttempt `json:"attempts"`
}

type apiHandler struct {
	markets SettleableView
	rounds  RoundsView
	logger  *zap.Logger
}

func (h *apiHandler) handleSettleable(w http.ResponseWriter, r *http.Request) {
	markets, err := h.markets.SettleableMarkets(r.Context())
	if err != nil {
		h.logger.Warn("settleable-markets-failed", zap.Error(err))
		h.writeError(w, "discover markets failed", http.StatusBadGateway)
		return
	}
	if markets == nil {
		markets = []*types.Market{}
	}
	h.writeJSON(w, http.StatusOK, MarketsResponse{Count: len(markets), Markets: markets})
}

func (h *apiHandler) handleRounds(w http.ResponseWriter, r *http.Request) {
	rounds := h.rounds.Rounds()
	if rounds == nil {
		rounds = []*types.RoundResult{}
	}
	h.writeJSON(w, http.StatusOK, RoundsResponse{Count: len(rounds), Rounds: rounds})
}

func (h *apiHandler) handleRound(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "marketID"), 10, 64)
	if err != nil {
		h.writeError(w, "invalid market id", http.StatusBadRequest)
		return
	}

	for _, round := range h.rounds.Rounds() {
		if round.MarketID == id {
			h.writeJSON(w, http.StatusOK, round)
			return
		}
	}
	h.writeError(w, "no round recorded for market", http.StatusNotFound)
}

func (h *apiHandler) handleAttempts(w http.ResponseWriter, r *http.Request) {
	attempts := h.rounds.Attempts()
	if attempts == nil {
		attempts = []*types.SettlementAttempt{}
	}
	h.writeJSON(w, http.StatusOK, AttemptsResponse{Count: len(attempts), Attempts: attempts})
}

func (h *apiHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		h.logger.Error("failed-to-encode-response", zap.Error(err))
	}
}

func (h *apiHandler) writeError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, ErrorResponse{Error: message})
}
