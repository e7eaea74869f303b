// Package api provides the HTTP handlers that let external triggers deposit
// into, withdraw from, and inspect ledger positions.
//
// Quantities travel as base-10 strings so 256-bit values survive JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/atmx/liquidity-ledger/internal/ledger"
	"github.com/atmx/liquidity-ledger/internal/model"
	"github.com/atmx/liquidity-ledger/internal/positionkey"
)

// Service exposes a Ledger over HTTP.
type Service struct {
	ledger *ledger.Ledger
}

// NewService creates a new HTTP service over l.
func NewService(l *ledger.Ledger) *Service {
	return &Service{ledger: l}
}

// Routes mounts the position endpoints on r.
func (s *Service) Routes(r chi.Router) {
	r.Get("/positions", s.ListPositions)
	r.Get("/positions/{key}", s.GetPosition)
	r.Get("/positions/{key}/shares/{actor}", s.GetActorShares)
	r.Post("/positions/{key}/deposit", s.Deposit)
	r.Post("/positions/{key}/withdraw", s.Withdraw)
}

// --- Request/Response types ---

// LiquidityRequest is the JSON body for deposit and withdraw.
type LiquidityRequest struct {
	Actor  string `json:"actor"`  // 0x-prefixed address
	Amount string `json:"amount"` // base-10 liquidity amount
}

// LiquidityResponse is returned from deposit and withdraw. Shares is the
// number issued (deposit) or burned (withdraw); totals are the position as
// this call left it.
type LiquidityResponse struct {
	PositionID     string `json:"position_id"`
	Key            string `json:"key"`
	Actor          string `json:"actor"`
	Amount         string `json:"amount"`
	Shares         string `json:"shares"`
	TotalLiquidity string `json:"total_liquidity"`
	TotalShares    string `json:"total_shares"`
}

// PositionResponse is the aggregate view of one position.
type PositionResponse struct {
	PositionID     string          `json:"position_id"`
	Key            string          `json:"key"`
	TotalLiquidity string          `json:"total_liquidity"`
	TotalShares    string          `json:"total_shares"`
	SharePrice     decimal.Decimal `json:"share_price"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// SharesResponse is one actor's balance in one position.
type SharesResponse struct {
	Key    string `json:"key"`
	Actor  string `json:"actor"`
	Shares string `json:"shares"`
}

// --- HTTP Handlers ---

// Deposit handles POST /api/v1/positions/{key}/deposit
func (s *Service) Deposit(w http.ResponseWriter, r *http.Request) {
	s.move(w, r, s.ledger.DepositReceipt)
}

// Withdraw handles POST /api/v1/positions/{key}/withdraw
func (s *Service) Withdraw(w http.ResponseWriter, r *http.Request) {
	s.move(w, r, s.ledger.WithdrawReceipt)
}

type ledgerOp func(ctx context.Context, key model.PositionKey, actor common.Address, amount *uint256.Int) (ledger.Receipt, error)

func (s *Service) move(w http.ResponseWriter, r *http.Request, op ledgerOp) {
	key, err := positionkey.Parse(chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req LiquidityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	actor, err := parseActor(req.Actor)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	amount, err := uint256.FromDecimal(req.Amount)
	if err != nil {
		writeError(w, "amount must be a base-10 integer below 2^256", http.StatusBadRequest)
		return
	}

	rc, err := op(r.Context(), key, actor, amount)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			writeError(w, "internal error", status)
			return
		}
		writeError(w, err.Error(), status)
		return
	}

	writeJSON(w, http.StatusOK, LiquidityResponse{
		PositionID:     positionkey.Digest(key).Hex(),
		Key:            key.String(),
		Actor:          actor.Hex(),
		Amount:         amount.Dec(),
		Shares:         rc.Shares.Dec(),
		TotalLiquidity: rc.TotalLiquidity.Dec(),
		TotalShares:    rc.TotalShares.Dec(),
	})
}

// GetPosition handles GET /api/v1/positions/{key}
func (s *Service) GetPosition(w http.ResponseWriter, r *http.Request) {
	key, err := positionkey.Parse(chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	p, err := s.ledger.Position(r.Context(), key)
	if err != nil {
		writeError(w, "failed to load position", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, newPositionResponse(p))
}

// GetActorShares handles GET /api/v1/positions/{key}/shares/{actor}
func (s *Service) GetActorShares(w http.ResponseWriter, r *http.Request) {
	key, err := positionkey.Parse(chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	actor, err := parseActor(chi.URLParam(r, "actor"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	shares, err := s.ledger.LookupActorShares(r.Context(), key, actor)
	if err != nil {
		writeError(w, "failed to load shares", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, SharesResponse{
		Key:    key.String(),
		Actor:  actor.Hex(),
		Shares: shares.Dec(),
	})
}

// ListPositions handles GET /api/v1/positions
func (s *Service) ListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.ledger.Positions(r.Context())
	if err != nil {
		writeError(w, "failed to list positions", http.StatusInternalServerError)
		return
	}

	resp := make([]PositionResponse, 0, len(positions))
	for i := range positions {
		resp = append(resp, newPositionResponse(&positions[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func newPositionResponse(p *model.Position) PositionResponse {
	return PositionResponse{
		PositionID:     p.ID.Hex(),
		Key:            p.Key.String(),
		TotalLiquidity: p.TotalLiquidity.Dec(),
		TotalShares:    p.TotalShares.Dec(),
		SharePrice:     p.SharePrice(),
		UpdatedAt:      p.UpdatedAt,
	}
}

func parseActor(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, errors.New("actor must be a 0x-prefixed 20-byte hex address")
	}
	return common.HexToAddress(s), nil
}

// statusFor maps ledger errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInvalidInput),
		errors.Is(err, ledger.ErrDustDeposit),
		errors.Is(err, ledger.ErrOverflow):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrEmptyPosition),
		errors.Is(err, ledger.ErrInsufficientShares),
		errors.Is(err, ledger.ErrInsufficientLiquidity):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
