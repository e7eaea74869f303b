package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/atmx/liquidity-ledger/internal/api"
	"github.com/atmx/liquidity-ledger/internal/ledger"
	"github.com/atmx/liquidity-ledger/internal/model"
	"github.com/atmx/liquidity-ledger/internal/positionkey"
	"github.com/atmx/liquidity-ledger/internal/store"
)

const (
	testKey = "0x000000000000000000000000000000000000000000000000000000000000beef:-120:120"
	alice   = "0xA11CE00000000000000000000000000000000001"
	bob     = "0xB0B0000000000000000000000000000000000002"
)

// newTestEnv creates a test Service with in-memory store and chi router.
func newTestEnv(t *testing.T, opts ...ledger.Option) (chi.Router, *store.MemoryStore) {
	t.Helper()
	ms := store.NewMemoryStore()
	svc := api.NewService(ledger.New(ms, opts...))

	r := chi.NewRouter()
	r.Route("/api/v1", svc.Routes)
	return r, ms
}

func doMove(t *testing.T, router chi.Router, op, key, actor, amount string) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(api.LiquidityRequest{Actor: actor, Amount: amount})
	req := httptest.NewRequest("POST", "/api/v1/positions/"+key+"/"+op, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func doGet(t *testing.T, router chi.Router, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// --- Deposit ---

func TestDeposit_Bootstrap(t *testing.T) {
	router, _ := newTestEnv(t)

	w := doMove(t, router, "deposit", testKey, alice, "1000")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp api.LiquidityResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	if resp.Shares != "1000" {
		t.Errorf("expected 1000 shares, got %s", resp.Shares)
	}
	if resp.TotalLiquidity != "1000" || resp.TotalShares != "1000" {
		t.Errorf("unexpected totals %s/%s", resp.TotalLiquidity, resp.TotalShares)
	}
	if resp.Key != "0x000000000000000000000000000000000000000000000000000000000000beef:-120:120" {
		t.Errorf("unexpected key %s", resp.Key)
	}
	if resp.PositionID == "" {
		t.Error("expected non-empty position_id")
	}
}

func TestDeposit_InvalidKey(t *testing.T) {
	router, _ := newTestEnv(t)

	w := doMove(t, router, "deposit", "not-a-key", alice, "10")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid key, got %d", w.Code)
	}
}

func TestDeposit_InvalidActor(t *testing.T) {
	router, _ := newTestEnv(t)

	w := doMove(t, router, "deposit", testKey, "alice", "10")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid actor, got %d", w.Code)
	}
}

func TestDeposit_ZeroActor(t *testing.T) {
	router, _ := newTestEnv(t)

	w := doMove(t, router, "deposit", testKey, "0x0000000000000000000000000000000000000000", "10")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for zero actor, got %d", w.Code)
	}
}

func TestDeposit_InvalidAmount(t *testing.T) {
	router, _ := newTestEnv(t)

	for _, amount := range []string{"", "0", "-5", "1.5", "abc"} {
		w := doMove(t, router, "deposit", testKey, alice, amount)
		if w.Code != http.StatusBadRequest {
			t.Errorf("amount %q: expected 400, got %d", amount, w.Code)
		}
	}
}

func TestDeposit_InvalidBody(t *testing.T) {
	router, _ := newTestEnv(t)

	req := httptest.NewRequest("POST", "/api/v1/positions/"+testKey+"/deposit", bytes.NewReader([]byte("{")))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %d", w.Code)
	}
}

// --- Withdraw ---

func TestWithdraw_Partial(t *testing.T) {
	router, _ := newTestEnv(t)
	doMove(t, router, "deposit", testKey, alice, "1000")

	w := doMove(t, router, "withdraw", testKey, alice, "500")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp api.LiquidityResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	if resp.Shares != "500" {
		t.Errorf("expected 500 shares burned, got %s", resp.Shares)
	}
	if resp.TotalLiquidity != "500" || resp.TotalShares != "500" {
		t.Errorf("unexpected totals %s/%s", resp.TotalLiquidity, resp.TotalShares)
	}
}

func TestWithdraw_EmptyPosition(t *testing.T) {
	router, _ := newTestEnv(t)

	w := doMove(t, router, "withdraw", testKey, alice, "1")
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for empty position, got %d", w.Code)
	}
}

func TestWithdraw_InsufficientShares(t *testing.T) {
	router, _ := newTestEnv(t)
	doMove(t, router, "deposit", testKey, alice, "1000")
	doMove(t, router, "deposit", testKey, bob, "10")

	w := doMove(t, router, "withdraw", testKey, bob, "11")
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for over-withdrawal, got %d: %s", w.Code, w.Body.String())
	}

	// Balances must be unchanged.
	w = doGet(t, router, "/api/v1/positions/"+testKey+"/shares/"+bob)
	var shares api.SharesResponse
	json.Unmarshal(w.Body.Bytes(), &shares)
	if shares.Shares != "10" {
		t.Errorf("expected bob to still hold 10 shares, got %s", shares.Shares)
	}
}

// --- Queries ---

func TestGetPosition(t *testing.T) {
	router, _ := newTestEnv(t)
	doMove(t, router, "deposit", testKey, alice, "700")
	doMove(t, router, "deposit", testKey, bob, "300")

	w := doGet(t, router, "/api/v1/positions/"+testKey)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp api.PositionResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	if resp.TotalLiquidity != "1000" || resp.TotalShares != "1000" {
		t.Errorf("unexpected totals %s/%s", resp.TotalLiquidity, resp.TotalShares)
	}
	if !resp.SharePrice.Equal(decimal.NewFromInt(1)) {
		t.Errorf("expected share price 1, got %s", resp.SharePrice)
	}
	if resp.UpdatedAt.IsZero() {
		t.Error("expected updated_at to be set")
	}
}

func TestGetPosition_Unknown(t *testing.T) {
	router, _ := newTestEnv(t)

	w := doGet(t, router, "/api/v1/positions/"+testKey)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for untouched key, got %d", w.Code)
	}

	var resp api.PositionResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.TotalLiquidity != "0" || resp.TotalShares != "0" {
		t.Errorf("expected zero position, got %s/%s", resp.TotalLiquidity, resp.TotalShares)
	}
}

func TestGetActorShares_InvalidActor(t *testing.T) {
	router, _ := newTestEnv(t)

	w := doGet(t, router, "/api/v1/positions/"+testKey+"/shares/nobody")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestListPositions(t *testing.T) {
	router, _ := newTestEnv(t)

	w := doGet(t, router, "/api/v1/positions")
	var empty []api.PositionResponse
	json.Unmarshal(w.Body.Bytes(), &empty)
	if empty == nil || len(empty) != 0 {
		t.Errorf("expected empty list, got %v", empty)
	}

	doMove(t, router, "deposit", testKey, alice, "10")
	doMove(t, router, "deposit", "0x000000000000000000000000000000000000000000000000000000000000beef:0:60", alice, "20")

	w = doGet(t, router, "/api/v1/positions")
	var list []api.PositionResponse
	json.Unmarshal(w.Body.Bytes(), &list)
	if len(list) != 2 {
		t.Errorf("expected 2 positions, got %d", len(list))
	}
}

// --- Dust policy ---

func TestDeposit_DustPolicy(t *testing.T) {
	tests := []struct {
		policy     model.DustPolicy
		wantStatus int
		wantLiq    string
	}{
		{model.DustReject, http.StatusBadRequest, "300"},
		{model.DustAllow, http.StatusOK, "301"},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			router, ms := newTestEnv(t, ledger.WithDustPolicy(tt.policy))
			seedOffRate(t, ms)

			w := doMove(t, router, "deposit", testKey, bob, "1")
			if w.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}

			w = doGet(t, router, "/api/v1/positions/"+testKey)
			var resp api.PositionResponse
			json.Unmarshal(w.Body.Bytes(), &resp)
			if resp.TotalLiquidity != tt.wantLiq || resp.TotalShares != "100" {
				t.Errorf("expected %s/100, got %s/%s", tt.wantLiq, resp.TotalLiquidity, resp.TotalShares)
			}
		})
	}
}

// seedOffRate stores a position at 3 liquidity per share, owned by alice.
func seedOffRate(t *testing.T, ms *store.MemoryStore) {
	t.Helper()
	key, err := positionkey.Parse(testKey)
	if err != nil {
		t.Fatalf("bad test key: %v", err)
	}
	owner := common.HexToAddress(alice)
	p := model.NewPosition(positionkey.Digest(key), key)
	p.TotalLiquidity = uint256.NewInt(300)
	p.TotalShares = uint256.NewInt(100)
	p.SetShares(owner, uint256.NewInt(100))
	if err := ms.PutPosition(context.Background(), p, owner); err != nil {
		t.Fatalf("failed to seed position: %v", err)
	}
}
