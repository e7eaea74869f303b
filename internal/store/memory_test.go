package store

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/atmx/liquidity-ledger/internal/model"
)

var actor = common.HexToAddress("0x1111111111111111111111111111111111111111")

func seed(t *testing.T, s *MemoryStore, liq, shares uint64) *model.Position {
	t.Helper()
	key := model.PositionKey{PoolID: common.HexToHash("0x01"), Lower: -60, Upper: 60}
	p := model.NewPosition(common.HexToHash("0xaa"), key)
	p.TotalLiquidity = uint256.NewInt(liq)
	p.TotalShares = uint256.NewInt(shares)
	p.SetShares(actor, uint256.NewInt(shares))
	p.UpdatedAt = time.Unix(1700000000, 0).UTC()
	if err := s.PutPosition(context.Background(), p, actor); err != nil {
		t.Fatalf("failed to seed position: %v", err)
	}
	return p
}

func TestMemoryStore_GetMissing(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.GetPosition(context.Background(), common.HexToHash("0xaa")); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	shares, err := s.GetActorShares(context.Background(), common.HexToHash("0xaa"), actor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !shares.IsZero() {
		t.Errorf("expected zero shares for unknown position, got %s", shares.Dec())
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	p := seed(t, s, 100, 100)

	// Mutating the seeded value must not leak into the store.
	p.TotalLiquidity.SetUint64(1)
	p.Shares[actor].SetUint64(1)

	got, err := s.GetPosition(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.TotalLiquidity.Uint64() != 100 {
		t.Errorf("expected stored liquidity 100, got %s", got.TotalLiquidity.Dec())
	}

	got.Shares[actor].SetUint64(7)
	again, _ := s.GetPosition(context.Background(), p.ID)
	if again.SharesOf(actor).Uint64() != 100 {
		t.Errorf("expected stored shares 100, got %s", again.SharesOf(actor).Dec())
	}
}

func TestMemoryStore_ListOmitsShares(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s, 300, 100)

	positions, err := s.ListPositions(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("expected 1 position, got %d", len(positions))
	}
	if len(positions[0].Shares) != 0 {
		t.Errorf("expected empty shares map, got %d entries", len(positions[0].Shares))
	}
	if positions[0].TotalLiquidity.Uint64() != 300 {
		t.Errorf("expected liquidity 300, got %s", positions[0].TotalLiquidity.Dec())
	}
}
