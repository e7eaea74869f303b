package positionkey

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/liquidity-ledger/internal/model"
)

const pool = "0x00000000000000000000000000000000000000000000000000000000000000aa"

func TestParse_Valid(t *testing.T) {
	k, err := Parse(pool + ":-60:120")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k.PoolID != common.HexToHash(pool) {
		t.Errorf("unexpected pool id %s", k.PoolID.Hex())
	}
	if k.Lower != -60 {
		t.Errorf("expected lower=-60, got %d", k.Lower)
	}
	if k.Upper != 120 {
		t.Errorf("expected upper=120, got %d", k.Upper)
	}
}

func TestParse_RoundTrip(t *testing.T) {
	want := model.PositionKey{PoolID: common.HexToHash("0xbeef"), Lower: -887220, Upper: 887220}
	got, err := Parse(want.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestParse_InvalidFormat(t *testing.T) {
	tests := []string{
		"",
		"INVALID",
		pool,
		pool + ":1",
		pool + ":1:2:3",
		"0xabc:1:2",             // short pool id
		pool + ":a:2",           // non-numeric bound
		pool + ":1:99999999999", // overflows int32
		pool[2:] + ":1:2",       // missing 0x
	}
	for _, s := range tests {
		if _, err := Parse(s); err == nil {
			t.Errorf("expected error for key %q", s)
		}
	}
}

func TestDigest_Deterministic(t *testing.T) {
	k := model.PositionKey{PoolID: common.HexToHash(pool), Lower: -10, Upper: 10}
	if Digest(k) != Digest(k) {
		t.Error("digest should be deterministic")
	}
}

func TestDigest_DistinguishesFields(t *testing.T) {
	base := model.PositionKey{PoolID: common.HexToHash(pool), Lower: -10, Upper: 10}
	variants := []model.PositionKey{
		{PoolID: common.HexToHash("0xab"), Lower: -10, Upper: 10},
		{PoolID: base.PoolID, Lower: 10, Upper: 10},
		{PoolID: base.PoolID, Lower: -10, Upper: -10},
		{PoolID: base.PoolID, Lower: 10, Upper: -10},
	}
	seen := map[model.PositionID]bool{Digest(base): true}
	for _, v := range variants {
		id := Digest(v)
		if seen[id] {
			t.Errorf("digest collision for %s", v)
		}
		seen[id] = true
	}
}

func TestInt256Word_SignExtension(t *testing.T) {
	w := int256Word(-1)
	for i, b := range w {
		if b != 0xff {
			t.Fatalf("byte %d: expected 0xff, got %#x", i, b)
		}
	}
	w = int256Word(1)
	for i, b := range w[:31] {
		if b != 0 {
			t.Fatalf("byte %d: expected 0, got %#x", i, b)
		}
	}
	if w[31] != 1 {
		t.Errorf("expected last byte 1, got %#x", w[31])
	}
}
