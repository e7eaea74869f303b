// Package model defines the core domain types shared across the share ledger.
// All liquidity and share quantities use holiman/uint256, never float64 or
// int64.
package model

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// SharePriceScale is the number of decimal places reported by SharePrice.
const SharePriceScale int32 = 18

// PositionKey identifies a position: a pool and a price range within it.
// Two keys are equal iff all three fields match.
type PositionKey struct {
	PoolID common.Hash `json:"pool_id"`
	Lower  int32       `json:"lower"`
	Upper  int32       `json:"upper"`
}

// String renders the key in its text form: 0x<pool>:<lower>:<upper>.
func (k PositionKey) String() string {
	return fmt.Sprintf("%s:%d:%d", k.PoolID.Hex(), k.Lower, k.Upper)
}

// PositionID is the fixed-width digest of a PositionKey used as the map key.
type PositionID = common.Hash

// Position is the accounting record for one key.
// Shares never holds zero entries: an absent actor has a balance of 0.
type Position struct {
	ID             PositionID                      `json:"id"`
	Key            PositionKey                     `json:"key"`
	TotalLiquidity *uint256.Int                    `json:"total_liquidity"`
	TotalShares    *uint256.Int                    `json:"total_shares"`
	Shares         map[common.Address]*uint256.Int `json:"shares"`
	UpdatedAt      time.Time                       `json:"updated_at"`
}

// NewPosition returns the zero position for key. Every key that has never
// been written behaves as this value.
func NewPosition(id PositionID, key PositionKey) *Position {
	return &Position{
		ID:             id,
		Key:            key,
		TotalLiquidity: new(uint256.Int),
		TotalShares:    new(uint256.Int),
		Shares:         make(map[common.Address]*uint256.Int),
	}
}

// IsEmpty reports whether the position holds no liquidity.
func (p *Position) IsEmpty() bool {
	return p.TotalLiquidity.IsZero()
}

// SharesOf returns a copy of actor's share balance.
func (p *Position) SharesOf(actor common.Address) *uint256.Int {
	if s, ok := p.Shares[actor]; ok {
		return s.Clone()
	}
	return new(uint256.Int)
}

// SetShares sets actor's balance, pruning the entry when it reaches zero.
func (p *Position) SetShares(actor common.Address, shares *uint256.Int) {
	if shares.IsZero() {
		delete(p.Shares, actor)
		return
	}
	p.Shares[actor] = shares.Clone()
}

// Clone returns a deep copy. Stores hand out clones so callers can never
// mutate a stored record.
func (p *Position) Clone() *Position {
	c := &Position{
		ID:             p.ID,
		Key:            p.Key,
		TotalLiquidity: p.TotalLiquidity.Clone(),
		TotalShares:    p.TotalShares.Clone(),
		Shares:         make(map[common.Address]*uint256.Int, len(p.Shares)),
		UpdatedAt:      p.UpdatedAt,
	}
	for a, s := range p.Shares {
		c.Shares[a] = s.Clone()
	}
	return c
}

// Equal reports whether two positions hold identical state.
func (p *Position) Equal(o *Position) bool {
	if p.ID != o.ID || p.Key != o.Key || !p.UpdatedAt.Equal(o.UpdatedAt) {
		return false
	}
	if !p.TotalLiquidity.Eq(o.TotalLiquidity) || !p.TotalShares.Eq(o.TotalShares) {
		return false
	}
	if len(p.Shares) != len(o.Shares) {
		return false
	}
	for a, s := range p.Shares {
		os, ok := o.Shares[a]
		if !ok || !s.Eq(os) {
			return false
		}
	}
	return true
}

// SharePrice returns liquidity per share. An empty position reports the
// bootstrap rate of 1.
func (p *Position) SharePrice() decimal.Decimal {
	if p.TotalShares.IsZero() {
		return decimal.NewFromInt(1)
	}
	liq := decimal.NewFromBigInt(p.TotalLiquidity.ToBig(), 0)
	shares := decimal.NewFromBigInt(p.TotalShares.ToBig(), 0)
	return liq.DivRound(shares, SharePriceScale)
}

// Snapshot is the aggregate view of a position returned by lookups.
type Snapshot struct {
	TotalLiquidity *uint256.Int `json:"total_liquidity"`
	TotalShares    *uint256.Int `json:"total_shares"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// DustPolicy decides what happens to deposits that would mint zero shares.
type DustPolicy string

const (
	// DustReject fails such deposits with ErrDustDeposit.
	DustReject DustPolicy = "reject"
	// DustAllow accepts them: the liquidity is absorbed by existing holders
	// and the depositor receives nothing.
	DustAllow DustPolicy = "allow"
)

// ParseDustPolicy parses a policy name.
func ParseDustPolicy(s string) (DustPolicy, error) {
	switch DustPolicy(s) {
	case DustReject, DustAllow:
		return DustPolicy(s), nil
	}
	return "", fmt.Errorf("unknown dust policy %q (expected reject or allow)", s)
}

// EventKind names a ledger notification.
type EventKind string

const (
	LiquidityAdded   EventKind = "LiquidityAdded"
	LiquidityRemoved EventKind = "LiquidityRemoved"
)

// Event is raised after a successful mutation. It never fires for a failed
// call.
type Event struct {
	ID             string         `json:"id"`
	Kind           EventKind      `json:"kind"`
	Actor          common.Address `json:"actor"`
	Key            PositionKey    `json:"key"`
	PositionID     PositionID     `json:"position_id"`
	Amount         *uint256.Int   `json:"amount"`
	Shares         *uint256.Int   `json:"shares"`
	TotalLiquidity *uint256.Int   `json:"total_liquidity"`
	TotalShares    *uint256.Int   `json:"total_shares"`
	Timestamp      time.Time      `json:"timestamp"`
}
