// Package store defines the persistence interface for the share ledger.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing and single-process deployments).
package store

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/atmx/liquidity-ledger/internal/model"
)

// ErrNotFound is returned when a position has never been written.
var ErrNotFound = errors.New("store: position not found")

// Store is the persistence interface. Implementations must be safe for
// concurrent use; the ledger serializes writes per position.
type Store interface {
	// GetPosition returns a copy of the position, or ErrNotFound.
	GetPosition(ctx context.Context, id model.PositionID) (*model.Position, error)

	// GetActorShares returns actor's share balance; zero when absent.
	GetActorShares(ctx context.Context, id model.PositionID, actor common.Address) (*uint256.Int, error)

	// PutPosition persists totals and actor's balance atomically. actor is
	// the only balance the ledger changes per call, so implementations may
	// skip rewriting the others.
	PutPosition(ctx context.Context, p *model.Position, actor common.Address) error

	// ListPositions returns every stored position with totals only; the
	// Shares map is left empty.
	ListPositions(ctx context.Context) ([]model.Position, error)
}

// FreshReader is implemented by stores that can bypass a cache layer.
type FreshReader interface {
	// GetPositionFresh reads the position from the source of truth.
	GetPositionFresh(ctx context.Context, id model.PositionID) (*model.Position, error)
}

// GetFresh reads the position a mutation will be computed from. Cached
// stores answer from their primary, so a stale cache entry can never be
// written back over a newer committed record.
func GetFresh(ctx context.Context, s Store, id model.PositionID) (*model.Position, error) {
	if fr, ok := s.(FreshReader); ok {
		return fr.GetPositionFresh(ctx, id)
	}
	return s.GetPosition(ctx, id)
}
