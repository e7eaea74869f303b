package store

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/atmx/liquidity-ledger/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	positions map[model.PositionID]*model.Position
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		positions: make(map[model.PositionID]*model.Position),
	}
}

func (s *MemoryStore) GetPosition(_ context.Context, id model.PositionID) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (s *MemoryStore) GetActorShares(_ context.Context, id model.PositionID, actor common.Address) (*uint256.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[id]
	if !ok {
		return new(uint256.Int), nil
	}
	return p.SharesOf(actor), nil
}

// PutPosition replaces the whole record; actor is not needed here.
func (s *MemoryStore) PutPosition(_ context.Context, p *model.Position, _ common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external mutation.
	s.positions[p.ID] = p.Clone()
	return nil
}

func (s *MemoryStore) ListPositions(_ context.Context) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	positions := make([]model.Position, 0, len(s.positions))
	for _, p := range s.positions {
		c := p.Clone()
		c.Shares = map[common.Address]*uint256.Int{}
		positions = append(positions, *c)
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].UpdatedAt.After(positions[j].UpdatedAt)
	})
	return positions, nil
}
