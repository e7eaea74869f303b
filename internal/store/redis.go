package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/redis/go-redis/v9"

	"github.com/atmx/liquidity-ledger/internal/model"
)

// Cache is the subset of the go-redis client used by CachedStore.
// *redis.Client satisfies it.
type Cache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes drop the cached copy, go to the primary store, and then
// overwrite the cached copy; reads check Redis first then fall back to the
// primary.
//
// Misses are filled with SETNX so a slow reader can never clobber a value
// written by a concurrent PutPosition. Cache maintenance after a write runs
// detached from the caller's context: once the primary has committed, a
// cancelled request must not leave the old copy behind.
type CachedStore struct {
	primary Store
	rdb     Cache
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb Cache, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through ---

func (s *CachedStore) PutPosition(ctx context.Context, p *model.Position, actor common.Address) error {
	key := positionKey(p.ID)
	detached := context.WithoutCancel(ctx)

	if err := s.rdb.Del(detached, key).Err(); err != nil {
		slog.Warn("position cache invalidation failed", "position", p.ID.Hex(), "err", err)
	}

	if err := s.primary.PutPosition(ctx, p, actor); err != nil {
		return err
	}

	data, err := json.Marshal(p)
	if err == nil {
		err = s.rdb.Set(detached, key, data, s.ttl).Err()
	}
	if err != nil {
		if delErr := s.rdb.Del(detached, key).Err(); delErr != nil {
			slog.Error("position cache invalidation failed", "position", p.ID.Hex(), "err", delErr)
		}
	}
	return nil
}

// GetPositionFresh skips the cache and reads the primary store.
func (s *CachedStore) GetPositionFresh(ctx context.Context, id model.PositionID) (*model.Position, error) {
	return GetFresh(ctx, s.primary, id)
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetPosition(ctx context.Context, id model.PositionID) (*model.Position, error) {
	data, err := s.rdb.Get(ctx, positionKey(id)).Bytes()
	if err == nil {
		var p model.Position
		if json.Unmarshal(data, &p) == nil {
			if p.Shares == nil {
				p.Shares = map[common.Address]*uint256.Int{}
			}
			return &p, nil
		}
	}

	// Cache miss: read from primary.
	p, err := s.primary.GetPosition(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(p); err == nil {
		s.rdb.SetNX(ctx, positionKey(id), data, s.ttl)
	}
	return p, nil
}

func (s *CachedStore) GetActorShares(ctx context.Context, id model.PositionID, actor common.Address) (*uint256.Int, error) {
	p, err := s.GetPosition(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return p.SharesOf(actor), nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListPositions(ctx context.Context) ([]model.Position, error) {
	return s.primary.ListPositions(ctx)
}

func positionKey(id model.PositionID) string { return fmt.Sprintf("position:%s", id.Hex()) }
