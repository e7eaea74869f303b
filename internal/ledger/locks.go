package ledger

import (
	"sync"

	"github.com/atmx/liquidity-ledger/internal/model"
)

// keyLocks hands out one mutex per position. Entries are never removed,
// matching positions, which are never deleted either.
type keyLocks struct {
	mu sync.Mutex
	m  map[model.PositionID]*sync.Mutex
}

func newKeyLocks() *keyLocks {
	return &keyLocks{m: make(map[model.PositionID]*sync.Mutex)}
}

// lock acquires the mutex for id and returns its release function.
func (k *keyLocks) lock(id model.PositionID) func() {
	k.mu.Lock()
	l, ok := k.m[id]
	if !ok {
		l = &sync.Mutex{}
		k.m[id] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
