// Package ledger implements the share ledger: it maps deposits and
// withdrawals of liquidity onto proportional shares per position, so each
// depositor's claim stays proportional to their contribution while others
// add or remove liquidity.
//
// Exchange rate: the first deposit into an empty position mints one share
// per unit of liquidity. Afterwards every conversion is
//
//	shares = floor(amount * totalShares / totalLiquidity)
//
// computed with a 512-bit intermediate, so rounding always leaves the
// remainder with the pool.
//
// Each Deposit/Withdraw is an atomic read-compute-write against one
// position, serialized per key. Calls on different keys run in parallel.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/atmx/liquidity-ledger/internal/metrics"
	"github.com/atmx/liquidity-ledger/internal/model"
	"github.com/atmx/liquidity-ledger/internal/notify"
	"github.com/atmx/liquidity-ledger/internal/positionkey"
	"github.com/atmx/liquidity-ledger/internal/store"
)

const (
	opDeposit  = "deposit"
	opWithdraw = "withdraw"
)

// Ledger owns every position record. No other component writes them.
//
// The per-key locks live in process memory, so a store must have exactly
// one Ledger writing to it.
type Ledger struct {
	store    store.Store
	notifier notify.Notifier
	dust     model.DustPolicy
	now      func() time.Time
	locks    *keyLocks
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithNotifier sets the sink for LiquidityAdded/LiquidityRemoved events.
func WithNotifier(n notify.Notifier) Option {
	return func(l *Ledger) { l.notifier = n }
}

// WithDustPolicy selects how zero-share deposits are handled.
func WithDustPolicy(p model.DustPolicy) Option {
	return func(l *Ledger) { l.dust = p }
}

// WithClock overrides the time source used for UpdatedAt and events.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a ledger over st. Defaults: DustReject, no notifier, UTC
// wall clock.
func New(st store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:    st,
		notifier: notify.Nop{},
		dust:     model.DustReject,
		now:      func() time.Time { return time.Now().UTC() },
		locks:    newKeyLocks(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Receipt describes a committed Deposit or Withdraw: the shares issued or
// burned and the position totals as left by that call.
type Receipt struct {
	Shares         *uint256.Int
	TotalLiquidity *uint256.Int
	TotalShares    *uint256.Int
}

// Deposit credits amount of liquidity to actor in the position at key and
// returns the shares issued.
func (l *Ledger) Deposit(ctx context.Context, key model.PositionKey, actor common.Address, amount *uint256.Int) (*uint256.Int, error) {
	rc, err := l.DepositReceipt(ctx, key, actor, amount)
	if err != nil {
		return nil, err
	}
	return rc.Shares, nil
}

// DepositReceipt is Deposit returning the post-commit totals as well.
func (l *Ledger) DepositReceipt(ctx context.Context, key model.PositionKey, actor common.Address, amount *uint256.Int) (Receipt, error) {
	start := time.Now()
	if err := validate(actor, amount); err != nil {
		l.reject(opDeposit, key, actor, amount, err)
		return Receipt{}, err
	}

	res, err := l.mutate(ctx, key, actor, func(p *model.Position) (*uint256.Int, error) {
		return l.applyDeposit(p, actor, amount)
	})
	metrics.OperationLatency.WithLabelValues(opDeposit).Observe(time.Since(start).Seconds())
	if err != nil {
		l.reject(opDeposit, key, actor, amount, err)
		return Receipt{}, err
	}

	if res.before.IsEmpty() {
		metrics.ActivePositions.Inc()
	}
	l.commit(ctx, model.LiquidityAdded, opDeposit, key, actor, amount, res)
	return res.receipt(), nil
}

// Withdraw debits amount of liquidity from actor in the position at key and
// returns the shares burned.
//
// The burn is floor(amount * totalShares / totalLiquidity). While a share is
// worth more than one unit of liquidity, a small enough amount burns zero
// shares and succeeds, even for an actor holding no shares at all. Callers
// that need stricter behaviour must enforce a minimum withdrawal.
func (l *Ledger) Withdraw(ctx context.Context, key model.PositionKey, actor common.Address, amount *uint256.Int) (*uint256.Int, error) {
	rc, err := l.WithdrawReceipt(ctx, key, actor, amount)
	if err != nil {
		return nil, err
	}
	return rc.Shares, nil
}

// WithdrawReceipt is Withdraw returning the post-commit totals as well.
func (l *Ledger) WithdrawReceipt(ctx context.Context, key model.PositionKey, actor common.Address, amount *uint256.Int) (Receipt, error) {
	start := time.Now()
	if err := validate(actor, amount); err != nil {
		l.reject(opWithdraw, key, actor, amount, err)
		return Receipt{}, err
	}

	res, err := l.mutate(ctx, key, actor, func(p *model.Position) (*uint256.Int, error) {
		return applyWithdraw(p, actor, amount)
	})
	metrics.OperationLatency.WithLabelValues(opWithdraw).Observe(time.Since(start).Seconds())
	if err != nil {
		l.reject(opWithdraw, key, actor, amount, err)
		return Receipt{}, err
	}

	if res.after.IsEmpty() {
		metrics.ActivePositions.Dec()
	}
	l.commit(ctx, model.LiquidityRemoved, opWithdraw, key, actor, amount, res)
	return res.receipt(), nil
}

// Lookup returns the aggregate state of the position at key. Keys never
// written report the zero position.
func (l *Ledger) Lookup(ctx context.Context, key model.PositionKey) (model.Snapshot, error) {
	p, err := l.load(ctx, positionkey.Digest(key), key)
	if err != nil {
		return model.Snapshot{}, err
	}
	return model.Snapshot{
		TotalLiquidity: p.TotalLiquidity,
		TotalShares:    p.TotalShares,
		UpdatedAt:      p.UpdatedAt,
	}, nil
}

// LookupActorShares returns actor's share balance in the position at key.
func (l *Ledger) LookupActorShares(ctx context.Context, key model.PositionKey, actor common.Address) (*uint256.Int, error) {
	return l.store.GetActorShares(ctx, positionkey.Digest(key), actor)
}

// Position returns a deep copy of the full record at key, including every
// actor balance.
func (l *Ledger) Position(ctx context.Context, key model.PositionKey) (*model.Position, error) {
	return l.load(ctx, positionkey.Digest(key), key)
}

// Positions lists every position ever written, totals only.
func (l *Ledger) Positions(ctx context.Context) ([]model.Position, error) {
	return l.store.ListPositions(ctx)
}

// result carries a committed mutation back to the caller.
type result struct {
	before *model.Position
	after  *model.Position
	shares *uint256.Int
}

func (r *result) receipt() Receipt {
	return Receipt{
		Shares:         r.shares.Clone(),
		TotalLiquidity: r.after.TotalLiquidity.Clone(),
		TotalShares:    r.after.TotalShares.Clone(),
	}
}

// mutate runs apply against a copy of the position under the key's lock and
// persists the copy only if apply and the invariant check both succeed.
func (l *Ledger) mutate(
	ctx context.Context,
	key model.PositionKey,
	actor common.Address,
	apply func(p *model.Position) (*uint256.Int, error),
) (*result, error) {
	id := positionkey.Digest(key)
	unlock := l.locks.lock(id)
	defer unlock()

	before, err := l.loadFresh(ctx, id, key)
	if err != nil {
		return nil, err
	}

	after := before.Clone()
	shares, err := apply(after)
	if err != nil {
		return nil, err
	}
	after.UpdatedAt = l.now()

	if err := checkInvariants(after); err != nil {
		return nil, err
	}
	if err := l.store.PutPosition(ctx, after, actor); err != nil {
		return nil, fmt.Errorf("persist position %s: %w", key, err)
	}
	return &result{before: before, after: after, shares: shares}, nil
}

// load resolves the position for id, yielding the zero position for keys
// never written.
func (l *Ledger) load(ctx context.Context, id model.PositionID, key model.PositionKey) (*model.Position, error) {
	p, err := l.store.GetPosition(ctx, id)
	return resolve(id, key, p, err)
}

// loadFresh is load for the mutation path: it never reads through a cache.
func (l *Ledger) loadFresh(ctx context.Context, id model.PositionID, key model.PositionKey) (*model.Position, error) {
	p, err := store.GetFresh(ctx, l.store, id)
	return resolve(id, key, p, err)
}

func resolve(id model.PositionID, key model.PositionKey, p *model.Position, err error) (*model.Position, error) {
	if errors.Is(err, store.ErrNotFound) {
		return model.NewPosition(id, key), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load position %s: %w", key, err)
	}
	return p, nil
}

func (l *Ledger) applyDeposit(p *model.Position, actor common.Address, amount *uint256.Int) (*uint256.Int, error) {
	var shares *uint256.Int
	if p.IsEmpty() {
		// Bootstrap: one share per unit of liquidity.
		shares = amount.Clone()
	} else {
		var overflow bool
		shares, overflow = new(uint256.Int).MulDivOverflow(amount, p.TotalShares, p.TotalLiquidity)
		if overflow {
			return nil, fmt.Errorf("%w: shares for deposit of %s", ErrOverflow, amount.Dec())
		}
	}

	if shares.IsZero() && l.dust == model.DustReject {
		return nil, fmt.Errorf("%w: %s at %s liquidity / %s shares",
			ErrDustDeposit, amount.Dec(), p.TotalLiquidity.Dec(), p.TotalShares.Dec())
	}

	liquidity, of1 := new(uint256.Int).AddOverflow(p.TotalLiquidity, amount)
	total, of2 := new(uint256.Int).AddOverflow(p.TotalShares, shares)
	balance, of3 := new(uint256.Int).AddOverflow(p.SharesOf(actor), shares)
	if of1 || of2 || of3 {
		return nil, fmt.Errorf("%w: deposit of %s", ErrOverflow, amount.Dec())
	}

	p.TotalLiquidity = liquidity
	p.TotalShares = total
	p.SetShares(actor, balance)
	return shares, nil
}

func applyWithdraw(p *model.Position, actor common.Address, amount *uint256.Int) (*uint256.Int, error) {
	if p.IsEmpty() {
		return nil, ErrEmptyPosition
	}

	have := p.SharesOf(actor)
	shares, overflow := new(uint256.Int).MulDivOverflow(amount, p.TotalShares, p.TotalLiquidity)
	if overflow || have.Lt(shares) {
		return nil, fmt.Errorf("%w: have %s, need %s", ErrInsufficientShares, have.Dec(), shares.Dec())
	}
	if p.TotalLiquidity.Lt(amount) {
		return nil, fmt.Errorf("%w: have %s, need %s",
			ErrInsufficientLiquidity, p.TotalLiquidity.Dec(), amount.Dec())
	}

	p.TotalLiquidity = new(uint256.Int).Sub(p.TotalLiquidity, amount)
	p.TotalShares = new(uint256.Int).Sub(p.TotalShares, shares)
	p.SetShares(actor, new(uint256.Int).Sub(have, shares))
	return shares, nil
}

func validate(actor common.Address, amount *uint256.Int) error {
	if actor == (common.Address{}) {
		return fmt.Errorf("%w: actor is the zero address", ErrInvalidInput)
	}
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	return nil
}

// checkInvariants verifies the accounting rules that must hold after every
// operation.
func checkInvariants(p *model.Position) error {
	if p.TotalShares.IsZero() != p.TotalLiquidity.IsZero() {
		return fmt.Errorf("%w: %s liquidity with %s shares",
			ErrInvariant, p.TotalLiquidity.Dec(), p.TotalShares.Dec())
	}
	sum := new(uint256.Int)
	for actor, s := range p.Shares {
		if s.Gt(p.TotalShares) {
			return fmt.Errorf("%w: %s holds %s of %s shares",
				ErrInvariant, actor.Hex(), s.Dec(), p.TotalShares.Dec())
		}
		if _, overflow := sum.AddOverflow(sum, s); overflow {
			return fmt.Errorf("%w: share balances overflow", ErrInvariant)
		}
	}
	if !sum.Eq(p.TotalShares) {
		return fmt.Errorf("%w: balances sum to %s, total is %s",
			ErrInvariant, sum.Dec(), p.TotalShares.Dec())
	}
	return nil
}

func (l *Ledger) commit(
	ctx context.Context,
	kind model.EventKind,
	op string,
	key model.PositionKey,
	actor common.Address,
	amount *uint256.Int,
	res *result,
) {
	metrics.OperationsTotal.WithLabelValues(op, "ok").Inc()
	metrics.AddVolume(op, amount)

	slog.Info("liquidity "+op,
		"position", key.String(),
		"actor", actor.Hex(),
		"amount", amount.Dec(),
		"shares", res.shares.Dec(),
		"total_liquidity", res.after.TotalLiquidity.Dec(),
		"total_shares", res.after.TotalShares.Dec(),
	)

	l.notifier.Notify(ctx, model.Event{
		ID:             uuid.NewString(),
		Kind:           kind,
		Actor:          actor,
		Key:            key,
		PositionID:     res.after.ID,
		Amount:         amount.Clone(),
		Shares:         res.shares.Clone(),
		TotalLiquidity: res.after.TotalLiquidity.Clone(),
		TotalShares:    res.after.TotalShares.Clone(),
		Timestamp:      res.after.UpdatedAt,
	})
}

func (l *Ledger) reject(op string, key model.PositionKey, actor common.Address, amount *uint256.Int, err error) {
	metrics.OperationsTotal.WithLabelValues(op, resultLabel(err)).Inc()

	amt := "<nil>"
	if amount != nil {
		amt = amount.Dec()
	}
	slog.Warn("liquidity "+op+" rejected",
		"position", key.String(),
		"actor", actor.Hex(),
		"amount", amt,
		"err", err,
	)
}

// resultLabel maps an error to a bounded metrics label.
func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrEmptyPosition):
		return "empty_position"
	case errors.Is(err, ErrInsufficientShares):
		return "insufficient_shares"
	case errors.Is(err, ErrInsufficientLiquidity):
		return "insufficient_liquidity"
	case errors.Is(err, ErrDustDeposit):
		return "dust"
	case errors.Is(err, ErrOverflow):
		return "overflow"
	case errors.Is(err, ErrInvariant):
		return "invariant"
	}
	return "error"
}
