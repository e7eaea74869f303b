package ledger

import "errors"

// Every error is detected before any mutation: a failed call leaves the
// stored position untouched and raises no event.
var (
	// ErrInvalidInput is returned for a zero actor address or a zero amount.
	ErrInvalidInput = errors.New("ledger: invalid input")

	// ErrEmptyPosition is returned when withdrawing from a position that
	// holds no liquidity.
	ErrEmptyPosition = errors.New("ledger: position holds no liquidity")

	// ErrInsufficientShares is returned when the actor's balance cannot cover
	// the shares a withdrawal would burn.
	ErrInsufficientShares = errors.New("ledger: insufficient shares")

	// ErrInsufficientLiquidity is returned when the position cannot cover the
	// requested withdrawal amount.
	ErrInsufficientLiquidity = errors.New("ledger: insufficient liquidity")

	// ErrDustDeposit is returned under DustReject when a deposit would mint
	// zero shares.
	ErrDustDeposit = errors.New("ledger: deposit would mint zero shares")

	// ErrOverflow is returned when a total would exceed 2^256-1.
	ErrOverflow = errors.New("ledger: quantity overflows 256 bits")

	// ErrInvariant is returned if a computed position breaks an accounting
	// invariant. It indicates corrupted stored state.
	ErrInvariant = errors.New("ledger: accounting invariant violated")
)
