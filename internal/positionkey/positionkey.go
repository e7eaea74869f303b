// Package positionkey handles position key parsing, validation, and
// derivation of the fixed-width digest the ledger indexes positions by.
package positionkey

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/atmx/liquidity-ledger/internal/model"
)

// keyRegex matches: 0x{64 hex pool id}:{lower}:{upper}
// Example: 0x00..01:-60:60
var keyRegex = regexp.MustCompile(
	`^0x([0-9a-fA-F]{64}):(-?\d+):(-?\d+)$`,
)

var ErrInvalidKey = errors.New("positionkey: invalid key format")

// wordSize is the width of one ABI-encoded word.
const wordSize = 32

// Digest reduces a key to its PositionID: keccak256 over the ABI encoding
// of (bytes32 poolId, int24 lower, int24 upper). Signed fields are
// sign-extended to a full word.
func Digest(k model.PositionKey) model.PositionID {
	buf := make([]byte, 0, 3*wordSize)
	buf = append(buf, k.PoolID.Bytes()...)
	buf = append(buf, int256Word(int64(k.Lower))...)
	buf = append(buf, int256Word(int64(k.Upper))...)
	return crypto.Keccak256Hash(buf)
}

// int256Word encodes v as a big-endian two's complement 256-bit word.
func int256Word(v int64) []byte {
	w := make([]byte, wordSize)
	if v < 0 {
		for i := range w {
			w[i] = 0xff
		}
	}
	binary.BigEndian.PutUint64(w[wordSize-8:], uint64(v))
	return w
}

// Parse parses and validates a key string.
// Format: 0x{pool id}:{lower}:{upper}
func Parse(s string) (model.PositionKey, error) {
	matches := keyRegex.FindStringSubmatch(s)
	if matches == nil {
		return model.PositionKey{}, fmt.Errorf("%w: %s (expected 0x{pool}:{lower}:{upper})",
			ErrInvalidKey, s)
	}

	lower, err := parseBound(matches[2])
	if err != nil {
		return model.PositionKey{}, err
	}
	upper, err := parseBound(matches[3])
	if err != nil {
		return model.PositionKey{}, err
	}

	return model.PositionKey{
		PoolID: common.HexToHash(matches[1]),
		Lower:  lower,
		Upper:  upper,
	}, nil
}

func parseBound(s string) (int32, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil || v < math.MinInt32 || v > math.MaxInt32 {
		return 0, fmt.Errorf("%w: range bound %s out of range", ErrInvalidKey, s)
	}
	return int32(v), nil
}
