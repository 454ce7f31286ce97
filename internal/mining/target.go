package mining

import (
	"math/big"

	"github.com/bardlex/gomc/pkg/errors"
)

// NbitsToTarget decodes a compact difficulty encoding into the full
// 256-bit target: mantissa * 2^(8*(exponent-3)). Exponents of three or
// less shift right instead. Returns an input error for a zero mantissa
// or an exponent that would overflow 256 bits.
func NbitsToTarget(nbits uint32) (*big.Int, error) {
	exponent := uint(nbits >> 24)
	mantissa := int64(nbits & 0x00ffffff)

	if mantissa == 0 {
		return nil, errors.New(errors.ErrorTypeInput, "nbits_to_target",
			"invalid difficulty encoding: zero mantissa").
			WithContext("nbits", nbits)
	}

	if exponent > 32 {
		return nil, errors.New(errors.ErrorTypeInput, "nbits_to_target",
			"invalid difficulty encoding: exponent exceeds 256 bits").
			WithContext("nbits", nbits)
	}

	target := big.NewInt(mantissa)
	if exponent >= 3 {
		target.Lsh(target, 8*(exponent-3))
	} else {
		target.Rsh(target, 8*(3-exponent))
	}

	return target, nil
}

// MeetsTarget reports whether a digest, read as a big-endian integer,
// is less than or equal to the target.
func MeetsTarget(digest []byte, target *big.Int) bool {
	value := new(big.Int).SetBytes(digest)
	return value.Cmp(target) <= 0
}
