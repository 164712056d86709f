package utils

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// AtomicUnitsPerXMR is the number of piconero in one XMR.
const AtomicUnitsPerXMR = 1_000_000_000_000

var atomicDivisor = big.NewInt(AtomicUnitsPerXMR)

// FormatAtomic converts piconero to an XMR decimal string with 12 fraction digits.
func FormatAtomic(v uint64) string {
	return fmt.Sprintf("%d.%012d", v/AtomicUnitsPerXMR, v%AtomicUnitsPerXMR)
}

// FormatAtomicNumber is FormatAtomic for values that may not fit in 64 bits.
func FormatAtomicNumber(n json.Number) (string, error) {
	s := strings.TrimSpace(n.String())
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		// Some daemons emit large integers in exponent form.
		f, _, err := big.ParseFloat(s, 10, 256, big.ToNearestEven)
		if err != nil {
			return "", fmt.Errorf("invalid atomic amount %q", s)
		}
		v, _ = f.Int(nil)
	}
	if v.Sign() < 0 {
		return "", fmt.Errorf("negative atomic amount %q", s)
	}
	whole, frac := new(big.Int).QuoRem(v, atomicDivisor, new(big.Int))
	return fmt.Sprintf("%s.%012d", whole.String(), frac.Uint64()), nil
}
