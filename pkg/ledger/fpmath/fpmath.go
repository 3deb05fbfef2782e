// Package fpmath provides overflow-checked arithmetic for the scaled-integer
// quantities the ledger settles in (prices, sizes, quote amounts). Every
// helper reports ok=false instead of wrapping; callers translate that into a
// MathError and abort the whole operation.
package fpmath

import "math/big"

// Add returns a+b, ok=false on int64 overflow.
func Add(a, b int64) (int64, bool) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, false
	}
	return sum, true
}

// Sub returns a-b, ok=false on int64 overflow.
func Sub(a, b int64) (int64, bool) {
	if b == minInt64 {
		if a >= 0 {
			return 0, false
		}
		return a - b, true
	}
	return Add(a, -b)
}

// Neg returns -a, ok=false for math.MinInt64.
func Neg(a int64) (int64, bool) {
	if a == minInt64 {
		return 0, false
	}
	return -a, true
}

// Mul returns a*b, ok=false on int64 overflow.
func Mul(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	// MinInt64 * -1 wraps back to MinInt64, and Go defines MinInt64 / -1 ==
	// MinInt64, so the division check below would miss it.
	if (a == minInt64 && b == -1) || (b == minInt64 && a == -1) {
		return 0, false
	}
	p := a * b
	if p/b != a {
		return 0, false
	}
	return p, true
}

// MulDiv returns a*b/den with a 128-bit intermediate product, truncating
// toward zero. ok=false when den == 0 or the quotient leaves int64 range.
func MulDiv(a, b, den int64) (int64, bool) {
	if den == 0 {
		return 0, false
	}
	prod := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	q := prod.Quo(prod, big.NewInt(den))
	if !q.IsInt64() {
		return 0, false
	}
	return q.Int64(), true
}

// Abs returns |a|, ok=false for math.MinInt64.
func Abs(a int64) (int64, bool) {
	if a == minInt64 {
		return 0, false
	}
	if a < 0 {
		return -a, true
	}
	return a, true
}

const minInt64 = -1 << 63
