package shared

import "math"

// Epsilon is the tolerance for monetary comparisons. Amounts are stored with
// two fractional digits, so anything below a cent is rounding noise.
const Epsilon = 0.01

// Round2 rounds an amount to two fractional digits.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// EqualWithin reports whether two amounts agree within Epsilon.
func EqualWithin(a, b float64) bool {
	return math.Abs(a-b) <= Epsilon
}
