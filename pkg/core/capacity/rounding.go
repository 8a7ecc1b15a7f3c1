package capacity

import "github.com/shopspring/decimal"

var (
	quartersPerUnit = decimal.NewFromInt(4)

	// snapPlaces absorbs floating-point noise so that values such as
	// 0.12500000000000003 are treated as the midpoint 0.125
	snapPlaces int32 = 6
)

// Tolerance is the accepted conservation drift when comparing FTE sums
const Tolerance = 0.01

// RoundToQuarter rounds x to the nearest 0.25. Exact midpoints (x.125,
// x.375, ...) go to the nearer even quarter, so 0.125 becomes 0 and 0.375
// becomes 0.5. The rule is symmetric in sign.
func RoundToQuarter(x float64) float64 {
	f, _ := FromQuarters(ToQuarters(x)).Float64()
	return f
}

// ToQuarters converts an FTE amount into a whole number of quarter slots
// using the same midpoint rule as RoundToQuarter
func ToQuarters(x float64) int64 {
	d := decimal.NewFromFloat(x).Round(snapPlaces)
	return d.Mul(quartersPerUnit).RoundBank(0).IntPart()
}

// FromQuarters converts a number of quarter slots back into FTE
func FromQuarters(q int64) decimal.Decimal {
	return decimal.NewFromInt(q).Div(quartersPerUnit)
}

// QuarterFTE converts a number of quarter slots into a float FTE amount
func QuarterFTE(q int64) float64 {
	f, _ := FromQuarters(q).Float64()
	return f
}

// Sum adds FTE values without accumulating binary rounding error
func Sum(values ...float64) float64 {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(decimal.NewFromFloat(v))
	}
	f, _ := total.Float64()
	return f
}

// Equal reports whether two FTE values agree within Tolerance
func Equal(a, b float64) bool {
	diff := decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Abs()
	return diff.LessThanOrEqual(decimal.NewFromFloat(Tolerance))
}
