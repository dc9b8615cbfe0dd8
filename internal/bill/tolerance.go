package bill

import "github.com/shopspring/decimal"

// Tolerance decides when two amounts are close enough to be treated as the
// same figure. The allowed gap is the larger of the absolute floor and the
// relative share of the expected amount.
type Tolerance struct {
	Absolute float64
	Relative float64
}

// DefaultTolerance is five cents or one percent, whichever is larger
var DefaultTolerance = Tolerance{Absolute: 0.05, Relative: 0.01}

func (t Tolerance) limit(expected decimal.Decimal) decimal.Decimal {
	return decimal.Max(
		decimal.NewFromFloat(t.Absolute),
		expected.Abs().Mul(decimal.NewFromFloat(t.Relative)),
	)
}

// Within reports whether actual is within tolerance of expected
func (t Tolerance) Within(actual, expected decimal.Decimal) bool {
	return actual.Sub(expected).Abs().LessThanOrEqual(t.limit(expected))
}

func money(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(2)
}

func moneyPtr(f *float64) (decimal.Decimal, bool) {
	if f == nil {
		return decimal.Zero, false
	}
	return money(*f), true
}

func amountPtr(d decimal.Decimal) *float64 {
	f := d.Round(2).InexactFloat64()
	return &f
}
