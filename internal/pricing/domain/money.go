package domain

import (
	"github.com/shopspring/decimal"
)

const (
	centsPerUnit   = 100
	basisPointsMax = 10000
)

var hundred = decimal.NewFromInt(centsPerUnit)

// ToDecimal renders cents as a two-place decimal amount.
func ToDecimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// ToCents converts a decimal amount to cents, rounding half away from zero.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// ParseAmount parses a decimal string such as "31.50" into cents.
func ParseAmount(value string) (int64, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	return ToCents(d), nil
}

// PercentToBasisPoints converts a percentage such as 12.5 into basis points.
func PercentToBasisPoints(percent decimal.Decimal) int64 {
	return percent.Mul(hundred).Round(0).IntPart()
}

// PercentOf returns bps/10000 of cents, rounded half up. Both inputs are
// non-negative.
func PercentOf(cents, bps int64) int64 {
	return (cents*bps + basisPointsMax/2) / basisPointsMax
}

// MaxBasisPoints is a 100% discount.
const MaxBasisPoints = basisPointsMax
