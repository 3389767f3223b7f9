package utils

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// MaxMoney is the largest amount a decimal(10,2) column holds.
var MaxMoney = decimal.RequireFromString("99999999.99")

// RoundMoney rounds to cents, half away from zero.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// HasMoneyPrecision reports whether d has at most two decimal places.
func HasMoneyPrecision(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}

// ToMinorUnits converts a decimal amount to cents.
func ToMinorUnits(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

// ExceedsMoneyColumn reports whether d does not fit a decimal(10,2) column.
func ExceedsMoneyColumn(d decimal.Decimal) bool {
	return d.Abs().GreaterThan(MaxMoney)
}
