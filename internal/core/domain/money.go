package domain

import "github.com/shopspring/decimal"

// MoneyPlaces is the number of decimal places of the reference currency.
const MoneyPlaces int32 = 2

// RoundMoney rounds half away from zero to the currency precision.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// FormatMoney renders an amount with exactly two decimals, e.g. "184.00".
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(MoneyPlaces)
}

// HasMoneyPrecision reports whether d carries no more than two decimals.
func HasMoneyPrecision(d decimal.Decimal) bool {
	return d.Equal(RoundMoney(d))
}
