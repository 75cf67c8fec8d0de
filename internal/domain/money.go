package domain

import (
	"github.com/shopspring/decimal"
)

var (
	// MinAmount is the smallest accepted monetary amount.
	MinAmount = decimal.RequireFromString("0.01")
	// MaxAmount is the largest amount that fits NUMERIC(10,2).
	MaxAmount = decimal.RequireFromString("99999999.99")
)

// RoundMoney rounds to cents.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ValidateAmount checks that d lies in [MinAmount, MaxAmount] with at most two decimals.
func ValidateAmount(v *ValidationError, field string, d decimal.Decimal) {
	switch {
	case d.LessThan(MinAmount):
		v.Add(field, "Ensure this value is greater than or equal to 0.01.")
	case d.GreaterThan(MaxAmount):
		v.Add(field, "Ensure that there are no more than 10 digits in total.")
	case !d.Equal(d.Round(2)):
		v.Add(field, "Ensure that there are no more than 2 decimal places.")
	}
}

// ValidateNonNegative checks that d is zero or positive and fits NUMERIC(10,2).
func ValidateNonNegative(v *ValidationError, field string, d decimal.Decimal) {
	switch {
	case d.IsNegative():
		v.Add(field, "Ensure this value is greater than or equal to 0.")
	case d.GreaterThan(MaxAmount):
		v.Add(field, "Ensure that there are no more than 10 digits in total.")
	}
}
