package domain

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

var hundred = decimal.NewFromInt(100)

// PercentOf returns round(amount * pct / 100) in whole minor units, rounding half away from zero.
func PercentOf(amount int64, pct float64) int64 {
	if amount == 0 || pct == 0 {
		return 0
	}
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromFloat(pct)).
		Div(hundred).
		Round(0).
		IntPart()
}

// NetOf strips a percentage rate from a gross amount: round(gross / (1 + pct/100)).
func NetOf(gross int64, pct float64) int64 {
	if gross == 0 || pct == 0 {
		return gross
	}
	divisor := decimal.NewFromInt(1).Add(decimal.NewFromFloat(pct).Div(hundred))
	return decimal.NewFromInt(gross).DivRound(divisor, 8).Round(0).IntPart()
}

// NormalizeCurrency validates an ISO 4217 code and returns it upper-cased.
func NormalizeCurrency(code string) (string, error) {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return "", err
	}
	return unit.String(), nil
}
