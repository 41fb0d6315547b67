// Package pricing derives sell prices from purchase costs and back. All
// amounts are int64 minor currency units; margins are percentages.
package pricing

import (
	"errors"
	"math"
)

var (
	// ErrInvalidInput is returned for negative costs, prices, or margins.
	ErrInvalidInput = errors.New("pricing: negative input")
	// ErrZeroCost is returned when a margin cannot be derived because the
	// cost is zero. Callers treat this as "margin unknown".
	ErrZeroCost = errors.New("pricing: margin undefined for zero cost")
)

// roundingStepCents is the business rounding rule for sell prices: always up
// to the nearest 100 minor units.
const roundingStepCents = 100

// PriceFromMargin computes cost*(1+margin/100) rounded up to the nearest
// 100 minor units.
func PriceFromMargin(costCents int64, marginPercent float64) (int64, error) {
	if costCents < 0 || marginPercent < 0 {
		return 0, ErrInvalidInput
	}
	raw := float64(costCents) * (1 + marginPercent/100)
	steps := math.Ceil(raw / roundingStepCents)
	return int64(steps) * roundingStepCents, nil
}

// MarginFromPrice computes (price-cost)/cost*100 rounded to two decimals.
// A zero cost has no defined margin.
func MarginFromPrice(costCents, priceCents int64) (float64, error) {
	if costCents < 0 || priceCents < 0 {
		return 0, ErrInvalidInput
	}
	if costCents == 0 {
		return 0, ErrZeroCost
	}
	margin := float64(priceCents-costCents) / float64(costCents) * 100
	return math.Round(margin*100) / 100, nil
}
