package pricing

import (
	"errors"
	"math"
	"testing"
)

func TestPriceFromMarginConcrete(t *testing.T) {
	got, err := PriceFromMargin(15000, 20)
	if err != nil {
		t.Fatalf("PriceFromMargin: %v", err)
	}
	if got != 18000 {
		t.Fatalf("expected 18000, got %d", got)
	}
}

func TestPriceFromMarginRoundsUp(t *testing.T) {
	// 15000 * 1.21 = 18150 -> 18200
	got, err := PriceFromMargin(15000, 21)
	if err != nil {
		t.Fatalf("PriceFromMargin: %v", err)
	}
	if got != 18200 {
		t.Fatalf("expected 18200, got %d", got)
	}
	// exact multiples stay put
	got, err = PriceFromMargin(10000, 10)
	if err != nil {
		t.Fatalf("PriceFromMargin: %v", err)
	}
	if got != 11000 {
		t.Fatalf("expected 11000, got %d", got)
	}
}

func TestPriceFromMarginRejectsNegative(t *testing.T) {
	if _, err := PriceFromMargin(-1, 10); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for negative cost, got %v", err)
	}
	if _, err := PriceFromMargin(1000, -5); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for negative margin, got %v", err)
	}
}

func TestMarginFromPriceConcrete(t *testing.T) {
	got, err := MarginFromPrice(15000, 17500)
	if err != nil {
		t.Fatalf("MarginFromPrice: %v", err)
	}
	if got != 16.67 {
		t.Fatalf("expected 16.67, got %v", got)
	}
}

func TestMarginFromPriceZeroCost(t *testing.T) {
	if _, err := MarginFromPrice(0, 5000); !errors.Is(err, ErrZeroCost) {
		t.Fatalf("expected ErrZeroCost, got %v", err)
	}
}

func TestMarginPriceRoundTrip(t *testing.T) {
	costs := []int64{100, 777, 1500, 15000, 99950, 1234567}
	margins := []float64{0, 5, 10, 16.67, 20, 33.3, 150}
	for _, cost := range costs {
		for _, margin := range margins {
			price, err := PriceFromMargin(cost, margin)
			if err != nil {
				t.Fatalf("PriceFromMargin(%d, %v): %v", cost, margin, err)
			}
			back, err := MarginFromPrice(cost, price)
			if err != nil {
				t.Fatalf("MarginFromPrice(%d, %d): %v", cost, price, err)
			}
			// rounding up to the next 100 can only raise the margin, by at
			// most 100/cost in percent terms
			tolerance := 100.0/float64(cost)*100 + 0.01
			if back < margin-0.01 || back > margin+tolerance {
				t.Fatalf("round trip cost=%d margin=%v: price=%d back=%v (tolerance %v)", cost, margin, price, back, tolerance)
			}
		}
	}
}

func TestPriceFromMarginLargeCost(t *testing.T) {
	got, err := PriceFromMargin(1234567, 0)
	if err != nil {
		t.Fatalf("PriceFromMargin: %v", err)
	}
	if got != 1234600 {
		t.Fatalf("expected 1234600, got %d", got)
	}
	if got < 1234567 || math.Mod(float64(got), 100) != 0 {
		t.Fatalf("price %d must be a multiple of 100 not below cost", got)
	}
}
