package ingest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculator_ROI(t *testing.T) {
	calc := NewCalculator(nil, DefaultUnknownRate, DefaultROIPrecision)

	tests := []struct {
		name     string
		amount   float64
		currency string
		minutes  float64
		want     float64
	}{
		{"usd", 100, "USD", 10, 10.0},
		{"xp", 50, "XP", 5, 0.1},
		{"default reward", 10, "USD", 5, 2.0},
		{"gal", 10, "GAL", 5, 1.0},
		{"points", 10, "POINTS", 20, 0.0025},
		{"zero minutes clamps to one", 3, "USD", 0, 3.0},
		{"fractional minutes clamp to one", 3, "USD", 0.5, 3.0},
		{"negative minutes clamp to one", 3, "USD", -4, 3.0},
		{"unknown currency priced as xp", 100, "ETH", 1, 1.0},
		{"lower case code", 100, "usd", 10, 10.0},
		{"rounded to four places", 1, "XP", 3, 0.0033},
		{"negative amount propagates", -10, "USD", 5, -2.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, calc.ROI(tt.amount, tt.currency, tt.minutes))
		})
	}
}

func TestCalculator_NonNegativeForNonNegativeInput(t *testing.T) {
	calc := NewCalculator(nil, DefaultUnknownRate, DefaultROIPrecision)
	for _, currency := range []string{"USD", "XP", "GAL", "POINTS", "DOGE"} {
		for _, amount := range []float64{0, 0.5, 1, 10, 1e6} {
			for _, minutes := range []float64{0, 1, 2, 60} {
				assert.GreaterOrEqual(t, calc.ROI(amount, currency, minutes), 0.0)
			}
		}
	}
}

func TestCalculator_CustomTableIsCopied(t *testing.T) {
	rates := RateTable{"gal": 2.5}
	calc := NewCalculator(rates, 0.01, 4)
	rates["GAL"] = 100

	assert.Equal(t, 2.5, calc.Rate("GAL"))
	assert.Equal(t, 1.0, calc.Rate("USD"), "USD is always priced")
	assert.Equal(t, 0.01, calc.Rate("XP"), "absent codes use the unknown rate")
}

func TestDefaultRateTable_IsFreshCopy(t *testing.T) {
	a := DefaultRateTable()
	a["XP"] = 99
	assert.Equal(t, 0.01, DefaultRateTable()["XP"])
}

func TestRound(t *testing.T) {
	assert.Equal(t, 2.35, Round(2.3456, 2))
	assert.Equal(t, -1.5, Round(-1.46, 1))
	assert.Equal(t, 3.0, Round(3, 4))
	assert.Equal(t, 1e305, Round(1e305, 4), "no overflow on huge values")
	assert.Equal(t, -1e300, Round(-1e300, 4))
}

func TestCalculator_SaturatesOnOverflow(t *testing.T) {
	calc := NewCalculator(RateTable{"GAL": 1e10}, DefaultUnknownRate, DefaultROIPrecision)
	assert.Equal(t, math.MaxFloat64, calc.ROI(1e300, "GAL", 1))
	assert.Equal(t, -math.MaxFloat64, calc.ROI(-1e300, "GAL", 1))
}
