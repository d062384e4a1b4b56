package ingest

import (
	"math"
	"strings"
)

// RateTable maps a currency code to its value in the reference unit (USD).
// The numbers are business assumptions, not market data.
type RateTable map[string]float64

// DefaultRateTable returns a fresh copy of the built-in conversion constants.
// GAL is priced at 0.50; deployments that follow the quest-platform profile
// (2.50) override it through config.
func DefaultRateTable() RateTable {
	return RateTable{
		"XP":     0.01,
		"GAL":    0.50,
		"POINTS": 0.005,
		"USD":    1.00,
	}
}

const (
	// DefaultUnknownRate prices currencies missing from the table as XP.
	DefaultUnknownRate = 0.01
	// DefaultROIPrecision is the number of decimals kept on stored ROI values.
	DefaultROIPrecision = 4
)

// Calculator converts a reward into a per-minute rate in the reference unit.
// It holds a private copy of its rate table and is safe for concurrent use.
type Calculator struct {
	rates       RateTable
	unknownRate float64
	precision   int
}

// NewCalculator copies rates. A nil table means DefaultRateTable. USD is
// always priced at 1.0 unless the table says otherwise.
func NewCalculator(rates RateTable, unknownRate float64, precision int) *Calculator {
	if rates == nil {
		rates = DefaultRateTable()
	}
	own := make(RateTable, len(rates)+1)
	for code, rate := range rates {
		own[strings.ToUpper(strings.TrimSpace(code))] = rate
	}
	if _, ok := own["USD"]; !ok {
		own["USD"] = 1.0
	}
	if precision < 0 {
		precision = DefaultROIPrecision
	}
	return &Calculator{rates: own, unknownRate: unknownRate, precision: precision}
}

// Rate returns the conversion constant for currency.
func (c *Calculator) Rate(currency string) float64 {
	if r, ok := c.rates[strings.ToUpper(currency)]; ok {
		return r
	}
	return c.unknownRate
}

// ROI is amount * rate(currency) / max(timeEstMin, 1), rounded to the
// calculator's precision. Negative amounts yield negative ROI.
// Results beyond the float64 range saturate at ±MaxFloat64 so the value stays
// serializable.
func (c *Calculator) ROI(amount float64, currency string, timeEstMin float64) float64 {
	return Round(finite(amount*c.Rate(currency)/ClampMinutes(timeEstMin)), c.precision)
}

func finite(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case math.IsInf(v, 1):
		return math.MaxFloat64
	case math.IsInf(v, -1):
		return -math.MaxFloat64
	}
	return v
}

// ClampMinutes floors a time estimate at one minute. NaN counts as zero.
func ClampMinutes(m float64) float64 {
	if math.IsNaN(m) || m < 1 {
		return 1
	}
	return m
}

// Round rounds v half away from zero to places decimals. Values too large to
// carry a fractional part are returned unchanged.
func Round(v float64, places int) float64 {
	if math.Abs(v) >= 1e15 {
		return v
	}
	p := math.Pow(10, float64(places))
	if math.IsInf(v*p, 0) {
		return v
	}
	return math.Round(v*p) / p
}
