// Package scoring turns a price and a dividend history into yield,
// consistency, growth and a composite dividend-income score.
package scoring

import (
	"math"
	"sort"
	"time"

	"github.com/bobmcallan/divfolio/internal/models"
)

// TrailingWindow is the lookback for the trailing yield
const TrailingWindow = 365 * 24 * time.Hour

// TrailingYield is the sum of payments dated within TrailingWindow of now,
// divided by price, in percent.
func TrailingYield(payments []models.DividendPayment, price float64, now time.Time) float64 {
	if price <= 0 {
		return 0
	}
	start := now.Add(-TrailingWindow)
	sum := 0.0
	for _, p := range payments {
		if !p.Date.Before(start) {
			sum += p.Amount
		}
	}
	return sum / price * 100
}

// AverageYield is the mean of the per-calendar-year sums over the years
// that paid, divided by price, in percent.
func AverageYield(yearly map[int]float64, price float64) float64 {
	if price <= 0 || len(yearly) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range yearly {
		sum += v
	}
	return sum / float64(len(yearly)) / price * 100
}

// Consistency is the share of the requested years that saw at least one
// payment, in percent. The fetch window reaches slightly past years, so the
// count is capped at years.
func Consistency(yearsWithDividends, years int) float64 {
	if years <= 0 {
		return 0
	}
	if yearsWithDividends > years {
		yearsWithDividends = years
	}
	return float64(yearsWithDividends) / float64(years) * 100
}

// DividendCAGR is the compound growth between the first and last paying
// years, in percent. It is 0 with fewer than two paying years or a
// non-positive first year.
func DividendCAGR(yearly map[int]float64) float64 {
	if len(yearly) < 2 {
		return 0
	}
	years := make([]int, 0, len(yearly))
	for y := range yearly {
		years = append(years, y)
	}
	sort.Ints(years)

	first := yearly[years[0]]
	last := yearly[years[len(years)-1]]
	if first <= 0 || last < 0 {
		return 0
	}
	periods := float64(len(years) - 1)
	return (math.Pow(last/first, 1/periods) - 1) * 100
}

// Clamp bounds v to [lo, hi]
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}

// Score is the weighted composite. Growth is clamped to [0, cagrClamp]
// before weighting.
func Score(trailingYield, consistency, cagr float64, w Weights, cagrClamp float64) float64 {
	return trailingYield*w.Yield + consistency*w.Consistency + Clamp(cagr, 0, cagrClamp)*w.Growth
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
