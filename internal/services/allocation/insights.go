package allocation

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/divfolio/internal/models"
	"github.com/bobmcallan/divfolio/internal/scoring"
)

// CalendarWindow is how far back DividendCalendar looks for a payment pattern
const CalendarWindow = 730 * 24 * time.Hour

// Summarize aggregates a portfolio by category and sector.
func Summarize(p *models.Portfolio) models.PortfolioSummary {
	summary := models.PortfolioSummary{
		ByCategory: make(map[models.Category]models.Exposure),
		BySector:   make(map[string]models.Exposure),
	}
	if p == nil || len(p.Entries) == 0 {
		return summary
	}

	summary.Assets = len(p.Entries)
	summary.TotalInvested = p.TotalInvested
	summary.AnnualIncome = p.AnnualIncome
	summary.MonthlyIncome = p.MonthlyIncome

	var largest decimal.Decimal
	yieldSum := 0.0
	for _, e := range p.Entries {
		yieldSum += e.TrailingYield

		cat := summary.ByCategory[e.Category]
		cat.Count++
		cat.Invested = cat.Invested.Add(e.InvestedValue)
		summary.ByCategory[e.Category] = cat

		sector := e.Sector
		if sector == "" {
			sector = "Unknown"
		}
		sec := summary.BySector[sector]
		sec.Count++
		sec.Invested = sec.Invested.Add(e.InvestedValue)
		summary.BySector[sector] = sec

		if e.InvestedValue.GreaterThan(largest) {
			largest = e.InvestedValue
			summary.LargestPosition = e.Symbol
		}
	}

	summary.AverageYield = yieldSum / float64(len(p.Entries))
	if p.TotalInvested.IsPositive() {
		summary.WeightedYield = p.AnnualIncome.Div(p.TotalInvested).Mul(hundred).InexactFloat64()
		for k, v := range summary.ByCategory {
			v.Percent = v.Invested.Div(p.TotalInvested).Mul(hundred).InexactFloat64()
			summary.ByCategory[k] = v
		}
		for k, v := range summary.BySector {
			v.Percent = v.Invested.Div(p.TotalInvested).Mul(hundred).InexactFloat64()
			summary.BySector[k] = v
		}
	}
	return summary
}

// ProjectIncome estimates annual income for the next years, growing each
// position's income by its dividend growth clamped to [0, cagrClamp]. With
// reinvest, each year's income buys more of the same position at its
// trailing yield.
func ProjectIncome(p *models.Portfolio, years int, reinvest bool, cagrClamp float64) []models.IncomeProjection {
	if p == nil || years < 1 {
		return nil
	}

	income := make([]float64, len(p.Entries))
	factor := make([]float64, len(p.Entries))
	for i, e := range p.Entries {
		income[i] = e.EstimatedAnnualIncome.InexactFloat64()
		factor[i] = 1 + scoring.Clamp(e.DividendCAGR, 0, cagrClamp)/100
		if reinvest {
			factor[i] += e.TrailingYield / 100
		}
	}

	out := make([]models.IncomeProjection, 0, years)
	cumulative := decimal.Zero
	for y := 1; y <= years; y++ {
		total := 0.0
		for i := range income {
			if y > 1 {
				income[i] *= factor[i]
			}
			total += income[i]
		}
		annual := decimal.NewFromFloat(total).Round(2)
		cumulative = cumulative.Add(annual)
		out = append(out, models.IncomeProjection{
			Year:          y,
			AnnualIncome:  annual,
			MonthlyIncome: annual.Div(twelve).Round(2),
			Cumulative:    cumulative,
		})
	}
	return out
}

// DividendCalendar estimates income per calendar month from the payments of
// the last two years: for each month, the mean payout of every symbol that
// paid in it, scaled by the held quantity.
func DividendCalendar(p *models.Portfolio, history map[string][]models.DividendPayment, now time.Time) []models.DividendCalendarMonth {
	type bucket struct {
		sum   float64
		count int
	}
	byMonth := make(map[time.Month]map[string]*bucket)

	start := now.Add(-CalendarWindow)
	if p != nil {
		for _, e := range p.Entries {
			for _, pay := range history[e.Symbol] {
				if pay.Date.Before(start) || pay.Date.After(now) {
					continue
				}
				m := pay.Date.Month()
				if byMonth[m] == nil {
					byMonth[m] = make(map[string]*bucket)
				}
				b := byMonth[m][e.Symbol]
				if b == nil {
					b = &bucket{}
					byMonth[m][e.Symbol] = b
				}
				b.sum += pay.Amount * float64(e.Quantity)
				b.count++
			}
		}
	}

	out := make([]models.DividendCalendarMonth, 0, 12)
	for m := time.January; m <= time.December; m++ {
		month := models.DividendCalendarMonth{Month: m, AverageIncome: decimal.Zero, Symbols: []string{}}
		total := 0.0
		for sym, b := range byMonth[m] {
			total += b.sum / float64(b.count)
			month.Symbols = append(month.Symbols, models.BaseSymbol(sym))
		}
		sort.Strings(month.Symbols)
		month.AverageIncome = decimal.NewFromFloat(total).Round(2)
		out = append(out, month)
	}
	return out
}

// IncomeHistory replays the dividends actually paid over the last years
// against the held quantities.
func IncomeHistory(p *models.Portfolio, history map[string][]models.DividendPayment, years int, now time.Time) models.IncomeHistory {
	monthly := make(map[string]float64)
	annual := make(map[string]float64)
	total := 0.0

	if p != nil && years > 0 {
		start := now.Add(-time.Duration(years*365) * 24 * time.Hour)
		for _, e := range p.Entries {
			for _, pay := range history[e.Symbol] {
				if pay.Date.Before(start) || pay.Date.After(now) {
					continue
				}
				v := pay.Amount * float64(e.Quantity)
				if math.IsNaN(v) || math.IsInf(v, 0) {
					continue
				}
				monthly[fmt.Sprintf("%d-%02d", pay.Date.Year(), int(pay.Date.Month()))] += v
				annual[strconv.Itoa(pay.Date.Year())] += v
				total += v
			}
		}
	}

	return models.IncomeHistory{
		Monthly: periods(monthly),
		Annual:  periods(annual),
		Total:   decimal.NewFromFloat(total).Round(2),
	}
}

func periods(m map[string]float64) []models.PeriodIncome {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]models.PeriodIncome, 0, len(keys))
	for _, k := range keys {
		out = append(out, models.PeriodIncome{Period: k, Income: decimal.NewFromFloat(m[k]).Round(2)})
	}
	return out
}

// HistoryFromResults indexes each result's dividend history by symbol
func HistoryFromResults(results []models.MetricsResult) map[string][]models.DividendPayment {
	out := make(map[string][]models.DividendPayment, len(results))
	for _, r := range results {
		out[r.Symbol] = r.DividendHistory
	}
	return out
}
