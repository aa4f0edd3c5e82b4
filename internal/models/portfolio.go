package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AllocationEntry is one position of an allocated portfolio. Quantity is a
// multiple of the lot size unless the position fell back to a single lot.
type AllocationEntry struct {
	Symbol                 string          `json:"symbol"`
	Name                   string          `json:"name,omitempty"`
	Category               Category        `json:"category"`
	Sector                 string          `json:"sector,omitempty"`
	Price                  float64         `json:"price"`
	Score                  float64         `json:"score"`
	TrailingYield          float64         `json:"trailing_yield"`
	DividendCAGR           float64         `json:"dividend_cagr"`
	LotSize                int             `json:"lot_size"`
	Quantity               int64           `json:"quantity"`
	MinLotFallback         bool            `json:"min_lot_fallback,omitempty"`
	TargetWeight           float64         `json:"target_weight"`
	InvestedValue          decimal.Decimal `json:"invested_value"`
	PortfolioPercent       float64         `json:"portfolio_percent"`
	EstimatedAnnualIncome  decimal.Decimal `json:"estimated_annual_income"`
	EstimatedMonthlyIncome decimal.Decimal `json:"estimated_monthly_income"`
}

// Portfolio is an allocation ordered by score. The sum of PortfolioPercent is 100.
type Portfolio struct {
	Capital        decimal.Decimal   `json:"capital"`
	Entries        []AllocationEntry `json:"entries"`
	TotalInvested  decimal.Decimal   `json:"total_invested"`
	Uninvested     decimal.Decimal   `json:"uninvested"`
	AnnualIncome   decimal.Decimal   `json:"annual_income"`
	MonthlyIncome  decimal.Decimal   `json:"monthly_income"`
	Candidates     int               `json:"candidates"` // eligible before top-K
	DroppedSymbols []string          `json:"dropped_symbols,omitempty"`
}

// PortfolioSummary aggregates an allocated portfolio
type PortfolioSummary struct {
	Assets          int                   `json:"assets"`
	TotalInvested   decimal.Decimal       `json:"total_invested"`
	AverageYield    float64               `json:"average_yield"`  // simple mean
	WeightedYield   float64               `json:"weighted_yield"` // invested-weighted
	AnnualIncome    decimal.Decimal       `json:"annual_income"`
	MonthlyIncome   decimal.Decimal       `json:"monthly_income"`
	ByCategory      map[Category]Exposure `json:"by_category"`
	BySector        map[string]Exposure   `json:"by_sector"`
	LargestPosition string                `json:"largest_position"`
}

// Exposure is the count and share of a portfolio slice
type Exposure struct {
	Count    int             `json:"count"`
	Invested decimal.Decimal `json:"invested"`
	Percent  float64         `json:"percent"`
}

// IncomeProjection is the expected annual income for one future year
type IncomeProjection struct {
	Year          int             `json:"year"`
	AnnualIncome  decimal.Decimal `json:"annual_income"`
	MonthlyIncome decimal.Decimal `json:"monthly_income"`
	Cumulative    decimal.Decimal `json:"cumulative"`
}

// DividendCalendarMonth is the average payout seen in one calendar month
type DividendCalendarMonth struct {
	Month         time.Month      `json:"month"`
	AverageIncome decimal.Decimal `json:"average_income"`
	Symbols       []string        `json:"symbols"`
}

// IncomeHistory replays past dividends against the held quantities.
type IncomeHistory struct {
	Monthly []PeriodIncome  `json:"monthly"`
	Annual  []PeriodIncome  `json:"annual"`
	Total   decimal.Decimal `json:"total"`
}

// PeriodIncome is income received in one period ("2024-03" or "2024")
type PeriodIncome struct {
	Period string          `json:"period"`
	Income decimal.Decimal `json:"income"`
}
