package models

import "time"

// MetricsResult is the scored dividend profile of one symbol.
type MetricsResult struct {
	Symbol             string            `json:"symbol"`
	Name               string            `json:"name,omitempty"`
	Category           Category          `json:"category"`
	Sector             string            `json:"sector,omitempty"`
	Price              float64           `json:"price"`
	TrailingYield      float64           `json:"trailing_yield"` // percent
	AverageYield       float64           `json:"average_yield"`  // percent
	ConsistencyPct     float64           `json:"consistency_pct"`
	DividendCAGR       float64           `json:"dividend_cagr"` // percent
	YearsWithDividends int               `json:"years_with_dividends"`
	Score              float64           `json:"score"`
	PERatio            float64           `json:"pe_ratio,omitempty"`
	PayoutRatio        float64           `json:"payout_ratio,omitempty"`
	DividendHistory    []DividendPayment `json:"dividend_history,omitempty"`
}

// SymbolFailure records why a symbol was dropped from a run
type SymbolFailure struct {
	Symbol  string `json:"symbol"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// AnalysisRun is the outcome of one orchestrated analysis. Results are in
// completion order; callers sort them.
type AnalysisRun struct {
	RunID     string          `json:"run_id"`
	StartedAt time.Time       `json:"started_at"`
	Duration  time.Duration   `json:"duration"`
	Total     int             `json:"total"`
	Results   []MetricsResult `json:"results"`
	Failures  []SymbolFailure `json:"failures,omitempty"`
	Skipped   int             `json:"skipped"` // symbols with no dividends in the window
	Cancelled bool            `json:"cancelled"`
	Workers   int             `json:"workers"`
}

// ProgressEvent is broadcast after each completed symbol
type ProgressEvent struct {
	RunID     string    `json:"run_id"`
	Completed int       `json:"completed"`
	Total     int       `json:"total"`
	Ratio     float64   `json:"ratio"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
