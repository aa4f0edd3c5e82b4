package models

import "time"

// RealTimeQuote holds a live OHLCV snapshot from the provider
type RealTimeQuote struct {
	Code          string    `json:"code"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Close         float64   `json:"close"`          // current/last price
	PreviousClose float64   `json:"previous_close"` // previous day's close
	Volume        int64     `json:"volume"`
	Timestamp     time.Time `json:"timestamp"`
}

// EODBar represents a single day's price data
type EODBar struct {
	Date     time.Time `json:"date"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	AdjClose float64   `json:"adjusted_close"`
	Volume   int64     `json:"volume"`
}

// EODResponse represents the EODHD API response
type EODResponse struct {
	Data []EODBar `json:"data"`
}

// Fundamentals holds the reference data used for display and sector breakdowns
type Fundamentals struct {
	Symbol      string    `json:"symbol"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Sector      string    `json:"sector"`
	Industry    string    `json:"industry"`
	PE          float64   `json:"pe_ratio"`
	PayoutRatio float64   `json:"payout_ratio"`
	LastUpdated time.Time `json:"last_updated"`
}

// Symbol represents an exchange listing entry
type Symbol struct {
	Code     string `json:"Code"`
	Name     string `json:"Name"`
	Country  string `json:"Country"`
	Exchange string `json:"Exchange"`
	Currency string `json:"Currency"`
	Type     string `json:"Type"`
}

// Snapshot is the validated price and reference view of one symbol.
type Snapshot struct {
	Symbol      string    `json:"symbol"`
	DisplayName string    `json:"display_name"`
	Sector      string    `json:"sector"`
	Price       float64   `json:"price"`
	PERatio     float64   `json:"pe_ratio"`
	PayoutRatio float64   `json:"payout_ratio"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// DividendPayment is one cash distribution per unit
type DividendPayment struct {
	Date   time.Time `json:"date"`
	Amount float64   `json:"amount"`
}

// DividendRecord is the trailing dividend history of one symbol, ordered by date.
type DividendRecord struct {
	Symbol    string            `json:"symbol"`
	Payments  []DividendPayment `json:"payments"`
	FetchedAt time.Time         `json:"fetched_at"`
}

// Empty reports whether the record has no payments
func (r *DividendRecord) Empty() bool {
	return r == nil || len(r.Payments) == 0
}

// YearlyTotals sums payments per calendar year.
func (r *DividendRecord) YearlyTotals() map[int]float64 {
	totals := make(map[int]float64)
	if r == nil {
		return totals
	}
	for _, p := range r.Payments {
		totals[p.Date.Year()] += p.Amount
	}
	return totals
}
