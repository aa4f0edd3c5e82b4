// Package interfaces defines service contracts for divfolio
package interfaces

import (
	"context"
	"time"

	"github.com/bobmcallan/divfolio/internal/models"
)

// EODHDClient provides access to the EODHD API. Implementations do no
// rate limiting or retrying of their own; the gateway owns both.
type EODHDClient interface {
	// GetRealTimeQuote retrieves the latest price for a ticker
	GetRealTimeQuote(ctx context.Context, ticker string) (*models.RealTimeQuote, error)

	// GetEOD retrieves end-of-day price data
	GetEOD(ctx context.Context, ticker string, opts ...EODOption) (*models.EODResponse, error)

	// GetFundamentals retrieves reference data
	GetFundamentals(ctx context.Context, ticker string) (*models.Fundamentals, error)

	// GetDividends retrieves dividend payments dated on or after from
	GetDividends(ctx context.Context, ticker string, from time.Time) ([]models.DividendPayment, error)

	// GetExchangeSymbols retrieves all symbols for an exchange
	GetExchangeSymbols(ctx context.Context, exchange string) ([]*models.Symbol, error)
}

// EODOption configures EOD data requests
type EODOption func(*EODParams)

// EODParams holds EOD query parameters
type EODParams struct {
	From   time.Time
	To     time.Time
	Period string // d=daily, w=weekly, m=monthly
	Order  string // a=ascending, d=descending
	Limit  int
}

// WithDateRange sets the date range for EOD query
func WithDateRange(from, to time.Time) EODOption {
	return func(p *EODParams) {
		p.From = from
		p.To = to
	}
}

// WithPeriod sets the period for EOD query
func WithPeriod(period string) EODOption {
	return func(p *EODParams) {
		p.Period = period
	}
}

// WithLimit sets the limit for EOD query
func WithLimit(limit int) EODOption {
	return func(p *EODParams) {
		p.Limit = limit
	}
}
