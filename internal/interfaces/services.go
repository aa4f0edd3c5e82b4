package interfaces

import (
	"context"

	"github.com/bobmcallan/divfolio/internal/models"
)

// MarketGateway turns the provider into validated, cached per-symbol facts.
// Every error it returns is a *failure.Error.
type MarketGateway interface {
	// FetchSnapshot returns the validated price and reference view of a symbol
	FetchSnapshot(ctx context.Context, symbol string) (*models.Snapshot, error)

	// FetchDividends returns the trailing dividend history over years
	FetchDividends(ctx context.Context, symbol string, years int) (*models.DividendRecord, error)

	// CheckLiquidity fails with Illiquid when recent trading is too thin
	CheckLiquidity(ctx context.Context, symbol string) error

	// FetchExchangeSymbols lists an exchange through the long-lived cache
	FetchExchangeSymbols(ctx context.Context, exchange string) ([]*models.Symbol, error)

	// ValidateYield rejects trailing yields outside the acceptance band
	ValidateYield(symbol string, trailingYield float64) error
}

// MetricsComputer scores one symbol. It returns false when there is nothing
// to score, which is not an error.
type MetricsComputer interface {
	Compute(snapshot *models.Snapshot, dividends *models.DividendRecord, years int) (*models.MetricsResult, bool)
}

// ProgressFunc receives completed/total as a ratio in [0,1] and a status line.
// Calls are serialized and the ratio never decreases within a run.
type ProgressFunc func(ratio float64, message string)

// AnalyzeOptions configures one analysis run
type AnalyzeOptions struct {
	RunID       string // generated when empty
	Concurrency int    // zero uses the configured default
	Years       int    // zero uses the configured default
	Progress    ProgressFunc
}

// AnalysisService fans a symbol universe out over a bounded worker pool
type AnalysisService interface {
	Analyze(ctx context.Context, symbols []string, opts AnalyzeOptions) (*models.AnalysisRun, error)
}

// LotSizeFunc returns the trading lot for a category
type LotSizeFunc func(models.Category) int

// AllocationRequest configures one allocation
type AllocationRequest struct {
	Capital            float64
	MinYield           *float64 // percent; nil uses the configured default, 0 disables the filter
	MaxAssets          int      // zero uses the configured default
	LotSize            LotSizeFunc
	DropUnderAllocated bool // drop positions that round to zero instead of buying one lot
}

// AllocationService turns a ranked collection into a lot-rounded portfolio
type AllocationService interface {
	Allocate(ranked []models.MetricsResult, req AllocationRequest) (*models.Portfolio, error)
}

// UniverseService resolves the symbols to analyze
type UniverseService interface {
	Symbols(ctx context.Context, categories []models.Category) ([]string, error)
}
