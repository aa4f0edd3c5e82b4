package app

import (
	"context"
	"os"
	"time"

	"github.com/bobmcallan/divfolio/internal/common"
	"github.com/bobmcallan/divfolio/internal/failure"
	"github.com/bobmcallan/divfolio/internal/interfaces"
	"github.com/bobmcallan/divfolio/internal/models"
)

// fundamentalsFetcher loads reference data through the long-lived cache
type fundamentalsFetcher interface {
	FetchFundamentals(ctx context.Context, symbol string) (*models.Fundamentals, error)
}

// warmCache pre-fetches fundamentals for the universe so the first ranking only
// waits on prices and dividends.
func warmCache(ctx context.Context, universe interfaces.UniverseService, gw fundamentalsFetcher, categories []models.Category, logger *common.Logger) {
	// Check env var override
	if os.Getenv("DIVFOLIO_WARM_CACHE") == "off" {
		logger.Info().Msg("Warm cache: disabled via DIVFOLIO_WARM_CACHE=off")
		return
	}

	start := time.Now()

	symbols, err := universe.Symbols(ctx, categories)
	if err != nil {
		logger.Warn().Err(err).Msg("Warm cache: universe unavailable, skipping")
		return
	}
	if len(symbols) == 0 {
		logger.Info().Msg("Warm cache: empty universe, skipping")
		return
	}

	logger.Info().Int("symbols", len(symbols)).Msg("Warm cache: starting")

	loaded, missing := 0, 0
	for _, sym := range symbols {
		if ctx.Err() != nil {
			logger.Info().Int("loaded", loaded).Msg("Warm cache: stopped")
			return
		}
		if _, err := gw.FetchFundamentals(ctx, sym); err != nil {
			if failure.KindOf(err) != failure.DataUnavailable {
				logger.Debug().Err(err).Str("symbol", sym).Msg("Warm cache: fetch failed")
			}
			missing++
			continue
		}
		loaded++
	}

	logger.Info().
		Int("loaded", loaded).
		Int("missing", missing).
		Dur("elapsed", time.Since(start)).
		Msg("Warm cache: complete")
}
