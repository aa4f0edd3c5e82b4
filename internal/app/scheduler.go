package app

import (
	"context"
	"time"

	"github.com/bobmcallan/divfolio/internal/common"
	"github.com/bobmcallan/divfolio/internal/models"
)

// ranker is the part of App the scheduler drives
type ranker interface {
	Rank(ctx context.Context, req RankRequest) (*models.AnalysisRun, error)
}

// startRankScheduler ranks once immediately, then on a fixed interval.
// A tick that arrives while a run is in progress is skipped.
func startRankScheduler(ctx context.Context, r ranker, req RankRequest, interval time.Duration, onRun func(*models.AnalysisRun), logger *common.Logger) {
	refreshRanking(ctx, r, req, onRun, logger)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Rank scheduler: stopped")
			return
		case <-ticker.C:
			refreshRanking(ctx, r, req, onRun, logger)
		}
	}
}

func refreshRanking(ctx context.Context, r ranker, req RankRequest, onRun func(*models.AnalysisRun), logger *common.Logger) {
	start := time.Now()

	run, err := r.Rank(ctx, req)
	if err != nil {
		logger.Warn().Err(err).Msg("Rank refresh: run failed")
		return
	}
	if run.Cancelled {
		return
	}

	logger.Info().
		Str("run_id", run.RunID).
		Int("ranked", len(run.Results)).
		Int("failed", len(run.Failures)).
		Dur("elapsed", time.Since(start)).
		Msg("Rank refresh: complete")

	if onRun != nil {
		onRun(run)
	}
}
