package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/bobmcallan/divfolio/internal/common"
	"github.com/bobmcallan/divfolio/internal/models"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		af       analysisFlags
		listen   string
		interval time.Duration
		warm     bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Re-rank on a schedule and serve metrics, progress and the latest ranking",
		Long: `Run the ranking every --interval and keep the result available over HTTP:

  GET /metrics       Prometheus metrics
  GET /api/health    liveness and version
  GET /api/progress  latest progress event
  GET /api/ranking   latest completed ranking
  GET /ws/progress   live progress stream (optional ?run_id=)

Provider data stays cached between runs.`,
		Example: `  divfolio serve --listen :9464 --interval 6h --warm`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if interval <= 0 {
				return errors.New("interval must be positive")
			}
			a, err := opts.loadApp(func(cfg *common.Config) {
				if listen != "" {
					cfg.Telemetry.Listen = listen
				}
			})
			if err != nil {
				return err
			}
			defer a.Close()

			if a.Telemetry == nil {
				return errors.New("serve needs a listen address: set --listen or [telemetry] listen")
			}

			req := af.request(opts, a)
			req.Progress = nil // progress goes to the hub only

			a.StartTelemetry()
			if warm {
				a.StartWarmCache(req.Categories)
			}
			a.StartRankScheduler(req, interval, func(run *models.AnalysisRun) {
				ev := a.Logger.Info().Str("run_id", run.RunID).Int("ranked", len(run.Results))
				if len(run.Results) > 0 {
					ev = ev.Str("top", run.Results[0].Symbol).Float64("top_score", run.Results[0].Score)
				}
				ev.Msg("Ranking updated")
			})

			a.Logger.Info().
				Str("listen", a.Config.Telemetry.Listen).
				Dur("interval", interval).
				Msg("Serving")

			<-cmd.Context().Done()
			a.Logger.Info().Msg("Shutdown signal received")
			return nil
		},
	}

	af.bind(cmd)
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address, e.g. :9464 (default from [telemetry] listen)")
	cmd.Flags().DurationVar(&interval, "interval", 6*time.Hour, "Time between rankings")
	cmd.Flags().BoolVar(&warm, "warm", false, "Prefetch fundamentals for the universe on start")
	return cmd
}
