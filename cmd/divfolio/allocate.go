package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bobmcallan/divfolio/internal/app"
	"github.com/bobmcallan/divfolio/internal/interfaces"
	"github.com/bobmcallan/divfolio/internal/models"
)

func newAllocateCmd(opts *rootOptions) *cobra.Command {
	var (
		af        analysisFlags
		capital   float64
		minYield  float64
		maxAssets int
		lotSize   int
		drop      bool
		report    app.AllocateOptions
	)

	cmd := &cobra.Command{
		Use:   "allocate",
		Short: "Rank the universe and allocate capital in whole lots",
		Long: `Rank the universe, keep symbols yielding at least --min-yield, and split
--capital over the top --max-assets in proportion to score. Quantities are
rounded down to whole trading lots; a position too small for one lot buys a
single lot unless --drop-under-allocated is set.`,
		Example: `  divfolio allocate --capital 100000
  divfolio allocate --capital 50000 --categories fii --max-assets 8 --project-years 10 --reinvest`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.loadApp(nil)
			if err != nil {
				return err
			}
			defer a.Close()

			run, err := a.Rank(cmd.Context(), af.request(opts, a))
			if err != nil {
				return err
			}
			if run.Cancelled {
				// a partial ranking would skew the weights; show it and stop
				if opts.jsonOutput() {
					if err := writeJSON(opts.stdout, run); err != nil {
						return err
					}
				} else {
					writeString(opts.stdout, formatRanking(run, 0))
				}
				return fmt.Errorf("allocation skipped: %w", errRunCancelled)
			}

			req := interfaces.AllocationRequest{
				Capital:            capital,
				MaxAssets:          maxAssets,
				DropUnderAllocated: drop,
			}
			if cmd.Flags().Changed("min-yield") {
				req.MinYield = &minYield
			}
			if lotSize > 0 {
				req.LotSize = fixedLot(lotSize)
			}

			result, err := a.Allocate(run.Results, req, report)
			if err != nil {
				return err
			}

			if opts.jsonOutput() {
				return writeJSON(opts.stdout, result)
			}
			writeString(opts.stdout, formatReport(result))
			return nil
		},
	}

	af.bind(cmd)
	flags := cmd.Flags()
	flags.Float64Var(&capital, "capital", 0, "Capital to invest (required)")
	flags.Float64Var(&minYield, "min-yield", 0, "Minimum trailing yield in percent; 0 disables the filter (default from config)")
	flags.IntVar(&maxAssets, "max-assets", 0, "Maximum positions (default from config)")
	flags.IntVar(&lotSize, "lot-size", 0, "Trade every category in lots of this size (default per category from config)")
	flags.BoolVar(&drop, "drop-under-allocated", false, "Drop positions too small for one lot instead of buying a single lot")
	flags.IntVar(&report.ProjectYears, "project-years", 5, "Years of projected income; 0 skips the projection")
	flags.BoolVar(&report.Reinvest, "reinvest", false, "Reinvest dividends in the projection")
	flags.BoolVar(&report.Calendar, "calendar", false, "Show the average payout per calendar month")
	flags.IntVar(&report.HistoryYears, "history-years", 0, "Replay past dividends over this many years; 0 skips it")
	_ = cmd.MarkFlagRequired("capital")
	return cmd
}

func fixedLot(n int) interfaces.LotSizeFunc {
	return func(models.Category) int { return n }
}
