package main

import (
	"github.com/spf13/cobra"

	"github.com/bobmcallan/divfolio/internal/app"
	"github.com/bobmcallan/divfolio/internal/models"
)

// analysisFlags select and tune the symbols a command analyzes
type analysisFlags struct {
	categories  categoriesFlag
	symbols     []string
	concurrency int
	years       int
}

func (f *analysisFlags) bind(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Var(&f.categories, "categories", "Restrict to categories (equity,fii,bdr,etf); repeatable")
	flags.StringSliceVarP(&f.symbols, "symbols", "s", nil, "Analyze these symbols instead of the universe, e.g. TAEE11.SA,BBAS3.SA")
	flags.IntVar(&f.concurrency, "concurrency", 0, "Parallel workers (default from config)")
	flags.IntVar(&f.years, "years", 0, "Dividend history in years (default from config)")
}

func (f *analysisFlags) request(opts *rootOptions, a *app.App) app.RankRequest {
	return app.RankRequest{
		Symbols:     f.symbols,
		Categories:  f.categories.values,
		Concurrency: f.concurrency,
		Years:       f.years,
		Progress:    newProgressPrinter(opts.stderr, opts.interactive(), a.Logger),
	}
}

func newRankCmd(opts *rootOptions) *cobra.Command {
	var (
		af           analysisFlags
		limit        int
		showFailures bool
	)

	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Score and rank dividend payers",
		Long: `Fetch prices and dividend history for every symbol, score each one and
print the ranking. Ctrl-C stops the run and prints what has been scored so far.`,
		Example: `  divfolio rank --categories fii --limit 10
  divfolio rank --symbols TAEE11.SA,BBAS3.SA,ITSA4.SA --json`,
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

			if opts.jsonOutput() {
				if err := writeJSON(opts.stdout, limitRun(run, limit)); err != nil {
					return err
				}
			} else {
				writeString(opts.stdout, formatRanking(run, limit))
				if showFailures {
					writeString(opts.stdout, formatFailures(run.Failures))
				}
			}

			if run.Cancelled {
				return errRunCancelled
			}
			return nil
		},
	}

	af.bind(cmd)
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Rows to print; 0 prints all")
	cmd.Flags().BoolVar(&showFailures, "show-failures", false, "List symbols that were dropped and why")
	return cmd
}

// limitRun returns a shallow copy of run holding at most limit results.
func limitRun(run *models.AnalysisRun, limit int) *models.AnalysisRun {
	if limit <= 0 || len(run.Results) <= limit {
		return run
	}
	out := *run
	out.Results = run.Results[:limit]
	return &out
}
