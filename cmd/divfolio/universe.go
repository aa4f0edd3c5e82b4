package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newUniverseCmd(opts *rootOptions) *cobra.Command {
	var categories categoriesFlag

	cmd := &cobra.Command{
		Use:   "universe",
		Short: "List the symbols a ranking would analyze",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.loadApp(nil)
			if err != nil {
				return err
			}
			defer a.Close()

			symbols, err := a.Universe.Symbols(cmd.Context(), categories.values)
			if err != nil {
				return err
			}

			if opts.jsonOutput() {
				return writeJSON(opts.stdout, symbols)
			}
			for _, sym := range symbols {
				fmt.Fprintln(opts.stdout, sym)
			}
			fmt.Fprintf(opts.stderr, "%d symbols (source: %s)\n", len(symbols), a.Config.Universe.Source)
			return nil
		},
	}

	cmd.Flags().Var(&categories, "categories", "Restrict to categories (equity,fii,bdr,etf); repeatable")
	return cmd
}
