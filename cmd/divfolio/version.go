package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bobmcallan/divfolio/internal/common"
)

func newVersionCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if opts.jsonOutput() {
				return writeJSON(opts.stdout, map[string]string{
					"version": common.GetVersion(),
					"build":   common.GetBuild(),
					"commit":  common.GetGitCommit(),
				})
			}
			fmt.Fprintf(opts.stdout, "divfolio %s\n", common.GetFullVersion())
			return nil
		},
	}
}
