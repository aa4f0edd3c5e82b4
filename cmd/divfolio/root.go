package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bobmcallan/divfolio/internal/app"
	"github.com/bobmcallan/divfolio/internal/common"
	"github.com/bobmcallan/divfolio/internal/failure"
	"github.com/bobmcallan/divfolio/internal/models"
)

// errRunCancelled is returned after a partial result has been printed
var errRunCancelled = errors.New("run cancelled")

// rootOptions are the persistent flags shared by every command
type rootOptions struct {
	configPath string
	logLevel   string
	output     string // auto, table or json
	noBanner   bool

	stdout io.Writer
	stderr io.Writer
}

func newRootCmd() *cobra.Command {
	return newRootCmdWithIO(os.Stdout, os.Stderr)
}

func newRootCmdWithIO(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "divfolio",
		Short: "Rank dividend payers and build a lot-constrained portfolio",
		Long: `divfolio scores a universe of dividend-paying symbols by trailing yield,
payment consistency and dividend growth, then spreads capital over the best
of them in whole trading lots.`,
		Version:       common.GetFullVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Config file (default: $DIVFOLIO_CONFIG, divfolio.toml beside the binary, config/divfolio.toml)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level override (debug|info|warn|error|disabled)")
	flags.StringVarP(&opts.output, "output", "o", "auto", "Output format (auto|table|json); auto prints tables on a terminal")
	flags.Bool("json", false, "Shorthand for --output json")
	flags.BoolVar(&opts.noBanner, "no-banner", false, "Do not print the start banner")

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			opts.output = "json"
		}
		switch opts.output {
		case "auto", "table", "json":
			return nil
		}
		return fmt.Errorf("unknown output format %q", opts.output)
	}

	root.AddCommand(
		newUniverseCmd(opts),
		newRankCmd(opts),
		newAllocateCmd(opts),
		newServeCmd(opts),
		newVersionCmd(opts),
	)
	return root
}

// loadApp resolves configuration, applies flag overrides and wires the app.
func (o *rootOptions) loadApp(override func(*common.Config)) (*app.App, error) {
	cfg, err := common.LoadConfig(app.ResolveConfigPath(o.configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if override != nil {
		override(cfg)
	}

	a, err := app.NewAppWithConfig(cfg, nil)
	if err != nil {
		return nil, err
	}
	if !o.noBanner && o.interactive() {
		common.PrintBanner(o.stderr, cfg, a.Logger)
	}
	return a, nil
}

// jsonOutput reports whether results are written as JSON.
func (o *rootOptions) jsonOutput() bool {
	switch o.output {
	case "json":
		return true
	case "table":
		return false
	}
	return !isTerminal(o.stdout)
}

// interactive reports whether a human is watching stderr.
func (o *rootOptions) interactive() bool {
	return isTerminal(o.stderr)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// categoriesFlag collects repeatable or comma-separated category names
type categoriesFlag struct {
	values []models.Category
}

var _ pflag.Value = (*categoriesFlag)(nil)

func (c *categoriesFlag) String() string {
	names := make([]string, len(c.values))
	for i, v := range c.values {
		names[i] = string(v)
	}
	return strings.Join(names, ",")
}

func (c *categoriesFlag) Set(s string) error {
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		cat, err := models.ParseCategory(part)
		if err != nil {
			return err
		}
		c.values = append(c.values, cat)
	}
	return nil
}

func (c *categoriesFlag) Type() string { return "categories" }

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch {
	case errors.Is(err, errRunCancelled):
		return 130
	case errors.Is(err, failure.ErrInsufficientCapital), errors.Is(err, failure.ErrNoEligibleAssets):
		return 2
	}
	return 1
}
