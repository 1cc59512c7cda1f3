/*
Copyright (c) 2026 The elitecode scraper authors
*/

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/elitecode/scraper/internal/app/fetch"
	"github.com/elitecode/scraper/internal/app/ui"
	"github.com/elitecode/scraper/internal/config"
	"github.com/elitecode/scraper/internal/logging"
	appver "github.com/elitecode/scraper/internal/version"
)

type rootOptions struct {
	configPath  string
	output      string
	url         string
	failOnError bool
	debug       bool
	noBanner    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "scraper",
		Short:         "Fetch the LeetCode submissions page and save it as pretty-printed JSON.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       appver.Value,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.configPath, "config", "", "Config file (default: ./"+config.DefaultFileName+" if present)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output file (default: "+config.DefaultOutputPath+")")
	cmd.Flags().StringVar(&opts.url, "url", "", "Endpoint to fetch")
	cmd.Flags().BoolVar(&opts.failOnError, "fail-on-error", false, "Exit non-zero when the fetch fails")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	cmd.Flags().BoolVar(&opts.noBanner, "no-banner", false, "Do not print the banner")

	cmd.Long = ui.AsciiArt + `
scraper issues one authenticated GET to the submissions API, decodes the
(possibly Brotli-compressed) JSON response and overwrites the output file
with a 4-space indented copy.

Credentials are never stored in the program. Provide them through the
environment or the config file:

  SCRAPER_COOKIE            session cookie header value
  SCRAPER_HEADER_<NAME>     extra request header, e.g. SCRAPER_HEADER_USER_AGENT

Example:
  scraper
  scraper --output submissions.json --fail-on-error
  scraper config init
`

	cmd.AddCommand(newConfigCmd())
	return cmd
}

func runFetch(cmd *cobra.Command, opts *rootOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.Output = opts.output
	}
	if flags.Changed("url") {
		cfg.URL = opts.url
	}
	if flags.Changed("fail-on-error") {
		cfg.FailOnError = opts.failOnError
	}
	if flags.Changed("debug") {
		cfg.Debug = opts.debug
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	color := ui.ColorEnabled(os.Stderr)
	if color && !opts.noBanner {
		ui.PrintGradientAsciiArt(cmd.ErrOrStderr())
	}

	logger := logging.New(logging.Options{Debug: cfg.Debug, Color: color})
	defer func() { _ = logger.Sync() }()

	f, err := fetch.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := ui.WaitForCancel(cmd.Context())
	defer cancel()

	if err := f.Run(ctx); err != nil {
		return errors.New(f.Describe(err))
	}
	return nil
}

func Execute() {
	os.Exit(execute(os.Args[1:], os.Stderr))
}

func execute(args []string, stderr io.Writer) int {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		color := false
		if f, ok := stderr.(*os.File); ok {
			color = ui.ColorEnabled(f)
		}
		fmt.Fprintln(stderr, ui.Colorize(color, ui.ColorRed, "Error: "+err.Error()))
		return 1
	}
	return 0
}
