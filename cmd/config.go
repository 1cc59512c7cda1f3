package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/elitecode/scraper/internal/app/ui"
	"github.com/elitecode/scraper/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the scraper configuration file",
	}
	cmd.AddCommand(newConfigInitCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a starter config file (without credentials)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultFileName
			if len(args) == 1 {
				path = args[0]
			}

			if _, err := os.Stat(path); err == nil && !force {
				ok, err := ui.Confirm(fmt.Sprintf("%s already exists. Overwrite?", path))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Left existing config untouched.")
					return nil
				}
				force = true
			}

			if err := config.Save(config.Default(), path, force); err != nil {
				return err
			}

			color := ui.ColorEnabled(os.Stdout)
			fmt.Fprintln(cmd.OutOrStdout(), ui.Colorize(color, ui.ColorGreen, "Wrote "+path))
			fmt.Fprintln(cmd.OutOrStdout(), ui.Colorize(color, ui.ColorGray, "Set the session cookie with SCRAPER_COOKIE; it is never written to the file."))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file without asking")
	return cmd
}
