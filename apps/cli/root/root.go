package root

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command for the hubmetrix admin CLI. Subcommands (auth, bootstrap, tenant) are attached here.
var rootCmd = &cobra.Command{
	Use:           "hubmetrix",
	Short:         "hubmetrix admin CLI",
	Long:          "Administrative utilities for hubmetrix (dev signed payloads, store bootstrap, store and subscription management).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}
