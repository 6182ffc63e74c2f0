// Package cli implements the shopload command line interface.
package cli

import (
	"github.com/spf13/cobra"
)

var version = "0.1.0"

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:     "shopload",
	Short:   "Load testing tool for the shop e-commerce API",
	Version: version,
	Long: `Shopload drives scripted virtual-user traffic against the shop
e-commerce API: registration, product browsing, favourites, orders and
payments. Scenario profiles model different user populations; runs are
summarized with latency percentiles, a per-request breakdown, a failure
report and optional pass/fail thresholds.`,
	Run: func(cmd *cobra.Command, args []string) {
		// If no subcommand is provided, print help
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	RootCmd.AddCommand(runCmd)
	RootCmd.AddCommand(profilesCmd)
}
