package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "phantombet",
	Short: "Commit-reveal prediction market oracle",
	Long: `phantombet runs the oracle side of a commit-reveal prediction market.

Markets accept sealed bets, then reveals, and are settled once the reveal
window closes. Several isolated oracle nodes gather evidence and infer the
outcome independently; a settlement is submitted through the oracle gateway
only when they return identical verdicts.

Configuration is read from the environment (and a .env file if present).
LEDGER_MODE=simnet runs the ledger in-process, LEDGER_MODE=evm targets
deployed contracts.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
