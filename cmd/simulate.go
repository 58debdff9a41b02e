package cmd

import (
	"fmt"
	"sort"

	"github.com/mselser95/phantombet/internal/app"
	"github.com/mselser95/phantombet/pkg/wallet"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a full market lifecycle on an in-process ledger",
	Long: `Creates a market on an in-process ledger, places three sealed bets,
reveals two of them, runs a consensus round with scripted evidence and
reasoning, settles through the gateway and claims winnings.

No network access is needed; evidence and reasoning services are faked.`,
	RunE: runSimulate,
}

//nolint:gochecknoglobals // Cobra boilerplate
var simulateAnswer string

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().StringVarP(&simulateAnswer, "answer", "a", "Yes", "Outcome the scripted reasoner reports (Yes or No)")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	res, err := app.Simulate(cmd.Context(), cfg, logger, simulateAnswer, app.DefaultSimulationBets())
	if res != nil {
		printAttempts(res.Attempts)
	}
	if err != nil {
		return fmt.Errorf("simulate: %w", err)
	}

	fmt.Printf("\nMarket %d: %q settled as %s\n\n", res.MarketID, res.Question, res.Outcome)

	names := make([]string, 0, len(res.Payouts)+len(res.Errors))
	for name := range res.Payouts {
		names = append(names, name)
	}
	for name := range res.Errors {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if payout, ok := res.Payouts[name]; ok {
			fmt.Printf("  %-6s claimed %s ETH\n", name, wallet.WeiToEther(payout).String())
			continue
		}
		fmt.Printf("  %-6s claim rejected: %v\n", name, res.Errors[name])
	}
	return nil
}
