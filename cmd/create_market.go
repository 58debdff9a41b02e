package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var createMarketCmd = &cobra.Command{
	Use:   "create-market",
	Short: "Open a market on the deployed ledger (evm mode)",
	Long: `Creates a market whose betting window starts at the mining block.

Example usage:
  create-market --question "Will ETH close above 5k on Friday?" --outcomes Yes,No --betting 24h --reveal 12h`,
	RunE: runCreateMarket,
}

//nolint:gochecknoglobals // Cobra boilerplate
var (
	createQuestion string
	createOutcomes []string
	createBetting  time.Duration
	createReveal   time.Duration
	createKeyEnv   string
)

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(createMarketCmd)

	createMarketCmd.Flags().StringVarP(&createQuestion, "question", "q", "", "Market question")
	createMarketCmd.Flags().StringSliceVarP(&createOutcomes, "outcomes", "o", []string{"Yes", "No"}, "Outcome labels")
	createMarketCmd.Flags().DurationVar(&createBetting, "betting", 24*time.Hour, "Betting window")
	createMarketCmd.Flags().DurationVar(&createReveal, "reveal", 12*time.Hour, "Reveal window")
	createMarketCmd.Flags().StringVar(&createKeyEnv, "key-env", "BETTOR_PRIVATE_KEY", "Environment variable holding the creator key")
	_ = createMarketCmd.MarkFlagRequired("question")
}

func runCreateMarket(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	clients, err := dialChain(ctx, cfg, logger, createKeyEnv)
	if err != nil {
		return err
	}
	defer clients.Close()

	sub, err := clients.transactor.CreateMarket(ctx, createQuestion, createOutcomes, createBetting, createReveal)
	if err != nil {
		return fmt.Errorf("create market: %w", err)
	}

	next, err := clients.reader.NextMarketID(ctx)
	if err != nil {
		return fmt.Errorf("read market id: %w", err)
	}

	fmt.Printf("Created market %d in %s (block %d)\n", next-1, sub.TxHash.Hex(), sub.BlockNumber)
	return nil
}
