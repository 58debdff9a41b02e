package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mselser95/phantombet/internal/vault"
	"github.com/mselser95/phantombet/pkg/commitment"
	"github.com/mselser95/phantombet/pkg/wallet"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Prepare a sealed bet and store its secret in the vault",
	Long: `Generates a fresh secret, computes the commitment for the given stake and
outcome, and stores everything needed to reveal later in the local vault.

The secret is written to the vault before anything is sent, so a bet that
reached the ledger can always be revealed.

Example usage:
  commit --market 3 --outcome Yes --amount 1.0 --outcome-index 0
  commit --market 3 --outcome Yes --amount 1.0 --submit     # evm: look up outcomes and place the bet`,
	RunE: runCommit,
}

//nolint:gochecknoglobals // Cobra boilerplate
var (
	commitMarket       uint64
	commitOutcome      string
	commitAmount       string
	commitOutcomeIndex int
	commitBetIndex     int
	commitSubmit       bool
)

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(commitCmd)

	commitCmd.Flags().Uint64VarP(&commitMarket, "market", "m", 0, "Market ID")
	commitCmd.Flags().StringVarP(&commitOutcome, "outcome", "o", "", "Outcome label to bet on")
	commitCmd.Flags().StringVarP(&commitAmount, "amount", "a", "", "Stake in ether, e.g. 0.5")
	commitCmd.Flags().IntVar(&commitOutcomeIndex, "outcome-index", -1, "Outcome index (looked up on chain when omitted in evm mode)")
	commitCmd.Flags().IntVar(&commitBetIndex, "bet-index", 0, "Index of this bet among your bets in the market")
	commitCmd.Flags().BoolVar(&commitSubmit, "submit", false, "Place the bet on chain with BETTOR_PRIVATE_KEY (evm mode)")
	_ = commitCmd.MarkFlagRequired("outcome")
	_ = commitCmd.MarkFlagRequired("amount")
}

func runCommit(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	stake, err := wallet.EtherToWei(commitAmount)
	if err != nil {
		return err
	}
	if stake.Sign() == 0 {
		return errors.New("amount must be positive")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	var clients *chainClients
	if commitSubmit || commitOutcomeIndex < 0 {
		clients, err = dialChain(ctx, cfg, logger, "BETTOR_PRIVATE_KEY")
		if err != nil {
			return fmt.Errorf("outcome lookup and --submit need the chain: %w", err)
		}
		defer clients.Close()
	}

	outcome, outcomeIndex := commitOutcome, commitOutcomeIndex
	if outcomeIndex < 0 {
		outcomes, err := clients.reader.MarketOutcomes(ctx, commitMarket)
		if err != nil {
			return fmt.Errorf("read market outcomes: %w", err)
		}
		outcomeIndex = -1
		for i, label := range outcomes {
			if strings.EqualFold(label, outcome) {
				outcome, outcomeIndex = label, i
				break
			}
		}
		if outcomeIndex < 0 {
			return fmt.Errorf("outcome %q is not one of %v", commitOutcome, outcomes)
		}
	}

	secret, err := commitment.NewSecret()
	if err != nil {
		return err
	}
	hash, err := commitment.Commit(stake, outcome, secret)
	if err != nil {
		return fmt.Errorf("compute commitment: %w", err)
	}

	v, err := openVault(cfg)
	if err != nil {
		return err
	}
	err = v.Put(vault.Entry{
		MarketID:     commitMarket,
		Outcome:      outcome,
		OutcomeIndex: outcomeIndex,
		Secret:       secret,
		AmountWei:    stake.String(),
		Commitment:   hash.Hex(),
		BetIndex:     commitBetIndex,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("store secret: %w", err)
	}

	fmt.Printf("=== Sealed Bet ===\n\n")
	fmt.Printf("Market:        %d\n", commitMarket)
	fmt.Printf("Outcome:       %s (index %d)\n", outcome, outcomeIndex)
	fmt.Printf("Stake:         %s ETH (%s wei)\n", wallet.WeiToEther(stake).String(), stake.String())
	fmt.Printf("Commitment:    %s\n", hash.Hex())
	fmt.Printf("Vault:         %s\n", v.Path())

	if commitSubmit {
		sub, err := clients.transactor.PlaceBet(ctx, commitMarket, hash, stake)
		if err != nil {
			return fmt.Errorf("place bet: %w", err)
		}
		fmt.Printf("Transaction:   %s (block %d)\n", sub.TxHash.Hex(), sub.BlockNumber)
	}

	fmt.Printf("\nReveal after the betting deadline with:\n  phantombet reveal --market %d\n", commitMarket)
	return nil
}
