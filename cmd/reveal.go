package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mselser95/phantombet/internal/vault"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var revealCmd = &cobra.Command{
	Use:   "reveal",
	Short: "Reveal a sealed bet using the secret stored in the vault (evm mode)",
	RunE:  runReveal,
}

//nolint:gochecknoglobals // Cobra boilerplate
var claimCmd = &cobra.Command{
	Use:   "claim",
	Short: "Claim winnings from a settled market (evm mode)",
	RunE:  runClaim,
}

//nolint:gochecknoglobals // Cobra boilerplate
var (
	revealMarket uint64
	claimMarket  uint64
)

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(revealCmd)
	rootCmd.AddCommand(claimCmd)

	revealCmd.Flags().Uint64VarP(&revealMarket, "market", "m", 0, "Market ID")
	claimCmd.Flags().Uint64VarP(&claimMarket, "market", "m", 0, "Market ID")
	_ = revealCmd.MarkFlagRequired("market")
	_ = claimCmd.MarkFlagRequired("market")
}

func runReveal(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	v, err := openVault(cfg)
	if err != nil {
		return err
	}
	entry, err := v.Get(revealMarket)
	if err != nil {
		return fmt.Errorf("load secret: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	clients, err := dialChain(ctx, cfg, logger, "BETTOR_PRIVATE_KEY")
	if err != nil {
		return err
	}
	defer clients.Close()

	sub, err := clients.transactor.RevealBet(ctx, entry.MarketID, entry.OutcomeIndex, entry.Secret, entry.BetIndex)
	if err != nil {
		return fmt.Errorf("reveal bet: %w", err)
	}

	fmt.Printf("Revealed %s on market %d in %s (block %d)\n",
		entry.Outcome, entry.MarketID, sub.TxHash.Hex(), sub.BlockNumber)
	return nil
}

func runClaim(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	clients, err := dialChain(ctx, cfg, logger, "BETTOR_PRIVATE_KEY")
	if err != nil {
		return err
	}
	defer clients.Close()

	sub, err := clients.transactor.ClaimWinnings(ctx, claimMarket)
	if err != nil {
		return fmt.Errorf("claim winnings: %w", err)
	}
	fmt.Printf("Claimed market %d in %s (block %d)\n", claimMarket, sub.TxHash.Hex(), sub.BlockNumber)

	v, err := openVault(cfg)
	if err != nil {
		return err
	}
	err = v.Delete(claimMarket)
	if err != nil && !errors.Is(err, vault.ErrNotFound) {
		return fmt.Errorf("remove vault entry: %w", err)
	}
	return nil
}
