package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mselser95/phantombet/pkg/wallet"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show an account's gas balance (the oracle node by default, evm mode)",
	RunE:  runBalance,
}

//nolint:gochecknoglobals // Cobra boilerplate
var balanceAddress string

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(balanceCmd)

	balanceCmd.Flags().StringVar(&balanceAddress, "address", "", "Account to check (defaults to the oracle node)")
}

func runBalance(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	err = requireEVM(cfg)
	if err != nil {
		return err
	}

	var addr common.Address
	switch {
	case balanceAddress != "":
		if !common.IsHexAddress(balanceAddress) {
			return errors.New("--address must be a hex address")
		}
		addr = common.HexToAddress(balanceAddress)
	default:
		key, keyErr := crypto.HexToECDSA(strings.TrimPrefix(cfg.OraclePrivateKey, "0x"))
		if keyErr != nil {
			return fmt.Errorf("parse oracle private key: %w", keyErr)
		}
		addr = crypto.PubkeyToAddress(key.PublicKey)
	}

	client, err := wallet.NewClient(cfg.RPCURL, logger)
	if err != nil {
		return fmt.Errorf("create wallet client: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	balances, err := client.GetBalances(ctx, addr)
	if err != nil {
		return err
	}

	fmt.Printf("Address: %s\n", addr.Hex())
	fmt.Printf("Balance: %s ETH\n", wallet.WeiToEther(balances.Native).String())
	if cfg.BreakerEnabled && balances.Native.Cmp(cfg.BreakerMinBalanceWei) < 0 {
		fmt.Printf("Below breaker threshold of %s ETH: settlements would be paused\n",
			wallet.WeiToEther(cfg.BreakerMinBalanceWei).String())
	}
	return nil
}
