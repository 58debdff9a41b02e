package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var authorizeNodeCmd = &cobra.Command{
	Use:   "authorize-node",
	Short: "Grant or revoke a node's right to submit settlements (gateway admin, evm mode)",
	Long: `Sends determineNodeAuth to the oracle gateway contract, signed with the
key in --key-env (the gateway admin).

Example usage:
  authorize-node --node 0xabc... --allowed
  authorize-node --node 0xabc... --allowed=false`,
	RunE: runAuthorizeNode,
}

//nolint:gochecknoglobals // Cobra boilerplate
var (
	authorizeNode    string
	authorizeAllowed bool
	authorizeKeyEnv  string
)

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(authorizeNodeCmd)

	authorizeNodeCmd.Flags().StringVarP(&authorizeNode, "node", "n", "", "Node address")
	authorizeNodeCmd.Flags().BoolVar(&authorizeAllowed, "allowed", true, "Grant (true) or revoke (false)")
	authorizeNodeCmd.Flags().StringVar(&authorizeKeyEnv, "key-env", "GATEWAY_ADMIN_PRIVATE_KEY", "Environment variable holding the admin key")
	_ = authorizeNodeCmd.MarkFlagRequired("node")
}

func runAuthorizeNode(cmd *cobra.Command, args []string) error {
	if !common.IsHexAddress(authorizeNode) {
		return errors.New("--node must be a hex address")
	}
	node := common.HexToAddress(authorizeNode)

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	clients, err := dialChain(ctx, cfg, logger, authorizeKeyEnv)
	if err != nil {
		return err
	}
	defer clients.Close()

	sub, err := clients.transactor.SetAuthorization(ctx, node, authorizeAllowed)
	if err != nil {
		return fmt.Errorf("set authorization: %w", err)
	}

	allowed, err := clients.transactor.IsAuthorized(ctx, node)
	if err != nil {
		return fmt.Errorf("read authorization: %w", err)
	}

	fmt.Printf("Node %s authorized=%t (tx %s, block %d)\n", node.Hex(), allowed, sub.TxHash.Hex(), sub.BlockNumber)
	return nil
}
