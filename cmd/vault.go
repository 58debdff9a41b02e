package cmd

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/mselser95/phantombet/internal/vault"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var vaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Inspect stored bet secrets",
}

//nolint:gochecknoglobals // Cobra boilerplate
var vaultShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the stored reveal parameters for a market",
	RunE:  runVaultShow,
}

//nolint:gochecknoglobals // Cobra boilerplate
var vaultListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every stored bet",
	RunE:  runVaultList,
}

//nolint:gochecknoglobals // Cobra boilerplate
var vaultShowMarket uint64

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(vaultCmd)
	vaultCmd.AddCommand(vaultShowCmd)
	vaultCmd.AddCommand(vaultListCmd)

	vaultShowCmd.Flags().Uint64VarP(&vaultShowMarket, "market", "m", 0, "Market ID")
	_ = vaultShowCmd.MarkFlagRequired("market")
}

func runVaultShow(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	v, err := openVault(cfg)
	if err != nil {
		return err
	}
	entry, err := v.Get(vaultShowMarket)
	if err != nil {
		return err
	}

	return printJSON(cmd, entry)
}

func runVaultList(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	v, err := openVault(cfg)
	if err != nil {
		return err
	}
	entries, err := v.List()
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []vault.Entry{}
	}

	return printJSON(cmd, entries)
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
