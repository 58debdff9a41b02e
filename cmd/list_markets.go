package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/mselser95/phantombet/internal/app"
	"github.com/mselser95/phantombet/pkg/wallet"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var listMarketsCmd = &cobra.Command{
	Use:   "list-markets",
	Short: "List markets the oracle would try to settle now",
	RunE:  runListMarkets,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(listMarketsCmd)
}

func runListMarkets(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	application, err := app.New(ctx, cfg, logger, nil)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}
	defer func() {
		_ = application.Shutdown()
	}()

	markets, err := application.Orchestrator().SettleableMarkets(ctx)
	if err != nil {
		return fmt.Errorf("discover markets: %w", err)
	}

	if len(markets) == 0 {
		fmt.Println("No settleable markets.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tREVEAL DEADLINE\tPOOL (ETH)\tOUTCOMES\tQUESTION")
	for _, m := range markets {
		fmt.Fprintf(w, "%d\t%s\t%s\t%v\t%s\n",
			m.ID, m.RevealDeadline.UTC().Format(time.RFC3339), wallet.WeiToEther(m.TotalPool).String(), m.Outcomes, m.Question)
	}
	return w.Flush()
}
