package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/mselser95/phantombet/internal/app"
	"github.com/mselser95/phantombet/pkg/types"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var settleOnceCmd = &cobra.Command{
	Use:   "settle-once",
	Short: "Run a single discovery and settlement cycle, then exit",
	RunE:  runSettleOnce,
}

//nolint:gochecknoglobals // Cobra boilerplate
var settleOnceTimeout time.Duration

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(settleOnceCmd)
	settleOnceCmd.Flags().DurationVarP(&settleOnceTimeout, "timeout", "t", 5*time.Minute, "Cycle timeout")
}

func runSettleOnce(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, cancel := context.WithTimeout(cmd.Context(), settleOnceTimeout)
	defer cancel()

	application, err := app.New(ctx, cfg, logger, nil)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}
	defer func() {
		_ = application.Shutdown()
	}()

	attempts, err := application.RunOnce(ctx)
	if err != nil {
		return err
	}

	printAttempts(attempts)
	return nil
}

func printAttempts(attempts []*types.SettlementAttempt) {
	if len(attempts) == 0 {
		fmt.Println("No settleable markets.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MARKET\tSTATUS\tREASON\tOUTCOME\tCONFIDENCE\tAGREEING\tTX")
	for _, a := range attempts {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.2f\t%d/%d\t%s\n",
			a.MarketID, a.Status, a.Reason, a.Outcome, a.Confidence, a.Agreeing, a.Nodes, a.TxHash)
	}
	_ = w.Flush()
}
