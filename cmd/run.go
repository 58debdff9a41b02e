package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/mselser95/phantombet/internal/app"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the oracle daemon",
	Long: `Starts the oracle service, which will:
1. Discover markets past their reveal deadline on SETTLEMENT_SCHEDULE
2. Run one consensus round per market across ORACLE_NODES isolated nodes
3. Submit agreed, confident verdicts through the oracle gateway
4. Serve /health, /ready, /metrics and the settlement API on HTTP_PORT`,
	RunE: runDaemon,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	startCtx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	application, err := app.New(startCtx, cfg, logger, nil)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	err = application.Run()
	if err != nil {
		return fmt.Errorf("run app: %w", err)
	}

	return nil
}
