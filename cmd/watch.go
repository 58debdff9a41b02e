package cmd

import (
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/mselser95/phantombet/pkg/websocket"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the ledger event stream of a running daemon",
	Long: `Connects to /ws/events on a running daemon and prints each ledger event as a
JSON line. The stream is redialed with backoff when it drops.

Example usage:
  watch
  watch --market 3 --url ws://oracle:8080/ws/events`,
	RunE: runWatch,
}

//nolint:gochecknoglobals // Cobra boilerplate
var (
	watchURL    string
	watchMarket int64
)

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchURL, "url", "", "Stream URL (defaults to the local daemon on HTTP_PORT)")
	watchCmd.Flags().Int64VarP(&watchMarket, "market", "m", -1, "Only show events for this market")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	target := watchURL
	if target == "" {
		target = "ws://localhost:" + cfg.HTTPPort + "/ws/events"
	}
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if watchMarket >= 0 {
		q := u.Query()
		q.Set("market", strconv.FormatInt(watchMarket, 10))
		u.RawQuery = q.Encode()
	}

	client, err := websocket.NewClient(&websocket.ClientConfig{
		URL: u.String(),
		Reconnect: websocket.ReconnectConfig{
			InitialDelay:      time.Second,
			MaxDelay:          30 * time.Second,
			BackoffMultiplier: 2,
			JitterPercent:     0.2,
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan error, 1)
	go func() {
		done <- client.Run(ctx)
	}()

	out := cmd.OutOrStdout()
	for ev := range client.Events() {
		line, encErr := json.Marshal(ev)
		if encErr != nil {
			continue
		}
		_, _ = fmt.Fprintln(out, string(line))
	}

	return <-done
}
