package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mselser95/phantombet/pkg/types"
	"go.uber.org/zap"
)

// Run starts the application and blocks until shutdown.
func (a *App) Run() error {
	a.logger.Info("application-starting",
		zap.String("ledger-mode", a.cfg.LedgerMode),
		zap.String("schedule", a.cfg.SettlementSchedule),
		zap.String("log-level", a.cfg.LogLevel))

	a.startComponents()

	a.healthChecker.SetReady(true)

	a.logger.Info("application-ready",
		zap.String("http-addr", ":"+a.cfg.HTTPPort),
		zap.String("node", a.nodeAddress.Hex()))

	return a.waitForShutdown()
}

func (a *App) startComponents() {
	a.wg.Add(1)
	go a.runHTTPServer()

	// Give HTTP server a moment to start
	time.Sleep(100 * time.Millisecond)

	if a.breaker != nil {
		a.breaker.Start(a.ctx)
	}

	if a.tracker != nil {
		a.wg.Add(1)
		go a.runTracker()
	}

	a.wg.Add(1)
	go a.runScheduler()
}

// RunOnce executes a single discovery and settlement cycle without the
// scheduler or HTTP server.
func (a *App) RunOnce(ctx context.Context) ([]*types.SettlementAttempt, error) {
	if a.breaker != nil {
		err := a.breaker.CheckBalance(ctx)
		if err != nil {
			a.logger.Warn("gas-breaker-check-failed", zap.Error(err))
		}
	}

	attempts, err := a.orchestrator.RunOnce(ctx)
	if err != nil {
		return nil, fmt.Errorf("run cycle: %w", err)
	}
	return attempts, nil
}

func (a *App) runHTTPServer() {
	defer a.wg.Done()
	err := a.httpServer.Start()
	if err != nil {
		a.logger.Error("http-server-error", zap.Error(err))
	}
}

func (a *App) runScheduler() {
	defer a.wg.Done()
	err := a.scheduler.Run(a.ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("scheduler-error", zap.Error(err))
	}
}

func (a *App) runTracker() {
	defer a.wg.Done()
	err := a.tracker.Run(a.ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("wallet-tracker-error", zap.Error(err))
	}
}

func (a *App) waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
	case <-a.ctx.Done():
		a.logger.Info("context-cancelled")
	}

	return a.Shutdown()
}
