package app

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Shutdown gracefully shuts down the application. It is safe to call on an
// App that was never started.
func (a *App) Shutdown() error {
	a.logger.Info("application-shutting-down")

	a.healthChecker.SetReady(false)

	// Stops the scheduler, breaker monitor and tracker. The scheduler waits
	// for an in-flight cycle before returning.
	a.cancel()

	if a.eventHub != nil {
		a.eventHub.Close()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	var errs []error
	err := a.httpServer.Shutdown(shutdownCtx)
	if err != nil {
		a.logger.Error("http-server-shutdown-error", zap.Error(err))
		errs = append(errs, err)
	}

	a.wg.Wait()

	err = a.closeAll()
	if err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("application-shutdown-complete")
	return errors.Join(errs...)
}

// closeAll releases clients in reverse creation order.
func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err := a.closers[i]()
		if err != nil {
			a.logger.Error("close-error", zap.Error(err))
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
