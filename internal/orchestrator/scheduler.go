package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler triggers RunOnce on a cron schedule with a seconds field.
// A cycle still running when the next one is due is skipped.
type Scheduler struct {
	orchestrator *Orchestrator
	spec         string
	logger       *zap.Logger
}

// NewScheduler validates spec and creates a scheduler.
func NewScheduler(o *Orchestrator, spec string, logger *zap.Logger) (*Scheduler, error) {
	if o == nil {
		return nil, errors.New("orchestrator cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	_, err := cron.NewParser(cronFields).Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}

	return &Scheduler{orchestrator: o, spec: spec, logger: logger}, nil
}

const cronFields = cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor

// Run blocks until ctx is canceled, then waits for the running cycle to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	cronLogger := cron.PrintfLogger(zap.NewStdLog(s.logger.Named("cron")))
	c := cron.New(
		cron.WithParser(cron.NewParser(cronFields)),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	_, err := c.AddFunc(s.spec, func() {
		_, cycleErr := s.orchestrator.RunOnce(ctx)
		if cycleErr != nil && ctx.Err() == nil {
			s.logger.Error("discovery-cycle-failed", zap.Error(cycleErr))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule cycle: %w", err)
	}

	s.logger.Info("scheduler-starting", zap.String("schedule", s.spec))
	c.Start()

	<-ctx.Done()
	s.logger.Info("scheduler-stopping")
	<-c.Stop().Done()

	return ctx.Err()
}
