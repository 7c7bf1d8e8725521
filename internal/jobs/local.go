package jobs

import (
	"context"
	"log/slog"
	"time"
)

// LocalScheduler runs the sweep and the pending-credit pass on a ticker in
// this process. It stands in for the asynq scheduler when no Redis is
// configured, so only one server replica should run it.
type LocalScheduler struct {
	sweeper Sweeper
	credits CreditRedeliverer
	every   time.Duration
	logger  *slog.Logger
}

func NewLocalScheduler(sweeper Sweeper, credits CreditRedeliverer, every time.Duration, logger *slog.Logger) *LocalScheduler {
	if every <= 0 {
		every = 5 * time.Minute
	}
	return &LocalScheduler{sweeper: sweeper, credits: credits, every: every, logger: logger}
}

// Run blocks until ctx is done, ticking every interval.
func (s *LocalScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.every)
	defer ticker.Stop()

	s.logger.Info("local maintenance scheduler started", "every", s.every.String())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

func (s *LocalScheduler) Tick(ctx context.Context) {
	if err := runMaintenance(ctx, s.sweeper, s.credits, s.logger); err != nil && ctx.Err() == nil {
		s.logger.Error("scheduled sweep failed", "error", err)
	}
}
