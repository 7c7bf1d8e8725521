package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/vouh/Course-corner-sub000/internal/services"
)

const sweepLockKey = "stk:lock:sweep"

type Sweeper interface {
	Run(ctx context.Context) (*services.SweepReport, error)
}

type CreditRedeliverer interface {
	Redeliver(ctx context.Context, req services.CreditRequest) error
	RedeliverPending(ctx context.Context) (int, error)
}

type Processor struct {
	sweeper Sweeper
	credits CreditRedeliverer
	locker  Locker
	lockTTL time.Duration
	logger  *slog.Logger
}

// NewProcessor builds the task handlers. locker may be nil, in which case
// sweeps are not serialised across workers.
func NewProcessor(sweeper Sweeper, credits CreditRedeliverer, locker Locker, lockTTL time.Duration, logger *slog.Logger) *Processor {
	return &Processor{
		sweeper: sweeper,
		credits: credits,
		locker:  locker,
		lockTTL: lockTTL,
		logger:  logger,
	}
}

func (p *Processor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskSweep, p.ProcessSweep)
	mux.HandleFunc(TaskReferralCredit, p.ProcessReferralCredit)
}

func (p *Processor) ProcessSweep(ctx context.Context, _ *asynq.Task) error {
	if p.locker != nil {
		lock, err := p.locker.Acquire(ctx, sweepLockKey, p.lockTTL)
		if err != nil {
			if errors.Is(err, ErrLockHeld) {
				p.logger.Info("sweep already running elsewhere, skipping")
				return nil
			}
			return err
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				p.logger.Warn("failed to release sweep lock", "error", err)
			}
		}()
	}

	return runMaintenance(ctx, p.sweeper, p.credits, p.logger)
}

// runMaintenance is one sweep followed by one pending-credit pass. A failed
// credit pass does not fail the sweep.
func runMaintenance(ctx context.Context, sweeper Sweeper, credits CreditRedeliverer, logger *slog.Logger) error {
	if _, err := sweeper.Run(ctx); err != nil {
		return err
	}
	if _, err := credits.RedeliverPending(ctx); err != nil {
		logger.Warn("pending credit pass failed", "error", err)
	}
	return nil
}

func (p *Processor) ProcessReferralCredit(ctx context.Context, t *asynq.Task) error {
	var req services.CreditRequest
	if err := json.Unmarshal(t.Payload(), &req); err != nil {
		return fmt.Errorf("invalid referral credit payload: %v: %w", err, asynq.SkipRetry)
	}
	return p.credits.Redeliver(ctx, req)
}
