package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/vouh/Course-corner-sub000/internal/services"
)

// Enqueuer puts work on the asynq queue. It satisfies
// services.CreditRetryQueue.
type Enqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(client *asynq.Client) *Enqueuer {
	return &Enqueuer{client: client}
}

func (e *Enqueuer) EnqueueReferralCredit(ctx context.Context, req services.CreditRequest) error {
	task, err := NewReferralCreditTask(req)
	if err != nil {
		return err
	}
	if _, err := e.client.EnqueueContext(ctx, task); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("enqueue referral credit %s: %w", req.SessionID, err)
	}
	return nil
}

func (e *Enqueuer) EnqueueSweep(ctx context.Context) (string, error) {
	info, err := e.client.EnqueueContext(ctx, NewSweepTask())
	if err != nil {
		return "", fmt.Errorf("enqueue sweep: %w", err)
	}
	return info.ID, nil
}
