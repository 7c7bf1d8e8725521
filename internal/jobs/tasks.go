// Package jobs runs background reconciliation work on asynq: the periodic
// sweep and referral credit retries.
package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/vouh/Course-corner-sub000/internal/services"
)

const (
	TaskSweep          = "reconcile:sweep"
	TaskReferralCredit = "referral:credit"
)

const (
	sweepTimeout  = 30 * time.Minute
	creditTimeout = time.Minute
	creditRetries = 10
)

// NewSweepTask builds the sweep task. A failed sweep is not retried; the
// next scheduled run picks up where it left off.
func NewSweepTask() *asynq.Task {
	return asynq.NewTask(TaskSweep, nil, asynq.MaxRetry(0), asynq.Timeout(sweepTimeout))
}

// NewReferralCreditTask builds a retry for one referral credit. The task id
// is derived from the session so a credit is queued at most once at a time.
func NewReferralCreditTask(req services.CreditRequest) (*asynq.Task, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal referral credit: %w", err)
	}
	return asynq.NewTask(
		TaskReferralCredit,
		payload,
		asynq.TaskID("referral-credit:"+req.SessionID),
		asynq.MaxRetry(creditRetries),
		asynq.Timeout(creditTimeout),
	), nil
}

// retryDelay backs off from seconds to a quarter hour.
func retryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	backoff := []time.Duration{10 * time.Second, 30 * time.Second, time.Minute, 5 * time.Minute}
	if n <= 0 {
		return 0
	}
	if n <= len(backoff) {
		return backoff[n-1]
	}
	return 15 * time.Minute
}
