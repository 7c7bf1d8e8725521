package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/vouh/Course-corner-sub000/internal/models"
	"github.com/vouh/Course-corner-sub000/internal/reconcile"
)

// ReferralSink credits a referrer. It must be idempotent per transaction id
// and report a repeat with reconcile.ErrAlreadyCredited.
type ReferralSink interface {
	CreditReferrer(ctx context.Context, code string, amount decimal.Decimal, transactionID string) error
}

// CreditRequest is one referral credit owed for a completed session.
type CreditRequest struct {
	SessionID    string          `json:"session_id"`
	ReferralCode string          `json:"referral_code"`
	Amount       decimal.Decimal `json:"amount"`
}

// CreditRetryQueue takes credits whose sink call failed and redelivers them
// later through Redeliver.
type CreditRetryQueue interface {
	EnqueueReferralCredit(ctx context.Context, req CreditRequest) error
}

type latchStore interface {
	MarkCreditApplied(ctx context.Context, sessionID string) (bool, error)
	MarkCreditSettled(ctx context.Context, sessionID string) (bool, error)
	ListCreditPending(ctx context.Context, limit int) ([]models.Transaction, error)
}

const pendingCreditBatch = 100

// ReferralDispatcher performs the referral side effect of a completed
// session at most once.
type ReferralDispatcher struct {
	store      latchStore
	sink       ReferralSink
	retries    CreditRetryQueue
	commission decimal.Decimal
	logger     *slog.Logger
}

func NewReferralDispatcher(store latchStore, sink ReferralSink, commission decimal.Decimal, logger *slog.Logger) *ReferralDispatcher {
	return &ReferralDispatcher{store: store, sink: sink, commission: commission, logger: logger}
}

func (d *ReferralDispatcher) SetRetryQueue(q CreditRetryQueue) {
	d.retries = q
}

// Dispatch latches credit_applied and, only if this call won the latch,
// credits the referrer.
func (d *ReferralDispatcher) Dispatch(ctx context.Context, tx models.Transaction) {
	if tx.Status != models.StatusCompleted || !tx.HasReferral() {
		return
	}
	ctx = context.WithoutCancel(ctx)
	log := d.logger.With("session_id", tx.SessionID, "referral_code", *tx.ReferralCode)

	won, err := d.store.MarkCreditApplied(ctx, tx.SessionID)
	if err != nil {
		log.Error("referral latch failed, credit needs operator review", "error", err)
		return
	}
	if !won {
		log.Debug("referral credit already dispatched")
		return
	}

	req := CreditRequest{SessionID: tx.SessionID, ReferralCode: *tx.ReferralCode, Amount: d.commission}
	if err := d.Redeliver(ctx, req); err != nil {
		log.Warn("referral credit failed", "error", err)
		if d.retries == nil {
			log.Warn("no retry queue configured, credit left for the pending-credit pass")
			return
		}
		if err := d.retries.EnqueueReferralCredit(ctx, req); err != nil {
			log.Error("enqueue referral retry failed, credit needs operator review", "error", err)
		}
	}
}

// Redeliver calls the sink directly and, once the sink has a final answer,
// marks the session's credit settled. Outcomes that retrying cannot change
// are logged and swallowed.
func (d *ReferralDispatcher) Redeliver(ctx context.Context, req CreditRequest) error {
	log := d.logger.With("session_id", req.SessionID, "referral_code", req.ReferralCode)

	err := d.sink.CreditReferrer(ctx, req.ReferralCode, req.Amount, req.SessionID)
	switch {
	case err == nil:
		log.Info("referrer credited", "amount", req.Amount.String())
	case errors.Is(err, reconcile.ErrAlreadyCredited):
		log.Info("referrer already credited for session")
	case errors.Is(err, reconcile.ErrReferrerNotFound):
		log.Warn("referral code does not match a referrer")
	default:
		return err
	}

	// A failed settle only means the pending pass asks the sink again and
	// gets ErrAlreadyCredited.
	if _, err := d.store.MarkCreditSettled(context.WithoutCancel(ctx), req.SessionID); err != nil {
		log.Warn("mark credit settled failed", "error", err)
	}
	return nil
}

// RedeliverPending retries every credit whose latch was won but whose sink
// call never succeeded. It returns how many were settled.
func (d *ReferralDispatcher) RedeliverPending(ctx context.Context) (int, error) {
	pending, err := d.store.ListCreditPending(ctx, pendingCreditBatch)
	if err != nil {
		return 0, fmt.Errorf("list pending credits: %w", err)
	}

	settled := 0
	for _, tx := range pending {
		if err := ctx.Err(); err != nil {
			return settled, err
		}
		if !tx.HasReferral() {
			continue
		}
		req := CreditRequest{SessionID: tx.SessionID, ReferralCode: *tx.ReferralCode, Amount: d.commission}
		if err := d.Redeliver(ctx, req); err != nil {
			d.logger.Warn("pending referral credit failed", "session_id", tx.SessionID, "error", err)
			continue
		}
		settled++
	}
	if settled > 0 {
		d.logger.Info("pending referral credits settled", "count", settled)
	}
	return settled, nil
}
