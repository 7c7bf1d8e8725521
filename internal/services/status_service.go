package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vouh/Course-corner-sub000/internal/cache"
	"github.com/vouh/Course-corner-sub000/internal/models"
	"github.com/vouh/Course-corner-sub000/internal/provider"
	"github.com/vouh/Course-corner-sub000/internal/reconcile"
)

// Pending stages reported while a session is awaiting_result.
const (
	StagePushAccepted    = "push_accepted"
	StageCallbackOverdue = "callback_overdue"
)

// PaymentView is the client-facing read model of a session.
type PaymentView struct {
	SessionID    string          `json:"session_id"`
	CheckoutRef  *string         `json:"checkout_ref,omitempty"`
	Status       models.Status   `json:"status"`
	PendingStage string          `json:"pending_stage,omitempty"`
	ResultReason *string         `json:"result_reason,omitempty"`
	ReceiptCode  *string         `json:"receipt_code,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Category     string          `json:"category"`
	Used         bool            `json:"used"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// NewPaymentView builds the read model. queryAfter is the callback budget
// used to tell a fresh push from one whose callback is overdue.
func NewPaymentView(tx models.Transaction, now time.Time, queryAfter time.Duration) PaymentView {
	view := PaymentView{
		SessionID:    tx.SessionID,
		CheckoutRef:  tx.CheckoutRef,
		Status:       tx.Status,
		ResultReason: tx.ResultReason,
		ReceiptCode:  tx.ReceiptCode,
		Amount:       tx.Amount,
		Category:     tx.Category,
		Used:         tx.Used,
		CreatedAt:    tx.CreatedAt,
		UpdatedAt:    tx.UpdatedAt,
	}
	if tx.Status == models.StatusAwaitingResult {
		view.PendingStage = StagePushAccepted
		if now.Sub(tx.CreatedAt) >= queryAfter {
			view.PendingStage = StageCallbackOverdue
		}
	}
	return view
}

type StatusService struct {
	store      TransactionStore
	cache      cache.SessionCache
	provider   provider.Client
	engine     *reconcile.Engine
	logger     *slog.Logger
	queryAfter time.Duration
	timeout    time.Duration
	now        func() time.Time
}

func NewStatusService(
	store TransactionStore,
	sessions cache.SessionCache,
	client provider.Client,
	engine *reconcile.Engine,
	logger *slog.Logger,
	queryAfter, providerTimeout time.Duration,
) *StatusService {
	return &StatusService{
		store:      store,
		cache:      sessions,
		provider:   client,
		engine:     engine,
		logger:     logger,
		queryAfter: queryAfter,
		timeout:    providerTimeout,
		now:        time.Now,
	}
}

// Status returns the session's read model. A session still awaiting its
// result past the callback budget is confirmed with the provider first.
func (s *StatusService) Status(ctx context.Context, sessionID string) (*PaymentView, error) {
	tx, err := s.store.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}

	if tx.Status == models.StatusAwaitingResult && s.now().Sub(tx.CreatedAt) >= s.queryAfter {
		tx = s.confirm(ctx, tx)
	}

	view := NewPaymentView(*tx, s.now(), s.queryAfter)
	return &view, nil
}

// Snapshot returns the read model as stored, without asking the provider.
func (s *StatusService) Snapshot(ctx context.Context, sessionID string) (*PaymentView, error) {
	tx, err := s.store.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	view := NewPaymentView(*tx, s.now(), s.queryAfter)
	return &view, nil
}

// confirm queries the provider for an overdue session and applies whatever
// it reports. Any failure leaves the session as it was.
func (s *StatusService) confirm(ctx context.Context, tx *models.Transaction) *models.Transaction {
	log := s.logger.With("session_id", tx.SessionID)

	ref := tx.CheckoutRefValue()
	if ref == "" {
		if cached, ok := s.cache.Get(ctx, tx.SessionID); ok {
			ref = cached.CheckoutRefValue()
		}
	}
	if ref == "" {
		log.Debug("overdue session has no checkout ref yet, skipping query")
		return tx
	}

	queryCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.provider.Query(queryCtx, ref)
	if err != nil {
		log.Warn("status query failed", "checkout_ref", ref, "error", err)
		return tx
	}

	updated, _, err := s.engine.Apply(ctx, tx.SessionID, result.Signal(), reconcile.SourcePoll)
	if err != nil {
		log.Error("apply query result failed", "error", err)
		return tx
	}
	return updated
}
