package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vouh/Course-corner-sub000/internal/cache"
	"github.com/vouh/Course-corner-sub000/internal/models"
	"github.com/vouh/Course-corner-sub000/internal/provider"
	"github.com/vouh/Course-corner-sub000/internal/reconcile"
)

type IntakeService struct {
	store    TransactionStore
	cache    cache.SessionCache
	provider provider.Client
	engine   *reconcile.Engine
	logger   *slog.Logger
	timeout  time.Duration

	now   func() time.Time
	newID func() string
}

type InitiateRequest struct {
	Phone        string
	Amount       decimal.Decimal
	Category     string
	ReferralCode string
}

type InitiateResult struct {
	SessionID       string `json:"session_id"`
	CheckoutRef     string `json:"checkout_ref"`
	CustomerMessage string `json:"customer_message,omitempty"`
}

func NewIntakeService(
	store TransactionStore,
	sessions cache.SessionCache,
	client provider.Client,
	engine *reconcile.Engine,
	logger *slog.Logger,
	providerTimeout time.Duration,
) *IntakeService {
	return &IntakeService{
		store:    store,
		cache:    sessions,
		provider: client,
		engine:   engine,
		logger:   logger,
		timeout:  providerTimeout,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Initiate opens a payment session and asks the provider to push a payment
// prompt to the payer. The session is durable before the push goes out, so a
// result that races the push response can always be correlated.
func (s *IntakeService) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	tx, err := s.newSession(req)
	if err != nil {
		return nil, err
	}

	s.cache.Put(ctx, *tx)
	if err := s.store.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	log := s.logger.With("session_id", tx.SessionID)

	pushCtx, cancel := context.WithTimeout(ctx, s.timeout)
	resp, err := s.provider.Push(pushCtx, provider.PushRequest{
		Phone:       tx.Phone,
		Amount:      tx.Amount,
		Reference:   tx.Category,
		Description: "Payment",
	})
	cancel()

	// From here on the push has happened; finish bookkeeping even if the
	// caller goes away.
	ctx = context.WithoutCancel(ctx)

	if err != nil {
		log.Warn("stk push failed", "error", err)
		if _, _, applyErr := s.engine.Apply(ctx, tx.SessionID, reconcile.Failure(reconcile.ReasonProviderRejected), reconcile.SourceIntake); applyErr != nil {
			log.Error("failed to close rejected session", "error", applyErr)
		}
		if errors.Is(err, reconcile.ErrProviderRejected) || errors.Is(err, reconcile.ErrProviderUnavailable) {
			return nil, fmt.Errorf("push session %s: %w", tx.SessionID, err)
		}
		return nil, fmt.Errorf("push session %s: %w: %w", tx.SessionID, reconcile.ErrProviderUnavailable, err)
	}

	ref := resp.CheckoutRef
	tx.CheckoutRef = &ref
	s.cache.Put(ctx, *tx)

	if _, err := s.store.SetCheckoutRef(ctx, tx.SessionID, ref); err != nil {
		// The cache still maps the ref, and the callback path backfills it.
		log.Error("failed to persist checkout ref", "checkout_ref", ref, "error", err)
	}

	log.Info("stk push accepted", "checkout_ref", ref, "category", tx.Category)
	return &InitiateResult{
		SessionID:       tx.SessionID,
		CheckoutRef:     ref,
		CustomerMessage: resp.CustomerMessage,
	}, nil
}

func (s *IntakeService) newSession(req InitiateRequest) (*models.Transaction, error) {
	phone, err := NormalizePhone(req.Phone)
	if err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be greater than zero", reconcile.ErrInvalidInput)
	}
	if !req.Amount.Equal(req.Amount.Truncate(0)) {
		return nil, fmt.Errorf("%w: amount must be a whole number", reconcile.ErrInvalidInput)
	}
	category := strings.TrimSpace(req.Category)
	if category == "" {
		return nil, fmt.Errorf("%w: category is required", reconcile.ErrInvalidInput)
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	tx := &models.Transaction{
		SessionID: s.newID(),
		Phone:     phone,
		Amount:    req.Amount,
		Category:  category,
		Status:    models.StatusAwaitingResult,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if code := strings.TrimSpace(req.ReferralCode); code != "" {
		tx.ReferralCode = &code
	}
	return tx, nil
}
