package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vouh/Course-corner-sub000/internal/models"
	"github.com/vouh/Course-corner-sub000/internal/provider"
	"github.com/vouh/Course-corner-sub000/internal/reconcile"
)

type RedemptionService struct {
	store  TransactionStore
	logger *slog.Logger
}

func NewRedemptionService(store TransactionStore, logger *slog.Logger) *RedemptionService {
	return &RedemptionService{store: store, logger: logger}
}

// Redeem marks a paid receipt as used. Each receipt can be redeemed once;
// when phone is non-empty the receipt must belong to that payer.
func (s *RedemptionService) Redeem(ctx context.Context, receiptCode, phone string) (*models.Transaction, error) {
	receiptCode = provider.NormalizeReceipt(receiptCode)
	if receiptCode == "" {
		return nil, fmt.Errorf("%w: receipt_code is required", reconcile.ErrInvalidInput)
	}

	var scope *string
	if strings.TrimSpace(phone) != "" {
		normalized, err := NormalizePhone(phone)
		if err != nil {
			return nil, err
		}
		scope = &normalized
	}

	tx, err := s.store.GetByReceiptCode(ctx, receiptCode, scope)
	if err != nil {
		return nil, fmt.Errorf("redeem: %w", err)
	}
	if tx.Status != models.StatusCompleted {
		return nil, fmt.Errorf("redeem: %w", reconcile.ErrSessionNotFound)
	}

	won, err := s.store.MarkUsed(ctx, tx.SessionID)
	if err != nil {
		return nil, fmt.Errorf("redeem: %w", err)
	}
	if !won {
		return nil, fmt.Errorf("redeem %s: %w", receiptCode, reconcile.ErrReceiptAlreadyUsed)
	}

	s.logger.Info("receipt redeemed", "session_id", tx.SessionID, "receipt_code", receiptCode)
	tx.Used = true
	return tx, nil
}
