package services

import (
	"context"
	"time"

	"github.com/vouh/Course-corner-sub000/internal/models"
	"github.com/vouh/Course-corner-sub000/internal/reconcile"
	"github.com/vouh/Course-corner-sub000/internal/repo"
)

// TransactionStore is the durable transaction store. repo.TransactionRepo
// and repo.MemoryTransactionRepo both satisfy it.
type TransactionStore interface {
	reconcile.Store
	Create(ctx context.Context, tx *models.Transaction) error
	GetByCheckoutRef(ctx context.Context, checkoutRef string) (*models.Transaction, error)
	GetByReceiptCode(ctx context.Context, receiptCode string, phone *string) (*models.Transaction, error)
	SetCheckoutRef(ctx context.Context, sessionID, checkoutRef string) (bool, error)
	MarkCreditApplied(ctx context.Context, sessionID string) (bool, error)
	MarkCreditSettled(ctx context.Context, sessionID string) (bool, error)
	MarkUsed(ctx context.Context, sessionID string) (bool, error)
	ListAwaiting(ctx context.Context, after repo.AwaitingCursor, before time.Time, limit int) ([]models.Transaction, error)
	ListCreditPending(ctx context.Context, limit int) ([]models.Transaction, error)
	List(ctx context.Context, filters repo.TransactionFilters) ([]models.Transaction, int64, error)
}

var (
	_ TransactionStore = (*repo.TransactionRepo)(nil)
	_ TransactionStore = (*repo.MemoryTransactionRepo)(nil)
)
