package repo

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vouh/Course-corner-sub000/internal/models"
	"github.com/vouh/Course-corner-sub000/internal/reconcile"
)

func newSession(id string, createdAt time.Time) *models.Transaction {
	return &models.Transaction{
		SessionID: id,
		Phone:     "254712345678",
		Amount:    decimal.NewFromInt(50),
		Category:  "course",
		Status:    models.StatusAwaitingResult,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func completed(receipt string, at time.Time) models.Transition {
	return models.Transition{
		Status:       models.StatusCompleted,
		ResultReason: "success",
		ReceiptCode:  &receipt,
		UpdatedAt:    at,
	}
}

func TestMemoryTransactionRepo_ConditionalUpdate(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryTransactionRepo()
	now := time.Now().UTC()
	require.NoError(t, r.Create(ctx, newSession("s-1", now)))

	won, err := r.ConditionalUpdate(ctx, "s-1", models.StatusAwaitingResult, completed("QFT1", now.Add(time.Second)))
	require.NoError(t, err)
	assert.True(t, won)

	won, err = r.ConditionalUpdate(ctx, "s-1", models.StatusAwaitingResult, models.Transition{Status: models.StatusFailed, UpdatedAt: now})
	require.NoError(t, err)
	assert.False(t, won)

	tx, err := r.GetBySessionID(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, tx.Status)
	assert.Equal(t, "QFT1", *tx.ReceiptCode)

	byReceipt, err := r.GetByReceiptCode(ctx, "QFT1", nil)
	require.NoError(t, err)
	assert.Equal(t, "s-1", byReceipt.SessionID)

	other := "254700000000"
	_, err = r.GetByReceiptCode(ctx, "QFT1", &other)
	assert.ErrorIs(t, err, reconcile.ErrSessionNotFound)
}

func TestMemoryTransactionRepo_ConcurrentCAS(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryTransactionRepo()
	now := time.Now().UTC()
	require.NoError(t, r.Create(ctx, newSession("s-1", now)))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := r.ConditionalUpdate(ctx, "s-1", models.StatusAwaitingResult, models.Transition{
				Status:       models.StatusFailed,
				ResultReason: "failed",
				UpdatedAt:    now,
			})
			assert.NoError(t, err)
			if won {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestMemoryTransactionRepo_ReceiptUnique(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryTransactionRepo()
	now := time.Now().UTC()
	require.NoError(t, r.Create(ctx, newSession("s-1", now)))
	require.NoError(t, r.Create(ctx, newSession("s-2", now)))

	_, err := r.ConditionalUpdate(ctx, "s-1", models.StatusAwaitingResult, completed("QFT1", now))
	require.NoError(t, err)

	won, err := r.ConditionalUpdate(ctx, "s-2", models.StatusAwaitingResult, completed("QFT1", now))
	assert.ErrorIs(t, err, reconcile.ErrDuplicateReceipt)
	assert.False(t, won)
}

func TestMemoryTransactionRepo_Latches(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryTransactionRepo()
	now := time.Now().UTC()
	require.NoError(t, r.Create(ctx, newSession("s-1", now)))

	// Latches only open on completed sessions.
	won, err := r.MarkCreditApplied(ctx, "s-1")
	require.NoError(t, err)
	assert.False(t, won)
	won, err = r.MarkUsed(ctx, "s-1")
	require.NoError(t, err)
	assert.False(t, won)

	_, err = r.ConditionalUpdate(ctx, "s-1", models.StatusAwaitingResult, completed("QFT1", now))
	require.NoError(t, err)

	won, err = r.MarkCreditApplied(ctx, "s-1")
	require.NoError(t, err)
	assert.True(t, won)
	won, err = r.MarkCreditApplied(ctx, "s-1")
	require.NoError(t, err)
	assert.False(t, won)

	won, err = r.MarkUsed(ctx, "s-1")
	require.NoError(t, err)
	assert.True(t, won)
	won, err = r.MarkUsed(ctx, "s-1")
	require.NoError(t, err)
	assert.False(t, won)
}

func TestMemoryTransactionRepo_SetCheckoutRef(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryTransactionRepo()
	now := time.Now().UTC()
	require.NoError(t, r.Create(ctx, newSession("s-1", now)))
	require.NoError(t, r.Create(ctx, newSession("s-2", now)))

	won, err := r.SetCheckoutRef(ctx, "s-1", "ws_CO_1")
	require.NoError(t, err)
	assert.True(t, won)

	won, err = r.SetCheckoutRef(ctx, "s-1", "ws_CO_2")
	require.NoError(t, err)
	assert.False(t, won, "ref is written once")

	_, err = r.SetCheckoutRef(ctx, "s-2", "ws_CO_1")
	assert.ErrorIs(t, err, reconcile.ErrInvalidInput)

	tx, err := r.GetByCheckoutRef(ctx, "ws_CO_1")
	require.NoError(t, err)
	assert.Equal(t, "s-1", tx.SessionID)
	assert.True(t, tx.UpdatedAt.After(now))
}

func TestMemoryTransactionRepo_ListAwaiting(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryTransactionRepo()
	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, r.Create(ctx, newSession(id, base.Add(time.Duration(i)*time.Minute))))
	}
	_, err := r.ConditionalUpdate(ctx, "b", models.StatusAwaitingResult, models.Transition{Status: models.StatusFailed, UpdatedAt: time.Now()})
	require.NoError(t, err)

	page, err := r.ListAwaiting(ctx, AwaitingCursor{}, base.Add(10*time.Minute), 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "a", page[0].SessionID)
	assert.Equal(t, "c", page[1].SessionID)

	page, err = r.ListAwaiting(ctx, CursorOf(page[1]), base.Add(10*time.Minute), 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "d", page[0].SessionID)
}

func TestMemoryTransactionRepo_ListAwaitingSameCreatedAt(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryTransactionRepo()
	created := time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, r.Create(ctx, newSession(id, created)))
	}

	var seen []string
	var cursor AwaitingCursor
	for {
		page, err := r.ListAwaiting(ctx, cursor, time.Now(), 2)
		require.NoError(t, err)
		for _, tx := range page {
			seen = append(seen, tx.SessionID)
		}
		if len(page) < 2 {
			break
		}
		cursor = CursorOf(page[len(page)-1])
	}
	assert.Equal(t, []string{"a", "b", "c"}, seen)
}

func TestMemoryTransactionRepo_CreditPending(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryTransactionRepo()
	for _, id := range []string{"s-1", "s-2"} {
		require.NoError(t, r.Create(ctx, newSession(id, time.Now().Add(-time.Minute))))
		_, err := r.ConditionalUpdate(ctx, id, models.StatusAwaitingResult, models.Transition{Status: models.StatusCompleted, ResultReason: "success", UpdatedAt: time.Now()})
		require.NoError(t, err)
	}

	won, err := r.MarkCreditSettled(ctx, "s-1")
	require.NoError(t, err)
	assert.False(t, won, "settling needs the credit latch first")

	for _, id := range []string{"s-1", "s-2"} {
		won, err = r.MarkCreditApplied(ctx, id)
		require.NoError(t, err)
		require.True(t, won)
	}
	won, err = r.MarkCreditSettled(ctx, "s-2")
	require.NoError(t, err)
	assert.True(t, won)

	pending, err := r.ListCreditPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "s-1", pending[0].SessionID)

	won, err = r.MarkCreditSettled(ctx, "s-2")
	require.NoError(t, err)
	assert.False(t, won)
}

func TestMemoryReferrerRepo_CreditOnce(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryReferrerRepo("REF1")

	require.NoError(t, r.CreditReferrer(ctx, "REF1", decimal.NewFromInt(50), "s-1"))
	err := r.CreditReferrer(ctx, "REF1", decimal.NewFromInt(50), "s-1")
	assert.ErrorIs(t, err, reconcile.ErrAlreadyCredited)

	err = r.CreditReferrer(ctx, "NOPE", decimal.NewFromInt(50), "s-2")
	assert.ErrorIs(t, err, reconcile.ErrReferrerNotFound)

	ref, err := r.GetByCode(ctx, "REF1")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(50).Equal(ref.Balance))
}
