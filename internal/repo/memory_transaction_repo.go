package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vouh/Course-corner-sub000/internal/models"
	"github.com/vouh/Course-corner-sub000/internal/reconcile"
	"github.com/vouh/Course-corner-sub000/internal/utils"
)

// MemoryTransactionRepo is a process-local transaction store with the same
// compare-and-set guarantees as TransactionRepo. Used with STORE_DRIVER=memory
// and in tests.
type MemoryTransactionRepo struct {
	mu        sync.Mutex
	bySession map[string]*models.Transaction
	byRef     map[string]string
	byReceipt map[string]string
}

func NewMemoryTransactionRepo() *MemoryTransactionRepo {
	return &MemoryTransactionRepo{
		bySession: make(map[string]*models.Transaction),
		byRef:     make(map[string]string),
		byReceipt: make(map[string]string),
	}
}

func (r *MemoryTransactionRepo) Create(_ context.Context, tx *models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bySession[tx.SessionID]; exists {
		return fmt.Errorf("insert payment transaction: duplicate session %s", tx.SessionID)
	}
	if ref := tx.CheckoutRefValue(); ref != "" {
		if _, exists := r.byRef[ref]; exists {
			return fmt.Errorf("insert payment transaction: duplicate checkout ref %s", ref)
		}
		r.byRef[ref] = tx.SessionID
	}
	if tx.ReceiptCode != nil {
		if _, exists := r.byReceipt[*tx.ReceiptCode]; exists {
			return fmt.Errorf("insert payment transaction: %w", reconcile.ErrDuplicateReceipt)
		}
		r.byReceipt[*tx.ReceiptCode] = tx.SessionID
	}
	stored := *tx
	r.bySession[tx.SessionID] = &stored
	return nil
}

func (r *MemoryTransactionRepo) GetBySessionID(_ context.Context, sessionID string) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookup(sessionID)
}

func (r *MemoryTransactionRepo) GetByCheckoutRef(_ context.Context, checkoutRef string) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byRef[checkoutRef]
	if !ok {
		return nil, fmt.Errorf("get transaction by checkout ref: %w", reconcile.ErrSessionNotFound)
	}
	return r.lookup(id)
}

func (r *MemoryTransactionRepo) GetByReceiptCode(_ context.Context, receiptCode string, phone *string) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byReceipt[receiptCode]
	if !ok {
		return nil, fmt.Errorf("get transaction by receipt: %w", reconcile.ErrSessionNotFound)
	}
	tx, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	if phone != nil && tx.Phone != *phone {
		return nil, fmt.Errorf("get transaction by receipt: %w", reconcile.ErrSessionNotFound)
	}
	return tx, nil
}

func (r *MemoryTransactionRepo) lookup(sessionID string) (*models.Transaction, error) {
	tx, ok := r.bySession[sessionID]
	if !ok {
		return nil, fmt.Errorf("get transaction by session: %w", reconcile.ErrSessionNotFound)
	}
	out := *tx
	return &out, nil
}

func (r *MemoryTransactionRepo) ConditionalUpdate(_ context.Context, sessionID string, expected models.Status, t models.Transition) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, ok := r.bySession[sessionID]
	if !ok || tx.Status != expected {
		return false, nil
	}
	if t.ReceiptCode != nil && tx.ReceiptCode == nil {
		if owner, taken := r.byReceipt[*t.ReceiptCode]; taken && owner != sessionID {
			return false, fmt.Errorf("conditional update: %w", reconcile.ErrDuplicateReceipt)
		}
		receipt := *t.ReceiptCode
		tx.ReceiptCode = &receipt
		r.byReceipt[receipt] = sessionID
	}
	reason := t.ResultReason
	tx.Status = t.Status
	tx.ResultReason = &reason
	tx.UpdatedAt = laterOf(t.UpdatedAt, tx.UpdatedAt)
	return true, nil
}

func (r *MemoryTransactionRepo) SetCheckoutRef(_ context.Context, sessionID, checkoutRef string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, ok := r.bySession[sessionID]
	if !ok || tx.CheckoutRef != nil {
		return false, nil
	}
	if _, taken := r.byRef[checkoutRef]; taken {
		return false, fmt.Errorf("set checkout ref: checkout ref already assigned: %w", reconcile.ErrInvalidInput)
	}
	ref := checkoutRef
	tx.CheckoutRef = &ref
	tx.UpdatedAt = laterOf(time.Now(), tx.UpdatedAt)
	r.byRef[ref] = sessionID
	return true, nil
}

func (r *MemoryTransactionRepo) MarkCreditApplied(_ context.Context, sessionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, ok := r.bySession[sessionID]
	if !ok || tx.Status != models.StatusCompleted || tx.CreditApplied {
		return false, nil
	}
	tx.CreditApplied = true
	tx.UpdatedAt = laterOf(time.Now(), tx.UpdatedAt)
	return true, nil
}

func (r *MemoryTransactionRepo) MarkCreditSettled(_ context.Context, sessionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, ok := r.bySession[sessionID]
	if !ok || !tx.CreditApplied || tx.CreditSettled {
		return false, nil
	}
	tx.CreditSettled = true
	tx.UpdatedAt = laterOf(time.Now(), tx.UpdatedAt)
	return true, nil
}

func (r *MemoryTransactionRepo) MarkUsed(_ context.Context, sessionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, ok := r.bySession[sessionID]
	if !ok || tx.Status != models.StatusCompleted || tx.Used {
		return false, nil
	}
	tx.Used = true
	tx.UpdatedAt = laterOf(time.Now(), tx.UpdatedAt)
	return true, nil
}

func (r *MemoryTransactionRepo) ListAwaiting(_ context.Context, after AwaitingCursor, before time.Time, limit int) ([]models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.Transaction
	for _, tx := range r.bySession {
		if tx.Status == models.StatusAwaitingResult && after.After(*tx) && tx.CreatedAt.Before(before) {
			out = append(out, *tx)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].SessionID < out[j].SessionID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryTransactionRepo) ListCreditPending(_ context.Context, limit int) ([]models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.Transaction
	for _, tx := range r.bySession {
		if tx.CreditApplied && !tx.CreditSettled {
			out = append(out, *tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryTransactionRepo) List(_ context.Context, filters TransactionFilters) ([]models.Transaction, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []models.Transaction
	for _, tx := range r.bySession {
		if filters.Status != "" && string(tx.Status) != filters.Status {
			continue
		}
		if filters.Phone != "" && tx.Phone != filters.Phone {
			continue
		}
		matched = append(matched, *tx)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := int64(len(matched))
	_, limit := utils.NormalizePage(filters.Page, filters.PerPage)
	offset := utils.Offset(filters.Page, filters.PerPage)
	if offset >= len(matched) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func laterOf(candidate, prev time.Time) time.Time {
	if candidate.After(prev) {
		return candidate
	}
	return prev.Add(time.Microsecond)
}
