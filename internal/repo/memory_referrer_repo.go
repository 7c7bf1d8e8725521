package repo

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/vouh/Course-corner-sub000/internal/models"
	"github.com/vouh/Course-corner-sub000/internal/reconcile"
)

type MemoryReferrerRepo struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	credited map[string]string
}

func NewMemoryReferrerRepo(codes ...string) *MemoryReferrerRepo {
	r := &MemoryReferrerRepo{
		balances: make(map[string]decimal.Decimal),
		credited: make(map[string]string),
	}
	for _, code := range codes {
		r.balances[code] = decimal.Zero
	}
	return r
}

func (r *MemoryReferrerRepo) AddReferrer(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.balances[code]; !ok {
		r.balances[code] = decimal.Zero
	}
}

func (r *MemoryReferrerRepo) CreditReferrer(_ context.Context, code string, amount decimal.Decimal, transactionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	balance, ok := r.balances[code]
	if !ok {
		return fmt.Errorf("credit referrer %s: %w", code, reconcile.ErrReferrerNotFound)
	}
	if _, done := r.credited[transactionID]; done {
		return fmt.Errorf("credit referrer %s: %w", code, reconcile.ErrAlreadyCredited)
	}
	r.credited[transactionID] = code
	r.balances[code] = balance.Add(amount)
	return nil
}

func (r *MemoryReferrerRepo) GetByCode(_ context.Context, code string) (*models.Referrer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	balance, ok := r.balances[code]
	if !ok {
		return nil, fmt.Errorf("get referrer %s: %w", code, reconcile.ErrReferrerNotFound)
	}
	return &models.Referrer{Code: code, Balance: balance}, nil
}
