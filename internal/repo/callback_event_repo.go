package repo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/vouh/Course-corner-sub000/internal/models"
)

type CallbackEventRepo struct {
	db      *gorm.DB
	timeout time.Duration
}

func NewCallbackEventRepo(db *gorm.DB, timeout time.Duration) *CallbackEventRepo {
	return &CallbackEventRepo{db: db, timeout: timeout}
}

func (r *CallbackEventRepo) Record(ctx context.Context, event *models.CallbackEvent) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("record callback event: %w", err)
	}
	return nil
}

func (r *CallbackEventRepo) ListByCheckoutRef(ctx context.Context, checkoutRef string) ([]models.CallbackEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var events []models.CallbackEvent
	if err := r.db.WithContext(ctx).
		Where("checkout_ref = ?", checkoutRef).
		Order("received_at ASC").
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("list callback events: %w", err)
	}
	return events, nil
}

type MemoryCallbackEventRepo struct {
	mu     sync.Mutex
	events []models.CallbackEvent
}

func NewMemoryCallbackEventRepo() *MemoryCallbackEventRepo {
	return &MemoryCallbackEventRepo{}
}

func (r *MemoryCallbackEventRepo) Record(_ context.Context, event *models.CallbackEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	event.ID = uint(len(r.events) + 1)
	r.events = append(r.events, *event)
	return nil
}

func (r *MemoryCallbackEventRepo) ListByCheckoutRef(_ context.Context, checkoutRef string) ([]models.CallbackEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.CallbackEvent
	for _, e := range r.events {
		if e.CheckoutRef == checkoutRef {
			out = append(out, e)
		}
	}
	return out, nil
}
