package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/vouh/Course-corner-sub000/internal/models"
)

// LRU is a process-local SessionCache bounded by size and entry age.
type LRU struct {
	sessions *expirable.LRU[string, models.Transaction]
	refs     *expirable.LRU[string, string]
}

func NewLRU(size int, ttl time.Duration) *LRU {
	if size <= 0 {
		size = 1000
	}
	return &LRU{
		sessions: expirable.NewLRU[string, models.Transaction](size, nil, ttl),
		refs:     expirable.NewLRU[string, string](size, nil, ttl),
	}
}

func (c *LRU) Put(_ context.Context, tx models.Transaction) {
	c.sessions.Add(tx.SessionID, tx)
	if ref := tx.CheckoutRefValue(); ref != "" {
		c.refs.Add(ref, tx.SessionID)
	}
}

func (c *LRU) Get(_ context.Context, sessionID string) (models.Transaction, bool) {
	return c.sessions.Get(sessionID)
}

func (c *LRU) SessionIDForCheckoutRef(_ context.Context, checkoutRef string) (string, bool) {
	return c.refs.Get(checkoutRef)
}
