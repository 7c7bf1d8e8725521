// Package cache holds in-flight payment sessions for fast correlation
// between an accepted push and its result.
//
// Entries may be stale, evicted, or missing after a restart. Callers must
// treat a miss, and any status read from here, as a hint and confirm against
// the transaction store.
package cache

import (
	"context"

	"github.com/vouh/Course-corner-sub000/internal/models"
)

type SessionCache interface {
	Put(ctx context.Context, tx models.Transaction)
	Get(ctx context.Context, sessionID string) (models.Transaction, bool)
	// SessionIDForCheckoutRef resolves a provider checkout ref recorded by Put.
	SessionIDForCheckoutRef(ctx context.Context, checkoutRef string) (string, bool)
}

// Refresher keeps a SessionCache in step with the engine by writing every
// applied transition back into it.
type Refresher struct {
	Cache SessionCache
}

func (r Refresher) TransitionApplied(tx models.Transaction) {
	r.Cache.Put(context.Background(), tx)
}
