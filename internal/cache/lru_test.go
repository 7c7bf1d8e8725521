package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vouh/Course-corner-sub000/internal/models"
)

func TestLRU_PutAndGet(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(10, time.Minute)

	tx := models.Transaction{SessionID: "s-1", Status: models.StatusAwaitingResult}
	c.Put(ctx, tx)

	got, ok := c.Get(ctx, "s-1")
	assert.True(t, ok)
	assert.Equal(t, models.StatusAwaitingResult, got.Status)

	_, ok = c.SessionIDForCheckoutRef(ctx, "ws_CO_1")
	assert.False(t, ok, "ref index must stay empty until a ref is known")

	ref := "ws_CO_1"
	tx.CheckoutRef = &ref
	c.Put(ctx, tx)

	id, ok := c.SessionIDForCheckoutRef(ctx, ref)
	assert.True(t, ok)
	assert.Equal(t, "s-1", id)
}

func TestLRU_Miss(t *testing.T) {
	c := NewLRU(10, time.Minute)
	_, ok := c.Get(context.Background(), "missing")
	assert.False(t, ok)
}

func TestLRU_EntriesExpire(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(10, 20*time.Millisecond)
	c.Put(ctx, models.Transaction{SessionID: "s-1"})

	assert.Eventually(t, func() bool {
		_, ok := c.Get(ctx, "s-1")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestLRU_EvictsOldestBeyondSize(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(2, time.Minute)
	c.Put(ctx, models.Transaction{SessionID: "a"})
	c.Put(ctx, models.Transaction{SessionID: "b"})
	c.Put(ctx, models.Transaction{SessionID: "c"})

	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "c")
	assert.True(t, ok)
}
