package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vouh/Course-corner-sub000/internal/utils"
)

// RateLimiter is a fixed-window per-client limiter. Each limiter keeps its
// own counters, so separate route groups can have separate budgets.
type RateLimiter struct {
	limit  int
	window time.Duration
	mu     sync.Mutex
	items  map[string]*rateEntry
	now    func() time.Time
}

type rateEntry struct {
	count int
	reset time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		limit:  limit,
		window: window,
		items:  make(map[string]*rateEntry),
		now:    time.Now,
	}
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.limit <= 0 {
			c.Next()
			return
		}

		count, reset := rl.hit(c.ClientIP())
		if count > rl.limit {
			retry := int(reset.Sub(rl.now()).Seconds()) + 1
			c.Header("Retry-After", fmt.Sprintf("%d", retry))
			utils.RespondError(c, utils.NewAppError(http.StatusTooManyRequests, "RATE_LIMIT", "too many requests", nil))
			c.Abort()
			return
		}

		c.Next()
	}
}

func (rl *RateLimiter) hit(key string) (int, time.Time) {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.items[key]
	if !ok || now.After(entry.reset) {
		if len(rl.items) > 10000 {
			rl.evictExpired(now)
		}
		entry = &rateEntry{reset: now.Add(rl.window)}
		rl.items[key] = entry
	}
	entry.count++
	return entry.count, entry.reset
}

func (rl *RateLimiter) evictExpired(now time.Time) {
	for key, entry := range rl.items {
		if now.After(entry.reset) {
			delete(rl.items, key)
		}
	}
}
