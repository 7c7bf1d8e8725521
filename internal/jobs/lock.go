package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var ErrLockHeld = errors.New("lock held by another worker")

// Releaser gives back a held lock.
type Releaser interface {
	Release(ctx context.Context) error
}

type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Releaser, error)
}

// RedisLocker is a single-instance SETNX lock. The value is a random token
// so a worker can only release a lock it still owns.
type RedisLocker struct {
	rdb redis.UniversalClient
}

func NewRedisLocker(rdb redis.UniversalClient) *RedisLocker {
	return &RedisLocker{rdb: rdb}
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisLock struct {
	rdb   redis.UniversalClient
	key   string
	token string
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Releaser, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("acquire lock %s: %w", key, ErrLockHeld)
	}
	return &redisLock{rdb: l.rdb, key: key, token: token}, nil
}

func (l *redisLock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	return nil
}
