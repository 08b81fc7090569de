// Package locking serializes mutations per aggregate id so concurrent
// reschedule/cancel/complete attempts on the same appointment cannot
// interleave. The store's optimistic version check remains the final
// arbiter; the lock just turns races into ordered attempts.
package locking

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/oakwellcare/clinic-engagement/internal/faults"
)

// Locker grants short-lived exclusive access to one aggregate id.
type Locker interface {
	// Acquire returns a release func, or a Conflict fault if another
	// mutation currently holds the id.
	Acquire(ctx context.Context, key string) (func(), error)
}

// RedisLocker implements Locker with SET NX and a fenced release.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLocker creates a locker over an existing redis client.
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if client == nil {
		panic("locking: redis client required")
	}
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl}
}

// releaseScript deletes the lock only if the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Acquire implements Locker.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, "lock:"+key, token, l.ttl).Result()
	if err != nil {
		return nil, faults.Dependency(err, "lock service unavailable")
	}
	if !ok {
		return nil, faults.Conflict("another change to this record is in progress")
	}
	release := func() {
		_, _ = releaseScript.Run(context.Background(), l.client, []string{"lock:" + key}, token).Result()
	}
	return release, nil
}

// MemoryLocker is a process-local Locker for tests and single-node setups.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewMemoryLocker creates an empty in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]bool)}
}

// Acquire implements Locker.
func (l *MemoryLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, faults.Conflict("another change to this record is in progress")
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, nil
}

var (
	_ Locker = (*RedisLocker)(nil)
	_ Locker = (*MemoryLocker)(nil)
)
