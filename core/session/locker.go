package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/membo/vtubot/core/logger"
)

// Locker serialises turns of one identity. The returned unlock func is idempotent.
type Locker interface {
	Lock(ctx context.Context, identity string) (unlock func(), err error)
}

// MemoryLocker is a keyed mutex for single-process deployments.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

// NewMemoryLocker constructs an in-process Locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*keyLock)}
}

// Lock blocks until identity is free or ctx is done.
func (m *MemoryLocker) Lock(ctx context.Context, identity string) (func(), error) {
	m.mu.Lock()
	kl, ok := m.locks[identity]
	if !ok {
		kl = &keyLock{sem: make(chan struct{}, 1)}
		m.locks[identity] = kl
	}
	kl.refs++
	m.mu.Unlock()

	select {
	case kl.sem <- struct{}{}:
	case <-ctx.Done():
		m.release(identity, kl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.sem
			m.release(identity, kl)
		})
	}, nil
}

func (m *MemoryLocker) release(identity string, kl *keyLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(m.locks, identity)
	}
}

// held reports how many identities currently have waiters or holders.
func (m *MemoryLocker) held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker leases a per-identity key in Redis so several replicas share one lock.
// A lease expires after ttl even if its holder dies.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	retry  time.Duration
	prefix string
}

// NewRedisLocker builds a RedisLocker. ttl must exceed the longest expected turn.
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl, retry: 50 * time.Millisecond, prefix: "vtubot:lock:"}
}

// Lock polls SET NX until the lease is acquired or ctx is done.
func (r *RedisLocker) Lock(ctx context.Context, identity string) (func(), error) {
	key := r.prefix + identity
	token := uuid.NewString()
	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("session: redis lock: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.retry):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// Release even when the turn's context is already cancelled.
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			err := releaseScript.Run(releaseCtx, r.client, []string{key}, token).Err()
			if err != nil && !errors.Is(err, redis.Nil) {
				logger.Warn(ctx, "session", "lock.release",
					slog.String("status", "fail"),
					slog.String("err", err.Error()),
				)
			}
		})
	}, nil
}
