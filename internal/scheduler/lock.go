package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"Matchmaking/internal/domain"
)

// Locker 单模式互斥，保证同一模式同一时间只有一个进程在出队成桌
type Locker interface {
	// TryLock never blocks; ok is false while someone else holds name.
	TryLock(ctx context.Context, name string) (release func(), ok bool, err error)
}

type RedisLocker struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// DefaultLockTTL replaces a non-positive ttl; a lock must always expire.
const DefaultLockTTL = 10 * time.Second

func NewRedisLocker(rdb redis.UniversalClient, prefix string, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &RedisLocker{rdb: rdb, prefix: prefix, ttl: ttl}
}

// KEYS[1] = lock key, ARGV[1] = holder token
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

func (l *RedisLocker) TryLock(ctx context.Context, name string) (func(), bool, error) {
	key := l.prefix + name
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, domain.StoreError(err, "lock "+name)
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		// release even when the tick's ctx was cancelled
		_ = unlockScript.Run(context.WithoutCancel(ctx), l.rdb, []string{key}, token).Err()
	}
	return release, true, nil
}

// MemoryLocker 单进程版
type MemoryLocker struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	held map[string]memLock
	seq  uint64
}

type memLock struct {
	id      uint64
	expires time.Time
}

func NewMemoryLocker(ttl time.Duration) *MemoryLocker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &MemoryLocker{ttl: ttl, now: time.Now, held: make(map[string]memLock)}
}

func (l *MemoryLocker) TryLock(_ context.Context, name string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.held[name]; ok && l.now().Before(cur.expires) {
		return nil, false, nil
	}
	l.seq++
	id := l.seq
	l.held[name] = memLock{id: id, expires: l.now().Add(l.ttl)}
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if cur, ok := l.held[name]; ok && cur.id == id {
			delete(l.held, name)
		}
	}, true, nil
}
