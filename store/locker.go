package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"
)

// UnlockFunc releases a lock. It is safe to call more than once.
type UnlockFunc func()

// Locker serializes the requests of one thread.
type Locker interface {
	// Lock blocks until the thread lock is acquired or ctx is done.
	Lock(ctx context.Context, threadID string) (UnlockFunc, error)
}

type lockEntry struct {
	ch   chan struct{}
	refs int
}

// LocalLocker is an in-process Locker.
// Entries are reference counted and removed when no request holds or waits for them.
type LocalLocker struct {
	lock  sync.Mutex
	locks map[string]*lockEntry
}

// NewLocalLocker returns LocalLocker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		locks: make(map[string]*lockEntry),
	}
}

func (l *LocalLocker) acquire(id string) *lockEntry {
	l.lock.Lock()
	defer l.lock.Unlock()

	entry, ok := l.locks[id]
	if !ok {
		entry = &lockEntry{ch: make(chan struct{}, 1)}
		l.locks[id] = entry
	}
	entry.refs++
	return entry
}

func (l *LocalLocker) release(id string) {
	l.lock.Lock()
	defer l.lock.Unlock()

	entry, ok := l.locks[id]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(l.locks, id)
	}
}

// Lock implements Locker
func (l *LocalLocker) Lock(ctx context.Context, threadID string) (UnlockFunc, error) {
	entry := l.acquire(threadID)
	select {
	case entry.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(threadID)
		return nil, errors.Wrapf(ctx.Err(), "failed to lock thread %s", threadID)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.ch
			l.release(threadID)
		})
	}, nil
}

// Len returns the number of threads locked or waited for.
func (l *LocalLocker) Len() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return len(l.locks)
}

// RedisLocker is a Locker shared by the replicas of the service.
// The lock is a lease renewed while held, so a crashed holder
// releases it when the lease expires.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

// Default RedisLocker settings
const (
	DefaultLockTTL   = 30 * time.Second
	DefaultLockRetry = 100 * time.Millisecond
)

// NewRedisLocker returns RedisLocker.
// Keys are named <prefix>lock:<threadID>.
func NewRedisLocker(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &RedisLocker{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		retry:  DefaultLockRetry,
	}
}

var (
	releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`)

	renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end`)
)

// Key returns the Redis key of the thread lock.
func (l *RedisLocker) Key(threadID string) string {
	return l.prefix + "lock:" + threadID
}

// Lock implements Locker
func (l *RedisLocker) Lock(ctx context.Context, threadID string) (UnlockFunc, error) {
	key := l.Key(threadID)
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Wrapf(ctx.Err(), "failed to lock thread %s", threadID)
			}
			return nil, errors.Wrap(err, "redis error acquiring lock")
		}
		if ok {
			return l.held(key, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "failed to lock thread %s", threadID)
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) held(key, token string) UnlockFunc {
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(l.ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
				err := renewScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Err()
				cancel()
				if err != nil {
					logger.KV(xlog.WARNING, "reason", "renew_lock", "key", key, "err", err.Error())
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
				logger.KV(xlog.WARNING, "reason", "release_lock", "key", key, "err", err.Error())
			}
		})
	}
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "failed to generate lock token")
	}
	return hex.EncodeToString(b), nil
}

// Chain acquires the lockers in order and releases them in reverse order.
func Chain(lockers ...Locker) Locker {
	return chain(lockers)
}

type chain []Locker

func (c chain) Lock(ctx context.Context, threadID string) (UnlockFunc, error) {
	unlocks := make([]UnlockFunc, 0, len(c))
	releaseAll := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	for _, l := range c {
		unlock, err := l.Lock(ctx, threadID)
		if err != nil {
			releaseAll()
			return nil, err
		}
		unlocks = append(unlocks, unlock)
	}

	var once sync.Once
	return func() { once.Do(releaseAll) }, nil
}
