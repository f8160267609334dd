package distlock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker serializes work per key (e.g. "contact:42"). Lock blocks until
// the key is free or ctx is done; the returned func releases it.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

// LocalLocker is an in-process keyed mutex. Entries are reference counted
// and dropped once no goroutine holds or waits on the key.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker creates an empty in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]*slot)}
}

// Lock acquires key, waiting at most until ctx is done.
func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.drop(key, s)
		return nil, fmt.Errorf("lock %s: %w", key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.drop(key, s)
		})
	}, nil
}

func (l *LocalLocker) drop(key string, s *slot) {
	l.mu.Lock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
	l.mu.Unlock()
}

// RedisLocker serializes keys across processes with RedisLock, polling
// until the lock is free. The TTL bounds how long a crashed holder can
// block others.
type RedisLocker struct {
	client   *redis.Client
	ttl      time.Duration
	interval time.Duration
}

// NewRedisLocker creates a Redis-backed Locker.
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl, interval: 25 * time.Millisecond}
}

// Lock acquires key, retrying every interval until ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lock := NewRedisLock(l.client, key, l.ttl)
	for {
		ok, err := lock.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				// Release with a fresh context: the caller's may already be done.
				rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				lock.Release(rctx)
			}, nil
		}
		timer := time.NewTimer(l.interval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("lock %s: %w", key, ctx.Err())
		}
	}
}
