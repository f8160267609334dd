package distlock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestLocalLocker_MutualExclusion(t *testing.T) {
	l := NewLocalLocker()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Lock(context.Background(), "contact:1")
			if err != nil {
				t.Error(err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
	assert.Empty(t, l.slots, "slots are dropped once released")
}

func TestLocalLocker_ContextTimeout(t *testing.T) {
	l := NewLocalLocker()
	release, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocalLocker_IndependentKeys(t *testing.T) {
	l := NewLocalLocker()
	r1, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer r1()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	r2, err := l.Lock(ctx, "b")
	require.NoError(t, err)
	r2()
}

func TestRedisLock_AcquireRelease(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()

	a := NewRedisLock(client, "sweep", time.Minute)
	b := NewRedisLock(client, "sweep", time.Minute)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("outreach:lock:sweep"))

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must not acquire")

	// b does not own the lock, so its release is a no-op
	require.NoError(t, b.Release(ctx))
	assert.True(t, mr.Exists("outreach:lock:sweep"))

	require.NoError(t, a.Release(ctx))
	assert.False(t, mr.Exists("outreach:lock:sweep"))
}

func TestRedisLocker_WaitsForRelease(t *testing.T) {
	_, client := newTestRedis(t)
	l := NewRedisLocker(client, time.Minute)

	release, err := l.Lock(context.Background(), "contact:9")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		r, err := l.Lock(context.Background(), "contact:9")
		if err == nil {
			close(acquired)
			r()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock returned while the key was held")
	case <-time.After(60 * time.Millisecond):
	}
	release()

	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("second Lock never acquired")
	}
}
