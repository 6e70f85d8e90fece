package slotlock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLocker_Exclusive(t *testing.T) {
	l := NewMemoryLocker(time.Second)
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Lock(ctx, "D|2025-01-10|10:00 AM")
			if err != nil {
				t.Errorf("lock: %v", err)
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
	assert.Equal(t, 0, l.held(), "keys are dropped once unused")
}

func TestMemoryLocker_Timeout(t *testing.T) {
	l := NewMemoryLocker(20 * time.Millisecond)
	ctx := context.Background()

	release, err := l.Lock(ctx, "k")
	require.NoError(t, err)

	_, err = l.Lock(ctx, "k")
	assert.True(t, errors.Is(err, ErrTimeout))

	other, err := l.Lock(ctx, "other")
	require.NoError(t, err, "different keys do not contend")
	other()

	release()
	release()
	again, err := l.Lock(ctx, "k")
	require.NoError(t, err)
	again()
}

func TestMemoryLocker_ContextCancel(t *testing.T) {
	l := NewMemoryLocker(time.Second)
	release, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedisLocker(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	l := NewRedisLocker(rdb, RedisConfig{TTL: time.Second, Wait: 50 * time.Millisecond, Prefix: "test"})
	ctx := context.Background()

	release, err := l.Lock(ctx, "D|2025-01-10|10:00 AM")
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:D|2025-01-10|10:00 AM"))

	_, err = l.Lock(ctx, "D|2025-01-10|10:00 AM")
	assert.ErrorIs(t, err, ErrTimeout)

	release()
	assert.False(t, mr.Exists("test:D|2025-01-10|10:00 AM"))

	second, err := l.Lock(ctx, "D|2025-01-10|10:00 AM")
	require.NoError(t, err)
	second()
}

func TestRedisLocker_ExpiredLeaseIsNotReleasedByOldHolder(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	l := NewRedisLocker(rdb, RedisConfig{TTL: time.Second, Wait: 50 * time.Millisecond})
	ctx := context.Background()

	stale, err := l.Lock(ctx, "k")
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	fresh, err := l.Lock(ctx, "k")
	require.NoError(t, err)

	stale()
	assert.True(t, mr.Exists("slotlock:k"), "stale release must not drop the new holder's lease")
	fresh()
	assert.False(t, mr.Exists("slotlock:k"))
}
