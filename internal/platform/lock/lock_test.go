package lock

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/bedflow/internal/platform/apperr"
)

func TestMemoryLocker_MutualExclusion(t *testing.T) {
	l := NewMemoryLocker(time.Second)
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), BedKey("b1"))
			if !assert.NoError(t, err) {
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
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Empty(t, l.slots, "slots should be cleaned up after release")
}

func TestMemoryLocker_TimeoutIsConflict(t *testing.T) {
	l := NewMemoryLocker(20 * time.Millisecond)
	unlock, err := l.Lock(context.Background(), BedKey("b1"))
	require.NoError(t, err)
	defer unlock()

	_, err = l.Lock(context.Background(), BedKey("b1"))
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func TestMemoryLocker_IndependentKeys(t *testing.T) {
	l := NewMemoryLocker(20 * time.Millisecond)
	u1, err := l.Lock(context.Background(), BedKey("b1"))
	require.NoError(t, err)
	defer u1()

	u2, err := l.Lock(context.Background(), BedKey("b2"))
	require.NoError(t, err)
	u2()
}

func TestMemoryLocker_UnlockIdempotent(t *testing.T) {
	l := NewMemoryLocker(20 * time.Millisecond)
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	unlock()
	unlock()

	again, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	again()
}

func TestAcquire_ReleasesOnFailure(t *testing.T) {
	l := NewMemoryLocker(20 * time.Millisecond)
	held, err := l.Lock(context.Background(), PatientKey("p1"))
	require.NoError(t, err)

	_, err = Acquire(context.Background(), l, BedKey("b1"), PatientKey("p1"))
	require.Error(t, err)
	held()

	// bed lock must have been released by the failed Acquire
	unlock, err := l.Lock(context.Background(), BedKey("b1"))
	require.NoError(t, err)
	unlock()
}

func TestRedisLocker(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	defer client.Close()

	l := NewRedisLocker(client, 5*time.Second, 50*time.Millisecond)
	unlock, err := l.Lock(context.Background(), BedKey("redis-test"))
	require.NoError(t, err)

	_, err = l.Lock(context.Background(), BedKey("redis-test"))
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	unlock()
	again, err := l.Lock(context.Background(), BedKey("redis-test"))
	require.NoError(t, err)
	again()
}
