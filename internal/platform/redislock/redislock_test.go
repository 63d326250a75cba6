package redislock

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ophtha-dss/internal/consultation"
)

var _ consultation.Locker = (*Locker)(nil)

func testClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client, err := NewClient(context.Background(), addr, os.Getenv("REDIS_PASSWORD"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestLocker_MutualExclusion(t *testing.T) {
	l := New(testClient(t), 5*time.Second)
	key := "test:" + uuid.NewString()

	var (
		wg      sync.WaitGroup
		holders int32
		overlap int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), key)
			if !assert.NoError(t, err) {
				return
			}
			if atomic.AddInt32(&holders, 1) > 1 {
				atomic.StoreInt32(&overlap, 1)
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&holders, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Zero(t, overlap)
}

func TestLocker_WaitRespectsContext(t *testing.T) {
	l := New(testClient(t), 5*time.Second)
	key := "test:" + uuid.NewString()

	unlock, err := l.Lock(context.Background(), key)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, key)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocker_ReleaseKeepsForeignToken(t *testing.T) {
	client := testClient(t)
	l := New(client, 5*time.Second)
	key := "test:" + uuid.NewString()
	ctx := context.Background()

	unlock, err := l.Lock(ctx, key)
	require.NoError(t, err)

	// Simulate expiry followed by another holder taking the key.
	require.NoError(t, client.Set(ctx, l.prefix+key, "someone-else", time.Minute).Err())
	unlock()

	val, err := client.Get(ctx, l.prefix+key).Result()
	require.NoError(t, err)
	assert.Equal(t, "someone-else", val)
	client.Del(ctx, l.prefix+key)
}
