package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLocker(client, "checkout:lock:"), mr
}

func TestRedisLocker_ExclusiveUntilReleased(t *testing.T) {
	locker, mr := setupTestRedis(t)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "order_1", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("checkout:lock:order_1"))

	_, err = locker.Acquire(ctx, "order_1", 10*time.Second)
	assert.ErrorIs(t, err, ErrLocked)

	other, err := locker.Acquire(ctx, "order_2", 10*time.Second)
	require.NoError(t, err)
	other()

	release()
	assert.False(t, mr.Exists("checkout:lock:order_1"))

	again, err := locker.Acquire(ctx, "order_1", 10*time.Second)
	require.NoError(t, err)
	again()
}

func TestRedisLocker_ExpiredLockCanBeRetaken(t *testing.T) {
	locker, mr := setupTestRedis(t)
	ctx := context.Background()

	stale, err := locker.Acquire(ctx, "order_1", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	fresh, err := locker.Acquire(ctx, "order_1", 10*time.Second)
	require.NoError(t, err)

	// Releasing the stale holder must not drop the new holder's lock.
	stale()
	assert.True(t, mr.Exists("checkout:lock:order_1"))
	fresh()
	assert.False(t, mr.Exists("checkout:lock:order_1"))
}

func TestRedisLocker_ServerDown(t *testing.T) {
	locker, mr := setupTestRedis(t)
	mr.Close()

	_, err := locker.Acquire(context.Background(), "order_1", time.Second)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrLocked)
}

func TestLocalLocker(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	_, err = l.Acquire(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, ErrLocked)
	release()

	_, err = l.Acquire(ctx, "k", time.Minute)
	assert.NoError(t, err)
}
