package lock_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/championcart/backend/internal/lock"
)

func newLocker(t *testing.T) (lock.Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond}, mr
}

func TestWithLockSerializes(t *testing.T) {
	locker, _ := newLocker(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var order []string
	var mu sync.Mutex
	firstDone := make(chan struct{})
	releaseFirst := make(chan struct{})
	errs := make(chan error, 2)

	go func() {
		errs <- locker.WithLock(ctx, "refresh:haifa", time.Second, func(context.Context) error {
			mu.Lock()
			order = append(order, "first")
			mu.Unlock()
			close(firstDone)
			<-releaseFirst
			return nil
		})
	}()
	<-firstDone

	go func() {
		errs <- locker.WithLock(ctx, "refresh:haifa", time.Second, func(context.Context) error {
			mu.Lock()
			order = append(order, "second")
			mu.Unlock()
			return nil
		})
	}()
	close(releaseFirst)

	require.NoError(t, <-errs)
	require.NoError(t, <-errs)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"first", "second"}, order)
}

func TestTryWithLock(t *testing.T) {
	locker, mr := newLocker(t)
	ctx := context.Background()

	err := locker.TryWithLock(ctx, "refresh:haifa", time.Minute, func(ctx context.Context) error {
		require.True(t, mr.Exists("lock:refresh:haifa"))
		inner := locker.TryWithLock(ctx, "refresh:haifa", time.Minute, func(context.Context) error { return nil })
		require.ErrorIs(t, inner, lock.ErrLocked)
		return errors.New("boom")
	})
	require.EqualError(t, err, "boom")
	require.False(t, mr.Exists("lock:refresh:haifa"), "lock released after failing callback")
}

func TestWithLockHonoursContext(t *testing.T) {
	locker, mr := newLocker(t)
	require.NoError(t, mr.Set("lock:busy", "someone-else"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := locker.WithLock(ctx, "busy", time.Minute, func(context.Context) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
	got, _ := mr.Get("lock:busy")
	require.Equal(t, "someone-else", got)
}
