package quota

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"datacleaner/internal/models"
)

func TestPolicyAllow(t *testing.T) {
	p := NewPolicy(DefaultFreeLimit)

	cases := []struct {
		role  models.UserRole
		count int
		want  bool
	}{
		{models.UserRoleFree, 0, true},
		{models.UserRoleFree, 2, true},
		{models.UserRoleFree, 3, false},
		{models.UserRoleFree, 10, false},
		{models.UserRolePro, 1000, true},
		{models.UserRoleAdmin, 1000, true},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, p.Allow(tc.role, tc.count), "%s/%d", tc.role, tc.count)
	}
}

func TestPolicyCharges(t *testing.T) {
	p := NewPolicy(0)
	require.Equal(t, DefaultFreeLimit, p.FreeLimit)
	require.True(t, p.Charges(models.UserRoleFree))
	require.False(t, p.Charges(models.UserRolePro))
	require.False(t, p.Charges(models.UserRoleAdmin))
}

func TestLocalLockerSerializesSameUser(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	var inside, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, 42)
			if err != nil {
				t.Error(err)
				return
			}
			defer unlock()

			n := atomic.AddInt32(&inside, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), peak)
	require.Empty(t, l.locks)
}

func TestLocalLockerTimesOut(t *testing.T) {
	l := NewLocalLocker()

	unlock, err := l.Lock(context.Background(), 7)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, 7)
	require.ErrorIs(t, err, ErrLockTimeout)

	// other users are independent
	other, err := l.Lock(context.Background(), 8)
	require.NoError(t, err)
	other()

	unlock()
	unlock()
	require.Empty(t, l.locks)
}

func TestKeepAliveExtendsUntilStopped(t *testing.T) {
	var calls int32
	stop := make(chan struct{})
	done := keepAlive(stop, 2*time.Millisecond, func(context.Context) (bool, error) {
		atomic.AddInt32(&calls, 1)
		return true, nil
	})

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 3 }, time.Second, time.Millisecond)
	close(stop)
	<-done

	after := atomic.LoadInt32(&calls)
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, after, atomic.LoadInt32(&calls))
}

func TestKeepAliveStopsWhenLockIsLost(t *testing.T) {
	var calls int32
	done := keepAlive(make(chan struct{}), time.Millisecond, func(context.Context) (bool, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return false, errors.New("connection reset")
		}
		return false, nil
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("refresh loop still running after the lock was lost")
	}
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
