package concurrency

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolRunsAllTasks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := NewWorkerPool(4, 16)
	pool.Start(ctx)

	var ran atomic.Int64
	for i := 0; i < 16; i++ {
		pool.Submit(func(ctx context.Context) {
			ran.Add(1)
		})
	}
	pool.Stop()

	assert.Equal(t, int64(16), ran.Load())
}

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := NewWorkerPool(2, 8)
	pool.Start(ctx)

	var cur, peak atomic.Int64
	var mu sync.Mutex
	for i := 0; i < 8; i++ {
		pool.Submit(func(ctx context.Context) {
			n := cur.Add(1)
			mu.Lock()
			if n > peak.Load() {
				peak.Store(n)
			}
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			cur.Add(-1)
		})
	}
	pool.Stop()

	assert.LessOrEqual(t, peak.Load(), int64(2))
}

func TestSemaphoreTryAcquire(t *testing.T) {
	s := NewSemaphore(2)

	require.True(t, s.TryAcquire(1))
	require.True(t, s.TryAcquire(1))
	assert.False(t, s.TryAcquire(1))

	s.Release(1)
	assert.True(t, s.TryAcquire(1))
}

func TestSemaphoreAcquireBlocksUntilRelease(t *testing.T) {
	s := NewSemaphore(1)
	require.True(t, s.TryAcquire(1))

	acquired := make(chan struct{})
	go func() {
		assert.NoError(t, s.Acquire(context.Background(), 1))
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("acquire succeeded while the semaphore was full")
	case <-time.After(20 * time.Millisecond):
	}

	s.Release(1)
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("acquire never observed the release")
	}
}

func TestSemaphoreAcquireHonorsCancellation(t *testing.T) {
	s := NewSemaphore(1)
	require.True(t, s.TryAcquire(1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, s.Acquire(ctx, 1))
}

func TestSafeGoRecoversPanic(t *testing.T) {
	done := make(chan struct{})
	SafeGo(context.Background(), func() {
		defer close(done)
		panic("boom")
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("panicking goroutine never finished")
	}
}
