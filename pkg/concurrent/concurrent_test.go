package concurrent

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_RunsSubmittedTasks(t *testing.T) {
	p := NewPool(4, 64)
	require.NoError(t, p.Start(context.Background()))

	var (
		wg    sync.WaitGroup
		count atomic.Int32
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(func() {
			defer wg.Done()
			count.Add(1)
		}))
	}
	wg.Wait()
	assert.Equal(t, int32(50), count.Load())

	require.NoError(t, p.Stop())
	assert.ErrorIs(t, p.Submit(func() {}), ErrPoolClosed)
}

func TestPool_ReportsFullQueue(t *testing.T) {
	p := NewPool(1, 1)
	require.NoError(t, p.Start(context.Background()))
	defer func() { _ = p.Stop() }()

	block := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(func() {
		close(started)
		<-block
	}))
	<-started

	require.NoError(t, p.Submit(func() {}))
	assert.ErrorIs(t, p.Submit(func() {}), ErrPoolFull)
	close(block)
}

func TestPool_StopDrainsQueue(t *testing.T) {
	p := NewPool(1, 8)

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Submit(func() { ran.Add(1) }))
	}
	require.NoError(t, p.Start(context.Background()))
	assert.ErrorIs(t, p.Start(context.Background()), ErrPoolStarted)

	require.NoError(t, p.Stop())
	assert.Equal(t, int32(5), ran.Load())
}

func TestPool_RecoversPanics(t *testing.T) {
	p := NewPool(1, 4)
	require.NoError(t, p.Start(context.Background()))

	done := make(chan struct{})
	require.NoError(t, p.Submit(func() { panic("handler bug") }))
	require.NoError(t, p.Submit(func() { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker died after panic")
	}
	require.NoError(t, p.Stop())
	assert.Equal(t, uint64(1), p.Panics())
}

func TestExecutorFunc(t *testing.T) {
	var called bool
	exec := ExecutorFunc(func(task func()) error {
		task()
		return nil
	})
	require.NoError(t, exec.Submit(func() { called = true }))
	assert.True(t, called)
}
