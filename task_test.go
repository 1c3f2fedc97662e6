package taskpool

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskCreate_RunsAndCompletes(t *testing.T) {
	p := PoolCreate(WithWorkers(2))
	defer p.Unref()

	var ran atomic.Bool
	task, err := TaskCreate(p, func(arg any) int {
		ran.Store(true)
		return arg.(int)
	}, 42, 0)
	require.NoError(t, err)

	task.Wait()
	assert.True(t, ran.Load())
	assert.Equal(t, 42, task.Result())
	assert.Nil(t, task.RecoveredPanic())
}

func TestTaskCreate_DefaultStackSize(t *testing.T) {
	p := PoolCreate(WithWorkers(1), WithDefaultStackSize(8192))
	defer p.Unref()

	task, err := TaskCreate(p, func(any) int { return 0 }, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 8192, task.stackSize)
	task.Wait()
}

func TestTaskCreate_OutOfMemoryOnBadStackSize(t *testing.T) {
	p := PoolCreate(WithWorkers(1))
	defer p.Unref()

	_, err := TaskCreate(p, func(any) int { return 0 }, nil, -1<<40)
	assert.ErrorIs(t, err, ErrOutOfMemory)
}

func TestTask_WaitIsIdempotent(t *testing.T) {
	p := PoolCreate(WithWorkers(1))
	defer p.Unref()

	task, err := TaskCreate(p, func(any) int { return 7 }, nil, 0)
	require.NoError(t, err)

	task.Wait()
	task.Wait() // must not block or panic
	assert.Equal(t, 7, task.Result())
}

func TestTask_WaitFromMultipleGoroutines(t *testing.T) {
	p := PoolCreate(WithWorkers(2))
	defer p.Unref()

	task, err := TaskCreate(p, func(any) int {
		time.Sleep(10 * time.Millisecond)
		return 1
	}, nil, 0)
	require.NoError(t, err)

	done := make(chan struct{}, 4)
	for i := 0; i < 4; i++ {
		go func() {
			task.Wait()
			done <- struct{}{}
		}()
	}
	for i := 0; i < 4; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("waiter did not observe completion in time")
		}
	}
}

func TestTask_PanicIsRecovered(t *testing.T) {
	p := PoolCreate(WithWorkers(1))
	defer p.Unref()

	task, err := TaskCreate(p, func(any) int {
		panic("boom")
	}, nil, 0)
	require.NoError(t, err)

	task.Wait()
	assert.Equal(t, -1, task.Result())
	assert.Equal(t, "boom", task.RecoveredPanic())
}

func TestTask_YieldInsideEntry(t *testing.T) {
	p := PoolCreate(WithWorkers(3))
	defer p.Unref()

	var counter atomic.Int64
	const n = 500

	task, err := TaskCreate(p, func(any) int {
		for i := 0; i < n; i++ {
			counter.Add(1)
			Yield()
		}
		return int(counter.Load())
	}, nil, 0)
	require.NoError(t, err)

	task.Wait()
	assert.EqualValues(t, n, counter.Load())
	assert.Equal(t, n, task.Result())
}

func TestGetCurrentTask_OutsideTaskIsNil(t *testing.T) {
	assert.Nil(t, GetCurrentTask())
}

func TestGetCurrentTask_InsideEntry(t *testing.T) {
	p := PoolCreate(WithWorkers(1))
	defer p.Unref()

	var seen *Task
	task, err := TaskCreate(p, func(any) int {
		seen = GetCurrentTask()
		return 0
	}, nil, 0)
	require.NoError(t, err)

	task.Wait()
	assert.Same(t, task, seen)
}

func TestPool_SizeTracksLiveTasks(t *testing.T) {
	p := PoolCreate(WithWorkers(2))
	defer p.Unref()

	release := make(chan struct{})
	task, err := TaskCreate(p, func(any) int {
		<-release
		return 0
	}, nil, 0)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return p.Size() == 1 }, time.Second, time.Millisecond)

	close(release)
	task.Wait()

	assert.Eventually(t, func() bool { return p.Size() == 0 }, time.Second, time.Millisecond)
}
