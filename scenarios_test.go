package taskpool

import (
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEndToEnd_YieldCounter: one pool, 10 workers, one task that increments
// a shared counter 10,000 times with a yield between each increment. After
// the task completes the counter must be exactly 10,000 and Wait must
// return promptly.
func TestEndToEnd_YieldCounter(t *testing.T) {
	const n = 10000

	p := PoolCreate(WithWorkers(10), WithMetrics(true), WithTrace(true))
	defer p.Unref()

	var counter atomic.Int64
	task, err := TaskCreate(p, func(any) int {
		for i := 0; i < n; i++ {
			counter.Add(1)
			Yield()
		}
		return int(counter.Load())
	}, nil, 0)
	require.NoError(t, err)

	waitDone := make(chan struct{})
	go func() {
		task.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
	case <-time.After(30 * time.Second):
		t.Fatal("task did not complete in time")
	}

	assert.EqualValues(t, n, counter.Load())
	assert.Equal(t, n, task.Result())

	snap := p.Metrics()
	assert.GreaterOrEqual(t, snap.Resumes, int64(n))
}

// TestEndToEnd_CrossPoolPingPong: pools A (1 worker) and B (1 worker), one
// task created in A. The task loops 1,000 times alternating ownership
// between B and A, incrementing a per-pool counter on each arrival. After
// completion both counters must read 1,000 and the task's origin must
// remain A regardless of how many times it migrated.
func TestEndToEnd_CrossPoolPingPong(t *testing.T) {
	const n = 1000

	a := PoolCreate(WithWorkers(1))
	b := PoolCreate(WithWorkers(1))
	defer a.Unref()
	defer b.Unref()

	var nA, nB atomic.Int64
	task, err := TaskCreate(a, func(any) int {
		for i := 0; i < n; i++ {
			_ = b.Schedule()
			nB.Add(1)
			_ = a.Schedule()
			nA.Add(1)
		}
		return 0
	}, nil, 0)
	require.NoError(t, err)

	waitDone := make(chan struct{})
	go func() {
		task.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
	case <-time.After(30 * time.Second):
		t.Fatal("task did not complete in time")
	}

	assert.EqualValues(t, n, nA.Load())
	assert.EqualValues(t, n, nB.Load())
	assert.Same(t, a, task.origin)
}

// TestEndToEnd_WorkerStopMidIdle: start 4 workers on a pool holding a single
// task that yields forever; stop each worker in turn. Every Stop call must
// succeed, and the task must keep making progress on whichever workers
// remain, right down to the last one.
func TestEndToEnd_WorkerStopMidIdle(t *testing.T) {
	p := PoolCreate()
	defer p.Unref()

	ids := make([]uint64, 4)
	for i := range ids {
		id, err := p.Start()
		require.NoError(t, err)
		ids[i] = id
	}

	stopAll := make(chan struct{})
	var resumes atomic.Int64
	task, err := TaskCreate(p, func(any) int {
		for {
			resumes.Add(1)
			select {
			case <-stopAll:
				return 0
			default:
			}
			Yield()
		}
	}, nil, 0)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return resumes.Load() > 0 }, time.Second, time.Millisecond)

	for i, id := range ids[:3] {
		require.Eventuallyf(t, func() bool {
			return p.Stop(id) == nil
		}, time.Second, time.Millisecond, "stop of worker %d (index %d) did not succeed", id, i)
	}

	// The task must still be making progress on the one surviving worker.
	before := resumes.Load()
	require.Eventually(t, func() bool { return resumes.Load() > before }, time.Second, time.Millisecond)

	close(stopAll)
	task.Wait()

	require.Eventually(t, func() bool {
		return p.Stop(ids[3]) == nil
	}, time.Second, time.Millisecond)
}

// TestEndToEnd_EchoOverRealSockets is a scaled-down application-level
// echo-server exercise: a listener task accepts clients on a real
// net.Listener, spawning one server task per connection; each client
// exchanges a fixed number of messages with its server task in lockstep.
// The task-pool runtime has no built-in I/O reactor, so server tasks do
// ordinary blocking reads inside their entry function. Since a blocking read
// is not one of the cooperative suspension points, a server task occupies
// its worker for its entire lifetime rather than yielding between messages;
// cpuPool is sized with enough workers that every client's server task can
// be admitted without the later clients timing out waiting for one to free
// up.
func TestEndToEnd_EchoOverRealSockets(t *testing.T) {
	const (
		clients         = 20
		messagesPerPair = 10
	)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	ioPool := PoolCreate(WithWorkers(2))
	cpuPool := PoolCreate(WithWorkers(clients))
	defer ioPool.Unref()
	defer cpuPool.Unref()

	var nSent, nReceived atomic.Int64
	var serversDone atomic.Int64

	listener, err := TaskCreate(ioPool, func(any) int {
		for i := 0; i < clients; i++ {
			conn, err := ln.Accept()
			if err != nil {
				return -1
			}
			_, err = TaskCreate(cpuPool, func(any) int {
				defer conn.Close()
				defer serversDone.Add(1)
				buf := make([]byte, 64)
				for j := 0; j < messagesPerPair; j++ {
					n, err := conn.Read(buf)
					if err != nil {
						return -1
					}
					nReceived.Add(1)
					if _, err := conn.Write(buf[:n]); err != nil {
						return -1
					}
					nSent.Add(1)
				}
				return 0
			}, conn, 0)
			if err != nil {
				conn.Close()
			}
		}
		return 0
	}, nil, 0)
	require.NoError(t, err)

	for i := 0; i < clients; i++ {
		go func() {
			conn, err := net.Dial("tcp", ln.Addr().String())
			if err != nil {
				return
			}
			defer conn.Close()
			buf := make([]byte, 64)
			msg := []byte("ping")
			for j := 0; j < messagesPerPair; j++ {
				if _, err := conn.Write(msg); err != nil {
					return
				}
				nSent.Add(1)
				n, err := conn.Read(buf)
				if err != nil {
					return
				}
				nReceived.Add(1)
				_ = n
			}
		}()
	}

	listenerDone := make(chan struct{})
	go func() {
		listener.Wait()
		close(listenerDone)
	}()

	select {
	case <-listenerDone:
	case <-time.After(30 * time.Second):
		t.Fatal("listener did not finish accepting all clients in time")
	}

	require.Eventually(t, func() bool {
		return serversDone.Load() == clients
	}, 10*time.Second, 10*time.Millisecond)

	assert.EqualValues(t, 2*clients*messagesPerPair, nSent.Load())
	assert.EqualValues(t, 2*clients*messagesPerPair, nReceived.Load())
}
