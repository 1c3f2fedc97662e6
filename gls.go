package taskpool

import (
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
)

// This file implements "current task"/"current worker" lookup the way a
// thread-local slot per OS thread would on a platform with real OS threads.
// Go does not expose OS thread identity to user code (goroutines are not
// threads and are freely rescheduled across them), so the substitute used
// throughout this module is a goroutine-local map keyed by the running
// goroutine's id, via the same stack-trace-derived id technique used
// elsewhere for goroutine-local storage. The id is parsed out of
// runtime.Stack on every bind, unbind and lookup, so every currentTask call
// (each Yield, Schedule, (*Condition).Wait, (*Semaphore).Down and Execute)
// and every currentWorker call (each Stop) pays for one parse.
//
// Two independent maps exist: one binding a goroutine to the Task it is
// dedicated to (set once at the task's first resume, cleared when the task
// completes — see task.go), and one
// binding a goroutine to the worker identity it is currently serving under
// (set for the duration of a Start/Execute call). A goroutine is in at most
// one of the two maps at a time: task goroutines never enter the worker map,
// and worker-loop goroutines never enter the task map.

var (
	taskByGoroutine   sync.Map // goroutine id (uint64) -> *Task
	workerByGoroutine sync.Map // goroutine id (uint64) -> *workerContext

	nextWorkerID atomic.Uint64
)

type workerContext struct {
	pool *Pool
	id   uint64
}

// goroutineID parses the numeric goroutine id out of runtime.Stack's header
// line ("goroutine 123 [running]:..."). It runs on every bind, unbind and
// lookup, including the currentTask check in each Yield and Schedule.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	s := string(buf[:n])
	// s starts with "goroutine <id> ["
	const prefix = "goroutine "
	if len(s) <= len(prefix) {
		return 0
	}
	s = s[len(prefix):]
	i := 0
	for i < len(s) && s[i] != ' ' {
		i++
	}
	id, _ := strconv.ParseUint(s[:i], 10, 64)
	return id
}

// bindCurrentTask permanently associates the calling goroutine with t. Called
// exactly once, at the top of the task's dedicated goroutine (task.go).
func bindCurrentTask(t *Task) {
	taskByGoroutine.Store(goroutineID(), t)
}

func unbindCurrentTask() {
	taskByGoroutine.Delete(goroutineID())
}

// currentTask returns the Task the calling goroutine is dedicated to, or nil
// if the caller is a native (worker or arbitrary) goroutine.
func currentTask() *Task {
	if v, ok := taskByGoroutine.Load(goroutineID()); ok {
		return v.(*Task)
	}
	return nil
}

// newWorkerID allocates a new process-wide worker identity. Callers assign
// it before the worker's goroutine starts, so it is available synchronously
// (Start returns it without needing to synchronize with the spawned
// goroutine).
func newWorkerID() uint64 {
	return nextWorkerID.Add(1)
}

// bindCurrentWorker associates the calling goroutine with the pool it is
// servicing as a worker with the given id, for the duration of the worker
// loop.
func bindCurrentWorker(p *Pool, id uint64) {
	workerByGoroutine.Store(goroutineID(), &workerContext{pool: p, id: id})
}

func unbindCurrentWorker() {
	workerByGoroutine.Delete(goroutineID())
}

// currentWorker returns the worker context for the calling goroutine, or nil
// if the caller is not currently inside a worker loop.
func currentWorker() *workerContext {
	if v, ok := workerByGoroutine.Load(goroutineID()); ok {
		return v.(*workerContext)
	}
	return nil
}

// GetCurrentTask returns the task the calling goroutine is executing as, or
// nil if the caller is not a task.
func GetCurrentTask() *Task {
	return currentTask()
}

// GetCurrentPool returns the pool the calling goroutine is currently
// servicing as a worker, or nil if the caller is not inside a worker loop.
func GetCurrentPool() *Pool {
	if w := currentWorker(); w != nil {
		return w.pool
	}
	return nil
}
