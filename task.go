package taskpool

import (
	"fmt"
	"sync/atomic"
)

// EntryFunc is a task's entry point: an opaque function and argument value.
// It runs exactly once, at the task's first resume, and its return value
// becomes the task's Result once Complete is true.
type EntryFunc func(arg any) int

var nextTaskID atomic.Uint64

// Task is an independent execution context with its own dedicated goroutine,
// cooperatively suspendable only at well-defined boundaries: Yield,
// Schedule, (*Condition).Wait, (*Semaphore).Down, (*Task).Wait, and
// implicitly when Entry returns.
//
// Suspend/resume mechanics: a Task owns an unbuffered handshake channel pair
// (resumeCh, doneCh). (*Task).execute (the worker side) sends on resumeCh
// and blocks on doneCh; (*Task).suspend (the task side, called from inside
// Entry or from Schedule/Wait/Down) sends on doneCh and blocks on resumeCh.
// Because both channels are unbuffered, exactly one side is ever runnable —
// the handshake gives the same single-owner-of-the-CPU guarantee a
// stackful-coroutine context switch would.
type Task struct {
	refcount Refcount

	id uint64

	stackSize int // declared stack reservation, bytes; informational only

	entry EntryFunc
	arg   any

	result   int
	complete bool

	completionLock Spinlock
	completionCond *Condition

	stackLock Spinlock

	owner  *Pool
	origin *Pool

	waitingLink listLink[Task] // ready queue, or a condvar/semaphore wait list
	originLink  listLink[Task] // origin pool's task set

	resumeCh chan struct{}
	doneCh   chan struct{}

	panicValue any // non-nil if Entry panicked; surfaced by Wait via RecoveredPanic
}

// TaskCreate allocates a task, reserves its stack, and inserts it into pool
// (which becomes both its origin and initial owner). stackSize <= 0 uses the
// pool's configured default. Returns ErrOutOfMemory if the requested
// reservation cannot be made.
func TaskCreate(pool *Pool, entry EntryFunc, arg any, stackSize int) (*Task, error) {
	if stackSize <= 0 {
		stackSize = pool.opts.defaultStackSize
	}
	stack, err := reserveStack(stackSize)
	if err != nil {
		return nil, err
	}
	_ = stack // the reservation itself is the observable effect; see reserveStack.

	t := &Task{
		id:        nextTaskID.Add(1),
		stackSize: stackSize,
		entry:     entry,
		arg:       arg,
		owner:     pool,
		origin:    pool,
		resumeCh:  make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	t.refcount.InitHeap()
	t.waitingLink.owner = t
	t.originLink.owner = t
	t.completionLock.init()
	t.stackLock.init()
	t.completionCond = NewCondition(&t.completionLock)

	go t.trampoline()

	pool.insertTask(t)

	return t, nil
}

// reserveStack validates and "allocates" a task's declared stack buffer. Go
// goroutines grow their own stacks on demand and cannot be pre-sized the way
// a fixed mmap'd stack buffer would be, so the byte slice here is
// bookkeeping — it exists so TaskCreate can fail with ErrOutOfMemory on a
// pathological request (e.g. a negative or absurdly large size), and so
// Task.stackSize reports something meaningful.
func reserveStack(size int) ([]byte, error) {
	const maxReasonableStack = 1 << 30 // 1GiB guards against accidental overflow-derived sizes
	if size <= 0 || size > maxReasonableStack {
		return nil, ErrOutOfMemory
	}
	return make([]byte, 0, size), nil
}

// ID returns a creation-order sequence number, unique for the process
// lifetime. Exists purely for logging and observability.
func (t *Task) ID() uint64 { return t.id }

// trampoline is the body of the task's dedicated goroutine. It blocks for
// the first resume, runs Entry exactly once, then performs the completion
// sequence (pool_erase) and exits.
func (t *Task) trampoline() {
	<-t.resumeCh
	bindCurrentTask(t)

	result, panicValue := t.runEntry()

	t.completionLock.Lock()
	t.result = result
	t.panicValue = panicValue
	t.complete = true
	t.completionCond.Broadcast()
	t.completionLock.Unlock()

	// pool_erase migrates back to origin if needed (a full suspend/resume
	// cycle through a worker of origin) and detaches t's bookkeeping, but
	// does not itself suspend — the final handshake below is this
	// goroutine's last, releasing whichever execute() call most recently
	// resumed it, after which the goroutine exits for good.
	t.pool_erase()

	unbindCurrentTask()
	if panicValue != nil {
		getGlobalLogger().Log(Entry{
			Level: LevelError, Category: "task", TaskID: t.id,
			Message: "task entry panicked", Err: fmt.Errorf("%v", panicValue),
		})
	}
	t.doneCh <- struct{}{}
}

func (t *Task) runEntry() (result int, panicValue any) {
	defer func() {
		if r := recover(); r != nil {
			panicValue = r
			result = -1
		}
	}()
	return t.entry(t.arg), nil
}

// execute is the worker-side half of a resume. It is only ever called by a
// worker loop goroutine with t popped off a ready queue.
func (t *Task) execute() {
	t.stackLock.Lock()
	t.refcount.Ref()
	owner := t.owner
	owner.refcount.Ref()

	t.resumeCh <- struct{}{}
	<-t.doneCh

	owner.unrefPool()
	t.unref()
	t.stackLock.Unlock()
}

// suspend is the task-side half of a context switch: call only from the
// task's own dedicated goroutine (i.e. while currentTask() == t).
func (t *Task) suspend() {
	t.doneCh <- struct{}{}
	<-t.resumeCh
}

// pool_erase migrates back to origin if the task ended up owned by a
// different pool, then detaches from the origin's task set and releases the
// origin and owner bindings. The migration, if any, is a full suspend/resume
// cycle (via Schedule); the caller handles the task's own final suspend once
// pool_erase returns.
func (t *Task) pool_erase() {
	if t.owner != t.origin {
		// Schedule requires a current task; trampoline runs on t's own
		// goroutine so currentTask() == t here.
		_ = t.origin.Schedule()
	}

	origin := t.origin
	origin.lock.Lock()
	origin.taskSet.erase(&t.originLink)
	origin.ntasks--
	origin.lock.Unlock()
	origin.unrefPool()
	t.unref()

	owner := t.owner
	owner.unrefPool()
	t.owner = nil
}

// Wait blocks the caller (task or native goroutine) until t's entry
// function has returned. Idempotent: returns immediately if already
// complete. Safe to call from any context, including concurrently from
// multiple goroutines.
func (t *Task) Wait() {
	t.completionLock.Lock()
	for !t.complete {
		t.completionCond.Wait()
	}
	t.completionLock.Unlock()
}

// Result returns the task's entry-function return value. Only meaningful
// after Wait returns (or after the caller otherwise knows the task
// completed); returns 0 for an incomplete task.
func (t *Task) Result() int {
	t.completionLock.Lock()
	defer t.completionLock.Unlock()
	return t.result
}

// RecoveredPanic returns the value recovered from a panicking Entry
// function, or nil if Entry returned normally (or the task hasn't completed
// yet). The runtime contract: a panic inside Entry is treated as the task
// returning -1, not as a crash of the worker that was resuming it — one
// misbehaving task must not take down its pool's workers.
func (t *Task) RecoveredPanic() any {
	t.completionLock.Lock()
	defer t.completionLock.Unlock()
	return t.panicValue
}

// Ref increments t's reference count.
func (t *Task) Ref() { t.refcount.Ref() }

// unref decrements t's reference count, finalizing when it reaches zero.
// Finalize only asserts its preconditions (owner is nil, both links are
// unlinked, the task is complete); nothing else is released. pool_erase's own
// unref never drops the last reference, because execute holds one for the
// duration of the resume: finalize runs in whichever of execute's release or
// the creator's Unref comes last.
func (t *Task) unref() {
	t.refcount.Unref("task.finalize", func(heapAllocated bool) {
		check("task.finalize", t.owner == nil, "finalize with non-nil owner")
		check("task.finalize", !t.waitingLink.linked(), "finalize with linked waitingLink")
		check("task.finalize", !t.originLink.linked(), "finalize with linked originLink")
		check("task.finalize", t.complete, "finalize before completion")
	})
}

// Unref is the exported form of unref, for callers holding an explicit Ref.
func (t *Task) Unref() { t.unref() }
