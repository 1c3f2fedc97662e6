package taskpool

// Semaphore is a counting semaphore: Down blocks only task callers (native
// goroutines are not expected to block on it); Up is callable from any
// context.
type Semaphore struct {
	lock    Spinlock
	count   int64
	waiters list[Task]
}

// NewSemaphore creates a Semaphore with the given initial count.
func NewSemaphore(initial int64) *Semaphore {
	s := &Semaphore{count: initial}
	s.lock.init()
	return s
}

// Down blocks the calling task until a unit is available, consuming one.
// Returns ErrInvalidArgument if called from a native (non-task) goroutine.
func (s *Semaphore) Down() error {
	t := currentTask()
	if t == nil {
		return ErrInvalidArgument
	}
	s.lock.Lock()
	if s.count > 0 {
		s.count--
		s.lock.Unlock()
		return nil
	}
	s.waiters.pushBack(&t.waitingLink)
	s.lock.Unlock()
	t.suspend()
	return nil
}

// Up releases a unit: if a task is waiting, it is woken (re-queued onto its
// owner pool) without the count ever incrementing; otherwise the count is
// incremented. Callable from any context.
func (s *Semaphore) Up() {
	s.lock.Lock()
	if t := s.waiters.popFront(); t != nil {
		s.lock.Unlock()
		requeueOnOwner(t)
		return
	}
	s.count++
	s.lock.Unlock()
}

// Count returns the current count (not including blocked waiters), for
// diagnostics.
func (s *Semaphore) Count() int64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.count
}

// Finalize asserts the semaphore has no outstanding waiters.
func (s *Semaphore) Finalize() {
	s.lock.Lock()
	defer s.lock.Unlock()
	check("semaphore.finalize", s.waiters.empty(), "finalize with outstanding waiters")
}

// requeueOnOwner re-queues a woken task onto its owner pool's ready queue
// and signals that pool's idle condvar. Shared by Semaphore.Up and
// Condition's non-aliased requeue path, since both need the same
// wake-a-sleeping-task-onto-its-owner behavior.
func requeueOnOwner(t *Task) {
	p := t.owner
	p.lock.Lock()
	p.ready.pushBack(&t.waitingLink)
	p.idleCond.Signal()
	p.metrics.recordWake()
	p.lock.Unlock()
}
