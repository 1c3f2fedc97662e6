// Package taskpool implements a thread-safe M:N cooperative task runtime:
// user-level tasks (stackful coroutines) multiplexed over OS threads grouped
// into task-pools.
//
// A Task is an independent, cooperatively-suspendable execution context. A
// Pool is a FIFO ready-queue plus the set of worker goroutines that dequeue
// and resume tasks. Tasks migrate between pools explicitly via
// (*Pool).Schedule; there is no preemption and no work-stealing.
//
// Suspension only happens at explicit API boundaries: Yield, Schedule,
// (*Condition).Wait, (*Semaphore).Down, (*Task).Wait, and implicitly when a
// task's entry function returns. Go offers no supported way to hand-roll a
// second stack, so each Task owns a dedicated goroutine that blocks on a
// handshake channel pair whenever it is not resumed — see the Task type's
// documentation in task.go for the exact mechanics.
package taskpool
