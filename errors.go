package taskpool

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the public API. All other failures (corrupted
// intrusive-list links, refcount underflow, double ownership, ...) are
// structural invariant violations and are reported via StructuralError,
// which is always raised through panic rather than returned.
var (
	// ErrInvalidArgument is returned for precondition violations: Schedule
	// or (*Semaphore).Down called with no current task,
	// (*Pool).Execute called from inside a task, (*Pool).Stop called by the
	// worker it targets, and similar caller misuse.
	ErrInvalidArgument = errors.New("taskpool: invalid argument")

	// ErrOutOfMemory is returned by TaskCreate when the requested stack
	// reservation cannot be allocated.
	ErrOutOfMemory = errors.New("taskpool: out of memory")

	// ErrNotFound is returned by (*Pool).Stop when no worker with the given
	// id is currently registered.
	ErrNotFound = errors.New("taskpool: not found")
)

// StructuralError represents a corrupted runtime invariant: a list link that
// should be linked isn't (or vice versa), a refcount that underflowed, a task
// finalized while still owned, and so on. These are bugs, not recoverable
// runtime conditions — callers should not attempt to handle them, which is
// why every raise site panics with a StructuralError rather than returning
// one.
type StructuralError struct {
	// Op names the operation that detected the violation, e.g.
	// "task.finalize" or "list.erase".
	Op string
	// Msg describes the violated invariant.
	Msg string
}

func (e StructuralError) Error() string {
	return fmt.Sprintf("taskpool: structural invariant violated in %s: %s", e.Op, e.Msg)
}

// check panics with a StructuralError if cond is false. Used at lock-release
// boundaries to assert invariants that must hold whenever a lock changes
// hands.
func check(op string, cond bool, msg string) {
	if !cond {
		panic(StructuralError{Op: op, Msg: msg})
	}
}
