package taskpool

import "runtime"

// Spinlock is a thin CAS spinlock: a 32-bit word valued {1 = free, 0 =
// held}. The zero value is held, not free — embedders must call init (or
// use NewSpinlock for a standalone lock) before first use. Every type in
// this package that embeds one by value does so in its own constructor.
type Spinlock struct {
	state word32
}

// NewSpinlock returns a free Spinlock.
func NewSpinlock() *Spinlock {
	s := &Spinlock{}
	s.init()
	return s
}

// init sets an embedded Spinlock field to the free state. Every type that
// embeds a Spinlock by value (rather than holding a *Spinlock obtained from
// NewSpinlock) must call this once, at construction, since the zero value of
// word32 is 0 (held) under this package's 1-free/0-held convention.
func (s *Spinlock) init() {
	s.state.Store(1)
}

// Lock busy-spins until the free(1)->held(0) transition succeeds.
//
// Real OS threads spinning on a CAS eventually get descheduled by the kernel
// scheduler and let the lock holder run. Goroutines share a fixed set of Ps,
// so an uncooperative spin can starve the very goroutine holding the lock
// when GOMAXPROCS is small. runtime.Gosched is called between attempts to
// preserve the "short critical sections only" contract under Go's scheduler;
// this has no effect on the lock's observable semantics.
func (s *Spinlock) Lock() {
	for !s.state.CompareAndSwap(1, 0) {
		runtime.Gosched()
	}
}

// Unlock stores the lock back to the free state.
func (s *Spinlock) Unlock() {
	s.state.Store(1)
}

// Held reports whether the lock is currently held. Advisory only — the
// result may be stale by the time the caller observes it.
func (s *Spinlock) Held() bool {
	return s.state.Load() == 0
}
