package taskpool

import "sync/atomic"

// Go's sync/atomic already provides sequentially-consistent operations over
// machine words, so refcount.go and spinlock.go use atomic.Uint32 directly
// rather than hand-rolling CAS loops over a raw word. The only thing worth a
// named alias is the word type shared by both, so a reader can see at a
// glance which fields participate in lock-free bookkeeping versus plain
// pool/task state protected by a spinlock.

// word32 is the storage type shared by Refcount and Spinlock: a 32-bit word
// operated on exclusively through sync/atomic, never read or written
// directly.
type word32 = atomic.Uint32
