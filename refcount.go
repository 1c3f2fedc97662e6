package taskpool

// Refcount is a two-bit-encoded reference count: the low bit records whether
// the owning value was independently heap-allocated versus embedded in a
// larger allocation; the remaining bits are the actual reference count, so
// increments and decrements operate in steps of two.
//
// In Go every value the runtime can reach is GC-managed, so there is no
// manual free step — but the bit-packed representation still lets a single
// release path serve both "embedded in a struct the caller preallocated"
// (via InitEmbedded) and "allocated on its own" (via InitHeap) uniformly.
// Unref passes the low bit to finalize as heapAllocated; the Task and Pool
// finalize callbacks receive it but do not act on it.
type Refcount struct {
	v word32
}

// InitHeap initializes the refcount for a value allocated independently
// (e.g. via new or a composite literal escaping to the heap): one reference,
// low bit set.
func (r *Refcount) InitHeap() {
	r.v.Store(3)
}

// InitEmbedded initializes the refcount for a value embedded in, and
// lifetime-bound to, a larger allocation: one reference, low bit clear.
func (r *Refcount) InitEmbedded() {
	r.v.Store(2)
}

// Ref atomically increments the reference count by one.
func (r *Refcount) Ref() {
	r.v.Add(2)
}

// Unref atomically decrements the reference count by one. If the count
// reaches zero, finalize is invoked exactly once. Unref panics with a
// StructuralError if the pre-decrement value observed was already zero or
// one's low-bit-only remainder (i.e. the count underflowed).
func (r *Refcount) Unref(op string, finalize func(heapAllocated bool)) {
	next := r.v.Add(^uint32(1)) // equivalent to subtracting 2
	check(op, next < 1<<31, "refcount underflow: unref on a value with no outstanding references")
	if next>>1 == 0 {
		finalize(next&1 == 1)
	}
}

// Count returns the current reference count (independent of the
// heap/embedded bit).
func (r *Refcount) Count() uint32 {
	return r.v.Load() >> 1
}
