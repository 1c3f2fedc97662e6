package taskpool

// This file implements an intrusive doubly-linked list: O(1)
// insert/erase/move, with link storage embedded directly in the linked
// entity rather than boxed in a separate container node. Task embeds two
// listLink[Task] fields (originLink, waitingLink); Pool's worker registry
// embeds one per workerStub. Generics give us the back-pointer from link to
// owner without resorting to unsafe.Pointer offset arithmetic, while still
// keeping the link's storage inline in the owning struct (one allocation per
// Task/workerStub, not one per list membership).

// listLink is one node of an intrusive circular doubly-linked list. The
// owner field is set once, at the owning value's construction, and never
// changes; prev/next are nil exactly when the link is not currently part of
// any list.
type listLink[T any] struct {
	prev, next *listLink[T]
	owner      *T
}

// linked reports whether the link currently belongs to a list.
func (l *listLink[T]) linked() bool {
	return l.prev != nil
}

// list is an intrusive circular doubly-linked list, headed by a sentinel
// node (root) so push/pop/erase never need a nil check at the ends.
type list[T any] struct {
	root listLink[T]
	n    int
}

func (l *list[T]) init() {
	if l.root.prev == nil {
		l.root.prev = &l.root
		l.root.next = &l.root
	}
}

func (l *list[T]) empty() bool {
	l.init()
	return l.root.next == &l.root
}

func (l *list[T]) len() int {
	return l.n
}

func (l *list[T]) pushBack(n *listLink[T]) {
	l.init()
	check("list.pushBack", !n.linked(), "pushBack on an already-linked node")
	tail := l.root.prev
	n.prev = tail
	n.next = &l.root
	tail.next = n
	l.root.prev = n
	l.n++
}

func (l *list[T]) pushFront(n *listLink[T]) {
	l.init()
	check("list.pushFront", !n.linked(), "pushFront on an already-linked node")
	head := l.root.next
	n.next = head
	n.prev = &l.root
	head.prev = n
	l.root.next = n
	l.n++
}

// erase removes n from whatever list it belongs to. It is the caller's
// responsibility to know which list that is (erase itself is list-agnostic,
// and just needs to know n belongs to some list); n must belong to l.
func (l *list[T]) erase(n *listLink[T]) {
	check("list.erase", n.linked(), "erase on a node that is not linked")
	n.prev.next = n.next
	n.next.prev = n.prev
	n.prev = nil
	n.next = nil
	l.n--
}

func (l *list[T]) popFront() *T {
	l.init()
	if l.empty() {
		return nil
	}
	n := l.root.next
	l.erase(n)
	return n.owner
}

func (l *list[T]) popBack() *T {
	l.init()
	if l.empty() {
		return nil
	}
	n := l.root.prev
	l.erase(n)
	return n.owner
}

// find returns the first element for which pred returns true, or nil.
func (l *list[T]) find(pred func(*T) bool) *T {
	l.init()
	for n := l.root.next; n != &l.root; n = n.next {
		if pred(n.owner) {
			return n.owner
		}
	}
	return nil
}

// moveTo transfers every element of l onto the back of dst in a single O(1)
// splice, emptying l.
func (l *list[T]) moveTo(dst *list[T]) {
	l.init()
	dst.init()
	if l.empty() {
		return
	}
	first := l.root.next
	last := l.root.prev
	dstTail := dst.root.prev

	dstTail.next = first
	first.prev = dstTail
	last.next = &dst.root
	dst.root.prev = last

	dst.n += l.n

	l.root.next = &l.root
	l.root.prev = &l.root
	l.n = 0
}
