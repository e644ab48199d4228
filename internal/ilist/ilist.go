// Package ilist provides a small generic ordered container used for every
// queue in the kernel: the ready queue, the sleep queue, and each
// semaphore's and condition variable's waiter queue.
//
// The original Pintos lib/kernel/list.c is a single intrusive
// doubly-linked list type reused, via an embedded link field, by every
// kind of record that needs to sit on a queue. Go has no type-safe way to
// share one link field across unrelated struct kinds without resorting to
// unsafe offset arithmetic, so this package takes the redesign path noted
// in the kernel's design notes: each queue owns its own List[T], and a
// value is a member of at most one List[T] at a time by construction
// (nothing stops a caller from pushing the same value onto two lists, but
// nothing in this kernel ever does).
package ilist

// List is an ordered, mutable sequence of T. Ordering is entirely up to
// the caller: Insert walks the list with a caller-supplied less function
// and splices the new element in just before the first element that does
// not compare less than it, which keeps equal-keyed elements in FIFO
// order (the element that has been in the list longest stays at the
// front of its equal-key run).
type List[T any] struct {
	items []T
}

// Len returns the number of elements currently queued.
func (l *List[T]) Len() int { return len(l.items) }

// Empty reports whether the list has no elements.
func (l *List[T]) Empty() bool { return len(l.items) == 0 }

// PushBack appends v unconditionally (used for unordered lists such as a
// donor set before its first sort, or a thread's children list).
func (l *List[T]) PushBack(v T) {
	l.items = append(l.items, v)
}

// Insert splices v into the list at the position determined by less: v is
// placed immediately before the first existing element e for which
// less(v, e) is true. If no such element exists, v is appended at the
// back. Equal-keyed elements therefore keep insertion (FIFO) order.
func (l *List[T]) Insert(v T, less func(a, b T) bool) {
	for i, e := range l.items {
		if less(v, e) {
			l.items = append(l.items, v)
			copy(l.items[i+1:], l.items[i:])
			l.items[i] = v
			return
		}
	}
	l.items = append(l.items, v)
}

// Front returns the first element and true, or the zero value and false
// if the list is empty.
func (l *List[T]) Front() (T, bool) {
	var zero T
	if len(l.items) == 0 {
		return zero, false
	}
	return l.items[0], true
}

// PopFront removes and returns the first element.
func (l *List[T]) PopFront() (T, bool) {
	var zero T
	if len(l.items) == 0 {
		return zero, false
	}
	v := l.items[0]
	l.items = l.items[1:]
	return v, true
}

// Remove deletes the first element for which match returns true. Reports
// whether an element was removed.
func (l *List[T]) Remove(match func(T) bool) bool {
	for i, e := range l.items {
		if match(e) {
			l.items = append(l.items[:i], l.items[i+1:]...)
			return true
		}
	}
	return false
}

// Resort re-sorts the whole list with the given less function, preserving
// relative order among elements that compare equal (stable). Used where a
// waiter's priority may have changed underneath the queue via donation
// since it was inserted, e.g. immediately before sema_up pops its front.
func (l *List[T]) Resort(less func(a, b T) bool) {
	// Insertion sort: the queues involved are short (bounded by the
	// number of runnable/contending threads) and this keeps the sort
	// stable without importing sort.Slice's reflection-driven swap.
	for i := 1; i < len(l.items); i++ {
		v := l.items[i]
		j := i - 1
		for j >= 0 && less(v, l.items[j]) {
			l.items[j+1] = l.items[j]
			j--
		}
		l.items[j+1] = v
	}
}

// Each calls fn for every element in order. fn must not mutate the list.
func (l *List[T]) Each(fn func(T)) {
	for _, e := range l.items {
		fn(e)
	}
}

// ToSlice returns a copy of the queued elements in order.
func (l *List[T]) ToSlice() []T {
	out := make([]T, len(l.items))
	copy(out, l.items)
	return out
}
