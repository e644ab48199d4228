package kernel

import "pintos/internal/ilist"

// Semaphore is a counting semaphore whose waiter queue is kept in
// effective-priority order, re-sorted immediately before a waiter is
// popped so a priority raised by donation while queued is honored.
type Semaphore struct {
	count   uint
	waiters ilist.List[*Thread]
	sched   *Scheduler
}

// NewSemaphore returns a semaphore with the given initial count, bound to
// sched for blocking/waking (sema_init).
func NewSemaphore(sched *Scheduler, value uint) *Semaphore {
	return &Semaphore{count: value, sched: sched}
}

// Down blocks the calling thread until the semaphore's count is
// positive, then atomically decrements it (sema_down). Runs the whole
// check-and-block sequence with interrupts disabled.
func (s *Semaphore) Down() {
	g := DisableIntr()
	for s.count == 0 {
		s.waiters.Insert(s.sched.Current(), donorLess)
		s.sched.Block()
	}
	s.count--
	g.Release()
}

// TryDown is the non-blocking variant: decrements and returns true only
// if the count was already positive.
func (s *Semaphore) TryDown() bool {
	g := DisableIntr()
	defer g.Release()
	if s.count == 0 {
		return false
	}
	s.count--
	return true
}

// Up wakes the highest-effective-priority waiter, if any, then
// increments the count, then attempts a courtesy yield so a higher
// priority woken thread runs promptly (sema_up).
func (s *Semaphore) Up() {
	g := DisableIntr()
	var woken *Thread
	if !s.waiters.Empty() {
		// Re-sort: a waiter's priority may have changed via donation
		// since it queued.
		s.waiters.Resort(donorLess)
		woken, _ = s.waiters.PopFront()
	}
	s.count++
	if woken != nil {
		s.sched.Unblock(woken)
	}
	g.Release()

	if woken != nil && s.sched.ShouldPreempt(woken) {
		s.sched.Yield()
	}
}

// Value returns the current count, for tests and invariant checks only.
func (s *Semaphore) Value() uint { return s.count }

// WaiterCount returns the number of blocked waiters, for tests only.
func (s *Semaphore) WaiterCount() int { return s.waiters.Len() }

// Lock is a non-recursive mutex built from a binary semaphore, with
// priority donation. Invariant: holder == nil iff sema.count == 1.
type Lock struct {
	holder *Thread
	sema   *Semaphore
	sched  *Scheduler
}

// NewLock returns an unheld lock bound to sched.
func NewLock(sched *Scheduler) *Lock {
	return &Lock{sema: NewSemaphore(sched, 1), sched: sched}
}

// Holder returns the thread currently holding the lock, or nil.
func (l *Lock) Holder() *Thread { return l.holder }

const maxDonationChainDepth = 64

// Acquire donates the caller's priority along the holder chain if
// needed, then blocks on the binary semaphore, then claims the lock.
// Acquiring a lock already held by the caller is an assertion failure
// (non-recursive).
func (l *Lock) Acquire() {
	cur := l.sched.Current()
	if l.holder == cur {
		KernelPanic("lock_acquire: thread %q already holds this lock", cur.Name)
	}

	if l.holder != nil && cur.eff > l.holder.eff {
		cur.WaitingOn = l
		chainDonate(cur, l.holder)
		l.holder.addDonor(cur)
	}

	l.sema.Down()
	cur.WaitingOn = nil
	l.holder = cur
}

// chainDonate walks holder -> holder.WaitingOn.holder -> ... raising each
// thread's effective priority to donorPriority, stopping at the first
// thread whose effective priority already dominates, or at a thread not
// itself waiting on a lock. Bounded to guard against a pathologically
// deep (and, per spec, disallowed-by-construction) chain.
func chainDonate(donor, holder *Thread) {
	donorPriority := donor.eff
	for depth := 0; depth < maxDonationChainDepth; depth++ {
		if holder == nil || holder.eff >= donorPriority {
			return
		}
		holder.eff = donorPriority
		next := holder.WaitingOn
		if next == nil {
			return
		}
		holder = next.holder
	}
}

// Release removes every donor waiting specifically on this lock (they
// will re-donate on their own next acquire), recomputes the caller's
// effective priority, clears the holder, and wakes the semaphore's next
// waiter.
func (l *Lock) Release() {
	cur := l.sched.Current()
	if l.holder != cur {
		KernelPanic("lock_release: thread %q does not hold this lock", cur.Name)
	}
	cur.removeDonorsWaitingOn(l)
	l.holder = nil
	l.sema.Up()
}

// CondVar is a condition variable whose wait queue is a list of
// per-waiter binary semaphores ordered so the front belongs to the
// highest-effective-priority waiting thread.
type CondVar struct {
	waiters ilist.List[*condWaiter]
	sched   *Scheduler
}

type condWaiter struct {
	thread *Thread
	sema   *Semaphore
}

// NewCondVar returns an empty condition variable bound to sched.
func NewCondVar(sched *Scheduler) *CondVar {
	return &CondVar{sched: sched}
}

func condWaiterLess(a, b *condWaiter) bool { return a.thread.eff > b.thread.eff }

// Wait atomically releases lock and blocks the caller until Signal or
// Broadcast wakes it, then reacquires lock before returning
// (cond_wait). A fresh binary semaphore is used per wait so a signal
// wakes exactly one specific waiter.
func (c *CondVar) Wait(lock *Lock) {
	w := &condWaiter{thread: c.sched.Current(), sema: NewSemaphore(c.sched, 0)}

	g := DisableIntr()
	c.waiters.Insert(w, condWaiterLess)
	g.Release()

	lock.Release()
	w.sema.Down()
	lock.Acquire()
}

// Signal re-sorts the waiter queue (priorities may have shifted since
// queueing) and wakes the front waiter's semaphore, if any.
func (c *CondVar) Signal() {
	g := DisableIntr()
	c.waiters.Resort(condWaiterLess)
	w, ok := c.waiters.PopFront()
	g.Release()
	if ok {
		w.sema.Up()
	}
}

// Broadcast repeats Signal until the waiter queue is empty.
func (c *CondVar) Broadcast() {
	for {
		g := DisableIntr()
		empty := c.waiters.Empty()
		g.Release()
		if empty {
			return
		}
		c.Signal()
	}
}
