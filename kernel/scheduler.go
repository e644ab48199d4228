package kernel

import "pintos/internal/ilist"

// TimeSlice is the number of ticks a thread is allowed to run before the
// tick handler requests a yield on interrupt return (TIME_SLICE in the
// original devices/timer.c, carried verbatim as 4).
const TimeSlice = 4

// Scheduler holds every piece of process-wide scheduling state: the ready
// queue, the current and idle threads, the tid counter, and the
// deferred-destruction list. It is a single struct (rather than package
// globals) so tests can spin up an independent scheduler instance without
// cross-talk; Boot installs the process-wide instance hardware code runs
// against.
type Scheduler struct {
	ready       orderedThreadQueue
	current     *Thread
	idle        *Thread
	nextTID     int64
	toDestroy   []*Thread
	switchHook  func(out, in *Thread) // hardware context switch; nil in tests
	activateVAS func(t *Thread)       // hardware address-space activation; nil in tests
	destroyHook func(t *Thread)       // hardware page reclaim; nil in tests
}

type orderedThreadQueue = orderedQueue

// orderedQueue is the priority-ordered (descending, FIFO among ties)
// queue shape shared by the ready queue and every semaphore's waiter
// queue (§3's Ready queue / Semaphore invariants).
type orderedQueue struct {
	l ilist.List[*Thread]
}

func (o *orderedQueue) insert(t *Thread)          { o.l.Insert(t, readyLess) }
func (o *orderedQueue) popFront() (*Thread, bool) { return o.l.PopFront() }
func (o *orderedQueue) front() (*Thread, bool)     { return o.l.Front() }
func (o *orderedQueue) resort()                    { o.l.Resort(readyLess) }
func (o *orderedQueue) remove(t *Thread) bool {
	return o.l.Remove(func(c *Thread) bool { return c == t })
}
func (o *orderedQueue) len() int { return o.l.Len() }

func readyLess(a, b *Thread) bool { return a.eff > b.eff }

// NewScheduler constructs an empty scheduler with a freshly created idle
// thread as thread 1 (matching the teacher/original's convention that tid
// 0 and 1 are reserved for the bootstrap and idle threads).
func NewScheduler() *Scheduler {
	s := &Scheduler{nextTID: 2}
	idle := newThread(1, "idle", PriMin)
	idle.State = ThreadBlocked
	s.idle = idle
	return s
}

// SetCurrent installs t as the running thread without going through the
// scheduler (used once at boot to adopt the bootstrap thread as current).
func (s *Scheduler) SetCurrent(t *Thread) {
	t.State = ThreadRunning
	s.current = t
}

// Current returns the thread presently running.
func (s *Scheduler) Current() *Thread { return s.current }

// CreateThread allocates a new thread, places it on the ready queue, and
// implements the preemption-on-create rule: if the new thread's priority
// exceeds the creator's, the creator yields before returning.
func (s *Scheduler) CreateThread(name string, priority int, entry func(any), arg any) *Thread {
	id := s.nextTID
	s.nextTID++
	t := newThread(id, name, priority)
	t.entry = entry
	t.arg = arg

	g := DisableIntr()
	s.ready.insert(t)
	g.Release()

	if s.current != nil && t.eff > s.current.eff {
		s.Yield()
	}
	return t
}

// Yield moves the current thread from Running to Ready at its
// priority-ordered position and invokes Schedule.
func (s *Scheduler) Yield() {
	g := DisableIntr()
	cur := s.current
	if cur != s.idle {
		cur.State = ThreadReady
		s.ready.insert(cur)
	}
	s.schedule()
	g.Release()
}

// Block transitions the current thread to Blocked and invokes Schedule.
// Precondition: interrupts already disabled by the caller (sema_down and
// friends hold the guard across the state check and this call).
func (s *Scheduler) Block() {
	s.current.State = ThreadBlocked
	s.schedule()
}

// Unblock inserts t into the ready queue at its priority-ordered position
// and marks it Ready. If t's priority now exceeds the running thread's,
// the caller is responsible for yielding at the next safe boundary
// (immediately if not in interrupt context, otherwise on interrupt
// return) — see ShouldPreempt.
func (s *Scheduler) Unblock(t *Thread) {
	g := DisableIntr()
	t.State = ThreadReady
	s.ready.insert(t)
	g.Release()
}

// ShouldPreempt reports whether t's priority now exceeds the running
// thread's, i.e. whether an Unblock of t should be followed by a yield.
func (s *Scheduler) ShouldPreempt(t *Thread) bool {
	return s.current != nil && t.eff > s.current.eff
}

// Exit is fatal and unidirectional: it marks the current thread Dying and
// calls DoSchedule. With a real context switch DoSchedule never returns
// here; in the pure layer it does return, and Exit then panics.
func (s *Scheduler) Exit() {
	s.DoSchedule(ThreadDying)
	panic("unreachable: DoSchedule(ThreadDying) returned to the exiting thread")
}

// DoSchedule transitions the current thread's status then drains any
// pending destruction and calls Schedule.
func (s *Scheduler) DoSchedule(newStatus ThreadState) {
	g := DisableIntr()
	s.current.State = newStatus
	s.reapDestroyed()
	s.schedule()
	g.Release()
}

// reapDestroyed frees every thread queued for destruction by a previous
// schedule (the outgoing-Dying-thread's page, in the hardware build).
func (s *Scheduler) reapDestroyed() {
	if s.destroyHook != nil {
		for _, t := range s.toDestroy {
			s.destroyHook(t)
		}
	}
	s.toDestroy = s.toDestroy[:0]
}

// schedule picks the next thread to run, marks it Running, resets its
// slice counter, activates its address space if present, and dispatches
// via the context-switch hook. Precondition: interrupts disabled by the
// caller (Yield/Block/DoSchedule all hold the guard across this call).
func (s *Scheduler) schedule() {
	s.current.CheckCanary()

	next, ok := s.ready.popFront()
	if !ok {
		next = s.idle
	}

	outgoing := s.current
	outgoing.CheckCanary()

	if outgoing == next {
		outgoing.State = ThreadRunning
		return
	}

	next.State = ThreadRunning
	next.sliceTicks = 0
	s.current = next

	if outgoing.State == ThreadDying {
		s.toDestroy = append(s.toDestroy, outgoing)
	}

	if s.activateVAS != nil && next.proc != nil {
		s.activateVAS(next)
	}
	if s.switchHook != nil {
		s.switchHook(outgoing, next)
	}
}

// OnTick is called from the timer interrupt handler once per tick while
// the current thread is not the idle thread. It increments the
// per-thread slice counter and reports whether the interrupt epilogue
// should request a yield on return (TIME_SLICE ticks reached).
func (s *Scheduler) OnTick() (yieldOnReturn bool) {
	if s.current == s.idle {
		return false
	}
	s.current.sliceTicks++
	return s.current.sliceTicks >= TimeSlice
}

// Idle is the idle thread: runs with interrupts disabled, enables them,
// halts waiting for the next interrupt, and repeats. haltFn is the
// hardware `hlt` primitive; tests pass a no-op.
func (s *Scheduler) Idle(haltFn func()) {
	for {
		EnableIntr()
		if haltFn != nil {
			haltFn()
		}
		s.Yield()
	}
}
