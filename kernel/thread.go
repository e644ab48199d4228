package kernel

import "pintos/internal/ilist"

// Priority bounds, carried verbatim from include/threads/thread.h.
const (
	PriMin     = 0
	PriDefault = 31
	PriMax     = 63
)

// ThreadCanary is the stack-overflow sentinel written at thread creation
// and checked at every scheduling boundary (CheckCanary). A real build
// stores this in the last word before the stack's high end on the
// thread's page.
const ThreadCanary uint64 = 0xcd6abf27b1f8b9d3

// ThreadState is one of the four states a Thread's lifecycle can be in.
type ThreadState int

const (
	ThreadRunning ThreadState = iota
	ThreadReady
	ThreadBlocked
	ThreadDying
)

func (s ThreadState) String() string {
	switch s {
	case ThreadRunning:
		return "running"
	case ThreadReady:
		return "ready"
	case ThreadBlocked:
		return "blocked"
	case ThreadDying:
		return "dying"
	default:
		return "unknown"
	}
}

// Thread is the kernel's per-thread control block. In the hardware build
// this struct is placed at the base of the thread's own page and its
// kernel stack grows down from the top of that same page; the fields here are exactly the ones spec.md's data model names.
type Thread struct {
	ID       int64
	Name     string
	State    ThreadState
	priority int // original priority, set at create or by SetPriority
	eff      int // effective priority: max(priority, donors' eff)
	WakeTick int64

	// WaitingOn is the lock this thread is blocked trying to acquire, or
	// nil. Combined with each lock's Holder field this is the edge set
	// donation chains are walked over.
	WaitingOn *Lock

	// donors is the set of threads that have raised this thread's
	// effective priority by blocking on a lock it holds, ordered by
	// donor effective priority descending as of each donor's insertion
	// (addDonor). Empty when no donations are live.
	donors ilist.List[*Thread]

	canary uint64

	sliceTicks int // ticks run so far in the current TIME_SLICE epoch

	// entry/arg are the kernel-thread trampoline's function and argument,
	// preloaded at create time so the first context switch into this
	// thread enters the trampoline with them already in place (§4.C).
	entry func(any)
	arg   any

	// Set by process.go for a user process thread; nil for kernel threads.
	proc *processState

	// nice/recentCPU back the MLFQS ABI stubs in mlfqs.go. The advanced
	// scheduler itself is out of scope (spec.md treats it as explicitly
	// excluded); these exist only so a caller expecting the full thread
	// syscall/ABI surface has somewhere to read and write them.
	nice      int
	recentCPU int
}

func newThread(id int64, name string, priority int) *Thread {
	return &Thread{
		ID:       id,
		Name:     name,
		State:    ThreadReady,
		priority: priority,
		eff:      priority,
		canary:   ThreadCanary,
	}
}

// Priority returns the thread's effective priority.
func (t *Thread) Priority() int { return t.eff }

// BasePriority returns the thread's own (non-donated) priority.
func (t *Thread) BasePriority() int { return t.priority }

// CheckCanary panics if the stack-overflow sentinel has been clobbered.
// Called at every scheduling boundary per the kernel's invariant #2.
func (t *Thread) CheckCanary() {
	if t.canary != ThreadCanary {
		KernelPanic("thread %q (tid %d): stack overflow, canary corrupted", t.Name, t.ID)
	}
}

// recomputeEffective sets t.eff to max(t.priority, max donor effective
// priority), the invariant §3 and §4.E require hold after every donor-set
// mutation.
func (t *Thread) recomputeEffective() {
	best := t.priority
	t.donors.Each(func(d *Thread) {
		if d.eff > best {
			best = d.eff
		}
	})
	t.eff = best
}

func donorLess(a, b *Thread) bool { return a.eff > b.eff }

// addDonor inserts donor into t's donor set ordered by the donor's
// current effective priority, then recomputes t's own effective
// priority. Used by Lock.Acquire's chain-donation walk.
func (t *Thread) addDonor(donor *Thread) {
	t.donors.Insert(donor, donorLess)
	t.recomputeEffective()
}

// removeDonorsWaitingOn drops every donor of t whose WaitingOn is exactly
// lock (they will re-donate on their own next acquire attempt), then
// recomputes t's effective priority. Used by Lock.Release.
func (t *Thread) removeDonorsWaitingOn(lock *Lock) {
	for {
		removed := t.donors.Remove(func(d *Thread) bool { return d.WaitingOn == lock })
		if !removed {
			break
		}
	}
	t.recomputeEffective()
}

// SetPriority changes a thread's base priority (thread_set_priority).
// Effective priority is recomputed as max(newPriority, live donors). The
// returned bool is true whenever the thread is the one currently running,
// regardless of the ready queue's contents; callers act on it by
// invoking Yield.
func (t *Thread) SetPriority(newPriority int) (shouldYield bool) {
	t.priority = newPriority
	t.recomputeEffective()
	return t.State == ThreadRunning
}
