package kernel

// This file is the MLFQS (multi-level feedback queue scheduler) ABI
// surface, grounded on include/threads/thread.h's thread_set_nice/
// thread_get_nice/thread_get_load_avg/thread_get_recent_cpu. The
// advanced scheduler these functions would feed is out of scope (the
// scheduler in scheduler.go is the plain priority scheduler only); they
// are carried as documented stubs returning zero/default so a caller
// built against the full thread ABI has somewhere to land, exactly as
// the original describes for a build with -mlfqs off.

// SetNice stores t's niceness. Never read by the scheduler in this tree.
func (t *Thread) SetNice(nice int) { t.nice = nice }

// Nice returns the niceness last set by SetNice (thread_get_nice).
func (t *Thread) Nice() int { return t.nice }

// RecentCPU returns the thread's recent-CPU estimate (thread_get_recent_
// cpu). Always zero: nothing in this tree updates it, since that
// bookkeeping belongs to the advanced scheduler this build doesn't run.
func (t *Thread) RecentCPU() int { return t.recentCPU }

// LoadAvg returns the system load average (thread_get_load_avg). Always
// zero for the same reason RecentCPU is always zero.
func LoadAvg() int { return 0 }
