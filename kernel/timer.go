package kernel

import "pintos/internal/ilist"

// TimerFreq is the PIT tick rate in Hz (TIMER_FREQ in the original
// devices/timer.c), carried verbatim.
const TimerFreq = 100

// Timer is the tick-driven sleep/wake service: a monotonic tick counter
// plus a queue of threads blocked until a given tick, kept ordered by
// wake tick ascending so the tick handler only ever has to look at the
// front.
type Timer struct {
	ticks   int64
	sleep   ilist.List[*Thread]
	sched   *Scheduler
	busyFn  func() // one iteration of a calibrated busy-wait spin; nil on host
}

func sleepLess(a, b *Thread) bool { return a.WakeTick < b.WakeTick }

// NewTimer returns a timer bound to sched, ticks starting at zero.
func NewTimer(sched *Scheduler) *Timer {
	return &Timer{sched: sched}
}

// Ticks returns the number of timer interrupts observed since boot
// (timer_ticks).
func (t *Timer) Ticks() int64 {
	g := DisableIntr()
	defer g.Release()
	return t.ticks
}

// Sleep blocks the calling thread for at least the given number of
// ticks (timer_sleep). ticks <= 0 degenerates to a plain yield: the
// caller gives up its remaining slice without entering the sleep queue.
func (t *Timer) Sleep(ticks int64) {
	if ticks <= 0 {
		t.sched.Yield()
		return
	}

	g := DisableIntr()
	cur := t.sched.Current()
	cur.WakeTick = t.ticks + ticks
	t.sleep.Insert(cur, sleepLess)
	t.sched.Block()
	g.Release()
}

// OnTick advances the tick counter and wakes every thread whose wake
// tick has arrived, in wake-tick order, moving each straight to the
// ready queue at its priority position. Called from the timer
// interrupt handler with interrupts already off. Returns the threads
// woken, for callers (the interrupt epilogue) that want to decide
// whether a wake should also trigger an immediate yield check.
func (t *Timer) OnTick() []*Thread {
	t.ticks++

	var woken []*Thread
	for {
		front, ok := t.sleep.Front()
		if !ok || front.WakeTick > t.ticks {
			break
		}
		th, _ := t.sleep.PopFront()
		th.State = ThreadReady
		t.sched.ready.insert(th)
		woken = append(woken, th)
	}
	return woken
}

// busyWaitTicks calls busyFn loops times (a loop count derived from the
// boot-time loopsPerTick calibration) rather than blocking, for sleeps shorter
// than one tick (timer_msleep/usleep/nsleep's fallback for sub-tick
// durations, per devices/timer.c: anything under a tick busy-waits
// instead of risking oversleeping by a whole tick).
func (t *Timer) busyWaitTicks(loops int64) {
	if t.busyFn == nil || loops <= 0 {
		return
	}
	for i := int64(0); i < loops; i++ {
		t.busyFn()
	}
}

// loopsPerTick is set once at boot by calibration; while it is zero,
// the sub-tick helpers below fall back to a full-tick Sleep so they still make progress without a real
// busy-wait loop to calibrate.
var loopsPerTick int64

// MSleep sleeps for approximately ms milliseconds, busy-waiting instead
// of blocking if the duration is under one tick (timer_msleep).
func (t *Timer) MSleep(ms int64) { t.sleepSubTick(ms, 1000) }

// USleep sleeps for approximately us microseconds (timer_usleep).
func (t *Timer) USleep(us int64) { t.sleepSubTick(us, 1000*1000) }

// NSleep sleeps for approximately ns nanoseconds (timer_nsleep).
func (t *Timer) NSleep(ns int64) { t.sleepSubTick(ns, 1000*1000*1000) }

// sleepSubTick converts num/denom seconds to ticks; if that rounds up
// to at least one tick it blocks normally, otherwise it busy-waits the
// equivalent loop count (falling back to Sleep(1) if no calibration is
// available, so callers always make forward progress under test).
func (t *Timer) sleepSubTick(num, denom int64) {
	ticks := num * TimerFreq / denom
	if ticks > 0 {
		t.Sleep(ticks)
		return
	}
	if loopsPerTick == 0 {
		t.Sleep(1)
		return
	}
	loops := loopsPerTick * num * TimerFreq / denom
	t.busyWaitTicks(loops)
}
