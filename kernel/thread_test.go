package kernel

import "testing"

func TestRecomputeEffectiveIsMaxOfOwnAndDonors(t *testing.T) {
	low := newThread(1, "low", 10)
	if low.Priority() != 10 {
		t.Fatalf("Priority() = %d, want 10", low.Priority())
	}

	mid := newThread(2, "mid", 20)
	high := newThread(3, "high", 30)

	low.addDonor(mid)
	if got := low.Priority(); got != 20 {
		t.Fatalf("after donating mid(20): Priority() = %d, want 20", got)
	}

	low.addDonor(high)
	if got := low.Priority(); got != 30 {
		t.Fatalf("after donating high(30): Priority() = %d, want 30", got)
	}

	// Own priority still dominates reporting via BasePriority.
	if low.BasePriority() != 10 {
		t.Fatalf("BasePriority() = %d, want 10", low.BasePriority())
	}
}

func TestRemoveDonorsWaitingOnDropsOnlyMatchingLockAndRecomputes(t *testing.T) {
	low := newThread(1, "low", 10)
	a := newThread(2, "a", 20)
	b := newThread(3, "b", 25)

	lockA := &Lock{}
	lockB := &Lock{}
	a.WaitingOn = lockA
	b.WaitingOn = lockB

	low.addDonor(a)
	low.addDonor(b)
	if got := low.Priority(); got != 25 {
		t.Fatalf("Priority() = %d, want 25", got)
	}

	low.removeDonorsWaitingOn(lockB)
	if got := low.Priority(); got != 20 {
		t.Fatalf("after dropping b's donation: Priority() = %d, want 20", got)
	}

	low.removeDonorsWaitingOn(lockA)
	if got := low.Priority(); got != 10 {
		t.Fatalf("after dropping a's donation: Priority() = %d, want 10", got)
	}
}

func TestSetPriorityReportsYieldOnlyWhenRunning(t *testing.T) {
	th := newThread(1, "t", PriDefault)
	th.State = ThreadReady
	if yield := th.SetPriority(PriMax); yield {
		t.Fatal("SetPriority on a non-running thread reported shouldYield")
	}
	if th.Priority() != PriMax {
		t.Fatalf("Priority() = %d, want %d", th.Priority(), PriMax)
	}

	th.State = ThreadRunning
	if yield := th.SetPriority(PriMin); !yield {
		t.Fatal("SetPriority on the running thread did not report shouldYield")
	}
}

func TestCheckCanaryPanicsOnCorruption(t *testing.T) {
	th := newThread(1, "t", PriDefault)
	th.canary = 0

	defer func() {
		if recover() == nil {
			t.Fatal("CheckCanary on a corrupted canary did not panic")
		}
	}()
	th.CheckCanary()
}
