package kernel

import "testing"

func TestDispatchRoutesToRegisteredHandler(t *testing.T) {
	tbl := NewIntrVectorTable(nil)
	var got uint64
	tbl.RegisterInternal(0x0e, "#PF Page-Fault Exception", func(f *IntrFrame) {
		got = f.ErrorCode
	})

	tbl.Dispatch(&IntrFrame{VecNo: 0x0e, ErrorCode: 0x42})
	if got != 0x42 {
		t.Fatalf("handler saw ErrorCode = %#x, want 0x42", got)
	}
}

func TestRegisterExternalRejectsVectorOutsidePICRange(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("RegisterExternal(0x0e, ...) did not panic")
		}
	}()
	tbl := NewIntrVectorTable(nil)
	tbl.RegisterExternal(0x0e, "bogus", func(*IntrFrame) {})
}

func TestRegisterInternalRejectsVectorInsidePICRange(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("RegisterInternal(0x20, ...) did not panic")
		}
	}()
	tbl := NewIntrVectorTable(nil)
	tbl.RegisterInternal(0x20, "bogus", func(*IntrFrame) {})
}

func TestDispatchIgnoresSpuriousCascadeVectors(t *testing.T) {
	tbl := NewIntrVectorTable(nil)
	tbl.Dispatch(&IntrFrame{VecNo: 0x27})
	tbl.Dispatch(&IntrFrame{VecNo: 0x2f})
}

func TestDispatchUnregisteredNonSpuriousVectorPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("Dispatch of an unregistered, non-spurious vector did not panic")
		}
	}()
	tbl := NewIntrVectorTable(nil)
	tbl.Dispatch(&IntrFrame{VecNo: 0x21})
}

type countingPIC struct {
	acks []uint8
}

func (p *countingPIC) EndOfInterrupt(vec uint8) { p.acks = append(p.acks, vec) }

func TestDispatchExternalTracksContextAndAcksPIC(t *testing.T) {
	tbl := NewIntrVectorTable(nil)
	pic := &countingPIC{}
	tbl.SetPIC(pic)

	var sawContext bool
	tbl.RegisterExternal(0x20, "8254 Timer", func(*IntrFrame) {
		sawContext = tbl.InContext()
	})

	tbl.Dispatch(&IntrFrame{VecNo: 0x20})
	if !sawContext {
		t.Fatalf("InContext() was false inside an external handler")
	}
	if tbl.InContext() {
		t.Fatalf("InContext() still true after Dispatch returned")
	}
	if len(pic.acks) != 1 || pic.acks[0] != 0x20 {
		t.Fatalf("pic.acks = %v, want [0x20]", pic.acks)
	}
}

func TestYieldOnReturnYieldsBeforeExternalDispatchReturns(t *testing.T) {
	sched := NewScheduler()
	first := newThread(2, "first", PriDefault)
	sched.SetCurrent(first)
	sched.CreateThread("other", PriDefault, nil, nil)

	tbl := NewIntrVectorTable(sched)
	tbl.RegisterExternal(0x20, "8254 Timer", func(*IntrFrame) {
		tbl.YieldOnReturn()
	})

	tbl.Dispatch(&IntrFrame{VecNo: 0x20})
	if sched.Current() == first {
		t.Fatalf("scheduler did not yield on return from the external interrupt")
	}
}

func TestYieldOnReturnOutsideContextPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("YieldOnReturn outside an external interrupt did not panic")
		}
	}()
	tbl := NewIntrVectorTable(nil)
	tbl.YieldOnReturn()
}
