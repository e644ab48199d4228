package kernel

import "testing"

type bootFakeConsole struct{}

func (bootFakeConsole) ReadByte() (byte, bool) { return 0, false }
func (bootFakeConsole) Write([]byte)           {}

func TestBootWiresEveryKernelSubsystem(t *testing.T) {
	k := Boot(BootConfig{KernelPages: 32, UserPages: 32}, newFakeFS(), bootFakeConsole{})
	if k.Sched == nil || k.Pages == nil || k.Slab == nil || k.Timer == nil || k.Intr == nil || k.TSS == nil || k.PM == nil || k.Dispatcher == nil {
		t.Fatalf("Boot left a subsystem nil: %+v", k)
	}
	if k.Timer.Ticks() != 0 {
		t.Fatalf("Timer.Ticks() = %d, want 0 before any tick", k.Timer.Ticks())
	}
}

func TestBootRegistersTimerOnVector0x20(t *testing.T) {
	k := Boot(BootConfig{KernelPages: 32, UserPages: 32}, newFakeFS(), bootFakeConsole{})
	k.Intr.Dispatch(&IntrFrame{VecNo: 0x20})
	if k.Timer.Ticks() != 1 {
		t.Fatalf("Timer.Ticks() = %d after dispatching vector 0x20, want 1", k.Timer.Ticks())
	}
}

func TestBootRunLoadsInitialProcess(t *testing.T) {
	fsys := newFakeFS()
	fsys.files["init"] = buildELF(0x400000, 0x400000, []byte{0x90})
	k := Boot(BootConfig{KernelPages: 32, UserPages: 32}, fsys, bootFakeConsole{})

	tid := k.Run("-q run init")
	if tid == TIDError {
		t.Fatalf("Run(-q run init) failed")
	}
}

func TestBootConstructsTimerWhenTimerHzUnset(t *testing.T) {
	k := Boot(BootConfig{KernelPages: 16, UserPages: 16}, newFakeFS(), bootFakeConsole{})
	if k.Timer == nil {
		t.Fatalf("Timer not constructed")
	}
}
