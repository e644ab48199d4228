package kernel

// BootConfig sizes the pools Boot builds the kernel's subsystems
// against, standing in for the physical-memory-size argument the real
// boot loader passes through the multiboot/e820 map.
type BootConfig struct {
	KernelPages int
	UserPages   int
	TimerHz     int // defaults to TimerFreq if zero
}

// Kernel bundles every subsystem kernelMain wires together: the
// scheduler, both allocators, the interrupt vector table, the process
// manager, the syscall dispatcher, and the single static TSS. The
// hardware build's kernelMain constructs one of these and never lets it
// go out of scope; tests construct their own to exercise a piece in
// isolation instead of reaching through this struct.
type Kernel struct {
	Sched      *Scheduler
	Pages      *PageAllocator
	Slab       *SlabAllocator
	Timer      *Timer
	Intr       *IntrVectorTable
	TSS        *TSS
	PM         *ProcessManager
	Dispatcher *Dispatcher
	KPrint     *KPrintRing
}

// Boot runs the portable half of kernelMain. It builds, in this order,
// the scheduler and bootstrap thread (threadInit), the page pool and
// slab allocator (memInit), the timer (timerInit), the interrupt vector
// table with the timer's vector 0x20 handler (interruptInit), the TSS,
// the process manager and syscall dispatcher, and the kernel print ring.
// This follows kernel.go's staged boot sequence; unlike threads/init.c's
// palloc_init -> thread_init -> intr_init -> timer_init -> malloc_init
// order, the bootstrap thread comes first because the allocators' locks
// need a current thread.
//
// fsys and console are the external collaborators devices/ and fs/
// provide; the hardware build passes real ones, tests pass fakes.
func Boot(cfg BootConfig, fsys FileOpener, console Console) *Kernel {
	if cfg.TimerHz == 0 {
		cfg.TimerHz = TimerFreq
	}

	sched := NewScheduler()
	boot := newThread(0, "main", PriDefault)
	sched.SetCurrent(boot)

	pages := NewPageAllocator(sched, cfg.KernelPages, cfg.UserPages)
	slab := NewSlabAllocator(sched, pages)
	timer := NewTimer(sched)
	intr := NewIntrVectorTable(sched)
	tss := NewTSS()

	intr.RegisterExternal(0x20, "8254 Timer", func(f *IntrFrame) {
		for _, woken := range timer.OnTick() {
			if sched.ShouldPreempt(woken) {
				intr.YieldOnReturn()
			}
		}
		if sched.OnTick() {
			intr.YieldOnReturn()
		}
	})

	pm := NewProcessManager(sched, pages, fsys)
	dispatcher := NewDispatcher(pm, fsys, console, nil)

	kprint := NewKPrintRing()
	kprint.OutFn = func(b byte) { console.Write([]byte{b}) }
	ExitPrinter = func(name string, status int) {
		kprint.Write([]byte(name + ": exit(" + printDecimal(status) + ")\n"))
		kprint.Drain()
	}

	return &Kernel{
		Sched:      sched,
		Pages:      pages,
		Slab:       slab,
		Timer:      timer,
		Intr:       intr,
		TSS:        tss,
		PM:         pm,
		Dispatcher: dispatcher,
		KPrint:     kprint,
	}
}

// Run parses cmdline the way kernelMain parses the boot command line
// (ParseCommandLine), then dispatches its actions in order: rm against
// the file collaborator, and run as the initial user process, matching
// thread.c's run_task/run_actions dispatch. put and get actions and the
// -q/-f flags are parsed but not acted on here. It returns the tid
// of the last run action's process, or TIDError if none ran or loading
// failed.
func (k *Kernel) Run(cmdline string) int64 {
	cl := ParseCommandLine(cmdline)

	tid := TIDError
	for _, a := range cl.Actions {
		switch a.Kind {
		case ActionRun:
			tid = k.PM.CreateInitialProcess(a.Args[0])
		case ActionRemove:
			k.PM.fs.Remove(a.Args[0])
		}
	}
	return tid
}
