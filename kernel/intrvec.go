package kernel

// IntrFrame is the register snapshot and vector metadata delivered to a
// vector handler, standing in for the original's struct intr_frame. The
// hardware build fills Regs from the saved stack frame the assembly
// interrupt stubs push; the pure layer lets tests build one directly.
type IntrFrame struct {
	VecNo     uint8
	ErrorCode uint64
	Regs      TrapFrame
}

// IntrHandlerFunc is one vector's handler (intr_handler_func).
type IntrHandlerFunc func(frame *IntrFrame)

const (
	intrVecCount = 256
	extVecBase   = 0x20
	extVecLimit  = 0x30

	spuriousMaster = 0x27
	spuriousSlave  = 0x2f
)

// picAck abstracts the 8259A end-of-interrupt primitive (pic_end_of_
// interrupt) so the vector table is host-testable without real port I/O.
// The hardware build installs a controller that writes the EOI byte to
// port 0x20, and to 0xa0 as well for a slave IRQ.
type picAck interface {
	EndOfInterrupt(vec uint8)
}

type noopPIC struct{}

func (noopPIC) EndOfInterrupt(uint8) {}

// IntrVectorTable is the 256-entry interrupt descriptor table's handler
// side: vector registration, external-vs-internal dispatch, and the
// spurious-vector tolerance intr_handler implements. It does not model
// the IDT's gate encoding itself (off_15_0/ss/ist/type/dpl bitfields);
// that belongs to the hardware build's real IDT, which loads the same
// vector numbers this table tracks.
type IntrVectorTable struct {
	handlers [intrVecCount]IntrHandlerFunc
	names    [intrVecCount]string
	pic      picAck
	sched    *Scheduler

	inExternal    bool
	yieldOnReturn bool
}

// NewIntrVectorTable returns a table with every vector named "unknown"
// and a no-op PIC acknowledger, matching intr_init's starting state.
func NewIntrVectorTable(sched *Scheduler) *IntrVectorTable {
	t := &IntrVectorTable{pic: noopPIC{}, sched: sched}
	for i := range t.names {
		t.names[i] = "unknown"
	}
	return t
}

// SetPIC installs the EOI acknowledger; the hardware build calls this
// once at boot with a real port-I/O-backed implementation.
func (t *IntrVectorTable) SetPIC(p picAck) { t.pic = p }

// RegisterExternal installs a handler for a device interrupt in the
// PIC's remapped range (0x20-0x2f), which always runs with interrupts
// disabled (intr_register_ext).
func (t *IntrVectorTable) RegisterExternal(vec uint8, name string, h IntrHandlerFunc) {
	if vec < extVecBase || vec >= extVecLimit {
		KernelPanic("RegisterExternal: vector %#x is not in the external range", vec)
	}
	t.register(vec, name, h)
}

// RegisterInternal installs a handler for a CPU-generated exception or a
// software interrupt outside the PIC's range (intr_register_int).
func (t *IntrVectorTable) RegisterInternal(vec uint8, name string, h IntrHandlerFunc) {
	if vec >= extVecBase && vec < extVecLimit {
		KernelPanic("RegisterInternal: vector %#x is in the external range", vec)
	}
	t.register(vec, name, h)
}

func (t *IntrVectorTable) register(vec uint8, name string, h IntrHandlerFunc) {
	if t.handlers[vec] != nil {
		KernelPanic("vector %#x already registered", vec)
	}
	t.handlers[vec] = h
	t.names[vec] = name
}

// InContext reports whether the table is currently dispatching an
// external interrupt (intr_context).
func (t *IntrVectorTable) InContext() bool { return t.inExternal }

// YieldOnReturn asks Dispatch to yield to the scheduler just before
// returning from the external interrupt in progress (intr_yield_on_
// return). Only valid while InContext is true.
func (t *IntrVectorTable) YieldOnReturn() {
	if !t.inExternal {
		KernelPanic("YieldOnReturn called outside an external interrupt")
	}
	t.yieldOnReturn = true
}

// Dispatch routes one interrupt to its registered handler. External
// vectors are bracketed with the in-context/yield-on-return/EOI
// bookkeeping intr_handler performs; an unregistered, non-spurious
// vector is a kernel panic, matching "Unexpected interrupt".
func (t *IntrVectorTable) Dispatch(frame *IntrFrame) {
	external := frame.VecNo >= extVecBase && frame.VecNo < extVecLimit
	if external {
		t.inExternal = true
		t.yieldOnReturn = false
	}

	switch h := t.handlers[frame.VecNo]; {
	case h != nil:
		h(frame)
	case frame.VecNo == spuriousMaster || frame.VecNo == spuriousSlave:
	default:
		KernelPanic("Unexpected interrupt %#x (%s)", frame.VecNo, t.names[frame.VecNo])
	}

	if external {
		t.inExternal = false
		t.pic.EndOfInterrupt(frame.VecNo)
		if t.yieldOnReturn && t.sched != nil {
			t.sched.Yield()
		}
	}
}

// Name returns the vector's registered debug name.
func (t *IntrVectorTable) Name(vec uint8) string { return t.names[vec] }
