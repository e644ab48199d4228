package kernel

// intrController abstracts the CPU's single interrupt-enable flag so the
// queue-mutation logic below can be exercised on a host that has no such
// flag at all. The hardware boot path installs a real implementation
// backed by pushf/popf-equivalent primitives.
type intrController interface {
	Enabled() bool
	SetEnabled(bool)
}

type hostIntrController struct{ enabled bool }

func (h *hostIntrController) Enabled() bool     { return h.enabled }
func (h *hostIntrController) SetEnabled(v bool) { h.enabled = v }

var currentIntr intrController = &hostIntrController{enabled: true}

// SetIntrController swaps in a different backing for the interrupt flag.
// Called once at boot to install the hardware-backed controller; tests
// leave the default host controller in place.
func SetIntrController(c intrController) { currentIntr = c }

// IntrEnabled reports the current interrupt level (intr_get_level).
func IntrEnabled() bool { return currentIntr.Enabled() }

// IntrGuard is the scoped "interrupts off" resource described in the
// kernel's design notes: acquiring one disables interrupts and remembers
// the prior level; Release restores exactly that level, so early returns
// and panics that still unwind normally leave the CPU's interrupt state
// correct on every exit path.
type IntrGuard struct {
	prev bool
}

// DisableIntr disables interrupts and returns a guard that will restore
// the level that was in effect before the call (intr_disable, scoped).
func DisableIntr() IntrGuard {
	g := IntrGuard{prev: currentIntr.Enabled()}
	currentIntr.SetEnabled(false)
	return g
}

// Release restores the interrupt level captured when the guard was
// created (intr_set_level(prev)).
func (g IntrGuard) Release() {
	currentIntr.SetEnabled(g.prev)
}

// EnableIntr unconditionally enables interrupts (intr_enable). Used at
// points in the boot sequence and the idle loop where there is no prior
// level worth restoring.
func EnableIntr() bool {
	prev := currentIntr.Enabled()
	currentIntr.SetEnabled(true)
	return prev
}
