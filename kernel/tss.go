package kernel

// TSS is the one field of the x86-64 Task-State Segment this kernel
// actually needs: RSP0, the stack the processor switches to on a
// ring-3-to-ring-0 interrupt. Grounded on original_source/userprog/
// tss.c's documented reasoning — everything else in a real TSS is
// irrelevant to an OS that otherwise ignores hardware task-switching —
// and its schedule()-updates-the-TSS's-stack-pointer design. Nothing in
// this package's scheduler calls SetKernelStack; RSP0 changes only when
// a caller sets it.
type TSS struct {
	rsp0 uint64
}

// NewTSS returns a zeroed TSS, matching tss_init's pristine state before
// the first thread switch installs a real stack pointer.
func NewTSS() *TSS { return &TSS{} }

// SetKernelStack installs top as the stack the CPU will switch to on
// the next ring-3 interrupt (tss_update).
func (t *TSS) SetKernelStack(top uint64) { t.rsp0 = top }

// KernelStack returns the stack pointer currently programmed into RSP0.
func (t *TSS) KernelStack() uint64 { return t.rsp0 }
