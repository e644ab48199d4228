package devices

// PIC models the 8259A Programmable Interrupt Controller pair's
// masking/remapping/EOI state, grounded on original_source/threads/
// interrupt.c's pic_init/pic_end_of_interrupt. It tracks the same state
// those functions push out over ports 0x20/0x21/0xa0/0xa1 but as plain
// Go fields; OutFn, when set, receives the (port, value) pairs the
// hardware build would actually write, letting a hardware port-I/O shim
// hook in without this type needing to know about port I/O at all.
type PIC struct {
	masterMask byte
	slaveMask  byte
	acks       []uint8

	OutFn func(port uint16, value byte)
}

// NewPIC returns a PIC with both controllers fully masked, the state
// pic_init starts from before remapping and unmasking.
func NewPIC() *PIC {
	return &PIC{masterMask: 0xff, slaveMask: 0xff}
}

func (p *PIC) out(port uint16, value byte) {
	if p.OutFn != nil {
		p.OutFn(port, value)
	}
}

// Init remaps IRQs 0-15 to interrupt vectors 0x20-0x2f (displacing them
// off the CPU exception vectors they collide with at reset) and unmasks
// every line, reproducing pic_init's ICW1-ICW4 sequence and the final
// unmask-everything step.
func (p *PIC) Init() {
	p.out(0x21, 0xff)
	p.out(0xa1, 0xff)

	p.out(0x20, 0x11)
	p.out(0x21, 0x20)
	p.out(0x21, 0x04)
	p.out(0x21, 0x01)

	p.out(0xa0, 0x11)
	p.out(0xa1, 0x28)
	p.out(0xa1, 0x02)
	p.out(0xa1, 0x01)

	p.out(0x21, 0x00)
	p.out(0xa1, 0x00)
	p.masterMask = 0
	p.slaveMask = 0
}

// EndOfInterrupt acknowledges IRQ vec on the master PIC, and on the
// slave as well if vec came from the slave's cascade range, matching
// pic_end_of_interrupt; any IRQ left unacknowledged never fires again.
func (p *PIC) EndOfInterrupt(vec uint8) {
	if vec < 0x20 || vec >= 0x30 {
		panic("EndOfInterrupt: vector outside the PIC's remapped range")
	}
	p.out(0x20, 0x20)
	if vec >= 0x28 {
		p.out(0xa0, 0x20)
	}
	p.acks = append(p.acks, vec)
}

// Acks returns every vector acknowledged so far, for test assertions.
func (p *PIC) Acks() []uint8 { return p.acks }
