// Package devices holds the thin, host-testable stand-ins for the
// machine's external infrastructure (§1's "external collaborator
// infrastructure"): the serial console, the 8259 PIC, and the 8254 PIT.
// Each is written as plain Go state plus an explicit hook for the one
// hardware primitive it actually needs (a port write, an IRQ line), in
// the same spirit as the teacher's uart_qemu.go/gic_qemu.go/
// timer_qemu.go split between portable logic and the thinnest possible
// MMIO/port-I/O shim.
package devices

import "sync"

// Console is a 16550-style polling serial console: Write appends bytes
// to whatever OutputFn is hooked up to (a real UART data register in the
// hardware build, a test buffer otherwise), and incoming bytes are
// queued by PushInput (the hardware build's receive-interrupt handler)
// for ReadByte to drain, matching the keyboard/serial input path the
// console syscalls read from.
type Console struct {
	mu       sync.Mutex
	input    []byte
	OutputFn func([]byte)
}

// NewConsole returns a console with no output sink installed; Write
// calls are dropped until OutputFn is set, so tests can construct one
// without wiring a sink they don't care about.
func NewConsole() *Console {
	return &Console{}
}

// PushInput feeds bytes as if they had arrived from the UART's receive
// register (or the keyboard controller); the hardware build calls this
// from its receive-interrupt handler (uart_qemu.go's RX path).
func (c *Console) PushInput(b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.input = append(c.input, b...)
}

// ReadByte pulls the next queued input byte (ok == false if none is
// queued), the polling equivalent of checking the UART's LSR data-ready
// bit before reading its data register.
func (c *Console) ReadByte() (byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.input) == 0 {
		return 0, false
	}
	b := c.input[0]
	c.input = c.input[1:]
	return b, true
}

// Write sends data out the console, matching the original's putbuf
// writing straight through to the serial/VGA text console with no
// internal buffering of its own.
func (c *Console) Write(data []byte) {
	if c.OutputFn != nil {
		c.OutputFn(data)
	}
}
