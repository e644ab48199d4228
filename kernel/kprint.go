package kernel

// This file is the kernel's only logging mechanism, grounded on
// uart_qemu.go's interrupt-driven UART ring buffer: kprint never blocks
// waiting for the output device, it enqueues bytes into a fixed-size
// ring and lets Drain hand them to the real sink (a UART, a serial
// port, devices.Console) at its own pace. uartEnqueueOrOverflow's
// "stop accepting new bytes a few slots before the ring is actually
// full, and mark the gap with an overflow marker instead of silently
// dropping one unmarked character" policy is kept verbatim; the literal
// 4096-byte ring size is not special, just carried over as a sane
// default for a debug log no caller should be allowed to block on.

const (
	kprintRingSize     = 4096
	kprintNearFullSlots = 3
)

// KPrintRing is a lock-free-in-spirit (single-producer, single-consumer
// via Drain) byte ring standing in for uartRingBuffer. OutFn, if set, is
// called with every byte Drain removes; a nil OutFn just discards,
// matching early boot before any console is wired.
type KPrintRing struct {
	buf  [kprintRingSize]byte
	head uint32
	tail uint32
	OutFn func(byte)
}

// NewKPrintRing returns an empty ring.
func NewKPrintRing() *KPrintRing { return &KPrintRing{} }

func (r *KPrintRing) spaceAvailable() uint32 {
	if r.head >= r.tail {
		return kprintRingSize - (r.head - r.tail) - 1
	}
	return r.tail - r.head - 1
}

// enqueue appends c, matching uartEnqueue.
func (r *KPrintRing) enqueue(c byte) bool {
	next := (r.head + 1) % kprintRingSize
	if next == r.tail {
		return false
	}
	r.buf[r.head] = c
	r.head = next
	return true
}

// Write enqueues every byte of data, dropping and marking with "***"
// once the ring gets within kprintNearFullSlots of full, matching
// uartEnqueueOrOverflow/uartIsNearFull's policy of never letting the
// ring fill completely silently.
func (r *KPrintRing) Write(data []byte) {
	for _, c := range data {
		if r.spaceAvailable() <= kprintNearFullSlots {
			r.enqueue('*')
			r.enqueue('*')
			r.enqueue('*')
			return
		}
		r.enqueue(c)
	}
}

// Drain removes every byte currently queued, in order, handing each to
// OutFn if set.
func (r *KPrintRing) Drain() {
	for {
		if r.head == r.tail {
			return
		}
		c := r.buf[r.tail]
		r.tail = (r.tail + 1) % kprintRingSize
		if r.OutFn != nil {
			r.OutFn(c)
		}
	}
}

// Pending reports how many bytes are queued and not yet drained.
func (r *KPrintRing) Pending() uint32 {
	if r.head >= r.tail {
		return r.head - r.tail
	}
	return kprintRingSize - r.tail + r.head
}

// printHex64 renders n as lowercase hex digits with leading zeros
// suppressed, like %x ("0" for zero), matching
// traceback.go's printHex64 helper.
func printHex64(n uint64) string {
	const digits = "0123456789abcdef"
	if n == 0 {
		return "0"
	}
	var buf [16]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = digits[n&0xf]
		n >>= 4
	}
	return string(buf[i:])
}

// printDecimal renders n in decimal, matching traceback.go's
// printDecimal helper (kept here since kprint is the only caller that
// still needs it outside traceback.go itself).
func printDecimal(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
