package kernel

import (
	"fmt"
	"runtime"
	"strings"
)

// PrintTraceback renders a stack traceback in the frame-by-frame style
// traceback.go's FP-chain walker prints (frame number, PC, function
// name, file:line), adapted from that walker's raw ARM64 FP+8/FP+32
// memory reads to runtime.Callers/CallersFrames: a hosted Go build has
// no hardware exception frame or raw stack memory to walk by address,
// but the Go runtime already knows how to unwind its own stack, so this
// asks it directly instead of re-deriving rbp-chain offsets it has no
// way to verify without real silicon under it.
func PrintTraceback(skip int) string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+2, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var b strings.Builder
	b.WriteString("=== Stack Traceback ===\n")
	num := 1
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&b, "#%s PC=0x%s", printDecimal(num), printHex64(uint64(frame.PC)))
		if frame.Function != "" {
			b.WriteString(" in ")
			b.WriteString(frame.Function)
		}
		if frame.File != "" {
			fmt.Fprintf(&b, " at %s:%s", frame.File, printDecimal(frame.Line))
		}
		b.WriteString("\n")
		num++
		if !more {
			break
		}
	}
	b.WriteString("=== End Traceback ===\n")
	return b.String()
}
