package kernel

import "fmt"

// panicSink is invoked by KernelPanic after formatting the message. The
// hardware boot path overrides this to print a traceback/register dump
// (see traceback.go) and then halt forever; tests leave the default,
// which raises a normal Go panic so `recover` in a test can observe it.
var panicSink = func(msg string) { panic(msg) }

// KernelPanic reports an invariant violation: a corrupted canary, a queue
// found in an impossible state, a slab arena with a bad magic. Per §7
// this class of error is fatal and not recoverable.
func KernelPanic(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	panicSink(msg + "\n" + PrintTraceback(1))
}
