package kernel

import (
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// PanicInfo contains details about a kernel panic.
type PanicInfo struct {
	Err   *Error
	Stack []byte
}

// LineWriter is the sink used to report a kernel panic.
type LineWriter interface {
	WriteLineString(s string)
}

var (
	// haltFn is swapped by tests.
	haltFn = func() { select {} }

	panicActive atomic.Bool
	panicOnce   sync.Once

	panicHandler atomic.Value // func(PanicInfo)
	panicOutput  atomic.Value // LineWriter

	errRuntimePanic = &Error{Module: "rt", Message: "unknown cause"}
)

// InPanicMode reports whether the kernel has panicked.
func InPanicMode() bool {
	return panicActive.Load()
}

// SetPanicHandler installs a process-wide panic handler.
//
// The handler is invoked at most once (on the first panic). It must not panic.
func SetPanicHandler(fn func(PanicInfo)) {
	panicHandler.Store(fn)
}

// SetPanicOutput sets where the panic banner is written.
func SetPanicOutput(w LineWriter) {
	panicOutput.Store(w)
}

// Panic reports the supplied error and halts the calling core. Calls to Panic
// never return. It is reserved for conditions where continuing would corrupt
// shared scheduler state.
func Panic(e any) {
	var err *Error

	switch t := e.(type) {
	case *Error:
		err = t
	case string:
		err = &Error{Module: errRuntimePanic.Module, Message: t}
	case error:
		err = &Error{Module: errRuntimePanic.Module, Message: t.Error()}
	default:
		err = &Error{Module: errRuntimePanic.Module, Message: fmt.Sprint(t)}
	}

	panicOnce.Do(func() {
		panicActive.Store(true)

		if v := panicOutput.Load(); v != nil {
			if w, ok := v.(LineWriter); ok && w != nil {
				w.WriteLineString("-----------------------------------")
				w.WriteLineString(fmt.Sprintf("[%s] unrecoverable error: %s", err.Module, err.Message))
				w.WriteLineString("*** kernel panic: system halted ***")
				w.WriteLineString("-----------------------------------")
			}
		}

		if v := panicHandler.Load(); v != nil {
			if fn, ok := v.(func(PanicInfo)); ok && fn != nil {
				fn(PanicInfo{Err: err, Stack: debug.Stack()})
			}
		}
	})

	haltFn()
}
