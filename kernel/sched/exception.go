package sched

import (
	"fmt"
	"runtime"
	"strings"

	"kestrel/kernel/lock"
)

// Vector is an exception vector number.
type Vector uint8

const (
	VectorDivideError       Vector = 0
	VectorInvalidOpcode     Vector = 6
	VectorGeneralProtection Vector = 13
	VectorPageFault         Vector = 14
)

func (v Vector) String() string {
	switch v {
	case VectorDivideError:
		return "divide error"
	case VectorInvalidOpcode:
		return "invalid opcode"
	case VectorGeneralProtection:
		return "general protection fault"
	case VectorPageFault:
		return "page fault"
	default:
		return fmt.Sprintf("vector %d", uint8(v))
	}
}

// Exception is an unrecoverable execution fault of a thread.
type Exception struct {
	Vector Vector
	Err    error
}

func (e Exception) Error() string {
	if e.Err == nil {
		return e.Vector.String()
	}
	return e.Vector.String() + ": " + e.Err.Error()
}

// exceptionFor maps a Go runtime error raised by thread code to the exception
// the hardware would have delivered.
func exceptionFor(err error) (Exception, bool) {
	rerr, ok := err.(runtime.Error)
	if !ok {
		return Exception{}, false
	}
	msg := rerr.Error()
	switch {
	case strings.Contains(msg, "divide by zero"):
		return Exception{Vector: VectorDivideError, Err: rerr}, true
	case strings.Contains(msg, "invalid memory address"), strings.Contains(msg, "nil pointer"):
		return Exception{Vector: VectorPageFault, Err: rerr}, true
	default:
		return Exception{Vector: VectorGeneralProtection, Err: rerr}, true
	}
}

// RaiseException delivers exc for the thread currently running on core, the
// way the interrupt layer reports a fault. The thread becomes a zombie with
// cause FAULT at its next safe point instead of resuming.
func (m *Machine) RaiseException(core int, exc Exception) (ThreadID, error) {
	if core < 0 || core >= len(m.cores) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidCore, core)
	}
	c := m.cores[core]

	// The fault is recorded under the guard so that cur cannot switch out
	// between being picked and being marked.
	s := c.guard.Lock(nil)
	cur := c.current
	if cur == nil || cur.idle {
		c.guard.Unlock(nil, s)
		m.logf("sched: core %d: %v with no thread running, ignored", core, exc)
		return 0, nil
	}
	c.fault.Store(&pendingFault{target: cur.id, exc: exc})
	c.guard.Unlock(nil, s)

	c.irq.Raise(lock.LineFault)
	return cur.id, nil
}

func (m *Machine) recordFault(t *tcb, exc Exception) {
	c := m.cores[t.core]
	s := m.threads.Lock(c.irq)
	t.vector = exc.Vector
	m.threads.Unlock(c.irq, s)
	m.logf("sched: thread %#x (%s) on core %d faulted: %v", uint32(t.id), t.name, t.core, exc)
}
