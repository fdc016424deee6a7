package lock

import "sync/atomic"

// Line identifies an interrupt source of a core.
type Line uint8

const (
	// LineTimer is the periodic scheduler tick.
	LineTimer Line = iota
	// LineWake is the cross-core reschedule request.
	LineWake
	// LineFault delivers an execution fault of the running thread.
	LineFault

	numLines
)

func (l Line) String() string {
	switch l {
	case LineTimer:
		return "timer"
	case LineWake:
		return "wake"
	case LineFault:
		return "fault"
	default:
		return "unknown"
	}
}

// State is the saved interrupt-enable flag returned by Interrupts.Disable. It
// must be passed unchanged to the matching Interrupts.Restore.
type State bool

// Enabled is the state every thread starts with.
const Enabled State = true

// Interrupts is the local interrupt controller of one core.
//
// Interrupts are latched by their source (any goroutine) and serviced on the
// core itself, at safe points, while the interrupt-enable flag is set. The flag
// is only ever touched by the code currently executing on the core.
type Interrupts struct {
	enabled bool
	pending atomic.Uint32
	kick    chan struct{}
	handler func(Line)
}

// NewInterrupts returns an enabled controller that dispatches serviced lines to
// handler.
func NewInterrupts(handler func(Line)) *Interrupts {
	return &Interrupts{
		enabled: true,
		kick:    make(chan struct{}, 1),
		handler: handler,
	}
}

// Disable clears the interrupt-enable flag and returns its previous value. A
// nil controller (off-core caller) is a no-op.
func (i *Interrupts) Disable() State {
	if i == nil {
		return false
	}
	s := State(i.enabled)
	i.enabled = false
	return s
}

// Restore sets the interrupt-enable flag back to s. Restoring to enabled
// services any interrupt latched while the flag was clear.
func (i *Interrupts) Restore(s State) {
	if i == nil {
		return
	}
	i.enabled = bool(s)
	if i.enabled {
		i.Service()
	}
}

// Enabled reports the interrupt-enable flag.
func (i *Interrupts) Enabled() bool {
	return i != nil && i.enabled
}

// Raise latches line and wakes the core if it is idle. Safe from any goroutine.
func (i *Interrupts) Raise(line Line) {
	bit := uint32(1) << line
	for {
		old := i.pending.Load()
		if old&bit != 0 || i.pending.CompareAndSwap(old, old|bit) {
			break
		}
	}
	select {
	case i.kick <- struct{}{}:
	default:
	}
}

// Pending reports whether any line is latched.
func (i *Interrupts) Pending() bool {
	return i.pending.Load() != 0
}

// Kick is signalled whenever a line is raised.
func (i *Interrupts) Kick() <-chan struct{} {
	return i.kick
}

// Service runs the handlers of all latched lines if interrupts are enabled.
// Handlers run with interrupts disabled and must not switch context.
func (i *Interrupts) Service() {
	if i == nil || !i.enabled || i.handler == nil {
		return
	}
	for {
		p := i.pending.Swap(0)
		if p == 0 {
			return
		}
		i.enabled = false
		for l := Line(0); l < numLines; l++ {
			if p&(1<<l) != 0 {
				i.handler(l)
			}
		}
		i.enabled = true
	}
}
