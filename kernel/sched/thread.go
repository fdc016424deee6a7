package sched

import (
	"fmt"

	"kestrel/kernel/lock"
)

// Thread is the handle a thread uses to call into the scheduler. It is only
// valid on the thread it was handed to.
type Thread struct {
	m *Machine
	t *tcb
	c *Core
}

// ID returns the thread's handle.
func (t *Thread) ID() ThreadID { return t.t.id }

// Name returns the thread's name.
func (t *Thread) Name() string { return t.t.name }

// Core returns the index of the core the thread runs on.
func (t *Thread) Core() int { return t.c.id }

// Priority returns the thread's static priority.
func (t *Thread) Priority() Priority { return t.t.prio }

// Machine returns the machine the thread belongs to.
func (t *Thread) Machine() *Machine { return t.m }

// Now returns the uptime in ticks.
func (t *Thread) Now() uint64 { return t.m.Now() }

// Interrupts returns the interrupt controller of the thread's core, for use
// with lock.Guard and critical sections.
func (t *Thread) Interrupts() *lock.Interrupts { return t.c.irq }

// Preempt is an explicit safe point: a pending tick or wake-up is acted upon
// here, which may switch to another thread.
func (t *Thread) Preempt() {
	t.c.preemptPoint(t.t)
}

// Yield re-queues the thread at the tail of its priority level and runs the
// head of the highest non-empty level.
func (t *Thread) Yield() {
	c := t.c
	s := c.enter(t.t)
	c.schedule(t.t, s)
	c.preemptPoint(t.t)
}

// Sleep blocks the thread for at least d ticks. Sleep(0) yields.
func (t *Thread) Sleep(d uint64) {
	if d == 0 {
		t.Yield()
		return
	}

	c, m, self := t.c, t.m, t.t

	s := c.enter(self)
	ls := m.threads.Lock(c.irq)
	self.setState(StateSleeping)
	m.ledger.addSleeper(m.tab, self, m.Now()+d)
	m.threads.Unlock(c.irq, ls)
	c.schedule(self, s)

	c.preemptPoint(self)
}

// Wait blocks until the thread id terminates and returns its exit value and
// termination cause. The terminated thread is reclaimed; waiting on a thread
// that is unknown, detached or already reclaimed fails with ErrInvalidHandle.
func (t *Thread) Wait(id ThreadID) (uintptr, Cause, error) {
	c, m, self := t.c, t.m, t.t

	if id == self.id {
		return 0, CauseNone, ErrJoinSelf
	}

	s := c.enter(self)
	ls := m.threads.Lock(c.irq)

	target := m.tab.lookup(id)
	if target == nil || target.idle || target.detached || target.release {
		m.threads.Unlock(c.irq, ls)
		c.guard.Unlock(c.irq, s)
		return 0, CauseNone, fmt.Errorf("%w: %#x", ErrInvalidHandle, uint32(id))
	}

	if target.is(StateZombie) {
		v, cause := target.exit, target.cause
		target.release = true
		reclaim := target.switchedOut
		stack := target.stack.Base
		if reclaim {
			m.tab.reclaim(target)
		}
		m.threads.Unlock(c.irq, ls)
		c.guard.Unlock(c.irq, s)

		if reclaim {
			_ = m.cfg.Memory.Free(stack)
		}
		c.preemptPoint(self)
		return v, cause, nil
	}

	self.setState(StateBlocked)
	m.ledger.addJoiner(m.tab, self, id)
	m.threads.Unlock(c.irq, ls)
	c.schedule(self, s)

	v, cause := self.joinExit, self.joinCause
	self.joinExit, self.joinCause = 0, CauseNone
	c.preemptPoint(self)
	return v, cause, nil
}

// Spawn creates a thread. A new thread that outranks the caller on the same
// core runs before Spawn returns.
func (t *Thread) Spawn(spec ThreadSpec) (ThreadID, error) {
	t.c.checkFault(t.t)
	id, err := t.m.createThread(spec, t.c.irq)
	if err != nil {
		return 0, err
	}
	t.c.preemptPoint(t.t)
	return id, nil
}

// Detach marks the calling thread to be reclaimed as soon as it terminates.
func (t *Thread) Detach() error {
	return t.m.detach(t.t.id, t.c.irq)
}

// Exit terminates the thread normally with exit value v. Deferred calls of the
// thread run first.
func (t *Thread) Exit(v uintptr) {
	panic(threadExit{value: v})
}

// Panic terminates the thread with cause PANIC. The rest of the system keeps
// running.
func (t *Thread) Panic(v any) {
	panic(threadPanic{value: v})
}

type threadExit struct{ value uintptr }

type threadPanic struct{ value any }

type faultSignal struct{ exc Exception }

// run executes the entry routine of t and classifies how it ended.
func (m *Machine) run(t *tcb) (v uintptr, cause Cause) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		v = 0
		switch sig := r.(type) {
		case threadExit:
			v, cause = sig.value, CauseNormal
		case threadPanic:
			cause = CausePanic
			m.logf("sched: thread %#x (%s) panicked: %v", uint32(t.id), t.name, sig.value)
		case faultSignal:
			cause = CauseFault
			m.recordFault(t, sig.exc)
		case error:
			if exc, ok := exceptionFor(sig); ok {
				cause = CauseFault
				m.recordFault(t, exc)
				return
			}
			cause = CausePanic
			m.logf("sched: thread %#x (%s) panicked: %v", uint32(t.id), t.name, sig)
		default:
			cause = CausePanic
			m.logf("sched: thread %#x (%s) panicked: %v", uint32(t.id), t.name, sig)
		}
	}()
	return t.entry(t.handle(), t.arg), CauseNormal
}

func (m *Machine) logf(format string, args ...any) {
	m.cfg.Logger.WriteLineString(fmt.Sprintf(format, args...))
}
