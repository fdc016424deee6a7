package sched

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"

	"kestrel/kernel"
	"kestrel/kernel/lock"
)

// Core is the scheduler instance of one logical core. Threads never migrate
// between cores.
type Core struct {
	_ cpu.CacheLinePad

	id  int
	m   *Machine
	irq *lock.Interrupts

	// guard protects ready, current and dead. It is held across a context
	// switch and released by the thread that resumes.
	guard   lock.Guard
	ready   readyQueue
	current *tcb
	idle    *tcb
	dead    *tcb

	resched atomic.Bool
	fault   atomic.Pointer[pendingFault]

	switches atomic.Uint64
	ticks    atomic.Uint64

	_ cpu.CacheLinePad
}

type pendingFault struct {
	target ThreadID
	exc    Exception
}

func newCore(m *Machine, id int) *Core {
	c := &Core{id: id, m: m, ready: newReadyQueue()}
	c.irq = lock.NewInterrupts(c.interrupt)
	return c
}

// ID returns the core index.
func (c *Core) ID() int { return c.id }

// Interrupts returns the local interrupt controller of the core.
func (c *Core) Interrupts() *lock.Interrupts { return c.irq }

// interrupt is the core's interrupt handler. It runs on the core with
// interrupts disabled and only records work for the next safe point.
func (c *Core) interrupt(line lock.Line) {
	switch line {
	case lock.LineTimer:
		c.tick()
	case lock.LineWake, lock.LineFault:
		c.resched.Store(true)
	}
}

// tick wakes the core's elapsed sleepers and requests a round-robin
// reschedule.
func (c *Core) tick() {
	c.ticks.Add(1)

	due := c.m.expireSleepers(c, c.m.Now())
	for _, t := range due {
		c.m.makeReady(t, c.irq)
	}

	s := c.guard.Lock(c.irq)
	if cur := c.current; cur != nil && !cur.idle {
		cur.runTicks.Add(1)
	}
	c.guard.Unlock(c.irq, s)

	c.resched.Store(true)
}

// requestResched asks the core to reschedule at its next safe point.
func (c *Core) requestResched() {
	c.resched.Store(true)
	c.irq.Raise(lock.LineWake)
}

// preemptPoint is a safe point of cur: latched interrupts are serviced, a
// pending fault of cur unwinds it, and a requested reschedule is performed.
// Nothing happens while cur runs with interrupts disabled.
func (c *Core) preemptPoint(cur *tcb) {
	if !c.irq.Enabled() {
		return
	}
	c.irq.Service()

	if f := c.fault.Load(); f != nil && f.target == cur.id && c.fault.CompareAndSwap(f, nil) {
		c.deliver(cur, f.exc)
	}

	if c.resched.Load() {
		s := c.enter(cur)
		c.schedule(cur, s)
	}
}

// enter takes the core guard for a kernel call of cur. If a fault is pending
// for cur, the guard is dropped again and cur unwinds instead, so a faulted
// thread never completes another call or switches out with the fault still
// pending.
func (c *Core) enter(cur *tcb) lock.State {
	s := c.guard.Lock(c.irq)
	if s != lock.Enabled {
		return s
	}
	if f := c.fault.Load(); f != nil && f.target == cur.id {
		c.fault.Store(nil)
		c.guard.Unlock(c.irq, s)
		c.deliver(cur, f.exc)
	}
	return s
}

// checkFault unwinds cur if a fault is pending for it.
func (c *Core) checkFault(cur *tcb) {
	s := c.enter(cur)
	c.guard.Unlock(c.irq, s)
}

// clearFault drops a fault still pending for t. The core guard must be held.
func (c *Core) clearFault(t *tcb) {
	if f := c.fault.Load(); f != nil && f.target == t.id {
		c.fault.Store(nil)
	}
}

func (c *Core) deliver(cur *tcb, exc Exception) {
	if cur.idle {
		kernel.Panic(errIdleFault)
	}
	panic(faultSignal{exc: exc})
}

// schedule selects the next thread of the core and switches to it. The core
// guard must be held with saved state s; it is released on return.
//
// A RUNNING cur is re-queued at the tail of its level. A ZOMBIE cur never
// returns from the switch.
func (c *Core) schedule(cur *tcb, s lock.State) {
	tab := c.m.tab
	c.resched.Store(false)

	if cur.is(StateRunning) && !cur.idle {
		cur.setState(StateReady)
		c.ready.push(tab, cur)
	}

	next := c.ready.pop(tab)
	if next == nil {
		next = c.idle
	}

	if next == cur {
		cur.setState(StateRunning)
		c.guard.Unlock(c.irq, s)
		return
	}

	if cur.idle {
		cur.setState(StateReady)
	}
	next.setState(StateRunning)
	next.dispatches.Add(1)
	c.current = next
	c.switches.Add(1)

	if cur.is(StateZombie) {
		c.dead = cur
		next.ctx.Restore()
		return
	}

	next.ctx.Restore()
	cur.ctx.Save()
	c.finishSwitch(s)
}

// finishSwitch runs on the thread that just resumed on the core: it releases
// the guard handed over by the previous thread and reclaims that thread if it
// terminated.
func (c *Core) finishSwitch(s lock.State) {
	dead := c.dead
	c.dead = nil
	c.guard.Unlock(c.irq, s)

	if dead != nil {
		c.m.switchedOut(dead, c.irq)
	}
}

// snapshot reads the per-core state for diagnostics.
func (c *Core) snapshot() CoreStats {
	s := c.guard.Lock(nil)
	defer c.guard.Unlock(nil, s)

	st := CoreStats{
		Core:     c.id,
		Ready:    c.ready.n,
		Levels:   c.ready.counts(),
		Switches: c.switches.Load(),
		Ticks:    c.ticks.Load(),
	}
	if cur := c.current; cur != nil {
		st.Current = cur.id
		st.CurrentName = cur.name
		st.Idle = cur.idle
	}
	return st
}
