// Package sched implements the thread scheduler: a strict-priority, per-core
// preemptive scheduler with FIFO order inside a priority level, the thread
// lifecycle and join protocol, and the semaphore and mutex built on top of it.
package sched

import (
	"context"
	"fmt"
	"sync/atomic"

	"kestrel/kernel/arch"
	"kestrel/kernel/lock"
)

// Machine owns the cores, the thread table and the sleep/wait ledger.
type Machine struct {
	cfg   Config
	cores []*Core

	// threads guards the table and the ledger.
	threads lock.Guard
	tab     *table
	ledger  ledger

	uptime  atomic.Uint64
	started atomic.Bool
	quit    chan struct{}
}

// New creates a machine with one scheduler instance and idle thread per core.
// Cores do not run until Start.
func New(cfg Config) (*Machine, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	m := &Machine{
		cfg:    cfg,
		tab:    newTable(cfg.MaxThreads),
		ledger: newLedger(),
		quit:   make(chan struct{}),
	}
	m.cores = make([]*Core, cfg.Cores)
	for i := range m.cores {
		m.cores[i] = newCore(m, i)
	}

	for _, c := range m.cores {
		idle, err := m.newTCB(ThreadSpec{
			Name:     fmt.Sprintf("idle/%d", c.id),
			Priority: PriorityLowest,
			Core:     c.id,
			Entry:    m.idleLoop,
		}, nil)
		if err != nil {
			return nil, err
		}
		idle.idle = true
		c.idle = idle
		c.current = idle
	}
	return m, nil
}

// Cores returns the number of cores.
func (m *Machine) Cores() int { return len(m.cores) }

// Core returns the scheduler instance of core i.
func (m *Machine) Core(i int) *Core { return m.cores[i] }

// Now returns the uptime in ticks.
func (m *Machine) Now() uint64 { return m.uptime.Load() }

// Start dispatches the idle thread of every core. Cores stop picking up work
// once ctx is done.
func (m *Machine) Start(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	go func() {
		<-ctx.Done()
		close(m.quit)
		for _, c := range m.cores {
			c.irq.Raise(lock.LineWake)
		}
	}()

	for _, c := range m.cores {
		// Taken without a controller, so the saved state is meaningless: the
		// idle trampoline releases the guard with finishSwitch(lock.Enabled)
		// like any resumed thread, which also turns the core's interrupts on.
		_ = c.guard.Lock(nil)
		c.idle.setState(StateRunning)
		c.idle.dispatches.Add(1)
		c.idle.ctx.Restore()
	}
	return nil
}

// Tick is the periodic timer interrupt: it advances the uptime and raises the
// timer line of every core.
func (m *Machine) Tick() uint64 {
	now := m.uptime.Add(1)
	for _, c := range m.cores {
		c.irq.Raise(lock.LineTimer)
	}
	return now
}

// ThreadSpec describes a thread to create.
type ThreadSpec struct {
	Name      string
	Priority  Priority
	StackSize uintptr
	Core      int
	Entry     Entry
	Arg       uintptr
	Detached  bool
}

// CreateThread creates a thread and makes it READY at the tail of its
// priority level on its core. It may be called from any goroutine; threads
// use Thread.Spawn.
func (m *Machine) CreateThread(spec ThreadSpec) (ThreadID, error) {
	return m.createThread(spec, nil)
}

func (m *Machine) createThread(spec ThreadSpec, local *lock.Interrupts) (ThreadID, error) {
	t, err := m.newTCB(spec, local)
	if err != nil {
		return 0, err
	}
	id := t.id
	m.makeReady(t, local)
	return id, nil
}

func (m *Machine) newTCB(spec ThreadSpec, local *lock.Interrupts) (*tcb, error) {
	if int(spec.Priority) >= NumPriorities {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPriority, spec.Priority)
	}
	if spec.Core < 0 || spec.Core >= len(m.cores) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCore, spec.Core)
	}
	if spec.Entry == nil {
		return nil, ErrInvalidEntry
	}

	size := spec.StackSize
	if size == 0 {
		size = m.cfg.DefaultStackSize
	}
	base, err := m.cfg.Memory.Alloc(size)
	if err != nil {
		return nil, fmt.Errorf("%w: stack of %d bytes for %q: %v", ErrNoMemory, size, spec.Name, err)
	}

	s := m.threads.Lock(local)
	t := m.tab.alloc()
	if t == nil {
		m.threads.Unlock(local, s)
		_ = m.cfg.Memory.Free(base)
		m.cfg.Logger.WriteLineString(fmt.Sprintf("sched: thread table exhausted (%d slots), cannot create %q", len(m.tab.slots), spec.Name))
		return nil, ErrThreadTableFull
	}
	t.name = spec.Name
	t.core = spec.Core
	t.prio = spec.Priority
	t.entry = spec.Entry
	t.arg = spec.Arg
	t.detached = spec.Detached
	t.stack = arch.Stack{Base: base, Size: size}
	t.created = m.Now()
	t.th = Thread{m: m, t: t, c: m.cores[spec.Core]}
	t.ctx = arch.NewContext(t.stack, m.trampoline(t))
	m.threads.Unlock(local, s)
	return t, nil
}

// makeReady puts t at the tail of its level on its own core and asks that core
// to preempt if t outranks the running thread. No other guard may be held.
func (m *Machine) makeReady(t *tcb, local *lock.Interrupts) {
	c := m.cores[t.core]

	s := c.guard.Lock(local)
	t.setState(StateReady)
	c.ready.push(m.tab, t)
	preempt := c.current == nil || t.outranks(c.current)
	c.guard.Unlock(local, s)

	if preempt {
		c.requestResched()
	}
}

func (m *Machine) expireSleepers(c *Core, now uint64) []*tcb {
	s := m.threads.Lock(c.irq)
	due := m.ledger.expire(m.tab, c.id, now, nil)
	m.threads.Unlock(c.irq, s)
	return due
}

// trampoline is the first code a new thread runs.
func (m *Machine) trampoline(t *tcb) func() {
	return func() {
		c := m.cores[t.core]
		c.finishSwitch(lock.Enabled)
		v, cause := m.run(t)
		if t.idle {
			return
		}
		m.terminate(t, cause, v)
	}
}

// terminate turns t into a zombie, hands its result to every joiner and
// switches away for good.
func (m *Machine) terminate(t *tcb, cause Cause, v uintptr) {
	c := m.cores[t.core]

	s := m.threads.Lock(c.irq)
	t.cause = cause
	t.exit = v
	t.setState(StateZombie)
	joiners := m.ledger.takeJoiners(m.tab, t.id, nil)
	for _, j := range joiners {
		j.joinExit = v
		j.joinCause = cause
	}
	if t.detached || len(joiners) > 0 {
		t.release = true
	}
	m.threads.Unlock(c.irq, s)

	for _, j := range joiners {
		m.makeReady(j, c.irq)
	}

	s = c.guard.Lock(c.irq)
	c.clearFault(t)
	c.schedule(t, s)
}

// switchedOut records that a zombie left its core and reclaims it if nobody
// will join it anymore.
func (m *Machine) switchedOut(t *tcb, local *lock.Interrupts) {
	s := m.threads.Lock(local)
	t.switchedOut = true
	reclaim := t.release
	var stack uintptr
	if reclaim {
		stack = t.stack.Base
		m.tab.reclaim(t)
	}
	m.threads.Unlock(local, s)

	if reclaim {
		_ = m.cfg.Memory.Free(stack)
	}
}

// Detach marks a thread as never to be joined; it is reclaimed as soon as it
// terminates.
func (m *Machine) Detach(id ThreadID) error {
	return m.detach(id, nil)
}

func (m *Machine) detach(id ThreadID, local *lock.Interrupts) error {
	s := m.threads.Lock(local)
	t := m.tab.lookup(id)
	if t == nil || t.detached || t.release || t.idle {
		m.threads.Unlock(local, s)
		return ErrInvalidHandle
	}
	t.detached = true
	var stack uintptr
	reclaim := false
	if t.is(StateZombie) {
		t.release = true
		if t.switchedOut {
			reclaim = true
			stack = t.stack.Base
			m.tab.reclaim(t)
		}
	}
	m.threads.Unlock(local, s)

	if reclaim {
		_ = m.cfg.Memory.Free(stack)
	}
	return nil
}

// idleLoop runs on every core when no thread is ready. It services interrupts
// and dispatches work as it arrives.
func (m *Machine) idleLoop(t *Thread, _ uintptr) uintptr {
	c := t.c
	idle := t.t
	for {
		c.irq.Service()

		s := c.guard.Lock(c.irq)
		if c.ready.empty() {
			c.guard.Unlock(c.irq, s)
			select {
			case <-c.irq.Kick():
			case <-m.quit:
				return 0
			}
			continue
		}
		c.schedule(idle, s)
	}
}
