package sched

import (
	"sync/atomic"

	"kestrel/kernel/arch"
)

// Entry is the routine a thread starts in. Its return value becomes the exit
// value of a normal termination.
type Entry func(t *Thread, arg uintptr) uintptr

const nilSlot int32 = -1

// tcb is the thread control block. It lives in the machine's table and is
// linked into queues by slot index.
type tcb struct {
	id   ThreadID
	slot int32
	gen  uint16
	name string
	core int
	prio Priority
	idle bool

	state atomic.Uint32

	ctx   arch.Context
	stack arch.Stack
	entry Entry
	arg   uintptr

	// Termination result, written under the threads guard.
	cause  Cause
	exit   uintptr
	vector Vector

	// Reclaim bookkeeping, under the threads guard. release marks the slot
	// for reclaim; switchedOut is set once the zombie left its core.
	detached    bool
	release     bool
	switchedOut bool

	// Wait linkage. Guarded by the lock of the queue that holds the thread.
	on         *tqueue
	next, prev int32

	// Sleep/wait ledger entry, under the threads guard.
	wakeAt  uint64
	waitFor ThreadID

	// Join result handed to this thread by the thread it waited for.
	joinExit  uintptr
	joinCause Cause

	created    uint64
	dispatches atomic.Uint64
	runTicks   atomic.Uint64

	th Thread
}

func (t *tcb) loadState() State     { return State(t.state.Load()) }
func (t *tcb) setState(s State)     { t.state.Store(uint32(s)) }
func (t *tcb) is(s State) bool      { return t.loadState() == s }
func (t *tcb) linked() bool         { return t.on != nil }
func (t *tcb) handle() *Thread      { return &t.th }
func (t *tcb) outranks(o *tcb) bool { return o.idle || t.prio > o.prio }

// table is the fixed-capacity arena of control blocks.
type table struct {
	slots []tcb
	free  []int32
	live  int
}

func newTable(n int) *table {
	tab := &table{
		slots: make([]tcb, n),
		free:  make([]int32, 0, n),
	}
	for i := n - 1; i >= 0; i-- {
		t := &tab.slots[i]
		t.slot = int32(i)
		t.next, t.prev = nilSlot, nilSlot
		tab.free = append(tab.free, int32(i))
	}
	return tab
}

func (tab *table) at(slot int32) *tcb {
	if slot == nilSlot {
		return nil
	}
	return &tab.slots[slot]
}

// alloc hands out a zeroed control block with a fresh handle.
func (tab *table) alloc() *tcb {
	if len(tab.free) == 0 {
		return nil
	}
	slot := tab.free[len(tab.free)-1]
	tab.free = tab.free[:len(tab.free)-1]

	t := &tab.slots[slot]
	gen := t.gen + 1
	if gen == 0 {
		gen = 1
	}
	*t = tcb{slot: slot, gen: gen, next: nilSlot, prev: nilSlot}
	t.id = makeThreadID(slot, gen)
	t.setState(StateReady)
	tab.live++
	return t
}

func (tab *table) lookup(id ThreadID) *tcb {
	slot := id.slot()
	if id == 0 || int(slot) >= len(tab.slots) {
		return nil
	}
	t := &tab.slots[slot]
	if t.id != id || t.is(StateFree) {
		return nil
	}
	return t
}

func (tab *table) reclaim(t *tcb) {
	gen := t.gen
	slot := t.slot
	*t = tcb{slot: slot, gen: gen, next: nilSlot, prev: nilSlot}
	tab.free = append(tab.free, slot)
	tab.live--
}
