package sched

import "math/bits"

// readyQueue holds the runnable threads of one core: one FIFO per priority
// level plus a bitmap of the non-empty levels.
type readyQueue struct {
	levels [NumPriorities]tqueue
	mask   uint64
	n      int
}

func newReadyQueue() readyQueue {
	var rq readyQueue
	for i := range rq.levels {
		rq.levels[i] = newTQueue()
	}
	return rq
}

func (rq *readyQueue) empty() bool { return rq.n == 0 }

// push appends t at the tail of its priority level.
func (rq *readyQueue) push(tab *table, t *tcb) {
	rq.levels[t.prio].push(tab, t)
	rq.mask |= 1 << t.prio
	rq.n++
}

// top returns the highest non-empty level.
func (rq *readyQueue) top() (Priority, bool) {
	if rq.mask == 0 {
		return 0, false
	}
	return Priority(bits.Len64(rq.mask) - 1), true
}

// pop removes the head of the highest non-empty level.
func (rq *readyQueue) pop(tab *table) *tcb {
	p, ok := rq.top()
	if !ok {
		return nil
	}
	lvl := &rq.levels[p]
	t := lvl.pop(tab)
	if lvl.empty() {
		rq.mask &^= 1 << p
	}
	rq.n--
	return t
}

func (rq *readyQueue) counts() [NumPriorities]int {
	var out [NumPriorities]int
	for i := range rq.levels {
		out[i] = rq.levels[i].len()
	}
	return out
}
