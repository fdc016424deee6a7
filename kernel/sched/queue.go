package sched

import "kestrel/kernel"

// tqueue is an intrusive FIFO of control blocks linked by table slot. The
// lock that guards a queue also guards the link fields of its members.
type tqueue struct {
	head, tail int32
	n          int
}

func newTQueue() tqueue {
	return tqueue{head: nilSlot, tail: nilSlot}
}

func (q *tqueue) len() int     { return q.n }
func (q *tqueue) empty() bool  { return q.n == 0 }
func (q *tqueue) front() int32 { return q.head }

// push appends t at the tail.
func (q *tqueue) push(tab *table, t *tcb) {
	q.insertBefore(tab, t, nilSlot)
}

// insertBefore links t in front of the member at slot before, or at the tail
// when before is nilSlot.
func (q *tqueue) insertBefore(tab *table, t *tcb, before int32) {
	if t.linked() {
		kernel.Panic(errQueueCorrupt)
	}

	t.on = q
	if before == nilSlot {
		t.prev = q.tail
		t.next = nilSlot
		if q.tail == nilSlot {
			q.head = t.slot
		} else {
			tab.at(q.tail).next = t.slot
		}
		q.tail = t.slot
	} else {
		b := tab.at(before)
		if b.on != q {
			kernel.Panic(errQueueCorrupt)
		}
		t.next = before
		t.prev = b.prev
		if b.prev == nilSlot {
			q.head = t.slot
		} else {
			tab.at(b.prev).next = t.slot
		}
		b.prev = t.slot
	}
	q.n++
}

// remove unlinks t, which must be a member of q.
func (q *tqueue) remove(tab *table, t *tcb) {
	if t.on != q || q.n == 0 {
		kernel.Panic(errQueueCorrupt)
	}

	if t.prev == nilSlot {
		q.head = t.next
	} else {
		tab.at(t.prev).next = t.next
	}
	if t.next == nilSlot {
		q.tail = t.prev
	} else {
		tab.at(t.next).prev = t.prev
	}
	t.on = nil
	t.next, t.prev = nilSlot, nilSlot
	q.n--
}

// pop unlinks and returns the head, or nil.
func (q *tqueue) pop(tab *table) *tcb {
	t := tab.at(q.head)
	if t == nil {
		return nil
	}
	q.remove(tab, t)
	return t
}
