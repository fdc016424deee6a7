package sched

// ledger tracks threads blocked on a timer deadline or on another thread's
// termination. It is guarded by the machine's threads guard. A thread on the
// ledger is never on a ready queue.
type ledger struct {
	sleepers tqueue // ordered by wakeAt, FIFO among equal deadlines
	joiners  tqueue
}

func newLedger() ledger {
	return ledger{sleepers: newTQueue(), joiners: newTQueue()}
}

func (l *ledger) addSleeper(tab *table, t *tcb, wakeAt uint64) {
	t.wakeAt = wakeAt
	before := l.sleepers.front()
	for before != nilSlot {
		s := tab.at(before)
		if s.wakeAt > wakeAt {
			break
		}
		before = s.next
	}
	l.sleepers.insertBefore(tab, t, before)
}

// expire removes the sleepers of core whose deadline is at or before now.
func (l *ledger) expire(tab *table, core int, now uint64, out []*tcb) []*tcb {
	cur := l.sleepers.front()
	for cur != nilSlot {
		s := tab.at(cur)
		if s.wakeAt > now {
			break
		}
		cur = s.next
		if s.core != core {
			continue
		}
		l.sleepers.remove(tab, s)
		out = append(out, s)
	}
	return out
}

func (l *ledger) addJoiner(tab *table, t *tcb, target ThreadID) {
	t.waitFor = target
	l.joiners.push(tab, t)
}

// takeJoiners removes every thread waiting for target.
func (l *ledger) takeJoiners(tab *table, target ThreadID, out []*tcb) []*tcb {
	cur := l.joiners.front()
	for cur != nilSlot {
		j := tab.at(cur)
		cur = j.next
		if j.waitFor != target {
			continue
		}
		l.joiners.remove(tab, j)
		j.waitFor = 0
		out = append(out, j)
	}
	return out
}
