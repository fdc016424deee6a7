package sched

import (
	"fmt"

	"kestrel/kernel/lock"
)

// Semaphore is a counting semaphore. Waiters are woken in FIFO order and a
// post to a semaphore with waiters hands the unit directly to the first one.
//
// Between any two operations, count equals the initial count plus completed
// posts minus completed pends, and count is non-zero only while nobody waits.
type Semaphore struct {
	m *Machine

	guard   lock.Guard
	count   int
	waiters tqueue
}

// NewSemaphore returns a semaphore holding initial units.
func (m *Machine) NewSemaphore(initial int) (*Semaphore, error) {
	if initial < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativeCount, initial)
	}
	return &Semaphore{m: m, count: initial, waiters: newTQueue()}, nil
}

// Pend takes one unit, blocking the thread until one is available.
func (s *Semaphore) Pend(t *Thread) {
	s.pend(t)
	t.c.preemptPoint(t.t)
}

// pend is Pend without the trailing safe point.
func (s *Semaphore) pend(t *Thread) {
	c, self := t.c, t.t

	cs := c.enter(self)
	ss := s.guard.Lock(c.irq)
	if s.count > 0 {
		s.count--
		s.guard.Unlock(c.irq, ss)
		c.guard.Unlock(c.irq, cs)
		return
	}

	self.setState(StateBlocked)
	s.waiters.push(s.m.tab, self)
	s.guard.Unlock(c.irq, ss)
	c.schedule(self, cs)
}

// TryPend takes one unit if one is available without blocking.
func (s *Semaphore) TryPend(t *Thread) bool {
	t.c.checkFault(t.t)
	return s.tryPend(t.c.irq)
}

func (s *Semaphore) tryPend(local *lock.Interrupts) bool {
	ss := s.guard.Lock(local)
	ok := s.count > 0
	if ok {
		s.count--
	}
	s.guard.Unlock(local, ss)
	return ok
}

// Post releases one unit. The first waiter, if any, becomes READY and may
// preempt the thread running on its core. t is the calling thread, or nil
// when posting from outside the machine.
func (s *Semaphore) Post(t *Thread) {
	if t == nil {
		s.post(nil)
		return
	}
	t.c.checkFault(t.t)
	s.post(t.c.irq)
	t.c.preemptPoint(t.t)
}

func (s *Semaphore) post(local *lock.Interrupts) {
	ss := s.guard.Lock(local)
	w := s.waiters.pop(s.m.tab)
	if w == nil {
		s.count++
	}
	s.guard.Unlock(local, ss)

	if w != nil {
		s.m.makeReady(w, local)
	}
}

// Count returns the number of available units.
func (s *Semaphore) Count() int {
	ss := s.guard.Lock(nil)
	defer s.guard.Unlock(nil, ss)
	return s.count
}

// Waiters returns the number of blocked threads.
func (s *Semaphore) Waiters() int {
	ss := s.guard.Lock(nil)
	defer s.guard.Unlock(nil, ss)
	return s.waiters.len()
}
