package sched

import "sync/atomic"

// Mutex is a sleeping lock owned by the thread that acquired it. It is a
// semaphore of one unit plus an owner record.
type Mutex struct {
	sem   *Semaphore
	owner atomic.Uint32
}

// NewMutex returns an unlocked mutex.
func (m *Machine) NewMutex() *Mutex {
	sem, _ := m.NewSemaphore(1)
	return &Mutex{sem: sem}
}

// Lock acquires the mutex, blocking while another thread holds it.
func (mu *Mutex) Lock(t *Thread) error {
	if ThreadID(mu.owner.Load()) == t.ID() {
		return ErrRecursiveLock
	}
	mu.sem.pend(t)
	mu.owner.Store(uint32(t.ID()))
	t.c.preemptPoint(t.t)
	return nil
}

// TryLock acquires the mutex if it is free.
func (mu *Mutex) TryLock(t *Thread) bool {
	t.c.checkFault(t.t)
	if !mu.sem.tryPend(t.c.irq) {
		return false
	}
	mu.owner.Store(uint32(t.ID()))
	return true
}

// Unlock releases the mutex. Only the owner may unlock it.
func (mu *Mutex) Unlock(t *Thread) error {
	if ThreadID(mu.owner.Load()) != t.ID() {
		return ErrNotOwner
	}
	t.c.checkFault(t.t)
	mu.owner.Store(0)
	mu.sem.post(t.c.irq)
	t.c.preemptPoint(t.t)
	return nil
}

// Owner returns the handle of the holding thread, or zero.
func (mu *Mutex) Owner() ThreadID {
	return ThreadID(mu.owner.Load())
}
