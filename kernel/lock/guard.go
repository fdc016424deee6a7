package lock

// Guard protects state shared across cores. Lock disables local interrupts
// before taking the spinlock so the holder cannot be preempted on its own core
// and re-enter the same lock.
type Guard struct {
	sl Spinlock
}

// Lock disables interrupts on the caller's core and acquires the spinlock.
// Callers that do not run on a core pass a nil controller.
func (g *Guard) Lock(local *Interrupts) State {
	s := local.Disable()
	g.sl.Acquire()
	return s
}

// Unlock releases the spinlock and restores the caller's interrupt state.
func (g *Guard) Unlock(local *Interrupts, s State) {
	g.sl.Release()
	local.Restore(s)
}

// Held reports whether some core holds the guard.
func (g *Guard) Held() bool {
	return g.sl.Held()
}
