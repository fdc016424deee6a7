// Package lock provides the lowest level mutual exclusion primitives of the
// kernel: the per-core interrupt controller used for critical sections, the
// spinlock and the guard that combines both.
package lock

import (
	"runtime"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// spinsBeforeYield is the number of failed attempts before the spinning core
// hands its host thread back to the Go runtime.
const spinsBeforeYield = 64

// yieldFn is swapped by tests.
var yieldFn = runtime.Gosched

// Spinlock implements a lock where each core trying to acquire it busy-waits
// till the lock becomes available.
type Spinlock struct {
	_     cpu.CacheLinePad
	state atomic.Uint32
	_     cpu.CacheLinePad
}

// Acquire blocks until the lock can be acquired by the calling core. Any
// attempt to re-acquire a lock already held by the same core will deadlock.
func (l *Spinlock) Acquire() {
	for spins := 0; ; spins++ {
		if l.state.Load() == 0 && l.state.CompareAndSwap(0, 1) {
			return
		}
		if spins >= spinsBeforeYield {
			yieldFn()
			spins = 0
		}
	}
}

// TryAcquire attempts to acquire the lock and returns true if the lock could
// be acquired or false otherwise.
func (l *Spinlock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release relinquishes a held lock allowing other cores to acquire it. Calling
// Release while the lock is free has no effect.
func (l *Spinlock) Release() {
	l.state.Store(0)
}

// Held reports whether the lock is currently held.
func (l *Spinlock) Held() bool {
	return l.state.Load() != 0
}
