// Package arch exposes the architecture specific context switch as a single
// capability. The scheduler never inspects a saved context.
package arch

// Stack describes the stack region owned by a thread.
type Stack struct {
	Base uintptr
	Size uintptr
}

// Top returns the initial stack pointer of a downward growing stack.
func (s Stack) Top() uintptr {
	return s.Base + s.Size
}

// Context is the saved execution state of one thread.
type Context interface {
	// Save parks the calling thread until its context is restored.
	Save()

	// Restore resumes the thread owning the context. A context is restored
	// at most once per Save.
	Restore()
}

// Switch restores to and parks the caller on from. It returns once from is
// restored again.
func Switch(from, to Context) {
	to.Restore()
	from.Save()
}
