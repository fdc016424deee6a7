package arch

// hostContext backs a thread with a goroutine. The goroutine only runs while
// it holds the resume token; a buffered channel of one remembers a restore
// that races ahead of the matching save.
type hostContext struct {
	resume chan struct{}
	stack  Stack
}

// NewContext prepares a context whose first restore runs entry. When entry
// returns the thread is gone; its last act must be restoring another context.
func NewContext(stack Stack, entry func()) Context {
	c := &hostContext{
		resume: make(chan struct{}, 1),
		stack:  stack,
	}
	go func() {
		<-c.resume
		entry()
	}()
	return c
}

func (c *hostContext) Save() {
	<-c.resume
}

func (c *hostContext) Restore() {
	select {
	case c.resume <- struct{}{}:
	default:
		panic("arch: context restored twice")
	}
}
