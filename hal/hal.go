package hal

import "errors"

// Logger writes newline-delimited log lines.
type Logger interface {
	WriteLineString(s string)
	WriteLineBytes(b []byte)
}

var (
	ErrNotImplemented = errors.New("not implemented")
	ErrOutOfMemory    = errors.New("hal: out of memory")
	ErrBadFree        = errors.New("hal: free of unallocated address")
)

// PixelFormat defines the framebuffer pixel encoding.
type PixelFormat uint8

const (
	// PixelFormatRGB565 is 16bpp: rrrrrggggggbbbbb.
	PixelFormatRGB565 PixelFormat = iota + 1
)

// Framebuffer is a simple pixel buffer plus a "present" hook.
type Framebuffer interface {
	Width() int
	Height() int
	Format() PixelFormat
	StrideBytes() int
	Buffer() []byte
	ClearRGB(r, g, b uint8)
	Present() error
}

// Display provides access to the framebuffer (if available).
type Display interface {
	Framebuffer() Framebuffer
}

// Time provides a base tick stream.
//
// Every value received is the running count of timer interrupts since boot.
type Time interface {
	Ticks() <-chan uint64
}

// MemStats describes the physical memory pool.
type MemStats struct {
	TotalBytes uintptr
	UsedBytes  uintptr
	Allocs     int
}

// Memory hands out page-granular blocks of physical memory. Kernel stacks are
// carved from it.
type Memory interface {
	Alloc(size uintptr) (uintptr, error)
	Free(addr uintptr) error
	Stats() MemStats
}

// HAL provides the only contact point between the kernel and the outside world.
type HAL interface {
	Logger() Logger
	Display() Display
	Time() Time
	Memory() Memory
}
