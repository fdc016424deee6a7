package hal

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// HostConfig describes the simulated board.
type HostConfig struct {
	// RAMBytes is the size of the physical memory pool. Zero means 16 MiB.
	RAMBytes int
	// Width and Height size the framebuffer. Zero means 320x320.
	Width, Height int
	// Hz is the timer interrupt rate. Zero means 1000.
	Hz int
	// Log receives logger output. Nil means stdout.
	Log io.Writer
}

func (c HostConfig) withDefaults() HostConfig {
	if c.RAMBytes <= 0 {
		c.RAMBytes = 16 << 20
	}
	if c.Width <= 0 || c.Height <= 0 {
		c.Width, c.Height = 320, 320
	}
	if c.Hz <= 0 {
		c.Hz = 1000
	}
	if c.Log == nil {
		c.Log = os.Stdout
	}
	return c
}

// Host is the HAL of the hosted build.
type Host struct {
	logger *hostLogger
	fb     *hostFramebuffer
	t      *hostTime
	mem    *hostMemory
}

// New returns a host HAL implementation. Close releases its memory pool.
func New(cfg HostConfig) (*Host, error) {
	cfg = cfg.withDefaults()

	mem, err := newHostMemory(cfg.RAMBytes)
	if err != nil {
		return nil, fmt.Errorf("hal: map %d bytes of RAM: %w", cfg.RAMBytes, err)
	}
	return &Host{
		logger: &hostLogger{w: cfg.Log},
		fb:     newHostFramebuffer(cfg.Width, cfg.Height),
		t:      newHostTime(cfg.Hz),
		mem:    mem,
	}, nil
}

func (h *Host) Logger() Logger   { return h.logger }
func (h *Host) Display() Display { return hostDisplay{fb: h.fb} }
func (h *Host) Time() Time       { return h.t }
func (h *Host) Memory() Memory   { return h.mem }

// Close unmaps the memory pool.
func (h *Host) Close() error {
	return h.mem.close()
}

type hostDisplay struct {
	fb *hostFramebuffer
}

func (d hostDisplay) Framebuffer() Framebuffer { return d.fb }

type hostLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *hostLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, s)
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Write(b)
	l.w.Write([]byte{'\n'})
}
