package sched

import (
	"fmt"

	"kestrel/kernel/lock"
)

const (
	DefaultMaxThreads = 2048
	DefaultStackSize  = 8 << 10
)

// Allocator is the memory collaborator used for thread stacks.
type Allocator interface {
	Alloc(size uintptr) (uintptr, error)
	Free(addr uintptr) error
}

// Logger receives fatal configuration reports and thread diagnostics.
type Logger interface {
	WriteLineString(s string)
}

// Config describes a machine.
type Config struct {
	// Cores is the number of logical cores. Zero means one.
	Cores int

	// MaxThreads is the capacity of the thread table, idle threads included.
	MaxThreads int

	// DefaultStackSize is used when a thread is created with a zero stack size.
	DefaultStackSize uintptr

	Memory Allocator
	Logger Logger
}

func (c Config) withDefaults() Config {
	if c.Cores == 0 {
		c.Cores = 1
	}
	if c.MaxThreads == 0 {
		c.MaxThreads = DefaultMaxThreads
	}
	if c.DefaultStackSize == 0 {
		c.DefaultStackSize = DefaultStackSize
	}
	if c.Logger == nil {
		c.Logger = discardLogger{}
	}
	return c
}

func (c Config) validate() error {
	if c.Cores < 0 {
		return fmt.Errorf("%w: %d cores", ErrInvalidConfig, c.Cores)
	}
	if c.Cores > lock.MaxCores {
		return fmt.Errorf("%w: %d requested, %d available", ErrUnsupportedCores, c.Cores, lock.MaxCores)
	}
	if c.MaxThreads <= c.Cores || c.MaxThreads > MaxTableSize {
		return fmt.Errorf("%w: table of %d threads for %d cores", ErrInvalidConfig, c.MaxThreads, c.Cores)
	}
	if c.Memory == nil {
		return fmt.Errorf("%w: no memory allocator", ErrInvalidConfig)
	}
	return nil
}

type discardLogger struct{}

func (discardLogger) WriteLineString(string) {}
