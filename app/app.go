// Package app assembles the system: it boots the scheduler on the HAL, pumps
// timer interrupts into it, drains the kernel log to the host and the console,
// and runs the init thread.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"kestrel/console"
	"kestrel/hal"
	"kestrel/internal/buildinfo"
	"kestrel/kernel"
	"kestrel/kernel/klog"
	"kestrel/kernel/sched"

	"golang.org/x/sync/errgroup"
)

// errStopped ends the run group once the system is done.
var errStopped = errors.New("app: stopped")

// System is a booted machine plus the services around it.
type System struct {
	cfg Config
	h   hal.HAL
	m   *sched.Machine
	log *klog.Log
	con *console.Console

	initDone chan struct{}
	initErr  error

	runDone chan struct{}
	runErr  error
	once    sync.Once
}

// New creates the machine described by cfg on h. The system does not run
// until Run.
func New(h hal.HAL, cfg Config) (*System, error) {
	if cfg.Demo != "" && demos[cfg.Demo] == nil {
		return nil, fmt.Errorf("app: unknown demo %q", cfg.Demo)
	}

	log := klog.New()
	m, err := sched.New(sched.Config{
		Cores:      cfg.Cores,
		MaxThreads: cfg.MaxThreads,
		Memory:     h.Memory(),
		Logger:     log,
	})
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	log.SetClock(m.Now)

	s := &System{
		cfg:      cfg,
		h:        h,
		m:        m,
		log:      log,
		initDone: make(chan struct{}),
		runDone:  make(chan struct{}),
	}
	if cfg.Console {
		// A host without a framebuffer just logs.
		if c, err := console.New(h.Display()); err == nil {
			s.con = c
		}
	}

	if l := h.Logger(); l != nil {
		kernel.SetPanicOutput(l)
	}
	kernel.SetPanicHandler(panicHandler(h, s.con))
	return s, nil
}

// Machine returns the scheduler.
func (s *System) Machine() *sched.Machine { return s.m }

// Log returns the kernel log.
func (s *System) Log() *klog.Log { return s.log }

// Run starts the cores and the init thread and serves timer interrupts until
// ctx is done, the tick limit is reached or the demo finishes.
func (s *System) Run(ctx context.Context) error {
	defer s.once.Do(func() { close(s.runDone) })

	g, ctx := errgroup.WithContext(ctx)

	st := s.h.Memory().Stats()
	s.log.Printf("boot", "kestrel %s: %d cores, %d Hz, %d KiB RAM", buildinfo.Short(), s.m.Cores(), s.cfg.Hz, st.TotalBytes>>10)

	if err := s.m.Start(ctx); err != nil {
		s.runErr = err
		return err
	}
	if _, err := s.m.CreateThread(sched.ThreadSpec{
		Name:     "init",
		Priority: initPriority,
		Entry:    s.init,
		Detached: true,
	}); err != nil {
		s.runErr = fmt.Errorf("app: start init: %w", err)
		return s.runErr
	}

	g.Go(func() error { return s.pumpTicks(ctx) })
	g.Go(func() error {
		select {
		case <-ctx.Done():
			return nil
		case <-s.initDone:
			if s.cfg.Demo == "" {
				return nil
			}
			if s.initErr != nil {
				return s.initErr
			}
			return errStopped
		}
	})

	err := g.Wait()
	if errors.Is(err, errStopped) {
		err = nil
	}
	s.runErr = err
	return err
}

// pumpTicks turns HAL timer ticks into scheduler ticks.
func (s *System) pumpTicks(ctx context.Context) error {
	t := s.h.Time()
	if t == nil || t.Ticks() == nil {
		<-ctx.Done()
		return nil
	}
	ticks := t.Ticks()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticks:
			now := s.m.Tick()
			if s.cfg.Ticks > 0 && now >= s.cfg.Ticks {
				s.log.Printf("boot", "tick limit reached")
				return errStopped
			}
		}
	}
}

// init is the first thread. It runs the configured demo and reports the
// outcome.
func (s *System) init(t *sched.Thread, _ uintptr) uintptr {
	defer close(s.initDone)

	d := demos[s.cfg.Demo]
	if d == nil {
		return 0
	}
	s.log.Printf(demoModule, "%s started", s.cfg.Demo)
	if err := d(t, s.log); err != nil {
		s.initErr = fmt.Errorf("app: demo %s: %w", s.cfg.Demo, err)
		s.log.Printf(demoModule, "%s error: %v", s.cfg.Demo, err)
		return 1
	}
	s.log.Printf(demoModule, "%s done", s.cfg.Demo)
	return 0
}

// Step is called by the host runner once per frame. It drains the kernel log
// and refreshes the console, and reports hal.ErrFinished once Run returned.
func (s *System) Step() error {
	s.log.Drain(s)
	if s.con != nil {
		if err := s.con.Flush(); err != nil {
			return err
		}
	}

	select {
	case <-s.runDone:
		// Lines logged while Run wound down.
		s.log.Drain(s)
		if s.con != nil {
			_ = s.con.Flush()
		}
		if s.runErr != nil {
			return s.runErr
		}
		return hal.ErrFinished
	default:
		return nil
	}
}

// WriteLineBytes sends one drained log line to the host logger and the
// console.
func (s *System) WriteLineBytes(b []byte) {
	if l := s.h.Logger(); l != nil {
		l.WriteLineBytes(b)
	}
	if s.con != nil {
		s.con.WriteLineBytes(b)
	}
}
