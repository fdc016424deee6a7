package sched

import (
	"errors"
	"sync/atomic"
	"testing"

	"kestrel/kernel/lock"
)

// joinFrom creates a low priority thread that waits for target and reports
// the outcome.
func joinFrom(t *testing.T, m *Machine, target ThreadID) <-chan joinResult {
	t.Helper()
	out := make(chan joinResult, 1)
	mustCreate(t, m, ThreadSpec{
		Name:     "joiner",
		Priority: 1,
		Entry: func(th *Thread, _ uintptr) uintptr {
			v, cause, err := th.Wait(target)
			out <- joinResult{value: v, cause: cause, err: err}
			return 0
		},
	})
	return out
}

func TestJoinTerminationCauses(t *testing.T) {
	specs := []struct {
		name      string
		prio      Priority
		entry     Entry
		wantValue uintptr
		wantCause Cause
		wantLog   string
	}{
		{
			name:      "return",
			prio:      0,
			entry:     func(*Thread, uintptr) uintptr { return 42 },
			wantValue: 42,
			wantCause: CauseNormal,
		},
		{
			name: "exit",
			prio: 7,
			entry: func(th *Thread, _ uintptr) uintptr {
				th.Exit(7)
				return 1
			},
			wantValue: 7,
			wantCause: CauseNormal,
		},
		{
			name: "divide by zero",
			prio: 7,
			entry: func(_ *Thread, arg uintptr) uintptr {
				zero := int(arg)
				return uintptr(100 / zero)
			},
			wantCause: CauseFault,
			wantLog:   "divide error",
		},
		{
			name: "nil dereference",
			prio: 0,
			entry: func(_ *Thread, arg uintptr) uintptr {
				var p *uintptr
				if arg == 0 {
					return *p
				}
				return arg
			},
			wantCause: CauseFault,
			wantLog:   "page fault",
		},
		{
			name: "thread panic",
			prio: 7,
			entry: func(th *Thread, _ uintptr) uintptr {
				th.Panic("assertion failed")
				return 1
			},
			wantCause: CausePanic,
			wantLog:   "assertion failed",
		},
		{
			name: "go panic",
			prio: 0,
			entry: func(*Thread, uintptr) uintptr {
				panic("unexpected state")
			},
			wantCause: CausePanic,
			wantLog:   "unexpected state",
		},
	}

	for _, spec := range specs {
		t.Run(spec.name, func(t *testing.T) {
			m, _, log := newTestMachine(t, 1)
			id := mustCreate(t, m, ThreadSpec{Name: spec.name, Priority: spec.prio, Entry: spec.entry})
			res := joinFrom(t, m, id)
			boot(t, m, false)

			got := recvResult(t, res)
			if got.err != nil {
				t.Fatalf("Wait() error = %v", got.err)
			}
			if got.cause != spec.wantCause {
				t.Fatalf("Wait() cause = %v, want %v", got.cause, spec.wantCause)
			}
			if spec.wantCause == CauseNormal && got.value != spec.wantValue {
				t.Fatalf("Wait() value = %d, want %d", got.value, spec.wantValue)
			}
			if spec.wantLog != "" && !log.contains(spec.wantLog) {
				t.Fatalf("log does not mention %q: %q", spec.wantLog, log.lines)
			}
		})
	}
}

func TestJoinTwiceFromTwoWaiters(t *testing.T) {
	m, mem, _ := newTestMachine(t, 1)

	target := mustCreate(t, m, ThreadSpec{
		Name:     "target",
		Priority: 2,
		Entry: func(th *Thread, _ uintptr) uintptr {
			th.Yield()
			return 9
		},
	})

	results := make(chan joinResult, 2)
	again := make(chan error, 2)
	for i := 0; i < 2; i++ {
		mustCreate(t, m, ThreadSpec{
			Name:     "joiner",
			Priority: 4,
			Entry: func(th *Thread, _ uintptr) uintptr {
				v, cause, err := th.Wait(target)
				results <- joinResult{value: v, cause: cause, err: err}
				_, _, err = th.Wait(target)
				again <- err
				return 0
			},
		})
	}
	boot(t, m, false)

	for i := 0; i < 2; i++ {
		got := recvResult(t, results)
		if got.err != nil || got.value != 9 || got.cause != CauseNormal {
			t.Fatalf("joiner %d: Wait() = (%d, %v, %v), want (9, normal, nil)", i, got.value, got.cause, got.err)
		}
	}
	for i := 0; i < 2; i++ {
		select {
		case err := <-again:
			if !errors.Is(err, ErrInvalidHandle) {
				t.Fatalf("second Wait() error = %v, want %v", err, ErrInvalidHandle)
			}
		case <-timeoutC():
			t.Fatal("timed out waiting for second join")
		}
	}

	// idle plus the two joiner zombies
	eventually(t, "target reclaim", func() bool { return mem.inUse() == 3 })
}

func TestJoinAcrossCores(t *testing.T) {
	m, _, _ := newTestMachine(t, min(2, lock.MaxCores))

	target := mustCreate(t, m, ThreadSpec{
		Name:     "remote",
		Priority: 3,
		Core:     m.Cores() - 1,
		Entry: func(th *Thread, _ uintptr) uintptr {
			th.Sleep(5)
			return 77
		},
	})
	res := joinFrom(t, m, target)
	boot(t, m, true)

	got := recvResult(t, res)
	if got.err != nil || got.value != 77 || got.cause != CauseNormal {
		t.Fatalf("Wait() = (%d, %v, %v), want (77, normal, nil)", got.value, got.cause, got.err)
	}
}

func TestWaitInvalid(t *testing.T) {
	m, _, _ := newTestMachine(t, 1)

	detached := mustCreate(t, m, ThreadSpec{
		Name:     "detached",
		Priority: 0,
		Detached: true,
		Entry: func(th *Thread, _ uintptr) uintptr {
			th.Sleep(1000)
			return 0
		},
	})

	out := make(chan error, 4)
	mustCreate(t, m, ThreadSpec{
		Name:     "prober",
		Priority: 5,
		Entry: func(th *Thread, _ uintptr) uintptr {
			_, _, err := th.Wait(th.ID())
			out <- err
			_, _, err = th.Wait(ThreadID(0xbeef0001))
			out <- err
			_, _, err = th.Wait(0)
			out <- err
			_, _, err = th.Wait(detached)
			out <- err
			return 0
		},
	})
	boot(t, m, false)

	want := []error{ErrJoinSelf, ErrInvalidHandle, ErrInvalidHandle, ErrInvalidHandle}
	for i, w := range want {
		select {
		case err := <-out:
			if !errors.Is(err, w) {
				t.Fatalf("probe %d: Wait() error = %v, want %v", i, err, w)
			}
		case <-timeoutC():
			t.Fatal("timed out waiting for prober")
		}
	}
}

func TestRaiseException(t *testing.T) {
	m, _, log := newTestMachine(t, 1)

	running := make(chan struct{})
	victim := mustCreate(t, m, ThreadSpec{
		Name:     "victim",
		Priority: 5,
		Entry: func(th *Thread, _ uintptr) uintptr {
			close(running)
			for {
				th.Preempt()
			}
		},
	})
	res := joinFrom(t, m, victim)
	boot(t, m, false)
	await(t, running)

	if _, err := m.RaiseException(3, Exception{Vector: VectorGeneralProtection}); !errors.Is(err, ErrInvalidCore) {
		t.Fatalf("RaiseException(3) error = %v, want %v", err, ErrInvalidCore)
	}
	id, err := m.RaiseException(0, Exception{Vector: VectorGeneralProtection})
	if err != nil {
		t.Fatalf("RaiseException() error = %v", err)
	}
	if id != victim {
		t.Fatalf("RaiseException() hit %#x, want %#x", id, victim)
	}

	got := recvResult(t, res)
	if got.err != nil || got.cause != CauseFault {
		t.Fatalf("Wait() = (%v, %v), want (fault, nil)", got.cause, got.err)
	}
	if !log.contains("general protection fault") {
		t.Fatalf("fault not logged: %q", log.lines)
	}
}

// A fault pending for a thread unwinds it at its next kernel call, before the
// call has any effect.
func TestFaultBeforeKernelCall(t *testing.T) {
	var spawned atomic.Bool
	for _, tc := range []struct {
		name string
		call func(th *Thread, sem *Semaphore, mu *Mutex)
	}{
		{"pend", func(th *Thread, sem *Semaphore, _ *Mutex) { sem.Pend(th) }},
		{"trypend", func(th *Thread, sem *Semaphore, _ *Mutex) { sem.TryPend(th) }},
		{"post", func(th *Thread, sem *Semaphore, _ *Mutex) { sem.Post(th) }},
		{"lock", func(th *Thread, _ *Semaphore, mu *Mutex) { _ = mu.Lock(th) }},
		{"trylock", func(th *Thread, _ *Semaphore, mu *Mutex) { mu.TryLock(th) }},
		{"sleep", func(th *Thread, _ *Semaphore, _ *Mutex) { th.Sleep(5) }},
		{"yield", func(th *Thread, _ *Semaphore, _ *Mutex) { th.Yield() }},
		{"spawn", func(th *Thread, _ *Semaphore, _ *Mutex) {
			_, _ = th.Spawn(ThreadSpec{Name: "child", Priority: 9, Entry: func(*Thread, uintptr) uintptr {
				spawned.Store(true)
				return 0
			}})
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			m, _, log := newTestMachine(t, 1)
			sem, _ := m.NewSemaphore(1)
			mu := m.NewMutex()

			var completed atomic.Bool
			victim := mustCreate(t, m, ThreadSpec{
				Name:     "victim",
				Priority: 5,
				Entry: func(th *Thread, _ uintptr) uintptr {
					if _, err := th.Machine().RaiseException(th.Core(), Exception{Vector: VectorGeneralProtection}); err != nil {
						return 1
					}
					tc.call(th, sem, mu)
					completed.Store(true)
					return 0
				},
			})
			res := joinFrom(t, m, victim)
			boot(t, m, true)

			got := recvResult(t, res)
			if got.err != nil || got.cause != CauseFault {
				t.Fatalf("Wait() = (%v, %v), want (fault, nil)", got.cause, got.err)
			}
			if completed.Load() {
				t.Fatalf("%s completed after the fault", tc.name)
			}
			if n := sem.Count(); n != 1 {
				t.Fatalf("semaphore Count() = %d, want 1", n)
			}
			if owner := mu.Owner(); owner != 0 {
				t.Fatalf("mutex Owner() = %#x, want 0", uint32(owner))
			}
			if !log.contains("general protection fault") {
				t.Fatalf("fault not logged: %q", log.lines)
			}

			// The mutex is still usable and no fault is left over for the
			// next thread on the core.
			locked := make(chan bool, 1)
			mustCreate(t, m, ThreadSpec{
				Name:     "next",
				Priority: 5,
				Entry: func(th *Thread, _ uintptr) uintptr {
					err := mu.Lock(th)
					th.Yield()
					locked <- err == nil && mu.Unlock(th) == nil
					return 0
				},
			})
			select {
			case ok := <-locked:
				if !ok {
					t.Fatal("Lock/Unlock after the fault failed")
				}
			case <-timeoutC():
				t.Fatal("timed out waiting for the mutex")
			}
			if spawned.Load() {
				t.Fatal("child spawned after the fault")
			}
		})
	}
}

// A fault raised by a thread that then exits is dropped with the thread.
func TestFaultClearedOnExit(t *testing.T) {
	m, _, _ := newTestMachine(t, 1)

	victim := mustCreate(t, m, ThreadSpec{
		Name:     "exiting",
		Priority: 5,
		Entry: func(th *Thread, _ uintptr) uintptr {
			_, _ = th.Machine().RaiseException(th.Core(), Exception{Vector: VectorPageFault})
			th.Exit(5)
			return 0
		},
	})
	res := joinFrom(t, m, victim)
	boot(t, m, true)

	if got := recvResult(t, res); got.err != nil || got.cause != CauseNormal || got.value != 5 {
		t.Fatalf("Wait() = (%d, %v, %v), want (5, normal, nil)", got.value, got.cause, got.err)
	}
	if f := m.cores[0].fault.Load(); f != nil {
		t.Fatalf("fault for %#x still pending after its thread ended", uint32(f.target))
	}
}
