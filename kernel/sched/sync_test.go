package sched

import (
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sync/atomic"
	"testing"

	"kestrel/kernel/lock"
)

func TestNewSemaphoreNegative(t *testing.T) {
	m, _, _ := newTestMachine(t, 1)
	if _, err := m.NewSemaphore(-1); !errors.Is(err, ErrNegativeCount) {
		t.Fatalf("NewSemaphore(-1) error = %v, want %v", err, ErrNegativeCount)
	}
}

func TestSemaphoreWakesInFIFOOrder(t *testing.T) {
	m, _, _ := newTestMachine(t, 1)
	sem, _ := m.NewSemaphore(0)

	var order []int
	done := make(chan struct{})
	var finished atomic.Int32

	for i := 1; i <= 3; i++ {
		mustCreate(t, m, ThreadSpec{
			Name:     fmt.Sprintf("pender-%d", i),
			Priority: 5,
			Arg:      uintptr(i),
			Entry: func(th *Thread, arg uintptr) uintptr {
				sem.Pend(th)
				order = append(order, int(arg))
				if finished.Add(1) == 3 {
					close(done)
				}
				return 0
			},
		})
	}
	boot(t, m, false)

	eventually(t, "three waiters", func() bool { return sem.Waiters() == 3 })
	if got := sem.Count(); got != 0 {
		t.Fatalf("Count() = %d with waiters, want 0", got)
	}
	for i := 0; i < 3; i++ {
		sem.Post(nil)
	}
	await(t, done)

	if want := []int{1, 2, 3}; !slices.Equal(order, want) {
		t.Fatalf("wake order = %v, want %v", order, want)
	}
	if got := sem.Count(); got != 0 {
		t.Fatalf("Count() = %d after handing off every post, want 0", got)
	}

	sem.Post(nil)
	sem.Post(nil)
	if got := sem.Count(); got != 2 {
		t.Fatalf("Count() = %d, want 2", got)
	}
}

func TestSemaphoreCountInvariant(t *testing.T) {
	cores := min(2, lock.MaxCores)
	m, _, _ := newTestMachine(t, cores)

	const (
		initial    = 3
		producers  = 2
		consumers  = 2
		perThread  = 200
		totalPosts = producers * perThread
		totalPends = consumers * perThread
	)
	sem, _ := m.NewSemaphore(initial)

	var negative atomic.Bool
	var finished atomic.Int32
	done := make(chan struct{})
	finish := func() {
		if finished.Add(1) == producers+consumers {
			close(done)
		}
	}

	for i := 0; i < producers; i++ {
		mustCreate(t, m, ThreadSpec{
			Name:     "producer",
			Priority: 4,
			Core:     0,
			Entry: func(th *Thread, _ uintptr) uintptr {
				for j := 0; j < perThread; j++ {
					sem.Post(th)
					if j%7 == 0 {
						th.Yield()
					}
				}
				finish()
				return 0
			},
		})
	}
	for i := 0; i < consumers; i++ {
		mustCreate(t, m, ThreadSpec{
			Name:     "consumer",
			Priority: 4,
			Core:     cores - 1,
			Entry: func(th *Thread, _ uintptr) uintptr {
				for j := 0; j < perThread; j++ {
					sem.Pend(th)
					if sem.Count() < 0 {
						negative.Store(true)
					}
				}
				finish()
				return 0
			},
		})
	}
	boot(t, m, true)
	await(t, done)

	if negative.Load() {
		t.Fatal("observed a negative count")
	}
	if got := sem.Waiters(); got != 0 {
		t.Fatalf("Waiters() = %d, want 0", got)
	}
	if got, want := sem.Count(), initial+totalPosts-totalPends; got != want {
		t.Fatalf("Count() = %d, want %d", got, want)
	}
}

func TestSemaphoreTryPend(t *testing.T) {
	m, _, _ := newTestMachine(t, 1)
	sem, _ := m.NewSemaphore(1)

	out := make(chan [2]bool, 1)
	mustCreate(t, m, ThreadSpec{
		Name: "try",
		Entry: func(th *Thread, _ uintptr) uintptr {
			first := sem.TryPend(th)
			second := sem.TryPend(th)
			out <- [2]bool{first, second}
			return 0
		},
	})
	boot(t, m, false)

	select {
	case got := <-out:
		if !got[0] || got[1] {
			t.Fatalf("TryPend() = %v, want [true false]", got)
		}
	case <-timeoutC():
		t.Fatal("timed out waiting for thread")
	}
}

func TestMutexExclusion(t *testing.T) {
	cores := min(4, lock.MaxCores)
	m, _, _ := newTestMachine(t, cores)
	mu := m.NewMutex()

	const (
		threads    = 8
		iterations = 300
	)

	var (
		counter  int
		inside   atomic.Int32
		overlap  atomic.Bool
		finished atomic.Int32
		done     = make(chan struct{})
		errs     = make(chan error, threads)
	)

	for i := 0; i < threads; i++ {
		mustCreate(t, m, ThreadSpec{
			Name:     fmt.Sprintf("incr-%d", i),
			Priority: 6,
			Core:     i % cores,
			Entry: func(th *Thread, _ uintptr) uintptr {
				for j := 0; j < iterations; j++ {
					if err := mu.Lock(th); err != nil {
						errs <- err
						return 1
					}
					if inside.Add(1) != 1 {
						overlap.Store(true)
					}
					v := counter
					if j%5 == 0 {
						th.Yield()
					}
					counter = v + 1
					inside.Add(-1)
					if err := mu.Unlock(th); err != nil {
						errs <- err
						return 1
					}
				}
				if finished.Add(1) == threads {
					close(done)
				}
				return 0
			},
		})
	}
	boot(t, m, true)

	select {
	case <-done:
	case err := <-errs:
		t.Fatalf("mutex error: %v", err)
	case <-timeoutC():
		t.Fatal("timed out waiting for incrementers")
	}

	if overlap.Load() {
		t.Fatal("two threads inside the critical section")
	}
	if counter != threads*iterations {
		t.Fatalf("counter = %d, want %d", counter, threads*iterations)
	}
	if mu.Owner() != 0 {
		t.Fatalf("Owner() = %#x after all unlocks, want 0", mu.Owner())
	}
}

func TestMutexOwnership(t *testing.T) {
	m, _, _ := newTestMachine(t, 1)
	mu := m.NewMutex()

	type step struct {
		name string
		err  error
	}
	steps := make(chan step, 8)
	release := make(chan struct{})

	mustCreate(t, m, ThreadSpec{
		Name:     "owner",
		Priority: 5,
		Entry: func(th *Thread, _ uintptr) uintptr {
			steps <- step{"lock", mu.Lock(th)}
			steps <- step{"relock", mu.Lock(th)}
			if mu.TryLock(th) {
				steps <- step{"trylock", errors.New("TryLock succeeded on held mutex")}
			}
			th.Sleep(3)
			<-release
			steps <- step{"unlock", mu.Unlock(th)}
			steps <- step{"unlock again", mu.Unlock(th)}
			return 0
		},
	})
	mustCreate(t, m, ThreadSpec{
		Name:     "intruder",
		Priority: 2,
		Entry: func(th *Thread, _ uintptr) uintptr {
			steps <- step{"foreign unlock", mu.Unlock(th)}
			close(release)
			return 0
		},
	})
	boot(t, m, true)

	want := []struct {
		name string
		err  error
	}{
		{"lock", nil},
		{"relock", ErrRecursiveLock},
		{"foreign unlock", ErrNotOwner},
		{"unlock", nil},
		{"unlock again", ErrNotOwner},
	}
	for _, w := range want {
		select {
		case got := <-steps:
			if got.name != w.name {
				t.Fatalf("step %q, want %q", got.name, w.name)
			}
			if !errors.Is(got.err, w.err) {
				t.Fatalf("%s: error = %v, want %v", got.name, got.err, w.err)
			}
		case <-timeoutC():
			t.Fatalf("timed out waiting for step %q", w.name)
		}
	}
}

// Three threads append a burst of characters under one guard while ticks keep
// requesting preemption. Every burst must land as one contiguous run.
func TestGuardKeepsBurstContiguous(t *testing.T) {
	m, _, _ := newTestMachine(t, 1)

	const burst = 64
	var (
		g        lock.Guard
		buf      []byte
		finished atomic.Int32
		done     = make(chan struct{})
	)

	for _, ch := range []byte("abc") {
		mustCreate(t, m, ThreadSpec{
			Name:     string(ch),
			Priority: 5,
			Arg:      uintptr(ch),
			Entry: func(th *Thread, arg uintptr) uintptr {
				th.Sleep(2)
				s := g.Lock(th.Interrupts())
				start := th.Now()
				for i := 0; i < burst; i++ {
					buf = append(buf, byte(arg))
					th.Preempt()
					if i == burst/2 {
						for th.Now() == start {
							runtime.Gosched()
						}
					}
				}
				g.Unlock(th.Interrupts(), s)
				if finished.Add(1) == 3 {
					close(done)
				}
				return 0
			},
		})
	}
	boot(t, m, true)
	await(t, done)

	if len(buf) != 3*burst {
		t.Fatalf("len(buf) = %d, want %d", len(buf), 3*burst)
	}
	seen := map[byte]bool{}
	for i := 0; i < len(buf); i += burst {
		c := buf[i]
		if seen[c] {
			t.Fatalf("burst of %c split: %s", c, buf)
		}
		seen[c] = true
		for _, x := range buf[i : i+burst] {
			if x != c {
				t.Fatalf("bursts interleaved: %s", buf)
			}
		}
	}
}

func TestThousandThreads(t *testing.T) {
	cores := min(4, lock.MaxCores)
	m, mem, _ := newTestMachine(t, cores)

	const n = 1024
	ids := make([]ThreadID, n)
	for i := 0; i < n; i++ {
		ids[i] = mustCreate(t, m, ThreadSpec{
			Name:      fmt.Sprintf("worker-%d", i),
			Priority:  Priority(63 - i%64),
			Core:      i % cores,
			Arg:       uintptr(i),
			StackSize: 1 << 10,
			Entry: func(th *Thread, arg uintptr) uintptr {
				th.Yield()
				th.Sleep(uint64(arg % 3))
				return arg
			},
		})
	}

	errs := make(chan error, n)
	var finished atomic.Int32
	done := make(chan struct{})
	for c := 0; c < cores; c++ {
		mustCreate(t, m, ThreadSpec{
			Name:     fmt.Sprintf("reaper-%d", c),
			Priority: PriorityLowest,
			Core:     c,
			Arg:      uintptr(c),
			Detached: true,
			Entry: func(th *Thread, arg uintptr) uintptr {
				for k := int(arg); k < n; k += cores {
					v, cause, err := th.Wait(ids[k])
					switch {
					case err != nil:
						errs <- fmt.Errorf("Wait(worker-%d): %w", k, err)
					case cause != CauseNormal || v != uintptr(k):
						errs <- fmt.Errorf("Wait(worker-%d) = (%d, %v)", k, v, cause)
					}
				}
				if finished.Add(1) == int32(cores) {
					close(done)
				}
				return 0
			},
		})
	}
	boot(t, m, true)
	await(t, done)

	close(errs)
	for err := range errs {
		t.Error(err)
	}
	eventually(t, "table drained", func() bool { return m.Stats().Threads == cores })
	if got := mem.inUse(); got != cores {
		t.Fatalf("stacks in use = %d, want %d", got, cores)
	}
}
