package app

import (
	"errors"
	"fmt"
	"strings"

	"kestrel/kernel/klog"
	"kestrel/kernel/sched"
)

const (
	initPriority   sched.Priority = 32
	workerPriority sched.Priority = 8
	fairnessTicks                 = 50
	mutexRounds                   = 200
	workersPerCore                = 2
	demoModule                    = "demo"
)

// demo is a workload run on the init thread.
type demo func(t *sched.Thread, log *klog.Log) error

var demos = map[string]demo{
	"priority": priorityDemo,
	"fairness": fairnessDemo,
	"mutex":    mutexDemo,
	"join":     joinDemo,
}

// priorityDemo starts three threads of rising priority on one core and
// reports the order they ran in.
func priorityDemo(t *sched.Thread, log *klog.Log) error {
	var order []string
	record := func(t *sched.Thread, _ uintptr) uintptr {
		order = append(order, t.Name())
		return 0
	}

	var ids []sched.ThreadID
	for _, w := range []struct {
		name string
		prio sched.Priority
	}{
		{"low", workerPriority},
		{"mid", workerPriority + 8},
		{"high", workerPriority + 16},
	} {
		id, err := t.Spawn(sched.ThreadSpec{
			Name:     w.name,
			Priority: w.prio,
			Core:     t.Core(),
			Entry:    record,
		})
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}
	if err := waitAll(t, ids, nil); err != nil {
		return err
	}
	log.Printf(demoModule, "priority order %s", strings.Join(order, " "))
	return nil
}

// fairnessDemo runs equal-priority spinners on every core for a fixed number
// of ticks and reports how many loops each got through.
func fairnessDemo(t *sched.Thread, log *klog.Log) error {
	deadline := t.Now() + fairnessTicks
	spin := func(t *sched.Thread, _ uintptr) uintptr {
		var n uintptr
		for t.Now() < deadline {
			n++
			t.Preempt()
		}
		return n
	}

	cores := t.Machine().Cores()
	ids := make([]sched.ThreadID, 0, cores*workersPerCore)
	for i := 0; i < cores*workersPerCore; i++ {
		id, err := t.Spawn(sched.ThreadSpec{
			Name:     fmt.Sprintf("spin/%d", i),
			Priority: workerPriority,
			Core:     i % cores,
			Entry:    spin,
		})
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}

	lo, hi := ^uintptr(0), uintptr(0)
	err := waitAll(t, ids, func(i int, v uintptr, _ sched.Cause) {
		lo, hi = min(lo, v), max(hi, v)
		log.Printf(demoModule, "spin/%d on core %d: %d loops", i, i%cores, v)
	})
	if err != nil {
		return err
	}
	log.Printf(demoModule, "fairness %d threads, loops min=%d max=%d", len(ids), lo, hi)
	return nil
}

// mutexDemo has workers on every core bump a shared counter, yielding while
// they hold the mutex.
func mutexDemo(t *sched.Thread, log *klog.Log) error {
	m := t.Machine()
	mu := m.NewMutex()
	counter := 0

	bump := func(t *sched.Thread, _ uintptr) uintptr {
		for i := 0; i < mutexRounds; i++ {
			if err := mu.Lock(t); err != nil {
				t.Panic(err)
			}
			v := counter
			t.Yield()
			counter = v + 1
			if err := mu.Unlock(t); err != nil {
				t.Panic(err)
			}
		}
		return 0
	}

	cores := m.Cores()
	ids := make([]sched.ThreadID, 0, cores*workersPerCore)
	for i := 0; i < cores*workersPerCore; i++ {
		id, err := t.Spawn(sched.ThreadSpec{
			Name:     fmt.Sprintf("bump/%d", i),
			Priority: workerPriority,
			Core:     i % cores,
			Entry:    bump,
		})
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}
	if err := waitAll(t, ids, nil); err != nil {
		return err
	}

	if err := mu.Lock(t); err != nil {
		return err
	}
	got := counter
	if err := mu.Unlock(t); err != nil {
		return err
	}
	want := len(ids) * mutexRounds
	log.Printf(demoModule, "mutex counter=%d want=%d", got, want)
	if got != want {
		return fmt.Errorf("mutex demo: counter %d, want %d", got, want)
	}
	return nil
}

// joinDemo ends one thread in each possible way and reports what its joiner
// saw.
func joinDemo(t *sched.Thread, log *klog.Log) error {
	endings := []struct {
		name  string
		entry sched.Entry
	}{
		{"return", func(*sched.Thread, uintptr) uintptr { return 7 }},
		{"exit", func(t *sched.Thread, _ uintptr) uintptr {
			t.Exit(9)
			return 0
		}},
		// Arg is zero.
		{"divide", func(_ *sched.Thread, arg uintptr) uintptr {
			return 10 / arg
		}},
		{"panic", func(t *sched.Thread, _ uintptr) uintptr {
			t.Panic("unrecoverable")
			return 0
		}},
	}

	ids := make([]sched.ThreadID, 0, len(endings))
	for _, e := range endings {
		id, err := t.Spawn(sched.ThreadSpec{
			Name:     e.name,
			Priority: workerPriority,
			Core:     t.Core(),
			Entry:    e.entry,
		})
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}
	return waitAll(t, ids, func(i int, v uintptr, cause sched.Cause) {
		log.Printf(demoModule, "join %s: cause=%s value=%d", endings[i].name, cause, v)
	})
}

// waitAll joins ids in order, passing every result to fn.
func waitAll(t *sched.Thread, ids []sched.ThreadID, fn func(i int, v uintptr, cause sched.Cause)) error {
	var errs []error
	for i, id := range ids {
		v, cause, err := t.Wait(id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if fn != nil {
			fn(i, v, cause)
		}
	}
	return errors.Join(errs...)
}
