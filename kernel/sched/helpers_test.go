package sched

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

const testTimeout = 10 * time.Second

// testMemory hands out non-overlapping fake stack addresses.
type testMemory struct {
	mu   sync.Mutex
	next uintptr
	live map[uintptr]uintptr
	fail bool
}

func newTestMemory() *testMemory {
	return &testMemory{next: 0x10000, live: make(map[uintptr]uintptr)}
}

func (m *testMemory) Alloc(size uintptr) (uintptr, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return 0, errors.New("arena exhausted")
	}
	addr := m.next
	m.next += size
	m.live[addr] = size
	return addr, nil
}

func (m *testMemory) Free(addr uintptr) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.live[addr]; !ok {
		return errors.New("double free")
	}
	delete(m.live, addr)
	return nil
}

func (m *testMemory) inUse() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

type testLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *testLogger) WriteLineString(s string) {
	l.mu.Lock()
	l.lines = append(l.lines, s)
	l.mu.Unlock()
}

func (l *testLogger) contains(sub string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, sub) {
			return true
		}
	}
	return false
}

func newTestMachine(t *testing.T, cores int) (*Machine, *testMemory, *testLogger) {
	t.Helper()
	mem := newTestMemory()
	log := &testLogger{}
	m, err := New(Config{Cores: cores, Memory: mem, Logger: log})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return m, mem, log
}

// boot starts m. With ticking set, a timer goroutine drives the machine until
// the test ends.
func boot(t *testing.T, m *Machine, ticking bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !ticking {
		return
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			m.Tick()
			time.Sleep(50 * time.Microsecond)
		}
	}()
}

func mustCreate(t *testing.T, m *Machine, spec ThreadSpec) ThreadID {
	t.Helper()
	id, err := m.CreateThread(spec)
	if err != nil {
		t.Fatalf("CreateThread(%q) error = %v", spec.Name, err)
	}
	return id
}

func await(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for threads")
	}
}

// eventually polls cond until it holds or the test times out.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

type joinResult struct {
	value uintptr
	cause Cause
	err   error
}

func recvResult(t *testing.T, ch <-chan joinResult) joinResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for result")
		return joinResult{}
	}
}

func timeoutC() <-chan time.Time {
	return time.After(testTimeout)
}
