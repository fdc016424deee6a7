package klog

import (
	"fmt"
	"sync/atomic"
)

// LineWriter is a sink for drained lines.
type LineWriter interface {
	WriteLineBytes(b []byte)
}

// Log buffers kernel log lines until the console drains them.
type Log struct {
	ring    *Ring
	dropped atomic.Uint64
	clock   atomic.Pointer[func() uint64]
}

// New returns an empty log.
func New() *Log {
	return &Log{ring: NewRing()}
}

// WriteLineString appends s as one line. Lines that arrive while the ring is
// full are counted and dropped.
func (l *Log) WriteLineString(s string) {
	if len(s) > MaxLineBytes {
		s = s[:MaxLineBytes]
	}
	var buf [MaxLineBytes]byte
	n := copy(buf[:], s)
	l.WriteLineBytes(buf[:n])
}

// WriteLineBytes appends b as one line.
func (l *Log) WriteLineBytes(b []byte) {
	if !l.ring.TryPut(b) {
		l.dropped.Add(1)
	}
}

// SetClock makes Printf stamp lines with the tick count returned by now.
func (l *Log) SetClock(now func() uint64) {
	l.clock.Store(&now)
}

// Printf formats a line tagged with module, and with the current tick once a
// clock is set.
func (l *Log) Printf(module, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if now := l.clock.Load(); now != nil {
		l.WriteLineString(fmt.Sprintf("[%6d] %s: %s", (*now)(), module, msg))
		return
	}
	l.WriteLineString(module + ": " + msg)
}

// Drain moves every queued line to w and returns how many were written. If
// lines were dropped since the last drain, a summary line follows them.
func (l *Log) Drain(w LineWriter) int {
	var buf [MaxLineBytes]byte
	n := 0
	for {
		k, ok := l.ring.TryGet(buf[:])
		if !ok {
			break
		}
		w.WriteLineBytes(buf[:k])
		n++
	}
	if d := l.dropped.Swap(0); d > 0 {
		w.WriteLineBytes([]byte(fmt.Sprintf("klog: %d lines dropped", d)))
		n++
	}
	return n
}

// Pending returns the number of lines waiting to be drained.
func (l *Log) Pending() int {
	return l.ring.Len()
}
