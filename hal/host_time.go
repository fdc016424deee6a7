package hal

import "time"

// hostTime turns elapsed wall time into timer interrupts at a fixed rate. The
// runner calls step once per frame.
type hostTime struct {
	ch      chan uint64
	seq     uint64
	tickDur time.Duration

	last time.Time
	acc  time.Duration
}

func newHostTime(hz int) *hostTime {
	return &hostTime{
		ch:      make(chan uint64, 1024),
		tickDur: time.Second / time.Duration(hz),
	}
}

func (t *hostTime) Ticks() <-chan uint64 { return t.ch }

func (t *hostTime) step(now time.Time) {
	if t.last.IsZero() {
		t.last = now
		t.acc = 0
		t.stepN(1)
		return
	}

	t.acc += now.Sub(t.last)
	t.last = now

	ticks := uint64(t.acc / t.tickDur)
	if ticks == 0 {
		return
	}
	t.acc = t.acc % t.tickDur
	t.stepN(ticks)
}

// stepN emits n ticks. Ticks the consumer has no room for are dropped; the
// sequence number still advances so uptime catches up on the next one.
func (t *hostTime) stepN(n uint64) {
	for i := uint64(0); i < n; i++ {
		t.seq++
		select {
		case t.ch <- t.seq:
		default:
		}
	}
}
