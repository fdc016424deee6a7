// Package klog is the kernel log: a fixed-size ring of text lines that any
// core can append to without blocking and one consumer drains to the console.
package klog

import "sync/atomic"

// MaxLineBytes is the longest line the ring stores; longer lines are cut.
const MaxLineBytes = 160

const (
	ringSlots = 256
	ringMask  = ringSlots - 1
)

type slot struct {
	seq  atomic.Uint32
	n    uint16
	data [MaxLineBytes]byte
}

// Ring is a bounded multi-producer, multi-consumer queue of lines. It never
// allocates and never blocks: a full ring rejects the line.
type Ring struct {
	_     [0]func() // prevent accidental copying.
	head  atomic.Uint32
	tail  atomic.Uint32
	slots [ringSlots]slot
}

// NewRing returns an empty ring.
func NewRing() *Ring {
	r := &Ring{}
	for i := range r.slots {
		r.slots[i].seq.Store(uint32(i))
	}
	return r
}

// TryPut appends a copy of line, returning false if the ring is full.
func (r *Ring) TryPut(line []byte) bool {
	pos := r.head.Load()
	for {
		s := &r.slots[pos&ringMask]
		dif := int32(s.seq.Load() - pos)
		switch {
		case dif == 0:
			if r.head.CompareAndSwap(pos, pos+1) {
				s.n = uint16(copy(s.data[:], line))
				s.seq.Store(pos + 1)
				return true
			}
		case dif < 0:
			return false
		}
		pos = r.head.Load()
	}
}

// TryGet copies the oldest line into dst and removes it. It returns false if
// the ring is empty.
func (r *Ring) TryGet(dst []byte) (int, bool) {
	pos := r.tail.Load()
	for {
		s := &r.slots[pos&ringMask]
		dif := int32(s.seq.Load() - (pos + 1))
		switch {
		case dif == 0:
			if r.tail.CompareAndSwap(pos, pos+1) {
				n := copy(dst, s.data[:s.n])
				s.seq.Store(pos + ringSlots)
				return n, true
			}
		case dif < 0:
			return 0, false
		}
		pos = r.tail.Load()
	}
}

// Len returns the number of queued lines. It is approximate while producers
// or consumers are active.
func (r *Ring) Len() int {
	return int(r.head.Load() - r.tail.Load())
}
