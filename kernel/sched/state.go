package sched

// Priority is a static scheduling priority. Higher numerals run first.
type Priority uint8

const (
	// NumPriorities is the number of discrete priority levels.
	NumPriorities = 64

	PriorityLowest  Priority = 0
	PriorityHighest Priority = NumPriorities - 1
)

// State is the lifecycle state of a thread.
type State uint32

const (
	StateFree State = iota
	StateReady
	StateRunning
	StateSleeping
	StateBlocked
	StateZombie
)

func (s State) String() string {
	switch s {
	case StateFree:
		return "free"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateSleeping:
		return "sleeping"
	case StateBlocked:
		return "blocked"
	case StateZombie:
		return "zombie"
	default:
		return "unknown"
	}
}

// Cause records why a thread terminated.
type Cause uint8

const (
	CauseNone Cause = iota
	CauseNormal
	CauseFault
	CausePanic
)

func (c Cause) String() string {
	switch c {
	case CauseNone:
		return "none"
	case CauseNormal:
		return "normal"
	case CauseFault:
		return "fault"
	case CausePanic:
		return "panic"
	default:
		return "unknown"
	}
}

// ThreadID is a thread handle: a table slot plus a generation so a reclaimed
// slot never validates an old handle. The zero value is never a valid handle.
type ThreadID uint32

const slotBits = 16

// MaxTableSize is the largest thread table a machine can be configured with.
const MaxTableSize = 1<<slotBits - 1

func makeThreadID(slot int32, gen uint16) ThreadID {
	return ThreadID(uint32(gen)<<slotBits | uint32(slot))
}

func (id ThreadID) slot() int32 { return int32(id & (1<<slotBits - 1)) }
