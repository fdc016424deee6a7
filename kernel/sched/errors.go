package sched

import "kestrel/kernel"

const module = "sched"

var (
	ErrInvalidPriority = &kernel.Error{Module: module, Kind: kernel.KindInvalidArgument, Message: "invalid priority"}
	ErrInvalidCore     = &kernel.Error{Module: module, Kind: kernel.KindInvalidArgument, Message: "invalid core index"}
	ErrInvalidEntry    = &kernel.Error{Module: module, Kind: kernel.KindInvalidArgument, Message: "nil entry routine"}
	ErrInvalidConfig   = &kernel.Error{Module: module, Kind: kernel.KindInvalidArgument, Message: "invalid configuration"}
	ErrJoinSelf        = &kernel.Error{Module: module, Kind: kernel.KindInvalidArgument, Message: "thread cannot wait for itself"}
	ErrNegativeCount   = &kernel.Error{Module: module, Kind: kernel.KindInvalidArgument, Message: "negative semaphore count"}
	ErrRecursiveLock   = &kernel.Error{Module: module, Kind: kernel.KindInvalidArgument, Message: "mutex already held by caller"}

	ErrNoMemory         = &kernel.Error{Module: module, Kind: kernel.KindExhausted, Message: "out of memory"}
	ErrThreadTableFull  = &kernel.Error{Module: module, Kind: kernel.KindExhausted, Message: "thread table exhausted"}
	ErrInvalidHandle    = &kernel.Error{Module: module, Kind: kernel.KindInvalidHandle, Message: "unknown or reclaimed thread"}
	ErrNotOwner         = &kernel.Error{Module: module, Kind: kernel.KindNotOwner, Message: "mutex not held by caller"}
	ErrUnsupportedCores = &kernel.Error{Module: module, Kind: kernel.KindUnsupported, Message: "core count not supported by this build"}
	ErrAlreadyStarted   = &kernel.Error{Module: module, Kind: kernel.KindInvalidArgument, Message: "machine already started"}

	errQueueCorrupt = &kernel.Error{Module: module, Message: "ready queue invariant violated"}
	errIdleFault    = &kernel.Error{Module: module, Message: "execution fault in idle thread"}
)
