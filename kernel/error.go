package kernel

import "errors"

// Kind classifies a kernel error.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindInvalidArgument
	KindExhausted
	KindInvalidHandle
	KindNotOwner
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid argument"
	case KindExhausted:
		return "resource exhausted"
	case KindInvalidHandle:
		return "invalid handle"
	case KindNotOwner:
		return "ownership violation"
	case KindUnsupported:
		return "unsupported configuration"
	default:
		return "unknown"
	}
}

// Error describes a kernel error. Kernel errors are declared as package-level
// pointers to Error so callers can compare them with errors.Is.
type Error struct {
	// The module where the error occurred.
	Module string

	Kind Kind

	// The error message
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Module == "" {
		return e.Message
	}
	return e.Module + ": " + e.Message
}

// KindOf returns the kind of the first kernel error in err's chain.
func KindOf(err error) Kind {
	var kerr *Error
	if errors.As(err, &kerr) {
		return kerr.Kind
	}
	return KindUnknown
}
