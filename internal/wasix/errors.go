// Package wasix implements the cooperative user-space context subsystem:
// wasix_context_create/switch/destroy/main, exposed as a host module a
// Store can import the way it imports any other instance's exports.
package wasix

// ContextError classifies why a WASIX call failed, surfaced synchronously
// as the i32 errno every fallible wasix_context_* import returns (spec.md
// §7 ContextError, §4.8).
type ContextError struct {
	Tag string
}

func (e *ContextError) Error() string { return "wasix: " + e.Tag }

var (
	errDestroyingSelf    = &ContextError{Tag: "DestroyingSelf"}
	errDestroyingMain    = &ContextError{Tag: "DestroyingMain"}
	errMissing           = &ContextError{Tag: "Missing"}
	errAlreadyTerminated = &ContextError{Tag: "AlreadyTerminated"}
	errOutOfMemory       = &ContextError{Tag: "OutOfMemory"}
)

// errno is the wire encoding guest code sees: 0 means success, every
// ContextError tag above gets a stable nonzero value.
func errno(err error) uint32 {
	switch err {
	case nil:
		return 0
	case errDestroyingSelf:
		return 1
	case errDestroyingMain:
		return 2
	case errMissing:
		return 3
	case errAlreadyTerminated:
		return 4
	case errOutOfMemory:
		return 5
	default:
		return 5
	}
}
