package wasmstore

import "fmt"

// LinkError is returned by Instantiate when the supplied imports cannot
// satisfy a module's import section, per spec.md §4.5/§7.
type LinkError struct {
	Tag     string // MissingImport, IncompatibleImportType
	Message string
}

func (e *LinkError) Error() string { return fmt.Sprintf("wasmstore: link error (%s): %s", e.Tag, e.Message) }

func errMissingImport(moduleName, name string) error {
	return &LinkError{Tag: "MissingImport", Message: fmt.Sprintf("%s.%s not found", moduleName, name)}
}

func errIncompatibleImportType(moduleName, name, reason string) error {
	return &LinkError{Tag: "IncompatibleImportType", Message: fmt.Sprintf("%s.%s: %s", moduleName, name, reason)}
}

// InstantiationError is returned by Instantiate for failures after linking
// but before the instance becomes visible, per spec.md §4.5/§7.
type InstantiationError struct {
	Tag     string // OutOfBoundsSegment, StartTrap
	Message string
	Cause   error
}

func (e *InstantiationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("wasmstore: instantiation error (%s): %s: %v", e.Tag, e.Message, e.Cause)
	}
	return fmt.Sprintf("wasmstore: instantiation error (%s): %s", e.Tag, e.Message)
}

func (e *InstantiationError) Unwrap() error { return e.Cause }

func errOutOfBoundsSegment(kind string, idx int) error {
	return &InstantiationError{Tag: "OutOfBoundsSegment", Message: fmt.Sprintf("%s segment %d", kind, idx)}
}

func errStartTrap(cause error) error {
	return &InstantiationError{Tag: "StartTrap", Message: "start function trapped", Cause: cause}
}

// MemoryError is the tagged memory failure type of spec.md §4.6/§7.
// Memory.Grow and the bounds-checked accessors do not return it: they
// report a failed growth or an out-of-bounds access with a false ok result.
type MemoryError struct {
	Tag               string // CouldNotGrow, OutOfBoundsAccess
	Current, Attempted uint32
}

func (e *MemoryError) Error() string {
	if e.Tag == "CouldNotGrow" {
		return fmt.Sprintf("wasmstore: memory error (CouldNotGrow): current=%d attempted=%d", e.Current, e.Attempted)
	}
	return "wasmstore: memory error (OutOfBoundsAccess)"
}

// UsageError is returned when a handle from one Store is used against
// another, per spec.md §4.4/§7.
type UsageError struct {
	Tag     string // WrongStore
	Message string
}

func (e *UsageError) Error() string { return fmt.Sprintf("wasmstore: usage error (%s): %s", e.Tag, e.Message) }

func errWrongStore(what string) error {
	return &UsageError{Tag: "WrongStore", Message: fmt.Sprintf("%s belongs to a different store", what)}
}
