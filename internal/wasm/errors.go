package wasm

import "fmt"

// DecodeError is returned by internal/wasm/binary when a byte stream cannot
// be parsed into a ModuleInfo, per spec.md §7 DecodeError taxonomy.
type DecodeError struct {
	Tag     string // BadMagic, UnsupportedVersion, UnknownSection, DuplicateSection, TruncatedSection, BadLeb, ...
	Message string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("wasm: decode error (%s): %s", e.Tag, e.Message)
}

func newDecodeError(tag, format string, args ...interface{}) *DecodeError {
	return &DecodeError{Tag: tag, Message: fmt.Sprintf(format, args...)}
}

// ErrBadMagic is returned when the leading 4 bytes aren't "\0asm".
func ErrBadMagic(got []byte) error { return newDecodeError("BadMagic", "got %x", got) }

// ErrUnsupportedVersion is returned for a well-formed but unsupported module
// version.
func ErrUnsupportedVersion(v uint32) error {
	return newDecodeError("UnsupportedVersion", "version %d", v)
}

// ErrUnknownSection is returned for a section id this decoder does not
// recognize.
func ErrUnknownSection(id byte) error { return newDecodeError("UnknownSection", "id %#x", id) }

// ErrDuplicateSection is returned when a non-custom section id repeats.
func ErrDuplicateSection(id byte) error {
	return newDecodeError("DuplicateSection", "id %#x already seen", id)
}

// ErrTruncatedSection is returned when a section's declared size runs past
// the available bytes.
func ErrTruncatedSection(name string) error {
	return newDecodeError("TruncatedSection", "%s section truncated", name)
}

// ErrBadLeb wraps a LEB128 decode failure with context about what was being
// read.
func ErrBadLeb(what string, cause error) error {
	return newDecodeError("BadLeb", "%s: %v", what, cause)
}

// ErrOutOfOrderSection is returned when sections don't appear in the order
// mandated by the core specification.
func ErrOutOfOrderSection(id byte) error {
	return newDecodeError("OutOfOrderSection", "section id %#x out of order", id)
}

// ValidationError is returned when a decoded ModuleInfo fails structural or
// type-checking validation, per spec.md §7 ValidationError taxonomy.
type ValidationError struct {
	Tag     string // TypeMismatch, UnknownType, UnknownFunction, UnknownTable, UnknownMemory, UnknownGlobal, UnknownLocal, ConstantExprInvalid, LimitsInvalid, DuplicateExport
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("wasm: validation error (%s): %s", e.Tag, e.Message)
}

func newValidationError(tag, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Tag: tag, Message: fmt.Sprintf(format, args...)}
}

// ErrTypeMismatch reports an abstract-stack type check failure for the
// given operator.
func ErrTypeMismatch(operator string, expected, found []byte) error {
	return newValidationError("TypeMismatch", "%s: expected %v, found %v", operator, typeNames(expected), typeNames(found))
}

func typeNames(ts []byte) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = valueTypeNameForError(t)
	}
	return out
}

// ErrUnknownType reports an out-of-range type-section reference.
func ErrUnknownType(idx uint32) error { return newValidationError("UnknownType", "type index %d", idx) }

// ErrUnknownFunction reports an out-of-range function-index-space reference.
func ErrUnknownFunction(idx uint32) error {
	return newValidationError("UnknownFunction", "function index %d", idx)
}

// ErrUnknownTable reports an out-of-range table-index-space reference.
func ErrUnknownTable(idx uint32) error { return newValidationError("UnknownTable", "table index %d", idx) }

// ErrUnknownMemory reports an out-of-range memory-index-space reference.
func ErrUnknownMemory(idx uint32) error {
	return newValidationError("UnknownMemory", "memory index %d", idx)
}

// ErrUnknownGlobal reports an out-of-range global-index-space reference.
func ErrUnknownGlobal(idx uint32) error {
	return newValidationError("UnknownGlobal", "global index %d", idx)
}

// ErrUnknownLocal reports an out-of-range local-variable reference.
func ErrUnknownLocal(idx uint32) error { return newValidationError("UnknownLocal", "local index %d", idx) }

// ErrConstantExprInvalid reports a disallowed opcode in an initializer
// expression (spec.md §4.1).
func ErrConstantExprInvalid(op byte) error {
	return newValidationError("ConstantExprInvalid", "opcode %#x not allowed in constant expression", op)
}

// ErrLimitsInvalid reports min > max, or max exceeding the platform cap.
func ErrLimitsInvalid(what string, min, max uint32) error {
	return newValidationError("LimitsInvalid", "%s: min=%d max=%d", what, min, max)
}

// ErrDuplicateExport reports a repeated export name.
func ErrDuplicateExport(name string) error {
	return newValidationError("DuplicateExport", "export name %q already used", name)
}

func valueTypeNameForError(t byte) string {
	switch t {
	case 0x7f:
		return "i32"
	case 0x7e:
		return "i64"
	case 0x7d:
		return "f32"
	case 0x7c:
		return "f64"
	case 0x7b:
		return "v128"
	case 0x70:
		return "funcref"
	case 0x6f:
		return "externref"
	case 0xff:
		return "unknown"
	}
	return fmt.Sprintf("%#x", t)
}

// UnsupportedFeatureError is returned when a module uses an instruction or
// section gated behind a Features bit that is not enabled.
type UnsupportedFeatureError struct {
	Feature string
}

func (e *UnsupportedFeatureError) Error() string {
	return fmt.Sprintf("wasm: feature %q is not enabled", e.Feature)
}

// CompileError is returned by a Compiler backend, per spec.md §7
// CompileError taxonomy.
type CompileError struct {
	Tag     string // UnsupportedFeature, BackendError, CodeTooLarge
	Message string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("wasm: compile error (%s): %s", e.Tag, e.Message)
}

// NewCompileError constructs a tagged CompileError.
func NewCompileError(tag, format string, args ...interface{}) *CompileError {
	return &CompileError{Tag: tag, Message: fmt.Sprintf(format, args...)}
}
