// Package api includes constants and interfaces used by both end-users and
// internal implementations.
package api

import (
	"context"
	"fmt"
	"math"
	"reflect"
)

// ExternType classifies imports and exports with their respective types.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#external-types%E2%91%A0
type ExternType = byte

const (
	ExternTypeFunc   ExternType = 0x00
	ExternTypeTable  ExternType = 0x01
	ExternTypeMemory ExternType = 0x02
	ExternTypeGlobal ExternType = 0x03
)

// ExternTypeName returns the human name of the given ExternType.
func ExternTypeName(et ExternType) string {
	switch et {
	case ExternTypeFunc:
		return "func"
	case ExternTypeTable:
		return "table"
	case ExternTypeMemory:
		return "memory"
	case ExternTypeGlobal:
		return "global"
	}
	return fmt.Sprintf("%#x", et)
}

// ValueType describes a numeric or reference type used in WebAssembly.
//
// The following describes how to convert between Wasm and Go types:
//
//   - ValueTypeI32 - uint64(uint32,int32)
//   - ValueTypeI64 - uint64(int64)
//   - ValueTypeF32 - EncodeF32 / DecodeF32 from float32
//   - ValueTypeF64 - EncodeF64 / DecodeF64 from float64
//   - ValueTypeV128 - two uint64 lanes; this package has no encode/decode helper for it
//   - ValueTypeFuncref, ValueTypeExternref - opaque uintptr handles
type ValueType = byte

const (
	ValueTypeI32       ValueType = 0x7f
	ValueTypeI64       ValueType = 0x7e
	ValueTypeF32       ValueType = 0x7d
	ValueTypeF64       ValueType = 0x7c
	ValueTypeV128      ValueType = 0x7b
	ValueTypeFuncref   ValueType = 0x70
	ValueTypeExternref ValueType = 0x6f
)

// ValueTypeName returns the text format name of the given ValueType.
func ValueTypeName(t ValueType) string {
	switch t {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	case ValueTypeV128:
		return "v128"
	case ValueTypeFuncref:
		return "funcref"
	case ValueTypeExternref:
		return "externref"
	}
	return "unknown"
}

// TrapCode classifies why a Trap occurred. See the TESTABLE PROPERTIES and
// Trap definitions for the full taxonomy.
type TrapCode uint8

const (
	TrapCodeUnreachable TrapCode = iota
	TrapCodeOutOfBoundsMemoryAccess
	TrapCodeIntegerDivideByZero
	TrapCodeInvalidConversionToInteger
	TrapCodeCallStackOverflow
	TrapCodeIndirectCallTypeMismatch
	TrapCodeUninitializedElement
	TrapCodeHostError
	TrapCodeExit
)

// String implements fmt.Stringer.
func (c TrapCode) String() string {
	switch c {
	case TrapCodeUnreachable:
		return "unreachable"
	case TrapCodeOutOfBoundsMemoryAccess:
		return "out_of_bounds_memory_access"
	case TrapCodeIntegerDivideByZero:
		return "integer_divide_by_zero"
	case TrapCodeInvalidConversionToInteger:
		return "invalid_conversion_to_integer"
	case TrapCodeCallStackOverflow:
		return "call_stack_overflow"
	case TrapCodeIndirectCallTypeMismatch:
		return "indirect_call_type_mismatch"
	case TrapCodeUninitializedElement:
		return "uninitialized_element"
	case TrapCodeHostError:
		return "host_error"
	case TrapCodeExit:
		return "exit"
	}
	return "unknown"
}

// Frame is one entry of a Trap backtrace.
type Frame struct {
	InstanceID  uint64
	FuncIndex   uint32
	FuncOffset  uint32
	ModuleName  string
	FuncName    string
}

// Trap is a tagged runtime failure arising from guest execution or a host
// import returning a failure.
type Trap struct {
	Code      TrapCode
	ExitCode  uint32
	Message   string
	Frames    []Frame
}

// Error implements the error interface.
func (t *Trap) Error() string {
	if t.Code == TrapCodeExit {
		return fmt.Sprintf("module closed with exit_code(%d)", t.ExitCode)
	}
	if t.Message != "" {
		return fmt.Sprintf("wasm trap: %s: %s", t.Code, t.Message)
	}
	return fmt.Sprintf("wasm trap: %s", t.Code)
}

// Unwrap allows errors.Is/As against the concrete Trap.
func (t *Trap) Unwrap() error { return nil }

// NewTrap constructs a Trap with no message.
func NewTrap(code TrapCode) *Trap { return &Trap{Code: code} }

// Closer closes a resource.
type Closer interface {
	// Close closes the resource. When the context is nil, it defaults to
	// context.Background.
	Close(context.Context) error
}

// Module holds exports of an instantiated WebAssembly module.
type Module interface {
	fmt.Stringer

	// Name is the name this module was instantiated with.
	Name() string

	// Memory returns a memory defined in this module or nil if there was
	// none.
	Memory() Memory

	// Table returns a table defined in this module or nil if there was
	// none.
	Table() Table

	// ExportedFunction returns a function exported from this module or nil
	// if it wasn't.
	ExportedFunction(name string) Function

	// ExportedMemory returns a memory exported from this module or nil if
	// it wasn't.
	ExportedMemory(name string) Memory

	// ExportedGlobal returns a global exported from this module or nil if
	// it wasn't.
	ExportedGlobal(name string) Global

	// CloseWithExitCode releases resources allocated for this Module. Use a
	// non-zero exitCode parameter to indicate a failure to callers of
	// ExportedFunction.
	CloseWithExitCode(ctx context.Context, exitCode uint32) error

	Closer
}

// FunctionDefinition is a WebAssembly function exported in a module, before
// instantiation.
type FunctionDefinition interface {
	ModuleName() string
	Index() uint32
	Name() string
	DebugName() string
	Import() (moduleName, name string, isImport bool)
	ExportNames() []string

	// GoFunc is present when the function was implemented by the embedder
	// instead of a Wasm binary.
	GoFunc() *reflect.Value

	ParamTypes() []ValueType
	ParamNames() []string
	ResultTypes() []ValueType
}

// Function is a WebAssembly function exported from an instantiated module.
type Function interface {
	Definition() FunctionDefinition

	// Call invokes the function with parameters encoded according to
	// ParamTypes, returning results encoded according to ResultTypes.
	Call(ctx context.Context, params ...uint64) ([]uint64, error)
}

// GoFunction is an advanced function signature matching the calling
// convention used internally: a fixed stack of uint64 lanes, no access to
// the calling Module.
type GoFunction interface {
	Call(ctx context.Context, stack []uint64)
}

// GoModuleFunction is like GoFunction, but also receives the calling Module,
// typically to access its Memory.
type GoModuleFunction interface {
	Call(ctx context.Context, mod Module, stack []uint64)
}

// GoFunc adapts a plain function into a GoFunction.
type GoFunc func(ctx context.Context, stack []uint64)

func (f GoFunc) Call(ctx context.Context, stack []uint64) { f(ctx, stack) }

// GoModuleFunc adapts a plain function into a GoModuleFunction.
type GoModuleFunc func(ctx context.Context, mod Module, stack []uint64)

func (f GoModuleFunc) Call(ctx context.Context, mod Module, stack []uint64) { f(ctx, mod, stack) }

// Global is a WebAssembly global exported from an instantiated module.
type Global interface {
	fmt.Stringer

	Type() ValueType
	Get() uint64
}

// MutableGlobal is a Global whose value can be updated at runtime.
type MutableGlobal interface {
	Global
	Set(v uint64)
}

// Memory allows restricted, bounds-checked access to a module's linear
// memory. All integer/float accessors are little-endian, per the Wasm core
// specification.
type Memory interface {
	// Size returns the size in bytes available. Ex. If the underlying
	// memory has 1 page: 65536.
	Size() uint32

	// Grow increases memory by the delta in pages (65536 bytes per page).
	// The return value is the previous memory size in pages, or false if
	// the delta was rejected as it would exceed the configured maximum.
	Grow(deltaPages uint32) (previousPages uint32, ok bool)

	ReadByte(offset uint32) (byte, bool)
	ReadUint16Le(offset uint32) (uint16, bool)
	ReadUint32Le(offset uint32) (uint32, bool)
	ReadFloat32Le(offset uint32) (float32, bool)
	ReadUint64Le(offset uint32) (uint64, bool)
	ReadFloat64Le(offset uint32) (float64, bool)

	// Read returns a byteCount-length view of the underlying buffer
	// starting at offset, or false if out of range. Writes to the returned
	// slice write through to Wasm memory and vice versa.
	Read(offset, byteCount uint32) ([]byte, bool)

	WriteByte(offset uint32, v byte) bool
	WriteUint16Le(offset uint32, v uint16) bool
	WriteUint32Le(offset, v uint32) bool
	WriteFloat32Le(offset uint32, v float32) bool
	WriteUint64Le(offset uint32, v uint64) bool
	WriteFloat64Le(offset uint32, v float64) bool
	Write(offset uint32, v []byte) bool
}

// Table allows restricted, bounds-checked access to a module's table of
// references.
type Table interface {
	Size() uint32
	Grow(delta uint32, init uint64) (previous uint32, ok bool)
	Get(index uint32) (uint64, bool)
	Set(index uint32, ref uint64) bool
	Type() ValueType
}

// MemorySizer applies during compilation, after a module has been decoded
// but before it is instantiated, to determine the amount of memory (in
// pages) to allocate when a memory is instantiated.
type MemorySizer func(minPages uint32, maxPages *uint32) (min, capacity, max uint32)

// EncodeExternref encodes the input as a ValueTypeExternref.
func EncodeExternref(input uintptr) uint64 { return uint64(input) }

// DecodeExternref decodes the input as a ValueTypeExternref.
func DecodeExternref(input uint64) uintptr { return uintptr(input) }

// EncodeI32 encodes the input as a ValueTypeI32.
func EncodeI32(input int32) uint64 { return uint64(uint32(input)) }

// EncodeI64 encodes the input as a ValueTypeI64.
func EncodeI64(input int64) uint64 { return uint64(input) }

// EncodeF32 encodes the input as a ValueTypeF32.
func EncodeF32(input float32) uint64 { return uint64(math.Float32bits(input)) }

// DecodeF32 decodes the input as a ValueTypeF32.
func DecodeF32(input uint64) float32 { return math.Float32frombits(uint32(input)) }

// EncodeF64 encodes the input as a ValueTypeF64.
func EncodeF64(input float64) uint64 { return math.Float64bits(input) }

// DecodeF64 decodes the input as a ValueTypeF64.
func DecodeF64(input uint64) float64 { return math.Float64frombits(input) }
