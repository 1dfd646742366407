// Package engine defines the pluggable compilation/execution abstraction
// described in spec.md §4.2-§4.3: a Compiler turns a validated ModuleInfo
// into an Artifact of CompiledFunctions, and an Engine fronts one or more
// Compilers with a content-addressed cache. Concrete Compiler backends live
// in sibling packages (internal/engine/interpreter is the one shipped here).
package engine

import (
	"github.com/wasmrt/wasmrt/api"
	"github.com/wasmrt/wasmrt/internal/wasm"
)

// Compiler turns one validated module into a set of directly callable
// CompiledFunctions. Compile must not be called on a module that has not
// passed binary.Validate: a Compiler is entitled to assume its input is
// well-typed.
type Compiler interface {
	// Name identifies the backend, e.g. "interpreter". Used in cache keys
	// and diagnostics so an artifact compiled by one backend is never
	// handed to another.
	Name() string

	// Compile lowers every locally defined function in module into a
	// CompiledFunction, in FunctionSection order.
	Compile(module *wasm.ModuleInfo, features wasm.Features) ([]CompiledFunction, error)
}

// CompiledFunction is one function's executable form, opaque to everything
// except the Compiler that produced it and the VM it runs against.
type CompiledFunction interface {
	// Type is the function's static signature.
	Type() *wasm.FunctionType

	// Call executes the function against vm with the given arguments,
	// returning its results or a trap. vm supplies everything outside the
	// function's own locals: memories, tables, globals, and the ability to
	// invoke other functions by index (spec.md §4.6).
	Call(vm VM, args []uint64) ([]uint64, *api.Trap)
}

// VM is the minimal surface a CompiledFunction needs from its owning
// instance to execute: linear memory, tables, globals, and function
// dispatch (direct and indirect). internal/wasmstore.Instance implements
// this; internal/engine never imports internal/wasmstore, keeping the
// dependency one-directional per spec.md §4 layering.
type VM interface {
	// MemoryAt and TableAt are named with the "At" suffix, rather than
	// Memory/Table, so that internal/wasmstore.Instance can implement both
	// this interface and api.Module's niladic Memory()/Table() accessors
	// without a method-name collision.
	MemoryAt(idx wasm.Index) MemoryAccess
	TableAt(idx wasm.Index) TableAccess
	GlobalGet(idx wasm.Index) uint64
	GlobalSet(idx wasm.Index, v uint64)
	CallFunction(idx wasm.Index, args []uint64) ([]uint64, *api.Trap)
	CallIndirect(tableIdx, typeIdx wasm.Index, elementIdx uint32, args []uint64) ([]uint64, *api.Trap)
	// FunctionParamCount and TypeParamCount tell the interpreter how many
	// stack values to pop as arguments before call/call_indirect, since the
	// callee's signature lives in the instance's (imports-aware) index
	// spaces rather than the caller function's own.
	FunctionParamCount(idx wasm.Index) int
	TypeParamCount(typeIdx wasm.Index) int
	// PushFrame/PopFrame let the VM maintain a backtrace for traps; the
	// interpreter calls these around every CompiledFunction.Call so a trap
	// raised deep in the call graph can report every frame (spec.md §4.7).
	PushFrame(f api.Frame)
	PopFrame()
}

// MemoryAccess is the subset of api.Memory a CompiledFunction needs for
// load/store/memory.size/memory.grow instructions.
type MemoryAccess interface {
	Size() uint32
	Grow(deltaPages uint32) (previousPages uint32, ok bool)
	Bytes() []byte
}

// TableAccess is the subset of api.Table a CompiledFunction needs for
// table.get/table.set and call_indirect's element lookup.
type TableAccess interface {
	Size() uint32
	Grow(delta uint32, init uint64) (previous uint32, ok bool)
	Get(idx uint32) (uint64, bool)
	Set(idx uint32, v uint64) bool
}
