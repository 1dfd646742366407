// Package wasm holds the decoded, validated representation of a WebAssembly
// binary (ModuleInfo), its constituent value/index types, and the Features
// bitmask that gates optional proposals. This package has no knowledge of
// how a module is compiled or executed; see internal/engine and
// internal/wasmstore for that.
package wasm

import "github.com/wasmrt/wasmrt/api"

// Index is a position in one of a module's index spaces (types, functions,
// tables, memories, globals). Imports occupy the first indices of their
// respective space, per spec.md §3 ModuleInfo invariants.
type Index = uint32

// FunctionType is a Wasm function signature.
type FunctionType struct {
	Params, Results []api.ValueType
}

// Equal reports whether two signatures accept/return identical value types,
// used for exact import/export signature matching (spec.md §4.5).
func (t *FunctionType) Equal(o *FunctionType) bool {
	if t == nil || o == nil {
		return t == o
	}
	return equalTypes(t.Params, o.Params) && equalTypes(t.Results, o.Results)
}

func equalTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// String renders a signature like "(i32,i32)->(i32)".
func (t *FunctionType) String() string {
	s := "("
	for i, p := range t.Params {
		if i > 0 {
			s += ","
		}
		s += api.ValueTypeName(p)
	}
	s += ")->("
	for i, r := range t.Results {
		if i > 0 {
			s += ","
		}
		s += api.ValueTypeName(r)
	}
	return s + ")"
}

// Import describes one entry of the import section: a reference to an
// external module/name pair along with the kind-specific descriptor.
type Import struct {
	Type       api.ExternType
	Module     string
	Name       string
	DescFunc   Index          // valid when Type == ExternTypeFunc: index into TypeSection
	DescTable  *Table         // valid when Type == ExternTypeTable
	DescMem    *Memory        // valid when Type == ExternTypeMemory
	DescGlobal *GlobalType    // valid when Type == ExternTypeGlobal
}

// GlobalType is the static type of a Global: its value type and mutability.
type GlobalType struct {
	ValType api.ValueType
	Mutable bool
}

// GlobalInstance is a module-local global definition: its type and constant
// initializer expression.
type GlobalInstance struct {
	Type *GlobalType
	Init ConstantExpression
}

// ConstantExpression is one of the restricted initializer expressions
// allowed in global/element/data offsets, per spec.md §4.1.
type ConstantExpression struct {
	Opcode Opcode
	Data   []byte // immediate operand(s), opcode-dependent
}

// Table is a resizable array of references of a single reference type.
type Table struct {
	Type api.ValueType // ValueTypeFuncref or ValueTypeExternref
	Min  uint32
	Max  uint32 // valid when HasMax
	HasMax bool
}

// Memory is a sandboxed linear memory's static limits, in units of 64KiB
// pages.
type Memory struct {
	Min    uint32
	Max    uint32 // valid when HasMax
	HasMax bool
	Shared bool
}

// MaxOrDefault returns Max if set, or the platform cap for non-shared/shared
// 32-bit memories (spec.md §3).
func (m *Memory) MaxOrDefault() uint32 {
	if m.HasMax {
		return m.Max
	}
	return MemoryMaxPages
}

// MemoryMaxPages is the largest number of 64KiB pages addressable by a
// 32-bit linear memory: 65536 pages == 4GiB.
const MemoryMaxPages = 65536

// MemoryPageSize is the size in bytes of one Wasm linear memory page.
const MemoryPageSize = 65536

// Export maps an export name to a (kind, index) pair into the respective
// index space.
type Export struct {
	Type  api.ExternType
	Name  string
	Index Index
}

// ElementSegment copies function references into a table at instantiation.
// Active segments are range-checked all-or-nothing against
// every other active segment before any write becomes visible (spec.md
// §4.5 step 3).
type ElementSegment struct {
	TableIndex Index
	Offset     ConstantExpression
	Init       []Index // function indices; RefNull encoded as ElementSegmentNullFunc
}

// ElementSegmentNullFunc marks a null function reference within an
// ElementSegment's Init.
const ElementSegmentNullFunc = ^Index(0)

// DataSegment copies bytes into a memory at instantiation, range-checked
// all-or-nothing (spec.md §4.5 step 4).
type DataSegment struct {
	MemoryIndex Index
	Offset      ConstantExpression
	Init        []byte
}

// CustomSection is an uninterpreted name+payload pair.
type CustomSection struct {
	Name string
	Data []byte
}

// Code is a locally defined function's body: its local variable groups and
// its raw (still un-compiled) instruction stream, as decoded from the code
// section.
type Code struct {
	LocalTypes []api.ValueType // one flattened entry per local, after params
	Body       []byte          // the raw expression bytes, up to and including the terminal `end`
}

// ModuleInfo is the decoded, validated form of a Wasm binary: the semantic
// product of internal/wasm/binary.DecodeModule + Validate. See spec.md §3.
type ModuleInfo struct {
	TypeSection     []*FunctionType
	ImportSection   []*Import
	FunctionSection []Index // function index -> type index, locally defined functions only
	TableSection    []*Table
	MemorySection   []*Memory
	GlobalSection   []*GlobalInstance
	ExportSection   []*Export
	StartSection    *Index
	ElementSection  []*ElementSegment
	CodeSection     []*Code // index-aligned with FunctionSection
	DataSection     []*DataSegment
	CustomSections  []*CustomSection

	// NameSection is populated from the optional "name" custom section, if
	// present and well-formed: best-effort human names for debugging.
	NameSection *NameSection
}

// NameSection holds the optional debug names decoded from the custom "name"
// section.
type NameSection struct {
	ModuleName    string
	FunctionNames map[Index]string
	LocalNames    map[Index]map[Index]string
}

// ImportedFunctionCount returns how many entries of FunctionSection's
// logical index space (imports first, then locals) are imports.
func (m *ModuleInfo) ImportedFunctionCount() (n Index) {
	for _, i := range m.ImportSection {
		if i.Type == api.ExternTypeFunc {
			n++
		}
	}
	return
}

// ImportedTableCount is analogous to ImportedFunctionCount for tables.
func (m *ModuleInfo) ImportedTableCount() (n Index) {
	for _, i := range m.ImportSection {
		if i.Type == api.ExternTypeTable {
			n++
		}
	}
	return
}

// ImportedMemoryCount is analogous to ImportedFunctionCount for memories.
func (m *ModuleInfo) ImportedMemoryCount() (n Index) {
	for _, i := range m.ImportSection {
		if i.Type == api.ExternTypeMemory {
			n++
		}
	}
	return
}

// ImportedGlobalCount is analogous to ImportedFunctionCount for globals.
func (m *ModuleInfo) ImportedGlobalCount() (n Index) {
	for _, i := range m.ImportSection {
		if i.Type == api.ExternTypeGlobal {
			n++
		}
	}
	return
}

// TypeOfFunction resolves the FunctionType of the function at the given
// index in the combined (imports-first) function index space.
func (m *ModuleInfo) TypeOfFunction(idx Index) *FunctionType {
	var i Index
	for _, imp := range m.ImportSection {
		if imp.Type != api.ExternTypeFunc {
			continue
		}
		if i == idx {
			return m.TypeSection[imp.DescFunc]
		}
		i++
	}
	local := idx - i
	if int(local) >= len(m.FunctionSection) {
		return nil
	}
	return m.TypeSection[m.FunctionSection[local]]
}
