package wasmstore

import (
	"context"
	"fmt"

	"github.com/wasmrt/wasmrt/api"
	"github.com/wasmrt/wasmrt/internal/close"
	"github.com/wasmrt/wasmrt/internal/ctxkey"
	"github.com/wasmrt/wasmrt/internal/engine"
	"github.com/wasmrt/wasmrt/internal/wasm"
)

// maxCallDepth bounds the interpreter's recursive CallFunction chain, which
// rides the host Go goroutine's own stack (spec.md §4.7 stack overflow is
// detected via a guard page on the guest stack; this backend has no guest
// stack to guard, so it counts frames instead).
const maxCallDepth = 4096

// Instance is a vector of concrete resolved imports plus locally created
// Memory/Table/Global/Function handles, matched to a ModuleInfo (spec.md
// §3 Instance, §4.5). It implements engine.VM so any Compiler backend can
// execute against it, and api.Module, the surface embedders and host
// functions see.
type Instance struct {
	storeID StoreId
	store   *Store
	localID uint64
	name    string

	module   *wasm.ModuleInfo
	artifact *engine.Artifact // nil for a host-only instance

	functions []*funcSlot
	memories  []*memoryInstance
	tables    []*tableInstance
	globals   []*globalInstance

	exports map[string]wasm.Export

	closed bool
}

// Instantiate resolves a module's import section against previously
// instantiated, still-registered Instances in the same Store, exactly as
// each Import names them: module name -> registered Instance, import name
// -> one of its exports (spec.md §4.5 step 1).
func Instantiate(ctx context.Context, store *Store, name string, wasmBytes []byte, module *wasm.ModuleInfo) (*Instance, error) {
	inst := &Instance{
		storeID: store.id,
		store:   store,
		localID: store.nextInstanceID(),
		name:    name,
		module:  module,
		exports: map[string]wasm.Export{},
	}

	importedFuncs, importedMems, importedTables, importedGlobals, err := resolveImports(store, module)
	if err != nil {
		return nil, err
	}

	artifact, err := store.engine.CompileModule(wasmBytes, module)
	if err != nil {
		return nil, err
	}
	inst.artifact = artifact

	// Combined (imports-first) function index space.
	inst.functions = append(inst.functions, importedFuncs...)
	for i, typeIdx := range module.FunctionSection {
		ft := module.TypeSection[typeIdx]
		inst.functions = append(inst.functions, &funcSlot{
			typ:         ft,
			isGuest:     true,
			ownerInst:   inst,
			compiledIdx: i,
			def: &funcDefinition{
				moduleName: name,
				index:      uint32(len(importedFuncs) + i),
				name:       localFuncName(module, uint32(len(importedFuncs)+i)),
				params:     ft.Params,
				results:    ft.Results,
			},
		})
	}

	// Combined (imports-first) memory/table index spaces.
	inst.memories = append(inst.memories, importedMems...)
	for _, m := range module.MemorySection {
		inst.memories = append(inst.memories, newMemoryInstance(store.id, m))
	}
	inst.tables = append(inst.tables, importedTables...)
	for _, t := range module.TableSection {
		inst.tables = append(inst.tables, newTableInstance(store.id, t))
	}

	// Combined (imports-first) global index space. Locally defined globals'
	// initializers may only reference the imported globals (spec.md §4.1),
	// so evaluate against importedGlobals alone, then append.
	inst.globals = append(inst.globals, importedGlobals...)
	for _, g := range module.GlobalSection {
		val, err := evalConstExpr(g.Init, importedGlobals)
		if err != nil {
			return nil, err
		}
		inst.globals = append(inst.globals, &globalInstance{storeID: store.id, typ: g.Type.ValType, mutable: g.Type.Mutable, val: val})
	}

	if err := inst.applyElementSegments(module, importedGlobals); err != nil {
		return nil, err
	}
	if err := inst.applyDataSegments(module, importedGlobals); err != nil {
		return nil, err
	}

	for _, exp := range module.ExportSection {
		inst.exports[exp.Name] = *exp
	}

	if module.StartSection != nil {
		if _, trap := inst.CallFunction(*module.StartSection, nil); trap != nil {
			return nil, errStartTrap(trap)
		}
	}

	if err := store.register(name, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

func localFuncName(module *wasm.ModuleInfo, idx wasm.Index) string {
	if module.NameSection != nil {
		if n, ok := module.NameSection.FunctionNames[idx]; ok {
			return n
		}
	}
	return ""
}

// applyElementSegments copies function references into tables, all-or-
// nothing: every segment's bounds are checked before any segment's writes
// become visible (spec.md §4.5 step 3).
func (inst *Instance) applyElementSegments(module *wasm.ModuleInfo, importedGlobals []*globalInstance) error {
	type pending struct {
		table  *tableInstance
		offset uint32
		init   []wasm.Index
	}
	plans := make([]pending, 0, len(module.ElementSection))
	for i, seg := range module.ElementSection {
		if int(seg.TableIndex) >= len(inst.tables) {
			return errOutOfBoundsSegment("element", i)
		}
		table := inst.tables[seg.TableIndex]
		offsetVal, err := evalConstExpr(seg.Offset, importedGlobals)
		if err != nil {
			return err
		}
		offset := uint32(offsetVal)
		if uint64(offset)+uint64(len(seg.Init)) > uint64(table.Size()) {
			return errOutOfBoundsSegment("element", i)
		}
		plans = append(plans, pending{table: table, offset: offset, init: seg.Init})
	}
	for _, p := range plans {
		for i, fnIdx := range p.init {
			ref := nullRef
			if fnIdx != wasm.ElementSegmentNullFunc {
				ref = uint64(fnIdx)
			}
			p.table.Set(p.offset+uint32(i), ref)
		}
	}
	return nil
}

// applyDataSegments copies bytes into memories, all-or-nothing, identically
// to applyElementSegments (spec.md §4.5 step 4). Passive segments (marked
// via wasm.ElementSegmentNullFunc in DataSegment.MemoryIndex, per
// internal/wasm/binary's decoder) are skipped: nothing in SPEC_FULL.md's
// scope reads them back with memory.init.
func (inst *Instance) applyDataSegments(module *wasm.ModuleInfo, importedGlobals []*globalInstance) error {
	type pending struct {
		mem    *memoryInstance
		offset uint32
		init   []byte
	}
	plans := make([]pending, 0, len(module.DataSection))
	for i, seg := range module.DataSection {
		if seg.MemoryIndex == wasm.ElementSegmentNullFunc {
			continue // passive segment
		}
		if int(seg.MemoryIndex) >= len(inst.memories) {
			return errOutOfBoundsSegment("data", i)
		}
		mem := inst.memories[seg.MemoryIndex]
		offsetVal, err := evalConstExpr(seg.Offset, importedGlobals)
		if err != nil {
			return err
		}
		offset := uint32(offsetVal)
		if uint64(offset)+uint64(len(seg.Init)) > uint64(len(mem.buf)) {
			return errOutOfBoundsSegment("data", i)
		}
		plans = append(plans, pending{mem: mem, offset: offset, init: seg.Init})
	}
	for _, p := range plans {
		copy(p.mem.buf[p.offset:], p.init)
	}
	return nil
}

// --- engine.VM ---

func (inst *Instance) MemoryAt(idx wasm.Index) engine.MemoryAccess { return inst.memories[idx] }
func (inst *Instance) TableAt(idx wasm.Index) engine.TableAccess   { return inst.tables[idx] }
func (inst *Instance) GlobalGet(idx wasm.Index) uint64             { return inst.globals[idx].Get() }
func (inst *Instance) GlobalSet(idx wasm.Index, v uint64)          { inst.globals[idx].Set(v) }

func (inst *Instance) FunctionParamCount(idx wasm.Index) int {
	return len(inst.functions[idx].typ.Params)
}

func (inst *Instance) TypeParamCount(typeIdx wasm.Index) int {
	return len(inst.module.TypeSection[typeIdx].Params)
}

// CallFunction implements engine.VM: idx is in this instance's own combined
// function index space (spec.md §4.6). A call into an imported function
// dispatches against that function's owning Instance, since the callee's
// own instruction stream indexes its own index spaces, not the caller's.
func (inst *Instance) CallFunction(idx wasm.Index, args []uint64) ([]uint64, *api.Trap) {
	if int(idx) >= len(inst.functions) {
		return nil, api.NewTrap(api.TrapCodeHostError)
	}
	slot := inst.functions[idx]
	if !slot.isGuest {
		return inst.callHostSlot(slot, args)
	}
	owner := slot.ownerInst
	frame := api.Frame{InstanceID: owner.localID, FuncIndex: idx, ModuleName: inst.name, FuncName: slot.def.Name()}
	if inst.store.depth() >= maxCallDepth {
		return nil, api.NewTrap(api.TrapCodeCallStackOverflow)
	}
	inst.store.pushFrame(frame)
	defer inst.store.popFrame()
	results, trap := owner.artifact.Functions[slot.compiledIdx].Call(owner, args)
	if trap != nil && trap.Frames == nil {
		trap.Frames = inst.store.snapshotFrames()
	}
	return results, trap
}

// CallIndirect implements engine.VM. elementIdx is already the resolved
// function reference read from the table (the combined function index it
// encodes), not a table position: internal/engine/interpreter's
// call_indirect handling reads the table slot itself before calling this.
func (inst *Instance) CallIndirect(tableIdx, typeIdx wasm.Index, elementIdx uint32, args []uint64) ([]uint64, *api.Trap) {
	if int(elementIdx) >= len(inst.functions) {
		return nil, api.NewTrap(api.TrapCodeUninitializedElement)
	}
	slot := inst.functions[elementIdx]
	want := inst.module.TypeSection[typeIdx]
	if !slot.typ.Equal(want) {
		return nil, api.NewTrap(api.TrapCodeIndirectCallTypeMismatch)
	}
	return inst.CallFunction(elementIdx, args)
}

func (inst *Instance) callHostSlot(slot *funcSlot, args []uint64) ([]uint64, *api.Trap) {
	stack := make([]uint64, len(args))
	copy(stack, args)
	if len(stack) < len(slot.typ.Results) {
		grown := make([]uint64, len(slot.typ.Results))
		copy(grown, stack)
		stack = grown
	}
	if inst.store.depth() >= maxCallDepth {
		return nil, api.NewTrap(api.TrapCodeCallStackOverflow)
	}
	inst.store.pushFrame(api.Frame{InstanceID: inst.localID, ModuleName: inst.name, FuncName: slot.hostName})
	defer inst.store.popFrame()

	var trap *api.Trap
	func() {
		defer func() {
			if r := recover(); r != nil {
				if t, ok := r.(*api.Trap); ok {
					trap = t
					return
				}
				trap = &api.Trap{Code: api.TrapCodeHostError, Message: fmt.Sprint(r)}
			}
		}()
		slot.host.Call(context.Background(), inst, stack)
	}()
	if trap != nil {
		if trap.Frames == nil {
			trap.Frames = inst.store.snapshotFrames()
		}
		return nil, trap
	}
	return stack[:len(slot.typ.Results)], nil
}

func (inst *Instance) PushFrame(f api.Frame) { inst.store.pushFrame(f) }
func (inst *Instance) PopFrame()             { inst.store.popFrame() }

// --- api.Module ---

func (inst *Instance) String() string { return fmt.Sprintf("Module[%s]", inst.name) }
func (inst *Instance) Name() string   { return inst.name }

func (inst *Instance) Memory() api.Memory {
	if len(inst.memories) == 0 {
		return nil
	}
	return inst.memories[0]
}

func (inst *Instance) Table() api.Table {
	if len(inst.tables) == 0 {
		return nil
	}
	return inst.tables[0]
}

func (inst *Instance) ExportedFunction(name string) api.Function {
	exp, ok := inst.exports[name]
	if !ok || exp.Type != api.ExternTypeFunc {
		return nil
	}
	slot := inst.functions[exp.Index]
	return &exportedFunction{inst: inst, idx: exp.Index, def: slot.def}
}

func (inst *Instance) ExportedMemory(name string) api.Memory {
	exp, ok := inst.exports[name]
	if !ok || exp.Type != api.ExternTypeMemory {
		return nil
	}
	return inst.memories[exp.Index]
}

func (inst *Instance) ExportedGlobal(name string) api.Global {
	exp, ok := inst.exports[name]
	if !ok || exp.Type != api.ExternTypeGlobal {
		return nil
	}
	return inst.globals[exp.Index]
}

// callExported is the entry point for api.Function.Call: an embedder call
// against a closed Instance traps immediately rather than touching state
// that CloseWithExitCode may already have torn down.
func (inst *Instance) callExported(ctx context.Context, idx wasm.Index, params []uint64) ([]uint64, *api.Trap) {
	if inst.closed {
		return nil, &api.Trap{Code: api.TrapCodeHostError, Message: "module closed"}
	}
	return inst.CallFunction(idx, params)
}

func (inst *Instance) CloseWithExitCode(ctx context.Context, exitCode uint32) error {
	return inst.closeWithExitCode(ctx, exitCode)
}

func (inst *Instance) Close(ctx context.Context) error { return inst.closeWithExitCode(ctx, 0) }

func (inst *Instance) closeWithExitCode(ctx context.Context, exitCode uint32) error {
	if inst.closed {
		return nil
	}
	inst.closed = true
	if ctx == nil {
		ctx = context.Background()
	}
	if n, ok := ctx.Value(close.NotificationKey{}).(close.Notification); ok {
		n.OnClose(ctx, exitCode)
	}
	if n, ok := ctx.Value(ctxkey.CloseNotifierKey{}).(ctxkey.Notifier); ok {
		n.CloseNotify(ctx, exitCode)
	}
	inst.store.unregister(inst.name)
	return nil
}

var _ api.Module = (*Instance)(nil)
var _ engine.VM = (*Instance)(nil)
