// Package interpreter is the one Compiler backend this runtime ships: a
// tree-walking bytecode interpreter operating directly over
// internal/wasm/binary.Instruction streams rather than a separate IR, since
// this backend never emits native code for a lower-level target.
package interpreter

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/wasmrt/wasmrt/api"
	"github.com/wasmrt/wasmrt/internal/engine"
	"github.com/wasmrt/wasmrt/internal/wasm"
	"github.com/wasmrt/wasmrt/internal/wasm/binary"
)

// nullTableRef is the sentinel ref.null and uninitialized table/local slots
// hold; 0 is a valid funcref index so null cannot be 0. Matches the
// sentinel internal/wasmstore tables are pre-filled with.
const nullTableRef = uint64(math.MaxUint64)

// Compiler is the interpreter's engine.Compiler implementation.
type Compiler struct{}

// NewCompiler constructs the interpreter backend.
func NewCompiler() *Compiler { return &Compiler{} }

// Name implements engine.Compiler.
func (c *Compiler) Name() string { return "interpreter" }

// Compile implements engine.Compiler by lowering every locally defined
// function body into a *function with its control-flow jump targets
// precomputed once, up front, so Call never re-scans for matching
// block/loop/if/else/end pairs.
func (c *Compiler) Compile(module *wasm.ModuleInfo, features wasm.Features) ([]engine.CompiledFunction, error) {
	fns := make([]engine.CompiledFunction, len(module.FunctionSection))
	for i, typeIdx := range module.FunctionSection {
		ft := module.TypeSection[typeIdx]
		code := module.CodeSection[i]
		f, err := lower(module, ft, code, features)
		if err != nil {
			return nil, err
		}
		fns[i] = f
	}
	return fns, nil
}

// ctrlTarget records, for one block/loop/if instruction in a function's
// flattened instruction stream, where execution resumes on a branch to it.
type ctrlTarget struct {
	opcode  wasm.Opcode
	elseIdx int // -1 if this `if` has no else
	endIdx  int
}

// function is the interpreter's CompiledFunction.
type function struct {
	ft        *wasm.FunctionType
	numLocals int // params + declared locals
	localType []api.ValueType
	instrs    []binary.Instruction
	targets   map[int]ctrlTarget // keyed by instruction index of block/loop/if
	types     []*wasm.FunctionType // the module's type section, for multi-value block arity
}

func (f *function) Type() *wasm.FunctionType { return f.ft }

// lower decodes a function body once into a flat instruction slice and
// computes its control-flow jump table.
func lower(module *wasm.ModuleInfo, ft *wasm.FunctionType, code *wasm.Code, features wasm.Features) (*function, error) {
	ir := binary.NewInstructionReader(code.Body)
	var instrs []binary.Instruction
	for !ir.Done() {
		inst, err := ir.Next()
		if err != nil {
			return nil, err
		}
		instrs = append(instrs, inst)
	}

	targets := map[int]ctrlTarget{}
	var stack []int // indices of open block/loop/if instructions
	for i, inst := range instrs {
		switch inst.Opcode {
		case wasm.OpcodeBlock, wasm.OpcodeLoop, wasm.OpcodeIf:
			stack = append(stack, i)
			targets[i] = ctrlTarget{opcode: inst.Opcode, elseIdx: -1}
		case wasm.OpcodeElse:
			if len(stack) == 0 {
				return nil, fmt.Errorf("interpreter: else without if")
			}
			openIdx := stack[len(stack)-1]
			t := targets[openIdx]
			t.elseIdx = i
			targets[openIdx] = t
		case wasm.OpcodeEnd:
			if len(stack) == 0 {
				continue // the implicit function-level block's own end
			}
			openIdx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			t := targets[openIdx]
			t.endIdx = i
			targets[openIdx] = t
		}
	}

	locals := append([]api.ValueType(nil), ft.Params...)
	locals = append(locals, code.LocalTypes...)
	return &function{
		ft:        ft,
		numLocals: len(locals),
		localType: locals,
		instrs:    instrs,
		targets:   targets,
		types:     module.TypeSection,
	}, nil
}

// ctrlFrame is a live (runtime) control-flow entry, distinct from the
// compile-time ctrlTarget: it additionally tracks the operand-stack height
// captured when the block was entered, needed to truncate the stack on a
// branch.
type ctrlFrame struct {
	ctrlTarget
	startIdx    int
	stackHeight int
	arity       int // number of values the frame's label carries
}

// Call implements engine.CompiledFunction. args are the function's
// parameters; results are returned on success. A trap aborts execution and
// unwinds immediately.
func (f *function) Call(vm engine.VM, args []uint64) ([]uint64, *api.Trap) {
	locals := make([]uint64, f.numLocals)
	copy(locals, args)

	var stack []uint64
	ctrls := []ctrlFrame{{
		ctrlTarget:  ctrlTarget{opcode: wasm.OpcodeBlock, elseIdx: -1, endIdx: len(f.instrs)},
		startIdx:    -1,
		stackHeight: 0,
		arity:       len(f.ft.Results),
	}}

	pc := 0
	for pc < len(f.instrs) {
		inst := f.instrs[pc]
		trap := f.step(vm, inst, pc, &stack, &locals, &ctrls, &pc)
		if trap != nil {
			return nil, trap
		}
		pc++
	}

	if len(stack) < len(f.ft.Results) {
		return nil, api.NewTrap(api.TrapCodeUnreachable)
	}
	results := stack[len(stack)-len(f.ft.Results):]
	return results, nil
}

// step executes one instruction. On a structured control-flow instruction
// it may overwrite *nextPC to a value other than pc+1 (the caller's loop
// still increments it once more, so branch targets point at the
// instruction immediately preceding where execution should resume).
func (f *function) step(vm engine.VM, inst binary.Instruction, pc int, stackp *[]uint64, localsp *[]uint64, ctrlsp *[]ctrlFrame, nextPC *int) *api.Trap {
	stack := *stackp
	defer func() { *stackp = stack }()
	locals := *localsp
	ctrls := *ctrlsp

	pop := func() uint64 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v
	}
	push := func(v uint64) { stack = append(stack, v) }
	popI32 := func() uint32 { return uint32(pop()) }
	pushI32 := func(v uint32) { push(uint64(v)) }
	popI64 := func() uint64 { return pop() }
	pushI64 := func(v uint64) { push(v) }
	popF32 := func() float32 { return math.Float32frombits(uint32(pop())) }
	pushF32 := func(v float32) { push(uint64(math.Float32bits(v))) }
	popF64 := func() float64 { return math.Float64frombits(pop()) }
	pushF64 := func(v float64) { push(math.Float64bits(v)) }

	switch inst.Opcode {
	case wasm.OpcodeUnreachable:
		return api.NewTrap(api.TrapCodeUnreachable)
	case wasm.OpcodeNop:

	case wasm.OpcodeBlock, wasm.OpcodeLoop:
		target := f.targets[pc]
		arity := f.labelArity(target, inst.Block)
		ctrls = append(ctrls, ctrlFrame{ctrlTarget: target, startIdx: pc, stackHeight: len(stack), arity: arity})

	case wasm.OpcodeIf:
		target := f.targets[pc]
		arity := f.labelArity(target, inst.Block)
		cond := popI32()
		ctrls = append(ctrls, ctrlFrame{ctrlTarget: target, startIdx: pc, stackHeight: len(stack), arity: arity})
		if cond == 0 {
			if target.elseIdx >= 0 {
				*nextPC = target.elseIdx
			} else {
				*nextPC = target.endIdx
				ctrls = ctrls[:len(ctrls)-1] // no else: the if-block's frame never truly opens
			}
		}

	case wasm.OpcodeElse:
		// Reached only by falling through the `if` branch's body: the
		// matching `if`'s frame is still open, skip past the else entirely.
		top := ctrls[len(ctrls)-1]
		*nextPC = top.endIdx
		ctrls = ctrls[:len(ctrls)-1]

	case wasm.OpcodeEnd:
		if len(ctrls) > 1 {
			ctrls = ctrls[:len(ctrls)-1]
		}

	case wasm.OpcodeBr:
		idx, ok := f.branch(inst.LocalIdx, &stack, &ctrls)
		if !ok {
			return api.NewTrap(api.TrapCodeUnreachable)
		}
		*nextPC = idx

	case wasm.OpcodeBrIf:
		if popI32() != 0 {
			idx, ok := f.branch(inst.LocalIdx, &stack, &ctrls)
			if !ok {
				return api.NewTrap(api.TrapCodeUnreachable)
			}
			*nextPC = idx
		}

	case wasm.OpcodeBrTable:
		n := popI32()
		depth := inst.BrTable[len(inst.BrTable)-1]
		if int(n) < len(inst.BrTable)-1 {
			depth = inst.BrTable[n]
		}
		idx, ok := f.branch(depth, &stack, &ctrls)
		if !ok {
			return api.NewTrap(api.TrapCodeUnreachable)
		}
		*nextPC = idx

	case wasm.OpcodeReturn:
		*nextPC = len(f.instrs) - 1
		ctrls = ctrls[:1]

	case wasm.OpcodeCall:
		args := popN(&stack, funcArgCount(vm, inst.FuncIdx))
		results, trap := vm.CallFunction(inst.FuncIdx, args)
		if trap != nil {
			return trap
		}
		stack = append(stack, results...)

	case wasm.OpcodeCallIndirect:
		elemIdx := popI32()
		tbl := vm.TableAt(inst.TableIdx)
		ref, ok := tbl.Get(elemIdx)
		if !ok || ref == nullTableRef {
			return api.NewTrap(api.TrapCodeUninitializedElement)
		}
		args := popN(&stack, indirectArgCount(vm, inst.TypeIdx))
		results, trap := vm.CallIndirect(inst.TableIdx, inst.TypeIdx, uint32(ref), args)
		if trap != nil {
			return trap
		}
		stack = append(stack, results...)

	case wasm.OpcodeDrop:
		pop()
	case wasm.OpcodeSelect:
		cond := popI32()
		b := pop()
		a := pop()
		if cond != 0 {
			push(a)
		} else {
			push(b)
		}

	case wasm.OpcodeLocalGet:
		push(locals[inst.LocalIdx])
	case wasm.OpcodeLocalSet:
		locals[inst.LocalIdx] = pop()
	case wasm.OpcodeLocalTee:
		locals[inst.LocalIdx] = stack[len(stack)-1]

	case wasm.OpcodeGlobalGet:
		push(vm.GlobalGet(inst.GlobalIdx))
	case wasm.OpcodeGlobalSet:
		vm.GlobalSet(inst.GlobalIdx, pop())

	case wasm.OpcodeMemorySize:
		pushI32(vm.MemoryAt(0).Size())
	case wasm.OpcodeMemoryGrow:
		prev, ok := vm.MemoryAt(0).Grow(popI32())
		if !ok {
			pushI32(0xffffffff)
		} else {
			pushI32(prev)
		}

	case wasm.OpcodeI32Const:
		pushI32(uint32(inst.I32))
	case wasm.OpcodeI64Const:
		pushI64(uint64(inst.I64))
	case wasm.OpcodeF32Const:
		pushF32(inst.F32)
	case wasm.OpcodeF64Const:
		pushF64(inst.F64)

	case wasm.OpcodeRefNull:
		pushI64(nullTableRef)
	case wasm.OpcodeRefIsNull:
		if pop() == nullTableRef {
			pushI32(1)
		} else {
			pushI32(0)
		}
	case wasm.OpcodeRefFunc:
		pushI64(uint64(inst.FuncIdx))

	case wasm.OpcodeI32WrapI64:
		pushI32(uint32(popI64()))
	case wasm.OpcodeI64ExtendI32S:
		pushI64(uint64(int64(int32(popI32()))))
	case wasm.OpcodeI64ExtendI32U:
		pushI64(uint64(popI32()))

	case wasm.OpcodeI32Eqz:
		pushI32(b2i(popI32() == 0))
	case wasm.OpcodeI64Eqz:
		pushI32(b2i(popI64() == 0))

	case wasm.OpcodeI32Eq, wasm.OpcodeI32Ne, wasm.OpcodeI32LtS, wasm.OpcodeI32LtU, wasm.OpcodeI32GtS,
		wasm.OpcodeI32GtU, wasm.OpcodeI32LeS, wasm.OpcodeI32LeU, wasm.OpcodeI32GeS, wasm.OpcodeI32GeU:
		b, a := popI32(), popI32()
		pushI32(b2i(cmpI32(inst.Opcode, a, b)))

	case wasm.OpcodeI64Eq, wasm.OpcodeI64Ne, wasm.OpcodeI64LtS, wasm.OpcodeI64LtU, wasm.OpcodeI64GtS,
		wasm.OpcodeI64GtU, wasm.OpcodeI64LeS, wasm.OpcodeI64LeU, wasm.OpcodeI64GeS, wasm.OpcodeI64GeU:
		b, a := popI64(), popI64()
		pushI32(b2i(cmpI64(inst.Opcode, a, b)))

	case wasm.OpcodeI32Add, wasm.OpcodeI32Sub, wasm.OpcodeI32Mul, wasm.OpcodeI32DivS, wasm.OpcodeI32DivU,
		wasm.OpcodeI32RemS, wasm.OpcodeI32RemU, wasm.OpcodeI32And, wasm.OpcodeI32Or, wasm.OpcodeI32Xor,
		wasm.OpcodeI32Shl, wasm.OpcodeI32ShrS, wasm.OpcodeI32ShrU:
		b, a := popI32(), popI32()
		v, trap := arithI32(inst.Opcode, a, b)
		if trap != nil {
			return trap
		}
		pushI32(v)

	case wasm.OpcodeI64Add, wasm.OpcodeI64Sub, wasm.OpcodeI64Mul, wasm.OpcodeI64DivS, wasm.OpcodeI64DivU,
		wasm.OpcodeI64RemS, wasm.OpcodeI64RemU, wasm.OpcodeI64And, wasm.OpcodeI64Or, wasm.OpcodeI64Xor,
		wasm.OpcodeI64Shl, wasm.OpcodeI64ShrS, wasm.OpcodeI64ShrU:
		b, a := popI64(), popI64()
		v, trap := arithI64(inst.Opcode, a, b)
		if trap != nil {
			return trap
		}
		pushI64(v)

	case wasm.OpcodeF32Add:
		b, a := popF32(), popF32()
		pushF32(a + b)
	case wasm.OpcodeF32Sub:
		b, a := popF32(), popF32()
		pushF32(a - b)
	case wasm.OpcodeF32Mul:
		b, a := popF32(), popF32()
		pushF32(a * b)
	case wasm.OpcodeF32Div:
		b, a := popF32(), popF32()
		pushF32(a / b)

	case wasm.OpcodeF64Add:
		b, a := popF64(), popF64()
		pushF64(a + b)
	case wasm.OpcodeF64Sub:
		b, a := popF64(), popF64()
		pushF64(a - b)
	case wasm.OpcodeF64Mul:
		b, a := popF64(), popF64()
		pushF64(a * b)
	case wasm.OpcodeF64Div:
		b, a := popF64(), popF64()
		pushF64(a / b)

	default:
		if isLoadStore(inst.Opcode) {
			return f.loadStore(vm, inst, &stack)
		}
		return api.NewTrap(api.TrapCodeUnreachable)
	}

	*ctrlsp = ctrls
	return nil
}

// labelArity is the number of values a branch to this block/loop carries:
// the loop's parameters for a loop (re-entering its top), the block's
// results otherwise.
func (f *function) labelArity(t ctrlTarget, bt wasm.BlockType) int {
	if bt.TypeIdx >= 0 {
		ft := f.types[bt.TypeIdx]
		if t.opcode == wasm.OpcodeLoop {
			return len(ft.Params) // a branch to a loop re-supplies its params
		}
		return len(ft.Results)
	}
	if t.opcode == wasm.OpcodeLoop || bt.Empty {
		return 0
	}
	return 1
}

// branch resolves a br/br_if/br_table target: it truncates the operand
// stack to the target frame's entry height (preserving its arity worth of
// values on top), pops every now-closed control frame, and returns the
// instruction index execution should resume at.
func (f *function) branch(depth uint32, stackp *[]uint64, ctrlsp *[]ctrlFrame) (int, bool) {
	ctrls := *ctrlsp
	if int(depth) >= len(ctrls) {
		return 0, false
	}
	idx := len(ctrls) - 1 - int(depth)
	target := ctrls[idx]
	stack := *stackp
	carried := stack[len(stack)-target.arity:]
	stack = append(stack[:target.stackHeight], carried...)

	var resumeAt int
	if target.opcode == wasm.OpcodeLoop {
		resumeAt = target.startIdx // pc++ resumes at the loop body's first instruction; the loop frame stays open
		*ctrlsp = ctrls[:idx+1]
	} else {
		resumeAt = target.endIdx
		*ctrlsp = ctrls[:idx]
	}
	*stackp = stack
	return resumeAt, true
}

func (f *function) loadStore(vm engine.VM, inst binary.Instruction, stackp *[]uint64) *api.Trap {
	stack := *stackp
	defer func() { *stackp = stack }()
	mem := vm.MemoryAt(0)
	buf := mem.Bytes()

	pop := func() uint64 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v
	}
	ea := func() (uint64, bool) {
		addr := uint64(uint32(pop())) + uint64(inst.MemArg.Offset)
		return addr, true
	}

	switch inst.Opcode {
	case wasm.OpcodeI32Load:
		addr, _ := ea()
		v, trap := load(buf, addr, 4)
		if trap != nil {
			return trap
		}
		stack = append(stack, uint64(leU32(v)))
	case wasm.OpcodeI64Load:
		addr, _ := ea()
		v, trap := load(buf, addr, 8)
		if trap != nil {
			return trap
		}
		stack = append(stack, leU64(v))
	case wasm.OpcodeF32Load:
		addr, _ := ea()
		v, trap := load(buf, addr, 4)
		if trap != nil {
			return trap
		}
		stack = append(stack, uint64(leU32(v)))
	case wasm.OpcodeF64Load:
		addr, _ := ea()
		v, trap := load(buf, addr, 8)
		if trap != nil {
			return trap
		}
		stack = append(stack, leU64(v))
	case wasm.OpcodeI32Load8S:
		addr, _ := ea()
		v, trap := load(buf, addr, 1)
		if trap != nil {
			return trap
		}
		stack = append(stack, uint64(uint32(int32(int8(v[0])))))
	case wasm.OpcodeI32Load8U:
		addr, _ := ea()
		v, trap := load(buf, addr, 1)
		if trap != nil {
			return trap
		}
		stack = append(stack, uint64(v[0]))
	case wasm.OpcodeI32Load16S:
		addr, _ := ea()
		v, trap := load(buf, addr, 2)
		if trap != nil {
			return trap
		}
		stack = append(stack, uint64(uint32(int32(int16(leU16(v))))))
	case wasm.OpcodeI32Load16U:
		addr, _ := ea()
		v, trap := load(buf, addr, 2)
		if trap != nil {
			return trap
		}
		stack = append(stack, uint64(leU16(v)))
	case wasm.OpcodeI64Load8S:
		addr, _ := ea()
		v, trap := load(buf, addr, 1)
		if trap != nil {
			return trap
		}
		stack = append(stack, uint64(int64(int8(v[0]))))
	case wasm.OpcodeI64Load8U:
		addr, _ := ea()
		v, trap := load(buf, addr, 1)
		if trap != nil {
			return trap
		}
		stack = append(stack, uint64(v[0]))
	case wasm.OpcodeI64Load16S:
		addr, _ := ea()
		v, trap := load(buf, addr, 2)
		if trap != nil {
			return trap
		}
		stack = append(stack, uint64(int64(int16(leU16(v)))))
	case wasm.OpcodeI64Load16U:
		addr, _ := ea()
		v, trap := load(buf, addr, 2)
		if trap != nil {
			return trap
		}
		stack = append(stack, uint64(leU16(v)))
	case wasm.OpcodeI64Load32S:
		addr, _ := ea()
		v, trap := load(buf, addr, 4)
		if trap != nil {
			return trap
		}
		stack = append(stack, uint64(int64(int32(leU32(v)))))
	case wasm.OpcodeI64Load32U:
		addr, _ := ea()
		v, trap := load(buf, addr, 4)
		if trap != nil {
			return trap
		}
		stack = append(stack, uint64(leU32(v)))

	case wasm.OpcodeI32Store:
		val := uint32(pop())
		addr, _ := ea()
		if trap := store32(buf, addr, val, 4); trap != nil {
			return trap
		}
	case wasm.OpcodeI64Store:
		val := pop()
		addr, _ := ea()
		if trap := store64(buf, addr, val, 8); trap != nil {
			return trap
		}
	case wasm.OpcodeF32Store:
		val := uint32(pop())
		addr, _ := ea()
		if trap := store32(buf, addr, val, 4); trap != nil {
			return trap
		}
	case wasm.OpcodeF64Store:
		val := pop()
		addr, _ := ea()
		if trap := store64(buf, addr, val, 8); trap != nil {
			return trap
		}
	case wasm.OpcodeI32Store8:
		val := uint32(pop())
		addr, _ := ea()
		if trap := store32(buf, addr, val, 1); trap != nil {
			return trap
		}
	case wasm.OpcodeI32Store16:
		val := uint32(pop())
		addr, _ := ea()
		if trap := store32(buf, addr, val, 2); trap != nil {
			return trap
		}
	case wasm.OpcodeI64Store8:
		val := pop()
		addr, _ := ea()
		if trap := store64(buf, addr, val, 1); trap != nil {
			return trap
		}
	case wasm.OpcodeI64Store16:
		val := pop()
		addr, _ := ea()
		if trap := store64(buf, addr, val, 2); trap != nil {
			return trap
		}
	case wasm.OpcodeI64Store32:
		val := pop()
		addr, _ := ea()
		if trap := store64(buf, addr, val, 4); trap != nil {
			return trap
		}
	}
	return nil
}

func load(buf []byte, addr uint64, n int) ([]byte, *api.Trap) {
	if addr+uint64(n) > uint64(len(buf)) {
		return nil, api.NewTrap(api.TrapCodeOutOfBoundsMemoryAccess)
	}
	return buf[addr : addr+uint64(n)], nil
}

func store32(buf []byte, addr uint64, v uint32, n int) *api.Trap {
	if addr+uint64(n) > uint64(len(buf)) {
		return api.NewTrap(api.TrapCodeOutOfBoundsMemoryAccess)
	}
	for i := 0; i < n; i++ {
		buf[addr+uint64(i)] = byte(v >> (8 * i))
	}
	return nil
}

func store64(buf []byte, addr uint64, v uint64, n int) *api.Trap {
	if addr+uint64(n) > uint64(len(buf)) {
		return api.NewTrap(api.TrapCodeOutOfBoundsMemoryAccess)
	}
	for i := 0; i < n; i++ {
		buf[addr+uint64(i)] = byte(v >> (8 * i))
	}
	return nil
}

func leU16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func leU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
func leU64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func isLoadStore(op wasm.Opcode) bool {
	return op >= wasm.OpcodeI32Load && op <= wasm.OpcodeI64Store32
}

func b2i(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func cmpI32(op wasm.Opcode, a, b uint32) bool {
	switch op {
	case wasm.OpcodeI32Eq:
		return a == b
	case wasm.OpcodeI32Ne:
		return a != b
	case wasm.OpcodeI32LtS:
		return int32(a) < int32(b)
	case wasm.OpcodeI32LtU:
		return a < b
	case wasm.OpcodeI32GtS:
		return int32(a) > int32(b)
	case wasm.OpcodeI32GtU:
		return a > b
	case wasm.OpcodeI32LeS:
		return int32(a) <= int32(b)
	case wasm.OpcodeI32LeU:
		return a <= b
	case wasm.OpcodeI32GeS:
		return int32(a) >= int32(b)
	case wasm.OpcodeI32GeU:
		return a >= b
	}
	return false
}

func cmpI64(op wasm.Opcode, a, b uint64) bool {
	switch op {
	case wasm.OpcodeI64Eq:
		return a == b
	case wasm.OpcodeI64Ne:
		return a != b
	case wasm.OpcodeI64LtS:
		return int64(a) < int64(b)
	case wasm.OpcodeI64LtU:
		return a < b
	case wasm.OpcodeI64GtS:
		return int64(a) > int64(b)
	case wasm.OpcodeI64GtU:
		return a > b
	case wasm.OpcodeI64LeS:
		return int64(a) <= int64(b)
	case wasm.OpcodeI64LeU:
		return a <= b
	case wasm.OpcodeI64GeS:
		return int64(a) >= int64(b)
	case wasm.OpcodeI64GeU:
		return a >= b
	}
	return false
}

func arithI32(op wasm.Opcode, a, b uint32) (uint32, *api.Trap) {
	switch op {
	case wasm.OpcodeI32Add:
		return a + b, nil
	case wasm.OpcodeI32Sub:
		return a - b, nil
	case wasm.OpcodeI32Mul:
		return a * b, nil
	case wasm.OpcodeI32DivS:
		if b == 0 {
			return 0, api.NewTrap(api.TrapCodeIntegerDivideByZero)
		}
		if int32(a) == math.MinInt32 && int32(b) == -1 {
			return 0, api.NewTrap(api.TrapCodeInvalidConversionToInteger)
		}
		return uint32(int32(a) / int32(b)), nil
	case wasm.OpcodeI32DivU:
		if b == 0 {
			return 0, api.NewTrap(api.TrapCodeIntegerDivideByZero)
		}
		return a / b, nil
	case wasm.OpcodeI32RemS:
		if b == 0 {
			return 0, api.NewTrap(api.TrapCodeIntegerDivideByZero)
		}
		if int32(a) == math.MinInt32 && int32(b) == -1 {
			return 0, nil
		}
		return uint32(int32(a) % int32(b)), nil
	case wasm.OpcodeI32RemU:
		if b == 0 {
			return 0, api.NewTrap(api.TrapCodeIntegerDivideByZero)
		}
		return a % b, nil
	case wasm.OpcodeI32And:
		return a & b, nil
	case wasm.OpcodeI32Or:
		return a | b, nil
	case wasm.OpcodeI32Xor:
		return a ^ b, nil
	case wasm.OpcodeI32Shl:
		return a << (b % 32), nil
	case wasm.OpcodeI32ShrS:
		return uint32(int32(a) >> (b % 32)), nil
	case wasm.OpcodeI32ShrU:
		return a >> (b % 32), nil
	}
	return 0, api.NewTrap(api.TrapCodeUnreachable)
}

func arithI64(op wasm.Opcode, a, b uint64) (uint64, *api.Trap) {
	switch op {
	case wasm.OpcodeI64Add:
		return a + b, nil
	case wasm.OpcodeI64Sub:
		return a - b, nil
	case wasm.OpcodeI64Mul:
		return a * b, nil
	case wasm.OpcodeI64DivS:
		if b == 0 {
			return 0, api.NewTrap(api.TrapCodeIntegerDivideByZero)
		}
		if int64(a) == math.MinInt64 && int64(b) == -1 {
			return 0, api.NewTrap(api.TrapCodeInvalidConversionToInteger)
		}
		return uint64(int64(a) / int64(b)), nil
	case wasm.OpcodeI64DivU:
		if b == 0 {
			return 0, api.NewTrap(api.TrapCodeIntegerDivideByZero)
		}
		return a / b, nil
	case wasm.OpcodeI64RemS:
		if b == 0 {
			return 0, api.NewTrap(api.TrapCodeIntegerDivideByZero)
		}
		if int64(a) == math.MinInt64 && int64(b) == -1 {
			return 0, nil
		}
		return uint64(int64(a) % int64(b)), nil
	case wasm.OpcodeI64RemU:
		if b == 0 {
			return 0, api.NewTrap(api.TrapCodeIntegerDivideByZero)
		}
		return a % b, nil
	case wasm.OpcodeI64And:
		return a & b, nil
	case wasm.OpcodeI64Or:
		return a | b, nil
	case wasm.OpcodeI64Xor:
		return a ^ b, nil
	case wasm.OpcodeI64Shl:
		return a << (b % 64), nil
	case wasm.OpcodeI64ShrS:
		return uint64(int64(a) >> (b % 64)), nil
	case wasm.OpcodeI64ShrU:
		return a >> (b % 64), nil
	}
	return 0, api.NewTrap(api.TrapCodeUnreachable)
}

func popN(stackp *[]uint64, n int) []uint64 {
	stack := *stackp
	args := append([]uint64(nil), stack[len(stack)-n:]...)
	*stackp = stack[:len(stack)-n]
	return args
}

func funcArgCount(vm engine.VM, idx wasm.Index) int { return vm.FunctionParamCount(idx) }

func indirectArgCount(vm engine.VM, typeIdx wasm.Index) int { return vm.TypeParamCount(typeIdx) }

var _ = bits.LeadingZeros32 // reserved for future popcount/clz/ctz opcodes
