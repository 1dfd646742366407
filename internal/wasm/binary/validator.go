package binary

import (
	"fmt"

	"github.com/wasmrt/wasmrt/api"
	"github.com/wasmrt/wasmrt/internal/wasm"
)

// Validate checks a decoded ModuleInfo for structural well-formedness and
// runs the abstract operand-stack type-checking algorithm over every
// function body, per spec.md §4.1. A module that decodes without error but
// fails Validate must never reach a Compiler.
func Validate(module *wasm.ModuleInfo, features wasm.Features) error {
	if err := validateLimits(module); err != nil {
		return err
	}
	if err := validateIndices(module); err != nil {
		return err
	}
	if err := validateExports(module); err != nil {
		return err
	}
	if len(module.FunctionSection) != len(module.CodeSection) {
		return wasm.NewCompileError("BackendError", "function section length %d does not match code section length %d",
			len(module.FunctionSection), len(module.CodeSection))
	}
	for i, typeIdx := range module.FunctionSection {
		ft := module.TypeSection[typeIdx]
		code := module.CodeSection[i]
		funcIdx := module.ImportedFunctionCount() + wasm.Index(i)
		if err := validateFunctionBody(module, funcIdx, ft, code, features); err != nil {
			return err
		}
	}
	return nil
}

func validateLimits(module *wasm.ModuleInfo) error {
	checkLimits := func(what string, min, max uint32, hasMax bool, cap uint32) error {
		if hasMax && max < min {
			return wasm.ErrLimitsInvalid(what, min, max)
		}
		if min > cap || (hasMax && max > cap) {
			return wasm.ErrLimitsInvalid(what, min, max)
		}
		return nil
	}
	for _, t := range module.TableSection {
		if err := checkLimits("table", t.Min, t.Max, t.HasMax, ^uint32(0)); err != nil {
			return err
		}
	}
	for _, m := range module.MemorySection {
		if err := checkLimits("memory", m.Min, m.Max, m.HasMax, wasm.MemoryMaxPages); err != nil {
			return err
		}
	}
	for _, imp := range module.ImportSection {
		if imp.DescTable != nil {
			if err := checkLimits("imported table", imp.DescTable.Min, imp.DescTable.Max, imp.DescTable.HasMax, ^uint32(0)); err != nil {
				return err
			}
		}
		if imp.DescMem != nil {
			if err := checkLimits("imported memory", imp.DescMem.Min, imp.DescMem.Max, imp.DescMem.HasMax, wasm.MemoryMaxPages); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateIndices(module *wasm.ModuleInfo) error {
	numTypes := wasm.Index(len(module.TypeSection))
	numFuncs := module.ImportedFunctionCount() + wasm.Index(len(module.FunctionSection))
	numTables := module.ImportedTableCount() + wasm.Index(len(module.TableSection))
	numMems := module.ImportedMemoryCount() + wasm.Index(len(module.MemorySection))
	numGlobals := module.ImportedGlobalCount() + wasm.Index(len(module.GlobalSection))

	for _, imp := range module.ImportSection {
		if imp.Type == api.ExternTypeFunc && imp.DescFunc >= numTypes {
			return wasm.ErrUnknownType(imp.DescFunc)
		}
	}
	for _, idx := range module.FunctionSection {
		if idx >= numTypes {
			return wasm.ErrUnknownType(idx)
		}
	}
	for _, g := range module.GlobalSection {
		if err := validateConstExpr(module, g.Init, g.Type.ValType, numGlobals); err != nil {
			return err
		}
	}
	for _, exp := range module.ExportSection {
		switch exp.Type {
		case api.ExternTypeFunc:
			if exp.Index >= numFuncs {
				return wasm.ErrUnknownFunction(exp.Index)
			}
		case api.ExternTypeTable:
			if exp.Index >= numTables {
				return wasm.ErrUnknownTable(exp.Index)
			}
		case api.ExternTypeMemory:
			if exp.Index >= numMems {
				return wasm.ErrUnknownMemory(exp.Index)
			}
		case api.ExternTypeGlobal:
			if exp.Index >= numGlobals {
				return wasm.ErrUnknownGlobal(exp.Index)
			}
		}
	}
	if module.StartSection != nil {
		idx := *module.StartSection
		if idx >= numFuncs {
			return wasm.ErrUnknownFunction(idx)
		}
		ft := module.TypeOfFunction(idx)
		if ft == nil || len(ft.Params) != 0 || len(ft.Results) != 0 {
			return wasm.NewCompileError("BackendError", "start function %d must take no params and return no results", idx)
		}
	}
	for _, seg := range module.ElementSection {
		if seg.TableIndex >= numTables {
			return wasm.ErrUnknownTable(seg.TableIndex)
		}
		if err := validateConstExpr(module, seg.Offset, api.ValueTypeI32, numGlobals); err != nil {
			return err
		}
		for _, fnIdx := range seg.Init {
			if fnIdx != wasm.ElementSegmentNullFunc && fnIdx >= numFuncs {
				return wasm.ErrUnknownFunction(fnIdx)
			}
		}
	}
	for _, seg := range module.DataSection {
		if seg.MemoryIndex == wasm.ElementSegmentNullFunc {
			continue // passive segment, no offset/memory to check
		}
		if seg.MemoryIndex >= numMems {
			return wasm.ErrUnknownMemory(seg.MemoryIndex)
		}
		if err := validateConstExpr(module, seg.Offset, api.ValueTypeI32, numGlobals); err != nil {
			return err
		}
	}
	return nil
}

// validateConstExpr re-decodes a constant expression's single instruction to
// confirm its result type matches want, and that any global.get it contains
// references an earlier-declared immutable import.
func validateConstExpr(module *wasm.ModuleInfo, expr wasm.ConstantExpression, want api.ValueType, numGlobals wasm.Index) error {
	ir := NewInstructionReader(expr.Data)
	inst, err := ir.Next()
	if err != nil {
		return wasm.ErrConstantExprInvalid(expr.Opcode)
	}
	var got api.ValueType
	switch inst.Opcode {
	case wasm.OpcodeI32Const:
		got = api.ValueTypeI32
	case wasm.OpcodeI64Const:
		got = api.ValueTypeI64
	case wasm.OpcodeF32Const:
		got = api.ValueTypeF32
	case wasm.OpcodeF64Const:
		got = api.ValueTypeF64
	case wasm.OpcodeRefNull:
		got = inst.LocalIdx // ref type byte stashed here by the instruction decoder
	case wasm.OpcodeRefFunc:
		got = api.ValueTypeFuncref
	case wasm.OpcodeGlobalGet:
		if inst.GlobalIdx >= module.ImportedGlobalCount() {
			return wasm.ErrConstantExprInvalid(expr.Opcode)
		}
		imp := importedGlobal(module, inst.GlobalIdx)
		if imp == nil || imp.Mutable {
			return wasm.ErrConstantExprInvalid(expr.Opcode)
		}
		got = imp.ValType
	default:
		return wasm.ErrConstantExprInvalid(inst.Opcode)
	}
	if got != want {
		return wasm.ErrTypeMismatch("constant expression", []byte{want}, []byte{got})
	}
	return nil
}

func importedGlobal(module *wasm.ModuleInfo, idx wasm.Index) *wasm.GlobalType {
	var i wasm.Index
	for _, imp := range module.ImportSection {
		if imp.Type != api.ExternTypeGlobal {
			continue
		}
		if i == idx {
			return imp.DescGlobal
		}
		i++
	}
	return nil
}

func validateExports(module *wasm.ModuleInfo) error {
	seen := map[string]bool{}
	for _, exp := range module.ExportSection {
		if seen[exp.Name] {
			return wasm.ErrDuplicateExport(exp.Name)
		}
		seen[exp.Name] = true
	}
	return nil
}

// --- operand-stack type checking -----------------------------------------

const vtUnknown api.ValueType = 0xff

type ctrlFrame struct {
	opcode      wasm.Opcode
	startTypes  []api.ValueType // block parameters: pushed back at a loop branch
	endTypes    []api.ValueType // block results: pushed back on normal exit / non-loop branch
	height      int             // operand-stack height when this frame was entered
	unreachable bool
}

func (f *ctrlFrame) labelTypes() []api.ValueType {
	if f.opcode == wasm.OpcodeLoop {
		return f.startTypes
	}
	return f.endTypes
}

type funcValidator struct {
	module   *wasm.ModuleInfo
	features wasm.Features
	locals   []api.ValueType
	opds     []api.ValueType
	ctrls    []ctrlFrame
}

func validateFunctionBody(module *wasm.ModuleInfo, funcIdx wasm.Index, ft *wasm.FunctionType, code *wasm.Code, features wasm.Features) error {
	fv := &funcValidator{module: module, features: features}
	fv.locals = append(fv.locals, ft.Params...)
	fv.locals = append(fv.locals, code.LocalTypes...)
	fv.pushCtrl(wasm.OpcodeBlock, nil, ft.Results)

	ir := NewInstructionReader(code.Body)
	for !ir.Done() {
		inst, err := ir.Next()
		if err != nil {
			return err
		}
		if err := fv.step(inst); err != nil {
			return fmt.Errorf("wasm: function %d: %w", funcIdx, err)
		}
		if len(fv.ctrls) == 0 {
			break // the outermost block's `end` was just consumed
		}
	}
	if len(fv.ctrls) != 0 {
		return fmt.Errorf("wasm: function %d: missing end", funcIdx)
	}
	return nil
}

func (fv *funcValidator) pushOperand(t api.ValueType) { fv.opds = append(fv.opds, t) }

func (fv *funcValidator) pushOperands(ts []api.ValueType) {
	fv.opds = append(fv.opds, ts...)
}

func (fv *funcValidator) popOperand() (api.ValueType, error) {
	top := &fv.ctrls[len(fv.ctrls)-1]
	if len(fv.opds) == top.height {
		if top.unreachable {
			return vtUnknown, nil
		}
		return 0, wasm.ErrTypeMismatch("pop", nil, nil)
	}
	t := fv.opds[len(fv.opds)-1]
	fv.opds = fv.opds[:len(fv.opds)-1]
	return t, nil
}

func (fv *funcValidator) popOperandExpect(want api.ValueType) error {
	got, err := fv.popOperand()
	if err != nil {
		return err
	}
	if got != vtUnknown && want != vtUnknown && got != want {
		return wasm.ErrTypeMismatch("operand", []byte{want}, []byte{got})
	}
	return nil
}

func (fv *funcValidator) popOperands(ts []api.ValueType) error {
	for i := len(ts) - 1; i >= 0; i-- {
		if err := fv.popOperandExpect(ts[i]); err != nil {
			return err
		}
	}
	return nil
}

func (fv *funcValidator) pushCtrl(opcode wasm.Opcode, in, out []api.ValueType) {
	fv.opds = append(fv.opds, in...)
	fv.ctrls = append(fv.ctrls, ctrlFrame{opcode: opcode, startTypes: in, endTypes: out, height: len(fv.opds)})
}

func (fv *funcValidator) popCtrl() (ctrlFrame, error) {
	if len(fv.ctrls) == 0 {
		return ctrlFrame{}, fmt.Errorf("wasm: unexpected end")
	}
	top := fv.ctrls[len(fv.ctrls)-1]
	if err := fv.popOperands(top.endTypes); err != nil {
		return ctrlFrame{}, err
	}
	if len(fv.opds) != top.height {
		return ctrlFrame{}, wasm.ErrTypeMismatch("block end", nil, nil)
	}
	fv.ctrls = fv.ctrls[:len(fv.ctrls)-1]
	return top, nil
}

func (fv *funcValidator) markUnreachable() {
	top := &fv.ctrls[len(fv.ctrls)-1]
	fv.opds = fv.opds[:top.height]
	top.unreachable = true
}

func (fv *funcValidator) blockTypes(bt wasm.BlockType) (params, results []api.ValueType, err error) {
	if bt.TypeIdx >= 0 {
		idx := wasm.Index(bt.TypeIdx)
		if idx >= wasm.Index(len(fv.module.TypeSection)) {
			return nil, nil, wasm.ErrUnknownType(idx)
		}
		ft := fv.module.TypeSection[idx]
		if len(ft.Results) > 1 {
			if err := fv.features.Require(wasm.FeatureMultiValue, "multi-value"); err != nil {
				return nil, nil, err
			}
		}
		return ft.Params, ft.Results, nil
	}
	if bt.Empty {
		return nil, nil, nil
	}
	return nil, []api.ValueType{bt.ValType}, nil
}

// numeric type family helpers used throughout step()
var (
	i32 = []api.ValueType{api.ValueTypeI32}
	i64 = []api.ValueType{api.ValueTypeI64}
	f32 = []api.ValueType{api.ValueTypeF32}
	f64 = []api.ValueType{api.ValueTypeF64}
)

func (fv *funcValidator) step(inst Instruction) error {
	switch inst.Opcode {
	case wasm.OpcodeUnreachable:
		fv.markUnreachable()
	case wasm.OpcodeNop:
	case wasm.OpcodeBlock, wasm.OpcodeLoop:
		params, results, err := fv.blockTypes(inst.Block)
		if err != nil {
			return err
		}
		if err := fv.popOperands(params); err != nil {
			return err
		}
		fv.pushCtrl(inst.Opcode, params, results)
	case wasm.OpcodeIf:
		if err := fv.popOperandExpect(api.ValueTypeI32); err != nil {
			return err
		}
		params, results, err := fv.blockTypes(inst.Block)
		if err != nil {
			return err
		}
		if err := fv.popOperands(params); err != nil {
			return err
		}
		fv.pushCtrl(wasm.OpcodeIf, params, results)
	case wasm.OpcodeElse:
		frame, err := fv.popCtrl()
		if err != nil {
			return err
		}
		if frame.opcode != wasm.OpcodeIf {
			return fmt.Errorf("wasm: else without matching if")
		}
		fv.pushCtrl(wasm.OpcodeElse, frame.startTypes, frame.endTypes)
	case wasm.OpcodeEnd:
		frame, err := fv.popCtrl()
		if err != nil {
			return err
		}
		fv.pushOperands(frame.endTypes)
	case wasm.OpcodeBr:
		if err := fv.checkBranch(inst.LocalIdx); err != nil {
			return err
		}
		fv.markUnreachable()
	case wasm.OpcodeBrIf:
		if err := fv.popOperandExpect(api.ValueTypeI32); err != nil {
			return err
		}
		if err := fv.checkBranch(inst.LocalIdx); err != nil {
			return err
		}
	case wasm.OpcodeBrTable:
		if err := fv.popOperandExpect(api.ValueTypeI32); err != nil {
			return err
		}
		for _, depth := range inst.BrTable {
			if err := fv.checkBranch(depth); err != nil {
				return err
			}
		}
		fv.markUnreachable()
	case wasm.OpcodeReturn:
		fv.markUnreachable()
	case wasm.OpcodeCall:
		ft := fv.module.TypeOfFunction(inst.FuncIdx)
		if ft == nil {
			return wasm.ErrUnknownFunction(inst.FuncIdx)
		}
		if err := fv.popOperands(ft.Params); err != nil {
			return err
		}
		fv.pushOperands(ft.Results)
	case wasm.OpcodeCallIndirect:
		if inst.TypeIdx >= wasm.Index(len(fv.module.TypeSection)) {
			return wasm.ErrUnknownType(inst.TypeIdx)
		}
		numTables := fv.module.ImportedTableCount() + wasm.Index(len(fv.module.TableSection))
		if inst.TableIdx >= numTables {
			return wasm.ErrUnknownTable(inst.TableIdx)
		}
		if err := fv.popOperandExpect(api.ValueTypeI32); err != nil {
			return err
		}
		ft := fv.module.TypeSection[inst.TypeIdx]
		if err := fv.popOperands(ft.Params); err != nil {
			return err
		}
		fv.pushOperands(ft.Results)
	case wasm.OpcodeDrop:
		if _, err := fv.popOperand(); err != nil {
			return err
		}
	case wasm.OpcodeSelect:
		if err := fv.popOperandExpect(api.ValueTypeI32); err != nil {
			return err
		}
		b, err := fv.popOperand()
		if err != nil {
			return err
		}
		if err := fv.popOperandExpect(b); err != nil {
			return err
		}
		fv.pushOperand(b)
	case wasm.OpcodeLocalGet:
		t, err := fv.localType(inst.LocalIdx)
		if err != nil {
			return err
		}
		fv.pushOperand(t)
	case wasm.OpcodeLocalSet:
		t, err := fv.localType(inst.LocalIdx)
		if err != nil {
			return err
		}
		if err := fv.popOperandExpect(t); err != nil {
			return err
		}
	case wasm.OpcodeLocalTee:
		t, err := fv.localType(inst.LocalIdx)
		if err != nil {
			return err
		}
		if err := fv.popOperandExpect(t); err != nil {
			return err
		}
		fv.pushOperand(t)
	case wasm.OpcodeGlobalGet:
		gt, err := fv.globalType(inst.GlobalIdx)
		if err != nil {
			return err
		}
		fv.pushOperand(gt.ValType)
	case wasm.OpcodeGlobalSet:
		gt, err := fv.globalType(inst.GlobalIdx)
		if err != nil {
			return err
		}
		if !gt.Mutable {
			return fmt.Errorf("wasm: global.set on immutable global %d", inst.GlobalIdx)
		}
		if err := fv.popOperandExpect(gt.ValType); err != nil {
			return err
		}
	case wasm.OpcodeMemorySize:
		if err := fv.requireMemory(); err != nil {
			return err
		}
		fv.pushOperand(api.ValueTypeI32)
	case wasm.OpcodeMemoryGrow:
		if err := fv.requireMemory(); err != nil {
			return err
		}
		if err := fv.popOperandExpect(api.ValueTypeI32); err != nil {
			return err
		}
		fv.pushOperand(api.ValueTypeI32)
	case wasm.OpcodeI32Const:
		fv.pushOperand(api.ValueTypeI32)
	case wasm.OpcodeI64Const:
		fv.pushOperand(api.ValueTypeI64)
	case wasm.OpcodeF32Const:
		fv.pushOperand(api.ValueTypeF32)
	case wasm.OpcodeF64Const:
		fv.pushOperand(api.ValueTypeF64)
	case wasm.OpcodeRefNull:
		fv.pushOperand(inst.LocalIdx)
	case wasm.OpcodeRefIsNull:
		if _, err := fv.popOperand(); err != nil {
			return err
		}
		fv.pushOperand(api.ValueTypeI32)
	case wasm.OpcodeRefFunc:
		if inst.FuncIdx >= fv.module.ImportedFunctionCount()+wasm.Index(len(fv.module.FunctionSection)) {
			return wasm.ErrUnknownFunction(inst.FuncIdx)
		}
		fv.pushOperand(api.ValueTypeFuncref)
	case wasm.OpcodeI32WrapI64:
		return fv.unop(i64, i32)
	case wasm.OpcodeI64ExtendI32S, wasm.OpcodeI64ExtendI32U:
		return fv.unop(i32, i64)
	default:
		if isLoadStore(inst.Opcode) {
			return fv.loadStore(inst.Opcode)
		}
		if fam, ok := cmpFamily[inst.Opcode]; ok {
			return fv.binop(fam, i32)
		}
		if fam, ok := eqzFamily[inst.Opcode]; ok {
			return fv.unop(fam, i32)
		}
		if fam, ok := arithFamily[inst.Opcode]; ok {
			return fv.binop(fam, fam)
		}
		return fmt.Errorf("wasm: unsupported opcode %#x", inst.Opcode)
	}
	return nil
}

func (fv *funcValidator) unop(in, out []api.ValueType) error {
	if err := fv.popOperands(in); err != nil {
		return err
	}
	fv.pushOperands(out)
	return nil
}

func (fv *funcValidator) binop(operand, result []api.ValueType) error {
	if err := fv.popOperands(operand); err != nil {
		return err
	}
	if err := fv.popOperands(operand); err != nil {
		return err
	}
	fv.pushOperands(result)
	return nil
}

var eqzFamily = map[wasm.Opcode][]api.ValueType{
	wasm.OpcodeI32Eqz: i32,
	wasm.OpcodeI64Eqz: i64,
}

var cmpFamily = map[wasm.Opcode][]api.ValueType{
	wasm.OpcodeI32Eq: i32, wasm.OpcodeI32Ne: i32, wasm.OpcodeI32LtS: i32, wasm.OpcodeI32LtU: i32,
	wasm.OpcodeI32GtS: i32, wasm.OpcodeI32GtU: i32, wasm.OpcodeI32LeS: i32, wasm.OpcodeI32LeU: i32,
	wasm.OpcodeI32GeS: i32, wasm.OpcodeI32GeU: i32,
	wasm.OpcodeI64Eq: i64, wasm.OpcodeI64Ne: i64, wasm.OpcodeI64LtS: i64, wasm.OpcodeI64LtU: i64,
	wasm.OpcodeI64GtS: i64, wasm.OpcodeI64GtU: i64, wasm.OpcodeI64LeS: i64, wasm.OpcodeI64LeU: i64,
	wasm.OpcodeI64GeS: i64, wasm.OpcodeI64GeU: i64,
}

var arithFamily = map[wasm.Opcode][]api.ValueType{
	wasm.OpcodeI32Add: i32, wasm.OpcodeI32Sub: i32, wasm.OpcodeI32Mul: i32,
	wasm.OpcodeI32DivS: i32, wasm.OpcodeI32DivU: i32, wasm.OpcodeI32RemS: i32, wasm.OpcodeI32RemU: i32,
	wasm.OpcodeI32And: i32, wasm.OpcodeI32Or: i32, wasm.OpcodeI32Xor: i32,
	wasm.OpcodeI32Shl: i32, wasm.OpcodeI32ShrS: i32, wasm.OpcodeI32ShrU: i32,
	wasm.OpcodeI64Add: i64, wasm.OpcodeI64Sub: i64, wasm.OpcodeI64Mul: i64,
	wasm.OpcodeI64DivS: i64, wasm.OpcodeI64DivU: i64, wasm.OpcodeI64RemS: i64, wasm.OpcodeI64RemU: i64,
	wasm.OpcodeI64And: i64, wasm.OpcodeI64Or: i64, wasm.OpcodeI64Xor: i64,
	wasm.OpcodeI64Shl: i64, wasm.OpcodeI64ShrS: i64, wasm.OpcodeI64ShrU: i64,
	wasm.OpcodeF32Add: f32, wasm.OpcodeF32Sub: f32, wasm.OpcodeF32Mul: f32, wasm.OpcodeF32Div: f32,
	wasm.OpcodeF64Add: f64, wasm.OpcodeF64Sub: f64, wasm.OpcodeF64Mul: f64, wasm.OpcodeF64Div: f64,
}

func (fv *funcValidator) loadStore(op wasm.Opcode) error {
	if err := fv.requireMemory(); err != nil {
		return err
	}
	switch op {
	case wasm.OpcodeI32Load, wasm.OpcodeI32Load8S, wasm.OpcodeI32Load8U, wasm.OpcodeI32Load16S, wasm.OpcodeI32Load16U:
		if err := fv.popOperandExpect(api.ValueTypeI32); err != nil {
			return err
		}
		fv.pushOperand(api.ValueTypeI32)
	case wasm.OpcodeI64Load, wasm.OpcodeI64Load8S, wasm.OpcodeI64Load8U, wasm.OpcodeI64Load16S, wasm.OpcodeI64Load16U,
		wasm.OpcodeI64Load32S, wasm.OpcodeI64Load32U:
		if err := fv.popOperandExpect(api.ValueTypeI32); err != nil {
			return err
		}
		fv.pushOperand(api.ValueTypeI64)
	case wasm.OpcodeF32Load:
		if err := fv.popOperandExpect(api.ValueTypeI32); err != nil {
			return err
		}
		fv.pushOperand(api.ValueTypeF32)
	case wasm.OpcodeF64Load:
		if err := fv.popOperandExpect(api.ValueTypeI32); err != nil {
			return err
		}
		fv.pushOperand(api.ValueTypeF64)
	case wasm.OpcodeI32Store, wasm.OpcodeI32Store8, wasm.OpcodeI32Store16:
		if err := fv.popOperandExpect(api.ValueTypeI32); err != nil {
			return err
		}
		return fv.popOperandExpect(api.ValueTypeI32)
	case wasm.OpcodeI64Store, wasm.OpcodeI64Store8, wasm.OpcodeI64Store16, wasm.OpcodeI64Store32:
		if err := fv.popOperandExpect(api.ValueTypeI64); err != nil {
			return err
		}
		return fv.popOperandExpect(api.ValueTypeI32)
	case wasm.OpcodeF32Store:
		if err := fv.popOperandExpect(api.ValueTypeF32); err != nil {
			return err
		}
		return fv.popOperandExpect(api.ValueTypeI32)
	case wasm.OpcodeF64Store:
		if err := fv.popOperandExpect(api.ValueTypeF64); err != nil {
			return err
		}
		return fv.popOperandExpect(api.ValueTypeI32)
	}
	return nil
}

func (fv *funcValidator) checkBranch(depth uint32) error {
	if int(depth) >= len(fv.ctrls) {
		return fmt.Errorf("wasm: branch depth %d exceeds nesting", depth)
	}
	target := fv.ctrls[len(fv.ctrls)-1-int(depth)]
	saved := append([]api.ValueType(nil), fv.opds...)
	err := fv.popOperands(target.labelTypes())
	fv.opds = saved
	return err
}

func (fv *funcValidator) localType(idx wasm.Index) (api.ValueType, error) {
	if int(idx) >= len(fv.locals) {
		return 0, wasm.ErrUnknownLocal(idx)
	}
	return fv.locals[idx], nil
}

func (fv *funcValidator) globalType(idx wasm.Index) (*wasm.GlobalType, error) {
	if idx < fv.module.ImportedGlobalCount() {
		imp := importedGlobal(fv.module, idx)
		if imp == nil {
			return nil, wasm.ErrUnknownGlobal(idx)
		}
		return imp, nil
	}
	local := idx - fv.module.ImportedGlobalCount()
	if int(local) >= len(fv.module.GlobalSection) {
		return nil, wasm.ErrUnknownGlobal(idx)
	}
	return fv.module.GlobalSection[local].Type, nil
}

func (fv *funcValidator) requireMemory() error {
	n := fv.module.ImportedMemoryCount() + wasm.Index(len(fv.module.MemorySection))
	if n == 0 {
		return wasm.ErrUnknownMemory(0)
	}
	return nil
}
