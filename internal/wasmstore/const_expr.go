package wasmstore

import (
	"fmt"

	"github.com/wasmrt/wasmrt/api"
	"github.com/wasmrt/wasmrt/internal/wasm"
	"github.com/wasmrt/wasmrt/internal/wasm/binary"
)

// evalConstExpr computes the runtime value of a constant initializer
// expression (spec.md §4.1, §4.5 step 2). binary.Validate already rejected
// anything but {i32,i64,f32,f64}.const, global.get of an imported immutable
// global, and ref.null/ref.func, so decode failures here would indicate a
// module that reached instantiation without validation.
func evalConstExpr(expr wasm.ConstantExpression, importedGlobals []*globalInstance) (uint64, error) {
	ir := binary.NewInstructionReader(expr.Data)
	inst, err := ir.Next()
	if err != nil {
		return 0, fmt.Errorf("wasmstore: constant expression: %w", err)
	}
	switch inst.Opcode {
	case wasm.OpcodeI32Const:
		return api.EncodeI32(inst.I32), nil
	case wasm.OpcodeI64Const:
		return api.EncodeI64(inst.I64), nil
	case wasm.OpcodeF32Const:
		return api.EncodeF32(inst.F32), nil
	case wasm.OpcodeF64Const:
		return api.EncodeF64(inst.F64), nil
	case wasm.OpcodeGlobalGet:
		if int(inst.GlobalIdx) >= len(importedGlobals) {
			return 0, fmt.Errorf("wasmstore: constant expression: global index %d out of range", inst.GlobalIdx)
		}
		return importedGlobals[inst.GlobalIdx].Get(), nil
	case wasm.OpcodeRefNull:
		return nullRef, nil
	case wasm.OpcodeRefFunc:
		return uint64(inst.FuncIdx), nil
	}
	return 0, fmt.Errorf("wasmstore: constant expression: unexpected opcode %#x", inst.Opcode)
}
