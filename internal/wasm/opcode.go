package wasm

import "github.com/wasmrt/wasmrt/api"

// Opcode is a single WebAssembly instruction's leading byte. This repo
// implements the numeric-instruction and control-flow subset exercised by
// spec.md's testable scenarios (S1-S3) plus the memory/table/global
// instructions needed to host them; it is not a complete core-1.0 decoder.
type Opcode = byte

const (
	OpcodeUnreachable Opcode = 0x00
	OpcodeNop         Opcode = 0x01
	OpcodeBlock       Opcode = 0x02
	OpcodeLoop        Opcode = 0x03
	OpcodeIf          Opcode = 0x04
	OpcodeElse        Opcode = 0x05
	OpcodeEnd         Opcode = 0x0b
	OpcodeBr          Opcode = 0x0c
	OpcodeBrIf        Opcode = 0x0d
	OpcodeBrTable     Opcode = 0x0e
	OpcodeReturn      Opcode = 0x0f
	OpcodeCall        Opcode = 0x10
	OpcodeCallIndirect Opcode = 0x11

	OpcodeDrop   Opcode = 0x1a
	OpcodeSelect Opcode = 0x1b

	OpcodeLocalGet  Opcode = 0x20
	OpcodeLocalSet  Opcode = 0x21
	OpcodeLocalTee  Opcode = 0x22
	OpcodeGlobalGet Opcode = 0x23
	OpcodeGlobalSet Opcode = 0x24

	OpcodeI32Load    Opcode = 0x28
	OpcodeI64Load    Opcode = 0x29
	OpcodeF32Load    Opcode = 0x2a
	OpcodeF64Load    Opcode = 0x2b
	OpcodeI32Load8S  Opcode = 0x2c
	OpcodeI32Load8U  Opcode = 0x2d
	OpcodeI32Load16S Opcode = 0x2e
	OpcodeI32Load16U Opcode = 0x2f
	OpcodeI64Load8S  Opcode = 0x30
	OpcodeI64Load8U  Opcode = 0x31
	OpcodeI64Load16S Opcode = 0x32
	OpcodeI64Load16U Opcode = 0x33
	OpcodeI64Load32S Opcode = 0x34
	OpcodeI64Load32U Opcode = 0x35
	OpcodeI32Store   Opcode = 0x36
	OpcodeI64Store   Opcode = 0x37
	OpcodeF32Store   Opcode = 0x38
	OpcodeF64Store   Opcode = 0x39
	OpcodeI32Store8  Opcode = 0x3a
	OpcodeI32Store16 Opcode = 0x3b
	OpcodeI64Store8  Opcode = 0x3c
	OpcodeI64Store16 Opcode = 0x3d
	OpcodeI64Store32 Opcode = 0x3e
	OpcodeMemorySize Opcode = 0x3f
	OpcodeMemoryGrow Opcode = 0x40

	OpcodeI32Const Opcode = 0x41
	OpcodeI64Const Opcode = 0x42
	OpcodeF32Const Opcode = 0x43
	OpcodeF64Const Opcode = 0x44

	OpcodeI32Eqz  Opcode = 0x45
	OpcodeI32Eq   Opcode = 0x46
	OpcodeI32Ne   Opcode = 0x47
	OpcodeI32LtS  Opcode = 0x48
	OpcodeI32LtU  Opcode = 0x49
	OpcodeI32GtS  Opcode = 0x4a
	OpcodeI32GtU  Opcode = 0x4b
	OpcodeI32LeS  Opcode = 0x4c
	OpcodeI32LeU  Opcode = 0x4d
	OpcodeI32GeS  Opcode = 0x4e
	OpcodeI32GeU  Opcode = 0x4f

	OpcodeI64Eqz Opcode = 0x50
	OpcodeI64Eq  Opcode = 0x51
	OpcodeI64Ne  Opcode = 0x52
	OpcodeI64LtS Opcode = 0x53
	OpcodeI64LtU Opcode = 0x54
	OpcodeI64GtS Opcode = 0x55
	OpcodeI64GtU Opcode = 0x56
	OpcodeI64LeS Opcode = 0x57
	OpcodeI64LeU Opcode = 0x58
	OpcodeI64GeS Opcode = 0x59
	OpcodeI64GeU Opcode = 0x5a

	OpcodeI32Add  Opcode = 0x6a
	OpcodeI32Sub  Opcode = 0x6b
	OpcodeI32Mul  Opcode = 0x6c
	OpcodeI32DivS Opcode = 0x6d
	OpcodeI32DivU Opcode = 0x6e
	OpcodeI32RemS Opcode = 0x6f
	OpcodeI32RemU Opcode = 0x70
	OpcodeI32And  Opcode = 0x71
	OpcodeI32Or   Opcode = 0x72
	OpcodeI32Xor  Opcode = 0x73
	OpcodeI32Shl  Opcode = 0x74
	OpcodeI32ShrS Opcode = 0x75
	OpcodeI32ShrU Opcode = 0x76

	OpcodeI64Add  Opcode = 0x7c
	OpcodeI64Sub  Opcode = 0x7d
	OpcodeI64Mul  Opcode = 0x7e
	OpcodeI64DivS Opcode = 0x7f
	OpcodeI64DivU Opcode = 0x80
	OpcodeI64RemS Opcode = 0x81
	OpcodeI64RemU Opcode = 0x82
	OpcodeI64And  Opcode = 0x83
	OpcodeI64Or   Opcode = 0x84
	OpcodeI64Xor  Opcode = 0x85
	OpcodeI64Shl  Opcode = 0x86
	OpcodeI64ShrS Opcode = 0x87
	OpcodeI64ShrU Opcode = 0x88

	OpcodeF32Add Opcode = 0x92
	OpcodeF32Sub Opcode = 0x93
	OpcodeF32Mul Opcode = 0x94
	OpcodeF32Div Opcode = 0x95

	OpcodeF64Add Opcode = 0xa0
	OpcodeF64Sub Opcode = 0xa1
	OpcodeF64Mul Opcode = 0xa2
	OpcodeF64Div Opcode = 0xa3

	OpcodeI32WrapI64     Opcode = 0xa7
	OpcodeI64ExtendI32S  Opcode = 0xac
	OpcodeI64ExtendI32U  Opcode = 0xad

	OpcodeRefNull   Opcode = 0xd0
	OpcodeRefIsNull Opcode = 0xd1
	OpcodeRefFunc   Opcode = 0xd2
)

// BlockType is a decoded block/loop/if signature: empty, a single value
// type, or (with the multi-value feature) a type-section index.
type BlockType struct {
	ValType  api.ValueType
	TypeIdx  int64 // >= 0 when this references TypeSection; -1 otherwise
	Empty    bool
}
