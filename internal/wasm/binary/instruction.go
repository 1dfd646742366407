package binary

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/wasmrt/wasmrt/api"
	"github.com/wasmrt/wasmrt/internal/leb128"
	"github.com/wasmrt/wasmrt/internal/wasm"
)

// MemArg is the alignment hint (ignored for correctness, kept for fidelity)
// and byte offset immediate of a load/store instruction.
type MemArg struct {
	Align  uint32
	Offset uint32
}

// Instruction is one decoded Wasm instruction: an opcode plus whichever
// immediate fields it uses. This is the shared decode result consumed by
// both the validator (internal/wasm/binary) and the interpreter frontend
// (internal/engine/interpreter), each of which performs its own semantic
// pass (type-checking vs. branch-target lowering) over the same stream.
type Instruction struct {
	Opcode    wasm.Opcode
	Block     wasm.BlockType // block/loop/if
	BrTable   []uint32       // br_table label depths, last entry is the default
	LocalIdx  uint32
	GlobalIdx uint32
	FuncIdx   uint32
	TypeIdx   uint32
	TableIdx  uint32
	MemArg    MemArg
	I32       int32
	I64       int64
	F32       float32
	F64       float64
}

// InstructionReader decodes a function body's raw expression bytes one
// instruction at a time.
type InstructionReader struct {
	r   *bytes.Reader
	pos int
}

// NewInstructionReader wraps body for sequential instruction decoding.
func NewInstructionReader(body []byte) *InstructionReader {
	return &InstructionReader{r: bytes.NewReader(body)}
}

// Pos returns the byte offset of the next instruction to be read, useful
// for trap/backtrace source locations.
func (ir *InstructionReader) Pos() int { return ir.pos }

// Done reports whether the stream is exhausted.
func (ir *InstructionReader) Done() bool { return ir.r.Len() == 0 }

// Next decodes and returns the next instruction.
func (ir *InstructionReader) Next() (Instruction, error) {
	ir.pos = int(ir.r.Size()) - ir.r.Len()
	op, err := ir.r.ReadByte()
	if err != nil {
		return Instruction{}, fmt.Errorf("read opcode: %w", err)
	}
	inst := Instruction{Opcode: op}
	switch op {
	case wasm.OpcodeBlock, wasm.OpcodeLoop, wasm.OpcodeIf:
		bt, err := ir.readBlockType()
		if err != nil {
			return inst, err
		}
		inst.Block = bt
	case wasm.OpcodeBr, wasm.OpcodeBrIf:
		v, _, err := leb128.DecodeUint32(ir.r)
		if err != nil {
			return inst, wasm.ErrBadLeb("br depth", err)
		}
		inst.LocalIdx = v // reused as label depth
	case wasm.OpcodeBrTable:
		count, _, err := leb128.DecodeUint32(ir.r)
		if err != nil {
			return inst, wasm.ErrBadLeb("br_table count", err)
		}
		targets := make([]uint32, count+1)
		for i := range targets {
			targets[i], _, err = leb128.DecodeUint32(ir.r)
			if err != nil {
				return inst, wasm.ErrBadLeb("br_table target", err)
			}
		}
		inst.BrTable = targets
	case wasm.OpcodeCall:
		v, _, err := leb128.DecodeUint32(ir.r)
		if err != nil {
			return inst, wasm.ErrBadLeb("call func index", err)
		}
		inst.FuncIdx = v
	case wasm.OpcodeCallIndirect:
		typeIdx, _, err := leb128.DecodeUint32(ir.r)
		if err != nil {
			return inst, wasm.ErrBadLeb("call_indirect type index", err)
		}
		tableIdx, _, err := leb128.DecodeUint32(ir.r)
		if err != nil {
			return inst, wasm.ErrBadLeb("call_indirect table index", err)
		}
		inst.TypeIdx, inst.TableIdx = typeIdx, tableIdx
	case wasm.OpcodeLocalGet, wasm.OpcodeLocalSet, wasm.OpcodeLocalTee:
		v, _, err := leb128.DecodeUint32(ir.r)
		if err != nil {
			return inst, wasm.ErrBadLeb("local index", err)
		}
		inst.LocalIdx = v
	case wasm.OpcodeGlobalGet, wasm.OpcodeGlobalSet:
		v, _, err := leb128.DecodeUint32(ir.r)
		if err != nil {
			return inst, wasm.ErrBadLeb("global index", err)
		}
		inst.GlobalIdx = v
	case wasm.OpcodeI32Const:
		v, _, err := leb128.DecodeInt32(ir.r)
		if err != nil {
			return inst, wasm.ErrBadLeb("i32.const", err)
		}
		inst.I32 = v
	case wasm.OpcodeI64Const:
		v, _, err := leb128.DecodeInt64(ir.r)
		if err != nil {
			return inst, wasm.ErrBadLeb("i64.const", err)
		}
		inst.I64 = v
	case wasm.OpcodeF32Const:
		var buf [4]byte
		if _, err := io.ReadFull(ir.r, buf[:]); err != nil {
			return inst, fmt.Errorf("f32.const: %w", err)
		}
		inst.F32 = math.Float32frombits(leU32(buf[:]))
	case wasm.OpcodeF64Const:
		var buf [8]byte
		if _, err := io.ReadFull(ir.r, buf[:]); err != nil {
			return inst, fmt.Errorf("f64.const: %w", err)
		}
		inst.F64 = math.Float64frombits(leU64(buf[:]))
	case wasm.OpcodeRefNull:
		// reference type byte immediate, stored as LocalIdx for simplicity
		b, err := ir.r.ReadByte()
		if err != nil {
			return inst, fmt.Errorf("ref.null: %w", err)
		}
		inst.LocalIdx = uint32(b)
	case wasm.OpcodeRefFunc:
		v, _, err := leb128.DecodeUint32(ir.r)
		if err != nil {
			return inst, wasm.ErrBadLeb("ref.func", err)
		}
		inst.FuncIdx = v
	default:
		if isLoadStore(op) {
			align, _, err := leb128.DecodeUint32(ir.r)
			if err != nil {
				return inst, wasm.ErrBadLeb("memarg align", err)
			}
			offset, _, err := leb128.DecodeUint32(ir.r)
			if err != nil {
				return inst, wasm.ErrBadLeb("memarg offset", err)
			}
			inst.MemArg = MemArg{Align: align, Offset: offset}
		} else if op == wasm.OpcodeMemorySize || op == wasm.OpcodeMemoryGrow {
			if _, err := ir.r.ReadByte(); err != nil { // reserved memidx byte, always 0x00
				return inst, fmt.Errorf("memory.size/grow reserved byte: %w", err)
			}
		}
		// else: no immediates (unreachable, nop, end, else, return, drop,
		// select, and all comparison/arithmetic opcodes).
	}
	return inst, nil
}

func isLoadStore(op wasm.Opcode) bool {
	return op >= wasm.OpcodeI32Load && op <= wasm.OpcodeI64Store32
}

func (ir *InstructionReader) readBlockType() (wasm.BlockType, error) {
	b, err := ir.r.ReadByte()
	if err != nil {
		return wasm.BlockType{}, fmt.Errorf("block type: %w", err)
	}
	if b == 0x40 {
		return wasm.BlockType{Empty: true, TypeIdx: -1}, nil
	}
	switch b {
	case api.ValueTypeI32, api.ValueTypeI64, api.ValueTypeF32, api.ValueTypeF64,
		api.ValueTypeV128, api.ValueTypeFuncref, api.ValueTypeExternref:
		return wasm.BlockType{ValType: b, TypeIdx: -1}, nil
	}
	// Multi-value block type: a signed LEB128 s33 type-section index. The
	// byte already read is its first (low 7 bits + continuation) chunk, so
	// rewind and decode as int64.
	if err := ir.r.UnreadByte(); err != nil {
		return wasm.BlockType{}, err
	}
	idx, _, err := leb128.DecodeInt64(ir.r)
	if err != nil {
		return wasm.BlockType{}, wasm.ErrBadLeb("block type index", err)
	}
	return wasm.BlockType{TypeIdx: idx}, nil
}

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
