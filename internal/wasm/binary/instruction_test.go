package binary

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmrt/wasmrt/internal/wasm"
)

func readAll(t *testing.T, body []byte) []Instruction {
	t.Helper()
	ir := NewInstructionReader(body)
	var out []Instruction
	for !ir.Done() {
		inst, err := ir.Next()
		require.NoError(t, err)
		out = append(out, inst)
	}
	return out
}

func TestInstructionReader_Const(t *testing.T) {
	insts := readAll(t, []byte{
		0x41, 0x2a, // i32.const 42
		0x0b, // end
	})
	require.Len(t, insts, 2)
	require.Equal(t, wasm.OpcodeI32Const, insts[0].Opcode)
	require.Equal(t, int32(42), insts[0].I32)
	require.Equal(t, wasm.OpcodeEnd, insts[1].Opcode)
}

func TestInstructionReader_LocalAndArithmetic(t *testing.T) {
	insts := readAll(t, []byte{
		0x20, 0x00, // local.get 0
		0x20, 0x01, // local.get 1
		0x6a, // i32.add
		0x0b, // end
	})
	require.Len(t, insts, 4)
	require.Equal(t, wasm.OpcodeLocalGet, insts[0].Opcode)
	require.Equal(t, uint32(0), insts[0].LocalIdx)
	require.Equal(t, wasm.OpcodeLocalGet, insts[1].Opcode)
	require.Equal(t, uint32(1), insts[1].LocalIdx)
	require.Equal(t, wasm.OpcodeI32Add, insts[2].Opcode)
}

func TestInstructionReader_Call(t *testing.T) {
	insts := readAll(t, []byte{
		0x10, 0x05, // call 5
	})
	require.Len(t, insts, 1)
	require.Equal(t, wasm.OpcodeCall, insts[0].Opcode)
	require.Equal(t, uint32(5), insts[0].FuncIdx)
}

func TestInstructionReader_BrTable(t *testing.T) {
	insts := readAll(t, []byte{
		0x0e, 0x02, 0x00, 0x01, 0x02, // br_table 0 1 2 (2 explicit + default)
	})
	require.Len(t, insts, 1)
	require.Equal(t, wasm.OpcodeBrTable, insts[0].Opcode)
	require.Equal(t, []uint32{0, 1, 2}, insts[0].BrTable)
}

func TestInstructionReader_MemArg(t *testing.T) {
	insts := readAll(t, []byte{
		0x28, 0x02, 0x04, // i32.load align=2 offset=4
	})
	require.Len(t, insts, 1)
	require.Equal(t, wasm.OpcodeI32Load, insts[0].Opcode)
	require.Equal(t, MemArg{Align: 2, Offset: 4}, insts[0].MemArg)
}

func TestInstructionReader_TruncatedErrors(t *testing.T) {
	ir := NewInstructionReader([]byte{0x41}) // i32.const with no operand
	_, err := ir.Next()
	require.Error(t, err)
}
