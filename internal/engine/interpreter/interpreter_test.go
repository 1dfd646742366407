package interpreter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmrt/wasmrt/api"
	"github.com/wasmrt/wasmrt/internal/engine"
	"github.com/wasmrt/wasmrt/internal/wasm"
)

// fakeVM is a minimal engine.VM with no imports or tables and an optional
// memory: enough to run self-contained arithmetic, control-flow and
// load/store functions.
type fakeVM struct {
	mem    *fakeMemory
	frames []api.Frame
}

type fakeMemory struct{ buf []byte }

func (m *fakeMemory) Size() uint32                                     { return uint32(len(m.buf) / 65536) }
func (m *fakeMemory) Grow(delta uint32) (uint32, bool)                 { return 0, false }
func (m *fakeMemory) Bytes() []byte                                    { return m.buf }
func (v *fakeVM) MemoryAt(wasm.Index) engine.MemoryAccess              { return v.mem }
func (v *fakeVM) TableAt(wasm.Index) engine.TableAccess                { return nil }
func (v *fakeVM) GlobalGet(wasm.Index) uint64                          { return 0 }
func (v *fakeVM) GlobalSet(wasm.Index, uint64)                         {}
func (v *fakeVM) CallFunction(wasm.Index, []uint64) ([]uint64, *api.Trap) {
	return nil, api.NewTrap(api.TrapCodeUnreachable)
}
func (v *fakeVM) CallIndirect(uint32, uint32, uint32, []uint64) ([]uint64, *api.Trap) {
	return nil, api.NewTrap(api.TrapCodeUnreachable)
}
func (v *fakeVM) FunctionParamCount(wasm.Index) int { return 0 }
func (v *fakeVM) TypeParamCount(wasm.Index) int     { return 0 }
func (v *fakeVM) PushFrame(f api.Frame)             { v.frames = append(v.frames, f) }
func (v *fakeVM) PopFrame()                         { v.frames = v.frames[:len(v.frames)-1] }

func compileOne(t *testing.T, ft *wasm.FunctionType, body []byte) engine.CompiledFunction {
	t.Helper()
	module := &wasm.ModuleInfo{
		TypeSection:     []*wasm.FunctionType{ft},
		FunctionSection: []wasm.Index{0},
		CodeSection:     []*wasm.Code{{Body: body}},
	}
	fns, err := NewCompiler().Compile(module, wasm.Features20191205)
	require.NoError(t, err)
	require.Len(t, fns, 1)
	return fns[0]
}

func TestCompiler_Name(t *testing.T) {
	require.Equal(t, "interpreter", NewCompiler().Name())
}

func TestInterpreter_Add(t *testing.T) {
	ft := &wasm.FunctionType{Params: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}}
	fn := compileOne(t, ft, []byte{
		0x20, 0x00, // local.get 0
		0x20, 0x01, // local.get 1
		0x6a, // i32.add
		0x0b, // end
	})

	results, trap := fn.Call(&fakeVM{}, []uint64{2, 40})
	require.Nil(t, trap)
	require.Equal(t, []uint64{42}, results)
}

func TestInterpreter_Unreachable(t *testing.T) {
	ft := &wasm.FunctionType{}
	fn := compileOne(t, ft, []byte{0x00, 0x0b}) // unreachable; end

	_, trap := fn.Call(&fakeVM{}, nil)
	require.NotNil(t, trap)
	require.Equal(t, api.TrapCodeUnreachable, trap.Code)
}

func TestInterpreter_DivideByZero(t *testing.T) {
	ft := &wasm.FunctionType{Results: []api.ValueType{api.ValueTypeI32}}
	fn := compileOne(t, ft, []byte{
		0x41, 0x01, // i32.const 1
		0x41, 0x00, // i32.const 0
		0x6d, // i32.div_s
		0x0b, // end
	})

	_, trap := fn.Call(&fakeVM{}, nil)
	require.NotNil(t, trap)
	require.Equal(t, api.TrapCodeIntegerDivideByZero, trap.Code)
}

func TestInterpreter_BlockAndBranch(t *testing.T) {
	// block (result i32): i32.const 7; br 0; i32.const 99 (unreached); end
	ft := &wasm.FunctionType{Results: []api.ValueType{api.ValueTypeI32}}
	fn := compileOne(t, ft, []byte{
		0x02, 0x7f, // block (result i32)
		0x41, 0x07, // i32.const 7
		0x0c, 0x00, // br 0
		0x41, 0x63, // i32.const 99 (dead code)
		0x0b, // end (block)
		0x0b, // end (function)
	})

	results, trap := fn.Call(&fakeVM{}, nil)
	require.Nil(t, trap)
	require.Equal(t, []uint64{7}, results)
}

func TestInterpreter_MemoryLoadStore(t *testing.T) {
	ft := &wasm.FunctionType{Results: []api.ValueType{api.ValueTypeI32}}
	fn := compileOne(t, ft, []byte{
		0x41, 0x00, // i32.const 0 (addr)
		0x41, 0x2a, // i32.const 42
		0x36, 0x02, 0x00, // i32.store align=2 offset=0
		0x41, 0x00, // i32.const 0 (addr)
		0x28, 0x02, 0x00, // i32.load align=2 offset=0
		0x0b, // end
	})

	vm := &fakeVM{mem: &fakeMemory{buf: make([]byte, 65536)}}
	results, trap := fn.Call(vm, nil)
	require.Nil(t, trap)
	require.Equal(t, []uint64{42}, results)
}
